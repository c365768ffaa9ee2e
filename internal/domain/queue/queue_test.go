package queue_test

import (
	"testing"
	"time"

	"github.com/okian/inhouse/internal/domain/model"
	"github.com/okian/inhouse/internal/domain/queue"
	. "github.com/smartystreets/goconvey/convey"
)

func TestManager(t *testing.T) {
	Convey("Given an empty queue manager", t, func() {
		tick := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
		clock := func() time.Time {
			tick = tick.Add(time.Second)
			return tick
		}
		m := queue.NewManager(queue.WithClock(clock))

		Convey("When a participant queues for two roles", func() {
			added := m.Add("c1", "p1", []model.Role{model.RoleTop, model.RoleMid})

			Convey("Then both entries are added", func() {
				So(len(added), ShouldEqual, 2)
				snap := m.Snapshot("c1")
				So(snap[model.RoleTop], ShouldResemble, []string{"p1"})
				So(snap[model.RoleMid], ShouldResemble, []string{"p1"})
				So(snap[model.RoleBot], ShouldResemble, []string{})
				So(m.ChannelsOf("p1"), ShouldResemble, []string{"c1"})
			})

			Convey("And queues again for the same roles", func() {
				again := m.Add("c1", "p1", []model.Role{model.RoleTop, model.RoleMid})

				Convey("Then nothing changes", func() {
					So(again, ShouldBeEmpty)
					So(m.Depths("c1")[model.RoleTop], ShouldEqual, 1)
				})
			})

			Convey("And is removed twice", func() {
				first := m.Remove("c1", "p1")
				second := m.Remove("c1", "p1")

				Convey("Then the second removal is a no-op", func() {
					So(first, ShouldBeTrue)
					So(second, ShouldBeFalse)
					So(m.Channels(), ShouldBeEmpty)
				})
			})
		})

		Convey("When several participants queue in order", func() {
			for _, id := range []string{"a", "b", "c"} {
				m.Add("c1", id, []model.Role{model.RoleSupport})
			}
			m.Add("c2", "b", []model.Role{model.RoleSupport})

			Convey("Then the matchmaker view keeps insertion order and honours skip", func() {
				q := m.Ordered("c1", nil)
				So(q[model.RoleSupport], ShouldResemble, []string{"a", "b", "c"})
				filtered := m.Ordered("c1", func(id string) bool { return id == "b" })
				So(filtered[model.RoleSupport], ShouldResemble, []string{"a", "c"})
			})

			Convey("Then removal from one channel leaves the other intact", func() {
				m.RemoveMany("c1", []string{"a", "b"})
				So(m.Snapshot("c1")[model.RoleSupport], ShouldResemble, []string{"c"})
				So(m.Snapshot("c2")[model.RoleSupport], ShouldResemble, []string{"b"})
				So(m.ChannelsOf("b"), ShouldResemble, []string{"c2"})
				So(m.Participants(), ShouldEqual, 2)
			})

			Convey("Then entries can be restored into a fresh manager in order", func() {
				entries := m.Entries("c1")
				fresh := queue.NewManager()
				// reversed input still restores by timestamp
				for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
					entries[i], entries[j] = entries[j], entries[i]
				}
				fresh.Restore(entries)
				So(fresh.Ordered("c1", nil)[model.RoleSupport], ShouldResemble, []string{"a", "b", "c"})
			})
		})

		Convey("When an invalid role is given", func() {
			added := m.Add("c1", "p1", []model.Role{model.Role(9)})

			Convey("Then it is ignored", func() {
				So(added, ShouldBeEmpty)
			})
		})
	})
}
