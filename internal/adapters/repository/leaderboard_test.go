package repository_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/okian/inhouse/internal/adapters/repository"
	"github.com/okian/inhouse/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func row(id string, role model.Role, mu, sigma float64) model.RoleRating {
	return model.RoleRating{ParticipantID: id, Role: role, Rating: model.Rating{Mu: mu, Sigma: sigma}}
}

func TestLeaderboard(t *testing.T) {
	ctx := context.Background()

	Convey("Given a leaderboard with mid laners", t, func() {
		lb := repository.NewLeaderboard()
		lb.Upsert(ctx,
			row("alice", model.RoleMid, 30, 2), // 24
			row("bob", model.RoleMid, 27, 1),   // 24
			row("carol", model.RoleMid, 25, 5), // 10
			row("dave", model.RoleMid, 40, 3),  // 31
			row("erin", model.RoleTop, 50, 1),
		)
		lb.SetName("dave", "Dave")

		Convey("When asking for the top entries", func() {
			top, err := lb.TopN(ctx, model.RoleMid, 10)

			Convey("Then they are ordered by conservative skill with dense tie ranks", func() {
				So(err, ShouldBeNil)
				So(len(top), ShouldEqual, 4)
				So(top[0].ParticipantID, ShouldEqual, "dave")
				So(top[0].Name, ShouldEqual, "Dave")
				So(top[0].Rank, ShouldEqual, 1)
				So(top[1].ParticipantID, ShouldEqual, "alice")
				So(top[2].ParticipantID, ShouldEqual, "bob")
				So(top[1].Rank, ShouldEqual, 2)
				So(top[2].Rank, ShouldEqual, 2)
				So(top[3].Rank, ShouldEqual, 3)
			})
		})

		Convey("When ranking single participants", func() {
			bob, err := lb.Rank(ctx, model.RoleMid, "bob")
			carol, _ := lb.Rank(ctx, model.RoleMid, "carol")
			_, missing := lb.Rank(ctx, model.RoleMid, "erin")

			Convey("Then ranks match TopN", func() {
				So(err, ShouldBeNil)
				So(bob.Rank, ShouldEqual, 2)
				So(carol.Rank, ShouldEqual, 3)
				So(errors.Is(missing, repository.ErrNotFound), ShouldBeTrue)
			})
		})

		Convey("When a rating drops", func() {
			lb.Upsert(ctx, row("dave", model.RoleMid, 20, 3))
			top, _ := lb.TopN(ctx, model.RoleMid, 1)

			Convey("Then the lower rating replaces the higher one", func() {
				So(top[0].ParticipantID, ShouldEqual, "alice")
				So(lb.Count(model.RoleMid), ShouldEqual, 4)
			})
		})

		Convey("When the limit is invalid", func() {
			_, err := lb.TopN(ctx, model.RoleMid, 0)

			Convey("Then TopN refuses", func() {
				So(errors.Is(err, repository.ErrInvalidLimit), ShouldBeTrue)
			})
		})

		Convey("When reloaded from rows", func() {
			lb.Load(ctx, []model.RoleRating{row("zed", model.RoleMid, 25, 1)})

			Convey("Then previous content is gone", func() {
				So(lb.Count(model.RoleMid), ShouldEqual, 1)
				So(lb.Count(model.RoleTop), ShouldEqual, 0)
			})
		})
	})

	Convey("Given many participants", t, func() {
		lb := repository.NewLeaderboard()
		for i := 0; i < 500; i++ {
			lb.Upsert(ctx, row(fmt.Sprintf("p%03d", i), model.RoleBot, float64(i), 0))
		}

		Convey("Then rank lookups agree with positions", func() {
			e, err := lb.Rank(ctx, model.RoleBot, "p499")
			So(err, ShouldBeNil)
			So(e.Rank, ShouldEqual, 1)
			e, _ = lb.Rank(ctx, model.RoleBot, "p000")
			So(e.Rank, ShouldEqual, 500)
			top, _ := lb.TopN(ctx, model.RoleBot, 3)
			So(top[2].ParticipantID, ShouldEqual, "p497")
		})
	})
}

func BenchmarkLeaderboardUpsert(b *testing.B) {
	ctx := context.Background()
	lb := repository.NewLeaderboard()
	for i := 0; i < b.N; i++ {
		lb.Upsert(ctx, row(fmt.Sprintf("p%d", i%10_000), model.RoleSupport, float64(i%97), 2))
	}
}

func BenchmarkLeaderboardRank(b *testing.B) {
	ctx := context.Background()
	lb := repository.NewLeaderboard()
	for i := 0; i < 10_000; i++ {
		lb.Upsert(ctx, row(fmt.Sprintf("p%d", i), model.RoleSupport, float64(i), 2))
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = lb.Rank(ctx, model.RoleSupport, fmt.Sprintf("p%d", i%10_000))
	}
}
