package matchmaking_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/okian/inhouse/internal/domain/matchmaking"
	"github.com/okian/inhouse/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func flat(mu float64) matchmaking.RatingFunc {
	return func(string, model.Role) model.Rating {
		return model.Rating{Mu: mu, Sigma: 25.0 / 3}
	}
}

// queues builds n distinct participants per role named <role>-<i>.
func queues(n int) matchmaking.Queues {
	var q matchmaking.Queues
	for _, r := range model.Roles() {
		for i := 0; i < n; i++ {
			q[r] = append(q[r], fmt.Sprintf("%s-%d", r, i))
		}
	}
	return q
}

func assertDistinct(c model.Composition) {
	So(c.Validate(), ShouldBeNil)
}

func TestSearch(t *testing.T) {
	ctx := context.Background()

	Convey("Given exactly two equally rated participants per role", t, func() {
		mm := matchmaking.New()
		q := queues(2)

		res, err := mm.Search(ctx, q, flat(25))

		Convey("Then a perfectly balanced composition is found", func() {
			So(err, ShouldBeNil)
			So(res.Score, ShouldAlmostEqual, 0, 1e-12)
			So(res.WinProbability, ShouldAlmostEqual, 0.5, 1e-12)
			So(res.Candidates, ShouldEqual, 32)
			assertDistinct(res.Composition)
		})

		Convey("Then ties keep the first enumerated candidate", func() {
			for _, r := range model.Roles() {
				So(res.Composition.Blue[r], ShouldEqual, q[r][0])
				So(res.Composition.Red[r], ShouldEqual, q[r][1])
			}
		})
	})

	Convey("Given a role with a single participant", t, func() {
		q := queues(2)
		q[model.RoleMid] = q[model.RoleMid][:1]

		_, err := matchmaking.New().Search(ctx, q, flat(25))

		Convey("Then no composition is possible", func() {
			So(errors.Is(err, matchmaking.ErrNoViableComposition), ShouldBeTrue)
		})
	})

	Convey("Given queues where one participant fills two roles", t, func() {
		q := queues(2)
		// mid has only "top-0" and one real mid; any use of top-0 at mid collides
		// unless top is covered by someone else.
		q[model.RoleMid] = []string{"top-0", "mid-0"}
		q[model.RoleTop] = []string{"top-0", "top-1", "top-2"}

		res, err := matchmaking.New().Search(ctx, q, flat(25))

		Convey("Then the result never repeats a participant", func() {
			So(err, ShouldBeNil)
			assertDistinct(res.Composition)
			So(res.Composition.Team(model.TeamBlue)[model.RoleTop], ShouldNotEqual, "top-0")
		})
	})

	Convey("Given queues where every candidate collides", t, func() {
		var q matchmaking.Queues
		for _, r := range model.Roles() {
			q[r] = []string{"a", "b"}
		}

		_, err := matchmaking.New().Search(ctx, q, flat(25))

		Convey("Then it reports no viable composition", func() {
			So(errors.Is(err, matchmaking.ErrNoViableComposition), ShouldBeTrue)
		})
	})

	Convey("Given mixed ratings", t, func() {
		q := queues(3)
		ratings := map[string]float64{}
		for r, ids := range q {
			for i, id := range ids {
				ratings[id] = 15 + float64(r*3+i*4)
			}
		}
		rf := func(id string, _ model.Role) model.Rating {
			return model.Rating{Mu: ratings[id], Sigma: 4}
		}
		mm := matchmaking.New()

		first, err1 := mm.Search(ctx, q, rf)
		second, err2 := mm.Search(ctx, q, rf)

		Convey("Then repeated searches are deterministic", func() {
			So(err1, ShouldBeNil)
			So(err2, ShouldBeNil)
			So(second, ShouldResemble, first)
			assertDistinct(first.Composition)
		})

		Convey("Then the score is the best among all candidates", func() {
			So(first.Score, ShouldBeLessThanOrEqualTo, 0)
			So(first.Score, ShouldBeGreaterThan, -0.1)
		})
	})

	Convey("Given a search space above the bound", t, func() {
		q := queues(4)
		mm := matchmaking.New(matchmaking.WithMaxCandidates(1000))

		_, err := mm.Search(ctx, q, flat(25))

		Convey("Then the search is refused", func() {
			So(errors.Is(err, matchmaking.ErrSearchSpaceTooLarge), ShouldBeTrue)
			So(matchmaking.CandidateCount(q), ShouldEqual, 12*12*12*12*12)
		})
	})

	Convey("Given a cancelled context and a large search", t, func() {
		cctx, cancel := context.WithCancel(ctx)
		cancel()

		_, err := matchmaking.New().Search(cctx, queues(4), flat(25))

		Convey("Then the search stops with the context error", func() {
			So(errors.Is(err, context.Canceled), ShouldBeTrue)
		})
	})
}
