package model_test

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	model "github.com/okian/inhouse/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
)

func fullComposition() model.Composition {
	var c model.Composition
	for i, s := range model.Slots() {
		c.Set(s, fmt.Sprintf("p%d", i))
	}
	return c
}

func TestRole(t *testing.T) {
	convey.Convey("Given role names", t, func() {
		convey.Convey("When parsing canonical names and aliases", func() {
			top, errTop := model.ParseRole("TOP")
			adc, errAdc := model.ParseRole(" adc ")
			_, errBad := model.ParseRole("tank")

			convey.Convey("Then they resolve to the fixed enumeration", func() {
				convey.So(errTop, convey.ShouldBeNil)
				convey.So(top, convey.ShouldEqual, model.RoleTop)
				convey.So(errAdc, convey.ShouldBeNil)
				convey.So(adc, convey.ShouldEqual, model.RoleBot)
				convey.So(errors.Is(errBad, model.ErrUnknownRole), convey.ShouldBeTrue)
			})
		})

		convey.Convey("Then the enumeration order is top, jungle, mid, bot, support", func() {
			convey.So(model.RoleNames(), convey.ShouldResemble, []string{"top", "jungle", "mid", "bot", "support"})
		})
	})
}

func TestTeam(t *testing.T) {
	convey.Convey("Given teams", t, func() {
		convey.So(model.TeamBlue.Opponent(), convey.ShouldEqual, model.TeamRed)
		convey.So(model.TeamRed.Opponent(), convey.ShouldEqual, model.TeamBlue)
		convey.So(model.TeamNone.Opponent(), convey.ShouldEqual, model.TeamNone)

		red, err := model.ParseTeam("Red")
		convey.So(err, convey.ShouldBeNil)
		convey.So(red, convey.ShouldEqual, model.TeamRed)

		_, err = model.ParseTeam("green")
		convey.So(errors.Is(err, model.ErrUnknownTeam), convey.ShouldBeTrue)
	})
}

func TestComposition(t *testing.T) {
	convey.Convey("Given a composition with ten distinct participants", t, func() {
		c := fullComposition()

		convey.Convey("Then it validates and exposes slots in canonical order", func() {
			convey.So(c.Validate(), convey.ShouldBeNil)
			convey.So(c.Participants(), convey.ShouldResemble,
				[]string{"p0", "p1", "p2", "p3", "p4", "p5", "p6", "p7", "p8", "p9"})
			slot, ok := c.SlotOf("p3")
			convey.So(ok, convey.ShouldBeTrue)
			convey.So(slot, convey.ShouldResemble, model.Slot{Team: model.TeamRed, Role: model.RoleJungle})
		})

		convey.Convey("When a participant holds two slots", func() {
			c.Set(model.Slot{Team: model.TeamRed, Role: model.RoleSupport}, "p0")

			convey.Convey("Then validation fails", func() {
				convey.So(errors.Is(c.Validate(), model.ErrInvalidComposition), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When it is encoded as JSON", func() {
			raw, err := json.Marshal(c)
			convey.So(err, convey.ShouldBeNil)

			var decoded model.Composition
			convey.So(json.Unmarshal(raw, &decoded), convey.ShouldBeNil)

			convey.Convey("Then lineups are keyed by role name", func() {
				convey.So(string(raw), convey.ShouldContainSubstring, `"top":"p0"`)
				convey.So(decoded, convey.ShouldResemble, c)
			})
		})
	})
}

func TestSessionLifecycle(t *testing.T) {
	convey.Convey("Given a proposed session", t, func() {
		g := &model.GameSession{ID: "g1", State: model.StateProposed, Composition: fullComposition()}

		convey.Convey("Then it can be confirmed, reported, disputed and scored", func() {
			convey.So(g.Transition(model.StateConfirmed), convey.ShouldBeNil)
			convey.So(g.State.Unresolved(), convey.ShouldBeTrue)
			convey.So(g.Transition(model.StateReported), convey.ShouldBeNil)
			convey.So(g.Transition(model.StateDisputeReview), convey.ShouldBeNil)
			convey.So(g.Transition(model.StateScored), convey.ShouldBeNil)
			convey.So(g.State.Terminal(), convey.ShouldBeTrue)
		})

		convey.Convey("Then it cannot be scored directly", func() {
			err := g.Transition(model.StateScored)
			convey.So(errors.Is(err, model.ErrInvalidTransition), convey.ShouldBeTrue)
			convey.So(g.State, convey.ShouldEqual, model.StateProposed)
		})

		convey.Convey("Then terminal states accept nothing", func() {
			convey.So(g.Transition(model.StateVoided), convey.ShouldBeNil)
			convey.So(g.Transition(model.StateConfirmed), convey.ShouldNotBeNil)
		})

		convey.Convey("When cloned", func() {
			g.Snapshot = map[string]model.Rating{"p0": {Mu: 25, Sigma: 8}}
			cp := g.Clone()
			cp.Snapshot["p0"] = model.Rating{Mu: 1}

			convey.Convey("Then the copy does not alias maps", func() {
				convey.So(g.Snapshot["p0"].Mu, convey.ShouldEqual, 25)
			})
		})

		convey.Convey("Then team lookup follows the composition", func() {
			team, ok := g.TeamOf("p1")
			convey.So(ok, convey.ShouldBeTrue)
			convey.So(team, convey.ShouldEqual, model.TeamRed)
			_, ok = g.TeamOf("nobody")
			convey.So(ok, convey.ShouldBeFalse)
		})
	})

	convey.Convey("Given state names", t, func() {
		s, err := model.ParseSessionState("dispute_review")
		convey.So(err, convey.ShouldBeNil)
		convey.So(s, convey.ShouldEqual, model.StateDisputeReview)
		_, err = model.ParseSessionState("lost")
		convey.So(errors.Is(err, model.ErrUnknownSessionState), convey.ShouldBeTrue)
	})
}

func TestConservativeRating(t *testing.T) {
	convey.Convey("Given a rating", t, func() {
		r := model.Rating{Mu: 25, Sigma: 25.0 / 3.0}
		convey.So(r.Conservative(), convey.ShouldAlmostEqual, 0, 1e-9)
	})
}
