package rating_test

import (
	"errors"
	"math"
	"testing"

	"github.com/okian/inhouse/internal/domain/model"
	"github.com/okian/inhouse/internal/domain/rating"
	. "github.com/smartystreets/goconvey/convey"
)

func team(n int, mu, sigma float64) []model.Rating {
	out := make([]model.Rating, n)
	for i := range out {
		out[i] = model.Rating{Mu: mu, Sigma: sigma}
	}
	return out
}

func sumMu(rs []model.Rating) float64 {
	var s float64
	for _, r := range rs {
		s += r.Mu
	}
	return s
}

func TestWinProbability(t *testing.T) {
	env := rating.DefaultEnv()

	Convey("Given two equal teams", t, func() {
		blue := team(5, 25, 25.0/3)
		red := team(5, 25, 25.0/3)

		Convey("Then the game is a coin flip with a perfect balance score", func() {
			p := env.WinProbability(blue, red)
			So(p, ShouldAlmostEqual, 0.5, 1e-12)
			So(rating.BalanceScore(p), ShouldAlmostEqual, 0, 1e-12)
		})
	})

	Convey("Given a stronger blue team", t, func() {
		blue := team(5, 30, 4)
		red := team(5, 22, 4)

		Convey("Then blue is favoured and the probabilities are complementary", func() {
			p := env.WinProbability(blue, red)
			q := env.WinProbability(red, blue)
			So(p, ShouldBeGreaterThan, 0.5)
			So(p+q, ShouldAlmostEqual, 1, 1e-12)
			So(rating.BalanceScore(p), ShouldEqual, rating.BalanceScore(q))
			So(rating.BalanceScore(p), ShouldBeLessThan, 0)
		})
	})
}

func TestRate(t *testing.T) {
	env := rating.DefaultEnv()

	Convey("Given two teams of five with default ratings and blue winning", t, func() {
		blue := team(5, 25, 8.3)
		red := team(5, 25, 8.3)

		newBlue, newRed, err := env.Rate(blue, red)

		Convey("Then blue rises, red falls, and the changes mirror each other", func() {
			So(err, ShouldBeNil)
			So(sumMu(newBlue)/5, ShouldBeGreaterThan, 25)
			So(sumMu(newRed)/5, ShouldBeLessThan, 25)

			var gain, loss float64
			for i := range newBlue {
				gain += math.Abs(newBlue[i].Mu - blue[i].Mu)
				loss += math.Abs(newRed[i].Mu - red[i].Mu)
			}
			So(gain, ShouldAlmostEqual, loss, 1e-9)
		})

		Convey("Then uncertainty shrinks for everybody", func() {
			for _, r := range append(newBlue, newRed...) {
				So(r.Sigma, ShouldBeLessThan, 8.3)
				So(r.Sigma, ShouldBeGreaterThan, 0)
			}
		})

		Convey("Then the inputs are untouched", func() {
			So(blue[0].Mu, ShouldEqual, 25)
			So(red[0].Mu, ShouldEqual, 25)
		})
	})

	Convey("Given an upset", t, func() {
		strong := team(5, 32, 3)
		weak := team(5, 20, 3)

		expectedW, _, err1 := env.Rate(strong, weak)
		upsetW, _, err2 := env.Rate(weak, strong)

		Convey("Then the underdog gains more than the favourite would have", func() {
			So(err1, ShouldBeNil)
			So(err2, ShouldBeNil)
			So(upsetW[0].Mu-20, ShouldBeGreaterThan, expectedW[0].Mu-32)
		})
	})

	Convey("Given the default draw probability", t, func() {
		noDraw := rating.NewEnv(25, 25.0/3, 0)
		winners, _, err := env.Rate(team(5, 25, 25.0/3), team(5, 25, 25.0/3))
		plain, _, _ := noDraw.Rate(team(5, 25, 25.0/3), team(5, 25, 25.0/3))

		Convey("Then a win counts for more than without a draw margin", func() {
			So(err, ShouldBeNil)
			So(winners[0].Mu, ShouldBeGreaterThan, plain[0].Mu)
		})
	})

	Convey("Given an empty team", t, func() {
		_, _, err := env.Rate(nil, team(5, 25, 8))

		Convey("Then Rate refuses", func() {
			So(errors.Is(err, rating.ErrInvalidTeams), ShouldBeTrue)
		})
	})

	Convey("Given the default environment", t, func() {
		So(env.Beta, ShouldAlmostEqual, 25.0/6, 1e-12)
		So(env.Tau, ShouldAlmostEqual, 25.0/300, 1e-12)
		So(env.DrawProbability, ShouldEqual, rating.DefaultDrawProbability)
		So(env.Initial(), ShouldResemble, model.Rating{Mu: 25, Sigma: 25.0 / 3})
	})
}
