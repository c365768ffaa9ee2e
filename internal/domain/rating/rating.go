// Package rating implements the two-team TrueSkill win probability and
// update used for matchmaking balance and post-game scoring.
package rating

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/okian/inhouse/internal/domain/model"
)

// Default environment parameters.
const (
	DefaultMu    = 25.0
	DefaultSigma = DefaultMu / 3
	// DefaultDrawProbability is the usual TrueSkill environment default.
	DefaultDrawProbability = 0.10
)

// ErrInvalidTeams is returned when Rate gets empty teams.
var ErrInvalidTeams = errors.New("rating: both teams need at least one player")

// Env holds the rating environment parameters.
type Env struct {
	Mu              float64
	Sigma           float64
	Beta            float64
	Tau             float64
	DrawProbability float64
}

// NewEnv derives beta = sigma/2 and tau = sigma/100 from the initial rating.
func NewEnv(mu, sigma, drawProbability float64) Env {
	return Env{
		Mu:              mu,
		Sigma:           sigma,
		Beta:            sigma / 2,
		Tau:             sigma / 100,
		DrawProbability: drawProbability,
	}
}

// DefaultEnv is NewEnv(25, 25/3, 0.10).
func DefaultEnv() Env { return NewEnv(DefaultMu, DefaultSigma, DefaultDrawProbability) }

// Initial returns the rating given to a participant new to a role.
func (e Env) Initial() model.Rating { return model.Rating{Mu: e.Mu, Sigma: e.Sigma} }

// WinProbability returns P(blue beats red):
// Phi((sum mu_blue - sum mu_red) / sqrt(n*beta^2 + sum sigma^2)).
func (e Env) WinProbability(blue, red []model.Rating) float64 {
	var deltaMu, sumSigma2 float64
	for _, r := range blue {
		deltaMu += r.Mu
		sumSigma2 += r.Sigma * r.Sigma
	}
	for _, r := range red {
		deltaMu -= r.Mu
		sumSigma2 += r.Sigma * r.Sigma
	}
	n := float64(len(blue) + len(red))
	denom := math.Sqrt(n*e.Beta*e.Beta + sumSigma2)
	if denom == 0 {
		return 0.5
	}
	return distuv.UnitNormal.CDF(deltaMu / denom)
}

// BalanceScore maps a win probability to -|0.5 - p|. Zero is a coin flip.
func BalanceScore(p float64) float64 { return -math.Abs(0.5 - p) }

// Rate applies a win of winners over losers and returns the updated ratings
// in input order. Inputs are not modified.
func (e Env) Rate(winners, losers []model.Rating) ([]model.Rating, []model.Rating, error) {
	if len(winners) == 0 || len(losers) == 0 {
		return nil, nil, ErrInvalidTeams
	}
	tau2 := e.Tau * e.Tau
	beta2 := e.Beta * e.Beta
	n := float64(len(winners) + len(losers))

	var muW, muL, sigma2 float64
	for _, r := range winners {
		muW += r.Mu
		sigma2 += r.Sigma*r.Sigma + tau2
	}
	for _, r := range losers {
		muL += r.Mu
		sigma2 += r.Sigma*r.Sigma + tau2
	}
	c2 := sigma2 + n*beta2
	c := math.Sqrt(c2)
	t := (muW - muL) / c
	eps := e.drawMargin(n) / c

	v := vWin(t, eps)
	w := wWin(t, eps)
	if math.IsNaN(v) || math.IsNaN(w) {
		return nil, nil, fmt.Errorf("rating: numerical failure at t=%v eps=%v", t, eps)
	}

	update := func(in []model.Rating, sign float64) []model.Rating {
		out := make([]model.Rating, len(in))
		for i, r := range in {
			s2 := r.Sigma*r.Sigma + tau2
			mu := r.Mu + sign*(s2/c)*v
			s2 *= math.Max(1-(s2/c2)*w, 1e-9)
			out[i] = model.Rating{Mu: mu, Sigma: math.Sqrt(s2)}
		}
		return out
	}
	return update(winners, 1), update(losers, -1), nil
}

// drawMargin converts the draw probability to a performance margin.
func (e Env) drawMargin(n float64) float64 {
	if e.DrawProbability <= 0 {
		return 0
	}
	return distuv.UnitNormal.Quantile((e.DrawProbability+1)/2) * math.Sqrt(n) * e.Beta
}

// vWin is the additive mean correction for a win with margin eps.
func vWin(t, eps float64) float64 {
	x := t - eps
	denom := distuv.UnitNormal.CDF(x)
	if denom < 1e-300 {
		return -x
	}
	return distuv.UnitNormal.Prob(x) / denom
}

// wWin is the multiplicative variance correction for a win with margin eps.
func wWin(t, eps float64) float64 {
	x := t - eps
	denom := distuv.UnitNormal.CDF(x)
	if denom < 1e-300 {
		if x < 0 {
			return 1
		}
		return 0
	}
	v := vWin(t, eps)
	return v * (v + x)
}
