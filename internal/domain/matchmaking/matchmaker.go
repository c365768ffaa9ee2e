// Package matchmaking searches role queues for the most balanced 5v5 composition.
//
// The search is deliberately exhaustive: every ordered (blue, red) pair per role
// is combined across the five roles, candidates that reuse a participant are
// discarded and the rest are scored. Per-channel queues are small, and the raw
// product size is bounded by MaxCandidates.
package matchmaking

import (
	"context"
	"fmt"
	"math"
	"slices"

	"gonum.org/v1/gonum/stat/combin"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/okian/inhouse/internal/domain/model"
	"github.com/okian/inhouse/internal/domain/rating"
)

const ctxCheckEvery = 1 << 12

// Queues holds the ordered participant ids waiting for each role of one channel.
type Queues [model.NumRoles][]string

// RatingFunc returns the current rating of participant id in role.
type RatingFunc func(id string, role model.Role) model.Rating

// Result is the best composition found.
type Result struct {
	Composition    model.Composition
	Score          float64
	WinProbability float64
	// Candidates is the number of distinct compositions scored.
	Candidates int
}

// Matchmaker performs the bounded brute-force search.
type Matchmaker struct {
	env           rating.Env
	maxCandidates int
}

// New creates a Matchmaker.
func New(opts ...Option) *Matchmaker {
	m := &Matchmaker{
		env:           rating.DefaultEnv(),
		maxCandidates: 5_000_000,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// CandidateCount returns the raw product size for q before the distinctness
// filter, saturating at math.MaxInt.
func CandidateCount(q Queues) int {
	total := 1
	for _, ids := range q {
		n := len(ids)
		pairs := n * (n - 1)
		if pairs <= 0 {
			return 0
		}
		if total > math.MaxInt/pairs {
			return math.MaxInt
		}
		total *= pairs
	}
	return total
}

// Search returns the composition with the highest balance score. Ties keep the
// first candidate in enumeration order: roles top to support with support
// varying fastest, and within a role ordered (blue, red) index pairs sorted
// lexicographically by queue position.
func (m *Matchmaker) Search(ctx context.Context, q Queues, ratingOf RatingFunc) (Result, error) {
	for _, ids := range q {
		if len(ids) < 2 {
			return Result{}, ErrNoViableComposition
		}
	}
	if raw := CandidateCount(q); m.maxCandidates > 0 && raw > m.maxCandidates {
		return Result{}, fmt.Errorf("%w: %d candidates exceeds %d", ErrSearchSpaceTooLarge, raw, m.maxCandidates)
	}

	// Ratings are looked up once per queue entry.
	var mus, vars [model.NumRoles][]float64
	perms := make([][][]int, model.NumRoles)
	lens := make([]int, model.NumRoles)
	for r, ids := range q {
		mus[r] = make([]float64, len(ids))
		vars[r] = make([]float64, len(ids))
		for i, id := range ids {
			rt := ratingOf(id, model.Role(r))
			mus[r][i] = rt.Mu
			vars[r][i] = rt.Sigma * rt.Sigma
		}
		p := combin.Permutations(len(ids), 2)
		slices.SortFunc(p, func(a, b []int) int { return slices.Compare(a, b) })
		perms[r] = p
		lens[r] = len(p)
	}

	denomBase := float64(2*model.NumRoles) * m.env.Beta * m.env.Beta
	gen := combin.NewCartesianGenerator(lens)
	pick := make([]int, model.NumRoles)
	var ids [2 * model.NumRoles]string

	best := Result{Score: math.Inf(-1)}
	var bestPick []int
	iter := 0
	for gen.Next() {
		iter++
		if iter%ctxCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return Result{}, err
			}
		}
		gen.Product(pick)

		var deltaMu, sumVar float64
		for r, pi := range pick {
			pair := perms[r][pi]
			b, rd := pair[0], pair[1]
			ids[2*r] = q[r][b]
			ids[2*r+1] = q[r][rd]
			deltaMu += mus[r][b] - mus[r][rd]
			sumVar += vars[r][b] + vars[r][rd]
		}
		if !distinct(ids[:]) {
			continue
		}
		best.Candidates++

		p := 0.5
		if d := math.Sqrt(denomBase + sumVar); d > 0 {
			p = distuv.UnitNormal.CDF(deltaMu / d)
		}
		if score := rating.BalanceScore(p); score > best.Score {
			best.Score = score
			best.WinProbability = p
			bestPick = append(bestPick[:0], pick...)
		}
	}
	if bestPick == nil {
		return Result{Candidates: best.Candidates}, ErrNoViableComposition
	}
	for r, pi := range bestPick {
		pair := perms[r][pi]
		best.Composition.Blue[r] = q[r][pair[0]]
		best.Composition.Red[r] = q[r][pair[1]]
	}
	return best, nil
}

// distinct reports whether all ids differ. n is ten, so pairwise is fine.
func distinct(ids []string) bool {
	for i := 1; i < len(ids); i++ {
		for j := 0; j < i; j++ {
			if ids[i] == ids[j] {
				return false
			}
		}
	}
	return true
}
