package repository

import (
	"context"
	"math"
	"math/rand/v2"
	"sync"

	"github.com/okian/inhouse/internal/domain/model"
	"github.com/okian/inhouse/pkg/metrics"
)

// Treap-based per-role leaderboard.
//
// Ordering: conservative skill (mu - 3*sigma) DESC, then participant id ASC.
// "less" means ranks earlier, so in-order traversal yields best to worst.
// Subtree sizes give O(log n) expected rank lookups.

// scoreScale controls fixed-point scaling from float64.
const scoreScale = 1_000_000_000

type scoreFP int64

func toFixedPoint(x float64) scoreFP {
	switch {
	case math.IsNaN(x):
		return 0
	case x*scoreScale >= math.MaxInt64:
		return scoreFP(math.MaxInt64)
	case x*scoreScale <= math.MinInt64:
		return scoreFP(math.MinInt64)
	}
	return scoreFP(math.Round(x * scoreScale))
}

// Entry is one leaderboard row.
type Entry struct {
	Rank          int        `json:"rank"`
	ParticipantID string     `json:"participant_id"`
	Name          string     `json:"name,omitempty"`
	Role          model.Role `json:"role"`
	Score         float64    `json:"score"`
	Mu            float64    `json:"mu"`
	Sigma         float64    `json:"sigma"`
	Games         int        `json:"games"`
}

type node struct {
	id    string
	score scoreFP
	prio  uint64
	left  *node
	right *node
	size  int
}

func nsize(n *node) int {
	if n == nil {
		return 0
	}
	return n.size
}

func fix(n *node) {
	if n != nil {
		n.size = 1 + nsize(n.left) + nsize(n.right)
	}
}

func less(aScore scoreFP, aID string, bScore scoreFP, bID string) bool {
	if aScore != bScore {
		return aScore > bScore
	}
	return aID < bID
}

func rotateRight(y *node) *node {
	x := y.left
	y.left = x.right
	x.right = y
	fix(y)
	fix(x)
	return x
}

func rotateLeft(x *node) *node {
	y := x.right
	x.right = y.left
	y.left = x
	fix(x)
	fix(y)
	return y
}

func insert(n *node, id string, score scoreFP, prio uint64) *node {
	if n == nil {
		return &node{id: id, score: score, prio: prio, size: 1}
	}
	if less(score, id, n.score, n.id) {
		n.left = insert(n.left, id, score, prio)
		if n.left.prio > n.prio {
			n = rotateRight(n)
		}
	} else {
		n.right = insert(n.right, id, score, prio)
		if n.right.prio > n.prio {
			n = rotateLeft(n)
		}
	}
	fix(n)
	return n
}

func deleteNode(n *node, id string, score scoreFP) *node {
	if n == nil {
		return nil
	}
	switch {
	case score == n.score && id == n.id:
		if n.left == nil {
			return n.right
		}
		if n.right == nil {
			return n.left
		}
		if n.left.prio > n.right.prio {
			n = rotateRight(n)
			n.right = deleteNode(n.right, id, score)
		} else {
			n = rotateLeft(n)
			n.left = deleteNode(n.left, id, score)
		}
	case less(score, id, n.score, n.id):
		n.left = deleteNode(n.left, id, score)
	default:
		n.right = deleteNode(n.right, id, score)
	}
	fix(n)
	return n
}

// position returns the 0-based in-order index of (id, score).
func position(n *node, id string, score scoreFP) int {
	pos := 0
	for n != nil {
		switch {
		case score == n.score && id == n.id:
			return pos + nsize(n.left)
		case less(score, id, n.score, n.id):
			n = n.left
		default:
			pos += nsize(n.left) + 1
			n = n.right
		}
	}
	return -1
}

// collectHigherScores gathers the distinct scores that rank strictly above score.
// Used for dense ranks where equal scores share a rank.
func collectHigherScores(n *node, score scoreFP, seen map[scoreFP]struct{}) {
	if n == nil {
		return
	}
	if n.score > score {
		seen[n.score] = struct{}{}
		collectHigherScores(n.left, score, seen)
		collectHigherScores(n.right, score, seen)
		return
	}
	collectHigherScores(n.left, score, seen)
}

func collectTopN(n *node, limit int, out *[]string) {
	if n == nil || len(*out) >= limit {
		return
	}
	collectTopN(n.left, limit, out)
	if len(*out) < limit {
		*out = append(*out, n.id)
	}
	if len(*out) < limit {
		collectTopN(n.right, limit, out)
	}
}

type board struct {
	root *node
	byID map[string]model.RoleRating
	fp   map[string]scoreFP
}

// Leaderboard ranks participants per role by conservative skill.
type Leaderboard struct {
	mu     sync.RWMutex
	boards [model.NumRoles]*board
	names  map[string]string
	rng    *rand.Rand
}

// NewLeaderboard creates an empty leaderboard.
func NewLeaderboard() *Leaderboard {
	l := &Leaderboard{
		names: make(map[string]string),
		rng:   rand.New(rand.NewPCG(0x1a2b3c4d, 0x5e6f7a8b)),
	}
	for i := range l.boards {
		l.boards[i] = &board{byID: make(map[string]model.RoleRating), fp: make(map[string]scoreFP)}
	}
	return l
}

// Load replaces the leaderboard content with rows.
func (l *Leaderboard) Load(ctx context.Context, rows []model.RoleRating) {
	l.mu.Lock()
	for i := range l.boards {
		l.boards[i] = &board{byID: make(map[string]model.RoleRating), fp: make(map[string]scoreFP)}
	}
	l.mu.Unlock()
	l.Upsert(ctx, rows...)
}

// Upsert inserts or replaces rows. Unlike a best-score board, a lower rating
// replaces a higher one.
func (l *Leaderboard) Upsert(_ context.Context, rows ...model.RoleRating) {
	touched := make(map[model.Role]int)

	l.mu.Lock()
	for _, row := range rows {
		if !row.Role.Valid() {
			continue
		}
		b := l.boards[row.Role]
		if old, ok := b.fp[row.ParticipantID]; ok {
			b.root = deleteNode(b.root, row.ParticipantID, old)
		}
		ns := toFixedPoint(row.Rating.Conservative())
		b.root = insert(b.root, row.ParticipantID, ns, l.rng.Uint64())
		b.byID[row.ParticipantID] = row
		b.fp[row.ParticipantID] = ns
		touched[row.Role] = len(b.byID)
	}
	l.mu.Unlock()

	for r, n := range touched {
		metrics.UpdateLeaderboardSize(r.String(), n)
	}
}

// SetName records a display name shown in entries.
func (l *Leaderboard) SetName(id, name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.names[id] = name
}

// TopN returns the best n entries for role with dense ranks.
func (l *Leaderboard) TopN(_ context.Context, role model.Role, n int) ([]Entry, error) {
	if n < 1 {
		return nil, ErrInvalidLimit
	}
	if !role.Valid() {
		return nil, model.ErrUnknownRole
	}
	l.mu.RLock()
	defer l.mu.RUnlock()

	b := l.boards[role]
	ids := make([]string, 0, n)
	collectTopN(b.root, n, &ids)
	out := make([]Entry, 0, len(ids))
	for _, id := range ids {
		out = append(out, l.entryLocked(b, id))
	}
	assignRanksWithTies(out)
	return out, nil
}

// Rank returns the entry of id in role, or ErrNotFound.
func (l *Leaderboard) Rank(_ context.Context, role model.Role, id string) (Entry, error) {
	if !role.Valid() {
		return Entry{}, model.ErrUnknownRole
	}
	l.mu.RLock()
	defer l.mu.RUnlock()

	b := l.boards[role]
	score, ok := b.fp[id]
	if !ok || position(b.root, id, score) < 0 {
		return Entry{}, ErrNotFound
	}
	seen := make(map[scoreFP]struct{})
	collectHigherScores(b.root, score, seen)
	e := l.entryLocked(b, id)
	e.Rank = len(seen) + 1
	return e, nil
}

// Count returns the number of rated participants in role.
func (l *Leaderboard) Count(role model.Role) int {
	if !role.Valid() {
		return 0
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.boards[role].byID)
}

func (l *Leaderboard) entryLocked(b *board, id string) Entry {
	row := b.byID[id]
	return Entry{
		ParticipantID: id,
		Name:          l.names[id],
		Role:          row.Role,
		Score:         row.Rating.Conservative(),
		Mu:            row.Rating.Mu,
		Sigma:         row.Rating.Sigma,
		Games:         row.Games,
	}
}

// assignRanksWithTies gives equal scores the same rank; the next distinct
// score gets the next consecutive rank.
func assignRanksWithTies(entries []Entry) {
	rank := 0
	for i := range entries {
		if i == 0 || toFixedPoint(entries[i].Score) != toFixedPoint(entries[i-1].Score) {
			rank++
		}
		entries[i].Rank = rank
	}
}
