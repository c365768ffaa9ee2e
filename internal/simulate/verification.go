package simulate

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/okian/inhouse/internal/adapters/repository"
	"github.com/okian/inhouse/internal/domain/model"
	"github.com/okian/inhouse/pkg/logger"
)

// verify fetches every role's leaderboard and measures how well rated
// skill tracks the hidden skill of the population.
func (r *runner) verify(ctx context.Context) error {
	var skills, mus []float64
	for _, role := range model.Roles() {
		board, err := r.client.Leaderboard(ctx, role, r.cfg.TopN)
		if err != nil {
			return fmt.Errorf("leaderboard %s: %w", role, err)
		}
		if err := checkOrdering(board); err != nil {
			return fmt.Errorf("leaderboard %s: %w", role, err)
		}
		for _, e := range board {
			p, ok := r.byID[e.ParticipantID]
			if !ok {
				continue
			}
			skills = append(skills, p.Skill)
			mus = append(mus, e.Mu)
		}
		r.displayTop(ctx, role, board)
	}

	if r.stats.GamesScored > 0 && len(mus) == 0 {
		return fmt.Errorf("%d games scored but every leaderboard is empty", r.stats.GamesScored)
	}
	if len(mus) > 1 {
		r.stats.SkillAgreement = stat.Correlation(skills, mus, nil)
		if math.IsNaN(r.stats.SkillAgreement) {
			r.stats.SkillAgreement = 0
		}
	}
	r.log.Info(ctx, "leaderboards verified",
		logger.Int("entries", len(mus)),
		logger.Float64("skillAgreement", r.stats.SkillAgreement),
	)
	return nil
}

// checkOrdering confirms ranks never decrease and scores never increase.
func checkOrdering(board []repository.Entry) error {
	for i, e := range board {
		if i == 0 {
			continue
		}
		if e.Rank < board[i-1].Rank {
			return fmt.Errorf("entry %d has rank %d after rank %d", i, e.Rank, board[i-1].Rank)
		}
		if e.Score > board[i-1].Score {
			return fmt.Errorf("rank %d score %.3f above rank %d score %.3f", e.Rank, e.Score, board[i-1].Rank, board[i-1].Score)
		}
	}
	return nil
}

func (r *runner) displayTop(ctx context.Context, role model.Role, board []repository.Entry) {
	if !r.cfg.Verbose {
		return
	}
	for _, e := range board {
		r.log.Info(ctx, "leaderboard entry",
			logger.String("role", role.String()),
			logger.Int("rank", e.Rank),
			logger.String("participant", e.ParticipantID),
			logger.Float64("score", e.Score),
			logger.Float64("mu", e.Mu),
			logger.Float64("skill", r.byID[e.ParticipantID].Skill),
		)
	}
}
