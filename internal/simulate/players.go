package simulate

import (
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/okian/inhouse/internal/domain/model"
)

// Skill distribution of the simulated population.
const (
	skillMean  = 0.0
	skillSigma = 1.0
	// skillScale converts a hidden skill gap into the probability of the
	// stronger side winning.
	skillScale = 0.75
)

// Player is a simulated participant with a hidden skill per game.
type Player struct {
	ID    string
	Name  string
	Roles []model.Role
	Skill float64
}

// generatePlayers builds n players. The first ten cover every role twice
// as a main role so that a full game can always form.
func generatePlayers(n int, rng *rand.Rand) []Player {
	roles := model.Roles()
	skill := distuv.Normal{Mu: skillMean, Sigma: skillSigma}
	players := make([]Player, n)
	for i := range players {
		var main, second model.Role
		if i < 2*model.NumRoles {
			main = roles[i%model.NumRoles]
			second = roles[(i+1)%model.NumRoles]
		} else {
			perm := rng.Perm(model.NumRoles)
			main, second = roles[perm[0]], roles[perm[1]]
		}
		players[i] = Player{
			ID:    fmt.Sprintf("sim-%04d", i),
			Name:  fmt.Sprintf("Sim Player %d", i),
			Roles: []model.Role{main, second},
			// Inverse CDF keeps the draw on the caller's seeded source.
			Skill: skill.Quantile(clampUnit(rng.Float64())),
		}
	}
	return players
}

func clampUnit(p float64) float64 {
	const eps = 1e-9
	switch {
	case p < eps:
		return eps
	case p > 1-eps:
		return 1 - eps
	}
	return p
}

// teamSkill sums the hidden skill of a lineup.
func teamSkill(l model.Lineup, byID map[string]Player) float64 {
	var sum float64
	for _, id := range l {
		sum += byID[id].Skill
	}
	return sum
}

// pickWinner draws the winning side from the hidden skill gap.
func pickWinner(c model.Composition, byID map[string]Player, rng *rand.Rand) model.Team {
	gap := teamSkill(c.Blue, byID) - teamSkill(c.Red, byID)
	if rng.Float64() < distuv.UnitNormal.CDF(gap*skillScale) {
		return model.TeamBlue
	}
	return model.TeamRed
}
