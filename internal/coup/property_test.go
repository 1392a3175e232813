package coup

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 随机驱动对局，检查每一步之后的不变量
func TestRandomPlayKeepsInvariants(t *testing.T) {
	for seed := uint64(1); seed <= 20; seed++ {
		rng := rand.New(rand.NewPCG(seed, seed*31))
		now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		engine := NewEngine(DefaultRules(), WithShuffler(rng), WithClock(func() time.Time { return now }))

		g, host, err := engine.NewGame("random", "p1")
		require.NoError(t, err)
		host.ID = 1
		players := 2 + rng.IntN(5)
		for i := 2; i <= players; i++ {
			p, err := engine.Join(g, "")
			require.NoError(t, err)
			p.ID = uint(i)
		}
		require.NoError(t, engine.Start(g, 1))

		for step := 0; step < 3000 && g.State == StateRunning; step++ {
			before := g.Clone()
			err := randomIntent(engine, g, rng, players)
			if err != nil {
				// 被拒绝的意图不得修改任何状态
				require.Equal(t, before, g, "seed %d step %d: %v", seed, step, err)
			}

			require.NoError(t, g.CheckIntegrity(), "seed %d step %d", seed, step)
			active := g.Players.Active()
			assert.Equal(t, len(active) == 1, g.State == StateFinished, "seed %d step %d", seed, step)
			if g.State == StateFinished {
				assert.Equal(t, active[0].ID, g.WinnerID)
				assert.Equal(t, PhaseFinished, g.Turn.Phase)
			} else {
				actor := g.Actor()
				require.NotNil(t, actor)
				assert.True(t, actor.Active(), "seed %d step %d: 行动者已出局", seed, step)
			}
		}
	}
}

func randomIntent(e *Engine, g *Game, rng *rand.Rand, players int) error {
	pid := uint(1 + rng.IntN(players))
	p := g.Player(pid)
	switch rng.IntN(9) {
	case 0, 1:
		actions := Actions()
		return e.TakeAction(g, pid, actions[rng.IntN(len(actions))], uint(rng.IntN(players+1)))
	case 2, 3:
		return e.AcceptAction(g, pid)
	case 4:
		return e.Challenge(g, pid)
	case 5:
		return e.Block(g, pid)
	case 6:
		if rng.IntN(2) == 0 {
			return e.AcceptBlock(g, pid)
		}
		return e.ChallengeBlock(g, pid)
	case 7:
		hand := p.Hand()
		if len(hand) == 0 {
			return e.Reveal(g, pid, Roles[rng.IntN(len(Roles))])
		}
		return e.Reveal(g, pid, hand[rng.IntN(len(hand))])
	default:
		options, err := g.ExchangeOptions()
		if err != nil {
			return e.Exchange(g, pid, p.Hand())
		}
		rng.Shuffle(len(options), func(i, j int) { options[i], options[j] = options[j], options[i] })
		return e.Exchange(g, pid, options[:len(p.Hand())])
	}
}
