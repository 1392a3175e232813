package coup

import (
	"strings"
	"time"

	"github.com/Taiters/coup-clone/internal/errors"
	"github.com/stretchr/testify/suite"
)

// noShuffle 保持牌序不变，放回的牌会被下一次摸到
type noShuffle struct{}

func (noShuffle) Shuffle(int, func(i, j int)) {}

// engineSuite 规则引擎测试的公共夹具
type engineSuite struct {
	suite.Suite
	now    time.Time
	engine *Engine
}

func (s *engineSuite) SetupTest() {
	s.now = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	s.engine = NewEngine(DefaultRules(), WithShuffler(noShuffle{}), WithClock(func() time.Time {
		return s.now
	}))
}

// lobby 创建大厅，玩家ID依次为 1..n
func (s *engineSuite) lobby(names ...string) *Game {
	g, host, err := s.engine.NewGame("abcdef", names[0])
	s.Require().NoError(err)
	host.ID = 1
	for i, name := range names[1:] {
		p, err := s.engine.Join(g, name)
		s.Require().NoError(err)
		p.ID = uint(i + 2)
	}
	g.DrainEvents()
	return g
}

// running 创建并开始对局
func (s *engineSuite) running(names ...string) *Game {
	g := s.lobby(names...)
	s.Require().NoError(s.engine.Start(g, 1))
	g.DrainEvents()
	return g
}

// pull 从牌堆取出一张指定角色；牌堆里没有时从其他玩家手里换出来，保持牌守恒
func (s *engineSuite) pull(g *Game, want Influence, keep *Player) {
	for i, card := range g.Deck {
		if card == want {
			g.Deck = append(g.Deck[:i], g.Deck[i+1:]...)
			return
		}
	}
	for _, other := range g.Players {
		if other == keep {
			continue
		}
		for slot := range other.Influence {
			if other.Influence[slot] == want && !other.Revealed[slot] {
				other.Influence[slot] = g.Deck[0]
				g.Deck = g.Deck[1:]
				return
			}
		}
	}
	s.FailNow("无法取得 " + want.String())
}

// deal 把玩家手牌换成指定角色
func (s *engineSuite) deal(g *Game, p *Player, cards ...Influence) {
	for slot, want := range cards {
		g.Deck = append(g.Deck, p.Influence[slot])
		s.pull(g, want, p)
		p.Influence[slot] = want
	}
	s.Require().NoError(g.CheckIntegrity())
}

// stack 把指定的牌放到牌顶，最后一个参数在最顶上
func (s *engineSuite) stack(g *Game, top ...Influence) {
	for _, want := range top {
		s.pull(g, want, nil)
	}
	g.Deck = append(g.Deck, top...)
	s.Require().NoError(g.CheckIntegrity())
}

func (s *engineSuite) requireCode(err error, code errors.ErrorCode) {
	s.Require().Error(err)
	s.Require().True(errors.Is(err, code), "期望错误码 %d，实际: %v", code, err)
}

func (s *engineSuite) messages(g *Game) string {
	lines := make([]string, 0)
	for _, e := range g.DrainEvents() {
		lines = append(lines, e.Message)
	}
	return strings.Join(lines, "\n")
}

func (s *engineSuite) requireStart(g *Game, actor uint) {
	s.Require().Equal(PhaseStart, g.Turn.Phase)
	s.Require().Equal(actor, g.Turn.PlayerID)
	s.Require().Equal(ActionNone, g.Turn.Action)
	s.Require().Nil(g.Turn.Deadline)
}
