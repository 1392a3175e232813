package coup

import (
	"time"
)

// Rules 可配置的对局规则
type Rules struct {
	MinPlayers    int
	MaxPlayers    int
	StartingCoins int
	// ResponseWindow 等待其他玩家响应的时限，0 表示不限时
	ResponseWindow time.Duration
}

// DefaultRules 默认规则
func DefaultRules() Rules {
	return Rules{
		MinPlayers:     2,
		MaxPlayers:     6,
		StartingCoins:  2,
		ResponseWindow: 10 * time.Second,
	}
}

// Engine 规则引擎，只修改传入的对局，不做任何IO
type Engine struct {
	rules    Rules
	shuffler Shuffler
	now      func() time.Time
}

// Option 引擎选项
type Option func(*Engine)

// WithShuffler 指定洗牌器，测试中用于固定牌序
func WithShuffler(s Shuffler) Option {
	return func(e *Engine) {
		e.shuffler = s
	}
}

// WithClock 指定时钟
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// NewEngine 创建规则引擎
func NewEngine(rules Rules, opts ...Option) *Engine {
	defaults := DefaultRules()
	if rules.MinPlayers <= 0 {
		rules.MinPlayers = defaults.MinPlayers
	}
	if rules.MaxPlayers <= 0 {
		rules.MaxPlayers = defaults.MaxPlayers
	}
	// 牌堆至少要为交换留出两张
	if maxSeats := (DeckSize - 2) / 2; rules.MaxPlayers > maxSeats {
		rules.MaxPlayers = maxSeats
	}
	if rules.StartingCoins < 0 {
		rules.StartingCoins = defaults.StartingCoins
	}

	e := &Engine{
		rules:    rules,
		shuffler: SystemShuffler,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Rules 当前规则
func (e *Engine) Rules() Rules {
	return e.rules
}

// Now 引擎时钟
func (e *Engine) Now() time.Time {
	return e.now()
}

func (e *Engine) log(g *Game, message string) {
	g.pending = append(g.pending, Event{
		GameID:    g.ID,
		Message:   message,
		CreatedAt: e.now(),
	})
}

// enterPhase 切换阶段，awaitResponse 为真时设置响应截止时间
func (e *Engine) enterPhase(g *Game, phase TurnPhase, awaitResponse bool) {
	now := e.now()
	g.Turn.Phase = phase
	g.Turn.Modified = now
	g.Turn.Deadline = nil
	if awaitResponse && e.rules.ResponseWindow > 0 {
		deadline := now.Add(e.rules.ResponseWindow)
		g.Turn.Deadline = &deadline
	}
}

// advance 回合交给下一位未出局玩家
func (e *Engine) advance(g *Game) {
	g.Players.clearAccepts()
	next := g.Players.Next(g.Turn.PlayerID)
	if next == nil {
		g.Turn.reset(0, e.now())
		return
	}
	g.Turn.reset(next.ID, e.now())
}

// checkWinner 只剩一名未出局玩家时结束对局
func (e *Engine) checkWinner(g *Game) {
	if g.State != StateRunning {
		return
	}
	active := g.Players.Active()
	if len(active) != 1 {
		return
	}
	winner := active[0]
	g.State = StateFinished
	g.WinnerID = winner.ID
	g.Turn.Phase = PhaseFinished
	g.Turn.Modified = e.now()
	g.Turn.Deadline = nil
	e.log(g, winner.Name+" wins the game!")
}
