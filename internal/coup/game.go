package coup

import (
	"time"

	"github.com/Taiters/coup-clone/internal/errors"
)

// GameState 对局状态
type GameState string

const (
	StateLobby    GameState = "LOBBY"
	StateRunning  GameState = "RUNNING"
	StateFinished GameState = "FINISHED"
)

// Event 对局时间线上的一条日志
type Event struct {
	ID        uint      `json:"id"`
	GameID    string    `json:"game_id"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// Game 对局聚合
type Game struct {
	ID       string
	State    GameState
	Deck     Deck
	Players  Roster
	Turn     Turn
	WinnerID uint

	// 本次变更产生、尚未持久化的日志
	pending []Event
}

// Player 按ID查找玩家
func (g *Game) Player(id uint) *Player {
	return g.Players.Find(id)
}

func (g *Game) seated(id uint) (*Player, error) {
	p := g.Players.Find(id)
	if p == nil {
		return nil, errors.Newf(errors.ErrPlayerNotInGame, "玩家 %d 不在对局 %s 中", id, g.ID)
	}
	return p, nil
}

// Actor 当前行动者
func (g *Game) Actor() *Player {
	return g.Players.Find(g.Turn.PlayerID)
}

// CardCount 牌堆与所有手牌之和，恒为 DeckSize
func (g *Game) CardCount() int {
	return g.Deck.Len() + 2*len(g.Players)
}

// CheckIntegrity 校验牌守恒与金币非负
func (g *Game) CheckIntegrity() error {
	counts := make(map[Influence]int, len(Roles))
	for _, card := range g.Deck {
		counts[card]++
	}
	for _, p := range g.Players {
		if p.Coins < 0 {
			return errors.Newf(errors.ErrDataIntegrity, "玩家 %d 金币为负: %d", p.ID, p.Coins)
		}
		for _, card := range p.Influence {
			counts[card]++
		}
	}
	for _, role := range Roles {
		if counts[role] != CopiesPerRole {
			return errors.Newf(errors.ErrDataIntegrity, "角色 %s 数量为 %d", role, counts[role])
		}
	}
	if total := g.CardCount(); total != DeckSize {
		return errors.Newf(errors.ErrDataIntegrity, "牌总数为 %d", total)
	}
	return nil
}

// Events 本次变更产生的日志，不清空
func (g *Game) Events() []Event {
	return append([]Event(nil), g.pending...)
}

// DrainEvents 取出并清空本次变更产生的日志
func (g *Game) DrainEvents() []Event {
	events := g.pending
	g.pending = nil
	return events
}

// Clone 深拷贝，存储层据此隔离读写
func (g *Game) Clone() *Game {
	cp := &Game{
		ID:       g.ID,
		State:    g.State,
		Deck:     g.Deck.Clone(),
		Players:  make(Roster, len(g.Players)),
		Turn:     g.Turn.clone(),
		WinnerID: g.WinnerID,
		pending:  append([]Event(nil), g.pending...),
	}
	for i, p := range g.Players {
		cp.Players[i] = p.clone()
	}
	return cp
}
