package coup

import "time"

// PlayerView 对某位观看者可见的玩家信息
type PlayerView struct {
	ID            uint         `json:"id"`
	Name          string       `json:"name"`
	Coins         int          `json:"coins"`
	Influence     [2]Influence `json:"influence"`
	Revealed      [2]bool      `json:"revealed"`
	Host          bool         `json:"host"`
	AcceptsAction bool         `json:"accepts_action"`
	Eliminated    bool         `json:"eliminated"`
	Left          bool         `json:"left"`
}

// TurnView 回合信息
type TurnView struct {
	PlayerID          uint       `json:"player_id"`
	Action            ActionKind `json:"action"`
	TargetID          uint       `json:"target_id,omitempty"`
	ChallengerID      uint       `json:"challenger_id,omitempty"`
	BlockerID         uint       `json:"blocker_id,omitempty"`
	BlockChallengerID uint       `json:"block_challenger_id,omitempty"`
	Phase             TurnPhase  `json:"phase"`
	Modified          time.Time  `json:"modified"`
	Deadline          *time.Time `json:"deadline,omitempty"`
}

// GameView 个性化的对局视图，他人未亮出的牌显示为 UNKNOWN
type GameView struct {
	ID       string       `json:"id"`
	State    GameState    `json:"state"`
	DeckSize int          `json:"deck_size"`
	Turn     TurnView     `json:"turn"`
	WinnerID uint         `json:"winner_id,omitempty"`
	Players  []PlayerView `json:"players"`
	ViewerID uint         `json:"viewer_id,omitempty"`
	// ExchangeOptions 仅交换阶段的行动者可见
	ExchangeOptions []Influence `json:"exchange_options,omitempty"`
}

// View 生成 viewerID 视角下的对局，viewerID 为0表示旁观者
func (g *Game) View(viewerID uint) GameView {
	v := GameView{
		ID:       g.ID,
		State:    g.State,
		DeckSize: g.Deck.Len(),
		WinnerID: g.WinnerID,
		ViewerID: viewerID,
		Players:  make([]PlayerView, 0, len(g.Players)),
		Turn: TurnView{
			PlayerID:          g.Turn.PlayerID,
			Action:            g.Turn.Action,
			TargetID:          g.Turn.TargetID,
			ChallengerID:      g.Turn.ChallengerID,
			BlockerID:         g.Turn.BlockerID,
			BlockChallengerID: g.Turn.BlockChallengerID,
			Phase:             g.Turn.Phase,
			Modified:          g.Turn.Modified,
			Deadline:          g.Turn.clone().Deadline,
		},
	}
	for _, p := range g.Players {
		pv := PlayerView{
			ID:            p.ID,
			Name:          p.Name,
			Coins:         p.Coins,
			Revealed:      p.Revealed,
			Host:          p.Host,
			AcceptsAction: p.AcceptsAction,
			Eliminated:    p.Eliminated(),
			Left:          p.Left,
		}
		for slot := range p.Influence {
			if p.Revealed[slot] || (viewerID != 0 && p.ID == viewerID) {
				pv.Influence[slot] = p.Influence[slot]
			}
		}
		v.Players = append(v.Players, pv)
	}
	if viewerID != 0 && g.Turn.Phase == PhaseExchanging && g.Turn.PlayerID == viewerID {
		if options, err := g.ExchangeOptions(); err == nil {
			v.ExchangeOptions = options
		}
	}
	return v
}

// Hand 玩家自己的完整手牌
func (g *Game) Hand(playerID uint) ([2]Influence, bool) {
	p := g.Players.Find(playerID)
	if p == nil {
		return [2]Influence{}, false
	}
	return p.Influence, true
}
