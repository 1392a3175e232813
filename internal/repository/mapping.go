package repository

import (
	"github.com/Taiters/coup-clone/internal/coup"
	"github.com/Taiters/coup-clone/internal/errors"
	"github.com/Taiters/coup-clone/internal/models"
)

func optionalID(id uint) *uint {
	if id == 0 {
		return nil
	}
	return &id
}

func idOrZero(id *uint) uint {
	if id == nil {
		return 0
	}
	return *id
}

// toGameRow 聚合转为对局行，不含玩家
func toGameRow(g *coup.Game) *models.Game {
	row := &models.Game{
		ID:                  g.ID,
		State:               string(g.State),
		Deck:                g.Deck.String(),
		PlayerTurnID:        optionalID(g.Turn.PlayerID),
		TurnState:           string(g.Turn.Phase),
		TargetID:            optionalID(g.Turn.TargetID),
		ChallengedByID:      optionalID(g.Turn.ChallengerID),
		BlockedByID:         optionalID(g.Turn.BlockerID),
		BlockChallengedByID: optionalID(g.Turn.BlockChallengerID),
		TurnStateModified:   g.Turn.Modified,
		TurnStateDeadline:   g.Turn.Deadline,
		WinnerID:            optionalID(g.WinnerID),
	}
	if g.Turn.Action != coup.ActionNone {
		action := string(g.Turn.Action)
		row.TurnAction = &action
	}
	return row
}

func toPlayerRow(gameID string, seat int, p *coup.Player) *models.Player {
	return &models.Player{
		ID:                 p.ID,
		GameID:             gameID,
		Seat:               seat,
		Name:               p.Name,
		Coins:              p.Coins,
		InfluenceA:         int(p.Influence[0]),
		InfluenceB:         int(p.Influence[1]),
		RevealedInfluenceA: p.Revealed[0],
		RevealedInfluenceB: p.Revealed[1],
		Host:               p.Host,
		AcceptsAction:      p.AcceptsAction,
		Left:               p.Left,
	}
}

// toGame 行数据还原为聚合，非法的牌或阶段视为数据损坏
func toGame(row *models.Game) (*coup.Game, error) {
	deck, err := coup.ParseDeck(row.Deck)
	if err != nil {
		return nil, err
	}
	g := &coup.Game{
		ID:       row.ID,
		State:    coup.GameState(row.State),
		Deck:     deck,
		Players:  make(coup.Roster, 0, len(row.Players)),
		WinnerID: idOrZero(row.WinnerID),
		Turn: coup.Turn{
			PlayerID:          idOrZero(row.PlayerTurnID),
			TargetID:          idOrZero(row.TargetID),
			ChallengerID:      idOrZero(row.ChallengedByID),
			BlockerID:         idOrZero(row.BlockedByID),
			BlockChallengerID: idOrZero(row.BlockChallengedByID),
			Phase:             coup.TurnPhase(row.TurnState),
			Modified:          row.TurnStateModified,
			Deadline:          row.TurnStateDeadline,
		},
	}
	if row.TurnAction != nil {
		g.Turn.Action = coup.ActionKind(*row.TurnAction)
	}
	if !g.Turn.Phase.Valid() {
		return nil, errors.Newf(errors.ErrDataIntegrity, "对局 %s 回合阶段非法: %q", row.ID, row.TurnState)
	}
	for i := range row.Players {
		pr := &row.Players[i]
		p := &coup.Player{
			ID:            pr.ID,
			Name:          pr.Name,
			Coins:         pr.Coins,
			Influence:     [2]coup.Influence{coup.Influence(pr.InfluenceA), coup.Influence(pr.InfluenceB)},
			Revealed:      [2]bool{pr.RevealedInfluenceA, pr.RevealedInfluenceB},
			Host:          pr.Host,
			AcceptsAction: pr.AcceptsAction,
			Left:          pr.Left,
		}
		if !p.Influence[0].Valid() || !p.Influence[1].Valid() {
			return nil, errors.Newf(errors.ErrDataIntegrity, "玩家 %d 持有非法的牌", pr.ID)
		}
		g.Players = append(g.Players, p)
	}
	return g, nil
}

func toEvent(row *models.Event) coup.Event {
	return coup.Event{
		ID:        row.ID,
		GameID:    row.GameID,
		Message:   row.Message,
		CreatedAt: row.CreatedAt,
	}
}
