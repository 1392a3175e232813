package coup

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/Taiters/coup-clone/internal/errors"
)

// MaxNameLength 玩家名称的最大字符数
const MaxNameLength = 32

// NormalizeName 去除首尾空白并校验长度
func NormalizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New(errors.ErrInvalidParam, "名称不能为空")
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return "", errors.Newf(errors.ErrInvalidParam, "名称不能超过 %d 个字符", MaxNameLength)
	}
	return name, nil
}

// NewGame 创建大厅中的对局并让房主入座，玩家ID由存储层分配
func (e *Engine) NewGame(id, hostName string) (*Game, *Player, error) {
	g := &Game{
		ID:    id,
		State: StateLobby,
		Deck:  NewDeck(e.shuffler),
	}
	g.Turn.reset(0, e.now())
	host, err := e.seat(g, hostName, true)
	if err != nil {
		return nil, nil, err
	}
	return g, host, nil
}

// Join 在大厅中入座
func (e *Engine) Join(g *Game, name string) (*Player, error) {
	if g.State != StateLobby {
		return nil, errors.Newf(errors.ErrGameAlreadyStarted, "对局 %s 状态为 %s", g.ID, g.State)
	}
	if len(g.Players) >= e.rules.MaxPlayers {
		return nil, errors.Newf(errors.ErrGameFull, "对局 %s 已满 %d 人", g.ID, e.rules.MaxPlayers)
	}
	return e.seat(g, name, false)
}

func (e *Engine) seat(g *Game, name string, host bool) (*Player, error) {
	if strings.TrimSpace(name) == "" {
		name = fmt.Sprintf("Player %d", len(g.Players)+1)
	}
	name, err := NormalizeName(name)
	if err != nil {
		return nil, err
	}
	cards, err := g.Deck.Draw(2)
	if err != nil {
		return nil, err
	}
	p := &Player{
		Name:      name,
		Coins:     e.rules.StartingCoins,
		Influence: [2]Influence{cards[0], cards[1]},
		Host:      host,
	}
	g.Players = append(g.Players, p)
	e.log(g, p.Name+" joined the game")
	return p, nil
}

// Rename 修改玩家名称
func (e *Engine) Rename(g *Game, playerID uint, name string) error {
	p, err := g.seated(playerID)
	if err != nil {
		return err
	}
	name, err = NormalizeName(name)
	if err != nil {
		return err
	}
	if name == p.Name {
		return nil
	}
	old := p.Name
	p.Name = name
	e.log(g, old+" is now known as "+name)
	return nil
}

// Start 房主开始对局，房主先行动
func (e *Engine) Start(g *Game, playerID uint) error {
	p, err := g.seated(playerID)
	if err != nil {
		return err
	}
	if !p.Host {
		return errors.Newf(errors.ErrNotHost, "玩家 %d 不是房主", p.ID)
	}
	if g.State != StateLobby {
		return errors.Newf(errors.ErrGameAlreadyStarted, "对局 %s 状态为 %s", g.ID, g.State)
	}
	if len(g.Players) < e.rules.MinPlayers {
		return errors.Newf(errors.ErrNotEnoughPlayers, "至少需要 %d 人，当前 %d 人", e.rules.MinPlayers, len(g.Players))
	}
	g.State = StateRunning
	g.WinnerID = 0
	g.Players.clearAccepts()
	g.Turn.reset(p.ID, e.now())
	e.log(g, "Welcome to Coup!")
	return nil
}

// Restart 对局结束后回到大厅，离开的玩家被移除，所有牌重新洗发
func (e *Engine) Restart(g *Game, playerID uint) ([]*Player, error) {
	p, err := g.seated(playerID)
	if err != nil {
		return nil, err
	}
	if !p.Host {
		return nil, errors.Newf(errors.ErrNotHost, "玩家 %d 不是房主", p.ID)
	}
	if g.State != StateFinished {
		return nil, errors.Newf(errors.ErrInvalidTurnState, "对局 %s 状态为 %s", g.ID, g.State)
	}

	var removed []*Player
	kept := make(Roster, 0, len(g.Players))
	for _, player := range g.Players {
		if player.Left {
			removed = append(removed, player)
			continue
		}
		kept = append(kept, player)
	}
	g.Players = kept

	g.Deck = NewDeck(e.shuffler)
	for _, player := range g.Players {
		cards, err := g.Deck.Draw(2)
		if err != nil {
			return nil, err
		}
		player.Influence = [2]Influence{cards[0], cards[1]}
		player.Revealed = [2]bool{}
		player.Coins = e.rules.StartingCoins
		player.AcceptsAction = false
	}
	g.State = StateLobby
	g.WinnerID = 0
	g.Turn.reset(0, e.now())
	e.log(g, p.Name+" has restarted the game")
	return removed, nil
}

// Leave 玩家离开。大厅与已结束的对局直接移除座位并返回 true；
// 进行中的对局保留座位、亮出全部手牌
func (e *Engine) Leave(g *Game, playerID uint) (bool, error) {
	p, err := g.seated(playerID)
	if err != nil {
		return false, err
	}
	e.log(g, p.Name+" left the game")

	if g.State != StateRunning {
		if p.Host {
			g.Players.promoteHost(p.ID)
		}
		g.Players.remove(p.ID)
		g.Deck.ReturnAndShuffle(e.shuffler, p.Influence[0], p.Influence[1])
		return true, nil
	}

	wasActive := p.Active()
	p.Revealed = [2]bool{true, true}
	p.Left = true
	p.AcceptsAction = false
	if p.Host {
		p.Host = false
		g.Players.promoteHost(p.ID)
	}
	if wasActive {
		if err := e.afterDeparture(g, p); err != nil {
			return false, err
		}
	}
	e.checkWinner(g)
	return false, nil
}

// afterDeparture 离开的玩家若是当前回合等待的人，回合直接结束
func (e *Engine) afterDeparture(g *Game, p *Player) error {
	t := g.Turn
	if t.PlayerID == p.ID {
		e.advance(g)
		return nil
	}
	switch t.Phase {
	case PhaseAttempted:
		return e.resolveIfAccepted(g)
	case PhaseTargetRevealing:
		if t.TargetID == p.ID {
			e.advance(g)
		}
	case PhaseBlocked, PhaseChallenged, PhaseBlockChallenged,
		PhaseChallengerRevealing, PhaseBlockChallengerRevealing:
		if p.ID == t.ChallengerID || p.ID == t.BlockerID || p.ID == t.BlockChallengerID {
			e.advance(g)
		}
	}
	return nil
}
