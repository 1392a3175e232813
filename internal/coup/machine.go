package coup

import (
	"time"

	"github.com/Taiters/coup-clone/internal/errors"
)

func requireRunning(g *Game) error {
	if g.State != StateRunning {
		return errors.Newf(errors.ErrInvalidTurnState, "对局 %s 状态为 %s", g.ID, g.State)
	}
	return nil
}

func requirePhase(g *Game, phase TurnPhase) error {
	if g.Turn.Phase != phase {
		return errors.Newf(errors.ErrInvalidTurnState, "当前阶段为 %s，需要 %s", g.Turn.Phase, phase)
	}
	return nil
}

// responder 获取在当前阶段可以响应行动的玩家（非行动者且未出局）
func responder(g *Game, playerID uint, phase TurnPhase) (*Player, error) {
	if err := requireRunning(g); err != nil {
		return nil, err
	}
	p, err := g.seated(playerID)
	if err != nil {
		return nil, err
	}
	if err := requirePhase(g, phase); err != nil {
		return nil, err
	}
	if p.ID == g.Turn.PlayerID || p.Eliminated() {
		return nil, errors.Newf(errors.ErrNotPlayerTurn, "玩家 %d 无法响应该行动", p.ID)
	}
	return p, nil
}

// actorIn 获取当前阶段的行动者本人
func actorIn(g *Game, playerID uint, phase TurnPhase) (*Player, error) {
	if err := requireRunning(g); err != nil {
		return nil, err
	}
	p, err := g.seated(playerID)
	if err != nil {
		return nil, err
	}
	if err := requirePhase(g, phase); err != nil {
		return nil, err
	}
	if p.ID != g.Turn.PlayerID {
		return nil, errors.Newf(errors.ErrNotPlayerTurn, "当前行动者为 %d", g.Turn.PlayerID)
	}
	return p, nil
}

func currentSpec(g *Game) (ActionSpec, error) {
	spec, ok := Lookup(g.Turn.Action)
	if !ok {
		return ActionSpec{}, errors.Newf(errors.ErrDataIntegrity, "回合行动非法: %q", g.Turn.Action)
	}
	return spec, nil
}

// TakeAction 行动者在 START 阶段发起行动
func (e *Engine) TakeAction(g *Game, playerID uint, kind ActionKind, targetID uint) error {
	actor, err := actorIn(g, playerID, PhaseStart)
	if err != nil {
		return err
	}
	spec, ok := Lookup(kind)
	if !ok {
		return errors.Newf(errors.ErrUnsupportedAction, "未知行动: %q", kind)
	}

	var target *Player
	if spec.Targeted {
		target = g.Players.Find(targetID)
		switch {
		case targetID == 0:
			return errors.Newf(errors.ErrInvalidTarget, "%s 需要指定目标", kind)
		case target == nil:
			return errors.Newf(errors.ErrInvalidTarget, "目标 %d 不在对局中", targetID)
		case target.ID == actor.ID:
			return errors.New(errors.ErrInvalidTarget, "不能以自己为目标")
		case target.Eliminated():
			return errors.Newf(errors.ErrInvalidTarget, "目标 %d 已出局", targetID)
		}
	}
	if actor.Coins < spec.Cost {
		return errors.Newf(errors.ErrInsufficientCoins, "需要 %d 枚，当前 %d 枚", spec.Cost, actor.Coins)
	}

	// 校验完成，开始修改状态
	actor.Coins -= spec.Cost
	g.Turn.Action = kind
	if target != nil {
		g.Turn.TargetID = target.ID
	}

	if spec.Immediate() {
		return e.resolve(g, spec)
	}
	e.log(g, render(spec.AttemptMessage, actor, target))
	g.Players.clearAccepts()
	e.enterPhase(g, PhaseAttempted, true)
	return nil
}

// AcceptAction 响应者放行，全员放行后结算。重复放行无副作用
func (e *Engine) AcceptAction(g *Game, playerID uint) error {
	p, err := responder(g, playerID, PhaseAttempted)
	if err != nil {
		return err
	}
	if p.AcceptsAction {
		return nil
	}
	p.AcceptsAction = true
	return e.resolveIfAccepted(g)
}

func (e *Engine) resolveIfAccepted(g *Game) error {
	for _, p := range g.Players {
		if p.ID != g.Turn.PlayerID && p.Active() && !p.AcceptsAction {
			return nil
		}
	}
	spec, err := currentSpec(g)
	if err != nil {
		return err
	}
	return e.resolve(g, spec)
}

// Challenge 质疑行动者声明的角色
func (e *Engine) Challenge(g *Game, playerID uint) error {
	p, err := responder(g, playerID, PhaseAttempted)
	if err != nil {
		return err
	}
	spec, err := currentSpec(g)
	if err != nil {
		return err
	}
	if !spec.Challengeable() {
		return errors.Newf(errors.ErrInvalidTurnState, "%s 无法被质疑", spec.Kind)
	}
	g.Turn.ChallengerID = p.ID
	e.log(g, p.Name+" challenges "+g.Actor().Name)
	e.enterPhase(g, PhaseChallenged, false)
	return nil
}

// Block 阻挡行动，有目标的行动只有目标可以阻挡
func (e *Engine) Block(g *Game, playerID uint) error {
	p, err := responder(g, playerID, PhaseAttempted)
	if err != nil {
		return err
	}
	spec, err := currentSpec(g)
	if err != nil {
		return err
	}
	if !spec.Blockable() {
		return errors.Newf(errors.ErrInvalidTurnState, "%s 无法被阻挡", spec.Kind)
	}
	if spec.Targeted && g.Turn.TargetID != p.ID {
		return errors.Newf(errors.ErrNotPlayerTurn, "只有目标 %d 可以阻挡", g.Turn.TargetID)
	}
	g.Turn.BlockerID = p.ID
	e.log(g, p.Name+" blocks "+g.Actor().Name)
	e.enterPhase(g, PhaseBlocked, true)
	return nil
}

// AcceptBlock 行动者接受阻挡，行动不生效
func (e *Engine) AcceptBlock(g *Game, playerID uint) error {
	actor, err := actorIn(g, playerID, PhaseBlocked)
	if err != nil {
		return err
	}
	e.log(g, actor.Name+" backs down")
	e.advance(g)
	return nil
}

// ChallengeBlock 行动者质疑阻挡者
func (e *Engine) ChallengeBlock(g *Game, playerID uint) error {
	actor, err := actorIn(g, playerID, PhaseBlocked)
	if err != nil {
		return err
	}
	blocker := g.Players.Find(g.Turn.BlockerID)
	if blocker == nil {
		return errors.Newf(errors.ErrDataIntegrity, "阻挡者 %d 不存在", g.Turn.BlockerID)
	}
	g.Turn.BlockChallengerID = actor.ID
	e.log(g, actor.Name+" challenges "+blocker.Name)
	e.enterPhase(g, PhaseBlockChallenged, false)
	return nil
}

// expectedRevealer 当前阶段应当亮牌的玩家
func expectedRevealer(g *Game) (uint, error) {
	switch g.Turn.Phase {
	case PhaseChallenged:
		return g.Turn.PlayerID, nil
	case PhaseBlockChallenged:
		return g.Turn.BlockerID, nil
	case PhaseChallengerRevealing:
		return g.Turn.ChallengerID, nil
	case PhaseBlockChallengerRevealing:
		return g.Turn.BlockChallengerID, nil
	case PhaseTargetRevealing:
		return g.Turn.TargetID, nil
	}
	return 0, errors.Newf(errors.ErrInvalidTurnState, "阶段 %s 无需亮牌", g.Turn.Phase)
}

// Reveal 亮出一张未亮出的牌，按阶段决定后续
func (e *Engine) Reveal(g *Game, playerID uint, inf Influence) error {
	if err := requireRunning(g); err != nil {
		return err
	}
	p, err := g.seated(playerID)
	if err != nil {
		return err
	}
	revealer, err := expectedRevealer(g)
	if err != nil {
		return err
	}
	if p.ID != revealer {
		return errors.Newf(errors.ErrNotPlayerTurn, "应由玩家 %d 亮牌", revealer)
	}
	if !inf.Valid() {
		return errors.Newf(errors.ErrInvalidReveal, "非法角色: %d", inf)
	}
	slot, ok := p.unrevealedSlot(inf)
	if !ok {
		return errors.Newf(errors.ErrInvalidReveal, "玩家 %d 没有未亮出的 %s", p.ID, inf)
	}
	spec, err := currentSpec(g)
	if err != nil {
		return err
	}

	p.Revealed[slot] = true
	e.log(g, p.Name+" revealed "+inf.withArticle())

	switch g.Turn.Phase {
	case PhaseChallenged:
		if inf == spec.Claim {
			// 证实声明：换牌，行动结算，质疑者失去一张牌
			if err := e.replaceCard(g, p, slot); err != nil {
				return err
			}
			e.applyEffect(g, spec)
			e.enterPhase(g, PhaseChallengerRevealing, false)
		} else {
			e.markEliminated(g, p)
			e.advance(g)
		}
	case PhaseBlockChallenged:
		if spec.CanBlockWith(inf) {
			if err := e.replaceCard(g, p, slot); err != nil {
				return err
			}
			e.log(g, p.Name+" successfully blocks "+g.Actor().Name)
			e.enterPhase(g, PhaseBlockChallengerRevealing, false)
		} else {
			e.markEliminated(g, p)
			if err := e.resolve(g, spec); err != nil {
				return err
			}
		}
	case PhaseChallengerRevealing:
		e.markEliminated(g, p)
		if err := e.followUp(g, spec); err != nil {
			return err
		}
	case PhaseBlockChallengerRevealing, PhaseTargetRevealing:
		e.markEliminated(g, p)
		e.advance(g)
	}

	e.checkWinner(g)
	return nil
}

func (e *Engine) markEliminated(g *Game, p *Player) {
	if p.Eliminated() {
		e.log(g, p.Name+" is out of the game!")
	}
}

// replaceCard 被证实的牌放回牌堆重洗，再摸一张
func (e *Engine) replaceCard(g *Game, p *Player, slot int) error {
	g.Deck.ReturnAndShuffle(e.shuffler, p.Influence[slot])
	drawn, err := g.Deck.Draw(1)
	if err != nil {
		return err
	}
	p.Influence[slot] = drawn[0]
	p.Revealed[slot] = false
	return nil
}

// resolve 行动生效并进入后续阶段
func (e *Engine) resolve(g *Game, spec ActionSpec) error {
	e.applyEffect(g, spec)
	return e.followUp(g, spec)
}

// applyEffect 结算金币变化
func (e *Engine) applyEffect(g *Game, spec ActionSpec) {
	actor := g.Actor()
	target := g.Players.Find(g.Turn.TargetID)
	switch spec.Effect {
	case EffectGain:
		actor.Coins += spec.Gain
	case EffectSteal:
		stolen := min(2, target.Coins)
		target.Coins -= stolen
		actor.Coins += stolen
	}
	e.log(g, render(spec.SuccessMessage, actor, target))
}

// followUp 需要进一步操作的行动进入对应阶段，否则结束回合
func (e *Engine) followUp(g *Game, spec ActionSpec) error {
	switch spec.Effect {
	case EffectExchange:
		if g.Deck.Len() < 2 {
			return errors.Newf(errors.ErrDeckExhausted, "交换需要 2 张，剩余 %d 张", g.Deck.Len())
		}
		e.enterPhase(g, PhaseExchanging, false)
		return nil
	case EffectAssassinate, EffectCoup:
		if target := g.Players.Find(g.Turn.TargetID); target != nil && target.Active() {
			e.enterPhase(g, PhaseTargetRevealing, false)
			return nil
		}
	}
	e.advance(g)
	return nil
}

// ExchangeOptions 交换阶段行动者可选择的牌：手牌加牌顶两张
func (g *Game) ExchangeOptions() ([]Influence, error) {
	if g.Turn.Phase != PhaseExchanging {
		return nil, errors.Newf(errors.ErrInvalidTurnState, "当前阶段为 %s", g.Turn.Phase)
	}
	actor := g.Actor()
	if actor == nil {
		return nil, errors.New(errors.ErrDataIntegrity, "交换阶段缺少行动者")
	}
	offered, err := g.Deck.Peek(2)
	if err != nil {
		return nil, err
	}
	return append(actor.Hand(), offered...), nil
}

// Exchange 行动者提交保留的牌，其余放回牌堆
func (e *Engine) Exchange(g *Game, playerID uint, kept []Influence) error {
	actor, err := actorIn(g, playerID, PhaseExchanging)
	if err != nil {
		return err
	}
	options, err := g.ExchangeOptions()
	if err != nil {
		return err
	}
	slots := len(actor.Hand())
	if len(kept) != slots {
		return errors.Newf(errors.ErrInvalidExchange, "需要保留 %d 张，提交了 %d 张", slots, len(kept))
	}
	pool := make(map[Influence]int, len(options))
	for _, card := range options {
		pool[card]++
	}
	for _, card := range kept {
		if pool[card] == 0 {
			return errors.Newf(errors.ErrInvalidExchange, "%s 不在可选牌中", card)
		}
		pool[card]--
	}

	if _, err := g.Deck.Draw(2); err != nil {
		return err
	}
	next := 0
	for slot := range actor.Influence {
		if !actor.Revealed[slot] {
			actor.Influence[slot] = kept[next]
			next++
		}
	}
	var returned []Influence
	for _, role := range Roles {
		for i := 0; i < pool[role]; i++ {
			returned = append(returned, role)
		}
	}
	g.Deck.ReturnAndShuffle(e.shuffler, returned...)
	e.log(g, actor.Name+" returns 2 cards to the deck")
	e.advance(g)
	return nil
}

// Expire 响应超时：ATTEMPTED 视为全员放行，BLOCKED 视为行动者接受阻挡
func (e *Engine) Expire(g *Game, now time.Time) (bool, error) {
	if g.State != StateRunning || g.Turn.Deadline == nil || now.Before(*g.Turn.Deadline) {
		return false, nil
	}
	switch g.Turn.Phase {
	case PhaseAttempted:
		for _, p := range g.Players {
			if p.ID != g.Turn.PlayerID && p.Active() {
				p.AcceptsAction = true
			}
		}
		e.log(g, "No response in time")
		return true, e.resolveIfAccepted(g)
	case PhaseBlocked:
		e.log(g, g.Actor().Name+" backs down")
		e.advance(g)
		return true, nil
	}
	return false, nil
}
