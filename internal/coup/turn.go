package coup

import "time"

// TurnPhase 回合阶段
type TurnPhase string

const (
	PhaseStart                    TurnPhase = "START"
	PhaseAttempted                TurnPhase = "ATTEMPTED"
	PhaseBlocked                  TurnPhase = "BLOCKED"
	PhaseChallenged               TurnPhase = "CHALLENGED"
	PhaseBlockChallenged          TurnPhase = "BLOCK_CHALLENGED"
	PhaseChallengerRevealing      TurnPhase = "CHALLENGER_REVEALING"
	PhaseBlockChallengerRevealing TurnPhase = "BLOCK_CHALLENGER_REVEALING"
	PhaseTargetRevealing          TurnPhase = "TARGET_REVEALING"
	PhaseExchanging               TurnPhase = "EXCHANGING"
	PhaseFinished                 TurnPhase = "FINISHED"
)

var phases = map[TurnPhase]bool{
	PhaseStart: true, PhaseAttempted: true, PhaseBlocked: true, PhaseChallenged: true,
	PhaseBlockChallenged: true, PhaseChallengerRevealing: true, PhaseBlockChallengerRevealing: true,
	PhaseTargetRevealing: true, PhaseExchanging: true, PhaseFinished: true,
}

// Valid 是否为已知阶段
func (p TurnPhase) Valid() bool {
	return phases[p]
}

// Turn 当前回合上下文，玩家ID为0表示无
type Turn struct {
	PlayerID          uint
	Action            ActionKind
	TargetID          uint
	ChallengerID      uint
	BlockerID         uint
	BlockChallengerID uint
	Phase             TurnPhase
	Modified          time.Time
	// Deadline 仅在等待其他玩家响应的阶段设置
	Deadline *time.Time
}

// reset 切换到新的行动者
func (t *Turn) reset(playerID uint, now time.Time) {
	*t = Turn{
		PlayerID: playerID,
		Phase:    PhaseStart,
		Modified: now,
	}
}

func (t Turn) clone() Turn {
	if t.Deadline != nil {
		d := *t.Deadline
		t.Deadline = &d
	}
	return t
}
