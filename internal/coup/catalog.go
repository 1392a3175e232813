package coup

import (
	"strings"
)

// ActionKind 行动类型，空字符串表示尚未选择行动
type ActionKind string

const (
	ActionNone        ActionKind = ""
	ActionIncome      ActionKind = "income"
	ActionForeignAid  ActionKind = "foreign_aid"
	ActionTax         ActionKind = "tax"
	ActionSteal       ActionKind = "steal"
	ActionExchange    ActionKind = "exchange"
	ActionAssassinate ActionKind = "assassinate"
	ActionCoup        ActionKind = "coup"
)

// Effect 行动结算效果
type Effect int

const (
	EffectGain Effect = iota
	EffectSteal
	EffectExchange
	EffectAssassinate
	EffectCoup
)

// ActionSpec 行动规则表中的一项
type ActionSpec struct {
	Kind      ActionKind
	Cost      int
	Gain      int
	Claim     Influence
	Targeted  bool
	BlockedBy []Influence
	Effect    Effect
	// AttemptMessage 为空表示立即结算的行动
	AttemptMessage string
	SuccessMessage string
}

// Challengeable 声明了角色的行动可被质疑
func (s ActionSpec) Challengeable() bool {
	return s.Claim != Unknown
}

// Blockable 存在可阻挡的角色
func (s ActionSpec) Blockable() bool {
	return len(s.BlockedBy) > 0
}

// Immediate 无法质疑也无法阻挡，直接结算
func (s ActionSpec) Immediate() bool {
	return !s.Challengeable() && !s.Blockable()
}

// CanBlockWith 该角色能否阻挡此行动
func (s ActionSpec) CanBlockWith(inf Influence) bool {
	for _, b := range s.BlockedBy {
		if b == inf {
			return true
		}
	}
	return false
}

// catalog 行动规则表
var catalog = map[ActionKind]ActionSpec{
	ActionIncome: {
		Kind:           ActionIncome,
		Gain:           1,
		Effect:         EffectGain,
		SuccessMessage: "{player} takes income",
	},
	ActionForeignAid: {
		Kind:           ActionForeignAid,
		Gain:           2,
		BlockedBy:      []Influence{Duke},
		Effect:         EffectGain,
		AttemptMessage: "{player} attempts to take foreign aid",
		SuccessMessage: "{player} takes foreign aid",
	},
	ActionTax: {
		Kind:           ActionTax,
		Gain:           3,
		Claim:          Duke,
		Effect:         EffectGain,
		AttemptMessage: "{player} attempts to collect tax",
		SuccessMessage: "{player} collects tax",
	},
	ActionSteal: {
		Kind:           ActionSteal,
		Claim:          Captain,
		Targeted:       true,
		BlockedBy:      []Influence{Captain, Ambassador},
		Effect:         EffectSteal,
		AttemptMessage: "{player} attempts to steal from {target}",
		SuccessMessage: "{player} steals from {target}",
	},
	ActionExchange: {
		Kind:           ActionExchange,
		Claim:          Ambassador,
		Effect:         EffectExchange,
		AttemptMessage: "{player} attempts to exchange cards",
		SuccessMessage: "{player} exchanges cards",
	},
	ActionAssassinate: {
		Kind:           ActionAssassinate,
		Cost:           3,
		Claim:          Assassin,
		Targeted:       true,
		BlockedBy:      []Influence{Contessa},
		Effect:         EffectAssassinate,
		AttemptMessage: "{player} attempts to assassinate {target}",
		SuccessMessage: "{player} assassinates {target}",
	},
	ActionCoup: {
		Kind:           ActionCoup,
		Cost:           7,
		Targeted:       true,
		Effect:         EffectCoup,
		SuccessMessage: "{player} launches a coup against {target}",
	},
}

// Lookup 查询行动规则
func Lookup(kind ActionKind) (ActionSpec, bool) {
	spec, ok := catalog[kind]
	return spec, ok
}

// ParseAction 解析客户端提交的行动名
func ParseAction(s string) (ActionKind, bool) {
	kind := ActionKind(strings.ToLower(strings.TrimSpace(s)))
	_, ok := catalog[kind]
	return kind, ok
}

// Actions 全部行动，按固定顺序
func Actions() []ActionKind {
	return []ActionKind{
		ActionIncome, ActionForeignAid, ActionTax, ActionSteal,
		ActionExchange, ActionAssassinate, ActionCoup,
	}
}

// render 替换消息模板中的占位符
func render(template string, player, target *Player) string {
	pairs := []string{}
	if player != nil {
		pairs = append(pairs, "{player}", player.Name)
	}
	if target != nil {
		pairs = append(pairs, "{target}", target.Name)
	}
	return strings.NewReplacer(pairs...).Replace(template)
}
