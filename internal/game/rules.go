package game

import (
	"github.com/Taiters/coup-clone/internal/config"
	"github.com/Taiters/coup-clone/internal/coup"
)

// RulesFrom 从配置构建规则，未设置的项沿用默认值
func RulesFrom(cfg *config.GameConfig) coup.Rules {
	rules := coup.DefaultRules()
	if cfg == nil {
		return rules
	}
	if cfg.MinPlayers > 0 {
		rules.MinPlayers = cfg.MinPlayers
	}
	if cfg.MaxPlayers > 0 {
		rules.MaxPlayers = cfg.MaxPlayers
	}
	if cfg.StartingCoins >= 0 {
		rules.StartingCoins = cfg.StartingCoins
	}
	if cfg.ResponseWindow >= 0 {
		rules.ResponseWindow = cfg.ResponseWindow
	}
	return rules
}
