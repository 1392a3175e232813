package game

import (
	"context"

	"github.com/Taiters/coup-clone/internal/logger"
	"go.uber.org/zap"
)

// Notifier 接收已提交的对局变更，不得修改其中的快照
type Notifier interface {
	Notify(ctx context.Context, u *Update) error
}

// NotifierFunc 函数适配器
type NotifierFunc func(ctx context.Context, u *Update) error

// Notify 实现 Notifier
func (f NotifierFunc) Notify(ctx context.Context, u *Update) error {
	return f(ctx, u)
}

// Notifiers 依次通知多个下游，单个失败只记录日志
type Notifiers []Notifier

// Notify 实现 Notifier
func (ns Notifiers) Notify(ctx context.Context, u *Update) error {
	for _, n := range ns {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, u); err != nil {
			logger.GetModuleLogger(logger.ModuleGame).Warn("推送对局变更失败",
				zap.String("game_id", u.GameID),
				zap.Error(err),
			)
		}
	}
	return nil
}
