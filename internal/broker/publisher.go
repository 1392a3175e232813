package broker

import (
	"context"
	"encoding/json"

	"github.com/Taiters/coup-clone/internal/coup"
	"github.com/Taiters/coup-clone/internal/errors"
	"github.com/Taiters/coup-clone/internal/game"
	"github.com/Taiters/coup-clone/internal/logger"
)

// Conn 发布所需的连接能力，*nats.Conn 满足该接口
type Conn interface {
	Publish(subject string, data []byte) error
}

// GameMessage 对局变更广播，只包含公开信息
type GameMessage struct {
	GameID  string         `json:"game_id"`
	Deleted bool           `json:"deleted,omitempty"`
	Game    *coup.GameView `json:"game,omitempty"`
	Events  []coup.Event   `json:"events,omitempty"`
}

// Publisher 把已提交的变更广播到 <prefix>.games.<id>
type Publisher struct {
	conn   Conn
	prefix string
}

var _ game.Notifier = (*Publisher)(nil)

// NewPublisher 创建发布者
func NewPublisher(conn Conn, prefix string) *Publisher {
	return &Publisher{conn: conn, prefix: prefix}
}

// Notify 实现 game.Notifier
func (p *Publisher) Notify(ctx context.Context, u *game.Update) error {
	msg := &GameMessage{GameID: u.GameID, Deleted: u.Deleted, Events: u.Events}
	if !u.Deleted && u.Game != nil {
		view := u.Game.View(0)
		msg.Game = &view
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, errors.ErrMessageFormat)
	}

	subject := GameSubject(p.prefix, u.GameID)
	if err := p.conn.Publish(subject, data); err != nil {
		return errors.Wrapf(err, errors.ErrBrokerPublish, "发布失败: %s", subject)
	}
	logger.LogBrokerMessage(subject, "publish", len(data))
	return nil
}
