package broker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Taiters/coup-clone/internal/coup"
	"github.com/Taiters/coup-clone/internal/errors"
	"github.com/Taiters/coup-clone/internal/game"
	"github.com/Taiters/coup-clone/internal/logger"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Authenticator 从会话令牌解析调用方
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (game.Caller, error)
}

// Dispatcher 意图分发
type Dispatcher interface {
	Dispatch(ctx context.Context, caller game.Caller, in game.Intent) (*game.Result, error)
}

// IntentRequest 请求/应答方式提交的意图
type IntentRequest struct {
	Token  string      `json:"token"`
	Intent game.Intent `json:"intent"`
}

// ReplyError 结构化拒绝
type ReplyError struct {
	Code      errors.ErrorCode `json:"code"`
	Kind      string           `json:"kind"`
	Message   string           `json:"message"`
	Details   string           `json:"details,omitempty"`
	Retryable bool             `json:"retryable,omitempty"`
}

// IntentReply 意图处理结果，Game 为调用方视角
type IntentReply struct {
	OK       bool           `json:"ok"`
	GameID   string         `json:"game_id,omitempty"`
	PlayerID uint           `json:"player_id,omitempty"`
	Game     *coup.GameView `json:"game,omitempty"`
	Error    *ReplyError    `json:"error,omitempty"`
}

// IntentResponder 在意图主题上应答请求
type IntentResponder struct {
	conn       *nats.Conn
	subject    string
	auth       Authenticator
	dispatcher Dispatcher
	timeout    time.Duration
	logger     *zap.Logger
}

// NewIntentResponder 创建应答者，conn 可为 nil（仅用 Handle）
func NewIntentResponder(conn *nats.Conn, subject string, auth Authenticator, dispatcher Dispatcher) *IntentResponder {
	return &IntentResponder{
		conn:       conn,
		subject:    subject,
		auth:       auth,
		dispatcher: dispatcher,
		timeout:    10 * time.Second,
		logger:     logger.GetModuleLogger(logger.ModuleBroker),
	}
}

// Start 订阅意图主题
func (r *IntentResponder) Start() (*nats.Subscription, error) {
	sub, err := r.conn.Subscribe(r.subject, func(m *nats.Msg) {
		logger.LogBrokerMessage(m.Subject, "receive", len(m.Data))
		if m.Reply == "" {
			r.logger.Warn("意图请求缺少应答主题", zap.String("subject", m.Subject))
			return
		}
		if err := r.conn.Publish(m.Reply, r.Handle(m.Data)); err != nil {
			r.logger.Warn("发送意图应答失败", zap.String("reply", m.Reply), zap.Error(err))
		}
	})
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrBrokerSubscribe, "订阅失败: %s", r.subject)
	}
	r.logger.Info("意图应答已启动", zap.String("subject", r.subject))
	return sub, nil
}

// Handle 处理一条请求并返回编码后的应答
func (r *IntentResponder) Handle(data []byte) []byte {
	reply := r.handle(data)
	out, err := json.Marshal(reply)
	if err != nil {
		r.logger.Error("编码意图应答失败", zap.Error(err))
		out, _ = json.Marshal(&IntentReply{Error: replyError(errors.Wrap(err, errors.ErrUnknown))})
	}
	return out
}

func (r *IntentResponder) handle(data []byte) *IntentReply {
	var req IntentRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return &IntentReply{Error: replyError(errors.Wrap(err, errors.ErrMessageFormat, "意图格式错误"))}
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	caller, err := r.auth.Authenticate(ctx, req.Token)
	if err != nil {
		return &IntentReply{Error: replyError(err)}
	}
	res, err := r.dispatcher.Dispatch(ctx, caller, req.Intent)
	if err != nil {
		return &IntentReply{Error: replyError(err)}
	}
	return &IntentReply{
		OK:       true,
		GameID:   res.GameID,
		PlayerID: res.PlayerID,
		Game:     res.View(),
	}
}

func replyError(err error) *ReplyError {
	appErr, ok := errors.As(err)
	if !ok {
		appErr = errors.Wrap(err, errors.ErrUnknown)
	}
	return &ReplyError{
		Code:      appErr.Code,
		Kind:      appErr.Kind(),
		Message:   appErr.Message,
		Details:   appErr.Details,
		Retryable: errors.IsRetryable(appErr),
	}
}
