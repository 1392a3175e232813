package broker

import (
	"fmt"
	"time"

	"github.com/Taiters/coup-clone/internal/config"
	"github.com/Taiters/coup-clone/internal/errors"
	"github.com/nats-io/nats.go"
)

const (
	defaultURL    = nats.DefaultURL
	defaultName   = "coup-server"
	defaultPrefix = "coup"
)

// Connect 按配置连接 NATS
func Connect(cfg *config.NATSConfig) (*nats.Conn, error) {
	url := cfg.URL
	if url == "" {
		url = defaultURL
	}
	name := cfg.Name
	if name == "" {
		name = defaultName
	}
	reconnectWait := cfg.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := cfg.MaxReconnects
	if maxReconnects == 0 {
		maxReconnects = 5
	}

	opts := []nats.Option{
		nats.Name(name),
		nats.Timeout(10 * time.Second),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
	}
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrBrokerConnect, "连接NATS失败: %s", url)
	}
	return nc, nil
}

// GameSubject 对局变更的主题
func GameSubject(prefix, gameID string) string {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return fmt.Sprintf("%s.games.%s", prefix, gameID)
}

// IntentSubject 意图请求的主题，未配置时使用 <prefix>.intents
func IntentSubject(cfg *config.NATSConfig) string {
	if cfg.IntentSubject != "" {
		return cfg.IntentSubject
	}
	prefix := cfg.SubjectPrefix
	if prefix == "" {
		prefix = defaultPrefix
	}
	return prefix + ".intents"
}
