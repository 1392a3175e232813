package broker

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/Taiters/coup-clone/internal/config"
	"github.com/Taiters/coup-clone/internal/coup"
	"github.com/Taiters/coup-clone/internal/errors"
	"github.com/Taiters/coup-clone/internal/game"
	"github.com/Taiters/coup-clone/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"
)

// recordingConn 记录发布内容
type recordingConn struct {
	mu       sync.Mutex
	subjects []string
	payloads [][]byte
	err      error
}

func (c *recordingConn) Publish(subject string, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.subjects = append(c.subjects, subject)
	c.payloads = append(c.payloads, data)
	return nil
}

func (c *recordingConn) last(t *testing.T) (string, *GameMessage) {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	require.NotEmpty(t, c.payloads)
	var msg GameMessage
	require.NoError(t, json.Unmarshal(c.payloads[len(c.payloads)-1], &msg))
	return c.subjects[len(c.subjects)-1], &msg
}

func TestSubjects(t *testing.T) {
	assert.Equal(t, "coup.games.abcdef", GameSubject("", "abcdef"))
	assert.Equal(t, "test.games.abcdef", GameSubject("test", "abcdef"))
	assert.Equal(t, "coup.intents", IntentSubject(&config.NATSConfig{}))
	assert.Equal(t, "lobby.intents", IntentSubject(&config.NATSConfig{SubjectPrefix: "lobby"}))
	assert.Equal(t, "custom", IntentSubject(&config.NATSConfig{SubjectPrefix: "lobby", IntentSubject: "custom"}))
}

// BrokerTestSuite 发布与请求/应答走同一个协调器
type BrokerTestSuite struct {
	suite.Suite
	conn      *recordingConn
	coord     *game.Coordinator
	sessions  service.SessionService
	responder *IntentResponder
}

func (s *BrokerTestSuite) SetupTest() {
	store := game.NewMemoryStore()
	s.conn = &recordingConn{}
	s.coord = game.NewCoordinator(&game.Config{
		Store:    store,
		Notifier: NewPublisher(s.conn, "test"),
		Logger:   zap.NewNop(),
		Rules:    coup.DefaultRules(),
	})
	s.sessions = service.NewServices(store, nil, zap.NewNop()).Session
	s.responder = NewIntentResponder(nil, "test.intents", s.sessions, s.coord)
}

func (s *BrokerTestSuite) request(token string, in game.Intent) *IntentReply {
	data, err := json.Marshal(&IntentRequest{Token: token, Intent: in})
	s.Require().NoError(err)
	var reply IntentReply
	s.Require().NoError(json.Unmarshal(s.responder.Handle(data), &reply))
	return &reply
}

func (s *BrokerTestSuite) token() string {
	grant, err := s.sessions.Create(context.Background())
	s.Require().NoError(err)
	return grant.Token
}

func (s *BrokerTestSuite) TestIntentRoundTrip() {
	alice, bob := s.token(), s.token()

	created := s.request(alice, game.Intent{Kind: game.IntentCreateGame, Name: "alice"})
	s.Require().True(created.OK, "%+v", created.Error)
	s.Require().NotNil(created.Game)
	s.Equal(created.PlayerID, created.Game.ViewerID)

	joined := s.request(bob, game.Intent{Kind: game.IntentJoinGame, GameID: created.GameID, Name: "bob"})
	s.Require().True(joined.OK)
	s.Len(joined.Game.Players, 2)

	started := s.request(alice, game.Intent{Kind: game.IntentStartGame})
	s.Require().True(started.OK)
	s.Equal(coup.StateRunning, started.Game.State)
	for _, p := range started.Game.Players {
		if p.ID == created.PlayerID {
			s.NotEqual(coup.Unknown, p.Influence[0], "调用方看得到自己的牌")
		}
	}

	subject, msg := s.conn.last(s.T())
	s.Equal("test.games."+created.GameID, subject)
	s.Require().NotNil(msg.Game)
	s.Zero(msg.Game.ViewerID)
	for _, p := range msg.Game.Players {
		s.Equal([2]coup.Influence{coup.Unknown, coup.Unknown}, p.Influence, "广播只含公开信息")
	}
	s.NotEmpty(msg.Events)
}

func (s *BrokerTestSuite) TestRejections() {
	reply := s.request("bogus", game.Intent{Kind: game.IntentCreateGame})
	s.False(reply.OK)
	s.Require().NotNil(reply.Error)
	s.Equal(errors.ErrTokenInvalid, reply.Error.Code)
	s.False(reply.Error.Retryable)

	reply = s.request(s.token(), game.Intent{Kind: game.IntentTakeAction, Action: coup.ActionIncome})
	s.Require().NotNil(reply.Error)
	s.Equal(errors.ErrPlayerNotInGame, reply.Error.Code)

	var bad IntentReply
	s.Require().NoError(json.Unmarshal(s.responder.Handle([]byte("{oops")), &bad))
	s.Require().NotNil(bad.Error)
	s.Equal(errors.ErrMessageFormat, bad.Error.Code)
}

func TestReplyErrorRetryable(t *testing.T) {
	reply := replyError(errors.New(errors.ErrBrokerConnect))
	assert.Equal(t, errors.ErrBrokerConnect, reply.Code)
	assert.True(t, reply.Retryable)

	reply = replyError(assert.AnError)
	assert.Equal(t, errors.ErrUnknown, reply.Code)
	assert.False(t, reply.Retryable)
}

func (s *BrokerTestSuite) TestDeletePublished() {
	alice := s.token()
	created := s.request(alice, game.Intent{Kind: game.IntentCreateGame, Name: "alice"})
	s.Require().True(created.OK)

	left := s.request(alice, game.Intent{Kind: game.IntentLeaveGame})
	s.Require().True(left.OK)
	s.Nil(left.Game)

	_, msg := s.conn.last(s.T())
	s.True(msg.Deleted)
	s.Nil(msg.Game)
}

func TestBrokerSuite(t *testing.T) {
	suite.Run(t, new(BrokerTestSuite))
}

func TestPublishFailure(t *testing.T) {
	conn := &recordingConn{err: assert.AnError}
	err := NewPublisher(conn, "").Notify(context.Background(), &game.Update{GameID: "abcdef", Deleted: true})
	assert.True(t, errors.Is(err, errors.ErrBrokerPublish))
}
