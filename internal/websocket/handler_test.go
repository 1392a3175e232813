package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Taiters/coup-clone/internal/coup"
	"github.com/Taiters/coup-clone/internal/errors"
	"github.com/Taiters/coup-clone/internal/game"
	"github.com/Taiters/coup-clone/internal/service"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"
)

// IntentHandlerTestSuite 通过真实连接走完整的意图流程
type IntentHandlerTestSuite struct {
	suite.Suite
	store    *game.MemoryStore
	coord    *game.Coordinator
	sessions service.SessionService
	hub      *Hub
	server   *httptest.Server
	cancel   context.CancelFunc
}

func (s *IntentHandlerTestSuite) SetupTest() {
	s.store = game.NewMemoryStore()
	s.hub = NewHub(zap.NewNop())
	s.coord = game.NewCoordinator(&game.Config{
		Store:    s.store,
		Notifier: s.hub,
		Logger:   zap.NewNop(),
		Rules:    coup.DefaultRules(),
	})
	s.sessions = service.NewServices(s.store, nil, zap.NewNop()).Session
	handler := NewIntentHandler(s.hub, s.coord, s.sessions, zap.NewNop())

	var ctx context.Context
	ctx, s.cancel = context.WithCancel(context.Background())
	go s.hub.Run(ctx)

	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	s.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller, err := s.sessions.Authenticate(r.Context(), r.URL.Query().Get("token"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		client := NewClient(s.hub, conn, caller, DefaultOptions())
		if !s.hub.Register(client) {
			conn.Close()
			return
		}
		go client.WritePump()
		go client.ReadPump(handler)
	}))
}

func (s *IntentHandlerTestSuite) TearDownTest() {
	s.server.Close()
	s.cancel()
}

// dial 创建会话并建立连接
func (s *IntentHandlerTestSuite) dial() *websocket.Conn {
	grant, err := s.sessions.Create(context.Background())
	s.Require().NoError(err)
	url := "ws" + strings.TrimPrefix(s.server.URL, "http") + "/?token=" + grant.Token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	s.Require().NoError(err)
	s.T().Cleanup(func() { conn.Close() })
	return conn
}

// until 读取消息直到出现指定类型
func (s *IntentHandlerTestSuite) until(conn *websocket.Conn, msgType string) (*Message, []*Message) {
	var seen []*Message
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		_, raw, err := conn.ReadMessage()
		s.Require().NoError(err, "等待 %s 消息超时", msgType)
		var msg Message
		s.Require().NoError(json.Unmarshal(raw, &msg))
		seen = append(seen, &msg)
		if msg.Type == msgType {
			return &msg, seen
		}
	}
}

func (s *IntentHandlerTestSuite) send(conn *websocket.Conn, id string, in game.Intent) {
	data, err := json.Marshal(in)
	s.Require().NoError(err)
	s.Require().NoError(conn.WriteJSON(&Message{Type: MessageTypeIntent, ID: id, Data: data}))
}

func (s *IntentHandlerTestSuite) TestCreateJoinStart() {
	alice := s.dial()
	s.until(alice, MessageTypeConnected)
	bob := s.dial()
	s.until(bob, MessageTypeConnected)

	s.send(alice, "1", game.Intent{Kind: game.IntentCreateGame, Name: "alice"})
	ack, _ := s.until(alice, MessageTypeAck)
	s.Equal("1", ack.ID)
	var created AckPayload
	s.Require().NoError(json.Unmarshal(ack.Data, &created))
	s.Equal(game.IntentCreateGame, created.Intent)
	s.Len(created.GameID, 6)

	s.send(bob, "2", game.Intent{Kind: game.IntentJoinGame, GameID: created.GameID, Name: "bob"})
	s.until(bob, MessageTypeAck)

	// 房主收到加入后的推送
	events, _ := s.until(alice, MessageTypeEvents)
	var delta []coup.Event
	s.Require().NoError(json.Unmarshal(events.Data, &delta))
	s.Require().NotEmpty(delta)
	s.Equal("bob joined the game", delta[len(delta)-1].Message)

	s.send(alice, "3", game.Intent{Kind: game.IntentStartGame})
	s.until(alice, MessageTypeAck)

	msg, _ := s.until(bob, MessageTypeGame)
	var view coup.GameView
	s.Require().NoError(json.Unmarshal(msg.Data, &view))
	for view.State != coup.StateRunning {
		msg, _ = s.until(bob, MessageTypeGame)
		s.Require().NoError(json.Unmarshal(msg.Data, &view))
	}
	s.Equal(coup.PhaseStart, view.Turn.Phase)
	s.NotZero(view.ViewerID)
	s.Equal(2, s.hub.RoomSize(created.GameID))
}

func (s *IntentHandlerTestSuite) TestRejections() {
	conn := s.dial()
	s.until(conn, MessageTypeConnected)

	s.Require().NoError(conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	msg, _ := s.until(conn, MessageTypeError)
	var payload ErrorPayload
	s.Require().NoError(json.Unmarshal(msg.Data, &payload))
	s.Equal(errors.ErrMessageFormat, payload.Code)

	s.send(conn, "9", game.Intent{Kind: game.IntentTakeAction, Action: coup.ActionIncome})
	msg, _ = s.until(conn, MessageTypeError)
	s.Equal("9", msg.ID)
	s.Require().NoError(json.Unmarshal(msg.Data, &payload))
	s.Equal(errors.ErrPlayerNotInGame, payload.Code)
	s.Equal(errors.Kind(errors.New(errors.ErrPlayerNotInGame)), payload.Kind)

	s.send(conn, "10", game.Intent{Kind: game.IntentJoinGame, GameID: "zzzzzz"})
	msg, _ = s.until(conn, MessageTypeError)
	s.Require().NoError(json.Unmarshal(msg.Data, &payload))
	s.Equal(errors.ErrGameNotFound, payload.Code)

	s.Require().NoError(conn.WriteJSON(&Message{Type: MessageTypePing, ID: "p"}))
	pong, _ := s.until(conn, MessageTypePong)
	s.Equal("p", pong.ID)
}

func (s *IntentHandlerTestSuite) TestReconnectResendsState() {
	grant, err := s.sessions.Create(context.Background())
	s.Require().NoError(err)
	caller, err := s.sessions.Authenticate(context.Background(), grant.Token)
	s.Require().NoError(err)
	res, err := s.coord.CreateGame(context.Background(), caller, "alice")
	s.Require().NoError(err)

	url := "ws" + strings.TrimPrefix(s.server.URL, "http") + "/?token=" + grant.Token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	s.Require().NoError(err)
	defer conn.Close()

	_, seen := s.until(conn, MessageTypeEvents)
	s.Contains(types(seen), MessageTypeGame)
	s.Contains(types(seen), MessageTypeHand)
	s.Equal(1, s.hub.RoomSize(res.GameID))
}

func TestIntentHandlerSuite(t *testing.T) {
	suite.Run(t, new(IntentHandlerTestSuite))
}

func TestDecode(t *testing.T) {
	_, err := Decode([]byte(`{"id":"1"}`))
	assert.True(t, errors.Is(err, errors.ErrMessageFormat))

	msg, err := Decode([]byte(`{"type":"intent","id":"1","data":{"intent":"reveal","influence":"DUKE"}}`))
	require.NoError(t, err)
	in, err := DecodeIntent(msg)
	require.NoError(t, err)
	assert.Equal(t, game.IntentReveal, in.Kind)
	assert.Equal(t, coup.Duke, in.Influence)

	_, err = DecodeIntent(&Message{Type: MessageTypeIntent})
	assert.True(t, errors.Is(err, errors.ErrMessageFormat))
}
