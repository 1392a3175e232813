package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/Taiters/coup-clone/internal/cache"
	"github.com/Taiters/coup-clone/internal/config"
	"github.com/Taiters/coup-clone/internal/coup"
	"github.com/Taiters/coup-clone/internal/errors"
	"github.com/Taiters/coup-clone/internal/game"
	"github.com/Taiters/coup-clone/internal/service"
	ws "github.com/Taiters/coup-clone/internal/websocket"
	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"
)

// RouterTestSuite 通过HTTP接口走完整流程
type RouterTestSuite struct {
	suite.Suite
	redis    *miniredis.Miniredis
	hub      *ws.Hub
	sessions service.SessionService
	router   *Router
	cancel   context.CancelFunc
}

func (s *RouterTestSuite) SetupTest() {
	gin.SetMode(gin.TestMode)

	s.redis = miniredis.RunT(s.T())
	client := redis.NewClient(&redis.Options{Addr: s.redis.Addr()})
	s.T().Cleanup(func() { client.Close() })
	gameCache := cache.NewGameCache(client, time.Minute)

	store := game.NewMemoryStore()
	s.hub = ws.NewHub(zap.NewNop())
	coord := game.NewCoordinator(&game.Config{
		Store:    store,
		Notifier: game.Notifiers{s.hub, gameCache},
		Logger:   zap.NewNop(),
		Rules:    coup.DefaultRules(),
	})
	s.sessions = service.NewServices(store, nil, zap.NewNop()).Session

	var ctx context.Context
	ctx, s.cancel = context.WithCancel(context.Background())
	go s.hub.Run(ctx)

	cfg := &config.Config{}
	cfg.Server.PublicURL = "https://coup.example/"
	s.router = NewRouter(&Options{
		Games:    coord,
		Sessions: s.sessions,
		Hub:      s.hub,
		Intents:  ws.NewIntentHandler(s.hub, coord, s.sessions, zap.NewNop()),
		Cache:    gameCache,
		Checks: []HealthCheck{
			{Name: "redis", Check: gameCache.Ping},
		},
		Config: cfg,
		Logger: zap.NewNop(),
	})
}

func (s *RouterTestSuite) TearDownTest() {
	s.cancel()
}

func (s *RouterTestSuite) do(method, path, token string, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		s.Require().NoError(err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.GetEngine().ServeHTTP(w, req)
	return w
}

func (s *RouterTestSuite) decode(w *httptest.ResponseRecorder, out interface{}) {
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), out), w.Body.String())
}

func (s *RouterTestSuite) errorCode(w *httptest.ResponseRecorder) errors.ErrorCode {
	var resp errors.ErrorResponse
	s.decode(w, &resp)
	s.False(resp.Success)
	s.Require().NotNil(resp.Error)
	s.NotEmpty(resp.RequestID)
	return resp.Error.Code
}

func (s *RouterTestSuite) newSession() *service.SessionGrant {
	w := s.do(http.MethodPost, "/api/v1/sessions", "", nil)
	s.Require().Equal(http.StatusCreated, w.Code)
	var grant service.SessionGrant
	s.decode(w, &grant)
	s.NotEmpty(grant.Secret)
	return &grant
}

// lobby 创建一个两人大厅，返回房主与第二名玩家的令牌
func (s *RouterTestSuite) lobby() (string, string, string) {
	alice, bob := s.newSession(), s.newSession()

	w := s.do(http.MethodPost, "/api/v1/games", alice.Token, &NameRequest{Name: "alice"})
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	var created IntentResponse
	s.decode(w, &created)
	s.Require().Len(created.GameID, 6)

	w = s.do(http.MethodPost, "/api/v1/games/"+created.GameID+"/join", bob.Token, &NameRequest{Name: "bob"})
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	return created.GameID, alice.Token, bob.Token
}

func (s *RouterTestSuite) TestHealth() {
	w := s.do(http.MethodGet, "/health", "", nil)
	s.Equal(http.StatusOK, w.Code)
	var resp map[string]interface{}
	s.decode(w, &resp)
	s.Equal("healthy", resp["status"])

	s.redis.Close()
	w = s.do(http.MethodGet, "/health", "", nil)
	s.Equal(http.StatusServiceUnavailable, w.Code)
	s.decode(w, &resp)
	s.Equal("unhealthy", resp["status"])
	s.Contains(resp["checks"], "redis")
}

func (s *RouterTestSuite) TestSessions() {
	grant := s.newSession()

	w := s.do(http.MethodGet, "/api/v1/sessions/me", grant.Token, nil)
	s.Require().Equal(http.StatusOK, w.Code)
	var info SessionInfo
	s.decode(w, &info)
	s.Equal(grant.SessionID, info.SessionID)
	s.Empty(info.GameID)

	w = s.do(http.MethodPost, "/api/v1/sessions/resume", "", &service.ResumeRequest{SessionID: grant.SessionID, Secret: grant.Secret})
	s.Require().Equal(http.StatusOK, w.Code)
	var resumed service.SessionGrant
	s.decode(w, &resumed)
	s.Equal(grant.SessionID, resumed.SessionID)
	s.Empty(resumed.Secret)

	w = s.do(http.MethodPost, "/api/v1/sessions/resume", "", &service.ResumeRequest{SessionID: grant.SessionID, Secret: "wrong"})
	s.Equal(http.StatusUnauthorized, w.Code)
	s.Equal(errors.ErrAuthentication, s.errorCode(w))

	w = s.do(http.MethodPost, "/api/v1/sessions/resume", "", map[string]string{})
	s.Equal(http.StatusBadRequest, w.Code)

	w = s.do(http.MethodGet, "/api/v1/sessions/me", "", nil)
	s.Equal(http.StatusUnauthorized, w.Code)
	w = s.do(http.MethodGet, "/api/v1/sessions/me", "not-a-token", nil)
	s.Equal(errors.ErrTokenInvalid, s.errorCode(w))
}

func (s *RouterTestSuite) TestLobbyFlow() {
	gameID, alice, bob := s.lobby()

	w := s.do(http.MethodGet, "/api/v1/games?page=1&page_size=10", "", nil)
	s.Require().Equal(http.StatusOK, w.Code)
	var lobbies LobbyListResponse
	s.decode(w, &lobbies)
	s.Require().Len(lobbies.Lobbies, 1)
	s.Equal(gameID, lobbies.Lobbies[0].ID)
	s.Equal("alice", lobbies.Lobbies[0].Host)
	s.Equal(2, lobbies.Lobbies[0].Players)
	s.EqualValues(1, lobbies.Pagination.Total)

	w = s.do(http.MethodPost, "/api/v1/intents", alice, &game.Intent{Kind: game.IntentStartGame})
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	var started IntentResponse
	s.decode(w, &started)
	s.Equal(coup.StateRunning, started.Game.State)

	// 开局后大厅列表为空
	w = s.do(http.MethodGet, "/api/v1/games", "", nil)
	s.decode(w, &lobbies)
	s.Empty(lobbies.Lobbies)

	// 已入座的调用方看得到自己的手牌，旁观者看不到任何暗牌
	w = s.do(http.MethodGet, "/api/v1/games/"+gameID, bob, nil)
	s.Require().Equal(http.StatusOK, w.Code)
	var view coup.GameView
	s.decode(w, &view)
	s.NotZero(view.ViewerID)
	for _, p := range view.Players {
		if p.ID == view.ViewerID {
			s.NotEqual(coup.Unknown, p.Influence[0])
		} else {
			s.Equal(coup.Unknown, p.Influence[0])
		}
	}

	w = s.do(http.MethodGet, "/api/v1/games/"+strings.ToUpper(gameID), "", nil)
	s.Require().Equal(http.StatusOK, w.Code)
	var public coup.GameView
	s.decode(w, &public)
	s.Zero(public.ViewerID)
	for _, p := range public.Players {
		s.Equal(coup.Unknown, p.Influence[0])
	}

	// 非法意图：不是自己的回合
	var turn coup.GameView
	s.decode(s.do(http.MethodGet, "/api/v1/games/"+gameID+"/summary", "", nil), &turn)
	actor, other := alice, bob
	if turn.Turn.PlayerID != started.PlayerID {
		actor, other = bob, alice
	}
	w = s.do(http.MethodPost, "/api/v1/intents", other, &game.Intent{Kind: game.IntentTakeAction, Action: coup.ActionIncome})
	s.Equal(http.StatusConflict, w.Code)
	s.Equal(errors.ErrNotPlayerTurn, s.errorCode(w))

	w = s.do(http.MethodPost, "/api/v1/intents", actor, &game.Intent{Kind: game.IntentTakeAction, Action: coup.ActionIncome})
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())

	w = s.do(http.MethodGet, "/api/v1/games/"+gameID+"/events?after=0&limit=100", "", nil)
	s.Require().Equal(http.StatusOK, w.Code)
	var events []coup.Event
	s.decode(w, &events)
	s.Require().NotEmpty(events)
	var messages []string
	for _, e := range events {
		messages = append(messages, e.Message)
	}
	s.Contains(strings.Join(messages, "\n"), "takes income")

	w = s.do(http.MethodGet, "/api/v1/games/"+gameID+"/events?after="+itoa(events[len(events)-1].ID), "", nil)
	s.decode(w, &events)
	s.Empty(events)
}

func (s *RouterTestSuite) TestSummaryCache() {
	gameID, _, _ := s.lobby()

	// 提交时已写入缓存
	w := s.do(http.MethodGet, "/api/v1/games/"+gameID+"/summary", "", nil)
	s.Require().Equal(http.StatusOK, w.Code)
	s.Equal("HIT", w.Header().Get("X-Cache"))

	s.redis.FlushAll()
	w = s.do(http.MethodGet, "/api/v1/games/"+gameID+"/summary", "", nil)
	s.Require().Equal(http.StatusOK, w.Code)
	s.Equal("MISS", w.Header().Get("X-Cache"))
	var view coup.GameView
	s.decode(w, &view)
	s.Len(view.Players, 2)

	w = s.do(http.MethodGet, "/api/v1/games/"+gameID+"/summary", "", nil)
	s.Equal("HIT", w.Header().Get("X-Cache"))
}

func (s *RouterTestSuite) TestNotFound() {
	for _, path := range []string{
		"/api/v1/games/zzzzzz",
		"/api/v1/games/zzzzzz/summary",
		"/api/v1/games/zzzzzz/events",
		"/api/v1/games/zzzzzz/qrcode",
		"/api/v1/games/bad-id",
	} {
		w := s.do(http.MethodGet, path, "", nil)
		s.Equal(http.StatusNotFound, w.Code, path)
		s.Equal(errors.ErrGameNotFound, s.errorCode(w), path)
	}

	w := s.do(http.MethodPost, "/api/v1/games/zzzzzz/join", s.newSession().Token, nil)
	s.Equal(http.StatusNotFound, w.Code)

	w = s.do(http.MethodGet, "/nope", "", nil)
	s.Equal(http.StatusNotFound, w.Code)
}

func (s *RouterTestSuite) TestQRCode() {
	gameID, _, _ := s.lobby()

	w := s.do(http.MethodGet, "/api/v1/games/"+gameID+"/qrcode?size=128", "", nil)
	s.Require().Equal(http.StatusOK, w.Code)
	s.Equal("image/png", w.Header().Get("Content-Type"))
	s.True(bytes.HasPrefix(w.Body.Bytes(), []byte("\x89PNG")))

	w = s.do(http.MethodGet, "/api/v1/games/"+gameID+"/qrcode?size=99999", "", nil)
	s.Equal(http.StatusBadRequest, w.Code)
}

func (s *RouterTestSuite) TestInvalidRequests() {
	token := s.newSession().Token

	req := httptest.NewRequest(http.MethodPost, "/api/v1/intents", strings.NewReader("{broken"))
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.GetEngine().ServeHTTP(w, req)
	s.Equal(http.StatusBadRequest, w.Code)
	s.Equal(errors.ErrMessageFormat, s.errorCode(w))

	w = s.do(http.MethodPost, "/api/v1/intents", token, &game.Intent{Kind: "dance"})
	s.Equal(http.StatusBadRequest, w.Code)

	w = s.do(http.MethodGet, "/api/v1/games/abcdef/events?after=-1", "", nil)
	s.Equal(http.StatusBadRequest, w.Code)

	w = s.do(http.MethodPost, "/api/v1/games", "", nil)
	s.Equal(http.StatusUnauthorized, w.Code)
}

func (s *RouterTestSuite) TestWebSocketFollowsHTTPJoin() {
	server := httptest.NewServer(s.router.Handler())
	defer server.Close()

	alice, bob := s.newSession(), s.newSession()
	w := s.do(http.MethodPost, "/api/v1/games", alice.Token, &NameRequest{Name: "alice"})
	s.Require().Equal(http.StatusCreated, w.Code)
	var created IntentResponse
	s.decode(w, &created)

	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http")+"/ws", nil)
	s.Require().Error(err)
	s.Equal(http.StatusUnauthorized, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http")+"/ws?token="+bob.Token, nil)
	s.Require().NoError(err)
	defer conn.Close()
	s.waitFor(conn, func(m *ws.Message) bool { return m.Type == ws.MessageTypeConnected })

	w = s.do(http.MethodPost, "/api/v1/games/"+created.GameID+"/join", bob.Token, &NameRequest{Name: "bob"})
	s.Require().Equal(http.StatusOK, w.Code)

	// HTTP 加入后，同一会话的连接被移入对局房间并收到手牌
	s.waitFor(conn, func(m *ws.Message) bool {
		if m.Type != ws.MessageTypeSession {
			return false
		}
		var payload ws.SessionPayload
		s.Require().NoError(json.Unmarshal(m.Data, &payload))
		return payload.GameID == created.GameID
	})
	s.waitFor(conn, func(m *ws.Message) bool { return m.Type == ws.MessageTypeHand })
	s.Equal(1, s.hub.RoomSize(created.GameID))
}

func (s *RouterTestSuite) waitFor(conn *websocket.Conn, match func(m *ws.Message) bool) {
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		_, raw, err := conn.ReadMessage()
		s.Require().NoError(err)
		var msg ws.Message
		s.Require().NoError(json.Unmarshal(raw, &msg))
		if match(&msg) {
			return
		}
	}
}

func TestRouterSuite(t *testing.T) {
	suite.Run(t, new(RouterTestSuite))
}

func TestOpenAPIMissingFile(t *testing.T) {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	registerOpenAPIRoutes(engine)

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/openapi", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/docs/redoc", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `spec-url="/openapi"`)
}

func itoa(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}
