package game

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Taiters/coup-clone/internal/coup"
	"github.com/Taiters/coup-clone/internal/errors"
	"github.com/Taiters/coup-clone/internal/models"
	"github.com/Taiters/coup-clone/internal/repository"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"
)

// recorder 记录收到的推送
type recorder struct {
	mu      sync.Mutex
	updates []*Update
}

func (r *recorder) Notify(ctx context.Context, u *Update) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, u)
	return nil
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.updates)
}

func (r *recorder) last() *Update {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.updates) == 0 {
		return nil
	}
	return r.updates[len(r.updates)-1]
}

// CoordinatorTestSuite 协调器测试套件
type CoordinatorTestSuite struct {
	suite.Suite
	ctx      context.Context
	now      time.Time
	store    *MemoryStore
	notified *recorder
	ids      []string
	coord    *Coordinator
}

func (s *CoordinatorTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.now = time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	s.store = NewMemoryStore()
	s.store.now = func() time.Time { return s.now }
	s.notified = &recorder{}
	s.ids = nil
	s.coord = NewCoordinator(&Config{
		Store:               s.store,
		Notifier:            s.notified,
		Logger:              zap.NewNop(),
		Rules:               coup.DefaultRules(),
		ForcedCoupThreshold: 10,
		NewID:               s.nextID,
		EngineOptions: []coup.Option{coup.WithClock(func() time.Time {
			return s.now
		})},
	})
}

func (s *CoordinatorTestSuite) nextID() string {
	if len(s.ids) == 0 {
		return fmt.Sprintf("g%05d", s.notified.count())
	}
	id := s.ids[0]
	s.ids = s.ids[1:]
	return id
}

// session 创建一个未入座的会话
func (s *CoordinatorTestSuite) session(id string) Caller {
	s.Require().NoError(s.store.Create(s.ctx, &models.Session{ID: id, SecretHash: "x", LastSeenAt: s.now}))
	return Caller{SessionID: id}
}

// table 创建对局并让其余会话加入，返回按座位排列的调用方
func (s *CoordinatorTestSuite) table(names ...string) []Caller {
	host := s.session("s-" + names[0])
	res, err := s.coord.CreateGame(s.ctx, host, names[0])
	s.Require().NoError(err)
	callers := []Caller{res.Caller(host.SessionID)}
	for _, name := range names[1:] {
		c := s.session("s-" + name)
		res, err := s.coord.JoinGame(s.ctx, c, callers[0].GameID, name)
		s.Require().NoError(err)
		callers = append(callers, res.Caller(c.SessionID))
	}
	return callers
}

// running 创建并开始对局
func (s *CoordinatorTestSuite) running(names ...string) []Caller {
	callers := s.table(names...)
	_, err := s.coord.Dispatch(s.ctx, callers[0], Intent{Kind: IntentStartGame})
	s.Require().NoError(err)
	return callers
}

// patch 绕过规则直接修改存储中的对局
func (s *CoordinatorTestSuite) patch(gameID string, fn func(g *coup.Game)) {
	g, err := s.store.Load(s.ctx, gameID)
	s.Require().NoError(err)
	fn(g)
	s.Require().NoError(s.store.Commit(s.ctx, &repository.Commit{Game: g}))
}

func (s *CoordinatorTestSuite) snapshot(gameID string) *coup.Game {
	g, err := s.coord.Snapshot(s.ctx, gameID)
	s.Require().NoError(err)
	return g
}

func (s *CoordinatorTestSuite) requireCode(err error, code errors.ErrorCode) {
	s.Require().Error(err)
	s.Require().Equal(code, errors.GetCode(err), err.Error())
}

func (s *CoordinatorTestSuite) TestCreateGameSeatsHost() {
	host := s.session("s1")
	s.ids = []string{"abcdef"}

	res, err := s.coord.CreateGame(s.ctx, host, "alice")
	s.Require().NoError(err)
	s.Equal("abcdef", res.GameID)
	s.NotZero(res.PlayerID)
	s.Require().NotNil(res.Game)
	s.Equal(coup.StateLobby, res.Game.State)
	s.True(res.Game.Player(res.PlayerID).Host)
	s.Require().Len(res.Events, 1)
	s.Equal("alice joined the game", res.Events[0].Message)

	session, err := s.store.FindByID(s.ctx, "s1")
	s.Require().NoError(err)
	s.Require().True(session.Seated())
	s.Equal(res.PlayerID, *session.PlayerID)

	view := res.View()
	s.Require().NotNil(view)
	s.Equal(1, s.notified.count())

	_, err = s.coord.CreateGame(s.ctx, res.Caller("s1"), "again")
	s.requireCode(err, errors.ErrPlayerAlreadyInGame)
}

func (s *CoordinatorTestSuite) TestCreateGameRetriesOnCollision() {
	s.ids = []string{"aaaaaa", "aaaaaa", "bbbbbb"}
	first, err := s.coord.CreateGame(s.ctx, s.session("s1"), "alice")
	s.Require().NoError(err)
	second, err := s.coord.CreateGame(s.ctx, s.session("s2"), "bob")
	s.Require().NoError(err)

	s.Equal("aaaaaa", first.GameID)
	s.Equal("bbbbbb", second.GameID)
}

func (s *CoordinatorTestSuite) TestJoinRejections() {
	_, err := s.coord.JoinGame(s.ctx, s.session("lost"), "zzzzzz", "")
	s.requireCode(err, errors.ErrGameNotFound)

	callers := s.running("alice", "bob")
	_, err = s.coord.JoinGame(s.ctx, s.session("late"), callers[0].GameID, "carol")
	s.requireCode(err, errors.ErrGameAlreadyStarted)

	_, err = s.coord.JoinGame(s.ctx, callers[1], callers[0].GameID, "bob twice")
	s.requireCode(err, errors.ErrPlayerAlreadyInGame)
}

func (s *CoordinatorTestSuite) TestJoinDefaultName() {
	callers := s.table("alice")
	res, err := s.coord.JoinGame(s.ctx, s.session("s2"), callers[0].GameID, "  ")
	s.Require().NoError(err)
	s.Equal("Player 2", res.Game.Player(res.PlayerID).Name)
}

func (s *CoordinatorTestSuite) TestIncomeAdvancesTurn() {
	callers := s.running("alice", "bob")
	before := s.snapshot(callers[0].GameID)
	res, err := s.coord.Dispatch(s.ctx, callers[0], Intent{Kind: IntentTakeAction, Action: coup.ActionIncome})
	s.Require().NoError(err)

	g := res.Game
	s.Equal(3, g.Player(callers[0].PlayerID).Coins)
	s.Equal(callers[1].PlayerID, g.Turn.PlayerID)
	s.Equal(coup.PhaseStart, g.Turn.Phase)
	s.Equal(before.Deck, s.snapshot(callers[0].GameID).Deck)
}

func (s *CoordinatorTestSuite) TestRejectedIntentChangesNothing() {
	callers := s.running("alice", "bob")
	before := s.snapshot(callers[0].GameID)
	notified := s.notified.count()

	_, err := s.coord.Dispatch(s.ctx, callers[1], Intent{Kind: IntentTakeAction, Action: coup.ActionIncome})
	s.requireCode(err, errors.ErrNotPlayerTurn)
	_, err = s.coord.Dispatch(s.ctx, callers[0], Intent{Kind: IntentChallenge})
	s.requireCode(err, errors.ErrInvalidTurnState)
	_, err = s.coord.Dispatch(s.ctx, callers[0], Intent{Kind: IntentTakeAction, Action: "bribe"})
	s.requireCode(err, errors.ErrUnsupportedAction)

	s.Equal(before, s.snapshot(callers[0].GameID))
	s.Equal(notified, s.notified.count())
}

func (s *CoordinatorTestSuite) TestUnseatedAndUnknownIntents() {
	_, err := s.coord.Dispatch(s.ctx, s.session("s1"), Intent{Kind: IntentAcceptAction})
	s.requireCode(err, errors.ErrPlayerNotInGame)

	_, err = s.coord.Dispatch(s.ctx, Caller{SessionID: "s1"}, Intent{Kind: "dance"})
	s.requireCode(err, errors.ErrMessageFormat)
}

func (s *CoordinatorTestSuite) TestForcedCoup() {
	callers := s.running("alice", "bob")
	gameID := callers[0].GameID
	s.patch(gameID, func(g *coup.Game) {
		g.Player(callers[0].PlayerID).Coins = 10
	})

	_, err := s.coord.Dispatch(s.ctx, callers[0], Intent{Kind: IntentTakeAction, Action: coup.ActionTax})
	s.requireCode(err, errors.ErrForcedCoup)

	res, err := s.coord.Dispatch(s.ctx, callers[0], Intent{
		Kind:     IntentTakeAction,
		Action:   coup.ActionCoup,
		TargetID: callers[1].PlayerID,
	})
	s.Require().NoError(err)
	s.Equal(coup.PhaseTargetRevealing, res.Game.Turn.Phase)
	s.Equal(3, res.Game.Player(callers[0].PlayerID).Coins)
}

func (s *CoordinatorTestSuite) TestForcedCoupDisabled() {
	s.coord.SetRules(coup.DefaultRules(), 0)
	callers := s.running("alice", "bob")
	s.patch(callers[0].GameID, func(g *coup.Game) {
		g.Player(callers[0].PlayerID).Coins = 12
	})

	_, err := s.coord.Dispatch(s.ctx, callers[0], Intent{Kind: IntentTakeAction, Action: coup.ActionIncome})
	s.NoError(err)
}

func (s *CoordinatorTestSuite) TestChallengeAndRevealFlow() {
	callers := s.running("alice", "bob")
	gameID := callers[0].GameID
	alice, bob := callers[0], callers[1]

	_, err := s.coord.Dispatch(s.ctx, alice, Intent{Kind: IntentTakeAction, Action: coup.ActionTax})
	s.Require().NoError(err)
	_, err = s.coord.Dispatch(s.ctx, bob, Intent{Kind: IntentChallenge})
	s.Require().NoError(err)

	g := s.snapshot(gameID)
	s.Equal(coup.PhaseChallenged, g.Turn.Phase)
	hand := g.Player(alice.PlayerID).Hand()

	// 出错的人亮牌会被拒绝
	_, err = s.coord.Dispatch(s.ctx, bob, Intent{Kind: IntentReveal, Influence: g.Player(bob.PlayerID).Hand()[0]})
	s.requireCode(err, errors.ErrNotPlayerTurn)

	res, err := s.coord.Dispatch(s.ctx, alice, Intent{Kind: IntentReveal, Influence: hand[0]})
	s.Require().NoError(err)
	if hand[0] == coup.Duke {
		s.Equal(coup.PhaseChallengerRevealing, res.Game.Turn.Phase)
		s.Equal(5, res.Game.Player(alice.PlayerID).Coins)
	} else {
		s.Equal(coup.PhaseStart, res.Game.Turn.Phase)
		s.Equal(bob.PlayerID, res.Game.Turn.PlayerID)
		s.Equal(2, res.Game.Player(alice.PlayerID).Coins)
	}
	s.NoError(res.Game.CheckIntegrity())
}

func (s *CoordinatorTestSuite) TestLeaveLobbyLastPlayerDeletesGame() {
	callers := s.table("alice")
	res, err := s.coord.LeaveGame(s.ctx, callers[0])
	s.Require().NoError(err)
	s.True(res.Deleted)
	s.Nil(res.Game)
	s.Zero(res.PlayerID)
	s.False(res.Caller("s-alice").Seated())

	_, err = s.store.Load(s.ctx, callers[0].GameID)
	s.requireCode(err, errors.ErrGameNotFound)
	session, err := s.store.FindByID(s.ctx, "s-alice")
	s.Require().NoError(err)
	s.False(session.Seated())
	s.True(s.notified.last().Deleted)
}

func (s *CoordinatorTestSuite) TestLeaveRunningThenRestart() {
	callers := s.running("alice", "bob", "carol")
	gameID := callers[0].GameID

	res, err := s.coord.LeaveGame(s.ctx, callers[1])
	s.Require().NoError(err)
	s.False(res.Deleted)
	s.Equal(coup.StateRunning, res.Game.State)
	s.True(res.Game.Player(callers[1].PlayerID).Left)
	s.Contains(s.notified.last().Detached, callers[1].PlayerID)

	session, err := s.store.FindByID(s.ctx, "s-bob")
	s.Require().NoError(err)
	s.False(session.Seated(), "离开后会话可以加入其他对局")

	res, err = s.coord.LeaveGame(s.ctx, callers[2])
	s.Require().NoError(err)
	s.Equal(coup.StateFinished, res.Game.State)
	s.Equal(callers[0].PlayerID, res.Game.WinnerID)

	res, err = s.coord.RestartGame(s.ctx, callers[0])
	s.Require().NoError(err)
	s.Equal(coup.StateLobby, res.Game.State)
	s.Len(res.Game.Players, 1)
	s.NoError(res.Game.CheckIntegrity())

	g := s.snapshot(gameID)
	s.Len(g.Players, 1)
	s.Equal(2, g.Players[0].Coins)
}

func (s *CoordinatorTestSuite) TestSweepExpiredDeadlines() {
	callers := s.running("alice", "bob")
	gameID := callers[0].GameID
	_, err := s.coord.Dispatch(s.ctx, callers[0], Intent{Kind: IntentTakeAction, Action: coup.ActionForeignAid})
	s.Require().NoError(err)

	n, err := s.coord.SweepExpired(s.ctx)
	s.Require().NoError(err)
	s.Zero(n, "窗口未到期")

	s.now = s.now.Add(11 * time.Second)
	n, err = s.coord.SweepExpired(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, n)

	g := s.snapshot(gameID)
	s.Equal(4, g.Player(callers[0].PlayerID).Coins)
	s.Equal(coup.PhaseStart, g.Turn.Phase)
	s.Equal(callers[1].PlayerID, g.Turn.PlayerID)

	events, err := s.coord.Events(s.ctx, gameID, 0, 0)
	s.Require().NoError(err)
	s.Contains(eventMessages(events), "No response in time")
}

func (s *CoordinatorTestSuite) TestSetNameAndLobbies() {
	callers := s.table("alice", "bob")
	_, err := s.coord.Dispatch(s.ctx, callers[1], Intent{Kind: IntentSetName, Name: "robert"})
	s.Require().NoError(err)
	_, err = s.coord.Dispatch(s.ctx, callers[1], Intent{Kind: IntentSetName, Name: ""})
	s.requireCode(err, errors.ErrInvalidParam)

	lobbies, err := s.coord.ListLobbies(s.ctx, repository.NewPagination(1, 10))
	s.Require().NoError(err)
	s.Require().Len(lobbies, 1)
	s.Equal(repository.LobbySummary{ID: callers[0].GameID, Host: "alice", Players: 2}, lobbies[0])

	_, err = s.coord.Dispatch(s.ctx, callers[1], Intent{Kind: IntentStartGame})
	s.requireCode(err, errors.ErrNotHost)
}

func eventMessages(events []coup.Event) []string {
	messages := make([]string, len(events))
	for i, ev := range events {
		messages[i] = ev.Message
	}
	return messages
}

func TestCoordinatorSuite(t *testing.T) {
	suite.Run(t, new(CoordinatorTestSuite))
}
