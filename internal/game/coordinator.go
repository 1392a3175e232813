package game

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/Taiters/coup-clone/internal/coup"
	"github.com/Taiters/coup-clone/internal/errors"
	"github.com/Taiters/coup-clone/internal/logger"
	"github.com/Taiters/coup-clone/internal/repository"
	"github.com/Taiters/coup-clone/internal/utils"
	"go.uber.org/zap"
)

// maxIDAttempts 分配对局ID的最大重试次数
const maxIDAttempts = 16

// Config 协调器配置
type Config struct {
	Store    Store
	Notifier Notifier
	Logger   *zap.Logger
	Rules    coup.Rules
	// ForcedCoupThreshold 金币达到该值只能发动政变，0 表示不限制
	ForcedCoupThreshold int
	IDLength            int
	// NewID 自定义对局ID生成，测试用
	NewID         func() string
	EngineOptions []coup.Option
}

func utcNow() time.Time {
	return time.Now().UTC()
}

// policy 规则快照，热更新时整体替换
type policy struct {
	engine     *coup.Engine
	forcedCoup int
}

// Coordinator 每个玩家意图的唯一入口：加锁、读取、变换、整体提交、推送
type Coordinator struct {
	store    Store
	notifier Notifier
	logger   *zap.Logger
	locks    *lockTable
	newID    func() string
	opts     []coup.Option
	policy   atomic.Pointer[policy]
}

// NewCoordinator 创建协调器
func NewCoordinator(cfg *Config) *Coordinator {
	c := &Coordinator{
		store:    cfg.Store,
		notifier: cfg.Notifier,
		logger:   cfg.Logger,
		locks:    newLockTable(),
		newID:    cfg.NewID,
		// 截止时间以UTC落库，后传入的选项可覆盖时钟
		opts: append([]coup.Option{coup.WithClock(utcNow)}, cfg.EngineOptions...),
	}
	if c.logger == nil {
		c.logger = logger.GetModuleLogger(logger.ModuleGame)
	}
	if c.notifier == nil {
		c.notifier = Notifiers(nil)
	}
	if c.newID == nil {
		length := cfg.IDLength
		c.newID = func() string { return utils.NewGameID(length) }
	}
	c.SetRules(cfg.Rules, cfg.ForcedCoupThreshold)
	return c
}

// SetRules 替换规则，只影响之后处理的意图
func (c *Coordinator) SetRules(rules coup.Rules, forcedCoup int) {
	if forcedCoup < 0 {
		forcedCoup = 0
	}
	c.policy.Store(&policy{
		engine:     coup.NewEngine(rules, c.opts...),
		forcedCoup: forcedCoup,
	})
	c.logger.Info("对局规则已更新",
		zap.Int("min_players", rules.MinPlayers),
		zap.Int("max_players", rules.MaxPlayers),
		zap.Int("starting_coins", rules.StartingCoins),
		zap.Duration("response_window", rules.ResponseWindow),
		zap.Int("forced_coup_threshold", forcedCoup),
	)
}

// Rules 当前规则
func (c *Coordinator) Rules() coup.Rules {
	return c.policy.Load().engine.Rules()
}

// Dispatch 意图分发：校验身份后交给对应的处理函数
func (c *Coordinator) Dispatch(ctx context.Context, caller Caller, in Intent) (*Result, error) {
	switch in.Kind {
	case IntentCreateGame:
		return c.CreateGame(ctx, caller, in.Name)
	case IntentJoinGame:
		return c.JoinGame(ctx, caller, in.GameID, in.Name)
	case IntentLeaveGame:
		return c.LeaveGame(ctx, caller)
	case IntentRestartGame:
		return c.RestartGame(ctx, caller)
	case IntentSetName, IntentStartGame, IntentTakeAction, IntentAcceptAction, IntentChallenge,
		IntentBlock, IntentAcceptBlock, IntentChallengeBlock, IntentReveal, IntentExchange:
		return c.play(ctx, caller, in)
	default:
		return nil, errors.Newf(errors.ErrMessageFormat, "未知的意图: %q", in.Kind)
	}
}

// play 处理已入座玩家在自己对局中的意图
func (c *Coordinator) play(ctx context.Context, caller Caller, in Intent) (*Result, error) {
	if !caller.Seated() {
		return nil, errors.New(errors.ErrPlayerNotInGame, "尚未加入任何对局")
	}
	pid := caller.PlayerID
	return c.mutate(ctx, caller.GameID, pid, string(in.Kind), func(p *policy, g *coup.Game) (*repository.Commit, error) {
		e := p.engine
		var err error
		switch in.Kind {
		case IntentSetName:
			err = e.Rename(g, pid, in.Name)
		case IntentStartGame:
			err = e.Start(g, pid)
		case IntentTakeAction:
			if err = p.checkForcedCoup(g, pid, in.Action); err == nil {
				err = e.TakeAction(g, pid, in.Action, in.TargetID)
			}
		case IntentAcceptAction:
			err = e.AcceptAction(g, pid)
		case IntentChallenge:
			err = e.Challenge(g, pid)
		case IntentBlock:
			err = e.Block(g, pid)
		case IntentAcceptBlock:
			err = e.AcceptBlock(g, pid)
		case IntentChallengeBlock:
			err = e.ChallengeBlock(g, pid)
		case IntentReveal:
			err = e.Reveal(g, pid, in.Influence)
		case IntentExchange:
			err = e.Exchange(g, pid, in.Kept)
		}
		if err != nil {
			return nil, err
		}
		return &repository.Commit{Game: g}, nil
	})
}

// checkForcedCoup 轮到自己且金币达到阈值时只能政变
func (p *policy) checkForcedCoup(g *coup.Game, playerID uint, action coup.ActionKind) error {
	if p.forcedCoup == 0 || g.State != coup.StateRunning || g.Turn.Phase != coup.PhaseStart || g.Turn.PlayerID != playerID {
		return nil
	}
	player := g.Player(playerID)
	if player == nil || player.Coins < p.forcedCoup || action == coup.ActionCoup {
		return nil
	}
	return errors.Newf(errors.ErrForcedCoup, "持有 %d 金币时必须发动政变", player.Coins)
}

// CreateGame 创建对局并让调用方作为房主入座
func (c *Coordinator) CreateGame(ctx context.Context, caller Caller, name string) (*Result, error) {
	if caller.Seated() {
		return nil, errors.Newf(errors.ErrPlayerAlreadyInGame, "已在对局 %s 中", caller.GameID)
	}
	for attempt := 0; attempt < maxIDAttempts; attempt++ {
		res, err := c.createWithID(ctx, caller, c.newID(), name)
		if errors.Is(err, errors.ErrAlreadyExists) {
			c.logger.Debug("对局ID冲突，重试", zap.Int("attempt", attempt+1))
			continue
		}
		return res, err
	}
	return nil, errors.New(errors.ErrAlreadyExists, "无法分配空闲的对局ID")
}

func (c *Coordinator) createWithID(ctx context.Context, caller Caller, id, name string) (*Result, error) {
	unlock := c.locks.lock(id)
	defer unlock()

	exists, err := c.store.Exists(ctx, id)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, errors.Newf(errors.ErrAlreadyExists, "对局ID %s 已被占用", id)
	}

	g, host, err := c.policy.Load().engine.NewGame(id, name)
	if err != nil {
		return nil, err
	}
	commit := &repository.Commit{
		Game:   g,
		Create: true,
		Bind:   &repository.Binding{SessionID: caller.SessionID, Player: host},
	}
	// 玩家ID在落库时分配
	return c.commit(ctx, commit, 0, IntentCreateGame, func(res *Result) {
		res.PlayerID = host.ID
	})
}

// JoinGame 加入大厅中的对局
func (c *Coordinator) JoinGame(ctx context.Context, caller Caller, gameID, name string) (*Result, error) {
	if caller.Seated() {
		return nil, errors.Newf(errors.ErrPlayerAlreadyInGame, "已在对局 %s 中", caller.GameID)
	}
	var joined *coup.Player
	return c.mutate(ctx, gameID, 0, string(IntentJoinGame), func(p *policy, g *coup.Game) (*repository.Commit, error) {
		player, err := p.engine.Join(g, name)
		if err != nil {
			return nil, err
		}
		joined = player
		return &repository.Commit{
			Game: g,
			Bind: &repository.Binding{SessionID: caller.SessionID, Player: player},
		}, nil
	}, func(res *Result) {
		res.PlayerID = joined.ID
	})
}

// LeaveGame 离开当前对局，最后一名玩家离开时删除对局
func (c *Coordinator) LeaveGame(ctx context.Context, caller Caller) (*Result, error) {
	if !caller.Seated() {
		return nil, errors.New(errors.ErrPlayerNotInGame, "尚未加入任何对局")
	}
	pid := caller.PlayerID
	return c.mutate(ctx, caller.GameID, pid, string(IntentLeaveGame), func(p *policy, g *coup.Game) (*repository.Commit, error) {
		removed, err := p.engine.Leave(g, pid)
		if err != nil {
			return nil, err
		}
		commit := &repository.Commit{Game: g, Unbind: []uint{pid}}
		if removed {
			commit.Removed = []uint{pid}
		}
		if !hasPresentPlayers(g) {
			commit.Delete = true
		}
		return commit, nil
	}, func(res *Result) {
		res.PlayerID = 0
	})
}

func hasPresentPlayers(g *coup.Game) bool {
	for _, p := range g.Players {
		if !p.Left {
			return true
		}
	}
	return false
}

// RestartGame 房主在对局结束后重开，已离开的玩家被移除
func (c *Coordinator) RestartGame(ctx context.Context, caller Caller) (*Result, error) {
	if !caller.Seated() {
		return nil, errors.New(errors.ErrPlayerNotInGame, "尚未加入任何对局")
	}
	pid := caller.PlayerID
	return c.mutate(ctx, caller.GameID, pid, string(IntentRestartGame), func(p *policy, g *coup.Game) (*repository.Commit, error) {
		removed, err := p.engine.Restart(g, pid)
		if err != nil {
			return nil, err
		}
		commit := &repository.Commit{Game: g}
		for _, r := range removed {
			commit.Removed = append(commit.Removed, r.ID)
		}
		return commit, nil
	})
}

// Expire 对响应窗口已过期的对局自动补齐缺席的响应
func (c *Coordinator) Expire(ctx context.Context, gameID string) (*Result, error) {
	return c.mutate(ctx, gameID, 0, "expire", func(p *policy, g *coup.Game) (*repository.Commit, error) {
		changed, err := p.engine.Expire(g, p.engine.Now())
		if err != nil || !changed {
			return nil, err
		}
		return &repository.Commit{Game: g}, nil
	})
}

// mutate 在对局锁内读取聚合、应用变换并整体提交；变换失败时聚合直接丢弃
func (c *Coordinator) mutate(
	ctx context.Context,
	gameID string,
	playerID uint,
	intent string,
	fn func(p *policy, g *coup.Game) (*repository.Commit, error),
	after ...func(res *Result),
) (*Result, error) {
	unlock := c.locks.lock(gameID)
	defer unlock()

	g, err := c.store.Load(ctx, gameID)
	if err != nil {
		return nil, err
	}
	commit, err := fn(c.policy.Load(), g)
	if err != nil {
		c.reject(gameID, playerID, intent, err)
		return nil, err
	}
	if commit == nil {
		return &Result{GameID: gameID, PlayerID: playerID, Game: g}, nil
	}
	return c.commit(ctx, commit, playerID, IntentKind(intent), after...)
}

// commit 校验不变量后落库并推送
func (c *Coordinator) commit(ctx context.Context, commit *repository.Commit, playerID uint, intent IntentKind, after ...func(res *Result)) (*Result, error) {
	g := commit.Game
	if !commit.Delete {
		if err := g.CheckIntegrity(); err != nil {
			c.logger.Error("对局数据不变量被破坏，拒绝提交",
				zap.String("game_id", g.ID),
				zap.String("intent", string(intent)),
				zap.Error(err),
			)
			return nil, err
		}
	}
	commit.Events = g.DrainEvents()
	if err := c.store.Commit(ctx, commit); err != nil {
		if !errors.Is(err, errors.ErrAlreadyExists) && !errors.Is(err, errors.ErrPlayerAlreadyInGame) {
			c.logger.Error("提交对局失败",
				zap.String("game_id", g.ID),
				zap.String("intent", string(intent)),
				zap.Error(err),
			)
		}
		return nil, err
	}

	res := &Result{
		GameID:   g.ID,
		PlayerID: playerID,
		Events:   commit.Events,
		Deleted:  commit.Delete,
	}
	if !commit.Delete {
		res.Game = g
	}
	for _, fn := range after {
		fn(res)
	}

	logger.LogGameEvent(string(intent), g.ID,
		zap.Uint("player_id", res.PlayerID),
		zap.String("state", string(g.State)),
		zap.String("phase", string(g.Turn.Phase)),
		zap.Int("events", len(commit.Events)),
	)
	c.publish(ctx, commit, res)
	return res, nil
}

func (c *Coordinator) publish(ctx context.Context, commit *repository.Commit, res *Result) {
	u := &Update{
		GameID:   res.GameID,
		Events:   res.Events,
		Deleted:  res.Deleted,
		Detached: append(append([]uint(nil), commit.Removed...), commit.Unbind...),
	}
	if res.Game != nil {
		u.Game = res.Game.Clone()
	}
	if err := c.notifier.Notify(ctx, u); err != nil {
		c.logger.Warn("推送对局变更失败", zap.String("game_id", res.GameID), zap.Error(err))
	}
}

// reject 记录被拒绝的意图；牌堆耗尽属于数据错误，按严重错误记录
func (c *Coordinator) reject(gameID string, playerID uint, intent string, err error) {
	fields := []zap.Field{
		zap.String("game_id", gameID),
		zap.Uint("player_id", playerID),
		zap.String("intent", intent),
		zap.String("kind", errors.Kind(err)),
		zap.Error(err),
	}
	if errors.IsCritical(err) {
		if appErr, ok := errors.As(err); ok {
			fields = append(fields, zap.String("stack", appErr.GetStack()))
		}
		c.logger.Error("意图处理出现严重错误", fields...)
		return
	}
	c.logger.Debug("意图被拒绝", fields...)
}

// Snapshot 读取对局当前状态，不加锁
func (c *Coordinator) Snapshot(ctx context.Context, gameID string) (*coup.Game, error) {
	return c.store.Load(ctx, gameID)
}

// Events 读取对局日志
func (c *Coordinator) Events(ctx context.Context, gameID string, afterID uint, limit int) ([]coup.Event, error) {
	return c.store.Events(ctx, gameID, afterID, limit)
}

// ListLobbies 分页列出大厅中的对局
func (c *Coordinator) ListLobbies(ctx context.Context, p *repository.Pagination) ([]repository.LobbySummary, error) {
	return c.store.ListLobbies(ctx, p)
}

// SweepExpired 处理所有响应窗口已过期的对局，返回处理数量
func (c *Coordinator) SweepExpired(ctx context.Context) (int, error) {
	now := c.policy.Load().engine.Now()
	ids, err := c.store.ExpiredDeadlines(ctx, now)
	if err != nil {
		return 0, err
	}
	swept := 0
	for _, id := range ids {
		res, err := c.Expire(ctx, id)
		if err != nil {
			c.logger.Warn("处理超时回合失败",
				zap.String("game_id", id),
				zap.Bool("retryable", errors.IsRetryable(err)),
				zap.Error(err))
			continue
		}
		if res != nil && len(res.Events) > 0 {
			swept++
		}
	}
	return swept, nil
}

// StartSweeper 启动超时回合扫描任务
func (c *Coordinator) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				c.logger.Info("停止超时回合扫描任务")
				return
			case <-ticker.C:
				if n, err := c.SweepExpired(ctx); err != nil {
					c.logger.Error("扫描超时回合失败", zap.Error(err))
				} else if n > 0 {
					c.logger.Debug("已处理超时回合", zap.Int("games", n))
				}
			}
		}
	}()
}
