package game

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Taiters/coup-clone/internal/coup"
	"github.com/Taiters/coup-clone/internal/errors"
	"github.com/Taiters/coup-clone/internal/models"
	"github.com/Taiters/coup-clone/internal/repository"
)

// MemoryStore 内存存储（用于测试与 database.driver=memory），同时保存会话
type MemoryStore struct {
	mu           sync.RWMutex
	games        map[string]*coup.Game
	events       map[string][]coup.Event
	sessions     map[string]*models.Session
	nextPlayerID uint
	nextEventID  uint
	now          func() time.Time
}

// NewMemoryStore 创建内存存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		games:    make(map[string]*coup.Game),
		events:   make(map[string][]coup.Event),
		sessions: make(map[string]*models.Session),
		now:      time.Now,
	}
}

// Load 返回深拷贝，调用方的修改在提交前不可见
func (s *MemoryStore) Load(ctx context.Context, id string) (*coup.Game, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g, ok := s.games[id]
	if !ok {
		return nil, errors.Newf(errors.ErrGameNotFound, "对局 %s 不存在", id)
	}
	return g.Clone(), nil
}

// Exists 对局ID是否已被占用
func (s *MemoryStore) Exists(ctx context.Context, id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.games[id]
	return ok, nil
}

// Commit 校验通过后一次性应用全部写入
func (s *MemoryStore) Commit(ctx context.Context, c *repository.Commit) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := c.Game.ID
	if c.Delete {
		delete(s.games, id)
		delete(s.events, id)
		for _, session := range s.sessions {
			if session.GameID != nil && *session.GameID == id {
				session.PlayerID, session.GameID = nil, nil
			}
		}
		return nil
	}

	// 先做全部校验，失败时不留下任何修改
	if _, exists := s.games[id]; c.Create && exists {
		return errors.Newf(errors.ErrAlreadyExists, "对局ID %s 已被占用", id)
	}
	var bound *models.Session
	if c.Bind != nil {
		session, ok := s.sessions[c.Bind.SessionID]
		if !ok {
			return errors.Newf(errors.ErrSessionNotFound, "会话 %s 不存在", c.Bind.SessionID)
		}
		if session.PlayerID != nil {
			return errors.Newf(errors.ErrPlayerAlreadyInGame, "会话 %s 已在其他对局中", c.Bind.SessionID)
		}
		bound = session
	}

	s.unbind(append(append([]uint(nil), c.Removed...), c.Unbind...))
	for _, p := range c.Game.Players {
		if p.ID == 0 {
			s.nextPlayerID++
			p.ID = s.nextPlayerID
		}
	}
	for i := range c.Events {
		s.nextEventID++
		c.Events[i].ID = s.nextEventID
		if c.Events[i].CreatedAt.IsZero() {
			c.Events[i].CreatedAt = s.now()
		}
		s.events[id] = append(s.events[id], c.Events[i])
	}
	if bound != nil {
		pid, gid := c.Bind.Player.ID, id
		bound.PlayerID, bound.GameID = &pid, &gid
	}
	s.games[id] = c.Game.Clone()
	s.games[id].DrainEvents()
	return nil
}

func (s *MemoryStore) unbind(playerIDs []uint) {
	if len(playerIDs) == 0 {
		return
	}
	drop := make(map[uint]bool, len(playerIDs))
	for _, id := range playerIDs {
		drop[id] = true
	}
	for _, session := range s.sessions {
		if session.PlayerID != nil && drop[*session.PlayerID] {
			session.PlayerID, session.GameID = nil, nil
		}
	}
}

// ExpiredDeadlines 响应窗口已过期的进行中对局
func (s *MemoryStore) ExpiredDeadlines(ctx context.Context, now time.Time) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []string
	for id, g := range s.games {
		if g.State == coup.StateRunning && g.Turn.Deadline != nil && !g.Turn.Deadline.After(now) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// Events 按ID升序返回 afterID 之后的日志
func (s *MemoryStore) Events(ctx context.Context, gameID string, afterID uint, limit int) ([]coup.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var events []coup.Event
	for _, ev := range s.events[gameID] {
		if ev.ID <= afterID {
			continue
		}
		events = append(events, ev)
		if limit > 0 && len(events) == limit {
			break
		}
	}
	return events, nil
}

// ListLobbies 分页列出尚在大厅的对局
func (s *MemoryStore) ListLobbies(ctx context.Context, p *repository.Pagination) ([]repository.LobbySummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var all []repository.LobbySummary
	for id, g := range s.games {
		if g.State != coup.StateLobby {
			continue
		}
		summary := repository.LobbySummary{ID: id, Players: len(g.Players)}
		if host := g.Players.Host(); host != nil {
			summary.Host = host.Name
		}
		all = append(all, summary)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })

	p.Total = int64(len(all))
	start, end := p.Window(len(all))
	return append([]repository.LobbySummary{}, all[start:end]...), nil
}

// Create 创建会话
func (s *MemoryStore) Create(ctx context.Context, session *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[session.ID]; exists {
		return errors.Newf(errors.ErrAlreadyExists, "会话 %s 已存在", session.ID)
	}
	now := s.now()
	session.CreatedAt, session.UpdatedAt = now, now
	cp := *session
	s.sessions[session.ID] = &cp
	return nil
}

// FindByID 根据ID查找会话
func (s *MemoryStore) FindByID(ctx context.Context, id string) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[id]
	if !ok {
		return nil, errors.Newf(errors.ErrSessionNotFound, "会话 %s 不存在", id)
	}
	cp := *session
	return &cp, nil
}

// Touch 刷新最后活跃时间
func (s *MemoryStore) Touch(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok {
		return errors.Newf(errors.ErrSessionNotFound, "会话 %s 不存在", id)
	}
	session.LastSeenAt = at
	session.UpdatedAt = s.now()
	return nil
}

// DeleteIdle 删除长时间未活跃且未入座的会话
func (s *MemoryStore) DeleteIdle(ctx context.Context, idleBefore time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, session := range s.sessions {
		if session.PlayerID == nil && session.LastSeenAt.Before(idleBefore) {
			delete(s.sessions, id)
			n++
		}
	}
	return n, nil
}
