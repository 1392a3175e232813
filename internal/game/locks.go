package game

import "sync"

// lockTable 每个对局一把互斥锁，无人等待时回收
type lockTable struct {
	mu    sync.Mutex
	locks map[string]*gameLock
}

type gameLock struct {
	mu   sync.Mutex
	refs int
}

func newLockTable() *lockTable {
	return &lockTable{locks: make(map[string]*gameLock)}
}

// lock 获取对局锁，返回释放函数
func (t *lockTable) lock(gameID string) func() {
	t.mu.Lock()
	l, ok := t.locks[gameID]
	if !ok {
		l = &gameLock{}
		t.locks[gameID] = l
	}
	l.refs++
	t.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		t.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(t.locks, gameID)
		}
		t.mu.Unlock()
	}
}

// size 当前持有或等待中的对局锁数量
func (t *lockTable) size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.locks)
}
