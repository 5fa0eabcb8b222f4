// Package lock はドキュメント単位の短期ロックを提供する。
// 署名依頼の二重送信を防ぐために使う。
package lock

import (
	"context"
	"sync"
	"time"
)

// Locker はキー単位の排他ロックのインターフェース。
type Locker interface {
	// TryLock はロックの取得を試みる。取得できた場合はokがtrueになり、
	// 処理後にunlockを呼び出して解放する。既に保持されている場合はokがfalseになる。
	// ロックはttl経過後に自動的に失効する。
	TryLock(ctx context.Context, key string) (unlock func(), ok bool, err error)
}

// MemoryLocker はプロセス内のロック。単一インスタンス構成で使う。
type MemoryLocker struct {
	mu      sync.Mutex
	ttl     time.Duration
	holders map[string]memoryLease
	seq     uint64
	now     func() time.Time
}

type memoryLease struct {
	expiresAt time.Time
	seq       uint64
}

// NewMemoryLocker はMemoryLockerを生成する。
func NewMemoryLocker(ttl time.Duration) *MemoryLocker {
	return &MemoryLocker{
		ttl:     ttl,
		holders: make(map[string]memoryLease),
		now:     time.Now,
	}
}

// TryLock はロックの取得を試みる。失効済みのロックは上書きする。
func (l *MemoryLocker) TryLock(_ context.Context, key string) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if lease, held := l.holders[key]; held && now.Before(lease.expiresAt) {
		return nil, false, nil
	}

	l.seq++
	lease := memoryLease{expiresAt: now.Add(l.ttl), seq: l.seq}
	l.holders[key] = lease

	unlock := func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		// 失効後に別の保持者が取得したロックは解放しない
		if current, ok := l.holders[key]; ok && current.seq == lease.seq {
			delete(l.holders, key)
		}
	}
	return unlock, true, nil
}
