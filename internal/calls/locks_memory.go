package calls

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryLocks is a process-local LockTable.
type MemoryLocks struct {
	mu     sync.Mutex
	ttl    time.Duration
	byDest map[string]Lock
	byCall map[string]string
	// ended holds call ids whose terminal status arrived before Bind.
	ended map[string]time.Time

	now func() time.Time
}

func NewMemoryLocks(ttl time.Duration) *MemoryLocks {
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	return &MemoryLocks{
		ttl:    ttl,
		byDest: map[string]Lock{},
		byCall: map[string]string{},
		ended:  map[string]time.Time{},
		now:    time.Now,
	}
}

func (m *MemoryLocks) Reserve(_ context.Context, dest string) (string, error) {
	if dest == "" {
		return "", ErrDestinationRequired
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if cur, ok := m.byDest[dest]; ok {
		if now.Before(cur.ExpiresAt) {
			return "", ErrDuplicateCallInProgress
		}
		m.dropLocked(cur)
	}
	l := Lock{Destination: dest, Token: uuid.NewString(), AcquiredAt: now, ExpiresAt: now.Add(m.ttl)}
	m.byDest[dest] = l
	return l.Token, nil
}

func (m *MemoryLocks) Bind(_ context.Context, dest, token, callID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.byDest[dest]
	if !ok || cur.Token != token || !m.now().Before(cur.ExpiresAt) {
		return ErrLockNotHeld
	}
	if at, ended := m.ended[callID]; ended {
		delete(m.ended, callID)
		if m.now().Before(at.Add(endedTTL)) {
			m.dropLocked(cur)
			return ErrCallEnded
		}
	}
	if cur.CallID != "" {
		delete(m.byCall, cur.CallID)
	}
	cur.CallID = callID
	m.byDest[dest] = cur
	m.byCall[callID] = dest
	return nil
}

func (m *MemoryLocks) Release(_ context.Context, dest, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cur, ok := m.byDest[dest]; ok && cur.Token == token {
		m.dropLocked(cur)
	}
	return nil
}

func (m *MemoryLocks) ReleaseCall(_ context.Context, callID string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	dest, ok := m.byCall[callID]
	if !ok {
		m.rememberEndedLocked(callID)
		return "", false, nil
	}
	delete(m.byCall, callID)
	if cur, ok := m.byDest[dest]; ok && cur.CallID == callID {
		delete(m.byDest, dest)
	}
	return dest, true, nil
}

func (m *MemoryLocks) Active(_ context.Context) ([]Lock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	out := make([]Lock, 0, len(m.byDest))
	for _, l := range m.byDest {
		if !now.Before(l.ExpiresAt) {
			m.dropLocked(l)
			continue
		}
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AcquiredAt.Before(out[j].AcquiredAt) })
	return out, nil
}

func (m *MemoryLocks) rememberEndedLocked(callID string) {
	if callID == "" {
		return
	}
	now := m.now()
	for id, at := range m.ended {
		if !now.Before(at.Add(endedTTL)) {
			delete(m.ended, id)
		}
	}
	m.ended[callID] = now
}

func (m *MemoryLocks) dropLocked(l Lock) {
	delete(m.byDest, l.Destination)
	if l.CallID != "" {
		delete(m.byCall, l.CallID)
	}
}
