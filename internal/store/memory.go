package store

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/Createyouracccount/last-mike/internal/agent"
)

// Memory keeps sessions in process. Sessions are stored encoded so callers
// never share a *Session with the store, matching the Redis behaviour.
type Memory struct {
	mu       sync.Mutex
	ttl      time.Duration
	now      func() time.Time
	sessions map[string]memEntry
}

type memEntry struct {
	data    []byte
	expires time.Time
}

// NewMemory returns an in-process store. A zero ttl never expires sessions.
func NewMemory(ttl time.Duration) *Memory {
	return &Memory{ttl: ttl, now: time.Now, sessions: make(map[string]memEntry)}
}

func (m *Memory) Get(ctx context.Context, id string) (*agent.Session, error) {
	m.mu.Lock()
	e, ok := m.sessions[id]
	if ok && m.expired(e) {
		delete(m.sessions, id)
		ok = false
	}
	m.mu.Unlock()
	if !ok {
		return nil, agent.ErrSessionNotFound
	}
	return decode(e.data)
}

func (m *Memory) Save(ctx context.Context, s *agent.Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	e := memEntry{data: data}
	if m.ttl > 0 {
		e.expires = m.now().Add(m.ttl)
	}
	m.mu.Lock()
	m.sessions[s.ID] = e
	m.mu.Unlock()
	return nil
}

func (m *Memory) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
	return nil
}

// Len counts live sessions.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, e := range m.sessions {
		if m.expired(e) {
			delete(m.sessions, id)
			continue
		}
		n++
	}
	return n
}

func (m *Memory) expired(e memEntry) bool {
	return !e.expires.IsZero() && m.now().After(e.expires)
}

func decode(data []byte) (*agent.Session, error) {
	var s agent.Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}
