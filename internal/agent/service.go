package agent

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Result is what a caller hands back to the user after a turn.
type Result struct {
	SessionID string `json:"id"`
	State     State  `json:"state"`
	Message   string `json:"message"`
	Ended     bool   `json:"ended"`
}

const (
	defaultStoreTimeout   = 2 * time.Second
	defaultArchiveTimeout = 10 * time.Second
)

// Service runs turns against stored sessions. Turns for the same session id
// are serialized; different sessions proceed in parallel.
type Service struct {
	counselor *Counselor
	store     SessionStore
	archiver  Archiver
	locks     *keyedMutex

	storeTimeout   time.Duration
	archiveTimeout time.Duration
}

func NewService(c *Counselor, store SessionStore) *Service {
	return &Service{
		counselor:      c,
		store:          store,
		locks:          newKeyedMutex(),
		storeTimeout:   defaultStoreTimeout,
		archiveTimeout: defaultArchiveTimeout,
	}
}

// WithTimeouts bounds each store call and each archive upload. Non-positive
// values keep the defaults.
func (s *Service) WithTimeouts(store, archive time.Duration) *Service {
	if store > 0 {
		s.storeTimeout = store
	}
	if archive > 0 {
		s.archiveTimeout = archive
	}
	return s
}

// WithArchiver keeps transcripts of sessions that end.
func (s *Service) WithArchiver(a Archiver) *Service {
	s.archiver = a
	return s
}

// Start opens a session and returns the greeting. An empty id gets a fresh
// one; an id that is already active returns its current state.
func (s *Service) Start(ctx context.Context, id string) (Result, error) {
	if id == "" {
		id = uuid.NewString()
	}
	unlock := s.locks.lock(id)
	defer unlock()

	existing, err := s.get(ctx, id)
	switch {
	case err == nil:
		return Result{SessionID: id, State: existing.State, Message: existing.LastAssistantMessage(), Ended: existing.Done()}, nil
	case !errors.Is(err, ErrSessionNotFound):
		return Result{}, err
	}

	sess := NewSession(id, s.counselor.now())
	msg := s.counselor.Greet(sess)
	if err := s.save(ctx, sess); err != nil {
		return Result{}, err
	}
	log.Printf("[%s] session started", id)
	return Result{SessionID: id, State: sess.State, Message: msg}, nil
}

// Turn processes one final utterance for the session.
func (s *Service) Turn(ctx context.Context, id, text string) (Result, error) {
	unlock := s.locks.lock(id)
	defer unlock()

	sess, err := s.get(ctx, id)
	if err != nil {
		return Result{}, err
	}
	state, msg := s.counselor.ProcessTurn(ctx, sess, text)
	res := Result{SessionID: id, State: state, Message: msg, Ended: sess.Done()}
	if sess.Done() {
		s.finish(ctx, sess)
		return res, nil
	}
	if err := s.save(ctx, sess); err != nil {
		return Result{}, err
	}
	return res, nil
}

// End closes a session on behalf of the caller (hang-up, client disconnect).
func (s *Service) End(ctx context.Context, id string) error {
	unlock := s.locks.lock(id)
	defer unlock()

	sess, err := s.get(ctx, id)
	if err != nil {
		return err
	}
	s.finish(ctx, sess)
	return nil
}

// Get returns a snapshot of an active session.
func (s *Service) Get(ctx context.Context, id string) (*Session, error) {
	return s.get(ctx, id)
}

// finish runs under the session lock, so the archive upload is bounded.
func (s *Service) finish(ctx context.Context, sess *Session) {
	if s.archiver != nil {
		actx, cancel := context.WithTimeout(ctx, s.archiveTimeout)
		if err := s.archiver.Archive(actx, sess); err != nil {
			log.Printf("[%s] archive: %v", sess.ID, err)
		}
		cancel()
	}
	dctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	if err := s.store.Delete(dctx, sess.ID); err != nil {
		log.Printf("[%s] delete: %v", sess.ID, err)
	}
	log.Printf("[%s] session ended state=%s turns=%d", sess.ID, sess.State, sess.TurnCount)
}

func (s *Service) get(ctx context.Context, id string) (*Session, error) {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	return s.store.Get(ctx, id)
}

func (s *Service) save(ctx context.Context, sess *Session) error {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	return s.store.Save(ctx, sess)
}

// keyedMutex hands out one mutex per key and forgets it once unused.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*refMutex)}
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
