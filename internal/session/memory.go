package session

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rajputsidhu/sentinal-analysis/internal/analysis"
	"github.com/rajputsidhu/sentinal-analysis/internal/logger"
)

type memorySession struct {
	messages   []analysis.Message
	analyses   []analysis.Result
	embeddings [][]float32
	createdAt  time.Time
	lastActive time.Time
}

// MemoryStore is the default single-process Store. Messages are capped at
// maxHistory per session; analyses and embeddings are retained for the life
// of the session.
type MemoryStore struct {
	mu         sync.Mutex
	sessions   map[string]*memorySession
	maxHistory int
	ttl        time.Duration
	logger     *logger.Logger

	// now is swappable for tests.
	now func() time.Time
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an in-memory store.
func NewMemoryStore(maxHistory int, ttl time.Duration, log *logger.Logger) *MemoryStore {
	return &MemoryStore{
		sessions:   make(map[string]*memorySession),
		maxHistory: maxHistory,
		ttl:        ttl,
		logger:     log.WithComponent("session"),
		now:        time.Now,
	}
}

// StartJanitor evicts expired sessions every interval until ctx is done.
func (s *MemoryStore) StartJanitor(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.mu.Lock()
				evicted := s.evictExpiredLocked()
				s.mu.Unlock()
				if evicted > 0 {
					s.logger.Debug("evicted expired sessions", zap.Int("count", evicted))
				}
			}
		}
	}()
}

// evictExpiredLocked removes sessions idle longer than the TTL. Caller holds mu.
func (s *MemoryStore) evictExpiredLocked() int {
	now := s.now()
	evicted := 0
	for id, sess := range s.sessions {
		if now.Sub(sess.lastActive) > s.ttl {
			delete(s.sessions, id)
			evicted++
		}
	}
	return evicted
}

// getLocked returns a live session or nil. Caller holds mu.
func (s *MemoryStore) getLocked(sessionID string) *memorySession {
	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil
	}
	if s.now().Sub(sess.lastActive) > s.ttl {
		delete(s.sessions, sessionID)
		return nil
	}
	return sess
}

// ensureLocked creates the session lazily. Caller holds mu.
func (s *MemoryStore) ensureLocked(sessionID string) *memorySession {
	if sess := s.getLocked(sessionID); sess != nil {
		return sess
	}
	sess := &memorySession{createdAt: s.now(), lastActive: s.now()}
	s.sessions[sessionID] = sess
	return sess
}

func (s *MemoryStore) AppendUser(ctx context.Context, sessionID string, msg analysis.Message, result analysis.Result, embedding []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.ensureLocked(sessionID)
	sess.messages = appendCapped(sess.messages, msg, s.maxHistory)
	sess.analyses = append(sess.analyses, result)
	if len(embedding) > 0 {
		sess.embeddings = append(sess.embeddings, embedding)
	}
	sess.lastActive = s.now()
	return nil
}

func (s *MemoryStore) AppendAssistant(ctx context.Context, sessionID string, msg analysis.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.ensureLocked(sessionID)
	sess.messages = appendCapped(sess.messages, msg, s.maxHistory)
	sess.lastActive = s.now()
	return nil
}

func (s *MemoryStore) Recent(ctx context.Context, sessionID string, n int) ([]analysis.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.getLocked(sessionID)
	if sess == nil {
		return nil, nil
	}
	msgs := sess.messages
	if n > 0 && len(msgs) > n {
		msgs = msgs[len(msgs)-n:]
	}
	out := make([]analysis.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (s *MemoryStore) Messages(ctx context.Context, sessionID string) ([]analysis.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.getLocked(sessionID)
	if sess == nil {
		return nil, ErrNotFound
	}
	out := make([]analysis.Message, len(sess.messages))
	copy(out, sess.messages)
	return out, nil
}

func (s *MemoryStore) Analyses(ctx context.Context, sessionID string) ([]analysis.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.getLocked(sessionID)
	if sess == nil {
		return nil, ErrNotFound
	}
	out := make([]analysis.Result, len(sess.analyses))
	copy(out, sess.analyses)
	return out, nil
}

func (s *MemoryStore) UserEmbeddings(ctx context.Context, sessionID string) ([][]float32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.getLocked(sessionID)
	if sess == nil {
		return nil, nil
	}
	out := make([][]float32, len(sess.embeddings))
	copy(out, sess.embeddings)
	return out, nil
}

func (s *MemoryStore) Exists(ctx context.Context, sessionID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getLocked(sessionID) != nil, nil
}

func (s *MemoryStore) Delete(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.getLocked(sessionID) == nil {
		return ErrNotFound
	}
	delete(s.sessions, sessionID)
	return nil
}

func (s *MemoryStore) ActiveCount(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.evictExpiredLocked()
	return len(s.sessions), nil
}

func (s *MemoryStore) Close() error {
	return nil
}

// appendCapped appends and drops the oldest entries beyond the limit.
func appendCapped(msgs []analysis.Message, msg analysis.Message, limit int) []analysis.Message {
	msgs = append(msgs, msg)
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return msgs
}
