package session

import (
	"context"
	"errors"

	"github.com/rajputsidhu/sentinal-analysis/internal/analysis"
)

// ErrNotFound is returned when a session id has never been written or has
// expired.
var ErrNotFound = errors.New("session: not found")

// Store holds per-session conversation history, analyses, and user-turn
// embeddings. Sessions are created lazily on first append and evicted after
// the configured idle TTL. Implementations must be safe for concurrent use
// and must serialize writes within a session.
type Store interface {
	// AppendUser records a user turn together with its analysis and embedding.
	AppendUser(ctx context.Context, sessionID string, msg analysis.Message, result analysis.Result, embedding []float32) error
	// AppendAssistant records an assistant turn.
	AppendAssistant(ctx context.Context, sessionID string, msg analysis.Message) error
	// Recent returns up to n most recent messages in insertion order.
	Recent(ctx context.Context, sessionID string, n int) ([]analysis.Message, error)
	// Messages returns the full retained message sequence.
	Messages(ctx context.Context, sessionID string) ([]analysis.Message, error)
	// Analyses returns the per-user-turn analyses in insertion order.
	Analyses(ctx context.Context, sessionID string) ([]analysis.Result, error)
	// UserEmbeddings returns the embeddings of retained user turns.
	UserEmbeddings(ctx context.Context, sessionID string) ([][]float32, error)
	// Exists reports whether the session is present and unexpired.
	Exists(ctx context.Context, sessionID string) (bool, error)
	// Delete removes the session. Deleting a missing session returns ErrNotFound.
	Delete(ctx context.Context, sessionID string) error
	// ActiveCount returns the number of live sessions, evicting expired ones.
	ActiveCount(ctx context.Context) (int, error)
	// Close releases backend resources.
	Close() error
}
