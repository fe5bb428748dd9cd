package session

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rajputsidhu/sentinal-analysis/internal/analysis"
	"github.com/rajputsidhu/sentinal-analysis/internal/logger"
)

func newTestStore(maxHistory int, ttl time.Duration) *MemoryStore {
	return NewMemoryStore(maxHistory, ttl, logger.Nop())
}

func TestAppendAndRead(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(20, time.Hour)

	userMsg := analysis.NewMessage(analysis.RoleUser, "hello")
	res := analysis.Result{ThreatScore: 12, Action: analysis.ActionAllow}
	if err := store.AppendUser(ctx, "s1", userMsg, res, []float32{1, 0}); err != nil {
		t.Fatalf("AppendUser: %v", err)
	}
	if err := store.AppendAssistant(ctx, "s1", analysis.NewMessage(analysis.RoleAssistant, "hi there")); err != nil {
		t.Fatalf("AppendAssistant: %v", err)
	}

	msgs, err := store.Messages(ctx, "s1")
	if err != nil {
		t.Fatalf("Messages: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	if msgs[0].Role != analysis.RoleUser || msgs[1].Role != analysis.RoleAssistant {
		t.Errorf("messages out of order: %v", msgs)
	}

	analyses, err := store.Analyses(ctx, "s1")
	if err != nil {
		t.Fatalf("Analyses: %v", err)
	}
	if len(analyses) != 1 || analyses[0].ThreatScore != 12 {
		t.Errorf("analyses = %+v", analyses)
	}

	embs, err := store.UserEmbeddings(ctx, "s1")
	if err != nil {
		t.Fatalf("UserEmbeddings: %v", err)
	}
	if len(embs) != 1 {
		t.Errorf("got %d embeddings, want 1", len(embs))
	}
}

func TestHistoryCap(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(4, time.Hour)

	for i := 0; i < 10; i++ {
		content := fmt.Sprintf("turn %d", i)
		if err := store.AppendUser(ctx, "s1", analysis.NewMessage(analysis.RoleUser, content), analysis.Result{}, nil); err != nil {
			t.Fatalf("AppendUser: %v", err)
		}
	}

	msgs, err := store.Messages(ctx, "s1")
	if err != nil {
		t.Fatalf("Messages: %v", err)
	}
	if len(msgs) != 4 {
		t.Fatalf("got %d messages, want cap of 4", len(msgs))
	}
	if msgs[0].Content != "turn 6" || msgs[3].Content != "turn 9" {
		t.Errorf("cap should drop oldest turns, got %q .. %q", msgs[0].Content, msgs[3].Content)
	}

	// Analyses are not capped with the messages.
	analyses, err := store.Analyses(ctx, "s1")
	if err != nil {
		t.Fatalf("Analyses: %v", err)
	}
	if len(analyses) != 10 {
		t.Errorf("got %d analyses, want 10", len(analyses))
	}
}

func TestRecent(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(20, time.Hour)

	for i := 0; i < 6; i++ {
		store.AppendUser(ctx, "s1", analysis.NewMessage(analysis.RoleUser, fmt.Sprintf("m%d", i)), analysis.Result{}, nil)
	}

	msgs, err := store.Recent(ctx, "s1", 2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(msgs) != 2 || msgs[0].Content != "m4" || msgs[1].Content != "m5" {
		t.Errorf("Recent(2) = %v", msgs)
	}

	// Missing session yields empty history, not an error.
	msgs, err = store.Recent(ctx, "missing", 5)
	if err != nil || len(msgs) != 0 {
		t.Errorf("Recent on missing session = %v, %v", msgs, err)
	}
}

func TestMissingSession(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(20, time.Hour)

	if _, err := store.Messages(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Messages on missing session: %v, want ErrNotFound", err)
	}
	if _, err := store.Analyses(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Analyses on missing session: %v, want ErrNotFound", err)
	}
	if err := store.Delete(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Delete on missing session: %v, want ErrNotFound", err)
	}
	exists, err := store.Exists(ctx, "nope")
	if err != nil || exists {
		t.Errorf("Exists on missing session = %v, %v", exists, err)
	}
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(20, time.Hour)

	store.AppendUser(ctx, "s1", analysis.NewMessage(analysis.RoleUser, "hi"), analysis.Result{}, nil)
	if err := store.Delete(ctx, "s1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	exists, _ := store.Exists(ctx, "s1")
	if exists {
		t.Error("session should be gone after delete")
	}
}

func TestTTLEviction(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(20, 10*time.Minute)

	current := time.Unix(1700000000, 0)
	store.now = func() time.Time { return current }

	store.AppendUser(ctx, "old", analysis.NewMessage(analysis.RoleUser, "hi"), analysis.Result{}, nil)

	current = current.Add(5 * time.Minute)
	store.AppendUser(ctx, "fresh", analysis.NewMessage(analysis.RoleUser, "hi"), analysis.Result{}, nil)

	current = current.Add(7 * time.Minute)

	count, err := store.ActiveCount(ctx)
	if err != nil {
		t.Fatalf("ActiveCount: %v", err)
	}
	if count != 1 {
		t.Errorf("active count = %d, want 1 after eviction", count)
	}

	exists, _ := store.Exists(ctx, "old")
	if exists {
		t.Error("idle session should have expired")
	}
	exists, _ = store.Exists(ctx, "fresh")
	if !exists {
		t.Error("fresh session should survive")
	}
}

func TestWriteRefreshesTTL(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(20, 10*time.Minute)

	current := time.Unix(1700000000, 0)
	store.now = func() time.Time { return current }

	store.AppendUser(ctx, "s1", analysis.NewMessage(analysis.RoleUser, "one"), analysis.Result{}, nil)
	current = current.Add(8 * time.Minute)
	store.AppendUser(ctx, "s1", analysis.NewMessage(analysis.RoleUser, "two"), analysis.Result{}, nil)
	current = current.Add(8 * time.Minute)

	exists, _ := store.Exists(ctx, "s1")
	if !exists {
		t.Error("activity should refresh the TTL")
	}
}

func TestConcurrentAppends(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(100, time.Hour)

	done := make(chan struct{})
	for g := 0; g < 8; g++ {
		go func(g int) {
			defer func() { done <- struct{}{} }()
			for i := 0; i < 25; i++ {
				store.AppendUser(ctx, "shared", analysis.NewMessage(analysis.RoleUser, "x"), analysis.Result{}, nil)
			}
		}(g)
	}
	for g := 0; g < 8; g++ {
		<-done
	}

	msgs, err := store.Messages(ctx, "shared")
	if err != nil {
		t.Fatalf("Messages: %v", err)
	}
	if len(msgs) != 100 {
		t.Errorf("got %d messages, want cap of 100", len(msgs))
	}
	analyses, _ := store.Analyses(ctx, "shared")
	if len(analyses) != 200 {
		t.Errorf("got %d analyses, want 200", len(analyses))
	}
}
