package session

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/rajputsidhu/sentinal-analysis/internal/analysis"
	"github.com/rajputsidhu/sentinal-analysis/internal/logger"
)

// RedisStore is a Store backed by Redis lists, for multi-process deployments.
// Each session uses three keys (messages, analyses, embeddings) whose TTLs
// are refreshed on every write, so idle sessions expire server-side.
type RedisStore struct {
	client     *redis.Client
	maxHistory int
	ttl        time.Duration
	logger     *logger.Logger
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(redisURL string, maxHistory int, ttl time.Duration, log *logger.Logger) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	store := &RedisStore{
		client:     client,
		maxHistory: maxHistory,
		ttl:        ttl,
		logger:     log.WithComponent("session"),
	}
	store.logger.Info("Redis session store initialized",
		zap.String("redis_url", maskRedisURL(redisURL)),
		zap.Duration("ttl", ttl))
	return store, nil
}

func messagesKey(id string) string   { return "sentinel:sess:" + id + ":messages" }
func analysesKey(id string) string   { return "sentinel:sess:" + id + ":analyses" }
func embeddingsKey(id string) string { return "sentinel:sess:" + id + ":embeddings" }

func (s *RedisStore) sessionKeys(id string) []string {
	return []string{messagesKey(id), analysesKey(id), embeddingsKey(id)}
}

func (s *RedisStore) AppendUser(ctx context.Context, sessionID string, msg analysis.Message, result analysis.Result, embedding []float32) error {
	msgJSON, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}
	resJSON, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode analysis: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, messagesKey(sessionID), msgJSON)
	pipe.LTrim(ctx, messagesKey(sessionID), int64(-s.maxHistory), -1)
	pipe.RPush(ctx, analysesKey(sessionID), resJSON)
	if len(embedding) > 0 {
		embJSON, err := json.Marshal(embedding)
		if err != nil {
			return fmt.Errorf("failed to encode embedding: %w", err)
		}
		pipe.RPush(ctx, embeddingsKey(sessionID), embJSON)
	}
	for _, key := range s.sessionKeys(sessionID) {
		pipe.Expire(ctx, key, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to append user turn: %w", err)
	}
	return nil
}

func (s *RedisStore) AppendAssistant(ctx context.Context, sessionID string, msg analysis.Message) error {
	msgJSON, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, messagesKey(sessionID), msgJSON)
	pipe.LTrim(ctx, messagesKey(sessionID), int64(-s.maxHistory), -1)
	for _, key := range s.sessionKeys(sessionID) {
		pipe.Expire(ctx, key, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to append assistant turn: %w", err)
	}
	return nil
}

func (s *RedisStore) Recent(ctx context.Context, sessionID string, n int) ([]analysis.Message, error) {
	start := int64(0)
	if n > 0 {
		start = int64(-n)
	}
	raw, err := s.client.LRange(ctx, messagesKey(sessionID), start, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read recent messages: %w", err)
	}
	return decodeMessages(raw)
}

func (s *RedisStore) Messages(ctx context.Context, sessionID string) ([]analysis.Message, error) {
	exists, err := s.Exists(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrNotFound
	}
	raw, err := s.client.LRange(ctx, messagesKey(sessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read messages: %w", err)
	}
	return decodeMessages(raw)
}

func (s *RedisStore) Analyses(ctx context.Context, sessionID string) ([]analysis.Result, error) {
	exists, err := s.Exists(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrNotFound
	}
	raw, err := s.client.LRange(ctx, analysesKey(sessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read analyses: %w", err)
	}
	out := make([]analysis.Result, 0, len(raw))
	for _, item := range raw {
		var res analysis.Result
		if err := json.Unmarshal([]byte(item), &res); err != nil {
			return nil, fmt.Errorf("failed to decode analysis: %w", err)
		}
		out = append(out, res)
	}
	return out, nil
}

func (s *RedisStore) UserEmbeddings(ctx context.Context, sessionID string) ([][]float32, error) {
	raw, err := s.client.LRange(ctx, embeddingsKey(sessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read embeddings: %w", err)
	}
	out := make([][]float32, 0, len(raw))
	for _, item := range raw {
		var vec []float32
		if err := json.Unmarshal([]byte(item), &vec); err != nil {
			return nil, fmt.Errorf("failed to decode embedding: %w", err)
		}
		out = append(out, vec)
	}
	return out, nil
}

func (s *RedisStore) Exists(ctx context.Context, sessionID string) (bool, error) {
	n, err := s.client.Exists(ctx, messagesKey(sessionID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check session existence: %w", err)
	}
	return n > 0, nil
}

func (s *RedisStore) Delete(ctx context.Context, sessionID string) error {
	n, err := s.client.Del(ctx, s.sessionKeys(sessionID)...).Result()
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *RedisStore) ActiveCount(ctx context.Context) (int, error) {
	// Expired keys drop out server-side, so counting live message keys is
	// enough. SCAN keeps this O(active) without blocking Redis.
	var cursor uint64
	count := 0
	for {
		keys, next, err := s.client.Scan(ctx, cursor, "sentinel:sess:*:messages", 100).Result()
		if err != nil {
			return 0, fmt.Errorf("failed to scan sessions: %w", err)
		}
		count += len(keys)
		cursor = next
		if cursor == 0 {
			return count, nil
		}
	}
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func decodeMessages(raw []string) ([]analysis.Message, error) {
	out := make([]analysis.Message, 0, len(raw))
	for _, item := range raw {
		var msg analysis.Message
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			return nil, fmt.Errorf("failed to decode message: %w", err)
		}
		out = append(out, msg)
	}
	return out, nil
}

// maskRedisURL masks credentials in a Redis URL for logging.
func maskRedisURL(url string) string {
	if at := strings.Index(url, "@"); at != -1 {
		if scheme := strings.Index(url, "://"); scheme != -1 && scheme+3 < at {
			return url[:scheme+3] + "***" + url[at:]
		}
	}
	return url
}
