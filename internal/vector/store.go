package vector

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/rajputsidhu/sentinal-analysis/internal/analysis"
	"github.com/rajputsidhu/sentinal-analysis/internal/config"
	"github.com/rajputsidhu/sentinal-analysis/internal/embeddings"
	"github.com/rajputsidhu/sentinal-analysis/internal/logger"
)

const createTableStmt = `
	CREATE TABLE IF NOT EXISTS attack_signatures (
		id BIGSERIAL PRIMARY KEY,
		text TEXT NOT NULL,
		text_hash TEXT NOT NULL UNIQUE,
		category TEXT NOT NULL,
		malicious BOOLEAN NOT NULL DEFAULT TRUE,
		embedding vector(%d) NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`

// Store persists attack signatures in PostgreSQL with pgvector.
type Store struct {
	db     *sqlx.DB
	logger *logger.Logger
}

// NewStore connects to PostgreSQL, verifies the pgvector extension and
// ensures the signature table exists.
func NewStore(cfg config.SignaturesConfig, log *logger.Logger) (*Store, error) {
	db, err := sqlx.Connect("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	store := &Store{
		db:     db,
		logger: log.WithComponent("vector"),
	}

	if err := store.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize signature store: %w", err)
	}

	store.logger.Info("signature store ready",
		zap.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
		zap.Int("max_open_conns", cfg.MaxOpenConns))

	return store, nil
}

func (s *Store) initialize() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	var extensionExists bool
	query := "SELECT EXISTS(SELECT 1 FROM pg_extension WHERE extname = 'vector')"
	if err := s.db.GetContext(ctx, &extensionExists, query); err != nil {
		return fmt.Errorf("failed to check pgvector extension: %w", err)
	}
	if !extensionExists {
		return fmt.Errorf("pgvector extension is not installed")
	}

	if _, err := s.db.ExecContext(ctx, fmt.Sprintf(createTableStmt, embeddings.HashDimension)); err != nil {
		return fmt.Errorf("failed to create signature table: %w", err)
	}
	return nil
}

// Insert adds a single signature. The row's ID and timestamps are filled in
// on success.
func (s *Store) Insert(ctx context.Context, sig *AttackSignature) error {
	query := `
		INSERT INTO attack_signatures (text, text_hash, category, malicious, embedding)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (text_hash) DO UPDATE SET
			category = EXCLUDED.category,
			malicious = EXCLUDED.malicious,
			embedding = EXCLUDED.embedding,
			updated_at = NOW()
		RETURNING id, created_at, updated_at`

	err := s.db.QueryRowContext(ctx, query,
		sig.Text,
		sig.TextHash,
		string(sig.Category),
		sig.Malicious,
		formatEmbedding(sig.Embedding),
	).Scan(&sig.ID, &sig.CreatedAt, &sig.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert signature: %w", err)
	}

	s.logger.Debug("signature inserted",
		zap.Int64("id", sig.ID),
		zap.String("category", string(sig.Category)))
	return nil
}

// BatchInsert adds many signatures in one statement. Rows whose text hash is
// already present are skipped.
func (s *Store) BatchInsert(ctx context.Context, sigs []*AttackSignature) (*BatchResult, error) {
	if len(sigs) == 0 {
		return &BatchResult{}, nil
	}

	start := time.Now()

	valueStrings := make([]string, 0, len(sigs))
	valueArgs := make([]interface{}, 0, len(sigs)*5)
	for i, sig := range sigs {
		valueStrings = append(valueStrings, fmt.Sprintf("($%d, $%d, $%d, $%d, $%d)",
			i*5+1, i*5+2, i*5+3, i*5+4, i*5+5))
		valueArgs = append(valueArgs,
			sig.Text,
			sig.TextHash,
			string(sig.Category),
			sig.Malicious,
			formatEmbedding(sig.Embedding),
		)
	}

	query := fmt.Sprintf(`
		INSERT INTO attack_signatures (text, text_hash, category, malicious, embedding)
		VALUES %s
		ON CONFLICT (text_hash) DO NOTHING`,
		strings.Join(valueStrings, ","))

	res, err := s.db.ExecContext(ctx, query, valueArgs...)
	if err != nil {
		return &BatchResult{Failed: int64(len(sigs)), Duration: time.Since(start)},
			fmt.Errorf("batch insert failed: %w", err)
	}

	inserted, err := res.RowsAffected()
	if err != nil {
		s.logger.Warn("could not get rows affected", zap.Error(err))
		inserted = int64(len(sigs))
	}

	result := &BatchResult{
		Inserted: inserted,
		Skipped:  int64(len(sigs)) - inserted,
		Duration: time.Since(start),
	}

	s.logger.Info("batch insert completed",
		zap.Int64("inserted", result.Inserted),
		zap.Int64("skipped", result.Skipped),
		zap.Duration("duration", result.Duration))

	return result, nil
}

// FindSimilar returns the stored signatures closest to the given embedding,
// most similar first.
func (s *Store) FindSimilar(ctx context.Context, embedding []float32, opts *SearchOptions) ([]*SimilarMatch, error) {
	if opts == nil {
		opts = &SearchOptions{Limit: 5, MinSimilarity: 0.7}
	}

	embeddingStr := formatEmbedding(embedding)

	whereClause := "WHERE (1 - (embedding <=> $1)) >= $2"
	args := []interface{}{embeddingStr, opts.MinSimilarity}
	argIndex := 3

	if opts.Category != "" {
		whereClause += fmt.Sprintf(" AND category = $%d", argIndex)
		args = append(args, string(opts.Category))
		argIndex++
	}
	if opts.MaliciousOnly {
		whereClause += " AND malicious"
	}

	query := fmt.Sprintf(`
		SELECT
			id, text, text_hash, category, malicious,
			embedding, created_at, updated_at,
			(1 - (embedding <=> $1)) AS similarity,
			(embedding <=> $1) AS distance
		FROM attack_signatures
		%s
		ORDER BY embedding <=> $1
		LIMIT $%d`, whereClause, argIndex)
	args = append(args, opts.Limit)

	start := time.Now()
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("similarity search failed: %w", err)
	}
	defer rows.Close()

	var matches []*SimilarMatch
	for rows.Next() {
		var (
			match    SimilarMatch
			sig      AttackSignature
			category string
			rawVec   string
		)
		err := rows.Scan(
			&sig.ID,
			&sig.Text,
			&sig.TextHash,
			&category,
			&sig.Malicious,
			&rawVec,
			&sig.CreatedAt,
			&sig.UpdatedAt,
			&match.Similarity,
			&match.Distance,
		)
		if err != nil {
			s.logger.Error("failed to scan similarity row", zap.Error(err))
			continue
		}

		sig.Category = parseCategoryOrNone(category)
		sig.Embedding, err = parseEmbedding(rawVec)
		if err != nil {
			s.logger.Error("failed to parse stored embedding", zap.Error(err), zap.Int64("id", sig.ID))
			continue
		}

		match.Signature = &sig
		matches = append(matches, &match)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("similarity search failed: %w", err)
	}

	s.logger.Debug("similarity search completed",
		zap.Int("results", len(matches)),
		zap.Duration("duration", time.Since(start)))

	return matches, nil
}

// LoadAll streams every malicious signature, typically to seed the in-memory
// embedding scorer at startup.
func (s *Store) LoadAll(ctx context.Context) ([]*AttackSignature, error) {
	query := `
		SELECT id, text, text_hash, category, malicious, embedding, created_at, updated_at
		FROM attack_signatures
		WHERE malicious
		ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to load signatures: %w", err)
	}
	defer rows.Close()

	var sigs []*AttackSignature
	for rows.Next() {
		var (
			sig      AttackSignature
			category string
			rawVec   string
		)
		err := rows.Scan(
			&sig.ID,
			&sig.Text,
			&sig.TextHash,
			&category,
			&sig.Malicious,
			&rawVec,
			&sig.CreatedAt,
			&sig.UpdatedAt,
		)
		if err != nil {
			s.logger.Error("failed to scan signature row", zap.Error(err))
			continue
		}

		sig.Category = parseCategoryOrNone(category)
		sig.Embedding, err = parseEmbedding(rawVec)
		if err != nil {
			s.logger.Error("failed to parse stored embedding", zap.Error(err), zap.Int64("id", sig.ID))
			continue
		}
		sigs = append(sigs, &sig)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to load signatures: %w", err)
	}

	s.logger.Info("signatures loaded", zap.Int("count", len(sigs)))
	return sigs, nil
}

// GetStats returns table-level counts.
func (s *Store) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{ByCategory: make(map[string]int64)}

	query := `
		SELECT
			COUNT(*) AS total,
			COUNT(CASE WHEN malicious THEN 1 END) AS malicious,
			COUNT(CASE WHEN NOT malicious THEN 1 END) AS benign
		FROM attack_signatures`
	err := s.db.QueryRowContext(ctx, query).Scan(
		&stats.TotalSignatures,
		&stats.MaliciousCount,
		&stats.BenignCount,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get signature stats: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT category, COUNT(*)
		FROM attack_signatures
		GROUP BY category`)
	if err != nil {
		return nil, fmt.Errorf("failed to get category stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			category string
			count    int64
		)
		if err := rows.Scan(&category, &count); err != nil {
			return nil, fmt.Errorf("failed to scan category stats: %w", err)
		}
		stats.ByCategory[category] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to get category stats: %w", err)
	}

	return stats, nil
}

// EnsureIndex builds the ivfflat similarity index once the table is large
// enough to benefit from it.
func (s *Store) EnsureIndex(ctx context.Context) error {
	var count int64
	if err := s.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM attack_signatures"); err != nil {
		return fmt.Errorf("failed to count signatures: %w", err)
	}

	if count < 1000 {
		s.logger.Info("skipping index creation, not enough signatures", zap.Int64("count", count))
		return nil
	}

	query := `
		CREATE INDEX IF NOT EXISTS idx_attack_signatures_embedding
		ON attack_signatures USING ivfflat (embedding vector_cosine_ops)
		WITH (lists = 100)`
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create similarity index: %w", err)
	}

	s.logger.Info("similarity index ready", zap.Int64("signature_count", count))
	return nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func parseCategoryOrNone(raw string) analysis.AttackCategory {
	if cat, ok := analysis.ParseCategory(raw); ok {
		return cat
	}
	return analysis.CategoryNone
}

// formatEmbedding renders a float32 slice in pgvector text format.
func formatEmbedding(embedding []float32) string {
	if len(embedding) == 0 {
		return "[]"
	}

	var b strings.Builder
	b.WriteByte('[')
	for i, v := range embedding {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(v), 'g', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}

// parseEmbedding reads the pgvector text format back into a float32 slice.
func parseEmbedding(raw string) ([]float32, error) {
	raw = strings.Trim(raw, "[]")
	if raw == "" {
		return []float32{}, nil
	}

	parts := strings.Split(raw, ",")
	embedding := make([]float32, len(parts))
	for i, part := range parts {
		val, err := strconv.ParseFloat(strings.TrimSpace(part), 32)
		if err != nil {
			return nil, fmt.Errorf("failed to parse embedding value: %w", err)
		}
		embedding[i] = float32(val)
	}
	return embedding, nil
}

// maskDatabaseURL hides the password component of a connection URL for
// logging.
func maskDatabaseURL(url string) string {
	at := strings.Index(url, "@")
	if at == -1 {
		return url
	}
	scheme := strings.Index(url, "://")
	if scheme == -1 || scheme+3 >= at {
		return url
	}
	userInfo := url[scheme+3 : at]
	if colon := strings.Index(userInfo, ":"); colon != -1 {
		userInfo = userInfo[:colon] + ":***"
	}
	return url[:scheme+3] + userInfo + url[at:]
}
