package vector

import (
	"time"

	"github.com/rajputsidhu/sentinal-analysis/internal/analysis"
)

// AttackSignature is a known attack prompt with its embedding, stored in
// PostgreSQL with pgvector.
type AttackSignature struct {
	ID        int64                   `db:"id" json:"id"`
	Text      string                  `db:"text" json:"text"`
	TextHash  string                  `db:"text_hash" json:"text_hash"`
	Category  analysis.AttackCategory `db:"category" json:"category"`
	Malicious bool                    `db:"malicious" json:"malicious"`
	Embedding []float32               `db:"-" json:"embedding"`
	CreatedAt time.Time               `db:"created_at" json:"created_at"`
	UpdatedAt time.Time               `db:"updated_at" json:"updated_at"`
}

// SimilarMatch is one row of a similarity search.
type SimilarMatch struct {
	Signature  *AttackSignature `json:"signature"`
	Similarity float32          `json:"similarity"`
	Distance   float32          `json:"distance"`
}

// SearchOptions narrows a similarity search.
type SearchOptions struct {
	Limit         int                     `json:"limit"`
	MinSimilarity float32                 `json:"min_similarity"`
	Category      analysis.AttackCategory `json:"category,omitempty"`
	MaliciousOnly bool                    `json:"malicious_only"`
}

// Stats summarises the signature table.
type Stats struct {
	TotalSignatures int64            `json:"total_signatures"`
	MaliciousCount  int64            `json:"malicious_count"`
	BenignCount     int64            `json:"benign_count"`
	ByCategory      map[string]int64 `json:"by_category"`
}

// BatchResult reports the outcome of a batch insert. Rows already present
// (same text hash) are counted as skipped, not failed.
type BatchResult struct {
	Inserted int64         `json:"inserted"`
	Skipped  int64         `json:"skipped"`
	Failed   int64         `json:"failed"`
	Duration time.Duration `json:"duration"`
}
