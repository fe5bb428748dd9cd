package embeddings

import (
	"context"
	"hash/fnv"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/rajputsidhu/sentinal-analysis/internal/logger"
)

// HashDimension is the dimensionality of the deterministic local embedder.
const HashDimension = 128

var tokenPattern = regexp.MustCompile(`[a-zA-Z]+`)

// Embedder produces a vector for a text. A nil vector with a nil error means
// the provider has no embedding for the input and the caller should fall back.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// HashEmbedding maps text to a deterministic L2-normalized vector of
// HashDimension by hashing lowercase alphabetic tokens into count buckets.
// Identical inputs always produce identical vectors.
func HashEmbedding(text string) []float32 {
	vec := make([]float32, HashDimension)
	for _, token := range tokenPattern.FindAllString(strings.ToLower(text), -1) {
		h := fnv.New32a()
		h.Write([]byte(token))
		vec[h.Sum32()%HashDimension]++
	}
	return Normalize(vec)
}

// Service wraps an optional provider embedder with the local hash fallback.
type Service struct {
	provider Embedder
	logger   *logger.Logger
}

// NewService creates an embedding service. provider may be nil for a fully
// offline service.
func NewService(provider Embedder, log *logger.Logger) *Service {
	return &Service{provider: provider, logger: log.WithComponent("embeddings")}
}

// Embed returns the provider embedding when available, otherwise the
// deterministic hash embedding. Provider failures degrade to the fallback
// rather than propagating.
func (s *Service) Embed(ctx context.Context, text string) []float32 {
	if s.provider != nil {
		vec, err := s.provider.Embed(ctx, text)
		if err != nil {
			s.logger.Warn("provider embedding failed, using hash fallback", zap.Error(err))
		} else if len(vec) > 0 {
			return vec
		}
	}
	return HashEmbedding(text)
}
