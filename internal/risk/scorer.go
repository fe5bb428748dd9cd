package risk

import (
	"github.com/rajputsidhu/sentinal-analysis/internal/analysis"
)

// Detector signal weights, all on the unit interval.
const (
	weightEmbedding = 0.30
	weightRedTeam   = 0.35
	weightDrift     = 0.15
	weightPattern   = 0.20

	multiCategoryBoost = 0.2
	driftBoost         = 0.1

	// rewriteFloor is the 0-100 score at which a single-category threat is
	// rewritten instead of warned about.
	rewriteFloor = 60.0
)

// Scorer combines the four detector signals into a 0-100 threat score and a
// terminal action. Thresholds are configured on [0,1] and compared on the
// 0-100 scale.
type Scorer struct {
	warnThreshold  float64
	blockThreshold float64
}

// NewScorer creates a scorer with thresholds on the unit interval.
func NewScorer(warnThreshold, blockThreshold float64) *Scorer {
	return &Scorer{warnThreshold: warnThreshold, blockThreshold: blockThreshold}
}

// Combine produces the threat score, action, and merged category list.
// The score is a deterministic function of the detector outputs: a weighted
// sum plus a compound-attack boost when two or more categories agree and a
// drift boost when drift fires on an already-suspicious score.
func (s *Scorer) Combine(
	emb analysis.EmbeddingResult,
	red analysis.RedTeamResult,
	drift analysis.DriftResult,
	pattern analysis.PatternResult,
) (float64, analysis.Action, []analysis.AttackCategory) {
	categories := mergeCategories(red.Categories, pattern.Categories)

	raw := weightEmbedding*emb.Score +
		weightRedTeam*red.Score +
		weightDrift*drift.Score +
		weightPattern*pattern.Score

	if len(categories) >= 2 {
		raw += multiCategoryBoost
	}
	if drift.DriftDetected && raw > 0.2 {
		raw += driftBoost
	}
	if raw > 1 {
		raw = 1
	}

	score := round4(raw) * 100
	return score, s.action(score, len(categories)), categories
}

// action selects the terminal decision from the 0-100 score.
func (s *Scorer) action(score float64, categoryCount int) analysis.Action {
	warn := s.warnThreshold * 100
	block := s.blockThreshold * 100

	switch {
	case score >= block:
		return analysis.ActionBlock
	case score >= rewriteFloor && score < block && categoryCount <= 1:
		return analysis.ActionRewrite
	case score >= warn:
		return analysis.ActionWarn
	default:
		return analysis.ActionAllow
	}
}

// mergeCategories unions the red-team and pattern categories in insertion
// order, dropping duplicates and the none marker.
func mergeCategories(red, pattern []analysis.AttackCategory) []analysis.AttackCategory {
	var out []analysis.AttackCategory
	seen := make(map[analysis.AttackCategory]bool)
	for _, list := range [][]analysis.AttackCategory{red, pattern} {
		for _, c := range list {
			if c == analysis.CategoryNone || seen[c] {
				continue
			}
			seen[c] = true
			out = append(out, c)
		}
	}
	return out
}

func round4(f float64) float64 {
	return float64(int(f*10000+0.5)) / 10000
}
