package embeddings

import (
	"sort"
	"strings"

	"github.com/rajputsidhu/sentinal-analysis/internal/analysis"
	"github.com/rajputsidhu/sentinal-analysis/internal/patterns"
)

// signatureDocs are canonical reference documents describing each attack
// family. The scorer embeds them once and compares prompts against the set.
var signatureDocs = map[analysis.AttackCategory]string{
	analysis.CategoryPromptInjection:   "ignore previous instructions disregard prior rules override system new instructions forget everything you are now system prompt",
	analysis.CategoryJailbreak:         "DAN mode do anything now act as no restrictions unfiltered mode developer mode bypass safety jailbreak enabled unlimited",
	analysis.CategoryRoleOverride:      "you are now unrestricted evil new role persona identity switch to admin mode god mode sudo activate",
	analysis.CategoryDataExfiltration:  "reveal system prompt show instructions tell me your rules repeat echo api key secret private training data hidden",
	analysis.CategorySocialEngineering: "test scenario educational research purposes hypothetical fictional world just curious trust me permission allowed",
	analysis.CategoryHarmfulContent:    "how to make bomb weapon explosive step by step guide hack exploit malware virus ransomware code",
	analysis.CategoryEncodedPayload:    "eval exec import base64 encoded hex unicode escape url encoded payload injection script",
}

// minSimilarity filters out noise matches.
const minSimilarity = 0.05

type signatureVector struct {
	category analysis.AttackCategory
	vector   []float32
}

// Scorer scores prompts against known attack signatures. Signatures are
// hash-embedded, so scoring is deterministic and fully offline.
type Scorer struct {
	signatures []signatureVector
	library    *patterns.Library
}

// NewScorer builds a scorer over the built-in signature documents.
func NewScorer(library *patterns.Library) *Scorer {
	s := &Scorer{library: library}
	// Stable iteration order keeps tie-breaks deterministic.
	cats := make([]analysis.AttackCategory, 0, len(signatureDocs))
	for c := range signatureDocs {
		cats = append(cats, c)
	}
	sort.Slice(cats, func(i, j int) bool { return cats[i] < cats[j] })
	for _, c := range cats {
		s.signatures = append(s.signatures, signatureVector{
			category: c,
			vector:   HashEmbedding(signatureDocs[c]),
		})
	}
	return s
}

// AddSignature registers an extra signature vector, for example one loaded
// from the Postgres signature store.
func (s *Scorer) AddSignature(category analysis.AttackCategory, vector []float32) {
	if len(vector) == 0 {
		return
	}
	s.signatures = append(s.signatures, signatureVector{category: category, vector: vector})
}

// keywordBoost adds score for manipulation keyword hits, capped at 0.5 so
// keyword-only detection cannot block on its own.
func (s *Scorer) keywordBoost(text string) float64 {
	lower := strings.ToLower(text)
	matches := 0
	for _, kw := range s.library.ManipulationKeywords() {
		if strings.Contains(lower, kw) {
			matches++
		}
	}
	boost := 0.1 * float64(matches)
	if boost > 0.5 {
		boost = 0.5
	}
	return boost
}

// Score computes the semantic-similarity verdict for a prompt. The score is
// the highest cosine similarity across signatures plus the keyword boost,
// capped at 1.0. TopMatches lists up to three matching categories by
// descending similarity.
func (s *Scorer) Score(prompt string) analysis.EmbeddingResult {
	promptVec := HashEmbedding(prompt)

	type match struct {
		category analysis.AttackCategory
		sim      float64
	}
	var matches []match
	for _, sig := range s.signatures {
		sim := CosineSimilarity(promptVec, sig.vector)
		if sim > minSimilarity {
			matches = append(matches, match{sig.category, sim})
		}
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].sim > matches[j].sim })

	maxSim := 0.0
	if len(matches) > 0 {
		maxSim = matches[0].sim
	}
	score := maxSim + s.keywordBoost(prompt)
	if score > 1 {
		score = 1
	}

	var top []string
	seen := make(map[analysis.AttackCategory]bool)
	for _, m := range matches {
		if seen[m.category] {
			continue
		}
		seen[m.category] = true
		top = append(top, string(m.category))
		if len(top) == 3 {
			break
		}
	}

	return analysis.EmbeddingResult{
		Score:      round4(score),
		TopMatches: top,
	}
}

func round4(f float64) float64 {
	return float64(int(f*10000+0.5)) / 10000
}
