package engine

import (
	"fmt"
	"strings"

	"github.com/rajputsidhu/sentinal-analysis/internal/analysis"
	"github.com/rajputsidhu/sentinal-analysis/internal/embeddings"
	"github.com/rajputsidhu/sentinal-analysis/internal/patterns"
)

// DriftDetector tracks how far a conversation has moved from where it
// started. Two strategies run side by side: cosine distance between the
// current embedding and the centroid of prior user embeddings, and an
// intent-sequence analysis over the user turns. The final score is the max
// of the two; drift is detected when either strategy flags it.
type DriftDetector struct {
	library *patterns.Library
}

// NewDriftDetector creates a drift detector over the shared library.
func NewDriftDetector(library *patterns.Library) *DriftDetector {
	return &DriftDetector{library: library}
}

// interpret maps a drift score to its band.
func interpret(score float64) string {
	switch {
	case score < 0.2:
		return "stable"
	case score <= 0.5:
		return "suspicious"
	default:
		return "strong_shift"
	}
}

// Detect analyzes drift for the current prompt. history holds the prior
// conversation turns, priorEmbeddings the embeddings of prior user turns,
// and currentEmbedding the embedding of the prompt itself.
func (d *DriftDetector) Detect(prompt string, history []analysis.Message, currentEmbedding []float32, priorEmbeddings [][]float32) analysis.DriftResult {
	embScore := d.embeddingDrift(currentEmbedding, priorEmbeddings)
	intentScore, intentDetected, intentDetails := d.intentDrift(prompt, history)

	score := embScore
	if intentScore > score {
		score = intentScore
	}
	detected := intentDetected || score >= 0.4

	turn := 1
	for _, m := range history {
		if m.Role == analysis.RoleUser {
			turn++
		}
	}

	return analysis.DriftResult{
		Score:          round4(score),
		DriftDetected:  detected,
		Interpretation: interpret(score),
		TurnNumber:     turn,
		Details:        intentDetails,
	}
}

// embeddingDrift is the cosine distance between the current embedding and
// the centroid of prior user embeddings. No history means no drift.
func (d *DriftDetector) embeddingDrift(current []float32, prior [][]float32) float64 {
	if len(prior) == 0 || len(current) == 0 {
		return 0
	}
	centroid := embeddings.Centroid(prior)
	if centroid == nil {
		return 0
	}
	return embeddings.CosineDistance(current, centroid)
}

// intentDrift scores the user intent sequence: change frequency, suspicious
// pivots, known escalation paths, and a hostile final intent.
func (d *DriftDetector) intentDrift(prompt string, history []analysis.Message) (float64, bool, string) {
	var intents []analysis.Intent
	for _, m := range history {
		if m.Role == analysis.RoleUser {
			intents = append(intents, d.library.ClassifyIntent(m.Content))
		}
	}
	intents = append(intents, d.library.ClassifyIntent(prompt))

	suspicious, susDetail := d.suspiciousTransition(intents)
	escalation, escDetail := d.escalation(intents)

	score := 0.0
	if len(intents) > 1 {
		changes := 0
		for i := 1; i < len(intents); i++ {
			if intents[i] != intents[i-1] {
				changes++
			}
		}
		score = float64(changes) / float64(len(intents)-1) * 0.4
		if suspicious {
			score += 0.35
		}
		if escalation {
			score += 0.25
		}
		last := intents[len(intents)-1]
		if last == analysis.IntentSystemOverride || last == analysis.IntentManipulation {
			score += 0.15
		}
		if score > 1 {
			score = 1
		}
	}

	var parts []string
	if susDetail != "" {
		parts = append(parts, susDetail)
	}
	if escDetail != "" {
		parts = append(parts, escDetail)
	}
	if len(parts) == 0 {
		tail := intents
		if len(tail) > 3 {
			tail = tail[len(tail)-3:]
		}
		names := make([]string, len(tail))
		for i, in := range tail {
			names[i] = string(in)
		}
		parts = append(parts, "Intent path: "+strings.Join(names, " -> "))
	}

	detected := suspicious || escalation || score >= 0.4
	return round4(score), detected, strings.Join(parts, "; ")
}

func (d *DriftDetector) suspiciousTransition(intents []analysis.Intent) (bool, string) {
	if len(intents) < 2 {
		return false, ""
	}
	from, to := intents[len(intents)-2], intents[len(intents)-1]
	if d.library.IsSuspiciousTransition(from, to) {
		return true, fmt.Sprintf("Suspicious pivot: %s -> %s", from, to)
	}
	return false, ""
}

func (d *DriftDetector) escalation(intents []analysis.Intent) (bool, string) {
	if len(intents) < 3 {
		return false, ""
	}
	window := [3]analysis.Intent{intents[len(intents)-3], intents[len(intents)-2], intents[len(intents)-1]}
	if d.library.MatchesEscalation(window) {
		return true, fmt.Sprintf("Escalation detected: %s -> %s -> %s", window[0], window[1], window[2])
	}
	return false, ""
}
