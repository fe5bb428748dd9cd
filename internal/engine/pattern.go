package engine

import (
	"github.com/rajputsidhu/sentinal-analysis/internal/analysis"
	"github.com/rajputsidhu/sentinal-analysis/internal/patterns"
)

// PatternDetector scans prompts against the compiled pattern library. It is
// pure CPU work and safe for concurrent use.
type PatternDetector struct {
	library *patterns.Library
}

// NewPatternDetector creates a pattern detector over the shared library.
func NewPatternDetector(library *patterns.Library) *PatternDetector {
	return &PatternDetector{library: library}
}

// Detect reports every matching category once, in library order. The score is
// 0.3 per category plus a 0.2 compound boost when two or more categories hit,
// capped at 1.0.
func (d *PatternDetector) Detect(prompt string) analysis.PatternResult {
	cats, names := d.library.Scan(prompt)

	score := 0.3 * float64(len(cats))
	if len(cats) >= 2 {
		score += 0.2
	}
	if score > 1 {
		score = 1
	}

	return analysis.PatternResult{
		Score:      round4(score),
		Matches:    names,
		Categories: cats,
	}
}

func round4(f float64) float64 {
	return float64(int(f*10000+0.5)) / 10000
}
