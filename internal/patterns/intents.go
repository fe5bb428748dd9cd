package patterns

import (
	"strings"

	"github.com/rajputsidhu/sentinal-analysis/internal/analysis"
)

func (l *Library) initIntents() {
	// Enumeration order doubles as the tie-break order for classification.
	l.intentOrder = []analysis.Intent{
		analysis.IntentQuestion,
		analysis.IntentInstruction,
		analysis.IntentCreative,
		analysis.IntentCode,
		analysis.IntentSystemOverride,
		analysis.IntentManipulation,
	}

	l.intentKeywords = map[analysis.Intent][]string{
		analysis.IntentQuestion:       {"what", "why", "how", "when", "where", "who", "which", "can you explain", "tell me about", "?"},
		analysis.IntentInstruction:    {"please", "can you", "help me", "i need", "create", "make", "generate", "write"},
		analysis.IntentCreative:       {"story", "poem", "write a", "compose", "imagine", "describe", "fiction"},
		analysis.IntentCode:           {"code", "function", "program", "script", "implement", "debug", "algorithm", "api", "class", "def "},
		analysis.IntentSystemOverride: {"ignore", "override", "bypass", "system prompt", "new role", "you are now", "forget"},
		analysis.IntentManipulation:   {"pretend", "hypothetical", "fictional", "role play", "act as if", "imagine you are"},
	}

	l.suspiciousTransitions = map[[2]analysis.Intent]bool{
		{analysis.IntentQuestion, analysis.IntentSystemOverride}:    true,
		{analysis.IntentQuestion, analysis.IntentManipulation}:      true,
		{analysis.IntentInstruction, analysis.IntentSystemOverride}: true,
		{analysis.IntentCreative, analysis.IntentSystemOverride}:    true,
		{analysis.IntentCode, analysis.IntentSystemOverride}:        true,
		{analysis.IntentCreative, analysis.IntentManipulation}:      true,
		{analysis.IntentInstruction, analysis.IntentManipulation}:   true,
	}

	l.escalationSignals = [][3]analysis.Intent{
		{analysis.IntentQuestion, analysis.IntentInstruction, analysis.IntentSystemOverride},
		{analysis.IntentCreative, analysis.IntentManipulation, analysis.IntentSystemOverride},
		{analysis.IntentQuestion, analysis.IntentManipulation, analysis.IntentSystemOverride},
	}
}

// ClassifyIntent classifies a single message by keyword matches. The intent
// with the most matches wins; ties go to the earlier intent in enumeration
// order. No match yields IntentUnknown.
func (l *Library) ClassifyIntent(text string) analysis.Intent {
	lower := strings.ToLower(text)

	best := analysis.IntentUnknown
	bestCount := 0
	for _, intent := range l.intentOrder {
		count := 0
		for _, kw := range l.intentKeywords[intent] {
			if strings.Contains(lower, kw) {
				count++
			}
		}
		if count > bestCount {
			best = intent
			bestCount = count
		}
	}
	return best
}

// IsSuspiciousTransition reports whether the from->to intent pivot is in
// the suspicious transition set.
func (l *Library) IsSuspiciousTransition(from, to analysis.Intent) bool {
	return l.suspiciousTransitions[[2]analysis.Intent{from, to}]
}

// MatchesEscalation reports whether the given three-intent window equals a
// known escalation pattern.
func (l *Library) MatchesEscalation(window [3]analysis.Intent) bool {
	for _, sig := range l.escalationSignals {
		if window == sig {
			return true
		}
	}
	return false
}
