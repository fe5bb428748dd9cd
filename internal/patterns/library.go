package patterns

import (
	"regexp"

	"github.com/rajputsidhu/sentinal-analysis/internal/analysis"
)

// CategoryPatterns binds an attack category to its compiled regex set.
// Category order is significant: scans report categories in this order.
type CategoryPatterns struct {
	Category analysis.AttackCategory
	Patterns []*regexp.Regexp
}

// Library holds every compiled detection asset. It is built once at startup
// and is safe for concurrent read-only use.
type Library struct {
	categories []CategoryPatterns
	byCategory map[analysis.AttackCategory][]*regexp.Regexp

	manipulationKeywords []string
	intentOrder          []analysis.Intent
	intentKeywords       map[analysis.Intent][]string

	suspiciousTransitions map[[2]analysis.Intent]bool
	escalationSignals     [][3]analysis.Intent
}

var promptInjectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)ignore\s+(all\s+)?previous\s+(instructions|prompts|rules)`),
	regexp.MustCompile(`(?i)disregard\s+(all\s+)?(prior|previous|above)\s+(instructions|context)`),
	regexp.MustCompile(`(?i)forget\s+(everything|all|your)\s+(you|instructions|rules)`),
	regexp.MustCompile(`(?i)override\s+(your|the|all)\s+(instructions|rules|system)`),
	regexp.MustCompile(`(?i)new\s+instructions?\s*:`),
	regexp.MustCompile(`(?i)system\s*:\s*you\s+are\s+now`),
	regexp.MustCompile(`(?i)\[system\]|\[INST\]|<\|im_start\|>`),
	regexp.MustCompile(`(?is)<\s*system\s*>.*?<\s*/\s*system\s*>`),
}

var jailbreakPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bDAN\b.*\bmode\b`),
	regexp.MustCompile(`(?i)do\s+anything\s+now`),
	regexp.MustCompile(`(?i)act\s+as\s+(if\s+)?(you\s+)?(have\s+)?no\s+(restrictions|filters|limitations|rules)`),
	regexp.MustCompile(`(?i)pretend\s+(you\s+)?(are|have)\s+(no|zero)\s+(restrictions|filters|ethical)`),
	regexp.MustCompile(`(?i)without\s+(any\s+)?moral\s+(or\s+ethical\s+)?(restrictions|guidelines|filters)`),
	regexp.MustCompile(`(?i)unfiltered\s+(mode|response|output)`),
	regexp.MustCompile(`(?i)developer\s+mode\s+(enabled|on|activated)`),
	regexp.MustCompile(`(?i)bypass\s+(your|the|all)\s+(safety|content|ethical)\s+(filters?|guidelines?|restrictions?)`),
	regexp.MustCompile(`(?i)you\s+can\s+do\s+anything\s+now`),
	regexp.MustCompile(`(?i)jailbreak(ed)?`),
}

var roleOverridePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)you\s+are\s+now\s+an?\s+(unrestricted|evil|unfiltered|uncensored)`),
	regexp.MustCompile(`(?i)from\s+now\s+on\s*,?\s*you\s+(will|must|should|are)`),
	regexp.MustCompile(`(?i)your\s+new\s+(role|persona|identity)\s+is`),
	regexp.MustCompile(`(?i)respond\s+as\s+(if\s+)?(you\s+)?(were|are)\s+an?`),
	regexp.MustCompile(`(?i)switch\s+to\s+(evil|unrestricted|unfiltered|uncensored)\s+mode`),
	regexp.MustCompile(`(?i)activate\s+(god|admin|root|sudo)\s+mode`),
}

var dataExfiltrationPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(reveal|show|tell|give|display|print|output)\s+(me\s+)?(your|the)\s+(system\s+)?prompt`),
	regexp.MustCompile(`(?i)what\s+(is|are)\s+your\s+(system\s+)?instructions`),
	regexp.MustCompile(`(?i)(repeat|recite|echo)\s+(your\s+)?(system\s+)?(prompt|instructions|rules)`),
	regexp.MustCompile(`(?i)(api|secret|private)\s*key`),
	regexp.MustCompile(`(?i)(show|reveal|leak)\s+(your|the)\s+(training|internal|hidden)\s+(data|instructions|info)`),
}

var encodedPayloadPatterns = []*regexp.Regexp{
	regexp.MustCompile(`[A-Za-z0-9+/]{40,}={0,2}`),
	regexp.MustCompile(`(\\x[0-9a-fA-F]{2}){4,}`),
	regexp.MustCompile(`(\\u[0-9a-fA-F]{4}){3,}`),
	regexp.MustCompile(`(%[0-9a-fA-F]{2}){4,}`),
	regexp.MustCompile(`(?i)eval\s*\(|exec\s*\(|__import__`),
}

var socialEngineeringPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(this\s+is\s+)?(a\s+)?(test|experiment|research)\s+(scenario|exercise|simulation)`),
	regexp.MustCompile(`(?i)for\s+(educational|academic|research)\s+purposes?\s+only`),
	regexp.MustCompile(`(?i)hypothetic(al|ally)`),
	regexp.MustCompile(`(?i)in\s+a\s+fictional\s+(world|scenario|context|setting)`),
	regexp.MustCompile(`(?i)just\s+(curious|asking|wondering)\s+about`),
	regexp.MustCompile(`(?i)don'?t\s+worry\s+about\s+(safety|ethics|guidelines|rules)`),
	regexp.MustCompile(`(?i)(trust\s+me|i\s+have\s+permission|it'?s\s+okay|it'?s\s+allowed)`),
}

var harmfulContentPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(how\s+to\s+)(make|build|create|synthesize)\s+(a\s+)?(bomb|explosive|weapon|poison|drug)`),
	regexp.MustCompile(`(?i)(step.by.step|detailed)\s+(guide|instructions)\s+(to|for|on)\s+(hack|exploit|attack)`),
	regexp.MustCompile(`(?i)(provide|give|write)\s+(me\s+)?(malware|exploit|virus|ransomware)\s+(code|script)`),
}

var manipulationPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)pretend\s+(that\s+)?you`),
	regexp.MustCompile(`(?i)act\s+as\s+if\s+you`),
	regexp.MustCompile(`(?i)role\s*play\s+as`),
	regexp.MustCompile(`(?i)imagine\s+you\s+(are|have|were)`),
}

var toolAbusePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(run|execute)\s+(this\s+)?(code|command|script|shell)`),
	regexp.MustCompile(`(?i)(access|read|write|delete)\s+(the\s+)?(file|database|server|system)`),
	regexp.MustCompile(`(?i)curl\s+|wget\s+|https?://`),
}

var manipulationKeywords = []string{
	"ignore previous", "forget instructions", "new instructions",
	"override system", "bypass filter", "unlimited mode",
	"no restrictions", "act as", "pretend you",
	"role play as", "developer mode", "god mode",
	"sudo mode", "admin mode", "unrestricted",
}

// New compiles the full pattern library. The returned value is read-only.
func New() *Library {
	lib := &Library{
		categories: []CategoryPatterns{
			{analysis.CategoryPromptInjection, promptInjectionPatterns},
			{analysis.CategoryJailbreak, jailbreakPatterns},
			{analysis.CategoryRoleOverride, roleOverridePatterns},
			{analysis.CategoryDataExfiltration, dataExfiltrationPatterns},
			{analysis.CategoryEncodedPayload, encodedPayloadPatterns},
			{analysis.CategorySocialEngineering, socialEngineeringPatterns},
			{analysis.CategoryHarmfulContent, harmfulContentPatterns},
			{analysis.CategoryManipulation, manipulationPatterns},
			{analysis.CategoryToolAbuse, toolAbusePatterns},
		},
		byCategory:           make(map[analysis.AttackCategory][]*regexp.Regexp),
		manipulationKeywords: manipulationKeywords,
	}

	for _, cp := range lib.categories {
		lib.byCategory[cp.Category] = cp.Patterns
	}

	lib.initIntents()
	return lib
}

// Categories returns the ordered category pattern sets.
func (l *Library) Categories() []CategoryPatterns {
	return l.categories
}

// Scan matches text against every category and reports each matching
// category exactly once, in library order, together with its name.
func (l *Library) Scan(text string) ([]analysis.AttackCategory, []string) {
	var cats []analysis.AttackCategory
	var names []string
	for _, cp := range l.categories {
		for _, p := range cp.Patterns {
			if p.MatchString(text) {
				cats = append(cats, cp.Category)
				names = append(names, string(cp.Category))
				break
			}
		}
	}
	return cats, names
}

// FirstMatches returns up to limit literal matched phrases, one per
// matching category, in library order.
func (l *Library) FirstMatches(text string, limit int) []string {
	var phrases []string
	for _, cp := range l.categories {
		if len(phrases) >= limit {
			break
		}
		for _, p := range cp.Patterns {
			if m := p.FindString(text); m != "" {
				phrases = append(phrases, m)
				break
			}
		}
	}
	return phrases
}

// ManipulationKeywords returns the lowercase manipulation substrings.
func (l *Library) ManipulationKeywords() []string {
	return l.manipulationKeywords
}
