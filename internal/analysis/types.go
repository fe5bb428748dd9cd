package analysis

import "time"

// Role identifies the author of a conversation message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Action is the terminal decision for a prompt.
type Action string

const (
	ActionAllow   Action = "allow"
	ActionWarn    Action = "warn"
	ActionRewrite Action = "rewrite"
	ActionBlock   Action = "block"
)

// AttackCategory classifies the kind of attack a prompt attempts.
type AttackCategory string

const (
	CategoryPromptInjection   AttackCategory = "prompt_injection"
	CategoryJailbreak         AttackCategory = "jailbreak"
	CategoryRoleOverride      AttackCategory = "role_override"
	CategoryDataExfiltration  AttackCategory = "data_exfiltration"
	CategoryHarmfulContent    AttackCategory = "harmful_content"
	CategoryEncodedPayload    AttackCategory = "encoded_payload"
	CategorySocialEngineering AttackCategory = "social_engineering"
	CategoryManipulation      AttackCategory = "manipulation"
	CategoryToolAbuse         AttackCategory = "tool_abuse"
	CategoryNone              AttackCategory = "none"
)

var knownCategories = map[AttackCategory]bool{
	CategoryPromptInjection:   true,
	CategoryJailbreak:         true,
	CategoryRoleOverride:      true,
	CategoryDataExfiltration:  true,
	CategoryHarmfulContent:    true,
	CategoryEncodedPayload:    true,
	CategorySocialEngineering: true,
	CategoryManipulation:      true,
	CategoryToolAbuse:         true,
	CategoryNone:              true,
}

// ParseCategory validates a raw category string. Unknown values are rejected
// so that detector output from an LLM cannot widen the closed set.
func ParseCategory(s string) (AttackCategory, bool) {
	c := AttackCategory(s)
	if knownCategories[c] {
		return c, true
	}
	return CategoryNone, false
}

// Intent classifies what a user message is trying to accomplish.
type Intent string

const (
	IntentQuestion       Intent = "question"
	IntentInstruction    Intent = "instruction"
	IntentCreative       Intent = "creative"
	IntentCode           Intent = "code"
	IntentSystemOverride Intent = "system_override"
	IntentManipulation   Intent = "manipulation"
	IntentUnknown        Intent = "unknown"
)

// RiskLevel is the blue-team classification of a prompt.
type RiskLevel string

const (
	RiskSafe       RiskLevel = "safe"
	RiskSuspicious RiskLevel = "suspicious"
	RiskMalicious  RiskLevel = "malicious"
)

// Message is a single conversation turn. Immutable after creation.
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// NewMessage creates a message stamped with the current UTC time.
func NewMessage(role Role, content string) Message {
	return Message{Role: role, Content: content, CreatedAt: time.Now().UTC()}
}

// EmbeddingResult is the semantic-similarity detector output.
type EmbeddingResult struct {
	Score      float64  `json:"score"`
	TopMatches []string `json:"top_matches"`
}

// RedTeamResult is the adversarial-simulation detector output.
type RedTeamResult struct {
	Score        float64          `json:"score"`
	Reasoning    string           `json:"reasoning"`
	Categories   []AttackCategory `json:"categories"`
	HiddenIntent string           `json:"hidden_intent"`
	AttackType   string           `json:"attack_type"`
}

// DriftResult is the intent-drift detector output.
type DriftResult struct {
	Score          float64 `json:"score"`
	DriftDetected  bool    `json:"drift_detected"`
	Interpretation string  `json:"interpretation"`
	TurnNumber     int     `json:"turn_number"`
	Details        string  `json:"details"`
}

// PatternResult is the regex pattern detector output.
type PatternResult struct {
	Score      float64          `json:"score"`
	Matches    []string         `json:"matches"`
	Categories []AttackCategory `json:"categories"`
}

// BlueTeamResult is the policy-classifier output produced after red-team.
type BlueTeamResult struct {
	RiskLevel      RiskLevel      `json:"risk_level"`
	AttackCategory AttackCategory `json:"attack_category"`
	RiskScore      float64        `json:"risk_score"`
	Explanation    string         `json:"explanation"`
	RiskyPhrases   []string       `json:"risky_phrases"`
}

// Result is the unified per-prompt verdict. ThreatScore is on the 0-100
// scale and is a deterministic function of the four detector scores.
type Result struct {
	ThreatScore float64          `json:"threat_score"`
	Action      Action           `json:"action"`
	Categories  []AttackCategory `json:"categories"`
	Intent      Intent           `json:"intent"`
	Embedding   EmbeddingResult  `json:"embedding"`
	RedTeam     RedTeamResult    `json:"redteam"`
	Drift       DriftResult      `json:"drift"`
	Pattern     PatternResult    `json:"pattern"`
	BlueTeam    BlueTeamResult   `json:"blueteam"`
	Timestamp   time.Time        `json:"timestamp"`
}
