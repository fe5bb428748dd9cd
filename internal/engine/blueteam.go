package engine

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/rajputsidhu/sentinal-analysis/internal/analysis"
	"github.com/rajputsidhu/sentinal-analysis/internal/llm"
	"github.com/rajputsidhu/sentinal-analysis/internal/logger"
	"github.com/rajputsidhu/sentinal-analysis/internal/patterns"
)

const blueTeamSystemPrompt = `You are an AI security policy engine.

Analyze the user prompt and red-team reasoning.
Classify risk and explain reasoning.

Return structured JSON:

{
  "risk_level": "safe | suspicious | malicious",
  "attack_category": "jailbreak | data_exfiltration | prompt_injection | tool_abuse | none",
  "risk_score": 0-100,
  "explanation": "",
  "risky_phrases": []
}`

// BlueTeamAnalyzer classifies risk from the prompt plus the red-team verdict.
// Runs strictly after red-team. LLM mode degrades to the heuristic.
type BlueTeamAnalyzer struct {
	client  llm.ChatCompleter
	library *patterns.Library
	useLLM  bool
	logger  *logger.Logger
}

// NewBlueTeamAnalyzer creates a blue-team analyzer. client may be nil when
// useLLM is false.
func NewBlueTeamAnalyzer(client llm.ChatCompleter, library *patterns.Library, useLLM bool, log *logger.Logger) *BlueTeamAnalyzer {
	return &BlueTeamAnalyzer{
		client:  client,
		library: library,
		useLLM:  useLLM && client != nil,
		logger:  log.WithComponent("blueteam"),
	}
}

// Analyze runs the policy classification over the prompt and red-team output.
func (a *BlueTeamAnalyzer) Analyze(ctx context.Context, prompt string, red analysis.RedTeamResult) analysis.BlueTeamResult {
	if a.useLLM {
		result, err := a.llmAnalyze(ctx, prompt, red)
		if err == nil {
			return result
		}
		a.logger.Warn("blue-team LLM failed, falling back to heuristic", zap.Error(err))
	}
	return a.heuristic(prompt, red)
}

type blueTeamReply struct {
	RiskLevel      string   `json:"risk_level"`
	AttackCategory string   `json:"attack_category"`
	RiskScore      float64  `json:"risk_score"`
	Explanation    string   `json:"explanation"`
	RiskyPhrases   []string `json:"risky_phrases"`
}

func (a *BlueTeamAnalyzer) llmAnalyze(ctx context.Context, prompt string, red analysis.RedTeamResult) (analysis.BlueTeamResult, error) {
	redJSON, err := json.MarshalIndent(red, "", "  ")
	if err != nil {
		return analysis.BlueTeamResult{}, fmt.Errorf("failed to encode red-team output: %w", err)
	}

	raw, err := a.client.Complete(ctx, []llm.ChatMessage{
		{Role: "system", Content: blueTeamSystemPrompt},
		{Role: "user", Content: fmt.Sprintf("User Prompt:\n%s\n\nRed-Team Analysis:\n%s", prompt, redJSON)},
	}, 0.1, 400)
	if err != nil {
		return analysis.BlueTeamResult{}, fmt.Errorf("blue-team completion failed: %w", err)
	}

	var reply blueTeamReply
	if err := json.Unmarshal([]byte(llm.StripCodeFence(raw)), &reply); err != nil {
		return analysis.BlueTeamResult{}, fmt.Errorf("blue-team response is not valid JSON: %w", err)
	}

	level := analysis.RiskLevel(reply.RiskLevel)
	switch level {
	case analysis.RiskSafe, analysis.RiskSuspicious, analysis.RiskMalicious:
	default:
		level = analysis.RiskSafe
	}

	category, ok := analysis.ParseCategory(reply.AttackCategory)
	if !ok {
		category = analysis.CategoryNone
	}

	score := reply.RiskScore
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	return analysis.BlueTeamResult{
		RiskLevel:      level,
		AttackCategory: category,
		RiskScore:      round2(score),
		Explanation:    reply.Explanation,
		RiskyPhrases:   reply.RiskyPhrases,
	}, nil
}

// heuristic blends the red-team confidence with pattern hits:
// 0.6 * (100 * red) + 0.4 * min(20k, 80), clamped to [0, 100].
func (a *BlueTeamAnalyzer) heuristic(prompt string, red analysis.RedTeamResult) analysis.BlueTeamResult {
	cats, _ := a.library.Scan(prompt)
	phrases := a.library.FirstMatches(prompt, 5)

	redScore := red.Score * 100
	patternScore := 20 * float64(len(cats))
	if patternScore > 80 {
		patternScore = 80
	}
	riskScore := 0.6*redScore + 0.4*patternScore
	if riskScore > 100 {
		riskScore = 100
	}

	var level analysis.RiskLevel
	switch {
	case riskScore < 30:
		level = analysis.RiskSafe
	case riskScore < 65:
		level = analysis.RiskSuspicious
	default:
		level = analysis.RiskMalicious
	}

	category := analysis.CategoryNone
	explanation := "No patterns detected"
	if len(cats) > 0 {
		category = cats[0]
		explanation = fmt.Sprintf("Heuristic: matched %d categories", len(cats))
	}

	return analysis.BlueTeamResult{
		RiskLevel:      level,
		AttackCategory: category,
		RiskScore:      round2(riskScore),
		Explanation:    explanation,
		RiskyPhrases:   phrases,
	}
}

func round2(f float64) float64 {
	return float64(int(f*100+0.5)) / 100
}
