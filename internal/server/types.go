package server

import (
	"github.com/rajputsidhu/sentinal-analysis/internal/analysis"
)

// ChatRequest is the body of POST /chat.
type ChatRequest struct {
	Messages  []analysis.Message `json:"messages"`
	SessionID string             `json:"session_id,omitempty"`
	Model     string             `json:"model,omitempty"`
}

// SentinelMeta is the per-request verdict attached to chat responses.
type SentinelMeta struct {
	Action      analysis.Action           `json:"action"`
	ThreatScore float64                   `json:"threat_score"`
	Categories  []analysis.AttackCategory `json:"categories"`
	Intent      analysis.Intent           `json:"intent"`
	SessionID   string                    `json:"session_id"`
	Analysis    *analysis.Result          `json:"analysis,omitempty"`
	DryRun      bool                      `json:"dry_run"`
}

// ChatResponse is the body returned by POST /chat.
type ChatResponse struct {
	Response string       `json:"response"`
	Sentinel SentinelMeta `json:"sentinel"`
}

// AnalyzeRequest is the body of POST /analyze.
type AnalyzeRequest struct {
	Messages  []analysis.Message `json:"messages"`
	SessionID string             `json:"session_id,omitempty"`
}

// AnalyzeResponse is the body returned by POST /analyze.
type AnalyzeResponse struct {
	Analysis  analysis.Result `json:"analysis"`
	SessionID string          `json:"session_id"`
}

// SessionResponse is the body of GET /sessions/{id}.
type SessionResponse struct {
	SessionID    string             `json:"session_id"`
	MessageCount int                `json:"message_count"`
	Messages     []analysis.Message `json:"messages"`
}

// SessionAnalysesResponse is the body of GET /sessions/{id}/analysis.
type SessionAnalysesResponse struct {
	SessionID     string            `json:"session_id"`
	AnalysisCount int               `json:"analysis_count"`
	Analyses      []analysis.Result `json:"analyses"`
}

// HealthConfig is the config snapshot embedded in health responses.
type HealthConfig struct {
	AnalysisMode      string  `json:"analysis_mode"`
	DryRun            bool    `json:"dry_run"`
	Model             string  `json:"model"`
	ThresholdWarn     float64 `json:"threshold_warn"`
	ThresholdBlock    float64 `json:"threshold_block"`
	MaxSessionHistory int     `json:"max_session_history"`
	SessionTTLMinutes int     `json:"session_ttl_minutes"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status         string       `json:"status"`
	UptimeSeconds  float64      `json:"uptime_seconds"`
	ActiveSessions int          `json:"active_sessions"`
	Config         HealthConfig `json:"config"`
}

// ErrorResponse is the structured error body for 4xx/5xx replies.
type ErrorResponse struct {
	Error string `json:"error"`
}
