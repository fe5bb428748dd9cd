package websocket

import (
	"time"

	"github.com/rajputsidhu/sentinal-analysis/internal/analysis"
)

// EventType represents the type of WebSocket event
type EventType string

const (
	// EventTypeVerdict is emitted once per analyzed prompt
	EventTypeVerdict EventType = "verdict"
	// EventTypeSystemStatus carries periodic gateway status
	EventTypeSystemStatus EventType = "system_status"
	// EventTypeConnection reports dashboard clients joining and leaving
	EventTypeConnection EventType = "connection"
)

// Event is the envelope sent to dashboard clients
type Event struct {
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// VerdictEvent summarizes one analyzed prompt
type VerdictEvent struct {
	SessionID   string                    `json:"session_id"`
	Action      analysis.Action           `json:"action"`
	ThreatScore float64                   `json:"threat_score"`
	Categories  []analysis.AttackCategory `json:"categories"`
	Intent      analysis.Intent           `json:"intent"`
	DryRun      bool                      `json:"dry_run"`
}

// SystemStatusEvent carries gateway health for the dashboard
type SystemStatusEvent struct {
	Status           string `json:"status"`
	UptimeSeconds    int64  `json:"uptime_seconds"`
	ActiveSessions   int    `json:"active_sessions"`
	ConnectedClients int    `json:"connected_clients"`
}

// ConnectionEvent reports dashboard connection changes
type ConnectionEvent struct {
	Action   string `json:"action"` // "connected", "disconnected"
	ClientID string `json:"client_id"`
	ClientIP string `json:"client_ip"`
}
