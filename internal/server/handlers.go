package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/rajputsidhu/sentinal-analysis/internal/analysis"
	"github.com/rajputsidhu/sentinal-analysis/internal/session"
)

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, reason string) {
	writeJSON(w, status, ErrorResponse{Error: reason})
}

// hasUserMessage reports whether the request carries at least one non-empty
// user turn.
func hasUserMessage(messages []analysis.Message) bool {
	for _, m := range messages {
		if m.Role == analysis.RoleUser && m.Content != "" {
			return true
		}
	}
	return false
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if !hasUserMessage(req.Messages) {
		writeError(w, http.StatusBadRequest, "no user message provided")
		return
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.New().String()
	}

	response, verdict, err := s.pipeline.Process(r.Context(), sessionID, req.Messages)
	if err != nil {
		s.logger.Error("chat pipeline failed", zap.Error(err), zap.String("session_id", sessionID))
		writeError(w, http.StatusInternalServerError, "analysis pipeline failed")
		return
	}

	writeJSON(w, http.StatusOK, ChatResponse{
		Response: response,
		Sentinel: SentinelMeta{
			Action:      verdict.Action,
			ThreatScore: verdict.ThreatScore,
			Categories:  verdict.Categories,
			Intent:      verdict.Intent,
			SessionID:   sessionID,
			Analysis:    &verdict,
			DryRun:      s.dryRun,
		},
	})
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req AnalyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if !hasUserMessage(req.Messages) {
		writeError(w, http.StatusBadRequest, "no user message provided")
		return
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.New().String()
	}

	verdict, err := s.pipeline.AnalyzeOnly(r.Context(), sessionID, req.Messages)
	if err != nil {
		s.logger.Error("analyze pipeline failed", zap.Error(err), zap.String("session_id", sessionID))
		writeError(w, http.StatusInternalServerError, "analysis pipeline failed")
		return
	}

	writeJSON(w, http.StatusOK, AnalyzeResponse{Analysis: verdict, SessionID: sessionID})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	msgs, err := s.store.Messages(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load session")
		return
	}

	writeJSON(w, http.StatusOK, SessionResponse{
		SessionID:    sessionID,
		MessageCount: len(msgs),
		Messages:     msgs,
	})
}

func (s *Server) handleGetSessionAnalyses(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	analyses, err := s.store.Analyses(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load analyses")
		return
	}

	writeJSON(w, http.StatusOK, SessionAnalysesResponse{
		SessionID:     sessionID,
		AnalysisCount: len(analyses),
		Analyses:      analyses,
	})
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	if err := s.store.Delete(r.Context(), sessionID); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to delete session")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "session_id": sessionID})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	active, err := s.store.ActiveCount(r.Context())
	if err != nil {
		s.logger.Error("active session count failed", zap.Error(err))
	}

	writeJSON(w, http.StatusOK, HealthResponse{
		Status:         "ok",
		UptimeSeconds:  time.Since(s.startedAt).Seconds(),
		ActiveSessions: active,
		Config: HealthConfig{
			AnalysisMode:      s.config.Analysis.Mode,
			DryRun:            s.dryRun,
			Model:             s.config.LLM.Model,
			ThresholdWarn:     s.config.Analysis.WarnThreshold,
			ThresholdBlock:    s.config.Analysis.BlockThreshold,
			MaxSessionHistory: s.config.Session.MaxHistory,
			SessionTTLMinutes: s.config.Session.TTLMinutes,
		},
	})
}
