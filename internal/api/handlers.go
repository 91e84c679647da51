package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/mattjoyce/mcpserve/internal/dispatch"
	"github.com/mattjoyce/mcpserve/internal/ledger"
	"github.com/mattjoyce/mcpserve/internal/protocol"
	"github.com/mattjoyce/mcpserve/internal/supervisor"
)

// maxBodyBytes caps request bodies, matching the stdio message limit.
const maxBodyBytes = 4 * 1024 * 1024

// handleHealthz handles GET /healthz.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, HealthzResponse{
		Status:         "ok",
		UptimeSeconds:  int64(time.Since(s.startedAt).Seconds()),
		Mode:           string(s.sessions.Mode()),
		SessionsActive: len(s.sessions.List()),
		ToolsLoaded:    len(s.tools.ListTools()),
	})
}

// handleListTools handles GET /tools.
func (s *Server) handleListTools(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, protocol.ListToolsResult{Tools: s.tools.ListTools()})
}

// handleCallTool handles POST /tools/{tool}. The body is the arguments object.
func (s *Server) handleCallTool(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "tool")

	var args map[string]any
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &args); err != nil {
			s.writeError(w, http.StatusBadRequest, "arguments must be a JSON object")
			return
		}
	}

	result, err := s.tools.CallTool(r.Context(), name, args)
	if err != nil {
		var unknown *dispatch.UnknownToolError
		var invalid *dispatch.InvalidArgumentsError
		switch {
		case errors.As(err, &unknown):
			s.writeError(w, http.StatusNotFound, err.Error())
		case errors.As(err, &invalid):
			s.writeError(w, http.StatusUnprocessableEntity, err.Error())
		default:
			s.logger.Error("tool call failed", "tool", name, "error", err)
			s.writeError(w, http.StatusInternalServerError, "tool call failed")
		}
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// handleRPC handles POST /rpc: one JSON-RPC message answered by the tool server.
func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}
	resp := s.tools.HandleMessage(r.Context(), body)
	if resp == nil {
		w.WriteHeader(http.StatusAccepted)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

// handleListSessions handles GET /sessions.
func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, SessionListResponse{Sessions: s.sessions.List()})
}

// handleSessionHistory handles GET /sessions/history?limit=N.
func (s *Server) handleSessionHistory(w http.ResponseWriter, r *http.Request) {
	if s.ledger == nil {
		s.writeError(w, http.StatusNotFound, "session ledger is disabled")
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	rows, err := s.ledger.List(r.Context(), limit)
	if err != nil {
		s.logger.Error("failed to list session history", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list session history")
		return
	}
	if rows == nil {
		rows = []ledger.Session{}
	}
	respondJSON(w, http.StatusOK, SessionHistoryResponse{Sessions: rows})
}

// handleStartSession handles POST /sessions.
func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var req StartSessionRequest
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	}

	mode := s.sessions.Mode()
	if req.Mode != "" {
		m, err := supervisor.ParseMode(req.Mode)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		mode = m
	}
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}
	sc := s.config.SessionDefaults.Overlay(req.Config)

	ctx := r.Context()
	if s.config.StartTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.StartTimeout)
		defer cancel()
	}

	h, err := s.sessions.StartSessionMode(ctx, req.SessionID, mode, sc)
	if err != nil {
		s.writeStartError(w, req.SessionID, err)
		return
	}

	if h.Mode == supervisor.ModeStream {
		s.attachRelay(h)
	}
	respondJSON(w, http.StatusCreated, h.Info())
}

func (s *Server) writeStartError(w http.ResponseWriter, sessionID string, err error) {
	var spawnErr *supervisor.SpawnError
	var exitErr *supervisor.ExitError
	switch {
	case errors.As(err, &spawnErr):
		respondJSON(w, http.StatusBadGateway, StartErrorResponse{
			Error: err.Error(), Kind: KindSpawnError, SessionID: sessionID,
		})
	case errors.As(err, &exitErr):
		code := exitErr.Code
		respondJSON(w, http.StatusBadGateway, StartErrorResponse{
			Error: err.Error(), Kind: KindExitError, SessionID: sessionID, ExitCode: &code,
		})
	case errors.Is(err, supervisor.ErrSessionExists):
		s.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, supervisor.ErrShuttingDown):
		s.writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		respondJSON(w, http.StatusGatewayTimeout, StartErrorResponse{
			Error: err.Error(), Kind: KindCancelled, SessionID: sessionID,
		})
	default:
		s.logger.Error("failed to start session", "session_id", sessionID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to start session")
	}
}

// handleGetSession handles GET /sessions/{sessionID}.
func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")

	var resp SessionResponse
	if h, ok := s.sessions.Get(id); ok {
		info := h.Info()
		resp.Live = &info
	}
	if s.ledger != nil {
		rec, err := s.ledger.Get(r.Context(), id)
		switch {
		case err == nil:
			resp.Record = rec
		case errors.Is(err, ledger.ErrNotFound):
		default:
			s.logger.Error("failed to read session ledger", "session_id", id, "error", err)
		}
	}

	if resp.Live == nil && resp.Record == nil {
		s.writeError(w, http.StatusNotFound, "session not found")
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

// handleCloseSession handles DELETE /sessions/{sessionID}.
func (s *Server) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")

	h, ok := s.sessions.Get(id)
	if !ok {
		s.writeError(w, http.StatusNotFound, "session not found")
		return
	}
	if err := s.sessions.Close(id); err != nil {
		if errors.Is(err, supervisor.ErrSessionNotFound) {
			s.writeError(w, http.StatusNotFound, "session not found")
			return
		}
		s.logger.Error("failed to close session", "session_id", id, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to close session")
		return
	}
	s.dropRelay(id)

	code := -1
	if info := h.Info(); info.ExitCode != nil {
		code = *info.ExitCode
	}
	respondJSON(w, http.StatusOK, CloseSessionResponse{SessionID: id, ExitCode: code})
}

// handleSessionRPC handles POST /sessions/{sessionID}/rpc.
func (s *Server) handleSessionRPC(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")

	h, ok := s.sessions.Get(id)
	if !ok {
		s.writeError(w, http.StatusNotFound, "session not found")
		return
	}
	if h.Mode != supervisor.ModeStream {
		s.writeError(w, http.StatusConflict, "session runs in http mode; send requests to the worker's port")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}
	req, err := protocol.DecodeRequest(body)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rl := s.relayFor(h)
	if rl == nil {
		s.writeError(w, http.StatusConflict, "session streams are owned by another client")
		return
	}
	resp, err := rl.client.Do(r.Context(), req)
	if err != nil {
		s.logger.Warn("relay failed", "session_id", id, "method", req.Method, "error", err)
		s.writeError(w, http.StatusBadGateway, "worker did not answer: "+err.Error())
		return
	}
	if resp == nil {
		w.WriteHeader(http.StatusAccepted)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

// respondJSON is a helper to write JSON responses.
func respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, ErrorResponse{Error: message})
}
