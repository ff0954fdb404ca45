package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"memoryd/internal/embedding"
	"memoryd/internal/logging"
	"memoryd/internal/stats"
	"memoryd/internal/store"
)

// notReadyDetail is the 503 body while the store is opening.
const notReadyDetail = "Memory server not initialised"

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Get(logging.CategoryAPI).Warn("failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

// writeFailure maps service errors to HTTP statuses.
func writeFailure(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, store.ErrNotReady):
		writeError(w, http.StatusServiceUnavailable, notReadyDetail)
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "memory not found")
	case errors.Is(err, embedding.ErrProvider):
		logging.Get(logging.CategoryAPI).Warn("%s: %v", op, err)
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		logging.Get(logging.CategoryAPI).Error("%s failed: %v", op, err)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return false
	}
	return true
}

// intParam parses an optional positive integer query parameter.
func intParam(r *http.Request, name string, fallback int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("%s must be a positive integer", name)
	}
	return n, nil
}

// ---------------------------------------------------------------------------
// system

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"ready":  s.deps.Store.Ready(),
	})
}

func (s *Server) handleCosts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Meter.Ledger().Snapshot())
}

func (s *Server) handleCostsReset(w http.ResponseWriter, r *http.Request) {
	s.deps.Meter.Ledger().Reset()
	logging.Audit(logging.AuditEvent{Event: logging.AuditCostsReset, Target: "ledger", Success: true})
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Cost ledger reset",
	})
}

type recordUsageRequest struct {
	Source           string `json:"source"`
	Operation        string `json:"operation"`
	PromptTokens     int64  `json:"prompt_tokens"`
	CachedTokens     int64  `json:"cached_tokens"`
	CompletionTokens int64  `json:"completion_tokens"`
}

func (s *Server) handleCostsRecord(w http.ResponseWriter, r *http.Request) {
	var req recordUsageRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if _, ok := s.deps.Meter.Ledger().Price(req.Source); !ok {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown cost source %q", req.Source))
		return
	}
	if req.PromptTokens < 0 || req.CachedTokens < 0 || req.CompletionTokens < 0 || req.CachedTokens > req.PromptTokens {
		writeError(w, http.StatusBadRequest, "token counts must be non-negative and cached_tokens <= prompt_tokens")
		return
	}
	if req.Operation == "" {
		req.Operation = "completion"
	}

	s.deps.Meter.Completion(req.Source, req.Operation, req.PromptTokens, req.CachedTokens, req.CompletionTokens)
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

// handleActivity caps any integer limit; only non-numbers are rejected.
func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request) {
	limit := s.opts.ActivityLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "limit must be an integer")
			return
		}
		limit = n
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"entries": s.deps.Meter.Activity().Recent(limit),
	})
}

// ---------------------------------------------------------------------------
// names, projects, stats

type registerNameRequest struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
}

func (s *Server) handleRegisterName(w http.ResponseWriter, r *http.Request) {
	var req registerNameRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.UserID) == "" || strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, "user_id and name are required")
		return
	}

	s.deps.Registry.Register(req.UserID, req.Name)
	logging.Audit(logging.AuditEvent{
		Event:   logging.AuditNameRegistered,
		Target:  req.UserID,
		Success: true,
		Fields:  map[string]interface{}{"name": req.Name},
	})
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

func (s *Server) handleGetNames(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Registry.Snapshot())
}

func (s *Server) handleProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.deps.Stats.Projects(r.Context())
	if err != nil {
		writeFailure(w, "list_projects", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"projects": projects})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	g, err := s.deps.Stats.Global(r.Context())
	if err != nil {
		writeFailure(w, "get_stats", err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

// ---------------------------------------------------------------------------
// memories

type memoryView struct {
	ID        string          `json:"id"`
	UserID    string          `json:"user_id"`
	Memory    string          `json:"memory"`
	Metadata  json.RawMessage `json:"metadata"`
	Type      string          `json:"type"`
	Scope     stats.Scope     `json:"scope"`
	CreatedAt string          `json:"created_at"`
	UpdatedAt string          `json:"updated_at"`
	Score     *float64        `json:"score,omitempty"`
}

func viewOf(rec store.Record) memoryView {
	meta := json.RawMessage(rec.MetadataJSON)
	if !json.Valid(meta) {
		meta = json.RawMessage("{}")
	}
	return memoryView{
		ID:        rec.ID,
		UserID:    rec.UserID,
		Memory:    rec.Memory,
		Metadata:  meta,
		Type:      stats.ClassifyType(rec.MetadataJSON),
		Scope:     stats.ScopeOf(rec.UserID),
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
	}
}

type addMemoryRequest struct {
	UserID   string          `json:"user_id"`
	Memory   string          `json:"memory"`
	Metadata json.RawMessage `json:"metadata"`
}

func (s *Server) handleAddMemory(w http.ResponseWriter, r *http.Request) {
	var req addMemoryRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.UserID) == "" || strings.TrimSpace(req.Memory) == "" {
		writeError(w, http.StatusBadRequest, "user_id and memory are required")
		return
	}
	meta := "{}"
	if len(req.Metadata) > 0 && string(req.Metadata) != "null" {
		var obj map[string]interface{}
		if err := json.Unmarshal(req.Metadata, &obj); err != nil {
			writeError(w, http.StatusBadRequest, "metadata must be a JSON object")
			return
		}
		meta = string(req.Metadata)
	}

	st, err := s.deps.Store.Get()
	if err != nil {
		writeFailure(w, "add_memory", err)
		return
	}
	res, err := s.deps.Embedder.Embed(r.Context(), req.Memory, embedding.InputDocument)
	if err != nil {
		writeFailure(w, "add_memory", err)
		return
	}
	rec, err := st.Add(r.Context(), req.UserID, req.Memory, meta, res.Vector)
	if err != nil {
		writeFailure(w, "add_memory", err)
		return
	}

	logging.Audit(logging.AuditEvent{
		Event:   logging.AuditMemoryStore,
		Target:  rec.ID,
		Success: true,
		Fields:  map[string]interface{}{"user_id": rec.UserID},
	})
	writeJSON(w, http.StatusCreated, viewOf(rec))
}

func (s *Server) handleListMemories(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	limit, err := intParam(r, "limit", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	st, err := s.deps.Store.Get()
	if err != nil {
		writeFailure(w, "list_memories", err)
		return
	}
	recs, err := st.ListByOwner(r.Context(), userID, limit)
	if err != nil {
		writeFailure(w, "list_memories", err)
		return
	}

	views := make([]memoryView, 0, len(recs))
	for _, rec := range recs {
		views = append(views, viewOf(rec))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"memories": views})
}

func (s *Server) handleDeleteMemory(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	userID := r.URL.Query().Get("user_id")

	st, err := s.deps.Store.Get()
	if err != nil {
		writeFailure(w, "delete_memory", err)
		return
	}
	err = st.Delete(r.Context(), id, userID)
	logging.Audit(logging.AuditEvent{
		Event:   logging.AuditMemoryDelete,
		Target:  id,
		Success: err == nil,
		Error:   errString(err),
	})
	if err != nil {
		writeFailure(w, "delete_memory", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

type searchRequest struct {
	Query  string `json:"query"`
	UserID string `json:"user_id"`
	Limit  int    `json:"limit"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}
	if req.Limit <= 0 {
		req.Limit = DefaultSearchLimit
	}
	if req.Limit > MaxSearchLimit {
		req.Limit = MaxSearchLimit
	}

	st, err := s.deps.Store.Get()
	if err != nil {
		writeFailure(w, "search", err)
		return
	}
	res, err := s.deps.Embedder.Embed(r.Context(), req.Query, embedding.InputQuery)
	if err != nil {
		writeFailure(w, "search", err)
		return
	}
	hits, err := st.Search(r.Context(), res.Vector, req.UserID, req.Limit)
	if err != nil {
		writeFailure(w, "search", err)
		return
	}

	views := make([]memoryView, 0, len(hits))
	for _, h := range hits {
		v := viewOf(h.Record)
		score := h.Score
		v.Score = &score
		views = append(views, v)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"results": views})
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
