package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/hyperjump/qexpand/internal/feedback"
	"github.com/hyperjump/qexpand/internal/models"
	"github.com/hyperjump/qexpand/internal/storage"
	"go.uber.org/zap"
)

// expandRequest starts a feedback session. Zero fields use the server defaults.
type expandRequest struct {
	Query          string `json:"query"`
	Mode           string `json:"mode,omitempty"`
	Iterations     int    `json:"iterations,omitempty"`
	ExpansionTerms int    `json:"expansion_terms,omitempty"`
	TopK           int    `json:"top_k,omitempty"`
	// RelevantIDs are the ids judged relevant; only used by /feedback.
	RelevantIDs []int `json:"relevant_ids,omitempty"`
}

func (s *Server) sessionOptions(req *expandRequest) (feedback.Options, error) {
	opts := s.deps.Feedback
	if req.Mode != "" {
		mode, err := models.ParseMode(req.Mode)
		if err != nil {
			return opts, err
		}
		opts.Mode = mode
	}
	if req.Iterations < 0 || req.Iterations > maxIterations {
		return opts, fmt.Errorf("iterations must be between 1 and %d", maxIterations)
	}
	if req.Iterations > 0 {
		opts.Iterations = req.Iterations
	}
	if req.ExpansionTerms < 0 {
		return opts, errors.New("expansion_terms must be positive")
	}
	if req.ExpansionTerms > 0 {
		opts.ExpansionTerms = req.ExpansionTerms
	}
	return opts, nil
}

func (s *Server) decodeExpand(w http.ResponseWriter, r *http.Request) (*expandRequest, feedback.Options, bool) {
	var req expandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return nil, feedback.Options{}, false
	}
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		s.respondError(w, http.StatusBadRequest, "query is required")
		return nil, feedback.Options{}, false
	}
	opts, err := s.sessionOptions(&req)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return nil, feedback.Options{}, false
	}
	return &req, opts, true
}

// handleExpand runs a pseudo relevance feedback session: the first top_k results of
// every round are taken as relevant.
func (s *Server) handleExpand(w http.ResponseWriter, r *http.Request) {
	req, opts, ok := s.decodeExpand(w, r)
	if !ok {
		return
	}
	k := req.TopK
	if k <= 0 {
		k = feedback.DefaultTopK
	}
	s.runSession(w, r, req.Query, opts, feedback.TopK{K: k})
}

// handleFeedback runs a session labeled by the caller's fixed relevance judgments.
func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	req, opts, ok := s.decodeExpand(w, r)
	if !ok {
		return
	}
	if len(req.RelevantIDs) == 0 {
		s.respondError(w, http.StatusBadRequest, "relevant_ids is required")
		return
	}
	s.runSession(w, r, req.Query, opts, feedback.NewJudgments(req.RelevantIDs...))
}

func (s *Server) runSession(w http.ResponseWriter, r *http.Request, query string, opts feedback.Options, oracle feedback.Oracle) {
	s.logger.Debug("feedback session request", zap.String("query", query), zap.String("mode", string(opts.Mode)))
	loop := feedback.NewLoop(s.deps.Backend, oracle, s.deps.Tokenizer, opts, s.deps.LoopOptions...)
	sess, err := loop.Run(r.Context(), query)
	if err != nil {
		s.logger.Error("feedback session failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, sess)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	offset, limit, err := pageParams(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	sessions, err := s.deps.Storage.ListSessions(r.Context(), offset, limit)
	if err != nil {
		s.logger.Error("list sessions failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if sessions == nil {
		sessions = []*models.Session{}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"sessions": sessions, "offset": offset, "limit": limit})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.deps.Storage.GetSession(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, storage.ErrNotFound) {
		s.respondError(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, sess)
}

// handleIndexPlays accepts a JSON array of plays (or a single play) in the corpus record format.
func (s *Server) handleIndexPlays(w http.ResponseWriter, r *http.Request) {
	if s.deps.Indexer == nil {
		s.respondError(w, http.StatusNotImplemented, "local corpus not enabled")
		return
	}
	var raw json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	var records []models.PlayRecord
	trimmed := strings.TrimSpace(string(raw))
	if strings.HasPrefix(trimmed, "[") {
		if err := json.Unmarshal(raw, &records); err != nil {
			s.respondError(w, http.StatusBadRequest, "invalid plays: "+err.Error())
			return
		}
	} else {
		var rec models.PlayRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			s.respondError(w, http.StatusBadRequest, "invalid play: "+err.Error())
			return
		}
		records = append(records, rec)
	}
	plays := make([]*models.Play, 0, len(records))
	for i := range records {
		p, ok := records[i].ToPlay()
		if !ok {
			s.respondError(w, http.StatusBadRequest, fmt.Sprintf("play %d: play_id is required", i))
			return
		}
		p.Source = "api"
		plays = append(plays, p)
	}
	if err := s.deps.Indexer.IndexPlays(r.Context(), plays); err != nil {
		s.logger.Error("indexing plays failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusCreated, map[string]interface{}{"indexed": len(plays), "status": "indexed"})
}

func (s *Server) handleGetPlay(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid play id")
		return
	}
	play, err := s.deps.Storage.GetPlay(r.Context(), id)
	if err != nil {
		s.respondError(w, http.StatusNotFound, "play not found")
		return
	}
	s.respondJSON(w, http.StatusOK, play)
}

func (s *Server) handleDeletePlay(w http.ResponseWriter, r *http.Request) {
	if s.deps.Indexer == nil {
		s.respondError(w, http.StatusNotImplemented, "local corpus not enabled")
		return
	}
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid play id")
		return
	}
	s.logger.Debug("delete play request", zap.Int("id", id))
	if err := s.deps.Indexer.DeletePlay(r.Context(), id); err != nil {
		s.logger.Error("deletion failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleCorpusPathsList(w http.ResponseWriter, r *http.Request) {
	if s.deps.Watcher == nil {
		s.respondError(w, http.StatusNotImplemented, "watch not enabled")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"paths": s.deps.Watcher.Paths()})
}

type corpusPathRequest struct {
	Path string `json:"path"`
	Sync *bool  `json:"sync,omitempty"`
}

func (s *Server) handleCorpusPathsAdd(w http.ResponseWriter, r *http.Request) {
	if s.deps.Watcher == nil {
		s.respondError(w, http.StatusNotImplemented, "watch not enabled")
		return
	}
	var req corpusPathRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Path == "" {
		s.respondError(w, http.StatusBadRequest, "path is required")
		return
	}
	abs, err := filepath.Abs(req.Path)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid path")
		return
	}
	if _, err := os.Stat(abs); err != nil {
		if os.IsNotExist(err) {
			s.respondError(w, http.StatusNotFound, "path not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	syncExisting := true
	if req.Sync != nil {
		syncExisting = *req.Sync
	}
	s.logger.Debug("corpus path add request", zap.String("path", abs), zap.Bool("sync_existing", syncExisting))
	if err := s.deps.Watcher.AddPath(abs, syncExisting); err != nil {
		s.logger.Error("corpus path add failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusCreated, map[string]string{"path": abs, "status": "added"})
}

func (s *Server) handleCorpusPathsRemove(w http.ResponseWriter, r *http.Request) {
	if s.deps.Watcher == nil {
		s.respondError(w, http.StatusNotImplemented, "watch not enabled")
		return
	}
	path := r.URL.Query().Get("path")
	if path == "" {
		s.respondError(w, http.StatusBadRequest, "path is required")
		return
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid path")
		return
	}
	if err := s.deps.Watcher.RemovePath(abs); err != nil {
		s.logger.Error("corpus path remove failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"path": abs, "status": "removed"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	plays, err := s.deps.Storage.CountPlays(ctx)
	if err != nil {
		s.logger.Error("status: count plays failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	sessions, err := s.deps.Storage.CountSessions(ctx)
	if err != nil {
		s.logger.Error("status: count sessions failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	opts := s.deps.Feedback
	resp := map[string]interface{}{
		"plays":    plays,
		"sessions": sessions,
		"feedback": map[string]interface{}{
			"mode":               opts.Mode,
			"iterations":         opts.Iterations,
			"expansion_terms":    opts.ExpansionTerms,
			"reward":             opts.Params.Reward,
			"penalty":            opts.Params.Penalty,
			"neighborhood_bonus": opts.Params.NeighborhoodBonus,
			"stemming":           s.deps.Tokenizer.Stemming(),
		},
	}
	if cfg := s.deps.Config; cfg != nil {
		resp["backend"] = cfg.Backend.Kind
		resp["database_path"] = cfg.Storage.DatabasePath
		resp["bleve_index_path"] = cfg.Storage.BleveIndexPath
		files := append(storage.DatabaseFiles(cfg.Storage.DatabasePath), cfg.Storage.BleveIndexPath)
		if diskBytes, err := storage.DiskUsageBytes(files...); err == nil {
			resp["disk_usage_bytes"] = diskBytes
		}
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func pageParams(r *http.Request) (offset, limit int, err error) {
	limit = 20
	q := r.URL.Query()
	if v := q.Get("offset"); v != "" {
		if offset, err = strconv.Atoi(v); err != nil || offset < 0 {
			return 0, 0, errors.New("invalid offset")
		}
	}
	if v := q.Get("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil || limit < 1 || limit > 100 {
			return 0, 0, errors.New("limit must be between 1 and 100")
		}
	}
	return offset, limit, nil
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
