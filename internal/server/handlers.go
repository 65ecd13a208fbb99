package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bicesterbug/bbug-planning-reporter/internal/config"
	"github.com/bicesterbug/bbug-planning-reporter/internal/indexer"
	"github.com/bicesterbug/bbug-planning-reporter/internal/models"
	"github.com/bicesterbug/bbug-planning-reporter/internal/progress"
	"github.com/bicesterbug/bbug-planning-reporter/internal/retrieval"
	"github.com/bicesterbug/bbug-planning-reporter/internal/storage"
	"github.com/bicesterbug/bbug-planning-reporter/internal/watcher"
)

type ingestRequest struct {
	FilePath      string `json:"file_path"`
	CaseReference string `json:"case_reference"`
	DocumentType  string `json:"document_type,omitempty"`
}

type batchRequest struct {
	Paths         []string `json:"paths,omitempty"`
	Directory     string   `json:"directory,omitempty"`
	CaseReference string   `json:"case_reference"`
	DocumentType  string   `json:"document_type,omitempty"`
}

type batchAccepted struct {
	Status string `json:"status"`
	JobID  string `json:"job_id"`
	Files  int    `json:"files"`
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.logger.Debug("ingest request", zap.String("path", req.FilePath), zap.String("case", req.CaseReference))
	res := s.ingester.IngestDocument(r.Context(), req.FilePath, req.CaseReference, req.DocumentType)
	s.respondJSON(w, ingestStatusCode(res), res)
}

// ingestStatusCode maps caller mistakes to 4xx. Other outcomes, failures
// included, are reported in the body with 200.
func ingestStatusCode(res models.IngestResult) int {
	if res.Status != models.StatusError {
		return http.StatusOK
	}
	switch res.ErrorType {
	case models.ErrTypeInvalidInput, models.ErrTypeUnsupportedType:
		return http.StatusBadRequest
	case models.ErrTypeFileNotFound:
		return http.StatusNotFound
	default:
		return http.StatusOK
	}
}

// handleIngestBatch starts a background batch and returns its job id at once.
// Progress is published to the configured observers and the websocket hub.
func (s *Server) handleIngestBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.CaseReference) == "" {
		s.respondError(w, http.StatusBadRequest, "case_reference is required")
		return
	}
	paths := req.Paths
	if req.Directory != "" {
		found, err := indexer.CollectFiles(req.Directory)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		paths = append(paths, found...)
	}
	if len(paths) == 0 {
		s.respondError(w, http.StatusBadRequest, "no files to ingest")
		return
	}

	jobID := uuid.NewString()
	observers := append([]progress.Observer{progress.NewLogObserver(s.logger)}, s.observers...)
	if s.hub != nil {
		observers = append(observers, s.hub)
	}
	reporter := progress.NewReporter(
		progress.WithJobID(jobID),
		progress.WithObservers(observers...),
		progress.WithLogger(s.logger))

	s.jobs.Add(1)
	go func() {
		defer s.jobs.Done()
		items, err := s.ingester.IngestBatch(s.baseCtx, paths, req.CaseReference, req.DocumentType, reporter)
		reporter.Wait()
		if err != nil {
			s.logger.Warn("batch interrupted", zap.String("job_id", jobID), zap.Error(err))
			return
		}
		s.logger.Info("batch finished", zap.String("job_id", jobID), zap.Int("files", len(items)))
	}()
	s.respondJSON(w, http.StatusAccepted, batchAccepted{Status: "accepted", JobID: jobID, Files: len(paths)})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req retrieval.SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.logger.Debug("search request", zap.String("query", req.Query), zap.Int("limit", req.Limit))
	resp, err := s.retrieval.Search(r.Context(), req)
	if err != nil {
		s.respondRetrievalError(w, "search", err)
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleKeywordSearch(w http.ResponseWriter, r *http.Request) {
	var req retrieval.KeywordSearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	resp, err := s.retrieval.KeywordSearch(r.Context(), req)
	if err != nil {
		s.respondRetrievalError(w, "keyword search", err)
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHybridSearch(w http.ResponseWriter, r *http.Request) {
	var req retrieval.HybridSearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	resp, err := s.retrieval.HybridSearch(r.Context(), req)
	if err != nil {
		s.respondRetrievalError(w, "hybrid search", err)
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDocumentText(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	resp, err := s.retrieval.GetDocumentText(r.Context(), id)
	if err != nil {
		s.respondRetrievalError(w, "get document text", err)
		return
	}
	status := http.StatusOK
	if resp.ErrorType == models.ErrTypeDocumentNotFound {
		status = http.StatusNotFound
	}
	s.respondJSON(w, status, resp)
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.logger.Debug("delete document request", zap.String("id", id))
	resp, err := s.retrieval.DeleteDocument(r.Context(), id)
	if err != nil {
		s.respondRetrievalError(w, "delete", err)
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

// handleListDocuments expects the case reference path-escaped, since case
// references contain slashes.
func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	caseRef, err := url.PathUnescape(chi.URLParam(r, "case"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid case reference")
		return
	}
	resp, err := s.retrieval.ListDocuments(r.Context(), caseRef)
	if err != nil {
		s.respondRetrievalError(w, "list documents", err)
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	stats, err := s.retrieval.Stats(r.Context())
	if err != nil {
		s.logger.Error("status: stats failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	resp := map[string]interface{}{
		"status":         stats.Status,
		"store":          stats.Store,
		"keyword_chunks": stats.KeywordChunks,
	}

	// Add configuration info
	configInfo := map[string]interface{}{
		"storage_backend":   s.cfg.Storage.Backend,
		"embedding_backend": s.cfg.Embedding.Backend,
		"chunk_size":        s.cfg.Ingest.ChunkSize,
		"chunk_overlap":     s.cfg.Ingest.ChunkOverlap,
		"distance_scale":    s.cfg.Storage.DistanceScale,
	}
	if s.cfg.Storage.Backend == config.BackendSQLite {
		configInfo["database_path"] = s.cfg.Storage.DatabasePath
		configInfo["bleve_index_path"] = s.cfg.Storage.BleveIndexPath
		if diskBytes, err := storage.DiskUsageBytes(s.cfg.Storage.DatabasePath, s.cfg.Storage.BleveIndexPath); err == nil {
			resp["disk_usage_bytes"] = diskBytes
		}
	}
	resp["config"] = configInfo
	if s.hub != nil {
		resp["progress_clients"] = s.hub.Clients()
	}
	if s.watch != nil {
		resp["watch_inboxes"] = len(s.watch.Inboxes())
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleWatchInboxesList(w http.ResponseWriter, r *http.Request) {
	if s.watch == nil {
		s.respondError(w, http.StatusNotImplemented, "watch not enabled")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"inboxes": s.watch.Inboxes()})
}

type watchAddRequest struct {
	watcher.Inbox
	Sync *bool `json:"sync,omitempty"`
}

func (s *Server) handleWatchInboxesAdd(w http.ResponseWriter, r *http.Request) {
	if s.watch == nil {
		s.respondError(w, http.StatusNotImplemented, "watch not enabled")
		return
	}
	var req watchAddRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Path == "" || strings.TrimSpace(req.CaseReference) == "" {
		s.respondError(w, http.StatusBadRequest, "path and case_reference are required")
		return
	}
	abs, err := filepath.Abs(req.Path)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid path")
		return
	}
	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			s.respondError(w, http.StatusNotFound, "directory not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !info.IsDir() {
		s.respondError(w, http.StatusBadRequest, "path is not a directory")
		return
	}
	syncExisting := true
	if req.Sync != nil {
		syncExisting = *req.Sync
	}
	inbox := req.Inbox
	inbox.Path = abs
	s.logger.Debug("watch add inbox request", zap.String("path", abs), zap.String("case", inbox.CaseReference))
	if err := s.watch.AddInbox(inbox, syncExisting); err != nil {
		s.logger.Error("watch add inbox failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.persistInboxes()
	s.respondJSON(w, http.StatusCreated, map[string]string{"path": abs, "status": "added"})
}

func (s *Server) handleWatchInboxesRemove(w http.ResponseWriter, r *http.Request) {
	if s.watch == nil {
		s.respondError(w, http.StatusNotImplemented, "watch not enabled")
		return
	}
	path := r.URL.Query().Get("path")
	if path == "" {
		var body struct {
			Path string `json:"path"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err == nil && body.Path != "" {
			path = body.Path
		}
	}
	if path == "" {
		s.respondError(w, http.StatusBadRequest, "path is required (query or body)")
		return
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid path")
		return
	}
	s.logger.Debug("watch remove inbox request", zap.String("path", abs))
	if err := s.watch.RemoveInbox(abs); err != nil {
		s.logger.Error("watch remove inbox failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.persistInboxes()
	s.respondJSON(w, http.StatusOK, map[string]string{"path": abs, "status": "removed"})
}

func (s *Server) persistInboxes() {
	if s.configPath == "" || s.cfg == nil {
		return
	}
	s.cfgMu.Lock()
	defer s.cfgMu.Unlock()
	s.cfg.Watch.Inboxes = s.watch.Inboxes()
	if err := config.Save(s.configPath, s.cfg); err != nil {
		s.logger.Warn("failed to persist watch config", zap.Error(err))
	}
}

func (s *Server) respondRetrievalError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, retrieval.ErrInvalidRequest):
		s.respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, retrieval.ErrKeywordDisabled):
		s.respondError(w, http.StatusNotImplemented, err.Error())
	default:
		s.logger.Error(op+" failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
