package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"billing-review-service/internal/config"
	"billing-review-service/internal/models"
	"billing-review-service/internal/scan"
	"billing-review-service/internal/store"
	"billing-review-service/internal/telemetry"
)

const maxScanBytes = 25 << 20

// DocumentStore is the persistence surface the handlers use.
type DocumentStore interface {
	SaveDocument(ctx context.Context, doc models.Document) error
	GetDocument(ctx context.Context, id string) (models.Document, error)
	SearchDocuments(ctx context.Context, p store.SearchParams) ([]models.Document, int64, error)
}

// JobStore reads batch jobs for status polling.
type JobStore interface {
	GetJob(ctx context.Context, id string) (models.BatchJob, error)
}

// BatchService creates batch review jobs.
type BatchService interface {
	CreateBatchProcess(ctx context.Context, documentIDs []string) (models.BatchJob, error)
}

// Limiter admits or rejects a request for a caller key.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, int64)
}

// ScanIngester stores document scans and thumbnails.
type ScanIngester interface {
	Ingest(ctx context.Context, documentID string, data []byte, contentType string) (scan.Result, error)
}

// Server wires HTTP handlers for the billing document API.
type Server struct {
	cfg       config.Config
	documents DocumentStore
	jobs      JobStore
	batches   BatchService
	limiter   Limiter
	scans     ScanIngester
}

// New constructs the API server. limiter and scans may be nil.
func New(cfg config.Config, documents DocumentStore, jobs JobStore, batches BatchService, limiter Limiter, scans ScanIngester) *Server {
	return &Server{
		cfg:       cfg,
		documents: documents,
		jobs:      jobs,
		batches:   batches,
		limiter:   limiter,
		scans:     scans,
	}
}

// Router builds the HTTP router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Mount("/metrics", telemetry.Handler())

	r.Group(func(r chi.Router) {
		r.Use(s.requireAPIKey)
		r.Use(s.rateLimit)

		r.Post("/documents", s.handleCreateDocument)
		r.Get("/documents", s.handleSearchDocuments)
		r.Get("/documents/{id}", s.handleGetDocument)
		r.Patch("/documents/{id}", s.handleUpdateDocument)
		r.Post("/documents/{id}/scan", s.handleUploadScan)
		r.Post("/documents/batch/process", s.handleBatchProcess)
		r.Get("/jobs/{id}", s.handleGetJob)
	})
	return r
}

func (s *Server) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-API-Key") != s.cfg.APIKey {
			http.Error(w, "invalid or missing API key", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter != nil {
			allowed, _ := s.limiter.Allow(r.Context(), "rl:"+clientKey(r))
			if !allowed {
				telemetry.RateLimitRejects.Inc()
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

type createDocumentRequest struct {
	Type     models.DocumentType `json:"type"`
	Amount   float64             `json:"amount"`
	Metadata map[string]any      `json:"metadata"`
}

func (s *Server) handleCreateDocument(w http.ResponseWriter, r *http.Request) {
	var req createDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	doc, err := models.NewDocument(req.Type, req.Amount, req.Metadata)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.documents.SaveDocument(r.Context(), doc); err != nil {
		writeError(w, err)
		return
	}
	telemetry.DocumentsCreated.Inc()
	writeJSON(w, http.StatusCreated, doc)
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := s.documents.GetDocument(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleUpdateDocument(w http.ResponseWriter, r *http.Request) {
	var update models.DocumentUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	doc, err := s.documents.GetDocument(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if err := doc.ApplyUpdate(update); err != nil {
		writeError(w, err)
		return
	}
	if err := s.documents.SaveDocument(r.Context(), doc); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

type searchResponse struct {
	Items []models.Document `json:"items"`
	Total int64             `json:"total"`
	Skip  int               `json:"skip"`
	Limit int               `json:"limit"`
}

func (s *Server) handleSearchDocuments(w http.ResponseWriter, r *http.Request) {
	params, skip, limit, err := parseSearchQuery(r)
	if err != nil {
		writeError(w, err)
		return
	}
	docs, total, err := s.documents.SearchDocuments(r.Context(), params)
	if err != nil {
		writeError(w, err)
		return
	}
	if docs == nil {
		docs = []models.Document{}
	}
	writeJSON(w, http.StatusOK, searchResponse{Items: docs, Total: total, Skip: skip, Limit: limit})
}

func parseSearchQuery(r *http.Request) (store.SearchParams, int, int, error) {
	q := r.URL.Query()
	var p store.SearchParams

	skip := 0
	if v := q.Get("skip"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return p, 0, 0, models.NewValidationError("skip must be a non-negative integer")
		}
		skip = n
	}
	limit := 10
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 100 {
			return p, 0, 0, models.NewValidationError("limit must be between 1 and 100")
		}
		limit = n
	}
	p.Offset = skip
	p.Limit = limit

	if v := q.Get("type"); v != "" {
		t := models.DocumentType(v)
		if !models.ValidDocumentType(t) {
			return p, 0, 0, models.NewValidationError("unknown document type %q", v)
		}
		p.Type = &t
	}
	if v := q.Get("status"); v != "" {
		st := models.DocumentStatus(v)
		switch st {
		case models.StatusDraft, models.StatusPending, models.StatusApproved, models.StatusRejected:
			p.Status = &st
		default:
			return p, 0, 0, models.NewValidationError("unknown document status %q", v)
		}
	}
	if v := q.Get("min_amount"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return p, 0, 0, models.NewValidationError("min_amount must be a number")
		}
		p.MinAmount = &f
	}
	if v := q.Get("max_amount"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return p, 0, 0, models.NewValidationError("max_amount must be a number")
		}
		p.MaxAmount = &f
	}
	if v := q.Get("start_date"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return p, 0, 0, models.NewValidationError("start_date must be RFC 3339")
		}
		p.StartDate = &t
	}
	if v := q.Get("end_date"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return p, 0, 0, models.NewValidationError("end_date must be RFC 3339")
		}
		p.EndDate = &t
	}
	return p, skip, limit, nil
}

func (s *Server) handleUploadScan(w http.ResponseWriter, r *http.Request) {
	if s.scans == nil {
		http.Error(w, "scan storage not configured", http.StatusServiceUnavailable)
		return
	}
	id := chi.URLParam(r, "id")
	if _, err := s.documents.GetDocument(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}

	if err := r.ParseMultipartForm(maxScanBytes); err != nil {
		http.Error(w, "invalid multipart form", http.StatusBadRequest)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "file field is required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxScanBytes+1))
	if err != nil {
		http.Error(w, "read upload", http.StatusBadRequest)
		return
	}
	if len(data) > maxScanBytes {
		http.Error(w, fmt.Sprintf("scan too large (>%d bytes)", maxScanBytes), http.StatusRequestEntityTooLarge)
		return
	}

	result, err := s.scans.Ingest(r.Context(), id, data, header.Header.Get("Content-Type"))
	if err != nil {
		if errors.Is(err, scan.ErrNotAnImage) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type batchProcessRequest struct {
	DocumentIDs []string `json:"document_ids"`
}

type batchProcessResponse struct {
	JobID   string `json:"job_id"`
	Message string `json:"message"`
}

func (s *Server) handleBatchProcess(w http.ResponseWriter, r *http.Request) {
	var req batchProcessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	job, err := s.batches.CreateBatchProcess(r.Context(), req.DocumentIDs)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, batchProcessResponse{
		JobID:   job.ID,
		Message: "batch review started",
	})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.jobs.GetJob(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// writeError maps the domain error taxonomy onto HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	var validation *models.ValidationError
	var transition *models.InvalidTransitionError
	switch {
	case errors.As(err, &validation), errors.As(err, &transition):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, store.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	default:
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}
