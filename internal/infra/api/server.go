package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"incident-analyzer/internal/domain"
	"incident-analyzer/internal/domain/model"
	"incident-analyzer/internal/usecase"
)

// DocCounter reports how many documents the similarity index holds.
type DocCounter interface {
	Count(ctx context.Context) (int, error)
}

// Health describes the configured collaborators for /healthz.
type Health struct {
	Provider string
	Index    string
	Env      map[string]bool
	Docs     DocCounter
}

type Options struct {
	MaxUploadBytes int64
	RequestTimeout time.Duration
}

// Server exposes the analysis pipeline over HTTP.
type Server struct {
	analysis usecase.AnalysisUseCase
	health   Health
	opts     Options
	log      *zerolog.Logger
}

func NewServer(analysis usecase.AnalysisUseCase, health Health, opts Options, logger *zerolog.Logger) *Server {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 32 << 20
	}
	return &Server{analysis: analysis, health: health, opts: opts, log: logger}
}

// Router builds the chi router with the middleware chain applied.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(TraceID(), RequestLog(s.log), Recover(s.log))

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		if s.opts.RequestTimeout > 0 {
			r.Use(Timeout(s.opts.RequestTimeout))
		}
		r.Post("/analyze", s.handleAnalyze)
		r.Get("/status/{id}", s.handleStatus)
		r.Get("/result/{id}", s.handleResult)
		r.Get("/debug/query/{id}", s.handleQuery)
		r.Post("/ask/{id}", s.handleAsk)
		r.Get("/jobs", s.handleList)
		r.Post("/jobs/{id}/cancel", s.handleCancel)
	})
	return r
}

type errorBody struct {
	Error string `json:"error"`
}

type healthResponse struct {
	OK       bool            `json:"ok"`
	Provider string          `json:"provider"`
	Index    string          `json:"index"`
	Docs     int             `json:"indexed_documents"`
	Env      map[string]bool `json:"env"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{OK: true, Provider: s.health.Provider, Index: s.health.Index, Env: s.health.Env, Docs: -1}
	if resp.Env == nil {
		resp.Env = map[string]bool{}
	}
	if s.health.Docs != nil {
		if n, err := s.health.Docs.Count(r.Context()); err == nil {
			resp.Docs = n
		} else {
			s.log.Warn().Err(err).Msg("healthz: index count failed")
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleAnalyze accepts a multipart form with zero or more "files" parts.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorBody{Error: "upload too large"})
			return
		}
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "expected multipart/form-data with files"})
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	var files []model.SourceFile
	for _, fh := range r.MultipartForm.File["files"] {
		f, err := fh.Open()
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: fmt.Sprintf("read %s: %v", fh.Filename, err)})
			return
		}
		b, err := io.ReadAll(f)
		_ = f.Close()
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: fmt.Sprintf("read %s: %v", fh.Filename, err)})
			return
		}
		files = append(files, model.SourceFile{Name: fh.Filename, Content: b})
	}

	job, err := s.analysis.Submit(r.Context(), files)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, job)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	job, err := s.analysis.Status(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	sum, err := s.analysis.Result(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	q, err := s.analysis.QueryText(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, q)
}

type askRequest struct {
	Question string `json:"question"`
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 64<<10)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
		return
	}
	resp, err := s.analysis.Ask(r.Context(), chi.URLParam(r, "id"), req.Question)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.analysis.List(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Items []model.Job `json:"items"`
	}{Items: jobs})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	job, err := s.analysis.Cancel(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// statusFor maps domain sentinels to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrResultNotReady), errors.Is(err, domain.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, domain.ErrQueueFull):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	code := statusFor(err)
	msg := err.Error()
	if code == http.StatusInternalServerError {
		s.log.Error().Err(err).Msg("request failed")
		msg = "internal error"
	}
	writeJSON(w, code, errorBody{Error: msg})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
