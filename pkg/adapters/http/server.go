package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/aretw0/onestep"
	"github.com/aretw0/onestep/internal/logging"
	"github.com/aretw0/onestep/pkg/domain"
	"github.com/aretw0/onestep/pkg/observability"
	"github.com/aretw0/onestep/pkg/schema"
	"github.com/aretw0/onestep/pkg/step"
)

// MaxBodyBytes caps the size of a run request body.
const MaxBodyBytes = 1 << 20

// Engine is the part of the onestep engine the HTTP adapter drives.
type Engine interface {
	Invoke(ctx context.Context, runKey string, in onestep.Input, raw map[string]any) (*onestep.Result, error)
	Checkpoint(ctx context.Context, runKey string) (*domain.State, error)
	Registry() *step.Registry
	DefaultStep() string
}

// Server serves run invocations and checkpoint reads.
type Server struct {
	Engine  Engine
	Streams *StreamManager

	metrics *observability.Metrics
	logger  *slog.Logger
}

// Option configures the Server.
type Option func(*Server)

// WithMetrics instruments every route and serves GET /metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// RunRequest is the body of POST /runs/{runKey}.
type RunRequest struct {
	TaskID   string           `json:"task_id,omitempty"`
	Messages []domain.Message `json:"messages,omitempty"`
	Config   map[string]any   `json:"config,omitempty"`
}

// RunResponse wraps a result with the run key it was stored under.
type RunResponse struct {
	RunKey string `json:"run_key"`
	*onestep.Result
}

// FieldError describes one failing configuration field.
type FieldError struct {
	Key    string `json:"key"`
	Reason string `json:"reason"`
}

// ErrorResponse is returned for every non 2xx status.
type ErrorResponse struct {
	Error  string          `json:"error"`
	Step   string          `json:"step,omitempty"`
	Fields []FieldError    `json:"fields,omitempty"`
	Result *onestep.Result `json:"result,omitempty"`
}

// StepInfo describes a registered step.
type StepInfo struct {
	Name    string        `json:"name"`
	Default bool          `json:"default"`
	Schema  schema.Schema `json:"schema"`
}

// NewHandler creates a new HTTP handler for the engine.
func NewHandler(engine Engine, opts ...Option) http.Handler {
	s := &Server{
		Engine:  engine,
		Streams: NewStreamManager(),
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	if s.metrics != nil {
		r.Use(s.metrics.Middleware(func(r *http.Request) string {
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				return rctx.RoutePattern()
			}
			return ""
		}))
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	r.Get("/health", s.GetHealth)
	r.Get("/info", s.GetInfo)
	r.Get("/steps", s.ListSteps)
	r.Post("/runs", s.CreateRun)
	r.Post("/runs/{runKey}", s.InvokeRun)
	r.Get("/runs/{runKey}", s.GetRun)
	r.Get("/runs/{runKey}/events", s.SubscribeEvents)

	return enableCORS(r)
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// CreateRun handles POST /runs by invoking under a freshly generated run key.
func (s *Server) CreateRun(w http.ResponseWriter, r *http.Request) {
	s.invoke(w, r, uuid.NewString())
}

// InvokeRun handles POST /runs/{runKey}.
func (s *Server) InvokeRun(w http.ResponseWriter, r *http.Request) {
	s.invoke(w, r, chi.URLParam(r, "runKey"))
}

func (s *Server) invoke(w http.ResponseWriter, r *http.Request, runKey string) {
	var body RunRequest
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request body: " + err.Error()})
		s.logger.Warn("Invoke: Invalid request body", "run_key", runKey, "err", err)
		return
	}

	res, err := s.Engine.Invoke(r.Context(), runKey, onestep.Input{TaskID: body.TaskID, Messages: body.Messages}, body.Config)
	if err != nil {
		status, resp := errorResponse(err)
		resp.Result = res
		if status >= http.StatusInternalServerError {
			s.logger.Error("Invoke failed", "run_key", runKey, "err", err)
		} else {
			s.logger.Info("Invoke rejected", "run_key", runKey, "status", status, "err", err)
		}
		writeJSON(w, status, resp)
		return
	}

	if payload, err := json.Marshal(res); err == nil {
		s.Streams.Broadcast(runKey, string(payload))
	}
	writeJSON(w, http.StatusOK, RunResponse{RunKey: runKey, Result: res})
}

// GetRun handles GET /runs/{runKey}.
func (s *Server) GetRun(w http.ResponseWriter, r *http.Request) {
	runKey := chi.URLParam(r, "runKey")
	state, err := s.Engine.Checkpoint(r.Context(), runKey)
	if err != nil {
		status, resp := errorResponse(err)
		if status >= http.StatusInternalServerError {
			s.logger.Error("Checkpoint read failed", "run_key", runKey, "err", err)
		}
		writeJSON(w, status, resp)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// ListSteps handles GET /steps.
func (s *Server) ListSteps(w http.ResponseWriter, _ *http.Request) {
	reg := s.Engine.Registry()
	infos := make([]StepInfo, 0)
	for _, name := range reg.Names() {
		st, err := reg.Lookup(name)
		if err != nil {
			continue
		}
		infos = append(infos, StepInfo{Name: name, Default: name == s.Engine.DefaultStep(), Schema: st.Schema()})
	}
	writeJSON(w, http.StatusOK, infos)
}

// GetHealth handles the GET /health request.
func (s *Server) GetHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetInfo handles the GET /info request.
func (s *Server) GetInfo(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"app":     "onestep-http",
		"version": onestep.Version,
	})
}

// errorResponse maps engine errors to a status code and body.
func errorResponse(err error) (int, ErrorResponse) {
	resp := ErrorResponse{Error: err.Error()}

	var cve *domain.ConfigValidationError
	switch {
	case errors.As(err, &cve):
		resp.Step = cve.Step
		for _, e := range schema.ValidationErrors(err) {
			var ve *schema.ValidationError
			if errors.As(e, &ve) {
				resp.Fields = append(resp.Fields, FieldError{Key: ve.Key, Reason: ve.Reason})
			}
		}
		return http.StatusUnprocessableEntity, resp
	case errors.Is(err, domain.ErrCheckpointNotFound):
		return http.StatusNotFound, resp
	case errors.Is(err, domain.ErrPrecondition),
		errors.Is(err, domain.ErrUnknownStep),
		errors.Is(err, domain.ErrEmptyRunKey):
		return http.StatusBadRequest, resp
	default:
		return http.StatusInternalServerError, resp
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Response encode failed", "err", err)
	}
}
