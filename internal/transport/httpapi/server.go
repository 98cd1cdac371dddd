package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"xiaoer/internal/bootstrap/config"
	"xiaoer/internal/bootstrap/logging"
	"xiaoer/internal/domain/fetch"
	"xiaoer/internal/domain/plan"
	"xiaoer/internal/errs"
	"xiaoer/internal/ports"
	"xiaoer/internal/usecase/agent"
	"xiaoer/internal/usecase/fetchcache"
	"xiaoer/internal/usecase/tools"
)

// Server exposes the agent and the cache-aside fetch layer over HTTP, and
// mounts the MCP streamable endpoint alongside the REST routes.
type Server struct {
	cfg      config.ServerConfig
	agent    *agent.Service
	fetch    *fetchcache.Service
	registry *tools.Registry
	planner  ports.Planner
}

func NewServer(
	cfg config.ServerConfig,
	agentSvc *agent.Service,
	fetchSvc *fetchcache.Service,
	registry *tools.Registry,
	planner ports.Planner,
) *Server {
	return &Server{
		cfg:      cfg,
		agent:    agentSvc,
		fetch:    fetchSvc,
		registry: registry,
		planner:  planner,
	}
}

func (s *Server) Addr() string {
	return s.cfg.Addr
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealthz)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/tools", s.handleListTools)
		r.Post("/tools/{name}", s.handleInvokeTool)
		r.Post("/ask", s.handleAsk)
		r.Get("/ask/stream", s.handleAskStream)
		r.Get("/endpoints/{key}", s.handleEndpoint)
		r.Get("/cache/keys", s.handleCacheKeys)
		r.Delete("/cache/{key}", s.handleCacheDelete)
	})

	mountPath := s.cfg.MountPath
	if mountPath == "" {
		mountPath = "/mcp"
	}
	r.Mount(mountPath, s.mcpHandler())

	return r
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListTools(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"tools": s.registry.Specs()})
}

func (s *Server) handleInvokeTool(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	args, err := readBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	output, err := s.registry.Invoke(r.Context(), plan.ToolCall{Name: name, Args: args})
	if err != nil {
		writeError(w, toolErrorStatus(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"name": name, "output": json.RawMessage(output)})
}

type askRequest struct {
	Query string `json:"query"`
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := s.agent.Ask(r.Context(), agent.AskInput{Query: req.Query})
	if err != nil {
		if errors.Is(err, plan.ErrEmptyPlan) {
			writeError(w, http.StatusUnprocessableEntity, "planner produced no tool calls")
			return
		}
		logging.Error(r.Context(), "ask failed", slog.Any("err", errs.Loggable(err)))
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleEndpoint(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	result, err := s.fetch.Endpoint(r.Context(), key)
	if err != nil {
		writeError(w, fetchErrorStatus(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleCacheKeys(w http.ResponseWriter, r *http.Request) {
	prefix := r.URL.Query().Get("prefix")
	if prefix == "" {
		prefix = s.fetch.KeyPrefix()
	}

	keys, err := s.fetch.Keys(r.Context(), prefix, 500)
	if err != nil {
		writeError(w, fetchErrorStatus(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"prefix": prefix, "keys": keys})
}

func (s *Server) handleCacheDelete(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	deleted, err := s.fetch.Invalidate(r.Context(), key)
	if err != nil {
		writeError(w, fetchErrorStatus(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"key": key, "invalidated": deleted})
}

// readBody returns the raw JSON arguments, or nil for an empty body so
// tools without arguments can be invoked with a bare POST.
func readBody(r *http.Request) (json.RawMessage, error) {
	if r.Body == nil {
		return nil, nil
	}
	defer r.Body.Close()

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		return nil, errors.New("read request body")
	}
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, nil
	}
	if !json.Valid(body) {
		return nil, errors.New("request body must be valid JSON")
	}
	return body, nil
}

func toolErrorStatus(err error) int {
	switch {
	case errors.Is(err, plan.ErrUnknownTool):
		return http.StatusNotFound
	case errors.Is(err, plan.ErrBadToolArgs), errors.Is(err, plan.ErrToolNameRequired):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func fetchErrorStatus(err error) int {
	switch {
	case errors.Is(err, fetchcache.ErrUnknownEndpoint):
		return http.StatusNotFound
	case errors.Is(err, fetch.ErrCacheUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, fetch.ErrNoFallbackAvailable):
		return http.StatusBadGateway
	case errors.Is(err, fetch.ErrFetchTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, fetch.ErrFetchFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	// The status line is already out; an encode failure here has no remedy.
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}
