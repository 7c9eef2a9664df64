// Package web is the host application: the HTTP API that embeds the MCP
// service, starts it before serving and stops it after shutdown.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/kratos06/deepwiki-open/internal/config"
	"github.com/kratos06/deepwiki-open/internal/dispatch"
	"github.com/kratos06/deepwiki-open/internal/engine"
	"github.com/kratos06/deepwiki-open/internal/server"
	"github.com/kratos06/deepwiki-open/internal/service"
	"github.com/kratos06/deepwiki-open/internal/wikicache"
	mcpserver "github.com/mark3labs/mcp-go/server"
)

// maxBodyBytes bounds request bodies; wiki payloads can be large.
const maxBodyBytes = 32 << 20

// Options configure a Server.
type Options struct {
	Config  *config.Config
	Service *service.Manager
	// Wiki backs /api/wiki_cache. Nil answers 503 there.
	Wiki   engine.WikiCache
	Logger *slog.Logger
}

// Server is the web host.
type Server struct {
	cfg    *config.Config
	svc    *service.Manager
	wiki   engine.WikiCache
	logger *slog.Logger

	mu      sync.Mutex
	mcpFor  *server.Component
	mcpHTTP http.Handler
}

// New creates a Server. Config and Service are required.
func New(opts Options) (*Server, error) {
	if opts.Config == nil {
		return nil, errors.New("web: config is required")
	}
	if opts.Service == nil {
		return nil, errors.New("web: service manager is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{cfg: opts.Config, svc: opts.Service, wiki: opts.Wiki, logger: logger}, nil
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /mcp/status", s.handleMCPStatus)
	mux.HandleFunc("POST /api/operations", s.handleOperation)
	mux.HandleFunc("GET /api/wiki_cache", s.handleWikiGet)
	mux.HandleFunc("POST /api/wiki_cache", s.handleWikiSave)
	mux.HandleFunc("DELETE /api/wiki_cache", s.handleWikiDelete)
	mux.HandleFunc("/mcp", s.handleMCP)
	return s.logRequests(mux)
}

// Run listens on the configured port until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.cfg.Web.Port))
	if err != nil {
		return fmt.Errorf("listening on port %d: %w", s.cfg.Web.Port, err)
	}
	return s.Serve(ctx, ln)
}

// Serve runs the startup sequence, serves on ln until ctx is done, then
// shuts down gracefully and stops the MCP service.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.logger.Info("starting deepwiki api", "addr", ln.Addr().String())
	if s.cfg.Web.EnableMCP {
		s.logger.Info("mcp server integration enabled")
		if s.svc.Start(ctx) {
			s.logger.Info("mcp server integrated")
		} else {
			s.logger.Warn("mcp server failed to start, continuing without mcp support")
		}
	} else {
		s.logger.Info("mcp server integration disabled")
	}
	defer func() {
		s.logger.Info("shutting down deepwiki services")
		s.svc.Stop()
		s.logger.Info("deepwiki services shutdown complete")
	}()

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serving http: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Web.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("http shutdown incomplete", "error", err)
		_ = srv.Close()
	}
	return nil
}

// ─── Handlers ───────────────────────────────────────────────────────────

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"service":   "deepwiki-api",
	})
}

func (s *Server) handleMCPStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"mcp_server": s.svc.Info()})
}

func (s *Server) handleOperation(w http.ResponseWriter, r *http.Request) {
	c := s.svc.Component()
	if c == nil {
		writeError(w, http.StatusServiceUnavailable, "MCP server is not running")
		return
	}
	var req dispatch.Request
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	resp := c.Dispatcher.Dispatch(r.Context(), req)
	status := http.StatusOK
	switch {
	case errors.Is(resp.Err, dispatch.ErrUnknownOperation):
		status = http.StatusNotFound
	case resp.Kind == dispatch.KindError:
		status = http.StatusBadRequest
	}
	writeJSON(w, status, resp)
}

func (s *Server) handleMCP(w http.ResponseWriter, r *http.Request) {
	c := s.svc.Component()
	if c == nil {
		writeError(w, http.StatusServiceUnavailable, "MCP server is not running")
		return
	}
	s.streamable(c).ServeHTTP(w, r)
}

// streamable returns the streamable HTTP transport for c, rebuilding it
// when the service was restarted with a new component.
func (s *Server) streamable(c *server.Component) http.Handler {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mcpFor != c {
		s.mcpHTTP = mcpserver.NewStreamableHTTPServer(c.MCP,
			mcpserver.WithEndpointPath("/mcp"),
			mcpserver.WithStateLess(true),
		)
		s.mcpFor = c
	}
	return s.mcpHTTP
}

// ─── Wiki cache ─────────────────────────────────────────────────────────

// wikiSaveRequest is the body of POST /api/wiki_cache.
type wikiSaveRequest struct {
	Owner    string          `json:"owner"`
	Repo     string          `json:"repo"`
	RepoType string          `json:"repo_type"`
	Language string          `json:"language"`
	Data     json.RawMessage `json:"data"`
}

func wikiKeyFromQuery(r *http.Request) engine.WikiKey {
	q := r.URL.Query()
	return engine.WikiKey{
		Owner:    strings.TrimSpace(q.Get("owner")),
		Repo:     strings.TrimSpace(q.Get("repo")),
		RepoType: strings.TrimSpace(q.Get("repo_type")),
		Language: strings.TrimSpace(q.Get("language")),
	}
}

func (s *Server) wikiOrUnavailable(w http.ResponseWriter) bool {
	if s.wiki == nil {
		writeError(w, http.StatusServiceUnavailable, "wiki cache is not available")
		return false
	}
	return true
}

func (s *Server) handleWikiGet(w http.ResponseWriter, r *http.Request) {
	if !s.wikiOrUnavailable(w) {
		return
	}
	key := wikiKeyFromQuery(r)
	if key.Owner == "" && key.Repo == "" {
		entries, err := s.wiki.List(r.Context())
		if err != nil {
			s.logger.Error("listing wiki cache", "error", err)
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
		return
	}
	data, ok, err := s.wiki.Read(r.Context(), key)
	switch {
	case err != nil:
		writeStoreError(w, err)
	case !ok:
		writeError(w, http.StatusNotFound, "No cached wiki data found")
	default:
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
	}
}

func (s *Server) handleWikiSave(w http.ResponseWriter, r *http.Request) {
	if !s.wikiOrUnavailable(w) {
		return
	}
	var req wikiSaveRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	key := engine.WikiKey{Owner: req.Owner, Repo: req.Repo, RepoType: req.RepoType, Language: req.Language}
	if err := s.wiki.Save(r.Context(), key, req.Data); err != nil {
		writeStoreError(w, err)
		return
	}
	s.logger.Info("wiki cache saved", "owner", req.Owner, "repo", req.Repo, "language", req.Language)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleWikiDelete(w http.ResponseWriter, r *http.Request) {
	if !s.wikiOrUnavailable(w) {
		return
	}
	deleted, err := s.wiki.Delete(r.Context(), wikiKeyFromQuery(r))
	switch {
	case err != nil:
		writeStoreError(w, err)
	case !deleted:
		writeError(w, http.StatusNotFound, "No cached wiki data found")
	default:
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	}
}

// ─── Helpers ────────────────────────────────────────────────────────────

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// writeStoreError maps validation errors from the wiki cache to 400 and
// everything else to 500.
func writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, wikicache.ErrInvalidKey) || errors.Is(err, wikicache.ErrInvalidJSON) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}
