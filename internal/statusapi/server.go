// Package statusapi exposes the daemon's state and actions over a local HTTP
// API and provides the matching client.
package statusapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/five82/medaka/internal/carelink"
	"github.com/five82/medaka/internal/logtail"
	"github.com/five82/medaka/internal/session"
	"github.com/five82/medaka/internal/state"
	"github.com/five82/medaka/internal/token"
)

// Deps are the daemon services the API exposes.
type Deps struct {
	Store interface {
		View() state.View
		Reset()
	}
	Tokens interface {
		Get() (token.Session, bool)
		Set(tok string, validTo time.Time) error
		Clear() error
	}
	Poller interface {
		Start(force bool) bool
		Stop()
		Running() bool
	}
	Auth interface {
		ReauthIfNeeded(ctx context.Context, force bool) session.Outcome
	}
	// Reset removes persisted data (cache, history). Optional.
	Reset func(ctx context.Context) error
	// Logs returns the newest n activity log lines. Optional.
	Logs func(n int) ([]string, error)
}

// Server serves the status API.
type Server struct {
	deps   Deps
	logger *slog.Logger
	router chi.Router
}

const defaultLogLimit = 200

// NewServer builds a Server.
func NewServer(deps Deps, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s := &Server{deps: deps, logger: logger}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(s.requestLog)

	r.Get("/healthz", s.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/snapshot", s.handleSnapshot)
		r.Post("/fetch", s.handleFetch)
		r.Post("/reauth", s.handleReauth)
		r.Post("/session", s.handleSession)
		r.Delete("/data", s.handleReset)
		r.Get("/logs", s.handleLogs)
	})
	s.router = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	srv := &http.Server{Handler: s, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("status api listening", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("status api: %w", err)
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("status api shutdown: %w", err)
		}
		s.logger.Info("status api stopped")
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("api request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start).Round(time.Millisecond),
			"request_id", chimw.GetReqID(r.Context()),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	v := s.deps.Store.View()
	resp := StatusResponse{
		Status:              v.Status.String(),
		ConsecutiveFailures: v.ConsecutiveFailures,
		Offline:             v.IsOffline(),
		HasData:             v.HasData(),
		PollerRunning:       s.deps.Poller.Running(),
	}
	if !v.FetchedAt.IsZero() {
		at := v.FetchedAt
		resp.FetchedAt = &at
	}
	if v.LastError != nil {
		resp.LastError = v.LastError.Error()
	}
	if sess, ok := s.deps.Tokens.Get(); ok {
		resp.HasToken = true
		validTo := sess.ValidTo
		resp.SessionValidTo = &validTo
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSnapshot(w http.ResponseWriter, _ *http.Request) {
	v := s.deps.Store.View()
	if v.Snapshot == nil {
		writeError(w, http.StatusNotFound, "no snapshot yet")
		return
	}
	writeJSON(w, http.StatusOK, v.Snapshot)
}

func (s *Server) handleFetch(w http.ResponseWriter, r *http.Request) {
	force := parseBool(r.URL.Query().Get("force"))
	started := s.deps.Poller.Start(force)
	s.logger.Info("fetch requested", "force", force, "started", started)
	writeJSON(w, http.StatusAccepted, FetchResponse{Started: started})
}

func (s *Server) handleReauth(w http.ResponseWriter, r *http.Request) {
	outcome := s.deps.Auth.ReauthIfNeeded(r.Context(), true)
	resp := ReauthResponse{Outcome: outcome.String()}
	if sess, ok := s.deps.Tokens.Get(); ok {
		validTo := sess.ValidTo
		resp.ValidTo = &validTo
	}
	status := http.StatusOK
	switch outcome {
	case session.OutcomeNoToken, session.OutcomeExpired:
		status = http.StatusConflict
	case session.OutcomeFailed:
		status = http.StatusBadGateway
	}
	writeJSON(w, status, resp)
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	var req SessionRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "decode request: "+err.Error())
		return
	}
	creds, err := SessionCredentials(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.deps.Tokens.Set(creds.Token, creds.ValidTo); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, token.ErrExpired) || errors.Is(err, token.ErrEmpty) {
			status = http.StatusBadRequest
		}
		writeError(w, status, err.Error())
		return
	}
	s.logger.Info("session stored", "valid_to", creds.ValidTo.Format(time.RFC3339))
	restarted := s.deps.Poller.Start(true)
	writeJSON(w, http.StatusOK, SessionResponse{ValidTo: creds.ValidTo, Restarted: restarted})
}

// SessionCredentials resolves a login request to a token and its expiry.
func SessionCredentials(req SessionRequest) (carelink.Credentials, error) {
	if c := strings.TrimSpace(req.Cookie); c != "" {
		return carelink.ParseCookieHeader(c)
	}
	tok := strings.TrimSpace(req.Token)
	if tok == "" {
		return carelink.Credentials{}, fmt.Errorf("cookie or token required")
	}
	if req.ValidTo != nil {
		return carelink.Credentials{Token: tok, ValidTo: *req.ValidTo}, nil
	}
	exp, err := carelink.TokenExpiry(tok)
	if err != nil {
		return carelink.Credentials{}, fmt.Errorf("validTo required: %w", err)
	}
	return carelink.Credentials{Token: tok, ValidTo: exp}, nil
}

// handleReset stops the fetch loop before clearing so an in-flight cycle
// cannot write the cache or publish after the reset.
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	s.deps.Poller.Stop()
	if err := s.deps.Tokens.Clear(); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.deps.Store.Reset()
	if s.deps.Reset != nil {
		if err := s.deps.Reset(r.Context()); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}
	s.logger.Info("data reset")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	if s.deps.Logs == nil {
		writeJSON(w, http.StatusOK, LogsResponse{Lines: []string{}})
		return
	}
	limit := defaultLogLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	lines, err := s.deps.Logs(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	lines = logtail.FilterLevel(lines, r.URL.Query().Get("level"))
	if lines == nil {
		lines = []string{}
	}
	writeJSON(w, http.StatusOK, LogsResponse{Lines: lines})
}

func parseBool(v string) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	return err == nil && b
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	var body errorResponse
	body.Error.Message = message
	body.Error.Code = status
	writeJSON(w, status, body)
}
