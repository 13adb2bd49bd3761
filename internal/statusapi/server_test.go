package statusapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/five82/medaka/internal/carelink"
	"github.com/five82/medaka/internal/session"
	"github.com/five82/medaka/internal/state"
	"github.com/five82/medaka/internal/token"
)

type fakeStore struct {
	mu     sync.Mutex
	view   state.View
	resets int
}

func (f *fakeStore) View() state.View {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.view
}

func (f *fakeStore) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets++
	f.view = state.View{}
}

type fakeTokens struct {
	mu      sync.Mutex
	sess    token.Session
	ok      bool
	setErr  error
	cleared int
}

func (f *fakeTokens) Get() (token.Session, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sess, f.ok
}

func (f *fakeTokens) Set(tok string, validTo time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setErr != nil {
		return f.setErr
	}
	f.sess = token.Session{Token: tok, ValidTo: validTo}
	f.ok = true
	return nil
}

func (f *fakeTokens) Clear() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleared++
	f.sess = token.Session{}
	f.ok = false
	return nil
}

type fakePoller struct {
	mu      sync.Mutex
	running bool
	starts  []bool
	stops   int
}

func (f *fakePoller) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	f.running = false
}

func (f *fakePoller) Start(force bool) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts = append(f.starts, force)
	started := force || !f.running
	f.running = true
	return started
}

func (f *fakePoller) Running() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

type fakeAuth struct {
	outcome session.Outcome
	forced  []bool
}

func (f *fakeAuth) ReauthIfNeeded(_ context.Context, force bool) session.Outcome {
	f.forced = append(f.forced, force)
	return f.outcome
}

type harness struct {
	store  *fakeStore
	tokens *fakeTokens
	poller *fakePoller
	auth   *fakeAuth
	server *Server
}

func newHarness(t *testing.T, mutate func(*Deps)) *harness {
	t.Helper()
	h := &harness{
		store:  &fakeStore{},
		tokens: &fakeTokens{},
		poller: &fakePoller{},
		auth:   &fakeAuth{outcome: session.OutcomeFresh},
	}
	deps := Deps{Store: h.store, Tokens: h.tokens, Poller: h.poller, Auth: h.auth}
	if mutate != nil {
		mutate(&deps)
	}
	h.server = NewServer(deps, nil)
	return h
}

func (h *harness) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	h.server.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
	return v
}

func strptr(s string) *string { return &s }

func TestHealthz(t *testing.T) {
	h := newHarness(t, nil)
	rec := h.do(t, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestStatusReportsViewAndSession(t *testing.T) {
	h := newHarness(t, nil)
	fetchedAt := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	validTo := fetchedAt.Add(time.Hour)
	h.store.view = state.View{
		Snapshot:            &carelink.Snapshot{},
		FetchedAt:           fetchedAt,
		Status:              state.StatusError,
		LastError:           errors.New("boom"),
		ConsecutiveFailures: 2,
	}
	h.tokens.sess = token.Session{Token: "tok", ValidTo: validTo}
	h.tokens.ok = true
	h.poller.running = true

	rec := h.do(t, http.MethodGet, "/api/status", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	got := decode[StatusResponse](t, rec)
	if got.Status != "error" || got.LastError != "boom" || got.ConsecutiveFailures != 2 {
		t.Fatalf("unexpected status payload: %#v", got)
	}
	if !got.Offline || !got.HasData || !got.HasToken || !got.PollerRunning {
		t.Fatalf("flags wrong: %#v", got)
	}
	if got.FetchedAt == nil || !got.FetchedAt.Equal(fetchedAt) {
		t.Fatalf("fetchedAt = %v, want %v", got.FetchedAt, fetchedAt)
	}
	if got.SessionValidTo == nil || !got.SessionValidTo.Equal(validTo) {
		t.Fatalf("sessionValidTo = %v, want %v", got.SessionValidTo, validTo)
	}
}

func TestSnapshotNotFoundThenFound(t *testing.T) {
	h := newHarness(t, nil)
	if rec := h.do(t, http.MethodGet, "/api/snapshot", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}

	last := carelink.SensorReading{DateTime: strptr("2024-05-01T12:00:00"), SG: 120, Kind: "SG"}
	h.store.view = state.View{Snapshot: &carelink.Snapshot{Readings: []carelink.SensorReading{last}, LastReading: &last}}
	rec := h.do(t, http.MethodGet, "/api/snapshot", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	snap := decode[carelink.Snapshot](t, rec)
	if snap.LastReading == nil || snap.LastReading.SG != 120 {
		t.Fatalf("snapshot = %#v", snap)
	}
}

func TestFetchStartsPoller(t *testing.T) {
	h := newHarness(t, nil)
	rec := h.do(t, http.MethodPost, "/api/fetch", "")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rec.Code)
	}
	if !decode[FetchResponse](t, rec).Started {
		t.Fatal("expected first fetch to start the poller")
	}

	rec = h.do(t, http.MethodPost, "/api/fetch", "")
	if decode[FetchResponse](t, rec).Started {
		t.Fatal("expected a second unforced fetch to be a no-op")
	}

	rec = h.do(t, http.MethodPost, "/api/fetch?force=true", "")
	if !decode[FetchResponse](t, rec).Started {
		t.Fatal("expected forced fetch to restart")
	}
	if len(h.poller.starts) != 3 || !h.poller.starts[2] {
		t.Fatalf("starts = %v, want last start forced", h.poller.starts)
	}
}

func TestReauthStatusCodes(t *testing.T) {
	tests := []struct {
		outcome session.Outcome
		code    int
	}{
		{session.OutcomeFresh, http.StatusOK},
		{session.OutcomeRenewed, http.StatusOK},
		{session.OutcomeNoToken, http.StatusConflict},
		{session.OutcomeExpired, http.StatusConflict},
		{session.OutcomeFailed, http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.outcome.String(), func(t *testing.T) {
			h := newHarness(t, nil)
			h.auth.outcome = tt.outcome
			rec := h.do(t, http.MethodPost, "/api/reauth", "")
			if rec.Code != tt.code {
				t.Fatalf("status = %d, want %d", rec.Code, tt.code)
			}
			if got := decode[ReauthResponse](t, rec).Outcome; got != tt.outcome.String() {
				t.Fatalf("outcome = %q, want %q", got, tt.outcome.String())
			}
			if len(h.auth.forced) != 1 || !h.auth.forced[0] {
				t.Fatalf("reauth should be forced, got %v", h.auth.forced)
			}
		})
	}
}

func TestSessionFromCookie(t *testing.T) {
	h := newHarness(t, nil)
	body := `{"cookie":"auth_tmp_token=abc; c_token_valid_to=Wed May 01 13:00:00 UTC 2024"}`
	rec := h.do(t, http.MethodPost, "/api/session", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	resp := decode[SessionResponse](t, rec)
	want := time.Date(2024, 5, 1, 13, 0, 0, 0, time.UTC)
	if !resp.ValidTo.Equal(want) || !resp.Restarted {
		t.Fatalf("response = %#v", resp)
	}
	if h.tokens.sess.Token != "abc" {
		t.Fatalf("token = %q, want abc", h.tokens.sess.Token)
	}
	if len(h.poller.starts) != 1 || !h.poller.starts[0] {
		t.Fatalf("expected forced restart, got %v", h.poller.starts)
	}
}

func TestSessionFromJWT(t *testing.T) {
	exp := time.Now().Add(2 * time.Hour).Truncate(time.Second).UTC()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"exp": exp.Unix()}).SignedString([]byte("k"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	h := newHarness(t, nil)
	rec := h.do(t, http.MethodPost, "/api/session", `{"token":"`+signed+`"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	if !h.tokens.sess.ValidTo.Equal(exp) {
		t.Fatalf("validTo = %v, want %v", h.tokens.sess.ValidTo, exp)
	}
}

func TestSessionRejectsBadInput(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		setErr error
		code   int
	}{
		{"not json", `{`, nil, http.StatusBadRequest},
		{"empty", `{}`, nil, http.StatusBadRequest},
		{"opaque token without expiry", `{"token":"opaque"}`, nil, http.StatusBadRequest},
		{"cookie without token", `{"cookie":"c_token_valid_to=Wed May 01 13:00:00 UTC 2024"}`, nil, http.StatusBadRequest},
		{"expired", `{"token":"t","validTo":"2001-01-01T00:00:00Z"}`, token.ErrExpired, http.StatusBadRequest},
		{"write failure", `{"token":"t","validTo":"2999-01-01T00:00:00Z"}`, errors.New("disk full"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, nil)
			h.tokens.setErr = tt.setErr
			rec := h.do(t, http.MethodPost, "/api/session", tt.body)
			if rec.Code != tt.code {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.code, rec.Body.String())
			}
			if len(h.poller.starts) != 0 {
				t.Fatalf("poller should not restart on failure")
			}
		})
	}
}

func TestResetClearsEverything(t *testing.T) {
	var resetCalls int
	var runningAtReset bool
	h := newHarness(t, func(d *Deps) {
		poller := d.Poller
		d.Reset = func(context.Context) error {
			resetCalls++
			runningAtReset = poller.Running()
			return nil
		}
	})
	h.tokens.ok = true
	h.poller.running = true
	rec := h.do(t, http.MethodDelete, "/api/data", "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if h.tokens.cleared != 1 || h.store.resets != 1 || resetCalls != 1 {
		t.Fatalf("cleared=%d resets=%d resetCalls=%d", h.tokens.cleared, h.store.resets, resetCalls)
	}
	if h.poller.stops != 1 || runningAtReset {
		t.Fatalf("stops=%d runningAtReset=%v, want the loop stopped before clearing", h.poller.stops, runningAtReset)
	}
}

func TestLogsFiltersByLevel(t *testing.T) {
	var gotLimit int
	h := newHarness(t, func(d *Deps) {
		d.Logs = func(n int) ([]string, error) {
			gotLimit = n
			return []string{
				"time=1 level=DEBUG msg=a",
				"time=2 level=INFO msg=b",
				"time=3 level=WARN msg=c",
			}, nil
		}
	})
	rec := h.do(t, http.MethodGet, "/api/logs?limit=3&level=info", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	lines := decode[LogsResponse](t, rec).Lines
	if gotLimit != 3 {
		t.Fatalf("limit = %d, want 3", gotLimit)
	}
	if len(lines) != 2 || !strings.Contains(lines[0], "msg=b") {
		t.Fatalf("lines = %v", lines)
	}

	if rec := h.do(t, http.MethodGet, "/api/logs?limit=x", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestUnknownRoute(t *testing.T) {
	h := newHarness(t, nil)
	if rec := h.do(t, http.MethodGet, "/api/nope", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if rec := h.do(t, http.MethodGet, "/api/fetch", ""); rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", rec.Code)
	}
}
