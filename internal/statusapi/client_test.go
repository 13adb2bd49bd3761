package statusapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/five82/medaka/internal/carelink"
	"github.com/five82/medaka/internal/session"
	"github.com/five82/medaka/internal/state"
)

func TestParseBaseURL_DefaultsAndNormalizes(t *testing.T) {
	u, err := parseBaseURL("")
	if err != nil {
		t.Fatalf("parseBaseURL returned error: %v", err)
	}
	if u.Scheme != "http" {
		t.Fatalf("scheme = %q, want http", u.Scheme)
	}
	if u.Host != DefaultAPIBind {
		t.Fatalf("host = %q, want %q", u.Host, DefaultAPIBind)
	}

	u, err = parseBaseURL("http://example.com:1234/path?x=1#frag")
	if err != nil {
		t.Fatalf("parseBaseURL returned error: %v", err)
	}
	if u.Path != "" || u.RawQuery != "" || u.Fragment != "" {
		t.Fatalf("url not normalized: %q", u.String())
	}
}

func newClientHarness(t *testing.T, mutate func(*Deps)) (*harness, *Client) {
	t.Helper()
	h := newHarness(t, mutate)
	srv := httptest.NewServer(h.server)
	t.Cleanup(srv.Close)
	c, err := NewClient(srv.URL)
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	return h, c
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestClientRoundTrip(t *testing.T) {
	h, c := newClientHarness(t, func(d *Deps) {
		d.Logs = func(n int) ([]string, error) {
			return []string{"level=INFO msg=a", "level=ERROR msg=b"}, nil
		}
	})
	ctx := testContext(t)

	h.store.view = state.View{Status: state.StatusSuccess}
	status, err := c.FetchStatus(ctx)
	if err != nil {
		t.Fatalf("FetchStatus returned error: %v", err)
	}
	if status.Status != "success" || status.HasData {
		t.Fatalf("status = %#v", status)
	}

	snap, err := c.FetchSnapshot(ctx)
	if err != nil || snap != nil {
		t.Fatalf("FetchSnapshot before data = %v, %v; want nil, nil", snap, err)
	}
	last := carelink.SensorReading{SG: 99}
	h.store.view.Snapshot = &carelink.Snapshot{Readings: []carelink.SensorReading{last}, LastReading: &last}
	snap, err = c.FetchSnapshot(ctx)
	if err != nil || snap == nil || snap.LastReading.SG != 99 {
		t.Fatalf("FetchSnapshot = %#v, %v", snap, err)
	}

	fetch, err := c.TriggerFetch(ctx, true)
	if err != nil || !fetch.Started {
		t.Fatalf("TriggerFetch = %#v, %v", fetch, err)
	}
	if len(h.poller.starts) != 1 || !h.poller.starts[0] {
		t.Fatalf("starts = %v, want one forced start", h.poller.starts)
	}

	lines, err := c.FetchLogs(ctx, 10, "error")
	if err != nil {
		t.Fatalf("FetchLogs returned error: %v", err)
	}
	if len(lines) != 1 || lines[0] != "level=ERROR msg=b" {
		t.Fatalf("lines = %v", lines)
	}

	if err := c.Reset(ctx); err != nil {
		t.Fatalf("Reset returned error: %v", err)
	}
	if h.tokens.cleared != 1 {
		t.Fatalf("tokens cleared %d times, want 1", h.tokens.cleared)
	}
}

func TestClientLogin(t *testing.T) {
	h, c := newClientHarness(t, nil)
	validTo := time.Date(2999, 1, 1, 0, 0, 0, 0, time.UTC)
	resp, err := c.Login(testContext(t), SessionRequest{Token: "tok", ValidTo: &validTo})
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}
	if !resp.ValidTo.Equal(validTo) || !resp.Restarted {
		t.Fatalf("response = %#v", resp)
	}
	if h.tokens.sess.Token != "tok" {
		t.Fatalf("token = %q", h.tokens.sess.Token)
	}
}

func TestClientSurfacesAPIError(t *testing.T) {
	h, c := newClientHarness(t, nil)
	h.auth.outcome = session.OutcomeNoToken

	_, err := c.Reauth(testContext(t))
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Code != http.StatusConflict || apiErr.Path != "/api/reauth" {
		t.Fatalf("apiErr = %#v", apiErr)
	}

	_, err = c.Login(testContext(t), SessionRequest{})
	if !errors.As(err, &apiErr) || apiErr.Code != http.StatusBadRequest || apiErr.Message == "" {
		t.Fatalf("expected 400 with message, got %v", err)
	}
}

func TestClientUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	c, err := NewClient(addr)
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	if _, err := c.FetchStatus(testContext(t)); err == nil {
		t.Fatal("expected error from closed server")
	}
}
