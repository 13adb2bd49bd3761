package statusapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/five82/medaka/internal/carelink"
)

// DaemonAPI is implemented by *Client and can be faked in tests.
type DaemonAPI interface {
	FetchStatus(ctx context.Context) (*StatusResponse, error)
	FetchSnapshot(ctx context.Context) (*carelink.Snapshot, error)
	TriggerFetch(ctx context.Context, force bool) (FetchResponse, error)
	Reauth(ctx context.Context) (ReauthResponse, error)
	Login(ctx context.Context, req SessionRequest) (SessionResponse, error)
	Reset(ctx context.Context) error
	FetchLogs(ctx context.Context, limit int, level string) ([]string, error)
}

// Ensure Client implements DaemonAPI at compile time.
var _ DaemonAPI = (*Client)(nil)

// APIError reports a non-2xx API response.
type APIError struct {
	Path    string
	Code    int
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api %s returned status %d: %s", e.Path, e.Code, e.Message)
	}
	return fmt.Sprintf("api %s returned status %d", e.Path, e.Code)
}

// Client talks to the medaka status API.
type Client struct {
	baseURL   *url.URL
	http      *http.Client
	userAgent string
}

const (
	DefaultAPIBind   = "127.0.0.1:7489"
	defaultUserAgent = "medaka-cli/0.1"
	requestTimeout   = 30 * time.Second
)

// NewClient builds a Client using the provided apiBind host:port value.
func NewClient(apiBind string) (*Client, error) {
	base, err := parseBaseURL(apiBind)
	if err != nil {
		return nil, err
	}
	return &Client{
		baseURL: base,
		http: &http.Client{
			Timeout: requestTimeout,
		},
		userAgent: defaultUserAgent,
	}, nil
}

// FetchStatus retrieves the daemon status.
func (c *Client) FetchStatus(ctx context.Context) (*StatusResponse, error) {
	if c == nil {
		return nil, fmt.Errorf("client is nil")
	}
	var payload StatusResponse
	if err := c.do(ctx, http.MethodGet, &url.URL{Path: "/api/status"}, nil, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// FetchSnapshot retrieves the latest snapshot, or nil when there is none.
func (c *Client) FetchSnapshot(ctx context.Context) (*carelink.Snapshot, error) {
	if c == nil {
		return nil, fmt.Errorf("client is nil")
	}
	var payload carelink.Snapshot
	err := c.do(ctx, http.MethodGet, &url.URL{Path: "/api/snapshot"}, nil, &payload)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &payload, nil
}

// TriggerFetch asks the daemon to start its fetch loop.
func (c *Client) TriggerFetch(ctx context.Context, force bool) (FetchResponse, error) {
	if c == nil {
		return FetchResponse{}, fmt.Errorf("client is nil")
	}
	values := url.Values{}
	if force {
		values.Set("force", "1")
	}
	var payload FetchResponse
	err := c.do(ctx, http.MethodPost, &url.URL{Path: "/api/fetch", RawQuery: values.Encode()}, nil, &payload)
	return payload, err
}

// Reauth forces a session renewal.
func (c *Client) Reauth(ctx context.Context) (ReauthResponse, error) {
	if c == nil {
		return ReauthResponse{}, fmt.Errorf("client is nil")
	}
	var payload ReauthResponse
	err := c.do(ctx, http.MethodPost, &url.URL{Path: "/api/reauth"}, nil, &payload)
	return payload, err
}

// Login hands a new session to the daemon.
func (c *Client) Login(ctx context.Context, req SessionRequest) (SessionResponse, error) {
	if c == nil {
		return SessionResponse{}, fmt.Errorf("client is nil")
	}
	var payload SessionResponse
	err := c.do(ctx, http.MethodPost, &url.URL{Path: "/api/session"}, req, &payload)
	return payload, err
}

// Reset clears the token and all stored data.
func (c *Client) Reset(ctx context.Context) error {
	if c == nil {
		return fmt.Errorf("client is nil")
	}
	return c.do(ctx, http.MethodDelete, &url.URL{Path: "/api/data"}, nil, nil)
}

// FetchLogs retrieves the newest activity log lines.
func (c *Client) FetchLogs(ctx context.Context, limit int, level string) ([]string, error) {
	if c == nil {
		return nil, fmt.Errorf("client is nil")
	}
	values := url.Values{}
	if limit > 0 {
		values.Set("limit", strconv.Itoa(limit))
	}
	if level = strings.TrimSpace(level); level != "" {
		values.Set("level", level)
	}
	var payload LogsResponse
	if err := c.do(ctx, http.MethodGet, &url.URL{Path: "/api/logs", RawQuery: values.Encode()}, nil, &payload); err != nil {
		return nil, err
	}
	return payload.Lines, nil
}

func (c *Client) do(ctx context.Context, method string, rel *url.URL, body, dest any) error {
	reqURL := c.baseURL.ResolveReference(rel)

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, reqURL.String(), reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		apiErr := &APIError{Path: rel.Path, Code: resp.StatusCode}
		var payload errorResponse
		if json.NewDecoder(io.LimitReader(resp.Body, 64*1024)).Decode(&payload) == nil {
			apiErr.Message = payload.Error.Message
		}
		return apiErr
	}
	if dest == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	decoder := json.NewDecoder(resp.Body)
	if err := decoder.Decode(dest); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func parseBaseURL(apiBind string) (*url.URL, error) {
	trimmed := strings.TrimSpace(apiBind)
	if trimmed == "" {
		trimmed = DefaultAPIBind
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "http://" + trimmed
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("parse api_bind %q: %w", apiBind, err)
	}
	u.Path = ""
	u.RawQuery = ""
	u.Fragment = ""
	return u, nil
}
