package carelink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrUnauthorized is matched by errors.Is for any 401 response.
var ErrUnauthorized = errors.New("unauthorized")

// StatusError reports a non-2xx upstream response.
type StatusError struct {
	Endpoint string
	Code     int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("carelink %s returned status %d", e.Endpoint, e.Code)
}

// Is lets errors.Is(err, ErrUnauthorized) match a 401 StatusError.
func (e *StatusError) Is(target error) bool {
	return target == ErrUnauthorized && e.Code == http.StatusUnauthorized
}

// Credentials is a bearer token and the instant it stops being accepted.
type Credentials struct {
	Token   string
	ValidTo time.Time
}

// Client talks to the CareLink cloud.
type Client struct {
	dataURL   string
	reauthURL string
	http      *http.Client
	userAgent string
}

const (
	DefaultDataURL   = "https://clcloud.minimed.eu/connect/carepartner/v6/display/message"
	DefaultReauthURL = "https://carelink.minimed.eu/patient/sso/reauth"

	// DefaultRequestTimeout tolerates the upstream's slow responses.
	DefaultRequestTimeout = 3 * time.Minute

	defaultUserAgent = "medaka/0.1"
	maxBodyBytes     = 16 << 20
)

// Options configure a Client. Zero values use the defaults above.
type Options struct {
	DataURL   string
	ReauthURL string
	Timeout   time.Duration
}

// NewClient builds a Client.
func NewClient(opts Options) *Client {
	dataURL := strings.TrimSpace(opts.DataURL)
	if dataURL == "" {
		dataURL = DefaultDataURL
	}
	reauthURL := strings.TrimSpace(opts.ReauthURL)
	if reauthURL == "" {
		reauthURL = DefaultReauthURL
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	return &Client{
		dataURL:   dataURL,
		reauthURL: reauthURL,
		http:      &http.Client{Timeout: timeout},
		userAgent: defaultUserAgent,
	}
}

type displayRequest struct {
	PatientID string `json:"patientId"`
	Role      string `json:"role"`
	Username  string `json:"username"`
}

// FetchDisplay retrieves the raw snapshot payload for username.
func (c *Client) FetchDisplay(ctx context.Context, token, username string) ([]byte, error) {
	if c == nil {
		return nil, fmt.Errorf("client is nil")
	}
	body, err := json.Marshal(displayRequest{PatientID: username, Role: "patient", Username: username})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.dataURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return nil, &StatusError{Endpoint: "display", Code: resp.StatusCode}
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return raw, nil
}

// Reauth replays the cookie handshake and returns the renewed credentials
// found in the response's Set-Cookie headers.
func (c *Client) Reauth(ctx context.Context, token string) (Credentials, error) {
	if c == nil {
		return Credentials{}, fmt.Errorf("client is nil")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.reauthURL, http.NoBody)
	if err != nil {
		return Credentials{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Cookie", TokenCookie+"="+token)
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return Credentials{}, fmt.Errorf("execute request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))

	values := make(map[string]string)
	for _, header := range resp.Header.Values("Set-Cookie") {
		if k, v, ok := cookiePair(header); ok {
			values[k] = v
		}
	}
	creds, err := credentialsFrom(values)
	if err != nil {
		return Credentials{}, fmt.Errorf("reauth status %d: %w", resp.StatusCode, err)
	}
	return creds, nil
}
