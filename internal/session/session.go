// Package session keeps the upstream bearer token alive by replaying the
// cookie re-authentication handshake before the token expires.
package session

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/five82/medaka/internal/carelink"
	"github.com/five82/medaka/internal/token"
)

// DefaultMargin is how close to expiry a token must be before it is renewed.
const DefaultMargin = 10 * time.Minute

// Outcome describes what ReauthIfNeeded did.
type Outcome int

const (
	OutcomeNoToken Outcome = iota
	OutcomeFresh
	OutcomeExpired
	OutcomeRenewed
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNoToken:
		return "no-token"
	case OutcomeFresh:
		return "fresh"
	case OutcomeExpired:
		return "expired"
	case OutcomeRenewed:
		return "renewed"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Reauthenticator exchanges a token for a renewed one.
type Reauthenticator interface {
	Reauth(ctx context.Context, token string) (carelink.Credentials, error)
}

// TokenStore is the subset of token.Store the authenticator needs.
type TokenStore interface {
	Get() (token.Session, bool)
	Set(tok string, validTo time.Time) error
	Clear() error
}

// Options configure an Authenticator.
type Options struct {
	Margin    time.Duration
	Logger    *slog.Logger
	Now       func() time.Time
	OnExpired func()
}

// Authenticator renews the session ahead of expiry.
type Authenticator struct {
	client    Reauthenticator
	tokens    TokenStore
	margin    time.Duration
	logger    *slog.Logger
	now       func() time.Time
	onExpired func()

	mu sync.Mutex
}

// New builds an Authenticator.
func New(client Reauthenticator, tokens TokenStore, opts Options) *Authenticator {
	a := &Authenticator{
		client:    client,
		tokens:    tokens,
		margin:    opts.Margin,
		logger:    opts.Logger,
		now:       opts.Now,
		onExpired: opts.OnExpired,
	}
	if a.margin <= 0 {
		a.margin = DefaultMargin
	}
	if a.logger == nil {
		a.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if a.now == nil {
		a.now = time.Now
	}
	return a
}

// ReauthIfNeeded renews the token when it is inside the safety margin, or
// always when force is set. An expired token is cleared instead. Renewal
// failures leave the current token in place.
func (a *Authenticator) ReauthIfNeeded(ctx context.Context, force bool) Outcome {
	a.mu.Lock()
	defer a.mu.Unlock()

	current, ok := a.tokens.Get()
	if !ok {
		return OutcomeNoToken
	}
	now := a.now()
	if current.Expired(now) {
		a.logger.Warn("session expired", "valid_to", current.ValidTo.Format(time.RFC3339))
		if err := a.tokens.Clear(); err != nil {
			a.logger.Warn("clear expired token failed", "error", err)
		}
		if a.onExpired != nil {
			a.onExpired()
		}
		return OutcomeExpired
	}
	if !force && current.Remaining(now) > a.margin {
		return OutcomeFresh
	}

	creds, err := a.client.Reauth(ctx, current.Token)
	if err != nil {
		a.logger.Warn("reauth failed", "error", err)
		return OutcomeFailed
	}
	if err := a.tokens.Set(creds.Token, creds.ValidTo); err != nil {
		a.logger.Warn("store renewed token failed", "error", err)
		return OutcomeFailed
	}
	a.logger.Info("session renewed", "valid_to", creds.ValidTo.Format(time.RFC3339))
	return OutcomeRenewed
}
