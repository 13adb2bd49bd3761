package carelink

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Cookie names carrying the session.
const (
	TokenCookie   = "auth_tmp_token"
	ValidToCookie = "c_token_valid_to"
)

// ValidToLayout is the calendar format of the c_token_valid_to cookie.
const ValidToLayout = "Mon Jan 02 15:04:05 MST 2006"

// ErrNoSession is returned when no token cookie is present.
var ErrNoSession = errors.New("no session cookies")

// ParseValidTo parses a c_token_valid_to value. The wall clock is read as UTC
// whatever zone abbreviation the cookie carries.
func ParseValidTo(value string) (time.Time, error) {
	t, err := time.Parse(ValidToLayout, strings.TrimSpace(value))
	if err != nil {
		return time.Time{}, fmt.Errorf("parse %s: %w", ValidToCookie, err)
	}
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, time.UTC), nil
}

// ParseCookieHeader extracts credentials from a browser cookie string such as
// "auth_tmp_token=...; c_token_valid_to=...". When the expiry cookie is
// missing the token's own exp claim is used.
func ParseCookieHeader(header string) (Credentials, error) {
	values := make(map[string]string)
	for _, part := range strings.Split(header, ";") {
		if k, v, ok := cookiePair(part); ok {
			values[k] = v
		}
	}
	if values[TokenCookie] != "" && values[ValidToCookie] == "" {
		exp, err := TokenExpiry(values[TokenCookie])
		if err != nil {
			return Credentials{}, err
		}
		return Credentials{Token: values[TokenCookie], ValidTo: exp}, nil
	}
	return credentialsFrom(values)
}

// TokenExpiry reads the exp claim of a JWT bearer token without verifying
// its signature; the upstream is the only party that can verify it.
func TokenExpiry(token string) (time.Time, error) {
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return time.Time{}, fmt.Errorf("parse token: %w", err)
	}
	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil {
		return time.Time{}, fmt.Errorf("read exp claim: %w", err)
	}
	if exp == nil {
		return time.Time{}, fmt.Errorf("token has no exp claim")
	}
	return exp.Time.UTC(), nil
}

func credentialsFrom(values map[string]string) (Credentials, error) {
	token := values[TokenCookie]
	validTo := values[ValidToCookie]
	if token == "" || validTo == "" {
		return Credentials{}, ErrNoSession
	}
	t, err := ParseValidTo(validTo)
	if err != nil {
		return Credentials{}, err
	}
	return Credentials{Token: token, ValidTo: t}, nil
}

// cookiePair returns the leading name=value of a cookie or Set-Cookie string.
func cookiePair(raw string) (string, string, bool) {
	first, _, _ := strings.Cut(raw, ";")
	name, value, ok := strings.Cut(first, "=")
	if !ok {
		return "", "", false
	}
	name = strings.TrimSpace(name)
	value = strings.Trim(strings.TrimSpace(value), `"`)
	if name == "" {
		return "", "", false
	}
	return name, value, true
}
