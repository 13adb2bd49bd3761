package carelink

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestParseValidTo_ReadsWallClockAsUTC(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{in: "Tue Mar 05 10:20:30 CET 2024", want: time.Date(2024, 3, 5, 10, 20, 30, 0, time.UTC)},
		{in: "Sun Dec 31 23:59:59 UTC 2023", want: time.Date(2023, 12, 31, 23, 59, 59, 0, time.UTC)},
		{in: " Wed Jan 10 01:02:03 JST 2024 ", want: time.Date(2024, 1, 10, 1, 2, 3, 0, time.UTC)},
	}
	for _, tt := range tests {
		got, err := ParseValidTo(tt.in)
		if err != nil {
			t.Fatalf("ParseValidTo(%q) returned error: %v", tt.in, err)
		}
		if !got.Equal(tt.want) || got.Location() != time.UTC {
			t.Fatalf("ParseValidTo(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}

	if _, err := ParseValidTo("2024-03-05"); err == nil {
		t.Fatal("expected error for malformed date")
	}
}

func TestParseCookieHeader(t *testing.T) {
	creds, err := ParseCookieHeader(`foo=bar; auth_tmp_token="abc"; c_token_valid_to=Tue Mar 05 10:20:30 CET 2024`)
	if err != nil {
		t.Fatalf("ParseCookieHeader returned error: %v", err)
	}
	if creds.Token != "abc" {
		t.Fatalf("token = %q, want abc", creds.Token)
	}
	if creds.ValidTo.Hour() != 10 {
		t.Fatalf("validTo = %s", creds.ValidTo)
	}

	if _, err := ParseCookieHeader("foo=bar"); !errors.Is(err, ErrNoSession) {
		t.Fatalf("err = %v, want ErrNoSession", err)
	}
}

func TestParseCookieHeader_FallsBackToTokenExpiry(t *testing.T) {
	exp := time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC)
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"exp": exp.Unix()}).SignedString([]byte("k"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	creds, err := ParseCookieHeader("auth_tmp_token=" + signed)
	if err != nil {
		t.Fatalf("ParseCookieHeader returned error: %v", err)
	}
	if !creds.ValidTo.Equal(exp) {
		t.Fatalf("validTo = %s, want %s", creds.ValidTo, exp)
	}
}

func TestTokenExpiry_RejectsOpaqueTokens(t *testing.T) {
	if _, err := TokenExpiry("not-a-jwt"); err == nil {
		t.Fatal("expected error for opaque token")
	}
	signed, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "x"}).SignedString([]byte("k"))
	if _, err := TokenExpiry(signed); err == nil {
		t.Fatal("expected error when exp is missing")
	}
}
