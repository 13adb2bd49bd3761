package statusapi

import "time"

// StatusResponse is returned by GET /api/status.
type StatusResponse struct {
	Status              string     `json:"status"`
	FetchedAt           *time.Time `json:"fetchedAt,omitempty"`
	LastError           string     `json:"lastError,omitempty"`
	ConsecutiveFailures int        `json:"consecutiveFailures"`
	Offline             bool       `json:"offline"`
	HasData             bool       `json:"hasData"`
	HasToken            bool       `json:"hasToken"`
	SessionValidTo      *time.Time `json:"sessionValidTo,omitempty"`
	PollerRunning       bool       `json:"pollerRunning"`
}

// FetchResponse is returned by POST /api/fetch.
type FetchResponse struct {
	Started bool `json:"started"`
}

// ReauthResponse is returned by POST /api/reauth.
type ReauthResponse struct {
	Outcome string     `json:"outcome"`
	ValidTo *time.Time `json:"validTo,omitempty"`
}

// SessionRequest is the body of POST /api/session. Either Cookie or Token is
// required; a Token without ValidTo takes the expiry from its exp claim.
type SessionRequest struct {
	Cookie  string     `json:"cookie,omitempty"`
	Token   string     `json:"token,omitempty"`
	ValidTo *time.Time `json:"validTo,omitempty"`
}

// SessionResponse is returned by POST /api/session.
type SessionResponse struct {
	ValidTo   time.Time `json:"validTo"`
	Restarted bool      `json:"restarted"`
}

// LogsResponse is returned by GET /api/logs.
type LogsResponse struct {
	Lines []string `json:"lines"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error"`
}
