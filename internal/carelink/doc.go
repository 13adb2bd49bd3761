// Package carelink provides an HTTP client and data model for the CareLink
// cloud API.
//
// # Endpoints
//
// Two calls are supported:
//
//   - FetchDisplay: POST to the carepartner display endpoint with a JSON body
//     {patientId, role: "patient", username} and a bearer token. The raw
//     response body is returned so callers can persist it verbatim.
//   - Reauth: POST to the SSO re-auth endpoint with the current token as both
//     bearer and auth_tmp_token cookie. Renewed credentials come back in
//     Set-Cookie headers (auth_tmp_token and c_token_valid_to).
//
// Non-2xx responses surface as *StatusError; errors.Is(err, ErrUnauthorized)
// matches a 401.
//
// # Data Model
//
// Snapshot mirrors the display payload: readings (sgs) oldest to newest, the
// most recent reading (lastSG), basal state, pump banners and calibration and
// insulin metadata. ParseSnapshot rejects payloads whose timestamped readings
// go backwards or whose lastSG differs from the final reading in time or value.
//
// Reading timestamps are the patient's wall-clock time. Time() drops any
// offset suffix and places the value in time.Local.
//
// # Display Helpers
//
// SensorReading.Text maps sensor states to fixed phrases, Deltas and
// SignedText render reading-to-reading changes, and TrendArrow maps the
// upstream trend code to an arrow.
package carelink
