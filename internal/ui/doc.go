// Package ui implements the `medaka watch` terminal view.
//
// The view is a Bubble Tea program that polls the daemon's status API once
// per tick and renders:
//
//   - a header with the fetch status chip, data age, session countdown and
//     the last error
//   - the latest reading with trend arrow and delta, coloured by range
//   - basal, active insulin, calibration and pump banner lines
//   - the reading history, newest first, with delta and delta-of-delta
//   - a scrollable activity log filtered by minimum level (press l)
//
// Units (u), theme (T) and log level (v) are saved to the preferences file.
// f asks the daemon to fetch immediately and r forces a session renewal.
package ui
