package carelink

import (
	"fmt"
	"strconv"
)

// DefaultZeroMarker is printed for a delta of exactly zero.
const DefaultZeroMarker = "±0"

const mgdlPerMmol = 18.0182

var stateText = map[string]string{
	StateAbove400:            "over 400mg/dL",
	StateCalibrationRequired: "calibration required",
	StateNoDataFromPump:      "no data from pump",
	StateWaitToCalibrate:     "wait to calibrate",
	StateDoNotCalibrate:      "do not calibrate",
	StateCalibrating:         "calibrating",
	StateWarmUp:              "warming up",
	StateChangeSensor:        "change sensor",
	StateUnknown:             "unknown",
}

var trendArrows = map[string]string{
	"UP_TRIPLE":   "⇈↑",
	"UP_DOUBLE":   "⇈",
	"UP":          "↑",
	"NONE":        "→",
	"DOWN":        "↓",
	"DOWN_DOUBLE": "⇊",
	"DOWN_TRIPLE": "⇊↓",
}

// Text renders the reading for display.
func (r SensorReading) Text() string {
	if r.HasValue() {
		return fmt.Sprintf("%dmg/dL", r.SG)
	}
	state := r.State()
	if text, ok := stateText[state]; ok {
		return text
	}
	return fmt.Sprintf("%s(%d)", state, r.SG)
}

// TimeText renders the reading time as HH:MM, or "??" when unknown.
func (r SensorReading) TimeText() string {
	t, ok := r.Time()
	if !ok {
		return "??"
	}
	return t.Format("15:04")
}

// MmolL converts the reading to mmol/L.
func (r SensorReading) MmolL() float64 {
	return MgdlToMmol(r.SG)
}

// MgdlToMmol converts a mg/dL value or difference to mmol/L.
func MgdlToMmol(v int) float64 {
	return float64(v) / mgdlPerMmol
}

// HasValue reports whether the reading carries a usable glucose value.
func (r SensorReading) HasValue() bool {
	switch r.State() {
	case StateNoErrorMessage, StateNormal:
		return true
	}
	return false
}

// Delta is the change between a reading and the one before it.
type Delta struct {
	Value int
	Valid bool
}

// Deltas returns one entry per reading; the first is never valid.
func Deltas(readings []SensorReading) []Delta {
	out := make([]Delta, len(readings))
	for i := 1; i < len(readings); i++ {
		out[i] = Delta{Value: readings[i].SG - readings[i-1].SG, Valid: true}
	}
	return out
}

// SignedText formats v with an explicit sign; zero renders as zeroMarker.
func SignedText(v int, zeroMarker string) string {
	switch {
	case v > 0:
		return "+" + strconv.Itoa(v)
	case v == 0:
		if zeroMarker == "" {
			return DefaultZeroMarker
		}
		return zeroMarker
	default:
		return strconv.Itoa(v)
	}
}

// Text renders the delta, or an empty string for the first reading.
func (d Delta) Text(zeroMarker string) string {
	if !d.Valid {
		return ""
	}
	return SignedText(d.Value, zeroMarker)
}

// LastText renders the most recent reading, or "??" when there is none.
func (s *Snapshot) LastText() string {
	if s == nil || s.LastReading == nil {
		return "??"
	}
	return s.LastReading.Text()
}

// LastDeltaText renders the change between the two newest readings.
func (s *Snapshot) LastDeltaText(zeroMarker string) string {
	if s == nil || len(s.Readings) < 2 {
		return ""
	}
	n := len(s.Readings)
	return SignedText(s.Readings[n-1].SG-s.Readings[n-2].SG, zeroMarker)
}

// LastTimeText renders the newest reading time as HH:MM.
func (s *Snapshot) LastTimeText() (string, bool) {
	t, ok := s.LastTime()
	if !ok {
		return "", false
	}
	return t.Format("15:04"), true
}

// TrendArrow maps the upstream trend code to an arrow, empty when unknown.
func (s *Snapshot) TrendArrow() string {
	if s == nil {
		return ""
	}
	return trendArrows[s.LastTrend]
}
