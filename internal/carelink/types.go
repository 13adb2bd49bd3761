package carelink

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Sensor states reported in SensorReading.SensorState.
const (
	StateNoErrorMessage      = "NO_ERROR_MESSAGE"
	StateNormal              = "NORMAL"
	StateAbove400            = "SG_ABOVE_400_MGDL"
	StateCalibrationRequired = "CALIBRATION_REQUIRED"
	StateNoDataFromPump      = "NO_DATA_FROM_PUMP"
	StateWaitToCalibrate     = "WAIT_TO_CALIBRATE"
	StateDoNotCalibrate      = "DO_NOT_CALIBRATE"
	StateCalibrating         = "CALIBRATING"
	StateWarmUp              = "WARM_UP"
	StateChangeSensor        = "CHANGE_SENSOR"
	StateUnknown             = "UNKNOWN"
)

// ErrMalformedSnapshot marks a payload that decodes but breaks the reading
// ordering rules.
var ErrMalformedSnapshot = errors.New("malformed snapshot")

// Snapshot mirrors the payload returned by the display message endpoint.
type Snapshot struct {
	Readings                     []SensorReading   `json:"sgs"`
	LastReading                  *SensorReading    `json:"lastSG"`
	LastTrend                    string            `json:"lastSGTrend,omitempty"`
	Basal                        Basal             `json:"basal"`
	PumpBanners                  []PumpBannerState `json:"pumpBannerState,omitempty"`
	TimeToNextCalibrationMinutes *int              `json:"timeToNextCalibrationMinutes,omitempty"`
	ActiveInsulin                *ActiveInsulin    `json:"activeInsulin,omitempty"`
}

// SensorReading is one CGM sample.
type SensorReading struct {
	DateTime       *string `json:"datetime"`
	Kind           string  `json:"kind"`
	RelativeOffset *int    `json:"relativeOffset,omitempty"`
	SensorState    *string `json:"sensorState,omitempty"`
	SG             int     `json:"sg"`
	TimeChange     *bool   `json:"timeChange,omitempty"`
}

// Basal describes the pump's active basal delivery.
type Basal struct {
	ActiveBasalPattern string   `json:"activeBasalPattern"`
	BasalRate          float64  `json:"basalRate"`
	TempBasalRate      *float64 `json:"tempBasalRate,omitempty"`
}

// PumpBannerState is an in-progress pump condition shown as a banner.
type PumpBannerState struct {
	Type          string `json:"type"`
	TimeRemaining *int   `json:"timeRemaining,omitempty"`
}

// ActiveInsulin reports insulin on board.
type ActiveInsulin struct {
	Amount float64 `json:"amount"`
}

// ParseSnapshot decodes a raw payload and checks reading order.
func ParseSnapshot(raw []byte) (*Snapshot, error) {
	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	if err := snap.validate(); err != nil {
		return nil, err
	}
	return &snap, nil
}

func (s *Snapshot) validate() error {
	var prev time.Time
	for i, r := range s.Readings {
		t, ok := r.Time()
		if !ok {
			continue
		}
		if !prev.IsZero() && t.Before(prev) {
			return fmt.Errorf("%w: reading %d at %s precedes %s", ErrMalformedSnapshot, i, t.Format(time.RFC3339), prev.Format(time.RFC3339))
		}
		prev = t
	}
	if s.LastReading == nil || len(s.Readings) == 0 {
		return nil
	}
	final := s.Readings[len(s.Readings)-1]
	if !s.LastReading.sameAs(final) {
		return fmt.Errorf("%w: lastSG does not match the final reading", ErrMalformedSnapshot)
	}
	if s.LastReading.SensorState == nil && final.SensorState != nil {
		state := *final.SensorState
		s.LastReading.SensorState = &state
	}
	return nil
}

// Clone returns a deep copy so callers can never mutate a published value.
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}
	dup := *s
	if len(s.Readings) > 0 {
		dup.Readings = make([]SensorReading, len(s.Readings))
		copy(dup.Readings, s.Readings)
	}
	if s.LastReading != nil {
		last := *s.LastReading
		dup.LastReading = &last
	}
	if len(s.PumpBanners) > 0 {
		dup.PumpBanners = make([]PumpBannerState, len(s.PumpBanners))
		copy(dup.PumpBanners, s.PumpBanners)
	}
	if s.ActiveInsulin != nil {
		ai := *s.ActiveInsulin
		dup.ActiveInsulin = &ai
	}
	return &dup
}

// LastTime returns the timestamp of the most recent reading.
func (s *Snapshot) LastTime() (time.Time, bool) {
	if s == nil || s.LastReading == nil {
		return time.Time{}, false
	}
	return s.LastReading.Time()
}

// Time parses the reading timestamp. The upstream reports patient wall-clock
// time, so any offset suffix is dropped and the result is placed in time.Local.
func (r SensorReading) Time() (time.Time, bool) {
	if r.DateTime == nil {
		return time.Time{}, false
	}
	return parseWallClock(*r.DateTime, time.Local)
}

// State returns the sensor state or an empty string.
func (r SensorReading) State() string {
	if r.SensorState == nil {
		return ""
	}
	return *r.SensorState
}

// sameAs matches readings on time and value. The upstream may omit
// sensorState on lastSG while the sgs entry carries it.
func (r SensorReading) sameAs(other SensorReading) bool {
	if r.SG != other.SG {
		return false
	}
	a, aok := r.Time()
	b, bok := other.Time()
	if aok != bok {
		return false
	}
	return !aok || a.Equal(b)
}

var wallClockLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
}

func parseWallClock(value string, loc *time.Location) (time.Time, bool) {
	if value == "" {
		return time.Time{}, false
	}
	for _, layout := range wallClockLayouts {
		t, err := time.Parse(layout, value)
		if err != nil {
			continue
		}
		return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), loc), true
	}
	return time.Time{}, false
}
