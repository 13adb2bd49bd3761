package ui

import (
	"fmt"

	"github.com/five82/medaka/internal/carelink"
	"github.com/five82/medaka/internal/prefs"
)

// Glucose range boundaries in mg/dL.
const (
	lowThreshold  = 70
	highThreshold = 180
)

type glucoseRange int

const (
	rangeUnknown glucoseRange = iota
	rangeLow
	rangeInRange
	rangeHigh
)

func classify(r carelink.SensorReading) glucoseRange {
	if !r.HasValue() {
		if r.State() == carelink.StateAbove400 {
			return rangeHigh
		}
		return rangeUnknown
	}
	switch {
	case r.SG < lowThreshold:
		return rangeLow
	case r.SG > highThreshold:
		return rangeHigh
	default:
		return rangeInRange
	}
}

// glucoseText renders a reading in the chosen units.
func glucoseText(r carelink.SensorReading, units string) string {
	if units == prefs.UnitsMmol && r.HasValue() {
		return fmt.Sprintf("%.1fmmol/L", r.MmolL())
	}
	return r.Text()
}

// deltaText renders a reading-to-reading change in the chosen units.
func deltaText(d carelink.Delta, units, zeroMarker string) string {
	if !d.Valid {
		return ""
	}
	if units == prefs.UnitsMmol && d.Value != 0 {
		return fmt.Sprintf("%+.1f", carelink.MgdlToMmol(d.Value))
	}
	return d.Text(zeroMarker)
}

// accelerations returns the change between consecutive deltas; entries are
// valid only where both neighbouring deltas are.
func accelerations(deltas []carelink.Delta) []carelink.Delta {
	out := make([]carelink.Delta, len(deltas))
	for i := 1; i < len(deltas); i++ {
		if deltas[i].Valid && deltas[i-1].Valid {
			out[i] = carelink.Delta{Value: deltas[i].Value - deltas[i-1].Value, Valid: true}
		}
	}
	return out
}

type readingRow struct {
	Time    string
	Value   string
	Delta   string
	DDelta  string
	Range   glucoseRange
	Reading carelink.SensorReading
}

// readingRows lists readings newest first with their deltas.
func readingRows(snap *carelink.Snapshot, units, zeroMarker string, limit int) []readingRow {
	if snap == nil || len(snap.Readings) == 0 {
		return nil
	}
	deltas := carelink.Deltas(snap.Readings)
	dd := accelerations(deltas)
	rows := make([]readingRow, 0, len(snap.Readings))
	for i := len(snap.Readings) - 1; i >= 0; i-- {
		if limit > 0 && len(rows) >= limit {
			break
		}
		r := snap.Readings[i]
		rows = append(rows, readingRow{
			Time:    r.TimeText(),
			Value:   glucoseText(r, units),
			Delta:   deltaText(deltas[i], units, zeroMarker),
			DDelta:  deltaText(dd[i], units, zeroMarker),
			Range:   classify(r),
			Reading: r,
		})
	}
	return rows
}
