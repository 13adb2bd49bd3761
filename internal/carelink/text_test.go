package carelink

import "testing"

func strPtr(s string) *string { return &s }

func TestSensorReadingText(t *testing.T) {
	tests := []struct {
		state *string
		sg    int
		want  string
	}{
		{state: strPtr(StateNoErrorMessage), sg: 123, want: "123mg/dL"},
		{state: strPtr(StateNormal), sg: 80, want: "80mg/dL"},
		{state: strPtr(StateWarmUp), sg: 0, want: "warming up"},
		{state: strPtr(StateAbove400), sg: 400, want: "over 400mg/dL"},
		{state: strPtr("SOMETHING_NEW"), sg: 7, want: "SOMETHING_NEW(7)"},
		{state: nil, sg: 5, want: "(5)"},
	}
	for _, tt := range tests {
		got := SensorReading{SensorState: tt.state, SG: tt.sg}.Text()
		if got != tt.want {
			t.Fatalf("Text() = %q, want %q", got, tt.want)
		}
	}
}

func TestDeltas(t *testing.T) {
	readings := []SensorReading{{SG: 100}, {SG: 104}, {SG: 104}, {SG: 98}}
	got := Deltas(readings)
	want := []string{"", "+4", "±0", "-6"}
	for i, d := range got {
		if d.Text("") != want[i] {
			t.Fatalf("delta[%d] = %q, want %q", i, d.Text(""), want[i])
		}
	}
	if got := SignedText(0, "0"); got != "0" {
		t.Fatalf("custom zero marker = %q", got)
	}
}

func TestSnapshotLastHelpers(t *testing.T) {
	var empty *Snapshot
	if empty.LastText() != "??" {
		t.Fatalf("LastText on nil = %q", empty.LastText())
	}
	if _, ok := empty.LastTimeText(); ok {
		t.Fatal("LastTimeText on nil should be unavailable")
	}

	ts := "2024-03-05T07:09:00"
	snap := &Snapshot{
		Readings:    []SensorReading{{SG: 110}, {SG: 105, DateTime: &ts, SensorState: strPtr(StateNormal)}},
		LastReading: &SensorReading{SG: 105, DateTime: &ts, SensorState: strPtr(StateNormal)},
	}
	if snap.LastText() != "105mg/dL" {
		t.Fatalf("LastText = %q", snap.LastText())
	}
	if snap.LastDeltaText("") != "-5" {
		t.Fatalf("LastDeltaText = %q", snap.LastDeltaText(""))
	}
	if got, ok := snap.LastTimeText(); !ok || got != "07:09" {
		t.Fatalf("LastTimeText = %q, %v", got, ok)
	}
}

func TestMmolConversion(t *testing.T) {
	r := SensorReading{SensorState: strPtr(StateNormal), SG: 180}
	if !r.HasValue() {
		t.Fatal("normal reading should have a value")
	}
	if got := r.MmolL(); got < 9.98 || got > 10.0 {
		t.Fatalf("MmolL() = %v, want ~9.99", got)
	}
	if got := MgdlToMmol(-18); got > -0.99 || got < -1.0 {
		t.Fatalf("MgdlToMmol(-18) = %v, want ~-1", got)
	}
	if (SensorReading{SensorState: strPtr(StateWarmUp)}).HasValue() {
		t.Fatal("warm-up reading should not have a value")
	}
}
