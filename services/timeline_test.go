package services

import (
	"math"
	"testing"
)

func TestDurationTable_EstimatesUntilObserved(t *testing.T) {
	tbl := NewDurationTable(3, 60)
	if got := tbl.Duration(1); got != 60 {
		t.Errorf("estimate: got %v, want 60", got)
	}
	if got := tbl.Total(); got != 180 {
		t.Errorf("total: got %v, want 180", got)
	}

	tbl.SetDuration(1, 36.5)
	if got := tbl.Duration(1); got != 36.5 {
		t.Errorf("observed: got %v, want 36.5", got)
	}
	if got := tbl.Total(); got != 156.5 {
		t.Errorf("total after observation: got %v, want 156.5", got)
	}

	// Cameras disagree slightly; the longest observation wins.
	tbl.SetDuration(1, 36.1)
	if got := tbl.Duration(1); got != 36.5 {
		t.Errorf("shorter report must not shrink the cache: got %v", got)
	}
	tbl.SetDuration(1, 37.0)
	if got := tbl.Duration(1); got != 37.0 {
		t.Errorf("longer report should win: got %v", got)
	}
}

func TestDurationTable_RoundTrip(t *testing.T) {
	tbl := NewDurationTable(4, 60)
	tbl.SetDuration(0, 59.8)
	tbl.SetDuration(2, 35.2)

	cases := []struct {
		clip   int
		offset float64
	}{
		{0, 0},
		{0, 30.5},
		{1, 59.9},
		{2, 0.1},
		{3, 12},
	}
	for _, tc := range cases {
		abs := tbl.ToAbsolute(tc.clip, tc.offset)
		clip, offset := tbl.FromAbsolute(abs)
		if clip != tc.clip || math.Abs(offset-tc.offset) > 1e-9 {
			t.Errorf("round trip (%d, %v) -> %v -> (%d, %v)", tc.clip, tc.offset, abs, clip, offset)
		}
	}
}

func TestDurationTable_FromAbsoluteClamps(t *testing.T) {
	tbl := NewDurationTable(2, 60)

	clip, offset := tbl.FromAbsolute(10000)
	if clip != 1 || offset != 60 {
		t.Errorf("over-range: got (%d, %v), want (1, 60)", clip, offset)
	}

	clip, offset = tbl.FromAbsolute(-5)
	if clip != 0 || offset != 0 {
		t.Errorf("negative: got (%d, %v), want (0, 0)", clip, offset)
	}
}

func TestDurationTable_Empty(t *testing.T) {
	tbl := NewDurationTable(0, 60)
	if clip, offset := tbl.FromAbsolute(5); clip != 0 || offset != 0 {
		t.Errorf("empty table: got (%d, %v)", clip, offset)
	}
	if got := tbl.Total(); got != 0 {
		t.Errorf("empty total: got %v", got)
	}
}
