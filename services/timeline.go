package services

import (
	"sync"
)

// DurationTable maps between (clip index, offset) pairs and a single absolute
// time scalar spanning a whole event. Real durations are recorded as clips
// are probed or played; until then the configured estimate stands in.
//
// Every conversion in both directions walks this one table. If marks and
// seeks derived their durations independently, an absolute time written with
// one source would land somewhere else when read back with the other.
type DurationTable struct {
	mu       sync.RWMutex
	estimate float64
	known    []float64 // <= 0 means not yet observed
}

// NewDurationTable creates a table for an event of clipCount groups, all
// durations initially estimated.
func NewDurationTable(clipCount int, estimateSeconds float64) *DurationTable {
	return &DurationTable{
		estimate: estimateSeconds,
		known:    make([]float64, clipCount),
	}
}

// SetDuration records the real duration of a clip once observed. Cameras in
// the same group can disagree by a fraction of a second; the longest value
// wins, since the group plays until its longest stream ends.
func (t *DurationTable) SetDuration(clipIndex int, seconds float64) {
	if seconds <= 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if clipIndex < 0 || clipIndex >= len(t.known) {
		return
	}
	if seconds > t.known[clipIndex] {
		t.known[clipIndex] = seconds
	}
}

// Duration returns the cached duration of a clip, or the estimate if the real
// value is not known yet.
func (t *DurationTable) Duration(clipIndex int) float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.durationLocked(clipIndex)
}

func (t *DurationTable) durationLocked(clipIndex int) float64 {
	if clipIndex < 0 || clipIndex >= len(t.known) {
		return t.estimate
	}
	if d := t.known[clipIndex]; d > 0 {
		return d
	}
	return t.estimate
}

// Len returns the number of clips covered by the table.
func (t *DurationTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.known)
}

// Total returns the current best-known duration of the whole event.
func (t *DurationTable) Total() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var total float64
	for i := range t.known {
		total += t.durationLocked(i)
	}
	return total
}

// ToAbsolute converts a clip index and an offset within that clip to the
// absolute event time.
func (t *DurationTable) ToAbsolute(clipIndex int, offset float64) float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if clipIndex > len(t.known) {
		clipIndex = len(t.known)
	}
	var abs float64
	for i := 0; i < clipIndex; i++ {
		abs += t.durationLocked(i)
	}
	return abs + offset
}

// FromAbsolute converts an absolute event time back to the containing clip
// and the remainder offset. A target beyond the known total clamps to the end
// of the last clip.
func (t *DurationTable) FromAbsolute(abs float64) (clipIndex int, offset float64) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if len(t.known) == 0 {
		return 0, 0
	}
	if abs < 0 {
		abs = 0
	}
	var elapsed float64
	for i := range t.known {
		d := t.durationLocked(i)
		if abs < elapsed+d {
			return i, abs - elapsed
		}
		elapsed += d
	}
	last := len(t.known) - 1
	return last, t.durationLocked(last)
}
