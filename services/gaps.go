package services

import (
	"time"
)

// RecordingGap is a discontinuity in an event's recording: the camera stopped
// (or files were lost) between clip AfterIndex and the next one. Derived on
// demand from a sequence, never persisted.
type RecordingGap struct {
	AfterIndex int       `json:"afterIndex"`
	StartTime  time.Time `json:"startTime"` // where recording was expected to resume
	EndTime    time.Time `json:"endTime"`   // where it actually resumed
	Duration   float64   `json:"durationSeconds"`
}

// DetectGaps scans a sorted sequence for recording discontinuities. Clips are
// nominally expectedClipDuration seconds long but real recordings vary by a
// few seconds, so only a shortfall beyond gapTolerance counts as a gap;
// anything tighter flags every other clip boundary. Gaps come out in sequence
// order.
func DetectGaps(seq ClipGroupSequence, expectedClipDuration, gapTolerance float64) []RecordingGap {
	var gaps []RecordingGap
	for i := 0; i+1 < len(seq); i++ {
		expectedNext := seq[i].Timestamp.Add(time.Duration(expectedClipDuration * float64(time.Second)))
		gap := seq[i+1].Timestamp.Sub(expectedNext).Seconds()
		if gap > gapTolerance {
			gaps = append(gaps, RecordingGap{
				AfterIndex: i,
				StartTime:  expectedNext,
				EndTime:    seq[i+1].Timestamp,
				Duration:   gap,
			})
		}
	}
	return gaps
}
