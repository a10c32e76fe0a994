package services

import (
	"fmt"
	"regexp"
	"time"
)

// Tesla clip timestamp format: 2019-01-21_14-15-20
const ClipTimeLayout = "2006-01-02_15-04-05"

var clipTimeRegex = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}_\d{2}-\d{2}-\d{2}$`)

// ParseError reports a filename or timestamp that could not be understood.
// Stray and corrupt files are common in footage folders, so callers are
// expected to collect these and keep going.
type ParseError struct {
	Input string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %q: %v", e.Input, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ParseClipTimestamp decodes the fixed-width recording timestamp used in
// TeslaCam filenames and folder names. The fields are zero padded, so
// lexicographic order of the canonical strings matches chronological order.
func ParseClipTimestamp(text string) (time.Time, error) {
	if !clipTimeRegex.MatchString(text) {
		return time.Time{}, &ParseError{Input: text, Err: fmt.Errorf("not a clip timestamp")}
	}
	t, err := time.ParseInLocation(ClipTimeLayout, text, time.UTC)
	if err != nil {
		return time.Time{}, &ParseError{Input: text, Err: err}
	}
	// Canonical form must round-trip exactly.
	if t.Format(ClipTimeLayout) != text {
		return time.Time{}, &ParseError{Input: text, Err: fmt.Errorf("impossible date or time")}
	}
	return t, nil
}

// FormatClipTimestamp is the exact inverse of ParseClipTimestamp.
func FormatClipTimestamp(t time.Time) string {
	return t.UTC().Format(ClipTimeLayout)
}
