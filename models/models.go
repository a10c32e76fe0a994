package models

import (
	"time"
)

// Event is a single real-world recording session: one SavedClips/SentryClips
// folder, or the rolling RecentClips buffer. Its video files assemble into an
// ordered clip-group sequence when the event is opened for playback.
type Event struct {
	ID        uint       `gorm:"primary_key" json:"ID"`
	CreatedAt time.Time  `json:"-"`
	UpdatedAt time.Time  `json:"-"`
	DeletedAt *time.Time `sql:"index" json:"-"`

	Timestamp      time.Time   `json:"timestamp" gorm:"index"` // start of the earliest clip group
	EventTimestamp *time.Time  `json:"event_timestamp"`        // trigger moment from event.json
	Type           string      `json:"type"`                   // "Sentry", "Saved", "Recent"
	Folder         string      `json:"folder" gorm:"index"`    // directory the files live in
	City           string      `json:"city"`
	Reason         string      `json:"reason"`
	VideoFiles     []VideoFile `json:"video_files"`
}

// VideoFile is one per-camera media file. Duration stays 0 until the real
// value has been probed or observed during playback; consumers substitute the
// configured estimate while it is unknown.
type VideoFile struct {
	ID        uint       `gorm:"primary_key" json:"ID"`
	CreatedAt time.Time  `json:"-"`
	UpdatedAt time.Time  `json:"-"`
	DeletedAt *time.Time `sql:"index" json:"-"`

	EventID   uint      `json:"-" gorm:"index"`
	Timestamp time.Time `json:"timestamp" gorm:"index"` // clip group start
	Camera    string    `json:"camera"`                 // "front", "left_repeater", ...
	FilePath  string    `json:"file_path"`
	Duration  float64   `json:"duration"` // seconds, 0 = not yet known
}
