package services

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// CameraID identifies one of the fixed camera positions on the vehicle.
type CameraID string

const (
	CameraFront         CameraID = "front"
	CameraBack          CameraID = "back"
	CameraLeftRepeater  CameraID = "left_repeater"
	CameraRightRepeater CameraID = "right_repeater"
	// Pillar cameras only exist on newer 6-camera vehicles.
	CameraLeftPillar  CameraID = "left_pillar"
	CameraRightPillar CameraID = "right_pillar"
)

var knownCameras = map[CameraID]bool{
	CameraFront:         true,
	CameraBack:          true,
	CameraLeftRepeater:  true,
	CameraRightRepeater: true,
	CameraLeftPillar:    true,
	CameraRightPillar:   true,
}

// NormalizeCamera maps a raw camera token from a filename to its CameraID.
func NormalizeCamera(raw string) (CameraID, bool) {
	id := CameraID(strings.ToLower(raw))
	return id, knownCameras[id]
}

// CameraClip is one camera's recording of a clip group. Immutable once built.
type CameraClip struct {
	Timestamp time.Time `json:"timestamp"`
	Camera    CameraID  `json:"camera"`
	MediaRef  string    `json:"media_ref"` // opaque to this package; a file path in practice
}

// ClipGroup is the set of per-camera clips recorded simultaneously. Not every
// camera need be present: a missing or corrupt file just leaves its slot
// empty, and players show fewer angles for that minute.
type ClipGroup struct {
	Timestamp time.Time                `json:"timestamp"`
	Clips     map[CameraID]*CameraClip `json:"clips"`
}

// Cameras returns the cameras present in the group, in a stable order.
func (g *ClipGroup) Cameras() []CameraID {
	cams := make([]CameraID, 0, len(g.Clips))
	for id := range g.Clips {
		cams = append(cams, id)
	}
	sort.Slice(cams, func(i, j int) bool { return cams[i] < cams[j] })
	return cams
}

// ClipGroupSequence is the ordered clip groups of one event: strictly
// increasing by timestamp, no duplicates. Built once per event and immutable
// afterwards.
type ClipGroupSequence []*ClipGroup

// ClipInput is one raw file as handed over by directory enumeration, before
// any validation.
type ClipInput struct {
	Timestamp string
	Camera    string
	MediaRef  string
}

// AssembleClipGroups partitions raw per-camera files by recording timestamp
// and returns the chronologically sorted sequence of clip groups, together
// with the parse failures it skipped over. A later duplicate of the same
// camera+timestamp overwrites the earlier one; only one file per camera per
// timestamp is expected.
func AssembleClipGroups(inputs []ClipInput) (ClipGroupSequence, []*ParseError) {
	groups := make(map[time.Time]*ClipGroup)
	var failures []*ParseError

	for _, in := range inputs {
		ts, err := ParseClipTimestamp(in.Timestamp)
		if err != nil {
			if pe, ok := err.(*ParseError); ok {
				failures = append(failures, pe)
			} else {
				failures = append(failures, &ParseError{Input: in.Timestamp, Err: err})
			}
			continue
		}
		cam, ok := NormalizeCamera(in.Camera)
		if !ok {
			failures = append(failures, &ParseError{
				Input: in.Camera,
				Err:   fmt.Errorf("unknown camera"),
			})
			continue
		}

		g, ok := groups[ts]
		if !ok {
			g = &ClipGroup{Timestamp: ts, Clips: make(map[CameraID]*CameraClip)}
			groups[ts] = g
		}
		g.Clips[cam] = &CameraClip{Timestamp: ts, Camera: cam, MediaRef: in.MediaRef}
	}

	seq := make(ClipGroupSequence, 0, len(groups))
	for _, g := range groups {
		// Cannot happen when fed valid inputs, but an empty group must never
		// reach playback.
		if len(g.Clips) == 0 {
			continue
		}
		seq = append(seq, g)
	}
	sort.Slice(seq, func(i, j int) bool { return seq[i].Timestamp.Before(seq[j].Timestamp) })

	return seq, failures
}
