package services

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// ExportRequest asks for a range of an event to be cut out of the selected
// cameras. StartTime is absolute event time; it is resolved to a clip and an
// intra-clip offset through the session's duration table, the same table
// seeking uses.
type ExportRequest struct {
	SessionID string   `json:"session_id"`
	Cameras   []string `json:"cameras"`
	StartTime float64  `json:"start_time"` // absolute seconds within the event
	Duration  float64  `json:"duration"`   // seconds
}

// ExportStatus tracks the state of an export job.
type ExportStatus struct {
	JobID     string    `json:"job_id"`
	Status    string    `json:"status"` // "pending", "processing", "completed", "failed"
	Files     []string  `json:"files,omitempty"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"-"`
}

// Exporter cuts clip ranges with ffmpeg, a few jobs at a time.
type Exporter struct {
	Sessions  *SessionManager
	OutputDir string

	mu      sync.Mutex
	jobs    map[string]*ExportStatus
	active  int
	maxJobs int
}

func NewExporter(sessions *SessionManager, outputDir string) *Exporter {
	e := &Exporter{
		Sessions:  sessions,
		OutputDir: outputDir,
		jobs:      make(map[string]*ExportStatus),
		maxJobs:   3,
	}
	go e.cleanupHistory()
	return e
}

// Queue validates a request and starts the export in the background.
func (e *Exporter) Queue(req ExportRequest) (string, error) {
	session, err := e.Sessions.Get(req.SessionID)
	if err != nil {
		return "", err
	}
	if req.Duration <= 0 || req.Duration > 600 {
		return "", fmt.Errorf("invalid export duration: %v", req.Duration)
	}
	if len(req.Cameras) == 0 {
		return "", fmt.Errorf("no cameras selected")
	}
	cameras := make([]CameraID, 0, len(req.Cameras))
	for _, raw := range req.Cameras {
		cam, ok := NormalizeCamera(raw)
		if !ok {
			return "", fmt.Errorf("unknown camera: %q", raw)
		}
		cameras = append(cameras, cam)
	}

	e.mu.Lock()
	if e.active >= e.maxJobs {
		e.mu.Unlock()
		return "", fmt.Errorf("server busy: too many concurrent exports")
	}
	e.active++
	jobID := uuid.NewString()
	e.jobs[jobID] = &ExportStatus{JobID: jobID, Status: "pending", CreatedAt: time.Now()}
	e.mu.Unlock()

	go func() {
		defer func() {
			e.mu.Lock()
			e.active--
			e.mu.Unlock()
		}()
		e.process(jobID, session, cameras, req.StartTime, req.Duration)
	}()

	return jobID, nil
}

// Status returns the state of a job.
func (e *Exporter) Status(jobID string) (*ExportStatus, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, ok := e.jobs[jobID]
	return st, ok
}

func (e *Exporter) update(jobID, status, errMsg string, files []string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if st, ok := e.jobs[jobID]; ok {
		st.Status = status
		st.Error = errMsg
		st.Files = files
	}
}

func (e *Exporter) process(jobID string, session *PlaybackSession, cameras []CameraID, startAbs, duration float64) {
	e.update(jobID, "processing", "", nil)

	// Resolve the absolute start against the same duration table playback
	// seeks with, then clamp the range to the containing clip.
	clipIndex, offset := session.Durations.FromAbsolute(startAbs)
	if clipIndex >= len(session.Sequence) {
		e.update(jobID, "failed", "start time outside event", nil)
		return
	}
	clipDuration := session.Durations.Duration(clipIndex)
	if offset+duration > clipDuration {
		duration = clipDuration - offset
	}
	if duration <= 0 {
		e.update(jobID, "failed", "requested range is empty", nil)
		return
	}

	group := session.Sequence[clipIndex]
	if err := os.MkdirAll(e.OutputDir, 0755); err != nil {
		e.update(jobID, "failed", err.Error(), nil)
		return
	}

	var outputs []string
	for _, cam := range cameras {
		clip, ok := group.Clips[cam]
		if !ok {
			// Partial group: this camera has no file for this minute.
			continue
		}
		outName := fmt.Sprintf("%s-%s-%s.mp4", FormatClipTimestamp(group.Timestamp), cam, jobID[:8])
		outPath := filepath.Join(e.OutputDir, outName)

		cmd := exec.Command("ffmpeg",
			"-ss", fmt.Sprintf("%.3f", offset),
			"-i", clip.MediaRef,
			"-t", fmt.Sprintf("%.3f", duration),
			"-c", "copy",
			"-y", outPath,
		)
		if out, err := cmd.CombinedOutput(); err != nil {
			log.WithError(err).WithField("output", string(out)).Error("ffmpeg export failed")
			e.update(jobID, "failed", fmt.Sprintf("ffmpeg: %v", err), nil)
			return
		}
		outputs = append(outputs, outName)
	}

	if len(outputs) == 0 {
		e.update(jobID, "failed", "no selected camera has footage in this range", nil)
		return
	}
	e.update(jobID, "completed", "", outputs)
	log.WithFields(log.Fields{"job": jobID, "files": len(outputs)}).Info("export completed")
}

func (e *Exporter) cleanupHistory() {
	for {
		time.Sleep(10 * time.Minute)
		e.mu.Lock()
		for id, st := range e.jobs {
			if time.Since(st.CreatedAt) > time.Hour {
				delete(e.jobs, id)
			}
		}
		e.mu.Unlock()
	}
}
