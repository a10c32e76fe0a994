package services

import (
	"context"
	"errors"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/jinzhu/gorm"
	log "github.com/sirupsen/logrus"

	"github.com/NateMccomb/TeslaCamViewer-sub005/models"
)

var ErrProbeBusy = errors.New("server is busy: too many probes in flight")

// Probes are cheap but not free; cap them like the exporter caps ffmpeg runs.
var probeSemaphore = make(chan struct{}, 4)

// ProbeDuration asks ffprobe for the real duration of a media file.
func ProbeDuration(ctx context.Context, path string) (float64, error) {
	select {
	case probeSemaphore <- struct{}{}:
		defer func() { <-probeSemaphore }()
	default:
		return 0, ErrProbeBusy
	}

	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, "ffprobe",
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	out, err := cmd.Output()
	if err != nil {
		return 0, err
	}
	seconds, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, err
	}
	return seconds, nil
}

// ProbeClipDurations fills a session's duration table for one clip group from
// ffprobe, persisting the values so the next session gets them for free.
// Files already carrying a cached duration are not probed again.
func ProbeClipDurations(ctx context.Context, db *gorm.DB, s *PlaybackSession, clipIndex int) {
	if clipIndex < 0 || clipIndex >= len(s.Sequence) {
		return
	}
	group := s.Sequence[clipIndex]
	for _, clip := range group.Clips {
		var vf models.VideoFile
		err := db.Where("file_path = ?", clip.MediaRef).First(&vf).Error
		if err == nil && vf.Duration > 0 {
			s.Durations.SetDuration(clipIndex, vf.Duration)
			continue
		}

		seconds, perr := ProbeDuration(ctx, clip.MediaRef)
		if perr != nil {
			log.WithError(perr).WithField("file", clip.MediaRef).Debug("duration probe failed")
			continue
		}
		s.Durations.SetDuration(clipIndex, seconds)
		if err == nil {
			db.Model(&vf).Update("duration", seconds)
		}
	}
}
