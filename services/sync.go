package services

import (
	"math"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/NateMccomb/TeslaCamViewer-sub005/config"
)

// StreamHandle is a playing media stream as seen by the sync controller. The
// controller only reads position and duration and issues seeks; the decode
// pipeline behind the handle belongs to the playback surface.
type StreamHandle interface {
	CurrentPosition() float64 // seconds
	Duration() float64        // seconds
	IsPlaying() bool
	IsAtEnd() bool
	SeekTo(seconds float64)
}

// SyncStatus is the controller's last-tick verdict, read by the UI.
type SyncStatus string

const (
	SyncSynced  SyncStatus = "synced"
	SyncDrifted SyncStatus = "drifted"
)

// SyncStats is a snapshot of the last check, for display and debugging.
type SyncStats struct {
	MinTime float64 `json:"minTime"`
	MaxTime float64 `json:"maxTime"`
	Drift   float64 `json:"drift"`
	Synced  bool    `json:"synced"`
}

// SyncController keeps the camera streams of one playback session aligned. It
// samples every registered stream on a fixed wall-clock cadence and, when the
// spread between the furthest-ahead and furthest-behind stream exceeds the
// drift threshold, seeks the fast streams back to the slowest one.
//
// Corrections always go backward to the minimum position: the data there is
// already buffered, while seeking a lagging stream forward can land in an
// unbuffered region and stall, which looks far worse than a few hundred
// milliseconds of lag.
type SyncController struct {
	cfg config.Sync

	mu          sync.Mutex
	streams     map[CameraID]StreamHandle
	lastSyncPos float64 // clip-relative avg position at the last correction
	status      SyncStatus
	stats       SyncStats

	stop chan struct{} // non-nil while monitoring
	done chan struct{}
}

func NewSyncController(cfg config.Sync) *SyncController {
	return &SyncController{
		cfg:     cfg,
		streams: make(map[CameraID]StreamHandle),
		status:  SyncSynced,
	}
}

// RegisterStream adds or replaces the stream for a camera. The playback
// surface calls this on every clip transition as players are recreated.
func (c *SyncController) RegisterStream(cam CameraID, h StreamHandle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.streams[cam] = h
}

// UnregisterStream removes a camera's stream.
func (c *SyncController) UnregisterStream(cam CameraID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.streams, cam)
}

// Start begins periodic monitoring. Calling Start while already monitoring is
// a no-op.
func (c *SyncController) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stop != nil {
		return
	}
	c.lastSyncPos = 0
	c.stop = make(chan struct{})
	c.done = make(chan struct{})
	go c.run(c.stop, c.done)
	log.WithField("interval_ms", c.cfg.CheckIntervalMs).Debug("sync monitor started")
}

// Stop cancels monitoring. It is idempotent, and no check runs after it
// returns.
func (c *SyncController) Stop() {
	c.mu.Lock()
	stop, done := c.stop, c.done
	c.stop, c.done = nil, nil
	c.mu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	<-done
}

func (c *SyncController) run(stop, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(time.Duration(c.cfg.CheckIntervalMs) * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.checkSync(false)
		}
	}
}

// ResetSyncTimer clears the correction throttle. The playback surface must
// call this whenever the active clip index changes so the 30-second throttle
// does not carry across a clip boundary.
func (c *SyncController) ResetSyncTimer() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastSyncPos = 0
}

// ForceResync corrects immediately, ignoring the throttle, the drift
// tolerance and the end-of-clip suppression. Meant for right after a manual
// seek or a clip transition, when positions are expected to be stale.
func (c *SyncController) ForceResync() {
	c.checkSync(true)
}

// Status returns the last-tick verdict.
func (c *SyncController) Status() SyncStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// GetSyncStats returns a snapshot of the last check.
func (c *SyncController) GetSyncStats() SyncStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

type activeStream struct {
	handle   StreamHandle
	position float64
	duration float64
}

// checkSync is one monitoring tick: sample all positions, then decide, then
// correct. The lock covers the whole snapshot-compare-correct sequence, so
// registration changes never interleave with a running check.
func (c *SyncController) checkSync(force bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Snapshot the streams that are actively advancing. A stream that is
	// ended, paused, or reporting a garbage position (still loading, usually)
	// sits this check out; it is retried on the next tick.
	active := make([]activeStream, 0, len(c.streams))
	for _, h := range c.streams {
		if h.IsAtEnd() || !h.IsPlaying() {
			continue
		}
		pos := h.CurrentPosition()
		if math.IsNaN(pos) || math.IsInf(pos, 0) || pos <= 0 {
			continue
		}
		active = append(active, activeStream{handle: h, position: pos, duration: h.Duration()})
	}

	// Fewer than two streams cannot drift relative to anything.
	if len(active) < 2 {
		c.status = SyncSynced
		c.stats = SyncStats{Synced: true}
		return
	}

	minPos, maxPos := active[0].position, active[0].position
	minDuration := active[0].duration
	var sum float64
	for _, s := range active {
		if s.position < minPos {
			minPos = s.position
		}
		if s.position > maxPos {
			maxPos = s.position
		}
		if s.duration < minDuration {
			minDuration = s.duration
		}
		sum += s.position
	}
	avg := sum / float64(len(active))
	drift := maxPos - minPos
	c.stats = SyncStats{MinTime: minPos, MaxTime: maxPos, Drift: drift, Synced: drift <= c.cfg.DriftThreshold}

	// Near the end of the shortest clip the group is about to roll over
	// anyway; a correction there is pure stutter.
	if !force && avg > minDuration-c.cfg.EndOfClipBuffer {
		c.status = SyncSynced
		c.stats.Synced = true
		return
	}

	// Correcting on every 100ms tick would show as constant micro-stutter,
	// so seeks are throttled: free shortly after a clip starts, then at most
	// once per sync interval of clip-relative playback.
	eligible := force || avg < 2 || avg-c.lastSyncPos >= c.cfg.SyncInterval

	if !force && drift <= c.cfg.DriftThreshold {
		c.status = SyncSynced
		return
	}

	if !eligible {
		// Report the drift but leave the streams alone.
		c.status = SyncDrifted
		return
	}

	// Align everyone to the slowest stream. Each seek only depends on the
	// pre-computed minimum, never on another stream's corrected position.
	corrected := 0
	for _, s := range active {
		if s.position-minPos > c.cfg.DriftThreshold || (force && s.position != minPos) {
			s.handle.SeekTo(minPos)
			corrected++
		}
	}
	c.lastSyncPos = avg

	if force && drift <= c.cfg.DriftThreshold {
		c.status = SyncSynced
	} else {
		c.status = SyncDrifted
	}
	if corrected > 0 {
		log.WithFields(log.Fields{
			"drift":     drift,
			"target":    minPos,
			"corrected": corrected,
		}).Debug("resynchronized streams")
	}
}
