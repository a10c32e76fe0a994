package services

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/NateMccomb/TeslaCamViewer-sub005/config"
)

var ErrSessionNotFound = errors.New("playback session not found")

// StreamState is one position report from a browser player.
type StreamState struct {
	Position float64 `json:"position"`
	Duration float64 `json:"duration"`
	Playing  bool    `json:"playing"`
	Ended    bool    `json:"ended"`
}

// remoteStream adapts a browser <video> element into a StreamHandle. The
// client pushes its state on every report and drains corrective seeks on the
// next poll; the controller never talks to the network itself.
type remoteStream struct {
	mu          sync.Mutex
	state       StreamState
	pendingSeek float64
	hasSeek     bool
}

func (r *remoteStream) CurrentPosition() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.Position
}

func (r *remoteStream) Duration() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.Duration
}

func (r *remoteStream) IsPlaying() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.Playing
}

func (r *remoteStream) IsAtEnd() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.Ended
}

func (r *remoteStream) SeekTo(seconds float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pendingSeek = seconds
	r.hasSeek = true
	// The reported position is stale the moment a seek is queued; advance it
	// optimistically so the next tick does not re-correct the same stream.
	r.state.Position = seconds
}

func (r *remoteStream) update(st StreamState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = st
}

func (r *remoteStream) takeSeek() (float64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.hasSeek {
		return 0, false
	}
	r.hasSeek = false
	return r.pendingSeek, true
}

// PlaybackSession is one viewing of one event: its immutable clip-group
// sequence, the shared duration table, and a sync controller over the
// reporting streams. Discarded when the client opens another event or goes
// quiet.
type PlaybackSession struct {
	ID       string
	EventID  uint
	Sequence ClipGroupSequence
	Gaps     []RecordingGap

	Durations  *DurationTable
	Controller *SyncController

	mu        sync.Mutex
	clipIndex int
	streams   map[CameraID]*remoteStream
	lastSeen  time.Time
}

// ClipIndex returns the currently playing clip group index.
func (s *PlaybackSession) ClipIndex() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clipIndex
}

// SetClipIndex records a clip transition. The correction throttle must not
// carry state across a clip boundary, and the fresh players start from stale
// positions, so the controller is reset and forced once.
func (s *PlaybackSession) SetClipIndex(i int) {
	s.mu.Lock()
	if i < 0 {
		i = 0
	}
	if n := len(s.Sequence); n > 0 && i >= n {
		i = n - 1
	}
	s.clipIndex = i
	s.lastSeen = time.Now()
	s.mu.Unlock()

	s.Controller.ResetSyncTimer()
	s.Controller.ForceResync()
}

// ReportState ingests a position report for one camera, registering the
// stream on first sight. A positive duration also feeds the duration table
// for the current clip, making it authoritative for absolute-time mapping.
func (s *PlaybackSession) ReportState(cam CameraID, st StreamState) {
	s.mu.Lock()
	r, ok := s.streams[cam]
	if !ok {
		r = &remoteStream{}
		s.streams[cam] = r
		s.Controller.RegisterStream(cam, r)
	}
	idx := s.clipIndex
	s.lastSeen = time.Now()
	s.mu.Unlock()

	r.update(st)
	if st.Duration > 0 {
		s.Durations.SetDuration(idx, st.Duration)
	}
}

// PendingSeeks drains the corrective seeks queued since the last poll.
func (s *PlaybackSession) PendingSeeks() map[CameraID]float64 {
	s.mu.Lock()
	streams := make(map[CameraID]*remoteStream, len(s.streams))
	for cam, r := range s.streams {
		streams[cam] = r
	}
	s.lastSeen = time.Now()
	s.mu.Unlock()

	seeks := make(map[CameraID]float64)
	for cam, r := range streams {
		if pos, ok := r.takeSeek(); ok {
			seeks[cam] = pos
		}
	}
	return seeks
}

func (s *PlaybackSession) touch() {
	s.mu.Lock()
	s.lastSeen = time.Now()
	s.mu.Unlock()
}

func (s *PlaybackSession) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// SessionManager owns the live playback sessions. One session per viewing; a
// reaper closes sessions that stopped reporting.
type SessionManager struct {
	cfg config.Config

	mu       sync.Mutex
	sessions map[string]*PlaybackSession
}

const sessionIdleTimeout = 10 * time.Minute

func NewSessionManager(cfg config.Config) *SessionManager {
	m := &SessionManager{
		cfg:      cfg,
		sessions: make(map[string]*PlaybackSession),
	}
	go m.reapIdleSessions()
	return m
}

// Open builds a session over an already assembled sequence and starts its
// sync controller.
func (m *SessionManager) Open(eventID uint, seq ClipGroupSequence) *PlaybackSession {
	s := &PlaybackSession{
		ID:         uuid.NewString(),
		EventID:    eventID,
		Sequence:   seq,
		Gaps:       DetectGaps(seq, m.cfg.Timeline.ExpectedClipDuration, m.cfg.Timeline.GapTolerance),
		Durations:  NewDurationTable(len(seq), m.cfg.Timeline.ExpectedClipDuration),
		Controller: NewSyncController(m.cfg.Sync),
		streams:    make(map[CameraID]*remoteStream),
		lastSeen:   time.Now(),
	}
	s.Controller.Start()

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	log.WithFields(log.Fields{
		"session": s.ID,
		"event":   eventID,
		"clips":   len(seq),
		"gaps":    len(s.Gaps),
	}).Info("playback session opened")
	return s
}

// Get looks up a live session.
func (m *SessionManager) Get(id string) (*PlaybackSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Close stops a session's controller and forgets it. Closing an unknown or
// already closed session is a no-op.
func (m *SessionManager) Close(id string) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if ok {
		s.Controller.Stop()
		log.WithField("session", id).Info("playback session closed")
	}
}

func (m *SessionManager) reapIdleSessions() {
	for {
		time.Sleep(time.Minute)
		cutoff := time.Now().Add(-sessionIdleTimeout)
		m.mu.Lock()
		var stale []string
		for id, s := range m.sessions {
			if s.idleSince().Before(cutoff) {
				stale = append(stale, id)
			}
		}
		m.mu.Unlock()
		for _, id := range stale {
			log.WithField("session", id).Info("reaping idle playback session")
			m.Close(id)
		}
	}
}
