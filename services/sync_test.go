package services

import (
	"math"
	"testing"
	"time"

	"github.com/NateMccomb/TeslaCamViewer-sub005/config"
)

type fakeStream struct {
	pos     float64
	dur     float64
	playing bool
	ended   bool
	seeks   []float64
}

func (f *fakeStream) CurrentPosition() float64 { return f.pos }
func (f *fakeStream) Duration() float64        { return f.dur }
func (f *fakeStream) IsPlaying() bool          { return f.playing }
func (f *fakeStream) IsAtEnd() bool            { return f.ended }
func (f *fakeStream) SeekTo(seconds float64) {
	f.seeks = append(f.seeks, seconds)
	f.pos = seconds
}

func testSyncConfig() config.Sync {
	return config.Sync{
		DriftThreshold:  0.3,
		CheckIntervalMs: 100,
		SyncInterval:    30,
		EndOfClipBuffer: 5,
	}
}

func playing(pos float64) *fakeStream {
	return &fakeStream{pos: pos, dur: 60, playing: true}
}

func TestSync_DriftBelowThresholdNoSeek(t *testing.T) {
	c := NewSyncController(testSyncConfig())
	front := playing(10.0)
	back := playing(10.2)
	c.RegisterStream(CameraFront, front)
	c.RegisterStream(CameraBack, back)

	c.checkSync(false)

	if c.Status() != SyncSynced {
		t.Errorf("status = %v, want synced", c.Status())
	}
	if len(front.seeks)+len(back.seeks) != 0 {
		t.Error("no seek expected below the drift threshold")
	}
}

func TestSync_CorrectsToMinimum(t *testing.T) {
	c := NewSyncController(testSyncConfig())
	// avg 40.25 is past the 30s sync interval, so this tick is
	// correction-eligible.
	slow := playing(40.0)
	fast := playing(40.5)
	c.RegisterStream(CameraFront, fast)
	c.RegisterStream(CameraBack, slow)

	c.checkSync(false)

	if c.Status() != SyncDrifted {
		t.Errorf("status = %v, want drifted", c.Status())
	}
	if len(slow.seeks) != 0 {
		t.Errorf("slowest stream must never be seeked, got %v", slow.seeks)
	}
	if len(fast.seeks) != 1 || fast.seeks[0] != 40.0 {
		t.Errorf("fast stream should be held back to 40.0, got %v", fast.seeks)
	}

	stats := c.GetSyncStats()
	if stats.MinTime != 40.0 || stats.MaxTime != 40.5 || math.Abs(stats.Drift-0.5) > 1e-9 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestSync_ClipStartIsAlwaysEligible(t *testing.T) {
	c := NewSyncController(testSyncConfig())
	slow := playing(1.0)
	fast := playing(1.5)
	c.RegisterStream(CameraFront, fast)
	c.RegisterStream(CameraBack, slow)

	c.checkSync(false)

	if len(fast.seeks) != 1 || fast.seeks[0] != 1.0 {
		t.Errorf("expected correction just after clip start, got %v", fast.seeks)
	}
}

func TestSync_ThrottleSuppressesSecondCorrection(t *testing.T) {
	c := NewSyncController(testSyncConfig())
	slow := playing(40.0)
	fast := playing(40.5)
	c.RegisterStream(CameraFront, fast)
	c.RegisterStream(CameraBack, slow)

	c.checkSync(false)
	if len(fast.seeks) != 1 {
		t.Fatalf("first eligible tick should correct, got %v", fast.seeks)
	}

	// 5s of playback later drift is back, but the 30s interval has not
	// elapsed: report only, no seek.
	slow.pos = 45.0
	fast.pos = 45.6
	c.checkSync(false)

	if c.Status() != SyncDrifted {
		t.Errorf("throttled tick must still report drift, got %v", c.Status())
	}
	if len(fast.seeks) != 1 {
		t.Errorf("throttled tick must not seek, got %v", fast.seeks)
	}

	// forceResync ignores the throttle.
	c.ForceResync()
	if len(fast.seeks) != 2 || fast.seeks[1] != 45.0 {
		t.Errorf("forceResync should correct regardless, got %v", fast.seeks)
	}
}

func TestSync_ResetSyncTimerReopensCorrection(t *testing.T) {
	c := NewSyncController(testSyncConfig())
	slow := playing(40.0)
	fast := playing(40.5)
	c.RegisterStream(CameraFront, fast)
	c.RegisterStream(CameraBack, slow)
	c.checkSync(false)

	// New clip: positions restart, playback surface resets the throttle.
	c.ResetSyncTimer()
	slow.pos, slow.seeks = 31.0, nil
	fast.pos, fast.seeks = 31.5, nil
	c.checkSync(false)

	if len(fast.seeks) != 1 || fast.seeks[0] != 31.0 {
		t.Errorf("expected correction after timer reset, got %v", fast.seeks)
	}
}

func TestSync_EndOfClipSuppression(t *testing.T) {
	c := NewSyncController(testSyncConfig())
	// avg 57 is inside the 5s buffer before the 60s clip end; the group is
	// about to roll over, correcting now is pure stutter.
	slow := playing(56.0)
	fast := playing(58.0)
	c.RegisterStream(CameraFront, fast)
	c.RegisterStream(CameraBack, slow)

	c.checkSync(false)

	if c.Status() != SyncSynced {
		t.Errorf("status = %v, want synced near end of clip", c.Status())
	}
	if len(fast.seeks) != 0 {
		t.Errorf("no seek expected near end of clip, got %v", fast.seeks)
	}
}

func TestSync_FewerThanTwoActive(t *testing.T) {
	c := NewSyncController(testSyncConfig())
	only := playing(10.0)
	paused := &fakeStream{pos: 50, dur: 60, playing: false}
	ended := &fakeStream{pos: 60, dur: 60, playing: true, ended: true}
	c.RegisterStream(CameraFront, only)
	c.RegisterStream(CameraBack, paused)
	c.RegisterStream(CameraLeftRepeater, ended)

	c.checkSync(false)

	if c.Status() != SyncSynced {
		t.Errorf("a single active stream cannot drift, got %v", c.Status())
	}
}

func TestSync_BadPositionsExcludedForTheTick(t *testing.T) {
	c := NewSyncController(testSyncConfig())
	loading := &fakeStream{pos: math.NaN(), dur: 60, playing: true}
	negative := &fakeStream{pos: -1, dur: 60, playing: true}
	slow := playing(40.0)
	fast := playing(40.5)
	c.RegisterStream(CameraFront, loading)
	c.RegisterStream(CameraBack, negative)
	c.RegisterStream(CameraLeftRepeater, slow)
	c.RegisterStream(CameraRightRepeater, fast)

	c.checkSync(false)

	if len(loading.seeks)+len(negative.seeks) != 0 {
		t.Error("streams with unusable positions must not be touched")
	}
	if len(fast.seeks) != 1 || fast.seeks[0] != 40.0 {
		t.Errorf("healthy streams still get corrected, got %v", fast.seeks)
	}
}

func TestSync_StartStopLifecycle(t *testing.T) {
	c := NewSyncController(testSyncConfig())
	c.RegisterStream(CameraFront, playing(10))
	c.RegisterStream(CameraBack, playing(10.1))

	c.Start()
	c.Start() // second start is a no-op
	time.Sleep(250 * time.Millisecond)

	c.Stop()
	c.Stop() // idempotent

	// Restart resets throttle state and monitors again.
	c.Start()
	time.Sleep(150 * time.Millisecond)
	c.Stop()

	if c.Status() != SyncSynced {
		t.Errorf("status = %v, want synced", c.Status())
	}
}
