package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jinzhu/gorm"
	_ "github.com/jinzhu/gorm/dialects/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NateMccomb/TeslaCamViewer-sub005/config"
	"github.com/NateMccomb/TeslaCamViewer-sub005/database"
	"github.com/NateMccomb/TeslaCamViewer-sub005/models"
	"github.com/NateMccomb/TeslaCamViewer-sub005/services"
)

func setupTestServer(t *testing.T) (*gin.Engine, Deps) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	db.AutoMigrate(&models.Event{}, &models.VideoFile{})
	database.DB = db

	cfg := &config.Config{
		FootagePath: t.TempDir(),
		ConfigPath:  t.TempDir(),
		Sync: config.Sync{
			DriftThreshold:  0.3,
			CheckIntervalMs: 100,
			SyncInterval:    30,
			EndOfClipBuffer: 5,
		},
		Timeline: config.Timeline{
			ExpectedClipDuration: 60,
			GapTolerance:         30,
		},
	}

	sessions := services.NewSessionManager(*cfg)
	deps := Deps{
		Cfg:      cfg,
		Sessions: sessions,
		Exporter: services.NewExporter(sessions, cfg.ExportPath()),
	}

	r := gin.New()
	r.Use(SecurityHeadersMiddleware())
	SetupRoutes(r, deps)
	return r, deps
}

func seedEvent(t *testing.T, db *gorm.DB) models.Event {
	t.Helper()
	base := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	event := models.Event{Timestamp: base, Type: "Saved", Folder: "/footage/SavedClips/x"}
	require.NoError(t, db.Create(&event).Error)
	for _, vf := range []models.VideoFile{
		{EventID: event.ID, Timestamp: base, Camera: "front", FilePath: "a-front.mp4"},
		{EventID: event.ID, Timestamp: base, Camera: "back", FilePath: "a-back.mp4"},
		{EventID: event.ID, Timestamp: base.Add(2 * time.Minute), Camera: "front", FilePath: "b-front.mp4"},
	} {
		require.NoError(t, db.Create(&vf).Error)
	}
	return event
}

func doJSON(r *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestSecurityHeaders(t *testing.T) {
	r, _ := setupTestServer(t)
	w := doJSON(r, "GET", "/api/events", nil)

	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "SAMEORIGIN", w.Header().Get("X-Frame-Options"))
}

func TestServeVideo_PathTraversalBlocked(t *testing.T) {
	r, _ := setupTestServer(t)

	for _, path := range []string{
		"/api/video/../../etc/passwd",
		"/api/video/%2e%2e/etc/passwd",
		"/api/video/tmp/outside.mp4",
	} {
		w := doJSON(r, "GET", path, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, path)
	}
}

func TestEventDetails_SequenceAndGaps(t *testing.T) {
	r, _ := setupTestServer(t)
	event := seedEvent(t, database.DB)

	w := doJSON(r, "GET", fmt.Sprintf("/api/events/%d", event.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Sequence []json.RawMessage       `json:"sequence"`
		Gaps     []services.RecordingGap `json:"gaps"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	assert.Len(t, resp.Sequence, 2)
	// 120s between 60s clips = 60s shortfall, over the 30s tolerance
	require.Len(t, resp.Gaps, 1)
	assert.Equal(t, 0, resp.Gaps[0].AfterIndex)
	assert.Equal(t, 60.0, resp.Gaps[0].Duration)
}

func TestSessionFlow(t *testing.T) {
	r, deps := setupTestServer(t)
	event := seedEvent(t, database.DB)

	// Open
	w := doJSON(r, "POST", "/api/sessions", gin.H{"event_id": event.ID})
	require.Equal(t, http.StatusCreated, w.Code)
	var opened struct {
		SessionID string `json:"session_id"`
		Clips     int    `json:"clips"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &opened))
	assert.Equal(t, 2, opened.Clips)

	// Report drifting streams
	w = doJSON(r, "POST", "/api/sessions/"+opened.SessionID+"/streams/front",
		services.StreamState{Position: 5.0, Duration: 60, Playing: true})
	require.Equal(t, http.StatusNoContent, w.Code)
	w = doJSON(r, "POST", "/api/sessions/"+opened.SessionID+"/streams/back",
		services.StreamState{Position: 6.0, Duration: 60, Playing: true})
	require.Equal(t, http.StatusNoContent, w.Code)

	// Force a correction and collect the resulting seeks
	w = doJSON(r, "POST", "/api/sessions/"+opened.SessionID+"/resync", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(r, "GET", "/api/sessions/"+opened.SessionID+"/sync", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var sync struct {
		Seeks map[string]float64 `json:"seeks"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sync))
	assert.Equal(t, map[string]float64{"back": 5.0}, sync.Seeks)

	// Absolute time mapping round trip over the session's duration table
	w = doJSON(r, "GET", "/api/sessions/"+opened.SessionID+"/position?clip=1&offset=5", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var abs struct {
		Absolute float64 `json:"absolute"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &abs))
	assert.Equal(t, 65.0, abs.Absolute)

	w = doJSON(r, "GET", fmt.Sprintf("/api/sessions/%s/position?abs=%v", opened.SessionID, abs.Absolute), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var loc struct {
		ClipIndex int     `json:"clip_index"`
		Offset    float64 `json:"offset"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &loc))
	assert.Equal(t, 1, loc.ClipIndex)
	assert.Equal(t, 5.0, loc.Offset)

	// Close
	w = doJSON(r, "DELETE", "/api/sessions/"+opened.SessionID, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	_, err := deps.Sessions.Get(opened.SessionID)
	assert.Error(t, err)
}

func TestSession_NotFound(t *testing.T) {
	r, _ := setupTestServer(t)
	w := doJSON(r, "GET", "/api/sessions/unknown/sync", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
