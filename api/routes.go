package api

import (
	"context"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/NateMccomb/TeslaCamViewer-sub005/config"
	"github.com/NateMccomb/TeslaCamViewer-sub005/database"
	"github.com/NateMccomb/TeslaCamViewer-sub005/models"
	"github.com/NateMccomb/TeslaCamViewer-sub005/services"
)

// Deps are the collaborators the API hands requests to.
type Deps struct {
	Cfg      *config.Config
	Sessions *services.SessionManager
	Exporter *services.Exporter
}

func SetupRoutes(r *gin.Engine, deps Deps) {
	api := r.Group("/api")

	// Login endpoint (public)
	api.POST("/login", LoginHandler(deps.Cfg.Auth))

	api.Use(AuthMiddleware(deps.Cfg.Auth))

	{
		api.GET("/events", getEvents)
		api.GET("/events/:id", getEventDetails(deps))
		api.GET("/video/*path", serveVideo(deps))

		api.POST("/sessions", openSession(deps))
		api.GET("/sessions/:id", getSession(deps))
		api.DELETE("/sessions/:id", closeSession(deps))
		api.POST("/sessions/:id/clip", setClipIndex(deps))
		api.POST("/sessions/:id/streams/:camera", reportStream(deps))
		api.GET("/sessions/:id/sync", getSync(deps))
		api.POST("/sessions/:id/resync", forceResync(deps))
		api.GET("/sessions/:id/position", mapPosition(deps))

		api.POST("/export", createExportJob(deps))
		api.GET("/export/:jobID", getExportStatus(deps))
		api.GET("/downloads/:filename", downloadExport(deps))
	}
}

func getEvents(c *gin.Context) {
	var events []models.Event
	// Latest 100; the browse UI pages from here
	if err := database.DB.Order("timestamp desc").Limit(100).Find(&events).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, events)
}

func getEventDetails(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		var event models.Event
		if err := database.DB.Preload("VideoFiles").First(&event, id).Error; err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Event not found"})
			return
		}

		seq, failures := services.BuildSequence(&event)
		gaps := services.DetectGaps(seq,
			deps.Cfg.Timeline.ExpectedClipDuration, deps.Cfg.Timeline.GapTolerance)

		skipped := make([]string, 0, len(failures))
		for _, pe := range failures {
			skipped = append(skipped, pe.Error())
		}

		c.JSON(http.StatusOK, gin.H{
			"event":    event,
			"sequence": seq,
			"gaps":     gaps,
			"skipped":  skipped,
		})
	}
}

func serveVideo(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		videoPath := c.Param("path")

		// Confine to the footage tree
		cleaned := filepath.Clean(videoPath)
		if strings.Contains(videoPath, "..") || !strings.HasPrefix(cleaned, filepath.Clean(deps.Cfg.FootagePath)) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid path"})
			return
		}

		c.File(cleaned)
	}
}

func openSession(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			EventID uint `json:"event_id"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		var event models.Event
		if err := database.DB.Preload("VideoFiles").First(&event, req.EventID).Error; err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Event not found"})
			return
		}

		seq, _ := services.BuildSequence(&event)
		if len(seq) == 0 {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "Event has no playable clips"})
			return
		}

		session := deps.Sessions.Open(event.ID, seq)
		// Warm the duration table for the first clip off the request path.
		go services.ProbeClipDurations(context.Background(), database.DB, session, 0)

		c.JSON(http.StatusCreated, gin.H{
			"session_id": session.ID,
			"event_id":   event.ID,
			"clips":      len(seq),
			"gaps":       session.Gaps,
		})
	}
}

func getSession(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		session, err := deps.Sessions.Get(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"session_id": session.ID,
			"event_id":   session.EventID,
			"clip_index": session.ClipIndex(),
			"clips":      len(session.Sequence),
			"gaps":       session.Gaps,
			"total":      session.Durations.Total(),
			"status":     session.Controller.Status(),
		})
	}
}

func closeSession(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		deps.Sessions.Close(c.Param("id"))
		c.Status(http.StatusNoContent)
	}
}

func setClipIndex(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		session, err := deps.Sessions.Get(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
			return
		}
		var req struct {
			Index int `json:"index"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		session.SetClipIndex(req.Index)
		go services.ProbeClipDurations(context.Background(), database.DB, session, req.Index)
		c.JSON(http.StatusOK, gin.H{"clip_index": session.ClipIndex()})
	}
}

func reportStream(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		session, err := deps.Sessions.Get(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
			return
		}
		cam, ok := services.NormalizeCamera(c.Param("camera"))
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown camera"})
			return
		}
		var st services.StreamState
		if err := c.ShouldBindJSON(&st); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		session.ReportState(cam, st)
		c.Status(http.StatusNoContent)
	}
}

func getSync(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		session, err := deps.Sessions.Get(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status": session.Controller.Status(),
			"stats":  session.Controller.GetSyncStats(),
			"seeks":  session.PendingSeeks(),
		})
	}
}

func forceResync(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		session, err := deps.Sessions.Get(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
			return
		}
		session.Controller.ForceResync()
		c.JSON(http.StatusOK, gin.H{"status": session.Controller.Status()})
	}
}

// mapPosition converts between absolute event time and (clip, offset), both
// directions off the session's one duration table.
func mapPosition(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		session, err := deps.Sessions.Get(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
			return
		}

		if absStr := c.Query("abs"); absStr != "" {
			abs, err := strconv.ParseFloat(absStr, 64)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid abs"})
				return
			}
			clip, offset := session.Durations.FromAbsolute(abs)
			c.JSON(http.StatusOK, gin.H{"clip_index": clip, "offset": offset})
			return
		}

		clipStr, offStr := c.Query("clip"), c.Query("offset")
		clip, err1 := strconv.Atoi(clipStr)
		offset, err2 := strconv.ParseFloat(offStr, 64)
		if err1 != nil || err2 != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Need abs, or clip and offset"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"absolute": session.Durations.ToAbsolute(clip, offset)})
	}
}

func createExportJob(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req services.ExportRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		jobID, err := deps.Exporter.Queue(req)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusAccepted, gin.H{"job_id": jobID, "status": "pending"})
	}
}

func getExportStatus(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		status, exists := deps.Exporter.Status(c.Param("jobID"))
		if !exists {
			c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
			return
		}
		c.JSON(http.StatusOK, status)
	}
}

func downloadExport(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		filename := c.Param("filename")

		if strings.Contains(filename, "..") || strings.Contains(filename, "/") {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid filename"})
			return
		}

		c.File(filepath.Join(deps.Cfg.ExportPath(), filename))
	}
}
