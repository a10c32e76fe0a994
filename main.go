package main

import (
	"os"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/NateMccomb/TeslaCamViewer-sub005/api"
	"github.com/NateMccomb/TeslaCamViewer-sub005/config"
	"github.com/NateMccomb/TeslaCamViewer-sub005/database"
	"github.com/NateMccomb/TeslaCamViewer-sub005/services"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		log.WithError(err).Fatal("loading configuration")
	}

	if level, err := log.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	}
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	if err := os.MkdirAll(cfg.ConfigPath, 0755); err != nil {
		log.WithError(err).Fatal("creating config dir")
	}

	if err := database.InitDB(cfg.DatabasePath()); err != nil {
		log.WithError(err).Fatal("opening database")
	}
	defer database.CloseDB()

	scanner := services.NewScannerService(cfg.FootagePath, database.DB)
	scanner.Start()

	sessions := services.NewSessionManager(*cfg)
	exporter := services.NewExporter(sessions, cfg.ExportPath())

	r := gin.New()
	r.Use(api.SecureLogger(), gin.Recovery())

	// Trust no proxies by default so ClientIP stays accurate for logs.
	if err := r.SetTrustedProxies(nil); err != nil {
		log.WithError(err).Warn("failed to set trusted proxies")
	}

	r.Use(api.SecurityHeadersMiddleware())
	r.Use(api.CORSMiddleware())
	r.Use(api.MaxBodySizeMiddleware(1 << 20))

	api.SetupRoutes(r, api.Deps{Cfg: cfg, Sessions: sessions, Exporter: exporter})

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{"message": "pong"})
	})

	log.WithField("addr", cfg.ListenAddr).Info("starting server")
	if err := r.Run(cfg.ListenAddr); err != nil {
		log.WithError(err).Fatal("server exited")
	}
}
