package database

import (
	"github.com/jinzhu/gorm"
	_ "github.com/jinzhu/gorm/dialects/sqlite"
	log "github.com/sirupsen/logrus"

	"github.com/NateMccomb/TeslaCamViewer-sub005/models"
)

var DB *gorm.DB

func InitDB(dbPath string) error {
	var err error
	DB, err = gorm.Open("sqlite3", dbPath)
	if err != nil {
		return err
	}

	DB.AutoMigrate(&models.Event{}, &models.VideoFile{})
	log.WithField("path", dbPath).Info("database connection established and migrated")
	return nil
}

func CloseDB() {
	if DB != nil {
		DB.Close()
	}
}
