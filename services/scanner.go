package services

import (
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/jinzhu/gorm"
	log "github.com/sirupsen/logrus"

	"github.com/NateMccomb/TeslaCamViewer-sub005/models"
)

// ScannerService discovers recording events on disk and keeps the database in
// step with the footage tree.
type ScannerService struct {
	FootagePath string
	DB          *gorm.DB
	Watcher     *fsnotify.Watcher

	rescan chan struct{}
}

// Tesla file format: 2019-01-21_14-15-20-front.mp4
var fileRegex = regexp.MustCompile(`(\d{4}-\d{2}-\d{2}_\d{2}-\d{2}-\d{2})-([a-zA-Z0-9_-]+)\.mp4$`)

func NewScannerService(footagePath string, db *gorm.DB) *ScannerService {
	return &ScannerService{
		FootagePath: footagePath,
		DB:          db,
		rescan:      make(chan struct{}, 1),
	}
}

func (s *ScannerService) Start() {
	// Initial scan
	go s.ScanAll()

	var err error
	s.Watcher, err = fsnotify.NewWatcher()
	if err != nil {
		log.WithError(err).Error("creating footage watcher")
		return
	}

	go s.watchLoop()
	go s.rescanLoop()

	if err := s.Watcher.Add(s.FootagePath); err != nil {
		log.WithError(err).WithField("path", s.FootagePath).Error("watching footage path")
	}

	// fsnotify is not recursive; walk and add the event folders too.
	filepath.Walk(s.FootagePath, func(path string, info os.FileInfo, err error) error {
		if info != nil && info.IsDir() {
			s.Watcher.Add(path)
		}
		return nil
	})
}

func (s *ScannerService) watchLoop() {
	for {
		select {
		case event, ok := <-s.Watcher.Events:
			if !ok {
				return
			}
			if event.Op&fsnotify.Create == fsnotify.Create {
				// The four camera files of a group arrive over a few
				// seconds, not atomically. Coalesce into one rescan.
				log.WithField("file", event.Name).Debug("new file detected")
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					s.Watcher.Add(event.Name)
				}
				select {
				case s.rescan <- struct{}{}:
				default:
				}
			}
		case err, ok := <-s.Watcher.Errors:
			if !ok {
				return
			}
			log.WithError(err).Warn("footage watcher error")
		}
	}
}

func (s *ScannerService) rescanLoop() {
	for range s.rescan {
		// Debounce: give the remaining camera files time to land.
		time.Sleep(5 * time.Second)
		s.ScanAll()
	}
}

// eventKeyFor identifies the folder a set of files belongs to. Saved and Sentry
// events each live in their own timestamped folder; RecentClips is one
// rolling buffer.
func eventKeyFor(path string) (folder, eventType string) {
	dir := filepath.Dir(path)
	switch {
	case strings.Contains(path, "SentryClips"):
		return dir, "Sentry"
	case strings.Contains(path, "SavedClips"):
		return dir, "Saved"
	default:
		// RecentClips is one rolling buffer whatever subfolder a file sits
		// in; anything outside the known trees counts per directory.
		for d := dir; filepath.Base(d) != d; d = filepath.Dir(d) {
			if filepath.Base(d) == "RecentClips" {
				return d, "Recent"
			}
		}
		return dir, "Recent"
	}
}

// ScanAll walks the footage tree and upserts every recording event it finds.
func (s *ScannerService) ScanAll() {
	log.WithField("path", s.FootagePath).Info("starting full scan")
	start := time.Now()

	// folder -> raw clip inputs
	eventFiles := make(map[string][]ClipInput)
	eventTypes := make(map[string]string)

	err := filepath.Walk(s.FootagePath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || !strings.HasSuffix(info.Name(), ".mp4") {
			return nil
		}
		matches := fileRegex.FindStringSubmatch(info.Name())
		if len(matches) != 3 {
			return nil
		}

		key, typ := eventKeyFor(path)
		eventFiles[key] = append(eventFiles[key], ClipInput{Timestamp: matches[1], Camera: matches[2], MediaRef: path})
		eventTypes[key] = typ
		return nil
	})
	if err != nil {
		log.WithError(err).Error("walking footage path")
		return
	}

	var wg sync.WaitGroup
	semaphore := make(chan struct{}, 5)
	for folder, files := range eventFiles {
		wg.Add(1)
		semaphore <- struct{}{}
		go func(folder string, files []ClipInput) {
			defer wg.Done()
			defer func() { <-semaphore }()
			s.processEvent(folder, eventTypes[folder], files)
		}(folder, files)
	}
	wg.Wait()

	log.WithFields(log.Fields{
		"events":  len(eventFiles),
		"elapsed": time.Since(start),
	}).Info("scan complete")
}

// BuildSequence reassembles an event's clip-group sequence from its stored
// video files. Used when a playback session opens the event.
func BuildSequence(event *models.Event) (ClipGroupSequence, []*ParseError) {
	inputs := make([]ClipInput, 0, len(event.VideoFiles))
	for _, vf := range event.VideoFiles {
		inputs = append(inputs, ClipInput{
			Timestamp: FormatClipTimestamp(vf.Timestamp),
			Camera:    vf.Camera,
			MediaRef:  vf.FilePath,
		})
	}
	return AssembleClipGroups(inputs)
}

func (s *ScannerService) processEvent(folder, eventType string, files []ClipInput) {
	seq, failures := AssembleClipGroups(files)
	for _, pe := range failures {
		log.WithError(pe).Debug("skipping unrecognized file")
	}
	if len(seq) == 0 {
		return
	}

	eventTimestamp, city, reason := readEventJSON(folder)

	var event models.Event
	err := s.DB.Where("folder = ?", folder).First(&event).Error
	if gorm.IsRecordNotFoundError(err) {
		event = models.Event{
			Timestamp:      seq[0].Timestamp,
			EventTimestamp: eventTimestamp,
			Type:           eventType,
			Folder:         folder,
			City:           city,
			Reason:         reason,
		}
		if err := s.DB.Create(&event).Error; err != nil {
			log.WithError(err).Error("creating event")
			return
		}
	} else if err != nil {
		log.WithError(err).Error("looking up event")
		return
	} else {
		if event.EventTimestamp == nil && eventTimestamp != nil {
			s.DB.Model(&event).Update("event_timestamp", eventTimestamp)
		}
		if event.City == "" && city != "" {
			s.DB.Model(&event).Update("city", city)
		}
	}

	for _, group := range seq {
		for _, clip := range group.Clips {
			var vf models.VideoFile
			err := s.DB.Where("event_id = ? AND timestamp = ? AND camera = ?",
				event.ID, clip.Timestamp, string(clip.Camera)).First(&vf).Error
			if gorm.IsRecordNotFoundError(err) {
				vf = models.VideoFile{
					EventID:   event.ID,
					Timestamp: clip.Timestamp,
					Camera:    string(clip.Camera),
					FilePath:  clip.MediaRef,
				}
				s.DB.Create(&vf)
			}
		}
	}
}

// readEventJSON pulls the trigger metadata Tesla drops next to Saved and
// Sentry clips. Absent or malformed files are fine.
func readEventJSON(folder string) (*time.Time, string, string) {
	content, err := os.ReadFile(filepath.Join(folder, "event.json"))
	if err != nil {
		return nil, "", ""
	}
	var eventData struct {
		Timestamp string `json:"timestamp"`
		City      string `json:"city"`
		Reason    string `json:"reason"`
	}
	if err := json.Unmarshal(content, &eventData); err != nil {
		return nil, "", ""
	}
	// Tesla JSON timestamps: 2023-10-27T10:00:30, sometimes with zone info.
	if parsed, err := time.Parse("2006-01-02T15:04:05", eventData.Timestamp); err == nil {
		return &parsed, eventData.City, eventData.Reason
	}
	if parsed, err := time.Parse(time.RFC3339, eventData.Timestamp); err == nil {
		return &parsed, eventData.City, eventData.Reason
	}
	return nil, eventData.City, eventData.Reason
}
