package telemetry

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

// Sample is one frame rate window as persisted.
type Sample struct {
	gorm.Model

	SessionID string `gorm:"index;size:36"`
	WindowEnd time.Time
	FPS       int

	Captured  uint64
	Processed uint64
	Dropped   uint64
	Uploaded  uint64
}

// Store persists frame rate samples, tagged with a per-run session id.
type Store struct {
	db      *gorm.DB
	session string
}

// OpenStore connects to MySQL at dsn.
func OpenStore(dsn string) (*Store, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %v", err)
	}
	return NewStore(db)
}

func NewStore(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&Sample{}); err != nil {
		return nil, err
	}
	s := &Store{
		db:      db,
		session: uuid.NewString(),
	}
	log.WithField("session", s.session).Infof("Recording frame rate samples")
	return s, nil
}

func (s *Store) Record(sample *Sample) error {
	sample.SessionID = s.session
	return s.db.Create(sample).Error
}

// Recorder persists one sample.
type Recorder interface {
	Record(sample *Sample) error
}

// Run records a sample for every value on fps until ctx is done or fps is
// closed. snapshot fills in the counters.
func (s *Store) Run(ctx context.Context, fps <-chan int, snapshot func() Sample) {
	RecordSamples(ctx, s, fps, snapshot)
}

// RecordSamples drives r from a frame rate stream. A failed write is logged
// and the next window is still recorded.
func RecordSamples(ctx context.Context, r Recorder, fps <-chan int, snapshot func() Sample) {
	for {
		select {
		case <-ctx.Done():
			return
		case v, ok := <-fps:
			if !ok {
				return
			}
			sample := snapshot()
			sample.FPS = v
			sample.WindowEnd = time.Now()
			if err := r.Record(&sample); err != nil {
				log.Errorf("Failed to record frame rate sample: %v", err)
			}
		}
	}
}
