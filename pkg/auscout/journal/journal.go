// Package journal keeps a local SQLite record of every exchange the client
// makes. A run can be listed afterwards, and a rerun of a submit batch can
// skip files whose hashes were already accepted.
package journal

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/zeebo/xxh3"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/himanishpuri/AudioScout/pkg/auscout/protocol"
)

const DefaultFile = "auscout-journal.sqlite3"

var errJournalNil = errors.New("journal: not open")

// Entry is one file's exchange. AssignedID is set for accepted submits,
// Reply holds the query result text and Error the reason a file failed.
type Entry struct {
	ID         uint   `gorm:"primaryKey;autoIncrement"`
	RunID      string `gorm:"type:varchar(36);index:idx_run"`
	Path       string `gorm:"index:idx_path"`
	Command    string `gorm:"type:varchar(8)"`
	Frames     int
	Toggles    int
	Digest     string `gorm:"type:varchar(16);index:idx_digest"`
	AssignedID *int32
	Reply      string
	Error      string
	CreatedAt  time.Time
}

// Failed reports whether the exchange did not complete.
func (e *Entry) Failed() bool {
	return e.Error != ""
}

type Journal struct {
	DB *gorm.DB
	db *sql.DB
}

// NewRunID names one batch invocation.
func NewRunID() string {
	return uuid.NewString()
}

// Digest identifies a hash sequence independent of the file it came from.
func Digest(seq protocol.HashSequence) string {
	sum := xxh3.Hash(protocol.EncodeHashes(seq))
	return fmt.Sprintf("%016x", sum)
}

func Open(path string) (*Journal, error) {
	if path == "" {
		path = DefaultFile
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating journal dir: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening sqlite journal: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("getting sql.DB from gorm: %w", err)
	}
	// single writer; the client is sequential
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&Entry{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("auto migrate: %w", err)
	}

	return &Journal{DB: db, db: sqlDB}, nil
}

func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	return j.db.Close()
}

func (j *Journal) Record(entry *Entry) error {
	if j == nil || j.DB == nil {
		return errJournalNil
	}
	if entry == nil {
		return errors.New("journal: nil entry")
	}
	if err := j.DB.Create(entry).Error; err != nil {
		return fmt.Errorf("recording %s: %w", entry.Path, err)
	}
	return nil
}

// ListRun returns the entries of one run in the order they were recorded.
func (j *Journal) ListRun(runID string) ([]Entry, error) {
	if j == nil || j.DB == nil {
		return nil, errJournalNil
	}
	var entries []Entry
	if err := j.DB.Where("run_id = ?", runID).Order("id").Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("listing run %s: %w", runID, err)
	}
	return entries, nil
}

// Submitted returns the most recent identifier the server assigned to a
// file with this digest, if any.
func (j *Journal) Submitted(digest string) (int32, bool, error) {
	if j == nil || j.DB == nil {
		return 0, false, errJournalNil
	}
	var e Entry
	err := j.DB.
		Where("digest = ? AND command = ? AND assigned_id IS NOT NULL", digest, protocol.Submit.String()).
		Order("id desc").
		First(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("looking up submit for %s: %w", digest, err)
	}
	return *e.AssignedID, true, nil
}
