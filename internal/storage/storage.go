package storage

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"bulkdl/internal/models"
)

const dbFileName = "history.db"

// Record is one persisted download, keyed by the engine item id.
type Record struct {
	ID           string    `gorm:"primaryKey"`
	FileName     string    `gorm:"not null"`
	FolderPath   string    `gorm:"not null"`
	Link         string    `gorm:"not null"`
	Status       string    `gorm:"not null;index"`
	Created      time.Time `gorm:"index"`
	FileSize     int64     `gorm:"default:0"`
	FileType     string
	ErrorMessage string
	ErrorKind    string
}

func (Record) TableName() string {
	return "download_histories"
}

// Storage is the download history kept in SQLite.
type Storage struct {
	db *gorm.DB
}

func New(dataDir string) (*Storage, error) {
	if err := os.MkdirAll(dataDir, os.ModePerm); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}
	return Open(filepath.Join(dataDir, dbFileName))
}

func Open(path string) (*Storage, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.Exec("PRAGMA journal_mode=WAL;")
	db.Exec("PRAGMA synchronous=NORMAL;")

	if err := db.AutoMigrate(&Record{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return &Storage{db: db}, nil
}

func (s *Storage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Save upserts the items by id.
func (s *Storage) Save(items ...models.Item) error {
	if len(items) == 0 {
		return nil
	}
	records := make([]Record, 0, len(items))
	for _, item := range items {
		records = append(records, toRecord(item))
	}

	err := s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"file_name", "folder_path", "link", "status", "created", "file_size", "file_type", "error_message", "error_kind",
		}),
	}).Create(&records).Error
	if err != nil {
		return fmt.Errorf("failed to save history: %w", err)
	}
	return nil
}

// List returns every record, newest first.
func (s *Storage) List() ([]models.Item, error) {
	var records []Record
	if err := s.db.Order("created desc").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	return toItems(records), nil
}

func (s *Storage) Get(ids ...string) ([]models.Item, error) {
	if len(ids) == 0 {
		return []models.Item{}, nil
	}
	var records []Record
	if err := s.db.Where("id IN ?", ids).Order("created desc").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to get history: %w", err)
	}
	return toItems(records), nil
}

// Delete removes the records and reports which of the ids existed.
func (s *Storage) Delete(ids ...string) ([]string, error) {
	deleted := []string{}
	if len(ids) == 0 {
		return deleted, nil
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&Record{}).Where("id IN ?", ids).Pluck("id", &deleted).Error; err != nil {
			return err
		}
		return tx.Where("id IN ?", ids).Delete(&Record{}).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to delete history: %w", err)
	}
	return deleted, nil
}

// Recorder persists finished and failed items while enabled reports true.
func (s *Storage) Recorder(enabled func() bool) func(models.Event) {
	return func(ev models.Event) {
		if ev.Type != models.EventFinish && ev.Type != models.EventError {
			return
		}
		if enabled != nil && !enabled() {
			return
		}
		if err := s.Save(ev.Items...); err != nil {
			slog.Error("Failed to record history", "event", ev.Type, "error", err)
		}
	}
}

func toRecord(item models.Item) Record {
	return Record{
		ID:           item.Id,
		FileName:     item.FileName,
		FolderPath:   item.FolderPath,
		Link:         item.Link,
		Status:       string(item.Status),
		Created:      item.Created,
		FileSize:     item.FileSize,
		FileType:     item.FileType,
		ErrorMessage: item.ErrorMessage,
		ErrorKind:    item.ErrorKind,
	}
}

func toItems(records []Record) []models.Item {
	items := make([]models.Item, 0, len(records))
	for _, r := range records {
		items = append(items, models.Item{
			Id:           r.ID,
			FileName:     r.FileName,
			FolderPath:   r.FolderPath,
			Link:         r.Link,
			Status:       models.Status(r.Status),
			FileSize:     r.FileSize,
			FileType:     r.FileType,
			Downloaded:   downloadedBytes(r),
			Created:      r.Created,
			ErrorMessage: r.ErrorMessage,
			ErrorKind:    r.ErrorKind,
		})
	}
	return items
}

// History keeps no ledger, so only finished records report their bytes.
func downloadedBytes(r Record) int64 {
	if models.Status(r.Status) == models.StatusDownloaded {
		return r.FileSize
	}
	return 0
}
