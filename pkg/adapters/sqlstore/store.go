// Package sqlstore persists checkpoints in a SQL database through gorm.
//
// Open uses the pure-Go SQLite driver, so no cgo toolchain is needed; any other gorm
// dialector can be passed to New.
package sqlstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aretw0/onestep/pkg/domain"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// checkpointRow is one checkpoint. Messages are stored as a JSON array.
type checkpointRow struct {
	RunKey    string `gorm:"primaryKey;size:255"`
	TaskID    string `gorm:"size:255"`
	Messages  string `gorm:"type:text"`
	UpdatedAt time.Time
}

func (checkpointRow) TableName() string { return "checkpoints" }

// Store implements ports.CheckpointStore on top of gorm.
type Store struct {
	db *gorm.DB
}

// Open opens (or creates) a SQLite database at path and migrates the schema.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite %s: %w", path, err)
	}
	return New(db)
}

// New wraps an existing connection and migrates the checkpoints table.
func New(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&checkpointRow{}); err != nil {
		return nil, fmt.Errorf("failed to migrate checkpoints table: %w", err)
	}
	return &Store{db: db}, nil
}

// Save upserts the checkpoint row for runKey.
func (s *Store) Save(ctx context.Context, runKey string, state *domain.State) error {
	if runKey == "" {
		return domain.ErrEmptyRunKey
	}

	messages := state.Messages
	if messages == nil {
		messages = []domain.Message{}
	}
	data, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("failed to marshal messages: %w", err)
	}

	row := checkpointRow{
		RunKey:   runKey,
		TaskID:   state.TaskID,
		Messages: string(data),
	}
	err = s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "run_key"}},
			DoUpdates: clause.AssignmentColumns([]string{"task_id", "messages", "updated_at"}),
		}).
		Create(&row).Error
	if err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	return nil
}

// Load reads the checkpoint row for runKey.
func (s *Store) Load(ctx context.Context, runKey string) (*domain.State, error) {
	if runKey == "" {
		return nil, domain.ErrEmptyRunKey
	}

	var row checkpointRow
	err := s.db.WithContext(ctx).Where("run_key = ?", runKey).Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrCheckpointNotFound
		}
		return nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}

	state := &domain.State{TaskID: row.TaskID}
	if err := json.Unmarshal([]byte(row.Messages), &state.Messages); err != nil {
		return nil, fmt.Errorf("failed to unmarshal messages: %w", err)
	}
	return state, nil
}

// Delete removes the row for runKey.
func (s *Store) Delete(ctx context.Context, runKey string) error {
	if runKey == "" {
		return domain.ErrEmptyRunKey
	}
	err := s.db.WithContext(ctx).Where("run_key = ?", runKey).Delete(&checkpointRow{}).Error
	if err != nil {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	return nil
}

// List returns every stored run key in order.
func (s *Store) List(ctx context.Context) ([]string, error) {
	keys := []string{}
	err := s.db.WithContext(ctx).Model(&checkpointRow{}).Order("run_key").Pluck("run_key", &keys).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}
	return keys, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
