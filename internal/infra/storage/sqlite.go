// Package storage is the SQLite host: per-instance state keys, the token
// sandbox ledger, and the transition journal share one database so every
// transition commits or rolls back as a unit.
package storage

import (
	"context"
	"io"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"option_go/internal/domain"
)

// Storage implements domain.Host on SQLite.
type Storage struct {
	db *gorm.DB
}

var _ domain.Host = (*Storage)(nil)

// NewStorage opens (creating if needed) the database at dbPath. An empty
// path resolves to the OS user config directory. SQL warnings go to stderr;
// stdout carries command output only.
func NewStorage(dbPath string) (*Storage, error) {
	return openStorage(dbPath, os.Stderr)
}

// newGormLogger reports slow queries and errors. Absent optional keys and
// ledger rows are normal reads, not errors.
func newGormLogger(w io.Writer) logger.Interface {
	return logger.New(log.New(w, "\r\n", log.LstdFlags), logger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  logger.Warn,
		IgnoreRecordNotFoundError: true,
		Colorful:                  false,
	})
}

func openStorage(dbPath string, logOut io.Writer) (*Storage, error) {
	if dbPath == "" {
		var err error
		if dbPath, err = getDBPath(); err != nil {
			return nil, errors.Wrap(err, "failed to resolve DB path")
		}
	}

	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, errors.Wrap(err, "failed to create DB directory")
	}

	// Connect to SQLite (Pure Go)
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: newGormLogger(logOut),
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to database")
	}

	// One connection: transitions are serialized by the database as well as the sequencer.
	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.Wrap(err, "failed to get sql.DB")
	}
	sqlDB.SetMaxOpenConns(1)

	// Auto Migration
	if err := db.AutoMigrate(
		&domain.StateEntry{},
		&domain.TokenBalance{},
		&domain.TokenAllowance{},
		&domain.JournalEntry{},
	); err != nil {
		return nil, errors.Wrap(err, "failed to migrate database")
	}

	return &Storage{db: db}, nil
}

// getDBPath resolves the database file path based on OS
func getDBPath() (string, error) {
	var configDir string
	var err error

	if runtime.GOOS == "windows" {
		configDir = os.Getenv("LOCALAPPDATA")
		if configDir == "" {
			configDir, err = os.UserConfigDir()
		}
	} else {
		configDir, err = os.UserConfigDir()
	}

	if err != nil {
		return "", err
	}

	return filepath.Join(configDir, "OptionGo", "data", "option.db"), nil
}

// Close releases the database handle.
func (s *Storage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return errors.Wrap(err, "failed to get sql.DB")
	}
	return sqlDB.Close()
}

// Transact runs fn inside one database transaction. Any error or panic
// from fn rolls back every state, ledger and journal write.
func (s *Storage) Transact(ctx context.Context, fn func(tx domain.Tx) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&sqlTx{db: tx})
	})
}

// ======================================================================================
// Transaction view
// ======================================================================================

type sqlTx struct {
	db *gorm.DB
}

func (t *sqlTx) State(id domain.InstanceID) domain.KV {
	return &sqlKV{db: t.db, instance: string(id)}
}

func (t *sqlTx) Ledger() domain.Ledger {
	return &sqlLedger{db: t.db}
}

func (t *sqlTx) Journal(ctx context.Context, entry *domain.JournalEntry) error {
	return errors.Wrap(t.db.WithContext(ctx).Create(entry).Error, "append journal")
}

type sqlKV struct {
	db       *gorm.DB
	instance string
}

func (kv *sqlKV) Get(ctx context.Context, key string) (string, bool, error) {
	var entry domain.StateEntry
	err := kv.db.WithContext(ctx).
		Where("instance = ? AND state_key = ?", kv.instance, key).
		Take(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrapf(err, "read %s/%s", kv.instance, key)
	}
	return entry.Value, true, nil
}

func (kv *sqlKV) Set(ctx context.Context, key, value string) error {
	entry := domain.StateEntry{Instance: kv.instance, Key: key, Value: value, UpdatedAt: time.Now()}
	err := kv.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "instance"}, {Name: "state_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&entry).Error
	return errors.Wrapf(err, "write %s/%s", kv.instance, key)
}

// ======================================================================================
// Journal and instance queries
// ======================================================================================

// ListJournal returns journal entries in sequence order. An empty instance
// lists every instance; limit <= 0 means no limit.
func (s *Storage) ListJournal(ctx context.Context, instance domain.InstanceID, limit int) ([]domain.JournalEntry, error) {
	q := s.db.WithContext(ctx).Order("seq ASC")
	if instance != "" {
		q = q.Where("instance = ?", string(instance))
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var entries []domain.JournalEntry
	if err := q.Find(&entries).Error; err != nil {
		return nil, errors.Wrap(err, "list journal")
	}
	return entries, nil
}

// Instances returns every instance that has persisted state.
func (s *Storage) Instances(ctx context.Context) ([]domain.InstanceID, error) {
	var ids []string
	err := s.db.WithContext(ctx).Model(&domain.StateEntry{}).
		Distinct("instance").Order("instance").Pluck("instance", &ids).Error
	if err != nil {
		return nil, errors.Wrap(err, "list instances")
	}
	out := make([]domain.InstanceID, len(ids))
	for i, id := range ids {
		out[i] = domain.InstanceID(id)
	}
	return out, nil
}
