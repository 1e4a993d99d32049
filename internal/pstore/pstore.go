// Package pstore persists files, passages, and queue entries to SQLite via
// GORM, grounded on internal/datastore/sqlite.go's driver-selection and
// pragma shape. It implements the storage seams the rest of the tree
// defines against it rather than the other way around:
// internal/hashdedup.Store and internal/engine.Store.
package pstore

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/wkmp/wkmp-ap/internal/logging"
	"github.com/wkmp/wkmp-ap/internal/perrors"
)

// Dialect names the supported backends. Only sqlite is wired today;
// mysql.go's dialect-constant shape in the teacher had no peer here since
// playerconf.Settings never exposes a MySQL DSN, so only DialectSQLite is
// defined rather than carrying an unused DialectMySQL/DialectUnknown pair.
type Dialect string

const DialectSQLite Dialect = "sqlite"

// Config carries what Open needs to establish a connection. Produced from
// internal/playerconf.Settings by the composition root.
type Config struct {
	Path string // filesystem path to the sqlite database file

	// SlowQueryThreshold logs queries slower than this at WARN via the
	// GORM logger adapter. Zero disables slow-query warnings.
	SlowQueryThreshold time.Duration

	// Debug routes normal query logging to TRACE instead of staying
	// silent, mirroring sqlite.go's Settings.Debug branch.
	Debug bool
}

func (c Config) withDefaults() Config {
	if c.SlowQueryThreshold == 0 {
		c.SlowQueryThreshold = 200 * time.Millisecond
	}
	return c
}

// Store wraps the GORM connection and implements the narrow persistence
// interfaces internal/hashdedup and internal/engine depend on.
type Store struct {
	db     *gorm.DB
	logger *slog.Logger
}

// Open creates the database directory if needed, opens the sqlite
// connection with WAL journaling (matching sqlite.go's pragma set), runs
// auto-migration, and returns a ready Store.
func Open(cfg Config) (*Store, error) {
	cfg = cfg.withDefaults()
	logger := logging.ForService("storage")

	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, perrors.New(err).Category(perrors.CategoryStorage).
			Context("operation", "create_database_directory").
			Context("directory", filepath.Dir(cfg.Path)).
			Build()
	}

	level := gormlogger.Warn
	if cfg.Debug {
		level = gormlogger.Info
	}

	db, err := gorm.Open(sqlite.Open(cfg.Path), &gorm.Config{
		Logger: newGormLogger(logger, cfg.SlowQueryThreshold, level),
	})
	if err != nil {
		return nil, perrors.New(err).Category(perrors.CategoryStorage).
			Context("operation", "open_sqlite_database").
			Context("db_path", cfg.Path).
			Build()
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, perrors.New(err).Category(perrors.CategoryStorage).
			Context("operation", "get_underlying_sqldb").Build()
	}
	sqlDB.SetMaxOpenConns(1) // single-writer: sqlite + WAL serializes writers anyway

	pragmas := []string{
		"PRAGMA foreign_keys=ON",
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := sqlDB.Exec(pragma); err != nil {
			logger.Warn("failed to set pragma", "pragma", pragma, "error", err)
		}
	}

	if err := db.AutoMigrate(&fileRecord{}, &passageRecord{}, &queueEntryRecord{}); err != nil {
		return nil, perrors.New(err).Category(perrors.CategoryStorage).
			Context("operation", "auto_migrate").Build()
	}

	logger.Info("storage opened", "path", cfg.Path)
	return &Store{db: db, logger: logger}, nil
}

// Close closes the underlying connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return perrors.New(err).Category(perrors.CategoryStorage).Build()
	}
	return sqlDB.Close()
}

// Optimize runs VACUUM/ANALYZE, mirroring sqlite.go's maintenance pass.
// Intended for a periodic maintenance task, not the hot path.
func (s *Store) Optimize(ctx context.Context) error {
	if err := s.db.WithContext(ctx).Exec("ANALYZE").Error; err != nil {
		return perrors.New(err).Category(perrors.CategoryStorage).
			Context("operation", "analyze").Build()
	}
	if err := s.db.WithContext(ctx).Exec("VACUUM").Error; err != nil {
		return perrors.New(err).Category(perrors.CategoryStorage).
			Context("operation", "vacuum").Build()
	}
	return nil
}

// isLockContention reports whether err looks like a transient sqlite lock
// error worth retrying under backoff. Mirrors hashdedup.isLockContention's
// substring check against the same underlying driver message.
func isLockContention(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "database table is locked")
}
