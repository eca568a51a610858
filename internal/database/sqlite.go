package database

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// sqliteBusyTimeout keeps concurrent session heartbeats from failing with SQLITE_BUSY.
const sqliteBusyTimeout = 5000

// MemoryDSN returns a DSN for a private, named in-memory database. Connections that use the
// same name share one database for the lifetime of the pool.
func MemoryDSN(name string) string {
	return fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=1&_busy_timeout=%d", name, sqliteBusyTimeout)
}

func openSQLite(cfg Config) (*gorm.DB, error) {
	dsn, err := sqliteDSN(cfg)
	if err != nil {
		return nil, err
	}
	return gorm.Open(sqlite.Open(dsn), gormConfig(cfg))
}

func sqliteDSN(cfg Config) (string, error) {
	if cfg.DSN != "" {
		return cfg.DSN, nil
	}

	path := strings.TrimSpace(cfg.Path)
	if path == "" || strings.EqualFold(path, ":memory:") {
		return MemoryDSN("launchpad"), nil
	}

	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("create sqlite directory: %w", err)
		}
	}
	return fmt.Sprintf("file:%s?_foreign_keys=1&_journal_mode=WAL&_busy_timeout=%d", filepath.ToSlash(path), sqliteBusyTimeout), nil
}
