package database

import (
	"path/filepath"
	"testing"

	"tasknotes/internal/config"
)

func TestOpenSQLite(t *testing.T) {
	db, err := Open(config.DatabaseConfig{Driver: "sqlite", DSN: filepath.Join(t.TempDir(), "t.db")}, false)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	var one int
	if err := db.Raw("SELECT 1").Scan(&one).Error; err != nil || one != 1 {
		t.Fatalf("select 1: %v (%d)", err, one)
	}
	if err := Close(db); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	if _, err := Open(config.DatabaseConfig{Driver: "oracle", DSN: "x"}, false); err == nil {
		t.Fatalf("expected error for unknown driver")
	}
}
