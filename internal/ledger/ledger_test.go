package ledger

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"tasknotes/internal/config"
	"tasknotes/internal/model"
	"tasknotes/internal/pkg/database"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.Open(config.DatabaseConfig{Driver: "sqlite", DSN: filepath.Join(t.TempDir(), "ledger.db")}, false)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { _ = database.Close(db) })
	return db
}

func mustRegister(t *testing.T, a *Accounts, username, email string) *model.User {
	t.Helper()
	u, err := a.Register(context.Background(), RegisterInput{
		Username:        username,
		Email:           email,
		Password:        "secret-pw",
		ConfirmPassword: "secret-pw",
	})
	if err != nil {
		t.Fatalf("register %s: %v", username, err)
	}
	return u
}

// fixedClock returns a clock that advances one second per call starting at start.
func fixedClock(start time.Time) Clock {
	cur := start.Add(-time.Second)
	return func() time.Time {
		cur = cur.Add(time.Second)
		return cur
	}
}

func newAccounts(db *gorm.DB) *Accounts {
	return NewAccounts(db, bcrypt.MinCost)
}
