package testing

import (
	"database/sql"
	"fmt"
	"sync/atomic"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/teranos/pulsedesk/db"
)

var dbCounter atomic.Int64

// CreateTestDB creates an in-memory SQLite test database.
// Automatically registers cleanup via t.Cleanup().
func CreateTestDB(t *testing.T) *sql.DB {
	t.Helper()

	// Named shared-cache memory database so every pooled connection sees the same data
	dsn := fmt.Sprintf("file:pulsedesk_test_%d?mode=memory&cache=shared", dbCounter.Add(1))
	database, err := sql.Open("sqlite3", dsn)
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	database.SetMaxOpenConns(1)

	if _, err := database.Exec("PRAGMA foreign_keys = ON"); err != nil {
		t.Fatalf("Failed to enable foreign keys: %v", err)
	}

	t.Cleanup(func() {
		database.Close()
	})

	return database
}

// CreateMigratedDB creates an in-memory test database with the full schema applied.
func CreateMigratedDB(t *testing.T) *sql.DB {
	t.Helper()

	database := CreateTestDB(t)
	if err := db.Migrate(database, nil); err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}
	return database
}
