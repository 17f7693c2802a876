package db

import (
	"database/sql"
	"embed"
	"path"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/teranos/pulsedesk/errors"
)

//go:embed sqlite/migrations/*.sql
var migrations embed.FS

const migrationsDir = "sqlite/migrations"

// Migration is one embedded schema file, identified by its numeric prefix.
type Migration struct {
	Version  string
	Filename string
}

// Migrations lists the embedded migrations in apply order
// (000_create_schema_migrations.sql first).
func Migrations() ([]Migration, error) {
	entries, err := migrations.ReadDir(migrationsDir)
	if err != nil {
		return nil, errors.Wrap(err, "read migrations")
	}

	var list []Migration
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		list = append(list, Migration{
			Version:  strings.SplitN(entry.Name(), "_", 2)[0],
			Filename: entry.Name(),
		})
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Filename < list[j].Filename })
	return list, nil
}

// AppliedVersions returns the versions recorded in schema_migrations.
// A database that was never migrated yields an empty set.
func AppliedVersions(db *sql.DB) (map[string]bool, error) {
	applied := make(map[string]bool)

	var tables int
	if err := db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'schema_migrations'`).Scan(&tables); err != nil {
		return nil, errors.Wrap(err, "inspect schema_migrations")
	}
	if tables == 0 {
		return applied, nil
	}

	rows, err := db.Query(`SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, errors.Wrap(err, "list applied migrations")
	}
	defer rows.Close()

	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			return nil, errors.Wrap(err, "scan migration version")
		}
		applied[version] = true
	}
	return applied, rows.Err()
}

// Migrate runs all pending migrations, each in its own transaction.
// If logger is provided, logs migration progress; otherwise operates silently.
func Migrate(db *sql.DB, logger *zap.SugaredLogger) error {
	list, err := Migrations()
	if err != nil {
		return err
	}

	applied, err := AppliedVersions(db)
	if err != nil {
		return err
	}

	pending := 0
	for _, m := range list {
		if applied[m.Version] {
			if logger != nil {
				logger.Debugw("Skipping migration (already applied)", "migration", m.Filename)
			}
			continue
		}
		if len(applied) == 0 && pending == 0 && m.Version != "000" {
			return errors.Newf("schema_migrations table missing, but first migration is not 000: %s", m.Filename)
		}

		if err := apply(db, m); err != nil {
			return err
		}
		pending++

		if logger != nil {
			logger.Infow("Applied migration", "migration", m.Filename, "version", m.Version)
		}
	}

	if logger != nil {
		logger.Infow("Migrations complete",
			"total_migrations", len(list),
			"applied_now", pending,
		)
	}

	return nil
}

func apply(db *sql.DB, m Migration) error {
	sqlBytes, err := migrations.ReadFile(path.Join(migrationsDir, m.Filename))
	if err != nil {
		return errors.Wrapf(err, "read %s", m.Filename)
	}

	tx, err := db.Begin()
	if err != nil {
		return errors.Wrapf(err, "begin tx for %s", m.Filename)
	}

	if _, err := tx.Exec(string(sqlBytes)); err != nil {
		tx.Rollback()
		return errors.Wrapf(err, "execute %s", m.Filename)
	}

	// 000 creates the table, then records itself like every other migration
	if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", m.Version); err != nil {
		tx.Rollback()
		return errors.Wrapf(err, "record %s", m.Filename)
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrapf(err, "commit %s", m.Filename)
	}
	return nil
}
