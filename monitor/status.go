package monitor

import (
	"context"
	"database/sql"
	"path/filepath"
	"time"

	"github.com/shirou/gopsutil/v3/disk"

	"github.com/teranos/pulsedesk/db"
	"github.com/teranos/pulsedesk/errors"
)

// AgentPermission marks users counted as agents
const AgentPermission = "ticket.agent"

// Status is the operational snapshot served by the status endpoint
type Status struct {
	Agents        int                   `json:"agents"`
	LastLogin     *time.Time            `json:"last_login"`
	Counts        map[string]int        `json:"counts"`
	LastCreatedAt map[string]*time.Time `json:"last_created_at"`
	Storage       *Storage              `json:"storage,omitempty"`
}

// Storage is the usage of the volume holding the database
type Storage struct {
	Path        string  `json:"path"`
	TotalBytes  uint64  `json:"total_bytes"`
	UsedBytes   uint64  `json:"used_bytes"`
	FreeBytes   uint64  `json:"free_bytes"`
	UsedPercent float64 `json:"used_percent"`
}

// StatusCollector reads the status snapshot from the database.
type StatusCollector struct {
	db          *sql.DB
	storagePath string
	usage       func(ctx context.Context, path string) (*disk.UsageStat, error)
}

// NewStatusCollector creates a collector. storagePath is the database
// file; an empty path (in-memory database) omits the storage block.
func NewStatusCollector(database *sql.DB, storagePath string) *StatusCollector {
	return &StatusCollector{db: database, storagePath: storagePath, usage: disk.UsageWithContext}
}

// Collect builds the snapshot.
func (c *StatusCollector) Collect(ctx context.Context) (*Status, error) {
	st := &Status{
		Counts:        make(map[string]int, len(CountableTables)),
		LastCreatedAt: make(map[string]*time.Time, len(CountableTables)),
	}

	err := c.db.QueryRowContext(ctx, `
		SELECT COUNT(DISTINCT u.id) FROM users u
		JOIN user_permissions up ON up.user_id = u.id
		JOIN permissions p ON p.id = up.permission_id
		WHERE u.active = 1 AND p.active = 1 AND p.name = ?`, AgentPermission).Scan(&st.Agents)
	if err != nil {
		return nil, errors.Wrap(err, "failed to count agents")
	}

	var lastLogin sql.NullString
	if err := c.db.QueryRowContext(ctx, `SELECT MAX(last_login) FROM users`).Scan(&lastLogin); err != nil {
		return nil, errors.Wrap(err, "failed to read last login")
	}
	if st.LastLogin, err = db.ParseNullTime(lastLogin); err != nil {
		return nil, errors.Wrap(err, "last login")
	}

	for _, table := range CountableTables {
		var (
			n    int
			last sql.NullString
		)
		err := c.db.QueryRowContext(ctx, `SELECT COUNT(*), MAX(created_at) FROM `+table).Scan(&n, &last)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to count %s", table)
		}
		st.Counts[table] = n
		if st.LastCreatedAt[table], err = db.ParseNullTime(last); err != nil {
			return nil, errors.Wrapf(err, "%s last created_at", table)
		}
	}

	if c.storagePath != "" {
		st.Storage = c.storage(ctx)
	}
	return st, nil
}

// storage is best effort: platforms without disk usage report none.
func (c *StatusCollector) storage(ctx context.Context) *Storage {
	dir := filepath.Dir(c.storagePath)
	u, err := c.usage(ctx, dir)
	if err != nil {
		return nil
	}
	return &Storage{
		Path:        dir,
		TotalBytes:  u.Total,
		UsedBytes:   u.Used,
		FreeBytes:   u.Free,
		UsedPercent: u.UsedPercent,
	}
}
