package auth

import (
	"context"
	"database/sql"
	"time"

	"github.com/teranos/pulsedesk/db"
	"github.com/teranos/pulsedesk/errors"
)

// Store handles persistence of users, permissions and settings
type Store struct {
	db *sql.DB
}

// NewStore creates a new auth store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// CreateUser creates a user; an empty password leaves the user unable to
// log in with basic auth.
func (s *Store) CreateUser(ctx context.Context, login, email, password string, active bool, now time.Time) (*User, error) {
	if login == "" {
		return nil, errors.NewInvalidRequestError("login is required")
	}
	hash := ""
	if password != "" {
		var err error
		if hash, err = HashPassword(password); err != nil {
			return nil, err
		}
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO users (login, email, password_hash, active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		login, email, hash, active, db.FormatTime(now), db.FormatTime(now))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create user %s", login)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, errors.Wrap(err, "failed to read user id")
	}
	return &User{ID: id, Login: login, Email: email, Active: active, CreatedAt: now.UTC(), UpdatedAt: now.UTC()}, nil
}

// GetUser returns a user by login
func (s *Store) GetUser(ctx context.Context, login string) (*User, error) {
	user, _, err := s.userByLogin(ctx, login)
	return user, err
}

func (s *Store) userByLogin(ctx context.Context, login string) (*User, string, error) {
	var (
		user                 User
		hash                 string
		lastLogin            sql.NullString
		createdAt, updatedAt string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, login, email, password_hash, active, last_login, created_at, updated_at
		FROM users WHERE login = ?`, login,
	).Scan(&user.ID, &user.Login, &user.Email, &hash, &user.Active, &lastLogin, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, "", errors.NewNotFoundError("user %s not found", login)
	}
	if err != nil {
		return nil, "", errors.Wrap(err, "failed to get user")
	}

	if user.LastLogin, err = db.ParseNullTime(lastLogin); err != nil {
		return nil, "", errors.Wrap(err, "last_login")
	}
	if user.CreatedAt, err = db.ParseTime(createdAt); err != nil {
		return nil, "", errors.Wrap(err, "created_at")
	}
	if user.UpdatedAt, err = db.ParseTime(updatedAt); err != nil {
		return nil, "", errors.Wrap(err, "updated_at")
	}
	return &user, hash, nil
}

// SetUserActive enables or disables a user
func (s *Store) SetUserActive(ctx context.Context, userID int64, active bool, now time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE users SET active = ?, updated_at = ? WHERE id = ?`,
		active, db.FormatTime(now), userID)
	if err != nil {
		return errors.Wrapf(err, "failed to update user %d", userID)
	}
	return nil
}

// TouchLogin stamps the last login of a user
func (s *Store) TouchLogin(ctx context.Context, userID int64, now time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE users SET last_login = ? WHERE id = ?`, db.FormatTime(now), userID)
	if err != nil {
		return errors.Wrap(err, "failed to stamp last login")
	}
	return nil
}

// Grant gives a user a permission
func (s *Store) Grant(ctx context.Context, userID int64, permission string) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO user_permissions (user_id, permission_id)
		SELECT ?, id FROM permissions WHERE name = ?`, userID, permission)
	if err != nil {
		return errors.Wrapf(err, "failed to grant %s", permission)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		var exists int
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM permissions WHERE name = ?`, permission).Scan(&exists); err != nil {
			return errors.Wrap(err, "failed to look up permission")
		}
		if exists == 0 {
			return errors.NewNotFoundError("permission %s not found", permission)
		}
	}
	return nil
}

// SetPermissionActive enables or disables a permission for everyone
func (s *Store) SetPermissionActive(ctx context.Context, permission string, active bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE permissions SET active = ? WHERE name = ?`, active, permission)
	if err != nil {
		return errors.Wrapf(err, "failed to update permission %s", permission)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.NewNotFoundError("permission %s not found", permission)
	}
	return nil
}

// HasPermission reports whether the active user holds the active permission
func (s *Store) HasPermission(ctx context.Context, userID int64, permission string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM user_permissions up
		JOIN permissions p ON p.id = up.permission_id
		JOIN users u ON u.id = up.user_id
		WHERE up.user_id = ? AND p.name = ? AND p.active = 1 AND u.active = 1`,
		userID, permission).Scan(&n)
	if err != nil {
		return false, errors.Wrap(err, "failed to check permission")
	}
	return n > 0, nil
}

// GetSetting returns a setting value
func (s *Store) GetSetting(ctx context.Context, name string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE name = ?`, name).Scan(&value)
	if err == sql.ErrNoRows {
		return "", errors.NewNotFoundError("setting %s not found", name)
	}
	if err != nil {
		return "", errors.Wrapf(err, "failed to read setting %s", name)
	}
	return value, nil
}

// SetSetting creates or replaces a setting
func (s *Store) SetSetting(ctx context.Context, name, value string, now time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (name, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		name, value, db.FormatTime(now))
	if err != nil {
		return errors.Wrapf(err, "failed to write setting %s", name)
	}
	return nil
}
