package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"chatapp/core"

	"go.uber.org/zap"
)

// SQLiteUserStorage implements UserStorage using SQLite
type SQLiteUserStorage struct {
	sqlite *SQLite
	logger *zap.SugaredLogger
}

// NewSQLiteUserStorage creates a new SQLite-based user storage
func NewSQLiteUserStorage(sqlite *SQLite, logger *zap.SugaredLogger) *SQLiteUserStorage {
	return &SQLiteUserStorage{sqlite: sqlite, logger: logger}
}

const userColumns = `id, email, full_name, password, profile_pic, created_at, updated_at`

// CreateUser inserts a new user
func (s *SQLiteUserStorage) CreateUser(ctx context.Context, user *core.User) error {
	user.Email = core.NormalizeEmail(user.Email)

	query := `INSERT INTO users (` + userColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := s.sqlite.WriteDB.ExecContext(ctx, query,
		user.ID,
		user.Email,
		user.FullName,
		user.Password,
		user.ProfilePic,
		formatSQLiteTime(user.CreatedAt),
		formatSQLiteTime(user.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrEmailExists
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

// GetUserByID retrieves a user by ID
func (s *SQLiteUserStorage) GetUserByID(ctx context.Context, id string) (*core.User, error) {
	row := s.sqlite.ReadDB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	return scanUser(row)
}

// GetUserByEmail retrieves a user by email, case-insensitively
func (s *SQLiteUserStorage) GetUserByEmail(ctx context.Context, email string) (*core.User, error) {
	row := s.sqlite.ReadDB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, core.NormalizeEmail(email))
	return scanUser(row)
}

// UpdateProfilePic sets the profile picture and returns the updated user
func (s *SQLiteUserStorage) UpdateProfilePic(ctx context.Context, id, profilePic string) (*core.User, error) {
	result, err := s.sqlite.WriteDB.ExecContext(ctx,
		`UPDATE users SET profile_pic = ?, updated_at = ? WHERE id = ?`,
		profilePic, formatSQLiteTime(time.Now()), id)
	if err != nil {
		return nil, fmt.Errorf("failed to update user: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return nil, ErrUserNotFound
	}

	// Read back through the writer so the update is visible
	row := s.sqlite.WriteDB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	return scanUser(row)
}

// ListUsersExcept returns every user but the one with the given ID
func (s *SQLiteUserStorage) ListUsersExcept(ctx context.Context, id string) ([]core.User, error) {
	rows, err := s.sqlite.ReadDB.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id != ? ORDER BY full_name ASC`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	users := make([]core.User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		user.Password = ""
		users = append(users, *user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate users: %w", err)
	}
	return users, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanUser(row rowScanner) (*core.User, error) {
	var user core.User
	var createdAt, updatedAt string
	err := row.Scan(&user.ID, &user.Email, &user.FullName, &user.Password, &user.ProfilePic, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}
	if user.CreatedAt, err = parseSQLiteTime(createdAt); err != nil {
		return nil, fmt.Errorf("invalid created_at for user %s: %w", user.ID, err)
	}
	if user.UpdatedAt, err = parseSQLiteTime(updatedAt); err != nil {
		return nil, fmt.Errorf("invalid updated_at for user %s: %w", user.ID, err)
	}
	return &user, nil
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
