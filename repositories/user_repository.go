package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/blogem/wiki-sso/models"
)

// ErrDuplicateUsername is returned when account creation loses a race
// against a concurrent insert for the same username.
var ErrDuplicateUsername = errors.New("username already exists")

// UserRepository interface defines local account database operations
type UserRepository interface {
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	GetByID(ctx context.Context, id int) (*models.User, error)
	GetByAuthToken(ctx context.Context, token string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
	UpdateAuthToken(ctx context.Context, id int, token string) error
	TouchLastLogin(ctx context.Context, id int) error
	Count(ctx context.Context) (int, error)
}

// userRepository implements UserRepository interface
type userRepository struct {
	db *sql.DB
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *sql.DB) UserRepository {
	return &userRepository{db: db}
}

const userColumns = `id, username, email, real_name, email_confirmed, auth_token, created_at, last_login_at`

// GetByUsername retrieves a user by username. Returns (nil, nil) when no
// such user exists.
func (r *userRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE username = ?`
	return r.scanOne(r.db.QueryRowContext(ctx, query, username))
}

// GetByID retrieves a user by ID. Returns (nil, nil) when no such user exists.
func (r *userRepository) GetByID(ctx context.Context, id int) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = ?`
	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

// GetByAuthToken retrieves a user by remember-token. Returns (nil, nil)
// when no user carries the token.
func (r *userRepository) GetByAuthToken(ctx context.Context, token string) (*models.User, error) {
	if token == "" {
		return nil, nil
	}
	query := `SELECT ` + userColumns + ` FROM users WHERE auth_token = ?`
	return r.scanOne(r.db.QueryRowContext(ctx, query, token))
}

func (r *userRepository) scanOne(row *sql.Row) (*models.User, error) {
	var user models.User
	var authToken sql.NullString
	var lastLogin sql.NullTime

	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.RealName,
		&user.EmailConfirmed,
		&authToken,
		&user.CreatedAt,
		&lastLogin,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}

	if authToken.Valid {
		user.AuthToken = authToken.String
	}
	if lastLogin.Valid {
		user.LastLoginAt = &lastLogin.Time
	}

	return &user, nil
}

// Create provisions a new user account
func (r *userRepository) Create(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (username, email, real_name, email_confirmed, created_at)
		VALUES (?, ?, ?, ?, ?)
	`

	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}

	result, err := r.db.ExecContext(ctx, query,
		user.Username,
		user.Email,
		user.RealName,
		user.EmailConfirmed,
		user.CreatedAt,
	)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return fmt.Errorf("%w: %s", ErrDuplicateUsername, user.Username)
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get inserted ID: %w", err)
	}

	user.ID = int(id)
	return nil
}

// UpdateAuthToken stores the long-lived remember-token for a user. An empty
// token clears it.
func (r *userRepository) UpdateAuthToken(ctx context.Context, id int, token string) error {
	query := `UPDATE users SET auth_token = ? WHERE id = ?`

	value := sql.NullString{String: token, Valid: token != ""}
	result, err := r.db.ExecContext(ctx, query, value, id)
	if err != nil {
		return fmt.Errorf("failed to update auth token: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("user with ID %d not found", id)
	}

	return nil
}

// TouchLastLogin records the time of the latest successful login
func (r *userRepository) TouchLastLogin(ctx context.Context, id int) error {
	query := `UPDATE users SET last_login_at = ? WHERE id = ?`

	if _, err := r.db.ExecContext(ctx, query, time.Now(), id); err != nil {
		return fmt.Errorf("failed to update last login: %w", err)
	}

	return nil
}

// Count returns the total number of users
func (r *userRepository) Count(ctx context.Context) (int, error) {
	query := `SELECT COUNT(*) FROM users`

	var count int
	if err := r.db.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}

	return count, nil
}
