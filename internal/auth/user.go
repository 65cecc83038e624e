package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"qctracker/internal/database"
	"qctracker/internal/models"
)

const userColumns = "id, username, password_hash, full_name, is_admin"

// UserService is the credential store for testers and administrators.
type UserService struct {
	db        *database.DB
	cost      int
	dummyHash []byte
	logger    zerolog.Logger
}

func NewUserService(db *database.DB, cost int, logger zerolog.Logger) (*UserService, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	// Compared against when the username is unknown so that both failure
	// paths pay for one bcrypt comparison.
	dummy, err := bcrypt.GenerateFromPassword([]byte("qctracker-dummy-password"), cost)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare password hasher: %w", err)
	}
	return &UserService{
		db:        db,
		cost:      cost,
		dummyHash: dummy,
		logger:    logger.With().Str("component", "users").Logger(),
	}, nil
}

func (s *UserService) Create(ctx context.Context, username, password, fullName string, isAdmin bool) (*models.User, error) {
	if username == "" {
		return nil, &models.ValidationError{Field: "username", Message: "is required"}
	}
	if password == "" {
		return nil, &models.ValidationError{Field: "password", Message: "is required"}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{
		Username:     username,
		PasswordHash: string(hash),
		FullName:     fullName,
		IsAdmin:      isAdmin,
	}

	err = s.db.QueryRowContext(ctx,
		s.db.Rebind("INSERT INTO users (username, password_hash, full_name, is_admin) VALUES (?, ?, ?, ?) RETURNING id"),
		user.Username, user.PasswordHash, user.FullName, user.IsAdmin,
	).Scan(&user.ID)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return nil, models.ErrDuplicateUsername
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return user, nil
}

// Authenticate verifies a login attempt. Unknown usernames and wrong passwords
// both return ErrInvalidCredentials after a bcrypt comparison.
func (s *UserService) Authenticate(ctx context.Context, username, password string) (*models.User, error) {
	user, err := s.GetByUsername(ctx, username)
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			return nil, err
		}
		_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
		return nil, models.ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, models.ErrInvalidCredentials
	}

	return user, nil
}

func (s *UserService) GetByID(ctx context.Context, id int64) (*models.User, error) {
	row := s.db.QueryRowContext(ctx, s.db.Rebind("SELECT "+userColumns+" FROM users WHERE id = ?"), id)
	return scanUser(row)
}

func (s *UserService) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	row := s.db.QueryRowContext(ctx, s.db.Rebind("SELECT "+userColumns+" FROM users WHERE username = ?"), username)
	return scanUser(row)
}

// List returns all accounts ordered by id.
func (s *UserService) List(ctx context.Context) ([]models.User, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+userColumns+" FROM users ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var user models.User
		if err := rows.Scan(&user.ID, &user.Username, &user.PasswordHash, &user.FullName, &user.IsAdmin); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}

// Remove deletes a non-administrator account.
func (s *UserService) Remove(ctx context.Context, id int64) error {
	user, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if user.IsAdmin {
		return models.ErrProtectedAccount
	}

	result, err := s.db.ExecContext(ctx, s.db.Rebind("DELETE FROM users WHERE id = ? AND is_admin = ?"), id, false)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		// Promoted or removed concurrently.
		return models.ErrNotFound
	}
	return nil
}

// EnsureDefaultAdmin seeds an administrator named username if no such
// account exists. It reports whether an account was created.
func (s *UserService) EnsureDefaultAdmin(ctx context.Context, username, password, fullName string) (bool, error) {
	_, err := s.GetByUsername(ctx, username)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return false, err
	}

	if _, err := s.Create(ctx, username, password, fullName, true); err != nil {
		if errors.Is(err, models.ErrDuplicateUsername) {
			return false, nil
		}
		return false, err
	}

	s.logger.Info().Str("username", username).Msg("seeded default admin account")
	return true, nil
}

func scanUser(row *sql.Row) (*models.User, error) {
	var user models.User
	err := row.Scan(&user.ID, &user.Username, &user.PasswordHash, &user.FullName, &user.IsAdmin)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}
