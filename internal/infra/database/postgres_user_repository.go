package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"subscription_reminder_bot/internal/domain/user"

	"github.com/lib/pq"
)

var ErrDuplicateTelegramID = errors.New("user with this Telegram ID already exists")

const uniqueViolation = pq.ErrorCode("23505")

type PostgresUserRepository struct {
	db *sql.DB
}

func NewPostgresUserRepository(db *sql.DB) *PostgresUserRepository {
	return &PostgresUserRepository{db: db}
}

const userColumns = `id, telegram_id, first_name, email, language, is_blocked, external_services, created_at, updated_at`

func (r *PostgresUserRepository) Create(ctx context.Context, u *user.User) error {
	services, err := json.Marshal(u.ExternalServices)
	if err != nil {
		return fmt.Errorf("error encoding external services: %w", err)
	}
	if u.Language == "" {
		u.Language = "en"
	}

	query := `INSERT INTO users (telegram_id, first_name, email, language, is_blocked, external_services)
               VALUES ($1, $2, $3, $4, $5, $6)
               RETURNING id, created_at, updated_at`
	err = r.db.QueryRowContext(ctx, query, u.TelegramID, u.FirstName, u.Email, u.Language, u.IsBlocked, services).
		Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return ErrDuplicateTelegramID
		}
		return fmt.Errorf("error creating user: %w", err)
	}
	return nil
}

func (r *PostgresUserRepository) GetByID(ctx context.Context, id int64) (*user.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	u, err := scanUser(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, user.ErrNotFound
		}
		return nil, fmt.Errorf("error getting user by ID: %w", err)
	}
	return u, nil
}

func (r *PostgresUserRepository) GetByTelegramID(ctx context.Context, telegramID int64) (*user.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE telegram_id = $1`
	u, err := scanUser(r.db.QueryRowContext(ctx, query, telegramID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, user.ErrNotFound
		}
		return nil, fmt.Errorf("error getting user by Telegram ID: %w", err)
	}
	return u, nil
}

func (r *PostgresUserRepository) UpdateEmail(ctx context.Context, id int64, email sql.NullString) error {
	query := `UPDATE users SET email = $1, updated_at = NOW() WHERE id = $2`
	res, err := r.db.ExecContext(ctx, query, email, id)
	if err != nil {
		return fmt.Errorf("error updating user email: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return user.ErrNotFound
	}
	return nil
}

func (r *PostgresUserRepository) UpdateExternalServices(ctx context.Context, id int64, services user.ExternalServices) error {
	encoded, err := json.Marshal(services)
	if err != nil {
		return fmt.Errorf("error encoding external services: %w", err)
	}
	query := `UPDATE users SET external_services = $1, updated_at = NOW() WHERE id = $2`
	res, err := r.db.ExecContext(ctx, query, encoded, id)
	if err != nil {
		return fmt.Errorf("error updating external services: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return user.ErrNotFound
	}
	return nil
}

func (r *PostgresUserRepository) SetBlocked(ctx context.Context, id int64, blocked bool) error {
	query := `UPDATE users SET is_blocked = $1, updated_at = NOW() WHERE id = $2`
	res, err := r.db.ExecContext(ctx, query, blocked, id)
	if err != nil {
		return fmt.Errorf("error updating user blocked flag: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return user.ErrNotFound
	}
	return nil
}

func scanUser(row rowScanner) (*user.User, error) {
	u := &user.User{}
	var services []byte
	if err := row.Scan(&u.ID, &u.TelegramID, &u.FirstName, &u.Email, &u.Language, &u.IsBlocked, &services, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	if len(services) > 0 {
		if err := json.Unmarshal(services, &u.ExternalServices); err != nil {
			return nil, fmt.Errorf("error decoding external services of user %d: %w", u.ID, err)
		}
	}
	return u, nil
}
