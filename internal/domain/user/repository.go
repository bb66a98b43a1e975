package user

import (
	"context"
	"database/sql"
	"errors"
)

var ErrNotFound = errors.New("user not found")

// Repository defines the operations for persisting and retrieving users.
type Repository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id int64) (*User, error)
	GetByTelegramID(ctx context.Context, telegramID int64) (*User, error)
	UpdateEmail(ctx context.Context, id int64, email sql.NullString) error
	UpdateExternalServices(ctx context.Context, id int64, services ExternalServices) error
	// SetBlocked marks whether the user's Telegram chat rejects the bot.
	SetBlocked(ctx context.Context, id int64, blocked bool) error
}
