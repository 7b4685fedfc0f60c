package services

import (
	"context"

	"github.com/contactsbook/identity/types"
)

// UserRepository defines persistence operations for users.
// Implementations return store.ErrNotFound for missing users and
// store.ErrConflict when Create hits the unique email constraint.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (types.User, error)
	GetByEmail(ctx context.Context, email string) (types.User, error)
	GetByVerificationToken(ctx context.Context, token string) (types.User, error)
	Create(ctx context.Context, user types.User) (types.User, error)
	UpdateByID(ctx context.Context, id string, patch types.UserPatch) (types.User, error)
}

// SessionRepository stores at most one session per user.
type SessionRepository interface {
	Upsert(ctx context.Context, session types.Session) (types.Session, error)
	GetByUserID(ctx context.Context, userID string) (types.Session, error)
	DeleteByUserID(ctx context.Context, userID string) error
}
