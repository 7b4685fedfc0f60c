package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/contactsbook/identity/types"
)

// SessionRepository handles persistence for login sessions.
type SessionRepository struct {
	db *sql.DB
}

func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Upsert stores session as the user's only session, replacing any previous one.
func (r *SessionRepository) Upsert(ctx context.Context, session types.Session) (types.Session, error) {
	const query = `
		INSERT INTO sessions (id, user_id, token_hash, issued_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id) DO UPDATE
		SET id = EXCLUDED.id,
			token_hash = EXCLUDED.token_hash,
			issued_at = EXCLUDED.issued_at,
			expires_at = EXCLUDED.expires_at`
	if _, err := r.db.ExecContext(
		ctx,
		query,
		session.ID,
		session.UserID,
		session.TokenHash,
		session.IssuedAt,
		session.ExpiresAt,
	); err != nil {
		return types.Session{}, err
	}
	return session, nil
}

func (r *SessionRepository) GetByUserID(ctx context.Context, userID string) (types.Session, error) {
	const query = `
		SELECT id, user_id, token_hash, issued_at, expires_at
		FROM sessions
		WHERE user_id = $1`
	var session types.Session
	err := r.db.QueryRowContext(ctx, query, userID).Scan(
		&session.ID,
		&session.UserID,
		&session.TokenHash,
		&session.IssuedAt,
		&session.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Session{}, ErrNotFound
		}
		return types.Session{}, err
	}
	return session, nil
}

// DeleteByUserID revokes the user's session.
func (r *SessionRepository) DeleteByUserID(ctx context.Context, userID string) error {
	const query = `DELETE FROM sessions WHERE user_id = $1`
	result, err := r.db.ExecContext(ctx, query, userID)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
