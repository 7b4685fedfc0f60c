package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/contactsbook/identity/types"
)

const userColumns = `id, email, password_hash, subscription, avatar_url, verified, verification_token, created_at, updated_at`

// UserRepository handles persistence for users.
type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (types.User, error) {
	var (
		user     types.User
		verified bool
		token    sql.NullString
	)
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.PasswordHash,
		&user.Subscription,
		&user.AvatarURL,
		&verified,
		&token,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, err
	}
	if verified {
		user.Verification = types.Verified{}
	} else {
		user.Verification = types.Unverified{Token: token.String}
	}
	return user, nil
}

// verificationColumns maps the sum type onto the verified and
// verification_token columns. The table's CHECK constraint rejects any
// other combination.
func verificationColumns(v types.Verification) (bool, sql.NullString, error) {
	switch state := v.(type) {
	case types.Verified:
		return true, sql.NullString{}, nil
	case types.Unverified:
		if strings.TrimSpace(state.Token) == "" {
			return false, sql.NullString{}, errors.New("unverified user requires a verification token")
		}
		return false, sql.NullString{String: state.Token, Valid: true}, nil
	default:
		return false, sql.NullString{}, fmt.Errorf("unknown verification state %T", v)
	}
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (types.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return types.User{}, ErrNotFound
	}
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(r.db.QueryRowContext(ctx, query, id))
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (types.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return scanUser(r.db.QueryRowContext(ctx, query, email))
}

func (r *UserRepository) GetByVerificationToken(ctx context.Context, token string) (types.User, error) {
	if token == "" {
		return types.User{}, ErrNotFound
	}
	query := `SELECT ` + userColumns + ` FROM users WHERE verification_token = $1 AND verified = FALSE`
	return scanUser(r.db.QueryRowContext(ctx, query, token))
}

// Create inserts user. A duplicate email yields ErrConflict.
func (r *UserRepository) Create(ctx context.Context, user types.User) (types.User, error) {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now

	verified, token, err := verificationColumns(user.Verification)
	if err != nil {
		return types.User{}, err
	}

	const query = `
		INSERT INTO users (id, email, password_hash, subscription, avatar_url, verified, verification_token, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	if _, err := r.db.ExecContext(
		ctx,
		query,
		user.ID,
		user.Email,
		user.PasswordHash,
		user.Subscription,
		user.AvatarURL,
		verified,
		token,
		user.CreatedAt,
		user.UpdatedAt,
	); err != nil {
		if isUniqueViolation(err) {
			return types.User{}, ErrConflict
		}
		return types.User{}, err
	}
	return user, nil
}

// UpdateByID applies patch to a single user row and returns the result.
func (r *UserRepository) UpdateByID(ctx context.Context, id string, patch types.UserPatch) (types.User, error) {
	if patch.IsEmpty() {
		return r.GetByID(ctx, id)
	}
	if _, err := uuid.Parse(id); err != nil {
		return types.User{}, ErrNotFound
	}

	var (
		sets []string
		args []any
	)
	set := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if patch.Subscription != nil {
		set("subscription", *patch.Subscription)
	}
	if patch.AvatarURL != nil {
		set("avatar_url", *patch.AvatarURL)
	}
	// The verified transition only applies to a pending row, so a token can
	// be consumed once even under concurrent confirmations.
	guard := ""
	if patch.Verification != nil {
		verified, token, err := verificationColumns(patch.Verification)
		if err != nil {
			return types.User{}, err
		}
		set("verified", verified)
		set("verification_token", token)
		if verified {
			guard = " AND verified = FALSE"
		}
	}
	set("updated_at", time.Now().UTC())
	args = append(args, id)

	query := fmt.Sprintf(`UPDATE users SET %s WHERE id = $%d%s RETURNING %s`,
		strings.Join(sets, ", "), len(args), guard, userColumns)
	return scanUser(r.db.QueryRowContext(ctx, query, args...))
}
