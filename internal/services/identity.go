package services

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
	"github.com/samber/oops"

	"github.com/contactsbook/identity/internal/avatar"
	"github.com/contactsbook/identity/internal/mailer"
	"github.com/contactsbook/identity/internal/metrics"
	"github.com/contactsbook/identity/internal/security"
	"github.com/contactsbook/identity/internal/storage"
	"github.com/contactsbook/identity/internal/store"
	"github.com/contactsbook/identity/types"
)

const (
	avatarDir         = "avatars"
	avatarContentType = "image/jpeg"

	// dummyPassword is hashed once and compared against when the email is
	// unknown, so a login for a missing account costs the same as a wrong password.
	dummyPassword = "contacts-identity-dummy-password"
)

// IdentityDeps holds the collaborators of IdentityService.
type IdentityDeps struct {
	Users     UserRepository
	Sessions  SessionRepository
	Hasher    security.PasswordHasher
	Tokens    *security.TokenIssuer
	Avatars   *avatar.Processor
	Storage   *storage.Storage
	Mail      mailer.Sender
	Metrics   *metrics.Metrics
	Logger    zerolog.Logger
	PublicURL string
	Now       func() time.Time
}

// IdentityService implements the account lifecycle: registration, email
// verification, login, session checks, logout and avatar updates.
type IdentityService struct {
	users     UserRepository
	sessions  SessionRepository
	hasher    security.PasswordHasher
	tokens    *security.TokenIssuer
	avatars   *avatar.Processor
	storage   *storage.Storage
	mail      mailer.Sender
	metrics   *metrics.Metrics
	logger    zerolog.Logger
	publicURL string
	now       func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

func NewIdentityService(deps IdentityDeps) *IdentityService {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &IdentityService{
		users:     deps.Users,
		sessions:  deps.Sessions,
		hasher:    deps.Hasher,
		tokens:    deps.Tokens,
		avatars:   deps.Avatars,
		storage:   deps.Storage,
		mail:      deps.Mail,
		metrics:   deps.Metrics,
		logger:    deps.Logger.With().Str("component", "identity").Logger(),
		publicURL: deps.PublicURL,
		now:       now,
	}
}

// RegisterParams are the fields accepted at registration.
type RegisterParams struct {
	Email        string
	Password     string
	Subscription types.Subscription
}

// LoginResult carries the issued bearer token and the logged-in user.
type LoginResult struct {
	Token string
	User  types.User
}

// Register creates an unverified account and mails its verification link.
func (s *IdentityService) Register(ctx context.Context, params RegisterParams) (user types.User, err error) {
	defer func() { s.metrics.Observe("register", err) }()

	if strings.TrimSpace(params.Email) == "" || params.Password == "" {
		return types.User{}, ErrInvalidInput
	}
	errb := oops.In("identity").With("operation", "register")

	if _, err := s.users.GetByEmail(ctx, params.Email); err == nil {
		return types.User{}, ErrEmailInUse
	} else if !errors.Is(err, store.ErrNotFound) {
		return types.User{}, errb.Wrapf(err, "check existing user")
	}

	hashed, err := s.hasher.Hash(params.Password)
	if err != nil {
		if errors.Is(err, security.ErrPasswordTooLong) {
			return types.User{}, ErrInvalidInput
		}
		return types.User{}, errb.Wrapf(err, "hash password")
	}

	subscription := params.Subscription
	if subscription == "" {
		subscription = types.DefaultSubscription
	}

	verificationToken := ulid.Make().String()
	user, err = s.users.Create(ctx, types.User{
		Email:        params.Email,
		PasswordHash: hashed,
		Subscription: subscription,
		AvatarURL:    avatar.GravatarURL(params.Email),
		Verification: types.Unverified{Token: verificationToken},
	})
	if err != nil {
		// The pre-check above can race with a concurrent registration;
		// the unique constraint decides the winner.
		if errors.Is(err, store.ErrConflict) {
			return types.User{}, ErrEmailInUse
		}
		return types.User{}, errb.Wrapf(err, "create user")
	}

	if err := s.mail.Send(ctx, mailer.NewVerificationEmail(user.Email, s.publicURL, verificationToken)); err != nil {
		return types.User{}, errb.With("user_id", user.ID).Wrapf(err, "send verification email")
	}

	s.logger.Info().Str("user_id", user.ID).Msg("user registered")
	return user, nil
}

// ConfirmVerification marks the owner of token as verified. The token is
// consumed: a second confirmation with it fails with ErrUnauthorized.
func (s *IdentityService) ConfirmVerification(ctx context.Context, token string) (err error) {
	defer func() { s.metrics.Observe("confirm_verification", err) }()

	if strings.TrimSpace(token) == "" {
		return ErrUnauthorized
	}

	user, err := s.users.GetByVerificationToken(ctx, token)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrUnauthorized
		}
		return oops.In("identity").With("operation", "confirm_verification").Wrapf(err, "find user by verification token")
	}

	if _, err := s.users.UpdateByID(ctx, user.ID, types.UserPatch{Verification: types.Verified{}}); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrUnauthorized
		}
		return oops.In("identity").With("operation", "confirm_verification", "user_id", user.ID).Wrapf(err, "mark user verified")
	}

	s.logger.Info().Str("user_id", user.ID).Msg("email verified")
	return nil
}

// ResendVerification mails the stored verification token again.
func (s *IdentityService) ResendVerification(ctx context.Context, email string) (err error) {
	defer func() { s.metrics.Observe("resend_verification", err) }()

	if strings.TrimSpace(email) == "" {
		return ErrInvalidInput
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrUnauthorized
		}
		return oops.In("identity").With("operation", "resend_verification").Wrapf(err, "find user by email")
	}

	token, pending := user.VerificationToken()
	if !pending {
		return ErrAlreadyVerified
	}

	if err := s.mail.Send(ctx, mailer.NewVerificationEmail(user.Email, s.publicURL, token)); err != nil {
		return oops.In("identity").With("operation", "resend_verification", "user_id", user.ID).Wrapf(err, "send verification email")
	}
	return nil
}

// Login checks credentials and opens a new session, replacing any previous one.
func (s *IdentityService) Login(ctx context.Context, email, password string) (result LoginResult, err error) {
	defer func() { s.metrics.Observe("login", err) }()

	if strings.TrimSpace(email) == "" || password == "" {
		return LoginResult{}, ErrInvalidInput
	}
	errb := oops.In("identity").With("operation", "login")

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.hasher.Verify(password, s.dummyPasswordHash())
			return LoginResult{}, ErrInvalidCredentials
		}
		return LoginResult{}, errb.Wrapf(err, "find user by email")
	}

	// Password first, then the verification gate, so both failures look the same.
	if !s.hasher.Verify(password, user.PasswordHash) {
		return LoginResult{}, ErrInvalidCredentials
	}
	if !user.IsVerified() {
		return LoginResult{}, ErrInvalidCredentials
	}

	now := s.now()
	sessionID := ulid.Make().String()
	token, err := s.tokens.Issue(security.Claims{UserID: user.ID, SessionID: sessionID}, security.SessionTokenTTL)
	if err != nil {
		return LoginResult{}, errb.With("user_id", user.ID).Wrapf(err, "issue session token")
	}

	if _, err := s.sessions.Upsert(ctx, types.Session{
		ID:        sessionID,
		UserID:    user.ID,
		TokenHash: security.HashToken(token),
		IssuedAt:  now,
		ExpiresAt: now.Add(security.SessionTokenTTL),
	}); err != nil {
		return LoginResult{}, errb.With("user_id", user.ID).Wrapf(err, "store session")
	}

	s.logger.Info().Str("user_id", user.ID).Str("session_id", sessionID).Msg("user logged in")
	return LoginResult{Token: token, User: user}, nil
}

// Authenticate resolves a bearer token to its user. The token must carry a
// valid signature, be unexpired, and match the user's stored session.
func (s *IdentityService) Authenticate(ctx context.Context, token string) (types.User, error) {
	if strings.TrimSpace(token) == "" {
		return types.User{}, ErrUnauthorized
	}

	claims, err := s.tokens.Verify(token)
	if err != nil {
		return types.User{}, ErrUnauthorized
	}

	session, err := s.sessions.GetByUserID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, ErrUnauthorized
		}
		return types.User{}, oops.In("identity").With("operation", "authenticate", "user_id", claims.UserID).Wrapf(err, "load session")
	}
	if session.ID != claims.SessionID || !security.MatchTokenHash(token, session.TokenHash) {
		return types.User{}, ErrUnauthorized
	}
	if session.IsExpiredAt(s.now()) {
		return types.User{}, ErrUnauthorized
	}

	user, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, ErrUnauthorized
		}
		return types.User{}, oops.In("identity").With("operation", "authenticate", "user_id", claims.UserID).Wrapf(err, "load user")
	}
	return user, nil
}

// Current returns the public profile of the token's owner.
func (s *IdentityService) Current(ctx context.Context, token string) (profile types.Profile, err error) {
	defer func() { s.metrics.Observe("current", err) }()

	user, err := s.Authenticate(ctx, token)
	if err != nil {
		return types.Profile{}, err
	}
	return user.Profile(), nil
}

// Logout revokes the user's session.
func (s *IdentityService) Logout(ctx context.Context, user types.User) (err error) {
	defer func() { s.metrics.Observe("logout", err) }()

	if err := s.sessions.DeleteByUserID(ctx, user.ID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrUnauthorized
		}
		return oops.In("identity").With("operation", "logout", "user_id", user.ID).Wrapf(err, "delete session")
	}

	s.logger.Info().Str("user_id", user.ID).Msg("user logged out")
	return nil
}

// UpdateAvatar stores upload as the user's avatar and returns the new URL.
// The raw upload is stored under a fresh key, read back, normalized and
// overwritten with the JPEG. Only avatar_url is changed on the user.
func (s *IdentityService) UpdateAvatar(ctx context.Context, user types.User, upload []byte) (avatarURL string, err error) {
	defer func() { s.metrics.Observe("update_avatar", err) }()

	if len(upload) == 0 {
		return "", ErrUnsupportedImage
	}
	errb := oops.In("identity").With("operation", "update_avatar", "user_id", user.ID)

	key := path.Join(avatarDir, fmt.Sprintf("%s_%s.jpg", user.ID, ulid.Make().String()))
	if err := s.storage.PutBytes(ctx, key, upload, "application/octet-stream"); err != nil {
		return "", errb.Wrapf(err, "store upload")
	}

	raw, err := s.storage.ReadAll(ctx, key)
	if err != nil {
		s.discard(ctx, key)
		return "", errb.Wrapf(err, "read upload")
	}

	encoded, err := s.avatars.Process(raw)
	if err != nil {
		s.discard(ctx, key)
		if errors.Is(err, avatar.ErrUnsupportedImage) {
			return "", ErrUnsupportedImage
		}
		return "", errb.Wrapf(err, "process avatar")
	}

	if err := s.storage.PutBytes(ctx, key, encoded, avatarContentType); err != nil {
		s.discard(ctx, key)
		return "", errb.Wrapf(err, "store avatar")
	}

	avatarURL = s.storage.URL(key)
	if _, err := s.users.UpdateByID(ctx, user.ID, types.UserPatch{AvatarURL: &avatarURL}); err != nil {
		s.discard(ctx, key)
		if errors.Is(err, store.ErrNotFound) {
			return "", ErrUnauthorized
		}
		return "", errb.Wrapf(err, "update avatar url")
	}

	s.logger.Info().Str("user_id", user.ID).Str("avatar_url", avatarURL).Msg("avatar updated")
	return avatarURL, nil
}

func (s *IdentityService) discard(ctx context.Context, key string) {
	if err := s.storage.Delete(ctx, key); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("failed to remove avatar upload")
	}
}

func (s *IdentityService) dummyPasswordHash() string {
	s.dummyOnce.Do(func() {
		hashed, err := s.hasher.Hash(dummyPassword)
		if err != nil {
			s.logger.Error().Err(err).Msg("failed to hash dummy password")
			return
		}
		s.dummyHash = hashed
	})
	return s.dummyHash
}
