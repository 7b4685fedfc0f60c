package services

import (
	"context"
	"errors"
	"strconv"
	"sync"

	"github.com/contactsbook/identity/internal/mailer"
	"github.com/contactsbook/identity/internal/store"
	"github.com/contactsbook/identity/types"
)

// memUsers mirrors the postgres repository, including the unique email
// constraint, so the registration race can be exercised.
type memUsers struct {
	mu     sync.Mutex
	byID   map[string]types.User
	seq    int
	getErr error

	// beforeCreate runs inside Create before the uniqueness check.
	beforeCreate func()
	// beforeUpdate runs inside UpdateByID before the row is locked.
	beforeUpdate func()
}

func newMemUsers() *memUsers {
	return &memUsers{byID: map[string]types.User{}}
}

func (m *memUsers) GetByID(ctx context.Context, id string) (types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return types.User{}, m.getErr
	}
	user, ok := m.byID[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return user, nil
}

func (m *memUsers) GetByEmail(ctx context.Context, email string) (types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return types.User{}, m.getErr
	}
	for _, user := range m.byID {
		if user.Email == email {
			return user, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (m *memUsers) GetByVerificationToken(ctx context.Context, token string) (types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, user := range m.byID {
		if pending, ok := user.VerificationToken(); ok && pending == token && token != "" {
			return user, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (m *memUsers) Create(ctx context.Context, user types.User) (types.User, error) {
	if m.beforeCreate != nil {
		m.beforeCreate()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.byID {
		if existing.Email == user.Email {
			return types.User{}, store.ErrConflict
		}
	}
	m.seq++
	user.ID = "user-" + strconv.Itoa(m.seq)
	m.byID[user.ID] = user
	return user, nil
}

func (m *memUsers) UpdateByID(ctx context.Context, id string, patch types.UserPatch) (types.User, error) {
	if m.beforeUpdate != nil {
		m.beforeUpdate()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.byID[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	if _, verify := patch.Verification.(types.Verified); verify && user.IsVerified() {
		return types.User{}, store.ErrNotFound
	}
	if patch.Subscription != nil {
		user.Subscription = *patch.Subscription
	}
	if patch.AvatarURL != nil {
		user.AvatarURL = *patch.AvatarURL
	}
	if patch.Verification != nil {
		user.Verification = patch.Verification
	}
	m.byID[id] = user
	return user, nil
}

func (m *memUsers) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byID)
}

func (m *memUsers) get(id string) types.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byID[id]
}

type memSessions struct {
	mu     sync.Mutex
	byUser map[string]types.Session
}

func newMemSessions() *memSessions {
	return &memSessions{byUser: map[string]types.Session{}}
}

func (m *memSessions) Upsert(ctx context.Context, session types.Session) (types.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byUser[session.UserID] = session
	return session, nil
}

func (m *memSessions) GetByUserID(ctx context.Context, userID string) (types.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.byUser[userID]
	if !ok {
		return types.Session{}, store.ErrNotFound
	}
	return session, nil
}

func (m *memSessions) DeleteByUserID(ctx context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byUser[userID]; !ok {
		return store.ErrNotFound
	}
	delete(m.byUser, userID)
	return nil
}

type recordingMailer struct {
	mu   sync.Mutex
	sent []mailer.Email
	err  error
}

func (r *recordingMailer) Send(ctx context.Context, email mailer.Email) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, email)
	return nil
}

func (r *recordingMailer) last() mailer.Email {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sent[len(r.sent)-1]
}

var errStoreDown = errors.New("store unavailable")
