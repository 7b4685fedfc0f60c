package handlers

import (
	"context"
	"strconv"
	"sync"

	"github.com/contactsbook/identity/internal/mailer"
	"github.com/contactsbook/identity/internal/store"
	"github.com/contactsbook/identity/types"
)

type memUsers struct {
	mu   sync.Mutex
	byID map[string]types.User
	seq  int
}

func (m *memUsers) GetByID(ctx context.Context, id string) (types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.byID[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return user, nil
}

func (m *memUsers) GetByEmail(ctx context.Context, email string) (types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
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
		if pending, ok := user.VerificationToken(); ok && token != "" && pending == token {
			return user, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (m *memUsers) Create(ctx context.Context, user types.User) (types.User, error) {
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

type memSessions struct {
	mu     sync.Mutex
	byUser map[string]types.Session
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

type outbox struct {
	mu   sync.Mutex
	sent []mailer.Email
}

func (o *outbox) Send(ctx context.Context, email mailer.Email) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sent = append(o.sent, email)
	return nil
}

func (o *outbox) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.sent)
}
