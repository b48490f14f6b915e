package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"chatapp/core"
)

// MockUserStorage is an in-memory UserStorage for testing. Setting Err makes
// every call fail with it.
type MockUserStorage struct {
	mu    sync.RWMutex
	users map[string]core.User
	Err   error
}

// NewMockUserStorage creates an empty in-memory user store
func NewMockUserStorage() *MockUserStorage {
	return &MockUserStorage{users: make(map[string]core.User)}
}

func (m *MockUserStorage) CreateUser(ctx context.Context, user *core.User) error {
	if m.Err != nil {
		return m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	user.Email = core.NormalizeEmail(user.Email)
	for _, u := range m.users {
		if u.Email == user.Email {
			return ErrEmailExists
		}
	}
	m.users[user.ID] = *user
	return nil
}

func (m *MockUserStorage) GetUserByID(ctx context.Context, id string) (*core.User, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return &u, nil
}

func (m *MockUserStorage) GetUserByEmail(ctx context.Context, email string) (*core.User, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	email = core.NormalizeEmail(email)
	for _, u := range m.users {
		if u.Email == email {
			found := u
			return &found, nil
		}
	}
	return nil, ErrUserNotFound
}

func (m *MockUserStorage) UpdateProfilePic(ctx context.Context, id, profilePic string) (*core.User, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	u.ProfilePic = profilePic
	u.UpdatedAt = time.Now().UTC()
	m.users[id] = u
	return &u, nil
}

func (m *MockUserStorage) ListUsersExcept(ctx context.Context, id string) ([]core.User, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	users := make([]core.User, 0, len(m.users))
	for _, u := range m.users {
		if u.ID != id {
			u.Password = ""
			users = append(users, u)
		}
	}
	sort.Slice(users, func(i, j int) bool { return users[i].FullName < users[j].FullName })
	return users, nil
}

// DeleteUser removes a user; used to simulate accounts deleted after a token was issued
func (m *MockUserStorage) DeleteUser(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.users, id)
}

// MockMessageStorage is an in-memory MessageStorage for testing
type MockMessageStorage struct {
	mu       sync.RWMutex
	messages []core.Message
	Err      error
}

// NewMockMessageStorage creates an empty in-memory message store
func NewMockMessageStorage() *MockMessageStorage {
	return &MockMessageStorage{}
}

func (m *MockMessageStorage) CreateMessage(ctx context.Context, msg *core.Message) error {
	if m.Err != nil {
		return m.Err
	}
	if msg.IsEmpty() {
		return ErrInvalidMessage
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, *msg)
	return nil
}

func (m *MockMessageStorage) GetConversation(ctx context.Context, userA, userB string) ([]core.Message, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]core.Message, 0)
	for _, msg := range m.messages {
		if (msg.SenderID == userA && msg.ReceiverID == userB) || (msg.SenderID == userB && msg.ReceiverID == userA) {
			out = append(out, msg)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// MockDatabase is a Database backed by the in-memory stores
type MockDatabase struct {
	UserStore    *MockUserStorage
	MessageStore *MockMessageStorage
	HealthErr    error
	Closed       bool
}

// NewMockDatabase creates a MockDatabase with empty stores
func NewMockDatabase() *MockDatabase {
	return &MockDatabase{
		UserStore:    NewMockUserStorage(),
		MessageStore: NewMockMessageStorage(),
	}
}

func (m *MockDatabase) Users() UserStorage       { return m.UserStore }
func (m *MockDatabase) Messages() MessageStorage { return m.MessageStore }

func (m *MockDatabase) HealthCheck(ctx context.Context) error {
	return m.HealthErr
}

func (m *MockDatabase) Close(ctx context.Context) error {
	m.Closed = true
	return nil
}
