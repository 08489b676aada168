package storage

import (
	"context"
	"sync"
	"time"

	"casdoorlink/core"
)

// Fixture bindings. Binding1 belongs to the mock provider's "alice".
var (
	Binding1 = &core.BindingRecord{
		ID:               "chat_user_1",
		ExternalUsername: "alice",
		AccessToken:      "T1",
		RefreshToken:     "R1",
		BoundAt:          time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC),
	}

	Binding2 = &core.BindingRecord{
		ID:               "chat_user_2",
		ExternalUsername: "bob",
		AccessToken:      "T2",
		RefreshToken:     "R2",
		BoundAt:          time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC),
	}

	// Binding with an empty username, left behind by a broken bind
	BindingEmpty = &core.BindingRecord{
		ID:      "chat_user_empty",
		BoundAt: time.Date(2026, 1, 3, 12, 0, 0, 0, time.UTC),
	}

	AllBindings = []*core.BindingRecord{Binding1, Binding2, BindingEmpty}
)

type MockRepository struct {
	mu       sync.Mutex
	bindings map[string]core.BindingRecord

	// FindErr, when set, fails every FindBinding call
	FindErr error

	// Track method calls for verification
	FindBindingCalls int
	SaveBindingCalls int
}

// NewMockRepository returns an empty in-memory repository.
func NewMockRepository() *MockRepository {
	return &MockRepository{bindings: make(map[string]core.BindingRecord)}
}

// NewSeededMockRepository returns a repository preloaded with AllBindings.
func NewSeededMockRepository() *MockRepository {
	repo := NewMockRepository()
	for _, binding := range AllBindings {
		repo.bindings[binding.ID] = *binding
	}
	return repo
}

func (m *MockRepository) FindBinding(ctx context.Context, chatUserID string) (*core.BindingRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FindBindingCalls++

	if m.FindErr != nil {
		return nil, m.FindErr
	}

	record, ok := m.bindings[chatUserID]
	if !ok {
		return nil, core.ErrNotFound
	}
	return &record, nil
}

func (m *MockRepository) SaveBinding(ctx context.Context, record *core.BindingRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SaveBindingCalls++

	m.bindings[record.ID] = *record
	return nil
}

func (m *MockRepository) CountBindings(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.bindings)), nil
}
