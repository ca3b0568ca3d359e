package storage

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockCanonicalStore implements the CanonicalStore interface for testing
type MockCanonicalStore struct {
	mock.Mock
}

// ListEvents implements the CanonicalStore interface
func (m *MockCanonicalStore) ListEvents(ctx context.Context) ([]CanonicalEvent, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]CanonicalEvent), args.Error(1)
}

// UpdateEvent implements the CanonicalStore interface
func (m *MockCanonicalStore) UpdateEvent(ctx context.Context, event CanonicalEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

// MockPlatformClient implements the PlatformClient interface for testing
type MockPlatformClient struct {
	mock.Mock
}

// ListEvents implements the PlatformClient interface
func (m *MockPlatformClient) ListEvents(ctx context.Context, scopeID string) ([]PlatformEvent, error) {
	args := m.Called(ctx, scopeID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]PlatformEvent), args.Error(1)
}

// CreateEvent implements the PlatformClient interface
func (m *MockPlatformClient) CreateEvent(ctx context.Context, scopeID string, event PlatformEvent) (*PlatformEvent, error) {
	args := m.Called(ctx, scopeID, event)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*PlatformEvent), args.Error(1)
}

// UpdateEvent implements the PlatformClient interface
func (m *MockPlatformClient) UpdateEvent(ctx context.Context, scopeID, eventID string, event PlatformEvent) (*PlatformEvent, error) {
	args := m.Called(ctx, scopeID, eventID, event)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*PlatformEvent), args.Error(1)
}

// DeleteEvent implements the PlatformClient interface
func (m *MockPlatformClient) DeleteEvent(ctx context.Context, scopeID, eventID string) error {
	args := m.Called(ctx, scopeID, eventID)
	return args.Error(0)
}
