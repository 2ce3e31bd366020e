package pipeline_test

import (
	"context"
	"sync"

	"chatmind/backend/internal/hub"
	"chatmind/backend/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

type MockStore struct {
	mock.Mock
}

func (m *MockStore) GetMessage(id uuid.UUID) (*models.Message, error) {
	args := m.Called(id)
	return args.Get(0).(*models.Message), args.Error(1)
}

func (m *MockStore) MarkMessageProcessing(id uuid.UUID) (bool, error) {
	args := m.Called(id)
	return args.Bool(0), args.Error(1)
}

func (m *MockStore) CompleteMessageWithReply(id uuid.UUID, reply *models.Message) error {
	args := m.Called(id, reply)
	return args.Error(0)
}

func (m *MockStore) MarkMessageFailed(id uuid.UUID, reason string) (bool, error) {
	args := m.Called(id, reason)
	return args.Bool(0), args.Error(1)
}

type MockEngine struct {
	mock.Mock
}

func (m *MockEngine) Complete(ctx context.Context, prompt string) (string, error) {
	args := m.Called(ctx, prompt)
	return args.String(0), args.Error(1)
}

// RecordingNotifier captures published events; safe for concurrent use.
type RecordingNotifier struct {
	mu     sync.Mutex
	events []hub.Event
}

func (r *RecordingNotifier) Publish(_ context.Context, ev hub.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *RecordingNotifier) Events() []hub.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]hub.Event, len(r.events))
	copy(out, r.events)
	return out
}
