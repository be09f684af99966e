package testutil

import (
	"context"
	"sync"

	"abbas/model"
)

// MockClient implements model.InferenceClient for testing
type MockClient struct {
	// Configurable response
	CompleteFunc func(ctx context.Context, in model.PromptInput) ([]string, error)

	mu     sync.Mutex
	inputs []model.PromptInput
}

// NewMockClient creates a mock client that replies with the given token
// sequences in order, repeating the last one once exhausted.
func NewMockClient(replies ...[]string) *MockClient {
	mock := &MockClient{}
	next := 0
	mock.CompleteFunc = func(ctx context.Context, in model.PromptInput) ([]string, error) {
		if len(replies) == 0 {
			// Default: a plain mock response
			return []string{"Mock", " response"}, nil
		}
		reply := replies[next]
		if next < len(replies)-1 {
			next++
		}
		return append([]string(nil), reply...), nil
	}
	return mock
}

// NewFailingClient creates a mock client that always returns err.
func NewFailingClient(err error) *MockClient {
	return &MockClient{
		CompleteFunc: func(ctx context.Context, in model.PromptInput) ([]string, error) {
			return nil, err
		},
	}
}

func (m *MockClient) Complete(ctx context.Context, in model.PromptInput) ([]string, error) {
	m.mu.Lock()
	m.inputs = append(m.inputs, in)
	fn := m.CompleteFunc
	m.mu.Unlock()
	return fn(ctx, in)
}

// Inputs returns every PromptInput the client received.
func (m *MockClient) Inputs() []model.PromptInput {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.PromptInput(nil), m.inputs...)
}

// Calls returns how many times Complete was called.
func (m *MockClient) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.inputs)
}

// MockStore implements model.MessageStore in memory
type MockStore struct {
	mu       sync.Mutex
	messages map[int64]model.Message
	order    []int64

	// Optional failure injection
	InsertErr error
}

func NewMockStore() *MockStore {
	return &MockStore{messages: make(map[int64]model.Message)}
}

func (s *MockStore) FetchAncestors(ctx context.Context, id int64) ([]model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var chain []model.Message
	for {
		m, ok := s.messages[id]
		if !ok {
			break
		}
		chain = append([]model.Message{m}, chain...)
		if m.Parent == nil {
			break
		}
		id = *m.Parent
	}
	return chain, nil
}

func (s *MockStore) Insert(ctx context.Context, m model.Message) error {
	return s.InsertMany(ctx, []model.Message{m})
}

func (s *MockStore) InsertMany(ctx context.Context, ms []model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.InsertErr != nil {
		return s.InsertErr
	}
	for _, m := range ms {
		if _, exists := s.messages[m.ID]; !exists {
			s.order = append(s.order, m.ID)
		}
		s.messages[m.ID] = m
	}
	return nil
}

// All returns stored messages in insertion order.
func (s *MockStore) All() []model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.Message, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.messages[id])
	}
	return out
}
