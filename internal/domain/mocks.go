package domain

import (
	"context"
	"fmt"
	"sync"
)

// Mocks are safe for concurrent use; dispatched runs share them in tests.

type MockAction struct {
	ActionName string
	Out        ActionOutcome
	Err        error
	OnRun      func(sc *StepContext, params map[string]string)

	mu         sync.Mutex
	Called     int
	LastParams map[string]string
	LastSC     *StepContext
}

func (m *MockAction) Name() string {
	if m.ActionName == "" {
		return "mock"
	}
	return m.ActionName
}

func (m *MockAction) Run(ctx context.Context, sc *StepContext, params map[string]string) (ActionOutcome, error) {
	m.mu.Lock()
	m.Called++
	m.LastParams = params
	m.LastSC = sc
	m.mu.Unlock()
	if m.OnRun != nil {
		m.OnRun(sc, params)
	}
	if m.Err != nil {
		return ActionOutcome{}, m.Err
	}
	return m.Out, nil
}

type MockActionResolver struct {
	Actions map[string]Action
	Err     error
}

func (m *MockActionResolver) Resolve(name string) (Action, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	a, ok := m.Actions[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAction, name)
	}
	return a, nil
}

type MockSecrets struct {
	Values map[string]string
	Err    error

	mu     sync.Mutex
	Called int
}

func (m *MockSecrets) Resolve(ctx context.Context, name string) (string, error) {
	m.mu.Lock()
	m.Called++
	m.mu.Unlock()
	if m.Err != nil {
		return "", m.Err
	}
	v, ok := m.Values[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrSecretNotFound, name)
	}
	return v, nil
}

type MockRunStore struct {
	Err error

	mu    sync.Mutex
	Saved []Run
}

func (m *MockRunStore) Save(ctx context.Context, r Run) error {
	if m.Err != nil {
		return m.Err
	}
	m.mu.Lock()
	m.Saved = append(m.Saved, r)
	m.mu.Unlock()
	return nil
}

func (m *MockRunStore) List(ctx context.Context) ([]Run, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Run, len(m.Saved))
	copy(out, m.Saved)
	return out, nil
}

func (m *MockRunStore) Get(ctx context.Context, id string) (Run, error) {
	if m.Err != nil {
		return Run{}, m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.Saved {
		if r.ID == id {
			return r, nil
		}
	}
	return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
}

type MockNotifier struct {
	Err error

	mu       sync.Mutex
	Messages []string
}

func (n *MockNotifier) Notify(ctx context.Context, title, body, url string) error {
	n.mu.Lock()
	n.Messages = append(n.Messages, title+"|"+body+"|"+url)
	n.mu.Unlock()
	return n.Err
}
