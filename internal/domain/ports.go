package domain

import (
	"context"
	"errors"
)

var (
	ErrUnknownAction  = errors.New("unknown action")
	ErrSecretNotFound = errors.New("secret not found")
	ErrRunNotFound    = errors.New("run not found")
	ErrNoSession      = errors.New("no authenticated session")
)

// ActionOutcome is what a delegated action reports back. Output is opaque
// to the engine beyond secret masking. Session is non-nil only when the
// action established one.
type ActionOutcome struct {
	Output  string
	Session *Session
}

// Action is a delegated, externally-implemented unit of work. Its internals
// are opaque; the engine only observes success or failure.
type Action interface {
	Name() string
	Run(ctx context.Context, sc *StepContext, params map[string]string) (ActionOutcome, error)
}

type ActionResolver interface {
	Resolve(name string) (Action, error)
}

type SecretResolver interface {
	Resolve(ctx context.Context, name string) (string, error)
}

type RunStore interface {
	Save(ctx context.Context, r Run) error
	List(ctx context.Context) ([]Run, error)
	Get(ctx context.Context, id string) (Run, error)
}

type Notifier interface {
	Notify(ctx context.Context, title, body, url string) error
}

// Evaluator resolves workflow expressions: ${{ ... }} spans inside strings,
// bare boolean conditions, and the secret names an expression refers to.
type Evaluator interface {
	Interpolate(s string, env ExprEnv) (string, error)
	Condition(expr string, env ExprEnv) (bool, error)
	SecretRefs(s string) []string
}
