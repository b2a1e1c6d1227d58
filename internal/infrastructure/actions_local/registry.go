// Package actions_local hosts the built-in delegated actions: source
// checkout, Azure login, and the container-app deploy. The engine treats
// their internals as opaque; each reports success or failure.
package actions_local

import (
	"fmt"
	"sort"
	"time"

	"github.com/pipelet/pipelet/internal/domain"
	"go.uber.org/zap"
)

type Options struct {
	// TokenURL is the base of the identity endpoint the login action
	// posts to, e.g. https://login.microsoftonline.com.
	TokenURL string
	Timeout  time.Duration

	// AzPath overrides the az binary looked up on PATH.
	AzPath string
}

type Registry struct {
	actions map[string]domain.Action
}

func NewRegistry(log *zap.Logger, opt Options) *Registry {
	r := &Registry{actions: map[string]domain.Action{}}
	r.Register(NewCheckout(log))
	r.Register(NewLogin(log, opt.TokenURL, opt.Timeout))
	r.Register(NewDeploy(log, opt.AzPath))
	return r
}

func (r *Registry) Register(a domain.Action) {
	r.actions[a.Name()] = a
}

func (r *Registry) Resolve(name string) (domain.Action, error) {
	a, ok := r.actions[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownAction, name)
	}
	return a, nil
}

// envPairs flattens a step env map into KEY=VALUE form, sorted so the
// child process environment is deterministic.
func envPairs(m map[string]string) []string {
	if len(m) == 0 {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+m[k])
	}
	return out
}
