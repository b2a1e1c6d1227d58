package application

import (
	"context"
	"sync"

	"github.com/pipelet/pipelet/internal/domain"
	"go.uber.org/zap"
)

type Dispatcher struct {
	log *zap.Logger
	use *RunUseCase

	mu        sync.RWMutex
	workflows []domain.Workflow

	wg sync.WaitGroup
}

func NewDispatcher(l *zap.Logger, u *RunUseCase, workflows []domain.Workflow) *Dispatcher {
	return &Dispatcher{log: l, use: u, workflows: workflows}
}

func (d *Dispatcher) UpdateWorkflows(workflows []domain.Workflow) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.workflows = workflows
	d.log.Info("workflows reloaded", zap.Int("workflows", len(workflows)))
}

// Dispatch starts a run for every workflow whose trigger matches the event
// and returns how many were started. Runs execute concurrently and do not
// affect each other.
func (d *Dispatcher) Dispatch(ctx context.Context, ev domain.Event) int {
	d.mu.RLock()
	workflows := make([]domain.Workflow, len(d.workflows))
	copy(workflows, d.workflows)
	d.mu.RUnlock()

	started := 0
	for _, wf := range workflows {
		if !wf.Trigger.Matches(ev) {
			d.log.Debug("event ignored",
				zap.String("workflow", wf.Name),
				zap.String("event", string(ev.Kind)),
				zap.String("branch", ev.Branch),
			)
			continue
		}
		started++
		d.wg.Add(1)
		go func(wf domain.Workflow) {
			defer d.wg.Done()
			if _, err := d.use.Execute(ctx, wf, ev); err != nil {
				d.log.Warn("run failed",
					zap.String("workflow", wf.Name),
					zap.String("branch", ev.Branch),
					zap.Error(err),
				)
			}
		}(wf)
	}
	return started
}

// Wait blocks until every dispatched run has finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
