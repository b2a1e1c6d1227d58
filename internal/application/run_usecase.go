package application

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pipelet/pipelet/internal/domain"
	"go.uber.org/zap"
)

type RunUseCase struct {
	log     *zap.Logger
	actions domain.ActionResolver
	secrets domain.SecretResolver
	eval    domain.Evaluator
	store   domain.RunStore
	note    domain.Notifier
	shell   domain.Action
	wsDir   string
	keepWS  bool
}

func NewRunUseCase(
	l *zap.Logger,
	actions domain.ActionResolver,
	secrets domain.SecretResolver,
	eval domain.Evaluator,
	store domain.RunStore,
	note domain.Notifier,
	shell domain.Action,
	wsDir string,
	keepWS bool,
) *RunUseCase {
	return &RunUseCase{
		log: l, actions: actions, secrets: secrets, eval: eval,
		store: store, note: note, shell: shell,
		wsDir: wsDir, keepWS: keepWS,
	}
}

type runContext struct {
	run     *domain.Run
	session *domain.Session

	// every secret value resolved so far, used to scrub step output
	known map[string]string
}

func (uc *RunUseCase) Execute(ctx context.Context, wf domain.Workflow, ev domain.Event) (domain.Run, error) {
	r := domain.Run{
		ID:        domain.NewRunID(),
		Workflow:  wf.Name,
		Job:       wf.Job.ID,
		RunsOn:    wf.Job.RunsOn,
		Event:     ev,
		Status:    domain.RunPending,
		CreatedAt: time.Now().UTC(),
	}

	ws, err := uc.makeWorkspace(r.ID)
	if err != nil {
		r.Status = domain.RunFailed
		return r, fmt.Errorf("create workspace: %w", err)
	}
	r.Workspace = ws
	if !uc.keepWS {
		defer os.RemoveAll(ws)
	}

	uc.log.Info("run started",
		zap.String("run", r.ID),
		zap.String("workflow", wf.Name),
		zap.String("branch", ev.Branch),
		zap.String("sha", ev.SHA),
	)

	r.Status = domain.RunRunning
	r.StartedAt = time.Now().UTC()

	rc := &runContext{run: &r, known: map[string]string{}}

	var failed error
	for i, st := range wf.Job.Steps {
		res, err := uc.runStep(ctx, rc, wf.Job, i, st)
		r.Steps = append(r.Steps, res)
		if err != nil {
			failed = fmt.Errorf("step %q: %w", res.Name, err)
			break
		}
	}

	r.FinishedAt = time.Now().UTC()
	if failed != nil {
		r.Status = domain.RunFailed
	} else {
		r.Status = domain.RunSucceeded
	}

	if err := uc.store.Save(ctx, r); err != nil {
		uc.log.Warn("persist run failed", zap.String("run", r.ID), zap.Error(err))
	}

	body := wf.Name + " (" + ev.Branch + " @ " + shortSHA(ev.SHA) + ")"
	_ = uc.note.Notify(ctx, titleFor(r.Status), body, "")

	uc.log.Info("run finished",
		zap.String("run", r.ID),
		zap.String("status", string(r.Status)),
		zap.Duration("took", r.Duration()),
	)

	if failed != nil {
		return r, failed
	}
	return r, nil
}

func (uc *RunUseCase) runStep(ctx context.Context, rc *runContext, job domain.Job, idx int, st domain.Step) (domain.StepResult, error) {
	res := domain.StepResult{
		Index:     idx,
		Name:      displayName(st),
		Uses:      st.Uses,
		StartedAt: time.Now().UTC(),
	}
	fail := func(err error) (domain.StepResult, error) {
		res.Status = domain.StepFailure
		res.Error = scrub(err.Error(), rc.known)
		res.FinishedAt = time.Now().UTC()
		return res, err
	}

	secrets, err := uc.resolveSecrets(ctx, job, st)
	if err != nil {
		return fail(err)
	}
	for k, v := range secrets {
		rc.known[k] = v
	}

	github := map[string]any{
		"run_id":     rc.run.ID,
		"workspace":  rc.run.Workspace,
		"ref":        rc.run.Event.Ref,
		"ref_name":   rc.run.Event.Branch,
		"sha":        rc.run.Event.SHA,
		"repository": rc.run.Event.RepoName,
		"event_name": string(rc.run.Event.Kind),
	}

	env, err := uc.stepEnv(job, st, github, secrets)
	if err != nil {
		return fail(err)
	}
	xenv := domain.ExprEnv{GitHub: github, Env: env, Secrets: secrets}

	if st.If != "" {
		ok, err := uc.eval.Condition(st.If, xenv)
		if err != nil {
			return fail(fmt.Errorf("evaluate if: %w", err))
		}
		if !ok {
			uc.log.Debug("step skipped", zap.String("run", rc.run.ID), zap.String("step", res.Name))
			res.Status = domain.StepSkipped
			res.FinishedAt = time.Now().UTC()
			return res, nil
		}
	}

	var (
		act    domain.Action
		params map[string]string
	)
	if st.Uses != "" {
		name, _ := domain.ParseUses(st.Uses)
		act, err = uc.actions.Resolve(name)
		if err != nil {
			return fail(err)
		}
		params = make(map[string]string, len(st.With))
		for k, v := range st.With {
			iv, err := uc.eval.Interpolate(v, xenv)
			if err != nil {
				return fail(fmt.Errorf("with.%s: %w", k, err))
			}
			params[k] = iv
		}
	} else {
		act = uc.shell
		script, err := uc.eval.Interpolate(st.Run, xenv)
		if err != nil {
			return fail(fmt.Errorf("run script: %w", err))
		}
		params = map[string]string{"run": script}
	}

	sc := &domain.StepContext{
		RunID:     rc.run.ID,
		Workspace: rc.run.Workspace,
		Event:     rc.run.Event,
		Env:       env,
		Session:   rc.session,
	}

	uc.log.Info("step started", zap.String("run", rc.run.ID), zap.String("step", res.Name))

	out, err := act.Run(ctx, sc, params)
	res.Output = scrub(out.Output, rc.known)
	res.FinishedAt = time.Now().UTC()
	if err != nil {
		res.Status = domain.StepFailure
		res.Error = scrub(err.Error(), rc.known)
		return res, err
	}
	if out.Session != nil {
		rc.session = out.Session
	}
	res.Status = domain.StepSuccess
	return res, nil
}

func (uc *RunUseCase) resolveSecrets(ctx context.Context, job domain.Job, st domain.Step) (map[string]string, error) {
	var sources []string
	sources = append(sources, st.If, st.Run)
	for _, v := range st.With {
		sources = append(sources, v)
	}
	for _, v := range job.Env {
		sources = append(sources, v)
	}
	for _, v := range st.Env {
		sources = append(sources, v)
	}

	out := map[string]string{}
	for _, src := range sources {
		for _, name := range uc.eval.SecretRefs(src) {
			if _, ok := out[name]; ok {
				continue
			}
			v, err := uc.secrets.Resolve(ctx, name)
			if err != nil {
				return nil, err
			}
			out[name] = v
		}
	}
	return out, nil
}

// stepEnv merges job env with step env (step wins) and interpolates the
// values. Env values must not reference env itself.
func (uc *RunUseCase) stepEnv(job domain.Job, st domain.Step, github map[string]any, secrets map[string]string) (map[string]string, error) {
	merged := make(map[string]string, len(job.Env)+len(st.Env))
	for k, v := range job.Env {
		merged[k] = v
	}
	for k, v := range st.Env {
		merged[k] = v
	}

	xenv := domain.ExprEnv{GitHub: github, Secrets: secrets}
	for k, v := range merged {
		iv, err := uc.eval.Interpolate(v, xenv)
		if err != nil {
			return nil, fmt.Errorf("env.%s: %w", k, err)
		}
		merged[k] = iv
	}
	return merged, nil
}

func (uc *RunUseCase) makeWorkspace(runID string) (string, error) {
	base := uc.wsDir
	if base == "" {
		base = os.TempDir()
	}
	dir := filepath.Join(base, "pipelet", runID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

func scrub(s string, secrets map[string]string) string {
	for _, v := range secrets {
		if v == "" {
			continue
		}
		s = strings.ReplaceAll(s, v, "***")
	}
	return s
}

func displayName(st domain.Step) string {
	if st.Name != "" {
		return st.Name
	}
	if st.Uses != "" {
		return st.Uses
	}
	return "run"
}

func shortSHA(sha string) string {
	if len(sha) > 8 {
		return sha[:8]
	}
	return sha
}

func titleFor(s domain.RunStatus) string {
	switch s {
	case domain.RunSucceeded:
		return "✅ pipeline: success"
	case domain.RunFailed:
		return "❌ pipeline: failed"
	case domain.RunRunning:
		return "▶️ pipeline: running"
	default:
		return "ℹ️ pipeline: " + string(s)
	}
}
