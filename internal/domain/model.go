package domain

import (
	"crypto/rand"
	"encoding/hex"
	"path"
	"strings"
	"time"
)

type EventKind string

const (
	EventPush EventKind = "push"
)

// Event is a repository notification delivered by the webhook intake or
// synthesized by the CLI. Branch is set only for refs under refs/heads/.
type Event struct {
	Kind       EventKind
	Ref        string
	Branch     string
	SHA        string
	Repo       string
	RepoName   string
	Delivery   string
	ReceivedAt time.Time
}

type PushFilter struct {
	Branches []string
}

type Trigger struct {
	Push *PushFilter
}

// Matches reports whether the event should start the workflow. Only push
// events are considered; an empty branch list accepts every branch.
// Evaluation has no side effects.
func (t Trigger) Matches(ev Event) bool {
	if ev.Kind != EventPush || t.Push == nil {
		return false
	}
	if len(t.Push.Branches) == 0 {
		return true
	}
	for _, pat := range t.Push.Branches {
		if MatchBranch(pat, ev.Branch) {
			return true
		}
	}
	return false
}

// MatchBranch matches a branch name against a filter pattern. A pattern is
// a slash-separated glob: * and ? match within one segment, ** spans
// segments. "releases/**" matches "releases/v1/hotfix".
func MatchBranch(pattern, branch string) bool {
	if branch == "" {
		return false
	}
	return matchSegments(strings.Split(pattern, "/"), strings.Split(branch, "/"))
}

func matchSegments(pat, parts []string) bool {
	if len(pat) == 0 {
		return len(parts) == 0
	}
	if pat[0] == "**" {
		if matchSegments(pat[1:], parts) {
			return true
		}
		if len(parts) == 0 {
			return false
		}
		return matchSegments(pat, parts[1:])
	}
	if len(parts) == 0 {
		return false
	}
	if ok, err := path.Match(pat[0], parts[0]); err != nil || !ok {
		return false
	}
	return matchSegments(pat[1:], parts[1:])
}

type Workflow struct {
	Name    string
	Source  string
	Trigger Trigger
	Job     Job
}

type Job struct {
	ID     string
	Name   string
	RunsOn string
	Env    map[string]string
	Steps  []Step
}

// Step is either a delegated action invocation (Uses + With) or an inline
// shell command (Run); never both.
type Step struct {
	Name string
	Uses string
	Run  string
	With map[string]string
	Env  map[string]string
	If   string
}

// ParseUses splits an action reference of the form "owner/name@version".
// The version is recorded on the run but not interpreted.
func ParseUses(ref string) (name, version string) {
	if i := strings.LastIndex(ref, "@"); i >= 0 {
		return ref[:i], ref[i+1:]
	}
	return ref, ""
}

type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunRunning   RunStatus = "running"
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
)

type StepStatus string

const (
	StepSuccess StepStatus = "success"
	StepFailure StepStatus = "failure"
	StepSkipped StepStatus = "skipped"
)

type StepResult struct {
	Index      int
	Name       string
	Uses       string
	Status     StepStatus
	Output     string
	Error      string
	StartedAt  time.Time
	FinishedAt time.Time
}

// Run is one execution of a workflow's job for one matched event. Steps
// holds a result for every step that was started or skipped; steps after a
// failure are never started and leave no result.
type Run struct {
	ID         string
	Workflow   string
	Job        string
	RunsOn     string
	Event      Event
	Status     RunStatus
	Steps      []StepResult
	Workspace  string
	CreatedAt  time.Time
	StartedAt  time.Time
	FinishedAt time.Time
}

func (r Run) Duration() time.Duration {
	if r.FinishedAt.IsZero() || r.StartedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Session is the short-lived authorization established by the authenticate
// action and consumed by later steps. It is the only cross-step shared
// datum a run carries.
type Session struct {
	Token          string
	TokenType      string
	TenantID       string
	SubscriptionID string
	ExpiresAt      time.Time
}

// StepContext is the accumulated run state handed to a delegated action.
type StepContext struct {
	RunID     string
	Workspace string
	Event     Event
	Env       map[string]string
	Session   *Session
}

// ExprEnv is the evaluation context for workflow expressions.
type ExprEnv struct {
	GitHub  map[string]any
	Env     map[string]string
	Secrets map[string]string
}

// NewRunID returns an identifier unique across concurrent runs, e.g.
// "r20260825T193045-9f3c21".
func NewRunID() string {
	var b [3]byte
	_, _ = rand.Read(b[:])
	return "r" + time.Now().UTC().Format("20060102T150405") + "-" + hex.EncodeToString(b[:])
}
