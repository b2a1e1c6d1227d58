// Package webhook_http is the event intake and status surface: a small
// chi server accepting GitHub-style push deliveries and serving stored
// runs.
package webhook_http

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/pipelet/pipelet/internal/application"
	"github.com/pipelet/pipelet/internal/domain"
	"go.uber.org/zap"
)

const maxPayload = 1 << 20

type Server struct {
	log    *zap.Logger
	disp   *application.Dispatcher
	store  domain.RunStore
	secret string
	srv    *http.Server
}

func New(log *zap.Logger, disp *application.Dispatcher, store domain.RunStore, addr, secret string) *Server {
	s := &Server{log: log, disp: disp, store: store, secret: secret}
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", s.handleHealth)
	r.Post("/webhook", s.handlePush)
	r.Get("/runs", s.handleRuns)
	r.Get("/runs/{id}", s.handleRun)
	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() { errCh <- s.srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.srv.Shutdown(shCtx)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type pushPayload struct {
	Ref        string `json:"ref"`
	After      string `json:"after"`
	Deleted    bool   `json:"deleted"`
	Repository struct {
		FullName string `json:"full_name"`
		CloneURL string `json:"clone_url"`
	} `json:"repository"`
}

func (s *Server) handlePush(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxPayload))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unreadable body"})
		return
	}

	if s.secret != "" {
		if !validSignature(s.secret, body, r.Header.Get("X-Hub-Signature-256")) {
			s.log.Warn("webhook signature rejected", zap.String("delivery", r.Header.Get("X-GitHub-Delivery")))
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "bad signature"})
			return
		}
	}

	eventName := r.Header.Get("X-GitHub-Event")
	if eventName != "push" {
		s.log.Debug("event ignored", zap.String("event", eventName))
		writeJSON(w, http.StatusAccepted, map[string]any{"skipped": true, "reason": "event ignored"})
		return
	}

	var p pushPayload
	if err := json.Unmarshal(body, &p); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed payload"})
		return
	}
	if p.Deleted {
		writeJSON(w, http.StatusAccepted, map[string]any{"skipped": true, "reason": "branch deleted"})
		return
	}

	ev := domain.Event{
		Kind:       domain.EventPush,
		Ref:        p.Ref,
		Branch:     branchOf(p.Ref),
		SHA:        p.After,
		Repo:       p.Repository.CloneURL,
		RepoName:   p.Repository.FullName,
		Delivery:   r.Header.Get("X-GitHub-Delivery"),
		ReceivedAt: time.Now().UTC(),
	}

	// Runs outlive the request.
	n := s.disp.Dispatch(context.WithoutCancel(r.Context()), ev)
	if n == 0 {
		writeJSON(w, http.StatusAccepted, map[string]any{"skipped": true, "reason": "no matching workflow"})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"started": n})
}

type runSummary struct {
	ID         string    `json:"id"`
	Workflow   string    `json:"workflow"`
	Status     string    `json:"status"`
	Branch     string    `json:"branch"`
	SHA        string    `json:"sha"`
	CreatedAt  time.Time `json:"created_at"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.store.List(r.Context())
	if err != nil {
		s.log.Warn("list runs failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "list failed"})
		return
	}

	out := make([]runSummary, 0, len(runs))
	for _, run := range runs {
		out = append(out, runSummary{
			ID:         run.ID,
			Workflow:   run.Workflow,
			Status:     string(run.Status),
			Branch:     run.Event.Branch,
			SHA:        run.Event.SHA,
			CreatedAt:  run.CreatedAt,
			FinishedAt: run.FinishedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	run, err := s.store.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrRunNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "run not found"})
			return
		}
		s.log.Warn("get run failed", zap.String("run", id), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "get failed"})
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func validSignature(secret string, body []byte, header string) bool {
	if !strings.HasPrefix(header, "sha256=") {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	want := "sha256=" + hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(want), []byte(header))
}

func branchOf(ref string) string {
	if strings.HasPrefix(ref, "refs/heads/") {
		return strings.TrimPrefix(ref, "refs/heads/")
	}
	return ""
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
