// Package runstore_fs persists runs as one JSON document per run.
package runstore_fs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pipelet/pipelet/internal/domain"
)

type Store struct {
	dir string
}

func New(dir string) *Store { return &Store{dir: dir} }

func (s *Store) Save(_ context.Context, r domain.Run) error {
	if s.dir == "" {
		return errors.New("runs dir is empty")
	}
	if r.ID == "" {
		return errors.New("run has no id")
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}

	b, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}

	path := s.path(r.ID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// List returns every stored run, newest first.
func (s *Store) List(_ context.Context) ([]domain.Run, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var out []domain.Run
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		b, err := os.ReadFile(filepath.Join(s.dir, e.Name()))
		if err != nil {
			return nil, err
		}
		var r domain.Run
		if err := json.Unmarshal(b, &r); err != nil {
			return nil, fmt.Errorf("run file %s: %w", e.Name(), err)
		}
		out = append(out, r)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) Get(_ context.Context, id string) (domain.Run, error) {
	b, err := os.ReadFile(s.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return domain.Run{}, fmt.Errorf("%w: %s", domain.ErrRunNotFound, id)
		}
		return domain.Run{}, err
	}

	var r domain.Run
	if err := json.Unmarshal(b, &r); err != nil {
		return domain.Run{}, fmt.Errorf("run file %s: %w", id, err)
	}
	return r, nil
}

func (s *Store) path(id string) string {
	return filepath.Join(s.dir, filepath.Base(id)+".json")
}
