// Package secrets_file resolves secret references from the environment
// (PIPELET_SECRET_<NAME>) with a YAML file as fallback. Values never
// appear in logs or stored runs; the use case masks them.
package secrets_file

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"syscall"

	"github.com/pipelet/pipelet/internal/domain"
	"gopkg.in/yaml.v3"
)

const envPrefix = "PIPELET_SECRET_"

type Store struct {
	path string
}

func New(path string) *Store { return &Store{path: path} }

func (s *Store) Resolve(_ context.Context, name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("%w: empty name", domain.ErrSecretNotFound)
	}

	if v, ok := os.LookupEnv(envPrefix + name); ok {
		return v, nil
	}

	m, err := s.load()
	if err != nil {
		return "", err
	}
	v, ok := m[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", domain.ErrSecretNotFound, name)
	}
	return v, nil
}

// Names lists the secrets stored in the file, sorted. Environment-provided
// secrets are not enumerated.
func (s *Store) Names() ([]string, error) {
	m, err := s.load()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	return names, nil
}

func (s *Store) Set(name, value string) error {
	if name == "" {
		return errors.New("empty secret name")
	}
	return s.update(func(m map[string]string) {
		m[name] = value
	})
}

func (s *Store) Unset(name string) error {
	return s.update(func(m map[string]string) {
		delete(m, name)
	})
}

func (s *Store) load() (map[string]string, error) {
	m := map[string]string{}

	b, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return m, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("secrets file %s: %w", s.path, err)
	}
	return m, nil
}

func (s *Store) update(mut func(map[string]string)) error {
	if s.path == "" {
		return errors.New("empty secrets path")
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return err
	}

	lockFile := s.path + ".lock"
	lf, err := os.OpenFile(lockFile, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return err
	}
	defer func() { _ = lf.Close() }()

	if runtime.GOOS != "windows" {
		if err := syscall.Flock(int(lf.Fd()), syscall.LOCK_EX); err != nil {
			return err
		}
		defer func() { _ = syscall.Flock(int(lf.Fd()), syscall.LOCK_UN) }()
	}

	m, err := s.load()
	if err != nil {
		return err
	}
	mut(m)

	b, err := yaml.Marshal(m)
	if err != nil {
		return err
	}

	tmp := s.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	if _, err := f.Write(b); err != nil {
		return err
	}
	if err := f.Sync(); err != nil {
		return err
	}

	return os.Rename(tmp, s.path)
}
