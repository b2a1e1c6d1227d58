// Package workflow_yaml loads GitHub-Actions-shaped workflow files into
// domain workflows. ${{ ... }} spans are kept verbatim; interpolation
// happens at run time.
package workflow_yaml

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pipelet/pipelet/internal/domain"
	"gopkg.in/yaml.v3"
)

type fileWorkflow struct {
	Name string             `yaml:"name"`
	On   onSpec             `yaml:"on"`
	Jobs map[string]fileJob `yaml:"jobs"`
}

type fileJob struct {
	Name   string            `yaml:"name"`
	RunsOn string            `yaml:"runs-on"`
	Env    map[string]string `yaml:"env"`
	Steps  []fileStep        `yaml:"steps"`
}

type fileStep struct {
	Name string            `yaml:"name"`
	Uses string            `yaml:"uses"`
	Run  string            `yaml:"run"`
	With map[string]string `yaml:"with"`
	Env  map[string]string `yaml:"env"`
	If   string            `yaml:"if"`
}

// onSpec accepts the three shapes workflow files use for triggers:
// a bare event name, a list of event names, or a map of event name to
// filter block.
type onSpec struct {
	Push         bool
	PushBranches []string
}

func (o *onSpec) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var ev string
		if err := node.Decode(&ev); err != nil {
			return err
		}
		o.Push = ev == "push"
		return nil

	case yaml.SequenceNode:
		var evs []string
		if err := node.Decode(&evs); err != nil {
			return err
		}
		for _, ev := range evs {
			if ev == "push" {
				o.Push = true
			}
		}
		return nil

	case yaml.MappingNode:
		var m map[string]struct {
			Branches []string `yaml:"branches"`
		}
		if err := node.Decode(&m); err != nil {
			return err
		}
		if f, ok := m["push"]; ok {
			o.Push = true
			o.PushBranches = f.Branches
		}
		return nil
	}

	return fmt.Errorf("on: unsupported YAML node kind %d", node.Kind)
}

// Parse decodes and validates one workflow document. source is recorded on
// the workflow for reporting; it is not read from.
func Parse(b []byte, source string) (domain.Workflow, error) {
	var fw fileWorkflow

	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&fw); err != nil {
		return domain.Workflow{}, fmt.Errorf("%s: %w", source, err)
	}

	wf := domain.Workflow{
		Name:   fw.Name,
		Source: source,
	}
	if wf.Name == "" {
		wf.Name = strings.TrimSuffix(filepath.Base(source), filepath.Ext(source))
	}

	if fw.On.Push {
		wf.Trigger.Push = &domain.PushFilter{Branches: fw.On.PushBranches}
	}

	if len(fw.Jobs) == 0 {
		return domain.Workflow{}, fmt.Errorf("%s: workflow has no jobs", source)
	}
	if len(fw.Jobs) > 1 {
		return domain.Workflow{}, fmt.Errorf("%s: workflow declares %d jobs, exactly one is supported", source, len(fw.Jobs))
	}

	for id, fj := range fw.Jobs {
		job := domain.Job{
			ID:     id,
			Name:   fj.Name,
			RunsOn: fj.RunsOn,
			Env:    fj.Env,
		}
		if len(fj.Steps) == 0 {
			return domain.Workflow{}, fmt.Errorf("%s: job %q has no steps", source, id)
		}
		for i, fs := range fj.Steps {
			if fs.Uses != "" && fs.Run != "" {
				return domain.Workflow{}, fmt.Errorf("%s: job %q step %d sets both uses and run", source, id, i+1)
			}
			if fs.Uses == "" && fs.Run == "" {
				return domain.Workflow{}, fmt.Errorf("%s: job %q step %d sets neither uses nor run", source, id, i+1)
			}
			if fs.Run != "" && len(fs.With) > 0 {
				return domain.Workflow{}, fmt.Errorf("%s: job %q step %d: with requires uses", source, id, i+1)
			}
			job.Steps = append(job.Steps, domain.Step{
				Name: fs.Name,
				Uses: fs.Uses,
				Run:  fs.Run,
				With: fs.With,
				Env:  fs.Env,
				If:   fs.If,
			})
		}
		wf.Job = job
	}

	return wf, nil
}

func ParseFile(path string) (domain.Workflow, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return domain.Workflow{}, err
	}
	return Parse(b, path)
}

// ParseDir loads every *.yml / *.yaml file directly under dir, in name
// order. A missing dir is not an error; an invalid file is.
func ParseDir(dir string) ([]domain.Workflow, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		if ext == ".yml" || ext == ".yaml" {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var out []domain.Workflow
	for _, name := range names {
		wf, err := ParseFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		out = append(out, wf)
	}
	return out, nil
}
