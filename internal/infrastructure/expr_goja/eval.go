// Package expr_goja evaluates ${{ ... }} workflow expressions as JavaScript.
package expr_goja

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/dop251/goja"
	"github.com/pipelet/pipelet/internal/domain"
)

var (
	spanRe          = regexp.MustCompile(`(?s)\$\{\{(.*?)\}\}`)
	secretDotRe     = regexp.MustCompile(`secrets\.([A-Za-z_][A-Za-z0-9_]*)`)
	secretBracketRe = regexp.MustCompile(`secrets\[['"]([^'"]+)['"]\]`)
)

type Evaluator struct{}

func New() *Evaluator { return &Evaluator{} }

// Interpolate replaces every ${{ expr }} span in s with the stringified
// result of evaluating expr. Text outside spans passes through untouched.
func (e *Evaluator) Interpolate(s string, env domain.ExprEnv) (string, error) {
	idxs := spanRe.FindAllStringSubmatchIndex(s, -1)
	if len(idxs) == 0 {
		return s, nil
	}

	var b strings.Builder
	last := 0
	for _, m := range idxs {
		b.WriteString(s[last:m[0]])
		v, err := e.eval(s[m[2]:m[3]], env)
		if err != nil {
			return "", err
		}
		b.WriteString(stringify(v))
		last = m[1]
	}
	b.WriteString(s[last:])
	return b.String(), nil
}

// Condition evaluates an if expression to a boolean. The surrounding
// ${{ }} wrapper is optional, as it is in workflow files.
func (e *Evaluator) Condition(expr string, env domain.ExprEnv) (bool, error) {
	src := strings.TrimSpace(expr)
	if strings.HasPrefix(src, "${{") && strings.HasSuffix(src, "}}") {
		src = src[3 : len(src)-2]
	}
	v, err := e.eval(src, env)
	if err != nil {
		return false, err
	}
	return v.ToBoolean(), nil
}

// SecretRefs returns the names of secrets referenced by s, in order of
// first appearance. Both secrets.NAME and secrets['NAME'] forms count.
func (e *Evaluator) SecretRefs(s string) []string {
	var names []string
	seen := map[string]bool{}
	add := func(matches [][]string) {
		for _, m := range matches {
			if !seen[m[1]] {
				seen[m[1]] = true
				names = append(names, m[1])
			}
		}
	}
	add(secretDotRe.FindAllStringSubmatch(s, -1))
	add(secretBracketRe.FindAllStringSubmatch(s, -1))
	return names
}

func (e *Evaluator) eval(expr string, env domain.ExprEnv) (goja.Value, error) {
	vm := goja.New()

	github := env.GitHub
	if github == nil {
		github = map[string]any{}
	}
	vars := env.Env
	if vars == nil {
		vars = map[string]string{}
	}
	secrets := env.Secrets
	if secrets == nil {
		secrets = map[string]string{}
	}

	if err := vm.Set("github", github); err != nil {
		return nil, fmt.Errorf("set github context: %w", err)
	}
	if err := vm.Set("env", vars); err != nil {
		return nil, fmt.Errorf("set env context: %w", err)
	}
	if err := vm.Set("secrets", secrets); err != nil {
		return nil, fmt.Errorf("set secrets context: %w", err)
	}

	v, err := vm.RunString("(function() {\n return " + expr + "\n})()")
	if err != nil {
		return nil, fmt.Errorf("evaluate %q: %w", strings.TrimSpace(expr), err)
	}
	return v, nil
}

func stringify(v goja.Value) string {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return ""
	}
	return fmt.Sprintf("%v", v.Export())
}
