package flow

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/BTreeMap/ScriptCord/internal/models"
	"github.com/BTreeMap/ScriptCord/internal/variables"
)

// setVariableAction assigns declared variables. With evaluate: true every
// value is an expression; otherwise values are assigned as written.
type setVariableAction struct {
	*base

	evaluate    bool
	assignments map[string]any
}

func (a *setVariableAction) gather(_ context.Context, e *Engine) error {
	m, err := a.fields()
	if err != nil {
		return err
	}
	vars := e.eval.Variables()
	if vars == nil {
		return a.configf("no variables are declared")
	}
	a.evaluate = boolField(m, "evaluate", false)
	a.bind("evaluate", a.evaluate)
	a.assignments = make(map[string]any, len(m))
	for k, v := range m {
		if k == "evaluate" {
			continue
		}
		name := variables.Normalize(k)
		if !vars.Declared(name) {
			return a.configf("variable '%s' is not declared", k)
		}
		a.assignments[name] = v
	}
	return nil
}

func (a *setVariableAction) perform(_ context.Context, e *Engine) (bool, error) {
	names := make([]string, 0, len(a.assignments))
	for name := range a.assignments {
		names = append(names, name)
	}
	sort.Strings(names)

	vars := e.eval.Variables()
	changed := false
	for _, name := range names {
		value := a.assignments[name]
		if a.evaluate {
			src, ok := value.(string)
			if !ok {
				src = fmt.Sprint(value)
			}
			v, ok := e.eval.Evaluate(a.path, src, a.scope())
			if !ok {
				slog.Warn("setVariableAction.perform: keeping previous value", "path", a.path, "name", name)
				continue
			}
			value = v
		}
		if err := vars.Set(name, value); err != nil {
			return changed, &models.ConfigurationError{Path: a.path, Err: err}
		}
		slog.Debug("setVariableAction.perform: variable set", "path", a.path, "name", name)
		changed = true
	}
	return changed, nil
}
