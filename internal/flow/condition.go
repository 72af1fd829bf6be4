package flow

import (
	"context"
	"log/slog"

	"github.com/BTreeMap/ScriptCord/internal/models"
)

// conditionAction runs do when if holds and else otherwise. Both branches
// run under "<path> -> do".
type conditionAction struct {
	*base

	cond     string
	branches map[string]any
}

func (a *conditionAction) gather(context.Context, *Engine) error {
	m, err := a.fields()
	if err != nil {
		return err
	}
	v, ok := models.Lookup(m, "if")
	if !ok || v == nil {
		return a.configf("condition needs an 'if' expression")
	}
	a.cond = stringField(m, "if")
	a.branches = m
	return nil
}

func (a *conditionAction) perform(ctx context.Context, e *Engine) (bool, error) {
	branch := "else"
	if e.eval.EvaluateBool(a.path, a.cond, a.scope()) {
		branch = "do"
	}
	list, ok := models.Lookup(a.branches, branch)
	if !ok || list == nil {
		slog.Debug("conditionAction.perform: branch is empty", "path", a.path, "branch", branch)
		return false, nil
	}
	if err := e.runDefs(ctx, list, a.path.Child("do"), a.child()); err != nil {
		return true, err
	}
	return true, nil
}
