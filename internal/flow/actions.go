package flow

import (
	"context"
	"fmt"

	"github.com/BTreeMap/ScriptCord/internal/expression"
	"github.com/BTreeMap/ScriptCord/internal/models"
	"github.com/BTreeMap/ScriptCord/internal/platform"
	"github.com/BTreeMap/ScriptCord/internal/resolver"
)

// Action is one parsed list element.
type Action interface {
	common() *base
	// gather resolves the payload into concrete arguments.
	gather(ctx context.Context, e *Engine) error
	// perform applies the action and reports whether it changed anything.
	perform(ctx context.Context, e *Engine) (bool, error)
}

// Action kinds as they appear in metrics.
const (
	KindAddRoles      = "add_roles"
	KindRemoveRoles   = "remove_roles"
	KindUpdateRoles   = "update_roles"
	KindSetVariable   = "set_variable"
	KindSendMessage   = "send_message"
	KindUpdateMessage = "update_message"
	KindRespond       = "response"
	KindWait          = "wait"
	KindCondition     = "condition"
	KindDefer         = "defer"
)

var constructors = map[string]func(*base) Action{
	"add_role":       func(b *base) Action { return &rolesAction{base: b, remove: false} },
	"add_roles":      func(b *base) Action { return &rolesAction{base: b, remove: false} },
	"remove_role":    func(b *base) Action { return &rolesAction{base: b, remove: true} },
	"remove_roles":   func(b *base) Action { return &rolesAction{base: b, remove: true} },
	"update_roles":   func(b *base) Action { return &updateRolesAction{base: b} },
	"set_variable":   func(b *base) Action { return &setVariableAction{base: b} },
	"set_variables":  func(b *base) Action { return &setVariableAction{base: b} },
	"send_message":   func(b *base) Action { return &messageAction{base: b, mode: modeSend} },
	"update_message": func(b *base) Action { return &messageAction{base: b, mode: modeUpdate} },
	"response":       func(b *base) Action { return &messageAction{base: b, mode: modeRespond} },
	"wait":           func(b *base) Action { return &waitAction{base: b} },
	"condition":      func(b *base) Action { return &conditionAction{base: b} },
	"defer":          func(b *base) Action { return &deferAction{base: b} },
}

var aliases = map[string]string{
	"add_role":      KindAddRoles,
	"remove_role":   KindRemoveRoles,
	"set_variables": KindSetVariable,
}

func canonicalKind(kind string) string {
	if k, ok := aliases[kind]; ok {
		return k
	}
	return kind
}

// IsAction reports whether name is a recognised action type.
func IsAction(name string) bool {
	_, ok := constructors[models.NormalizeKey(name)]
	return ok
}

// base carries what every action shares: its position in the configuration
// and a private copy of the invocation context.
type base struct {
	kind    string
	name    string
	path    models.ExecutionPath
	payload any
	inv     *Invocation

	channel *platform.Channel
	user    *platform.User
	guild   *platform.Guild

	// bound holds the fields gathered so far, visible to later expressions.
	bound map[string]any
}

func (b *base) common() *base { return b }

// locals exposes the action's context to expressions. Absent entities bind to
// nil so expressions can test for them.
func (b *base) locals() map[string]any {
	locals := make(map[string]any, len(b.bound)+4)
	for k, v := range b.bound {
		locals[k] = v
	}
	locals["channel"] = nil
	locals["user"] = nil
	locals["guild"] = nil
	locals["execution_path"] = b.path.String()
	if b.channel != nil {
		locals["channel"] = b.channel
	}
	if b.user != nil {
		locals["user"] = b.user
	}
	if b.guild != nil {
		locals["guild"] = b.guild
	}
	return locals
}

// bind exposes a gathered field to the expressions evaluated after it.
func (b *base) bind(name string, v any) {
	if b.bound == nil {
		b.bound = map[string]any{}
	}
	b.bound[name] = v
}

func (b *base) scope() expression.Scope {
	return expression.Scope{Locals: b.locals(), Extras: b.inv.Extras}
}

func (b *base) rc() resolver.Context {
	return resolver.Context{Path: b.path, Guild: b.guild, User: b.user, Scope: b.scope()}
}

// child is the invocation handed to nested lists.
func (b *base) child() *Invocation {
	return &Invocation{
		Channel:     b.channel,
		User:        b.user,
		Guild:       b.guild,
		Extras:      b.inv.Extras,
		Interaction: b.inv.Interaction,
	}
}

// fields returns the payload as a mapping, or a ConfigurationError.
func (b *base) fields() (map[string]any, error) {
	m, ok := models.AsMap(b.payload)
	if !ok {
		return nil, models.Configf(b.path, "%s expects a mapping, got %T", b.name, b.payload)
	}
	return m, nil
}

func (b *base) configf(format string, args ...any) error {
	return models.Configf(b.path, format, args...)
}

// stringField reads an optional string field, accepting any scalar.
func stringField(m map[string]any, key string) string {
	v, ok := models.Lookup(m, key)
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// boolField reads an optional boolean field.
func boolField(m map[string]any, key string, def bool) bool {
	v, ok := models.Lookup(m, key)
	if !ok || v == nil {
		return def
	}
	return expression.Truthy(v)
}

// deferAction marks an interaction list for an early deferred response.
type deferAction struct {
	*base
}

func (a *deferAction) gather(context.Context, *Engine) error { return nil }

func (a *deferAction) perform(context.Context, *Engine) (bool, error) { return false, nil }
