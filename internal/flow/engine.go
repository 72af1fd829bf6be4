// Package flow interprets action lists from configuration.
//
// Each list element is a single-key mapping naming an action type. The engine
// parses it into one of a closed set of actions through a static constructor
// table, gathers its arguments through the resolver and evaluator, and
// performs it. Lists run strictly in order. A failing action is logged with
// its execution path and the next sibling runs; only persistence failures
// unwind the whole invocation.
package flow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/BTreeMap/ScriptCord/internal/expression"
	"github.com/BTreeMap/ScriptCord/internal/metrics"
	"github.com/BTreeMap/ScriptCord/internal/models"
	"github.com/BTreeMap/ScriptCord/internal/platform"
	"github.com/BTreeMap/ScriptCord/internal/resolver"
	"github.com/BTreeMap/ScriptCord/internal/store"
)

// Opts holds the collaborators of an Engine.
type Opts struct {
	Client    platform.Client
	Evaluator *expression.Evaluator
	State     *store.State
	Registry  *Registry
	Metrics   *metrics.Metrics
	Root      map[string]any
	Fatal     func(error)
	Now       func() time.Time
}

// Option is a functional option for configuring an Engine.
type Option func(*Opts)

// WithClient sets the platform client.
func WithClient(c platform.Client) Option {
	return func(o *Opts) { o.Client = c }
}

// WithEvaluator sets the expression evaluator.
func WithEvaluator(e *expression.Evaluator) Option {
	return func(o *Opts) { o.Evaluator = e }
}

// WithState sets the persisted state.
func WithState(s *store.State) Option {
	return func(o *Opts) { o.State = s }
}

// WithRegistry sets the interaction registry.
func WithRegistry(r *Registry) Option {
	return func(o *Opts) { o.Registry = r }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Opts) { o.Metrics = m }
}

// WithRoot sets the top-level configuration, consulted for the fallback
// "on interaction" list.
func WithRoot(root map[string]any) Option {
	return func(o *Opts) { o.Root = root }
}

// WithFatalHandler sets the function called once on the first persistence
// failure.
func WithFatalHandler(fn func(error)) Option {
	return func(o *Opts) { o.Fatal = fn }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *Opts) { o.Now = now }
}

// Engine executes action lists.
type Engine struct {
	client   platform.Client
	eval     *expression.Evaluator
	resolver *resolver.Resolver
	state    *store.State
	registry *Registry
	metrics  *metrics.Metrics
	root     map[string]any
	now      func() time.Time

	fatalOnce sync.Once
	fatalFn   func(error)
}

// NewEngine creates an Engine. Client, Evaluator and State are required.
func NewEngine(opts ...Option) *Engine {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Evaluator == nil {
		cfg.Evaluator = expression.NewEvaluator()
	}
	if cfg.Registry == nil {
		cfg.Registry = NewRegistry()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Fatal == nil {
		cfg.Fatal = func(err error) {
			slog.Error("Engine: persistence failure", "error", err)
		}
	}
	return &Engine{
		client:   cfg.Client,
		eval:     cfg.Evaluator,
		resolver: resolver.New(cfg.Client, cfg.Evaluator),
		state:    cfg.State,
		registry: cfg.Registry,
		metrics:  cfg.Metrics,
		root:     cfg.Root,
		now:      cfg.Now,
		fatalFn:  cfg.Fatal,
	}
}

// Registry returns the interaction registry.
func (e *Engine) Registry() *Registry {
	return e.registry
}

// Resolver returns the entity resolver.
func (e *Engine) Resolver() *resolver.Resolver {
	return e.resolver
}

func (e *Engine) fatal(err error) {
	e.fatalOnce.Do(func() { e.fatalFn(err) })
}

// RunList runs the action list stored under key (or its underscored spelling)
// in lookup. A single mapping is treated as a one-element list. The returned
// error is non-nil only for persistence failures.
func (e *Engine) RunList(ctx context.Context, key string, lookup map[string]any, inv *Invocation, trace models.ExecutionPath) error {
	raw, ok := models.Lookup(lookup, key)
	if !ok || raw == nil {
		return nil
	}
	return e.runDefs(ctx, raw, trace.Child(key), inv)
}

// runDefs runs raw as an action list whose elements are children of listPath.
func (e *Engine) runDefs(ctx context.Context, raw any, listPath models.ExecutionPath, inv *Invocation) error {
	if inv == nil {
		inv = &Invocation{}
	}
	if raw == nil {
		return nil
	}
	var defs []any
	if m, isMap := models.AsMap(raw); isMap {
		defs = []any{m}
	} else if l, isList := models.AsList(raw); isList {
		defs = l
	} else {
		slog.Error("Engine.runDefs: action list is malformed", "error", models.Configf(listPath, "expected a list of actions, got %T", raw))
		return nil
	}

	counter := models.SiblingCounter{}
	for _, def := range defs {
		if err := ctx.Err(); err != nil {
			slog.Warn("Engine.runDefs: context done, stopping list", "path", listPath, "error", err)
			return nil
		}
		if err := e.runOne(ctx, def, listPath, counter, inv); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) runOne(ctx context.Context, def any, listPath models.ExecutionPath, counter models.SiblingCounter, inv *Invocation) error {
	name, payload, err := models.DefinitionKey(def)
	if err != nil {
		slog.Error("Engine.runOne: invalid action", "error", &models.ConfigurationError{Path: listPath.Child("?"), Err: err})
		e.metrics.ObserveAction("invalid", metrics.OutcomeError)
		return nil
	}
	path := listPath.Child(name).Occurrence(counter.Next(name))

	kind := models.NormalizeKey(name)
	ctor, ok := constructors[kind]
	if !ok {
		slog.Error("Engine.runOne: unknown action", "error", models.Configf(path, "'%s' is not a recognised action", name))
		e.metrics.ObserveAction("unknown", metrics.OutcomeError)
		return nil
	}

	a := ctor(e.newBase(ctx, kind, name, path, payload, inv))
	return e.execute(ctx, a)
}

func (e *Engine) execute(ctx context.Context, a Action) error {
	b := a.common()
	slog.Info("Engine.execute: executing", "path", b.path, "kind", b.kind)

	err := a.gather(ctx, e)
	effect := false
	if err == nil {
		effect, err = a.perform(ctx, e)
	}

	kind := canonicalKind(b.kind)
	switch {
	case err == nil && effect:
		e.metrics.ObserveAction(kind, metrics.OutcomeEffect)
	case err == nil:
		slog.Debug("Engine.execute: no effect", "path", b.path)
		e.metrics.ObserveAction(kind, metrics.OutcomeNoop)
	case errors.Is(err, models.ErrPersistence):
		e.metrics.ObserveAction(kind, metrics.OutcomeError)
		slog.Error("Engine.execute: persistence failure", "path", b.path, "error", err)
		e.fatal(err)
		return err
	case models.IsConfigurationError(err):
		e.metrics.ObserveAction(kind, metrics.OutcomeError)
		slog.Error("Engine.execute: configuration error", "error", err)
	case errors.Is(err, platform.ErrNotFound):
		e.metrics.ObserveAction(kind, metrics.OutcomeNoop)
		slog.Warn("Engine.execute: target no longer exists", "path", b.path, "error", err)
	default:
		e.metrics.ObserveAction(kind, metrics.OutcomeError)
		slog.Error("Engine.execute: action failed", "path", b.path, "error", err)
	}
	return nil
}

// newBase captures the invocation context for one action. A member user
// implies its guild when none is given.
func (e *Engine) newBase(ctx context.Context, kind, name string, path models.ExecutionPath, payload any, inv *Invocation) *base {
	b := &base{
		kind:    kind,
		name:    name,
		path:    path,
		payload: payload,
		inv:     inv,
		channel: inv.Channel,
		user:    inv.User,
		guild:   inv.Guild,
	}
	if b.guild == nil && b.user.IsMember() && e.client != nil {
		if g, err := e.client.Guild(ctx, b.user.GuildID); err == nil {
			b.guild = g
			slog.Debug("Engine.newBase: assigned guild through user", "path", path)
		}
	}
	return b
}
