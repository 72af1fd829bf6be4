// Package bot wires gateway events and the periodic loop to the action engine.
//
// Each platform event runs the matching top-level list of the configuration
// ("on connected", "on message", "on user joined", "on user left"), and
// component interactions are routed to the interaction registry. The loop
// section runs on a fixed interval, followed by the due-timer check.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/BTreeMap/ScriptCord/internal/config"
	"github.com/BTreeMap/ScriptCord/internal/flow"
	"github.com/BTreeMap/ScriptCord/internal/metrics"
	"github.com/BTreeMap/ScriptCord/internal/platform"
	"github.com/BTreeMap/ScriptCord/internal/scheduler"
)

// Top-level configuration keys bound to events.
const (
	KeyConnected  = "on connected"
	KeyMessage    = "on message"
	KeyUserJoined = "on user joined"
	KeyUserLeft   = "on user left"
	KeyLoop       = "loop"
)

// Opts holds the collaborators of a Bot.
type Opts struct {
	Client    platform.Client
	Engine    *flow.Engine
	Config    *config.Config
	Scheduler *scheduler.Scheduler
	Metrics   *metrics.Metrics
}

// Option is a functional option for configuring a Bot.
type Option func(*Opts)

// WithClient sets the platform client.
func WithClient(c platform.Client) Option {
	return func(o *Opts) { o.Client = c }
}

// WithEngine sets the action engine.
func WithEngine(e *flow.Engine) Option {
	return func(o *Opts) { o.Engine = e }
}

// WithConfig sets the parsed configuration.
func WithConfig(c *config.Config) Option {
	return func(o *Opts) { o.Config = c }
}

// WithScheduler sets the scheduler that drives the loop. When unset the Bot
// creates its own.
func WithScheduler(s *scheduler.Scheduler) Option {
	return func(o *Opts) { o.Scheduler = s }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Opts) { o.Metrics = m }
}

// Bot dispatches platform events to the engine.
type Bot struct {
	client    platform.Client
	engine    *flow.Engine
	config    *config.Config
	scheduler *scheduler.Scheduler
	metrics   *metrics.Metrics

	loop   *config.Loop
	period time.Duration

	loopOnce sync.Once
	loopErr  error
	// ticking keeps the first tick and scheduled ticks from overlapping
	ticking sync.Mutex
}

var _ platform.EventHandler = (*Bot)(nil)

// New creates a Bot. Client, Engine and Config are required; the loop
// section is validated here so a bad interval fails at startup.
func New(opts ...Option) (*Bot, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Client == nil {
		return nil, errors.New("bot: client is required")
	}
	if cfg.Engine == nil {
		return nil, errors.New("bot: engine is required")
	}
	if cfg.Config == nil {
		return nil, errors.New("bot: config is required")
	}

	loop, err := cfg.Config.Loop()
	if err != nil {
		return nil, fmt.Errorf("bot: %w", err)
	}
	period, err := loop.Period()
	if err != nil {
		return nil, fmt.Errorf("bot: %w", err)
	}
	if cfg.Scheduler == nil {
		cfg.Scheduler = scheduler.NewScheduler()
	}

	cfg.Metrics.TrackBindings(cfg.Engine.Registry().Len)

	return &Bot{
		client:    cfg.Client,
		engine:    cfg.Engine,
		config:    cfg.Config,
		scheduler: cfg.Scheduler,
		metrics:   cfg.Metrics,
		loop:      loop,
		period:    period,
	}, nil
}

// Period returns the loop interval.
func (b *Bot) Period() time.Duration {
	return b.period
}

// Connected runs "on connected" and starts the loop. Reconnects run the list
// again but never start a second loop.
func (b *Bot) Connected(ctx context.Context) {
	slog.Info("Bot.Connected: ready")
	if b.config.Has(KeyConnected) {
		b.run(ctx, KeyConnected, &flow.Invocation{})
	}
	if err := b.StartLoop(ctx); err != nil {
		slog.Error("Bot.Connected: failed to start loop", "error", err)
	}
}

// MessageCreated runs "on message" unless the bot wrote the message itself.
func (b *Bot) MessageCreated(ctx context.Context, msg *platform.Message) {
	if msg == nil || !b.config.Has(KeyMessage) {
		return
	}
	if self := b.client.Self(); self != nil && msg.Author != nil && msg.Author.ID == self.ID {
		return
	}
	slog.Info("Bot.MessageCreated: message received", "author", msg.Author, "channel", msg.ChannelID)
	slog.Debug("Bot.MessageCreated: message content is not logged")

	inv := b.engine.Resolve(ctx, msg.ChannelID, "", msg.GuildID)
	inv.User = msg.Author
	b.run(ctx, KeyMessage, inv)
}

// MemberJoined runs "on user joined" with the member and its guild.
func (b *Bot) MemberJoined(ctx context.Context, member *platform.User) {
	b.memberEvent(ctx, KeyUserJoined, member)
}

// MemberLeft runs "on user left" with the member and its guild.
func (b *Bot) MemberLeft(ctx context.Context, member *platform.User) {
	b.memberEvent(ctx, KeyUserLeft, member)
}

func (b *Bot) memberEvent(ctx context.Context, key string, member *platform.User) {
	if member == nil || !b.config.Has(key) {
		return
	}
	inv := b.engine.Resolve(ctx, "", "", member.GuildID)
	inv.User = member
	guild := ""
	if inv.Guild != nil {
		guild = inv.Guild.Name
	}
	slog.Info("Bot.memberEvent: member event", "event", key, "guild", guild, "user", member)
	b.run(ctx, key, inv)
}

// InteractionCreated hands a component interaction to the registry.
func (b *Bot) InteractionCreated(ctx context.Context, i *platform.Interaction) {
	if i == nil {
		return
	}
	if err := b.engine.HandleInteraction(ctx, i); err != nil {
		slog.Error("Bot.InteractionCreated: interaction failed", "custom_id", i.CustomID, "error", err)
	}
}

func (b *Bot) run(ctx context.Context, key string, inv *flow.Invocation) {
	if err := b.engine.RunList(ctx, key, b.config.Root(), inv, ""); err != nil {
		slog.Error("Bot.run: list aborted", "event", key, "error", err)
	}
}

// StartLoop runs the first tick right away and then schedules Tick every
// Period. Only the first call does anything.
func (b *Bot) StartLoop(ctx context.Context) error {
	b.loopOnce.Do(func() {
		slog.Info("Bot.StartLoop: starting loop", "interval", b.period)
		b.runTick(ctx)
		b.loopErr = b.scheduler.Every(b.period, func() { b.runTick(ctx) })
	})
	return b.loopErr
}

func (b *Bot) runTick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if !b.ticking.TryLock() {
		slog.Debug("Bot.runTick: previous tick still running, skipping")
		return
	}
	defer b.ticking.Unlock()
	if err := b.Tick(ctx); err != nil {
		slog.Error("Bot.runTick: tick failed", "error", err)
	}
}

// Tick runs the loop's "do" list and then every due timer. Only persistence
// failures are returned.
func (b *Bot) Tick(ctx context.Context) error {
	defer b.metrics.LoopTick()
	if b.loop != nil {
		slog.Debug("Bot.Tick: executing loop functions")
		if err := b.engine.RunList(ctx, "do", b.loop.Lookup(), &flow.Invocation{}, KeyLoop); err != nil {
			return err
		}
	}
	slog.Debug("Bot.Tick: checking timers")
	if _, err := b.engine.RunDueTimers(ctx); err != nil {
		return err
	}
	return nil
}

// Stop halts the loop and waits for a running tick.
func (b *Bot) Stop() {
	b.scheduler.Stop()
}
