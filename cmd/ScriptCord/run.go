package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/BTreeMap/ScriptCord/internal/api"
	"github.com/BTreeMap/ScriptCord/internal/bot"
	"github.com/BTreeMap/ScriptCord/internal/config"
	"github.com/BTreeMap/ScriptCord/internal/discord"
	"github.com/BTreeMap/ScriptCord/internal/expression"
	"github.com/BTreeMap/ScriptCord/internal/flow"
	"github.com/BTreeMap/ScriptCord/internal/lockfile"
	"github.com/BTreeMap/ScriptCord/internal/metrics"
	"github.com/BTreeMap/ScriptCord/internal/store"
	"github.com/BTreeMap/ScriptCord/internal/variables"
)

// bootstrap holds what the interpreter needs before a platform client exists.
type bootstrap struct {
	config    *config.Config
	variables *variables.Store
	intents   []string
}

// loadBootstrap reads and validates the bot configuration.
func loadBootstrap(settings Config) (*bootstrap, error) {
	if err := validate(settings); err != nil {
		return nil, err
	}
	cfg, err := config.Load(settings.ConfigDir)
	if err != nil {
		return nil, err
	}
	slog.Info("Loaded configuration", "path", cfg.Path)

	declared, err := cfg.Variables()
	if err != nil {
		return nil, err
	}
	vars, err := variables.New(declared)
	if err != nil {
		return nil, err
	}
	intents, err := cfg.Intents()
	if err != nil {
		return nil, err
	}
	if _, err := discord.ParseIntents(intents); err != nil {
		return nil, fmt.Errorf("intents: %w", err)
	}
	slog.Debug("Configuration validated", "variables", vars.Len(), "intents", intents)
	return &bootstrap{config: cfg, variables: vars, intents: intents}, nil
}

// run wires every module and blocks until ctx ends or persistence fails.
func run(ctx context.Context, settings Config) error {
	boot, err := loadBootstrap(settings)
	if err != nil {
		return err
	}

	lock, err := lockfile.Acquire(settings.StateDir, boot.config.Path)
	if err != nil {
		return err
	}
	defer lock.Release()

	backend, err := store.Open(buildStoreOptions(settings)...)
	if err != nil {
		return err
	}
	state := store.NewState(backend)
	defer func() {
		if err := state.Close(); err != nil {
			slog.Error("Failed to close state backend", "error", err)
		}
	}()

	discordOpts := []discord.Option{discord.WithToken(settings.Token), discord.WithIntents(boot.intents)}
	if settings.InviteQR {
		discordOpts = append(discordOpts, discord.WithInviteQR(os.Stdout))
	}
	client, err := discord.NewClient(discordOpts...)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		fatalMu  sync.Mutex
		fatalErr error
	)
	onFatal := func(err error) {
		slog.Error("Persistence failure, shutting down", "error", err)
		fatalMu.Lock()
		fatalErr = err
		fatalMu.Unlock()
		cancel()
	}

	m := metrics.New()
	engine := flow.NewEngine(
		flow.WithClient(client),
		flow.WithEvaluator(expression.NewEvaluator(expression.WithVariables(boot.variables))),
		flow.WithState(state),
		flow.WithMetrics(m),
		flow.WithRoot(boot.config.Root()),
		flow.WithFatalHandler(onFatal),
	)

	b, err := bot.New(
		bot.WithClient(client),
		bot.WithEngine(engine),
		bot.WithConfig(boot.config),
		bot.WithMetrics(m),
	)
	if err != nil {
		return err
	}
	defer b.Stop()

	if settings.StatusAddr != "" {
		srv := api.NewServer(
			api.WithAddr(settings.StatusAddr),
			api.WithTimers(state),
			api.WithBindings(engine.Registry()),
			api.WithVariables(boot.variables),
			api.WithMetrics(m),
		)
		go func() {
			if err := srv.Run(ctx); err != nil {
				slog.Error("Status API stopped", "error", err)
			}
		}()
	}

	client.SetHandler(b)
	if err := client.Open(ctx); err != nil {
		return err
	}
	defer client.Close()

	slog.Info("ScriptCord running", "loop_interval", b.Period())
	<-ctx.Done()
	slog.Info("Shutting down")

	fatalMu.Lock()
	defer fatalMu.Unlock()
	return fatalErr
}
