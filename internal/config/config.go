// Package config loads the interpreter's YAML configuration.
//
// The configuration directory is scanned for the first non-empty *.yml or
// *.yaml file in name order. Its top level must be a mapping; sections are
// looked up by their spaced or underscored spelling.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"

	"github.com/BTreeMap/ScriptCord/internal/models"
	"github.com/BTreeMap/ScriptCord/internal/util"
)

// DefaultLoopInterval is used when the loop section names no interval.
const DefaultLoopInterval = time.Minute

// ErrNoConfig is returned when the directory holds no usable YAML file.
var ErrNoConfig = errors.New("no configuration file found")

// Config is a parsed configuration document.
type Config struct {
	Path string
	root map[string]any
}

// Discover returns the first non-empty YAML file in dir.
func Discover(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("read config dir %s: %w", dir, err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext == ".yml" || ext == ".yaml" {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	for _, name := range names {
		path := filepath.Join(dir, name)
		info, err := os.Stat(path)
		if err != nil {
			slog.Warn("config.Discover: cannot stat file", "path", path, "error", err)
			continue
		}
		if info.Size() > 0 {
			slog.Debug("config.Discover: found configuration", "path", path)
			return path, nil
		}
	}
	return "", fmt.Errorf("%w in %s", ErrNoConfig, dir)
}

// Load discovers and parses the configuration in dir.
func Load(dir string) (*Config, error) {
	path, err := Discover(dir)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.Path = path
	slog.Info("config.Load: configuration loaded", "path", path, "sections", len(cfg.root))
	return cfg, nil
}

// Parse decodes a YAML document. Duplicate keys are rejected.
func Parse(data []byte) (*Config, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, errors.New("configuration is empty")
	}
	root, ok := models.AsMap(doc)
	if !ok {
		return nil, fmt.Errorf("configuration must be a mapping, got %T", doc)
	}
	return &Config{root: root}, nil
}

// Root returns the top-level mapping.
func (c *Config) Root() map[string]any {
	return c.root
}

// Section returns a top-level value by name.
func (c *Config) Section(name string) (any, bool) {
	return models.Lookup(c.root, name)
}

// Has reports whether a section is present and not null.
func (c *Config) Has(name string) bool {
	v, ok := c.Section(name)
	return ok && v != nil
}

// Variables returns the declared variables and their initial values.
func (c *Config) Variables() (map[string]any, error) {
	v, ok := c.Section("variables")
	if !ok || v == nil {
		return nil, nil
	}
	m, ok := models.AsMap(v)
	if !ok {
		return nil, fmt.Errorf("variables must be a mapping, got %T", v)
	}
	return m, nil
}

// Intents returns the gateway intent names to enable on top of the defaults.
func (c *Config) Intents() ([]string, error) {
	v, ok := c.Section("intents")
	if !ok || v == nil {
		return nil, nil
	}
	list, ok := models.AsList(v)
	if !ok {
		return nil, fmt.Errorf("intents must be a list of strings, got %T", v)
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("intents must be strings, got %T", item)
		}
		out = append(out, s)
	}
	return out, nil
}

// Loop is the "loop" section.
type Loop struct {
	Do       any `mapstructure:"do"`
	Time     any `mapstructure:"time"`
	Interval any `mapstructure:"interval"`
	Every    any `mapstructure:"every"`
	Wait     any `mapstructure:"wait"`
	Delay    any `mapstructure:"delay"`
}

// Loop decodes the loop section. A missing section yields nil.
func (c *Config) Loop() (*Loop, error) {
	v, ok := c.Section("loop")
	if !ok || v == nil {
		return nil, nil
	}
	m, ok := models.AsMap(v)
	if !ok {
		return nil, fmt.Errorf("loop must be a mapping, got %T", v)
	}
	var loop Loop
	if err := mapstructure.Decode(m, &loop); err != nil {
		return nil, fmt.Errorf("decode loop: %w", err)
	}
	return &loop, nil
}

// Lookup exposes the loop section to the action engine.
func (l *Loop) Lookup() map[string]any {
	if l == nil {
		return nil
	}
	return map[string]any{"do": l.Do}
}

// Period returns the first interval given among time, interval, every, wait
// and delay, or DefaultLoopInterval when none is.
func (l *Loop) Period() (time.Duration, error) {
	if l == nil {
		return DefaultLoopInterval, nil
	}
	for _, candidate := range []struct {
		key   string
		value any
	}{
		{"time", l.Time},
		{"interval", l.Interval},
		{"every", l.Every},
		{"wait", l.Wait},
		{"delay", l.Delay},
	} {
		if candidate.value == nil {
			continue
		}
		d := toDuration(candidate.value)
		if d <= 0 {
			return 0, fmt.Errorf("loop %s must be a positive duration, got %v", candidate.key, candidate.value)
		}
		slog.Info("Loop.Period: interval set", "key", candidate.key, "interval", d)
		return d, nil
	}
	return DefaultLoopInterval, nil
}

func toDuration(v any) time.Duration {
	switch d := v.(type) {
	case int:
		return time.Duration(d) * time.Second
	case float64:
		return time.Duration(d * float64(time.Second))
	case string:
		return util.ParseDuration(d)
	default:
		return 0
	}
}
