// Package discord adapts discordgo to the platform interfaces.
//
// Lookups consult the gateway state cache before falling back to REST. REST
// 404 responses and state misses are reported as platform.ErrNotFound.
package discord

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/mdp/qrterminal/v3"

	"github.com/BTreeMap/ScriptCord/internal/platform"
)

// DefaultInvitePermissions is the permission integer requested by the invite
// link: manage roles, view channels, send messages, embed links, read history.
const DefaultInvitePermissions int64 = 0x10000000 | 0x400 | 0x800 | 0x4000 | 0x10000

// Opts holds configuration options for the Discord client.
type Opts struct {
	Token   string
	Intents []string
	// QRWriter, when set, receives a QR code of the bot invite link once
	// connected.
	QRWriter io.Writer
}

// Option defines a configuration option for the Discord client.
type Option func(*Opts)

// WithToken sets the bot token.
func WithToken(token string) Option {
	return func(o *Opts) {
		o.Token = token
	}
}

// WithIntents enables intents by name on top of the non-privileged defaults.
func WithIntents(names []string) Option {
	return func(o *Opts) {
		o.Intents = names
	}
}

// WithInviteQR prints the invite link as a QR code to w after login.
func WithInviteQR(w io.Writer) Option {
	return func(o *Opts) {
		o.QRWriter = w
	}
}

// Client implements platform.Client over a discordgo session.
type Client struct {
	session  *discordgo.Session
	qrWriter io.Writer

	mu      sync.RWMutex
	handler platform.EventHandler
	ctx     context.Context
}

var _ platform.Client = (*Client)(nil)

// NewClient creates a Discord client. The gateway connection is opened by
// Open.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Token == "" {
		return nil, errors.New("discord token is required")
	}
	intents, err := ParseIntents(cfg.Intents)
	if err != nil {
		return nil, err
	}
	slog.Debug("Discord NewClient options set", "intents", cfg.Intents, "qr", cfg.QRWriter != nil)

	s, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}
	s.Identify.Intents = intents
	s.StateEnabled = true
	return &Client{session: s, qrWriter: cfg.QRWriter, ctx: context.Background()}, nil
}

// SetHandler sets the receiver of gateway events. It must be called before
// Open.
func (c *Client) SetHandler(h platform.EventHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = h
}

// Open connects to the gateway. Event handlers run with ctx.
func (c *Client) Open(ctx context.Context) error {
	c.mu.Lock()
	c.ctx = ctx
	c.mu.Unlock()

	c.session.AddHandler(c.onReady)
	c.session.AddHandler(c.onMessageCreate)
	c.session.AddHandler(c.onMemberAdd)
	c.session.AddHandler(c.onMemberRemove)
	c.session.AddHandler(c.onInteraction)

	if err := c.session.Open(); err != nil {
		slog.Error("Failed to connect to Discord gateway", "error", err)
		return fmt.Errorf("failed to connect to Discord gateway: %w", err)
	}
	slog.Info("Discord client connected successfully")
	return nil
}

// Close disconnects from the gateway.
func (c *Client) Close() error {
	return c.session.Close()
}

// Self returns the bot user, or nil before the first ready event.
func (c *Client) Self() *platform.User {
	c.session.State.RLock()
	defer c.session.State.RUnlock()
	if c.session.State.User == nil {
		return nil
	}
	return toUser(c.session.State.User)
}

// InviteURL builds the OAuth2 link that adds the bot to a server.
func InviteURL(appID string, permissions int64) string {
	return fmt.Sprintf("https://discord.com/api/oauth2/authorize?client_id=%s&permissions=%d&scope=bot", appID, permissions)
}

// PrintInviteQR writes url and its QR code to w.
func PrintInviteQR(w io.Writer, url string) {
	fmt.Fprintln(w, "Invite:", url)
	qrterminal.GenerateHalfBlock(url, qrterminal.L, w)
}

func (c *Client) eventContext() (context.Context, platform.EventHandler) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ctx, c.handler
}

// classify maps state misses and REST 404s to platform.ErrNotFound.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, discordgo.ErrStateNotFound) {
		return fmt.Errorf("%w: %v", platform.ErrNotFound, err)
	}
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) && restErr.Response != nil && restErr.Response.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %v", platform.ErrNotFound, err)
	}
	return err
}
