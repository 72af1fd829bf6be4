package flow

import (
	"context"
	"maps"
	"sync"

	"github.com/BTreeMap/ScriptCord/internal/models"
	"github.com/BTreeMap/ScriptCord/internal/platform"
)

// Invocation is the context one event hands to an action list: the channel,
// invoking user and guild, plus additional bindings such as interaction
// metadata. It is never persisted.
type Invocation struct {
	Channel     *platform.Channel
	User        *platform.User
	Guild       *platform.Guild
	Extras      map[string]any
	Interaction *InteractionState
}

// WithExtras returns a copy of inv with extras merged over its own.
func (inv *Invocation) WithExtras(extras map[string]any) *Invocation {
	cp := *inv
	cp.Extras = make(map[string]any, len(inv.Extras)+len(extras))
	maps.Copy(cp.Extras, inv.Extras)
	maps.Copy(cp.Extras, extras)
	return &cp
}

// InteractionState tracks whether an interaction has been answered.
type InteractionState struct {
	*platform.Interaction

	mu        sync.Mutex
	responded bool
}

// NewInteractionState wraps i.
func NewInteractionState(i *platform.Interaction) *InteractionState {
	return &InteractionState{Interaction: i}
}

// Responded reports whether an initial response was sent.
func (s *InteractionState) Responded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.responded
}

// claim marks the interaction as responded and reports whether the caller
// won the initial response.
func (s *InteractionState) claim() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.responded {
		return false
	}
	s.responded = true
	return true
}

func (s *InteractionState) release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responded = false
}

// Resolve builds an Invocation from platform ids. Ids that no longer
// resolve leave the corresponding field empty.
func (e *Engine) Resolve(ctx context.Context, channelID, userID, guildID models.Snowflake) *Invocation {
	inv := &Invocation{}
	if guildID != "" {
		if g, err := e.client.Guild(ctx, guildID); err == nil {
			inv.Guild = g
		}
	}
	if channelID != "" {
		if c, err := e.client.Channel(ctx, channelID); err == nil {
			inv.Channel = c
		}
	}
	if userID != "" {
		if inv.Guild != nil {
			if m, err := e.client.Member(ctx, inv.Guild.ID, userID); err == nil {
				inv.User = m
			}
		}
		if inv.User == nil {
			if u, err := e.client.User(ctx, userID); err == nil {
				inv.User = u
			}
		}
	}
	return inv
}
