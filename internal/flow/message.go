package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BTreeMap/ScriptCord/internal/models"
	"github.com/BTreeMap/ScriptCord/internal/platform"
	"github.com/BTreeMap/ScriptCord/internal/util"
)

type messageMode int

const (
	modeSend messageMode = iota
	modeUpdate
	modeRespond
)

// DefaultResponseDeleteAfter is how long an interaction response stays
// visible unless the action says otherwise.
const DefaultResponseDeleteAfter = 15 * time.Second

// messageAction sends, updates or responds with a message built from its
// payload. A bare string payload is sent as is; a mapping carries content
// items, each templated when the message is built.
type messageAction struct {
	*base
	mode messageMode

	target      *platform.Channel
	spec        platform.MessageSpec
	conditional bool
}

func (a *messageAction) gather(ctx context.Context, e *Engine) error {
	target, spec, conditional, err := a.build(ctx, e)
	if err != nil {
		return err
	}
	a.target, a.spec, a.conditional = target, spec, conditional
	return nil
}

// build renders the payload. Controls found in the content are registered
// with the engine's registry as a side effect.
func (a *messageAction) build(ctx context.Context, e *Engine) (*platform.Channel, platform.MessageSpec, bool, error) {
	var spec platform.MessageSpec
	target := a.channel

	if a.mode == modeRespond {
		spec.Ephemeral = true
		spec.DeleteAfter = DefaultResponseDeleteAfter
	}

	switch payload := a.payload.(type) {
	case string:
		spec.Content = payload
		return target, spec, false, nil
	case nil:
		return nil, spec, false, a.configf("%s needs content", a.name)
	}

	m, ok := models.AsMap(a.payload)
	if !ok {
		return nil, spec, false, a.configf("%s expects a string or a mapping, got %T", a.name, a.payload)
	}

	if ref, ok := models.Lookup(m, "channel"); ok && ref != nil {
		target = e.resolver.Channel(ctx, a.rc(), ref)
		if target == nil {
			slog.Warn("messageAction.build: channel not found", "path", a.path)
		}
	}
	if target != nil {
		a.bind("target", target)
	}

	spec.TTS = boolField(m, "tts", false)
	spec.Silent = boolField(m, "silent", false)
	spec.SuppressEmbeds = boolField(m, "suppress embeds", false)
	if a.mode == modeRespond {
		spec.Ephemeral = boolField(m, "ephemeral", true)
	}
	if v, ok := models.Lookup(m, "delete after"); ok {
		spec.DeleteAfter = a.deleteAfter(v)
	}
	a.bind("tts", spec.TTS)
	a.bind("silent", spec.Silent)
	a.bind("suppress_embeds", spec.SuppressEmbeds)
	a.bind("ephemeral", spec.Ephemeral)
	a.bind("delete_after", spec.DeleteAfter)

	content, _ := models.Lookup(m, "content")
	var items any
	switch c := content.(type) {
	case nil:
	case string:
		items = []any{map[string]any{"text": c}}
	default:
		items = c
	}

	conditional := false
	if items != nil {
		var err error
		conditional, err = a.addItems(ctx, e, items, a.path.Child("content"), &spec)
		if err != nil {
			return nil, spec, false, err
		}
	}
	return target, spec, conditional, nil
}

func (a *messageAction) deleteAfter(v any) time.Duration {
	switch d := v.(type) {
	case nil:
		return 0
	case int:
		return time.Duration(d) * time.Second
	case int64:
		return time.Duration(d) * time.Second
	case float64:
		return time.Duration(d * float64(time.Second))
	case string:
		return util.ParseDuration(d)
	default:
		slog.Warn("messageAction.deleteAfter: ignoring value", "path", a.path, "type", fmt.Sprintf("%T", v))
		return 0
	}
}

// addItems appends content items to spec. It reports whether any condition
// item took part in the result.
func (a *messageAction) addItems(ctx context.Context, e *Engine, raw any, listPath models.ExecutionPath, spec *platform.MessageSpec) (bool, error) {
	list, ok := models.AsList(raw)
	if !ok {
		m, isMap := models.AsMap(raw)
		if !isMap {
			return false, models.Configf(listPath, "content must be a string or a list, got %T", raw)
		}
		list = []any{m}
	}

	conditional := false
	counter := models.SiblingCounter{}
	for _, item := range list {
		name, payload, err := models.DefinitionKey(item)
		if err != nil {
			return false, &models.ConfigurationError{Path: listPath, Err: err}
		}
		path := listPath.Child(name).Occurrence(counter.Next(name))

		switch models.NormalizeKey(name) {
		case "text":
			spec.Content = e.eval.EvaluateTemplate(path, fmt.Sprint(payload), a.scope())
		case "embed":
			embed, err := a.buildEmbed(e, path, payload)
			if err != nil {
				return false, err
			}
			spec.Embeds = append(spec.Embeds, embed)
		case "button":
			button, err := a.buildButton(ctx, e, path, payload)
			if err != nil {
				return false, err
			}
			spec.Buttons = append(spec.Buttons, button)
		case "select":
			menu, err := a.buildSelect(ctx, e, path, payload)
			if err != nil {
				return false, err
			}
			spec.Selects = append(spec.Selects, menu)
		case "condition":
			conditional = true
			m, ok := models.AsMap(payload)
			if !ok {
				return false, models.Configf(path, "condition expects a mapping, got %T", payload)
			}
			branch := "else"
			if e.eval.EvaluateBool(path, stringField(m, "if"), a.scope()) {
				branch = "do"
			}
			chosen, ok := models.Lookup(m, branch)
			if !ok || chosen == nil {
				continue
			}
			if _, err := a.addItems(ctx, e, chosen, path.Child("do"), spec); err != nil {
				return false, err
			}
		default:
			return false, models.Configf(path, "'%s' is not a recognised content item", name)
		}
	}
	return conditional, nil
}

func (a *messageAction) perform(ctx context.Context, e *Engine) (bool, error) {
	switch a.mode {
	case modeRespond:
		return a.respond(ctx, e)
	case modeUpdate:
		return a.update(ctx, e)
	default:
		if a.target == nil {
			slog.Debug("messageAction.perform: no channel, skipping", "path", a.path)
			return false, nil
		}
		if _, err := e.client.SendMessage(ctx, a.target.ID, a.spec); err != nil {
			return false, fmt.Errorf("send message: %w", err)
		}
		return true, nil
	}
}

// update edits the message this action sent before, or sends a new one when
// there is none. An unchanged message is left alone.
func (a *messageAction) update(ctx context.Context, e *Engine) (bool, error) {
	existing, err := e.state.GetMessage(ctx, a.path, e.client)
	if err != nil {
		return false, fmt.Errorf("load message: %w", err)
	}

	var msg *platform.Message
	if existing != nil {
		if a.spec.Matches(existing) {
			slog.Debug("messageAction.update: message unchanged", "path", a.path)
			return false, nil
		}
		msg, err = e.client.EditMessage(ctx, existing.ChannelID, existing.ID, a.spec)
		if err != nil && !errors.Is(err, platform.ErrNotFound) {
			return false, fmt.Errorf("edit message: %w", err)
		}
	}
	if msg == nil {
		if a.target == nil {
			slog.Debug("messageAction.update: no channel, skipping", "path", a.path)
			return false, nil
		}
		msg, err = e.client.SendMessage(ctx, a.target.ID, a.spec)
		if err != nil {
			return false, fmt.Errorf("send message: %w", err)
		}
	}
	if err := e.state.SaveMessage(ctx, a.path, msg); err != nil {
		return true, fmt.Errorf("save message: %w", err)
	}
	return true, nil
}

// respond answers the current interaction, falling back to a follow-up once
// the initial response was used.
func (a *messageAction) respond(ctx context.Context, e *Engine) (bool, error) {
	state := a.inv.Interaction
	if state == nil {
		slog.Debug("messageAction.respond: no interaction to respond to", "path", a.path)
		return false, nil
	}
	if a.channel == nil {
		slog.Debug("messageAction.respond: no channel, skipping", "path", a.path)
		return false, nil
	}
	if state.claim() {
		if err := e.client.Respond(ctx, state.Interaction, a.spec); err != nil {
			state.release()
			return false, fmt.Errorf("respond: %w", err)
		}
		return true, nil
	}
	if _, err := e.client.FollowUp(ctx, state.Interaction, a.spec); err != nil {
		return false, fmt.Errorf("follow up: %w", err)
	}
	return true, nil
}

// refreshed returns a copy of the action whose context entities are looked
// up again, since they may have changed since the message was sent.
func (a *messageAction) refreshed(ctx context.Context, e *Engine) *messageAction {
	b := *a.base
	var channelID, userID, guildID models.Snowflake
	if b.channel != nil {
		channelID = b.channel.ID
	}
	if b.user != nil {
		userID = b.user.ID
	}
	if b.guild != nil {
		guildID = b.guild.ID
	}
	fresh := e.Resolve(ctx, channelID, userID, guildID)
	b.channel, b.user, b.guild = fresh.Channel, fresh.User, fresh.Guild
	return &messageAction{base: &b, mode: a.mode, conditional: a.conditional}
}
