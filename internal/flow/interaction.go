package flow

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/BTreeMap/ScriptCord/internal/models"
	"github.com/BTreeMap/ScriptCord/internal/platform"
)

// DefaultAcknowledgement is the ephemeral reply sent when an interaction list
// did not respond by itself.
const DefaultAcknowledgement = "Done."

// HandleInteraction dispatches a component interaction to the list bound to
// its custom id. Ids without a binding run the top-level "on interaction"
// list instead. Either way the interaction is answered unless the list did so
// or the response window has closed.
func (e *Engine) HandleInteraction(ctx context.Context, i *platform.Interaction) error {
	state := NewInteractionState(i)
	inv := e.interactionInvocation(ctx, i)
	inv.Interaction = state
	extras := interactionExtras(i)

	binding, ok := e.registry.Lookup(i.CustomID)
	if !ok {
		slog.Info("Engine.HandleInteraction: no binding for custom id", "custom_id", i.CustomID)
		inv.Extras = extras
		if err := e.RunList(ctx, "on interaction", e.root, inv, ""); err != nil {
			return err
		}
		e.acknowledge(ctx, state)
		return nil
	}

	if hasDefer(binding.Pending) && state.claim() {
		if err := e.client.Defer(ctx, i); err != nil {
			state.release()
			slog.Warn("Engine.HandleInteraction: defer failed", "path", binding.Path, "error", err)
		}
	}

	var owner *messageAction
	if binding.owner != nil {
		owner = binding.owner.refreshed(ctx, e)
	}

	merged := make(map[string]any, len(binding.Attributes)+len(extras))
	for k, v := range binding.Attributes {
		merged[k] = v
	}
	for k, v := range extras {
		merged[k] = v
	}
	inv.Extras = merged

	if err := e.runDefs(ctx, binding.Pending, binding.Path.Child("on interaction"), inv); err != nil {
		return err
	}

	if state.Responded() || i.Expired(e.now()) {
		return nil
	}
	if owner != nil && binding.Conditional() && e.updateOwner(ctx, state, owner) {
		return nil
	}
	e.acknowledge(ctx, state)
	return nil
}

// updateOwner rebuilds a conditional message and answers the interaction by
// editing it in place.
func (e *Engine) updateOwner(ctx context.Context, state *InteractionState, owner *messageAction) bool {
	_, spec, conditional, err := owner.build(ctx, e)
	if err != nil {
		slog.Error("Engine.updateOwner: rebuilding message failed", "path", owner.path, "error", err)
		return false
	}
	owner.conditional = conditional
	if !state.claim() {
		return false
	}
	if err := e.client.UpdateMessage(ctx, state.Interaction, spec); err != nil {
		state.release()
		slog.Error("Engine.updateOwner: updating message failed", "path", owner.path, "error", err)
		return false
	}
	return true
}

// interactionInvocation resolves the interaction's channel and guild. The
// user comes with the interaction and is already a member in guild context.
func (e *Engine) interactionInvocation(ctx context.Context, i *platform.Interaction) *Invocation {
	inv := e.Resolve(ctx, i.ChannelID, "", i.GuildID)
	inv.User = i.User
	return inv
}

func interactionExtras(i *platform.Interaction) map[string]any {
	values := make([]any, len(i.Values))
	for n, v := range i.Values {
		values[n] = v
	}
	return map[string]any{
		"custom_id":      i.CustomID,
		"values":         values,
		"value":          i.Value(),
		"component_type": i.ComponentType,
		"message_id":     i.MessageID.String(),
		"interaction":    i,
	}
}

// hasDefer reports whether a pending list contains a defer marker.
func hasDefer(pending any) bool {
	list, ok := models.AsList(pending)
	if !ok {
		if m, isMap := models.AsMap(pending); isMap {
			list = []any{m}
		}
	}
	for _, def := range list {
		name, _, err := models.DefinitionKey(def)
		if err == nil && models.NormalizeKey(name) == KindDefer {
			return true
		}
	}
	return false
}

func (e *Engine) acknowledge(ctx context.Context, state *InteractionState) {
	if state.Interaction.Expired(e.now()) || !state.claim() {
		return
	}
	err := e.client.Respond(ctx, state.Interaction, platform.MessageSpec{Content: DefaultAcknowledgement, Ephemeral: true})
	if err != nil {
		state.release()
		slog.Warn("Engine.acknowledge: default response failed", "custom_id", state.CustomID, "error", fmt.Errorf("respond: %w", err))
	}
}
