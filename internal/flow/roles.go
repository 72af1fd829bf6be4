package flow

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/BTreeMap/ScriptCord/internal/models"
	"github.com/BTreeMap/ScriptCord/internal/platform"
)

// rolesAction grants or revokes roles.
//
//	add roles: Moderator
//	add roles: {target: user, roles: [Member, 1234], reason: verified}
type rolesAction struct {
	*base
	remove bool

	target *platform.User
	roles  []*platform.Role
	reason string
}

func (a *rolesAction) gather(ctx context.Context, e *Engine) error {
	var targetRef, rolesRef any
	if m, ok := models.AsMap(a.payload); ok {
		targetRef, _ = models.Lookup(m, "target")
		if v, ok := models.Lookup(m, "roles"); ok {
			rolesRef = v
		} else {
			rolesRef, _ = models.Lookup(m, "role")
		}
		a.reason = stringField(m, "reason")
	} else {
		rolesRef = a.payload
	}

	a.bind("reason", a.reason)
	a.target = a.resolveTarget(ctx, e, targetRef)
	if a.target != nil {
		a.bind("target", a.target)
	}
	a.roles = a.resolveRoles(ctx, e, rolesRef)
	a.bind("roles", a.roles)
	return nil
}

func (a *rolesAction) perform(ctx context.Context, e *Engine) (bool, error) {
	if a.target == nil || len(a.roles) == 0 {
		slog.Debug("rolesAction.perform: no target or roles", "path", a.path)
		return false, nil
	}
	ids := roleIDs(a.roles)
	var err error
	if a.remove {
		err = e.client.RemoveRoles(ctx, a.target.GuildID, a.target.ID, ids, a.reason)
	} else {
		err = e.client.AddRoles(ctx, a.target.GuildID, a.target.ID, ids, a.reason)
	}
	if err != nil {
		return false, fmt.Errorf("update roles of %s: %w", a.target.ID, err)
	}
	return true, nil
}

// resolveTarget resolves an explicit target. When none is given or it does
// not resolve to a guild member, the invoking user is used if it is one.
func (b *base) resolveTarget(ctx context.Context, e *Engine, ref any) *platform.User {
	if ref != nil {
		u := e.resolver.User(ctx, b.rc(), ref)
		if u.IsMember() {
			return u
		}
		slog.Debug("base.resolveTarget: target did not resolve to a member, using invoker", "path", b.path)
	}
	if b.user.IsMember() {
		return b.user
	}
	return nil
}

// resolveRoles resolves a role reference or a list of them. Strings that are
// not role names are evaluated and the result resolved instead.
func (b *base) resolveRoles(ctx context.Context, e *Engine, ref any) []*platform.Role {
	if ref == nil {
		return nil
	}
	refs, ok := models.AsList(ref)
	if !ok {
		refs = []any{ref}
	}
	var out []*platform.Role
	seen := map[models.Snowflake]bool{}
	add := func(r *platform.Role) {
		if r != nil && !seen[r.ID] {
			seen[r.ID] = true
			out = append(out, r)
		}
	}
	for _, r := range refs {
		if role := e.resolver.Role(ctx, b.rc(), r); role != nil {
			add(role)
			continue
		}
		src, isString := r.(string)
		if !isString {
			continue
		}
		v, ok := e.eval.Evaluate(b.path, src, b.scope())
		if !ok || v == nil {
			continue
		}
		if list, isList := models.AsList(v); isList {
			for _, item := range list {
				add(e.resolver.Role(ctx, b.rc(), item))
			}
			continue
		}
		add(e.resolver.Role(ctx, b.rc(), v))
	}
	return out
}

func roleIDs(roles []*platform.Role) []models.Snowflake {
	ids := make([]models.Snowflake, len(roles))
	for i, r := range roles {
		ids[i] = r.ID
	}
	return ids
}

// updateRolesAction applies an add set and a remove set against the target's
// current roles.
type updateRolesAction struct {
	*base

	target *platform.User
	add    []*platform.Role
	remove []*platform.Role
	reason string
}

func (a *updateRolesAction) gather(ctx context.Context, e *Engine) error {
	m, err := a.fields()
	if err != nil {
		return err
	}
	if a.guild != nil && a.user != nil && !a.user.IsMember() {
		if member, err := e.client.Member(ctx, a.guild.ID, a.user.ID); err == nil {
			a.user = member
		}
	}
	a.reason = stringField(m, "reason")
	a.bind("reason", a.reason)
	targetRef, _ := models.Lookup(m, "target")
	a.target = a.resolveTarget(ctx, e, targetRef)
	if a.target != nil {
		a.bind("target", a.target)
	}
	if v, ok := models.Lookup(m, "add"); ok {
		a.add = a.resolveRoles(ctx, e, v)
	}
	a.bind("add", a.add)
	if v, ok := models.Lookup(m, "remove"); ok {
		a.remove = a.resolveRoles(ctx, e, v)
	}
	a.bind("remove", a.remove)
	return nil
}

func (a *updateRolesAction) perform(ctx context.Context, e *Engine) (bool, error) {
	if a.target == nil {
		slog.Debug("updateRolesAction.perform: no target", "path", a.path)
		return false, nil
	}
	toAdd, toRemove := RoleDelta(a.target.Roles, roleIDs(a.add), roleIDs(a.remove))
	if len(toRemove) > 0 {
		if err := e.client.RemoveRoles(ctx, a.target.GuildID, a.target.ID, toRemove, a.reason); err != nil {
			return false, fmt.Errorf("remove roles of %s: %w", a.target.ID, err)
		}
	}
	if len(toAdd) > 0 {
		if err := e.client.AddRoles(ctx, a.target.GuildID, a.target.ID, toAdd, a.reason); err != nil {
			return false, fmt.Errorf("add roles to %s: %w", a.target.ID, err)
		}
	}
	return true, nil
}

// RoleDelta computes the calls needed to move from current: roles in both add
// and remove are kept, removals are limited to roles currently held and
// additions skip roles already held.
func RoleDelta(current, add, remove []models.Snowflake) (toAdd, toRemove []models.Snowflake) {
	for _, id := range remove {
		if !slices.Contains(add, id) && slices.Contains(current, id) && !slices.Contains(toRemove, id) {
			toRemove = append(toRemove, id)
		}
	}
	for _, id := range add {
		if !slices.Contains(current, id) && !slices.Contains(toAdd, id) {
			toAdd = append(toAdd, id)
		}
	}
	return toAdd, toRemove
}
