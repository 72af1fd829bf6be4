// Package resolver maps symbolic references from configuration (ids, names,
// @/#/:name: shorthands and variable names) to live platform entities.
//
// Resolution never fails loudly: a reference that matches nothing yields nil.
// When several entities share a name, the first one in the enumeration order
// of the searched collection wins.
package resolver

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"

	"github.com/BTreeMap/ScriptCord/internal/expression"
	"github.com/BTreeMap/ScriptCord/internal/models"
	"github.com/BTreeMap/ScriptCord/internal/platform"
	"github.com/BTreeMap/ScriptCord/internal/variables"
)

// MaxVariableDepth bounds variable-to-variable indirection.
const MaxVariableDepth = 8

// Context is the invocation state a lookup runs in.
type Context struct {
	Path  models.ExecutionPath
	Guild *platform.Guild
	User  *platform.User
	Scope expression.Scope
}

// Resolver resolves entity references through a platform Directory.
type Resolver struct {
	dir  platform.Directory
	eval *expression.Evaluator
}

// New creates a Resolver.
func New(dir platform.Directory, eval *expression.Evaluator) *Resolver {
	return &Resolver{dir: dir, eval: eval}
}

// deref follows a variable name to its evaluated value. ok is false when ref
// is not a declared variable.
func (r *Resolver) deref(rc Context, ref string) (any, bool) {
	if r.eval == nil || r.eval.Variables() == nil {
		return nil, false
	}
	name := variables.Normalize(ref)
	if !r.eval.Variables().Declared(name) {
		return nil, false
	}
	slog.Debug("Resolver.deref: resolving variable", "path", rc.Path, "name", name)
	v, _ := r.eval.Evaluate(rc.Path, name, rc.Scope)
	return v, true
}

// soft logs platform errors other than not-found.
func soft(path models.ExecutionPath, what string, err error) {
	if err == nil || errors.Is(err, platform.ErrNotFound) {
		return
	}
	slog.Warn("Resolver: lookup failed", "path", path, "entity", what, "error", err)
}

func empty(ref any) bool {
	switch v := ref.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(v) == ""
	case int:
		return v == 0
	}
	return false
}

// User resolves a user. With a guild in context the result is a guild member
// and the keyword "user" names the invoking user.
func (r *Resolver) User(ctx context.Context, rc Context, ref any) *platform.User {
	return r.user(ctx, rc, ref, 0)
}

func (r *Resolver) user(ctx context.Context, rc Context, ref any, depth int) *platform.User {
	if empty(ref) || depth > MaxVariableDepth {
		return nil
	}
	if u, ok := ref.(*platform.User); ok {
		if u == nil || rc.Guild == nil || u.GuildID == rc.Guild.ID {
			return u
		}
		if m, err := r.dir.Member(ctx, rc.Guild.ID, u.ID); err == nil {
			return m
		}
		return u
	}
	if s, ok := ref.(string); ok {
		if v, isVar := r.deref(rc, s); isVar {
			return r.user(ctx, rc, v, depth+1)
		}
		ref = strings.TrimPrefix(strings.TrimSpace(s), "@")
	}

	id, isID := models.SnowflakeOf(ref)
	name, isName := ref.(string)

	if rc.Guild != nil {
		if isID {
			m, err := r.dir.Member(ctx, rc.Guild.ID, id)
			soft(rc.Path, "member", err)
			if m != nil {
				return m
			}
			if !isName {
				return nil
			}
		}
		if !isName {
			slog.Error("Resolver.User: reference is not an id or a name", "path", rc.Path)
			return nil
		}
		if strings.EqualFold(name, "user") {
			return rc.User
		}
		members, err := r.dir.Members(ctx, rc.Guild.ID)
		soft(rc.Path, "members", err)
		if u := matchUser(members, name); u != nil {
			return u
		}
		slog.Warn("Resolver.User: could not find user", "path", rc.Path)
		return nil
	}

	if isID {
		u, err := r.dir.User(ctx, id)
		soft(rc.Path, "user", err)
		if u != nil {
			return u
		}
		if !isName {
			return nil
		}
	}
	if !isName {
		slog.Error("Resolver.User: reference is not an id or a name", "path", rc.Path)
		return nil
	}
	if u := matchUser(r.dir.CachedUsers(ctx), name); u != nil {
		return u
	}
	slog.Warn("Resolver.User: could not find user", "path", rc.Path)
	return nil
}

// matchUser compares username, global name and nickname.
func matchUser(users []*platform.User, name string) *platform.User {
	for _, u := range users {
		if u.Name == name || (u.GlobalName != "" && u.GlobalName == name) || (u.Nick != "" && u.Nick == name) {
			return u
		}
	}
	return nil
}

// Role resolves a role. Without a guild, the invoking user's mutual guilds
// are searched in order.
func (r *Resolver) Role(ctx context.Context, rc Context, ref any) *platform.Role {
	return r.role(ctx, rc, ref, 0)
}

func (r *Resolver) role(ctx context.Context, rc Context, ref any, depth int) *platform.Role {
	if empty(ref) || depth > MaxVariableDepth {
		return nil
	}
	if role, ok := ref.(*platform.Role); ok {
		return role
	}
	if s, ok := ref.(string); ok {
		if v, isVar := r.deref(rc, s); isVar {
			return r.role(ctx, rc, v, depth+1)
		}
		ref = strings.TrimPrefix(strings.TrimSpace(s), "@")
	}

	var guilds []*platform.Guild
	switch {
	case rc.Guild != nil:
		guilds = []*platform.Guild{rc.Guild}
	case rc.User != nil:
		slog.Debug("Resolver.Role: no guild, checking mutual guilds", "path", rc.Path)
		guilds = r.mutualGuilds(ctx, rc.User)
	default:
		slog.Warn("Resolver.Role: no guild or user in context", "path", rc.Path)
		return nil
	}

	id, isID := models.SnowflakeOf(ref)
	name, _ := ref.(string)
	for _, g := range guilds {
		if isID {
			role, err := r.dir.Role(ctx, g.ID, id)
			soft(rc.Path, "role", err)
			if role != nil {
				return role
			}
		}
		if name == "" {
			continue
		}
		roles, err := r.dir.Roles(ctx, g.ID)
		soft(rc.Path, "roles", err)
		for _, role := range roles {
			if role.Name == name {
				return role
			}
		}
	}
	slog.Warn("Resolver.Role: could not find role", "path", rc.Path)
	return nil
}

func (r *Resolver) mutualGuilds(ctx context.Context, u *platform.User) []*platform.Guild {
	var out []*platform.Guild
	for _, g := range r.dir.Guilds(ctx) {
		if _, err := r.dir.Member(ctx, g.ID, u.ID); err == nil {
			out = append(out, g)
		}
	}
	return out
}

// Channel resolves a channel by id (cache then API) or by name.
func (r *Resolver) Channel(ctx context.Context, rc Context, ref any) *platform.Channel {
	return r.channel(ctx, rc, ref, 0)
}

func (r *Resolver) channel(ctx context.Context, rc Context, ref any, depth int) *platform.Channel {
	if empty(ref) || depth > MaxVariableDepth {
		return nil
	}
	if c, ok := ref.(*platform.Channel); ok {
		return c
	}
	if s, ok := ref.(string); ok {
		if v, isVar := r.deref(rc, s); isVar {
			return r.channel(ctx, rc, v, depth+1)
		}
		ref = strings.TrimPrefix(strings.TrimSpace(s), "#")
	}

	if id, ok := models.SnowflakeOf(ref); ok {
		c, err := r.dir.Channel(ctx, id)
		soft(rc.Path, "channel", err)
		if c != nil {
			return c
		}
	}
	name, ok := ref.(string)
	if !ok {
		slog.Error("Resolver.Channel: reference is not an id or a name", "path", rc.Path)
		return nil
	}
	for _, c := range r.dir.Channels(ctx) {
		if c.Name == name {
			return c
		}
	}
	slog.Warn("Resolver.Channel: could not find channel", "path", rc.Path)
	return nil
}

// Guild resolves a guild by id (cache then API) or by name.
func (r *Resolver) Guild(ctx context.Context, rc Context, ref any) *platform.Guild {
	return r.guild(ctx, rc, ref, 0)
}

func (r *Resolver) guild(ctx context.Context, rc Context, ref any, depth int) *platform.Guild {
	if empty(ref) || depth > MaxVariableDepth {
		return nil
	}
	if g, ok := ref.(*platform.Guild); ok {
		return g
	}
	if s, ok := ref.(string); ok {
		if v, isVar := r.deref(rc, s); isVar {
			return r.guild(ctx, rc, v, depth+1)
		}
		ref = strings.TrimSpace(s)
	}

	if id, ok := models.SnowflakeOf(ref); ok {
		g, err := r.dir.Guild(ctx, id)
		soft(rc.Path, "guild", err)
		if g != nil {
			return g
		}
	}
	name, ok := ref.(string)
	if !ok {
		slog.Warn("Resolver.Guild: reference is not an id or a name", "path", rc.Path)
		return nil
	}
	for _, g := range r.dir.Guilds(ctx) {
		if g.Name == name {
			return g
		}
	}
	slog.Warn("Resolver.Guild: could not find guild", "path", rc.Path)
	return nil
}

// Colour resolves an integer colour. Hex strings may be written "#rrggbb" or
// "0xrrggbb".
func (r *Resolver) Colour(rc Context, ref any) (int, bool) {
	return r.colour(rc, ref, 0)
}

func (r *Resolver) colour(rc Context, ref any, depth int) (int, bool) {
	if ref == nil || depth > MaxVariableDepth {
		return 0, false
	}
	switch v := ref.(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case uint64:
		return int(v), true
	case float64:
		return int(v), true
	case string:
		s := strings.TrimSpace(v)
		if val, isVar := r.deref(rc, s); isVar {
			return r.colour(rc, val, depth+1)
		}
		lower := strings.ToLower(s)
		for _, prefix := range []string{"#", "0x"} {
			if hex, ok := strings.CutPrefix(lower, prefix); ok {
				n, err := strconv.ParseUint(hex, 16, 32)
				if err == nil {
					return int(n), true
				}
			}
		}
	}
	slog.Warn("Resolver.Colour: could not find colour", "path", rc.Path)
	return 0, false
}
