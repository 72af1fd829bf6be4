package resolver

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	"github.com/BTreeMap/ScriptCord/internal/models"
	"github.com/BTreeMap/ScriptCord/internal/platform"
	"github.com/forPelevin/gomoji"
)

var emojiName = regexp.MustCompile(`^:(.+):$`)

// IsNativeEmoji reports whether s consists only of unicode emoji.
func IsNativeEmoji(s string) bool {
	s = strings.TrimSpace(s)
	return s != "" && gomoji.ContainsEmoji(s) && strings.TrimSpace(gomoji.RemoveEmojis(s)) == ""
}

// Emoji resolves a native emoji as-is, otherwise a custom emoji of the
// current guild and then of every guild the bot is in.
func (r *Resolver) Emoji(ctx context.Context, rc Context, ref any) *platform.Emoji {
	return r.emoji(ctx, rc, ref, 0)
}

func (r *Resolver) emoji(ctx context.Context, rc Context, ref any, depth int) *platform.Emoji {
	if empty(ref) || depth > MaxVariableDepth {
		return nil
	}
	if e, ok := ref.(*platform.Emoji); ok {
		return e
	}
	if s, ok := ref.(string); ok {
		s = strings.TrimSpace(s)
		if IsNativeEmoji(s) {
			slog.Debug("Resolver.Emoji: native emoji", "path", rc.Path)
			return &platform.Emoji{Name: s}
		}
		if v, isVar := r.deref(rc, s); isVar {
			return r.emoji(ctx, rc, v, depth+1)
		}
		if m := emojiName.FindStringSubmatch(s); m != nil {
			s = m[1]
		}
		ref = s
	}

	id, isID := models.SnowflakeOf(ref)
	name, _ := ref.(string)

	guilds := r.dir.Guilds(ctx)
	if rc.Guild != nil {
		guilds = append([]*platform.Guild{rc.Guild}, guilds...)
	}
	for _, g := range guilds {
		emojis, err := r.dir.Emojis(ctx, g.ID)
		soft(rc.Path, "emojis", err)
		for _, e := range emojis {
			if (isID && e.ID == id) || (name != "" && e.Name == name) {
				return e
			}
		}
	}
	slog.Warn("Resolver.Emoji: could not find emoji", "path", rc.Path)
	return nil
}
