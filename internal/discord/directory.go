package discord

import (
	"context"
	"fmt"
	"slices"

	"github.com/bwmarrin/discordgo"

	"github.com/BTreeMap/ScriptCord/internal/models"
	"github.com/BTreeMap/ScriptCord/internal/platform"
)

// membersPageSize is the largest page the members endpoint returns.
const membersPageSize = 1000

func (c *Client) User(ctx context.Context, id models.Snowflake) (*platform.User, error) {
	u, err := c.session.User(string(id), discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("fetch user %s: %w", id, classify(err))
	}
	return toUser(u), nil
}

func (c *Client) Member(ctx context.Context, guildID, userID models.Snowflake) (*platform.User, error) {
	if m, err := c.session.State.Member(string(guildID), string(userID)); err == nil {
		return toMember(string(guildID), m), nil
	}
	m, err := c.session.GuildMember(string(guildID), string(userID), discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("fetch member %s of guild %s: %w", userID, guildID, classify(err))
	}
	return toMember(string(guildID), m), nil
}

// Members returns the cached members of a guild, paging through the API when
// the cache holds none.
func (c *Client) Members(ctx context.Context, guildID models.Snowflake) ([]*platform.User, error) {
	var members []*discordgo.Member
	if g, err := c.session.State.Guild(string(guildID)); err == nil {
		c.session.State.RLock()
		members = slices.Clone(g.Members)
		c.session.State.RUnlock()
	}
	if len(members) == 0 {
		after := ""
		for {
			page, err := c.session.GuildMembers(string(guildID), after, membersPageSize, discordgo.WithContext(ctx))
			if err != nil {
				return nil, fmt.Errorf("list members of guild %s: %w", guildID, classify(err))
			}
			members = append(members, page...)
			if len(page) < membersPageSize {
				break
			}
			after = page[len(page)-1].User.ID
		}
	}
	out := make([]*platform.User, 0, len(members))
	for _, m := range members {
		if u := toMember(string(guildID), m); u != nil {
			out = append(out, u)
		}
	}
	return out, nil
}

// CachedUsers returns every user the gateway cache knows, members first seen
// win.
func (c *Client) CachedUsers(_ context.Context) []*platform.User {
	c.session.State.RLock()
	defer c.session.State.RUnlock()
	seen := make(map[string]bool)
	var out []*platform.User
	for _, g := range c.session.State.Guilds {
		for _, m := range g.Members {
			if m.User == nil || seen[m.User.ID] {
				continue
			}
			seen[m.User.ID] = true
			out = append(out, toMember(g.ID, m))
		}
	}
	return out
}

func (c *Client) Role(ctx context.Context, guildID, roleID models.Snowflake) (*platform.Role, error) {
	if r, err := c.session.State.Role(string(guildID), string(roleID)); err == nil {
		return toRole(string(guildID), r), nil
	}
	roles, err := c.Roles(ctx, guildID)
	if err != nil {
		return nil, err
	}
	for _, r := range roles {
		if r.ID == roleID {
			return r, nil
		}
	}
	return nil, fmt.Errorf("role %s of guild %s: %w", roleID, guildID, platform.ErrNotFound)
}

func (c *Client) Roles(ctx context.Context, guildID models.Snowflake) ([]*platform.Role, error) {
	var roles []*discordgo.Role
	if g, err := c.session.State.Guild(string(guildID)); err == nil && len(g.Roles) > 0 {
		c.session.State.RLock()
		roles = slices.Clone(g.Roles)
		c.session.State.RUnlock()
	} else {
		roles, err = c.session.GuildRoles(string(guildID), discordgo.WithContext(ctx))
		if err != nil {
			return nil, fmt.Errorf("list roles of guild %s: %w", guildID, classify(err))
		}
	}
	out := make([]*platform.Role, len(roles))
	for i, r := range roles {
		out[i] = toRole(string(guildID), r)
	}
	return out, nil
}

func (c *Client) Channel(ctx context.Context, id models.Snowflake) (*platform.Channel, error) {
	if ch, err := c.session.State.Channel(string(id)); err == nil {
		return toChannel(ch), nil
	}
	ch, err := c.session.Channel(string(id), discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("fetch channel %s: %w", id, classify(err))
	}
	return toChannel(ch), nil
}

func (c *Client) Channels(_ context.Context) []*platform.Channel {
	c.session.State.RLock()
	defer c.session.State.RUnlock()
	var out []*platform.Channel
	for _, g := range c.session.State.Guilds {
		for _, ch := range g.Channels {
			out = append(out, toChannel(ch))
		}
	}
	for _, ch := range c.session.State.PrivateChannels {
		out = append(out, toChannel(ch))
	}
	return out
}

func (c *Client) Guild(ctx context.Context, id models.Snowflake) (*platform.Guild, error) {
	if g, err := c.session.State.Guild(string(id)); err == nil {
		c.session.State.RLock()
		defer c.session.State.RUnlock()
		return toGuild(g), nil
	}
	g, err := c.session.Guild(string(id), discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("fetch guild %s: %w", id, classify(err))
	}
	return toGuild(g), nil
}

func (c *Client) Guilds(_ context.Context) []*platform.Guild {
	c.session.State.RLock()
	defer c.session.State.RUnlock()
	out := make([]*platform.Guild, 0, len(c.session.State.Guilds))
	for _, g := range c.session.State.Guilds {
		out = append(out, toGuild(g))
	}
	return out
}

func (c *Client) Emojis(ctx context.Context, guildID models.Snowflake) ([]*platform.Emoji, error) {
	var emojis []*discordgo.Emoji
	if g, err := c.session.State.Guild(string(guildID)); err == nil && len(g.Emojis) > 0 {
		c.session.State.RLock()
		emojis = slices.Clone(g.Emojis)
		c.session.State.RUnlock()
	} else {
		emojis, err = c.session.GuildEmojis(string(guildID), discordgo.WithContext(ctx))
		if err != nil {
			return nil, fmt.Errorf("list emojis of guild %s: %w", guildID, classify(err))
		}
	}
	out := make([]*platform.Emoji, len(emojis))
	for i, e := range emojis {
		out[i] = toEmoji(string(guildID), e)
	}
	return out, nil
}
