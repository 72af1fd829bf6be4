package platform

import (
	"slices"
	"strings"
	"time"
)

// EmbedField is one name/value pair of an embed.
type EmbedField struct {
	Name   string `expr:"name"`
	Value  string `expr:"value"`
	Inline bool   `expr:"inline"`
}

// EmbedFooter is the footer line of an embed.
type EmbedFooter struct {
	Text    string `expr:"text"`
	IconURL string `expr:"icon_url"`
}

// Embed is a rich embed.
type Embed struct {
	Title       string       `expr:"title"`
	Type        string       `expr:"type"`
	URL         string       `expr:"url"`
	Description string       `expr:"description"`
	Color       int          `expr:"color"`
	Fields      []EmbedField `expr:"fields"`
	Thumbnail   string       `expr:"thumbnail"`
	Footer      *EmbedFooter `expr:"footer"`
}

// Equal compares the parts of an embed that a message action sets.
func (e Embed) Equal(o Embed) bool {
	if e.Title != o.Title || e.URL != o.URL || e.Description != o.Description ||
		e.Color != o.Color || e.Thumbnail != o.Thumbnail {
		return false
	}
	if normalizeEmbedType(e.Type) != normalizeEmbedType(o.Type) {
		return false
	}
	if !slices.Equal(e.Fields, o.Fields) {
		return false
	}
	var ef, of EmbedFooter
	if e.Footer != nil {
		ef = *e.Footer
	}
	if o.Footer != nil {
		of = *o.Footer
	}
	return ef == of
}

func normalizeEmbedType(t string) string {
	if t == "" {
		return "rich"
	}
	return strings.ToLower(t)
}

// ButtonStyle is the visual style of a button.
type ButtonStyle int

const (
	ButtonPrimary ButtonStyle = iota + 1
	ButtonSecondary
	ButtonSuccess
	ButtonDanger
	ButtonLink
)

// ParseButtonStyle accepts the style names and their common aliases.
func ParseButtonStyle(s string) (ButtonStyle, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "primary", "blurple":
		return ButtonPrimary, true
	case "secondary", "grey", "gray":
		return ButtonSecondary, true
	case "success", "green":
		return ButtonSuccess, true
	case "danger", "red":
		return ButtonDanger, true
	case "link", "url":
		return ButtonLink, true
	default:
		return 0, false
	}
}

// Button is a clickable control.
type Button struct {
	CustomID string
	Label    string
	Style    ButtonStyle
	URL      string
	Disabled bool
	Emoji    *Emoji
	Row      int
}

// SelectOption is one choice of a select menu.
type SelectOption struct {
	Label       string
	Value       string
	Description string
	Emoji       *Emoji
	Default     bool
}

// SelectMenu is a string select control.
type SelectMenu struct {
	CustomID    string
	Placeholder string
	MinValues   int
	MaxValues   int
	Options     []SelectOption
	Disabled    bool
	Row         int
}

// MessageSpec describes an outgoing message.
type MessageSpec struct {
	Content        string
	Embeds         []Embed
	Buttons        []Button
	Selects        []SelectMenu
	TTS            bool
	Silent         bool
	SuppressEmbeds bool
	Ephemeral      bool
	DeleteAfter    time.Duration
}

// HasControls reports whether the message carries interactive components.
func (m MessageSpec) HasControls() bool {
	return len(m.Buttons) > 0 || len(m.Selects) > 0
}

// Matches reports whether msg already shows the spec's content and embeds.
// Messages with controls never match so their callbacks get re-registered.
func (m MessageSpec) Matches(msg *Message) bool {
	if msg == nil || m.HasControls() || msg.HasControls {
		return false
	}
	if msg.Content != m.Content || len(msg.Embeds) != len(m.Embeds) {
		return false
	}
	for i := range m.Embeds {
		if !m.Embeds[i].Equal(msg.Embeds[i]) {
			return false
		}
	}
	return true
}
