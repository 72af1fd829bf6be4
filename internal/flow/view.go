package flow

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mitchellh/mapstructure"

	"github.com/BTreeMap/ScriptCord/internal/expression"
	"github.com/BTreeMap/ScriptCord/internal/models"
	"github.com/BTreeMap/ScriptCord/internal/platform"
	"github.com/BTreeMap/ScriptCord/internal/util"
)

type embedSpec struct {
	Colour      any         `mapstructure:"colour"`
	Color       any         `mapstructure:"color"`
	Title       string      `mapstructure:"title"`
	Type        string      `mapstructure:"type"`
	URL         string      `mapstructure:"url"`
	Description string      `mapstructure:"description"`
	Fields      []fieldSpec `mapstructure:"fields"`
	Thumbnail   string      `mapstructure:"thumbnail"`
	Footer      any         `mapstructure:"footer"`
}

type fieldSpec struct {
	Name   string `mapstructure:"name"`
	Value  string `mapstructure:"value"`
	Inline bool   `mapstructure:"inline"`
}

type footerSpec struct {
	Text string `mapstructure:"text"`
	Icon string `mapstructure:"icon"`
}

type buttonSpec struct {
	Label    string `mapstructure:"label"`
	Style    string `mapstructure:"style"`
	URL      string `mapstructure:"url"`
	Disabled bool   `mapstructure:"disabled"`
	Row      int    `mapstructure:"row"`
	CustomID string `mapstructure:"custom_id"`
	Emoji    any    `mapstructure:"emoji"`
}

type selectSpec struct {
	Placeholder string `mapstructure:"placeholder"`
	MinValues   *int   `mapstructure:"min_values"`
	MaxValues   int    `mapstructure:"max_values"`
	Disabled    bool   `mapstructure:"disabled"`
	Row         int    `mapstructure:"row"`
	CustomID    string `mapstructure:"custom_id"`
	Options     []any  `mapstructure:"options"`
}

type optionSpec struct {
	Label       string `mapstructure:"label"`
	Value       string `mapstructure:"value"`
	Description string `mapstructure:"description"`
	Emoji       any    `mapstructure:"emoji"`
	Default     any    `mapstructure:"default"`
}

// normalizeKeys folds "min values", "Min_Values" and friends to "min_values".
func normalizeKeys(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[models.NormalizeKey(k)] = v
	}
	return out
}

// decode maps a configuration mapping onto a spec struct, converting scalars
// where the types disagree.
func decode(path models.ExecutionPath, input any, out any) (map[string]any, error) {
	m, ok := models.AsMap(input)
	if !ok {
		return nil, models.Configf(path, "expected a mapping, got %T", input)
	}
	m = normalizeKeys(m)
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return nil, fmt.Errorf("create decoder: %w", err)
	}
	if err := dec.Decode(m); err != nil {
		return nil, &models.ConfigurationError{Path: path, Err: err}
	}
	return m, nil
}

func (a *messageAction) buildEmbed(e *Engine, path models.ExecutionPath, payload any) (platform.Embed, error) {
	var spec embedSpec
	if _, err := decode(path, payload, &spec); err != nil {
		return platform.Embed{}, err
	}
	scope := a.scope()
	tmpl := func(s string) string {
		if s == "" {
			return ""
		}
		return e.eval.EvaluateTemplate(path, s, scope)
	}

	kind := spec.Type
	if kind == "" {
		kind = "rich"
	}
	embed := platform.Embed{
		Title:       tmpl(spec.Title),
		Type:        tmpl(kind),
		URL:         tmpl(spec.URL),
		Description: tmpl(spec.Description),
		Thumbnail:   spec.Thumbnail,
	}
	colour := spec.Colour
	if colour == nil {
		colour = spec.Color
	}
	if colour != nil {
		if c, ok := e.resolver.Colour(a.rc(), colour); ok {
			embed.Color = c
		} else {
			slog.Warn("messageAction.buildEmbed: invalid colour", "path", path)
		}
	}
	for _, f := range spec.Fields {
		embed.Fields = append(embed.Fields, platform.EmbedField{
			Name:   tmpl(f.Name),
			Value:  tmpl(f.Value),
			Inline: f.Inline,
		})
	}
	switch footer := spec.Footer.(type) {
	case nil:
	case string:
		embed.Footer = &platform.EmbedFooter{Text: tmpl(footer)}
	default:
		var fs footerSpec
		if _, err := decode(path.Child("footer"), footer, &fs); err != nil {
			return platform.Embed{}, err
		}
		embed.Footer = &platform.EmbedFooter{Text: tmpl(fs.Text), IconURL: tmpl(fs.Icon)}
	}
	return embed, nil
}

func (a *messageAction) buildButton(ctx context.Context, e *Engine, path models.ExecutionPath, payload any) (platform.Button, error) {
	var spec buttonSpec
	attrs, err := decode(path, payload, &spec)
	if err != nil {
		return platform.Button{}, err
	}
	if spec.Label == "" {
		return platform.Button{}, models.Configf(path, "button needs a label")
	}

	button := platform.Button{
		Label:    e.eval.EvaluateTemplate(path, spec.Label, a.scope()),
		URL:      spec.URL,
		Disabled: spec.Disabled,
		Row:      spec.Row,
		Style:    platform.ButtonPrimary,
	}
	if spec.URL != "" {
		button.Style = platform.ButtonLink
	}
	if spec.Style != "" {
		style, ok := platform.ParseButtonStyle(spec.Style)
		if !ok {
			return platform.Button{}, models.Configf(path, "'%s' is not a button style", spec.Style)
		}
		button.Style = style
	}
	if button.Style == platform.ButtonLink && button.URL == "" {
		return platform.Button{}, models.Configf(path, "link buttons need a url")
	}
	if spec.Emoji != nil {
		button.Emoji = e.resolver.Emoji(ctx, a.rc(), spec.Emoji)
	}
	if button.Style == platform.ButtonLink {
		return button, nil
	}
	button.CustomID = a.register(e, path, spec.CustomID, attrs)
	return button, nil
}

func (a *messageAction) buildSelect(ctx context.Context, e *Engine, path models.ExecutionPath, payload any) (platform.SelectMenu, error) {
	var spec selectSpec
	attrs, err := decode(path, payload, &spec)
	if err != nil {
		return platform.SelectMenu{}, err
	}
	if len(spec.Options) == 0 {
		return platform.SelectMenu{}, models.Configf(path, "select needs at least one option")
	}

	menu := platform.SelectMenu{
		Placeholder: e.eval.EvaluateTemplate(path, spec.Placeholder, a.scope()),
		Disabled:    spec.Disabled,
		Row:         spec.Row,
	}
	for i, raw := range spec.Options {
		opt, err := a.buildOption(ctx, e, path.Child("options"), raw)
		if err != nil {
			return platform.SelectMenu{}, fmt.Errorf("option %d: %w", i+1, err)
		}
		menu.Options = append(menu.Options, opt)
	}

	menu.MinValues, menu.MaxValues = clampValues(spec.MinValues, spec.MaxValues, len(menu.Options))
	menu.CustomID = a.register(e, path, spec.CustomID, attrs)
	return menu, nil
}

// clampValues bounds the selection counts to what the options allow. An
// unset minimum defaults to one.
func clampValues(minValues *int, maxValues, options int) (int, int) {
	if maxValues <= 0 {
		maxValues = 1
	}
	maxValues = min(maxValues, options)
	lo := 1
	if minValues != nil {
		lo = max(*minValues, 0)
	}
	return min(lo, maxValues), maxValues
}

func (a *messageAction) buildOption(ctx context.Context, e *Engine, path models.ExecutionPath, raw any) (platform.SelectOption, error) {
	if s, ok := raw.(string); ok {
		return platform.SelectOption{Label: s, Value: s}, nil
	}
	var spec optionSpec
	if _, err := decode(path, raw, &spec); err != nil {
		return platform.SelectOption{}, err
	}
	if spec.Label == "" {
		return platform.SelectOption{}, models.Configf(path, "option needs a label")
	}
	opt := platform.SelectOption{
		Label:       e.eval.EvaluateTemplate(path, spec.Label, a.scope()),
		Value:       spec.Value,
		Description: spec.Description,
	}
	if opt.Value == "" {
		opt.Value = spec.Label
	}
	switch d := spec.Default.(type) {
	case nil:
	case bool:
		opt.Default = d
	case string:
		opt.Default = e.eval.EvaluateBool(path, d, a.scope())
	default:
		opt.Default = expression.Truthy(d)
	}
	if spec.Emoji != nil {
		opt.Emoji = e.resolver.Emoji(ctx, a.rc(), spec.Emoji)
	}
	return opt, nil
}

// register binds a control to this action and returns its custom id.
func (a *messageAction) register(e *Engine, path models.ExecutionPath, customID string, attrs map[string]any) string {
	if customID == "" {
		customID = util.GenerateControlID()
	}
	pending, _ := models.Lookup(attrs, "on interaction")
	delete(attrs, "on_interaction")
	e.registry.Register(&Binding{
		CustomID:   customID,
		Path:       path,
		Pending:    pending,
		Attributes: attrs,
		owner:      a,
		Created:    e.now(),
	})
	return customID
}
