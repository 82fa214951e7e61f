// Package message validates campaign messages and renders Liquid previews
// of their bodies against a target's variables.
//
// Bodies may use either Liquid ({{ first_name }}) or the older single
// brace placeholders ({first_name}); the latter are rewritten to Liquid
// before parsing.
package message

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/osteele/liquid"

	"github.com/ignite/wa-outreach/internal/domain"
	"github.com/ignite/wa-outreach/internal/pkg/logger"
)

var (
	legacyPlaceholder = regexp.MustCompile(`(^|[^{])\{([a-zA-Z_][a-zA-Z0-9_]*)\}([^}]|$)`)
	liquidVariable    = regexp.MustCompile(`\{\{\s*([a-zA-Z_][a-zA-Z0-9_.]*?)(?:\s*\||\s*\}\})`)
)

// Warning flags a variable the preview context did not provide.
type Warning struct {
	Variable string `json:"variable"`
	Message  string `json:"message"`
}

// Preview is the rendered body for one sample recipient. Media messages
// carry the URL that would be sent.
type Preview struct {
	Output   string    `json:"output"`
	MediaURL string    `json:"media_url,omitempty"`
	Warnings []Warning `json:"warnings,omitempty"`
}

// Renderer wraps a Liquid engine with the filters message authors use and
// the template catalog messages may reference.
type Renderer struct {
	engine  *liquid.Engine
	catalog *Catalog
	cache   sync.Map // body → *liquid.Template
}

// RendererOption configures a Renderer.
type RendererOption func(*Renderer)

// WithCatalog replaces the built-in template catalog.
func WithCatalog(c *Catalog) RendererOption {
	return func(r *Renderer) {
		if c != nil {
			r.catalog = c
		}
	}
}

// NewRenderer creates a renderer with the custom filters registered.
func NewRenderer(opts ...RendererOption) *Renderer {
	r := &Renderer{engine: liquid.NewEngine(), catalog: DefaultCatalog()}
	for _, o := range opts {
		o(r)
	}

	// {{ first_name | default: "amigo" }}
	r.engine.RegisterFilter("default", func(value interface{}, fallback string) interface{} {
		if value == nil {
			return fallback
		}
		s := fmt.Sprintf("%v", value)
		if strings.TrimSpace(s) == "" || s == "<nil>" {
			return fallback
		}
		return value
	})
	r.engine.RegisterFilter("first_word", func(s string) string {
		if f := strings.Fields(s); len(f) > 0 {
			return f[0]
		}
		return ""
	})
	r.engine.RegisterFilter("titlecase", func(s string) string {
		words := strings.Fields(strings.ToLower(s))
		for i, w := range words {
			rs := []rune(w)
			words[i] = strings.ToUpper(string(rs[0])) + string(rs[1:])
		}
		return strings.Join(words, " ")
	})

	return r
}

// Normalize rewrites single-brace placeholders into Liquid output tags.
func Normalize(body string) string {
	// Two passes: adjacent placeholders share a boundary character.
	for i := 0; i < 2; i++ {
		body = legacyPlaceholder.ReplaceAllString(body, "$1{{ $2 }}$3")
	}
	return body
}

// Catalog returns the templates messages may reference.
func (r *Renderer) Catalog() *Catalog { return r.catalog }

// Validate applies the per-type content rules, checks that a referenced
// template exists for the message type and that the body parses.
func (r *Renderer) Validate(m domain.MessageConfig) error {
	if err := m.Validate(); err != nil {
		return err
	}
	if m.TemplateID != "" {
		t, ok := r.catalog.Lookup(m.TemplateID)
		if !ok {
			return domain.Invalid("unknown_template", m.TemplateID)
		}
		if t.Type != m.Type {
			return domain.Invalid("template_type_mismatch", fmt.Sprintf("%s is a %s template", t.ID, t.Type))
		}
	}
	body := r.Resolve(m).Body
	if body == "" {
		return nil
	}
	if _, err := r.parse(body); err != nil {
		return domain.Invalid("invalid_template", err.Error())
	}
	return nil
}

// Resolve fills the body or media URL of m from its template when the
// message does not set them. An unknown template leaves m unchanged.
func (r *Renderer) Resolve(m domain.MessageConfig) domain.MessageConfig {
	if m.TemplateID == "" {
		return m
	}
	t, ok := r.catalog.Lookup(m.TemplateID)
	if !ok || t.Type != m.Type {
		return m
	}
	if m.Type == domain.MessageText && strings.TrimSpace(m.Body) == "" {
		m.Body = t.Body
	}
	if m.Type != domain.MessageText && strings.TrimSpace(m.MediaURL) == "" {
		m.MediaURL = t.URL
	}
	return m
}

// Render produces a preview of m for one recipient. Message-level default
// variables are overridden by the recipient's own variables. A message
// referencing a template renders the template's body.
func (r *Renderer) Render(m domain.MessageConfig, vars map[string]any) (*Preview, error) {
	if m.TemplateID != "" {
		if _, ok := r.catalog.Lookup(m.TemplateID); !ok {
			return nil, domain.Invalid("unknown_template", m.TemplateID)
		}
	}
	m = r.Resolve(m)

	ctx := make(map[string]interface{}, len(m.Variables)+len(vars))
	for k, v := range m.Variables {
		ctx[k] = v
	}
	for k, v := range vars {
		ctx[k] = v
	}

	tpl, err := r.parse(m.Body)
	if err != nil {
		return nil, domain.Invalid("invalid_template", err.Error())
	}
	out, err := tpl.RenderString(ctx)
	if err != nil {
		logger.Warn("message: render failed", "error", err)
		return nil, domain.Invalid("render_failed", err.Error())
	}
	return &Preview{Output: out, MediaURL: m.MediaURL, Warnings: missingVariables(Normalize(m.Body), ctx)}, nil
}

func (r *Renderer) parse(body string) (*liquid.Template, error) {
	if cached, ok := r.cache.Load(body); ok {
		return cached.(*liquid.Template), nil
	}
	tpl, err := r.engine.ParseString(Normalize(body))
	if err != nil {
		return nil, err
	}
	r.cache.Store(body, tpl)
	return tpl, nil
}

func missingVariables(body string, ctx map[string]interface{}) []Warning {
	var out []Warning
	seen := make(map[string]bool)
	for _, m := range liquidVariable.FindAllStringSubmatch(body, -1) {
		name := m[1]
		root := strings.SplitN(name, ".", 2)[0]
		if seen[name] || isKeyword(root) {
			continue
		}
		seen[name] = true
		if _, ok := ctx[root]; !ok {
			out = append(out, Warning{
				Variable: name,
				Message:  fmt.Sprintf("variable %q is not set for this recipient", name),
			})
		}
	}
	return out
}

func isKeyword(name string) bool {
	switch strings.ToLower(name) {
	case "if", "else", "elsif", "endif", "unless", "endunless", "for", "endfor",
		"case", "when", "endcase", "assign", "capture", "endcapture",
		"forloop", "true", "false", "nil", "empty", "blank":
		return true
	}
	return false
}
