package message

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ignite/wa-outreach/internal/domain"
)

// Template is a ready-made message a campaign can reference by id.
// Text templates carry a Body; audio and video templates carry a URL.
type Template struct {
	ID        string             `json:"id" yaml:"id"`
	Name      string             `json:"name" yaml:"name"`
	Type      domain.MessageType `json:"-" yaml:"-"`
	Body      string             `json:"body,omitempty" yaml:"body,omitempty"`
	URL       string             `json:"url,omitempty" yaml:"url,omitempty"`
	Variables []string           `json:"variables,omitempty" yaml:"variables,omitempty"`
}

// Catalog holds the message templates, keyed by id.
type Catalog struct {
	byID map[string]Template
}

// catalogFile is the YAML layout: message type → list of templates.
type catalogFile map[domain.MessageType][]Template

// DefaultCatalog returns the built-in templates.
func DefaultCatalog() *Catalog {
	c := &Catalog{byID: make(map[string]Template)}
	for typ, list := range builtinTemplates {
		for _, t := range list {
			t.Type = typ
			c.byID[t.ID] = t
		}
	}
	return c
}

var builtinTemplates = catalogFile{
	domain.MessageText: {
		{
			ID:        "recuperacao_padrao_v1",
			Name:      "Recuperação padrão",
			Body:      "Oi {first_name}, sentimos sua falta no grupo! Use o cupom {coupon} e volte a aproveitar.",
			Variables: []string{"first_name", "coupon"},
		},
		{
			ID:        "boas_vindas_v1",
			Name:      "Boas-vindas",
			Body:      "Oi {first_name}, bem-vindo ao grupo {group_name}! Qualquer dúvida, chama por aqui 😊",
			Variables: []string{"first_name", "group_name"},
		},
	},
	domain.MessageAudio: {
		{ID: "audio_oferta_v1", Name: "Áudio de oferta", URL: "https://cdn.exemplo.com/audios/oferta_v1.mp3"},
	},
	domain.MessageVideo: {
		{ID: "video_novidade_v1", Name: "Vídeo novidade", URL: "https://cdn.exemplo.com/videos/novidade_v1.mp4"},
	},
}

// LoadCatalog merges a YAML templates file into the built-in catalog.
// Entries with an existing id replace it.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read message templates: %w", err)
	}
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse message templates: %w", err)
	}

	c := DefaultCatalog()
	for typ, list := range file {
		switch typ {
		case domain.MessageText, domain.MessageAudio, domain.MessageVideo:
		default:
			return nil, fmt.Errorf("message templates: unknown type %q", typ)
		}
		for _, t := range list {
			t.ID = strings.TrimSpace(t.ID)
			if t.ID == "" {
				return nil, fmt.Errorf("message templates: %s entry without id", typ)
			}
			if typ == domain.MessageText && strings.TrimSpace(t.Body) == "" {
				return nil, fmt.Errorf("message templates: text template %q has no body", t.ID)
			}
			if typ != domain.MessageText && strings.TrimSpace(t.URL) == "" {
				return nil, fmt.Errorf("message templates: %s template %q has no url", typ, t.ID)
			}
			t.Type = typ
			c.byID[t.ID] = t
		}
	}
	return c, nil
}

// Lookup returns the template with the given id.
func (c *Catalog) Lookup(id string) (Template, bool) {
	t, ok := c.byID[id]
	return t, ok
}

// Grouped lists templates by message type, each list sorted by id. Every
// type is present, possibly empty.
func (c *Catalog) Grouped() map[domain.MessageType][]Template {
	out := map[domain.MessageType][]Template{
		domain.MessageText:  {},
		domain.MessageAudio: {},
		domain.MessageVideo: {},
	}
	for _, t := range c.byID {
		out[t.Type] = append(out[t.Type], t)
	}
	for _, list := range out {
		sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	}
	return out
}
