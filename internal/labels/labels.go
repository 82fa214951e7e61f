// Package labels maps internal status codes to display labels.
//
// Run, target and event codes live in separate namespaces: "sent" as a
// target status and "sent" as an event kind are looked up independently.
// A lookup that cannot be satisfied returns the raw code.
package labels

import (
	"fmt"
	"os"
	"sync"

	"github.com/ignite/wa-outreach/internal/domain"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

type key struct {
	domain domain.StatusDomain
	code   string
	lang   string
}

// Resolver is safe for concurrent use.
type Resolver struct {
	mu            sync.RWMutex
	catalog       map[key]string
	supported     []language.Tag
	matcher       language.Matcher
	defaultLocale string
}

// New returns a Resolver preloaded with the built-in catalogs. An empty
// locale passed to Label resolves to defaultLocale.
func New(defaultLocale string) *Resolver {
	r := &Resolver{catalog: make(map[key]string)}
	for lang, domains := range builtin {
		for d, codes := range domains {
			for code, label := range codes {
				r.catalog[key{d, code, lang}] = label
			}
		}
	}
	r.rebuildMatcher()
	r.defaultLocale = r.baseOf(defaultLocale)
	if r.defaultLocale == "" {
		r.defaultLocale = "pt"
	}
	return r
}

// Label returns the display label for code in the given domain and locale.
func (r *Resolver) Label(d domain.StatusDomain, code, locale string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	lang := r.resolve(locale)
	if lang == "" {
		return code
	}
	if label, ok := r.catalog[key{d, code, lang}]; ok {
		return label
	}
	return code
}

// Base returns the catalog language locale resolves to: the default for an
// empty locale, "" when no supported language matches. Two locales with the
// same Base get identical labels.
func (r *Resolver) Base(locale string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.resolve(locale)
}

func (r *Resolver) resolve(locale string) string {
	if locale == "" {
		return r.defaultLocale
	}
	return r.baseOf(locale)
}

// DefaultLocale returns the base language used for empty locales.
func (r *Resolver) DefaultLocale() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.defaultLocale
}

// Set adds or replaces a single mapping. New languages become matchable.
func (r *Resolver) Set(d domain.StatusDomain, code, locale, label string) error {
	tag, err := language.Parse(locale)
	if err != nil {
		return fmt.Errorf("parse locale %q: %w", locale, err)
	}
	base, _ := tag.Base()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.catalog[key{d, code, base.String()}] = label
	r.rebuildMatcher()
	return nil
}

// overrideFile is the YAML layout: locale → domain → code → label.
type overrideFile map[string]map[domain.StatusDomain]map[string]string

// LoadOverrides merges a YAML overrides file into the catalog.
func (r *Resolver) LoadOverrides(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read label overrides: %w", err)
	}
	var file overrideFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse label overrides: %w", err)
	}
	for locale, domains := range file {
		for d, codes := range domains {
			switch d {
			case domain.DomainRun, domain.DomainTarget, domain.DomainEvent:
			default:
				return fmt.Errorf("label overrides: unknown domain %q", d)
			}
			for code, label := range codes {
				if err := r.Set(d, code, locale, label); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// baseOf matches a locale such as "pt-BR" or "en_US" to a supported base
// language. It returns "" when nothing supported matches.
func (r *Resolver) baseOf(locale string) string {
	tag, err := language.Parse(locale)
	if err != nil {
		return ""
	}
	_, idx, conf := r.matcher.Match(tag)
	if conf == language.No {
		return ""
	}
	base, _ := r.supported[idx].Base()
	return base.String()
}

// rebuildMatcher must be called with the write lock held (or before the
// resolver is shared).
func (r *Resolver) rebuildMatcher() {
	seen := map[string]bool{}
	r.supported = r.supported[:0]
	for k := range r.catalog {
		if seen[k.lang] {
			continue
		}
		seen[k.lang] = true
		r.supported = append(r.supported, language.Make(k.lang))
	}
	r.matcher = language.NewMatcher(r.supported)
}
