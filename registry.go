package rng

import (
	"errors"
	"fmt"
	"slices"
)

// ErrNoSource is returned when a schema is requested without any source
var ErrNoSource = errors.New("no schema source")

// Source provides the element specs of one schema contribution
type Source interface {
	// Key identifies the source in the grammar cache
	Key() string
	Specs() ([]*ElementSpec, error)
	// Cacheable reports whether Specs may be served from the cache
	Cacheable() bool
}

// StaticSource is a built-in table of element specs. The table is rebuilt
// on every request and never cached.
type StaticSource struct {
	Name  string
	Table func() []*ElementSpec
}

func (s StaticSource) Key() string {
	return "static:" + s.Name
}

func (s StaticSource) Specs() ([]*ElementSpec, error) {
	if s.Table == nil {
		return nil, fmt.Errorf("%w: static table %q has no builder", ErrNoSource, s.Name)
	}
	return s.Table(), nil
}

func (s StaticSource) Cacheable() bool {
	return false
}

// GrammarSource is grammar text. Name identifies the grammar in the cache;
// when it is empty the text itself is the key. BaseDir is part of the key
// since it decides which includes are loaded.
type GrammarSource struct {
	Name    string
	Text    string
	BaseDir string
}

func (s GrammarSource) Key() string {
	id := s.Name
	if id == "" {
		id = s.Text
	}
	return "grammar:" + id + "\x00" + s.BaseDir
}

func (s GrammarSource) Specs() ([]*ElementSpec, error) {
	return NewGrammarParser(s.BaseDir).Parse(s.Text)
}

func (s GrammarSource) Cacheable() bool {
	return true
}

// FileSource is a grammar file on disk
type FileSource struct {
	Path string
}

func (s FileSource) Key() string {
	return "file:" + s.Path
}

func (s FileSource) Specs() ([]*ElementSpec, error) {
	return NewGrammarParser("").ParseFile(s.Path)
}

func (s FileSource) Cacheable() bool {
	return true
}

// Registry builds merged schemas from sources, caching parsed grammars
type Registry struct {
	cache *GrammarCache
}

// NewRegistry creates a registry backed by cache. A nil cache gets a
// private one of DefaultCacheSize entries.
func NewRegistry(cache *GrammarCache) *Registry {
	if cache == nil {
		cache = NewGrammarCache(DefaultCacheSize)
	}
	return &Registry{cache: cache}
}

// Cache returns the grammar cache of the registry
func (r *Registry) Cache() *GrammarCache {
	return r.cache
}

// Schema loads every source and merges the results into one schema
func (r *Registry) Schema(id, name string, sources ...Source) (*SchemaInfo, error) {
	if len(sources) == 0 {
		return nil, fmt.Errorf("%w for schema %q", ErrNoSource, id)
	}
	lists := make([][]*ElementSpec, 0, len(sources))
	for _, src := range sources {
		specs, err := r.load(src, name)
		if err != nil {
			return nil, fmt.Errorf("failed to load schema source %s: %w", src.Key(), err)
		}
		lists = append(lists, specs)
	}
	return BuildNamedSchema(id, name, lists...), nil
}

func (r *Registry) load(src Source, name string) ([]*ElementSpec, error) {
	if !src.Cacheable() {
		return src.Specs()
	}
	return r.cache.Get(src.Key()+"\x00"+name, src.Specs)
}

// BuildSchema merges spec lists into an anonymous schema
func BuildSchema(sources ...[]*ElementSpec) *SchemaInfo {
	return BuildNamedSchema("", "", sources...)
}

// BuildNamedSchema merges spec lists into a schema. Specs sharing a name are
// combined: the first non-empty documentation, namespace and content model
// win, children are united in first-seen order and attributes are united
// by name. The inputs are never modified.
func BuildNamedSchema(id, name string, sources ...[]*ElementSpec) *SchemaInfo {
	info := &SchemaInfo{
		ID:     id,
		Name:   name,
		byName: make(map[string]*ElementSpec),
	}
	for _, specs := range sources {
		for _, spec := range specs {
			if spec == nil || spec.Name == "" {
				continue
			}
			merged, ok := info.byName[spec.Name]
			if !ok {
				merged = spec.clone()
				info.byName[spec.Name] = merged
				info.Elements = append(info.Elements, merged)
				continue
			}
			merged.merge(spec)
		}
	}
	return info
}

func (e *ElementSpec) clone() *ElementSpec {
	c := *e
	c.Children = slices.Clone(e.Children)
	c.Attributes = make([]*AttrSpec, 0, len(e.Attributes))
	for _, attr := range e.Attributes {
		a := *attr
		c.Attributes = append(c.Attributes, &a)
	}
	return &c
}

func (e *ElementSpec) merge(other *ElementSpec) {
	if e.Documentation == "" {
		e.Documentation = other.Documentation
	}
	if e.Namespace == "" {
		e.Namespace = other.Namespace
	}
	if e.ContentModel == nil {
		e.ContentModel = other.ContentModel
	}
	for _, child := range other.Children {
		if !slices.Contains(e.Children, child) {
			e.Children = append(e.Children, child)
		}
	}
	for _, attr := range other.Attributes {
		if existing := e.Attribute(attr.Name); existing != nil {
			mergeAttribute(existing, attr)
			continue
		}
		a := *attr
		e.Attributes = append(e.Attributes, &a)
	}
}
