package rng

import (
	"slices"
	"strings"
)

// RNGNamespace is the RelaxNG structure namespace
const RNGNamespace = "http://relaxng.org/ns/structure/1.0"

// AnnotationNamespace is the RelaxNG DTD compatibility annotations namespace
const AnnotationNamespace = "http://relaxng.org/ns/compatibility/annotations/1.0"

// Unbounded marks a MaxOccurs without upper limit
const Unbounded = -1

// ElementSpec describes one element extracted from a grammar or a static table.
// A nil or empty Children list means the element places no constraint on
// which elements may appear inside it.
type ElementSpec struct {
	Name          string
	Namespace     string
	Documentation string
	Children      []string
	Attributes    []*AttrSpec
	ContentModel  *ContentModel
}

// Constrained reports whether the element restricts its children by name
func (e *ElementSpec) Constrained() bool {
	return e != nil && len(e.Children) > 0
}

// AllowsChild reports whether name may appear directly inside the element
func (e *ElementSpec) AllowsChild(name string) bool {
	if !e.Constrained() {
		return true
	}
	if slices.Contains(e.Children, name) {
		return true
	}
	local := localName(name)
	return local != name && slices.Contains(e.Children, local)
}

// Attribute returns the declared attribute with the given name, or nil
func (e *ElementSpec) Attribute(name string) *AttrSpec {
	if e == nil {
		return nil
	}
	for _, attr := range e.Attributes {
		if attr.Name == name {
			return attr
		}
	}
	return nil
}

// RequiredAttributes returns the attributes that must be present
func (e *ElementSpec) RequiredAttributes() []*AttrSpec {
	var required []*AttrSpec
	for _, attr := range e.Attributes {
		if attr.Required {
			required = append(required, attr)
		}
	}
	return required
}

// AttrSpec describes one attribute of an element
type AttrSpec struct {
	Name          string
	Required      bool
	Values        AttrValues
	Documentation string
}

type valueKind uint8

const (
	openValues valueKind = iota
	enumValues
)

// AttrValues is the value constraint of an attribute: either open (any
// value is accepted) or a closed enumeration.
type AttrValues struct {
	kind   valueKind
	values []string
}

// OpenValues accepts any attribute value
func OpenValues() AttrValues {
	return AttrValues{kind: openValues}
}

// EnumValues restricts an attribute to the given literals
func EnumValues(values ...string) AttrValues {
	var list []string
	for _, v := range values {
		if !slices.Contains(list, v) {
			list = append(list, v)
		}
	}
	return AttrValues{kind: enumValues, values: list}
}

// Enumerated reports whether the attribute has a closed value set
func (v AttrValues) Enumerated() bool {
	return v.kind == enumValues
}

// Accepts reports whether value satisfies the constraint
func (v AttrValues) Accepts(value string) bool {
	if v.kind == openValues {
		return true
	}
	return slices.Contains(v.values, value)
}

// List returns a copy of the enumerated values; nil for open values
func (v AttrValues) List() []string {
	if v.kind == openValues {
		return nil
	}
	return slices.Clone(v.values)
}

func (v AttrValues) String() string {
	if v.kind == openValues {
		return "*"
	}
	return strings.Join(v.values, "|")
}

// ModelType is the kind of a content model
type ModelType string

const (
	SequenceModel   ModelType = "sequence"
	ChoiceModel     ModelType = "choice"
	InterleaveModel ModelType = "interleave"
	GroupModel      ModelType = "group"
	ElementModel    ModelType = "element"
	TextModel       ModelType = "text"
	EmptyModel      ModelType = "empty"
)

// ContentModel is the structured description of the children permitted in
// an element. Items are ordered for sequence and group models.
type ContentModel struct {
	Type      ModelType
	Items     []ContentItem
	MinOccurs int
	MaxOccurs int // Unbounded for no limit
}

// ItemKind is the kind of a content item. ModelItem marks a reference left
// unresolved because expanding it again would recurse into itself.
type ItemKind string

const (
	ElementItem ItemKind = "element"
	TextItem    ItemKind = "text"
	GroupItem   ItemKind = "group"
	ModelItem   ItemKind = "model"
)

// ContentItem is one particle of a content model
type ContentItem struct {
	Kind      ItemKind
	Name      string
	Content   *ContentModel
	MinOccurs int
	MaxOccurs int
}

// Names returns the element names an item can produce, nested groups included
func (ci ContentItem) Names() []string {
	switch ci.Kind {
	case ElementItem:
		return []string{ci.Name}
	case GroupItem:
		return ci.Content.Names()
	}
	return nil
}

// Names returns the element names reachable in the model
func (cm *ContentModel) Names() []string {
	if cm == nil {
		return nil
	}
	var names []string
	for _, item := range cm.Items {
		for _, n := range item.Names() {
			if !slices.Contains(names, n) {
				names = append(names, n)
			}
		}
	}
	return names
}

// Repeated reports whether the model may occur more than once
func (cm *ContentModel) Repeated() bool {
	return cm.MaxOccurs == Unbounded || cm.MaxOccurs > 1
}

// SchemaInfo is a merged, ready to query schema
type SchemaInfo struct {
	ID       string
	Name     string
	Elements []*ElementSpec
	byName   map[string]*ElementSpec
}

// Lookup finds the spec of an element by tag name. A prefixed tag name
// falls back to its local part.
func (s *SchemaInfo) Lookup(name string) (*ElementSpec, bool) {
	if s == nil {
		return nil, false
	}
	if spec, ok := s.byName[name]; ok {
		return spec, true
	}
	if local := localName(name); local != name {
		spec, ok := s.byName[local]
		return spec, ok
	}
	return nil, false
}

// Names returns the element names in schema order
func (s *SchemaInfo) Names() []string {
	names := make([]string, 0, len(s.Elements))
	for _, e := range s.Elements {
		names = append(names, e.Name)
	}
	return names
}

// Len returns the number of elements in the schema
func (s *SchemaInfo) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Elements)
}

func localName(name string) string {
	if ix := strings.IndexByte(name, ':'); ix >= 0 {
		return name[ix+1:]
	}
	return name
}
