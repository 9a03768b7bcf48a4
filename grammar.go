package rng

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/agentflare-ai/go-xmldom"
	"golang.org/x/text/cases"
)

// ErrMalformedGrammar is returned when a grammar is not well-formed XML
var ErrMalformedGrammar = errors.New("malformed grammar")

// ParseGrammar extracts the element specifications declared in a RelaxNG
// grammar written in XML syntax. Includes are not followed; use a
// GrammarParser with a base directory for that.
func ParseGrammar(text string) ([]*ElementSpec, error) {
	return NewGrammarParser("").Parse(text)
}

// definition gathers every define of one name
type definition struct {
	name    string
	combine string
	bodies  []xmldom.Element
}

type elementPattern struct {
	node      xmldom.Element
	namespace string
	fallback  string // documentation of the enclosing define
}

type include struct {
	href string
	base string
}

// grammar is the flattened view of one or more grammar documents
type grammar struct {
	defines  map[string]*definition
	elements []elementPattern
}

func newGrammar() *grammar {
	return &grammar{
		defines: make(map[string]*definition),
	}
}

// collect registers the defines and element patterns found under root and
// returns the includes it refers to.
func (g *grammar) collect(root xmldom.Element, base string) []include {
	var includes []include
	var walk func(node xmldom.Element, ns, doc string)
	walk = func(node xmldom.Element, ns, doc string) {
		if !isPattern(node) {
			return
		}
		if node.HasAttribute("ns") {
			ns = string(node.GetAttribute("ns"))
		}
		switch string(node.LocalName()) {
		case "define":
			g.define(node)
			doc = documentation(node)
		case "element":
			g.elements = append(g.elements, elementPattern{
				node:      node,
				namespace: ns,
				fallback:  doc,
			})
			doc = ""
		case "include":
			if href := strings.TrimSpace(string(node.GetAttribute("href"))); href != "" {
				includes = append(includes, include{href: href, base: base})
			}
		}
		for _, child := range childElements(node) {
			walk(child, ns, doc)
		}
	}
	walk(root, "", "")
	return includes
}

// define registers a define element. The first definition of a name wins,
// except when a combine attribute asks for the bodies to be merged.
func (g *grammar) define(node xmldom.Element) {
	name := strings.TrimSpace(string(node.GetAttribute("name")))
	if name == "" {
		return
	}
	combine := string(node.GetAttribute("combine"))
	def, ok := g.defines[name]
	if !ok {
		g.defines[name] = &definition{
			name:    name,
			combine: combine,
			bodies:  []xmldom.Element{node},
		}
		return
	}
	if combine == "" && def.combine == "" {
		return
	}
	if def.combine == "" {
		def.combine = combine
	}
	def.bodies = append(def.bodies, node)
}

// specs builds one ElementSpec per distinct element name, sorted case
// insensitively.
func (g *grammar) specs() []*ElementSpec {
	var (
		list []*ElementSpec
		seen = make(map[string]bool)
	)
	for _, pat := range g.elements {
		name := elementName(pat.node)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		list = append(list, g.extract(name, pat))
	}
	sortSpecs(list)
	return list
}

func sortSpecs(list []*ElementSpec) {
	fold := cases.Fold()
	keys := make(map[*ElementSpec]string, len(list))
	for _, spec := range list {
		keys[spec] = fold.String(spec.Name)
	}
	slices.SortStableFunc(list, func(a, b *ElementSpec) int {
		return strings.Compare(keys[a], keys[b])
	})
}

func (g *grammar) extract(name string, pat elementPattern) *ElementSpec {
	spec := &ElementSpec{
		Name:          name,
		Namespace:     pat.namespace,
		Documentation: documentation(pat.node),
	}
	if spec.Documentation == "" {
		spec.Documentation = pat.fallback
	}
	body := patternBody(pat.node)

	var attrs attributeSet
	for _, node := range body {
		g.walkAttributes(node, false, visitSet{}, &attrs)
	}
	spec.Attributes = attrs.list

	var children nameSet
	for _, node := range body {
		g.walkChildren(node, visitSet{}, &children)
	}
	if !children.wildcard {
		spec.Children = children.names
	}

	spec.ContentModel = g.buildModel(body, visitSet{})
	return spec
}

// visitSet holds the refs being expanded on the current branch. Names are
// removed again once their expansion returns so that sibling branches can
// expand the same ref.
type visitSet map[string]bool

// expand calls fn with the bodies of the named define unless the name is
// already being expanded on this branch. It reports whether fn was called.
func (g *grammar) expand(name string, visited visitSet, fn func(def *definition)) bool {
	if visited[name] {
		return false
	}
	def, ok := g.defines[name]
	if !ok {
		return true
	}
	visited[name] = true
	defer delete(visited, name)
	fn(def)
	return true
}

type attributeSet struct {
	list []*AttrSpec
}

func (s *attributeSet) add(attr *AttrSpec) {
	ix := slices.IndexFunc(s.list, func(a *AttrSpec) bool {
		return a.Name == attr.Name
	})
	if ix < 0 {
		s.list = append(s.list, attr)
		return
	}
	mergeAttribute(s.list[ix], attr)
}

// mergeAttribute folds other into attr: required is never downgraded, an
// enumeration beats open values and the first documentation wins.
func mergeAttribute(attr, other *AttrSpec) {
	attr.Required = attr.Required || other.Required
	if !attr.Values.Enumerated() && other.Values.Enumerated() {
		attr.Values = other.Values
	}
	if attr.Documentation == "" {
		attr.Documentation = other.Documentation
	}
}

func (g *grammar) walkAttributes(node xmldom.Element, optional bool, visited visitSet, attrs *attributeSet) {
	if !isPattern(node) {
		return
	}
	switch string(node.LocalName()) {
	case "attribute":
		name := elementName(node)
		if name == "" {
			return
		}
		attrs.add(&AttrSpec{
			Name:          name,
			Required:      !optional,
			Values:        g.attributeValues(patternBody(node), visited),
			Documentation: documentation(node),
		})
	case "optional", "zeroOrMore", "choice":
		for _, child := range childElements(node) {
			g.walkAttributes(child, true, visited, attrs)
		}
	case "oneOrMore", "group", "interleave", "mixed":
		for _, child := range childElements(node) {
			g.walkAttributes(child, optional, visited, attrs)
		}
	case "ref":
		g.expand(refName(node), visited, func(def *definition) {
			alternative := optional || (len(def.bodies) > 1 && def.combine != "interleave")
			for _, body := range def.bodies {
				for _, child := range childElements(body) {
					g.walkAttributes(child, alternative, visited, attrs)
				}
			}
		})
	}
}

// attributeValues returns an enumeration when every value the attribute can
// take is a literal, open values otherwise.
func (g *grammar) attributeValues(body []xmldom.Element, visited visitSet) AttrValues {
	var (
		values []string
		open   bool
	)
	var walk func(node xmldom.Element)
	walk = func(node xmldom.Element) {
		if !isPattern(node) {
			return
		}
		switch string(node.LocalName()) {
		case "value":
			values = append(values, strings.TrimSpace(string(node.TextContent())))
		case "choice", "group":
			for _, child := range childElements(node) {
				walk(child)
			}
		case "ref":
			g.expand(refName(node), visited, func(def *definition) {
				for _, b := range def.bodies {
					for _, child := range childElements(b) {
						walk(child)
					}
				}
			})
		case "data", "text", "list":
			open = true
		}
	}
	for _, node := range body {
		walk(node)
	}
	if open || len(values) == 0 {
		return OpenValues()
	}
	return EnumValues(values...)
}

type nameSet struct {
	names    []string
	wildcard bool
}

func (s *nameSet) add(name string) {
	if !slices.Contains(s.names, name) {
		s.names = append(s.names, name)
	}
}

func (g *grammar) walkChildren(node xmldom.Element, visited visitSet, names *nameSet) {
	if !isPattern(node) {
		return
	}
	switch string(node.LocalName()) {
	case "element":
		if name := elementName(node); name != "" {
			names.add(name)
		} else {
			names.wildcard = true
		}
	case "ref":
		g.expand(refName(node), visited, func(def *definition) {
			for _, body := range def.bodies {
				for _, child := range childElements(body) {
					g.walkChildren(child, visited, names)
				}
			}
		})
	case "parentRef", "externalRef":
		names.wildcard = true
	case "group", "choice", "interleave", "optional", "zeroOrMore", "oneOrMore", "mixed":
		for _, child := range childElements(node) {
			g.walkChildren(child, visited, names)
		}
	}
}

// buildModel returns the content model of a list of sibling patterns: the
// model of the only structural pattern, or an implicit sequence.
func (g *grammar) buildModel(nodes []xmldom.Element, visited visitSet) *ContentModel {
	var structural []xmldom.Element
	for _, node := range nodes {
		if isStructural(node) {
			structural = append(structural, node)
		}
	}
	switch len(structural) {
	case 0:
		return nil
	case 1:
		return g.modelOf(structural[0], visited)
	default:
		return g.composite(SequenceModel, structural, visited)
	}
}

func (g *grammar) composite(typ ModelType, nodes []xmldom.Element, visited visitSet) *ContentModel {
	models := make([]*ContentModel, 0, len(nodes))
	for _, node := range nodes {
		if isStructural(node) {
			models = append(models, g.modelOf(node, visited))
		}
	}
	return combine(typ, models)
}

// combine joins models into one model of type typ. Missing and empty
// models add no items. In a choice they are an alternative matching no
// children, which makes the whole choice optional.
func combine(typ ModelType, models []*ContentModel) *ContentModel {
	var (
		items    []ContentItem
		nullable bool
	)
	for _, m := range models {
		if m == nil || m.Type == EmptyModel {
			nullable = true
			continue
		}
		items = append(items, asItem(m))
	}
	if len(items) == 0 {
		return nil
	}
	cm := &ContentModel{Type: typ, Items: items, MinOccurs: 1, MaxOccurs: 1}
	if typ == ChoiceModel && nullable {
		cm.MinOccurs = 0
	}
	return cm
}

func (g *grammar) modelOf(node xmldom.Element, visited visitSet) *ContentModel {
	switch string(node.LocalName()) {
	case "element":
		name := elementName(node)
		if name == "" {
			return nil
		}
		item := ContentItem{Kind: ElementItem, Name: name, MinOccurs: 1, MaxOccurs: 1}
		return single(ElementModel, item)
	case "text", "data", "value", "list":
		return single(TextModel, ContentItem{Kind: TextItem, MinOccurs: 1, MaxOccurs: 1})
	case "empty":
		return &ContentModel{Type: EmptyModel, MinOccurs: 1, MaxOccurs: 1}
	case "group":
		return g.composite(GroupModel, childElements(node), visited)
	case "choice":
		return g.composite(ChoiceModel, childElements(node), visited)
	case "interleave":
		return g.composite(InterleaveModel, childElements(node), visited)
	case "mixed":
		text := ContentItem{Kind: TextItem, MinOccurs: 0, MaxOccurs: Unbounded}
		inner := g.buildModel(childElements(node), visited)
		if inner == nil {
			return single(TextModel, text)
		}
		items := []ContentItem{text}
		if inner.Type == InterleaveModel && inner.MinOccurs == 1 && inner.MaxOccurs == 1 {
			items = append(items, inner.Items...)
		} else {
			items = append(items, asItem(inner))
		}
		return &ContentModel{Type: InterleaveModel, Items: items, MinOccurs: 1, MaxOccurs: 1}
	case "optional", "zeroOrMore", "oneOrMore":
		return repeat(string(node.LocalName()), g.buildModel(childElements(node), visited))
	case "ref":
		name := refName(node)
		var model *ContentModel
		resolved := g.expand(name, visited, func(def *definition) {
			if len(def.bodies) == 1 {
				model = g.buildModel(childElements(def.bodies[0]), visited)
				return
			}
			typ := ChoiceModel
			if def.combine == "interleave" {
				typ = InterleaveModel
			}
			models := make([]*ContentModel, 0, len(def.bodies))
			for _, body := range def.bodies {
				models = append(models, g.buildModel(childElements(body), visited))
			}
			model = combine(typ, models)
		})
		if !resolved {
			return single(GroupModel, ContentItem{Kind: ModelItem, Name: name, MinOccurs: 1, MaxOccurs: 1})
		}
		return model
	}
	return nil
}

func single(typ ModelType, item ContentItem) *ContentModel {
	return &ContentModel{Type: typ, Items: []ContentItem{item}, MinOccurs: 1, MaxOccurs: 1}
}

// repeat applies a cardinality wrapper to m. The type of m is unchanged.
func repeat(wrapper string, m *ContentModel) *ContentModel {
	if m == nil {
		return nil
	}
	switch wrapper {
	case "optional":
		m.MinOccurs = 0
	case "zeroOrMore":
		m.MinOccurs = 0
		m.MaxOccurs = Unbounded
	case "oneOrMore":
		m.MaxOccurs = Unbounded
	}
	return m
}

// asItem turns a model into an item of an enclosing model. Single element,
// text and placeholder models are lifted so that the item carries the
// cardinality directly.
func asItem(m *ContentModel) ContentItem {
	lift := func(item ContentItem) ContentItem {
		item.MinOccurs = m.MinOccurs
		item.MaxOccurs = m.MaxOccurs
		return item
	}
	switch {
	case m.Type == ElementModel && len(m.Items) == 1:
		return lift(m.Items[0])
	case m.Type == TextModel:
		return lift(ContentItem{Kind: TextItem})
	case len(m.Items) == 1 && m.Items[0].Kind == ModelItem:
		return lift(m.Items[0])
	}
	return ContentItem{
		Kind:      GroupItem,
		Content:   m,
		MinOccurs: m.MinOccurs,
		MaxOccurs: m.MaxOccurs,
	}
}

func isPattern(node xmldom.Element) bool {
	ns := string(node.NamespaceURI())
	return ns == RNGNamespace || ns == ""
}

func isStructural(node xmldom.Element) bool {
	if !isPattern(node) {
		return false
	}
	switch string(node.LocalName()) {
	case "element", "ref", "group", "choice", "interleave", "optional",
		"zeroOrMore", "oneOrMore", "mixed", "text", "empty", "data", "value", "list":
		return true
	}
	return false
}

// patternBody returns the pattern children of an element or attribute
// pattern, leaving out its name class.
func patternBody(node xmldom.Element) []xmldom.Element {
	children := childElements(node)
	if node.HasAttribute("name") {
		return children
	}
	for i, child := range children {
		if isPattern(child) {
			return slices.Delete(children, i, i+1)
		}
	}
	return children
}

// elementName returns the name of an element or attribute pattern, from its
// name attribute or a name child. It is empty for wildcard name classes.
func elementName(node xmldom.Element) string {
	if name := strings.TrimSpace(string(node.GetAttribute("name"))); name != "" {
		return name
	}
	for _, child := range childElements(node) {
		if isPattern(child) && string(child.LocalName()) == "name" {
			return strings.TrimSpace(string(child.TextContent()))
		}
	}
	return ""
}

func refName(node xmldom.Element) string {
	return strings.TrimSpace(string(node.GetAttribute("name")))
}

// documentation returns the text of the first documentation annotation
// attached to node, with whitespace collapsed.
func documentation(node xmldom.Element) string {
	for _, child := range childElements(node) {
		if string(child.LocalName()) != "documentation" {
			continue
		}
		return strings.Join(strings.Fields(string(child.TextContent())), " ")
	}
	return ""
}

func childElements(elem xmldom.Element) []xmldom.Element {
	children := elem.Children()
	list := make([]xmldom.Element, 0, children.Length())
	for i := uint(0); i < children.Length(); i++ {
		if child := children.Item(i); child != nil {
			list = append(list, child)
		}
	}
	return list
}

func decodeGrammar(text string) (xmldom.Element, error) {
	doc, err := xmldom.Decode(strings.NewReader(text))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedGrammar, err)
	}
	root := doc.DocumentElement()
	if root == nil {
		return nil, fmt.Errorf("%w: no root element", ErrMalformedGrammar)
	}
	return root, nil
}
