package rng

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/midbel/distance"
)

// maxHints bounds the did-you-mean suggestions attached to a diagnostic
const maxHints = 3

// Mode selects how strictly incomplete documents are judged
type Mode uint8

const (
	// EditMode reports problems a document under edit passes through as
	// warnings
	EditMode Mode = iota
	// FinalMode reports every problem as an error
	FinalMode
)

func (m Mode) String() string {
	if m == FinalMode {
		return "final"
	}
	return "edit"
}

// editTolerant lists the diagnostics that are warnings in EditMode
var editTolerant = map[string]bool{
	CodeUnknownElement:   true,
	CodeUnknownAttribute: true,
	CodeAttributeValue:   true,
	CodeMinOccurs:        true,
	CodeMissingChild:     true,
	CodeSelfClosing:      true,
}

// Option configures a Validator
type Option func(*Validator)

// WithMode sets the validation mode
func WithMode(mode Mode) Option {
	return func(v *Validator) {
		v.mode = mode
	}
}

// Validator checks document text against a schema
type Validator struct {
	schema *SchemaInfo
	mode   Mode
}

// NewValidator creates a new validator for a schema. A nil schema only
// checks well-formedness.
func NewValidator(schema *SchemaInfo, opts ...Option) *Validator {
	v := &Validator{schema: schema}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate checks text against schema in EditMode
func Validate(text string, schema *SchemaInfo) []ValidationError {
	return NewValidator(schema).Validate(text)
}

// Validate checks the document text. Well-formedness problems stop the
// analysis early; everything else is reported in one pass. It never
// panics.
func (v *Validator) Validate(text string) (diags []ValidationError) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("validation aborted", "panic", r)
			msg := fmt.Sprintf("Internal validation error: %v", r)
			diags = []ValidationError{newDiagnostic(SeverityError, CodeInternal, Position{}, msg)}
		}
	}()

	scan := NewScanner(text)
	if wf := checkWellFormed(scan); len(wf) > 0 {
		return wf
	}
	if wf := checkDecodes(text); len(wf) > 0 {
		return wf
	}
	if v.schema.Len() == 0 {
		return nil
	}

	run := &validation{schema: v.schema, scan: scan}
	for _, tok := range scan.Tokens() {
		switch tok.Kind {
		case OpenTag, SelfClosingTag:
			run.open(tok)
		case CloseTag:
			run.close(tok)
		}
	}
	return v.apply(run.diags)
}

func (v *Validator) apply(diags []ValidationError) []ValidationError {
	if v.mode != FinalMode {
		return diags
	}
	for i := range diags {
		if editTolerant[diags[i].Code] {
			diags[i].Severity = SeverityError
		}
	}
	return diags
}

// frame is an element whose closing tag has not been seen yet
type frame struct {
	name     string
	spec     *ElementSpec
	at       Position
	children []Child
}

type validation struct {
	schema *SchemaInfo
	scan   *Scanner
	stack  []*frame
	diags  []ValidationError
}

func (r *validation) report(sev Severity, code string, start, end int, msg string, hints []string) {
	diag := newDiagnostic(sev, code, r.scan.Position(start), msg).spanning(r.scan.Position(end))
	diag.Hints = hints
	r.diags = append(r.diags, diag)
}

func (r *validation) top() *frame {
	if len(r.stack) == 0 {
		return nil
	}
	return r.stack[len(r.stack)-1]
}

func (r *validation) open(tok Token) {
	at := r.scan.Position(tok.Offset)
	nameEnd := tok.NameOffset + len(tok.Name)

	spec, known := r.schema.Lookup(tok.Name)
	if !known {
		msg := fmt.Sprintf("Unknown element <%s>", tok.Name)
		r.report(SeverityWarning, CodeUnknownElement, tok.Offset, nameEnd, msg, suggest(tok.Name, r.schema.Names()))
	}

	if parent := r.top(); parent != nil {
		if parent.spec.Constrained() && !parent.spec.AllowsChild(tok.Name) {
			msg := fmt.Sprintf("Element <%s> is not allowed inside <%s>", tok.Name, parent.name)
			r.report(SeverityError, CodeNotAllowed, tok.Offset, nameEnd, msg, suggest(tok.Name, parent.spec.Children))
		}
		parent.children = append(parent.children, Child{Name: tok.Name, Position: at})
	}

	if known {
		r.attributes(tok, spec)
	}

	if tok.Kind == SelfClosingTag {
		if known {
			if required := RequiredChildren(spec.ContentModel); len(required) > 0 {
				msg := fmt.Sprintf("Element <%s> is self-closing but requires child elements: %s",
					tok.Name, strings.Join(required, ", "))
				r.report(SeverityWarning, CodeSelfClosing, tok.Offset, tok.End, msg, nil)
			}
		}
		return
	}
	r.stack = append(r.stack, &frame{name: tok.Name, spec: spec, at: at})
}

func (r *validation) attributes(tok Token, spec *ElementSpec) {
	seen := make(map[string]bool)
	for _, attr := range r.scan.Attributes(tok) {
		if isNamespaceDecl(attr.Name) {
			continue
		}
		decl := spec.Attribute(attr.Name)
		if decl == nil && localName(attr.Name) != attr.Name {
			decl = spec.Attribute(localName(attr.Name))
		}
		if decl == nil {
			names := make([]string, 0, len(spec.Attributes))
			for _, a := range spec.Attributes {
				names = append(names, a.Name)
			}
			msg := fmt.Sprintf("Unknown attribute '%s' on <%s>", attr.Name, tok.Name)
			r.report(SeverityWarning, CodeUnknownAttribute, attr.Offset, attr.End, msg, suggest(attr.Name, names))
			continue
		}
		seen[decl.Name] = true
		if !decl.Values.Accepts(attr.Value) {
			allowed := decl.Values.List()
			msg := fmt.Sprintf("Invalid value '%s' for attribute '%s' on <%s>: expected one of %s",
				attr.Value, attr.Name, tok.Name, strings.Join(allowed, ", "))
			r.report(SeverityWarning, CodeAttributeValue, attr.Offset, attr.End, msg, suggest(attr.Value, allowed))
		}
	}
	for _, req := range spec.RequiredAttributes() {
		if seen[req.Name] {
			continue
		}
		msg := fmt.Sprintf("Element <%s> is missing required attribute '%s'", tok.Name, req.Name)
		r.report(SeverityError, CodeMissingAttribute, tok.Offset, tok.End, msg, nil)
	}
}

// close pops the frame of tok. Frames above the nearest frame of the same
// name are dropped unchecked.
func (r *validation) close(tok Token) {
	ix := -1
	for i := len(r.stack) - 1; i >= 0; i-- {
		if r.stack[i].name == tok.Name {
			ix = i
			break
		}
	}
	if ix < 0 {
		return
	}
	if ix != len(r.stack)-1 {
		slog.Debug("unwinding unclosed elements", "close", tok.Name, "dropped", len(r.stack)-1-ix)
	}
	f := r.stack[ix]
	r.stack = r.stack[:ix]
	r.finish(f)
}

func (r *validation) finish(f *frame) {
	if f.spec == nil {
		return
	}
	ev := newEvaluator(f.spec, f.children, Position{})
	ev.run()
	r.diags = append(r.diags, ev.diags...)

	for _, name := range RequiredChildren(f.spec.ContentModel) {
		local := localName(name)
		if ev.short[local] || ev.count(name) > 0 {
			continue
		}
		msg := fmt.Sprintf("Element <%s> is missing required child <%s>", f.name, name)
		r.diags = append(r.diags, newDiagnostic(SeverityWarning, CodeMissingChild, f.at, msg))
	}
}

func isNamespaceDecl(name string) bool {
	return name == "xmlns" || strings.HasPrefix(name, "xmlns:")
}

// suggest returns the candidates closest to name
func suggest(name string, candidates []string) []string {
	if len(candidates) == 0 {
		return nil
	}
	hints := distance.Levenshtein(name, slices.Clone(candidates))
	if len(hints) > maxHints {
		hints = hints[:maxHints]
	}
	return hints
}
