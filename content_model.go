package rng

import (
	"fmt"
	"slices"
	"strings"
)

// Child is one element occurrence recorded inside its parent
type Child struct {
	Name string
	Position
}

// EvaluateContent checks the children of one element instance against the
// element's content model. Missing occurrences are warnings, since a
// document being edited is often incomplete; excess occurrences, choice
// conflicts and children of an empty element are errors. Missing-child
// warnings are anchored at the first child, else at anchor. A zero anchor
// means line 1.
func EvaluateContent(spec *ElementSpec, children []Child, anchor Position) []ValidationError {
	ev := newEvaluator(spec, children, anchor)
	ev.run()
	return ev.diags
}

// bounds is an occurrence range; max is Unbounded when there is no limit
type bounds struct {
	min int
	max int
}

func (b bounds) times(minOccurs, maxOccurs int) bounds {
	next := bounds{min: b.min * minOccurs, max: Unbounded}
	if b.max != Unbounded && maxOccurs != Unbounded {
		next.max = b.max * maxOccurs
	}
	return next
}

func (b bounds) repeated() bool {
	return b.max == Unbounded || b.max > 1
}

type evaluator struct {
	spec        *ElementSpec
	children    []Child
	occurrences map[string][]Child
	anchor      Position
	reported    map[string]bool
	short       map[string]bool
	diags       []ValidationError
}

func newEvaluator(spec *ElementSpec, children []Child, anchor Position) *evaluator {
	ev := &evaluator{
		spec:        spec,
		children:    children,
		occurrences: make(map[string][]Child),
		anchor:      anchor,
		reported:    make(map[string]bool),
		short:       make(map[string]bool),
	}
	for _, c := range children {
		name := localName(c.Name)
		ev.occurrences[name] = append(ev.occurrences[name], c)
	}
	if len(children) > 0 {
		ev.anchor = children[0].Position
	}
	return ev
}

func (ev *evaluator) run() {
	model := ev.spec.ContentModel
	if model == nil {
		return
	}
	ev.evaluate(model, ev.presence(model, bounds{min: model.MinOccurs, max: model.MaxOccurs}))
}

func (ev *evaluator) count(name string) int {
	return len(ev.occurrences[localName(name)])
}

// presence enforces the inner minimums of an optional model once one of
// its elements is used. An absent optional model imposes nothing.
func (ev *evaluator) presence(model *ContentModel, b bounds) bounds {
	if b.min > 0 {
		return b
	}
	if slices.ContainsFunc(model.Names(), func(name string) bool { return ev.count(name) > 0 }) {
		b.min = 1
	}
	return b
}

func (ev *evaluator) evaluate(model *ContentModel, b bounds) {
	switch model.Type {
	case EmptyModel:
		for _, c := range ev.children {
			msg := fmt.Sprintf("Element <%s> must be empty but contains <%s>", ev.spec.Name, c.Name)
			ev.diags = append(ev.diags, newDiagnostic(SeverityError, CodeNotEmpty, c.Position, msg))
		}
	case ChoiceModel:
		ev.choice(model, b)
	case SequenceModel, GroupModel, InterleaveModel, ElementModel:
		for _, item := range model.Items {
			ev.item(item, b)
		}
	}
}

func (ev *evaluator) item(item ContentItem, b bounds) {
	switch item.Kind {
	case ElementItem:
		ev.occurs(item.Name, b.times(item.MinOccurs, item.MaxOccurs))
	case GroupItem:
		inner := b.times(item.MinOccurs, item.MaxOccurs)
		ev.evaluate(item.Content, ev.presence(item.Content, inner))
	}
}

func (ev *evaluator) occurs(name string, b bounds) {
	count := ev.count(name)
	if count < b.min && !ev.reported[CodeMinOccurs+name] {
		ev.reported[CodeMinOccurs+name] = true
		ev.short[localName(name)] = true
		msg := fmt.Sprintf("Element <%s> must appear at least %d time(s) in <%s>", name, b.min, ev.spec.Name)
		ev.diags = append(ev.diags, newDiagnostic(SeverityWarning, CodeMinOccurs, ev.anchor, msg))
	}
	if b.max != Unbounded && count > b.max && !ev.reported[CodeMaxOccurs+name] {
		ev.reported[CodeMaxOccurs+name] = true
		excess := ev.occurrences[localName(name)][b.max]
		msg := fmt.Sprintf("Element <%s> can appear at most %d time(s) in <%s>", name, b.max, ev.spec.Name)
		ev.diags = append(ev.diags, newDiagnostic(SeverityError, CodeMaxOccurs, excess.Position, msg))
	}
}

// choice allows the children of a single alternative. A repeated choice
// may pick a different alternative on each repetition and is not checked
// for exclusivity.
func (ev *evaluator) choice(model *ContentModel, b bounds) {
	if b.repeated() {
		return
	}
	alternatives := make([][]string, len(model.Items))
	for i, item := range model.Items {
		alternatives[i] = item.Names()
	}
	contains := func(names []string, name string) bool {
		return slices.ContainsFunc(names, func(n string) bool {
			return localName(n) == localName(name)
		})
	}
	find := func(name string) int {
		return slices.IndexFunc(alternatives, func(names []string) bool {
			return contains(names, name)
		})
	}

	chosen := -1
	var first Child
	for _, c := range ev.children {
		alt := find(c.Name)
		if alt < 0 {
			continue
		}
		if chosen < 0 {
			chosen, first = alt, c
			continue
		}
		if alt == chosen || contains(alternatives[chosen], c.Name) {
			continue
		}
		msg := fmt.Sprintf("Element <%s> cannot be used together with <%s> in <%s>: only one alternative of the choice is allowed",
			c.Name, first.Name, ev.spec.Name)
		ev.diags = append(ev.diags, newDiagnostic(SeverityError, CodeChoiceConflict, c.Position, msg))
		break
	}

	if chosen >= 0 {
		ev.item(model.Items[chosen], b)
		return
	}
	if b.min == 0 || ev.reported[CodeMinOccurs+"choice"] {
		return
	}
	var names []string
	for _, item := range model.Items {
		if item.Kind != ElementItem && item.Kind != GroupItem || item.MinOccurs == 0 {
			return
		}
		names = append(names, item.Names()...)
	}
	if len(names) == 0 {
		return
	}
	ev.reported[CodeMinOccurs+"choice"] = true
	msg := fmt.Sprintf("Element <%s> must contain one of: %s", ev.spec.Name, strings.Join(names, ", "))
	ev.diags = append(ev.diags, newDiagnostic(SeverityWarning, CodeMinOccurs, ev.anchor, msg))
}

// RequiredChildren returns the element names a model always requires. A
// choice requires none of its alternatives unconditionally.
func RequiredChildren(model *ContentModel) []string {
	if model == nil || model.MinOccurs == 0 {
		return nil
	}
	switch model.Type {
	case ChoiceModel, EmptyModel, TextModel:
		return nil
	}
	var names []string
	for _, item := range model.Items {
		if item.MinOccurs == 0 {
			continue
		}
		switch item.Kind {
		case ElementItem:
			if !slices.Contains(names, item.Name) {
				names = append(names, item.Name)
			}
		case GroupItem:
			for _, name := range RequiredChildren(item.Content) {
				if !slices.Contains(names, name) {
					names = append(names, name)
				}
			}
		}
	}
	return names
}
