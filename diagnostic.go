package rng

import (
	"fmt"
	"strings"
)

// Severity represents the severity level of a diagnostic
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Diagnostic codes
const (
	CodeMalformedTag     = "wf-malformed-tag"
	CodeOrphanClose      = "wf-orphan-close"
	CodeUnclosed         = "wf-unclosed"
	CodeNotWellFormed    = "wf-parse"
	CodeUnknownElement   = "rng-unknown-element"
	CodeNotAllowed       = "rng-not-allowed"
	CodeUnknownAttribute = "rng-unknown-attribute"
	CodeAttributeValue   = "rng-attribute-value"
	CodeMissingAttribute = "rng-missing-attribute"
	CodeSelfClosing      = "rng-self-closing-required"
	CodeChoiceConflict   = "rng-choice-conflict"
	CodeMinOccurs        = "rng-min-occurs"
	CodeMaxOccurs        = "rng-max-occurs"
	CodeNotEmpty         = "rng-not-empty"
	CodeMissingChild     = "rng-missing-child"
	CodeInternal         = "rng-internal"
)

// Position is a 1-based line and column in a document
type Position struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// IsZero reports whether the position is unset
func (p Position) IsZero() bool {
	return p.Line == 0
}

// ValidationError is one diagnostic produced by a validation call
type ValidationError struct {
	Code      string   `json:"code"`
	Message   string   `json:"message"`
	Line      int      `json:"line"`
	Column    int      `json:"column"`
	Severity  Severity `json:"severity"`
	EndLine   int      `json:"endLine,omitempty"`
	EndColumn int      `json:"endColumn,omitempty"`
	Hints     []string `json:"hints,omitempty"`
}

func (v ValidationError) Error() string {
	return fmt.Sprintf("%d:%d: %s: %s", v.Line, v.Column, v.Severity, v.Message)
}

// Start returns the position the diagnostic is anchored at
func (v ValidationError) Start() Position {
	return Position{Line: v.Line, Column: v.Column}
}

func newDiagnostic(sev Severity, code string, at Position, msg string) ValidationError {
	if at.IsZero() {
		at = Position{Line: 1, Column: 1}
	}
	return ValidationError{
		Code:     code,
		Message:  msg,
		Line:     at.Line,
		Column:   at.Column,
		Severity: sev,
	}
}

func (v ValidationError) spanning(end Position) ValidationError {
	if !end.IsZero() {
		v.EndLine = end.Line
		v.EndColumn = end.Column
	}
	return v
}

// HasErrors reports whether any diagnostic is an error
func HasErrors(list []ValidationError) bool {
	return Count(list, SeverityError) > 0
}

// Count returns the number of diagnostics with the given severity
func Count(list []ValidationError, sev Severity) int {
	var n int
	for _, v := range list {
		if v.Severity == sev {
			n++
		}
	}
	return n
}

// ErrorFormatter provides rustc-style error formatting
type ErrorFormatter struct {
	Color bool
	File  string
}

// Format formats a diagnostic in rustc style
func (ef *ErrorFormatter) Format(diag ValidationError, source string) string {
	var sb strings.Builder

	severity := string(diag.Severity)
	if ef.Color {
		switch diag.Severity {
		case SeverityError:
			severity = "\033[31;1merror\033[0m"
		case SeverityWarning:
			severity = "\033[33;1mwarning\033[0m"
		}
	}
	fmt.Fprintf(&sb, "%s[%s]: %s\n", severity, diag.Code, diag.Message)
	fmt.Fprintf(&sb, " --> %s:%d:%d\n", ef.File, diag.Line, diag.Column)

	lines := strings.Split(source, "\n")
	if diag.Line > 0 && diag.Line <= len(lines) {
		sourceLine := strings.TrimRight(lines[diag.Line-1], "\r")
		fmt.Fprintf(&sb, "%4d | %s\n", diag.Line, sourceLine)

		sb.WriteString("     | ")
		if diag.Column > 0 {
			sb.WriteString(strings.Repeat(" ", diag.Column-1))
			if ef.Color {
				sb.WriteString("\033[31;1m^\033[0m")
			} else {
				sb.WriteString("^")
			}
			if diag.EndLine == diag.Line && diag.EndColumn > diag.Column+1 {
				sb.WriteString(strings.Repeat("~", diag.EndColumn-diag.Column-1))
			}
		}
		sb.WriteString("\n")
	}

	if len(diag.Hints) > 0 {
		sb.WriteString("     |\n")
		for _, hint := range diag.Hints {
			fmt.Fprintf(&sb, "     = help: did you mean '%s'?\n", hint)
		}
	}
	return sb.String()
}
