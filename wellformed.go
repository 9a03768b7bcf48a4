package rng

import (
	"fmt"
	"log/slog"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/agentflare-ai/go-xmldom"
)

// MaxSecondaryDiagnostics bounds the well-formedness diagnostics reported
// after the first one.
const MaxSecondaryDiagnostics = 5

// CheckWellFormed detects malformed tag starts, orphan closing tags and
// unclosed opening tags. It works on the scanned tags only and does not
// depend on the line information of an XML parser.
func CheckWellFormed(text string) []ValidationError {
	return checkWellFormed(NewScanner(text))
}

type located struct {
	offset int
	diag   ValidationError
}

func checkWellFormed(scan *Scanner) []ValidationError {
	tokens := scan.Tokens()

	var found []located
	report := func(offset int, diag ValidationError) {
		found = append(found, located{offset: offset, diag: diag})
	}

	starts := make(map[int]bool, len(tokens))
	for _, tok := range tokens {
		starts[tok.Offset] = true
	}
	masked := scan.Masked()
	for i := 0; i < len(masked); i++ {
		if masked[i] != '<' || starts[i] {
			continue
		}
		at := scan.Position(i)
		next := i + 1
		if strings.HasPrefix(masked[next:], "/") {
			next++
		}
		r, _ := utf8.DecodeRuneInString(masked[next:])
		if next < len(masked) && isNameStart(r) {
			msg := fmt.Sprintf("Unterminated tag starting with '%s'", tagPreview(masked[i:]))
			report(i, newDiagnostic(SeverityError, CodeMalformedTag, at, msg))
			continue
		}
		msg := "Malformed tag: '<' must be followed by a valid element name (use &lt; for a literal '<')"
		report(i, newDiagnostic(SeverityError, CodeMalformedTag, at, msg))
	}

	// per-name stack of still open tags; an empty stack means the running
	// open/close balance for that name is zero
	open := make(map[string][]Token)
	for _, tok := range tokens {
		switch tok.Kind {
		case OpenTag:
			open[tok.Name] = append(open[tok.Name], tok)
		case CloseTag:
			stack := open[tok.Name]
			if len(stack) == 0 {
				msg := fmt.Sprintf("Orphan closing tag </%s> has no matching opening tag", tok.Name)
				diag := newDiagnostic(SeverityError, CodeOrphanClose, scan.Position(tok.Offset), msg)
				report(tok.Offset, diag.spanning(scan.Position(tok.End)))
				continue
			}
			open[tok.Name] = stack[:len(stack)-1]
		}
	}
	for name, stack := range open {
		if len(stack) == 0 {
			continue
		}
		first := stack[0]
		msg := fmt.Sprintf("Unclosed tag <%s>: no matching </%s> found", name, name)
		diag := newDiagnostic(SeverityError, CodeUnclosed, scan.Position(first.Offset), msg)
		report(first.Offset, diag.spanning(scan.Position(first.End)))
	}

	slices.SortStableFunc(found, func(a, b located) int {
		return a.offset - b.offset
	})
	if len(found) > MaxSecondaryDiagnostics+1 {
		found = found[:MaxSecondaryDiagnostics+1]
	}
	diags := make([]ValidationError, 0, len(found))
	for _, f := range found {
		diags = append(diags, f.diag)
	}
	return diags
}

func tagPreview(s string) string {
	rest := []rune(s[1:min(len(s), 128)])
	for i, r := range rest {
		if strings.ContainsRune(" \t\r\n<>=\"'", r) {
			rest = rest[:i]
			break
		}
	}
	if len(rest) > 32 {
		rest = rest[:32]
	}
	return "<" + string(rest)
}

var decodeLine = regexp.MustCompile(`line (\d+)(?:[^\d]+column (\d+))?`)

// checkDecodes runs the document through the DOM decoder to catch the
// defects the tag scan cannot see, such as crossed nesting or bad
// attribute syntax. The reported position comes from the decoder message
// when it has one.
func checkDecodes(text string) []ValidationError {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	_, err := xmldom.Decode(strings.NewReader(text))
	if err == nil {
		return nil
	}
	slog.Debug("document failed to decode", "error", err)

	at := Position{Line: 1, Column: 1}
	if m := decodeLine.FindStringSubmatch(err.Error()); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil && n > 0 {
			at.Line = n
		}
		if n, err := strconv.Atoi(m[2]); err == nil && n > 0 {
			at.Column = n
		}
	}
	msg := fmt.Sprintf("Document is not well-formed: %v", err)
	return []ValidationError{newDiagnostic(SeverityError, CodeNotWellFormed, at, msg)}
}
