package rng

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// TokenKind tells opening, closing and self-closing tags apart
type TokenKind uint8

const (
	OpenTag TokenKind = iota
	CloseTag
	SelfClosingTag
)

func (k TokenKind) String() string {
	switch k {
	case OpenTag:
		return "open"
	case CloseTag:
		return "close"
	case SelfClosingTag:
		return "self-closing"
	}
	return "unknown"
}

// Token is one tag occurrence in a document. Offsets are byte offsets into
// the scanned text.
type Token struct {
	Kind       TokenKind
	Name       string
	Attrs      string
	Offset     int
	End        int
	NameOffset int
	AttrOffset int
}

// Attr is one attribute found in a tag
type Attr struct {
	Name   string
	Value  string
	Offset int
	End    int
}

var (
	tagPattern  = regexp.MustCompile(`<(/?)([\p{L}_:][\p{L}\p{M}\p{N}_:.\-\x{B7}]*)((?:[^<>"']|"[^"]*"|'[^']*')*?)\s*(/?)>`)
	attrPattern = regexp.MustCompile(`([\p{L}_:][\p{L}\p{M}\p{N}_:.\-\x{B7}]*)\s*=\s*(?:"([^"]*)"|'([^']*)')`)
)

// Scanner splits a document into tag tokens. Comments, CDATA sections,
// processing instructions and doctype declarations are blanked out before
// matching so they never produce tags; offsets and line breaks are kept.
type Scanner struct {
	text   string
	masked string
	index  *LineIndex
}

// NewScanner prepares text for scanning
func NewScanner(text string) *Scanner {
	return &Scanner{
		text:   text,
		masked: maskMarkup(text),
		index:  NewLineIndex(text),
	}
}

// Text returns the original text
func (s *Scanner) Text() string {
	return s.text
}

// Masked returns the text with non-tag markup replaced by whitespace
func (s *Scanner) Masked() string {
	return s.masked
}

// Position converts a byte offset into a line and column
func (s *Scanner) Position(offset int) Position {
	return s.index.Position(offset)
}

// Scan returns the tags of text in document order
func Scan(text string) []Token {
	return NewScanner(text).Tokens()
}

// Tokens returns every tag in document order
func (s *Scanner) Tokens() []Token {
	matches := tagPattern.FindAllStringSubmatchIndex(s.masked, -1)
	tokens := make([]Token, 0, len(matches))
	for _, m := range matches {
		tok := Token{
			Kind:       OpenTag,
			Name:       s.masked[m[4]:m[5]],
			Attrs:      s.masked[m[6]:m[7]],
			Offset:     m[0],
			End:        m[1],
			NameOffset: m[4],
			AttrOffset: m[6],
		}
		switch {
		case m[3] > m[2]:
			tok.Kind = CloseTag
		case m[9] > m[8]:
			tok.Kind = SelfClosingTag
		}
		tokens = append(tokens, tok)
	}
	return tokens
}

// Attributes parses the attribute substring of a tag
func (s *Scanner) Attributes(tok Token) []Attr {
	matches := attrPattern.FindAllStringSubmatchIndex(tok.Attrs, -1)
	attrs := make([]Attr, 0, len(matches))
	for _, m := range matches {
		a := Attr{
			Name:   tok.Attrs[m[2]:m[3]],
			Offset: tok.AttrOffset + m[0],
			End:    tok.AttrOffset + m[1],
		}
		// values are read from the original text: masking only touches
		// comments and similar constructs, never quoted values in a tag
		switch {
		case m[4] >= 0:
			a.Value = s.text[tok.AttrOffset+m[4] : tok.AttrOffset+m[5]]
		case m[6] >= 0:
			a.Value = s.text[tok.AttrOffset+m[6] : tok.AttrOffset+m[7]]
		}
		attrs = append(attrs, a)
	}
	return attrs
}

// LineIndex maps byte offsets to 1-based line and column numbers
type LineIndex struct {
	text   string
	starts []int
}

// NewLineIndex computes the start offset of every line in text
func NewLineIndex(text string) *LineIndex {
	starts := make([]int, 1, strings.Count(text, "\n")+1)
	for i := 0; i < len(text); i++ {
		if text[i] == '\n' {
			starts = append(starts, i+1)
		}
	}
	return &LineIndex{text: text, starts: starts}
}

// Lines returns the number of lines
func (ix *LineIndex) Lines() int {
	return len(ix.starts)
}

// Position returns the line and column of offset. Columns count characters,
// not bytes.
func (ix *LineIndex) Position(offset int) Position {
	offset = max(0, min(offset, len(ix.text)))
	line := sort.Search(len(ix.starts), func(i int) bool {
		return ix.starts[i] > offset
	})
	start := ix.starts[line-1]
	return Position{
		Line:   line,
		Column: utf8.RuneCountInString(ix.text[start:offset]) + 1,
	}
}

var maskedSections = []struct {
	open  string
	close string
}{
	{"<!--", "-->"},
	{"<![CDATA[", "]]>"},
	{"<?", "?>"},
}

func maskMarkup(text string) string {
	if !strings.Contains(text, "<!") && !strings.Contains(text, "<?") {
		return text
	}
	buf := []byte(text)
	for i := 0; i < len(buf); {
		if buf[i] != '<' {
			i++
			continue
		}
		end := sectionEnd(text, i)
		if end < 0 {
			i++
			continue
		}
		blank(buf[i:end])
		i = end
	}
	return string(buf)
}

// sectionEnd returns the end offset of the comment-like section starting at
// i, or -1 when i does not start one. Unterminated sections run to the end
// of the text.
func sectionEnd(text string, i int) int {
	rest := text[i:]
	for _, sec := range maskedSections {
		if !strings.HasPrefix(rest, sec.open) {
			continue
		}
		ix := strings.Index(rest[len(sec.open):], sec.close)
		if ix < 0 {
			return len(text)
		}
		return i + len(sec.open) + ix + len(sec.close)
	}
	if strings.HasPrefix(rest, "<!DOCTYPE") {
		depth := 0
		for j := len("<!DOCTYPE"); j < len(rest); j++ {
			switch rest[j] {
			case '[':
				depth++
			case ']':
				depth--
			case '>':
				if depth <= 0 {
					return i + j + 1
				}
			}
		}
		return len(text)
	}
	return -1
}

func blank(b []byte) {
	for i, c := range b {
		if c != '\n' && c != '\r' {
			b[i] = ' '
		}
	}
}

func isNameStart(r rune) bool {
	return unicode.IsLetter(r) || r == '_' || r == ':'
}
