package rng

import (
	"fmt"
	"strings"
	"testing"
	"time"
)

func docSchema(t *testing.T) *SchemaInfo {
	t.Helper()
	return BuildNamedSchema("doc", "Document", parseDocGrammar(t))
}

func codesOf(diags []ValidationError, sev Severity) []string {
	var codes []string
	for _, d := range diags {
		if d.Severity == sev {
			codes = append(codes, d.Code)
		}
	}
	return codes
}

func TestValidate(t *testing.T) {
	schema := docSchema(t)

	tests := []struct {
		name     string
		xml      string
		errors   []string
		warnings []string
		contains string
		line     int
	}{
		{
			name: "minimal valid document",
			xml:  "<doc>\n  <title>Hello</title>\n</doc>",
		},
		{
			name: "valid document with blocks",
			xml: `<doc lang="en" xmlns="urn:doc" xmlns:x="urn:x">
  <title>Hello</title>
  <p>Some <em>text</em> and <code>code</code>.</p>
  <note type="warning"><p>Careful</p></note>
  <figure><image src="a.png"/><caption>A</caption></figure>
  <!-- <bogus> -->
  <p><![CDATA[<not-a-tag>]]></p>
</doc>`,
		},
		{
			name:     "required child missing",
			xml:      "<doc>\n</doc>",
			warnings: []string{CodeMinOccurs},
			contains: "<title>",
			line:     1,
		},
		{
			name:     "choice alternatives together",
			xml:      "<doc>\n<title>T</title>\n<figure>\n<image src=\"a.png\"/>\n<table>x</table>\n</figure>\n</doc>",
			errors:   []string{CodeChoiceConflict},
			contains: "<image>",
			line:     5,
		},
		{
			name:     "too many occurrences",
			xml:      "<doc>\n<title>A</title>\n<title>B</title>\n<title>C</title>\n</doc>",
			errors:   []string{CodeMaxOccurs},
			contains: "at most 1",
			line:     3,
		},
		{
			name:     "disallowed nesting",
			xml:      "<doc><title>T</title><p><note type=\"info\"><p>x</p></note></p></doc>",
			errors:   []string{CodeNotAllowed},
			contains: "Element <note> is not allowed inside <p>",
			line:     1,
		},
		{
			name:     "unconstrained parent accepts any child",
			xml:      "<doc><title>T <em>x</em></title></doc>",
			errors:   nil,
			warnings: nil,
		},
		{
			name:     "unknown element",
			xml:      "<doc>\n<title>T</title>\n<p><emph>x</emph></p>\n</doc>",
			errors:   []string{CodeNotAllowed},
			warnings: []string{CodeUnknownElement},
			line:     3,
		},
		{
			name:     "unknown attribute",
			xml:      `<doc color="red"><title>T</title></doc>`,
			warnings: []string{CodeUnknownAttribute},
			contains: "'color'",
			line:     1,
		},
		{
			name:     "attribute value outside enumeration",
			xml:      `<doc><title>T</title><note type="danger"><p>x</p></note></doc>`,
			warnings: []string{CodeAttributeValue},
			contains: "info, warning",
			line:     1,
		},
		{
			name:     "missing required attribute",
			xml:      `<doc><title>T</title><note><p>x</p></note></doc>`,
			errors:   []string{CodeMissingAttribute},
			contains: "'type'",
			line:     1,
		},
		{
			name:     "self-closing element with required child",
			xml:      "<doc>\n<title>T</title>\n<note type=\"info\"/>\n</doc>",
			warnings: []string{CodeSelfClosing},
			contains: "self-closing",
			line:     3,
		},
		{
			name:     "empty element with content",
			xml:      `<doc><title>T</title><figure><image src="a"><b/></image></figure></doc>`,
			errors:   []string{CodeNotEmpty},
			warnings: []string{CodeUnknownElement},
		},
		{
			name:     "unclosed paragraph",
			xml:      "<doc>\n<title>T</title>\n<p>one\n<p>two</p>\n</doc>",
			errors:   []string{CodeUnclosed},
			contains: "<p>",
			line:     3,
		},
		{
			name:     "orphan closing tag",
			xml:      "<doc>\n<title>T</title></p>\n</doc>",
			errors:   []string{CodeOrphanClose},
			line:     2,
		},
		{
			name:   "crossed tags",
			xml:    "<doc><title>T</title><p><em>x</p></em></doc>",
			errors: []string{CodeNotWellFormed},
		},
		{
			name:     "prefixed element names",
			xml:      `<d:doc xmlns:d="urn:doc"><d:title>T</d:title></d:doc>`,
			errors:   nil,
			warnings: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			diags := Validate(tt.xml, schema)

			errs := codesOf(diags, SeverityError)
			warns := codesOf(diags, SeverityWarning)
			if strings.Join(errs, ",") != strings.Join(tt.errors, ",") {
				t.Errorf("Expected errors %v but got %v: %v", tt.errors, errs, diags)
			}
			if strings.Join(warns, ",") != strings.Join(tt.warnings, ",") {
				t.Errorf("Expected warnings %v but got %v: %v", tt.warnings, warns, diags)
			}
			if len(diags) == 0 {
				return
			}
			if tt.contains != "" && !strings.Contains(diags[0].Message, tt.contains) {
				t.Errorf("Expected message containing %q but got %q", tt.contains, diags[0].Message)
			}
			if tt.line != 0 && diags[0].Line != tt.line {
				t.Errorf("Expected first diagnostic on line %d but got %d", tt.line, diags[0].Line)
			}
		})
	}
}

func TestValidatePositions(t *testing.T) {
	schema := docSchema(t)

	// attributes spanning lines
	xml := "<doc>\n<title>T</title>\n<note\n   id=\"n1\"\n   type=\"bad\"><p>x</p></note>\n</doc>"
	diags := Validate(xml, schema)
	if len(diags) != 2 {
		t.Fatalf("Expected 2 diagnostics but got %d: %v", len(diags), diags)
	}
	if diags[0].Code != CodeUnknownAttribute || diags[0].Line != 4 || diags[0].Column != 4 {
		t.Errorf("Expected unknown attribute at 4:4 but got %s at %d:%d", diags[0].Code, diags[0].Line, diags[0].Column)
	}
	if diags[1].Code != CodeAttributeValue || diags[1].Line != 5 || diags[1].Column != 4 {
		t.Errorf("Expected attribute value warning at 5:4 but got %s at %d:%d", diags[1].Code, diags[1].Line, diags[1].Column)
	}
	if diags[1].EndLine != 5 || diags[1].EndColumn != 14 {
		t.Errorf("Expected attribute span to end at 5:14 but got %d:%d", diags[1].EndLine, diags[1].EndColumn)
	}

	// columns count characters
	xml = "<doc><title>é</title><blöck/></doc>"
	diags = Validate(xml, schema)
	if len(diags) == 0 || diags[0].Code != CodeUnknownElement {
		t.Fatalf("Expected an unknown element warning first but got %v", diags)
	}
	if diags[0].Line != 1 || diags[0].Column != 22 {
		t.Errorf("Expected unknown element at 1:22 but got %d:%d", diags[0].Line, diags[0].Column)
	}
}

func TestValidateRequiredChildReportedOnce(t *testing.T) {
	schema := BuildSchema([]*ElementSpec{
		{
			Name:     "list",
			Children: []string{"head", "item"},
			ContentModel: &ContentModel{
				Type: SequenceModel,
				Items: []ContentItem{
					{Kind: ElementItem, Name: "head", MinOccurs: 1, MaxOccurs: 1},
					{Kind: ElementItem, Name: "item", MinOccurs: 1, MaxOccurs: Unbounded},
				},
				MinOccurs: 1,
				MaxOccurs: 1,
			},
		},
		{Name: "head"},
		{Name: "item"},
	})

	diags := Validate("<list><item/></list>", schema)
	if len(diags) != 1 {
		t.Fatalf("Expected 1 diagnostic but got %d: %v", len(diags), diags)
	}
	if diags[0].Severity != SeverityWarning || !strings.Contains(diags[0].Message, "<head>") {
		t.Errorf("Expected a warning naming <head> but got %v", diags[0])
	}
}

func TestValidateNestedRequiredChild(t *testing.T) {
	schema := BuildSchema([]*ElementSpec{
		{
			Name: "entry",
			ContentModel: &ContentModel{
				Type: SequenceModel,
				Items: []ContentItem{
					{
						Kind:      GroupItem,
						MinOccurs: 1,
						MaxOccurs: 1,
						Content: &ContentModel{
							Type:      GroupModel,
							Items:     []ContentItem{{Kind: ElementItem, Name: "key", MinOccurs: 1, MaxOccurs: 1}},
							MinOccurs: 1,
							MaxOccurs: 1,
						},
					},
				},
				MinOccurs: 1,
				MaxOccurs: 1,
			},
		},
	})
	diags := Validate("<entry></entry>", schema)
	if len(diags) != 1 || diags[0].Code != CodeMinOccurs {
		t.Errorf("Expected a single min-occurs warning but got %v", diags)
	}
}

func TestValidateOptionalChoice(t *testing.T) {
	tests := []struct {
		name    string
		grammar string
		xml     string
	}{
		{
			name: "empty alternative",
			grammar: `<element name="doc" xmlns="http://relaxng.org/ns/structure/1.0">
  <choice><empty/><element name="a"><text/></element></choice>
</element>`,
			xml: "<doc></doc>",
		},
		{
			name: "recursive list",
			grammar: `<grammar xmlns="http://relaxng.org/ns/structure/1.0">
  <start><element name="list"><ref name="items"/></element></start>
  <define name="items">
    <choice>
      <empty/>
      <group><element name="item"><text/></element><ref name="items"/></group>
    </choice>
  </define>
</grammar>`,
			xml: "<list></list>",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			specs, err := ParseGrammar(tt.grammar)
			if err != nil {
				t.Fatalf("Failed to parse grammar: %v", err)
			}
			schema := BuildSchema(specs)
			if diags := Validate(tt.xml, schema); len(diags) != 0 {
				t.Errorf("Expected no diagnostics but got %v", diags)
			}
			final := NewValidator(schema, WithMode(FinalMode)).Validate(tt.xml)
			if len(final) != 0 {
				t.Errorf("Expected no diagnostics in final mode but got %v", final)
			}
		})
	}
}

func TestValidateMissingChildWithoutChildren(t *testing.T) {
	schema := BuildSchema([]*ElementSpec{
		{Name: "root", Children: []string{"sec"}},
		{
			Name:         "sec",
			Children:     []string{"h"},
			ContentModel: &ContentModel{Type: SequenceModel, Items: []ContentItem{{Kind: ElementItem, Name: "h", MinOccurs: 1, MaxOccurs: 1}}, MinOccurs: 1, MaxOccurs: 1},
		},
		{Name: "h"},
	})
	diags := Validate("<root>\n\n\n<sec></sec></root>", schema)
	if len(diags) != 1 || diags[0].Code != CodeMinOccurs {
		t.Fatalf("Expected a single min-occurs warning but got %v", diags)
	}
	if diags[0].Line != 1 || diags[0].Column != 1 {
		t.Errorf("Expected the warning at 1:1 but got %d:%d", diags[0].Line, diags[0].Column)
	}
}

func TestValidateModes(t *testing.T) {
	schema := docSchema(t)
	xml := `<doc color="red"></doc>`

	edit := NewValidator(schema).Validate(xml)
	if HasErrors(edit) {
		t.Errorf("Expected only warnings in edit mode but got %v", edit)
	}
	if Count(edit, SeverityWarning) != 2 {
		t.Errorf("Expected 2 warnings in edit mode but got %d", Count(edit, SeverityWarning))
	}

	final := NewValidator(schema, WithMode(FinalMode)).Validate(xml)
	if Count(final, SeverityError) != 2 || Count(final, SeverityWarning) != 0 {
		t.Errorf("Expected 2 errors and no warnings in final mode but got %v", final)
	}
	if FinalMode.String() != "final" || EditMode.String() != "edit" {
		t.Errorf("Unexpected mode names %s %s", EditMode, FinalMode)
	}
}

func TestValidateWithoutSchema(t *testing.T) {
	if diags := Validate("<anything><goes/></anything>", nil); len(diags) != 0 {
		t.Errorf("Expected no diagnostics without schema but got %v", diags)
	}
	if diags := Validate("<a><b></a>", nil); !HasErrors(diags) {
		t.Errorf("Expected well-formedness errors without schema but got %v", diags)
	}
	if diags := Validate("", nil); len(diags) != 0 {
		t.Errorf("Expected no diagnostics for empty text but got %v", diags)
	}
}

func TestValidateRecoversFromPanic(t *testing.T) {
	// a nil spec registered under a name cannot be inspected
	schema := &SchemaInfo{
		Elements: []*ElementSpec{nil},
		byName:   map[string]*ElementSpec{"doc": nil},
	}
	diags := Validate(`<doc a="1"></doc>`, schema)
	if len(diags) != 1 || diags[0].Code != CodeInternal || diags[0].Severity != SeverityError {
		t.Errorf("Expected one internal error but got %v", diags)
	}
}

func TestValidateLargeDocument(t *testing.T) {
	schema := docSchema(t)

	var sb strings.Builder
	sb.WriteString("<doc>\n  <title>Large</title>\n")
	for i := 0; i < 100; i++ {
		fmt.Fprintf(&sb, "  <p>Paragraph %d with <em>emphasis</em> and <code>x = %d</code>.</p>\n", i, i)
	}
	sb.WriteString("</doc>\n")

	start := time.Now()
	diags := Validate(sb.String(), schema)
	elapsed := time.Since(start)

	if len(diags) != 0 {
		t.Errorf("Expected no diagnostics but got %v", diags)
	}
	if elapsed > time.Second {
		t.Errorf("Expected validation under 1s but took %v", elapsed)
	}
}
