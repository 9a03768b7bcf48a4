package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/agentflare-ai/go-rng"
)

const grammar = "../../testdata/grammars/doc.rng"

func writeDocument(t *testing.T, text string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "doc.xml")
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		t.Fatalf("Failed to write document: %v", err)
	}
	return path
}

func TestRun(t *testing.T) {
	valid := writeDocument(t, "<doc>\n  <title>Hello</title>\n</doc>")
	untitled := writeDocument(t, "<doc>\n  <p>No title yet</p>\n</doc>")
	crowded := writeDocument(t, "<doc>\n<title>A</title>\n<title>B</title>\n</doc>")

	tests := []struct {
		name   string
		args   []string
		code   int
		output string
	}{
		{name: "valid document", args: []string{valid, grammar}, code: 0, output: "is valid"},
		{name: "warnings only", args: []string{"-color=false", untitled, grammar}, code: 0, output: "0 errors, 1 warnings"},
		{name: "final mode", args: []string{"-final", "-color=false", untitled, grammar}, code: 1, output: "1 errors, 0 warnings"},
		{name: "errors", args: []string{"-color=false", crowded, grammar}, code: 1, output: "at most 1 time(s)"},
		{name: "well-formedness only", args: []string{crowded}, code: 0, output: "is valid"},
		{name: "missing arguments", args: nil, code: 2},
		{name: "unknown flag", args: []string{"-bogus", valid}, code: 2},
		{name: "missing document", args: []string{valid + ".missing"}, code: 1},
		{name: "missing grammar", args: []string{valid, grammar + ".missing"}, code: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			if code := run(tt.args, &stdout, &stderr); code != tt.code {
				t.Errorf("Expected exit code %d but got %d: %s%s", tt.code, code, stdout.String(), stderr.String())
			}
			if tt.output != "" && !strings.Contains(stdout.String(), tt.output) {
				t.Errorf("Expected output containing %q but got %q", tt.output, stdout.String())
			}
		})
	}
}

func TestRunJSON(t *testing.T) {
	crowded := writeDocument(t, "<doc>\n<title>A</title>\n<title>B</title>\n</doc>")

	var stdout, stderr bytes.Buffer
	if code := run([]string{"-json", crowded, grammar}, &stdout, &stderr); code != 1 {
		t.Fatalf("Expected exit code 1 but got %d: %s", code, stderr.String())
	}
	var diags []rng.ValidationError
	if err := json.Unmarshal(stdout.Bytes(), &diags); err != nil {
		t.Fatalf("Failed to decode output %q: %v", stdout.String(), err)
	}
	if len(diags) != 1 || diags[0].Code != rng.CodeMaxOccurs || diags[0].Line != 3 {
		t.Errorf("Expected one max-occurs error on line 3 but got %v", diags)
	}
	if diags[0].Severity != rng.SeverityError {
		t.Errorf("Expected severity error but got %s", diags[0].Severity)
	}

	stdout.Reset()
	valid := writeDocument(t, "<doc><title>T</title></doc>")
	if code := run([]string{"-json", valid, grammar}, &stdout, &stderr); code != 0 {
		t.Fatalf("Expected exit code 0 but got %d", code)
	}
	if strings.TrimSpace(stdout.String()) != "[]" {
		t.Errorf("Expected an empty JSON list but got %q", stdout.String())
	}
}
