package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/agentflare-ai/go-rng"
)

func TestRun(t *testing.T) {
	var out bytes.Buffer
	if err := run("../../testdata/grammars/doc.rng", &out); err != nil {
		t.Fatalf("Failed to describe grammar: %v", err)
	}
	for _, want := range []string{
		"declares 10 elements",
		"@type (required) = info|warning",
		"@lang (optional) = *",
		"required: p",
		"model: empty",
		"children: any",
	} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("Expected output containing %q but got:\n%s", want, out.String())
		}
	}

	if err := run("missing.rng", &out); err == nil {
		t.Error("Expected error for a missing grammar file")
	}
}

func TestDescribe(t *testing.T) {
	m := &rng.ContentModel{
		Type: rng.SequenceModel,
		Items: []rng.ContentItem{
			{Kind: rng.ElementItem, Name: "title", MinOccurs: 1, MaxOccurs: 1},
			{Kind: rng.TextItem, MinOccurs: 0, MaxOccurs: rng.Unbounded},
			{Kind: rng.ModelItem, Name: "items", MinOccurs: 1, MaxOccurs: 1},
			{
				Kind:      rng.GroupItem,
				MinOccurs: 0,
				MaxOccurs: 1,
				Content: &rng.ContentModel{
					Type: rng.ChoiceModel,
					Items: []rng.ContentItem{
						{Kind: rng.ElementItem, Name: "a", MinOccurs: 1, MaxOccurs: rng.Unbounded},
						{Kind: rng.ElementItem, Name: "b", MinOccurs: 2, MaxOccurs: 3},
					},
				},
			},
		},
	}
	if got, want := describe(m), "(title, #text*, &items, (a+ | b{2,3})?)"; got != want {
		t.Errorf("Expected %q but got %q", want, got)
	}
	if got := cardinality(2, rng.Unbounded); got != "{2,}" {
		t.Errorf("Expected {2,} but got %q", got)
	}
}
