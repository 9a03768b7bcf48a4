package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/agentflare-ai/go-rng"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: rngspecs <grammar.rng>")
		os.Exit(1)
	}
	if err := run(os.Args[1], os.Stdout); err != nil {
		log.Fatalf("Failed to parse grammar: %v", err)
	}
}

// run prints the element specs declared by the grammar file
func run(filename string, w io.Writer) error {
	specs, err := rng.NewGrammarParser("").ParseFile(filename)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "%s declares %d elements:\n", filename, len(specs))
	for _, spec := range specs {
		fmt.Fprintf(w, "\n<%s>", spec.Name)
		if spec.Namespace != "" {
			fmt.Fprintf(w, " {%s}", spec.Namespace)
		}
		fmt.Fprintln(w)
		if spec.Documentation != "" {
			fmt.Fprintf(w, "  %s\n", spec.Documentation)
		}
		for _, attr := range spec.Attributes {
			use := "optional"
			if attr.Required {
				use = "required"
			}
			fmt.Fprintf(w, "  @%s (%s) = %s\n", attr.Name, use, attr.Values)
		}
		if spec.Constrained() {
			fmt.Fprintf(w, "  children: %s\n", strings.Join(spec.Children, ", "))
		} else {
			fmt.Fprintln(w, "  children: any")
		}
		if required := rng.RequiredChildren(spec.ContentModel); len(required) > 0 {
			fmt.Fprintf(w, "  required: %s\n", strings.Join(required, ", "))
		}
		if spec.ContentModel != nil {
			m := spec.ContentModel
			fmt.Fprintf(w, "  model: %s%s\n", describe(m), cardinality(m.MinOccurs, m.MaxOccurs))
		}
	}
	return nil
}

// describe renders a content model in a compact pattern notation
func describe(m *rng.ContentModel) string {
	parts := make([]string, 0, len(m.Items))
	for _, item := range m.Items {
		var s string
		switch item.Kind {
		case rng.ElementItem:
			s = item.Name
		case rng.TextItem:
			s = "#text"
		case rng.ModelItem:
			s = "&" + item.Name
		case rng.GroupItem:
			s = describe(item.Content)
		}
		parts = append(parts, s+cardinality(item.MinOccurs, item.MaxOccurs))
	}
	sep := ", "
	switch m.Type {
	case rng.ChoiceModel:
		sep = " | "
	case rng.InterleaveModel:
		sep = " & "
	case rng.EmptyModel:
		return "empty"
	}
	return "(" + strings.Join(parts, sep) + ")"
}

func cardinality(lo, hi int) string {
	switch {
	case lo == 1 && hi == 1:
		return ""
	case lo == 0 && hi == 1:
		return "?"
	case lo == 0 && hi == rng.Unbounded:
		return "*"
	case lo == 1 && hi == rng.Unbounded:
		return "+"
	case hi == rng.Unbounded:
		return fmt.Sprintf("{%d,}", lo)
	}
	return fmt.Sprintf("{%d,%d}", lo, hi)
}
