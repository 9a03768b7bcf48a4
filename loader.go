package rng

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/agentflare-ai/go-xmldom"
)

// GrammarParser parses grammars and follows their include directives.
// Relative hrefs are resolved against the directory of the including
// grammar, or BaseDir for grammars given as text.
type GrammarParser struct {
	// Base directory for resolving relative includes. Includes are not
	// followed when it is empty and the grammar comes from text.
	BaseDir string
}

// NewGrammarParser creates a grammar parser
func NewGrammarParser(baseDir string) *GrammarParser {
	return &GrammarParser{BaseDir: baseDir}
}

// Parse parses grammar text
func (gp *GrammarParser) Parse(text string) ([]*ElementSpec, error) {
	root, err := decodeGrammar(text)
	if err != nil {
		return nil, err
	}
	return gp.build(root, gp.BaseDir, ""), nil
}

// ParseFile reads and parses a grammar file
func (gp *GrammarParser) ParseFile(path string) ([]*ElementSpec, error) {
	location, err := gp.resolveLocation(path, gp.BaseDir)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(location)
	if err != nil {
		return nil, fmt.Errorf("failed to read grammar file %s: %w", location, err)
	}
	root, err := decodeGrammar(string(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse grammar file %s: %w", location, err)
	}
	return gp.build(root, filepath.Dir(location), location), nil
}

type pendingGrammar struct {
	root xmldom.Element
	base string
}

// build collects the root grammar first so that its defines, including the
// ones overriding an include, take precedence over included definitions.
func (gp *GrammarParser) build(root xmldom.Element, base, location string) []*ElementSpec {
	var (
		g      = newGrammar()
		queue  = []pendingGrammar{{root: root, base: base}}
		loaded = make(map[string]bool)
	)
	if location != "" {
		loaded[location] = true
	}
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]
		for _, inc := range g.collect(next.root, next.base) {
			if inc.base == "" {
				slog.Debug("include ignored without base directory", "href", inc.href)
				continue
			}
			resolved, err := gp.resolveLocation(inc.href, inc.base)
			if err != nil {
				slog.Warn("failed to resolve included grammar", "href", inc.href, "error", err)
				continue
			}
			if loaded[resolved] {
				continue
			}
			loaded[resolved] = true

			included, err := gp.loadDocument(resolved)
			if err != nil {
				// Log warning but don't fail
				slog.Warn("failed to load included grammar", "location", resolved, "error", err)
				continue
			}
			queue = append(queue, pendingGrammar{root: included, base: filepath.Dir(resolved)})
		}
	}
	return g.specs()
}

func (gp *GrammarParser) resolveLocation(location, base string) (string, error) {
	if strings.Contains(location, "://") {
		return "", fmt.Errorf("remote grammar %s is not supported", location)
	}
	if !filepath.IsAbs(location) && base != "" {
		location = filepath.Join(base, location)
	}
	return filepath.Abs(location)
}

func (gp *GrammarParser) loadDocument(location string) (xmldom.Element, error) {
	file, err := os.Open(location)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	doc, err := xmldom.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedGrammar, err)
	}
	root := doc.DocumentElement()
	if root == nil {
		return nil, fmt.Errorf("%w: no root element", ErrMalformedGrammar)
	}
	return root, nil
}
