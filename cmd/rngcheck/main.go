package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/agentflare-ai/go-rng"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run checks one document and returns the exit code: 0 when no errors are
// found, 1 on errors or load failures and 2 on bad usage.
func run(args []string, stdout, stderr io.Writer) int {
	flags := flag.NewFlagSet("rngcheck", flag.ContinueOnError)
	flags.SetOutput(stderr)
	var (
		asJSON = flags.Bool("json", false, "print diagnostics as JSON")
		final  = flags.Bool("final", false, "report edit-tolerant problems as errors")
		name   = flags.String("name", "", "schema name used for caching")
		color  = flags.Bool("color", true, "colorize diagnostics")
	)
	flags.Usage = func() {
		fmt.Fprintln(stderr, "Usage: rngcheck [flags] <xml-file> [grammar.rng ...]")
		flags.PrintDefaults()
	}
	if err := flags.Parse(args); err != nil {
		return 2
	}
	if flags.NArg() < 1 {
		flags.Usage()
		return 2
	}

	xmlFile := flags.Arg(0)
	xmlData, err := os.ReadFile(xmlFile)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to read XML file: %v\n", err)
		return 1
	}

	// Without grammars only well-formedness is checked
	var schema *rng.SchemaInfo
	if grammars := flags.Args()[1:]; len(grammars) > 0 {
		sources := make([]rng.Source, 0, len(grammars))
		for _, path := range grammars {
			sources = append(sources, rng.FileSource{Path: path})
		}
		schemaName := *name
		if schemaName == "" {
			schemaName = grammars[0]
		}
		schema, err = rng.NewRegistry(nil).Schema(schemaName, schemaName, sources...)
		if err != nil {
			fmt.Fprintf(stderr, "Failed to load grammar: %v\n", err)
			return 1
		}
	}

	mode := rng.EditMode
	if *final {
		mode = rng.FinalMode
	}
	diagnostics := rng.NewValidator(schema, rng.WithMode(mode)).Validate(string(xmlData))

	if *asJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if diagnostics == nil {
			diagnostics = []rng.ValidationError{}
		}
		if err := enc.Encode(diagnostics); err != nil {
			fmt.Fprintf(stderr, "Failed to encode diagnostics: %v\n", err)
			return 1
		}
	} else if len(diagnostics) == 0 {
		fmt.Fprintf(stdout, "%s is valid\n", xmlFile)
	} else {
		formatter := &rng.ErrorFormatter{Color: *color, File: xmlFile}
		fmt.Fprintf(stdout, "Found %d issues in %s (%d errors, %d warnings):\n\n", len(diagnostics), xmlFile,
			rng.Count(diagnostics, rng.SeverityError), rng.Count(diagnostics, rng.SeverityWarning))
		for _, diag := range diagnostics {
			fmt.Fprint(stdout, formatter.Format(diag, string(xmlData)))
			fmt.Fprintln(stdout)
		}
	}

	if rng.HasErrors(diagnostics) {
		return 1
	}
	return 0
}
