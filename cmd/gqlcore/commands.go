package main

import (
	"bytes"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	language "github.com/hanpama/gqlcore/internal/language"
	schema "github.com/hanpama/gqlcore/internal/schema"
	validator "github.com/hanpama/gqlcore/internal/validator"
)

func cmdPrintSchema(args []string) error {
	var schemas stringListFlag
	fed := false
	outFile := ""
	fs := flag.NewFlagSet("print-schema", flag.ContinueOnError)
	fs.SetOutput(new(bytes.Buffer))
	fs.Var(&schemas, "schema", "GraphQL SDL file")
	fs.BoolVar(&fed, "federation", fed, "Include federation fields")
	fs.StringVar(&outFile, "out", outFile, "Write SDL to file")
	if err := fs.Parse(args); err != nil {
		fmt.Fprint(os.Stderr, printSchemaUsage)
		return err
	}

	sch, err := loadSchema(schemas, fed)
	if err != nil {
		fmt.Fprint(os.Stderr, printSchemaUsage)
		return err
	}
	sdl := schema.Render(sch)
	if outFile == "" {
		fmt.Print(sdl)
		return nil
	}
	return os.WriteFile(outFile, []byte(sdl), 0644)
}

func cmdCheck(args []string) error {
	var schemas, queries stringListFlag
	fed := false
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	fs.SetOutput(new(bytes.Buffer))
	fs.Var(&schemas, "schema", "GraphQL SDL file")
	fs.BoolVar(&fed, "federation", fed, "Check as a federation subgraph")
	fs.Var(&queries, "query", "Query document to validate")
	if err := fs.Parse(args); err != nil {
		fmt.Fprint(os.Stderr, checkUsage)
		return err
	}
	return check(os.Stdout, schemas, queries, fed)
}

// check reports every registry violation and every validation error of the
// query files to w and fails when there was any.
func check(w io.Writer, schemas, queries []string, fed bool) error {
	sch, err := loadSchema(schemas, fed)
	if err != nil {
		var regErr schema.RegistryError
		if errors.As(err, &regErr) {
			for _, v := range regErr {
				fmt.Fprintf(w, "schema: %s\n", v.Message)
			}
			return fmt.Errorf("schema has %d violation(s)", len(regErr))
		}
		return err
	}

	failed := 0
	for _, path := range queries {
		b, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		for _, e := range validateDocument(sch, string(b)) {
			failed++
			loc := ""
			if len(e.Locations) > 0 {
				loc = fmt.Sprintf(":%d:%d", e.Locations[0].Line, e.Locations[0].Column)
			}
			fmt.Fprintf(w, "%s%s: %s\n", path, loc, e.Message)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d validation error(s)", failed)
	}
	fmt.Fprintf(w, "ok: %d type(s), %d document(s)\n", len(sch.TypeNames()), len(queries))
	return nil
}

// validateDocument validates every operation of src. Errors about variable
// values that were not provided are dropped: those are only known per request.
func validateDocument(sch *schema.Schema, src string) language.ErrorList {
	doc, err := language.ParseQuery(src)
	if err != nil {
		var list language.ErrorList
		if errors.As(err, &list) {
			return list
		}
		var gqlErr *language.Error
		if errors.As(err, &gqlErr) {
			return language.ErrorList{gqlErr}
		}
		return language.ErrorList{{Message: err.Error()}}
	}
	names := []string{""}
	if len(doc.Operations) > 1 {
		names = names[:0]
		for _, op := range doc.Operations {
			names = append(names, op.Name)
		}
	}
	var out language.ErrorList
	seen := map[string]bool{}
	for _, name := range names {
		_, errs := validator.Validate(sch, doc, name, nil)
		for _, e := range errs {
			if e.Rule == validator.RuleMissingVariable {
				continue
			}
			key := e.Error()
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, e)
		}
	}
	return out
}
