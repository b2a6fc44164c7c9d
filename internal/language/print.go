package language

import (
	"bytes"

	"github.com/vektah/gqlparser/v2/formatter"
)

// Print renders an executable document back to query text. Parsing the
// output yields a document with the same operations, selections and values.
func Print(doc *QueryDocument) string {
	var buf bytes.Buffer
	formatter.NewFormatter(&buf, formatter.WithIndent("  ")).FormatQueryDocument(doc)
	return buf.String()
}

// PrintSchema renders a schema document as SDL.
func PrintSchema(doc *SchemaDocument) string {
	var buf bytes.Buffer
	formatter.NewFormatter(&buf, formatter.WithIndent("  ")).FormatSchemaDocument(doc)
	return buf.String()
}
