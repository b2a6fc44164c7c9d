package language

import (
	"errors"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"
	"github.com/vektah/gqlparser/v2/lexer"
	"github.com/vektah/gqlparser/v2/parser"
)

// Error codes reported in extensions["code"] for parse-phase failures.
const (
	CodeParseFailed = "GRAPHQL_PARSE_FAILED"
	CodeTooComplex  = "TOO_COMPLEX"
)

// ErrTooComplex is the cause of parse errors produced when a document exceeds
// the configured token or selection depth limit.
var ErrTooComplex = errors.New("document too complex")

// Limits bounds the size of documents accepted by ParseQueryWithLimits.
// Zero values disable the corresponding check.
type Limits struct {
	MaxTokens int
	MaxDepth  int
}

func ParseQuery(source string) (*QueryDocument, error) {
	return ParseQueryWithLimits(source, Limits{})
}

// ParseQueryWithLimits parses an executable document. Syntax errors and limit
// violations are returned as *Error values carrying a location.
func ParseQueryWithLimits(source string, limits Limits) (*QueryDocument, error) {
	src := &ast.Source{Input: source}
	if limits.MaxTokens > 0 {
		if err := checkTokenLimit(src, limits.MaxTokens); err != nil {
			return nil, err
		}
	}
	doc, err := parser.ParseQuery(src)
	if err != nil {
		return nil, syntaxError(err)
	}
	if limits.MaxDepth > 0 {
		if err := checkDepthLimit(doc, limits.MaxDepth); err != nil {
			return nil, err
		}
	}
	return doc, nil
}

func ParseSchema(name, source string) (*SchemaDocument, error) {
	doc, err := parser.ParseSchema(&ast.Source{Name: name, Input: source})
	if err != nil {
		return nil, syntaxError(err)
	}
	return doc, nil
}

// ParseSchemas parses several SDL sources into one document.
func ParseSchemas(sources ...*Source) (*SchemaDocument, error) {
	doc, err := parser.ParseSchemas(sources...)
	if err != nil {
		return nil, syntaxError(err)
	}
	return doc, nil
}

func syntaxError(err error) error {
	var gqlErr *gqlerror.Error
	if !errors.As(err, &gqlErr) {
		gqlErr = gqlerror.Wrap(err)
	}
	if gqlErr.Extensions == nil {
		gqlErr.Extensions = map[string]any{}
	}
	if _, ok := gqlErr.Extensions["code"]; !ok {
		gqlErr.Extensions["code"] = CodeParseFailed
	}
	return gqlErr
}

func tooComplex(pos *ast.Position, format string, args ...any) *gqlerror.Error {
	err := gqlerror.ErrorPosf(pos, format, args...)
	err.Err = ErrTooComplex
	err.Extensions = map[string]any{"code": CodeTooComplex}
	return err
}

// checkTokenLimit lexes the source without building an AST. Comments do not
// count towards the limit. Lexical errors are left for the parser to report.
func checkTokenLimit(src *ast.Source, max int) error {
	lex := lexer.New(src)
	count := 0
	for {
		tok, err := lex.ReadToken()
		if err != nil || tok.Kind == lexer.EOF {
			return nil
		}
		if tok.Kind == lexer.Comment {
			continue
		}
		count++
		if count > max {
			pos := tok.Pos
			return tooComplex(&pos, "Document exceeds the token limit of %d.", max)
		}
	}
}

func checkDepthLimit(doc *QueryDocument, max int) error {
	for _, op := range doc.Operations {
		if pos := deepestSelection(op.SelectionSet, 1, max); pos != nil {
			return tooComplex(pos, "Selection depth exceeds the limit of %d.", max)
		}
	}
	for _, frag := range doc.Fragments {
		if pos := deepestSelection(frag.SelectionSet, 1, max); pos != nil {
			return tooComplex(pos, "Selection depth exceeds the limit of %d.", max)
		}
	}
	return nil
}

// deepestSelection returns the position of the first field nested deeper than
// max, or nil. Fragments do not add a level of their own.
func deepestSelection(set SelectionSet, depth, max int) *Position {
	for _, sel := range set {
		switch s := sel.(type) {
		case *Field:
			if depth > max {
				return s.Position
			}
			if pos := deepestSelection(s.SelectionSet, depth+1, max); pos != nil {
				return pos
			}
		case *InlineFragment:
			if pos := deepestSelection(s.SelectionSet, depth, max); pos != nil {
				return pos
			}
		}
	}
	return nil
}

// Describe formats a value node for use in error messages.
func Describe(v *Value) string {
	if v == nil {
		return "null"
	}
	return v.String()
}
