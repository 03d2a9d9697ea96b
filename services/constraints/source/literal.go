// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package source

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"

	"github.com/AleutianAI/AleutianUCDL/services/constraints/value"
)

// nonLiteralError marks a node outside the literal subset.
type nonLiteralError struct {
	node *sitter.Node
	kind string
}

func (e *nonLiteralError) Error() string {
	return fmt.Sprintf("%s is not a literal", e.kind)
}

// literalConverter turns expression nodes into values.
//
// In strict mode any node outside the literal subset is an error. In lenient
// mode, used while walking whole source files, non-literal object properties
// and array elements are skipped and the skipped keys recorded.
type literalConverter struct {
	content []byte
	strict  bool

	// skipped collects property keys whose values were not literals.
	skipped []string

	// functions maps property keys to their function-valued nodes, so the
	// analyzer can score an "evaluate" property.
	functions map[string]*sitter.Node

	// depth is the object nesting level; only top-level keys are recorded.
	depth int
}

func newLiteralConverter(content []byte, strict bool) *literalConverter {
	return &literalConverter{content: content, strict: strict, functions: map[string]*sitter.Node{}}
}

// convert evaluates node as a literal.
func (c *literalConverter) convert(node *sitter.Node) (value.Value, error) {
	if node == nil {
		return value.Null(), &nonLiteralError{kind: "missing expression"}
	}

	switch node.Type() {
	case "string":
		return value.String(c.stringLiteral(node)), nil

	case "template_string":
		for i := 0; i < int(node.NamedChildCount()); i++ {
			if node.NamedChild(i).Type() == "template_substitution" {
				return value.Null(), &nonLiteralError{node: node, kind: "template substitution"}
			}
		}
		raw := node.Content(c.content)
		if len(raw) >= 2 {
			raw = raw[1 : len(raw)-1]
		}
		return value.String(unescapeJS(raw)), nil

	case "number":
		n, err := parseJSNumber(node.Content(c.content))
		if err != nil {
			return value.Null(), &nonLiteralError{node: node, kind: "malformed number"}
		}
		return value.Number(n), nil

	case "true":
		return value.Bool(true), nil
	case "false":
		return value.Bool(false), nil
	case "null", "undefined":
		return value.Null(), nil

	case "unary_expression":
		return c.unary(node)

	case "parenthesized_expression", "as_expression", "satisfies_expression", "non_null_expression":
		return c.convert(node.NamedChild(0))

	case "array":
		return c.array(node)

	case "object":
		return c.object(node)

	default:
		return value.Null(), &nonLiteralError{node: node, kind: describeNode(node)}
	}
}

func (c *literalConverter) unary(node *sitter.Node) (value.Value, error) {
	op := node.ChildByFieldName("operator")
	arg := node.ChildByFieldName("argument")
	if op == nil || arg == nil {
		return value.Null(), &nonLiteralError{node: node, kind: "unary expression"}
	}
	operator := op.Content(c.content)
	if operator != "-" && operator != "+" {
		return value.Null(), &nonLiteralError{node: node, kind: "operator " + operator}
	}
	v, err := c.convert(arg)
	if err != nil {
		return value.Null(), err
	}
	n, ok := v.AsNumber()
	if !ok {
		return value.Null(), &nonLiteralError{node: node, kind: "sign applied to a non-number"}
	}
	if operator == "-" {
		n = -n
	}
	return value.Number(n), nil
}

func (c *literalConverter) array(node *sitter.Node) (value.Value, error) {
	items := make([]value.Value, 0, node.NamedChildCount())
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		if child.Type() == "comment" {
			continue
		}
		v, err := c.convert(child)
		if err != nil {
			if c.strict {
				return value.Null(), err
			}
			continue
		}
		items = append(items, v)
	}
	return value.Array(items...), nil
}

func (c *literalConverter) object(node *sitter.Node) (value.Value, error) {
	c.depth++
	defer func() { c.depth-- }()

	obj := value.NewObject()
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		switch child.Type() {
		case "comment":
			continue

		case "pair":
			key, err := c.propertyKey(child.ChildByFieldName("key"))
			if err != nil {
				if c.strict {
					return value.Null(), err
				}
				continue
			}
			valNode := child.ChildByFieldName("value")
			v, err := c.convert(valNode)
			if err != nil {
				if c.strict {
					return value.Null(), err
				}
				c.skip(key, valNode)
				continue
			}
			obj.Set(key, v)

		case "method_definition":
			if c.strict {
				return value.Null(), &nonLiteralError{node: child, kind: "method"}
			}
			if name := child.ChildByFieldName("name"); name != nil {
				c.skip(name.Content(c.content), child)
			}

		case "shorthand_property_identifier":
			if c.strict {
				return value.Null(), &nonLiteralError{node: child, kind: "identifier reference"}
			}
			c.skip(child.Content(c.content), child)

		default:
			if c.strict {
				return value.Null(), &nonLiteralError{node: child, kind: describeNode(child)}
			}
		}
	}
	return value.FromObject(obj), nil
}

// propertyKey resolves an object key. Computed keys are accepted only when
// they wrap a string literal.
func (c *literalConverter) propertyKey(node *sitter.Node) (string, error) {
	if node == nil {
		return "", &nonLiteralError{kind: "missing key"}
	}
	switch node.Type() {
	case "property_identifier", "identifier":
		return node.Content(c.content), nil
	case "string":
		return c.stringLiteral(node), nil
	case "number":
		n, err := parseJSNumber(node.Content(c.content))
		if err != nil {
			return "", &nonLiteralError{node: node, kind: "malformed number key"}
		}
		return value.Number(n).Text(), nil
	case "computed_property_name":
		inner := node.NamedChild(0)
		if inner != nil && inner.Type() == "string" {
			return c.stringLiteral(inner), nil
		}
	}
	return "", &nonLiteralError{node: node, kind: "computed key"}
}

func (c *literalConverter) skip(key string, node *sitter.Node) {
	if c.depth > 1 {
		return
	}
	c.skipped = append(c.skipped, key)
	if node != nil && isFunctionNode(node) {
		c.functions[key] = node
	}
}

// stringLiteral decodes a quoted string node.
func (c *literalConverter) stringLiteral(node *sitter.Node) string {
	raw := node.Content(c.content)
	if len(raw) >= 2 {
		raw = raw[1 : len(raw)-1]
	}
	return unescapeJS(raw)
}

// isFunctionNode reports whether node is a function-valued expression or a
// method.
func isFunctionNode(node *sitter.Node) bool {
	switch node.Type() {
	case "function", "function_expression", "arrow_function", "generator_function", "method_definition":
		return true
	}
	return false
}

// describeNode names a node kind for error messages.
func describeNode(node *sitter.Node) string {
	switch node.Type() {
	case "identifier":
		return "identifier reference"
	case "call_expression", "new_expression":
		return "function call"
	case "function", "function_expression", "arrow_function", "generator_function":
		return "function"
	case "spread_element":
		return "spread"
	case "binary_expression":
		return "binary expression"
	case "template_substitution":
		return "template substitution"
	case "ERROR":
		return "syntax error"
	}
	return strings.ReplaceAll(node.Type(), "_", " ")
}

// parseJSNumber parses a JavaScript numeric literal, including hex, octal
// and binary prefixes, numeric separators and a BigInt suffix.
func parseJSNumber(text string) (float64, error) {
	s := strings.TrimSuffix(strings.ReplaceAll(text, "_", ""), "n")
	if len(s) > 1 && s[0] == '0' {
		switch s[1] {
		case 'x', 'X', 'o', 'O', 'b', 'B':
			i, err := strconv.ParseInt(s, 0, 64)
			if err != nil {
				return 0, err
			}
			return float64(i), nil
		}
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsInf(n, 0) {
		return 0, fmt.Errorf("number %s out of range", text)
	}
	return n, nil
}

// unescapeJS decodes JavaScript string escapes. Unknown escapes keep the
// escaped character.
func unescapeJS(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if ch != '\\' || i+1 >= len(s) {
			b.WriteByte(ch)
			continue
		}
		i++
		switch s[i] {
		case 'n':
			b.WriteByte('\n')
		case 't':
			b.WriteByte('\t')
		case 'r':
			b.WriteByte('\r')
		case 'b':
			b.WriteByte('\b')
		case 'f':
			b.WriteByte('\f')
		case 'v':
			b.WriteByte('\v')
		case '0':
			b.WriteByte(0)
		case '\n':
			// line continuation
		case 'x':
			if r, ok := hexRune(s, i+1, 2); ok {
				b.WriteRune(r)
				i += 2
			} else {
				b.WriteByte('x')
			}
		case 'u':
			if i+1 < len(s) && s[i+1] == '{' {
				end := strings.IndexByte(s[i+1:], '}')
				if end > 1 {
					if r, ok := hexRune(s, i+2, end-1); ok {
						b.WriteRune(r)
						i += end + 1
						continue
					}
				}
				b.WriteByte('u')
			} else if r, ok := hexRune(s, i+1, 4); ok {
				b.WriteRune(r)
				i += 4
			} else {
				b.WriteByte('u')
			}
		default:
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

func hexRune(s string, start, n int) (rune, bool) {
	if start+n > len(s) {
		return 0, false
	}
	v, err := strconv.ParseUint(s[start:start+n], 16, 32)
	if err != nil || !utf8.ValidRune(rune(v)) {
		return 0, false
	}
	return rune(v), true
}

// ParseLiteral evaluates text as a JavaScript object, array or scalar
// literal without executing anything.
//
// Description:
//
//	The text is parsed as an expression with the tree-sitter JavaScript
//	grammar and then converted node by node. Accepted: numbers, strings,
//	template strings without substitutions, booleans, null, undefined,
//	arrays, objects with identifier/string/number keys, and unary minus or
//	plus applied to numbers. Anything else (identifiers, calls, functions,
//	spreads, operators) fails with a ParseError pointing at the node.
//
// Inputs:
//   - ctx: Context for cancellation of the tree-sitter parse.
//   - text: The literal text. A trailing semicolon is tolerated.
//
// Outputs:
//   - value.Value: The evaluated literal.
//   - error: A *ParseError wrapping ErrInvalidContent.
//
// Thread Safety: Safe for concurrent use.
func ParseLiteral(ctx context.Context, text []byte) (value.Value, error) {
	trimmed := bytes.TrimRight(text, " \t\r\n;")
	if len(bytes.TrimSpace(trimmed)) == 0 {
		return value.Null(), &ParseError{Message: "empty input", Cause: ErrInvalidContent}
	}
	if !utf8.Valid(trimmed) {
		return value.Null(), &ParseError{Message: "content is not valid UTF-8", Cause: ErrInvalidContent}
	}

	// Parenthesized so that a leading brace reads as an object, not a block.
	wrapped := make([]byte, 0, len(trimmed)+2)
	wrapped = append(wrapped, '(')
	wrapped = append(wrapped, trimmed...)
	wrapped = append(wrapped, ')')

	parser := sitter.NewParser()
	parser.SetLanguage(javascript.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, wrapped)
	if err != nil {
		return value.Null(), &ParseError{Message: "literal parse failed", Cause: fmt.Errorf("%w: %v", ErrInvalidContent, err)}
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		offset := unwrapOffset(firstErrorOffset(root), len(trimmed))
		return value.Null(), newParseErrorAt("", trimmed, offset, "invalid object literal", ErrInvalidContent)
	}

	expr := singleExpression(root)
	if expr == nil {
		return value.Null(), &ParseError{Message: "expected a single literal expression", Snippet: snippetAt(trimmed, 0), Cause: ErrInvalidContent}
	}

	v, err := newLiteralConverter(wrapped, true).convert(expr)
	if err != nil {
		offset := 0
		if nle, ok := err.(*nonLiteralError); ok && nle.node != nil {
			offset = unwrapOffset(int(nle.node.StartByte()), len(trimmed))
		}
		return value.Null(), newParseErrorAt("", trimmed, offset, err.Error(), ErrInvalidContent)
	}
	return v, nil
}

// unwrapOffset maps an offset in the parenthesized text back to the input.
func unwrapOffset(offset, limit int) int {
	offset--
	if offset < 0 {
		return 0
	}
	if offset > limit {
		return limit
	}
	return offset
}

// singleExpression returns the expression inside "(...)" when the program is
// exactly one expression statement.
func singleExpression(root *sitter.Node) *sitter.Node {
	var stmt *sitter.Node
	for i := 0; i < int(root.NamedChildCount()); i++ {
		child := root.NamedChild(i)
		if child.Type() == "comment" {
			continue
		}
		if stmt != nil {
			return nil
		}
		stmt = child
	}
	if stmt == nil || stmt.Type() != "expression_statement" {
		return nil
	}
	paren := stmt.NamedChild(0)
	if paren == nil || paren.Type() != "parenthesized_expression" {
		return nil
	}
	return paren.NamedChild(0)
}

// firstErrorOffset finds the start of the first ERROR or missing node.
func firstErrorOffset(node *sitter.Node) int {
	if node.IsError() || node.IsMissing() {
		return int(node.StartByte())
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child == nil || !(child.HasError() || child.IsMissing() || child.IsError()) {
			continue
		}
		return firstErrorOffset(child)
	}
	return int(node.StartByte())
}
