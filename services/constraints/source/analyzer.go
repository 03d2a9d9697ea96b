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
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"

	"github.com/AleutianAI/AleutianUCDL/services/constraints/value"
)

// SourceAnalyzer recovers constraint records from source text.
//
// Implementations must not execute the source. They must be safe for
// concurrent use.
type SourceAnalyzer interface {
	// Analyze returns every constraint definition found in content.
	//
	// filePath selects the grammar by extension and is recorded on each
	// record; it may be empty for in-memory text.
	Analyze(ctx context.Context, content []byte, filePath string) ([]*Record, error)
}

// Grammar names.
const (
	LanguageJavaScript = "javascript"
	LanguageTypeScript = "typescript"
	LanguageTSX        = "tsx"
)

// SourceExtensions maps source file extensions to grammars.
var SourceExtensions = map[string]string{
	".js":  LanguageJavaScript,
	".jsx": LanguageJavaScript,
	".mjs": LanguageJavaScript,
	".cjs": LanguageJavaScript,
	".ts":  LanguageTypeScript,
	".mts": LanguageTypeScript,
	".cts": LanguageTypeScript,
	".tsx": LanguageTSX,
}

// superArgNames are the positional parameters of the legacy base
// constructor.
var superArgNames = []string{"id", "name", "description", "type", "category", "parameters", "weight"}

// TreeSitterAnalyzer is a SourceAnalyzer backed by tree-sitter grammars for
// JavaScript, TypeScript and TSX.
//
// Thread Safety: Safe for concurrent use. Each call creates its own parser.
type TreeSitterAnalyzer struct {
	logger *slog.Logger
}

// NewTreeSitterAnalyzer creates an analyzer. A nil logger uses slog.Default.
func NewTreeSitterAnalyzer(logger *slog.Logger) *TreeSitterAnalyzer {
	if logger == nil {
		logger = slog.Default()
	}
	return &TreeSitterAnalyzer{logger: logger}
}

// Analyze parses content and walks its top-level statements.
//
// Description:
//
//	Visits class declarations that extend a constraint base, variable
//	declarators whose names mention "constraint" or "rule", exported
//	objects and arrays, the default export and module.exports assignments.
//	Exported values that are not named like constraints must pass
//	LooksLikeConstraint.
//
//	When filePath has no known extension the text is parsed as JavaScript
//	and retried as TypeScript if the JavaScript parse has errors.
//
// Inputs:
//   - ctx: Context for cancellation.
//   - content: Source text. Must be valid UTF-8.
//   - filePath: Used for grammar selection and error reporting. May be empty.
//
// Outputs:
//   - []*Record: Records in source order. Empty when nothing matched.
//   - error: *ParseError wrapping ErrInvalidContent on syntax errors.
//
// Thread Safety: Safe for concurrent use.
func (a *TreeSitterAnalyzer) Analyze(ctx context.Context, content []byte, filePath string) ([]*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("analyze canceled: %w", err)
	}
	if !utf8.Valid(content) {
		return nil, &ParseError{FilePath: filePath, Message: "content is not valid UTF-8", Cause: ErrInvalidContent}
	}

	lang, known := SourceExtensions[strings.ToLower(filepath.Ext(filePath))]
	if !known {
		lang = LanguageJavaScript
	}

	ctx, span := startParseSpan(ctx, lang, filePath, len(content))
	defer span.End()
	start := time.Now()

	tree, err := parseTree(ctx, content, lang)
	if err != nil {
		recordParseMetrics(ctx, lang, time.Since(start), 0, false)
		return nil, &ParseError{FilePath: filePath, Message: "tree-sitter parse failed", Cause: fmt.Errorf("%w: %v", ErrInvalidContent, err)}
	}

	if !known && tree.RootNode().HasError() {
		if tsTree, tsErr := parseTree(ctx, content, LanguageTypeScript); tsErr == nil {
			if !tsTree.RootNode().HasError() {
				tree.Close()
				tree, lang = tsTree, LanguageTypeScript
			} else {
				tsTree.Close()
			}
		}
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		recordParseMetrics(ctx, lang, time.Since(start), 0, false)
		offset := firstErrorOffset(root)
		return nil, newParseErrorAt(filePath, content, offset, "syntax error in "+lang+" source", ErrInvalidContent)
	}

	w := &sourceWalker{content: content, filePath: filePath}
	for i := 0; i < int(root.NamedChildCount()); i++ {
		w.visitTopLevel(root.NamedChild(i))
	}

	a.logger.Debug("analyzed source",
		slog.String("file", filePath),
		slog.String("language", lang),
		slog.Int("records", len(w.records)),
	)
	setParseSpanResult(span, len(w.records), 0)
	recordParseMetrics(ctx, lang, time.Since(start), len(w.records), true)
	return w.records, nil
}

// parseTree parses content with the named grammar. The caller closes the tree.
func parseTree(ctx context.Context, content []byte, lang string) (*sitter.Tree, error) {
	parser := sitter.NewParser()
	switch lang {
	case LanguageTypeScript:
		parser.SetLanguage(typescript.GetLanguage())
	case LanguageTSX:
		parser.SetLanguage(tsx.GetLanguage())
	default:
		parser.SetLanguage(javascript.GetLanguage())
	}
	return parser.ParseCtx(ctx, nil, content)
}

// sourceWalker accumulates records while visiting one syntax tree.
type sourceWalker struct {
	content  []byte
	filePath string
	records  []*Record
}

func (w *sourceWalker) visitTopLevel(node *sitter.Node) {
	switch node.Type() {
	case "class_declaration", "abstract_class_declaration":
		w.visitClass(node, "")
	case "export_statement":
		w.visitExport(node)
	case "lexical_declaration", "variable_declaration":
		w.visitDeclaration(node, false)
	case "expression_statement":
		w.visitModuleExports(node)
	}
}

func (w *sourceWalker) visitExport(node *sitter.Node) {
	if decl := node.ChildByFieldName("declaration"); decl != nil {
		switch decl.Type() {
		case "class_declaration", "abstract_class_declaration":
			w.visitClass(decl, "")
		case "lexical_declaration", "variable_declaration":
			w.visitDeclaration(decl, true)
		}
		return
	}
	if val := node.ChildByFieldName("value"); val != nil {
		w.visitExportedValue(val, node, "")
	}
}

// visitExportedValue handles the default export and module.exports. Objects
// and array elements must resemble a constraint unless the binding name
// already says they are constraints.
func (w *sourceWalker) visitExportedValue(val, anchor *sitter.Node, bindingName string) {
	val = unwrapExpression(val)
	named := nameSuggestsConstraint(bindingName)
	switch val.Type() {
	case "class":
		w.visitClass(val, bindingName)
	case "object":
		w.addObject(val, anchor, !named)
	case "array":
		w.addArrayElements(val, !named)
	}
}

func (w *sourceWalker) visitDeclaration(decl *sitter.Node, exported bool) {
	for i := 0; i < int(decl.NamedChildCount()); i++ {
		declarator := decl.NamedChild(i)
		if declarator.Type() != "variable_declarator" {
			continue
		}
		nameNode := declarator.ChildByFieldName("name")
		valNode := declarator.ChildByFieldName("value")
		if nameNode == nil || valNode == nil || nameNode.Type() != "identifier" {
			continue
		}
		name := nameNode.Content(w.content)
		named := nameSuggestsConstraint(name)
		valNode = unwrapExpression(valNode)

		switch valNode.Type() {
		case "class":
			w.visitClass(valNode, name)
		case "object":
			if named || exported {
				w.addObject(valNode, decl, !named)
			}
		case "array":
			if named || exported {
				w.addArrayElements(valNode, !named)
			}
		}
	}
}

// visitModuleExports handles "module.exports = ..." and "exports.x = ...".
func (w *sourceWalker) visitModuleExports(stmt *sitter.Node) {
	expr := stmt.NamedChild(0)
	if expr == nil || expr.Type() != "assignment_expression" {
		return
	}
	left := expr.ChildByFieldName("left")
	right := expr.ChildByFieldName("right")
	if left == nil || right == nil || left.Type() != "member_expression" {
		return
	}
	target := left.Content(w.content)
	switch {
	case target == "module.exports":
		w.visitExportedValue(right, stmt, "")
	case strings.HasPrefix(target, "exports.") || strings.HasPrefix(target, "module.exports."):
		prop := left.ChildByFieldName("property")
		if prop != nil {
			w.visitExportedValue(right, stmt, prop.Content(w.content))
		}
	}
}

func (w *sourceWalker) addArrayElements(array *sitter.Node, requireShape bool) {
	for i := 0; i < int(array.NamedChildCount()); i++ {
		el := unwrapExpression(array.NamedChild(i))
		if el.Type() == "object" {
			w.addObject(el, el, requireShape)
		}
	}
}

// addObject converts an object literal into a record. Non-literal property
// values are skipped; an "evaluate" function is scored.
func (w *sourceWalker) addObject(node, anchor *sitter.Node, requireShape bool) {
	conv := newLiteralConverter(w.content, false)
	v, err := conv.convert(node)
	if err != nil {
		return
	}
	fields, ok := v.AsObject()
	if !ok {
		return
	}
	keys := append(fields.Keys(), conv.skipped...)
	if requireShape && !LooksLikeConstraint(keys) {
		return
	}

	doc := parseDocComment(precedingDocComment(anchor, w.content))
	applyDocFields(fields, doc)

	rec := newRecord(fields, FormatObject, value.String(node.Content(w.content)))
	w.stampLocation(rec, node)
	applyDocMetadata(rec, doc)
	if len(conv.skipped) > 0 {
		rec.Metadata.Set(MetaSkippedKeys, value.Strings(conv.skipped...))
	}
	for _, key := range conv.skipped {
		if key != "evaluate" {
			continue
		}
		rec.Metadata.Set(MetaHasEvaluate, value.Bool(true))
		if fn, ok := conv.functions[key]; ok {
			rec.Metadata.Set(MetaComplexity, value.Int(countComplexity(fn, w.content)))
		}
	}
	w.records = append(w.records, rec)
}

// visitClass turns a class extending a constraint base into a record.
// bindingName names anonymous class expressions.
func (w *sourceWalker) visitClass(node *sitter.Node, bindingName string) {
	className := bindingName
	if nameNode := node.ChildByFieldName("name"); nameNode != nil {
		className = nameNode.Content(w.content)
	}
	superName := heritageName(node, w.content)
	if !IsConstraintClass(superName) {
		return
	}

	fields := value.NewObject()
	props := value.NewObject()
	if className != "" {
		fields.Set("name", value.String(defaultClassName(className)))
	}

	hasEvaluate := false
	complexity := 0
	if body := node.ChildByFieldName("body"); body != nil {
		for i := 0; i < int(body.NamedChildCount()); i++ {
			member := body.NamedChild(i)
			switch member.Type() {
			case "method_definition":
				nameNode := member.ChildByFieldName("name")
				if nameNode == nil {
					continue
				}
				methodName := nameNode.Content(w.content)
				switch {
				case methodName == "constructor":
					w.visitConstructor(member.ChildByFieldName("body"), fields, props)
				case methodName == "evaluate":
					hasEvaluate = true
					complexity += countComplexity(member.ChildByFieldName("body"), w.content)
				case isGetter(member):
					if v, ok := w.getterValue(member); ok {
						assignProperty(fields, props, methodName, v)
					}
				}

			case "field_definition", "public_field_definition":
				keyNode := member.ChildByFieldName("property")
				if keyNode == nil {
					keyNode = member.ChildByFieldName("name")
				}
				valNode := member.ChildByFieldName("value")
				if keyNode == nil || valNode == nil {
					continue
				}
				key := strings.Trim(keyNode.Content(w.content), `"'`)
				if key == "evaluate" && isFunctionNode(valNode) {
					hasEvaluate = true
					complexity += countComplexity(valNode, w.content)
					continue
				}
				if v, err := newLiteralConverter(w.content, false).convert(valNode); err == nil {
					assignProperty(fields, props, key, v)
				}
			}
		}
	}

	doc := parseDocComment(precedingDocComment(node, w.content))
	applyDocFields(fields, doc)

	rec := newRecord(fields, FormatClass, value.String(node.Content(w.content)))
	w.stampLocation(rec, node)
	if className != "" {
		rec.Metadata.Set(MetaClassName, value.String(className))
	}
	rec.Metadata.Set(MetaExtends, value.String(superName))
	rec.Metadata.Set(MetaHasEvaluate, value.Bool(hasEvaluate))
	rec.Metadata.Set(MetaComplexity, value.Int(complexity))
	if props.Len() > 0 {
		rec.Metadata.Set(MetaProperties, value.FromObject(props))
	}
	applyDocMetadata(rec, doc)
	w.records = append(w.records, rec)
}

// visitConstructor reads super(...) arguments and this.x assignments.
func (w *sourceWalker) visitConstructor(body *sitter.Node, fields, props *value.Object) {
	if body == nil {
		return
	}
	for i := 0; i < int(body.NamedChildCount()); i++ {
		stmt := body.NamedChild(i)
		if stmt.Type() != "expression_statement" {
			continue
		}
		expr := stmt.NamedChild(0)
		if expr == nil {
			continue
		}

		switch expr.Type() {
		case "call_expression":
			fn := expr.ChildByFieldName("function")
			args := expr.ChildByFieldName("arguments")
			if fn == nil || args == nil {
				continue
			}
			switch {
			case fn.Type() == "super":
				w.applySuperArgs(args, fields, props)
			case fn.Content(w.content) == "Object.assign":
				w.applyObjectAssign(args, fields, props)
			}

		case "assignment_expression":
			left := expr.ChildByFieldName("left")
			right := expr.ChildByFieldName("right")
			if left == nil || right == nil || left.Type() != "member_expression" {
				continue
			}
			obj := left.ChildByFieldName("object")
			prop := left.ChildByFieldName("property")
			if obj == nil || prop == nil || obj.Type() != "this" {
				continue
			}
			if v, err := newLiteralConverter(w.content, false).convert(right); err == nil {
				assignProperty(fields, props, prop.Content(w.content), v)
			}
		}
	}
}

// applySuperArgs maps positional super arguments. A single object argument
// is read as named fields instead.
func (w *sourceWalker) applySuperArgs(args *sitter.Node, fields, props *value.Object) {
	list := argumentNodes(args)
	if len(list) == 1 && unwrapExpression(list[0]).Type() == "object" {
		w.assignObject(list[0], fields, props)
		return
	}
	for i, arg := range list {
		if i >= len(superArgNames) {
			break
		}
		v, err := newLiteralConverter(w.content, false).convert(arg)
		if err != nil || v.IsNull() {
			continue
		}
		assignProperty(fields, props, superArgNames[i], v)
	}
}

// applyObjectAssign handles Object.assign(this, {...}).
func (w *sourceWalker) applyObjectAssign(args *sitter.Node, fields, props *value.Object) {
	list := argumentNodes(args)
	if len(list) < 2 || list[0].Type() != "this" {
		return
	}
	for _, src := range list[1:] {
		if unwrapExpression(src).Type() == "object" {
			w.assignObject(src, fields, props)
		}
	}
}

func (w *sourceWalker) assignObject(node *sitter.Node, fields, props *value.Object) {
	v, err := newLiteralConverter(w.content, false).convert(node)
	if err != nil {
		return
	}
	obj, ok := v.AsObject()
	if !ok {
		return
	}
	obj.Range(func(key string, val value.Value) bool {
		assignProperty(fields, props, key, val)
		return true
	})
}

// getterValue returns the literal returned by a single-statement getter.
func (w *sourceWalker) getterValue(method *sitter.Node) (value.Value, bool) {
	body := method.ChildByFieldName("body")
	if body == nil || body.NamedChildCount() != 1 {
		return value.Null(), false
	}
	ret := body.NamedChild(0)
	if ret.Type() != "return_statement" || ret.NamedChildCount() != 1 {
		return value.Null(), false
	}
	v, err := newLiteralConverter(w.content, true).convert(ret.NamedChild(0))
	if err != nil {
		return value.Null(), false
	}
	return v, true
}

func (w *sourceWalker) stampLocation(rec *Record, node *sitter.Node) {
	rec.setFilePath(w.filePath)
	rec.Metadata.Set(MetaLine, value.Int(int(node.StartPoint().Row)+1))
}

// assignProperty routes a recovered class property to its canonical field,
// or to props when the key is not a recognized constraint field.
func assignProperty(fields, props *value.Object, key string, v value.Value) {
	switch key {
	case "id", "name", "description", "category", "weight", "priority", "parameters":
		fields.Set(key, v)
	case "type", "constraintType":
		fields.Set("type", v)
	case "isHard", "hard":
		fields.Set("isHard", v)
	case "params":
		fields.Set("parameters", v)
	default:
		props.Set(key, v)
	}
}

func applyDocFields(fields *value.Object, doc docComment) {
	if doc.Description != "" {
		fields.SetDefault("description", value.String(doc.Description))
	}
	if doc.Author != "" {
		fields.SetDefault("author", value.String(doc.Author))
	}
}

func applyDocMetadata(rec *Record, doc docComment) {
	if doc.empty() {
		return
	}
	if doc.Description != "" {
		rec.Metadata.Set(MetaDocumentation, value.String(doc.Description))
	}
	if len(doc.Params) > 0 {
		rec.Metadata.Set(MetaDocParams, doc.paramsValue())
	}
}

// heritageName returns the superclass expression text of a class, or "".
func heritageName(class *sitter.Node, content []byte) string {
	for i := 0; i < int(class.ChildCount()); i++ {
		child := class.Child(i)
		if child == nil || child.Type() != "class_heritage" {
			continue
		}
		for j := 0; j < int(child.NamedChildCount()); j++ {
			expr := child.NamedChild(j)
			if expr.Type() == "implements_clause" {
				continue
			}
			if expr.Type() == "extends_clause" {
				if v := expr.ChildByFieldName("value"); v != nil {
					expr = v
				} else if expr.NamedChildCount() > 0 {
					expr = expr.NamedChild(0)
				}
			}
			name := expr.Content(content)
			if k := strings.IndexByte(name, '<'); k >= 0 {
				name = name[:k]
			}
			return strings.TrimSpace(name)
		}
	}
	return ""
}

func isGetter(method *sitter.Node) bool {
	for i := 0; i < int(method.ChildCount()); i++ {
		if c := method.Child(i); c != nil && c.Type() == "get" {
			return true
		}
	}
	return false
}

// argumentNodes returns the argument expressions of a call, without comments.
func argumentNodes(args *sitter.Node) []*sitter.Node {
	list := make([]*sitter.Node, 0, args.NamedChildCount())
	for i := 0; i < int(args.NamedChildCount()); i++ {
		arg := args.NamedChild(i)
		if arg.Type() != "comment" {
			list = append(list, arg)
		}
	}
	return list
}

// unwrapExpression strips parentheses and TypeScript type assertions.
func unwrapExpression(node *sitter.Node) *sitter.Node {
	for node != nil {
		switch node.Type() {
		case "parenthesized_expression", "as_expression", "satisfies_expression", "non_null_expression":
			inner := node.NamedChild(0)
			if inner == nil {
				return node
			}
			node = inner
		default:
			return node
		}
	}
	return node
}

// countComplexity counts branching constructs under node: conditionals,
// loops, switch cases and short-circuit operators.
func countComplexity(node *sitter.Node, content []byte) int {
	if node == nil {
		return 0
	}
	count := 0
	switch node.Type() {
	case "if_statement", "ternary_expression", "for_statement", "for_in_statement", "for_of_statement",
		"while_statement", "do_statement", "switch_case":
		count++
	case "binary_expression":
		if op := node.ChildByFieldName("operator"); op != nil {
			switch op.Content(content) {
			case "&&", "||", "??":
				count++
			}
		}
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		count += countComplexity(node.Child(i), content)
	}
	return count
}

// Compile-time interface compliance check.
var _ SourceAnalyzer = (*TreeSitterAnalyzer)(nil)
