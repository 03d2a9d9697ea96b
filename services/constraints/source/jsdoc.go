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
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/AleutianAI/AleutianUCDL/services/constraints/value"
)

// docParam is one @param annotation.
type docParam struct {
	Name        string
	Type        string
	Description string
}

// docComment is a parsed JSDoc block.
type docComment struct {
	Description string
	Params      []docParam
	Author      string
}

// empty reports whether the comment carried nothing usable.
func (d docComment) empty() bool {
	return d.Description == "" && len(d.Params) == 0 && d.Author == ""
}

// paramsValue renders the @param annotations as {name: {type, description}}.
func (d docComment) paramsValue() value.Value {
	obj := value.NewObject()
	for _, p := range d.Params {
		entry := value.NewObject()
		if p.Type != "" {
			entry.Set("type", value.String(p.Type))
		}
		if p.Description != "" {
			entry.Set("description", value.String(p.Description))
		}
		obj.Set(p.Name, value.FromObject(entry))
	}
	return value.FromObject(obj)
}

// parseDocComment parses a "/** ... */" block. Text before the first tag is
// the description; @description overrides it.
func parseDocComment(raw string) docComment {
	var doc docComment
	body := strings.TrimPrefix(raw, "/**")
	body = strings.TrimSuffix(body, "*/")

	var (
		descLines []string
		tag       string
		tagLines  []string
	)
	flush := func() {
		if tag == "" {
			return
		}
		applyDocTag(&doc, tag, strings.Join(tagLines, " "))
		tag, tagLines = "", nil
	}

	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimSpace(strings.TrimPrefix(line, "*"))
		if strings.HasPrefix(line, "@") {
			flush()
			name, rest, _ := strings.Cut(line[1:], " ")
			tag = name
			tagLines = []string{strings.TrimSpace(rest)}
			continue
		}
		if tag != "" {
			if line != "" {
				tagLines = append(tagLines, line)
			}
			continue
		}
		if line != "" {
			descLines = append(descLines, line)
		}
	}
	flush()

	if doc.Description == "" {
		doc.Description = strings.Join(descLines, " ")
	}
	return doc
}

func applyDocTag(doc *docComment, tag, text string) {
	text = strings.TrimSpace(text)
	switch tag {
	case "description", "desc":
		doc.Description = text
	case "author":
		doc.Author = text
	case "param", "arg", "argument":
		if p, ok := parseParamTag(text); ok {
			doc.Params = append(doc.Params, p)
		}
	}
}

// parseParamTag parses "{type} [name=default] - description".
func parseParamTag(text string) (docParam, bool) {
	var p docParam
	if strings.HasPrefix(text, "{") {
		end := strings.IndexByte(text, '}')
		if end < 0 {
			return p, false
		}
		p.Type = strings.TrimSpace(text[1:end])
		text = strings.TrimSpace(text[end+1:])
	}

	name, rest, _ := strings.Cut(text, " ")
	name = strings.Trim(name, "[]")
	if i := strings.IndexByte(name, '='); i >= 0 {
		name = name[:i]
	}
	if name == "" {
		return p, false
	}
	p.Name = name
	rest = strings.TrimSpace(rest)
	p.Description = strings.TrimSpace(strings.TrimPrefix(rest, "-"))
	return p, true
}

// precedingDocComment returns the JSDoc block immediately before node. When
// node sits inside an export statement the comment precedes the export.
func precedingDocComment(node *sitter.Node, content []byte) string {
	if node == nil {
		return ""
	}

	prev := node.PrevSibling()
	if prev != nil && prev.Type() == "comment" {
		comment := prev.Content(content)
		if strings.HasPrefix(comment, "/**") {
			return comment
		}
	}

	parent := node.Parent()
	if parent != nil && parent.Type() == "export_statement" {
		parentPrev := parent.PrevSibling()
		if parentPrev != nil && parentPrev.Type() == "comment" {
			comment := parentPrev.Content(content)
			if strings.HasPrefix(comment, "/**") {
				return comment
			}
		}
	}

	return ""
}
