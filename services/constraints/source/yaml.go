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
	"fmt"
	"math"

	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/AleutianUCDL/services/constraints/value"
)

// maxYAMLDepth bounds alias expansion.
const maxYAMLDepth = 64

// decodeYAML decodes a YAML document into a Value, keeping mapping order.
func decodeYAML(filePath string, content []byte) (value.Value, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(content, &doc); err != nil {
		return value.Null(), &ParseError{
			FilePath: filePath,
			Message:  "invalid YAML",
			Cause:    fmt.Errorf("%w: %v", ErrInvalidContent, err),
		}
	}
	v, err := yamlNodeToValue(&doc, 0)
	if err != nil {
		return value.Null(), &ParseError{
			FilePath: filePath,
			Line:     err.line,
			Column:   err.column,
			Message:  err.msg,
			Cause:    ErrInvalidContent,
		}
	}
	return v, nil
}

type yamlError struct {
	line, column int
	msg          string
}

func yamlNodeToValue(n *yaml.Node, depth int) (value.Value, *yamlError) {
	if depth > maxYAMLDepth {
		return value.Null(), &yamlError{line: n.Line, column: n.Column, msg: "YAML nesting too deep"}
	}

	switch n.Kind {
	case 0:
		return value.Null(), nil

	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return value.Null(), nil
		}
		return yamlNodeToValue(n.Content[0], depth+1)

	case yaml.AliasNode:
		if n.Alias == nil {
			return value.Null(), nil
		}
		return yamlNodeToValue(n.Alias, depth+1)

	case yaml.SequenceNode:
		items := make([]value.Value, 0, len(n.Content))
		for _, c := range n.Content {
			v, err := yamlNodeToValue(c, depth+1)
			if err != nil {
				return value.Null(), err
			}
			items = append(items, v)
		}
		return value.Array(items...), nil

	case yaml.MappingNode:
		obj := value.NewObject()
		for i := 0; i+1 < len(n.Content); i += 2 {
			k, vn := n.Content[i], n.Content[i+1]
			v, err := yamlNodeToValue(vn, depth+1)
			if err != nil {
				return value.Null(), err
			}
			if k.Value == "<<" && k.Tag == "!!merge" {
				if merged, ok := v.AsObject(); ok {
					merged.Range(func(key string, mv value.Value) bool {
						obj.SetDefault(key, mv)
						return true
					})
				}
				continue
			}
			obj.Set(k.Value, v)
		}
		return value.FromObject(obj), nil

	case yaml.ScalarNode:
		return yamlScalar(n)
	}
	return value.Null(), &yamlError{line: n.Line, column: n.Column, msg: "unsupported YAML node"}
}

func yamlScalar(n *yaml.Node) (value.Value, *yamlError) {
	switch n.ShortTag() {
	case "!!null":
		return value.Null(), nil
	case "!!bool":
		var b bool
		if err := n.Decode(&b); err != nil {
			return value.Null(), &yamlError{line: n.Line, column: n.Column, msg: err.Error()}
		}
		return value.Bool(b), nil
	case "!!int", "!!float":
		var f float64
		if err := n.Decode(&f); err != nil {
			return value.Null(), &yamlError{line: n.Line, column: n.Column, msg: err.Error()}
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return value.String(n.Value), nil
		}
		return value.Number(f), nil
	default:
		return value.String(n.Value), nil
	}
}
