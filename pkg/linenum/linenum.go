/*
Copyright 2025 Hare Krishna Rai

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package linenum

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrRouteNotFound is returned when a route does not resolve inside a document
var ErrRouteNotFound = errors.New("route does not resolve in document")

// Route is a path of mapping keys (string) and sequence indices (int) into a YAML document
type Route []interface{}

// With returns a copy of the route extended with the given mapping keys
func (r Route) With(keys ...string) Route {
	out := make(Route, 0, len(r)+len(keys))
	out = append(out, r...)
	for _, k := range keys {
		out = append(out, k)
	}
	return out
}

// String renders the route as a slash-separated path
func (r Route) String() string {
	parts := make([]string, 0, len(r))
	for _, c := range r {
		switch v := c.(type) {
		case int:
			parts = append(parts, strconv.Itoa(v))
		default:
			parts = append(parts, fmt.Sprint(v))
		}
	}
	return strings.Join(parts, "/")
}

// LineResult contains the concrete source span a route resolves to
type LineResult struct {
	LineNumber  int    `json:"line"`         // 1-based line of the first character
	ColumnStart int    `json:"column"`       // 1-based column of the first character
	EndLine     int    `json:"end_line"`     // 1-based line of the last character
	ColumnEnd   int    `json:"end_column"`   // 1-based column just past the last character
	LineContent string `json:"line_content"` // The full first line of the span
	MatchedText string `json:"feature"`      // The source text covered by the span
}

// LineMapper maps routes into source positions for a single YAML document
type LineMapper struct {
	content string
	lines   []string
	root    *yaml.Node
}

// NewLineMapper parses content and creates a line mapper for it
func NewLineMapper(content []byte) (*LineMapper, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(content, &root); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return NewLineMapperFromNode(content, &root), nil
}

// NewLineMapperFromNode creates a line mapper over an already-parsed document
func NewLineMapperFromNode(content []byte, root *yaml.Node) *LineMapper {
	return &LineMapper{
		content: string(content),
		lines:   strings.Split(string(content), "\n"),
		root:    root,
	}
}

// GetLine returns the content of a specific line (1-based)
func (lm *LineMapper) GetLine(lineNum int) string {
	if lineNum <= 0 || lineNum > len(lm.lines) {
		return ""
	}
	return lm.lines[lineNum-1]
}

// GetLines returns lines in the inclusive range, clamped to the content
func (lm *LineMapper) GetLines(startLine, endLine int) []string {
	if startLine < 1 {
		startLine = 1
	}
	if endLine > len(lm.lines) {
		endLine = len(lm.lines)
	}
	if startLine > endLine {
		return []string{}
	}
	return lm.lines[startLine-1 : endLine]
}

// Resolve walks the route through the document and returns the span it covers.
// When the last component is a mapping key, the span starts at the key so that
// "uses: foo" is reported as a whole.
func (lm *LineMapper) Resolve(route Route) (*LineResult, error) {
	node := documentBody(lm.root)
	if node == nil {
		return nil, fmt.Errorf("%w: empty document", ErrRouteNotFound)
	}

	start := node
	for i, component := range route {
		switch c := component.(type) {
		case string:
			key, value := mappingEntry(node, c)
			if value == nil {
				return nil, fmt.Errorf("%w: %q (at %s)", ErrRouteNotFound, route.String(), Route(route[:i+1]).String())
			}
			start, node = key, value
		case int:
			if node.Kind != yaml.SequenceNode || c < 0 || c >= len(node.Content) {
				return nil, fmt.Errorf("%w: %q (at %s)", ErrRouteNotFound, route.String(), Route(route[:i+1]).String())
			}
			node = node.Content[c]
			start = node
		default:
			return nil, fmt.Errorf("invalid route component %T in %q", component, route.String())
		}
	}

	endLine, endCol := nodeEnd(node)
	return lm.span(start.Line, start.Column, endLine, endCol), nil
}

func (lm *LineMapper) span(line, col, endLine, endCol int) *LineResult {
	if endLine < line {
		endLine = line
	}
	matched := lm.GetLines(line, endLine)
	text := strings.Join(matched, "\n")
	if len(matched) == 1 {
		from := clamp(col-1, len(matched[0]))
		to := clamp(endCol-1, len(matched[0]))
		if to < from {
			to = len(matched[0])
		}
		text = matched[0][from:to]
	}

	return &LineResult{
		LineNumber:  line,
		ColumnStart: col,
		EndLine:     endLine,
		ColumnEnd:   endCol,
		LineContent: lm.GetLine(line),
		MatchedText: strings.TrimSpace(text),
	}
}

func documentBody(root *yaml.Node) *yaml.Node {
	if root == nil {
		return nil
	}
	if root.Kind == yaml.DocumentNode {
		if len(root.Content) == 0 {
			return nil
		}
		return root.Content[0]
	}
	return root
}

func mappingEntry(node *yaml.Node, key string) (*yaml.Node, *yaml.Node) {
	if node.Kind != yaml.MappingNode {
		return nil, nil
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == key {
			return node.Content[i], node.Content[i+1]
		}
	}
	return nil, nil
}

// nodeEnd approximates the end position of a node. yaml.v3 only records start
// positions, so collections end where their last descendant ends.
func nodeEnd(node *yaml.Node) (int, int) {
	switch node.Kind {
	case yaml.MappingNode, yaml.SequenceNode, yaml.DocumentNode:
		if len(node.Content) == 0 {
			return node.Line, node.Column + 2
		}
		return nodeEnd(node.Content[len(node.Content)-1])
	case yaml.AliasNode:
		return node.Line, node.Column + len(node.Value) + 1
	}

	switch node.Style {
	case yaml.LiteralStyle, yaml.FoldedStyle:
		body := strings.TrimRight(node.Value, "\n")
		lines := strings.Split(body, "\n")
		return node.Line + len(lines), len(lines[len(lines)-1]) + 1
	case yaml.DoubleQuotedStyle, yaml.SingleQuotedStyle:
		return node.Line, node.Column + len(node.Value) + 2
	}
	return node.Line, node.Column + len(node.Value)
}

func clamp(v, max int) int {
	if v < 0 {
		return 0
	}
	if v > max {
		return max
	}
	return v
}
