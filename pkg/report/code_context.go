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

package report

import (
	"fmt"
	"os"
	"strings"
)

// contextLines is how many lines around a span are shown
const contextLines = 2

// CodeLine represents a single line of code in a context snippet.
type CodeLine struct {
	Line      int    `json:"line"`
	Content   string `json:"content"`
	Highlight bool   `json:"highlight,omitempty"`
}

// CodeContext represents a snippet of code around a finding.
type CodeContext struct {
	StartLine int        `json:"startLine"`
	EndLine   int        `json:"endLine"`
	Lines     []CodeLine `json:"lines"`
}

// buildCodeContext reads the lines of filePath covering [startLine, endLine]
// plus a few lines either side. It returns nil when the file is unreadable
// or the span is outside it.
func buildCodeContext(filePath string, startLine, endLine int) *CodeContext {
	if filePath == "" || startLine <= 0 {
		return nil
	}
	if endLine < startLine {
		endLine = startLine
	}

	content, err := os.ReadFile(filePath)
	if err != nil {
		return nil
	}
	fileLines := strings.Split(strings.TrimRight(string(content), "\n"), "\n")
	if startLine > len(fileLines) {
		return nil
	}

	from := startLine - contextLines
	if from < 1 {
		from = 1
	}
	to := endLine + contextLines
	if to > len(fileLines) {
		to = len(fileLines)
	}

	ctx := &CodeContext{StartLine: from, EndLine: to}
	for i := from; i <= to; i++ {
		ctx.Lines = append(ctx.Lines, CodeLine{
			Line:      i,
			Content:   fileLines[i-1],
			Highlight: i >= startLine && i <= endLine,
		})
	}
	return ctx
}

// Snippet renders the context with line numbers, marking highlighted lines
func (c *CodeContext) Snippet() string {
	if c == nil || len(c.Lines) == 0 {
		return ""
	}

	var builder strings.Builder
	for i, line := range c.Lines {
		prefix := "  "
		if line.Highlight {
			prefix = "> "
		}
		fmt.Fprintf(&builder, "%s%4d | %s", prefix, line.Line, line.Content)
		if i < len(c.Lines)-1 {
			builder.WriteString("\n")
		}
	}

	return builder.String()
}
