// Package linemap converts between byte offsets and 1-indexed line and
// column positions over a single byte snapshot of a file.
package linemap

import (
	"fmt"
	"sort"
	"strings"
)

// Map indexes the line starts of one content snapshot.
type Map struct {
	src    []byte
	starts []int
}

func New(src []byte) *Map {
	starts := []int{0}
	for i, b := range src {
		if b == '\n' {
			starts = append(starts, i+1)
		}
	}
	return &Map{src: src, starts: starts}
}

// Lines returns the number of lines, counting a trailing newline's
// empty remainder as a line.
func (m *Map) Lines() int {
	return len(m.starts)
}

// Offset converts a 1-indexed line and byte column into a byte offset.
func (m *Map) Offset(line, col int) (int, error) {
	if line < 1 || line > len(m.starts) {
		return 0, fmt.Errorf("line %d outside content of %d lines", line, len(m.starts))
	}
	off := m.starts[line-1] + col - 1
	if off < 0 || off > len(m.src) {
		return 0, fmt.Errorf("position %d:%d outside content of %d bytes", line, col, len(m.src))
	}
	return off, nil
}

// Position converts a byte offset back into a 1-indexed line and column.
func (m *Map) Position(offset int) (line, col int) {
	line = sort.Search(len(m.starts), func(i int) bool {
		return m.starts[i] > offset
	})
	return line, offset - m.starts[line-1] + 1
}

// LineText returns the trimmed text of a 1-indexed line, used for
// previews.
func (m *Map) LineText(line int) string {
	if line < 1 || line > len(m.starts) {
		return ""
	}
	start := m.starts[line-1]
	end := len(m.src)
	if line < len(m.starts) {
		end = m.starts[line]
	}
	return strings.TrimSpace(string(m.src[start:end]))
}
