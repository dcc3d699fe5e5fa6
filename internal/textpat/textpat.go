// Package textpat implements regex discovery through the ripgrep CLI.
// It is the fallback backend for files no syntax-aware backend claims,
// and the fast path for plain text replacements across a large tree.
package textpat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"codemod/internal/backend"
	"codemod/internal/checksum"
	"codemod/internal/editset"
	"codemod/internal/linemap"
	"codemod/internal/logger"
)

// DefaultBin is the ripgrep executable name.
const DefaultBin = "rg"

// runFunc executes the tool and returns its stdout, stderr and exit
// code. err is reserved for failures to run at all.
type runFunc func(ctx context.Context, bin string, args []string, dir string) (stdout, stderr []byte, exitCode int, err error)

// Backend shells out to ripgrep for line-oriented regex matches.
type Backend struct {
	root   string
	bin    string
	ignore []string
	run    runFunc
	log    *slog.Logger
}

// New builds a Backend rooted at root. ignoreDirs are directory names
// excluded from every search, on top of ripgrep's own gitignore handling.
func New(root, bin string, ignoreDirs []string) *Backend {
	if bin == "" {
		bin = DefaultBin
	}
	return &Backend{root: root, bin: bin, ignore: ignoreDirs, run: runTool, log: logger.ForComponent("textpat")}
}

func (b *Backend) Info() backend.Info {
	return backend.Info{Name: "text", Extensions: []string{backend.Wildcard}, Priority: 10}
}

// rgMatch is the data payload of a ripgrep `match` record. line_number
// is 1-indexed; absolute_offset is the byte offset of the line blob and
// submatch start/end are byte offsets within that blob.
type rgMatch struct {
	Path struct {
		Text string `json:"text"`
	} `json:"path"`
	Lines struct {
		Text string `json:"text"`
	} `json:"lines"`
	LineNumber     int `json:"line_number"`
	AbsoluteOffset int `json:"absolute_offset"`
	Submatches     []struct {
		Match struct {
			Text string `json:"text"`
		} `json:"match"`
		Start int `json:"start"`
		End   int `json:"end"`
	} `json:"submatches"`
}

// ProposeReplace runs the regex over the project and builds an editset.
// The pattern is compiled locally as well: replacement templates expand
// capture groups ($1, ${name}) against each matched text, and a pattern
// ripgrep accepts but Go cannot compile is rejected up front. Offsets
// and checksums come from our own read of each matched file; a match
// that no longer lines up with that snapshot is dropped with a warning.
func (b *Backend) ProposeReplace(ctx context.Context, q backend.PatternQuery) (*editset.Editset, error) {
	if q.Pattern == "" {
		return nil, fmt.Errorf("empty pattern")
	}
	re, err := regexp.Compile(q.Pattern)
	if err != nil {
		return nil, fmt.Errorf("compile pattern: %w", err)
	}
	args := []string{"--json", "--color=never"}
	if q.Lang != "" {
		args = append(args, "-t", q.Lang)
	}
	for _, g := range q.Globs {
		args = append(args, "-g", g)
	}
	for _, dir := range b.ignore {
		args = append(args, "-g", "!"+dir)
	}
	args = append(args, "-e", q.Pattern)

	stdout, stderr, code, err := b.run(ctx, b.bin, args, b.root)
	if err != nil {
		return nil, err
	}
	// ripgrep reserves exit 1 for a search that found nothing.
	if code > 1 {
		return nil, fmt.Errorf("%s exited with status %d: %s", b.bin, code, firstLine(stderr))
	}

	now := time.Now()
	es := &editset.Editset{
		ID:          editset.NewID("replace.text", now),
		Operation:   "replace.text",
		Pattern:     q.Pattern,
		Replacement: q.Replacement,
		CreatedAt:   now,
	}

	type snapshot struct {
		sum     string
		content []byte
		lines   *linemap.Map
	}
	snapshots := make(map[string]*snapshot)
	load := func(file string) *snapshot {
		if snap, ok := snapshots[file]; ok {
			return snap
		}
		content, err := os.ReadFile(filepath.Join(b.root, filepath.FromSlash(file)))
		if err != nil {
			b.log.Warn("skipping unreadable match file", "file", file, "error", err)
			snapshots[file] = nil
			return nil
		}
		snap := &snapshot{sum: checksum.Checksum(content), content: content, lines: linemap.New(content)}
		snapshots[file] = snap
		return snap
	}

	for _, line := range bytes.Split(stdout, []byte("\n")) {
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var rec struct {
			Type string          `json:"type"`
			Data json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(line, &rec); err != nil {
			b.log.Warn("skipping unparseable record", "error", err)
			continue
		}
		if rec.Type != "match" {
			continue
		}
		var m rgMatch
		if err := json.Unmarshal(rec.Data, &m); err != nil {
			b.log.Warn("skipping unparseable match record", "error", err)
			continue
		}
		file := filepath.ToSlash(m.Path.Text)
		snap := load(file)
		if snap == nil {
			continue
		}
		lineStart, err := snap.lines.Offset(m.LineNumber, 1)
		if err != nil || lineStart != m.AbsoluteOffset {
			b.log.Warn("match outside current content", "file", file, "line", m.LineNumber)
			continue
		}

		for _, sm := range m.Submatches {
			startOff := lineStart + sm.Start
			endOff := lineStart + sm.End
			if endOff > len(snap.content) || string(snap.content[startOff:endOff]) != sm.Match.Text {
				b.log.Warn("match no longer present in file", "file", file, "line", m.LineNumber)
				continue
			}
			startLine, startCol := m.LineNumber, sm.Start+1
			endLine, endCol := m.LineNumber, sm.End+1

			es.Refs = append(es.Refs, editset.Reference{
				RefID: checksum.RefID(file, startLine, startCol, endLine, endCol),
				File:  file,
				Range: editset.Range{
					Start: editset.Position{Line: startLine, Column: startCol},
					End:   editset.Position{Line: endLine, Column: endCol},
				},
				Preview:  snap.lines.LineText(startLine),
				Checksum: snap.sum,
				Selected: true,
			})
			if q.Replacement != "" {
				es.Edits = append(es.Edits, editset.Edit{
					File:        file,
					Offset:      startOff,
					Length:      sm.End - sm.Start,
					Replacement: re.ReplaceAllString(sm.Match.Text, q.Replacement),
				})
			}
		}
	}

	es.Edits = editset.DedupeEdits(es.Edits)
	editset.SortEdits(es.Edits)
	b.log.Debug("text matches collected", "pattern", q.Pattern, "refs", len(es.Refs))
	return es, nil
}

func runTool(ctx context.Context, bin string, args []string, dir string) ([]byte, []byte, int, error) {
	if _, err := exec.LookPath(bin); err != nil {
		return nil, nil, 0, fmt.Errorf("%s (install ripgrep to enable text patterns): %w", bin, backend.ErrToolNotInstalled)
	}
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Dir = dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return stdout.Bytes(), stderr.Bytes(), exitErr.ExitCode(), nil
		}
		return nil, nil, 0, fmt.Errorf("run %s: %w", bin, err)
	}
	return stdout.Bytes(), stderr.Bytes(), 0, nil
}

func firstLine(b []byte) string {
	s := strings.TrimSpace(string(b))
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return s
}
