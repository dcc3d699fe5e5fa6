// Package structural implements pattern-based discovery through the
// ast-grep CLI. Patterns match syntax trees, so `config.get($K)` finds
// calls regardless of formatting, and a rewrite template produces the
// replacement per match.
package structural

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
	"strings"
	"time"

	"codemod/internal/backend"
	"codemod/internal/checksum"
	"codemod/internal/editset"
	"codemod/internal/linemap"
	"codemod/internal/logger"
)

// DefaultBin is the ast-grep executable name.
const DefaultBin = "sg"

// runFunc executes the tool and returns its stdout, stderr and exit
// code. err is reserved for failures to run at all.
type runFunc func(ctx context.Context, bin string, args []string, dir string) (stdout, stderr []byte, exitCode int, err error)

// Backend shells out to ast-grep for structural matches.
type Backend struct {
	root string
	bin  string
	run  runFunc
	log  *slog.Logger
}

func New(root, bin string) *Backend {
	if bin == "" {
		bin = DefaultBin
	}
	return &Backend{root: root, bin: bin, run: runTool, log: logger.ForComponent("structural")}
}

func (b *Backend) Info() backend.Info {
	return backend.Info{Name: "structural", Extensions: []string{backend.Wildcard}, Priority: 50}
}

// sgMatch is one line of `sg run --json=stream` output. Positions are
// 0-indexed; the replacement field is present when a rewrite was given.
type sgMatch struct {
	Text        string `json:"text"`
	File        string `json:"file"`
	Replacement string `json:"replacement"`
	Range       struct {
		Start struct {
			Line   int `json:"line"`
			Column int `json:"column"`
		} `json:"start"`
		End struct {
			Line   int `json:"line"`
			Column int `json:"column"`
		} `json:"end"`
	} `json:"range"`
}

// ProposeReplace runs the pattern over the project and builds an
// editset. Without a replacement the editset carries references only.
// Offsets, previews and checksums are computed from our own read of
// each matched file, so they describe one snapshot of the content.
func (b *Backend) ProposeReplace(ctx context.Context, q backend.PatternQuery) (*editset.Editset, error) {
	if q.Pattern == "" {
		return nil, fmt.Errorf("empty pattern")
	}
	args := []string{"run", "--pattern", q.Pattern, "--json=stream"}
	if q.Replacement != "" {
		args = append(args, "--rewrite", q.Replacement)
	}
	if q.Lang != "" {
		args = append(args, "--lang", q.Lang)
	}
	for _, g := range q.Globs {
		args = append(args, "--globs", g)
	}
	args = append(args, ".")

	stdout, stderr, code, err := b.run(ctx, b.bin, args, b.root)
	if err != nil {
		return nil, err
	}
	if code != 0 {
		return nil, fmt.Errorf("%s exited with status %d: %s", b.bin, code, firstLine(stderr))
	}

	now := time.Now()
	es := &editset.Editset{
		ID:          editset.NewID("replace.structural", now),
		Operation:   "replace.structural",
		Pattern:     q.Pattern,
		Replacement: q.Replacement,
		CreatedAt:   now,
	}

	type snapshot struct {
		sum   string
		lines *linemap.Map
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
		snap := &snapshot{sum: checksum.Checksum(content), lines: linemap.New(content)}
		snapshots[file] = snap
		return snap
	}

	for _, line := range bytes.Split(stdout, []byte("\n")) {
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var m sgMatch
		if err := json.Unmarshal(line, &m); err != nil {
			b.log.Warn("skipping unparseable match record", "error", err)
			continue
		}
		file := filepath.ToSlash(m.File)
		snap := load(file)
		if snap == nil {
			continue
		}

		startLine, startCol := m.Range.Start.Line+1, m.Range.Start.Column+1
		endLine, endCol := m.Range.End.Line+1, m.Range.End.Column+1
		startOff, err := snap.lines.Offset(startLine, startCol)
		if err != nil {
			b.log.Warn("match outside current content", "file", file, "error", err)
			continue
		}
		endOff, err := snap.lines.Offset(endLine, endCol)
		if err != nil || endOff < startOff {
			b.log.Warn("match outside current content", "file", file)
			continue
		}

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
				Length:      endOff - startOff,
				Replacement: m.Replacement,
			})
		}
	}

	es.Edits = editset.DedupeEdits(es.Edits)
	editset.SortEdits(es.Edits)
	b.log.Debug("structural matches collected", "pattern", q.Pattern, "refs", len(es.Refs))
	return es, nil
}

func runTool(ctx context.Context, bin string, args []string, dir string) ([]byte, []byte, int, error) {
	if _, err := exec.LookPath(bin); err != nil {
		return nil, nil, 0, fmt.Errorf("%s (install ast-grep to enable structural patterns): %w", bin, backend.ErrToolNotInstalled)
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
