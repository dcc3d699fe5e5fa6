// Package filerename proposes and applies batch file renames. Matching is a
// case-insensitive substring test on the basename, optionally narrowed by a
// glob over the project-relative path, and the new basename preserves the
// casing of the matched fragment.
package filerename

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"codemod/internal/backend"
	"codemod/internal/casing"
	"codemod/internal/checksum"
	"codemod/internal/conflict"
	"codemod/internal/editset"
	"codemod/internal/logger"
)

// Backend renames files on disk. It implements none of the content-proposal
// capabilities; its editsets live in the FileEditset shape.
type Backend struct {
	root   string
	ignore map[string]bool
	log    *slog.Logger
}

func New(root string, ignoreDirs []string) *Backend {
	ignore := make(map[string]bool, len(ignoreDirs))
	for _, d := range ignoreDirs {
		ignore[d] = true
	}
	return &Backend{root: root, ignore: ignore, log: logger.ForComponent("filerename")}
}

func (b *Backend) Info() backend.Info {
	return backend.Info{Name: "filerename", Extensions: []string{backend.Wildcard}, Priority: 0}
}

// scriptExts are the extensions whose files are commonly imported by path,
// and therefore get a pending import-update entry when renamed.
var scriptExts = map[string]bool{".ts": true, ".tsx": true, ".js": true, ".jsx": true}

// ProposeFileRenames walks the tree for files whose basename contains match
// (case-insensitively), computes each case-preserved target name, and splits
// the candidates into clean ops and conflicts. Only the clean subset becomes
// ops; conflicts are reported alongside for review. Each op records the
// file's content checksum so apply can detect drift.
//
// Import-path correction is deliberately left as pending work: renaming
// widget.ts breaks `from "./widget"` specifiers, and the proposal carries a
// search pattern per renamed script file describing where to look, with an
// empty edit list. Populating and applying those edits is a follow-on pass
// through the content-editset machinery.
func (b *Backend) ProposeFileRenames(ctx context.Context, match, replace, glob string) (*editset.FileEditset, error) {
	if match == "" {
		return nil, fmt.Errorf("empty match")
	}
	if glob != "" && !doublestar.ValidatePattern(glob) {
		return nil, fmt.Errorf("invalid glob %q", glob)
	}

	now := time.Now()
	set := &editset.FileEditset{
		ID:        editset.NewID("rename.files", now),
		Operation: "rename.files",
		Match:     match,
		Replace:   replace,
		Glob:      glob,
		CreatedAt: now,
	}
	targets := make(map[string]string)

	err := filepath.WalkDir(b.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			if p != b.root && b.ignore[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(b.root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if glob != "" {
			if ok, _ := doublestar.Match(glob, rel); !ok {
				return nil
			}
		}
		base := path.Base(rel)
		if !casing.ContainsFold(base, match) {
			return nil
		}

		newBase := casing.ReplacePreserving(base, match, replace)
		newRel := path.Join(path.Dir(rel), newBase)
		switch {
		case newRel == rel:
			set.Conflicts = append(set.Conflicts, conflict.Path{OldPath: rel, NewPath: newRel, Reason: conflict.SamePath})
			return nil
		case targets[newRel] != "":
			set.Conflicts = append(set.Conflicts, conflict.Path{OldPath: rel, NewPath: newRel, Reason: conflict.DuplicateTarget})
			return nil
		}
		if _, err := os.Stat(filepath.Join(b.root, filepath.FromSlash(newRel))); err == nil {
			set.Conflicts = append(set.Conflicts, conflict.Path{OldPath: rel, NewPath: newRel, Reason: conflict.TargetExists})
			return nil
		}

		content, err := os.ReadFile(p)
		if err != nil {
			b.log.Warn("skipping unreadable file", "file", rel, "error", err)
			return nil
		}
		targets[newRel] = rel
		set.Ops = append(set.Ops, editset.FileOp{
			OpID:     checksum.OpID(rel, newRel),
			OldPath:  rel,
			NewPath:  newRel,
			Checksum: checksum.Checksum(content),
			Selected: true,
		})
		if pe, ok := pendingImportEdit(rel, newRel); ok {
			set.PendingEdits = append(set.PendingEdits, pe)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", b.root, err)
	}

	if len(set.PendingEdits) > 0 {
		b.log.Info("import specifiers referencing renamed files are not rewritten", "pending", len(set.PendingEdits))
	}
	b.log.Debug("file renames proposed", "match", match, "ops", len(set.Ops), "conflicts", len(set.Conflicts))
	return set, nil
}

// pendingImportEdit builds the placeholder entry for a renamed script file.
// The pattern is a regex over import/require specifiers mentioning the old
// module stem; the edit list stays empty until a discovery pass fills it.
func pendingImportEdit(oldRel, newRel string) (editset.PendingEdit, bool) {
	ext := path.Ext(oldRel)
	if !scriptExts[ext] {
		return editset.PendingEdit{}, false
	}
	oldStem := strings.TrimSuffix(path.Base(oldRel), ext)
	newStem := strings.TrimSuffix(path.Base(newRel), path.Ext(newRel))
	return editset.PendingEdit{
		Description: fmt.Sprintf("imports of %q need to reference %q", oldStem, newStem),
		Pattern:     fmt.Sprintf(`['"][^'"]*/%s['"]`, regexp.QuoteMeta(oldStem)),
	}, true
}

// ApplyFileRenames performs the selected renames. Each file's content
// checksum is re-verified immediately before the rename call, not only at
// proposal time; a mismatch skips that file and reports drift. The target
// path is also re-checked so a file created since proposal is never
// overwritten. Failures are op-scoped and nothing is rolled back.
func (b *Backend) ApplyFileRenames(ctx context.Context, set *editset.FileEditset, dryRun bool) (*editset.FileApplyResult, error) {
	result := &editset.FileApplyResult{Drifted: []string{}, Errors: []string{}, DryRun: dryRun}

	for _, op := range set.Ops {
		if !op.Selected {
			continue
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		oldAbs := filepath.Join(b.root, filepath.FromSlash(op.OldPath))
		newAbs := filepath.Join(b.root, filepath.FromSlash(op.NewPath))

		content, err := os.ReadFile(oldAbs)
		if err != nil {
			result.Errored++
			result.Errors = append(result.Errors, fmt.Sprintf("%s: read failed: %v", op.OldPath, err))
			continue
		}
		if current := checksum.Checksum(content); current != op.Checksum {
			result.Skipped++
			result.Drifted = append(result.Drifted,
				fmt.Sprintf("%s: content changed since proposal (recorded %s, found %s)", op.OldPath, op.Checksum, current))
			b.log.Warn("skipping drifted file", "file", op.OldPath)
			continue
		}
		if _, err := os.Stat(newAbs); err == nil {
			result.Errored++
			result.Errors = append(result.Errors, fmt.Sprintf("%s: target %s already exists", op.OldPath, op.NewPath))
			continue
		}

		if !dryRun {
			if err := os.Rename(oldAbs, newAbs); err != nil {
				result.Errored++
				result.Errors = append(result.Errors, fmt.Sprintf("%s: rename failed: %v", op.OldPath, err))
				continue
			}
		}
		result.Applied++
		b.log.Debug("renamed", "from", op.OldPath, "to", op.NewPath, "dryRun", dryRun)
	}
	return result, nil
}
