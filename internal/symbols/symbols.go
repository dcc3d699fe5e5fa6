// Package symbols implements the scope-aware discovery backend on top
// of the parsed project. Symbols resolve lexically and through the
// import graph, so a rename covers declaration, uses and import
// specifiers without touching look-alike names in other scopes.
package symbols

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"codemod/internal/backend"
	"codemod/internal/casing"
	"codemod/internal/checksum"
	"codemod/internal/conflict"
	"codemod/internal/editset"
	"codemod/internal/logger"
	"codemod/internal/tsproject"
)

// Backend answers symbol queries against one project snapshot.
type Backend struct {
	project *tsproject.Project
	log     *slog.Logger
}

func New(p *tsproject.Project) *Backend {
	return &Backend{project: p, log: logger.ForComponent("symbols")}
}

func (b *Backend) Info() backend.Info {
	return backend.Info{Name: "symbol", Extensions: tsproject.Extensions, Priority: 100}
}

// SymbolAt reports the declaration of the symbol at a 1-indexed
// position.
func (b *Backend) SymbolAt(ctx context.Context, file string, line, col int) (*backend.Symbol, error) {
	d, err := b.project.DeclAt(file, line, col)
	if err != nil {
		return nil, err
	}
	sym := toSymbol(d)
	return &sym, nil
}

// FindSymbols lists declarations whose name contains the pattern,
// case-insensitively.
func (b *Backend) FindSymbols(ctx context.Context, pattern string) ([]backend.Symbol, error) {
	if pattern == "" {
		return nil, fmt.Errorf("empty symbol pattern")
	}
	var out []backend.Symbol
	seen := make(map[backend.Symbol]bool)
	for _, d := range b.project.Decls() {
		if !casing.ContainsFold(d.Name, pattern) {
			continue
		}
		sym := toSymbol(d)
		if seen[sym] {
			continue
		}
		seen[sym] = true
		out = append(out, sym)
	}
	return out, nil
}

// References returns reference records for every occurrence of the
// symbol at the position.
func (b *Backend) References(ctx context.Context, file string, line, col int) ([]editset.Reference, error) {
	d, err := b.project.DeclAt(file, line, col)
	if err != nil {
		return nil, err
	}
	sums := make(map[string]string)
	var out []editset.Reference
	for _, r := range b.project.References(d) {
		out = append(out, b.toReference(r, sums))
	}
	return out, nil
}

// ProposeRename builds an editset renaming the symbol at the position
// to newName. Occurrences already spelled newName are skipped.
func (b *Backend) ProposeRename(ctx context.Context, file string, line, col int, newName string) (*editset.Editset, error) {
	if newName == "" {
		return nil, fmt.Errorf("empty new name")
	}
	d, err := b.project.DeclAt(file, line, col)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	es := &editset.Editset{
		ID:        editset.NewID("rename", now),
		Operation: "rename",
		From:      d.Name,
		To:        newName,
		CreatedAt: now,
	}
	sums := make(map[string]string)
	for _, r := range b.project.References(d) {
		if r.Text() == newName {
			continue
		}
		es.Refs = append(es.Refs, b.toReference(r, sums))
		start, end := r.Span()
		es.Edits = append(es.Edits, editset.Edit{
			File:        r.File.Path,
			Offset:      start,
			Length:      end - start,
			Replacement: newName,
		})
	}
	es.Edits = editset.DedupeEdits(es.Edits)
	editset.SortEdits(es.Edits)
	b.log.Debug("rename proposed", "from", d.Name, "to", newName, "refs", len(es.Refs))
	return es, nil
}

// ProposeRenameBatch builds an editset renaming every symbol whose name
// contains the pattern. Replacements preserve the case shape of each
// occurrence, so widgetPath becomes gadgetPath while WIDGET_ROOT
// becomes GADGET_ROOT.
func (b *Backend) ProposeRenameBatch(ctx context.Context, pattern, replacement string) (*editset.Editset, error) {
	if pattern == "" {
		return nil, fmt.Errorf("empty pattern")
	}
	now := time.Now()
	es := &editset.Editset{
		ID:        editset.NewID("rename.batch", now),
		Operation: "rename.batch",
		From:      pattern,
		To:        replacement,
		CreatedAt: now,
	}
	sums := make(map[string]string)
	seenRef := make(map[string]bool)
	seenProps := make(map[string]bool)
	for _, d := range b.project.Decls() {
		if !casing.ContainsFold(d.Name, pattern) {
			continue
		}
		// property references match by name project-wide, so each
		// property name is processed once
		if d.Kind == tsproject.KindProperty || d.Kind == tsproject.KindMethod {
			if seenProps[d.Name] {
				continue
			}
			seenProps[d.Name] = true
		}
		for _, r := range b.project.References(d) {
			text := r.Text()
			to := casing.ReplacePreserving(text, pattern, replacement)
			if to == text {
				continue
			}
			ref := b.toReference(r, sums)
			if seenRef[ref.RefID] {
				continue
			}
			seenRef[ref.RefID] = true
			es.Refs = append(es.Refs, ref)
			start, end := r.Span()
			es.Edits = append(es.Edits, editset.Edit{
				File:        r.File.Path,
				Offset:      start,
				Length:      end - start,
				Replacement: to,
			})
		}
	}
	es.Edits = editset.DedupeEdits(es.Edits)
	editset.SortEdits(es.Edits)
	b.log.Debug("batch rename proposed", "pattern", pattern, "refs", len(es.Refs))
	return es, nil
}

// CheckConflicts pre-flights a batch rename, reporting which renames
// would collide with a name already visible from the symbol's scope.
func (b *Backend) CheckConflicts(ctx context.Context, pattern, replacement string) (*conflict.Report, error) {
	if pattern == "" {
		return nil, fmt.Errorf("empty pattern")
	}
	report := &conflict.Report{}
	for _, d := range b.project.Decls() {
		if !casing.ContainsFold(d.Name, pattern) {
			continue
		}
		newName := casing.ReplacePreserving(d.Name, pattern, replacement)
		if newName == d.Name {
			continue
		}
		line, col, _, _ := d.Range()
		if existing := b.project.Collides(d, newName); existing != nil {
			exLine, exCol, _, _ := existing.Range()
			report.Conflicts = append(report.Conflicts, conflict.Symbol{
				OldName: d.Name,
				NewName: newName,
				Reason:  conflict.TargetExists,
				Existing: &conflict.Location{
					File:   existing.File.Path,
					Line:   exLine,
					Column: exCol,
					Name:   existing.Name,
				},
			})
			continue
		}
		report.Safe = append(report.Safe, conflict.SafeRename{
			OldName: d.Name,
			NewName: newName,
			File:    d.File.Path,
			Line:    line,
			Column:  col,
		})
	}
	return report, nil
}

func toSymbol(d *tsproject.Decl) backend.Symbol {
	startLine, startCol, endLine, endCol := d.Range()
	return backend.Symbol{
		Key:       checksum.SymbolKey(d.File.Path, startLine, startCol, d.Name),
		Name:      d.Name,
		Kind:      d.Kind,
		File:      d.File.Path,
		Line:      startLine,
		Column:    startCol,
		EndLine:   endLine,
		EndColumn: endCol,
		Container: d.Container,
	}
}

func (b *Backend) toReference(r tsproject.Ref, sums map[string]string) editset.Reference {
	startLine, startCol, endLine, endCol := r.Range()
	sum, ok := sums[r.File.Path]
	if !ok {
		sum = checksum.Checksum(r.File.Src)
		sums[r.File.Path] = sum
	}
	return editset.Reference{
		RefID: checksum.RefID(r.File.Path, startLine, startCol, endLine, endCol),
		File:  r.File.Path,
		Range: editset.Range{
			Start: editset.Position{Line: startLine, Column: startCol},
			End:   editset.Position{Line: endLine, Column: endCol},
		},
		Preview:  r.File.LineText(startLine),
		Checksum: sum,
		Selected: true,
	}
}
