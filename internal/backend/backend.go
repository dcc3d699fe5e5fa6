// Package backend defines the contract between the CLI and the
// discovery engines that find rename and replace locations. A backend
// declares which file extensions it understands and implements some
// subset of the capability interfaces; the registry picks the highest
// priority backend that claims a file.
package backend

import (
	"context"
	"errors"

	"codemod/internal/conflict"
	"codemod/internal/editset"
)

// Wildcard in an Info.Extensions list claims every file.
const Wildcard = "*"

// ErrToolNotInstalled reports that a backend's external executable is
// missing from PATH. Callers must not confuse it with a search that
// found nothing.
var ErrToolNotInstalled = errors.New("required tool not installed")

// Info describes a registered backend.
type Info struct {
	Name       string   `json:"name"`
	Extensions []string `json:"extensions"`
	Priority   int      `json:"priority"`
}

// Symbol is one declared name a backend located. Kind is the backend's
// own classification, such as variable, function or property. Key is an
// opaque identity token derived from file, position and name.
type Symbol struct {
	Key       string `json:"symbolKey"`
	Name      string `json:"name"`
	Kind      string `json:"kind"`
	File      string `json:"file"`
	Line      int    `json:"line"`
	Column    int    `json:"column"`
	EndLine   int    `json:"endLine"`
	EndColumn int    `json:"endColumn"`
	Container string `json:"container,omitempty"`
}

// Backend is the minimal surface every engine implements.
type Backend interface {
	Info() Info
}

// SymbolFinder locates symbols by position or by name pattern.
type SymbolFinder interface {
	Backend
	SymbolAt(ctx context.Context, file string, line, col int) (*Symbol, error)
	FindSymbols(ctx context.Context, pattern string) ([]Symbol, error)
	References(ctx context.Context, file string, line, col int) ([]editset.Reference, error)
}

// RenameProposer turns a rename request into an editset proposal.
type RenameProposer interface {
	Backend
	ProposeRename(ctx context.Context, file string, line, col int, newName string) (*editset.Editset, error)
	ProposeRenameBatch(ctx context.Context, pattern, replacement string) (*editset.Editset, error)
}

// PatternQuery carries a structural or textual replace request. Lang is
// only meaningful to backends that parse; Globs restrict the files
// searched.
type PatternQuery struct {
	Pattern     string
	Replacement string
	Lang        string
	Globs       []string
}

// PatternProposer turns a pattern query into an editset proposal.
type PatternProposer interface {
	Backend
	ProposeReplace(ctx context.Context, q PatternQuery) (*editset.Editset, error)
}

// ConflictChecker pre-flights a batch rename for name collisions.
type ConflictChecker interface {
	Backend
	CheckConflicts(ctx context.Context, pattern, replacement string) (*conflict.Report, error)
}

// FileRenamer proposes and applies batch file renames.
type FileRenamer interface {
	Backend
	ProposeFileRenames(ctx context.Context, match, replace, glob string) (*editset.FileEditset, error)
	ApplyFileRenames(ctx context.Context, fs *editset.FileEditset, dryRun bool) (*editset.FileApplyResult, error)
}

// Capabilities reports which capability interfaces a backend implements,
// by stable name. Used by the backends listing.
func Capabilities(b Backend) []string {
	var caps []string
	if _, ok := b.(SymbolFinder); ok {
		caps = append(caps, "symbols")
	}
	if _, ok := b.(RenameProposer); ok {
		caps = append(caps, "rename")
	}
	if _, ok := b.(PatternProposer); ok {
		caps = append(caps, "replace")
	}
	if _, ok := b.(ConflictChecker); ok {
		caps = append(caps, "conflicts")
	}
	if _, ok := b.(FileRenamer); ok {
		caps = append(caps, "fileRename")
	}
	return caps
}
