// Package tsproject parses a TypeScript/JavaScript source tree into an
// explicit project handle: parsed files, per-file lexical scopes and
// declarations, and cross-file import/export links. It is the engine
// behind the symbol backend. A Project is a snapshot of the tree on
// disk; callers reload after mutating files.
package tsproject

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"

	"codemod/internal/linemap"
	"codemod/internal/logger"
)

// Symbol kinds reported by declaration discovery.
const (
	KindVariable  = "variable"
	KindFunction  = "function"
	KindClass     = "class"
	KindMethod    = "method"
	KindInterface = "interface"
	KindType      = "type"
	KindEnum      = "enum"
	KindProperty  = "property"
	KindParameter = "parameter"
	KindImport    = "import"
)

// Extensions lists the file extensions the project parses.
var Extensions = []string{".ts", ".tsx", ".js", ".jsx"}

// File is one parsed source file. Path is slash-separated and relative
// to the project root; Src is the byte snapshot the tree was parsed
// from, so offsets, previews and checksums all describe one version of
// the content.
type File struct {
	Path  string
	Src   []byte
	Tree  *sitter.Tree
	lines *linemap.Map
}

// Project is an immutable snapshot of a source tree.
type Project struct {
	root   string
	ignore []string
	files  map[string]*File
	order  []string
	index  map[string]*fileIndex
}

// New returns an empty project handle rooted at root. Nothing is parsed
// until Load or Reset reads the tree, so constructing a handle is cheap.
func New(root string, ignoreDirs []string) *Project {
	return &Project{
		root:   root,
		ignore: ignoreDirs,
		files:  make(map[string]*File),
		index:  make(map[string]*fileIndex),
	}
}

// Load walks root, skipping the ignored directory names, and parses
// every source file with the grammar matching its extension.
func Load(ctx context.Context, root string, ignoreDirs []string) (*Project, error) {
	log := logger.ForComponent("tsproject")
	p := New(root, ignoreDirs)

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			for _, ign := range p.ignore {
				if d.Name() == ign {
					return filepath.SkipDir
				}
			}
			return nil
		}
		lang := languageFor(path)
		if lang == nil {
			return nil
		}
		src, err := os.ReadFile(path)
		if err != nil {
			log.Warn("skipping unreadable file", "path", path, "error", err)
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		parser := sitter.NewParser()
		parser.SetLanguage(lang)
		tree, err := parser.ParseCtx(ctx, nil, src)
		if err != nil {
			return fmt.Errorf("parse %s: %w", rel, err)
		}
		p.files[rel] = &File{Path: rel, Src: src, Tree: tree, lines: linemap.New(src)}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan project: %w", err)
	}

	p.order = make([]string, 0, len(p.files))
	for path := range p.files {
		p.order = append(p.order, path)
	}
	sort.Strings(p.order)

	for _, path := range p.order {
		p.index[path] = bindFile(p.files[path])
	}
	return p, nil
}

// Reset drops the snapshot and re-reads the tree from disk. Callers use
// it after applying edits or renames.
func (p *Project) Reset(ctx context.Context) error {
	np, err := Load(ctx, p.root, p.ignore)
	if err != nil {
		return err
	}
	*p = *np
	return nil
}

// Root returns the directory the project was loaded from.
func (p *Project) Root() string {
	return p.root
}

// File looks up a parsed file. Absolute paths are resolved against the
// project root; separators are normalized.
func (p *Project) File(path string) (*File, bool) {
	f, ok := p.files[p.relPath(path)]
	return f, ok
}

// Files returns every parsed file in path order.
func (p *Project) Files() []*File {
	out := make([]*File, 0, len(p.order))
	for _, path := range p.order {
		out = append(out, p.files[path])
	}
	return out
}

// Decls returns every declaration in the project in file order.
func (p *Project) Decls() []*Decl {
	var out []*Decl
	for _, path := range p.order {
		out = append(out, p.index[path].decls...)
	}
	return out
}

func (p *Project) relPath(path string) string {
	if filepath.IsAbs(path) {
		if rel, err := filepath.Rel(p.root, path); err == nil {
			path = rel
		}
	}
	return filepath.ToSlash(path)
}

func languageFor(path string) *sitter.Language {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".ts":
		return typescript.GetLanguage()
	case ".tsx":
		return tsx.GetLanguage()
	case ".js", ".jsx":
		return javascript.GetLanguage()
	}
	return nil
}

// Offset converts a 1-indexed line and byte column into a byte offset.
func (f *File) Offset(line, col int) (int, error) {
	off, err := f.lines.Offset(line, col)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", f.Path, err)
	}
	return off, nil
}

// Position converts a byte offset back into a 1-indexed line and column.
func (f *File) Position(offset int) (line, col int) {
	return f.lines.Position(offset)
}

// LineText returns the trimmed text of a 1-indexed line, used for
// reference previews.
func (f *File) LineText(line int) string {
	return f.lines.LineText(line)
}

// RangeOf returns the 1-indexed, end-exclusive source range of a node.
func RangeOf(n *sitter.Node) (startLine, startCol, endLine, endCol int) {
	sp, ep := n.StartPoint(), n.EndPoint()
	return int(sp.Row) + 1, int(sp.Column) + 1, int(ep.Row) + 1, int(ep.Column) + 1
}
