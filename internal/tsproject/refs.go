package tsproject

import (
	"fmt"
	"path"
	"sort"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// Ref is one identifier occurrence that resolves to a declaration.
type Ref struct {
	File *File
	Node *sitter.Node
}

// Range returns the 1-indexed, end-exclusive range of the occurrence.
func (r Ref) Range() (startLine, startCol, endLine, endCol int) {
	return RangeOf(r.Node)
}

// Span returns the occurrence's byte offsets into File.Src.
func (r Ref) Span() (start, end int) {
	return int(r.Node.StartByte()), int(r.Node.EndByte())
}

// Text returns the occurrence's source text.
func (r Ref) Text() string {
	return r.Node.Content(r.File.Src)
}

type refKey struct {
	file       string
	start, end uint32
}

type refSet struct {
	refs []Ref
	seen map[refKey]bool
}

func newRefSet() *refSet {
	return &refSet{seen: make(map[refKey]bool)}
}

func (rs *refSet) add(f *File, n *sitter.Node) {
	k := refKey{f.Path, n.StartByte(), n.EndByte()}
	if rs.seen[k] {
		return
	}
	rs.seen[k] = true
	rs.refs = append(rs.refs, Ref{f, n})
}

func (rs *refSet) sorted() []Ref {
	sort.Slice(rs.refs, func(i, j int) bool {
		if rs.refs[i].File.Path != rs.refs[j].File.Path {
			return rs.refs[i].File.Path < rs.refs[j].File.Path
		}
		return rs.refs[i].Node.StartByte() < rs.refs[j].Node.StartByte()
	})
	return rs.refs
}

// References returns every occurrence of the declared name that resolves
// to d, across the whole project: the declaration itself, lexical uses
// honoring shadowing, and import/export specifiers in files that bind
// the symbol through the module graph. Property and method declarations
// fall back to name matching over property positions.
func (p *Project) References(d *Decl) []Ref {
	if d.Kind == KindProperty || d.Kind == KindMethod {
		return p.propertyRefs(d.Name)
	}

	rs := newRefSet()
	rs.add(d.File, d.NameNode)
	for _, alt := range d.AltNodes {
		rs.add(d.File, alt)
	}

	home := p.index[d.File.Path]
	p.localUses(home, d, rs)

	// Follow the export graph. A (file, name) target stands for "this
	// module exports the renamed symbol under its original name"; only
	// exact-name links keep the chain alive, aliases detach it.
	type target struct{ file, name string }
	var work []target
	if home.exports[d.Name] == d {
		work = append(work, target{d.File.Path, d.Name})
	}
	visited := make(map[target]bool)
	for len(work) > 0 {
		t := work[len(work)-1]
		work = work[:len(work)-1]
		if visited[t] {
			continue
		}
		visited[t] = true

		for _, pathB := range p.order {
			if pathB == t.file {
				continue
			}
			idx := p.index[pathB]
			for _, ib := range idx.imports {
				if ib.sourceName != t.name || p.resolveModule(pathB, ib.source) != t.file {
					continue
				}
				rs.add(idx.file, ib.nameNode)
				if ib.aliased {
					continue
				}
				p.localUses(idx, ib.localDecl, rs)
				if idx.exports[t.name] == ib.localDecl {
					work = append(work, target{pathB, t.name})
				}
			}
			for _, re := range idx.reExports {
				if p.resolveModule(pathB, re.source) != t.file {
					continue
				}
				if re.sourceName == "*" {
					if _, shadowed := idx.exports[t.name]; !shadowed {
						work = append(work, target{pathB, t.name})
					}
					continue
				}
				if re.sourceName != t.name {
					continue
				}
				rs.add(idx.file, re.nameNode)
				if re.exportedName == t.name {
					work = append(work, target{pathB, t.name})
				}
			}
		}
	}
	return rs.sorted()
}

func (p *Project) localUses(idx *fileIndex, d *Decl, rs *refSet) {
	for _, u := range idx.uses {
		if u.node.Content(idx.file.Src) != d.Name {
			continue
		}
		if idx.resolveUse(u) == d {
			rs.add(idx.file, u.node)
		}
	}
}

func (p *Project) propertyRefs(name string) []Ref {
	rs := newRefSet()
	for _, pathB := range p.order {
		idx := p.index[pathB]
		for _, d := range idx.decls {
			if (d.Kind == KindProperty || d.Kind == KindMethod) && d.Name == name {
				rs.add(idx.file, d.NameNode)
				for _, alt := range d.AltNodes {
					rs.add(idx.file, alt)
				}
			}
		}
		for _, pu := range idx.propUses {
			if pu.name == name {
				rs.add(idx.file, pu.node)
			}
		}
	}
	return rs.sorted()
}

// DeclAt resolves the symbol at a 1-indexed position to its declaration.
// Uses of imported names chase back to the exporting module's
// declaration so a rename started anywhere covers the whole project.
func (p *Project) DeclAt(filePath string, line, col int) (*Decl, error) {
	f, ok := p.File(filePath)
	if !ok {
		return nil, fmt.Errorf("file not in project: %s", filePath)
	}
	pt := sitter.Point{Row: uint32(line - 1), Column: uint32(col - 1)}
	node := f.Tree.RootNode().NamedDescendantForPointRange(pt, pt)
	if node == nil {
		return nil, fmt.Errorf("no symbol at %s:%d:%d", f.Path, line, col)
	}
	idx := p.index[f.Path]

	if d, ok := idx.declByRange[rangeKey(node)]; ok {
		return p.originOf(f.Path, d), nil
	}
	switch node.Type() {
	case "identifier", "type_identifier", "shorthand_property_identifier":
		if ib, ok := idx.importByRange[rangeKey(node)]; ok {
			if d := p.importedDecl(f.Path, ib); d != nil {
				return d, nil
			}
			return ib.localDecl, nil
		}
		if u, ok := idx.useByRange[rangeKey(node)]; ok {
			if d := idx.resolveUse(u); d != nil {
				return p.originOf(f.Path, d), nil
			}
		}
		return nil, fmt.Errorf("cannot resolve %q at %s:%d:%d", node.Content(f.Src), f.Path, line, col)
	case "property_identifier":
		return p.propertyDeclFor(node, f), nil
	}
	return nil, fmt.Errorf("no symbol at %s:%d:%d (position is a %s)", f.Path, line, col, node.Type())
}

// originOf chases an import binding back to the declaration it imports.
// Default and namespace imports bind independent local names and stay
// as they are.
func (p *Project) originOf(filePath string, d *Decl) *Decl {
	visited := make(map[*Decl]bool)
	for d.Kind == KindImport && !visited[d] {
		visited[d] = true
		idx := p.index[filePath]
		var ib *importBinding
		for _, cand := range idx.imports {
			if cand.localDecl == d {
				ib = cand
				break
			}
		}
		if ib == nil {
			return d
		}
		src := p.resolveModule(filePath, ib.source)
		if src == "" {
			return d
		}
		next := p.index[src].exports[ib.sourceName]
		if next == nil {
			return d
		}
		filePath, d = src, next
	}
	return d
}

func (p *Project) importedDecl(filePath string, ib *importBinding) *Decl {
	src := p.resolveModule(filePath, ib.source)
	if src == "" {
		return nil
	}
	d := p.index[src].exports[ib.sourceName]
	if d == nil {
		return nil
	}
	return p.originOf(src, d)
}

func (p *Project) propertyDeclFor(node *sitter.Node, f *File) *Decl {
	name := node.Content(f.Src)
	if d := p.memberDecl(f.Path, name); d != nil {
		return d
	}
	for _, pathB := range p.order {
		if pathB == f.Path {
			continue
		}
		if d := p.memberDecl(pathB, name); d != nil {
			return d
		}
	}
	// no declared member anywhere; the occurrence itself anchors the
	// property rename
	return &Decl{Name: name, Kind: KindProperty, File: f, NameNode: node}
}

func (p *Project) memberDecl(filePath, name string) *Decl {
	for _, d := range p.index[filePath].decls {
		if (d.Kind == KindProperty || d.Kind == KindMethod) && d.Name == name {
			return d
		}
	}
	return nil
}

// Collides returns the existing declaration a rename of d to newName
// would collide with: a binding of newName visible from d's scope, or
// for members, a sibling of the same container. Nil when the rename is
// safe.
func (p *Project) Collides(d *Decl, newName string) *Decl {
	if d.scope != nil {
		return d.scope.lookup(newName)
	}
	idx, ok := p.index[d.File.Path]
	if !ok {
		return nil
	}
	for _, other := range idx.decls {
		if other == d || other.scope != nil {
			continue
		}
		if other.Container == d.Container && other.Name == newName {
			return other
		}
	}
	return nil
}

// resolveModule resolves a relative import specifier against the
// importing file: exact path, then with a source extension appended,
// then as a directory index. Bare package specifiers resolve to "".
func (p *Project) resolveModule(fromPath, source string) string {
	if !strings.HasPrefix(source, "./") && !strings.HasPrefix(source, "../") {
		return ""
	}
	base := path.Clean(path.Join(path.Dir(fromPath), source))
	if _, ok := p.files[base]; ok {
		return base
	}
	for _, ext := range Extensions {
		if _, ok := p.files[base+ext]; ok {
			return base + ext
		}
	}
	for _, ext := range Extensions {
		cand := path.Join(base, "index"+ext)
		if _, ok := p.files[cand]; ok {
			return cand
		}
	}
	return ""
}
