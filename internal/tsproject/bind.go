package tsproject

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// Decl is one declared name. NameNode is the identifier node carrying
// the name, never the surrounding pattern or statement, so rewriting it
// touches exactly the name. AltNodes holds later redeclarations of the
// same binding (var twice, TS overload signatures).
type Decl struct {
	Name      string
	Kind      string
	File      *File
	NameNode  *sitter.Node
	AltNodes  []*sitter.Node
	Container string
	scope     *scope
}

// Range returns the 1-indexed, end-exclusive range of the declared name.
func (d *Decl) Range() (startLine, startCol, endLine, endCol int) {
	return RangeOf(d.NameNode)
}

const (
	scopeModule   = "module"
	scopeFunction = "function"
	scopeBlock    = "block"
	scopeCatch    = "catch"
)

// scope is one level of the lexical scope tree. Bindings map names
// declared at this level; lookup walks outward.
type scope struct {
	kind     string
	parent   *scope
	bindings map[string]*Decl
}

func newScope(kind string, parent *scope) *scope {
	return &scope{kind: kind, parent: parent, bindings: make(map[string]*Decl)}
}

func (s *scope) lookup(name string) *Decl {
	for cur := s; cur != nil; cur = cur.parent {
		if d, ok := cur.bindings[name]; ok {
			return d
		}
	}
	return nil
}

// hoistTarget returns the nearest enclosing function or module scope,
// where var and function declarations bind.
func (s *scope) hoistTarget() *scope {
	cur := s
	for cur.parent != nil && (cur.kind == scopeBlock || cur.kind == scopeCatch) {
		cur = cur.parent
	}
	return cur
}

// use is one identifier occurrence in value or type position, together
// with the scope it appears in.
type use struct {
	node  *sitter.Node
	scope *scope
}

// propUse is one occurrence of a name in property position: member
// access, object key, member signature. Property renames match these by
// name, without lexical resolution.
type propUse struct {
	node *sitter.Node
	name string
}

// importBinding records one named-import specifier. nameNode is the
// source-name identifier; when the specifier has no alias it doubles as
// the local binding's name node.
type importBinding struct {
	source     string
	sourceName string
	nameNode   *sitter.Node
	aliased    bool
	localDecl  *Decl
}

// reExport records an `export ... from` specifier. sourceName is "*"
// for wildcard re-exports, which have no rewritable name node.
type reExport struct {
	source       string
	sourceName   string
	exportedName string
	nameNode     *sitter.Node
}

type exportSpec struct {
	localName string
	exported  string
}

type fileIndex struct {
	file          *File
	module        *scope
	decls         []*Decl
	declByRange   map[[2]uint32]*Decl
	uses          []use
	useByRange    map[[2]uint32]use
	propUses      []propUse
	imports       []*importBinding
	importByRange map[[2]uint32]*importBinding
	reExports     []reExport
	exportSpecs   []exportSpec
	exports       map[string]*Decl
}

func (idx *fileIndex) resolveUse(u use) *Decl {
	return u.scope.lookup(u.node.Content(idx.file.Src))
}

func rangeKey(n *sitter.Node) [2]uint32 {
	return [2]uint32{n.StartByte(), n.EndByte()}
}

func sameNode(a, b *sitter.Node) bool {
	return a.StartByte() == b.StartByte() && a.EndByte() == b.EndByte()
}

type binder struct {
	f   *File
	idx *fileIndex
}

// bindFile builds the lexical index for one parsed file: the scope
// tree, every declaration, every candidate use, and the module's
// import/export surface.
func bindFile(f *File) *fileIndex {
	idx := &fileIndex{
		file:          f,
		module:        newScope(scopeModule, nil),
		declByRange:   make(map[[2]uint32]*Decl),
		useByRange:    make(map[[2]uint32]use),
		importByRange: make(map[[2]uint32]*importBinding),
		exports:       make(map[string]*Decl),
	}
	b := &binder{f: f, idx: idx}

	root := f.Tree.RootNode()
	for i := 0; i < int(root.NamedChildCount()); i++ {
		b.walk(root.NamedChild(i), idx.module, false)
	}

	// Export specifiers without a source resolve against the finished
	// module scope, after hoisting has settled.
	for _, spec := range idx.exportSpecs {
		if d := idx.module.lookup(spec.localName); d != nil {
			idx.exports[spec.exported] = d
		}
	}
	for _, u := range idx.uses {
		idx.useByRange[rangeKey(u.node)] = u
	}
	return idx
}

func (b *binder) walk(n *sitter.Node, sc *scope, exporting bool) {
	if n == nil {
		return
	}
	switch n.Type() {
	case "variable_declaration":
		b.declarators(n, sc, true, exporting)
	case "lexical_declaration":
		b.declarators(n, sc, false, exporting)
	case "function_declaration", "generator_function_declaration":
		b.function(n, sc, exporting)
	case "function", "function_expression", "generator_function":
		b.functionExpression(n, sc)
	case "arrow_function":
		b.arrowFunction(n, sc)
	case "class_declaration", "class":
		b.class(n, sc, exporting)
	case "method_definition":
		b.method(n, sc, "")
	case "interface_declaration":
		b.interfaceDecl(n, sc, exporting)
	case "type_alias_declaration":
		if name := n.ChildByFieldName("name"); name != nil {
			b.declare(name, sc, KindType, "", exporting)
		}
		if v := n.ChildByFieldName("value"); v != nil {
			b.walk(v, sc, false)
		}
	case "enum_declaration":
		b.enum(n, sc, exporting)
	case "import_statement":
		b.importStatement(n, sc)
	case "export_statement":
		b.exportStatement(n, sc)
	case "statement_block":
		b.walkChildren(n, newScope(scopeBlock, sc))
	case "for_statement", "for_in_statement":
		b.walkChildren(n, newScope(scopeBlock, sc))
	case "catch_clause":
		inner := newScope(scopeCatch, sc)
		if param := n.ChildByFieldName("parameter"); param != nil {
			b.bindPattern(param, inner, KindParameter)
		}
		if body := n.ChildByFieldName("body"); body != nil {
			b.walk(body, inner, false)
		}
	case "member_expression":
		if obj := n.ChildByFieldName("object"); obj != nil {
			b.walk(obj, sc, false)
		}
		if prop := n.ChildByFieldName("property"); prop != nil && prop.Type() == "property_identifier" {
			b.propUse(prop)
		}
	case "pair":
		b.pairKey(n.ChildByFieldName("key"), sc)
		if v := n.ChildByFieldName("value"); v != nil {
			b.walk(v, sc, false)
		}
	case "shorthand_property_identifier":
		// Both a value reference and a property name.
		b.idx.uses = append(b.idx.uses, use{n, sc})
		b.propUse(n)
	case "identifier", "type_identifier":
		b.idx.uses = append(b.idx.uses, use{n, sc})
	case "property_identifier":
		b.propUse(n)
	default:
		b.walkChildren(n, sc)
	}
}

func (b *binder) walkChildren(n *sitter.Node, sc *scope) {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		b.walk(n.NamedChild(i), sc, false)
	}
}

func (b *binder) propUse(n *sitter.Node) {
	b.idx.propUses = append(b.idx.propUses, propUse{n, n.Content(b.f.Src)})
}

func (b *binder) declare(nameNode *sitter.Node, sc *scope, kind, container string, exporting bool) *Decl {
	name := nameNode.Content(b.f.Src)
	d := sc.bindings[name]
	if d != nil {
		d.AltNodes = append(d.AltNodes, nameNode)
	} else {
		d = &Decl{Name: name, Kind: kind, File: b.f, NameNode: nameNode, Container: container, scope: sc}
		sc.bindings[name] = d
		b.idx.decls = append(b.idx.decls, d)
	}
	b.idx.declByRange[rangeKey(nameNode)] = d
	if exporting {
		b.idx.exports[name] = d
	}
	return d
}

// declareMember records a class, interface or enum member. Members are
// not lexical bindings; they participate in property-name matching only.
func (b *binder) declareMember(nameNode *sitter.Node, kind, container string) *Decl {
	d := &Decl{Name: nameNode.Content(b.f.Src), Kind: kind, File: b.f, NameNode: nameNode, Container: container}
	b.idx.decls = append(b.idx.decls, d)
	b.idx.declByRange[rangeKey(nameNode)] = d
	return d
}

func (b *binder) declarators(n *sitter.Node, sc *scope, hoist bool, exporting bool) {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		if child.Type() != "variable_declarator" {
			continue
		}
		target := sc
		if hoist {
			target = sc.hoistTarget()
		}
		if name := child.ChildByFieldName("name"); name != nil {
			b.bindPatternAs(name, target, KindVariable, exporting)
		}
		if typ := child.ChildByFieldName("type"); typ != nil {
			b.walk(typ, sc, false)
		}
		if v := child.ChildByFieldName("value"); v != nil {
			b.walk(v, sc, false)
		}
	}
}

func (b *binder) bindPattern(n *sitter.Node, sc *scope, kind string) {
	b.bindPatternAs(n, sc, kind, false)
}

// bindPatternAs declares every binding identifier inside a (possibly
// destructuring) pattern. Pattern punctuation, property keys and default
// value expressions never become bindings.
func (b *binder) bindPatternAs(n *sitter.Node, sc *scope, kind string, exporting bool) {
	switch n.Type() {
	case "identifier":
		b.declare(n, sc, kind, "", exporting)
	case "shorthand_property_identifier_pattern":
		b.declare(n, sc, kind, "", exporting)
		b.propUse(n)
	case "object_pattern":
		for i := 0; i < int(n.NamedChildCount()); i++ {
			child := n.NamedChild(i)
			switch child.Type() {
			case "pair_pattern":
				b.pairKey(child.ChildByFieldName("key"), sc)
				if v := child.ChildByFieldName("value"); v != nil {
					b.bindPatternAs(v, sc, kind, exporting)
				}
			case "object_assignment_pattern":
				if l := child.ChildByFieldName("left"); l != nil {
					b.bindPatternAs(l, sc, kind, exporting)
				}
				if r := child.ChildByFieldName("right"); r != nil {
					b.walk(r, sc, false)
				}
			default:
				b.bindPatternAs(child, sc, kind, exporting)
			}
		}
	case "array_pattern":
		for i := 0; i < int(n.NamedChildCount()); i++ {
			b.bindPatternAs(n.NamedChild(i), sc, kind, exporting)
		}
	case "assignment_pattern":
		if l := n.ChildByFieldName("left"); l != nil {
			b.bindPatternAs(l, sc, kind, exporting)
		}
		if r := n.ChildByFieldName("right"); r != nil {
			b.walk(r, sc, false)
		}
	case "rest_pattern":
		for i := 0; i < int(n.NamedChildCount()); i++ {
			b.bindPatternAs(n.NamedChild(i), sc, kind, exporting)
		}
	}
}

func (b *binder) pairKey(key *sitter.Node, sc *scope) {
	if key == nil {
		return
	}
	switch key.Type() {
	case "property_identifier":
		b.propUse(key)
	case "computed_property_name":
		b.walkChildren(key, sc)
	}
}

func (b *binder) function(n *sitter.Node, sc *scope, exporting bool) {
	if name := n.ChildByFieldName("name"); name != nil {
		b.declare(name, sc.hoistTarget(), KindFunction, "", exporting)
	}
	fs := newScope(scopeFunction, sc)
	b.params(n, fs)
	if rt := n.ChildByFieldName("return_type"); rt != nil {
		b.walk(rt, fs, false)
	}
	if body := n.ChildByFieldName("body"); body != nil {
		b.walk(body, fs, false)
	}
}

// functionExpression binds the optional name inside the function's own
// scope only.
func (b *binder) functionExpression(n *sitter.Node, sc *scope) {
	fs := newScope(scopeFunction, sc)
	if name := n.ChildByFieldName("name"); name != nil {
		b.declare(name, fs, KindFunction, "", false)
	}
	b.params(n, fs)
	if body := n.ChildByFieldName("body"); body != nil {
		b.walk(body, fs, false)
	}
}

func (b *binder) arrowFunction(n *sitter.Node, sc *scope) {
	fs := newScope(scopeFunction, sc)
	b.params(n, fs)
	if rt := n.ChildByFieldName("return_type"); rt != nil {
		b.walk(rt, fs, false)
	}
	if body := n.ChildByFieldName("body"); body != nil {
		b.walk(body, fs, false)
	}
}

func (b *binder) params(fn *sitter.Node, fs *scope) {
	if single := fn.ChildByFieldName("parameter"); single != nil {
		b.bindPattern(single, fs, KindParameter)
		return
	}
	ps := fn.ChildByFieldName("parameters")
	if ps == nil {
		return
	}
	for i := 0; i < int(ps.NamedChildCount()); i++ {
		p := ps.NamedChild(i)
		switch p.Type() {
		case "required_parameter", "optional_parameter":
			if pat := p.ChildByFieldName("pattern"); pat != nil {
				b.bindPattern(pat, fs, KindParameter)
			}
			if typ := p.ChildByFieldName("type"); typ != nil {
				b.walk(typ, fs, false)
			}
			if v := p.ChildByFieldName("value"); v != nil {
				b.walk(v, fs, false)
			}
		default:
			// javascript grammar puts bare patterns directly in the list
			b.bindPattern(p, fs, KindParameter)
		}
	}
}

func (b *binder) class(n *sitter.Node, sc *scope, exporting bool) {
	var className string
	name := n.ChildByFieldName("name")
	if name != nil {
		d := b.declare(name, sc, KindClass, "", exporting)
		className = d.Name
	}
	body := n.ChildByFieldName("body")
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		if name != nil && sameNode(child, name) {
			continue
		}
		if body != nil && sameNode(child, body) {
			continue
		}
		// heritage clauses, type parameters, decorators
		b.walk(child, sc, false)
	}
	if body == nil {
		return
	}
	for i := 0; i < int(body.NamedChildCount()); i++ {
		member := body.NamedChild(i)
		switch member.Type() {
		case "method_definition":
			b.method(member, sc, className)
		case "public_field_definition":
			if mn := member.ChildByFieldName("name"); mn != nil && mn.Type() == "property_identifier" {
				b.declareMember(mn, KindProperty, className)
			}
			if typ := member.ChildByFieldName("type"); typ != nil {
				b.walk(typ, sc, false)
			}
			if v := member.ChildByFieldName("value"); v != nil {
				b.walk(v, sc, false)
			}
		default:
			b.walk(member, sc, false)
		}
	}
}

func (b *binder) method(n *sitter.Node, sc *scope, container string) {
	if name := n.ChildByFieldName("name"); name != nil {
		switch name.Type() {
		case "property_identifier":
			b.declareMember(name, KindMethod, container)
		case "computed_property_name":
			b.walkChildren(name, sc)
		}
	}
	fs := newScope(scopeFunction, sc)
	b.params(n, fs)
	if rt := n.ChildByFieldName("return_type"); rt != nil {
		b.walk(rt, fs, false)
	}
	if body := n.ChildByFieldName("body"); body != nil {
		b.walk(body, fs, false)
	}
}

func (b *binder) interfaceDecl(n *sitter.Node, sc *scope, exporting bool) {
	var ifaceName string
	name := n.ChildByFieldName("name")
	if name != nil {
		d := b.declare(name, sc, KindInterface, "", exporting)
		ifaceName = d.Name
	}
	body := n.ChildByFieldName("body")
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		if name != nil && sameNode(child, name) {
			continue
		}
		if body != nil && sameNode(child, body) {
			continue
		}
		b.walk(child, sc, false)
	}
	if body == nil {
		return
	}
	for i := 0; i < int(body.NamedChildCount()); i++ {
		member := body.NamedChild(i)
		switch member.Type() {
		case "property_signature":
			if mn := member.ChildByFieldName("name"); mn != nil && mn.Type() == "property_identifier" {
				b.declareMember(mn, KindProperty, ifaceName)
			}
			if typ := member.ChildByFieldName("type"); typ != nil {
				b.walk(typ, sc, false)
			}
		case "method_signature":
			if mn := member.ChildByFieldName("name"); mn != nil && mn.Type() == "property_identifier" {
				b.declareMember(mn, KindMethod, ifaceName)
			}
			b.params(member, newScope(scopeFunction, sc))
			if rt := member.ChildByFieldName("return_type"); rt != nil {
				b.walk(rt, sc, false)
			}
		default:
			b.walk(member, sc, false)
		}
	}
}

func (b *binder) enum(n *sitter.Node, sc *scope, exporting bool) {
	var enumName string
	if name := n.ChildByFieldName("name"); name != nil {
		d := b.declare(name, sc, KindEnum, "", exporting)
		enumName = d.Name
	}
	body := n.ChildByFieldName("body")
	if body == nil {
		return
	}
	for i := 0; i < int(body.NamedChildCount()); i++ {
		member := body.NamedChild(i)
		switch member.Type() {
		case "property_identifier":
			b.declareMember(member, KindProperty, enumName)
		case "enum_assignment":
			if mn := member.ChildByFieldName("name"); mn != nil && mn.Type() == "property_identifier" {
				b.declareMember(mn, KindProperty, enumName)
			}
			if v := member.ChildByFieldName("value"); v != nil {
				b.walk(v, sc, false)
			}
		}
	}
}

func (b *binder) importStatement(n *sitter.Node, sc *scope) {
	source := moduleSource(n, b.f.Src)
	for i := 0; i < int(n.NamedChildCount()); i++ {
		clause := n.NamedChild(i)
		if clause.Type() != "import_clause" {
			continue
		}
		for j := 0; j < int(clause.NamedChildCount()); j++ {
			child := clause.NamedChild(j)
			switch child.Type() {
			case "identifier":
				// default import binds an independent local name
				b.declare(child, sc, KindImport, "", false)
			case "namespace_import":
				for k := 0; k < int(child.NamedChildCount()); k++ {
					if ns := child.NamedChild(k); ns.Type() == "identifier" {
						b.declare(ns, sc, KindImport, "", false)
					}
				}
			case "named_imports":
				for k := 0; k < int(child.NamedChildCount()); k++ {
					spec := child.NamedChild(k)
					if spec.Type() != "import_specifier" {
						continue
					}
					nameNode := spec.ChildByFieldName("name")
					if nameNode == nil {
						continue
					}
					local := nameNode
					aliased := false
					if alias := spec.ChildByFieldName("alias"); alias != nil {
						local = alias
						aliased = true
					}
					d := b.declare(local, sc, KindImport, "", false)
					ib := &importBinding{
						source:     source,
						sourceName: nameNode.Content(b.f.Src),
						nameNode:   nameNode,
						aliased:    aliased,
						localDecl:  d,
					}
					b.idx.imports = append(b.idx.imports, ib)
					b.idx.importByRange[rangeKey(nameNode)] = ib
				}
			}
		}
	}
}

func (b *binder) exportStatement(n *sitter.Node, sc *scope) {
	if decl := n.ChildByFieldName("declaration"); decl != nil {
		b.walk(decl, sc, true)
		return
	}
	if v := n.ChildByFieldName("value"); v != nil {
		// export default <expression>
		b.walk(v, sc, false)
		return
	}
	source := moduleSource(n, b.f.Src)
	sawClause := false
	namespaced := false
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		switch child.Type() {
		case "namespace_export":
			namespaced = true
		case "export_clause":
			sawClause = true
			for j := 0; j < int(child.NamedChildCount()); j++ {
				spec := child.NamedChild(j)
				if spec.Type() != "export_specifier" {
					continue
				}
				nameNode := spec.ChildByFieldName("name")
				if nameNode == nil {
					continue
				}
				exported := nameNode.Content(b.f.Src)
				if alias := spec.ChildByFieldName("alias"); alias != nil {
					exported = alias.Content(b.f.Src)
				}
				if source != "" {
					b.idx.reExports = append(b.idx.reExports, reExport{
						source:       source,
						sourceName:   nameNode.Content(b.f.Src),
						exportedName: exported,
						nameNode:     nameNode,
					})
				} else {
					// the local name is an ordinary module-scope use
					b.idx.uses = append(b.idx.uses, use{nameNode, sc})
					b.idx.exportSpecs = append(b.idx.exportSpecs, exportSpec{
						localName: nameNode.Content(b.f.Src),
						exported:  exported,
					})
				}
			}
		}
	}
	if source != "" && !sawClause && !namespaced {
		// export * from "./x"
		b.idx.reExports = append(b.idx.reExports, reExport{source: source, sourceName: "*", exportedName: "*"})
	}
}

func moduleSource(n *sitter.Node, src []byte) string {
	s := n.ChildByFieldName("source")
	if s == nil {
		return ""
	}
	return strings.Trim(s.Content(src), "\"'`")
}
