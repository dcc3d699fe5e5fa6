package tsproject

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSrc(t *testing.T, root, name, content string) {
	t.Helper()
	path := filepath.Join(root, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func loadProject(t *testing.T, root string) *Project {
	t.Helper()
	p, err := Load(context.Background(), root, []string{".git", "node_modules"})
	require.NoError(t, err)
	return p
}

func declNamed(t *testing.T, p *Project, name string) *Decl {
	t.Helper()
	for _, d := range p.Decls() {
		if d.Name == name {
			return d
		}
	}
	t.Fatalf("no declaration named %q", name)
	return nil
}

func TestLoadAndFileHelpers(t *testing.T) {
	root := t.TempDir()
	writeSrc(t, root, "src/a.ts", "export const widget = 1;\n")
	writeSrc(t, root, "src/b.tsx", "export const el = <div/>;\n")
	writeSrc(t, root, "util.js", "module.exports = 1;\n")
	writeSrc(t, root, "README.md", "# nope\n")
	writeSrc(t, root, "node_modules/pkg/index.ts", "export const ignored = 1;\n")

	p := loadProject(t, root)

	t.Run("Only source extensions, ignore dirs skipped", func(t *testing.T) {
		files := p.Files()
		require.Len(t, files, 3)
		assert.Equal(t, "src/a.ts", files[0].Path)
		assert.Equal(t, "src/b.tsx", files[1].Path)
		assert.Equal(t, "util.js", files[2].Path)
	})

	t.Run("File lookup accepts absolute paths", func(t *testing.T) {
		f, ok := p.File(filepath.Join(root, "src", "a.ts"))
		require.True(t, ok)
		assert.Equal(t, "src/a.ts", f.Path)
	})

	t.Run("Offset and Position round trip", func(t *testing.T) {
		f, _ := p.File("src/a.ts")
		off, err := f.Offset(1, 14)
		require.NoError(t, err)
		assert.Equal(t, 13, off)
		assert.Equal(t, "widget", string(f.Src[off:off+6]))

		line, col := f.Position(off)
		assert.Equal(t, 1, line)
		assert.Equal(t, 14, col)
	})

	t.Run("LineText trims for previews", func(t *testing.T) {
		f, _ := p.File("src/a.ts")
		assert.Equal(t, "export const widget = 1;", f.LineText(1))
		assert.Equal(t, "", f.LineText(99))
	})

	t.Run("Out of range positions are errors", func(t *testing.T) {
		f, _ := p.File("src/a.ts")
		_, err := f.Offset(99, 1)
		assert.Error(t, err)
	})
}

func TestDeclarations(t *testing.T) {
	root := t.TempDir()
	writeSrc(t, root, "kinds.ts", `const widget = 1;
function make() {}
class Box {
  lid: string;
  open(force) {}
}
interface Shape {
  area: number;
  grow(by: number): void;
}
type Alias = string;
enum Mode {
  Fast,
  Slow = 2,
}
`)

	p := loadProject(t, root)

	kinds := map[string]string{}
	containers := map[string]string{}
	for _, d := range p.Decls() {
		kinds[d.Name] = d.Kind
		containers[d.Name] = d.Container
	}

	assert.Equal(t, KindVariable, kinds["widget"])
	assert.Equal(t, KindFunction, kinds["make"])
	assert.Equal(t, KindClass, kinds["Box"])
	assert.Equal(t, KindProperty, kinds["lid"])
	assert.Equal(t, KindMethod, kinds["open"])
	assert.Equal(t, KindParameter, kinds["force"])
	assert.Equal(t, KindInterface, kinds["Shape"])
	assert.Equal(t, KindProperty, kinds["area"])
	assert.Equal(t, KindMethod, kinds["grow"])
	assert.Equal(t, KindType, kinds["Alias"])
	assert.Equal(t, KindEnum, kinds["Mode"])
	assert.Equal(t, KindProperty, kinds["Fast"])
	assert.Equal(t, KindProperty, kinds["Slow"])

	assert.Equal(t, "Box", containers["lid"])
	assert.Equal(t, "Box", containers["open"])
	assert.Equal(t, "Shape", containers["area"])
	assert.Equal(t, "Mode", containers["Fast"])
}

func TestDestructuringBindings(t *testing.T) {
	root := t.TempDir()
	writeSrc(t, root, "destructure.ts", `const { widget, gadget: g, ...rest } = load();
const [first, , second = 1] = pair();

export function run() {
  return widget(g, rest, first, second);
}
`)

	p := loadProject(t, root)

	for _, name := range []string{"widget", "g", "rest", "first", "second"} {
		d := declNamed(t, p, name)
		assert.Equal(t, KindVariable, d.Kind, name)
		assert.Equal(t, name, d.NameNode.Content(d.File.Src), "name node must be the identifier itself")
	}

	t.Run("Shorthand binding has two occurrences, no pattern text", func(t *testing.T) {
		refs := p.References(declNamed(t, p, "widget"))
		require.Len(t, refs, 2)
		for _, r := range refs {
			assert.Equal(t, "widget", r.Text())
		}
	})

	t.Run("Renamed binding does not include the property key", func(t *testing.T) {
		refs := p.References(declNamed(t, p, "g"))
		require.Len(t, refs, 2)
		for _, r := range refs {
			assert.Equal(t, "g", r.Text())
		}
	})
}

func TestScopeResolution(t *testing.T) {
	root := t.TempDir()
	writeSrc(t, root, "shadow.ts", `const vaultDir = "/top";

function readVault() {
  const vaultDir = "/inner";
  return vaultDir;
}

export function topVault() {
  return vaultDir;
}
`)

	p := loadProject(t, root)

	outer, err := p.DeclAt("shadow.ts", 1, 7)
	require.NoError(t, err)
	inner, err := p.DeclAt("shadow.ts", 4, 9)
	require.NoError(t, err)
	require.NotSame(t, outer, inner)

	t.Run("Inner use resolves to inner binding", func(t *testing.T) {
		d, err := p.DeclAt("shadow.ts", 5, 10)
		require.NoError(t, err)
		assert.Same(t, inner, d)
	})

	t.Run("References honor shadowing", func(t *testing.T) {
		assert.Len(t, p.References(outer), 2)
		assert.Len(t, p.References(inner), 2)
	})

	t.Run("Var hoists to the function scope", func(t *testing.T) {
		writeSrc(t, root, "hoist.ts", `function outer(flag) {
  if (flag) {
    var state = 1;
  }
  return state;
}
`)
		require.NoError(t, p.Reset(context.Background()))
		refs := p.References(declNamed(t, p, "state"))
		assert.Len(t, refs, 2)
	})
}

func TestImportExportGraph(t *testing.T) {
	root := t.TempDir()
	writeSrc(t, root, "a.ts", "export const widget = 1;\n")
	writeSrc(t, root, "b.ts", `import { widget } from "./a";

export function use() {
  return widget + 1;
}
`)
	writeSrc(t, root, "alias.ts", `import { widget as w } from "./a";

export const doubled = w + w;
`)

	p := loadProject(t, root)
	widget := declNamed(t, p, "widget")

	t.Run("Plain import links specifier and uses", func(t *testing.T) {
		refs := p.References(widget)
		// a.ts decl, b.ts specifier, b.ts use, alias.ts source name
		require.Len(t, refs, 4)
		byFile := map[string]int{}
		for _, r := range refs {
			byFile[r.File.Path]++
			assert.Equal(t, "widget", r.Text(), "alias uses must stay out")
		}
		assert.Equal(t, 1, byFile["a.ts"])
		assert.Equal(t, 2, byFile["b.ts"])
		assert.Equal(t, 1, byFile["alias.ts"])
	})

	t.Run("DeclAt on a use chases back to the export", func(t *testing.T) {
		d, err := p.DeclAt("b.ts", 4, 10)
		require.NoError(t, err)
		assert.Same(t, widget, d)
	})

	t.Run("DeclAt on the import specifier chases too", func(t *testing.T) {
		d, err := p.DeclAt("b.ts", 1, 10)
		require.NoError(t, err)
		assert.Same(t, widget, d)
	})
}

func TestReExportChain(t *testing.T) {
	root := t.TempDir()
	writeSrc(t, root, "core/widget.ts", "export const widget = 1;\n")
	writeSrc(t, root, "core/index.ts", `export { widget } from "./widget";
`)
	writeSrc(t, root, "app.ts", `import { widget } from "./core";

export const v = widget;
`)

	p := loadProject(t, root)
	refs := p.References(declNamed(t, p, "widget"))
	// decl, re-export specifier, app specifier, app use
	require.Len(t, refs, 4)

	files := map[string]bool{}
	for _, r := range refs {
		files[r.File.Path] = true
	}
	assert.True(t, files["core/widget.ts"])
	assert.True(t, files["core/index.ts"])
	assert.True(t, files["app.ts"])
}

func TestPropertyResolution(t *testing.T) {
	root := t.TempDir()
	writeSrc(t, root, "prop.ts", `interface Config {
  vaultPath: string;
}

export function read(cfg: Config) {
  return cfg.vaultPath;
}
`)

	p := loadProject(t, root)

	t.Run("Member access resolves to the interface member", func(t *testing.T) {
		d, err := p.DeclAt("prop.ts", 6, 14)
		require.NoError(t, err)
		assert.Equal(t, KindProperty, d.Kind)
		assert.Equal(t, "Config", d.Container)
	})

	t.Run("Property references match by name", func(t *testing.T) {
		refs := p.References(declNamed(t, p, "vaultPath"))
		assert.Len(t, refs, 2)
	})

	t.Run("Type annotation counts as a use of the interface", func(t *testing.T) {
		refs := p.References(declNamed(t, p, "Config"))
		assert.Len(t, refs, 2)
	})
}

func TestDeclAtMisses(t *testing.T) {
	root := t.TempDir()
	writeSrc(t, root, "a.ts", "const x = 1;\n")
	p := loadProject(t, root)

	_, err := p.DeclAt("missing.ts", 1, 1)
	assert.Error(t, err)

	_, err = p.DeclAt("a.ts", 1, 3)
	assert.Error(t, err, "keyword position has no symbol")
}
