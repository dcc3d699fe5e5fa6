package symbols

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codemod/internal/conflict"
	"codemod/internal/editset"
	"codemod/internal/tsproject"
)

func writeSrc(t *testing.T, root, name, content string) {
	t.Helper()
	path := filepath.Join(root, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func readFile(t *testing.T, root, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(root, name))
	require.NoError(t, err)
	return string(data)
}

func newBackend(t *testing.T, root string) *Backend {
	t.Helper()
	p, err := tsproject.Load(context.Background(), root, []string{".git", "node_modules"})
	require.NoError(t, err)
	return New(p)
}

func TestSymbolAtAndFind(t *testing.T) {
	root := t.TempDir()
	writeSrc(t, root, "vault.ts", `export const vaultDir = "/data";

export function vaultFile(name: string) {
  return vaultDir + "/" + name;
}
`)
	b := newBackend(t, root)
	ctx := context.Background()

	t.Run("SymbolAt reports the declaration", func(t *testing.T) {
		sym, err := b.SymbolAt(ctx, "vault.ts", 1, 14)
		require.NoError(t, err)
		assert.Equal(t, "vaultDir", sym.Name)
		assert.Equal(t, tsproject.KindVariable, sym.Kind)
		assert.Equal(t, "vault.ts", sym.File)
		assert.Equal(t, 1, sym.Line)
		assert.Equal(t, 14, sym.Column)
		assert.Len(t, sym.Key, 16)
	})

	t.Run("SymbolAt from a use site resolves to the declaration", func(t *testing.T) {
		sym, err := b.SymbolAt(ctx, "vault.ts", 4, 10)
		require.NoError(t, err)
		assert.Equal(t, 1, sym.Line)
	})

	t.Run("FindSymbols is a case-insensitive contains match", func(t *testing.T) {
		syms, err := b.FindSymbols(ctx, "VAULT")
		require.NoError(t, err)
		require.Len(t, syms, 2)
		assert.Equal(t, "vaultDir", syms[0].Name)
		assert.Equal(t, "vaultFile", syms[1].Name)
	})

	t.Run("Empty pattern is rejected", func(t *testing.T) {
		_, err := b.FindSymbols(ctx, "")
		assert.Error(t, err)
	})

	t.Run("Position without a symbol is an error", func(t *testing.T) {
		_, err := b.SymbolAt(ctx, "vault.ts", 1, 3)
		assert.Error(t, err)
	})
}

func TestReferences(t *testing.T) {
	root := t.TempDir()
	writeSrc(t, root, "config.ts", "export const widget = 1;\n")
	writeSrc(t, root, "app.ts", `import { widget } from "./config";

export function start() {
  return widget + 1;
}
`)
	b := newBackend(t, root)

	refs, err := b.References(context.Background(), "config.ts", 1, 14)
	require.NoError(t, err)
	require.Len(t, refs, 3)

	byFile := map[string]int{}
	ids := map[string]bool{}
	for _, r := range refs {
		byFile[r.File]++
		ids[r.RefID] = true
		assert.Len(t, r.RefID, 16)
		assert.Len(t, r.Checksum, 16)
		assert.True(t, r.Selected)
		assert.Contains(t, r.Preview, "widget")
	}
	assert.Equal(t, 1, byFile["config.ts"])
	assert.Equal(t, 2, byFile["app.ts"])
	assert.Len(t, ids, 3, "ref ids must be distinct")

	t.Run("Ref ids are stable across runs", func(t *testing.T) {
		again, err := b.References(context.Background(), "config.ts", 1, 14)
		require.NoError(t, err)
		require.Len(t, again, 3)
		for i := range refs {
			assert.Equal(t, refs[i].RefID, again[i].RefID)
		}
	})
}

func TestProposeRenameEndToEnd(t *testing.T) {
	root := t.TempDir()
	writeSrc(t, root, "config.ts", "export const widget = 1;\n")
	writeSrc(t, root, "app.ts", `import { widget } from "./config";

export function start() {
  return widget + 1;
}
`)
	b := newBackend(t, root)

	es, err := b.ProposeRename(context.Background(), "config.ts", 1, 14, "gadget")
	require.NoError(t, err)
	assert.Equal(t, "rename", es.Operation)
	assert.Equal(t, "widget", es.From)
	assert.Equal(t, "gadget", es.To)
	require.Len(t, es.Refs, 3)
	require.Len(t, es.Edits, 3)

	result := editset.Apply(es, root, false)
	assert.Equal(t, 3, result.Applied)
	assert.Equal(t, 0, result.Skipped)
	assert.Equal(t, 0, result.Errored)

	config := readFile(t, root, "config.ts")
	app := readFile(t, root, "app.ts")
	assert.Equal(t, "export const gadget = 1;\n", config)
	assert.NotContains(t, app, "widget")
	assert.Contains(t, app, `import { gadget } from "./config";`)
	assert.Contains(t, app, "return gadget + 1;")
}

func TestProposeRenameBatchPreservesCase(t *testing.T) {
	root := t.TempDir()
	writeSrc(t, root, "widget.ts", `export class Widget {
  size = 1;
}
export const widget = new Widget();
export const WIDGET_KIND = "w";
`)
	b := newBackend(t, root)

	es, err := b.ProposeRenameBatch(context.Background(), "widget", "gadget")
	require.NoError(t, err)
	assert.Equal(t, "rename.batch", es.Operation)
	require.Len(t, es.Edits, 4)

	result := editset.Apply(es, root, false)
	assert.Equal(t, 4, result.Applied)

	got := readFile(t, root, "widget.ts")
	assert.Equal(t, `export class Gadget {
  size = 1;
}
export const gadget = new Gadget();
export const GADGET_KIND = "w";
`, got)
}

func TestProposeRenameDestructuring(t *testing.T) {
	root := t.TempDir()
	writeSrc(t, root, "destructure.js", `const { widget } = load();

function go() {
  return widget + widget.size;
}

module.exports = { widget };
`)
	b := newBackend(t, root)

	es, err := b.ProposeRename(context.Background(), "destructure.js", 1, 9, "gadget")
	require.NoError(t, err)
	require.Len(t, es.Edits, 4, "binding, two uses, exports shorthand")
	for _, e := range es.Edits {
		assert.Equal(t, 6, e.Length, "edits must cover exactly the identifier")
	}

	result := editset.Apply(es, root, false)
	assert.Equal(t, 4, result.Applied)

	assert.Equal(t, `const { gadget } = load();

function go() {
  return gadget + gadget.size;
}

module.exports = { gadget };
`, readFile(t, root, "destructure.js"))
}

func TestProposeRenameNoOp(t *testing.T) {
	root := t.TempDir()
	writeSrc(t, root, "a.ts", "export const widget = 1;\n")
	b := newBackend(t, root)

	es, err := b.ProposeRename(context.Background(), "a.ts", 1, 14, "widget")
	require.NoError(t, err)
	assert.Empty(t, es.Refs)
	assert.Empty(t, es.Edits)
}

func TestCheckConflicts(t *testing.T) {
	root := t.TempDir()
	writeSrc(t, root, "dirs.ts", `function pack() {
  const vaultDir = "/v";
  const repoDir = "/r";
  return vaultDir + repoDir;
}

function other() {
  const vaultDir = "/o";
  return vaultDir;
}
`)
	b := newBackend(t, root)

	report, err := b.CheckConflicts(context.Background(), "vaultDir", "repoDir")
	require.NoError(t, err)
	assert.True(t, report.HasConflicts())
	require.Len(t, report.Conflicts, 1)
	require.Len(t, report.Safe, 1)

	c := report.Conflicts[0]
	assert.Equal(t, "vaultDir", c.OldName)
	assert.Equal(t, "repoDir", c.NewName)
	assert.Equal(t, conflict.TargetExists, c.Reason)
	require.NotNil(t, c.Existing)
	assert.Equal(t, 3, c.Existing.Line, "existing repoDir is declared on line 3")

	s := report.Safe[0]
	assert.Equal(t, "vaultDir", s.OldName)
	assert.Equal(t, 8, s.Line, "the other function's vaultDir does not collide")
}
