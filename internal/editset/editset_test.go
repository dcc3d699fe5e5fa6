package editset

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codemod/internal/checksum"
)

func writeFile(t *testing.T, root, name, content string) string {
	t.Helper()
	path := filepath.Join(root, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func refFor(file, content string, line, startCol, endCol int) Reference {
	return Reference{
		RefID:    checksum.RefID(file, line, startCol, line, endCol),
		File:     file,
		Range:    Range{Start: Position{line, startCol}, End: Position{line, endCol}},
		Checksum: checksum.Checksum([]byte(content)),
		Selected: true,
	}
}

func TestNewID(t *testing.T) {
	now := time.Date(2026, 8, 23, 10, 15, 30, 0, time.UTC)
	assert.Equal(t, "rename.batch-20260823T101530", NewID("rename.batch", now))
}

func TestFilter(t *testing.T) {
	base := &Editset{
		ID:        "rename.batch-20260823T101530",
		Operation: "rename.batch",
		Refs: []Reference{
			{RefID: "r1", File: "a.ts", Selected: true},
			{RefID: "r2", File: "a.ts", Selected: true},
			{RefID: "r3", File: "b.ts", Selected: true},
		},
		Edits: []Edit{
			{File: "a.ts", Offset: 20, Length: 6, Replacement: "gadget"},
			{File: "a.ts", Offset: 4, Length: 6, Replacement: "gadget"},
			{File: "b.ts", Offset: 9, Length: 6, Replacement: "gadget"},
		},
	}

	t.Run("Include overrides prior selection", func(t *testing.T) {
		got := Filter(base, []string{"r3"}, nil)
		assert.False(t, got.Refs[0].Selected)
		assert.False(t, got.Refs[1].Selected)
		assert.True(t, got.Refs[2].Selected)
	})

	t.Run("Exclude subtracts after include", func(t *testing.T) {
		got := Filter(base, []string{"r1", "r3"}, []string{"r3"})
		assert.True(t, got.Refs[0].Selected)
		assert.False(t, got.Refs[2].Selected)
	})

	t.Run("Edit recompute is file-grained", func(t *testing.T) {
		// Deselecting r2 keeps a.ts selected through r1, so both a.ts
		// edits survive.
		got := Filter(base, []string{"r1", "r3"}, nil)
		assert.Len(t, got.Edits, 3)

		// Deselecting every a.ts ref drops all a.ts edits.
		got = Filter(base, []string{"r3"}, nil)
		require.Len(t, got.Edits, 1)
		assert.Equal(t, "b.ts", got.Edits[0].File)
	})

	t.Run("Idempotent", func(t *testing.T) {
		include := []string{"r1", "r3"}
		once := Filter(base, include, nil)
		twice := Filter(once, include, nil)
		assert.Equal(t, once, twice)
	})

	t.Run("Input is not mutated", func(t *testing.T) {
		_ = Filter(base, []string{}, nil)
		assert.True(t, base.Refs[0].Selected)
		assert.Len(t, base.Edits, 3)
	})

	t.Run("Nil include keeps prior selection", func(t *testing.T) {
		pre := Filter(base, []string{"r1"}, nil)
		got := Filter(pre, nil, []string{"r1"})
		assert.False(t, got.Refs[0].Selected)
		assert.False(t, got.Refs[1].Selected)
		assert.False(t, got.Refs[2].Selected)
		assert.Empty(t, got.Edits)
	})
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	es := &Editset{
		ID:        NewID("rename.batch", time.Now()),
		Operation: "rename.batch",
		From:      "widget",
		To:        "gadget",
		Refs: []Reference{
			{
				RefID:    "abcdef0123456789",
				File:     "src/a.ts",
				Range:    Range{Start: Position{1, 14}, End: Position{1, 24}},
				Preview:  `export const widgetPath = "/x"`,
				Checksum: "deadbeefdeadbeef",
				Selected: true,
			},
		},
		Edits: []Edit{
			{File: "src/a.ts", Offset: 13, Length: 6, Replacement: "gadget"},
		},
		CreatedAt: time.Date(2026, 8, 23, 10, 15, 30, 0, time.UTC),
	}

	path := filepath.Join(dir, "es.json")
	require.NoError(t, Save(es, path))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, es, got)
}

func TestLoadMissing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestApply(t *testing.T) {
	t.Run("Adjacent descending edits both land", func(t *testing.T) {
		dir := t.TempDir()
		content := "aaabbb"
		writeFile(t, dir, "x.ts", content)

		es := &Editset{
			Refs: []Reference{refFor("x.ts", content, 1, 1, 7)},
			Edits: []Edit{
				{File: "x.ts", Offset: 3, Length: 3, Replacement: "BBB"},
				{File: "x.ts", Offset: 0, Length: 3, Replacement: "AAA"},
			},
		}

		result := Apply(es, dir, false)
		assert.Equal(t, 2, result.Applied)
		assert.Equal(t, 0, result.Skipped)
		assert.Equal(t, 0, result.Errored)

		got, err := os.ReadFile(filepath.Join(dir, "x.ts"))
		require.NoError(t, err)
		assert.Equal(t, "AAA"+"BBB", string(got))
	})

	t.Run("Edits sorted even if serialized ascending", func(t *testing.T) {
		dir := t.TempDir()
		content := "aaabbb"
		writeFile(t, dir, "x.ts", content)

		es := &Editset{
			Refs: []Reference{refFor("x.ts", content, 1, 1, 7)},
			Edits: []Edit{
				{File: "x.ts", Offset: 0, Length: 3, Replacement: "AAA"},
				{File: "x.ts", Offset: 3, Length: 3, Replacement: "BBB"},
			},
		}

		result := Apply(es, dir, false)
		assert.Equal(t, 2, result.Applied)

		got, _ := os.ReadFile(filepath.Join(dir, "x.ts"))
		assert.Equal(t, "AAABBB", string(got))
	})

	t.Run("Growing replacement keeps earlier offsets valid", func(t *testing.T) {
		dir := t.TempDir()
		content := "widget and widget"
		writeFile(t, dir, "y.ts", content)

		es := &Editset{
			Refs: []Reference{refFor("y.ts", content, 1, 1, 18)},
			Edits: []Edit{
				{File: "y.ts", Offset: 11, Length: 6, Replacement: "gadgetron"},
				{File: "y.ts", Offset: 0, Length: 6, Replacement: "gadgetron"},
			},
		}

		result := Apply(es, dir, false)
		assert.Equal(t, 2, result.Applied)

		got, _ := os.ReadFile(filepath.Join(dir, "y.ts"))
		assert.Equal(t, "gadgetron and gadgetron", string(got))
	})

	t.Run("Drift skips the file but not its neighbors", func(t *testing.T) {
		dir := t.TempDir()
		original := `const widget = 1` + "\n"
		untouched := `const widgetToo = 2` + "\n"
		writeFile(t, dir, "drifted.ts", original)
		writeFile(t, dir, "clean.ts", untouched)

		es := &Editset{
			Refs: []Reference{
				refFor("drifted.ts", original, 1, 7, 13),
				refFor("clean.ts", untouched, 1, 7, 13),
			},
			Edits: []Edit{
				{File: "drifted.ts", Offset: 6, Length: 6, Replacement: "gadget"},
				{File: "clean.ts", Offset: 6, Length: 6, Replacement: "gadget"},
			},
		}

		// Rewrite drifted.ts after the proposal was computed.
		rewritten := `const widget = 42 // changed` + "\n"
		writeFile(t, dir, "drifted.ts", rewritten)

		result := Apply(es, dir, false)
		assert.Equal(t, 1, result.Applied)
		assert.Equal(t, 1, result.Skipped)
		require.Len(t, result.Drifted, 1)
		assert.Contains(t, result.Drifted[0], "drifted.ts")

		got, _ := os.ReadFile(filepath.Join(dir, "drifted.ts"))
		assert.Equal(t, rewritten, string(got), "drifted file must be left untouched")

		got, _ = os.ReadFile(filepath.Join(dir, "clean.ts"))
		assert.Equal(t, "const gadgetToo = 2\n", string(got))
	})

	t.Run("Dry run reports counts without writing", func(t *testing.T) {
		dir := t.TempDir()
		content := "const widget = 1\n"
		writeFile(t, dir, "z.ts", content)

		es := &Editset{
			Refs:  []Reference{refFor("z.ts", content, 1, 7, 13)},
			Edits: []Edit{{File: "z.ts", Offset: 6, Length: 6, Replacement: "gadget"}},
		}

		result := Apply(es, dir, true)
		assert.Equal(t, 1, result.Applied)
		assert.True(t, result.DryRun)

		got, _ := os.ReadFile(filepath.Join(dir, "z.ts"))
		assert.Equal(t, content, string(got))
	})

	t.Run("Missing file is errored, not drifted", func(t *testing.T) {
		dir := t.TempDir()
		es := &Editset{
			Refs:  []Reference{{RefID: "r", File: "gone.ts", Checksum: "0000000000000000"}},
			Edits: []Edit{{File: "gone.ts", Offset: 0, Length: 1, Replacement: "x"}},
		}
		result := Apply(es, dir, false)
		assert.Equal(t, 1, result.Errored)
		assert.Empty(t, result.Drifted)
	})
}

func TestVerify(t *testing.T) {
	t.Run("Clean editset verifies", func(t *testing.T) {
		dir := t.TempDir()
		content := "const widget = 1\n"
		writeFile(t, dir, "a.ts", content)

		es := &Editset{Refs: []Reference{refFor("a.ts", content, 1, 7, 13)}}
		result := Verify(es, dir)
		assert.True(t, result.Valid)
		assert.Empty(t, result.Issues)
	})

	t.Run("Each stale or missing file is one issue", func(t *testing.T) {
		dir := t.TempDir()
		content := "const widget = 1\n"
		writeFile(t, dir, "stale.ts", content)

		es := &Editset{Refs: []Reference{
			refFor("stale.ts", content, 1, 7, 13),
			refFor("gone.ts", "whatever", 1, 1, 2),
		}}

		writeFile(t, dir, "stale.ts", "const widget = 2\n")

		result := Verify(es, dir)
		assert.False(t, result.Valid)
		assert.Len(t, result.Issues, 2)
	})

	t.Run("Edit without a ref checksum is flagged", func(t *testing.T) {
		dir := t.TempDir()
		es := &Editset{Edits: []Edit{{File: "orphan.ts", Offset: 0, Length: 1}}}
		result := Verify(es, dir)
		assert.False(t, result.Valid)
		require.Len(t, result.Issues, 1)
		assert.Contains(t, result.Issues[0], "orphan.ts")
	})
}

func TestSortAndDedupeEdits(t *testing.T) {
	edits := []Edit{
		{File: "b.ts", Offset: 5, Length: 6},
		{File: "a.ts", Offset: 2, Length: 6},
		{File: "a.ts", Offset: 9, Length: 6},
		{File: "a.ts", Offset: 9, Length: 6},
	}
	edits = DedupeEdits(edits)
	SortEdits(edits)

	require.Len(t, edits, 3)
	assert.Equal(t, Edit{File: "a.ts", Offset: 9, Length: 6}, edits[0])
	assert.Equal(t, Edit{File: "a.ts", Offset: 2, Length: 6}, edits[1])
	assert.Equal(t, Edit{File: "b.ts", Offset: 5, Length: 6}, edits[2])
}
