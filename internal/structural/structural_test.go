package structural

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codemod/internal/backend"
	"codemod/internal/editset"
)

const logFixture = `export function init() {
  console.log("a");
  console.log(value);
}
`

const sgOutput = `{"text":"console.log(\"a\")","file":"src/log.ts","replacement":"logger.info(\"a\")","range":{"start":{"line":1,"column":2},"end":{"line":1,"column":18}}}
{"text":"console.log(value)","file":"src/log.ts","replacement":"logger.info(value)","range":{"start":{"line":2,"column":2},"end":{"line":2,"column":20}}}
`

func fixtureBackend(t *testing.T, stdout string, code int) (*Backend, *[]string) {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "src"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "src", "log.ts"), []byte(logFixture), 0644))

	b := New(root, "")
	var gotArgs []string
	b.run = func(ctx context.Context, bin string, args []string, dir string) ([]byte, []byte, int, error) {
		gotArgs = args
		return []byte(stdout), nil, code, nil
	}
	return b, &gotArgs
}

func TestProposeReplace(t *testing.T) {
	b, args := fixtureBackend(t, sgOutput, 0)

	es, err := b.ProposeReplace(context.Background(), backend.PatternQuery{
		Pattern:     "console.log($A)",
		Replacement: "logger.info($A)",
		Lang:        "ts",
		Globs:       []string{"src/**"},
	})
	require.NoError(t, err)

	t.Run("Command line", func(t *testing.T) {
		assert.Contains(t, *args, "--pattern")
		assert.Contains(t, *args, "console.log($A)")
		assert.Contains(t, *args, "--rewrite")
		assert.Contains(t, *args, "--lang")
		assert.Contains(t, *args, "--globs")
		assert.Equal(t, ".", (*args)[len(*args)-1])
	})

	t.Run("References are 1-indexed and end-exclusive", func(t *testing.T) {
		require.Len(t, es.Refs, 2)
		first := es.Refs[0]
		assert.Equal(t, "src/log.ts", first.File)
		assert.Equal(t, 2, first.Range.Start.Line)
		assert.Equal(t, 3, first.Range.Start.Column)
		assert.Equal(t, 2, first.Range.End.Line)
		assert.Equal(t, 19, first.Range.End.Column)
		assert.Equal(t, `console.log("a");`, first.Preview)
		assert.Len(t, first.Checksum, 16)
	})

	t.Run("Edits apply cleanly", func(t *testing.T) {
		require.Len(t, es.Edits, 2)
		result := editset.Apply(es, b.root, false)
		assert.Equal(t, 2, result.Applied)
		assert.Equal(t, 0, result.Skipped)

		got, err := os.ReadFile(filepath.Join(b.root, "src", "log.ts"))
		require.NoError(t, err)
		assert.Equal(t, `export function init() {
  logger.info("a");
  logger.info(value);
}
`, string(got))
	})
}

func TestProposeReplaceDiscoveryOnly(t *testing.T) {
	b, args := fixtureBackend(t, sgOutput, 0)

	es, err := b.ProposeReplace(context.Background(), backend.PatternQuery{Pattern: "console.log($A)"})
	require.NoError(t, err)
	assert.Len(t, es.Refs, 2)
	assert.Empty(t, es.Edits, "no rewrite, no edits")
	assert.NotContains(t, *args, "--rewrite")
}

func TestProposeReplaceZeroMatches(t *testing.T) {
	b, _ := fixtureBackend(t, "", 0)

	es, err := b.ProposeReplace(context.Background(), backend.PatternQuery{Pattern: "nothing($X)"})
	require.NoError(t, err)
	assert.Empty(t, es.Refs)
	assert.Empty(t, es.Edits)
}

func TestProposeReplaceToolFailure(t *testing.T) {
	b, _ := fixtureBackend(t, "", 2)

	_, err := b.ProposeReplace(context.Background(), backend.PatternQuery{Pattern: "broken("})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 2")
}

func TestProposeReplaceToolMissing(t *testing.T) {
	b, _ := fixtureBackend(t, "", 0)
	b.run = func(ctx context.Context, bin string, args []string, dir string) ([]byte, []byte, int, error) {
		return nil, nil, 0, backend.ErrToolNotInstalled
	}

	_, err := b.ProposeReplace(context.Background(), backend.PatternQuery{Pattern: "x"})
	assert.ErrorIs(t, err, backend.ErrToolNotInstalled)
}

func TestProposeReplaceStaleMatchSkipped(t *testing.T) {
	stale := `{"text":"x","file":"src/log.ts","replacement":"y","range":{"start":{"line":80,"column":0},"end":{"line":80,"column":1}}}
`
	b, _ := fixtureBackend(t, stale, 0)

	es, err := b.ProposeReplace(context.Background(), backend.PatternQuery{Pattern: "x", Replacement: "y"})
	require.NoError(t, err)
	assert.Empty(t, es.Refs, "match beyond current content is dropped")
}
