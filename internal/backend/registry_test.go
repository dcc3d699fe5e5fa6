package backend

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codemod/internal/editset"
)

type stubBackend struct {
	info Info
}

func (s *stubBackend) Info() Info { return s.info }

type stubFinder struct {
	stubBackend
}

func (s *stubFinder) SymbolAt(context.Context, string, int, int) (*Symbol, error) {
	return nil, nil
}

func (s *stubFinder) FindSymbols(context.Context, string) ([]Symbol, error) {
	return nil, nil
}

func (s *stubFinder) References(context.Context, string, int, int) ([]editset.Reference, error) {
	return nil, nil
}

func TestRegistryOrderAndLookup(t *testing.T) {
	reg := NewRegistry()
	text := &stubBackend{info: Info{Name: "text", Extensions: []string{Wildcard}, Priority: 10}}
	symbol := &stubBackend{info: Info{Name: "symbol", Extensions: []string{".ts", ".tsx"}, Priority: 100}}
	structural := &stubBackend{info: Info{Name: "structural", Extensions: []string{Wildcard}, Priority: 50}}

	reg.Register(text)
	reg.Register(symbol)
	reg.Register(structural)

	t.Run("All is priority ordered", func(t *testing.T) {
		all := reg.All()
		require.Len(t, all, 3)
		assert.Equal(t, "symbol", all[0].Info().Name)
		assert.Equal(t, "structural", all[1].Info().Name)
		assert.Equal(t, "text", all[2].Info().Name)
	})

	t.Run("ForFile prefers extension claim", func(t *testing.T) {
		b := reg.ForFile("src/app.ts")
		require.NotNil(t, b)
		assert.Equal(t, "symbol", b.Info().Name)
	})

	t.Run("ForFile falls back to wildcard", func(t *testing.T) {
		b := reg.ForFile("README.md")
		require.NotNil(t, b)
		assert.Equal(t, "structural", b.Info().Name)
	})

	t.Run("Extension match is case-insensitive", func(t *testing.T) {
		b := reg.ForFile("src/App.TS")
		require.NotNil(t, b)
		assert.Equal(t, "symbol", b.Info().Name)
	})

	t.Run("ByName", func(t *testing.T) {
		b, ok := reg.ByName("text")
		require.True(t, ok)
		assert.Equal(t, 10, b.Info().Priority)

		_, ok = reg.ByName("nope")
		assert.False(t, ok)
	})

	t.Run("Empty registry claims nothing", func(t *testing.T) {
		assert.Nil(t, NewRegistry().ForFile("a.ts"))
	})
}

func TestCapabilities(t *testing.T) {
	bare := &stubBackend{info: Info{Name: "bare"}}
	assert.Empty(t, Capabilities(bare))

	finder := &stubFinder{stubBackend{info: Info{Name: "finder"}}}
	assert.Equal(t, []string{"symbols"}, Capabilities(finder))
}
