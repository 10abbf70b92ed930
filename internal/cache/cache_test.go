package cache

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCache_GetMissing(t *testing.T) {
	req := require.New(t)
	c := New()

	_, ok := c.Get(Key{MessageID: "m1", Language: "es"})
	req.False(ok)
	req.Zero(c.Len())
}

func TestCache_PutAllMergesBatch(t *testing.T) {
	req := require.New(t)
	c := New()

	c.PutAll(map[Key]Entry{
		{MessageID: "m1", Language: "es"}: {Text: "hola"},
		{MessageID: "m2", Language: "es"}: {Text: "adiós"},
	})
	c.PutAll(map[Key]Entry{
		{MessageID: "m1", Language: "hi"}: {Text: "नमस्ते"},
	})

	req.Equal(3, c.Len())
	e, ok := c.Get(Key{MessageID: "m1", Language: "es"})
	req.True(ok)
	req.Equal("hola", e.Text)

	// Same message, other language: a separate entry.
	e, ok = c.Get(Key{MessageID: "m1", Language: "hi"})
	req.True(ok)
	req.Equal("नमस्ते", e.Text)
}

func TestCache_LastWriteWins(t *testing.T) {
	req := require.New(t)
	c := New()
	key := Key{MessageID: "m1", Language: "es"}

	c.PutAll(map[Key]Entry{key: {Text: "hello (translation failed)", Failed: true}})
	c.PutAll(map[Key]Entry{key: {Text: "hola"}})

	e, _ := c.Get(key)
	req.Equal(Entry{Text: "hola"}, e)
	req.Equal(1, c.Len())
}

func TestCache_Reset(t *testing.T) {
	req := require.New(t)
	c := New()
	c.PutAll(map[Key]Entry{{MessageID: "m1", Language: "es"}: {Text: "hola"}})

	c.Reset()

	req.Zero(c.Len())
}
