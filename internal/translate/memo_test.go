package translate

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"
)

func newMemoDB(t *testing.T) *badger.DB {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestMemo_SecondCallServedFromStore(t *testing.T) {
	req := require.New(t)
	var calls atomic.Int32
	next := Func(func(_ context.Context, text, language, _ string) (string, error) {
		calls.Add(1)
		return text + "@" + language, nil
	})
	m := NewMemo(newMemoDB(t), next, slog.New(slog.DiscardHandler))
	ctx := context.Background()

	out, err := m.Translate(ctx, "hello", "es", "k")
	req.NoError(err)
	req.Equal("hello@es", out)

	out, err = m.Translate(ctx, "hello", "es", "k")
	req.NoError(err)
	req.Equal("hello@es", out)
	req.Equal(int32(1), calls.Load())

	// Different language is a different key.
	_, err = m.Translate(ctx, "hello", "hi", "k")
	req.NoError(err)
	req.Equal(int32(2), calls.Load())
}

func TestMemo_FailuresAreNotStored(t *testing.T) {
	req := require.New(t)
	var calls atomic.Int32
	boom := errors.New("provider down")
	next := Func(func(context.Context, string, string, string) (string, error) {
		if calls.Add(1) == 1 {
			return "", boom
		}
		return "hola", nil
	})
	m := NewMemo(newMemoDB(t), next, slog.New(slog.DiscardHandler))

	_, err := m.Translate(context.Background(), "hello", "es", "k")
	req.ErrorIs(err, boom)

	out, err := m.Translate(context.Background(), "hello", "es", "k")
	req.NoError(err)
	req.Equal("hola", out)
	req.Equal(int32(2), calls.Load())
}

func TestMemo_EmptyResultIsNotStored(t *testing.T) {
	req := require.New(t)
	var calls atomic.Int32
	next := Func(func(context.Context, string, string, string) (string, error) {
		if calls.Add(1) == 1 {
			return "", nil
		}
		return "hola", nil
	})
	m := NewMemo(newMemoDB(t), next, slog.New(slog.DiscardHandler))

	out, err := m.Translate(context.Background(), "hello", "es", "k")
	req.NoError(err)
	req.Empty(out)

	out, err = m.Translate(context.Background(), "hello", "es", "k")
	req.NoError(err)
	req.Equal("hola", out)
	req.Equal(int32(2), calls.Load())
}

func TestMemoKey_StableAndLanguageScoped(t *testing.T) {
	req := require.New(t)
	req.Equal(memoKey("hello", "es"), memoKey("hello", "es"))
	req.NotEqual(memoKey("hello", "es"), memoKey("hello", "hi"))
	req.NotEqual(memoKey("hello", "es"), memoKey("hello!", "es"))
}
