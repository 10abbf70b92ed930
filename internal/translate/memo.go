package translate

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"
	"golang.org/x/crypto/blake2b"
)

// Memo remembers provider results across sessions. Only successful
// translations are stored; nothing is ever evicted.
type Memo struct {
	db   *badger.DB
	next Translator
	log  *slog.Logger
}

func NewMemo(db *badger.DB, next Translator, log *slog.Logger) *Memo {
	return &Memo{db: db, next: next, log: log}
}

// OpenMemoDB opens the badger directory backing a Memo. An empty path keeps it in memory.
func OpenMemoDB(path string) (*badger.DB, error) {
	opts := badger.DefaultOptions(path).WithLoggingLevel(badger.ERROR)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening memo: %w", err)
	}
	return db, nil
}

func memoKey(text, language string) []byte {
	sum := blake2b.Sum256([]byte(text))
	return []byte("tr:" + language + ":" + hex.EncodeToString(sum[:]))
}

func (m *Memo) Translate(ctx context.Context, text, language, apiKey string) (string, error) {
	key := memoKey(text, language)

	var cached string
	err := m.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		return item.Value(func(v []byte) error {
			cached = string(v)
			return nil
		})
	})
	switch {
	case err == nil:
		return cached, nil
	case !errors.Is(err, badger.ErrKeyNotFound):
		m.log.Warn("memo read failed", "lang", language, "error", err)
	}

	out, err := m.next.Translate(ctx, text, language, apiKey)
	if err != nil {
		return "", err
	}
	if out == "" {
		// Not a translation; the caller treats it as a failure.
		return out, nil
	}

	if err := m.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, []byte(out))
	}); err != nil {
		m.log.Warn("memo write failed", "lang", language, "error", err)
	}
	return out, nil
}
