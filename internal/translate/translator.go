//go:generate go run go.uber.org/mock/mockgen -source=translator.go -destination=../mocks/mock_translator.go -package=mocks
package translate

import (
	"context"
	"errors"
)

var (
	ErrMissingCredentials = errors.New("translate: no api key configured")
	ErrEmptyText          = errors.New("translate: empty text")
	ErrNoTranslation      = errors.New("translate: provider returned no text")
)

// Translator turns text into the language identified by code.
// apiKey is the caller's provider credential.
type Translator interface {
	Translate(ctx context.Context, text, language, apiKey string) (string, error)
}

// Streamer delivers a translation piece by piece as the provider produces it.
type Streamer interface {
	Stream(ctx context.Context, text, language, apiKey string, emit func(chunk string) error) error
}

// Func adapts a plain function to Translator.
type Func func(ctx context.Context, text, language, apiKey string) (string, error)

func (f Func) Translate(ctx context.Context, text, language, apiKey string) (string, error) {
	return f(ctx, text, language, apiKey)
}
