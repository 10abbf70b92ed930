package translate

import (
	"context"
	"strings"

	"github.com/abadojack/whatlanggo"
)

// Detect returns the ISO 639-1 code of text, or "" when detection is unreliable.
func Detect(text string) string {
	info := whatlanggo.Detect(text)
	if !info.IsReliable() {
		return ""
	}
	return info.Lang.Iso6391()
}

// SameLanguage skips the provider when text is already written in the target language.
type SameLanguage struct {
	next Translator
}

func NewSameLanguage(next Translator) *SameLanguage {
	return &SameLanguage{next: next}
}

func (s *SameLanguage) Translate(ctx context.Context, text, language, apiKey string) (string, error) {
	if apiKey == "" {
		return "", ErrMissingCredentials
	}
	if code := Detect(text); code != "" && strings.EqualFold(code, language) {
		return text, nil
	}
	return s.next.Translate(ctx, text, language, apiKey)
}
