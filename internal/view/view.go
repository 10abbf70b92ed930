// Package view turns session state into what a guest sees. Everything here
// is a pure function of its inputs.
package view

import (
	"time"

	"polyglot-chat/internal/cache"
	"polyglot-chat/internal/language"
	"polyglot-chat/internal/room"
)

// DisplayText picks the text shown for m. pending is true when a translation
// is wanted but not cached yet, in which case the original text is returned.
func DisplayText(m room.Message, lang string, c *cache.Cache) (string, bool) {
	if lang == "" || lang == language.Original {
		return m.Text, false
	}
	if e, ok := c.Get(cache.Key{MessageID: m.ID, Language: lang}); ok {
		return e.Text, false
	}
	return m.Text, true
}

type Row struct {
	ID         string    `json:"id"`
	Author     string    `json:"username"`
	Text       string    `json:"text"`
	SourceLang string    `json:"source_lang,omitempty"`
	SentAt     time.Time `json:"sent_at"`
	Pending    bool      `json:"pending,omitempty"`
	Failed     bool      `json:"failed,omitempty"`
	Self       bool      `json:"self,omitempty"`
}

// Rows renders messages in the order given. No re-sorting happens here.
func Rows(messages []room.Message, lang string, c *cache.Cache, self string) []Row {
	rows := make([]Row, 0, len(messages))
	for _, m := range messages {
		text, pending := DisplayText(m, lang, c)
		row := Row{
			ID:         m.ID,
			Author:     m.Author,
			Text:       text,
			SourceLang: m.Lang,
			SentAt:     m.SentAt,
			Pending:    pending,
			Self:       m.Author == self,
		}
		if !pending && lang != language.Original {
			if e, ok := c.Get(cache.Key{MessageID: m.ID, Language: lang}); ok {
				row.Failed = e.Failed
			}
		}
		rows = append(rows, row)
	}
	return rows
}

// Snapshot is one observable state of a session.
type Snapshot struct {
	SessionID   string              `json:"session_id"`
	Username    string              `json:"username"`
	State       string              `json:"state"`
	Language    string              `json:"language"`
	Languages   []language.Language `json:"languages,omitempty"`
	Members     []string            `json:"members"`
	Rows        []Row               `json:"rows"`
	Translating bool                `json:"translating"`
	Notice      string              `json:"notice,omitempty"`
}
