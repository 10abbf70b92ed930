package room

import (
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// ---------------------------------------------
// 🗄️ Room row & Messages
// ---------------------------------------------

// Message is immutable once created. It is stored exactly as the author typed it.
type Message struct {
	ID     string    `json:"id"`
	Author string    `json:"username"`
	Text   string    `json:"text"`
	Lang   string    `json:"lang,omitempty"` // detected source language, "" when unknown
	SentAt time.Time `json:"sent_at"`
}

// NewMessage stamps a fresh id and send time.
func NewMessage(author, text, lang string) Message {
	return Message{
		ID:     uuid.NewString(),
		Author: author,
		Text:   text,
		Lang:   lang,
		SentAt: time.Now().UTC(),
	}
}

// Room is the shared row for one chat session. Version grows by one on
// every write so subscribers can drop rows delivered out of order.
type Room struct {
	SessionID string    `json:"session_id"`
	Members   []string  `json:"users"`
	Messages  []Message `json:"msgs"`
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
}

// Patch is a partial room record. Nil fields are left untouched.
type Patch struct {
	Members  *[]string
	Messages *[]Message
}

// Clone returns a deep copy so callers can mutate slices freely.
func (r Room) Clone() Room {
	out := r
	out.Members = append([]string(nil), r.Members...)
	out.Messages = append([]Message(nil), r.Messages...)
	return out
}

// HasMember reports whether name is in the member list.
func (r Room) HasMember(name string) bool {
	return lo.Contains(r.Members, name)
}

// WithMember appends name unless already present.
func WithMember(members []string, name string) []string {
	if lo.Contains(members, name) {
		return members
	}
	return append(append([]string(nil), members...), name)
}

// WithoutMember removes every occurrence of name.
func WithoutMember(members []string, name string) []string {
	return lo.Without(members, name)
}

func (p Patch) apply(r *Room) {
	if p.Members != nil {
		r.Members = lo.Uniq(*p.Members)
	}
	if p.Messages != nil {
		r.Messages = append([]Message(nil), (*p.Messages)...)
	}
}
