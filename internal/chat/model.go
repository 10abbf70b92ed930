package chat

import "polyglot-chat/internal/view"

// ---------------------------------------------
// ⚡ Websocket frames
// ---------------------------------------------

const (
	FrameSend           = "send"
	FrameLanguage       = "language"
	FrameAPIKey         = "api_key"
	FrameCustomLanguage = "custom_language"

	FrameSnapshot = "snapshot"
	FrameError    = "error"
)

// Inbound is what the guest's client sends us. Username and session come
// from the token, never from the frame.
type Inbound struct {
	Type     string `json:"type" validate:"required,oneof=send language api_key custom_language"`
	Text     string `json:"text,omitempty" validate:"required_if=Type send,max=2000"`
	Language string `json:"language,omitempty" validate:"required_if=Type language,max=64"`
	APIKey   string `json:"api_key,omitempty" validate:"max=512"`
	Name     string `json:"name,omitempty" validate:"required_if=Type custom_language,max=64"`
	Code     string `json:"code,omitempty" validate:"required_if=Type custom_language,max=16"`
}

// Outbound is pushed to the guest after every observable state change.
type Outbound struct {
	Type     string         `json:"type"`
	Snapshot *view.Snapshot `json:"snapshot,omitempty"`
	Error    string         `json:"error,omitempty"`
}
