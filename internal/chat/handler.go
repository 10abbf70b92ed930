package chat

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"polyglot-chat/internal/language"
	myMiddleware "polyglot-chat/internal/middleware"
	"polyglot-chat/internal/room"
	"polyglot-chat/internal/translate"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Guests connect from any origin holding a valid token.
	},
}

type Handler struct {
	hub        *Hub
	store      room.Store
	translator translate.Translator
	languages  *language.Registry
	defaultKey string
	log        *slog.Logger
}

func NewHandler(hub *Hub, store room.Store, t translate.Translator, langs *language.Registry, defaultKey string, log *slog.Logger) *Handler {
	return &Handler{
		hub:        hub,
		store:      store,
		translator: t,
		languages:  langs,
		defaultKey: defaultKey,
		log:        log,
	}
}

// ServeWs upgrades the request and runs one session for the guest named in
// the token, for as long as the connection lives.
func (h *Handler) ServeWs(w http.ResponseWriter, r *http.Request) {
	username, ok := r.Context().Value(myMiddleware.UsernameKey).(string)
	sessionID, ok2 := r.Context().Value(myMiddleware.SessionKey).(string)
	if !ok || !ok2 {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "error", err)
		return
	}

	session := NewSession(SessionConfig{
		SessionID:     sessionID,
		Username:      username,
		Store:         h.store,
		Translator:    h.translator,
		Languages:     h.languages,
		DefaultAPIKey: h.defaultKey,
		Log:           h.log,
	})
	client := &Client{
		Session: session,
		Conn:    conn,
		Send:    make(chan []byte, 16),
		Log:     h.log.With("session", sessionID, "user", username),
	}

	// The request context ends with this handler; the session outlives it.
	ctx, cancel := context.WithCancel(context.Background())
	h.hub.Register(session)
	go session.Run(ctx)
	go client.WritePump()
	go func() {
		client.ReadPump()
		cancel()
		<-session.Done()
		h.hub.Unregister(session)
	}()
}

// GetRoom returns the stored row for a session id.
func (h *Handler) GetRoom(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	rm, err := h.store.Get(r.Context(), sessionID)
	if errors.Is(err, room.ErrRoomNotFound) {
		http.Error(w, "room not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.log.Error("reading room", "session", sessionID, "error", err)
		http.Error(w, "failed to read room", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(rm)
}

// Languages lists the display languages, custom ones included.
func (h *Handler) Languages(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.languages.All())
}
