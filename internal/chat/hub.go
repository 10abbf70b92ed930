package chat

import (
	"context"
	"fmt"
	"log/slog"

	"polyglot-chat/internal/room"
)

// Hub routes room rows from the notifier to the sessions watching each room.
// Rows for rooms with no local session are dropped.
type Hub struct {
	rooms      map[string]map[*Session]struct{}
	register   chan *Session
	unregister chan *Session
	notifier   room.Notifier
	log        *slog.Logger
	done       chan struct{}
}

func NewHub(notifier room.Notifier, log *slog.Logger) *Hub {
	return &Hub{
		rooms:      make(map[string]map[*Session]struct{}),
		register:   make(chan *Session),
		unregister: make(chan *Session),
		notifier:   notifier,
		log:        log,
		done:       make(chan struct{}),
	}
}

// Register subscribes s to its room. Call it before s.Run so no row is missed.
func (h *Hub) Register(s *Session) {
	select {
	case h.register <- s:
	case <-h.done:
	}
}

func (h *Hub) Unregister(s *Session) {
	select {
	case h.unregister <- s:
	case <-h.done:
	}
}

// Run consumes the notifier feed until ctx is done.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)

	feed, err := h.notifier.Listen(ctx)
	if err != nil {
		return fmt.Errorf("listening for room changes: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case s := <-h.register:
			subs, ok := h.rooms[s.ID()]
			if !ok {
				subs = make(map[*Session]struct{})
				h.rooms[s.ID()] = subs
			}
			subs[s] = struct{}{}

		case s := <-h.unregister:
			if subs, ok := h.rooms[s.ID()]; ok {
				delete(subs, s)
				if len(subs) == 0 {
					delete(h.rooms, s.ID())
				}
			}

		case r, ok := <-feed:
			if !ok {
				h.log.Warn("room feed closed")
				return nil
			}
			for s := range h.rooms[r.SessionID] {
				s.Deliver(r)
			}
		}
	}
}
