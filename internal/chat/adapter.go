package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"polyglot-chat/internal/room"
)

// RoomAdapter performs one guest's writes against a room row. Stores that
// implement room.Appender get single-command updates; any other store falls
// back to read-then-write, where concurrent writers can drop each other's
// changes.
type RoomAdapter struct {
	store     room.Store
	sessionID string
	log       *slog.Logger
}

func NewRoomAdapter(store room.Store, sessionID string, log *slog.Logger) *RoomAdapter {
	return &RoomAdapter{store: store, sessionID: sessionID, log: log}
}

// Join creates the room with username as its first member, or adds
// username to an existing room.
func (a *RoomAdapter) Join(ctx context.Context, username string) (*room.Room, error) {
	if ap, ok := a.store.(room.Appender); ok {
		return ap.AddMember(ctx, a.sessionID, username)
	}

	r, err := a.store.Get(ctx, a.sessionID)
	if errors.Is(err, room.ErrRoomNotFound) {
		fresh := room.Room{SessionID: a.sessionID, Members: []string{username}}
		err = a.store.Insert(ctx, fresh)
		if err == nil {
			return a.store.Get(ctx, a.sessionID)
		}
		if !errors.Is(err, room.ErrRoomExists) {
			return nil, fmt.Errorf("creating room: %w", err)
		}
		// Someone else created it between our read and insert.
		r, err = a.store.Get(ctx, a.sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("reading room: %w", err)
	}
	if r.HasMember(username) {
		return r, nil
	}
	members := room.WithMember(r.Members, username)
	return a.store.Update(ctx, a.sessionID, room.Patch{Members: &members})
}

// Send appends a new message authored by author and returns it along with
// the resulting row.
func (a *RoomAdapter) Send(ctx context.Context, author, text, lang string) (*room.Message, *room.Room, error) {
	msg := room.NewMessage(author, text, lang)
	r, err := a.Post(ctx, msg)
	if err != nil {
		return nil, nil, err
	}
	return &msg, r, nil
}

// Post appends an already stamped message.
func (a *RoomAdapter) Post(ctx context.Context, msg room.Message) (*room.Room, error) {
	if ap, ok := a.store.(room.Appender); ok {
		return ap.AppendMessage(ctx, a.sessionID, msg)
	}

	r, err := a.store.Get(ctx, a.sessionID)
	if err != nil {
		return nil, fmt.Errorf("reading room: %w", err)
	}
	messages := append(append([]room.Message(nil), r.Messages...), msg)
	return a.store.Update(ctx, a.sessionID, room.Patch{Messages: &messages})
}

func (a *RoomAdapter) Leave(ctx context.Context, username string) error {
	if ap, ok := a.store.(room.Appender); ok {
		_, err := ap.RemoveMember(ctx, a.sessionID, username)
		if errors.Is(err, room.ErrRoomNotFound) {
			return nil
		}
		return err
	}

	r, err := a.store.Get(ctx, a.sessionID)
	if errors.Is(err, room.ErrRoomNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading room: %w", err)
	}
	if !r.HasMember(username) {
		return nil
	}
	members := room.WithoutMember(r.Members, username)
	_, err = a.store.Update(ctx, a.sessionID, room.Patch{Members: &members})
	return err
}
