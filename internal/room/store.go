package room

import (
	"context"
	"errors"
)

var (
	ErrRoomNotFound = errors.New("room not found")
	ErrRoomExists   = errors.New("room already exists")
)

// Store is the keyed room record store. Every successful write is
// broadcast to listeners as the full resulting row.
type Store interface {
	Get(ctx context.Context, sessionID string) (*Room, error)
	Insert(ctx context.Context, room Room) error
	Update(ctx context.Context, sessionID string, patch Patch) (*Room, error)
}

// Appender is implemented by stores able to mutate a row in a single atomic
// command. Callers prefer it over Get+Update, which loses concurrent writes.
type Appender interface {
	// AddMember creates the room when absent and appends name unless present.
	AddMember(ctx context.Context, sessionID, name string) (*Room, error)
	RemoveMember(ctx context.Context, sessionID, name string) (*Room, error)
	AppendMessage(ctx context.Context, sessionID string, msg Message) (*Room, error)
}

// Notifier carries row-level change notifications between server instances.
type Notifier interface {
	Publish(ctx context.Context, room Room) error
	// Listen streams every published row, for all rooms, until ctx is done.
	Listen(ctx context.Context) (<-chan Room, error)
}
