package room

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/lo"
)

const roomColumns = `session_id, members, messages, version, created_at`

// PostgresStore keeps one row per room in the rooms table (see db.AutoMigrate).
type PostgresStore struct {
	pool     *pgxpool.Pool
	notifier Notifier
	log      *slog.Logger
}

func NewPostgresStore(pool *pgxpool.Pool, notifier Notifier, log *slog.Logger) *PostgresStore {
	return &PostgresStore{pool: pool, notifier: notifier, log: log}
}

func (s *PostgresStore) Get(ctx context.Context, sessionID string) (*Room, error) {
	query := `SELECT ` + roomColumns + ` FROM rooms WHERE session_id = $1`
	return scanRoom(s.pool.QueryRow(ctx, query, sessionID))
}

func (s *PostgresStore) Insert(ctx context.Context, room Room) error {
	messages, err := json.Marshal(lo.Ternary(room.Messages == nil, []Message{}, room.Messages))
	if err != nil {
		return err
	}
	if room.CreatedAt.IsZero() {
		room.CreatedAt = time.Now().UTC()
	}
	query := `
		INSERT INTO rooms (session_id, members, messages, created_at)
		VALUES ($1, $2, $3::jsonb, $4)
		ON CONFLICT (session_id) DO NOTHING
		RETURNING ` + roomColumns
	inserted, err := scanRoom(s.pool.QueryRow(ctx, query, room.SessionID, lo.Uniq(room.Members), string(messages), room.CreatedAt))
	if errors.Is(err, ErrRoomNotFound) {
		return ErrRoomExists
	}
	if err != nil {
		return err
	}
	s.publish(ctx, *inserted)
	return nil
}

// Update overwrites the fields set in patch with a plain column write. The
// caller is responsible for having read the row first.
func (s *PostgresStore) Update(ctx context.Context, sessionID string, patch Patch) (*Room, error) {
	var members, messages any
	if patch.Members != nil {
		members = lo.Uniq(*patch.Members)
	}
	if patch.Messages != nil {
		raw, err := json.Marshal(*patch.Messages)
		if err != nil {
			return nil, err
		}
		messages = string(raw)
	}
	query := `
		UPDATE rooms
		SET members = COALESCE($2::text[], members),
		    messages = COALESCE($3::jsonb, messages),
		    version = version + 1,
		    updated_at = now()
		WHERE session_id = $1
		RETURNING ` + roomColumns
	return s.write(ctx, query, sessionID, members, messages)
}

func (s *PostgresStore) AddMember(ctx context.Context, sessionID, name string) (*Room, error) {
	query := `
		INSERT INTO rooms (session_id, members, messages)
		VALUES ($1, ARRAY[$2::text], '[]'::jsonb)
		ON CONFLICT (session_id) DO UPDATE
		SET members = CASE
		        WHEN $2::text = ANY(rooms.members) THEN rooms.members
		        ELSE array_append(rooms.members, $2::text)
		    END,
		    version = rooms.version + 1,
		    updated_at = now()
		RETURNING ` + roomColumns
	return s.write(ctx, query, sessionID, name)
}

func (s *PostgresStore) RemoveMember(ctx context.Context, sessionID, name string) (*Room, error) {
	query := `
		UPDATE rooms
		SET members = array_remove(members, $2::text),
		    version = version + 1,
		    updated_at = now()
		WHERE session_id = $1
		RETURNING ` + roomColumns
	return s.write(ctx, query, sessionID, name)
}

func (s *PostgresStore) AppendMessage(ctx context.Context, sessionID string, msg Message) (*Room, error) {
	raw, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}
	query := `
		UPDATE rooms
		SET messages = messages || jsonb_build_array($2::jsonb),
		    version = version + 1,
		    updated_at = now()
		WHERE session_id = $1
		RETURNING ` + roomColumns
	return s.write(ctx, query, sessionID, string(raw))
}

func (s *PostgresStore) write(ctx context.Context, query string, args ...any) (*Room, error) {
	room, err := scanRoom(s.pool.QueryRow(ctx, query, args...))
	if err != nil {
		return nil, err
	}
	s.publish(ctx, *room)
	return room, nil
}

// publish never fails the write: the row is committed, subscribers catch up
// on the next change.
func (s *PostgresStore) publish(ctx context.Context, room Room) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Publish(ctx, room); err != nil {
		s.log.Error("Room change not broadcast", "session", room.SessionID, "error", err)
	}
}

func scanRoom(row pgx.Row) (*Room, error) {
	var (
		r   Room
		raw []byte
	)
	if err := row.Scan(&r.SessionID, &r.Members, &raw, &r.Version, &r.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRoomNotFound
		}
		return nil, err
	}
	if err := json.Unmarshal(raw, &r.Messages); err != nil {
		return nil, fmt.Errorf("decode messages of %s: %w", r.SessionID, err)
	}
	return &r, nil
}
