package room

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/samber/lo"
	_ "modernc.org/sqlite"
)

const defaultBusyTimeout = 5000

// SQLiteStore is the embedded single-node room store. The pool is limited to
// one connection, so each transaction below runs alone and every read-modify-write
// it performs is atomic.
type SQLiteStore struct {
	db       *sql.DB
	notifier Notifier
	log      *slog.Logger
}

// NewSQLiteStore opens (or creates) the database at path. Call Close when done.
func NewSQLiteStore(path string, notifier Notifier, log *slog.Logger) (*SQLiteStore, error) {
	if path == "" {
		path = "polyglot-chat.db"
	}
	db, err := sql.Open("sqlite", buildDSN(path))
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db, notifier: notifier, log: log}, nil
}

func buildDSN(path string) string {
	switch {
	case strings.HasPrefix(path, "sqlite://"):
		path = path[len("sqlite://"):]
	case strings.HasPrefix(path, "file:"), strings.HasPrefix(path, ":memory:"):
		// already in a form sqlite understands
	default:
		path = "file:" + path
	}
	separator := "?"
	if strings.Contains(path, "?") {
		separator = "&"
	}
	return fmt.Sprintf("%s%s_pragma=busy_timeout=%d", path, separator, defaultBusyTimeout)
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Migrate runs the schema creation statements.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS rooms (
		session_id TEXT PRIMARY KEY,
		members TEXT NOT NULL DEFAULT '[]',
		messages TEXT NOT NULL DEFAULT '[]',
		version INTEGER NOT NULL DEFAULT 1,
		created_at INTEGER NOT NULL
	);`)
	return err
}

func (s *SQLiteStore) Get(ctx context.Context, sessionID string) (*Room, error) {
	return getRoom(ctx, s.db, sessionID)
}

func (s *SQLiteStore) Insert(ctx context.Context, room Room) error {
	if room.CreatedAt.IsZero() {
		room.CreatedAt = time.Now().UTC()
	}
	room.Members = lo.Uniq(room.Members)
	room.Version = 1
	inserted, err := s.inTx(ctx, func(tx *sql.Tx) (*Room, error) {
		if _, err := getRoom(ctx, tx, room.SessionID); err == nil {
			return nil, ErrRoomExists
		} else if !errors.Is(err, ErrRoomNotFound) {
			return nil, err
		}
		if err := putRoom(ctx, tx, room, true); err != nil {
			return nil, err
		}
		return &room, nil
	})
	if err != nil {
		return err
	}
	s.publish(ctx, *inserted)
	return nil
}

func (s *SQLiteStore) Update(ctx context.Context, sessionID string, patch Patch) (*Room, error) {
	return s.mutate(ctx, sessionID, false, func(r *Room) { patch.apply(r) })
}

func (s *SQLiteStore) AddMember(ctx context.Context, sessionID, name string) (*Room, error) {
	return s.mutate(ctx, sessionID, true, func(r *Room) { r.Members = WithMember(r.Members, name) })
}

func (s *SQLiteStore) RemoveMember(ctx context.Context, sessionID, name string) (*Room, error) {
	return s.mutate(ctx, sessionID, false, func(r *Room) { r.Members = WithoutMember(r.Members, name) })
}

func (s *SQLiteStore) AppendMessage(ctx context.Context, sessionID string, msg Message) (*Room, error) {
	return s.mutate(ctx, sessionID, false, func(r *Room) { r.Messages = append(r.Messages, msg) })
}

// mutate reads, changes and writes one row inside a single transaction.
// With create set, a missing row starts out empty instead of failing.
func (s *SQLiteStore) mutate(ctx context.Context, sessionID string, create bool, change func(*Room)) (*Room, error) {
	updated, err := s.inTx(ctx, func(tx *sql.Tx) (*Room, error) {
		current, err := getRoom(ctx, tx, sessionID)
		isNew := false
		switch {
		case errors.Is(err, ErrRoomNotFound) && create:
			current = &Room{SessionID: sessionID, CreatedAt: time.Now().UTC()}
			isNew = true
		case err != nil:
			return nil, err
		}
		change(current)
		current.Version++
		if err := putRoom(ctx, tx, *current, isNew); err != nil {
			return nil, err
		}
		return current, nil
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, *updated)
	return updated, nil
}

func (s *SQLiteStore) inTx(ctx context.Context, fn func(tx *sql.Tx) (*Room, error)) (room *Room, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if room, err = fn(tx); err != nil {
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		return nil, err
	}
	return room, nil
}

func (s *SQLiteStore) publish(ctx context.Context, room Room) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Publish(ctx, room); err != nil {
		s.log.Error("Room change not broadcast", "session", room.SessionID, "error", err)
	}
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getRoom(ctx context.Context, q queryer, sessionID string) (*Room, error) {
	row := q.QueryRowContext(ctx, `SELECT session_id, members, messages, version, created_at FROM rooms WHERE session_id = ?`, sessionID)
	var (
		r                 Room
		members, messages string
		createdAt         int64
	)
	if err := row.Scan(&r.SessionID, &members, &messages, &r.Version, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRoomNotFound
		}
		return nil, err
	}
	if err := json.Unmarshal([]byte(members), &r.Members); err != nil {
		return nil, fmt.Errorf("decode members of %s: %w", sessionID, err)
	}
	if err := json.Unmarshal([]byte(messages), &r.Messages); err != nil {
		return nil, fmt.Errorf("decode messages of %s: %w", sessionID, err)
	}
	r.CreatedAt = time.Unix(0, createdAt).UTC()
	return &r, nil
}

func putRoom(ctx context.Context, tx *sql.Tx, r Room, insert bool) error {
	members, err := json.Marshal(lo.Ternary(r.Members == nil, []string{}, r.Members))
	if err != nil {
		return err
	}
	messages, err := json.Marshal(lo.Ternary(r.Messages == nil, []Message{}, r.Messages))
	if err != nil {
		return err
	}
	if insert {
		_, err = tx.ExecContext(ctx, `INSERT INTO rooms(session_id, members, messages, version, created_at) VALUES(?, ?, ?, ?, ?)`,
			r.SessionID, string(members), string(messages), r.Version, r.CreatedAt.UnixNano())
		return err
	}
	_, err = tx.ExecContext(ctx, `UPDATE rooms SET members = ?, messages = ?, version = ? WHERE session_id = ?`,
		string(members), string(messages), r.Version, r.SessionID)
	return err
}
