package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"polyglot-chat/internal/cache"
	"polyglot-chat/internal/language"
	"polyglot-chat/internal/reconcile"
	"polyglot-chat/internal/room"
	"polyglot-chat/internal/translate"
	"polyglot-chat/internal/view"
)

type State string

const (
	Unjoined State = "unjoined"
	Joining  State = "joining"
	Joined   State = "joined"
	Leaving  State = "leaving"
	Left     State = "left"
)

const (
	credentialsNotice = "Please set your Sutra API key to translate messages."
	leaveTimeout      = 5 * time.Second
	outboxSize        = 64
)

type SessionConfig struct {
	SessionID  string
	Username   string
	Store      room.Store
	Translator translate.Translator
	Languages  *language.Registry
	// DefaultAPIKey is used until the guest provides their own.
	DefaultAPIKey string
	Log           *slog.Logger
}

// Session is one guest's live view of a room. All state below the channel
// block is owned by the Run goroutine; other goroutines talk to it through
// commands, delivered rows and pass results.
type Session struct {
	id       string
	username string
	adapter  *RoomAdapter
	langs    *language.Registry
	control  *reconcile.Controller
	log      *slog.Logger

	defaultKey string

	cmds    chan func(ctx context.Context)
	outbox  chan room.Message
	results chan reconcile.Result
	updates chan view.Snapshot
	done    chan struct{}

	rowMu   sync.Mutex
	nextRow *room.Room
	rowSig  chan struct{}

	state    State
	messages []room.Message
	members  []string
	version  int64
	lang     string
	cache    *cache.Cache
	notice   string
}

func NewSession(cfg SessionConfig) *Session {
	log := cfg.Log.With("session", cfg.SessionID, "user", cfg.Username)
	s := &Session{
		id:         cfg.SessionID,
		username:   cfg.Username,
		adapter:    NewRoomAdapter(cfg.Store, cfg.SessionID, log),
		langs:      cfg.Languages,
		control:    reconcile.NewController(cfg.Translator, log),
		log:        log,
		defaultKey: cfg.DefaultAPIKey,
		cmds:       make(chan func(ctx context.Context)),
		outbox:     make(chan room.Message, outboxSize),
		results:    make(chan reconcile.Result),
		updates:    make(chan view.Snapshot, 16),
		done:       make(chan struct{}),
		rowSig:     make(chan struct{}, 1),
		state:      Unjoined,
		lang:       language.Original,
		cache:      cache.New(),
	}
	s.control.SetAPIKey(cfg.DefaultAPIKey)
	return s
}

func (s *Session) ID() string { return s.id }

// Updates carries a snapshot after every observable change. Slow readers
// lose intermediate snapshots, never the latest one.
func (s *Session) Updates() <-chan view.Snapshot { return s.updates }

// Done is closed once the session has left the room.
func (s *Session) Done() <-chan struct{} { return s.done }

// Run joins the room, serves the session until ctx is done, then leaves.
func (s *Session) Run(ctx context.Context) {
	defer close(s.done)

	s.state = Joining
	s.emit()

	r, err := s.adapter.Join(ctx, s.username)
	if err != nil {
		// Fail open: render an empty room instead of blocking the guest.
		s.log.Warn("join failed", "error", err)
	} else {
		s.applyRow(*r)
	}
	s.state = Joined
	s.reconcile(ctx)
	s.emit()

	written := make(chan struct{})
	go s.writeLoop(ctx, written)

	for {
		select {
		case <-ctx.Done():
			<-written
			s.leave()
			return
		case fn := <-s.cmds:
			fn(ctx)
		case <-s.rowSig:
			if r := s.takeRow(); r != nil && s.applyRow(*r) {
				s.reconcile(ctx)
				s.emit()
			}
		case res := <-s.results:
			if s.control.Apply(res, s.cache) {
				s.reconcile(ctx)
			}
			s.emit()
		}
	}
}

func (s *Session) leave() {
	s.state = Leaving
	s.emit()

	ctx, cancel := context.WithTimeout(context.Background(), leaveTimeout)
	defer cancel()
	if err := s.adapter.Leave(ctx, s.username); err != nil {
		s.log.Warn("leave failed", "error", err)
	}

	s.cache.Reset()
	s.state = Left
	s.emit()
}

// Deliver hands a room row to the session. Only the highest version seen
// since the last pickup is kept.
func (s *Session) Deliver(r room.Room) {
	if r.SessionID != s.id {
		return
	}
	s.rowMu.Lock()
	if s.nextRow == nil || r.Version >= s.nextRow.Version {
		s.nextRow = &r
	}
	s.rowMu.Unlock()

	select {
	case s.rowSig <- struct{}{}:
	default:
	}
}

func (s *Session) takeRow() *room.Room {
	s.rowMu.Lock()
	defer s.rowMu.Unlock()
	r := s.nextRow
	s.nextRow = nil
	return r
}

// applyRow replaces local messages and members with the row's. Rows older
// than the one already applied are ignored.
func (s *Session) applyRow(r room.Room) bool {
	if r.Version < s.version {
		s.log.Debug("ignoring stale row", "version", r.Version, "current", s.version)
		return false
	}
	s.version = r.Version
	s.messages = append([]room.Message(nil), r.Messages...)
	s.members = append([]string(nil), r.Members...)
	return true
}

// reconcile starts a translation pass for whatever is missing.
func (s *Session) reconcile(ctx context.Context) {
	pass, err := s.control.Plan(s.messages, s.lang, s.cache)
	switch {
	case errors.Is(err, translate.ErrMissingCredentials):
		s.notice = credentialsNotice
		return
	case err != nil:
		s.log.Error("planning translations", "error", err)
		return
	}
	if s.notice == credentialsNotice {
		s.notice = ""
	}
	if pass == nil {
		return
	}

	s.log.Debug("translation pass started", "lang", pass.Language, "pending", len(pass.Requests), "generation", pass.Generation)
	go func() {
		res := pass.Run(ctx)
		select {
		case s.results <- res:
		case <-ctx.Done():
		}
	}()
}

func (s *Session) snapshot() view.Snapshot {
	snap := view.Snapshot{
		SessionID:   s.id,
		Username:    s.username,
		State:       string(s.state),
		Language:    s.lang,
		Members:     append([]string(nil), s.members...),
		Rows:        view.Rows(s.messages, s.lang, s.cache, s.username),
		Translating: s.control.Translating(),
		Notice:      s.notice,
	}
	if s.langs != nil {
		snap.Languages = s.langs.All()
	}
	return snap
}

func (s *Session) emit() {
	snap := s.snapshot()
	for {
		select {
		case s.updates <- snap:
			return
		default:
		}
		// Full: drop the oldest snapshot and try again.
		select {
		case <-s.updates:
		default:
		}
	}
}

// do runs fn on the session goroutine. It returns false once the session is over.
func (s *Session) do(fn func(ctx context.Context)) bool {
	select {
	case s.cmds <- fn:
		return true
	case <-s.done:
		return false
	}
}

// Send queues text for the room. The message is stamped here, so sends
// reach the store in the order they were accepted.
func (s *Session) Send(text string) {
	msg := room.NewMessage(s.username, text, translate.Detect(text))
	select {
	case s.outbox <- msg:
	case <-s.done:
	}
}

// writeLoop is the session's only writer of messages. The resulting rows
// come back through Deliver.
func (s *Session) writeLoop(ctx context.Context, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-s.outbox:
			r, err := s.adapter.Post(ctx, msg)
			if err != nil {
				s.log.Warn("send failed", "message", msg.ID, "error", err)
				continue
			}
			s.Deliver(*r)
		}
	}
}

// SetLanguage switches the display language. Unknown codes are rejected.
func (s *Session) SetLanguage(code string) error {
	if s.langs != nil {
		l, ok := s.langs.Lookup(code)
		if !ok {
			return fmt.Errorf("unknown language %q", code)
		}
		code = l.Code
	}
	s.do(func(ctx context.Context) {
		if code == s.lang {
			return
		}
		s.lang = code
		s.reconcile(ctx)
		s.emit()
	})
	return nil
}

// SetAPIKey sets the guest's provider key. An empty key falls back to the server default.
func (s *Session) SetAPIKey(key string) {
	if key == "" {
		key = s.defaultKey
	}
	s.do(func(ctx context.Context) {
		s.control.SetAPIKey(key)
		s.reconcile(ctx)
		s.emit()
	})
}

// AddLanguage registers a custom display language for every session.
func (s *Session) AddLanguage(name, code string) bool {
	if s.langs == nil || !s.langs.Add(name, code) {
		return false
	}
	s.do(func(context.Context) { s.emit() })
	return true
}
