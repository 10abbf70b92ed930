package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"polyglot-chat/internal/language"
	"polyglot-chat/internal/mocks"
	"polyglot-chat/internal/room"
	"polyglot-chat/internal/view"

	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

const sessionID = "room-1"

type testEnv struct {
	store *room.SQLiteStore
	hub   *Hub
	langs *language.Registry
	tr    *mocks.MockTranslator
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	notifier := room.NewLocalNotifier(64)
	env := &testEnv{
		store: newSQLiteStore(t, notifier),
		hub:   NewHub(notifier, slog.Default()),
		langs: language.NewRegistry(),
		tr:    mocks.NewMockTranslator(gomock.NewController(t)),
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = env.hub.Run(ctx) }()
	return env
}

func (e *testEnv) start(t *testing.T, username, apiKey string) (*Session, context.CancelFunc) {
	t.Helper()
	return e.startWith(t, e.store, username, apiKey)
}

func (e *testEnv) startWith(t *testing.T, store room.Store, username, apiKey string) (*Session, context.CancelFunc) {
	t.Helper()
	s := NewSession(SessionConfig{
		SessionID:     sessionID,
		Username:      username,
		Store:         store,
		Translator:    e.tr,
		Languages:     e.langs,
		DefaultAPIKey: apiKey,
		Log:           slog.Default(),
	})
	e.hub.Register(s)
	ctx, cancel := context.WithCancel(context.Background())
	go s.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-s.Done()
	})
	return s, cancel
}

func (e *testEnv) seed(t *testing.T, texts ...string) []room.Message {
	t.Helper()
	msgs := lo.Map(texts, func(text string, _ int) room.Message { return room.NewMessage("host", text, "en") })
	require.NoError(t, e.store.Insert(context.Background(), room.Room{SessionID: sessionID, Members: []string{"host"}, Messages: msgs}))
	return msgs
}

func waitFor(t *testing.T, s *Session, what string, pred func(view.Snapshot) bool) view.Snapshot {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case snap := <-s.Updates():
			if pred(snap) {
				return snap
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", what)
		}
	}
}

func texts(snap view.Snapshot) []string {
	return lo.Map(snap.Rows, func(r view.Row, _ int) string { return r.Text })
}

func settled(snap view.Snapshot) bool {
	return !snap.Translating && !lo.SomeBy(snap.Rows, func(r view.Row) bool { return r.Pending })
}

var spanish = map[string]string{
	"good morning":  "buenos días",
	"how are you":   "cómo estás",
	"see you later": "hasta luego",
	"see you soon":  "hasta pronto",
}

func translateSpanish(_ context.Context, text, _, _ string) (string, error) {
	if out, ok := spanish[text]; ok {
		return out, nil
	}
	return "", errors.New("no translation")
}

func TestSession_JoinRendersExistingRoom(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t)
	env.seed(t, "good morning", "how are you")
	s, _ := env.start(t, "alice", "")

	snap := waitFor(t, s, "joined", func(v view.Snapshot) bool { return v.State == string(Joined) })
	req.Equal([]string{"host", "alice"}, snap.Members)
	req.Equal([]string{"good morning", "how are you"}, texts(snap))
	req.Equal(language.Original, snap.Language)
	req.False(snap.Translating)
	req.Len(snap.Languages, 11)
}

func TestSession_SelectingSpanishTranslatesEveryMessage(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t)
	env.seed(t, "good morning", "how are you", "see you later")
	env.tr.EXPECT().Translate(gomock.Any(), gomock.Any(), "es", "sk-test").DoAndReturn(translateSpanish).Times(3)

	s, _ := env.start(t, "alice", "sk-test")
	waitFor(t, s, "joined", func(v view.Snapshot) bool { return v.State == string(Joined) })

	req.NoError(s.SetLanguage("es"))
	snap := waitFor(t, s, "translated room", func(v view.Snapshot) bool {
		return v.Language == "es" && len(v.Rows) == 3 && settled(v)
	})
	req.Equal([]string{"buenos días", "cómo estás", "hasta luego"}, texts(snap))
	req.False(snap.Translating)
	req.Equal(3, s.cache.Len())
}

func TestSession_NewMessageRendersOriginalUntilTranslated(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t)
	env.seed(t, "good morning", "how are you")
	// Two for the seeded messages, one for the new message. Nothing is re-translated.
	env.tr.EXPECT().Translate(gomock.Any(), gomock.Any(), "es", gomock.Any()).DoAndReturn(translateSpanish).Times(3)

	s, _ := env.start(t, "alice", "sk-test")
	req.NoError(s.SetLanguage("es"))
	waitFor(t, s, "seed translated", func(v view.Snapshot) bool {
		return v.Language == "es" && len(v.Rows) == 2 && settled(v)
	})

	s.Send("see you soon")
	pending := waitFor(t, s, "new message pending", func(v view.Snapshot) bool {
		return len(v.Rows) == 3 && v.Rows[2].Pending
	})
	req.Equal("see you soon", pending.Rows[2].Text)
	req.Equal("buenos días", pending.Rows[0].Text)
	req.True(pending.Rows[2].Self)

	done := waitFor(t, s, "new message translated", func(v view.Snapshot) bool {
		return len(v.Rows) == 3 && settled(v)
	})
	req.Equal([]string{"buenos días", "cómo estás", "hasta pronto"}, texts(done))
}

func TestSession_FailedTranslationShownInline(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t)
	env.seed(t, "unknown phrase")
	env.tr.EXPECT().Translate(gomock.Any(), "unknown phrase", "es", gomock.Any()).
		Return("", errors.New("provider returned status 500"))

	s, _ := env.start(t, "alice", "sk-test")
	req.NoError(s.SetLanguage("es"))

	snap := waitFor(t, s, "failed row", func(v view.Snapshot) bool {
		return len(v.Rows) == 1 && settled(v)
	})
	req.Equal("unknown phrase (translation failed)", snap.Rows[0].Text)
	req.True(snap.Rows[0].Failed)

	// Switching away and back does not retry within the same cache.
	req.NoError(s.SetLanguage(language.Original))
	req.NoError(s.SetLanguage("es"))
	snap = waitFor(t, s, "failed row again", func(v view.Snapshot) bool {
		return v.Language == "es" && len(v.Rows) == 1 && settled(v)
	})
	req.True(snap.Rows[0].Failed)
}

func TestSession_MissingCredentialsBlocksTranslation(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t)
	env.seed(t, "good morning")

	s, _ := env.start(t, "alice", "")
	req.NoError(s.SetLanguage("es"))

	snap := waitFor(t, s, "credentials notice", func(v view.Snapshot) bool { return v.Notice != "" })
	req.Equal(credentialsNotice, snap.Notice)
	req.False(snap.Translating)
	req.True(snap.Rows[0].Pending)
	req.Equal("good morning", snap.Rows[0].Text)

	env.tr.EXPECT().Translate(gomock.Any(), "good morning", "es", "guest-key").Return("buenos días", nil)
	s.SetAPIKey("guest-key")
	snap = waitFor(t, s, "translated after key", func(v view.Snapshot) bool { return settled(v) && v.Notice == "" })
	req.Equal([]string{"buenos días"}, texts(snap))
}

func TestSession_UnknownLanguageRejected(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t)
	s, _ := env.start(t, "alice", "k")

	req.Error(s.SetLanguage("xx"))
	req.True(s.AddLanguage("Klingon", "xx"))
	req.False(s.AddLanguage("Klingon", "xx"))
	req.NoError(s.SetLanguage("xx"))
}

func TestSession_SendsAreStoredInSendOrder(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t)
	s, _ := env.start(t, "alice", "")
	waitFor(t, s, "joined", func(v view.Snapshot) bool { return v.State == string(Joined) })

	const n = 200
	want := make([]string, n)
	for i := range want {
		want[i] = fmt.Sprintf("%03d", i)
		s.Send(want[i])
	}

	var stored []room.Message
	req.Eventually(func() bool {
		r, err := env.store.Get(context.Background(), sessionID)
		if err != nil {
			return false
		}
		stored = r.Messages
		return len(stored) == n
	}, 5*time.Second, 20*time.Millisecond)

	got := lo.Map(stored, func(m room.Message, _ int) string { return m.Text })
	req.Equal(want, got)
	for i := 1; i < n; i++ {
		req.False(stored[i].SentAt.Before(stored[i-1].SentAt), "message %d sent before %d", i, i-1)
	}
}

func TestSession_FullRoomSync(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t)
	alice, _ := env.start(t, "alice", "")
	waitFor(t, alice, "alice joined", func(v view.Snapshot) bool { return v.State == string(Joined) })
	bob, _ := env.start(t, "bob", "")
	waitFor(t, bob, "bob joined", func(v view.Snapshot) bool { return v.State == string(Joined) })

	bob.Send("one")
	bob.Send("two")
	snap := waitFor(t, alice, "both messages", func(v view.Snapshot) bool { return len(v.Rows) == 2 })
	req.Equal([]string{"one", "two"}, texts(snap))
	req.Equal([]string{"alice", "bob"}, snap.Members)

	// A row that rewrites history replaces the local list exactly.
	only := []room.Message{room.NewMessage("carol", "replaced", "")}
	_, err := env.store.Update(context.Background(), sessionID, room.Patch{Messages: &only})
	req.NoError(err)
	snap = waitFor(t, alice, "replaced list", func(v view.Snapshot) bool { return len(v.Rows) == 1 })
	req.Equal([]string{"replaced"}, texts(snap))
	req.Equal(only[0].ID, snap.Rows[0].ID)
}

func TestSession_ConcurrentJoinsBothListed(t *testing.T) {
	env := newTestEnv(t)
	alice, _ := env.start(t, "alice", "")
	bob, _ := env.start(t, "bob", "")

	for _, s := range []*Session{alice, bob} {
		waitFor(t, s, "both members", func(v view.Snapshot) bool {
			return len(v.Members) == 2 && lo.Every(v.Members, []string{"alice", "bob"})
		})
	}
}

func TestSession_LeaveRemovesMember(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t)
	alice, stopAlice := env.start(t, "alice", "")
	waitFor(t, alice, "alice joined", func(v view.Snapshot) bool { return v.State == string(Joined) })
	bob, _ := env.start(t, "bob", "")
	waitFor(t, bob, "bob sees alice", func(v view.Snapshot) bool { return len(v.Members) == 2 })

	stopAlice()
	last := waitFor(t, alice, "alice left", func(v view.Snapshot) bool { return v.State == string(Left) })
	req.Empty(last.Rows)
	<-alice.Done()
	req.Zero(alice.cache.Len())

	snap := waitFor(t, bob, "alice gone", func(v view.Snapshot) bool { return len(v.Members) == 1 })
	req.Equal([]string{"bob"}, snap.Members)
}

type brokenStore struct{}

func (brokenStore) Get(context.Context, string) (*room.Room, error) {
	return nil, errors.New("connection refused")
}
func (brokenStore) Insert(context.Context, room.Room) error { return errors.New("connection refused") }
func (brokenStore) Update(context.Context, string, room.Patch) (*room.Room, error) {
	return nil, errors.New("connection refused")
}

func TestSession_JoinFailsOpen(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t)
	s, _ := env.startWith(t, brokenStore{}, "alice", "")

	snap := waitFor(t, s, "joined anyway", func(v view.Snapshot) bool { return v.State == string(Joined) })
	req.Empty(snap.Rows)
	req.Empty(snap.Members)
}

func TestSession_IgnoresOlderRows(t *testing.T) {
	req := require.New(t)
	s := NewSession(SessionConfig{SessionID: sessionID, Username: "alice", Log: slog.Default()})

	newer := room.Room{SessionID: sessionID, Members: []string{"alice", "bob"}, Version: 3}
	older := room.Room{SessionID: sessionID, Members: []string{"alice"}, Version: 2}

	req.True(s.applyRow(newer))
	req.False(s.applyRow(older))
	req.Equal([]string{"alice", "bob"}, s.members)

	// Deliver keeps only the highest pending version.
	s.Deliver(newer)
	s.Deliver(older)
	s.Deliver(room.Room{SessionID: "other-room", Version: 99})
	req.Equal(int64(3), s.takeRow().Version)
	req.Nil(s.takeRow())
}
