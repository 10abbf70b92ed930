package reconcile_test

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"polyglot-chat/internal/cache"
	"polyglot-chat/internal/language"
	"polyglot-chat/internal/mocks"
	"polyglot-chat/internal/reconcile"
	"polyglot-chat/internal/room"
	"polyglot-chat/internal/translate"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

var discard = slog.New(slog.DiscardHandler)

func englishRoom() []room.Message {
	return []room.Message{
		room.NewMessage("alice", "good morning", "en"),
		room.NewMessage("bob", "how are you", "en"),
		room.NewMessage("alice", "see you later", "en"),
	}
}

var spanish = map[string]string{
	"good morning":  "buenos días",
	"how are you":   "cómo estás",
	"see you later": "hasta luego",
	"new plan":      "nuevo plan",
}

func newController(t *testing.T) (*reconcile.Controller, *mocks.MockTranslator) {
	t.Helper()
	tr := mocks.NewMockTranslator(gomock.NewController(t))
	c := reconcile.NewController(tr, discard)
	c.SetAPIKey("sk-test")
	return c, tr
}

func TestController_ThreeMessagesTranslatedConcurrently(t *testing.T) {
	req := require.New(t)
	c, tr := newController(t)
	cc := cache.New()
	msgs := englishRoom()

	// Every call blocks until all three have started.
	var started sync.WaitGroup
	started.Add(3)
	all := make(chan struct{})
	go func() { started.Wait(); close(all) }()

	tr.EXPECT().Translate(gomock.Any(), gomock.Any(), "es", "sk-test").
		DoAndReturn(func(_ context.Context, text, _, _ string) (string, error) {
			started.Done()
			select {
			case <-all:
			case <-time.After(2 * time.Second):
				return "", errors.New("calls were not concurrent")
			}
			return spanish[text], nil
		}).Times(3)

	pass, err := c.Plan(msgs, "es", cc)
	req.NoError(err)
	req.NotNil(pass)
	req.Len(pass.Requests, 3)
	req.True(c.Translating())

	res := pass.Run(context.Background())
	req.Zero(res.Failed)
	req.True(c.Apply(res, cc))

	req.False(c.Translating())
	req.Equal(3, cc.Len())
	for _, m := range msgs {
		e, ok := cc.Get(cache.Key{MessageID: m.ID, Language: "es"})
		req.True(ok)
		req.NotEmpty(e.Text)
		req.Equal(spanish[m.Text], e.Text)
	}
}

func TestController_IdempotentWhenNothingChanged(t *testing.T) {
	req := require.New(t)
	c, tr := newController(t)
	cc := cache.New()
	msgs := englishRoom()

	tr.EXPECT().Translate(gomock.Any(), gomock.Any(), "es", gomock.Any()).
		DoAndReturn(func(_ context.Context, text, _, _ string) (string, error) {
			return spanish[text], nil
		}).Times(3)

	pass, err := c.Plan(msgs, "es", cc)
	req.NoError(err)
	req.True(c.Apply(pass.Run(context.Background()), cc))

	for i := 0; i < 2; i++ {
		pass, err = c.Plan(msgs, "es", cc)
		req.NoError(err)
		req.Nil(pass)
	}
}

func TestController_NewMessageOnlyTranslatesItself(t *testing.T) {
	req := require.New(t)
	c, tr := newController(t)
	cc := cache.New()
	msgs := englishRoom()

	tr.EXPECT().Translate(gomock.Any(), gomock.Any(), "es", gomock.Any()).
		DoAndReturn(func(_ context.Context, text, _, _ string) (string, error) {
			return spanish[text], nil
		}).Times(4)

	pass, err := c.Plan(msgs, "es", cc)
	req.NoError(err)
	c.Apply(pass.Run(context.Background()), cc)

	fresh := room.NewMessage("carol", "new plan", "en")
	msgs = append(msgs, fresh)

	pass, err = c.Plan(msgs, "es", cc)
	req.NoError(err)
	req.Len(pass.Requests, 1)
	req.Equal(fresh.ID, pass.Requests[0].Key.MessageID)

	c.Apply(pass.Run(context.Background()), cc)
	e, ok := cc.Get(cache.Key{MessageID: fresh.ID, Language: "es"})
	req.True(ok)
	req.Equal("nuevo plan", e.Text)
	req.Equal(4, cc.Len())
}

func TestController_FailureCachedWithSuffix(t *testing.T) {
	req := require.New(t)
	c, tr := newController(t)
	cc := cache.New()
	msgs := englishRoom()[:1]

	tr.EXPECT().Translate(gomock.Any(), "good morning", "es", gomock.Any()).
		Return("", errors.New("provider error: rate limited"))

	pass, err := c.Plan(msgs, "es", cc)
	req.NoError(err)
	res := pass.Run(context.Background())
	req.Equal(1, res.Failed)
	c.Apply(res, cc)

	e, ok := cc.Get(cache.Key{MessageID: msgs[0].ID, Language: "es"})
	req.True(ok)
	req.True(e.Failed)
	req.Equal("good morning (translation failed)", e.Text)

	// Failed entries are terminal: no retry on the next pass.
	pass, err = c.Plan(msgs, "es", cc)
	req.NoError(err)
	req.Nil(pass)
}

func TestController_EmptyTranslationCountsAsFailure(t *testing.T) {
	req := require.New(t)
	c, tr := newController(t)
	cc := cache.New()
	msgs := englishRoom()[:1]
	tr.EXPECT().Translate(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return("", nil)

	pass, err := c.Plan(msgs, "es", cc)
	req.NoError(err)
	c.Apply(pass.Run(context.Background()), cc)

	e, _ := cc.Get(cache.Key{MessageID: msgs[0].ID, Language: "es"})
	req.True(e.Failed)
}

func TestController_StaleGenerationDiscarded(t *testing.T) {
	req := require.New(t)
	c, tr := newController(t)
	cc := cache.New()
	msgs := englishRoom()

	tr.EXPECT().Translate(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, text, lang, _ string) (string, error) {
			return lang + ":" + text, nil
		}).Times(6)

	esPass, err := c.Plan(msgs, "es", cc)
	req.NoError(err)

	hiPass, err := c.Plan(msgs, "hi", cc)
	req.NoError(err)
	req.Greater(hiPass.Generation, esPass.Generation)

	// The Spanish pass settles last but no longer matters.
	hiRes := hiPass.Run(context.Background())
	esRes := esPass.Run(context.Background())
	req.True(c.Apply(hiRes, cc))
	req.False(c.Apply(esRes, cc))

	req.Equal(3, cc.Len())
	_, ok := cc.Get(cache.Key{MessageID: msgs[0].ID, Language: "es"})
	req.False(ok)
	req.False(c.Translating())
}

func TestController_InFlightKeysNotRequestedTwice(t *testing.T) {
	req := require.New(t)
	c, tr := newController(t)
	cc := cache.New()
	msgs := englishRoom()

	tr.EXPECT().Translate(gomock.Any(), gomock.Any(), "es", gomock.Any()).
		DoAndReturn(func(_ context.Context, text, _, _ string) (string, error) {
			return spanish[text], nil
		}).Times(4)

	first, err := c.Plan(msgs, "es", cc)
	req.NoError(err)

	// Nothing new while the first pass is outstanding.
	again, err := c.Plan(msgs, "es", cc)
	req.NoError(err)
	req.Nil(again)

	fresh := room.NewMessage("carol", "new plan", "en")
	second, err := c.Plan(append(msgs, fresh), "es", cc)
	req.NoError(err)
	req.Len(second.Requests, 1)

	c.Apply(second.Run(context.Background()), cc)
	req.True(c.Translating())
	c.Apply(first.Run(context.Background()), cc)
	req.False(c.Translating())
	req.Equal(4, cc.Len())
}

func TestController_MissingCredentials(t *testing.T) {
	req := require.New(t)
	tr := mocks.NewMockTranslator(gomock.NewController(t))
	c := reconcile.NewController(tr, discard)

	pass, err := c.Plan(englishRoom(), "es", cache.New())
	req.ErrorIs(err, translate.ErrMissingCredentials)
	req.Nil(pass)
	req.False(c.Translating())
}

func TestController_OriginalNeverPlans(t *testing.T) {
	req := require.New(t)
	c, _ := newController(t)

	pass, err := c.Plan(englishRoom(), language.Original, cache.New())
	req.NoError(err)
	req.Nil(pass)
}

func TestMissing(t *testing.T) {
	req := require.New(t)
	cc := cache.New()
	msgs := englishRoom()
	cc.PutAll(map[cache.Key]cache.Entry{{MessageID: msgs[0].ID, Language: "es"}: {Text: "buenos días"}})
	inflight := map[cache.Key]struct{}{{MessageID: msgs[1].ID, Language: "es"}: {}}

	got := reconcile.Missing(msgs, "es", cc, inflight)
	req.Len(got, 1)
	req.Equal(msgs[2].ID, got[0].Key.MessageID)
	req.Equal("see you later", got[0].Text)

	req.Len(reconcile.Missing(msgs, "hi", cc, nil), 3)
	req.Empty(reconcile.Missing(msgs, language.Original, cc, nil))

	// Same message delivered twice is requested once.
	req.Len(reconcile.Missing(append(msgs, msgs[2]), "hi", cc, nil), 3)
}
