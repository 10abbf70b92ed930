// Package reconcile keeps a session's translation cache in step with its
// message list and display language.
//
// A reconciliation pass requests every (message, language) pair that is
// neither cached nor already in flight, runs all requests concurrently and
// hands back the whole batch at once. Passes are tagged with the generation
// current when they were planned; switching language starts a new
// generation and the results of older ones are dropped on Apply.
package reconcile

import (
	"context"
	"errors"
	"log/slog"

	"polyglot-chat/internal/cache"
	"polyglot-chat/internal/language"
	"polyglot-chat/internal/room"
	"polyglot-chat/internal/translate"

	"golang.org/x/sync/errgroup"
)

// FailedSuffix marks a translation that could not be fetched. The entry is
// cached as is and never retried.
const FailedSuffix = " (translation failed)"

type Request struct {
	Key  cache.Key
	Text string
}

// Missing lists the pairs a pass has to fetch for language. Keys in inflight
// are skipped. The result is empty for the original language.
func Missing(messages []room.Message, lang string, c *cache.Cache, inflight map[cache.Key]struct{}) []Request {
	if lang == "" || lang == language.Original {
		return nil
	}
	var out []Request
	seen := make(map[string]struct{}, len(messages))
	for _, m := range messages {
		if _, dup := seen[m.ID]; dup {
			continue
		}
		seen[m.ID] = struct{}{}

		key := cache.Key{MessageID: m.ID, Language: lang}
		if _, ok := c.Get(key); ok {
			continue
		}
		if _, ok := inflight[key]; ok {
			continue
		}
		out = append(out, Request{Key: key, Text: m.Text})
	}
	return out
}

// Controller plans and settles passes for one session. It is owned by the
// session's event loop and must not be shared between goroutines; only
// Pass.Run is meant to execute elsewhere.
type Controller struct {
	translator translate.Translator
	log        *slog.Logger

	apiKey      string
	language    string
	generation  uint64
	inflight    map[cache.Key]struct{}
	outstanding int
}

func NewController(t translate.Translator, log *slog.Logger) *Controller {
	return &Controller{
		translator: t,
		log:        log,
		language:   language.Original,
		inflight:   make(map[cache.Key]struct{}),
	}
}

func (c *Controller) SetAPIKey(key string) { c.apiKey = key }

func (c *Controller) HasAPIKey() bool { return c.apiKey != "" }

func (c *Controller) Language() string { return c.language }

func (c *Controller) Generation() uint64 { return c.generation }

// SetLanguage starts a new generation when lang differs from the current one.
func (c *Controller) SetLanguage(lang string) bool {
	if lang == c.language {
		return false
	}
	c.language = lang
	c.generation++
	c.inflight = make(map[cache.Key]struct{})
	c.outstanding = 0
	return true
}

// Translating reports whether a pass of the current generation is still running.
func (c *Controller) Translating() bool { return c.outstanding > 0 }

// Plan returns the next pass, or nil when there is nothing to fetch.
// A non-original language without an api key yields ErrMissingCredentials
// and no pass.
func (c *Controller) Plan(messages []room.Message, lang string, cc *cache.Cache) (*Pass, error) {
	c.SetLanguage(lang)
	if lang == language.Original {
		return nil, nil
	}
	if c.apiKey == "" {
		return nil, translate.ErrMissingCredentials
	}

	reqs := Missing(messages, lang, cc, c.inflight)
	if len(reqs) == 0 {
		return nil, nil
	}
	for _, r := range reqs {
		c.inflight[r.Key] = struct{}{}
	}
	c.outstanding++

	return &Pass{
		Generation: c.generation,
		Language:   lang,
		Requests:   reqs,
		apiKey:     c.apiKey,
		translator: c.translator,
		log:        c.log,
	}, nil
}

// Apply merges a settled pass into the cache in one batch. Results from a
// superseded generation are discarded and Apply returns false.
func (c *Controller) Apply(res Result, cc *cache.Cache) bool {
	if res.Generation != c.generation {
		c.log.Debug("dropping stale pass", "generation", res.Generation, "current", c.generation, "lang", res.Language)
		return false
	}
	for k := range res.Entries {
		delete(c.inflight, k)
	}
	if c.outstanding > 0 {
		c.outstanding--
	}
	cc.PutAll(res.Entries)
	return true
}

// Pass is one batch of outbound translation calls.
type Pass struct {
	Generation uint64
	Language   string
	Requests   []Request

	apiKey     string
	translator translate.Translator
	log        *slog.Logger
}

type Result struct {
	Generation uint64
	Language   string
	Entries    map[cache.Key]cache.Entry
	Failed     int
}

// Run issues every request at once and waits for all of them. A failed call
// becomes the original text with FailedSuffix.
func (p *Pass) Run(ctx context.Context) Result {
	entries := make([]cache.Entry, len(p.Requests))

	var g errgroup.Group
	for i, r := range p.Requests {
		g.Go(func() error {
			out, err := p.translator.Translate(ctx, r.Text, r.Key.Language, p.apiKey)
			if err == nil && out == "" {
				err = errors.New("empty translation")
			}
			if err != nil {
				p.log.Warn("translation failed", "message", r.Key.MessageID, "lang", r.Key.Language, "error", err)
				entries[i] = cache.Entry{Text: r.Text + FailedSuffix, Failed: true}
				return nil
			}
			entries[i] = cache.Entry{Text: out}
			return nil
		})
	}
	_ = g.Wait()

	res := Result{
		Generation: p.Generation,
		Language:   p.Language,
		Entries:    make(map[cache.Key]cache.Entry, len(p.Requests)),
	}
	for i, r := range p.Requests {
		res.Entries[r.Key] = entries[i]
		if entries[i].Failed {
			res.Failed++
		}
	}
	return res
}
