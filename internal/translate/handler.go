package translate

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	myMiddleware "polyglot-chat/internal/middleware"

	"github.com/go-playground/validator/v10"
)

type Request struct {
	Text           string `json:"text" validate:"required,max=4000"`
	TargetLanguage string `json:"targetLanguage" validate:"required,max=64"`
	SutraAPIKey    string `json:"sutraApiKey"`
	// Stream returns the translation as chunked plain text.
	Stream bool `json:"stream"`
}

type Response struct {
	TranslatedText string `json:"translatedText"`
}

// Handler forwards a single translation to the provider. Authenticated
// guests that send no key use the server's default credential; anonymous
// callers must bring their own.
type Handler struct {
	translator Translator
	streamer   Streamer
	defaultKey string
	validate   *validator.Validate
	log        *slog.Logger
}

// NewHandler builds the forwarding handler. streamer may be nil, in which
// case stream requests are rejected.
func NewHandler(t Translator, streamer Streamer, defaultKey string, log *slog.Logger) *Handler {
	return &Handler{
		translator: t,
		streamer:   streamer,
		defaultKey: defaultKey,
		validate:   validator.New(),
		log:        log,
	}
}

func (h *Handler) Translate(w http.ResponseWriter, r *http.Request) {
	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		http.Error(w, "Missing required parameters", http.StatusBadRequest)
		return
	}

	key := req.SutraAPIKey
	if key == "" && myMiddleware.Authenticated(r.Context()) {
		key = h.defaultKey
	}
	if key == "" {
		http.Error(w, "missing api key", http.StatusUnauthorized)
		return
	}

	if req.Stream {
		h.stream(w, r, req, key)
		return
	}

	out, err := h.translator.Translate(r.Context(), req.Text, req.TargetLanguage, key)
	if err != nil {
		h.fail(w, req, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(Response{TranslatedText: out})
}

// stream writes provider deltas as they arrive. Once the first chunk is out
// the status is committed, so later failures only end the body early.
func (h *Handler) stream(w http.ResponseWriter, r *http.Request, req Request, key string) {
	if h.streamer == nil {
		http.Error(w, "streaming not supported", http.StatusBadRequest)
		return
	}
	flusher, _ := w.(http.Flusher)

	started := false
	err := h.streamer.Stream(r.Context(), req.Text, req.TargetLanguage, key, func(chunk string) error {
		if !started {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			w.WriteHeader(http.StatusOK)
			started = true
		}
		if _, err := w.Write([]byte(chunk)); err != nil {
			return err
		}
		if flusher != nil {
			flusher.Flush()
		}
		return nil
	})
	switch {
	case err == nil && !started:
		h.fail(w, req, ErrNoTranslation)
	case err != nil && !started:
		h.fail(w, req, err)
	case err != nil:
		h.log.Warn("translation stream cut short", "lang", req.TargetLanguage, "error", err)
	}
}

func (h *Handler) fail(w http.ResponseWriter, req Request, err error) {
	switch {
	case errors.Is(err, ErrMissingCredentials):
		http.Error(w, "missing api key", http.StatusUnauthorized)
	case errors.Is(err, ErrEmptyText):
		http.Error(w, "Missing required parameters", http.StatusBadRequest)
	default:
		h.log.Warn("translation failed", "lang", req.TargetLanguage, "error", err)
		http.Error(w, "Failed to translate text", http.StatusBadGateway)
	}
}
