package translate

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	DefaultBaseURL     = "https://api.two.ai/v2"
	DefaultModel       = "sutra-v2"
	DefaultTemperature = 0.3
)

// Namer resolves a language code to the name the prompt asks for.
type Namer interface {
	Name(code string) string
}

// Provider describes an OpenAI-compatible chat completions endpoint.
type Provider struct {
	BaseURL     string
	Model       string
	Temperature float64
	Timeout     time.Duration
}

// Client calls the provider once per text. It never retries: a failed
// call is reported to the caller, which decides what to show.
type Client struct {
	prov  Provider
	names Namer
	http  *http.Client
}

func NewClient(prov Provider, names Namer) *Client {
	if prov.BaseURL == "" {
		prov.BaseURL = DefaultBaseURL
	}
	if prov.Model == "" {
		prov.Model = DefaultModel
	}
	if prov.Temperature == 0 {
		prov.Temperature = DefaultTemperature
	}
	if prov.Timeout == 0 {
		prov.Timeout = 30 * time.Second
	}
	return &Client{
		prov:  prov,
		names: names,
		http:  &http.Client{Timeout: prov.Timeout},
	}
}

func (c *Client) Translate(ctx context.Context, text, language, apiKey string) (string, error) {
	resp, err := c.call(ctx, text, language, apiKey, false)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading provider response: %w", err)
	}
	out, err := extractText(respBody)
	if err != nil {
		return "", err
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", ErrNoTranslation
	}
	return out, nil
}

// Stream asks the provider for a streamed completion and hands every
// non-empty content delta to emit, in order. An error from emit stops the read.
func (c *Client) Stream(ctx context.Context, text, language, apiKey string, emit func(chunk string) error) error {
	resp, err := c.call(ctx, text, language, apiKey, true)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		data, ok := strings.CutPrefix(line, "data:")
		if !ok {
			continue
		}
		data = strings.TrimSpace(data)
		if data == "[DONE]" {
			return nil
		}
		chunk, err := extractDelta([]byte(data))
		if err != nil {
			return err
		}
		if chunk == "" {
			continue
		}
		if err := emit(chunk); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading provider stream: %w", err)
	}
	return nil
}

// call sends the completion request and returns the response when the
// provider answered 200. The caller closes the body.
func (c *Client) call(ctx context.Context, text, language, apiKey string, stream bool) (*http.Response, error) {
	if apiKey == "" {
		return nil, ErrMissingCredentials
	}
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}

	name := language
	if c.names != nil {
		name = c.names.Name(language)
	}
	body, err := buildChatRequest(c.prov.Model, Prompt(text, name), c.prov.Temperature, stream)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint(c.prov.BaseURL), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)
	if stream {
		req.Header.Set("Accept", "text/event-stream")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("provider request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		detail := providerMessage(respBody)
		if detail == "" {
			detail = truncate(string(respBody), 200)
		}
		return nil, fmt.Errorf("provider returned status %d: %s", resp.StatusCode, detail)
	}
	return resp, nil
}

// Prompt asks for the bare translation with no commentary.
func Prompt(text, languageName string) string {
	return fmt.Sprintf(`Translate the following text to %s. Return only the translated text without additional commentary: "%s" Also don't include any other text in your response.`, languageName, text)
}

func endpoint(baseURL string) string {
	baseURL = strings.TrimRight(baseURL, "/")
	if strings.HasSuffix(baseURL, "/chat/completions") {
		return baseURL
	}
	return baseURL + "/chat/completions"
}

func buildChatRequest(model, prompt string, temperature float64, stream bool) ([]byte, error) {
	type msg struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}
	req := struct {
		Model       string  `json:"model"`
		Messages    []msg   `json:"messages"`
		Temperature float64 `json:"temperature"`
		Stream      bool    `json:"stream"`
	}{
		Model:       model,
		Messages:    []msg{{Role: "user", Content: prompt}},
		Temperature: temperature,
		Stream:      stream,
	}
	return json.Marshal(req)
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// extractText returns choices[0].message.content or the provider's error message.
func extractText(body []byte) (string, error) {
	var r chatResponse
	if err := json.Unmarshal(body, &r); err != nil {
		return "", fmt.Errorf("invalid JSON response: %w", err)
	}
	if r.Error != nil && r.Error.Message != "" {
		return "", fmt.Errorf("provider error: %s", r.Error.Message)
	}
	if len(r.Choices) == 0 {
		return "", fmt.Errorf("no choices in response: %s", truncate(string(body), 200))
	}
	return r.Choices[0].Message.Content, nil
}

type chatChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// extractDelta returns choices[0].delta.content of one stream event.
func extractDelta(data []byte) (string, error) {
	var c chatChunk
	if err := json.Unmarshal(data, &c); err != nil {
		return "", fmt.Errorf("invalid stream event: %w", err)
	}
	if c.Error != nil && c.Error.Message != "" {
		return "", fmt.Errorf("provider error: %s", c.Error.Message)
	}
	if len(c.Choices) == 0 {
		return "", nil
	}
	return c.Choices[0].Delta.Content, nil
}

func providerMessage(body []byte) string {
	var r chatResponse
	if json.Unmarshal(body, &r) != nil || r.Error == nil {
		return ""
	}
	return r.Error.Message
}

// truncate keeps at most n bytes of s without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
