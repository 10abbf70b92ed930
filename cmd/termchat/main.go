// termchat is a terminal guest for a polyglot-chat server.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"polyglot-chat/internal/user"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/gorilla/websocket"
	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/cobra"
)

// Config is read from TERMCHAT_* variables; flags win over the environment.
// No field carries an envconfig tag: a tagged name is also looked up without
// the prefix, which would pick up the shell's USER and LANGUAGE.
type Config struct {
	Server   string `default:"http://localhost:8080"`
	User     string
	Session  string
	APIKey   string `split_words:"true"`
	Language string
}

func loadConfig() (Config, error) {
	var cfg Config
	err := envconfig.Process("termchat", &cfg)
	return cfg, err
}

func newRootCmd() *cobra.Command {
	cfg, envErr := loadConfig()

	root := &cobra.Command{
		Use:   "termchat",
		Short: "Chat in your own language from the terminal",
		Long: `termchat joins a polyglot-chat room and shows every message translated
into the language you pick.

Leave --session empty to open a new room; share the printed session id so
others can join it.

Inside the chat:
  /lang <code>            switch display language (original shows source text)
  /key <api key>          set your translation API key
  /addlang <name> <code>  add a language to your picker
  /quit                   leave the room`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if envErr != nil {
				return fmt.Errorf("config error: %w", envErr)
			}
			if strings.TrimSpace(cfg.User) == "" {
				return fmt.Errorf("a display name is required (--user or TERMCHAT_USER)")
			}
			return runChat(cfg)
		},
	}

	root.Flags().StringVar(&cfg.Server, "server", cfg.Server, "Server base URL")
	root.Flags().StringVarP(&cfg.User, "user", "u", cfg.User, "Display name")
	root.Flags().StringVarP(&cfg.Session, "session", "s", cfg.Session, "Session id to join (empty creates one)")
	root.Flags().StringVar(&cfg.APIKey, "api-key", cfg.APIKey, "Translation API key")
	root.Flags().StringVarP(&cfg.Language, "lang", "l", cfg.Language, "Initial display language code")

	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "termchat: %v\n", err)
		os.Exit(1)
	}
}

func runChat(cfg Config) error {
	joined, err := join(cfg.Server, cfg.User, cfg.Session)
	if err != nil {
		return err
	}

	wsURL, err := buildWebsocketURL(cfg.Server, joined.AccessToken)
	if err != nil {
		return err
	}
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, http.Header{})
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer conn.Close()

	model := newChatModel(conn, joined)
	// Preferences are applied before the first keystroke.
	if cfg.APIKey != "" {
		model.queue(fmt.Sprintf("/key %s", cfg.APIKey))
	}
	if cfg.Language != "" {
		model.queue("/lang " + cfg.Language)
	}

	_, err = tea.NewProgram(model, tea.WithAltScreen()).Run()
	fmt.Printf("session: %s\n", joined.SessionID)
	return err
}

func join(server, username, sessionID string) (*user.JoinResponse, error) {
	body, err := json.Marshal(user.JoinRequest{Username: username, SessionID: sessionID})
	if err != nil {
		return nil, err
	}
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Post(strings.TrimRight(server, "/")+"/api/sessions", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("join: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("join: server returned %s", resp.Status)
	}
	var out user.JoinResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("join: decode response: %w", err)
	}
	return &out, nil
}

func buildWebsocketURL(server, token string) (string, error) {
	u, err := url.Parse(server)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http", "":
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	u.RawQuery = url.Values{"token": {token}}.Encode()
	return u.String(), nil
}
