package main

import (
	"errors"
	"fmt"
	"strings"

	"polyglot-chat/internal/chat"
)

var errQuit = errors.New("quit")

const helpText = "commands: /lang <code>  /key <api key>  /addlang <name> <code>  /quit"

// parseInput turns a line typed into the prompt into the frame to send.
// Plain text is a chat message; a leading slash selects a command.
func parseInput(line string) (chat.Inbound, error) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return chat.Inbound{}, errors.New("nothing to send")
	}
	if !strings.HasPrefix(trimmed, "/") {
		return chat.Inbound{Type: chat.FrameSend, Text: trimmed}, nil
	}

	fields := strings.Fields(trimmed)
	switch strings.ToLower(fields[0]) {
	case "/quit", "/exit":
		return chat.Inbound{}, errQuit
	case "/lang":
		if len(fields) != 2 {
			return chat.Inbound{}, fmt.Errorf("usage: /lang <code>")
		}
		return chat.Inbound{Type: chat.FrameLanguage, Language: fields[1]}, nil
	case "/key":
		// An empty key falls back to the server default.
		key := strings.TrimSpace(strings.TrimPrefix(trimmed, fields[0]))
		return chat.Inbound{Type: chat.FrameAPIKey, APIKey: key}, nil
	case "/addlang":
		if len(fields) < 3 {
			return chat.Inbound{}, fmt.Errorf("usage: /addlang <name> <code>")
		}
		// Names may contain spaces; the code is always the last word.
		code := fields[len(fields)-1]
		name := strings.Join(fields[1:len(fields)-1], " ")
		return chat.Inbound{Type: chat.FrameCustomLanguage, Name: name, Code: code}, nil
	default:
		return chat.Inbound{}, fmt.Errorf("unknown command %s; %s", fields[0], helpText)
	}
}
