package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"polyglot-chat/internal/chat"
	"polyglot-chat/internal/user"
	"polyglot-chat/internal/view"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/gorilla/websocket"
)

type (
	snapshotMsg  view.Snapshot
	serverErrMsg string
	errorMsg     struct{ err error }
)

var noticeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF7AB6")).Italic(true)

type chatModel struct {
	conn      *websocket.Conn
	writeMu   sync.Mutex
	input     textinput.Model
	joined    *user.JoinResponse
	snapshot  *view.Snapshot
	notice    string
	width     int
	pending   []string
	connError error
}

func newChatModel(conn *websocket.Conn, joined *user.JoinResponse) *chatModel {
	ti := textinput.New()
	ti.Placeholder = "Type a message… (/lang es, /key …, /quit)"
	ti.Prompt = "> "
	ti.CharLimit = 2000
	ti.Focus()
	return &chatModel{conn: conn, input: ti, joined: joined, width: 80}
}

// queue stores a line to send once the program starts.
func (m *chatModel) queue(line string) {
	m.pending = append(m.pending, line)
}

func (m *chatModel) Init() tea.Cmd {
	cmds := []tea.Cmd{textinput.Blink, m.readOnceCmd()}
	for _, line := range m.pending {
		if in, err := parseInput(line); err == nil {
			cmds = append(cmds, m.sendCmd(in))
		}
	}
	m.pending = nil
	return tea.Batch(cmds...)
}

func (m *chatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch typed := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = typed.Width
		m.input.Width = typed.Width - 4
		return m, nil

	case tea.KeyMsg:
		switch typed.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, m.quit()
		case tea.KeyEnter:
			in, err := parseInput(m.input.Value())
			m.input.SetValue("")
			if errors.Is(err, errQuit) {
				return m, m.quit()
			}
			if err != nil {
				m.notice = err.Error()
				return m, nil
			}
			m.notice = ""
			return m, m.sendCmd(in)
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(typed)
		return m, cmd

	case snapshotMsg:
		s := view.Snapshot(typed)
		m.snapshot = &s
		return m, m.readOnceCmd()

	case serverErrMsg:
		m.notice = string(typed)
		return m, m.readOnceCmd()

	case errorMsg:
		m.connError = typed.err
		return m, tea.Quit
	}
	return m, nil
}

func (m *chatModel) View() string {
	body := fmt.Sprintf("Joining %s as %s…", m.joined.SessionID, m.joined.Username)
	if m.snapshot != nil {
		body = view.Render(*m.snapshot, m.width)
	}
	out := body + "\n" + m.input.View()
	if m.notice != "" {
		out += "\n" + noticeStyle.Render(m.notice)
	}
	if m.connError != nil {
		out += "\n" + noticeStyle.Render("connection closed: "+m.connError.Error())
	}
	return out + "\n"
}

func (m *chatModel) quit() tea.Cmd {
	m.writeMu.Lock()
	_ = m.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "client quit"))
	m.writeMu.Unlock()
	return tea.Quit
}

// readOnceCmd reads until one displayable frame arrives; Update schedules
// the next read.
func (m *chatModel) readOnceCmd() tea.Cmd {
	return func() tea.Msg {
		for {
			messageType, payload, err := m.conn.ReadMessage()
			if err != nil {
				return errorMsg{err: err}
			}
			if messageType != websocket.TextMessage {
				continue
			}
			var out chat.Outbound
			if err := json.Unmarshal(payload, &out); err != nil {
				return serverErrMsg("unreadable frame from server")
			}
			switch {
			case out.Type == chat.FrameSnapshot && out.Snapshot != nil:
				return snapshotMsg(*out.Snapshot)
			case out.Type == chat.FrameError:
				return serverErrMsg(out.Error)
			}
		}
	}
}

func (m *chatModel) sendCmd(in chat.Inbound) tea.Cmd {
	return func() tea.Msg {
		encoded, err := json.Marshal(in)
		if err != nil {
			return errorMsg{err: err}
		}
		m.writeMu.Lock()
		err = m.conn.WriteMessage(websocket.TextMessage, encoded)
		m.writeMu.Unlock()
		if err != nil {
			return errorMsg{err: err}
		}
		return nil
	}
}
