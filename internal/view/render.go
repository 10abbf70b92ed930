package view

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	headerStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("213")).BorderStyle(lipgloss.NormalBorder()).BorderBottom(true).BorderForeground(lipgloss.Color("63")).Padding(0, 1)
	dividerStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("237")).Render(" ┃ ")
	statusStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("109"))
	busyStyle       = statusStyle.Copy().Foreground(lipgloss.Color("178")).Italic(true)
	noticeStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	timestampStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	usernameStyle   = lipgloss.NewStyle().Bold(true)
	selfStyle       = usernameStyle.Copy().Foreground(lipgloss.Color("213"))
	bodyStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("253"))
	pendingStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("244")).Italic(true)
	failedStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	sourceLangStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	emptyStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Italic(true)
	boxStyle        = lipgloss.NewStyle().BorderStyle(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("60")).Padding(0, 1)
	memberStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	palette         = []lipgloss.Color{"45", "81", "141", "98", "63", "135", "32"}
)

const membersWidth = 18

// Render draws a snapshot for a terminal of the given width.
func Render(s Snapshot, width int) string {
	header := headerStyle.Render(strings.Join([]string{
		"Room " + s.SessionID,
		"You " + s.Username,
		"Language " + s.Language,
	}, dividerStyle))

	var lines []string
	for _, r := range s.Rows {
		lines = append(lines, renderRow(r))
	}
	if len(lines) == 0 {
		lines = append(lines, emptyStyle.Render("No messages yet. Say hi and start the conversation."))
	}

	chatWidth := width - membersWidth - 4
	if chatWidth < 20 {
		chatWidth = 20
	}
	messages := boxStyle.Width(chatWidth).Render(lipgloss.JoinVertical(lipgloss.Left, lines...))

	members := []string{usernameStyle.Render(fmt.Sprintf("Members (%d)", len(s.Members)))}
	for _, m := range s.Members {
		members = append(members, memberStyle.Render("● "+m))
	}
	panel := boxStyle.Width(membersWidth).Render(lipgloss.JoinVertical(lipgloss.Left, members...))

	sections := []string{header, lipgloss.JoinHorizontal(lipgloss.Top, messages, panel)}
	if s.Translating {
		sections = append(sections, busyStyle.Render("Translating…"))
	} else {
		sections = append(sections, statusStyle.Render(s.State))
	}
	if s.Notice != "" {
		sections = append(sections, noticeStyle.Render(s.Notice))
	}
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func renderRow(r Row) string {
	ts := timestampStyle.Render(fmt.Sprintf("[%s]", r.SentAt.Local().Format("15:04")))

	nameStyle := usernameStyle.Copy().Foreground(colorFor(r.Author))
	if r.Self {
		nameStyle = selfStyle
	}

	text := strings.ReplaceAll(r.Text, "\n", "\n   ")
	var body string
	switch {
	case r.Pending:
		body = pendingStyle.Render(text)
	case r.Failed:
		body = failedStyle.Render(text)
	default:
		body = bodyStyle.Render(text)
	}

	parts := []string{ts, " ", nameStyle.Render(r.Author), ": ", body}
	if r.SourceLang != "" {
		parts = append(parts, " ", sourceLangStyle.Render("("+r.SourceLang+")"))
	}
	return lipgloss.JoinHorizontal(lipgloss.Left, parts...)
}

func colorFor(name string) lipgloss.Color {
	var sum int
	for _, r := range name {
		sum += int(r)
	}
	return palette[sum%len(palette)]
}
