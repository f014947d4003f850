package console

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/go-i2p/go-echochat/lib/notify"
)

var (
	promptStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("170")).Bold(true)
	headerStyle  = lipgloss.NewStyle().Bold(true)
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	infoStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	addressStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))

	kindStyles = map[notify.Kind]lipgloss.Style{
		notify.KindConnected:    lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		notify.KindMessage:      lipgloss.NewStyle().Foreground(lipgloss.Color("39")),
		notify.KindDisconnected: lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		notify.KindError:        errorStyle,
		notify.KindCleanup:      infoStyle,
		notify.KindInfo:         infoStyle,
	}
)

// painter applies styles only when enabled, so piped output stays plain.
type painter struct {
	enabled bool
}

func (p painter) paint(style lipgloss.Style, text string) string {
	if !p.enabled {
		return text
	}
	return style.Render(text)
}

func (p painter) notification(n notify.Notification) string {
	style, ok := kindStyles[n.Kind]
	if !ok {
		return n.Text
	}
	return p.paint(style, n.Text)
}
