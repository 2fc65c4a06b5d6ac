package main

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"github.com/hpetrik/chatproto/internal/protocol"
)

var (
	senderStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")).
			Bold(true)

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true)

	failureStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	noticeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))
)

// renderMessage formats one normalized inbound message for the console.
func renderMessage(msg protocol.NormalizedMessage) string {
	switch msg.Kind {
	case protocol.KindChat:
		return fmt.Sprintf("%s: %s", senderStyle.Render(msg.Sender), msg.Content)
	case protocol.KindReply:
		if msg.Success {
			return fmt.Sprintf("%s %s", successStyle.Render("Action Success:"), msg.Content)
		}
		return fmt.Sprintf("%s %s", failureStyle.Render("Action Failure:"), msg.Content)
	case protocol.KindError:
		return fmt.Sprintf("%s %s", errorStyle.Render("ERROR FROM "+msg.Sender+":"), msg.Content)
	case protocol.KindFarewell:
		return noticeStyle.Render(fmt.Sprintf("%s left the chat", msg.Sender))
	default:
		return noticeStyle.Render(fmt.Sprintf("unrecognized message %+v", msg))
	}
}
