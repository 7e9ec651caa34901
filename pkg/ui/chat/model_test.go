package chat

import (
	"context"
	"errors"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/require"
)

func TestEnterSubmitsAndRecordsReply(t *testing.T) {
	t.Parallel()

	var sent []string
	send := func(_ context.Context, text string) (Reply, error) {
		sent = append(sent, text)
		return Reply{Text: "Your balance is 12 Sats", Note: "[QR code written to /tmp/x.png]"}, nil
	}

	m := newModel(context.Background(), send, modeInteractive, "", Info{Sender: "@me:localhost"})
	m.booting = false
	m.input.SetValue("!balance")

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	require.True(t, m.isLoading)
	require.Equal(t, 1, m.commands)
	require.Empty(t, m.input.Value())

	reply, err := m.send(context.Background(), "!balance")
	m.Update(replyMsg{reply: reply, err: err})

	require.False(t, m.isLoading)
	require.Equal(t, []string{"!balance"}, sent)
	require.Len(t, m.messages, 3)
	require.Equal(t, roleBot, m.messages[1].role)
	require.Equal(t, roleNote, m.messages[2].role)
}

func TestFailedRepliesAreCounted(t *testing.T) {
	t.Parallel()

	m := newModel(context.Background(), nil, modeInteractive, "", Info{})
	m.booting = false

	m.Update(replyMsg{reply: Reply{Text: "I seem to be experiencing a problem please try again later", Failed: true}})
	m.Update(replyMsg{err: errors.New("context canceled")})

	require.Equal(t, 2, m.failures)
	require.Equal(t, "context canceled", m.lastErr)
	require.Equal(t, roleError, m.messages[0].role)
}

func TestEmptyReplyBecomesNote(t *testing.T) {
	t.Parallel()

	m := newModel(context.Background(), nil, modeInteractive, "", Info{})
	m.Update(replyMsg{})

	require.Len(t, m.messages, 1)
	require.Equal(t, roleNote, m.messages[0].role)
}

func TestExitCommandsQuit(t *testing.T) {
	t.Parallel()

	for _, input := range []string{"exit", "/exit", "QUIT", " :q "} {
		require.True(t, isExitCommand(input), input)
	}
	require.False(t, isExitCommand("!help"))
}
