package chat

import (
	"context"
	"fmt"
	"io"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Reply is what the bot answered to one line.
type Reply struct {
	Text string
	// Failed marks a user-facing failure text.
	Failed bool
	// Note is an extra hint line, e.g. where a QR code was saved.
	Note string
}

// SendFunc submits one line as the configured sender.
type SendFunc func(ctx context.Context, text string) (Reply, error)

// Info is shown in the header.
type Info struct {
	Sender  string
	Wallet  string
	Version string
}

func RunInteractive(ctx context.Context, send SendFunc, info Info, out io.Writer) error {
	model := newModel(ctx, send, modeInteractive, "", info)
	program := tea.NewProgram(model, tea.WithContext(ctx), tea.WithMouseCellMotion())
	if _, err := program.Run(); err != nil {
		return err
	}

	fmt.Fprint(out, "\033[H\033[2J")
	fmt.Fprintln(out, renderGoodbyeBanner())
	return nil
}

func RunOneShot(ctx context.Context, send SendFunc, info Info, text string) error {
	model := newModel(ctx, send, modeOneShot, text, info)
	program := tea.NewProgram(model, tea.WithContext(ctx))
	_, err := program.Run()
	return err
}

func renderGoodbyeBanner() string {
	style := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("230")).
		Background(lipgloss.Color("88")).
		Padding(1, 2)

	return style.Render("⚡ Stack sats, see you soon")
}
