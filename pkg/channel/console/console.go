// Package console is a line-oriented channel on stdin/stdout for trying the
// bot locally against a real wallet service.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"tipbot/pkg/bus"
	"tipbot/pkg/channel"
	"tipbot/pkg/logger"
)

const (
	channelName = "console"
	chatID      = "console"
)

// Options configures the local session.
type Options struct {
	// Sender is the chat identity every typed line is sent as.
	Sender string
	// Members are the other identities in the pretend room.
	Members []string
	// QRDir receives invoice QR images; empty skips writing them.
	QRDir string
}

type theme struct {
	prompt  lipgloss.Style
	reply   lipgloss.Style
	failure lipgloss.Style
	hint    lipgloss.Style
}

func defaultTheme() theme {
	return theme{
		prompt: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214")),
		reply: lipgloss.NewStyle().
			Border(lipgloss.NormalBorder(), false, false, false, true).
			BorderForeground(lipgloss.Color("44")).
			PaddingLeft(1),
		failure: lipgloss.NewStyle().Foreground(lipgloss.Color("203")),
		hint:    lipgloss.NewStyle().Foreground(lipgloss.Color("244")),
	}
}

// Adapter reads one message per line and prints the replies.
type Adapter struct {
	opts  Options
	in    io.Reader
	out   io.Writer
	theme theme
	log   *slog.Logger
	room  *room

	mu  sync.Mutex
	seq int
}

// Result is the outcome of one submitted line.
type Result struct {
	Outbound bus.OutboundMessage
	// QRPath is where the reply image was written, if anywhere.
	QRPath string
}

func NewAdapter(opts Options, in io.Reader, out io.Writer, log *slog.Logger) (*Adapter, error) {
	if strings.TrimSpace(opts.Sender) == "" {
		return nil, errors.New("console sender identity is required")
	}
	if in == nil {
		in = os.Stdin
	}
	if out == nil {
		out = os.Stdout
	}

	return &Adapter{
		opts:  opts,
		in:    in,
		out:   out,
		theme: defaultTheme(),
		log:   logger.Component(log, "channel.console"),
		room:  &room{members: append([]string{opts.Sender}, opts.Members...)},
	}, nil
}

func (a *Adapter) Name() string {
	return channelName
}

func (a *Adapter) Sender() string {
	return a.opts.Sender
}

// Run handles lines until the input ends or ctx is cancelled. Lines are
// handled one at a time so replies stay in order.
func (a *Adapter) Run(ctx context.Context, handler channel.Handler) error {
	if handler == nil {
		return errors.New("handler is required")
	}

	scanner := bufio.NewScanner(a.in)

	fmt.Fprintln(a.out, a.theme.hint.Render("Chatting as "+a.opts.Sender+". Type !help, Ctrl-D to quit."))

	for {
		fmt.Fprint(a.out, a.theme.prompt.Render(a.opts.Sender+"> "))

		lines := make(chan bool, 1)
		go func() { lines <- scanner.Scan() }()

		select {
		case <-ctx.Done():
			return nil
		case ok := <-lines:
			if !ok {
				fmt.Fprintln(a.out)
				return scanner.Err()
			}
		}

		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}

		a.render(a.Submit(ctx, handler, text))
	}
}

// Submit sends one line through handler as the configured sender and stores
// any reply image under QRDir.
func (a *Adapter) Submit(ctx context.Context, handler channel.Handler, text string) Result {
	a.mu.Lock()
	a.seq++
	seq := a.seq
	a.mu.Unlock()

	inbound := bus.InboundMessage{
		Channel:  channelName,
		SenderID: a.opts.Sender,
		ChatID:   chatID,
		EventID:  strconv.Itoa(seq),
		Content:  text,
	}

	outbound, err := handler(ctx, a.room, inbound)
	if err != nil {
		a.log.Error("Failed to process inbound message", "error", err)
	}

	result := Result{Outbound: outbound}
	if len(outbound.Image) == 0 || a.opts.QRDir == "" {
		return result
	}

	path := filepath.Join(a.opts.QRDir, fmt.Sprintf("invoice-%d.png", seq))
	if err := os.WriteFile(path, outbound.Image, 0o600); err != nil {
		a.log.Error("Failed to write QR code", "path", path, "error", err)
		return result
	}
	result.QRPath = path
	return result
}

func (a *Adapter) render(result Result) {
	outbound := result.Outbound
	if text := strings.TrimSpace(outbound.Content); text != "" {
		fmt.Fprintln(a.out, a.theme.reply.Render(text))
	} else if text := strings.TrimSpace(outbound.Error); text != "" {
		fmt.Fprintln(a.out, a.theme.failure.Render(text))
	}

	switch {
	case result.QRPath != "":
		fmt.Fprintln(a.out, a.theme.hint.Render("[QR code written to "+result.QRPath+"]"))
	case len(outbound.Image) > 0:
		fmt.Fprintln(a.out, a.theme.hint.Render(fmt.Sprintf("[QR code, %d bytes]", len(outbound.Image))))
	}
}

// room is the pretend conversation. There is no history, so replies to
// earlier messages cannot be resolved.
type room struct {
	members []string
}

func (r *room) Members(context.Context) ([]string, error) {
	return r.members, nil
}

func (r *room) EventSender(_ context.Context, eventID string) (string, error) {
	return "", fmt.Errorf("console has no message %s to reply to", eventID)
}
