package cmd

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"tipbot/pkg/bus"
	"tipbot/pkg/channel"
	"tipbot/pkg/channel/console"
	"tipbot/pkg/logger"
)

func TestConsoleSendMapsFailuresAndImages(t *testing.T) {
	t.Parallel()

	adapter, err := console.NewAdapter(console.Options{Sender: "@me:localhost"}, strings.NewReader(""), &strings.Builder{}, logger.Discard())
	require.NoError(t, err)

	handler := func(_ context.Context, _ channel.Room, inbound bus.InboundMessage) (bus.OutboundMessage, error) {
		if inbound.Content == "!invoice 5" {
			return bus.OutboundMessage{Content: "lnbc50n1", Image: []byte("png")}, nil
		}
		return bus.OutboundMessage{Error: "I seem to be experiencing a problem please try again later"}, nil
	}
	send := consoleSend(adapter, handler)

	reply, err := send(context.Background(), "!invoice 5")
	require.NoError(t, err)
	require.Equal(t, "lnbc50n1", reply.Text)
	require.False(t, reply.Failed)
	require.Contains(t, reply.Note, "--qr-dir")

	reply, err = send(context.Background(), "!balance")
	require.NoError(t, err)
	require.True(t, reply.Failed)
}
