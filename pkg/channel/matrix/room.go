package matrix

import (
	"context"
	"fmt"

	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"
)

type roomClient interface {
	JoinedMembers(ctx context.Context, roomID id.RoomID) (*mautrix.RespJoinedMembers, error)
	GetEvent(ctx context.Context, roomID id.RoomID, eventID id.EventID) (*event.Event, error)
}

// room answers parser lookups against the homeserver.
type room struct {
	client roomClient
	roomID id.RoomID
}

func (r *room) Members(ctx context.Context) ([]string, error) {
	resp, err := r.client.JoinedMembers(ctx, r.roomID)
	if err != nil {
		return nil, fmt.Errorf("list members of %s: %w", r.roomID, err)
	}

	members := make([]string, 0, len(resp.Joined))
	for userID := range resp.Joined {
		members = append(members, userID.String())
	}

	return members, nil
}

func (r *room) EventSender(ctx context.Context, eventID string) (string, error) {
	evt, err := r.client.GetEvent(ctx, r.roomID, id.EventID(eventID))
	if err != nil {
		return "", fmt.Errorf("fetch event %s: %w", eventID, err)
	}

	return evt.Sender.String(), nil
}

type inviteClient interface {
	JoinRoomByID(ctx context.Context, roomID id.RoomID) (*mautrix.RespJoinRoom, error)
	SendMessageEvent(ctx context.Context, roomID id.RoomID, eventType event.Type, contentJSON any, extra ...mautrix.ReqSendEvent) (*mautrix.RespSendEvent, error)
}

// invite is one pending room invite handed to the join supervisor.
type invite struct {
	client  inviteClient
	roomID  id.RoomID
	welcome string
}

func (i *invite) Join(ctx context.Context) error {
	_, err := i.client.JoinRoomByID(ctx, i.roomID)
	return err
}

func (i *invite) Welcome(ctx context.Context) error {
	if i.welcome == "" {
		return nil
	}

	_, err := i.client.SendMessageEvent(ctx, i.roomID, event.EventMessage, &event.MessageEventContent{
		MsgType: event.MsgText,
		Body:    i.welcome,
	})
	return err
}
