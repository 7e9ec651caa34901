// Package identity resolves the recipient token of a chat command to either a
// chat identity or an external payment address.
package identity

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"tipbot/pkg/lnurl"
	"tipbot/pkg/logger"
)

// ErrUnresolved is returned when no rule yields exactly one recipient.
var ErrUnresolved = errors.New("recipient could not be resolved")

// Kind tells chat identities and external payment addresses apart.
type Kind int

const (
	KindChat Kind = iota + 1
	KindExternal
)

// Target is a resolved recipient.
type Target struct {
	Kind Kind
	// UserID is set for KindChat.
	UserID string
	// Address is set for KindExternal.
	Address lnurl.Address
}

// Chat returns a chat identity target.
func Chat(userID string) Target {
	return Target{Kind: KindChat, UserID: userID}
}

// External returns an external payment address target.
func External(addr lnurl.Address) Target {
	return Target{Kind: KindExternal, Address: addr}
}

// IsExternal reports whether the target bypasses chat wallets.
func (t Target) IsExternal() bool {
	return t.Kind == KindExternal
}

func (t Target) String() string {
	if t.Kind == KindExternal {
		return t.Address.String()
	}
	return t.UserID
}

// Directory lists the identities joined to the conversation a message came from.
type Directory interface {
	Members(ctx context.Context) ([]string, error)
}

// Resolver applies the recipient rules in order: external address, fully
// qualified id, unique room-local name, rich-text mention.
type Resolver struct {
	log *slog.Logger
}

func NewResolver(log *slog.Logger) *Resolver {
	return &Resolver{log: logger.Component(log, "identity.resolver")}
}

// Resolve maps token to a Target. formatted is the HTML rendering of the
// message and may be empty; dir may be nil when the transport has no member list.
func (r *Resolver) Resolve(ctx context.Context, token string, dir Directory, formatted string) (Target, error) {
	token = strings.TrimSpace(token)

	if target, ok := ParseDirect(token); ok {
		return target, nil
	}

	if userID, ok := r.findMember(ctx, token, dir); ok {
		return Chat(userID), nil
	}

	if formatted != "" {
		if userID, ok := mentionFromHTML(formatted); ok {
			return Chat(userID), nil
		}
	}

	r.log.Debug("Recipient unresolved", "token", token)
	return Target{}, ErrUnresolved
}

// ParseDirect applies only the rules that need no room context: an external
// payment address, then a fully qualified chat identity accepted as-is.
func ParseDirect(token string) (Target, bool) {
	if addr, ok := lnurl.ParseAddress(token); ok {
		return External(addr), true
	}
	if userID, ok := ParseUserID(token); ok {
		return Chat(userID), true
	}

	return Target{}, false
}

// findMember matches a bare name against member localparts. Only a unique,
// case-sensitive match counts.
func (r *Resolver) findMember(ctx context.Context, token string, dir Directory) (string, bool) {
	name := strings.TrimPrefix(token, "@")
	if name == "" || strings.Contains(name, ":") || dir == nil {
		return "", false
	}

	members, err := dir.Members(ctx)
	if err != nil {
		r.log.Warn("Could not list room members", "error", err)
		return "", false
	}

	matched := ""
	for _, member := range members {
		if Localpart(member) != name {
			continue
		}
		if matched != "" {
			r.log.Info("Multiple members match name, refusing to guess", "name", name)
			return "", false
		}
		matched = member
	}

	return matched, matched != ""
}
