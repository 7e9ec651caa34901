package identity

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tipbot/pkg/logger"
)

type staticDirectory struct {
	members []string
	err     error
	calls   int
}

func (d *staticDirectory) Members(context.Context) ([]string, error) {
	d.calls++
	return d.members, d.err
}

func newTestResolver() *Resolver {
	return NewResolver(logger.Discard())
}

func TestResolveExternalAddressSkipsRoomLookup(t *testing.T) {
	t.Parallel()

	dir := &staticDirectory{members: []string{"@alice:example.com"}}
	target, err := newTestResolver().Resolve(context.Background(), "alice@wallet.example.com", dir, "")
	require.NoError(t, err)

	assert.True(t, target.IsExternal())
	assert.Equal(t, "https://wallet.example.com/.well-known/lnurlp/alice", target.Address.URL)
	assert.Zero(t, dir.calls)
}

func TestResolveFullyQualifiedWithoutMembership(t *testing.T) {
	t.Parallel()

	dir := &staticDirectory{}
	target, err := newTestResolver().Resolve(context.Background(), "@carol:other.org", dir, "")
	require.NoError(t, err)

	assert.Equal(t, Chat("@carol:other.org"), target)
	assert.Zero(t, dir.calls)
}

func TestResolveUniqueLocalName(t *testing.T) {
	t.Parallel()

	dir := &staticDirectory{members: []string{"@alice:example.com", "@bob:example.com"}}
	for _, token := range []string{"alice", "@alice"} {
		target, err := newTestResolver().Resolve(context.Background(), token, dir, "")
		require.NoError(t, err, token)
		assert.Equal(t, "@alice:example.com", target.UserID, token)
	}
}

func TestResolveLocalNameNeverGuesses(t *testing.T) {
	t.Parallel()

	cases := map[string][]string{
		"no match":         {"@bob:example.com"},
		"two matches":      {"@alice:example.com", "@alice:other.org"},
		"case differs":     {"@Alice:example.com"},
		"listing is empty": nil,
	}

	for name, members := range cases {
		_, err := newTestResolver().Resolve(context.Background(), "alice", &staticDirectory{members: members}, "")
		require.ErrorIs(t, err, ErrUnresolved, name)
	}
}

func TestResolveMemberListingFailureFallsThroughToMention(t *testing.T) {
	t.Parallel()

	dir := &staticDirectory{err: errors.New("not joined")}
	formatted := `!send 10 <a href="https://matrix.to/#/@dave:example.com">Dave</a>`

	target, err := newTestResolver().Resolve(context.Background(), "Dave", dir, formatted)
	require.NoError(t, err)
	assert.Equal(t, "@dave:example.com", target.UserID)
}

func TestResolveMentionOnly(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		`<a href="https://matrix.to/#/@erin:example.com">Erin</a>`:                                          "@erin:example.com",
		`<a href="https://matrix.to/#/%40erin%3Aexample.com">Erin</a>`:                                      "@erin:example.com",
		`<a href="https://example.com/docs">docs</a> <a href="https://matrix.to/#/@erin:example.com">E</a>`: "@erin:example.com",
	}

	for formatted, want := range cases {
		target, err := newTestResolver().Resolve(context.Background(), "Erin", nil, formatted)
		require.NoError(t, err, formatted)
		assert.Equal(t, want, target.UserID, formatted)
	}
}

func TestResolveMalformedMentionIsUnresolved(t *testing.T) {
	t.Parallel()

	for _, formatted := range []string{
		`<a href="mailto:a@b@c">x</a>`,
		`<a href="https://matrix.to/#/@not a user">x</a>`,
		`<a name="anchor">`,
		`<<<>>>`,
	} {
		_, err := newTestResolver().Resolve(context.Background(), "someone", nil, formatted)
		require.ErrorIs(t, err, ErrUnresolved, formatted)
	}
}

func TestParseUserID(t *testing.T) {
	t.Parallel()

	valid := map[string]string{
		"@alice:example.com":       "@alice:example.com",
		"alice:example.com":        "@alice:example.com",
		"@a.b_c=d:matrix.org:8448": "@a.b_c=d:matrix.org:8448",
	}
	for input, want := range valid {
		got, ok := ParseUserID(input)
		require.True(t, ok, input)
		assert.Equal(t, want, got)
	}

	for _, input := range []string{"alice", "@:example.com", "@alice:", "@alice:-bad.com", "@al ice:example.com", "@alice:exa_mple.com"} {
		_, ok := ParseUserID(input)
		assert.False(t, ok, input)
	}
}

func TestLocalpart(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "alice", Localpart("@alice:example.com"))
	assert.Equal(t, "bob", Localpart("bob"))
}
