package identity

import (
	"regexp"
	"strings"
)

var (
	localpartPattern  = regexp.MustCompile(`^[a-zA-Z0-9._=\-/+]+$`)
	serverNamePattern = regexp.MustCompile(`^([a-zA-Z0-9]([a-zA-Z0-9\-]*[a-zA-Z0-9])?)(\.[a-zA-Z0-9]([a-zA-Z0-9\-]*[a-zA-Z0-9])?)*(:[0-9]{1,5})?$`)
)

// ParseUserID accepts "@name:domain" or "name:domain" with a syntactically
// valid server name and returns the canonical "@name:domain" form.
func ParseUserID(text string) (string, bool) {
	text = strings.TrimPrefix(strings.TrimSpace(text), "@")

	localpart, server, ok := strings.Cut(text, ":")
	if !ok || !localpartPattern.MatchString(localpart) {
		return "", false
	}
	if !serverNamePattern.MatchString(server) {
		return "", false
	}

	return "@" + localpart + ":" + server, true
}

// Localpart returns the name part of a user id, without the leading '@'.
func Localpart(userID string) string {
	localpart, _, _ := strings.Cut(strings.TrimPrefix(userID, "@"), ":")
	return localpart
}
