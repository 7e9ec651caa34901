package identity

import (
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

// mentionFromHTML returns the user id behind the first anchor whose href
// carries an "@name:domain" fragment, as rich-text clients render pills
// (https://matrix.to/#/@alice:example.com). Malformed markup yields false.
func mentionFromHTML(fragment string) (string, bool) {
	tokenizer := html.NewTokenizer(strings.NewReader(fragment))

	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return "", false
		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := tokenizer.TagName()
			if string(name) != "a" || !hasAttr {
				continue
			}

			href, ok := hrefAttr(tokenizer)
			if !ok || !strings.Contains(href, "@") {
				continue
			}

			return userIDFromHref(href)
		}
	}
}

func hrefAttr(tokenizer *html.Tokenizer) (string, bool) {
	for {
		key, value, more := tokenizer.TagAttr()
		if string(key) == "href" {
			return string(value), true
		}
		if !more {
			return "", false
		}
	}
}

func userIDFromHref(href string) (string, bool) {
	if unescaped, err := url.PathUnescape(href); err == nil {
		href = unescaped
	}

	parts := strings.Split(href, "@")
	if len(parts) != 2 {
		return "", false
	}

	// Drop any trailing path or query the link may carry after the id.
	candidate, _, _ := strings.Cut(parts[1], "?")
	candidate, _, _ = strings.Cut(candidate, "/")

	return ParseUserID(candidate)
}
