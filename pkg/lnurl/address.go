package lnurl

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/btcsuite/btcd/btcutil/bech32"
)

const lnurlHRP = "lnurl"

var (
	addressUserPattern = regexp.MustCompile(`^[a-z0-9._+\-]+$`)
	hostnamePattern    = regexp.MustCompile(`^([a-z0-9]([a-z0-9\-]*[a-z0-9])?)(\.[a-z0-9]([a-z0-9\-]*[a-z0-9])?)+$`)
)

// Address is an external payment address resolved to its LNURL-pay endpoint.
type Address struct {
	// Raw is the text the user typed.
	Raw string
	// URL is the endpoint returning the pay parameters.
	URL string
}

func (a Address) String() string {
	return a.Raw
}

// ParseAddress recognises a bech32 "lnurl1..." string or a "user@domain"
// lightning address. It never performs network I/O.
func ParseAddress(input string) (Address, bool) {
	raw := strings.TrimSpace(input)
	text := strings.ToLower(raw)
	text = strings.TrimPrefix(text, "lightning:")
	if text == "" {
		return Address{}, false
	}

	if strings.HasPrefix(text, lnurlHRP+"1") {
		endpoint, err := decodeLNURL(text)
		if err != nil {
			return Address{}, false
		}
		return Address{Raw: raw, URL: endpoint}, true
	}

	if endpoint, ok := lightningAddressURL(text); ok {
		return Address{Raw: raw, URL: endpoint}, true
	}

	return Address{}, false
}

func decodeLNURL(text string) (string, error) {
	hrp, data, err := bech32.DecodeNoLimit(text)
	if err != nil {
		return "", err
	}
	if hrp != lnurlHRP {
		return "", fmt.Errorf("unexpected prefix %q", hrp)
	}

	decoded, err := bech32.ConvertBits(data, 5, 8, false)
	if err != nil {
		return "", err
	}

	endpoint, err := url.Parse(string(decoded))
	if err != nil {
		return "", err
	}
	if !allowedScheme(endpoint) {
		return "", fmt.Errorf("unsupported lnurl scheme %q", endpoint.Scheme)
	}

	return endpoint.String(), nil
}

// lightningAddressURL maps user@domain to https://domain/.well-known/lnurlp/user.
func lightningAddressURL(text string) (string, bool) {
	user, domain, ok := strings.Cut(text, "@")
	if !ok || user == "" || strings.Contains(domain, "@") {
		return "", false
	}
	if !addressUserPattern.MatchString(user) || !hostnamePattern.MatchString(domain) {
		return "", false
	}

	scheme := "https"
	if strings.HasSuffix(domain, ".onion") {
		scheme = "http"
	}

	return scheme + "://" + domain + "/.well-known/lnurlp/" + user, true
}

// allowedScheme accepts https everywhere and plain http only for onion hosts.
func allowedScheme(u *url.URL) bool {
	switch u.Scheme {
	case "https":
		return u.Host != ""
	case "http":
		return strings.HasSuffix(u.Hostname(), ".onion")
	default:
		return false
	}
}

// Encode produces the bech32 "lnurl1..." form of an endpoint URL.
func Encode(endpoint string) (string, error) {
	data, err := bech32.ConvertBits([]byte(endpoint), 8, 5, true)
	if err != nil {
		return "", err
	}

	return bech32.Encode(lnurlHRP, data)
}
