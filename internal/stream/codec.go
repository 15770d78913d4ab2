package stream

import (
	"encoding/base64"
	"errors"
	"strconv"
	"strings"
)

// ErrMalformedToken is returned when a token string cannot be decoded.
// Handlers treat it as unauthorized and never echo it to the client.
var ErrMalformedToken = errors.New("malformed access token")

// Token is the decoded form of an access token: which file it grants, who it
// was issued to, and when it stops working. Tokens are transient; the wire
// string is the only representation that leaves the process.
//
// The encoding is reversible base64, not a signature. Anyone who knows the
// format can mint a token for any file id. The persisted token record (see
// UsageStore) is what rejects tokens this server never issued; without it the
// scheme is obfuscation only.
type Token struct {
	FileID    string
	Identity  string
	ExpiresAt int64 // unix milliseconds
}

// Encode serializes t to its URL-safe wire form: the colon-joined triple
// base64-encoded with the standard alphabet, then remapped (+ to -, / to _)
// with padding stripped.
func Encode(t Token) string {
	raw := t.FileID + ":" + t.Identity + ":" + strconv.FormatInt(t.ExpiresAt, 10)
	s := base64.StdEncoding.EncodeToString([]byte(raw))
	s = strings.ReplaceAll(s, "+", "-")
	s = strings.ReplaceAll(s, "/", "_")
	return strings.TrimRight(s, "=")
}

// Decode reverses Encode. The payload is parsed from both ends rather than
// split naively: the file id is the text before the first colon and the
// expiry the text after the last, with the identity in between. Identities
// that themselves contain colons (IPv6 addresses) therefore round-trip
// intact. Fails with ErrMalformedToken when the base64 is invalid, fewer
// than two colons are present, or the expiry field is not an integer.
func Decode(s string) (Token, error) {
	s = strings.ReplaceAll(s, "-", "+")
	s = strings.ReplaceAll(s, "_", "/")
	if rem := len(s) % 4; rem != 0 {
		s += strings.Repeat("=", 4-rem)
	}

	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return Token{}, ErrMalformedToken
	}

	payload := string(raw)
	first := strings.Index(payload, ":")
	last := strings.LastIndex(payload, ":")
	if first < 0 || first == last {
		return Token{}, ErrMalformedToken
	}
	expires, err := strconv.ParseInt(payload[last+1:], 10, 64)
	if err != nil {
		return Token{}, ErrMalformedToken
	}

	return Token{
		FileID:    payload[:first],
		Identity:  payload[first+1 : last],
		ExpiresAt: expires,
	}, nil
}
