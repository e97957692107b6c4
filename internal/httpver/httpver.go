package httpver

import (
	"strings"

	"github.com/unkn0wn-root/hydro/internal/errdef"
)

type Version int

const (
	Unknown Version = iota
	V10
	V11
	V2
)

func (v Version) String() string {
	switch v {
	case V10:
		return "HTTP/1.0"
	case V11:
		return "HTTP/1.1"
	case V2:
		return "HTTP/2"
	default:
		return "unknown"
	}
}

// ParseToken accepts HTTP/x proto strings as found on responses.
func ParseToken(raw string) (Version, bool) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if !strings.HasPrefix(s, "http/") {
		return Unknown, false
	}
	switch strings.TrimPrefix(s, "http/") {
	case "1.0":
		return V10, true
	case "1.1":
		return V11, true
	case "2", "2.0":
		return V2, true
	default:
		return Unknown, false
	}
}

// FromALPN maps a negotiated ALPN protocol id onto a version. An empty id
// means the peer did not take part in ALPN and is reported as Unknown.
func FromALPN(proto string) Version {
	switch strings.ToLower(strings.TrimSpace(proto)) {
	case "h2", "h2c":
		return V2
	case "http/1.1":
		return V11
	case "http/1.0":
		return V10
	default:
		return Unknown
	}
}

// RequireH2 fails unless v is HTTP/2. source names where v came from.
func RequireH2(v Version, source string) error {
	if v == V2 {
		return nil
	}
	if source == "" {
		source = "peer"
	}
	return errdef.New(errdef.CodeTransport, "expected HTTP/2 from %s, got %s", source, v)
}
