package decode

import (
	"regexp"
	"strings"
)

// Mode selects how a buffered body becomes a value.
type Mode int

const (
	// Auto infers the mode from content-type.
	Auto Mode = iota
	Bytes
	Text
	JSON
	// Stream hands back the live body. It is never inferred.
	Stream
)

func (m Mode) String() string {
	switch m {
	case Auto:
		return "auto"
	case Bytes:
		return "bytes"
	case Text:
		return "text"
	case JSON:
		return "json"
	case Stream:
		return "stream"
	default:
		return "unknown"
	}
}

// ParseMode accepts the names printed by String.
func ParseMode(s string) (Mode, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return Auto, true
	case "bytes", "buffer", "raw":
		return Bytes, true
	case "text", "string":
		return Text, true
	case "json":
		return JSON, true
	case "stream":
		return Stream, true
	default:
		return Auto, false
	}
}

var mediaTypeRe = regexp.MustCompile(`[A-Za-z0-9\-_*]+/[A-Za-z0-9\-_*]+`)

// MediaType extracts the first type/subtype token from a content-type value,
// lower-cased.
func MediaType(contentType string) (string, string) {
	m := mediaTypeRe.FindString(contentType)
	if m == "" {
		return "", ""
	}
	main, sub, _ := strings.Cut(strings.ToLower(m), "/")
	return main, sub
}

// Resolve returns explicit when set, otherwise the mode inferred from
// contentType.
func Resolve(explicit Mode, contentType string) Mode {
	if explicit != Auto {
		return explicit
	}
	main, sub := MediaType(contentType)
	switch {
	case main == "text":
		return Text
	case main == "application" && sub == "json":
		return JSON
	default:
		return Bytes
	}
}
