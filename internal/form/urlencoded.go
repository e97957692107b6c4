package form

import (
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/unkn0wn-root/hydro/internal/errdef"
	"github.com/unkn0wn-root/hydro/internal/header"
	"github.com/unkn0wn-root/hydro/internal/querystr"
)

const ContentTypeURLEncoded = "application/x-www-form-urlencoded"

// URLEncoded serialises fields sorted by name, coercing values the same way
// query parameters are coerced.
func URLEncoded(fields map[string]any) ([]byte, error) {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for _, k := range keys {
		v, err := querystr.Stringify(fields[k])
		if err != nil {
			return nil, errdef.Wrap(errdef.CodeBody, err, "encode form field %q", k)
		}
		if sb.Len() > 0 {
			sb.WriteByte('&')
		}
		sb.WriteString(url.QueryEscape(k))
		sb.WriteByte('=')
		sb.WriteString(url.QueryEscape(v))
	}
	return []byte(sb.String()), nil
}

// URLEncodedHeaders returns the headers describing an urlencoded payload.
func URLEncodedHeaders(payload []byte) *header.Header {
	return header.New().
		Set("content-type", ContentTypeURLEncoded).
		Set("content-length", strconv.Itoa(len(payload)))
}
