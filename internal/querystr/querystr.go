// Package querystr composes request paths from a path that may already carry
// a query string and an explicit parameter map.
package querystr

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"github.com/unkn0wn-root/hydro/internal/errdef"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type pair struct {
	key    string
	values []string
}

// Params is an ordered multi-value parameter list.
type Params struct {
	pairs []pair
	index map[string]int
}

func (p *Params) init() {
	if p.index == nil {
		p.index = make(map[string]int)
	}
}

// Add appends a value, keeping the first-seen position of key.
func (p *Params) Add(key, value string) {
	p.init()
	if i, ok := p.index[key]; ok {
		p.pairs[i].values = append(p.pairs[i].values, value)
		return
	}
	p.index[key] = len(p.pairs)
	p.pairs = append(p.pairs, pair{key: key, values: []string{value}})
}

// Set replaces all values of key in place, or appends key when new.
func (p *Params) Set(key, value string) {
	p.init()
	if i, ok := p.index[key]; ok {
		p.pairs[i].values = []string{value}
		return
	}
	p.index[key] = len(p.pairs)
	p.pairs = append(p.pairs, pair{key: key, values: []string{value}})
}

func (p *Params) Get(key string) (string, bool) {
	if i, ok := p.index[key]; ok {
		return p.pairs[i].values[0], true
	}
	return "", false
}

func (p *Params) Len() int {
	return len(p.pairs)
}

// Encode serialises parameters in order using form escaping.
func (p *Params) Encode() string {
	var sb strings.Builder
	for _, pr := range p.pairs {
		for _, v := range pr.values {
			if sb.Len() > 0 {
				sb.WriteByte('&')
			}
			sb.WriteString(url.QueryEscape(pr.key))
			sb.WriteByte('=')
			sb.WriteString(url.QueryEscape(v))
		}
	}
	return sb.String()
}

// Parse reads a raw query string, keeping parameter order. Malformed escapes
// are kept verbatim.
func Parse(raw string) *Params {
	p := &Params{}
	for _, part := range strings.Split(raw, "&") {
		if part == "" {
			continue
		}
		key, value, _ := strings.Cut(part, "=")
		p.Add(unescape(key), unescape(value))
	}
	return p
}

func unescape(s string) string {
	if out, err := url.QueryUnescape(s); err == nil {
		return out
	}
	return s
}

// Split separates path from its query, dropping any fragment.
func Split(path string) (string, string, bool) {
	if i := strings.IndexByte(path, '#'); i >= 0 {
		path = path[:i]
	}
	base, query, ok := strings.Cut(path, "?")
	return base, query, ok
}

// Merge builds the final request path. Parameters embedded in path come
// first in their original order; explicit params replace embedded values of
// the same key and new keys are appended sorted.
func Merge(path string, explicit map[string]any) (string, error) {
	base, rawQuery, hasQuery := Split(path)
	if !hasQuery && len(explicit) == 0 {
		return base, nil
	}
	if base == "" {
		base = "/"
	}

	params := Parse(rawQuery)
	keys := make([]string, 0, len(explicit))
	for k := range explicit {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		s, err := Stringify(explicit[k])
		if err != nil {
			return "", errdef.Wrap(errdef.CodeHTTP, err, "encode query parameter %q", k)
		}
		params.Set(k, s)
	}

	if params.Len() == 0 {
		return base, nil
	}
	return base + "?" + params.Encode(), nil
}

// Stringify coerces a parameter value to text: strings as is, scalars via
// strconv, Stringers through String, anything else as JSON.
func Stringify(v any) (string, error) {
	switch x := v.(type) {
	case nil:
		return "null", nil
	case string:
		return x, nil
	case []byte:
		return string(x), nil
	case bool:
		return strconv.FormatBool(x), nil
	case int:
		return strconv.Itoa(x), nil
	case int8, int16, int32, int64:
		return fmt.Sprintf("%d", x), nil
	case uint, uint8, uint16, uint32, uint64:
		return fmt.Sprintf("%d", x), nil
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32), nil
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), nil
	case fmt.Stringer:
		return x.String(), nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
