package httpclient

import (
	"github.com/unkn0wn-root/hydro/internal/decode"
	"github.com/unkn0wn-root/hydro/internal/form"
	"github.com/unkn0wn-root/hydro/internal/header"
	"github.com/unkn0wn-root/hydro/internal/jar"
)

// Result picks what Request hands back.
type Result int

const (
	// ResultDefault behaves like ResultBody.
	ResultDefault Result = iota
	ResultBody
	ResultResponse
)

type TransformFunc func(resp *Response) (any, error)

type Decode struct {
	// Mode overrides content-type inference. decode.Stream returns the live
	// body without buffering.
	Mode decode.Mode
	// Transform runs after mode decoding and replaces Response.Body.
	Transform TransformFunc
	Result    Result
}

// Request describes one exchange. It is passed by value and the client never
// writes to the maps or headers it references.
//
// When more than one payload is set, Body wins over Form, which wins over
// FormData.
type Request struct {
	Path    string
	Method  string
	Query   map[string]any
	Headers *header.Header

	Body     Body
	Form     map[string]any
	FormData *form.Multipart

	Decode Decode

	// Jar is read instead of the session jar when building the cookie
	// header. Set-Cookie values are stored into both.
	Jar           jar.Jar
	StrictCookies bool
}
