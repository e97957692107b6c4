package httpclient

import (
	"io"

	"github.com/unkn0wn-root/hydro/internal/decode"
	"github.com/unkn0wn-root/hydro/internal/errdef"
	"github.com/unkn0wn-root/hydro/internal/header"
)

// RawResponse is what the collector produced: headers with content-encoding
// already removed and exactly one of a buffered payload or a live stream.
type RawResponse struct {
	StatusCode int
	Status     string
	Proto      string
	Header     *header.Header
	// Trailer is populated for buffered responses only.
	Trailer *header.Header

	data   []byte
	stream io.ReadCloser
}

func (r *RawResponse) Buffered() bool {
	return r.stream == nil
}

func (r *RawResponse) Bytes() []byte {
	return r.data
}

func (r *RawResponse) Stream() io.ReadCloser {
	return r.stream
}

type Response struct {
	StatusCode int
	Status     string
	Proto      string
	Header     *header.Header
	Trailer    *header.Header

	// Body holds []byte, string, a parsed JSON value, an io.ReadCloser in
	// stream mode, or whatever Decode.Transform returned.
	Body any

	raw *RawResponse
}

func newResponse(raw *RawResponse) *Response {
	r := &Response{
		StatusCode: raw.StatusCode,
		Status:     raw.Status,
		Proto:      raw.Proto,
		Header:     raw.Header,
		Trailer:    raw.Trailer,
		raw:        raw,
	}
	if raw.stream != nil {
		r.Body = raw.stream
	} else {
		r.Body = raw.data
	}
	return r
}

func (r *Response) decode(d Decode) error {
	if d.Mode == decode.Stream {
		return nil
	}
	ct := r.Header.Get("content-type")
	body, err := decode.Body(decode.Resolve(d.Mode, ct), r.raw.data, ct)
	if err != nil {
		return err
	}
	r.Body = body

	if d.Transform != nil {
		v, err := d.Transform(r)
		if err != nil {
			return errdef.Wrap(errdef.CodeDecode, err, "transform response")
		}
		r.Body = v
	}
	return nil
}

// Get returns the first value of a response header or "".
func (r *Response) Get(key string) string {
	return r.Header.Get(key)
}

// GetOr returns the first value of a response header or orElse when absent
// or empty.
func (r *Response) GetOr(key, orElse string) string {
	if v := r.Header.Get(key); v != "" {
		return v
	}
	return orElse
}

func (r *Response) Values(key string) []string {
	return r.Header.Values(key)
}

// RawResponse exposes the undecoded response, e.g. to decode again after a
// decode error.
func (r *Response) RawResponse() *RawResponse {
	return r.raw
}

// Raw returns the buffered payload after decompression and before decoding.
func (r *Response) Raw() []byte {
	return r.raw.data
}

// Len is the buffered payload length before decoding.
func (r *Response) Len() int {
	return len(r.raw.data)
}

// Stream returns the live body in stream mode and nil otherwise.
func (r *Response) Stream() io.ReadCloser {
	return r.raw.stream
}

// JSON parses the buffered payload into v.
func (r *Response) JSON(v any) error {
	if r.raw.stream != nil {
		return errdef.New(errdef.CodeDecode, "stream response has no buffered body")
	}
	return decode.Into(r.raw.data, v)
}

func (r *Response) close() {
	if r != nil && r.raw.stream != nil {
		r.raw.stream.Close()
	}
}

// BodyAs type-asserts the decoded body.
func BodyAs[T any](r *Response) (T, bool) {
	var zero T
	if r == nil {
		return zero, false
	}
	v, ok := r.Body.(T)
	return v, ok
}
