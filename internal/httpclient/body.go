package httpclient

import (
	"bytes"
	"io"
	"strings"
	"sync"

	"github.com/unkn0wn-root/hydro/internal/decode"
)

type BodyKind int

const (
	BodyNone BodyKind = iota
	BodyBytes
	BodyText
	BodyStream
)

// Body is the outbound payload of a request: nothing, a byte slice, a string
// or a live reader. The zero value is BodyNone.
type Body struct {
	kind        BodyKind
	data        []byte
	text        string
	stream      io.Reader
	contentType string
}

func Bytes(b []byte) Body {
	return Body{kind: BodyBytes, data: b}
}

func Text(s string) Body {
	return Body{kind: BodyText, text: s}
}

// Stream sends r as it is read, with unknown length. A ReadCloser is closed
// once the transport is done with it.
func Stream(r io.Reader) Body {
	if r == nil {
		return Body{}
	}
	return Body{kind: BodyStream, stream: r}
}

// JSONBody encodes v and marks the body as application/json unless the
// request sets its own content-type.
func JSONBody(v any) (Body, error) {
	data, err := decode.Marshal(v)
	if err != nil {
		return Body{}, err
	}
	return Body{kind: BodyBytes, data: data, contentType: "application/json"}, nil
}

func (b Body) Kind() BodyKind {
	return b.kind
}

func (b Body) IsZero() bool {
	return b.kind == BodyNone
}

// open returns the payload reader and its length, -1 when unknown.
func (b Body) open() (io.ReadCloser, int64) {
	switch b.kind {
	case BodyBytes:
		return io.NopCloser(bytes.NewReader(b.data)), int64(len(b.data))
	case BodyText:
		return io.NopCloser(strings.NewReader(b.text)), int64(len(b.text))
	case BodyStream:
		if rc, ok := b.stream.(io.ReadCloser); ok {
			return rc, -1
		}
		return io.NopCloser(b.stream), -1
	default:
		return nil, 0
	}
}

// sentBody records the first non-EOF error the transport hit while reading
// the request payload.
type sentBody struct {
	rc  io.ReadCloser
	mu  sync.Mutex
	err error
}

func (s *sentBody) Read(p []byte) (int, error) {
	n, err := s.rc.Read(p)
	if err != nil && err != io.EOF {
		s.mu.Lock()
		if s.err == nil {
			s.err = err
		}
		s.mu.Unlock()
	}
	return n, err
}

func (s *sentBody) Close() error {
	return s.rc.Close()
}

func (s *sentBody) Err() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}
