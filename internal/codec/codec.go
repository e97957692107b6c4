// Package codec maps content-coding tokens onto streaming decompressors.
package codec

import (
	"bufio"
	"errors"
	"io"
	"strings"
	"sync"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"

	"github.com/unkn0wn-root/hydro/internal/errdef"
)

const Identity = "identity"

// Decompressor wraps src with a reader producing decoded bytes. Closing the
// returned reader must not close src.
type Decompressor func(src io.Reader) (io.ReadCloser, error)

type Registry struct {
	mu    sync.RWMutex
	codec map[string]Decompressor
}

func NewRegistry() *Registry {
	return &Registry{codec: make(map[string]Decompressor)}
}

// Default returns a registry knowing gzip, deflate, br, compress and zstd.
func Default() *Registry {
	r := NewRegistry()
	r.Register("gzip", Gzip)
	r.Register("x-gzip", Gzip)
	r.Register("deflate", Deflate)
	r.Register("br", Brotli)
	r.Register("compress", Unzip)
	r.Register("zstd", Zstd)
	return r
}

func (r *Registry) Register(token string, d Decompressor) {
	r.mu.Lock()
	r.codec[normalize(token)] = d
	r.mu.Unlock()
}

func (r *Registry) Lookup(token string) (Decompressor, bool) {
	r.mu.RLock()
	d, ok := r.codec[normalize(token)]
	r.mu.RUnlock()
	return d, ok
}

// Parse splits content-encoding values into tokens in the order they were
// applied by the sender.
func Parse(values ...string) []string {
	var out []string
	for _, v := range values {
		for _, tok := range strings.Split(v, ",") {
			if t := normalize(tok); t != "" {
				out = append(out, t)
			}
		}
	}
	return out
}

// Wrap unwinds codings in reverse application order. The boolean is false,
// and src is returned untouched, when any token is unknown. Decompressors are
// opened lazily on first Read so wrapping never blocks on the body.
func (r *Registry) Wrap(src io.Reader, codings []string) (io.ReadCloser, bool) {
	layers := make([]*lazyReader, 0, len(codings))
	cur := src
	for i := len(codings) - 1; i >= 0; i-- {
		tok := codings[i]
		if tok == Identity {
			continue
		}
		d, ok := r.Lookup(tok)
		if !ok {
			return io.NopCloser(src), false
		}
		l := &lazyReader{src: cur, open: d, token: tok}
		layers = append(layers, l)
		cur = l
	}
	return &stack{Reader: cur, layers: layers}, true
}

type stack struct {
	io.Reader
	layers []*lazyReader
}

func (s *stack) Close() error {
	var errs []error
	for i := len(s.layers) - 1; i >= 0; i-- {
		if err := s.layers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type lazyReader struct {
	src   io.Reader
	open  Decompressor
	token string
	rc    io.ReadCloser
	err   error
}

func (l *lazyReader) Read(p []byte) (int, error) {
	if l.rc == nil && l.err == nil {
		rc, err := l.open(l.src)
		switch {
		case err == io.EOF:
			// empty body under a coding header
			l.err = io.EOF
		case err != nil:
			l.err = errdef.Wrap(errdef.CodeDecode, err, "open %s decoder", l.token)
		default:
			l.rc = rc
		}
	}
	if l.err != nil {
		return 0, l.err
	}
	return l.rc.Read(p)
}

func (l *lazyReader) Close() error {
	if l.rc == nil {
		return nil
	}
	return l.rc.Close()
}

func normalize(token string) string {
	return strings.ToLower(strings.TrimSpace(token))
}

func Gzip(src io.Reader) (io.ReadCloser, error) {
	return gzip.NewReader(src)
}

// Deflate handles the zlib framing HTTP specifies and falls back to raw
// deflate streams some servers send instead.
func Deflate(src io.Reader) (io.ReadCloser, error) {
	br := bufio.NewReader(src)
	head, err := br.Peek(2)
	if err != nil && len(head) == 0 {
		return nil, err
	}
	if isZlibHeader(head) {
		return zlib.NewReader(br)
	}
	return flate.NewReader(br), nil
}

func Brotli(src io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(brotli.NewReader(src)), nil
}

// Unzip detects gzip or zlib framing from the leading magic bytes.
func Unzip(src io.Reader) (io.ReadCloser, error) {
	br := bufio.NewReader(src)
	head, err := br.Peek(2)
	if err != nil && len(head) == 0 {
		return nil, err
	}
	if len(head) == 2 && head[0] == 0x1f && head[1] == 0x8b {
		return gzip.NewReader(br)
	}
	return zlib.NewReader(br)
}

func Zstd(src io.Reader) (io.ReadCloser, error) {
	d, err := zstd.NewReader(src)
	if err != nil {
		return nil, err
	}
	return d.IOReadCloser(), nil
}

func isZlibHeader(b []byte) bool {
	if len(b) < 2 {
		return false
	}
	return b[0]&0x0f == 8 && (uint16(b[0])<<8|uint16(b[1]))%31 == 0
}
