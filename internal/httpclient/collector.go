package httpclient

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"

	"github.com/unkn0wn-root/hydro/internal/codec"
	"github.com/unkn0wn-root/hydro/internal/decode"
	"github.com/unkn0wn-root/hydro/internal/errdef"
	"github.com/unkn0wn-root/hydro/internal/header"
	"github.com/unkn0wn-root/hydro/internal/httpver"
	"github.com/unkn0wn-root/hydro/internal/stream"
	"github.com/unkn0wn-root/hydro/internal/transport"
)

type collector struct {
	codecs *codec.Registry
}

// collect opens the stream for req and drives it to a RawResponse. In stream
// mode it returns as soon as headers arrive and the handle is released when
// the returned body ends; otherwise the caller releases the handle.
func (c *collector) collect(
	conn transport.Conn,
	req *http.Request,
	mode decode.Mode,
	h *stream.Handle,
	sent *sentBody,
) (*RawResponse, error) {
	resp, err := conn.RoundTrip(req)
	if err != nil {
		return nil, classify(h.Context(), err, sent)
	}
	if resp == nil {
		return nil, errdef.New(errdef.CodePartial, "stream ended before response headers")
	}
	if v, ok := httpver.ParseToken(resp.Proto); ok {
		if err := httpver.RequireH2(v, "response"); err != nil {
			resp.Body.Close()
			return nil, err
		}
	}

	wire := &wireReader{r: resp.Body}
	hdr := header.FromHTTP(resp.Header)
	var body io.ReadCloser = io.NopCloser(wire)
	if codings := codec.Parse(hdr.Values("content-encoding")...); len(codings) > 0 {
		if wrapped, ok := c.codecs.Wrap(wire, codings); ok {
			body = wrapped
			hdr.Del("content-encoding")
		}
	}

	raw := &RawResponse{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Proto:      resp.Proto,
		Header:     hdr,
	}

	if mode == decode.Stream {
		raw.stream = &liveBody{body: body, wire: resp.Body, done: h.Done}
		return raw, nil
	}

	data, err := io.ReadAll(body)
	body.Close()
	resp.Body.Close()
	if err != nil {
		if wireErr := wire.Err(); wireErr != nil {
			return nil, classify(h.Context(), wireErr, sent)
		}
		if errdef.CodeOf(err) == errdef.CodeUnknown {
			err = errdef.Wrap(errdef.CodeDecode, err, "decompress response body")
		}
		return nil, err
	}
	if sendErr := sent.Err(); sendErr != nil {
		return nil, errdef.Wrap(errdef.CodeTransport, sendErr, "write request body")
	}

	raw.data = data
	raw.Trailer = header.FromHTTP(resp.Trailer)
	return raw, nil
}

// classify maps a transport failure onto the error taxonomy.
func classify(ctx context.Context, err error, sent *sentBody) error {
	switch {
	case errors.Is(context.Cause(ctx), stream.ErrClosed):
		return errdef.Wrap(errdef.CodeTransport, stream.ErrClosed, "stream aborted")
	case sent.Err() != nil:
		return errdef.Wrap(errdef.CodeTransport, sent.Err(), "write request body")
	case ctx.Err() != nil:
		return errdef.Wrap(errdef.CodeTransport, context.Cause(ctx), "request cancelled")
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return errdef.Wrap(errdef.CodePartial, err, "stream ended before response headers")
	default:
		return errdef.Wrap(errdef.CodeTransport, err, "round trip")
	}
}

// wireReader remembers read errors coming from the connection so they can be
// told apart from decompressor errors.
type wireReader struct {
	r   io.Reader
	mu  sync.Mutex
	err error
}

func (w *wireReader) Read(p []byte) (int, error) {
	n, err := w.r.Read(p)
	if err != nil && err != io.EOF {
		w.mu.Lock()
		w.err = err
		w.mu.Unlock()
	}
	return n, err
}

func (w *wireReader) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

// liveBody is the stream-mode payload. The transport stream is closed and
// the registry entry released once it ends, fails or is closed.
type liveBody struct {
	body io.ReadCloser
	wire io.Closer
	done func(error)
	once sync.Once
}

func (b *liveBody) Read(p []byte) (int, error) {
	n, err := b.body.Read(p)
	if err != nil {
		b.finish(err)
	}
	return n, err
}

func (b *liveBody) Close() error {
	b.finish(nil)
	return nil
}

func (b *liveBody) finish(err error) {
	b.once.Do(func() {
		b.wire.Close()
		b.body.Close()
		if err == io.EOF {
			err = nil
		}
		b.done(err)
	})
}
