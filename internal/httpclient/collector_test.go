package httpclient

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"testing"

	"github.com/klauspost/compress/gzip"

	"github.com/unkn0wn-root/hydro/internal/decode"
	"github.com/unkn0wn-root/hydro/internal/errdef"
	"github.com/unkn0wn-root/hydro/internal/stream"
)

func gzipped(t *testing.T, s string) string {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write([]byte(s)); err != nil {
		t.Fatalf("gzip write: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}
	return buf.String()
}

func TestJSONResponseDecoded(t *testing.T) {
	conn := &fakeConn{handle: func(*http.Request) (*http.Response, error) {
		return respond(http.StatusOK, http.Header{"Content-Type": {"application/json; charset=utf-8"}}, `{"name":"hydro","tags":["a","b"]}`), nil
	}}
	c := newTestClient(conn, Options{})

	resp, err := c.Do(context.Background(), Request{Path: "/"})
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	m, ok := BodyAs[map[string]any](resp)
	if !ok || m["name"] != "hydro" {
		t.Fatalf("unexpected decoded body %#v", resp.Body)
	}

	var typed struct {
		Name string   `json:"name"`
		Tags []string `json:"tags"`
	}
	if err := resp.JSON(&typed); err != nil {
		t.Fatalf("typed decode: %v", err)
	}
	if typed.Name != "hydro" || len(typed.Tags) != 2 {
		t.Fatalf("unexpected typed body %+v", typed)
	}
}

func TestGzipIsTransparent(t *testing.T) {
	payload := gzipped(t, `{"ok":true}`)
	conn := &fakeConn{handle: func(*http.Request) (*http.Response, error) {
		return respond(http.StatusOK, http.Header{
			"Content-Type":     {"application/json"},
			"Content-Encoding": {"gzip"},
		}, payload), nil
	}}
	c := newTestClient(conn, Options{})

	resp, err := c.Do(context.Background(), Request{Path: "/"})
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if m, ok := resp.Body.(map[string]any); !ok || m["ok"] != true {
		t.Fatalf("unexpected body %#v", resp.Body)
	}
	if resp.Get("content-encoding") != "" {
		t.Fatalf("expected content-encoding to be stripped")
	}
	if string(resp.Raw()) != `{"ok":true}` {
		t.Fatalf("expected raw bytes to be decompressed, got %q", resp.Raw())
	}
}

func TestUnknownCodingLeftAlone(t *testing.T) {
	conn := &fakeConn{handle: func(*http.Request) (*http.Response, error) {
		return respond(http.StatusOK, http.Header{"Content-Encoding": {"snappy"}}, "opaque"), nil
	}}
	c := newTestClient(conn, Options{})

	resp, err := c.Do(context.Background(), Request{Path: "/"})
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.Get("content-encoding") != "snappy" || string(resp.Raw()) != "opaque" {
		t.Fatalf("expected body and header untouched, got %q %q", resp.Get("content-encoding"), resp.Raw())
	}
}

func TestCorruptGzipIsDecodeError(t *testing.T) {
	conn := &fakeConn{handle: func(*http.Request) (*http.Response, error) {
		return respond(http.StatusOK, http.Header{"Content-Encoding": {"gzip"}}, "definitely not gzip"), nil
	}}
	c := newTestClient(conn, Options{})

	_, err := c.Do(context.Background(), Request{Path: "/"})
	if !errdef.Is(err, errdef.CodeDecode) {
		t.Fatalf("expected decode error, got %v", err)
	}
	if len(c.InFlight()) != 0 {
		t.Fatalf("expected failed stream to be released")
	}
}

func TestDecodeErrorKeepsRawBytes(t *testing.T) {
	conn := &fakeConn{handle: func(*http.Request) (*http.Response, error) {
		return respond(http.StatusOK, http.Header{"Content-Type": {"application/json"}}, "{bad"), nil
	}}
	c := newTestClient(conn, Options{})

	resp, err := c.Do(context.Background(), Request{Path: "/"})
	if !errdef.Is(err, errdef.CodeDecode) {
		t.Fatalf("expected decode error, got %v", err)
	}
	if resp == nil || string(resp.Raw()) != "{bad" {
		t.Fatalf("expected raw bytes alongside the error")
	}

	got, err := c.SimpleGet(context.Background(), Request{Path: "/", Decode: Decode{Mode: decode.Text}})
	if err != nil || got != "{bad" {
		t.Fatalf("explicit text mode should win, got %#v (%v)", got, err)
	}
}

func TestPartialResponse(t *testing.T) {
	for _, cause := range []error{io.EOF, io.ErrUnexpectedEOF} {
		conn := &fakeConn{handle: func(*http.Request) (*http.Response, error) {
			return nil, cause
		}}
		c := newTestClient(conn, Options{})

		_, err := c.Do(context.Background(), Request{Path: "/"})
		if !errdef.Is(err, errdef.CodePartial) {
			t.Fatalf("%v: expected partial error, got %v", cause, err)
		}
		if len(c.InFlight()) != 0 {
			t.Fatalf("%v: expected stream to be released", cause)
		}
	}
}

func TestRoundTripFailureIsTransport(t *testing.T) {
	conn := &fakeConn{handle: func(*http.Request) (*http.Response, error) {
		return nil, errors.New("connection reset")
	}}
	c := newTestClient(conn, Options{})

	_, err := c.Do(context.Background(), Request{Path: "/"})
	if !errdef.Is(err, errdef.CodeTransport) {
		t.Fatalf("expected transport error, got %v", err)
	}
	recent := c.Recent()
	if len(recent) != 1 || recent[0].State != stream.StateFailed {
		t.Fatalf("expected failed stream in history, got %+v", recent)
	}
}

type failingReader struct {
	data []byte
	err  error
}

func (f *failingReader) Read(p []byte) (int, error) {
	if len(f.data) > 0 {
		n := copy(p, f.data)
		f.data = f.data[n:]
		return n, nil
	}
	return 0, f.err
}

func TestWireReadErrorIsTransport(t *testing.T) {
	conn := &fakeConn{handle: func(*http.Request) (*http.Response, error) {
		resp := respond(http.StatusOK, nil, "")
		resp.Body = io.NopCloser(&failingReader{data: []byte("par"), err: errors.New("stream reset")})
		return resp, nil
	}}
	c := newTestClient(conn, Options{})

	resp, err := c.Do(context.Background(), Request{Path: "/"})
	if !errdef.Is(err, errdef.CodeTransport) {
		t.Fatalf("expected transport error, got %v", err)
	}
	if resp != nil {
		t.Fatalf("no partial buffer may be returned")
	}
}

func TestPassthroughResolvesBeforeEnd(t *testing.T) {
	pr, pw := io.Pipe()
	conn := &fakeConn{handle: func(*http.Request) (*http.Response, error) {
		resp := respond(http.StatusOK, http.Header{"Content-Type": {"text/event-stream"}}, "")
		resp.Body = pr
		return resp, nil
	}}
	c := newTestClient(conn, Options{})

	resp, err := c.Do(context.Background(), Request{Path: "/events", Decode: Decode{Mode: decode.Stream}})
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if len(c.InFlight()) != 1 {
		t.Fatalf("expected live stream to stay registered")
	}

	go pw.Write([]byte("hello"))
	buf := make([]byte, 5)
	if _, err := io.ReadFull(resp.Stream(), buf); err != nil || string(buf) != "hello" {
		t.Fatalf("unexpected first chunk %q (%v)", buf, err)
	}
	if len(c.InFlight()) != 1 {
		t.Fatalf("stream released before end")
	}

	pw.Close()
	if _, err := io.ReadAll(resp.Stream()); err != nil {
		t.Fatalf("drain: %v", err)
	}
	if len(c.InFlight()) != 0 {
		t.Fatalf("expected stream released on EOF")
	}
	if recent := c.Recent(); len(recent) != 1 || recent[0].State != stream.StateDone {
		t.Fatalf("unexpected history %+v", recent)
	}
}

func TestPassthroughCloseReleasesStream(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	conn := &fakeConn{handle: func(*http.Request) (*http.Response, error) {
		resp := respond(http.StatusOK, nil, "")
		resp.Body = pr
		return resp, nil
	}}
	c := newTestClient(conn, Options{})

	resp, err := c.Do(context.Background(), Request{Path: "/events", Decode: Decode{Mode: decode.Stream}})
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if err := resp.Stream().Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if len(c.InFlight()) != 0 {
		t.Fatalf("expected stream released on close")
	}
	if _, err := pw.Write([]byte("x")); !errors.Is(err, io.ErrClosedPipe) {
		t.Fatalf("expected transport body closed, got %v", err)
	}
}

func TestPassthroughGzipIsLazy(t *testing.T) {
	pr, pw := io.Pipe()
	payload := gzipped(t, "streamed")
	conn := &fakeConn{handle: func(*http.Request) (*http.Response, error) {
		resp := respond(http.StatusOK, http.Header{"Content-Encoding": {"gzip"}}, "")
		resp.Body = pr
		return resp, nil
	}}
	c := newTestClient(conn, Options{})

	resp, err := c.Do(context.Background(), Request{Path: "/", Decode: Decode{Mode: decode.Stream}})
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.Get("content-encoding") != "" {
		t.Fatalf("expected content-encoding stripped in stream mode")
	}

	go func() {
		pw.Write([]byte(payload))
		pw.Close()
	}()
	data, err := io.ReadAll(resp.Stream())
	if err != nil || string(data) != "streamed" {
		t.Fatalf("unexpected stream %q (%v)", data, err)
	}
}

func TestNonH2ResponseRejected(t *testing.T) {
	conn := &fakeConn{handle: func(*http.Request) (*http.Response, error) {
		resp := respond(http.StatusOK, nil, "hi")
		resp.Proto, resp.ProtoMajor, resp.ProtoMinor = "HTTP/1.1", 1, 1
		return resp, nil
	}}
	c := newTestClient(conn, Options{})

	_, err := c.Do(context.Background(), Request{Path: "/"})
	if !errdef.Is(err, errdef.CodeTransport) {
		t.Fatalf("expected transport error for HTTP/1.1 response, got %v", err)
	}
	if len(c.InFlight()) != 0 {
		t.Fatalf("expected stream released")
	}
	if recent := c.Recent(); len(recent) != 1 || recent[0].State != stream.StateFailed {
		t.Fatalf("expected failed stream, got %+v", recent)
	}
}
