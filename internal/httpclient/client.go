// Package httpclient issues requests over one multiplexed HTTP/2 session and
// decodes their responses.
package httpclient

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/unkn0wn-root/hydro/internal/analysis"
	"github.com/unkn0wn-root/hydro/internal/codec"
	"github.com/unkn0wn-root/hydro/internal/errdef"
	"github.com/unkn0wn-root/hydro/internal/jar"
	"github.com/unkn0wn-root/hydro/internal/metrics"
	"github.com/unkn0wn-root/hydro/internal/stream"
	"github.com/unkn0wn-root/hydro/internal/transport"
)

const tracerName = "github.com/unkn0wn-root/hydro"

type Options struct {
	// Jar is the session jar shared by every request.
	Jar       jar.Jar
	Transport transport.Options
	// Codecs defaults to codec.Default().
	Codecs         *codec.Registry
	Logger         *zap.Logger
	TracerProvider trace.TracerProvider
	// History is the number of finished streams kept for Recent.
	History int
	// Metrics registers session collectors when set.
	Metrics prometheus.Registerer
	// OnClose runs once after the session is closed.
	OnClose func() error
}

type Client struct {
	base      *url.URL
	conn      transport.Conn
	jar       jar.Jar
	streams   *stream.Manager
	collector *collector
	log       *zap.Logger
	tracer    trace.Tracer
	metrics   *metrics.Metrics
	onClose   func() error

	closeOnce sync.Once
	closeErr  error
}

// Dial opens the session to rawURL and wraps it in a Client.
func Dial(ctx context.Context, rawURL string, opts Options) (*Client, error) {
	base, err := ParseBase(rawURL)
	if err != nil {
		return nil, err
	}
	conn, err := transport.Dial(ctx, base, opts.Transport)
	if err != nil {
		return nil, err
	}
	return New(conn, base, opts), nil
}

// ParseBase validates a session URL, keeping only scheme and host.
func ParseBase(rawURL string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, errdef.Wrap(errdef.CodeConfig, err, "parse session url")
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, errdef.New(errdef.CodeConfig, "session url %q needs a scheme and host", rawURL)
	}
	return &url.URL{Scheme: strings.ToLower(u.Scheme), Host: u.Host}, nil
}

// New wraps an established session.
func New(conn transport.Conn, base *url.URL, opts Options) *Client {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	tp := opts.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	codecs := opts.Codecs
	if codecs == nil {
		codecs = codec.Default()
	}
	history := opts.History
	if history <= 0 {
		history = 32
	}

	c := &Client{
		base:      &url.URL{Scheme: base.Scheme, Host: base.Host},
		conn:      conn,
		jar:       opts.Jar,
		streams:   stream.NewManager(history),
		collector: &collector{codecs: codecs},
		log:       logger.Named("hydro").With(zap.String("host", base.Host)),
		tracer:    tp.Tracer(tracerName),
		onClose:   opts.OnClose,
	}
	c.metrics = metrics.New(opts.Metrics, base.Host)
	c.streams.AddCompletionHook(c.logStream)
	if c.metrics != nil {
		c.streams.AddCompletionHook(c.metrics.ObserveStream)
	}
	return c
}

func (c *Client) logStream(s stream.Summary) {
	fields := []zap.Field{
		zap.String("stream", s.ID),
		zap.String("method", s.Method),
		zap.String("path", s.Path),
		zap.Stringer("state", s.State),
		zap.Duration("elapsed", s.EndedAt.Sub(s.StartedAt)),
		zap.Int("in_flight", c.streams.Len()),
	}
	if s.Err != nil {
		fields = append(fields, zap.Error(s.Err))
	}
	c.log.Debug("stream finished", fields...)
}

// URL returns the session origin.
func (c *Client) URL() *url.URL {
	u := *c.base
	return &u
}

// Do runs req and always returns the full response.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	return c.execute(ctx, req)
}

// Request runs req and returns the decoded body, or the *Response when
// req.Decode.Result is ResultResponse.
func (c *Client) Request(ctx context.Context, req Request) (any, error) {
	resp, err := c.execute(ctx, req)
	if err != nil {
		return nil, err
	}
	if req.Decode.Result == ResultResponse {
		return resp, nil
	}
	return resp.Body, nil
}

func (c *Client) Get(ctx context.Context, req Request) (any, error) {
	return c.Request(ctx, withMethod(req, http.MethodGet))
}

func (c *Client) Post(ctx context.Context, req Request) (any, error) {
	return c.Request(ctx, withMethod(req, http.MethodPost))
}

// FullRequest is Do under the name the other full shorthands share.
func (c *Client) FullRequest(ctx context.Context, req Request) (*Response, error) {
	return c.execute(ctx, req)
}

func (c *Client) FullGet(ctx context.Context, req Request) (*Response, error) {
	return c.execute(ctx, withMethod(req, http.MethodGet))
}

func (c *Client) FullPost(ctx context.Context, req Request) (*Response, error) {
	return c.execute(ctx, withMethod(req, http.MethodPost))
}

// SimpleRequest returns only the decoded body unless the caller explicitly
// asked for ResultResponse.
func (c *Client) SimpleRequest(ctx context.Context, req Request) (any, error) {
	if req.Decode.Result == ResultDefault {
		req.Decode.Result = ResultBody
	}
	return c.Request(ctx, req)
}

func (c *Client) SimpleGet(ctx context.Context, req Request) (any, error) {
	return c.SimpleRequest(ctx, withMethod(req, http.MethodGet))
}

func (c *Client) SimplePost(ctx context.Context, req Request) (any, error) {
	return c.SimpleRequest(ctx, withMethod(req, http.MethodPost))
}

// withMethod fills the method only when the caller left it empty. req is
// the shorthand's own copy.
func withMethod(req Request, method string) Request {
	if req.Method == "" {
		req.Method = method
	}
	return req
}

// InFlight lists streams that have not finished yet.
func (c *Client) InFlight() []stream.Summary {
	return c.streams.List()
}

// Cancel aborts one in-flight stream by the id InFlight reports. Its request
// fails with a transport error caused by stream.ErrCancelled.
func (c *Client) Cancel(id string) bool {
	return c.streams.Cancel(id, stream.ErrCancelled)
}

// Recent lists the most recently finished streams, oldest first.
func (c *Client) Recent() []stream.Summary {
	return c.streams.Recent()
}

// Latency summarises the elapsed time of the streams Recent returns.
func (c *Client) Latency(percentiles ...int) analysis.LatencyStats {
	return analysis.Latency(c.streams.Recent(), percentiles...)
}

// Close aborts every in-flight stream, then closes the session. Pending
// requests fail with a transport error. Later calls return the first
// result.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		n := c.streams.Close()
		c.log.Debug("closing session", zap.Int("aborted", n))
		var errs []error
		if err := c.conn.Close(); err != nil {
			errs = append(errs, errdef.Wrap(errdef.CodeTransport, err, "close session"))
		}
		if c.onClose != nil {
			if err := c.onClose(); err != nil {
				errs = append(errs, err)
			}
		}
		c.closeErr = errors.Join(errs...)
	})
	return c.closeErr
}
