// Package hydro is an HTTP/2 client that runs every request of a session
// over one multiplexed connection and decodes responses by content type.
//
//	c, err := hydro.Dial(ctx, "https://api.example.com", hydro.Options{Jar: hydro.NewJar()})
//	if err != nil {
//		return err
//	}
//	defer c.Close()
//
//	body, err := c.SimpleGet(ctx, hydro.Request{Path: "/users", Query: map[string]any{"page": 2}})
package hydro

import (
	"context"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/unkn0wn-root/hydro/internal/analysis"
	"github.com/unkn0wn-root/hydro/internal/config"
	"github.com/unkn0wn-root/hydro/internal/decode"
	"github.com/unkn0wn-root/hydro/internal/errdef"
	"github.com/unkn0wn-root/hydro/internal/form"
	"github.com/unkn0wn-root/hydro/internal/header"
	"github.com/unkn0wn-root/hydro/internal/httpclient"
	"github.com/unkn0wn-root/hydro/internal/jar"
	"github.com/unkn0wn-root/hydro/internal/stream"
	"github.com/unkn0wn-root/hydro/internal/telemetry"
	"github.com/unkn0wn-root/hydro/internal/transport"
)

type (
	Client        = httpclient.Client
	Options       = httpclient.Options
	Request       = httpclient.Request
	Response      = httpclient.Response
	RawResponse   = httpclient.RawResponse
	Body          = httpclient.Body
	BodyKind      = httpclient.BodyKind
	Decode        = httpclient.Decode
	Result        = httpclient.Result
	TransformFunc = httpclient.TransformFunc
	CookieError   = httpclient.CookieError

	Header    = header.Header
	Jar       = jar.Jar
	Multipart = form.Multipart
	Field     = form.Field
	Mode      = decode.Mode

	TransportOptions = transport.Options
	StreamSummary    = stream.Summary
	LatencyStats     = analysis.LatencyStats

	Config = config.Config
	Error  = errdef.Error
	Code   = errdef.Code
)

const (
	ResultDefault  = httpclient.ResultDefault
	ResultBody     = httpclient.ResultBody
	ResultResponse = httpclient.ResultResponse

	BodyNone   = httpclient.BodyNone
	BodyBytes  = httpclient.BodyBytes
	BodyText   = httpclient.BodyText
	BodyStream = httpclient.BodyStream

	ModeAuto   = decode.Auto
	ModeBytes  = decode.Bytes
	ModeText   = decode.Text
	ModeJSON   = decode.JSON
	ModeStream = decode.Stream

	CodeTransport = errdef.CodeTransport
	CodePartial   = errdef.CodePartial
	CodeDecode    = errdef.CodeDecode
	CodeCookie    = errdef.CodeCookie
	CodeJar       = errdef.CodeJar
	CodeBody      = errdef.CodeBody
	CodeConfig    = errdef.CodeConfig
	CodeHTTP      = errdef.CodeHTTP
)

var (
	// ErrClosed is the cause of requests aborted by Client.Close.
	ErrClosed = stream.ErrClosed
	// ErrCancelled is the cause of requests aborted by Client.Cancel.
	ErrCancelled = stream.ErrCancelled
)

const defaultDialTimeout = 10 * time.Second

// Dial opens a session to rawURL: TLS with ALPN h2 for https, h2c with prior
// knowledge for http.
func Dial(ctx context.Context, rawURL string, opts Options) (*Client, error) {
	return httpclient.Dial(ctx, rawURL, opts)
}

// New wraps an already established HTTP/2 connection.
func New(conn transport.Conn, rawURL string, opts Options) (*Client, error) {
	base, err := httpclient.ParseBase(rawURL)
	if err != nil {
		return nil, err
	}
	return httpclient.New(conn, base, opts), nil
}

// DialConfig dials the session cfg describes. When cfg enables telemetry the
// exporter is flushed by Client.Close. reg may be nil.
func DialConfig(ctx context.Context, cfg Config, logger *zap.Logger, reg prometheus.Registerer) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	tp, shutdown, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		return nil, err
	}

	opts := Options{
		Transport: transport.Options{
			TLS:             cfg.TLS,
			BaseDir:         cfg.BaseDir,
			DialTimeout:     cfg.DialTimeout.Or(defaultDialTimeout),
			ReadIdleTimeout: cfg.ReadIdleTimeout.Std(),
			PingTimeout:     cfg.PingTimeout.Std(),
		},
		Logger:         logger,
		TracerProvider: tp,
		History:        cfg.History,
		Metrics:        reg,
		OnClose: func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return shutdown(ctx)
		},
	}
	if cfg.Cookies {
		opts.Jar = NewJar()
	}

	c, err := Dial(ctx, cfg.URL, opts)
	if err != nil {
		_ = opts.OnClose()
		return nil, err
	}
	return c, nil
}

// LoadConfig reads a TOML or YAML session file and applies HYDRO_*
// variables from getenv on top. A nil getenv skips the environment. An empty
// path looks for hydro.toml, hydro.yaml or hydro.yml in the user config
// directory (HYDRO_CONFIG_DIR overrides it) and falls back to
// ConfigFromEnv when none exists.
func LoadConfig(path string, getenv func(string) string) (Config, error) {
	if path == "" {
		found, ok := config.Discover(config.Dir())
		if !ok {
			return ConfigFromEnv(getenv), nil
		}
		path = found
	}
	cfg, err := config.Load(path)
	if err != nil {
		return Config{}, err
	}
	return cfg.Overlay(getenv), nil
}

// ConfigFromEnv builds a session config from defaults and HYDRO_* variables.
func ConfigFromEnv(getenv func(string) string) Config {
	return config.FromEnv(getenv)
}

// ParseMode reads a decode mode name: auto, bytes, text, json or stream.
func ParseMode(s string) (Mode, bool) {
	return decode.ParseMode(s)
}

func NewHeader() *Header {
	return header.New()
}

// HeaderFrom builds a header from a plain map, ordered by key.
func HeaderFrom(m map[string]string) *Header {
	return header.FromMap(m)
}

// NewJar returns an in-memory cookie jar that applies public-suffix rules.
func NewJar() Jar {
	return jar.NewMemory()
}

func NewMultipart() *Multipart {
	return form.NewMultipart()
}

// Fields builds a multipart form from a map, ordered by field name.
func Fields(fields map[string]Field) *Multipart {
	return form.Fields(fields)
}

// BodyAs returns the decoded body of r as a T.
func BodyAs[T any](r *Response) (T, bool) {
	return httpclient.BodyAs[T](r)
}

func Bytes(b []byte) Body {
	return httpclient.Bytes(b)
}

func Text(s string) Body {
	return httpclient.Text(s)
}

func Stream(r io.Reader) Body {
	return httpclient.Stream(r)
}

func JSONBody(v any) (Body, error) {
	return httpclient.JSONBody(v)
}

// IsCode reports whether err carries code.
func IsCode(err error, code Code) bool {
	return errdef.Is(err, code)
}

func CodeOf(err error) Code {
	return errdef.CodeOf(err)
}
