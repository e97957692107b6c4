package httpclient

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/unkn0wn-root/hydro/internal/errdef"
	"github.com/unkn0wn-root/hydro/internal/form"
	"github.com/unkn0wn-root/hydro/internal/header"
	"github.com/unkn0wn-root/hydro/internal/querystr"
	"github.com/unkn0wn-root/hydro/internal/stream"
)

// execute runs one request through the pipeline. On decode errors the
// response is returned alongside the error so its raw bytes stay reachable.
func (c *Client) execute(ctx context.Context, req Request) (*Response, error) {
	ctx, span := c.tracer.Start(ctx, "hydro.request", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	resp, err := c.run(ctx, req, span)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(errdef.CodeOf(err)))
		c.log.Debug("request failed",
			zap.String("path", req.Path),
			zap.String("code", string(errdef.CodeOf(err))),
			zap.Error(err),
		)
	}
	return resp, err
}

func (c *Client) run(ctx context.Context, req Request, span trace.Span) (*Response, error) {
	if c.streams.Closed() {
		return nil, errdef.Wrap(errdef.CodeTransport, stream.ErrClosed, "open stream")
	}

	path, err := querystr.Merge(req.Path, req.Query)
	if err != nil {
		return nil, err
	}
	path = ensureSlash(path)
	target := c.base.Scheme + "://" + c.base.Host + path

	hdr := req.Headers.Clone()
	if err := c.injectCookies(ctx, req, hdr, target); err != nil {
		return nil, err
	}

	method, body, err := resolveBody(req, hdr)
	if err != nil {
		return nil, err
	}

	streamCtx, h, err := c.streams.Register(ctx, method, path)
	if err != nil {
		return nil, errdef.Wrap(errdef.CodeTransport, err, "open stream")
	}
	c.metrics.StreamOpened()
	span.SetAttributes(
		attribute.String("http.request.method", method),
		attribute.String("url.path", path),
		attribute.String("hydro.stream.id", h.ID()),
	)

	httpReq, sent := c.buildRequest(streamCtx, method, path, hdr, body)
	raw, err := c.collector.collect(c.conn, httpReq, req.Decode.Mode, h, sent)
	if err != nil {
		h.Done(err)
		return nil, err
	}
	if raw.Buffered() {
		h.Done(nil)
	}
	span.SetAttributes(attribute.Int("http.response.status_code", raw.StatusCode))
	c.metrics.ObserveResponse(method, raw.StatusCode)

	resp := newResponse(raw)
	if err := resp.decode(req.Decode); err != nil {
		return resp, err
	}
	if err := c.reconcileCookies(ctx, req, resp, target); err != nil {
		resp.close()
		return nil, err
	}
	return resp, nil
}

// resolveBody picks the payload, filling method and header defaults. hdr is
// the request's private copy.
func resolveBody(req Request, hdr *header.Header) (string, Body, error) {
	method := req.Method
	body := req.Body

	switch {
	case !req.Body.IsZero():
		if body.contentType != "" {
			hdr.SetDefault("content-type", body.contentType)
		}
	case req.Form != nil:
		payload, err := form.URLEncoded(req.Form)
		if err != nil {
			return "", Body{}, err
		}
		if method == "" {
			method = http.MethodPost
		}
		form.URLEncodedHeaders(payload).Each(func(k string, v []string) bool {
			hdr.SetDefault(k, v...)
			return true
		})
		body = Bytes(payload)
	case req.FormData != nil:
		payload, fh, err := req.FormData.Build()
		if err != nil {
			return "", Body{}, err
		}
		if method == "" {
			method = http.MethodPost
		}
		hdr.SetDefault("content-type", form.ContentTypeMultipart)
		hdr.Merge(fh)
		body = Bytes(payload)
	}

	if method == "" {
		method = http.MethodGet
	}
	return method, body, nil
}

func (c *Client) buildRequest(
	ctx context.Context,
	method, path string,
	hdr *header.Header,
	body Body,
) (*http.Request, *sentBody) {
	req := &http.Request{
		Method:     method,
		URL:        c.requestURL(path),
		Proto:      "HTTP/2.0",
		ProtoMajor: 2,
		Header:     hdr.HTTP(),
		Host:       c.base.Host,
	}
	if host := hdr.Get("host"); host != "" {
		req.Host = host
		delete(req.Header, "host")
	}

	var sent *sentBody
	rc, n := body.open()
	switch {
	case rc == nil:
	case n == 0:
		rc.Close()
		req.Body = http.NoBody
	default:
		sent = &sentBody{rc: rc}
		req.Body = sent
		req.ContentLength = n
		if cl, err := strconv.ParseInt(hdr.Get("content-length"), 10, 64); err == nil && cl >= 0 {
			req.ContentLength = cl
		}
	}
	return req.WithContext(ctx), sent
}

// requestURL carries path through to the :path pseudo-header unchanged.
// RequestURI reads an Opaque value starting with "//" as an authority, so
// such paths go through Path and RawPath instead.
func (c *Client) requestURL(path string) *url.URL {
	p, rawQuery, _ := strings.Cut(path, "?")
	u := &url.URL{Scheme: c.base.Scheme, Host: c.base.Host, RawQuery: rawQuery}
	if !strings.HasPrefix(p, "//") {
		u.Opaque = p
		return u
	}
	if unescaped, err := url.PathUnescape(p); err == nil {
		u.Path, u.RawPath = unescaped, p
	} else {
		u.Path = p
	}
	return u
}

func ensureSlash(path string) string {
	if path == "*" || strings.HasPrefix(path, "/") {
		return path
	}
	return "/" + path
}
