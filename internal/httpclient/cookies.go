package httpclient

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/unkn0wn-root/hydro/internal/errdef"
	"github.com/unkn0wn-root/hydro/internal/header"
	"github.com/unkn0wn-root/hydro/internal/jar"
)

// CookieError lists every Set-Cookie value a jar refused, one entry per jar
// and cookie.
type CookieError struct {
	Errs []error
}

func (e *CookieError) Error() string {
	msgs := make([]string, 0, len(e.Errs))
	for _, err := range e.Errs {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("%d cookie(s) could not be set: %s", len(e.Errs), strings.Join(msgs, "; "))
}

func (e *CookieError) Unwrap() []error {
	return e.Errs
}

func (c *Client) readJar(req Request) jar.Jar {
	if req.Jar != nil {
		return req.Jar
	}
	return c.jar
}

// injectCookies adds the jar's cookie string as a default cookie header.
func (c *Client) injectCookies(ctx context.Context, req Request, hdr *header.Header, target string) error {
	j := c.readJar(req)
	if j == nil || hdr.Has("cookie") {
		return nil
	}
	cookies, err := j.CookieString(ctx, target)
	if err != nil {
		return errdef.Wrap(errdef.CodeJar, err, "read cookies for %s", target)
	}
	if cookies != "" {
		hdr.Set("cookie", cookies)
	}
	return nil
}

// reconcileCookies stores every Set-Cookie value into the request jar and
// the session jar. Refusals fail the request only in strict mode.
func (c *Client) reconcileCookies(ctx context.Context, req Request, resp *Response, target string) error {
	if req.Jar == nil && c.jar == nil {
		return nil
	}
	cookies := resp.Values("set-cookie")
	if len(cookies) == 0 {
		return nil
	}

	var failures []error
	failures = append(failures, storeCookies(ctx, req.Jar, cookies, target)...)
	failures = append(failures, storeCookies(ctx, c.jar, cookies, target)...)
	if len(failures) == 0 {
		return nil
	}

	if req.StrictCookies {
		return errdef.Wrap(errdef.CodeCookie, &CookieError{Errs: failures}, "store response cookies")
	}
	c.log.Debug("cookies rejected",
		zap.String("url", target),
		zap.Int("count", len(failures)),
		zap.Errors("errors", failures),
	)
	return nil
}

func storeCookies(ctx context.Context, j jar.Jar, cookies []string, target string) []error {
	if j == nil {
		return nil
	}
	var errs []error
	for _, cookie := range cookies {
		if err := j.SetCookie(ctx, cookie, target); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}
