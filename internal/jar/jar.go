// Package jar defines the cookie store the client talks to and a memory
// implementation on top of net/http/cookiejar.
package jar

import (
	"context"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"

	"github.com/unkn0wn-root/hydro/internal/errdef"
)

// Jar is keyed by URL. Implementations must be safe for concurrent use.
type Jar interface {
	CookieString(ctx context.Context, rawURL string) (string, error)
	SetCookie(ctx context.Context, cookie string, rawURL string) error
}

type Memory struct {
	jar *cookiejar.Jar
}

func NewMemory() *Memory {
	// cookiejar.New never returns a non-nil error.
	j, _ := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	return &Memory{jar: j}
}

func (m *Memory) CookieString(_ context.Context, rawURL string) (string, error) {
	u, err := parseURL(rawURL)
	if err != nil {
		return "", err
	}
	cookies := m.jar.Cookies(u)
	parts := make([]string, 0, len(cookies))
	for _, c := range cookies {
		parts = append(parts, c.Name+"="+c.Value)
	}
	return strings.Join(parts, "; "), nil
}

// SetCookie stores one Set-Cookie value. Unlike cookiejar it reports cookies
// it refuses: malformed values, public-suffix domains and domains the request
// host does not match.
func (m *Memory) SetCookie(_ context.Context, raw string, rawURL string) error {
	u, err := parseURL(rawURL)
	if err != nil {
		return err
	}
	c, err := http.ParseSetCookie(raw)
	if err != nil {
		return errdef.Wrap(errdef.CodeJar, err, "parse cookie %q", truncate(raw))
	}
	if c.Domain != "" {
		host := strings.ToLower(u.Hostname())
		domain := strings.ToLower(strings.TrimPrefix(c.Domain, "."))
		if !domainMatch(host, domain) {
			return errdef.New(errdef.CodeJar, "cookie %s: domain %q does not match host %q", c.Name, c.Domain, host)
		}
		if host != domain && isPublicSuffix(domain) {
			return errdef.New(errdef.CodeJar, "cookie %s: domain %q is a public suffix", c.Name, c.Domain)
		}
	}
	m.jar.SetCookies(u, []*http.Cookie{c})
	return nil
}

func parseURL(rawURL string) (*url.URL, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, errdef.Wrap(errdef.CodeJar, err, "parse cookie url")
	}
	if u.Host == "" {
		return nil, errdef.New(errdef.CodeJar, "cookie url %q has no host", rawURL)
	}
	return u, nil
}

func domainMatch(host, domain string) bool {
	if host == domain {
		return true
	}
	return strings.HasSuffix(host, "."+domain)
}

func isPublicSuffix(domain string) bool {
	ps, icann := publicsuffix.PublicSuffix(domain)
	return icann && ps == domain
}

func truncate(s string) string {
	const max = 64
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
