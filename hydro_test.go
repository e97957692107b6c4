package hydro

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MakeNowJust/heredoc"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/greet", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Add("Set-Cookie", "bad=1; Domain=elsewhere.test")
		_, _ = w.Write([]byte("hello " + r.URL.Query().Get("name")))
	})
	mux.HandleFunc("/form", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		out := map[string]string{"method": r.Method}
		for name, values := range r.MultipartForm.Value {
			out[name] = values[0]
		}
		for name, files := range r.MultipartForm.File {
			out[name] = files[0].Filename
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(out)
	})
	srv := httptest.NewServer(h2c.NewHandler(mux, &http2.Server{}))
	t.Cleanup(srv.Close)
	return srv
}

func TestDialConfigFromFile(t *testing.T) {
	srv := newServer(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "hydro.toml")
	content := heredoc.Docf(`
		url = %q
		history = 4
	`, srv.URL)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadConfig(path, nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	core, logs := observer.New(zap.DebugLevel)
	c, err := DialConfig(context.Background(), cfg, zap.New(core), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	got, err := c.SimpleGet(context.Background(), Request{Path: "/greet", Query: map[string]any{"name": "h2"}})
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if got != "hello h2" {
		t.Fatalf("unexpected body %#v", got)
	}
	if logs.FilterMessage("cookies rejected").Len() != 1 {
		t.Fatalf("expected rejected cookie to be logged, got %v", logs.All())
	}
	if logs.FilterMessage("stream finished").Len() != 1 {
		t.Fatalf("expected stream completion log, got %v", logs.All())
	}

	if err := c.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	_, err = c.SimpleGet(context.Background(), Request{Path: "/greet"})
	if !IsCode(err, CodeTransport) || !errors.Is(err, ErrClosed) {
		t.Fatalf("expected closed session error, got %v", err)
	}
}

func TestDialConfigValidates(t *testing.T) {
	_, err := DialConfig(context.Background(), Config{}, nil, nil)
	if CodeOf(err) != CodeConfig {
		t.Fatalf("expected config error, got %v", err)
	}
}

func TestStrictCookiesThroughFacade(t *testing.T) {
	srv := newServer(t)
	c, err := Dial(context.Background(), srv.URL, Options{Jar: NewJar()})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.Close()

	_, err = c.Do(context.Background(), Request{Path: "/greet", StrictCookies: true})
	var ce *CookieError
	if !errors.As(err, &ce) || len(ce.Errs) != 1 {
		t.Fatalf("expected one cookie failure, got %v", err)
	}
	if !strings.Contains(err.Error(), "elsewhere.test") {
		t.Fatalf("expected domain in message, got %q", err.Error())
	}
}

func TestNewRejectsBadURL(t *testing.T) {
	if _, err := New(nil, "not a url", Options{}); !IsCode(err, CodeConfig) {
		t.Fatalf("expected config error, got %v", err)
	}
}

func TestLoadConfigDiscovers(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HYDRO_CONFIG_DIR", dir)
	content := heredoc.Doc(`
		url: https://api.example.test
		history: 8
	`)
	if err := os.WriteFile(filepath.Join(dir, "hydro.yaml"), []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	env := map[string]string{"HYDRO_HISTORY": "16"}
	cfg, err := LoadConfig("", func(k string) string { return env[k] })
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.URL != "https://api.example.test" || cfg.History != 16 || cfg.BaseDir == "" {
		t.Fatalf("unexpected config %+v", cfg)
	}
}

func TestLoadConfigFallsBackToEnv(t *testing.T) {
	t.Setenv("HYDRO_CONFIG_DIR", t.TempDir())
	env := map[string]string{"HYDRO_URL": "http://localhost:8080", "HYDRO_DIAL_TIMEOUT": "2"}
	cfg, err := LoadConfig("", func(k string) string { return env[k] })
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.URL != "http://localhost:8080" || cfg.DialTimeout.Std().Seconds() != 2 || !cfg.Cookies {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestFieldsAndBodyAs(t *testing.T) {
	srv := newServer(t)
	c, err := Dial(context.Background(), srv.URL, Options{})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.Close()

	form := Fields(map[string]Field{
		"name":   {Value: "hydro"},
		"upload": {Reader: strings.NewReader("data"), FileName: "a.txt"},
	})
	resp, err := c.FullRequest(context.Background(), Request{Path: "/form", FormData: form})
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	body, ok := BodyAs[map[string]any](resp)
	if !ok {
		t.Fatalf("expected JSON object body, got %#v", resp.Body)
	}
	if body["method"] != http.MethodPost || body["name"] != "hydro" || body["upload"] != "a.txt" {
		t.Fatalf("unexpected echo %v", body)
	}
	if _, ok := BodyAs[string](resp); ok {
		t.Fatalf("object body should not read as string")
	}
}

func TestParseMode(t *testing.T) {
	cases := map[string]Mode{"": ModeAuto, "JSON": ModeJSON, "stream": ModeStream, "text": ModeText, "bytes": ModeBytes}
	for in, want := range cases {
		if got, ok := ParseMode(in); !ok || got != want {
			t.Fatalf("ParseMode(%q) = %v, %v", in, got, ok)
		}
	}
	if _, ok := ParseMode("xml"); ok {
		t.Fatalf("expected unknown mode to be rejected")
	}
}

func TestBodyKinds(t *testing.T) {
	j, err := JSONBody(map[string]int{"a": 1})
	if err != nil {
		t.Fatalf("json body: %v", err)
	}
	cases := []struct {
		body Body
		want BodyKind
	}{
		{Body{}, BodyNone},
		{Bytes([]byte("x")), BodyBytes},
		{Text("x"), BodyText},
		{Stream(strings.NewReader("x")), BodyStream},
		{Stream(nil), BodyNone},
		{j, BodyBytes},
	}
	for i, tc := range cases {
		if got := tc.body.Kind(); got != tc.want {
			t.Fatalf("case %d: expected kind %v, got %v", i, tc.want, got)
		}
	}
}
