package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/MakeNowJust/heredoc"

	"github.com/unkn0wn-root/hydro/internal/errdef"
	"github.com/unkn0wn-root/hydro/internal/tlsconfig"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadTOML(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "hydro.toml", heredoc.Doc(`
		url = "https://api.example.com"
		dial_timeout = "3s"
		ping_timeout = "1"
		cookies = false
		history = 8

		[tls]
		root_cas = ["ca.pem"]
		root_mode = "append"

		[telemetry]
		endpoint = "collector:4317"
		insecure = true
		timeout = "2s"
		[telemetry.headers]
		x-api-key = "abc"
	`))

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.URL != "https://api.example.com" || cfg.Cookies || cfg.History != 8 {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.DialTimeout.Std() != 3*time.Second || cfg.PingTimeout.Std() != time.Second {
		t.Fatalf("unexpected timeouts %v %v", cfg.DialTimeout, cfg.PingTimeout)
	}
	if len(cfg.TLS.RootCAs) != 1 || cfg.TLS.RootMode != tlsconfig.RootModeAppend {
		t.Fatalf("unexpected tls %+v", cfg.TLS)
	}
	if cfg.BaseDir != dir {
		t.Fatalf("expected base dir %s, got %s", dir, cfg.BaseDir)
	}
	if !cfg.Telemetry.Enabled() || cfg.Telemetry.Headers["x-api-key"] != "abc" || cfg.Telemetry.ServiceName != "hydro" {
		t.Fatalf("unexpected telemetry %+v", cfg.Telemetry)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "hydro.yaml", heredoc.Doc(`
		url: http://localhost:8080
		read_idle_timeout: 30s
		telemetry:
		  service: edge
	`))

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.URL != "http://localhost:8080" || cfg.ReadIdleTimeout.Std() != 30*time.Second {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if !cfg.Cookies || cfg.History != 32 || cfg.DialTimeout.Std() != 10*time.Second {
		t.Fatalf("expected defaults to survive, got %+v", cfg)
	}
	if cfg.Telemetry.ServiceName != "edge" || cfg.Telemetry.Enabled() {
		t.Fatalf("unexpected telemetry %+v", cfg.Telemetry)
	}
}

func TestLoadEmptyYAML(t *testing.T) {
	path := writeFile(t, t.TempDir(), "hydro.yml", "")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.History != Default().History {
		t.Fatalf("expected defaults, got %+v", cfg)
	}
}

func TestLoadRejects(t *testing.T) {
	dir := t.TempDir()
	cases := map[string]string{
		"unknown key toml": writeFile(t, dir, "a.toml", "urll = \"x\"\n"),
		"unknown key yaml": writeFile(t, dir, "b.yaml", "urll: x\n"),
		"bad duration":     writeFile(t, dir, "c.toml", "dial_timeout = \"soon\"\n"),
		"bad format":       writeFile(t, dir, "d.json", "{}"),
		"missing":          filepath.Join(dir, "missing.toml"),
	}
	for name, path := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(path); !errdef.Is(err, errdef.CodeConfig) {
				t.Fatalf("expected config error, got %v", err)
			}
		})
	}
}

func TestFromEnv(t *testing.T) {
	env := map[string]string{
		"HYDRO_URL":                 "https://edge.test",
		"HYDRO_ROOT_CAS":            "a.pem" + string(filepath.ListSeparator) + "b.pem",
		"HYDRO_INSECURE":            "true",
		"HYDRO_COOKIES":             "false",
		"HYDRO_HISTORY":             "4",
		"HYDRO_DIAL_TIMEOUT":        "250ms",
		"HYDRO_PING_TIMEOUT":        "nope",
		"HYDRO_TRACE_OTEL_ENDPOINT": "collector:4317",
	}
	cfg := FromEnv(func(k string) string { return env[k] })

	if cfg.URL != "https://edge.test" || !cfg.TLS.Insecure || cfg.Cookies || cfg.History != 4 {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if len(cfg.TLS.RootCAs) != 2 {
		t.Fatalf("expected two root cas, got %v", cfg.TLS.RootCAs)
	}
	if cfg.DialTimeout.Std() != 250*time.Millisecond || cfg.PingTimeout != 0 {
		t.Fatalf("unexpected timeouts %v %v", cfg.DialTimeout, cfg.PingTimeout)
	}
	if cfg.Telemetry.Endpoint != "collector:4317" {
		t.Fatalf("expected telemetry overlay, got %+v", cfg.Telemetry)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
		ok   bool
	}{
		{"https", Config{URL: "https://a.test"}, true},
		{"h2c", Config{URL: "http://a.test"}, true},
		{"missing", Config{}, false},
		{"no scheme", Config{URL: "a.test"}, false},
		{"ws", Config{URL: "ws://a.test"}, false},
		{"tls on h2c", Config{URL: "http://a.test", TLS: tlsconfig.Files{Insecure: true}}, false},
	}
	for _, tc := range cases {
		err := tc.cfg.Validate()
		if tc.ok && err != nil {
			t.Fatalf("%s: unexpected error %v", tc.name, err)
		}
		if !tc.ok && !errdef.Is(err, errdef.CodeConfig) {
			t.Fatalf("%s: expected config error, got %v", tc.name, err)
		}
	}
}

func TestDiscover(t *testing.T) {
	dir := t.TempDir()
	if _, ok := Discover(dir); ok {
		t.Fatalf("expected nothing in an empty dir")
	}
	writeFile(t, dir, "hydro.yaml", "url: http://a.test\n")
	path, ok := Discover(dir)
	if !ok || filepath.Base(path) != "hydro.yaml" {
		t.Fatalf("expected hydro.yaml, got %q", path)
	}
	writeFile(t, dir, "hydro.toml", "url = \"http://a.test\"\n")
	if path, _ := Discover(dir); filepath.Base(path) != "hydro.toml" {
		t.Fatalf("expected toml to take precedence, got %q", path)
	}
}

func TestDirOverride(t *testing.T) {
	t.Setenv("HYDRO_CONFIG_DIR", "/tmp/hydro-test")
	if Dir() != "/tmp/hydro-test" {
		t.Fatalf("expected override, got %s", Dir())
	}
}
