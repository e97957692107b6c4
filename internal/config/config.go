// Package config describes a session in files and environment variables.
package config

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/unkn0wn-root/hydro/internal/duration"
	"github.com/unkn0wn-root/hydro/internal/errdef"
	"github.com/unkn0wn-root/hydro/internal/telemetry"
	"github.com/unkn0wn-root/hydro/internal/tlsconfig"
)

const envPrefix = "HYDRO_"

type Config struct {
	URL             string            `toml:"url" yaml:"url"`
	TLS             tlsconfig.Files   `toml:"tls" yaml:"tls"`
	DialTimeout     duration.Duration `toml:"dial_timeout" yaml:"dial_timeout"`
	ReadIdleTimeout duration.Duration `toml:"read_idle_timeout" yaml:"read_idle_timeout"`
	PingTimeout     duration.Duration `toml:"ping_timeout" yaml:"ping_timeout"`
	// Cookies gives the session an in-memory jar.
	Cookies bool `toml:"cookies" yaml:"cookies"`
	// History is how many finished streams the client remembers.
	History   int              `toml:"history" yaml:"history"`
	Telemetry telemetry.Config `toml:"telemetry" yaml:"telemetry"`

	// BaseDir resolves relative TLS paths. Load sets it to the directory of
	// the file.
	BaseDir string `toml:"-" yaml:"-"`
}

func Default() Config {
	return Config{
		DialTimeout: duration.Duration(10 * time.Second),
		Cookies:     true,
		History:     32,
		Telemetry:   telemetry.Default(),
	}
}

// Load reads a TOML or YAML file, chosen by extension, over Default.
// Unknown keys are errors.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errdef.Wrap(errdef.CodeConfig, err, "read config")
	}
	cfg, err := Parse(data, filepath.Ext(path))
	if err != nil {
		return Config{}, err
	}
	if abs, err := filepath.Abs(path); err == nil {
		cfg.BaseDir = filepath.Dir(abs)
	} else {
		cfg.BaseDir = filepath.Dir(path)
	}
	return cfg, nil
}

// Parse decodes data in the format named by ext (".toml", ".yaml", ".yml").
func Parse(data []byte, ext string) (Config, error) {
	cfg := Default()
	switch strings.ToLower(ext) {
	case ".toml":
		dec := toml.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&cfg); err != nil {
			return Config{}, errdef.Wrap(errdef.CodeConfig, err, "decode toml")
		}
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return Config{}, errdef.Wrap(errdef.CodeConfig, err, "decode yaml")
		}
	default:
		return Config{}, errdef.New(errdef.CodeConfig, "unsupported config format %q", ext)
	}
	return cfg, nil
}

// FromEnv builds a config from Default and HYDRO_* variables.
func FromEnv(getenv func(string) string) Config {
	return Default().Overlay(getenv)
}

// Overlay applies HYDRO_* variables on top of c. Values that fail to parse
// are ignored.
func (c Config) Overlay(getenv func(string) string) Config {
	if getenv == nil {
		return c
	}
	get := func(name string) string {
		return strings.TrimSpace(getenv(envPrefix + name))
	}

	cfg := c
	if v := get("URL"); v != "" {
		cfg.URL = v
	}
	if v := get("ROOT_CAS"); v != "" {
		cfg.TLS.RootCAs = filepath.SplitList(v)
	}
	if v := get("ROOT_MODE"); v != "" {
		cfg.TLS.RootMode = tlsconfig.RootMode(v)
	}
	if v := get("CLIENT_CERT"); v != "" {
		cfg.TLS.ClientCert = v
	}
	if v := get("CLIENT_KEY"); v != "" {
		cfg.TLS.ClientKey = v
	}
	if v, err := strconv.ParseBool(get("INSECURE")); err == nil {
		cfg.TLS.Insecure = v
	}
	if v, err := strconv.ParseBool(get("COOKIES")); err == nil {
		cfg.Cookies = v
	}
	if v, err := strconv.Atoi(get("HISTORY")); err == nil && v > 0 {
		cfg.History = v
	}
	for name, dst := range map[string]*duration.Duration{
		"DIAL_TIMEOUT":      &cfg.DialTimeout,
		"READ_IDLE_TIMEOUT": &cfg.ReadIdleTimeout,
		"PING_TIMEOUT":      &cfg.PingTimeout,
	} {
		if v := get(name); v != "" {
			if d, err := duration.Parse(v); err == nil {
				*dst = duration.Duration(d)
			}
		}
	}
	cfg.Telemetry = cfg.Telemetry.Overlay(getenv)
	return cfg
}

// Validate checks what a dial needs.
func (c Config) Validate() error {
	if strings.TrimSpace(c.URL) == "" {
		return errdef.New(errdef.CodeConfig, "url is required")
	}
	scheme, _, ok := strings.Cut(c.URL, "://")
	if !ok {
		return errdef.New(errdef.CodeConfig, "url %q has no scheme", c.URL)
	}
	switch strings.ToLower(scheme) {
	case "http", "https":
	default:
		return errdef.New(errdef.CodeConfig, "unsupported url scheme %q", scheme)
	}
	if c.TLS.Empty() {
		return nil
	}
	if strings.ToLower(scheme) == "http" {
		return errdef.New(errdef.CodeConfig, "tls options need an https url")
	}
	return nil
}
