package tlsconfig

import (
	"crypto/tls"
	"crypto/x509"
	"os"
	"path/filepath"
	"strings"

	"github.com/unkn0wn-root/hydro/internal/errdef"
)

// ALPN token every session negotiates.
const ProtoH2 = "h2"

type Files struct {
	RootCAs    []string `toml:"root_cas" yaml:"root_cas"`
	ClientCert string   `toml:"client_cert" yaml:"client_cert"`
	ClientKey  string   `toml:"client_key" yaml:"client_key"`
	Insecure   bool     `toml:"insecure" yaml:"insecure"`
	RootMode   RootMode `toml:"root_mode" yaml:"root_mode"`
}

type RootMode string

const (
	RootModeReplace RootMode = "replace"
	RootModeAppend  RootMode = "append"
)

// Empty reports whether no TLS material or override was configured.
func (f Files) Empty() bool {
	return len(f.RootCAs) == 0 && f.ClientCert == "" && f.ClientKey == "" && !f.Insecure
}

// Build constructs a tls.Config that offers only h2 over ALPN, using custom CAs
// with optional system roots plus any client certs. Paths are resolved relative
// to baseDir when not absolute.
func Build(cfg Files, baseDir, serverName string) (*tls.Config, error) {
	mode := RootMode(strings.ToLower(strings.TrimSpace(string(cfg.RootMode))))
	switch mode {
	case "":
		mode = RootModeReplace
	case RootModeReplace, RootModeAppend:
	default:
		return nil, errdef.New(errdef.CodeConfig, "unknown tls root mode %q", cfg.RootMode)
	}

	tc := &tls.Config{
		InsecureSkipVerify: cfg.Insecure, // nolint:gosec
		ServerName:         serverName,
		NextProtos:         []string{ProtoH2},
		MinVersion:         tls.VersionTLS12,
	}

	if len(cfg.RootCAs) > 0 {
		pool, err := loadRootCAs(cfg.RootCAs, baseDir, mode == RootModeAppend)
		if err != nil {
			return nil, err
		}
		tc.RootCAs = pool
	}

	if cfg.ClientCert != "" || cfg.ClientKey != "" {
		if cfg.ClientCert == "" || cfg.ClientKey == "" {
			return nil, errdef.New(errdef.CodeConfig, "client certificate and key are both required")
		}
		cert, err := loadClientCert(cfg.ClientCert, cfg.ClientKey, baseDir)
		if err != nil {
			return nil, err
		}
		tc.Certificates = []tls.Certificate{cert}
	}

	return tc, nil
}

func loadRootCAs(paths []string, baseDir string, mergeSystem bool) (*x509.CertPool, error) {
	var pool *x509.CertPool
	if mergeSystem {
		pool, _ = x509.SystemCertPool()
	}
	if pool == nil {
		pool = x509.NewCertPool()
	}

	for _, p := range paths {
		data, err := os.ReadFile(resolvePath(p, baseDir))
		if err != nil {
			return nil, errdef.Wrap(errdef.CodeConfig, err, "read root ca %s", p)
		}
		if ok := pool.AppendCertsFromPEM(data); !ok {
			return nil, errdef.New(errdef.CodeConfig, "append cert from %s", p)
		}
	}
	return pool, nil
}

func loadClientCert(certPath, keyPath, baseDir string) (tls.Certificate, error) {
	cert, err := tls.LoadX509KeyPair(resolvePath(certPath, baseDir), resolvePath(keyPath, baseDir))
	if err != nil {
		return tls.Certificate{}, errdef.Wrap(errdef.CodeConfig, err, "load client certificate")
	}
	return cert, nil
}

func resolvePath(path, baseDir string) string {
	if filepath.IsAbs(path) || baseDir == "" {
		return filepath.Clean(path)
	}
	return filepath.Clean(filepath.Join(baseDir, path))
}
