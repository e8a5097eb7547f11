package transport

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/jonwraymond/jatpclient/autherr"
)

// TLSSettings configures TLS and mutual TLS for the connection.
type TLSSettings struct {
	// Enabled turns TLS on. All other fields are ignored when false.
	Enabled bool

	// CAFile is a PEM bundle used to verify the server.
	// If empty, the system roots are used.
	CAFile string

	// CertFile and KeyFile hold the client certificate for mTLS.
	// Both or neither must be set.
	CertFile string
	KeyFile  string

	// ServerName overrides the name used for SNI and verification.
	// If empty, the endpoint host is used.
	ServerName string

	// InsecureSkipVerify disables server certificate verification.
	// Intended for local development only.
	InsecureSkipVerify bool
}

// MutualTLS reports whether a client certificate is configured.
func (s TLSSettings) MutualTLS() bool {
	return s.CertFile != "" && s.KeyFile != ""
}

// Validate checks the cert/key pairing and that referenced files exist.
// The private key must also be readable.
func (s TLSSettings) Validate() error {
	if !s.Enabled {
		return nil
	}

	if (s.CertFile == "") != (s.KeyFile == "") {
		return ErrCertKeyPairing.Clone()
	}

	for _, f := range []struct{ label, path string }{
		{"CA certificate", s.CAFile},
		{"client certificate", s.CertFile},
		{"client key", s.KeyFile},
	} {
		if f.path == "" {
			continue
		}
		if _, err := os.Stat(f.path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return autherr.Wrap(autherr.KindConnection, err,
					fmt.Sprintf("transport: %s file not found: %s", f.label, f.path))
			}
			return autherr.Wrap(autherr.KindConnection, err,
				fmt.Sprintf("transport: stat %s file %s: %v", f.label, f.path, err))
		}
	}

	if s.KeyFile != "" {
		fh, err := os.Open(s.KeyFile)
		if err != nil {
			return autherr.Wrap(autherr.KindConnection, err,
				fmt.Sprintf("transport: client key file is not readable: %s", s.KeyFile))
		}
		_ = fh.Close()
	}

	return nil
}

// BuildTLSConfig turns settings into a client *tls.Config.
// It returns (nil, nil) when TLS is disabled.
func BuildTLSConfig(s TLSSettings) (*tls.Config, error) {
	if !s.Enabled {
		return nil, nil
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}

	cfg := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		ServerName:         s.ServerName,
		InsecureSkipVerify: s.InsecureSkipVerify, // #nosec G402 -- opt-in for development endpoints.
	}

	if s.CAFile != "" {
		pem, err := os.ReadFile(s.CAFile)
		if err != nil {
			return nil, autherr.Wrap(autherr.KindConnection, err,
				fmt.Sprintf("transport: read CA certificate file %s: %v", s.CAFile, err))
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, autherr.Newf(autherr.KindConnection,
				"transport: no certificates found in CA file %s", s.CAFile)
		}
		cfg.RootCAs = pool
	}

	if s.MutualTLS() {
		cert, err := tls.LoadX509KeyPair(s.CertFile, s.KeyFile)
		if err != nil {
			return nil, autherr.Wrap(autherr.KindConnection, err,
				fmt.Sprintf("transport: load client certificate: %v", err))
		}
		cfg.Certificates = []tls.Certificate{cert}
	}

	return cfg, nil
}
