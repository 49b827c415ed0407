// Package tls builds client TLS settings for broker connections.
package tls

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
)

// ErrKeyPair reports a certificate without its key or a key without its
// certificate.
var ErrKeyPair = errors.New("tls: cert_file and key_file must be set together")

// Config holds TLS settings for a broker connection.
type Config struct {
	// CAFile is the PEM bundle used to verify the broker. Empty uses the
	// system pool.
	CAFile string
	// CertFile and KeyFile hold the client certificate for mutual TLS.
	CertFile string
	KeyFile  string
	// ServerName overrides the name checked against the broker certificate.
	ServerName         string
	InsecureSkipVerify bool
}

// Enabled reports whether any TLS setting is present.
func (c Config) Enabled() bool {
	return c.CAFile != "" || c.CertFile != "" || c.KeyFile != "" || c.ServerName != "" || c.InsecureSkipVerify
}

// Load returns the crypto/tls configuration for c, or nil when no setting
// is present.
func Load(c Config) (*tls.Config, error) {
	if !c.Enabled() {
		return nil, nil
	}
	if (c.CertFile == "") != (c.KeyFile == "") {
		return nil, ErrKeyPair
	}

	tlsConfig := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		ServerName:         c.ServerName,
		InsecureSkipVerify: c.InsecureSkipVerify,
	}
	if c.CertFile != "" {
		cert, err := tls.LoadX509KeyPair(c.CertFile, c.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("load client certificate: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}
	if c.CAFile != "" {
		pool, err := loadPool(c.CAFile)
		if err != nil {
			return nil, err
		}
		tlsConfig.RootCAs = pool
	}
	return tlsConfig, nil
}

func loadPool(path string) (*x509.CertPool, error) {
	pem, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read CA certificate: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("parse CA certificate %s: no PEM certificates", path)
	}
	return pool, nil
}
