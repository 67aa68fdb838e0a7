package transport

import (
	"crypto/tls"
	"crypto/x509"
	"os"

	"github.com/mevdschee/tqingest/config"
	"github.com/mevdschee/tqingest/ilp"
)

// TLSConfig builds the client TLS settings for cfg. The bundled webpki
// roots are not available in Go, so every non-PEM trust mode resolves to the
// system certificate pool.
func TLSConfig(cfg *config.Config) (*tls.Config, error) {
	tc := &tls.Config{
		ServerName: cfg.Host,
		MinVersion: tls.VersionTLS12,
	}
	if !cfg.TLSVerify {
		tc.InsecureSkipVerify = true
		return tc, nil
	}
	if cfg.TLSRoots == "" {
		return tc, nil
	}

	pem, err := os.ReadFile(cfg.TLSRoots)
	if err != nil {
		return nil, ilp.Wrap(ilp.ErrConfig, err, "Could not read \"tls_roots\" file %q", cfg.TLSRoots)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, ilp.Errorf(ilp.ErrConfig, "No certificates found in \"tls_roots\" file %q.", cfg.TLSRoots)
	}
	tc.RootCAs = pool
	return tc, nil
}
