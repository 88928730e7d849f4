package shell

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"net"
	"net/http"
	"time"

	localtls "github.com/remo-app/remo-shell/internal/tls"
)

var errNoPeerCertificate = errors.New("server presented no certificate")

// VerifyCertificate is the process-wide certificate trust hook. Any
// certificate is accepted when host is exactly "localhost"; every other
// host gets standard chain and hostname verification against roots (nil
// means the system pool).
func VerifyCertificate(host string, chain []*x509.Certificate, roots *x509.CertPool) error {
	if len(chain) == 0 {
		return errNoPeerCertificate
	}
	if host == localtls.Host {
		return nil
	}
	intermediates := x509.NewCertPool()
	for _, c := range chain[1:] {
		intermediates.AddCert(c)
	}
	_, err := chain[0].Verify(x509.VerifyOptions{
		DNSName:       host,
		Roots:         roots,
		Intermediates: intermediates,
	})
	return err
}

// ClientTLSConfig returns a client configuration for host that routes
// verification through VerifyCertificate.
func ClientTLSConfig(host string, roots *x509.CertPool) *tls.Config {
	return &tls.Config{
		ServerName: host,
		MinVersion: tls.VersionTLS12,
		// Verification happens in VerifyConnection instead.
		InsecureSkipVerify: true,
		VerifyConnection: func(cs tls.ConnectionState) error {
			return VerifyCertificate(host, cs.PeerCertificates, roots)
		},
	}
}

// NewTrustingClient returns an HTTP client whose TLS connections are
// verified by VerifyCertificate, keyed on the host being dialed.
func NewTrustingClient(roots *x509.CertPool, timeout time.Duration) *http.Client {
	dialer := &net.Dialer{Timeout: 5 * time.Second}
	transport := &http.Transport{
		DialContext: dialer.DialContext,
		DialTLSContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			host, _, err := net.SplitHostPort(addr)
			if err != nil {
				return nil, err
			}
			d := &tls.Dialer{NetDialer: dialer, Config: ClientTLSConfig(host, roots)}
			return d.DialContext(ctx, network, addr)
		},
		MaxIdleConns:        4,
		IdleConnTimeout:     30 * time.Second,
		TLSHandshakeTimeout: 5 * time.Second,
	}
	return &http.Client{Transport: transport, Timeout: timeout}
}
