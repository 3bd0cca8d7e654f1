// Package caroundtripper provides an http.RoundTripper that trusts a single CA.
package caroundtripper

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"net/http"
	"os"
)

var _ http.RoundTripper = (*Client)(nil)

type Client struct {
	transport *http.Transport
}

func (c Client) RoundTrip(request *http.Request) (*http.Response, error) {
	return c.transport.RoundTrip(request)
}

// New creates a RoundTripper that only trusts the CA certificate stored
// PEM-encoded at caPath.
func New(caPath string) (*Client, error) {
	caBytes, err := os.ReadFile(caPath)
	if err != nil {
		return nil, err
	}
	block, rest := pem.Decode(caBytes)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found in %s", caPath)
	}
	if block.Type != "CERTIFICATE" {
		return nil, fmt.Errorf("invalid pem block type %s, expected CERTIFICATE", block.Type)
	}
	if len(rest) > 0 {
		return nil, fmt.Errorf("%s contains more than one PEM block", caPath)
	}

	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("unable to parse certificate: %v", err)
	}

	certPool := x509.NewCertPool()
	certPool.AddCert(cert)

	return &Client{
		transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				RootCAs:    certPool,
				MinVersion: tls.VersionTLS12,
			},
			ForceAttemptHTTP2: true,
		},
	}, nil
}
