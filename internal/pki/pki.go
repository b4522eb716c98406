// Package pki builds the TLS endpoints the proxy needs: an ephemeral
// self-signed server identity (the proxy impersonates the printer to
// downstream clients) and a permissive client config for dialing the
// printer itself, which presents a self-signed certificate of its own.
package pki

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"time"
)

// certValidity is the minimum lifetime of generated server material.
const certValidity = 366 * 24 * time.Hour

// ServerMaterial is an ephemeral server TLS identity: the PEM-encoded cert
// and key live in a scoped temporary directory that Cleanup removes.
type ServerMaterial struct {
	Config  *tls.Config
	dir     string
	CertPEM []byte
	KeyPEM  []byte
}

// Cleanup deletes the temporary directory backing the material.
func (m *ServerMaterial) Cleanup() error {
	if m.dir == "" {
		return nil
	}
	return os.RemoveAll(m.dir)
}

// NewEphemeralServerMaterial generates a self-signed ECDSA P-256
// certificate valid for at least a year, with the given common name and
// SANs, suitable for a TLS server. The PEM files are written under a
// dedicated temp directory that must be removed via Cleanup on teardown.
func NewEphemeralServerMaterial(commonName string, dnsNames []string, ips []net.IP) (*ServerMaterial, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generating server key: %w", err)
	}

	serial, err := rand.Int(rand.Reader, big.NewInt(1<<62))
	if err != nil {
		return nil, fmt.Errorf("generating serial number: %w", err)
	}

	tmpl := &x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: commonName},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(certValidity),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		DNSNames:     dnsNames,
		IPAddresses:  ips,
	}

	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		return nil, fmt.Errorf("creating self-signed certificate: %w", err)
	}

	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("marshaling server key: %w", err)
	}

	dir, err := os.MkdirTemp("", "pandaproxy-tls-*")
	if err != nil {
		return nil, fmt.Errorf("creating temp dir for TLS material: %w", err)
	}

	certPEM := pemEncode("CERTIFICATE", der)
	keyPEM := pemEncode("EC PRIVATE KEY", keyDER)

	certPath := filepath.Join(dir, "cert.pem")
	keyPath := filepath.Join(dir, "key.pem")
	if err := os.WriteFile(certPath, certPEM, 0o600); err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("writing cert PEM: %w", err)
	}
	if err := os.WriteFile(keyPath, keyPEM, 0o600); err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("writing key PEM: %w", err)
	}

	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("loading generated key pair: %w", err)
	}

	return &ServerMaterial{
		Config: &tls.Config{
			MinVersion:   tls.VersionTLS12,
			Certificates: []tls.Certificate{cert},
			ClientAuth:   tls.NoClientCert,
		},
		dir:     dir,
		CertPEM: certPEM,
		KeyPEM:  keyPEM,
	}, nil
}

// NewPermissiveClientTLSConfig returns a TLS client config that skips
// hostname verification and peer certificate validation. The printer
// presents a self-signed certificate with an arbitrary CN; the real trust
// anchor is the access code carried in the Auth Block, not PKI. This is
// the only place in the codebase that disables verification, and it must
// stay that way — never reuse this config for anything downstream-facing.
func NewPermissiveClientTLSConfig() *tls.Config {
	return &tls.Config{
		InsecureSkipVerify: true,
		MinVersion:         tls.VersionTLS12,
	}
}

func pemEncode(blockType string, der []byte) []byte {
	return pem.EncodeToMemory(&pem.Block{Type: blockType, Bytes: der})
}
