package main

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/hex"
	"fmt"
	"math/big"
	"os"
	"time"
)

// loadTLSConfig builds the server's tls.Config from configured material:
// the server certificate chain and key are required; a client CA bundle and
// require_client_cert together enable mTLS, per spec.md §4.3. The version
// floor is pinned at TLS 1.2 unconditionally — see DESIGN.md's note on the
// dropped legacy-TLS toggle.
func loadTLSConfig(m TLSMaterialConfig) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(m.CertFile, m.KeyFile)
	if err != nil {
		return nil, &TLSMaterialError{Field: "tls", Err: fmt.Errorf("load server certificate: %w", err)}
	}

	cfg := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}

	if m.ClientCAFile == "" {
		return cfg, nil
	}

	pem, err := os.ReadFile(m.ClientCAFile)
	if err != nil {
		return nil, &TLSMaterialError{Field: "tls.client_ca_file", Err: err}
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, &TLSMaterialError{Field: "tls.client_ca_file", Err: fmt.Errorf("no certificates parsed from %s", m.ClientCAFile)}
	}
	cfg.ClientCAs = pool
	if m.RequireClientCert {
		cfg.ClientAuth = tls.RequireAndVerifyClientCert
	} else {
		cfg.ClientAuth = tls.VerifyClientCertIfGiven
	}

	return cfg, nil
}

// peerSubject extracts the verified client certificate's subject common
// name, recorded on the ClientRegistration per spec.md §3. Returns "" when
// no client certificate was presented (server-auth-only TLS).
func peerSubject(state tls.ConnectionState) string {
	if len(state.PeerCertificates) == 0 {
		return ""
	}
	return state.PeerCertificates[0].Subject.CommonName
}

// classifyTLSHandshakeError maps a handshake failure into one of the
// reasons spec.md §7 names.
func classifyTLSHandshakeError(remote string, err error) *TLSHandshakeError {
	reason := TLSReasonProtocol
	if timeoutErr, ok := err.(interface{ Timeout() bool }); ok && timeoutErr.Timeout() {
		reason = TLSReasonTimeout
	}
	if _, ok := err.(x509.CertificateInvalidError); ok {
		reason = TLSReasonExpiredCert
	}
	if _, ok := err.(x509.UnknownAuthorityError); ok {
		reason = TLSReasonUntrustedClient
	}
	return &TLSHandshakeError{Remote: remote, Reason: reason, Err: err}
}

// generateSelfSignedTLSConfig creates a self-signed ECDSA certificate for
// local development and demos, so the TLS listener can be exercised without
// provisioning real material. Returns the tls.Config and its SHA-256
// fingerprint (useful for pinning in a test client).
func generateSelfSignedTLSConfig(validity time.Duration, hostname string) (*tls.Config, string, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, "", fmt.Errorf("generate key: %w", err)
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, "", fmt.Errorf("generate serial: %w", err)
	}

	cn := "omnitak"
	if hostname != "" {
		cn = hostname
	}

	sans := []string{"localhost"}
	if hostname != "" && hostname != "localhost" {
		sans = append(sans, hostname)
	}

	tmpl := x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: cn},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(validity),
		IsCA:                  true,
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth, x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		DNSNames:              sans,
	}

	certDER, err := x509.CreateCertificate(rand.Reader, &tmpl, &tmpl, &key.PublicKey, key)
	if err != nil {
		return nil, "", fmt.Errorf("create certificate: %w", err)
	}

	cert, err := x509.ParseCertificate(certDER)
	if err != nil {
		return nil, "", fmt.Errorf("parse certificate: %w", err)
	}

	fp := sha256.Sum256(certDER)
	fingerprint := hex.EncodeToString(fp[:])

	tlsCert := tls.Certificate{
		Certificate: [][]byte{certDER},
		PrivateKey:  key,
		Leaf:        cert,
	}

	return &tls.Config{
		Certificates: []tls.Certificate{tlsCert},
		MinVersion:   tls.VersionTLS12,
	}, fingerprint, nil
}
