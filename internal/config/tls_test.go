// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-passkey.
//
// go-passkey is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package config

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// writeSelfSignedCert generates a throwaway certificate and key pair
// and returns their file paths.
func writeSelfSignedCert(t *testing.T) (certFile, keyFile string) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}

	template := x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "localhost"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		IsCA:                  true,
		DNSNames:              []string{"localhost"},
		BasicConstraintsValid: true,
	}

	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		t.Fatal(err)
	}

	dir := t.TempDir()
	certFile = filepath.Join(dir, "cert.pem")
	keyFile = filepath.Join(dir, "key.pem")

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	if err := os.WriteFile(certFile, certPEM, 0600); err != nil {
		t.Fatal(err)
	}

	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		t.Fatal(err)
	}
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})
	if err := os.WriteFile(keyFile, keyPEM, 0600); err != nil {
		t.Fatal(err)
	}

	return certFile, keyFile
}

func TestLoadTLSConfig_Disabled(t *testing.T) {
	cfg := &TLSConfig{Enabled: false}

	tlsConfig, err := cfg.LoadTLSConfig()
	if err != nil {
		t.Fatalf("Disabled TLS should not error: %v", err)
	}
	if tlsConfig != nil {
		t.Error("Disabled TLS should return nil config")
	}
}

func TestLoadTLSConfig_Defaults(t *testing.T) {
	certFile, keyFile := writeSelfSignedCert(t)

	cfg := &TLSConfig{
		Enabled:  true,
		CertFile: certFile,
		KeyFile:  keyFile,
	}

	tlsConfig, err := cfg.LoadTLSConfig()
	if err != nil {
		t.Fatalf("Expected TLS config to load: %v", err)
	}

	if len(tlsConfig.Certificates) != 1 {
		t.Error("Expected server certificate to be loaded")
	}
	if tlsConfig.MinVersion != tls.VersionTLS12 {
		t.Errorf("Expected default minimum TLS 1.2, got %x", tlsConfig.MinVersion)
	}
}

func TestLoadTLSConfig_Versions(t *testing.T) {
	certFile, keyFile := writeSelfSignedCert(t)

	cfg := &TLSConfig{
		Enabled:    true,
		CertFile:   certFile,
		KeyFile:    keyFile,
		MinVersion: "TLS1.3",
		MaxVersion: "TLS1.3",
	}

	tlsConfig, err := cfg.LoadTLSConfig()
	if err != nil {
		t.Fatalf("Expected TLS config to load: %v", err)
	}

	if tlsConfig.MinVersion != tls.VersionTLS13 {
		t.Errorf("Expected minimum TLS 1.3, got %x", tlsConfig.MinVersion)
	}
	if tlsConfig.MaxVersion != tls.VersionTLS13 {
		t.Errorf("Expected maximum TLS 1.3, got %x", tlsConfig.MaxVersion)
	}
}

func TestLoadTLSConfig_CipherSuites(t *testing.T) {
	certFile, keyFile := writeSelfSignedCert(t)

	cfg := &TLSConfig{
		Enabled:      true,
		CertFile:     certFile,
		KeyFile:      keyFile,
		CipherSuites: []string{"TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256"},
	}

	tlsConfig, err := cfg.LoadTLSConfig()
	if err != nil {
		t.Fatalf("Expected TLS config to load: %v", err)
	}
	if len(tlsConfig.CipherSuites) != 1 {
		t.Errorf("Expected 1 cipher suite, got %d", len(tlsConfig.CipherSuites))
	}

	cfg.CipherSuites = []string{"TLS_BOGUS_SUITE"}
	if _, err := cfg.LoadTLSConfig(); err == nil {
		t.Error("Expected error for unknown cipher suite")
	}
}

func TestLoadTLSConfig_ClientAuth(t *testing.T) {
	certFile, keyFile := writeSelfSignedCert(t)

	cfg := &TLSConfig{
		Enabled:    true,
		CertFile:   certFile,
		KeyFile:    keyFile,
		ClientAuth: "require_and_verify",
		CAFile:     certFile,
	}

	tlsConfig, err := cfg.LoadTLSConfig()
	if err != nil {
		t.Fatalf("Expected TLS config to load: %v", err)
	}
	if tlsConfig.ClientAuth != tls.RequireAndVerifyClientCert {
		t.Errorf("Expected require_and_verify, got %v", tlsConfig.ClientAuth)
	}
	if tlsConfig.ClientCAs == nil {
		t.Error("Expected client CA pool to be loaded")
	}

	cfg.ClientAuth = "bogus"
	if _, err := cfg.LoadTLSConfig(); err == nil {
		t.Error("Expected error for unknown client auth type")
	}
}

func TestLoadTLSConfig_MissingFiles(t *testing.T) {
	cfg := &TLSConfig{
		Enabled:  true,
		CertFile: "/nonexistent/cert.pem",
		KeyFile:  "/nonexistent/key.pem",
	}

	if _, err := cfg.LoadTLSConfig(); err == nil {
		t.Error("Expected error for missing certificate files")
	}
}

func TestParseTLSVersion(t *testing.T) {
	tests := map[string]uint16{
		"TLS1.0":  tls.VersionTLS10,
		"TLS1.1":  tls.VersionTLS11,
		"TLS1.2":  tls.VersionTLS12,
		"TLS1.3":  tls.VersionTLS13,
		"unknown": tls.VersionTLS12,
	}

	for input, expected := range tests {
		if got := parseTLSVersion(input); got != expected {
			t.Errorf("parseTLSVersion(%q) = %x, expected %x", input, got, expected)
		}
	}
}
