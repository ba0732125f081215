package server

import (
	"crypto/x509"
	"testing"
	"time"

	"siashare-go/internal/config"
)

func TestSelfSignedCertificate(t *testing.T) {
	now := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)
	cert, err := SelfSignedCertificate(now)
	if err != nil {
		t.Fatalf("SelfSignedCertificate: %v", err)
	}
	if err := cert.Leaf.VerifyHostname("localhost"); err != nil {
		t.Errorf("VerifyHostname(localhost): %v", err)
	}
	if err := cert.Leaf.VerifyHostname("127.0.0.1"); err != nil {
		t.Errorf("VerifyHostname(127.0.0.1): %v", err)
	}
	if !cert.Leaf.NotAfter.Equal(now.AddDate(0, 0, 30)) {
		t.Errorf("NotAfter = %v", cert.Leaf.NotAfter)
	}
	if cert.Leaf.ExtKeyUsage[0] != x509.ExtKeyUsageServerAuth {
		t.Error("certificate not usable for server auth")
	}
}

func TestTLSConfig(t *testing.T) {
	now := time.Now()
	cfg, err := TLSConfig(config.TLSConfig{}, now)
	if err != nil || cfg != nil {
		t.Errorf("disabled TLS = %v, %v; want nil, nil", cfg, err)
	}

	cfg, err = TLSConfig(config.TLSConfig{SelfSigned: true}, now)
	if err != nil {
		t.Fatalf("self-signed: %v", err)
	}
	if len(cfg.Certificates) != 1 {
		t.Errorf("certificates = %d, want 1", len(cfg.Certificates))
	}

	if _, err := TLSConfig(config.TLSConfig{CertFile: "/nonexistent.pem", KeyFile: "/nonexistent.key"}, now); err == nil {
		t.Error("expected error for missing key pair")
	}
}
