package mailstore

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"errors"
	"fmt"
	"math/big"
	"testing"
	"time"
)

func selfSignedCert(t *testing.T, host string) *x509.Certificate {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: host},
		DNSNames:     []string{host},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatal(err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatal(err)
	}
	return cert
}

func TestTrustStoreFirstUseThenTrusted(t *testing.T) {
	ts := NewTrustStore()
	cert := selfSignedCert(t, "mail.example.org")

	err := ts.Verify("mail.example.org", []*x509.Certificate{cert})
	if err == nil {
		t.Fatal("first contact with a self-signed chain should fail")
	}
	if !IsCertError(err) {
		t.Fatalf("err = %v, want a certificate error", err)
	}
	if !ts.Trusted(cert) {
		t.Fatal("failed verification should record the leaf")
	}

	// The immediate retry sees the recorded leaf.
	if err := ts.Verify("mail.example.org", []*x509.Certificate{cert}); err != nil {
		t.Fatalf("second verification failed: %v", err)
	}
}

func TestTrustStoreDistinguishesLeafs(t *testing.T) {
	ts := NewTrustStore()
	a := selfSignedCert(t, "a.example.org")
	b := selfSignedCert(t, "b.example.org")

	ts.Verify("a.example.org", []*x509.Certificate{a})
	if ts.Trusted(b) {
		t.Error("recording one leaf must not trust another")
	}
}

func TestTrustStoreEmptyChain(t *testing.T) {
	ts := NewTrustStore()
	err := ts.Verify("mail.example.org", nil)
	if !IsCertError(err) {
		t.Fatalf("err = %v, want a certificate error", err)
	}
	// Nothing to record, so a retry must fail again.
	if err := ts.Verify("mail.example.org", nil); err == nil {
		t.Fatal("empty chain should never become trusted")
	}
}

func TestIsCertErrorUnwraps(t *testing.T) {
	base := &CertError{Err: errors.New("unknown authority")}
	wrapped := fmt.Errorf("connecting: %w", base)

	if !IsCertError(wrapped) {
		t.Error("IsCertError should see through wrapping")
	}
	if IsCertError(errors.New("unrelated")) {
		t.Error("unrelated errors are not certificate errors")
	}
	if IsCertError(nil) {
		t.Error("nil is not a certificate error")
	}
}

func TestTLSConfigNilTrustStoreIsStrict(t *testing.T) {
	var ts *TrustStore
	cfg := ts.TLSConfig("mail.example.org")

	if cfg.InsecureSkipVerify {
		t.Error("nil trust store must produce strict verification")
	}
	if cfg.ServerName != "mail.example.org" {
		t.Errorf("ServerName = %q", cfg.ServerName)
	}
}

func TestTLSConfigRoutesThroughStore(t *testing.T) {
	ts := NewTrustStore()
	cfg := ts.TLSConfig("mail.example.org")

	if !cfg.InsecureSkipVerify || cfg.VerifyConnection == nil {
		t.Fatal("trust store config must take over chain verification")
	}
}
