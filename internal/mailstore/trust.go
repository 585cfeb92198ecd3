package mailstore

import (
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"sync"
)

// CertError marks a TLS handshake that failed certificate verification
// against both the system roots and the trust store. The offending leaf
// has already been recorded, so a single retry of the same connect will
// succeed for the rest of this process run.
type CertError struct {
	Err error
}

func (e *CertError) Error() string {
	return "mailstore: certificate not trusted: " + e.Err.Error()
}

func (e *CertError) Unwrap() error { return e.Err }

// IsCertError reports whether err is a recorded-and-retryable
// certificate verification failure.
func IsCertError(err error) bool {
	var ce *CertError
	return errors.As(err, &ce)
}

// TrustStore holds leaf certificates accepted for this run. This is the
// trust-on-first-use policy the original client shipped with, made an
// explicit object instead of process-global state: the first contact
// with an unknown chain fails and records the leaf, the immediate retry
// succeeds. Not a secure default; hosts wanting strict verification
// simply pass a nil TrustStore and treat CertError as fatal.
type TrustStore struct {
	mu    sync.Mutex
	leafs map[[sha256.Size]byte]struct{}
}

func NewTrustStore() *TrustStore {
	return &TrustStore{leafs: make(map[[sha256.Size]byte]struct{})}
}

func (t *TrustStore) Trusted(cert *x509.Certificate) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.leafs[sha256.Sum256(cert.Raw)]
	return ok
}

// Record remembers a leaf certificate so the next verification of the
// same chain passes.
func (t *TrustStore) Record(cert *x509.Certificate) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.leafs[sha256.Sum256(cert.Raw)] = struct{}{}
}

// Verify checks a presented chain against the system roots, falling back
// to the recorded leafs. On an unknown chain it records the leaf and
// returns a CertError so the connect path can retry once.
func (t *TrustStore) Verify(serverName string, chain []*x509.Certificate) error {
	if len(chain) == 0 {
		return &CertError{Err: errors.New("empty certificate chain")}
	}
	leaf := chain[0]

	opts := x509.VerifyOptions{
		DNSName:       serverName,
		Intermediates: x509.NewCertPool(),
	}
	for _, c := range chain[1:] {
		opts.Intermediates.AddCert(c)
	}
	_, err := leaf.Verify(opts)
	if err == nil {
		return nil
	}
	if t.Trusted(leaf) {
		return nil
	}
	t.Record(leaf)
	return &CertError{Err: err}
}

// TLSConfig builds a tls.Config that routes verification through the
// trust store. Chain validation happens in VerifyConnection, hence the
// InsecureSkipVerify; a nil receiver yields plain strict verification.
func (t *TrustStore) TLSConfig(serverName string) *tls.Config {
	if t == nil {
		return &tls.Config{ServerName: serverName}
	}
	return &tls.Config{
		ServerName:         serverName,
		InsecureSkipVerify: true,
		VerifyConnection: func(cs tls.ConnectionState) error {
			return t.Verify(serverName, cs.PeerCertificates)
		},
	}
}
