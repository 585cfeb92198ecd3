package mailstore

import "errors"

// Error taxonomy shared by all drivers. These are fatal to the current
// fetch cycle but never to the account: the worker logs them, returns to
// idle and retries on the next scheduled pass.
var (
	// ErrTLSRequired: the account demands TLS and the server could not
	// negotiate it. Never silently downgraded.
	ErrTLSRequired = errors.New("mailstore: TLS required but not available")

	// ErrAuth covers both rejected credentials and a rejected SASL
	// mechanism with fallback disabled.
	ErrAuth = errors.New("mailstore: authentication failed")

	// ErrNotSupported: the server cannot perform the requested fetch
	// operation. Reconciliation treats this as a soft failure.
	ErrNotSupported = errors.New("mailstore: operation not supported")

	// ErrNotFound: a message identified by UID is no longer present in
	// the folder. Expected after remote deletion.
	ErrNotFound = errors.New("mailstore: message not found")
)
