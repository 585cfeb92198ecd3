package config

import (
	"context"

	"github.com/bscott/mailsync/internal/mailstore"
)

// KeyringAuthenticator answers session credential callbacks from the
// system keyring. Keyring access is synchronous; there is nothing to
// cancel, so ctx is only consulted up front.
type KeyringAuthenticator struct {
	Account AccountConfig
}

func (a *KeyringAuthenticator) Username(dir mailstore.Direction) string {
	if dir == mailstore.Outgoing && a.Account.OutUsername != "" {
		return a.Account.OutUsername
	}
	return a.Account.Username
}

func (a *KeyringAuthenticator) Password(ctx context.Context, dir mailstore.Direction) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return GetPassword(a.Account.Name, dir)
}
