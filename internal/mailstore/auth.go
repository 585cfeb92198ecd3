package mailstore

import (
	"context"
	"fmt"
	"time"
)

// Direction selects which of an account's credential pairs to use:
// accounts may authenticate differently against the incoming store and
// the outgoing transport.
type Direction int

const (
	Incoming Direction = iota
	Outgoing
)

func (d Direction) String() string {
	if d == Outgoing {
		return "out"
	}
	return "in"
}

// Authenticator supplies credentials to a connecting session. Password
// may block the calling goroutine (for example while a UI asks the
// user); implementations must honor ctx cancellation.
type Authenticator interface {
	Username(dir Direction) string
	Password(ctx context.Context, dir Direction) (string, error)
}

// CredentialRequest is one blocking password query posted by a session
// to whoever owns the credentials. The answering side sends exactly one
// value on Reply.
type CredentialRequest struct {
	Direction Direction
	Reply     chan string
}

// ChannelAuthenticator bridges a session to an out-of-process (or
// out-of-goroutine) credential owner: Password posts a request on the
// channel and blocks until the reply arrives, the context is canceled,
// or Timeout elapses. The worker stalls for that fetch cycle only.
type ChannelAuthenticator struct {
	User     string
	OutUser  string
	Requests chan<- CredentialRequest
	Timeout  time.Duration
}

func (a *ChannelAuthenticator) Username(dir Direction) string {
	if dir == Outgoing && a.OutUser != "" {
		return a.OutUser
	}
	return a.User
}

func (a *ChannelAuthenticator) Password(ctx context.Context, dir Direction) (string, error) {
	timeout := a.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	req := CredentialRequest{Direction: dir, Reply: make(chan string, 1)}
	select {
	case a.Requests <- req:
	case <-timer.C:
		return "", fmt.Errorf("credential request not accepted after %v: %w", timeout, ErrAuth)
	case <-ctx.Done():
		return "", ctx.Err()
	}

	select {
	case pass := <-req.Reply:
		return pass, nil
	case <-timer.C:
		return "", fmt.Errorf("credential request unanswered after %v: %w", timeout, ErrAuth)
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
