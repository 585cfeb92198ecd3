package mailstore

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestChannelAuthenticatorUsername(t *testing.T) {
	a := &ChannelAuthenticator{User: "alice", OutUser: "alice-smtp"}
	if got := a.Username(Incoming); got != "alice" {
		t.Errorf("incoming username = %q", got)
	}
	if got := a.Username(Outgoing); got != "alice-smtp" {
		t.Errorf("outgoing username = %q", got)
	}

	// Without a separate outgoing identity both directions share one.
	a = &ChannelAuthenticator{User: "alice"}
	if got := a.Username(Outgoing); got != "alice" {
		t.Errorf("outgoing username without override = %q", got)
	}
}

func TestChannelAuthenticatorReply(t *testing.T) {
	requests := make(chan CredentialRequest, 1)
	a := &ChannelAuthenticator{User: "alice", Requests: requests}

	go func() {
		req := <-requests
		if req.Direction != Incoming {
			t.Errorf("request direction = %v", req.Direction)
		}
		req.Reply <- "s3cret"
	}()

	pass, err := a.Password(context.Background(), Incoming)
	if err != nil {
		t.Fatalf("Password: %v", err)
	}
	if pass != "s3cret" {
		t.Errorf("password = %q", pass)
	}
}

func TestChannelAuthenticatorTimeout(t *testing.T) {
	// Nobody ever reads the request channel.
	a := &ChannelAuthenticator{
		User:     "alice",
		Requests: make(chan CredentialRequest),
		Timeout:  20 * time.Millisecond,
	}

	_, err := a.Password(context.Background(), Incoming)
	if !errors.Is(err, ErrAuth) {
		t.Fatalf("err = %v, want auth failure", err)
	}
}

func TestChannelAuthenticatorUnansweredTimeout(t *testing.T) {
	requests := make(chan CredentialRequest, 1)
	a := &ChannelAuthenticator{
		User:     "alice",
		Requests: requests,
		Timeout:  20 * time.Millisecond,
	}

	// The request is accepted but never answered.
	_, err := a.Password(context.Background(), Incoming)
	if !errors.Is(err, ErrAuth) {
		t.Fatalf("err = %v, want auth failure", err)
	}
}

func TestChannelAuthenticatorContextCancel(t *testing.T) {
	a := &ChannelAuthenticator{
		User:     "alice",
		Requests: make(chan CredentialRequest),
		Timeout:  time.Minute,
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := a.Password(ctx, Incoming)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestDirectionString(t *testing.T) {
	if Incoming.String() != "in" || Outgoing.String() != "out" {
		t.Errorf("direction names: %q %q", Incoming.String(), Outgoing.String())
	}
}
