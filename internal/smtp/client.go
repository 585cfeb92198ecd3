// Package smtp is the outgoing-transport side of the session
// abstraction: one authenticated connection per submission, negotiated
// with the same TLS/SASL account flags as the incoming store.
package smtp

import (
	"context"
	"crypto/tls"
	"fmt"
	"mime"
	"net"
	"strings"
	"time"

	"github.com/emersion/go-sasl"
	gosmtp "github.com/emersion/go-smtp"
	"go.uber.org/zap"

	"github.com/bscott/mailsync/internal/config"
	"github.com/bscott/mailsync/internal/mailstore"
	"github.com/bscott/mailsync/internal/trace"
)

// ConnectTimeout is the maximum time allowed for establishing the SMTP
// TCP connection.
const ConnectTimeout = 10 * time.Second

type Message struct {
	From    string
	To      []string
	Subject string
	Body    string
}

type Client struct {
	acc   config.AccountConfig
	auth  mailstore.Authenticator
	trust *mailstore.TrustStore
	log   *zap.Logger
}

func NewClient(acc config.AccountConfig, auth mailstore.Authenticator, trust *mailstore.TrustStore, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{acc: acc, auth: auth, trust: trust, log: log.With(zap.String("account", acc.Name))}
}

func (c *Client) addr() string {
	return fmt.Sprintf("%s:%d", c.acc.SMTPHost, c.acc.SMTPPort)
}

// Send submits one message over a fresh session and tears the session
// down. Certificate failures recorded by the trust store are retried
// once, the same policy the incoming drivers follow.
func (c *Client) Send(ctx context.Context, msg *Message) error {
	client, err := c.connect(ctx)
	if mailstore.IsCertError(err) {
		c.log.Warn("certificate recorded on first failure, retrying", zap.Error(err))
		client, err = c.connect(ctx)
	}
	if err != nil {
		return err
	}
	defer client.Close()

	if err := c.login(ctx, client); err != nil {
		return err
	}

	if err := client.Mail(msg.From, nil); err != nil {
		return fmt.Errorf("failed to set sender: %w", err)
	}
	for _, rcpt := range msg.To {
		if err := client.Rcpt(rcpt, nil); err != nil {
			return fmt.Errorf("failed to add recipient %s: %w", rcpt, err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("failed to start message data: %w", err)
	}
	if _, err := w.Write(buildMessage(msg)); err != nil {
		w.Close()
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finish message: %w", err)
	}

	return client.Quit()
}

func (c *Client) connect(ctx context.Context) (*gosmtp.Client, error) {
	netConn, err := (&net.Dialer{Timeout: ConnectTimeout}).DialContext(ctx, "tcp", c.addr())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to SMTP server: %w", err)
	}

	tracer := trace.New(c.log, "smtp "+c.addr(), trace.NextConnID())
	conn := trace.WrapConn(netConn, tracer)
	tlsConfig := c.trust.TLSConfig(c.acc.SMTPHost)

	if c.acc.UseTLS {
		tlsConn := tls.Client(conn, tlsConfig)
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			netConn.Close()
			return nil, fmt.Errorf("TLS handshake failed: %w", err)
		}
		return gosmtp.NewClient(tlsConn), nil
	}

	client := gosmtp.NewClient(conn)
	if err := client.StartTLS(tlsConfig); err != nil {
		if mailstore.IsCertError(err) {
			client.Close()
			return nil, err
		}
		if c.acc.TLSRequired {
			client.Close()
			return nil, fmt.Errorf("STARTTLS failed: %v: %w", err, mailstore.ErrTLSRequired)
		}
		c.log.Warn("continuing without TLS", zap.Error(err))
	}
	return client, nil
}

func (c *Client) login(ctx context.Context, client *gosmtp.Client) error {
	username := c.auth.Username(mailstore.Outgoing)
	password, err := c.auth.Password(ctx, mailstore.Outgoing)
	if err != nil {
		return fmt.Errorf("failed to get password: %w", err)
	}

	for _, mech := range authMechanisms(c.acc, username, password) {
		if err = client.Auth(mech); err == nil {
			return nil
		}
	}
	return fmt.Errorf("SMTP authentication failed: %v: %w", err, mailstore.ErrAuth)
}

// authMechanisms picks the AUTH attempts for the account's flags,
// mirroring the incoming drivers: SASL PLAIN only when the account asks
// for it, LOGIN as the plain-credential path or the fallback.
func authMechanisms(acc config.AccountConfig, username, password string) []sasl.Client {
	var mechs []sasl.Client
	if acc.UseSASL {
		mechs = append(mechs, sasl.NewPlainClient("", username, password))
		if !acc.SASLFallback {
			return mechs
		}
	}
	return append(mechs, sasl.NewLoginClient(username, password))
}

func buildMessage(msg *Message) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", msg.From)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(msg.To, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", msg.Subject))
	fmt.Fprintf(&b, "Date: %s\r\n", time.Now().UTC().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(msg.Body)
	b.WriteString("\r\n")
	return []byte(b.String())
}
