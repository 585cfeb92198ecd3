// Package pop3 implements the mailstore abstraction over POP3. The
// protocol exposes one default folder, no flags, and unique ids only on
// servers that answer UIDL; the capability mask reflects what the
// connected server actually supports so reconciliation can degrade.
package pop3

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/knadh/go-pop3"
	"go.uber.org/zap"

	"github.com/bscott/mailsync/internal/mailstore"
	"github.com/bscott/mailsync/internal/message"
	"github.com/bscott/mailsync/internal/trace"
)

type Options struct {
	Host string
	Port int

	// UseTLS selects implicit TLS. POP3 STARTTLS is not supported by
	// this driver, so TLSRequired without UseTLS always fails.
	UseTLS      bool
	TLSRequired bool

	// POP3 here authenticates with USER/PASS only. UseSASL without
	// SASLFallback therefore fails, matching the session contract for
	// servers that cannot do SASL.
	UseSASL      bool
	SASLFallback bool

	Trust *mailstore.TrustStore
	Log   *zap.Logger
}

// dialer injects tracing and the trust-store TLS policy under the pop3
// library, which only sees a ready connection.
type dialer struct {
	ctx    context.Context
	opts   Options
	tracer *trace.Tracer
}

func (d *dialer) Dial(network, addr string) (net.Conn, error) {
	netConn, err := (&net.Dialer{Timeout: 10 * time.Second}).DialContext(d.ctx, network, addr)
	if err != nil {
		return nil, err
	}
	conn := trace.WrapConn(netConn, d.tracer)
	if !d.opts.UseTLS {
		return conn, nil
	}
	tlsConn := tls.Client(conn, d.opts.Trust.TLSConfig(d.opts.Host))
	if err := tlsConn.HandshakeContext(d.ctx); err != nil {
		netConn.Close()
		return nil, err
	}
	return tlsConn, nil
}

type store struct {
	conn   *pop3.Conn
	tracer *trace.Tracer
	log    *zap.Logger
}

// Connect opens and authenticates one POP3 session, retrying the dial
// once when the trust store records a previously unseen certificate.
func Connect(ctx context.Context, opts Options, auth mailstore.Authenticator) (mailstore.Store, error) {
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}

	if opts.TLSRequired && !opts.UseTLS {
		return nil, fmt.Errorf("POP3 driver has no STARTTLS: %w", mailstore.ErrTLSRequired)
	}
	if opts.UseSASL && !opts.SASLFallback {
		return nil, fmt.Errorf("POP3 driver supports USER/PASS only: %w", mailstore.ErrAuth)
	}

	tracer := trace.New(log, fmt.Sprintf("pop3 %s:%d", opts.Host, opts.Port), trace.NextConnID())
	client := pop3.New(pop3.Opt{
		Host:   opts.Host,
		Port:   opts.Port,
		Dialer: &dialer{ctx: ctx, opts: opts, tracer: tracer},
	})

	conn, err := client.NewConn()
	if mailstore.IsCertError(err) {
		log.Warn("certificate recorded on first failure, retrying", zap.Error(err))
		conn, err = client.NewConn()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to POP3 server: %w", err)
	}

	username := auth.Username(mailstore.Incoming)
	password, err := auth.Password(ctx, mailstore.Incoming)
	if err != nil {
		conn.Quit()
		return nil, fmt.Errorf("failed to get password: %w", err)
	}
	if err := conn.Auth(username, password); err != nil {
		conn.Quit()
		return nil, fmt.Errorf("POP3 login failed: %v: %w", err, mailstore.ErrAuth)
	}

	return &store{conn: conn, tracer: tracer, log: log}, nil
}

// OpenFolder accepts only the protocol's single default folder.
func (s *store) OpenFolder(_ context.Context, name string, _ mailstore.FolderMode) (mailstore.Folder, error) {
	if name != "" && name != "INBOX" {
		return nil, fmt.Errorf("POP3 exposes only the default folder, not %q: %w", name, mailstore.ErrNotSupported)
	}

	listing, err := s.conn.List(0)
	if err != nil {
		return nil, fmt.Errorf("LIST failed: %w", err)
	}

	caps := mailstore.FetchSize | mailstore.FetchEnvelope | mailstore.FetchFullHeader

	// UIDL is optional; without it messages have no stable identity and
	// the reconciler falls back to treating everything as new.
	uids := make(map[int]string, len(listing))
	if uidl, err := s.conn.Uidl(0); err == nil {
		caps |= mailstore.FetchUID
		for _, m := range uidl {
			uids[m.ID] = m.UID
		}
	} else {
		s.log.Warn("server does not support UIDL, message identity unavailable", zap.Error(err))
	}

	return &folder{conn: s.conn, listing: listing, uids: uids, caps: caps, log: s.log}, nil
}

func (s *store) Close() error {
	err := s.conn.Quit()
	s.log.Debug("session closed",
		zap.Uint64("bytes_sent", s.tracer.Sent()),
		zap.Uint64("bytes_received", s.tracer.Received()))
	return err
}

type folder struct {
	conn    *pop3.Conn
	listing []pop3.MessageID
	uids    map[int]string
	caps    mailstore.FieldMask
	log     *zap.Logger
}

func (f *folder) Capabilities() mailstore.FieldMask {
	return f.caps
}

func (f *folder) FetchAll(_ context.Context, mask mailstore.FieldMask, p trace.ProgressListener) ([]mailstore.Descriptor, error) {
	if p == nil {
		p = trace.NopProgress{}
	}
	if mask&^f.caps != 0 {
		return nil, fmt.Errorf("fields %s not advertised by server: %w", mask&^f.caps, mailstore.ErrNotSupported)
	}
	if len(f.listing) == 0 {
		return nil, nil
	}

	total := len(f.listing)
	p.Start(total)
	defer p.Stop(total)

	descs := make([]mailstore.Descriptor, 0, total)
	for i, m := range f.listing {
		d := mailstore.Descriptor{
			Seq: uint32(m.ID),
			UID: message.ID(f.uids[m.ID]),
		}
		if mask.Has(mailstore.FetchSize) {
			d.Size = int64(m.Size)
		}
		if mask.Has(mailstore.FetchEnvelope) || mask.Has(mailstore.FetchFullHeader) {
			// One TOP round trip per message; POP3 has no bulk envelope.
			ent, err := f.conn.Top(m.ID, 0)
			if err != nil {
				return nil, fmt.Errorf("TOP %d failed: %w", m.ID, err)
			}
			d.Envelope = envelopeFromHeader(mail.Header{Header: ent.Header})
		}
		descs = append(descs, d)
		p.Progress(i+1, total)
	}
	return descs, nil
}

func (f *folder) FetchRaw(_ context.Context, d mailstore.Descriptor) (*mailstore.RawMessage, error) {
	id := int(d.Seq)
	if d.UID != "" {
		// The session listing may have shifted; resolve by UID first.
		id = 0
		for seq, uid := range f.uids {
			if uid == string(d.UID) {
				id = seq
				break
			}
		}
		if id == 0 {
			return nil, fmt.Errorf("message %q: %w", d.UID, mailstore.ErrNotFound)
		}
	}
	if id == 0 {
		return nil, fmt.Errorf("message without session handle: %w", mailstore.ErrNotFound)
	}

	ent, err := f.conn.Retr(id)
	if err != nil {
		return nil, fmt.Errorf("RETR %d failed: %w", id, err)
	}

	var buf bytes.Buffer
	if err := ent.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("reading message %d: %w", id, err)
	}

	raw := &mailstore.RawMessage{Descriptor: d, Body: buf.Bytes()}
	raw.Envelope = envelopeFromHeader(mail.Header{Header: ent.Header})
	return raw, nil
}

// MarkSeen always fails: POP3 has no message flags.
func (f *folder) MarkSeen(_ context.Context, d mailstore.Descriptor, _ bool) error {
	return fmt.Errorf("POP3 has no message flags: %w", mailstore.ErrNotSupported)
}

func (f *folder) Close() error { return nil }

func envelopeFromHeader(h mail.Header) mailstore.Envelope {
	var env mailstore.Envelope
	if from, err := h.AddressList("From"); err == nil && len(from) > 0 {
		env.FromName = from[0].Name
		env.FromEmail = from[0].Address
	}
	if subject, err := h.Subject(); err == nil {
		env.Subject = subject
	}
	if date, err := h.Date(); err == nil {
		env.Date = date
	}
	return env
}
