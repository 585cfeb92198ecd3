// Package imap implements the mailstore abstraction over IMAP using
// go-imap v2. The driver dials its own socket so transport I/O can be
// traced, and advertises the full bulk-fetch capability set.
package imap

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strconv"

	goimap "github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/emersion/go-sasl"
	"go.uber.org/zap"

	"github.com/bscott/mailsync/internal/mailstore"
	"github.com/bscott/mailsync/internal/message"
	"github.com/bscott/mailsync/internal/trace"
)

type Options struct {
	Host string
	Port int

	// UseTLS selects implicit TLS; otherwise STARTTLS is attempted and
	// TLSRequired decides whether plaintext fallback is allowed.
	UseTLS      bool
	TLSRequired bool

	// UseSASL authenticates via SASL PLAIN first; SASLFallback permits
	// falling back to LOGIN when the server rejects the mechanism.
	UseSASL      bool
	SASLFallback bool

	Trust *mailstore.TrustStore
	Log   *zap.Logger
}

func (o Options) addr() string {
	return fmt.Sprintf("%s:%d", o.Host, o.Port)
}

type store struct {
	client *imapclient.Client
	tracer *trace.Tracer
	log    *zap.Logger
}

// Connect opens and authenticates one IMAP session. On a certificate
// rejected by the trust store the dial is retried exactly once; by then
// the offending leaf has been recorded. No partial session is ever
// returned.
func Connect(ctx context.Context, opts Options, auth mailstore.Authenticator) (mailstore.Store, error) {
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	tracer := trace.New(log, "imap "+opts.addr(), trace.NextConnID())

	client, err := dial(ctx, opts, tracer)
	if mailstore.IsCertError(err) {
		log.Warn("certificate recorded on first failure, retrying", zap.Error(err))
		client, err = dial(ctx, opts, tracer)
	}
	if err != nil {
		return nil, err
	}

	if err := login(ctx, client, opts, auth); err != nil {
		client.Close()
		return nil, err
	}

	return &store{client: client, tracer: tracer, log: log}, nil
}

func dial(ctx context.Context, opts Options, tracer *trace.Tracer) (*imapclient.Client, error) {
	netConn, err := (&net.Dialer{}).DialContext(ctx, "tcp", opts.addr())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to IMAP server: %w", err)
	}
	conn := trace.WrapConn(netConn, tracer)
	tlsConfig := opts.Trust.TLSConfig(opts.Host)

	if opts.UseTLS {
		tlsConn := tls.Client(conn, tlsConfig)
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			netConn.Close()
			return nil, fmt.Errorf("TLS handshake failed: %w", err)
		}
		return imapclient.New(tlsConn, &imapclient.Options{}), nil
	}

	client, err := imapclient.NewStartTLS(conn, &imapclient.Options{TLSConfig: tlsConfig})
	if err != nil {
		netConn.Close()
		if mailstore.IsCertError(err) {
			return nil, err
		}
		if opts.TLSRequired {
			return nil, fmt.Errorf("STARTTLS failed: %v: %w", err, mailstore.ErrTLSRequired)
		}
		// Plaintext fallback needs a fresh greeting.
		netConn, err = (&net.Dialer{}).DialContext(ctx, "tcp", opts.addr())
		if err != nil {
			return nil, fmt.Errorf("failed to connect to IMAP server: %w", err)
		}
		return imapclient.New(trace.WrapConn(netConn, tracer), &imapclient.Options{}), nil
	}
	return client, nil
}

func login(ctx context.Context, client *imapclient.Client, opts Options, auth mailstore.Authenticator) error {
	username := auth.Username(mailstore.Incoming)
	password, err := auth.Password(ctx, mailstore.Incoming)
	if err != nil {
		return fmt.Errorf("failed to get password: %w", err)
	}

	if opts.UseSASL {
		err := client.Authenticate(sasl.NewPlainClient("", username, password))
		if err == nil {
			return nil
		}
		if !opts.SASLFallback {
			return fmt.Errorf("SASL authentication rejected: %v: %w", err, mailstore.ErrAuth)
		}
	}

	if err := client.Login(username, password).Wait(); err != nil {
		return fmt.Errorf("IMAP login failed: %v: %w", err, mailstore.ErrAuth)
	}
	return nil
}

func (s *store) OpenFolder(_ context.Context, name string, mode mailstore.FolderMode) (mailstore.Folder, error) {
	selected, err := s.client.Select(name, &goimap.SelectOptions{
		ReadOnly: mode == mailstore.ModeReadOnly,
	}).Wait()
	if err != nil {
		return nil, fmt.Errorf("failed to select mailbox %s: %w", name, err)
	}

	return &folder{
		client: s.client,
		name:   name,
		count:  selected.NumMessages,
		log:    s.log,
	}, nil
}

func (s *store) Close() error {
	if err := s.client.Logout().Wait(); err != nil {
		// Ignore logout errors, just close.
	}
	s.log.Debug("session closed",
		zap.Uint64("bytes_sent", s.tracer.Sent()),
		zap.Uint64("bytes_received", s.tracer.Received()))
	return s.client.Close()
}

type folder struct {
	client *imapclient.Client
	name   string
	count  uint32
	log    *zap.Logger
}

// IMAP can supply every bulk-fetch field in one round trip.
func (f *folder) Capabilities() mailstore.FieldMask {
	return mailstore.FetchFlags | mailstore.FetchSize | mailstore.FetchUID |
		mailstore.FetchEnvelope | mailstore.FetchFullHeader |
		mailstore.FetchStructure | mailstore.FetchContentInfo
}

func (f *folder) FetchAll(_ context.Context, mask mailstore.FieldMask, p trace.ProgressListener) ([]mailstore.Descriptor, error) {
	if p == nil {
		p = trace.NopProgress{}
	}
	if f.count == 0 {
		return nil, nil
	}

	var seqSet goimap.SeqSet
	seqSet.AddRange(1, f.count)

	fetchCmd := f.client.Fetch(seqSet, &goimap.FetchOptions{
		UID:        mask.Has(mailstore.FetchUID),
		Flags:      mask.Has(mailstore.FetchFlags),
		Envelope:   mask.Has(mailstore.FetchEnvelope),
		RFC822Size: mask.Has(mailstore.FetchSize),
	})
	defer fetchCmd.Close()

	total := int(f.count)
	p.Start(total)

	var descs []mailstore.Descriptor
	for {
		msg := fetchCmd.Next()
		if msg == nil {
			break
		}
		buf, err := msg.Collect()
		if err != nil {
			continue
		}
		descs = append(descs, descriptorFromBuffer(buf))
		p.Progress(len(descs), total)
	}
	p.Stop(total)

	if err := fetchCmd.Close(); err != nil {
		return nil, fmt.Errorf("bulk fetch failed: %w", err)
	}
	return descs, nil
}

func (f *folder) FetchRaw(_ context.Context, d mailstore.Descriptor) (*mailstore.RawMessage, error) {
	numSet, err := f.numSet(d)
	if err != nil {
		return nil, err
	}

	bodySection := &goimap.FetchItemBodySection{Peek: true}
	fetchCmd := f.client.Fetch(numSet, &goimap.FetchOptions{
		UID:         true,
		Flags:       true,
		Envelope:    true,
		RFC822Size:  true,
		BodySection: []*goimap.FetchItemBodySection{bodySection},
	})
	defer fetchCmd.Close()

	msg := fetchCmd.Next()
	if msg == nil {
		return nil, fmt.Errorf("message %q: %w", d.UID, mailstore.ErrNotFound)
	}
	buf, err := msg.Collect()
	if err != nil {
		return nil, fmt.Errorf("collecting message %q: %w", d.UID, err)
	}

	raw := &mailstore.RawMessage{
		Descriptor: descriptorFromBuffer(buf),
		Body:       buf.FindBodySection(bodySection),
	}
	if err := fetchCmd.Close(); err != nil {
		return nil, fmt.Errorf("fetch failed: %w", err)
	}
	return raw, nil
}

func (f *folder) MarkSeen(_ context.Context, d mailstore.Descriptor, seen bool) error {
	numSet, err := f.numSet(d)
	if err != nil {
		return err
	}

	op := goimap.StoreFlagsAdd
	if !seen {
		op = goimap.StoreFlagsDel
	}
	storeCmd := f.client.Store(numSet, &goimap.StoreFlags{
		Op:    op,
		Flags: []goimap.Flag{goimap.FlagSeen},
	}, nil)
	if err := storeCmd.Close(); err != nil {
		return fmt.Errorf("failed to store seen flag for %q: %w", d.UID, err)
	}
	return nil
}

func (f *folder) numSet(d mailstore.Descriptor) (goimap.NumSet, error) {
	if d.UID != "" {
		uid, err := strconv.ParseUint(string(d.UID), 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid message UID %q: %w", d.UID, err)
		}
		return goimap.UIDSetNum(goimap.UID(uid)), nil
	}
	return goimap.SeqSetNum(d.Seq), nil
}

// Close is a no-op: the selected state lives and dies with the session.
func (f *folder) Close() error { return nil }

func descriptorFromBuffer(buf *imapclient.FetchMessageBuffer) mailstore.Descriptor {
	d := mailstore.Descriptor{
		Seq:  buf.SeqNum,
		Size: buf.RFC822Size,
	}
	if buf.UID != 0 {
		d.UID = message.ID(strconv.FormatUint(uint64(buf.UID), 10))
	}
	for _, flag := range buf.Flags {
		if flag == goimap.FlagSeen {
			d.Seen = true
		}
	}
	if buf.Envelope != nil {
		d.Envelope.Subject = buf.Envelope.Subject
		d.Envelope.Date = buf.Envelope.Date
		if len(buf.Envelope.From) > 0 {
			from := buf.Envelope.From[0]
			d.Envelope.FromName = from.Name
			d.Envelope.FromEmail = from.Addr()
		}
	}
	return d
}
