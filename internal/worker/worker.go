// Package worker runs the per-account fetch routine: connect, reconcile
// headers, optionally fetch full bodies on demand. One worker owns one
// account; all its network operations run sequentially on whichever
// goroutine drives it, never concurrently against the same session.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/bscott/mailsync/internal/config"
	"github.com/bscott/mailsync/internal/mailstore"
	imapstore "github.com/bscott/mailsync/internal/mailstore/imap"
	pop3store "github.com/bscott/mailsync/internal/mailstore/pop3"
	"github.com/bscott/mailsync/internal/materialize"
	"github.com/bscott/mailsync/internal/message"
	"github.com/bscott/mailsync/internal/reconcile"
	"github.com/bscott/mailsync/internal/storage"
	"github.com/bscott/mailsync/internal/trace"
)

// State tracks where the worker is in its cycle, for diagnostics and
// the host's status display.
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateHeaderSync
	StateFetchingBody
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateHeaderSync:
		return "header-sync"
	case StateFetchingBody:
		return "fetching-body"
	case StateFailed:
		return "failed"
	default:
		return "idle"
	}
}

type Flags uint8

const (
	// FetchNewOnly skips messages the server already marks seen, when
	// the folder supports flags.
	FetchNewOnly Flags = 1 << iota
)

// StoreOpener connects one session for an account. Tests substitute a
// fake; the default dispatches on the account's protocol kind.
type StoreOpener func(ctx context.Context, acc config.AccountConfig, auth mailstore.Authenticator, trust *mailstore.TrustStore, log *zap.Logger) (mailstore.Store, error)

// DefaultOpener dials the real protocol drivers.
func DefaultOpener(ctx context.Context, acc config.AccountConfig, auth mailstore.Authenticator, trust *mailstore.TrustStore, log *zap.Logger) (mailstore.Store, error) {
	switch acc.Protocol {
	case config.ProtocolIMAP:
		return imapstore.Connect(ctx, imapstore.Options{
			Host: acc.Host, Port: acc.Port,
			UseTLS: acc.UseTLS, TLSRequired: acc.TLSRequired,
			UseSASL: acc.UseSASL, SASLFallback: acc.SASLFallback,
			Trust: trust, Log: log,
		}, auth)
	case config.ProtocolPOP3:
		return pop3store.Connect(ctx, pop3store.Options{
			Host: acc.Host, Port: acc.Port,
			UseTLS: acc.UseTLS, TLSRequired: acc.TLSRequired,
			UseSASL: acc.UseSASL, SASLFallback: acc.SASLFallback,
			Trust: trust, Log: log,
		}, auth)
	default:
		return nil, fmt.Errorf("protocol %q has no remote store: %w", acc.Protocol, mailstore.ErrNotSupported)
	}
}

type Worker struct {
	acc   config.AccountConfig
	auth  mailstore.Authenticator
	store storage.Storage
	trust *mailstore.TrustStore
	log   *zap.Logger

	// Opener is overridable before first use, for tests and embedders.
	Opener StoreOpener

	// Progress receives coarse progress for bulk operations; nil means
	// log-only.
	Progress trace.ProgressListener

	mu    sync.Mutex
	state atomic.Int32
}

func New(acc config.AccountConfig, auth mailstore.Authenticator, st storage.Storage, trust *mailstore.TrustStore, log *zap.Logger) *Worker {
	if log == nil {
		log = zap.NewNop()
	}
	return &Worker{
		acc:    acc,
		auth:   auth,
		store:  st,
		trust:  trust,
		log:    log.With(zap.String("account", acc.Name)),
		Opener: DefaultOpener,
	}
}

func (w *Worker) State() State {
	return State(w.state.Load())
}

func (w *Worker) setState(s State) {
	w.state.Store(int32(s))
}

// FetchNewHeaders runs one header reconciliation cycle against the
// account's folder, persisting fully materialized new messages and
// refreshed flags. A connect failure or unsupported bulk fetch is fatal
// to the cycle only: the worker logs it, returns to idle and the next
// scheduled run retries.
func (w *Worker) FetchNewHeaders(ctx context.Context, flags Flags) (reconcile.Result, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	defer w.setState(StateIdle)

	if w.acc.Protocol == config.ProtocolMaildir {
		// Local-only accounts are synced elsewhere.
		return reconcile.Result{}, nil
	}

	w.setState(StateConnecting)
	session, err := w.Opener(ctx, w.acc, w.auth, w.trust, w.log)
	if err != nil {
		w.setState(StateFailed)
		w.log.Error("connect failed", zap.Error(err))
		return reconcile.Result{}, fmt.Errorf("account %s: %w", w.acc.Name, err)
	}
	defer session.Close()

	w.setState(StateHeaderSync)
	folder, err := session.OpenFolder(ctx, w.acc.FolderName(), mailstore.ModeReadWrite)
	if err != nil {
		w.log.Error("opening folder failed", zap.Error(err))
		return reconcile.Result{}, fmt.Errorf("account %s: opening folder: %w", w.acc.Name, err)
	}
	defer folder.Close()

	progress := w.Progress
	if progress == nil {
		progress = trace.LogProgress(w.log, fmt.Sprintf("fetching headers for %s", w.acc.Name))
	}

	res, err := reconcile.Pass(ctx, folder, w.store, w.acc.Name, w.acc.FolderName(),
		reconcile.Options{NewOnly: flags&FetchNewOnly != 0}, w.log, progress)
	if err != nil {
		return reconcile.Result{}, fmt.Errorf("account %s: %w", w.acc.Name, err)
	}

	// Durable writes happen only now, after materialization succeeded;
	// an abort mid-pass leaves storage exactly as it was.
	for _, msg := range res.New {
		if err := w.store.SaveMessage(ctx, w.acc.Name, w.acc.FolderName(), msg); err != nil {
			return res, fmt.Errorf("account %s: persisting message %q: %w", w.acc.Name, msg.ID, err)
		}
	}
	for _, msg := range res.Updated {
		if err := w.store.UpdateSeen(ctx, w.acc.Name, w.acc.FolderName(), msg.ID, msg.Read); err != nil {
			return res, fmt.Errorf("account %s: updating flags for %q: %w", w.acc.Name, msg.ID, err)
		}
	}

	w.log.Info("header sync complete",
		zap.Int("new", len(res.New)),
		zap.Int("updated", len(res.Updated)))
	return res, nil
}

// FetchWholeMessage re-opens a session, locates msg by unique id in the
// folder's current UID listing and materializes the full body into msg
// in place. A missing message (deleted remotely, or a protocol without
// stable ids) returns found=false with msg untouched; that is a
// reported condition, not an error.
func (w *Worker) FetchWholeMessage(ctx context.Context, msg *message.Message) (found bool, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	defer w.setState(StateIdle)

	if w.acc.Protocol != config.ProtocolIMAP {
		// Only IMAP promises ids stable across sessions.
		w.log.Warn("whole-message fetch needs stable ids", zap.String("protocol", string(w.acc.Protocol)))
		return false, nil
	}
	if msg == nil || msg.ID == "" {
		return false, nil
	}

	w.setState(StateConnecting)
	session, err := w.Opener(ctx, w.acc, w.auth, w.trust, w.log)
	if err != nil {
		w.setState(StateFailed)
		w.log.Error("connect failed", zap.Error(err))
		return false, fmt.Errorf("account %s: %w", w.acc.Name, err)
	}
	defer session.Close()

	w.setState(StateFetchingBody)
	folder, err := session.OpenFolder(ctx, w.acc.FolderName(), mailstore.ModeReadWrite)
	if err != nil {
		return false, fmt.Errorf("account %s: opening folder: %w", w.acc.Name, err)
	}
	defer folder.Close()

	mask := mailstore.Negotiate(folder, mailstore.FetchUID)
	descs, err := folder.FetchAll(ctx, mask, trace.NopProgress{})
	if err != nil {
		return false, fmt.Errorf("account %s: listing uids: %w", w.acc.Name, err)
	}

	var target *mailstore.Descriptor
	for i := range descs {
		if descs[i].UID == msg.ID {
			target = &descs[i]
			break
		}
	}
	if target == nil {
		w.log.Warn("message not in current folder listing",
			zap.String("uid", string(msg.ID)),
			zap.Int("listed", len(descs)))
		return false, nil
	}

	raw, err := folder.FetchRaw(ctx, *target)
	if err != nil {
		return false, fmt.Errorf("account %s: fetching body for %q: %w", w.acc.Name, msg.ID, err)
	}

	materialize.Into(msg, raw, w.log)

	if err := w.store.SaveMessage(ctx, w.acc.Name, w.acc.FolderName(), msg); err != nil {
		return true, fmt.Errorf("account %s: persisting message %q: %w", w.acc.Name, msg.ID, err)
	}
	return true, nil
}

// SetReadStatus pushes a read/unread change to the server and mirrors
// it into local storage. Only IMAP can address a message across
// sessions; other protocols fail with ErrNotSupported.
func (w *Worker) SetReadStatus(ctx context.Context, id message.ID, read bool) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	defer w.setState(StateIdle)

	if w.acc.Protocol != config.ProtocolIMAP {
		return fmt.Errorf("account %s: flag changes need stable ids: %w", w.acc.Name, mailstore.ErrNotSupported)
	}
	if id == "" {
		return fmt.Errorf("account %s: empty message id", w.acc.Name)
	}

	w.setState(StateConnecting)
	session, err := w.Opener(ctx, w.acc, w.auth, w.trust, w.log)
	if err != nil {
		w.setState(StateFailed)
		w.log.Error("connect failed", zap.Error(err))
		return fmt.Errorf("account %s: %w", w.acc.Name, err)
	}
	defer session.Close()

	folder, err := session.OpenFolder(ctx, w.acc.FolderName(), mailstore.ModeReadWrite)
	if err != nil {
		return fmt.Errorf("account %s: opening folder: %w", w.acc.Name, err)
	}
	defer folder.Close()

	if err := folder.MarkSeen(ctx, mailstore.Descriptor{UID: id}, read); err != nil {
		return fmt.Errorf("account %s: storing flag for %q: %w", w.acc.Name, id, err)
	}

	if err := w.store.UpdateSeen(ctx, w.acc.Name, w.acc.FolderName(), id, read); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("account %s: updating local flag for %q: %w", w.acc.Name, id, err)
	}
	return nil
}

// Run drives scheduled header syncs until ctx is canceled, sending each
// cycle's outcome to events (if non-nil). It is the dedicated-goroutine
// mode of operation; CLI one-shots call FetchNewHeaders directly.
func (w *Worker) Run(ctx context.Context, schedule <-chan struct{}, flags Flags, events chan<- Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-schedule:
		}

		res, err := w.FetchNewHeaders(ctx, flags)
		if events == nil {
			continue
		}
		select {
		case events <- Event{Account: w.acc.Name, Result: res, Err: err}:
		case <-ctx.Done():
			return
		}
	}
}

// Event is one completed cycle's outcome, dispatched back to the owning
// account entity.
type Event struct {
	Account string
	Result  reconcile.Result
	Err     error
}
