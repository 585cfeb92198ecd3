// Package reconcile diffs a folder's remote message listing against the
// locally known identifier set, producing the minimal delta: messages to
// materialize in full and messages whose flags merely changed.
package reconcile

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/bscott/mailsync/internal/mailstore"
	"github.com/bscott/mailsync/internal/materialize"
	"github.com/bscott/mailsync/internal/message"
	"github.com/bscott/mailsync/internal/trace"
)

// Storage is the slice of the local message store a reconciliation pass
// reads from. Writes stay with the caller so nothing durable happens
// before a message is fully materialized.
type Storage interface {
	ExistingIDs(ctx context.Context, account, folder string) (map[message.ID]struct{}, error)
	LoadMessage(ctx context.Context, account, folder string, id message.ID) (*message.Message, error)
}

type Options struct {
	// NewOnly filters out already-seen messages before classification.
	// Only effective when the folder advertises flag support; without
	// it every descriptor stays a candidate and the pass re-examines
	// everything, as the original client did.
	NewOnly bool
}

// Delta is the classification outcome for one pass.
type Delta struct {
	// New holds descriptors absent from the local set; they need full
	// materialization.
	New []mailstore.Descriptor
	// FlagChanged holds descriptors whose UID is already known locally
	// and whose store supplies flag data; only their seen state is
	// reapplied, no body re-fetch.
	FlagChanged []mailstore.Descriptor
}

// Classify splits remote descriptors into new and flag-changed. The UID
// is the only de-duplication key: descriptors without one (POP3 servers
// lacking UIDL) are always classified new, accepting duplicate
// materialization rather than guessing identity. Known UIDs on a store
// without flag support are skipped entirely: the descriptor's Seen is a
// zero value there, not remote state, and must never overwrite the
// local flag.
func Classify(descs []mailstore.Descriptor, existing map[message.ID]struct{}, caps mailstore.FieldMask, opts Options) Delta {
	var delta Delta
	for _, d := range descs {
		if opts.NewOnly && caps.Has(mailstore.FetchFlags) && d.Seen {
			continue
		}
		if d.UID != "" && caps.Has(mailstore.FetchUID) {
			if _, ok := existing[d.UID]; ok {
				if caps.Has(mailstore.FetchFlags) {
					delta.FlagChanged = append(delta.FlagChanged, d)
				}
				continue
			}
		}
		delta.New = append(delta.New, d)
	}
	return delta
}

// Result is the materialized outcome of a pass: New messages carry full
// bodies, Updated messages are local copies with refreshed flags.
type Result struct {
	New     []*message.Message
	Updated []*message.Message
}

// Pass runs one reconciliation over an open folder. An unsupported bulk
// fetch is a soft failure: logged, empty result, nil error, so the
// account worker goes back to idle and retries next cycle. An empty
// remote listing returns immediately without touching storage.
func Pass(ctx context.Context, folder mailstore.Folder, st Storage, account, folderName string, opts Options, log *zap.Logger, progress trace.ProgressListener) (Result, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if progress == nil {
		progress = trace.NopProgress{}
	}

	caps := folder.Capabilities()
	mask := mailstore.Negotiate(folder, mailstore.HeaderFields)
	log.Debug("negotiated bulk fetch fields",
		zap.Stringer("capabilities", caps),
		zap.Stringer("mask", mask))

	descs, err := folder.FetchAll(ctx, mask, progress)
	if err != nil {
		if errors.Is(err, mailstore.ErrNotSupported) {
			log.Warn("bulk header fetch not supported, skipping pass", zap.Error(err))
			return Result{}, nil
		}
		return Result{}, fmt.Errorf("bulk header fetch: %w", err)
	}
	if len(descs) == 0 {
		return Result{}, nil
	}
	log.Debug("fetched remote descriptors", zap.Int("count", len(descs)))

	existing, err := st.ExistingIDs(ctx, account, folderName)
	if err != nil {
		return Result{}, fmt.Errorf("loading existing ids: %w", err)
	}

	delta := Classify(descs, existing, caps, opts)
	log.Info("classified remote messages",
		zap.Int("new", len(delta.New)),
		zap.Int("flag_changed", len(delta.FlagChanged)))

	var res Result
	for _, d := range delta.FlagChanged {
		local, err := st.LoadMessage(ctx, account, folderName, d.UID)
		if err != nil {
			log.Warn("known message missing from storage", zap.String("uid", string(d.UID)), zap.Error(err))
			continue
		}
		local.Read = d.Seen
		res.Updated = append(res.Updated, local)
	}

	progress.Start(len(delta.New))
	for i, d := range delta.New {
		progress.Progress(i+1, len(delta.New))
		raw, err := folder.FetchRaw(ctx, d)
		if err != nil {
			if errors.Is(err, mailstore.ErrNotFound) {
				// Deleted between listing and fetch; not our message
				// anymore.
				log.Warn("message vanished before fetch", zap.String("uid", string(d.UID)))
				continue
			}
			progress.Stop(len(delta.New))
			return res, fmt.Errorf("fetching message %q: %w", d.UID, err)
		}
		res.New = append(res.New, materialize.Materialize(raw, log))
	}
	progress.Stop(len(delta.New))

	return res, nil
}
