// Package trace observes transport I/O: per-connection byte counters and
// a line/byte trace forwarded to a structured logger, plus the coarse
// progress callbacks long bulk operations report through.
package trace

import (
	"sync/atomic"

	"go.uber.org/zap"
)

var connSeq atomic.Int64

// NextConnID hands out process-unique connection ids for trace keying.
func NextConnID() int {
	return int(connSeq.Add(1))
}

// Tracer accumulates sent/received byte counts and mirrors every
// transport event to a logger keyed by (context label, connection id).
// The byte callbacks may run on a transport-internal goroutine; the
// counters are the only cross-goroutine state and use atomic adds. All
// methods are fire-and-forget and never block or panic.
type Tracer struct {
	sent     atomic.Uint64
	received atomic.Uint64

	log *zap.Logger
}

// New builds a tracer for one connection. A nil logger disables the
// event mirror but keeps the counters.
func New(log *zap.Logger, context string, connID int) *Tracer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Tracer{
		log: log.With(zap.String("context", context), zap.Int("conn", connID)),
	}
}

func (t *Tracer) SendBytes(count int, state string) {
	t.sent.Add(uint64(count))
	t.log.Debug("sent bytes", zap.Int("count", count), zap.String("state", orNull(state)))
}

func (t *Tracer) ReceiveBytes(count int, state string) {
	t.received.Add(uint64(count))
	t.log.Debug("received bytes", zap.Int("count", count), zap.String("state", orNull(state)))
}

func (t *Tracer) SendLine(line string) {
	t.log.Debug("sent", zap.String("line", line))
}

func (t *Tracer) ReceiveLine(line string) {
	t.log.Debug("received", zap.String("line", line))
}

// Sent returns the total bytes written so far on the traced connection.
func (t *Tracer) Sent() uint64 { return t.sent.Load() }

// Received returns the total bytes read so far on the traced connection.
func (t *Tracer) Received() uint64 { return t.received.Load() }

func orNull(state string) string {
	if state == "" {
		return "<null>"
	}
	return state
}
