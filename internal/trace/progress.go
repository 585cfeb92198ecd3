package trace

import "go.uber.org/zap"

// ProgressListener receives coarse progress for one bulk operation.
// Implementations must not block; the one shipped with the CLI just
// logs, UI hosts plug in their own.
type ProgressListener interface {
	Start(total int)
	Progress(current, total int)
	Stop(total int)
}

type NopProgress struct{}

func (NopProgress) Start(int)         {}
func (NopProgress) Progress(int, int) {}
func (NopProgress) Stop(int)          {}

type logProgress struct {
	log *zap.Logger
}

// LogProgress reports bulk-operation progress to a logger under the
// given context label.
func LogProgress(log *zap.Logger, context string) ProgressListener {
	if log == nil {
		log = zap.NewNop()
	}
	return &logProgress{log: log.With(zap.String("context", context))}
}

func (p *logProgress) Start(total int) {
	p.log.Info("bulk operation started", zap.Int("total", total))
}

func (p *logProgress) Progress(current, total int) {
	p.log.Debug("bulk operation progress", zap.Int("current", current), zap.Int("total", total))
}

func (p *logProgress) Stop(total int) {
	p.log.Info("bulk operation finished", zap.Int("total", total))
}
