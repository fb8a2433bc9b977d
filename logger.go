package strcore

import (
	"sync/atomic"

	"go.uber.org/zap"
)

var logger atomic.Pointer[zap.Logger]

func init() {
	logger.Store(zap.NewNop())
}

// Logger returns the package logger. It is a no-op logger unless SetLogger
// installed another one.
func Logger() *zap.Logger {
	return logger.Load()
}

// SetLogger replaces the package logger. A nil logger restores the no-op one.
func SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	logger.Store(l)
}

func logTransition(op string, from, to Category, size, capacity int) {
	if ce := Logger().Check(zap.DebugLevel, "category transition"); ce != nil {
		ce.Write(
			zap.String("op", op),
			zap.Stringer("from", from),
			zap.Stringer("to", to),
			zap.Int("size", size),
			zap.Int("capacity", capacity),
		)
	}
}
