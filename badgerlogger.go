package tempuskv

import "go.uber.org/zap"

/*
badgerlogger.go adapts a *zap.Logger to badger.Logger, so Badger's own
internal diagnostics (compaction, value-log GC, level rewrites) flow
through the same structured logger the reaper uses.
*/

type badgerZapLogger struct {
	l *zap.SugaredLogger
}

func newBadgerLogger(l *zap.Logger) badgerZapLogger {
	return badgerZapLogger{l: l.Named("badger").Sugar()}
}

func (b badgerZapLogger) Errorf(format string, args ...interface{})   { b.l.Errorf(format, args...) }
func (b badgerZapLogger) Warningf(format string, args ...interface{}) { b.l.Warnf(format, args...) }
func (b badgerZapLogger) Infof(format string, args ...interface{})    { b.l.Infof(format, args...) }
func (b badgerZapLogger) Debugf(format string, args ...interface{})   { b.l.Debugf(format, args...) }
