package log

import "go.uber.org/zap"

// zapLogger adapts *zap.SugaredLogger to the Logger interface. This is the
// production logging path; the key/value convention matches zap's own
// "With" pairing so callers can pass alternating key, value arguments.
type zapLogger struct {
	sugar *zap.SugaredLogger
}

// NewZap wraps an existing *zap.Logger.
func NewZap(z *zap.Logger) Logger {
	return &zapLogger{sugar: z.Sugar()}
}

// NewProduction builds a production zap configuration (JSON encoder,
// info level) wrapped as a Logger. Errors building the logger fall back to
// a no-op logger rather than panicking on external input.
func NewProduction() Logger {
	z, err := zap.NewProduction()
	if err != nil {
		return NewNoOp()
	}
	return NewZap(z)
}

func (l *zapLogger) Debug(msg string, kv ...interface{}) { l.sugar.Debugw(msg, kv...) }
func (l *zapLogger) Info(msg string, kv ...interface{})  { l.sugar.Infow(msg, kv...) }
func (l *zapLogger) Warn(msg string, kv ...interface{})  { l.sugar.Warnw(msg, kv...) }
func (l *zapLogger) Error(msg string, kv ...interface{}) { l.sugar.Errorw(msg, kv...) }
func (l *zapLogger) Fatal(msg string, kv ...interface{}) { l.sugar.Fatalw(msg, kv...) }

func (l *zapLogger) With(kv ...interface{}) Logger {
	return &zapLogger{sugar: l.sugar.With(kv...)}
}
