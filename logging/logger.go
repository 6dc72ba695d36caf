package logging

import "context"

// Logger is the structured logger handed to the engine, its drivers and the CLI. The plain
// Debug/Info/Warn/Fatal methods exist for go.viam.com/utils.ContextualMain; everything else logs
// key/value pairs.
type Logger interface {
	Debug(args ...interface{})
	Info(args ...interface{})
	Warn(args ...interface{})
	Fatal(args ...interface{})

	Debugw(msg string, keysAndValues ...interface{})
	Infow(msg string, keysAndValues ...interface{})
	Warnw(msg string, keysAndValues ...interface{})
	Errorw(msg string, keysAndValues ...interface{})

	// The C variants also log when ctx carries debug mode, whatever the level.
	CDebugw(ctx context.Context, msg string, keysAndValues ...interface{})
	CInfow(ctx context.Context, msg string, keysAndValues ...interface{})
	CWarnw(ctx context.Context, msg string, keysAndValues ...interface{})
	CErrorw(ctx context.Context, msg string, keysAndValues ...interface{})

	SetLevel(level Level)
	GetLevel() Level
	// Sublogger returns a logger named "<name>.<subname>" sharing this logger's appenders. It is
	// registered so logger patterns reach it.
	Sublogger(subname string) Logger
	AddAppender(appender Appender)
	Sync() error
}
