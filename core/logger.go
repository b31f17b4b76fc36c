package core

// LogLevel controls logger verbosity
type LogLevel int8

const (
	LogDisabled   LogLevel = -1   // LogDisabled turns logging off.
	LogTraceLevel LogLevel = iota // LogTraceLevel is used for detailed debugging information.
	LogDebugLevel                 // LogDebugLevel is used for debugging information.
	LogInfoLevel                  // LogInfoLevel is used for informational messages.
	LogWarnLevel                  // LogWarnLevel is used for warning messages.
	LogErrorLevel                 // LogErrorLevel is used for error messages.
	LogFatalLevel                 // LogFatalLevel is used for fatal messages that cause the program to exit.
	LogPanicLevel                 // LogPanicLevel is used for panic messages that cause the program to panic.
	LogNoLevel                    // LogNoLevel is used for no logging level.
)

// NewNopLogger returns a logger that discards everything. Useful in tests
// and as a safe default before configuration is loaded.
func NewNopLogger() Logger {
	return nopLogger{}
}

type nopLogger struct{}

func (n nopLogger) WithField(string, any) Logger     { return n }
func (n nopLogger) WithFields(map[string]any) Logger { return n }
func (n nopLogger) WithError(error) Logger           { return n }
func (nopLogger) Print(...any)                       {}
func (nopLogger) Trace(...any)                       {}
func (nopLogger) Debug(...any)                       {}
func (nopLogger) Info(...any)                        {}
func (nopLogger) Warn(...any)                        {}
func (nopLogger) Error(...any)                       {}
func (nopLogger) Fatal(...any)                       {}
func (nopLogger) Panic(...any)                       {}
func (nopLogger) Printf(string, ...any)              {}
func (nopLogger) Tracef(string, ...any)              {}
func (nopLogger) Debugf(string, ...any)              {}
func (nopLogger) Infof(string, ...any)               {}
func (nopLogger) Warnf(string, ...any)               {}
func (nopLogger) Errorf(string, ...any)              {}
func (nopLogger) Fatalf(string, ...any)              {}
func (nopLogger) Panicf(string, ...any)              {}
func (nopLogger) SetLevel(LogLevel)                  {}
func (nopLogger) GetLevel() LogLevel                 { return LogDisabled }

// Logger is the logging contract every component receives. Adapters live
// outside the core so the logging backend can be swapped.
type Logger interface {
	// Returns a logger based off the root logger and decorates it with the given context and arguments.
	WithField(key string, value any) Logger  // WithField returns a logger with the given key-value pair.
	WithFields(fields map[string]any) Logger // WithFields returns a logger with the given fields.
	WithError(err error) Logger              // WithError returns a logger with the given error.

	// Default log functions
	Print(args ...any) // Print logs the message with the default level.
	Trace(args ...any) // Trace logs the message with the trace level.
	Debug(args ...any) // Debug logs the message with the debug level.
	Info(args ...any)  // Info logs the message with the info level.
	Warn(args ...any)  // Warn logs the message with the warning level.
	Error(args ...any) // Error logs the message with the error level.
	Fatal(args ...any) // Fatal logs the message and then exits the program.
	Panic(args ...any) // Panic logs the message and then panics.

	// Log functions with format
	Printf(format string, args ...any) // Printf formats and logs the message with the given format and arguments.
	Tracef(format string, args ...any) // Tracef formats and logs the message with the given format and arguments.
	Debugf(format string, args ...any) // Debugf formats and logs the message with the given format and arguments.
	Infof(format string, args ...any)  // Infof formats and logs the message with the given format and arguments.
	Warnf(format string, args ...any)  // Warnf formats and logs the message with the given format and arguments.
	Errorf(format string, args ...any) // Errorf formats and logs the message with the given format and arguments.
	Fatalf(format string, args ...any) // Fatalf formats and logs the message with the given format and arguments.
	Panicf(format string, args ...any) // Panicf formats and logs the message with the given format and arguments.

	// Log level functions
	SetLevel(level LogLevel) // SetLevel sets the logging level for the logger.
	GetLevel() LogLevel      // GetLevel returns the logging level for the logger.
}
