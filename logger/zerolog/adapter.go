package zerolog

import (
	"fmt"

	"github.com/quorumtrade/quorum/core"

	"github.com/rs/zerolog"
)

// Adapter implements core.Logger on top of rs/zerolog
type Adapter struct {
	*zerolog.Logger
}

func NewAdapter(logger *zerolog.Logger) *Adapter {
	return &Adapter{logger}
}

// GetLevel implements core.Logger.
func (z *Adapter) GetLevel() core.LogLevel {
	return toLevel(z.Logger.GetLevel())
}

// SetLevel implements core.Logger.
func (z *Adapter) SetLevel(level core.LogLevel) {
	zerolog.SetGlobalLevel(toZerologLevel(level))
}

// Trace implements core.Logger.
func (z *Adapter) Trace(args ...any) {
	z.Logger.Trace().Msg(fmt.Sprint(args...))
}

// Tracef implements core.Logger.
func (z *Adapter) Tracef(format string, args ...any) {
	z.Logger.Trace().Msgf(format, args...)
}

// Print implements core.Logger.
func (z *Adapter) Print(args ...any) {
	z.Logger.Print(args...)
}

// Debug implements core.Logger.
func (z *Adapter) Debug(args ...any) {
	z.Logger.Debug().Msg(fmt.Sprint(args...))
}

// Fatal implements core.Logger.
func (z *Adapter) Fatal(args ...any) {
	z.Logger.Fatal().Msg(fmt.Sprint(args...))
}

// Info implements core.Logger.
func (z *Adapter) Info(args ...any) {
	z.Logger.Info().Msg(fmt.Sprint(args...))
}

// Warn implements core.Logger.
func (z *Adapter) Warn(args ...any) {
	z.Logger.Warn().Msg(fmt.Sprint(args...))
}

// Panic implements core.Logger.
func (z *Adapter) Panic(args ...any) {
	z.Logger.Panic().Msg(fmt.Sprint(args...))
}

// Infof implements core.Logger.
func (z *Adapter) Infof(format string, args ...any) {
	z.Logger.Info().Msgf(format, args...)
}

// Fatalf implements core.Logger.
func (z *Adapter) Fatalf(format string, args ...any) {
	z.Logger.Fatal().Msgf(format, args...)
}

// Debugf implements core.Logger.
func (z *Adapter) Debugf(format string, args ...any) {
	z.Logger.Debug().Msgf(format, args...)
}

// Panicf implements core.Logger.
func (z *Adapter) Panicf(format string, args ...any) {
	z.Logger.Panic().Msgf(format, args...)
}

// Printf implements core.Logger.
func (z *Adapter) Printf(format string, args ...any) {
	z.Logger.Printf(format, args...)
}

// Warnf implements core.Logger.
func (z *Adapter) Warnf(format string, args ...any) {
	z.Logger.Warn().Msgf(format, args...)
}

// Error implements core.Logger.
func (z *Adapter) Error(args ...any) {
	z.Logger.Error().Msg(fmt.Sprint(args...))
}

// Errorf implements core.Logger.
func (z *Adapter) Errorf(format string, args ...any) {
	z.Logger.Error().Msgf(format, args...)
}

// WithError implements core.Logger.
func (z *Adapter) WithError(err error) core.Logger {
	newLogger := z.With().Err(err).Logger()
	return &Adapter{&newLogger}
}

// WithField implements core.Logger.
func (z *Adapter) WithField(key string, value any) core.Logger {
	newLogger := z.With().Interface(key, fmt.Sprint(value)).Logger()
	return &Adapter{&newLogger}
}

// WithFields implements core.Logger.
func (z *Adapter) WithFields(fields map[string]any) core.Logger {
	newLogger := z.With().Fields(fields).Logger()

	return &Adapter{&newLogger}
}

// toLevel converts zerolog.Level to core.LogLevel.
func toLevel(level zerolog.Level) core.LogLevel {
	levelMap := map[zerolog.Level]core.LogLevel{
		zerolog.Disabled:   core.LogDisabled,
		zerolog.NoLevel:    core.LogNoLevel,
		zerolog.TraceLevel: core.LogTraceLevel,
		zerolog.DebugLevel: core.LogDebugLevel,
		zerolog.InfoLevel:  core.LogInfoLevel,
		zerolog.WarnLevel:  core.LogWarnLevel,
		zerolog.ErrorLevel: core.LogErrorLevel,
		zerolog.FatalLevel: core.LogFatalLevel,
		zerolog.PanicLevel: core.LogPanicLevel,
	}

	if level, ok := levelMap[level]; ok {
		return level
	}

	return core.LogNoLevel
}

// toZerologLevel converts core.LogLevel to zerolog.Level.
func toZerologLevel(level core.LogLevel) zerolog.Level {
	levelMap := map[core.LogLevel]zerolog.Level{
		core.LogDisabled:   zerolog.Disabled,
		core.LogNoLevel:    zerolog.NoLevel,
		core.LogTraceLevel: zerolog.TraceLevel,
		core.LogDebugLevel: zerolog.DebugLevel,
		core.LogInfoLevel:  zerolog.InfoLevel,
		core.LogWarnLevel:  zerolog.WarnLevel,
		core.LogErrorLevel: zerolog.ErrorLevel,
		core.LogFatalLevel: zerolog.FatalLevel,
		core.LogPanicLevel: zerolog.PanicLevel,
	}

	if level, ok := levelMap[level]; ok {
		return level
	}

	return zerolog.NoLevel
}
