package accounts

import (
	"context"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-logger/glog"
)

func defaultLogger() *glog.BaseLogger {
	return glog.NewLogger(
		glog.WithName("accounts"),
		glog.WithLoggerTypePretty(),
		glog.WithAddSource(false),
		glog.WithRichErrorHandler(errors.ToSlogAttributes),
	)
}

type loggerFallback struct {
	logger Logger
}

func (p loggerFallback) GetLogger(string) Logger {
	return p.logger
}

// ResolveLogger returns a provider and a named logger, falling back to the
// given logger when the provider is missing or yields nil.
func ResolveLogger(name string, provider LoggerProvider, logger Logger) (LoggerProvider, Logger) {
	if provider == nil {
		if logger == nil {
			base := defaultLogger()
			return base, base.GetLogger(name)
		}
		return loggerFallback{logger: logger}, logger
	}

	resolved := provider.GetLogger(name)
	if resolved == nil {
		if logger == nil {
			logger = defaultLogger().GetLogger(name)
		}
		return loggerFallback{logger: logger}, logger
	}

	return provider, resolved
}

type noopLogger struct{}

func (noopLogger) Trace(string, ...any)                  {}
func (noopLogger) Debug(string, ...any)                  {}
func (noopLogger) Info(string, ...any)                   {}
func (noopLogger) Warn(string, ...any)                   {}
func (noopLogger) Error(string, ...any)                  {}
func (noopLogger) Fatal(string, ...any)                  {}
func (n noopLogger) WithContext(context.Context) Logger { return n }

// NoopLogger discards every entry
func NoopLogger() Logger {
	return noopLogger{}
}
