package log

import (
	"fmt"
	"io"
	stdlog "log"
	"log/slog"
	"os"
	"strings"
)

// Config declaratively describes a logger. It is the bridge between the
// process configuration surface (flags, env, config file) and NewLogger.
type Config struct {
	// Level is the minimum level: "debug", "info", "warn", "error", "fatal".
	Level string `json:"level" yaml:"level"`
	// Format selects the formatter: "text" or "json".
	Format string `json:"format" yaml:"format"`
	// Output selects where entries go: "console" (default), "file", "null".
	Output string `json:"output" yaml:"output"`
	// FilePath is the destination when Output is "file".
	FilePath string `json:"file_path" yaml:"file_path"`
	// Redact lists field keys whose values are replaced with "[REDACTED]".
	Redact []string `json:"redact" yaml:"redact"`
	// SampleInitial and SampleThereafter enable per-message sampling when
	// SampleThereafter > 0: the first SampleInitial occurrences of a message
	// always pass, then one in every SampleThereafter.
	SampleInitial    int `json:"sample_initial" yaml:"sample_initial"`
	SampleThereafter int `json:"sample_thereafter" yaml:"sample_thereafter"`
}

// ParseLevel converts a level name to a Level. It accepts any case and the
// common aliases "warning" and "err".
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DebugLevel, nil
	case "info", "":
		return InfoLevel, nil
	case "warn", "warning":
		return WarnLevel, nil
	case "error", "err":
		return ErrorLevel, nil
	case "fatal":
		return FatalLevel, nil
	default:
		return InfoLevel, fmt.Errorf("unknown log level %q", s)
	}
}

// ApplyConfig builds a Logger from cfg. Zero values select the defaults:
// info level, text format, console output.
func ApplyConfig(cfg *Config) (Logger, error) {
	if cfg == nil {
		cfg = &Config{}
	}

	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	var formatter Formatter
	switch strings.ToLower(cfg.Format) {
	case "json":
		formatter = &JSONFormatter{}
	case "text", "":
		formatter = &TextFormatter{}
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}

	var output Output
	switch strings.ToLower(cfg.Output) {
	case "console", "":
		output = NewConsoleOutput()
	case "null":
		output = NewNullOutput()
	case "file":
		if cfg.FilePath == "" {
			return nil, fmt.Errorf("file output requires file_path")
		}
		f, err := os.OpenFile(cfg.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		output = NewWriterOutput(f)
	default:
		return nil, fmt.Errorf("unknown log output %q", cfg.Output)
	}

	logger := NewLogger(WithLevel(level), WithFormatter(formatter), WithOutput(output))

	base, ok := logger.(*BaseLogger)
	if !ok {
		return logger, nil
	}
	if len(cfg.Redact) > 0 || cfg.SampleThereafter > 0 {
		handler, _ := base.slogLogger.Handler().(*bridgeHandler)
		if handler != nil {
			handler = handler.withRedactions(cfg.Redact)
			handler = handler.withSampler(cfg.SampleInitial, cfg.SampleThereafter)
			handler.logger = base
			base.slogLogger = slog.New(handler)
		}
	}
	return logger, nil
}

// stdWriter adapts a Logger to io.Writer so the stdlib logger can feed it.
type stdWriter struct {
	logger Logger
	level  Level
}

func (w *stdWriter) Write(p []byte) (int, error) {
	msg := strings.TrimRight(string(p), "\n")
	switch w.level {
	case DebugLevel:
		w.logger.Debug(msg)
	case WarnLevel:
		w.logger.Warn(msg)
	case ErrorLevel:
		w.logger.Error(msg)
	default:
		w.logger.Info(msg)
	}
	return len(p), nil
}

// ToStdLogger returns a *log.Logger whose output feeds the given Logger at
// the given level. Useful for libraries that only accept the stdlib logger.
func ToStdLogger(logger Logger, level Level) *stdlog.Logger {
	var w io.Writer = &stdWriter{logger: logger, level: level}
	return stdlog.New(w, "", 0)
}

// RedirectStdLog points the process-global stdlib logger at the given Logger
// so third-party log output shares our format and destinations.
func RedirectStdLog(logger Logger) {
	stdlog.SetFlags(0)
	stdlog.SetPrefix("")
	stdlog.SetOutput(&stdWriter{logger: logger, level: InfoLevel})
}
