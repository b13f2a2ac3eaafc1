package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"
)

type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
	FATAL
)

func (l LogLevel) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	case FATAL:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel maps a level name to a LogLevel. Unknown names yield INFO and false.
func ParseLevel(name string) (LogLevel, bool) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "DEBUG":
		return DEBUG, true
	case "INFO":
		return INFO, true
	case "WARN", "WARNING":
		return WARN, true
	case "ERROR":
		return ERROR, true
	case "FATAL":
		return FATAL, true
	}
	return INFO, false
}

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
	colorBlue   = "\033[34m"
	colorGray   = "\033[90m"
)

// Logger writes levelled lines to a console writer and, optionally, a log file.
// Child loggers created with Named share the parent's sinks and level.
type Logger struct {
	core   *core
	prefix string
}

type core struct {
	mu         sync.Mutex
	out        io.Writer
	file       io.WriteCloser
	level      LogLevel
	colorize   bool
	showCaller bool
	showTime   bool
	timeFormat string
}

var (
	defaultLogger *Logger
	once          sync.Once
)

type Config struct {
	Level      LogLevel
	Prefix     string
	Colorize   bool
	ShowCaller bool
	ShowTime   bool
	TimeFormat string
	Output     io.Writer

	// File, when set, receives an uncoloured copy of every line.
	File string
}

func DefaultConfig() Config {
	return Config{
		Level:      INFO,
		Colorize:   true,
		ShowTime:   true,
		TimeFormat: "2006-01-02 15:04:05",
		Output:     os.Stdout,
	}
}

func New(cfg Config) (*Logger, error) {
	if cfg.Output == nil {
		cfg.Output = os.Stdout
	}
	if cfg.TimeFormat == "" {
		cfg.TimeFormat = "2006-01-02 15:04:05"
	}

	c := &core{
		out:        cfg.Output,
		level:      cfg.Level,
		colorize:   cfg.Colorize,
		showCaller: cfg.ShowCaller,
		showTime:   cfg.ShowTime,
		timeFormat: cfg.TimeFormat,
	}
	if cfg.File != "" {
		f, err := openLogFile(cfg.File)
		if err != nil {
			return nil, err
		}
		c.file = f
	}
	return &Logger{core: c, prefix: cfg.Prefix}, nil
}

func openLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}
	return f, nil
}

func GetLogger() *Logger {
	once.Do(func() {
		cfg := DefaultConfig()
		if envLevel := os.Getenv("LOG_LEVEL"); envLevel != "" {
			if lvl, ok := ParseLevel(envLevel); ok {
				cfg.Level = lvl
			}
		}
		// No file is configured here, so New cannot fail.
		defaultLogger, _ = New(cfg)
	})
	return defaultLogger
}

// Named returns a logger that tags every line with name.
func (l *Logger) Named(name string) *Logger {
	prefix := name
	if l.prefix != "" {
		prefix = l.prefix + "." + name
	}
	return &Logger{core: l.core, prefix: "[" + strings.Trim(prefix, "[]") + "]"}
}

func (l *Logger) SetLevel(level LogLevel) {
	l.core.mu.Lock()
	defer l.core.mu.Unlock()
	l.core.level = level
}

func (l *Logger) Level() LogLevel {
	l.core.mu.Lock()
	defer l.core.mu.Unlock()
	return l.core.level
}

func (l *Logger) SetOutput(w io.Writer) {
	l.core.mu.Lock()
	defer l.core.mu.Unlock()
	l.core.out = w
}

// SetFile starts teeing output to path, closing any previous log file.
func (l *Logger) SetFile(path string) error {
	f, err := openLogFile(path)
	if err != nil {
		return err
	}
	l.core.mu.Lock()
	defer l.core.mu.Unlock()
	if l.core.file != nil {
		l.core.file.Close()
	}
	l.core.file = f
	return nil
}

func (l *Logger) SetColorize(colorize bool) {
	l.core.mu.Lock()
	defer l.core.mu.Unlock()
	l.core.colorize = colorize
}

func (l *Logger) SetShowCaller(show bool) {
	l.core.mu.Lock()
	defer l.core.mu.Unlock()
	l.core.showCaller = show
}

// Close releases the log file, if any.
func (l *Logger) Close() error {
	l.core.mu.Lock()
	defer l.core.mu.Unlock()
	if l.core.file == nil {
		return nil
	}
	err := l.core.file.Close()
	l.core.file = nil
	return err
}

func levelColor(level LogLevel) string {
	switch level {
	case DEBUG:
		return colorGray
	case INFO:
		return colorBlue
	case WARN:
		return colorYellow
	default:
		return colorRed
	}
}

func (l *Logger) formatMessage(level LogLevel, colorize bool, msg string, args ...any) string {
	c := l.core
	var parts []string

	if c.showTime {
		parts = append(parts, time.Now().Format(c.timeFormat))
	}

	levelStr := fmt.Sprintf("[%s]", level.String())
	if colorize {
		levelStr = levelColor(level) + levelStr + colorReset
	}
	parts = append(parts, levelStr)

	if c.showCaller {
		if _, file, line, ok := runtime.Caller(3); ok {
			parts = append(parts, fmt.Sprintf("%s:%d", filepath.Base(file), line))
		}
	}

	if l.prefix != "" {
		parts = append(parts, l.prefix)
	}

	if len(args) > 0 {
		msg = fmt.Sprintf(msg, args...)
	}
	parts = append(parts, msg)

	return strings.Join(parts, " ")
}

func (l *Logger) log(level LogLevel, msg string, args ...any) {
	c := l.core
	c.mu.Lock()
	defer c.mu.Unlock()

	if level < c.level {
		return
	}

	fmt.Fprintln(c.out, l.formatMessage(level, c.colorize, msg, args...))
	if c.file != nil {
		fmt.Fprintln(c.file, l.formatMessage(level, false, msg, args...))
	}

	if level == FATAL {
		if c.file != nil {
			c.file.Close()
		}
		os.Exit(1)
	}
}

func (l *Logger) Debug(msg string, args ...any) { l.log(DEBUG, msg, args...) }
func (l *Logger) Info(msg string, args ...any)  { l.log(INFO, msg, args...) }
func (l *Logger) Warn(msg string, args ...any)  { l.log(WARN, msg, args...) }
func (l *Logger) Error(msg string, args ...any) { l.log(ERROR, msg, args...) }

// Fatal logs at FATAL level and exits the program.
func (l *Logger) Fatal(msg string, args ...any) { l.log(FATAL, msg, args...) }

func (l *Logger) Debugf(format string, args ...any) { l.log(DEBUG, format, args...) }
func (l *Logger) Infof(format string, args ...any)  { l.log(INFO, format, args...) }
func (l *Logger) Warnf(format string, args ...any)  { l.log(WARN, format, args...) }
func (l *Logger) Errorf(format string, args ...any) { l.log(ERROR, format, args...) }
func (l *Logger) Fatalf(format string, args ...any) { l.log(FATAL, format, args...) }

// Package-level convenience functions using the default logger

func Debugf(format string, args ...any) { GetLogger().log(DEBUG, format, args...) }
func Infof(format string, args ...any)  { GetLogger().log(INFO, format, args...) }
func Warnf(format string, args ...any)  { GetLogger().log(WARN, format, args...) }
func Errorf(format string, args ...any) { GetLogger().log(ERROR, format, args...) }
func Fatalf(format string, args ...any) { GetLogger().log(FATAL, format, args...) }

// SetLevel sets the log level for the default logger
func SetLevel(level LogLevel) {
	GetLogger().SetLevel(level)
}

// SetOutput sets the console output for the default logger
func SetOutput(w io.Writer) {
	GetLogger().SetOutput(w)
}

// SetFile tees the default logger to a file
func SetFile(path string) error {
	return GetLogger().SetFile(path)
}
