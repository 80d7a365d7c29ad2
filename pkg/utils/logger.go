package utils

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
)

// Logger обертка над zerolog с printf-стилем
type Logger struct {
	level  LogLevel
	logger zerolog.Logger
}

// NewLogger создает логгер, пишущий в stdout
func NewLogger(levelStr string) *Logger {
	return NewLoggerWithWriter(levelStr, os.Getenv("LOG_FORMAT"), os.Stdout)
}

// NewLoggerWithWriter создает логгер с произвольным writer (json или console)
func NewLoggerWithWriter(levelStr, format string, w io.Writer) *Logger {
	level := parseLevel(levelStr)

	out := w
	if format == "console" {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}

	zl := zerolog.New(out).
		Level(toZerologLevel(level)).
		With().
		Timestamp().
		Logger()

	return &Logger{
		level:  level,
		logger: zl,
	}
}

// Nop логгер для тестов
func Nop() *Logger {
	return &Logger{level: ERROR + 1, logger: zerolog.Nop()}
}

func parseLevel(levelStr string) LogLevel {
	switch levelStr {
	case "debug":
		return DEBUG
	case "info":
		return INFO
	case "warn":
		return WARN
	case "error":
		return ERROR
	default:
		return INFO
	}
}

func toZerologLevel(level LogLevel) zerolog.Level {
	switch level {
	case DEBUG:
		return zerolog.DebugLevel
	case INFO:
		return zerolog.InfoLevel
	case WARN:
		return zerolog.WarnLevel
	case ERROR:
		return zerolog.ErrorLevel
	default:
		return zerolog.Disabled
	}
}

// With возвращает дочерний логгер с полем key=value
func (l *Logger) With(key string, value interface{}) *Logger {
	return &Logger{
		level:  l.level,
		logger: l.logger.With().Interface(key, value).Logger(),
	}
}

// Zerolog отдает исходный логгер для структурированных событий
func (l *Logger) Zerolog() *zerolog.Logger {
	return &l.logger
}

func (l *Logger) Debug(format string, v ...interface{}) {
	if l.level <= DEBUG {
		l.logger.Debug().Msg(fmt.Sprintf(format, v...))
	}
}

func (l *Logger) Info(format string, v ...interface{}) {
	if l.level <= INFO {
		l.logger.Info().Msg(fmt.Sprintf(format, v...))
	}
}

func (l *Logger) Warn(format string, v ...interface{}) {
	if l.level <= WARN {
		l.logger.Warn().Msg(fmt.Sprintf(format, v...))
	}
}

func (l *Logger) Error(format string, v ...interface{}) {
	if l.level <= ERROR {
		l.logger.Error().Msg(fmt.Sprintf(format, v...))
	}
}
