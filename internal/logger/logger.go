package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"
)

const (
	LogLevelInfo  = 0
	LogLevelWarn  = 1
	LogLevelError = 2
	LogLevelDebug = 3
)

// Level numbers are kept from the configuration format; severity orders them.
var severity = map[int]int{
	LogLevelDebug: 0,
	LogLevelInfo:  1,
	LogLevelWarn:  2,
	LogLevelError: 3,
}

var levelNames = map[string]int{
	"info":  LogLevelInfo,
	"warn":  LogLevelWarn,
	"error": LogLevelError,
	"debug": LogLevelDebug,
}

type logger struct {
	prefix      string
	innerLogger *log.Logger
	level       int
}

func GetLogger(prefix string, level int) Logger {
	return New(os.Stdout, prefix, level)
}

func New(w io.Writer, prefix string, level int) Logger {
	return &logger{
		prefix:      prefix,
		innerLogger: log.New(w, "", log.Ldate|log.Ltime|log.Lmicroseconds),
		level:       level,
	}
}

// ParseLevel accepts a level name or its number.
func ParseLevel(s string) (int, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if level, ok := levelNames[s]; ok {
		return level, nil
	}

	if level, err := strconv.Atoi(s); err == nil {
		if _, ok := severity[level]; ok {
			return level, nil
		}
	}

	return 0, fmt.Errorf("unknown log level %q", s)
}

func (l *logger) WithPrefix(prefix string) Logger {
	return &logger{
		prefix:      prefix,
		innerLogger: l.innerLogger,
		level:       l.level,
	}
}

func (l *logger) enabled(level int) bool {
	return severity[level] >= severity[l.level]
}

func (l *logger) Info(message string, v ...interface{}) {
	if !l.enabled(LogLevelInfo) {
		return
	}

	l.log(fmt.Sprintf("[INFO] %v", message), v...)
}

func (l *logger) Warn(message string, v ...interface{}) {
	if !l.enabled(LogLevelWarn) {
		return
	}

	l.log(fmt.Sprintf("[WARN] %v", message), v...)
}

func (l *logger) Error(message string, v ...interface{}) {
	if !l.enabled(LogLevelError) {
		return
	}

	l.log(fmt.Sprintf("[ERROR] %v", message), v...)
}

func (l *logger) Debug(message string, v ...interface{}) {
	if !l.enabled(LogLevelDebug) {
		return
	}

	l.log(fmt.Sprintf("[DEBUG] %v", message), v...)
}

func (l *logger) log(message string, v ...interface{}) {
	l.innerLogger.Printf("%v %v\n", l.prefix, fmt.Sprintf(message, v...))
}

func (l *logger) GetWriter() io.Writer {
	return l.innerLogger.Writer()
}
