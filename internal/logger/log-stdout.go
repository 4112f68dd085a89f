package logger

import (
	"fmt"
	"io"
	"log"
	"os"
)

type StdOutLogger struct {
	logLevel LogLevel
	out      *log.Logger
}

func (l *StdOutLogger) writer() *log.Logger {
	if l.out == nil {
		l.out = log.New(os.Stdout, "", log.LstdFlags)
	}
	return l.out
}

// SetOutput redirects the logger, mostly for tests.
func (l *StdOutLogger) SetOutput(w io.Writer) {
	l.out = log.New(w, "", 0)
}

func (l *StdOutLogger) Printf(level LogLevel, format string, a ...interface{}) {
	if level < l.logLevel {
		return
	}
	txt := logLevelPrefix[level] + ": " + fmt.Sprintf(format, a...)
	l.writer().Println(txt)
}
func (l *StdOutLogger) Debugf(format string, a ...interface{}) {
	l.Printf(LogDebug, format, a...)
}
func (l *StdOutLogger) Infof(format string, a ...interface{}) {
	l.Printf(LogInfo, format, a...)
}
func (l *StdOutLogger) Errorf(format string, a ...interface{}) {
	l.Printf(LogError, format, a...)
}

func (l *StdOutLogger) SetLogLevel(level LogLevel) {
	l.logLevel = level
}
func (l *StdOutLogger) GetLogLevel() LogLevel {
	return l.logLevel
}
