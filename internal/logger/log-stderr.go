package logger

import (
	"fmt"
	"log"
)

// StdErrLogger writes through the standard log package, which defaults to stderr.
type StdErrLogger struct {
	logLevel LogLevel
}

func (l *StdErrLogger) Printf(level LogLevel, format string, a ...interface{}) {
	txt := logLevelPrefix[level] + ": " + fmt.Sprintf(format, a...)
	log.Println(txt)
}
func (l *StdErrLogger) Debugf(format string, a ...interface{}) {
	if l.logLevel <= LogDebug {
		l.Printf(LogDebug, format, a...)
	}
}
func (l *StdErrLogger) Infof(format string, a ...interface{}) {
	if l.logLevel <= LogInfo {
		l.Printf(LogInfo, format, a...)
	}
}
func (l *StdErrLogger) Errorf(format string, a ...interface{}) {
	l.Printf(LogError, format, a...)
}

func (l *StdErrLogger) SetLogLevel(level LogLevel) {
	l.logLevel = level
}
func (l *StdErrLogger) GetLogLevel() LogLevel {
	return l.logLevel
}
