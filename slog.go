package askscot

import (
	"fmt"
	"log"
)

// SLogger is the askscot internal logging interface
type SLogger interface {
	Printf(format string, v ...interface{})

	Debugf(format string, v ...interface{})

	Errorf(format string, v ...interface{})
}

type sLogger struct {
	logger *log.Logger
	debug  bool
}

// NewSLogger creates a new askscot logger writing to a standard library logger. Debug
// statements are only written when debug is true
func NewSLogger(log *log.Logger, debug bool) (l *sLogger) {
	l = new(sLogger)
	l.debug = debug
	l.logger = log

	return l
}

// Debugf logs a debug line if debug is enabled
func (sl *sLogger) Debugf(format string, v ...interface{}) {
	if sl.debug {
		sl.logger.Output(2, fmt.Sprintf(format, v...))
	}
}

// Printf logs a line by delegating the call to Output
func (sl *sLogger) Printf(format string, v ...interface{}) {
	sl.logger.Output(2, fmt.Sprintf(format, v...))
}

// Errorf logs an error line, always prefixed with "Error: "
func (sl *sLogger) Errorf(format string, v ...interface{}) {
	sl.logger.Output(2, "Error: "+fmt.Sprintf(format, v...))
}
