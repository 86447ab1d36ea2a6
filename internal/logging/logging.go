package logging

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// New builds the process logger. Every entry carries the service name.
func New(service, level, format string) *logrus.Entry {
	return NewWithOutput(os.Stdout, service, level, format)
}

func NewWithOutput(w io.Writer, service, level, format string) *logrus.Entry {
	l := logrus.New()
	l.SetOutput(w)

	if format == "text" {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		l.SetFormatter(&logrus.JSONFormatter{TimestampFormat: "2006-01-02T15:04:05.000Z07:00"})
	}

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	l.SetLevel(lvl)

	return l.WithField("service", service)
}

// Discard is a logger for tests and tools that have nowhere to write.
func Discard() *logrus.Entry {
	return NewWithOutput(io.Discard, "test", "panic", "text")
}
