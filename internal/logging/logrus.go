package logging

import (
	"io"
	"strings"

	"github.com/sirupsen/logrus"
)

// Logrus builds per-component logrus entries sharing one level and output.
type Logrus struct {
	level  string
	output io.Writer
}

// NewLogrus creates a new logrus factory. The levels "off" and "none" discard all output.
func NewLogrus(level string, output io.Writer) *Logrus {
	return &Logrus{level: level, output: output}
}

// Get returns a logger tagged with the given component context.
func (l *Logrus) Get(context string) *logrus.Entry {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})

	switch strings.ToLower(l.level) {
	case "off", "none":
		log.SetOutput(io.Discard)
	default:
		level, err := logrus.ParseLevel(l.level)
		if err != nil {
			level = logrus.InfoLevel
		}
		log.SetLevel(level)
		log.SetOutput(l.output)
	}

	return log.WithFields(logrus.Fields{
		"Context": context,
	})
}

// Discard returns an entry that drops everything. Handy as a default for optional loggers.
func Discard() *logrus.Entry {
	return NewLogrus("off", io.Discard).Get("discard")
}
