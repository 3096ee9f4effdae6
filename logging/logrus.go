package logging

import (
	"fmt"
	"io"
	"strings"

	auth "github.com/goliatone/hr-auth"
	"github.com/sirupsen/logrus"
)

// Logrus adapts a logrus entry to auth.Logger. Trailing key/value
// arguments become logrus fields.
type Logrus struct {
	entry *logrus.Entry
}

var _ auth.Logger = (*Logrus)(nil)

// Options configures NewLogrus.
type Options struct {
	Level  string
	Format string
	Output io.Writer
}

// NewLogrus builds a logger writing to opts.Output (stderr when nil).
// Unknown levels fall back to info.
func NewLogrus(opts Options) *Logrus {
	logger := logrus.New()
	if opts.Output != nil {
		logger.SetOutput(opts.Output)
	}

	level, err := logrus.ParseLevel(opts.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	switch strings.ToLower(opts.Format) {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	default:
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, DisableColors: true})
	}

	return FromEntry(logrus.NewEntry(logger))
}

// FromEntry wraps an existing entry.
func FromEntry(entry *logrus.Entry) *Logrus {
	return &Logrus{entry: entry}
}

// With returns a logger that adds the given key/value pairs to every line.
func (l *Logrus) With(args ...any) *Logrus {
	return &Logrus{entry: l.entry.WithFields(fields(args))}
}

func (l *Logrus) Debug(msg string, args ...any) {
	l.entry.WithFields(fields(args)).Debug(msg)
}

func (l *Logrus) Info(msg string, args ...any) {
	l.entry.WithFields(fields(args)).Info(msg)
}

func (l *Logrus) Warn(msg string, args ...any) {
	l.entry.WithFields(fields(args)).Warn(msg)
}

func (l *Logrus) Error(msg string, args ...any) {
	l.entry.WithFields(fields(args)).Error(msg)
}

func fields(args []any) logrus.Fields {
	out := logrus.Fields{}
	for i := 0; i < len(args); i += 2 {
		key := fmt.Sprint(args[i])
		if i+1 >= len(args) {
			out["!BADKEY"] = args[i]
			break
		}
		if err, ok := args[i+1].(error); ok {
			out[key] = err.Error()
			continue
		}
		out[key] = args[i+1]
	}
	return out
}
