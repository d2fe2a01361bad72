// Package logging configures logrus for the command line.
package logging

import (
	"io"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Configure sets level, format and output on logger. Debug forces the
// debug level regardless of level.
func Configure(logger *log.Logger, level, format string, debug bool, out io.Writer) error {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return errors.Wrapf(err, "invalid log level %q", level)
	}
	if debug {
		lvl = log.DebugLevel
	}

	switch strings.ToLower(format) {
	case "", "text":
		logger.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	case "json":
		logger.SetFormatter(&log.JSONFormatter{})
	default:
		return errors.Errorf("invalid log format %q (want text or json)", format)
	}

	logger.SetLevel(lvl)
	if out != nil {
		logger.SetOutput(out)
	}
	return nil
}
