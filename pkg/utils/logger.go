package utils

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Logger is the process-wide logger, configured once from the logging
// config section.
var Logger *logrus.Logger

const logTimestampFormat = "2006-01-02T15:04:05.000Z07:00"

// InitLogger configures the global logger. The global is only replaced
// after the sink opened, so a bad log file path surfaces at startup
// instead of swallowing output.
func InitLogger(level, format, output, file string) error {
	logger := logrus.New()

	logLevel, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	logger.SetLevel(logLevel)
	logger.SetFormatter(newLogFormatter(format))

	if output == "file" && file != "" {
		f, err := os.OpenFile(file, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			return err
		}
		logger.SetOutput(f)
	} else {
		logger.SetOutput(os.Stdout)
	}

	Logger = logger
	return nil
}

// newLogFormatter maps the configured format name to a formatter.
// Anything other than "json" gets the human-readable text form.
func newLogFormatter(format string) logrus.Formatter {
	if format == "json" {
		return &logrus.JSONFormatter{TimestampFormat: logTimestampFormat}
	}
	return &logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: logTimestampFormat,
	}
}

// GetLogger returns the global logger, falling back to info-level JSON
// on stdout when InitLogger has not run yet.
func GetLogger() *logrus.Logger {
	if Logger == nil {
		InitLogger("info", "json", "stdout", "")
	}
	return Logger
}
