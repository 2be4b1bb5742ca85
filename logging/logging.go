package logging

import (
	"io"

	log "github.com/sirupsen/logrus"
)

// Options controls how the CLI logs
type Options struct {
	// Level is a logrus level name. Verbose overrides it with debug.
	Level   string
	Verbose bool
	JSON    bool
	Output  io.Writer
}

// Configure applies opts to logger and returns the level that was chosen. An
// unparsable level falls back to info and is reported once the formatter is
// in place.
func Configure(logger *log.Logger, opts Options) log.Level {
	if logger == nil {
		return log.InfoLevel
	}

	if opts.Output != nil {
		logger.SetOutput(opts.Output)
	}

	if opts.JSON {
		ConfigureLogrusJSON(logger)
	} else {
		formatter := new(log.TextFormatter)
		// timestamps are only interesting when debugging
		formatter.DisableTimestamp = !opts.Verbose
		formatter.FullTimestamp = opts.Verbose
		logger.SetFormatter(formatter)
	}

	lvl := log.InfoLevel
	if opts.Level != "" {
		parsed, err := log.ParseLevel(opts.Level)
		if err != nil {
			logger.WithFields(log.Fields{"level": opts.Level, "err": err}).Error("couldn't parse `log` config, defaulting to `info`")
		} else {
			lvl = parsed
		}
	}
	if opts.Verbose && lvl < log.DebugLevel {
		lvl = log.DebugLevel
	}
	logger.SetLevel(lvl)

	if opts.Verbose {
		logger.Debug("Debugging verbosity enabled")
	}

	return lvl
}

// ConfigureLogrusJSON sets the logger to emit JSON logs with a GCP severity field.
func ConfigureLogrusJSON(logger *log.Logger) {
	if logger == nil {
		return
	}

	logger.SetFormatter(&log.JSONFormatter{})
	logger.AddHook(OtelSeverityHook{})
}

// OtelSeverityHook adds a GCP-compatible severity field to log entries.
type OtelSeverityHook struct{}

func (OtelSeverityHook) Levels() []log.Level {
	return log.AllLevels
}

func (OtelSeverityHook) Fire(entry *log.Entry) error {
	if entry == nil {
		return nil
	}
	if _, ok := entry.Data["severity"]; ok {
		return nil
	}

	entry.Data["severity"] = severityForLevel(entry.Level)
	return nil
}

func severityForLevel(level log.Level) string {
	switch level {
	case log.PanicLevel:
		return "EMERGENCY"
	case log.FatalLevel:
		return "CRITICAL"
	case log.ErrorLevel:
		return "ERROR"
	case log.WarnLevel:
		return "WARNING"
	case log.InfoLevel:
		return "INFO"
	case log.DebugLevel, log.TraceLevel:
		return "DEBUG"
	default:
		return "DEFAULT"
	}
}
