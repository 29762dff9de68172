package conf

import (
	"fmt"

	"github.com/ossrs/srs-sub009/internal/logger"
)

const logLevelInfo = logger.Info

// LogLevel is the logLevel parameter.
type LogLevel logger.Level

// MarshalYAML implements yaml.Marshaler.
func (d LogLevel) MarshalYAML() (interface{}, error) {
	switch d {
	case LogLevel(logger.Debug):
		return "debug", nil

	case LogLevel(logger.Info):
		return "info", nil

	case LogLevel(logger.Warn):
		return "warn", nil

	default:
		return "error", nil
	}
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *LogLevel) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var in string
	err := unmarshal(&in)
	if err != nil {
		return err
	}

	switch in {
	case "debug":
		*d = LogLevel(logger.Debug)

	case "info":
		*d = LogLevel(logger.Info)

	case "warn":
		*d = LogLevel(logger.Warn)

	case "error":
		*d = LogLevel(logger.Error)

	default:
		return fmt.Errorf("invalid log level: %s", in)
	}

	return nil
}
