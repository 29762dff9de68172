package conf

import (
	"fmt"
	"sort"

	"github.com/ossrs/srs-sub009/internal/logger"
)

const destinationStdout = logger.DestinationStdout

// LogDestinations is the logDestinations parameter.
type LogDestinations map[logger.Destination]struct{}

// MarshalYAML implements yaml.Marshaler.
func (d LogDestinations) MarshalYAML() (interface{}, error) {
	out := make([]string, 0, len(d))

	for k := range d {
		switch k {
		case logger.DestinationStdout:
			out = append(out, "stdout")

		default:
			out = append(out, "file")
		}
	}

	sort.Strings(out)
	return out, nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *LogDestinations) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var in []string
	err := unmarshal(&in)
	if err != nil {
		return err
	}

	*d = make(LogDestinations)

	for _, v := range in {
		switch v {
		case "stdout":
			(*d)[logger.DestinationStdout] = struct{}{}

		case "file":
			(*d)[logger.DestinationFile] = struct{}{}

		default:
			return fmt.Errorf("invalid log destination: %s", v)
		}
	}

	return nil
}
