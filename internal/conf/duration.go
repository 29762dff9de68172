package conf

import (
	"time"
)

// Duration is a duration. It is unmarshaled from a string like "5s"
// instead of a number.
type Duration time.Duration

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var in string
	err := unmarshal(&in)
	if err != nil {
		return err
	}

	du, err := time.ParseDuration(in)
	if err != nil {
		return err
	}

	*d = Duration(du)
	return nil
}
