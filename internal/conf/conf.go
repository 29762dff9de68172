// Package conf contains the struct that holds the configuration of the software.
package conf

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/ossrs/srs-sub009/internal/defs"
)

// Conf is the gateway configuration.
type Conf struct {
	// General
	LogLevel        LogLevel        `yaml:"logLevel"`
	LogDestinations LogDestinations `yaml:"logDestinations"`
	LogFile         string          `yaml:"logFile"`

	// SIP
	SIPAddress string   `yaml:"sipAddress"`
	SIPTimeout Duration `yaml:"sipTimeout"`

	// Media
	MediaAddress      string   `yaml:"mediaAddress"`
	ReinviteWait      Duration `yaml:"reinviteWait"`
	DetectPSIntegrity bool     `yaml:"detectPSIntegrity"`

	// Output
	Candidate string `yaml:"candidate"`
	OutputURL string `yaml:"output"`
}

func (conf *Conf) setDefaults() {
	conf.LogLevel = LogLevel(logLevelInfo)
	conf.LogDestinations = LogDestinations{destinationStdout: {}}
	conf.LogFile = "gateway.log"
	conf.SIPAddress = ":5060"
	conf.SIPTimeout = Duration(60 * time.Second)
	conf.MediaAddress = ":9000"
	conf.ReinviteWait = Duration(5 * time.Second)
	conf.Candidate = "*"
	conf.OutputURL = "rtmp://127.0.0.1/live/[stream]"
}

// Load loads a configuration file, applies environment overrides and
// validates the result. The second return value reports whether the file
// was found.
func Load(fpath string) (*Conf, bool, error) {
	conf := &Conf{}
	conf.setDefaults()

	found := false

	byts, err := os.ReadFile(fpath)
	if err == nil {
		found = true

		err = yaml.UnmarshalStrict(byts, conf)
		if err != nil {
			return nil, true, fmt.Errorf("%w: %v", defs.ErrConfig, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, false, fmt.Errorf("%w: %v", defs.ErrConfig, err)
	}

	err = loadFromEnvironment("GB", conf)
	if err != nil {
		return nil, found, fmt.Errorf("%w: %v", defs.ErrConfig, err)
	}

	err = conf.validate()
	if err != nil {
		return nil, found, err
	}

	return conf, found, nil
}

func (conf *Conf) validate() error {
	if conf.SIPAddress == "" {
		return fmt.Errorf("%w: sipAddress is empty", defs.ErrConfig)
	}

	if conf.MediaAddress == "" {
		return fmt.Errorf("%w: mediaAddress is empty", defs.ErrConfig)
	}

	if conf.OutputURL == "" {
		return fmt.Errorf("%w: output is empty", defs.ErrConfig)
	}

	if !strings.Contains(conf.OutputURL, "[stream]") {
		return fmt.Errorf("%w: output does not contain the [stream] token", defs.ErrConfig)
	}

	if conf.Candidate == "" {
		return fmt.Errorf("%w: candidate is empty", defs.ErrConfig)
	}

	return nil
}

// OutputURLFor replaces the [stream] token with the given stream name.
func (conf *Conf) OutputURLFor(stream string) string {
	return strings.ReplaceAll(conf.OutputURL, "[stream]", stream)
}
