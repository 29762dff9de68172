package conf

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ossrs/srs-sub009/internal/defs"
	"github.com/ossrs/srs-sub009/internal/logger"
)

func writeTempFile(t *testing.T, byts []byte) string {
	fpath := filepath.Join(t.TempDir(), "gateway.yml")
	err := os.WriteFile(fpath, byts, 0o644)
	require.NoError(t, err)
	return fpath
}

func TestConfFromFile(t *testing.T) {
	fpath := writeTempFile(t, []byte(
		"logLevel: debug\n"+
			"sipAddress: ':15060'\n"+
			"mediaAddress: ':19000'\n"+
			"sipTimeout: 3s\n"+
			"reinviteWait: 1s\n"+
			"candidate: 192.168.1.10\n"+
			"output: rtmp://127.0.0.1/live/[stream]\n"))

	conf, found, err := Load(fpath)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, LogLevel(logger.Debug), conf.LogLevel)
	require.Equal(t, ":15060", conf.SIPAddress)
	require.Equal(t, ":19000", conf.MediaAddress)
	require.Equal(t, Duration(3*time.Second), conf.SIPTimeout)
	require.Equal(t, Duration(1*time.Second), conf.ReinviteWait)
	require.Equal(t, "192.168.1.10", conf.Candidate)
}

func TestConfDefaults(t *testing.T) {
	conf, found, err := Load(filepath.Join(t.TempDir(), "nonexistent.yml"))
	require.NoError(t, err)
	require.False(t, found)
	require.Equal(t, ":5060", conf.SIPAddress)
	require.Equal(t, Duration(60*time.Second), conf.SIPTimeout)
	require.Equal(t, "*", conf.Candidate)
}

func TestConfFromEnvironment(t *testing.T) {
	t.Setenv("GB_SIPADDRESS", ":25060")
	t.Setenv("GB_SIPTIMEOUT", "7s")
	t.Setenv("GB_LOGDESTINATIONS", "stdout,file")

	conf, _, err := Load(filepath.Join(t.TempDir(), "nonexistent.yml"))
	require.NoError(t, err)
	require.Equal(t, ":25060", conf.SIPAddress)
	require.Equal(t, Duration(7*time.Second), conf.SIPTimeout)
	require.Equal(t, LogDestinations{
		logger.DestinationStdout: {},
		logger.DestinationFile:   {},
	}, conf.LogDestinations)
}

func TestConfErrors(t *testing.T) {
	for _, ca := range []struct {
		name string
		conf string
	}{
		{
			"invalid syntax",
			"invalid: [[[",
		},
		{
			"missing stream token",
			"output: rtmp://127.0.0.1/live/fixed\n",
		},
		{
			"empty candidate",
			"candidate: ''\n",
		},
	} {
		t.Run(ca.name, func(t *testing.T) {
			fpath := writeTempFile(t, []byte(ca.conf))
			_, _, err := Load(fpath)
			require.Error(t, err)
			require.ErrorIs(t, err, defs.ErrConfig)
		})
	}
}

func TestConfOutputURLFor(t *testing.T) {
	conf, _, err := Load(filepath.Join(t.TempDir(), "nonexistent.yml"))
	require.NoError(t, err)
	require.Equal(t, "rtmp://127.0.0.1/live/34020000001320000001",
		conf.OutputURLFor("34020000001320000001"))
}
