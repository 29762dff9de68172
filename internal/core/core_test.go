package core

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCoreRunAndClose(t *testing.T) {
	fpath := filepath.Join(t.TempDir(), "gateway.yml")
	err := os.WriteFile(fpath, []byte(
		"sipAddress: 127.0.0.1:0\n"+
			"mediaAddress: 127.0.0.1:0\n"+
			"candidate: 127.0.0.1\n"), 0o644)
	require.NoError(t, err)

	p, ok := New([]string{fpath})
	require.True(t, ok)
	defer p.Close()

	require.NotNil(t, p.gbServer)
	require.NotNil(t, p.gbServer.SIPAddr())
}

func TestCoreInvalidConf(t *testing.T) {
	fpath := filepath.Join(t.TempDir(), "gateway.yml")
	err := os.WriteFile(fpath, []byte("output: no-token\n"), 0o644)
	require.NoError(t, err)

	_, ok := New([]string{fpath})
	require.False(t, ok)
}
