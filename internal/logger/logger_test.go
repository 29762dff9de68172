package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoggerFile(t *testing.T) {
	filePath := filepath.Join(t.TempDir(), "testing.log")

	l, err := New(Info, map[Destination]struct{}{
		DestinationFile: {},
	}, filePath)
	require.NoError(t, err)
	defer l.Close()

	l.Log(Debug, "below level, skipped")
	l.Log(Info, "testing %d", 123)
	l.Log(Warn, "testing %s", "warn")

	byts, err := os.ReadFile(filePath)
	require.NoError(t, err)

	require.Regexp(t, `^[0-9]{4}/[0-9]{2}/[0-9]{2} [0-9]{2}:[0-9]{2}:[0-9]{2} INF testing 123\n`+
		`[0-9]{4}/[0-9]{2}/[0-9]{2} [0-9]{2}:[0-9]{2}:[0-9]{2} WAR testing warn\n$`, string(byts))
}
