//go:build noh265

package mpegps

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ossrs/srs-sub009/internal/defs"
)

func TestDemuxerH265Disabled(t *testing.T) {
	d := &Demuxer{}

	var stream []byte
	stream = append(stream, buildPackHeader(0, 5000)...)
	stream = append(stream, buildPSM(StreamTypeH265, StreamTypeAAC)...)

	_, err := d.Decode(stream)
	require.NoError(t, err)
	require.True(t, d.Recovering())
	require.ErrorIs(t, d.RecoverError(), defs.ErrPSHeader)
	require.ErrorIs(t, d.RecoverError(), defs.ErrHEVCDisabled)
}
