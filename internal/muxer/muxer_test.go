package muxer

import (
	"testing"
	"time"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/mpeg4audio"
	"github.com/stretchr/testify/require"

	"github.com/ossrs/srs-sub009/internal/defs"
	"github.com/ossrs/srs-sub009/internal/protocols/mpegps"
	"github.com/ossrs/srs-sub009/internal/protocols/rtmp/message"
)

var testH264SPS = []byte{
	0x67, 0x64, 0x00, 0x0c, 0xac, 0x3b, 0x50, 0xb0,
	0x4b, 0x42, 0x00, 0x00, 0x03, 0x00, 0x02, 0x00,
	0x00, 0x03, 0x00, 0x3d, 0x08,
}

var testH264PPS = []byte{
	0x68, 0xee, 0x3c, 0x80,
}

var testH265VPS = []byte{
	0x40, 0x01, 0x0c, 0x01, 0xff, 0xff, 0x01, 0x40,
	0x00, 0x00, 0x03, 0x00, 0x00, 0x03, 0x00, 0x00,
	0x03, 0x00, 0x00, 0x03, 0x00, 0x7b, 0xac, 0x09,
}

var testH265SPS = []byte{
	0x42, 0x01, 0x01, 0x01, 0x40, 0x00, 0x00, 0x03,
	0x00, 0x00, 0x03, 0x00, 0x00, 0x03, 0x00, 0x00,
	0x03, 0x00, 0x7b, 0xa0, 0x03, 0xc0, 0x80, 0x11,
	0x07, 0xcb, 0x96, 0xb4, 0xa4, 0x25, 0x92, 0xe3,
	0x01, 0x6a, 0x02, 0x02, 0x02, 0x08, 0x00, 0x00,
	0x03, 0x00, 0x08, 0x00, 0x00, 0x03, 0x01, 0xe3,
	0x00, 0x2e, 0xf2, 0x88, 0x00, 0x09, 0x89, 0x60,
	0x00, 0x04, 0xc4, 0xb4, 0x20,
}

var testH265PPS = []byte{
	0x44, 0x01, 0xc0, 0xf7, 0xc0, 0xcc, 0x90,
}

// one ADTS frame, AAC-LC, 48 kHz, stereo, AU = {0xaa, 0xbb}
var testADTS = []byte{0xff, 0xf1, 0x4c, 0x80, 0x01, 0x3f, 0xfc, 0xaa, 0xbb}

func annexB(nalus ...[]byte) []byte {
	var buf []byte
	for _, nalu := range nalus {
		buf = append(buf, 0x00, 0x00, 0x00, 0x01)
		buf = append(buf, nalu...)
	}
	return buf
}

type testSink struct {
	msgs []message.Message
}

func (s *testSink) Write(msg message.Message) error {
	s.msgs = append(s.msgs, msg)
	return nil
}

func TestMuxerH264AAC(t *testing.T) {
	sink := &testSink{}
	m := &Muxer{Conn: sink}
	m.Initialize()

	idr := []byte{0x65, 0x88, 0x84, 0x00}
	nonIDR := []byte{0x41, 0x9a, 0x00}

	err := m.WriteVideo(mpegps.StreamTypeH264, 0, 0, annexB(testH264SPS, testH264PPS, idr))
	require.NoError(t, err)

	err = m.WriteVideo(mpegps.StreamTypeH264, 3600, 3600, annexB(nonIDR))
	require.NoError(t, err)

	err = m.WriteAudio(mpegps.StreamTypeAAC, 1800, testADTS)
	require.NoError(t, err)

	require.Len(t, sink.msgs, 2)

	expectedConf := append([]byte{
		1, 0x64, 0x00, 0x0c, 0xff, 0xe1,
		byte(len(testH264SPS) >> 8), byte(len(testH264SPS)),
	}, testH264SPS...)
	expectedConf = append(expectedConf, 1,
		byte(len(testH264PPS)>>8), byte(len(testH264PPS)))
	expectedConf = append(expectedConf, testH264PPS...)

	require.Equal(t, &message.Video{
		ChunkStreamID:   message.VideoChunkStreamID,
		MessageStreamID: 0x1000000,
		Codec:           message.CodecH264,
		IsKeyFrame:      true,
		Type:            message.VideoTypeConfig,
		Payload:         expectedConf,
	}, sink.msgs[0])

	// the frame collided with the sequence header and moved by 1 ms
	require.Equal(t, &message.Video{
		ChunkStreamID:   message.VideoChunkStreamID,
		MessageStreamID: 0x1000000,
		DTS:             1 * time.Millisecond,
		Codec:           message.CodecH264,
		IsKeyFrame:      true,
		Type:            message.VideoTypeAU,
		Payload: []byte{
			0x00, 0x00, 0x00, 0x04,
			0x65, 0x88, 0x84, 0x00,
		},
	}, sink.msgs[1])

	// more audio and video releases the AAC sequence header
	err = m.WriteAudio(mpegps.StreamTypeAAC, 5400, testADTS)
	require.NoError(t, err)

	err = m.WriteVideo(mpegps.StreamTypeH264, 7200, 7200, annexB(nonIDR))
	require.NoError(t, err)

	require.Len(t, sink.msgs, 4)

	conf := mpeg4audio.Config{
		Type:         mpeg4audio.ObjectTypeAACLC,
		SampleRate:   48000,
		ChannelCount: 2,
	}
	enc, err := conf.Marshal()
	require.NoError(t, err)

	require.Equal(t, &message.Audio{
		ChunkStreamID:   message.AudioChunkStreamID,
		MessageStreamID: 0x1000000,
		DTS:             20 * time.Millisecond,
		Codec:           message.CodecMPEG4Audio,
		Rate:            message.Rate44100,
		Depth:           message.Depth16,
		IsStereo:        true,
		AACType:         message.AudioAACTypeConfig,
		Payload:         enc,
	}, sink.msgs[2])

	require.Equal(t, &message.Audio{
		ChunkStreamID:   message.AudioChunkStreamID,
		MessageStreamID: 0x1000000,
		DTS:             21 * time.Millisecond,
		Codec:           message.CodecMPEG4Audio,
		Rate:            message.Rate44100,
		Depth:           message.Depth16,
		IsStereo:        true,
		AACType:         message.AudioAACTypeAU,
		Payload:         []byte{0xaa, 0xbb},
	}, sink.msgs[3])
}

func TestMuxerH264DropBeforeParams(t *testing.T) {
	sink := &testSink{}
	m := &Muxer{Conn: sink}
	m.Initialize()

	idr := []byte{0x65, 0x88, 0x84, 0x00}

	err := m.WriteVideo(mpegps.StreamTypeH264, 0, 0, annexB(idr))
	require.ErrorIs(t, err, defs.ErrDropBeforeParams)
	require.Empty(t, sink.msgs)
}

func TestMuxerH264PTSDelta(t *testing.T) {
	sink := &testSink{}
	m := &Muxer{Conn: sink}
	m.Initialize()

	idr := []byte{0x65, 0x88, 0x84, 0x00}

	err := m.WriteVideo(mpegps.StreamTypeH264, 0, 7200, annexB(testH264SPS, testH264PPS, idr))
	require.NoError(t, err)

	// flood with video so the overflow path drains the queue
	nonIDR := []byte{0x41, 0x9a, 0x00}
	for i := 1; i <= maxQueuedVideos; i++ {
		err = m.WriteVideo(mpegps.StreamTypeH264, int64(i)*3600, int64(i)*3600+7200, annexB(nonIDR))
		require.NoError(t, err)
	}

	require.NotEmpty(t, sink.msgs)

	au := sink.msgs[1].(*message.Video)
	require.Equal(t, message.VideoTypeAU, au.Type)
	require.Equal(t, 80*time.Millisecond, au.PTSDelta)
}

func TestMuxerH265(t *testing.T) {
	sink := &testSink{}
	m := &Muxer{Conn: sink}
	m.Initialize()

	// IDR_W_RADL
	irap := []byte{0x26, 0x01, 0xaf, 0x08}

	err := m.WriteVideo(mpegps.StreamTypeH265, 0, 0,
		annexB(testH265VPS, testH265SPS, testH265PPS, irap))
	require.NoError(t, err)

	err = m.WriteAudio(mpegps.StreamTypeAAC, 1800, testADTS)
	require.NoError(t, err)

	require.Len(t, sink.msgs, 1)

	expectedConf, err := hevcDecoderConfRecord(testH265VPS, testH265SPS, testH265PPS)
	require.NoError(t, err)
	require.Equal(t, byte(1), expectedConf[0])

	require.Equal(t, &message.Video{
		ChunkStreamID:   message.VideoChunkStreamID,
		MessageStreamID: 0x1000000,
		Codec:           message.CodecH265,
		IsKeyFrame:      true,
		Type:            message.VideoTypeConfig,
		Payload:         expectedConf,
	}, sink.msgs[0])
}

func TestHEVCDecoderConfRecord(t *testing.T) {
	conf, err := hevcDecoderConfRecord(testH265VPS, testH265SPS, testH265PPS)
	require.NoError(t, err)

	// configurationVersion, profile space/tier/idc
	require.Equal(t, []byte{0x01, 0x01}, conf[0:2])
	// general_profile_compatibility_flags, bit 31 first
	require.Equal(t, []byte{0x40, 0x00, 0x00, 0x00}, conf[2:6])
	// general_constraint_indicator_flags, straight from the SPS bytes
	require.Equal(t, testH265SPS[8:14], conf[6:12])
	// general_level_idc
	require.Equal(t, byte(123), conf[12])

	// three parameter-set arrays, in VPS/SPS/PPS order
	require.Equal(t, byte(3), conf[22])
	pos := 23
	for _, ps := range [][]byte{testH265VPS, testH265SPS, testH265PPS} {
		require.Equal(t, []byte{0x00, 0x01}, conf[pos+1:pos+3])
		require.Equal(t, len(ps), int(conf[pos+3])<<8|int(conf[pos+4]))
		require.Equal(t, ps, conf[pos+5:pos+5+len(ps)])
		pos += 5 + len(ps)
	}
	require.Equal(t, pos, len(conf))
}

func TestMuxerH265DropBeforeParams(t *testing.T) {
	sink := &testSink{}
	m := &Muxer{Conn: sink}
	m.Initialize()

	irap := []byte{0x26, 0x01, 0xaf, 0x08}

	err := m.WriteVideo(mpegps.StreamTypeH265, 0, 0, annexB(irap))
	require.ErrorIs(t, err, defs.ErrDropBeforeParams)
}

func TestMuxerUnsupportedCodec(t *testing.T) {
	sink := &testSink{}
	m := &Muxer{Conn: sink}
	m.Initialize()

	err := m.WriteVideo(mpegps.StreamType(0x10), 0, 0, []byte{0x00})
	require.ErrorIs(t, err, defs.ErrTSCodec)

	err = m.WriteAudio(mpegps.StreamType(0x03), 0, []byte{0x00})
	require.ErrorIs(t, err, defs.ErrTSCodec)
}

func TestMuxerReset(t *testing.T) {
	sink := &testSink{}
	m := &Muxer{Conn: sink}
	m.Initialize()

	idr := []byte{0x65, 0x88, 0x84, 0x00}

	err := m.WriteVideo(mpegps.StreamTypeH264, 0, 0, annexB(testH264SPS, testH264PPS, idr))
	require.NoError(t, err)

	m.Reset()

	// parameter caches are gone, frames are dropped again
	err = m.WriteVideo(mpegps.StreamTypeH264, 3600, 3600, annexB(idr))
	require.ErrorIs(t, err, defs.ErrDropBeforeParams)

	// and the sequence header is re-emitted on the next parameter sets
	err = m.WriteVideo(mpegps.StreamTypeH264, 7200, 7200, annexB(testH264SPS, testH264PPS, idr))
	require.NoError(t, err)
}

func TestQueueCollisionLimit(t *testing.T) {
	q := queue{items: make(map[int64]message.Message)}

	for i := 0; i <= maxCollisionBumps; i++ {
		ts, ok := q.push(0, &message.Video{}, true)
		require.True(t, ok)
		require.Equal(t, int64(i), ts)
	}

	_, ok := q.push(0, &message.Video{}, true)
	require.False(t, ok)
}

func TestQueueOrder(t *testing.T) {
	q := queue{items: make(map[int64]message.Message)}

	q.push(40, &message.Video{DTS: 40 * time.Millisecond}, true)
	q.push(0, &message.Video{DTS: 0}, true)
	q.push(20, &message.Audio{DTS: 20 * time.Millisecond}, false)
	q.push(60, &message.Audio{DTS: 60 * time.Millisecond}, false)

	require.True(t, q.ready())

	msg := q.pop()
	require.Equal(t, &message.Video{DTS: 0}, msg)

	require.False(t, q.ready())
}
