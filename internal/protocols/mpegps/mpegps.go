// Package mpegps implements a MPEG-PS (ISO/IEC 13818-1) demuxer for
// GB28181 media streams: pack header, system header, program stream map
// and PES packets, with bounded resynchronization on corrupted input.
package mpegps

// StreamType is an elementary stream type declared by the PSM.
type StreamType byte

// stream types.
const (
	StreamTypeAAC  StreamType = 0x0f
	StreamTypeH264 StreamType = 0x1b
	StreamTypeH265 StreamType = 0x24
)

// start codes.
const (
	sidPack    = 0xba
	sidSystem  = 0xbb
	sidPSM     = 0xbc
	sidPrivate = 0xbd
)

// MaxPacketSize is the size above which an incoming packet is suspicious.
const MaxPacketSize = 1500

// MaxReserved is the maximum number of bytes carried over between
// decode windows. Above it, carried bytes are dropped and the stream
// resynchronizes on the next pack header.
const MaxReserved = 128

const maxRecoverCount = 16

var packStartCode = []byte{0x00, 0x00, 0x01, sidPack}

func isVideoSID(sid byte) bool {
	return sid >= 0xe0 && sid <= 0xef
}

func isAudioSID(sid byte) bool {
	return sid >= 0xc0 && sid <= 0xdf
}
