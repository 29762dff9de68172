package mpegps

// MessageKind classifies a PES message by its stream id.
type MessageKind int

// message kinds.
const (
	KindVideo MessageKind = iota
	KindAudio
	KindPrivate
)

// Message is a decoded PES message.
type Message struct {
	// stream id of the PES packet.
	SID byte

	// timestamps in 90 kHz units.
	DTS int64
	PTS int64

	// elementary stream payload.
	Payload []byte

	// RTP header fields of the packet the message started in.
	Seq          uint16
	RTPTimestamp uint32
	PayloadType  uint8
}

// Kind returns the message classification.
func (m *Message) Kind() MessageKind {
	switch {
	case isVideoSID(m.SID):
		return KindVideo
	case isAudioSID(m.SID):
		return KindAudio
	default:
		return KindPrivate
	}
}

// Pack is a PS pack: the unit grouping the PES messages emitted together.
type Pack struct {
	// monotonic counter, assigned by the demuxer.
	ID uint64

	HasPackHeader   bool
	HasSystemHeader bool

	// from the pack header.
	SCR     uint64
	MuxRate uint32

	// from the system header.
	RateBound  uint32
	AudioBound uint8
	VideoBound uint8
}
