package message

import (
	"fmt"
	"time"

	"github.com/ossrs/srs-sub009/internal/protocols/rtmp/rawmessage"
)

// VideoChunkStreamID is the chunk stream ID that is usually used to send Video{}
const VideoChunkStreamID = 6

// video codecs
const (
	CodecH264 = 7
	CodecH265 = 12
)

// VideoType is the type of a Video.
type VideoType uint8

// VideoType values.
const (
	VideoTypeConfig VideoType = 0
	VideoTypeAU     VideoType = 1
	VideoTypeEOS    VideoType = 2
)

// Video is a video message.
type Video struct {
	ChunkStreamID   byte
	DTS             time.Duration
	MessageStreamID uint32
	Codec           uint8
	IsKeyFrame      bool
	Type            VideoType
	PTSDelta        time.Duration
	Payload         []byte
}

func (m *Video) unmarshal(raw *rawmessage.Message) error {
	m.ChunkStreamID = raw.ChunkStreamID
	m.DTS = raw.Timestamp
	m.MessageStreamID = raw.MessageStreamID

	if len(raw.Body) < 5 {
		return fmt.Errorf("invalid body size")
	}

	m.IsKeyFrame = (raw.Body[0] >> 4) == 1

	m.Codec = raw.Body[0] & 0x0F
	switch m.Codec {
	case CodecH264, CodecH265:
	default:
		return fmt.Errorf("unsupported video codec: %d", m.Codec)
	}

	m.Type = VideoType(raw.Body[1])
	switch m.Type {
	case VideoTypeConfig, VideoTypeAU, VideoTypeEOS:
	default:
		return fmt.Errorf("unsupported video message type: %d", m.Type)
	}

	ptsDelta := uint32(raw.Body[2])<<16 | uint32(raw.Body[3])<<8 | uint32(raw.Body[4])
	m.PTSDelta = time.Duration(ptsDelta) * time.Millisecond
	m.Payload = raw.Body[5:]

	return nil
}

func (m Video) marshal() (*rawmessage.Message, error) {
	body := make([]byte, 5+len(m.Payload))

	if m.IsKeyFrame {
		body[0] = 1 << 4
	} else {
		body[0] = 2 << 4
	}
	body[0] |= m.Codec

	body[1] = uint8(m.Type)

	ptsDelta := uint32(m.PTSDelta.Milliseconds())
	body[2] = byte(ptsDelta >> 16)
	body[3] = byte(ptsDelta >> 8)
	body[4] = byte(ptsDelta)

	copy(body[5:], m.Payload)

	return &rawmessage.Message{
		ChunkStreamID:   m.ChunkStreamID,
		Timestamp:       m.DTS,
		Type:            uint8(TypeVideo),
		MessageStreamID: m.MessageStreamID,
		Body:            body,
	}, nil
}
