package message

import (
	"fmt"

	"github.com/ossrs/srs-sub009/internal/protocols/rtmp/rawmessage"
)

// user control event types.
const (
	UserControlTypeStreamBegin      = 0
	UserControlTypeStreamEOF        = 1
	UserControlTypeStreamDry        = 2
	UserControlTypeSetBufferLength  = 3
	UserControlTypeStreamIsRecorded = 4
	UserControlTypePingRequest      = 6
	UserControlTypePingResponse     = 7
)

// UserControl is a user control message. The event payload is kept
// opaque; a publisher only needs to answer ping requests.
type UserControl struct {
	EventType uint16
	Payload   []byte
}

func (m *UserControl) unmarshal(raw *rawmessage.Message) error {
	if raw.ChunkStreamID != ControlChunkStreamID {
		return fmt.Errorf("unexpected chunk stream ID")
	}

	if len(raw.Body) < 2 {
		return fmt.Errorf("invalid body size")
	}

	m.EventType = uint16(raw.Body[0])<<8 | uint16(raw.Body[1])
	m.Payload = raw.Body[2:]

	return nil
}

func (m *UserControl) marshal() (*rawmessage.Message, error) {
	body := make([]byte, 2+len(m.Payload))
	body[0] = byte(m.EventType >> 8)
	body[1] = byte(m.EventType)
	copy(body[2:], m.Payload)

	return &rawmessage.Message{
		ChunkStreamID: ControlChunkStreamID,
		Type:          uint8(TypeUserControl),
		Body:          body,
	}, nil
}
