// Package message contains a RTMP message reader/writer.
package message

import (
	"github.com/ossrs/srs-sub009/internal/protocols/rtmp/rawmessage"
)

// Type is a message type.
type Type byte

// message types.
const (
	TypeSetChunkSize     Type = 1
	TypeAcknowledge      Type = 3
	TypeUserControl      Type = 4
	TypeSetWindowAckSize Type = 5
	TypeSetPeerBandwidth Type = 6
	TypeAudio            Type = 8
	TypeVideo            Type = 9
	TypeDataAMF0         Type = 18
	TypeCommandAMF0      Type = 20
)

// ControlChunkStreamID is the chunk stream ID used by control messages.
const ControlChunkStreamID = 2

// CommandChunkStreamID is the chunk stream ID usually used by commands.
const CommandChunkStreamID = 3

// Message is a message.
type Message interface {
	unmarshal(raw *rawmessage.Message) error
	marshal() (*rawmessage.Message, error)
}
