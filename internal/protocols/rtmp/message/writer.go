package message

import (
	"github.com/ossrs/srs-sub009/internal/protocols/rtmp/bytecounter"
	"github.com/ossrs/srs-sub009/internal/protocols/rtmp/rawmessage"
)

// Writer is a message writer.
type Writer struct {
	w *rawmessage.Writer
}

// NewWriter allocates a Writer.
func NewWriter(bcw *bytecounter.Writer) *Writer {
	return &Writer{
		w: rawmessage.NewWriter(bcw),
	}
}

// Write writes a Message.
func (w *Writer) Write(msg Message) error {
	raw, err := msg.marshal()
	if err != nil {
		return err
	}

	err = w.w.Write(raw)
	if err != nil {
		return err
	}

	if tmsg, ok := msg.(*SetChunkSize); ok {
		w.w.SetChunkSize(tmsg.Value)
	}

	return nil
}
