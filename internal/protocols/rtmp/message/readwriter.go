package message

import (
	"github.com/ossrs/srs-sub009/internal/protocols/rtmp/bytecounter"
)

// ReadWriter is a message reader/writer.
type ReadWriter struct {
	r *Reader
	w *Writer
}

// NewReadWriter allocates a ReadWriter.
func NewReadWriter(bc *bytecounter.ReadWriter, checkAcks bool) *ReadWriter {
	rw := &ReadWriter{}

	onAckNeeded := func(uint32) error {
		return nil
	}

	if checkAcks {
		onAckNeeded = func(count uint32) error {
			return rw.w.Write(&Acknowledge{Value: count})
		}
	}

	rw.r = NewReader(bc.Reader, onAckNeeded)
	rw.w = NewWriter(bc.Writer)

	return rw
}

// Read reads a Message.
func (rw *ReadWriter) Read() (Message, error) {
	return rw.r.Read()
}

// Write writes a Message.
func (rw *ReadWriter) Write(msg Message) error {
	return rw.w.Write(msg)
}
