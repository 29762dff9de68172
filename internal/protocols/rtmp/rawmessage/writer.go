package rawmessage

import (
	"bufio"

	"github.com/ossrs/srs-sub009/internal/protocols/rtmp/bytecounter"
	"github.com/ossrs/srs-sub009/internal/protocols/rtmp/chunk"
)

// Writer is a raw message writer. Every message is written as a type 0
// chunk followed by type 3 continuations.
type Writer struct {
	bw        *bufio.Writer
	chunkSize uint32
}

// NewWriter allocates a Writer.
func NewWriter(bcw *bytecounter.Writer) *Writer {
	return &Writer{
		bw:        bufio.NewWriter(bcw),
		chunkSize: 128,
	}
}

// SetChunkSize sets the maximum chunk size.
func (w *Writer) SetChunkSize(v uint32) {
	w.chunkSize = v
}

// Write writes a Message.
func (w *Writer) Write(msg *Message) error {
	timestamp := uint32(msg.Timestamp.Milliseconds())
	hasExtendedTimestamp := timestamp >= 0xFFFFFF

	body := msg.Body
	n := uint32(len(body))
	if n > w.chunkSize {
		n = w.chunkSize
	}

	buf, err := chunk.Chunk0{
		ChunkStreamID:   msg.ChunkStreamID,
		Timestamp:       timestamp,
		Type:            msg.Type,
		MessageStreamID: msg.MessageStreamID,
		BodyLen:         uint32(len(body)),
		Body:            body[:n],
	}.Marshal(hasExtendedTimestamp)
	if err != nil {
		return err
	}

	if _, err = w.bw.Write(buf); err != nil {
		return err
	}

	body = body[n:]

	for len(body) > 0 {
		n = uint32(len(body))
		if n > w.chunkSize {
			n = w.chunkSize
		}

		buf, err = chunk.Chunk3{
			ChunkStreamID: msg.ChunkStreamID,
			Body:          body[:n],
		}.Marshal(false)
		if err != nil {
			return err
		}

		if _, err = w.bw.Write(buf); err != nil {
			return err
		}

		body = body[n:]
	}

	return w.bw.Flush()
}
