// Package bytecounter contains a reader and writer that count bytes.
package bytecounter

import (
	"io"
)

// Reader counts the bytes read from a reader.
type Reader struct {
	r     io.Reader
	count uint64
}

// NewReader allocates a Reader.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

// Read implements io.Reader.
func (r *Reader) Read(p []byte) (int, error) {
	n, err := r.r.Read(p)
	r.count += uint64(n)
	return n, err
}

// Count returns the number of bytes read.
func (r *Reader) Count() uint64 {
	return r.count
}

// Writer counts the bytes written to a writer.
type Writer struct {
	w     io.Writer
	count uint64
}

// NewWriter allocates a Writer.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Write implements io.Writer.
func (w *Writer) Write(p []byte) (int, error) {
	n, err := w.w.Write(p)
	w.count += uint64(n)
	return n, err
}

// Count returns the number of bytes written.
func (w *Writer) Count() uint64 {
	return w.count
}

// ReadWriter groups a Reader and a Writer around the same connection.
type ReadWriter struct {
	*Reader
	*Writer
}

// NewReadWriter allocates a ReadWriter.
func NewReadWriter(rw io.ReadWriter) *ReadWriter {
	return &ReadWriter{
		Reader: NewReader(rw),
		Writer: NewWriter(rw),
	}
}
