// Package muxer converts MPEG-PS elementary streams into RTMP/FLV
// messages: Annex-B NALU streams are repackaged as AVCC/HVCC, ADTS
// audio as raw AAC frames, and the result is pushed to a sink in
// timestamp order.
package muxer

import (
	"fmt"
	"time"

	"github.com/ossrs/srs-sub009/internal/defs"
	"github.com/ossrs/srs-sub009/internal/logger"
	"github.com/ossrs/srs-sub009/internal/protocols/mpegps"
	"github.com/ossrs/srs-sub009/internal/protocols/rtmp/message"
)

// Sink is where the muxer writes its messages. It is implemented by
// rtmp.Client.
type Sink interface {
	Write(msg message.Message) error
}

// Muxer bridges PS messages to a RTMP sink.
type Muxer struct {
	Conn   Sink
	Parent logger.Writer

	h264 h264Track
	h265 h265Track
	aac  aacTrack

	queue queue
}

// Initialize initializes the muxer.
func (m *Muxer) Initialize() {
	m.queue.items = make(map[int64]message.Message)
}

// Log implements logger.Writer.
func (m *Muxer) Log(level logger.Level, format string, args ...interface{}) {
	if m.Parent != nil {
		m.Parent.Log(level, "[muxer] "+format, args...)
	}
}

// Reset discards the cached codec parameters and any queued message;
// the next frames will re-emit the sequence headers.
func (m *Muxer) Reset() {
	m.h264 = h264Track{}
	m.h265 = h265Track{}
	m.aac = aacTrack{}
	m.queue = queue{items: make(map[int64]message.Message)}
}

// WriteVideo muxes one logical video message. Timestamps are in 90 kHz
// units; the codec is the one declared by the PSM.
func (m *Muxer) WriteVideo(streamType mpegps.StreamType, dts int64, pts int64, payload []byte) error {
	var err error

	switch streamType {
	case mpegps.StreamTypeH264:
		err = m.writeH264(dts, pts, payload)

	case mpegps.StreamTypeH265:
		if !h265Supported {
			return fmt.Errorf("%w: stream is HEVC", defs.ErrHEVCDisabled)
		}
		err = m.writeH265(dts, pts, payload)

	default:
		return fmt.Errorf("%w: unsupported video stream type 0x%02x", defs.ErrTSCodec, byte(streamType))
	}
	if err != nil {
		return err
	}

	return m.drain()
}

// WriteAudio muxes one audio message. The payload is a sequence of
// ADTS frames.
func (m *Muxer) WriteAudio(streamType mpegps.StreamType, dts int64, payload []byte) error {
	if streamType != 0 && streamType != mpegps.StreamTypeAAC {
		return fmt.Errorf("%w: unsupported audio stream type 0x%02x", defs.ErrTSCodec, byte(streamType))
	}

	err := m.writeAAC(dts, payload)
	if err != nil {
		return err
	}

	return m.drain()
}

func (m *Muxer) enqueueVideo(msg *message.Video) {
	ts, ok := m.queue.push(durationMs(msg.DTS), msg, true)
	if !ok {
		m.Log(logger.Warn, "too many timestamp collisions, dropping video message")
		return
	}
	msg.DTS = time.Duration(ts) * time.Millisecond
}

func (m *Muxer) enqueueAudio(msg *message.Audio) {
	ts, ok := m.queue.push(durationMs(msg.DTS), msg, false)
	if !ok {
		m.Log(logger.Warn, "too many timestamp collisions, dropping audio message")
		return
	}
	msg.DTS = time.Duration(ts) * time.Millisecond
}

func (m *Muxer) drain() error {
	for m.queue.ready() {
		msg := m.queue.pop()
		if msg == nil {
			return nil
		}

		err := m.Conn.Write(msg)
		if err != nil {
			return err
		}
	}
	return nil
}

func durationMs(d time.Duration) int64 {
	return d.Milliseconds()
}

func ptsTime(v int64) time.Duration {
	// 90 kHz to milliseconds
	return time.Duration(v/90) * time.Millisecond
}
