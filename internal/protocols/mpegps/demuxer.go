package mpegps

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/ossrs/srs-sub009/internal/defs"
)

// errNeedMore makes the decoder stop and wait for more input; the
// unconsumed bytes are carried over by the caller.
var errNeedMore = errors.New("need more bytes")

type demuxerState int

const (
	// aligned, expecting a start code.
	stateStartCode demuxerState = iota

	// consuming the payload of the in-progress PES message.
	statePESPayload

	// scanning for the pack start code after a decode error.
	stateRecover
)

// Stats are the running counters of a demuxer.
type Stats struct {
	Packs     uint64
	Messages  uint64
	Recovered uint64
	Dropped   uint64
	Reserved  uint64
}

// Demuxer is a MPEG-PS demuxer.
//
// Decode is fed successive byte windows and reports how many bytes it
// consumed; the caller carries unconsumed bytes into the next window.
// A pack's messages are delivered to OnPack when the following pack
// header is observed.
type Demuxer struct {
	// wait for more input on an incomplete PES header instead of
	// treating it as corruption.
	DetectPSIntegrity bool

	// called with the completed pack and its messages.
	OnPack func(pack *Pack, msgs []*Message)

	// called when a decode error switches the demuxer to recover
	// mode, so that higher layers may drop queued state.
	OnRecoverMode func(counter int)

	// counters, updated during Decode.
	Stats Stats

	// elementary stream types decided by the PSM.
	VideoStreamType StreamType
	AudioStreamType StreamType

	state          demuxerState
	pack           *Pack
	packID         uint64
	msg            *Message
	msgRemaining   int
	msgs           []*Message
	recoverCounter int
	recoverErr     error
	prevDTS        int64
	prevPTS        int64

	rtpSeq uint16
	rtpTS  uint32
	rtpPT  uint8
}

// SetRTPHeader records the RTP header fields of the packet about to be
// decoded; they are copied onto the messages that start inside it.
func (d *Demuxer) SetRTPHeader(seq uint16, ts uint32, pt uint8) {
	d.rtpSeq = seq
	d.rtpTS = ts
	d.rtpPT = pt
}

// Recovering reports whether the demuxer is in recover mode.
func (d *Demuxer) Recovering() bool {
	return d.state == stateRecover
}

// RecoverCounter returns the number of consecutive recovery events.
func (d *Demuxer) RecoverCounter() int {
	return d.recoverCounter
}

// RecoverError returns the error that caused the current recovery
// episode.
func (d *Demuxer) RecoverError() error {
	return d.recoverErr
}

// EnterRecover switches the demuxer to recover mode after an error
// detected by the caller, such as a truncated RTP packet. It returns an
// error when the recovery budget is exhausted; the stream is then
// beyond repair and the connection must be torn down.
func (d *Demuxer) EnterRecover(cause error) error {
	return d.enterRecover(cause)
}

func (d *Demuxer) enterRecover(cause error) error {
	d.recoverCounter++
	if d.recoverCounter > maxRecoverCount {
		return cause
	}

	if d.state != stateRecover {
		d.Stats.Recovered++
	}

	// reap queued and in-progress messages of the current pack.
	d.Stats.Dropped += uint64(len(d.msgs))
	d.msgs = nil
	if d.msg != nil {
		d.Stats.Dropped++
		d.msg = nil
		d.msgRemaining = 0
	}

	d.recoverErr = cause
	d.state = stateRecover

	if d.OnRecoverMode != nil {
		d.OnRecoverMode(d.recoverCounter)
	}

	return nil
}

func (d *Demuxer) quitRecover() {
	d.recoverCounter = 0
	d.recoverErr = nil
	d.state = stateStartCode
}

// Decode consumes a prefix of window and returns its length. Bytes past
// the returned count must be fed again, prepended to the next window.
func (d *Demuxer) Decode(window []byte) (int, error) {
	pos := 0

	for pos < len(window) {
		switch d.state {
		case statePESPayload:
			n := len(window) - pos
			if n > d.msgRemaining {
				n = d.msgRemaining
			}
			d.msg.Payload = append(d.msg.Payload, window[pos:pos+n]...)
			d.msgRemaining -= n
			pos += n

			if d.msgRemaining == 0 {
				d.finishMessage()
			}

		case stateRecover:
			if i := bytes.Index(window[pos:], packStartCode); i >= 0 {
				pos += i
				d.quitRecover()
				continue
			}

			// keep a possible partial start code for the next window.
			return len(window) - startCodeTailLen(window), nil

		default:
			n, err := d.decodeStartCode(window[pos:])
			if err != nil {
				if errors.Is(err, errNeedMore) {
					return pos, nil
				}

				if err2 := d.enterRecover(err); err2 != nil {
					return pos, err2
				}
				continue
			}
			pos += n
		}
	}

	return pos, nil
}

func (d *Demuxer) decodeStartCode(buf []byte) (int, error) {
	if len(buf) < 4 {
		return 0, errNeedMore
	}

	if buf[0] != 0 || buf[1] != 0 || buf[2] != 1 {
		return 0, fmt.Errorf("%w: invalid start code %02x%02x%02x",
			defs.ErrPSHeader, buf[0], buf[1], buf[2])
	}

	switch sid := buf[3]; {
	case sid == sidPack:
		return d.decodePackHeader(buf)

	case sid == sidSystem:
		return d.decodeSystemHeader(buf)

	case sid == sidPSM:
		return d.decodePSM(buf)

	case isVideoSID(sid) || isAudioSID(sid) || sid == sidPrivate:
		return d.decodePESHeader(buf)

	default:
		return 0, fmt.Errorf("%w: unknown start code 0x%02x", defs.ErrPSHeader, sid)
	}
}

func (d *Demuxer) decodePackHeader(buf []byte) (int, error) {
	if len(buf) < 14 {
		return 0, errNeedMore
	}

	if buf[4]&0xc0 != 0x40 {
		return 0, fmt.Errorf("%w: invalid pack header marker 0x%02x", defs.ErrPSHeader, buf[4])
	}

	stuffing := int(buf[13] & 0x07)
	if len(buf) < 14+stuffing {
		return 0, errNeedMore
	}

	d.emitPack()

	d.packID++
	d.pack = &Pack{
		ID:            d.packID,
		HasPackHeader: true,
		SCR: uint64(buf[4]>>3&0x07)<<30 |
			uint64(buf[4]&0x03)<<28 |
			uint64(buf[5])<<20 |
			uint64(buf[6]>>3&0x1f)<<15 |
			uint64(buf[6]&0x03)<<13 |
			uint64(buf[7])<<5 |
			uint64(buf[8]>>3),
		MuxRate: uint32(buf[10])<<14 | uint32(buf[11])<<6 | uint32(buf[12])>>2,
	}
	d.Stats.Packs++
	d.prevDTS = 0
	d.prevPTS = 0

	return 14 + stuffing, nil
}

func (d *Demuxer) decodeSystemHeader(buf []byte) (int, error) {
	if len(buf) < 6 {
		return 0, errNeedMore
	}

	hlen := int(buf[4])<<8 | int(buf[5])
	if len(buf) < 6+hlen {
		return 0, errNeedMore
	}

	if hlen < 6 {
		return 0, fmt.Errorf("%w: system header too short (%d)", defs.ErrPSHeader, hlen)
	}

	if d.pack == nil {
		d.pack = &Pack{}
	}
	d.pack.HasSystemHeader = true
	d.pack.RateBound = uint32(buf[6]&0x7f)<<15 | uint32(buf[7])<<7 | uint32(buf[8])>>1
	d.pack.AudioBound = buf[9] >> 2
	d.pack.VideoBound = buf[10] & 0x1f

	return 6 + hlen, nil
}

func (d *Demuxer) decodePSM(buf []byte) (int, error) {
	if len(buf) < 6 {
		return 0, errNeedMore
	}

	plen := int(buf[4])<<8 | int(buf[5])
	if len(buf) < 6+plen {
		return 0, errNeedMore
	}

	body := buf[6 : 6+plen]
	if len(body) < 6 {
		return 0, fmt.Errorf("%w: PSM too short (%d)", defs.ErrPSHeader, plen)
	}

	psiLen := int(body[2])<<8 | int(body[3])
	if 4+psiLen+2 > len(body) {
		return 0, fmt.Errorf("%w: invalid PSM info length %d", defs.ErrPSHeader, psiLen)
	}

	esmLen := int(body[4+psiLen])<<8 | int(body[4+psiLen+1])
	esm := body[4+psiLen+2:]
	if esmLen > len(esm) {
		return 0, fmt.Errorf("%w: invalid PSM map length %d", defs.ErrPSHeader, esmLen)
	}
	esm = esm[:esmLen]

	for len(esm) > 0 {
		if len(esm) < 4 {
			return 0, fmt.Errorf("%w: truncated PSM entry", defs.ErrPSHeader)
		}

		streamType := StreamType(esm[0])
		esid := esm[1]
		infoLen := int(esm[2])<<8 | int(esm[3])
		if 4+infoLen > len(esm) {
			return 0, fmt.Errorf("%w: invalid PSM entry length %d", defs.ErrPSHeader, infoLen)
		}
		esm = esm[4+infoLen:]

		switch {
		case isVideoSID(esid):
			if streamType == StreamTypeH265 && !h265Supported {
				return 0, fmt.Errorf("%w: %w", defs.ErrPSHeader, defs.ErrHEVCDisabled)
			}
			d.VideoStreamType = streamType

		case isAudioSID(esid):
			d.AudioStreamType = streamType
		}
	}

	return 6 + plen, nil
}

func (d *Demuxer) decodePESHeader(buf []byte) (int, error) {
	if len(buf) < 9 {
		if d.DetectPSIntegrity {
			return 0, errNeedMore
		}
		return 0, fmt.Errorf("%w: incomplete PES header", defs.ErrPSHeader)
	}

	sid := buf[3]
	plen := int(buf[4])<<8 | int(buf[5])
	if plen == 0 {
		return 0, fmt.Errorf("%w: unbounded PES packet", defs.ErrPSHeader)
	}

	if buf[6]&0xc0 != 0x80 {
		return 0, fmt.Errorf("%w: invalid PES flags 0x%02x", defs.ErrPSHeader, buf[6])
	}

	ptsDTSFlags := buf[7] >> 6
	hdl := int(buf[8])

	if len(buf) < 9+hdl {
		if d.DetectPSIntegrity {
			return 0, errNeedMore
		}
		return 0, fmt.Errorf("%w: incomplete PES header", defs.ErrPSHeader)
	}

	if 3+hdl > plen {
		return 0, fmt.Errorf("%w: PES header data length %d exceeds packet length %d",
			defs.ErrPSHeader, hdl, plen)
	}

	var pts, dts int64

	switch ptsDTSFlags {
	case 2:
		if hdl < 5 {
			return 0, fmt.Errorf("%w: truncated PTS", defs.ErrPSHeader)
		}
		pts = decodeTimestamp(buf[9:])
		dts = pts

	case 3:
		if hdl < 10 {
			return 0, fmt.Errorf("%w: truncated PTS/DTS", defs.ErrPSHeader)
		}
		pts = decodeTimestamp(buf[9:])
		dts = decodeTimestamp(buf[14:])
	}

	// a missing PTS is inherited from the previous message in the
	// pack; a missing DTS from the PTS of the same message.
	if pts == 0 && d.prevPTS != 0 {
		pts = d.prevPTS
	}
	if dts == 0 {
		if pts != 0 {
			dts = pts
		} else if d.prevDTS != 0 {
			dts = d.prevDTS
		}
	}

	payloadLen := plen - 3 - hdl

	d.msg = &Message{
		SID:          sid,
		DTS:          dts,
		PTS:          pts,
		Payload:      make([]byte, 0, payloadLen),
		Seq:          d.rtpSeq,
		RTPTimestamp: d.rtpTS,
		PayloadType:  d.rtpPT,
	}
	d.msgRemaining = payloadLen

	if payloadLen == 0 {
		d.finishMessage()
	} else {
		d.state = statePESPayload
	}

	return 9 + hdl, nil
}

func (d *Demuxer) finishMessage() {
	if d.pack == nil {
		d.pack = &Pack{}
	}

	if d.msg.DTS != 0 {
		d.prevDTS = d.msg.DTS
	}
	if d.msg.PTS != 0 {
		d.prevPTS = d.msg.PTS
	}

	d.msgs = append(d.msgs, d.msg)
	d.Stats.Messages++
	d.msg = nil
	d.msgRemaining = 0
	d.state = stateStartCode
}

// emitPack hands the queued messages of the current pack to the
// handler; a pack without messages emits nothing.
func (d *Demuxer) emitPack() {
	if d.pack != nil && len(d.msgs) > 0 && d.OnPack != nil {
		d.OnPack(d.pack, d.msgs)
	}
	d.msgs = nil
}

func decodeTimestamp(buf []byte) int64 {
	return int64(buf[0]>>1&0x07)<<30 |
		int64(buf[1])<<22 |
		int64(buf[2]>>1&0x7f)<<15 |
		int64(buf[3])<<7 |
		int64(buf[4])>>1
}

// startCodeTailLen returns the length of the pack start code prefix at
// the end of the window, so that a start code split across windows is
// not lost during recovery scanning.
func startCodeTailLen(window []byte) int {
	for n := 3; n > 0; n-- {
		if len(window) >= n && bytes.Equal(window[len(window)-n:], packStartCode[:n]) {
			return n
		}
	}
	return 0
}
