package gb

import (
	"context"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/pion/rtcp"
	"github.com/pion/rtp"

	"github.com/ossrs/srs-sub009/internal/defs"
	"github.com/ossrs/srs-sub009/internal/logger"
	"github.com/ossrs/srs-sub009/internal/protocols/mpegps"
)

const mediaBufferSize = 65535

type mediaConn struct {
	parentCtx context.Context
	wg        *sync.WaitGroup
	nconn     net.Conn
	parent    *Server
	registry  *registry

	ctx       context.Context
	ctxCancel func()
	uuid      uuid.UUID
	demux     *mpegps.Demuxer
	sess      *session
	connected atomic.Bool

	rtcpDropped uint64
}

func (c *mediaConn) initialize() {
	c.ctx, c.ctxCancel = context.WithCancel(c.parentCtx)
	c.uuid = uuid.New()

	c.demux = &mpegps.Demuxer{
		DetectPSIntegrity: c.parent.DetectPSIntegrity,
		OnPack: func(pack *mpegps.Pack, msgs []*mpegps.Message) {
			if c.sess != nil {
				c.sess.onPSPack(c.demux, pack, msgs)
			}
		},
		OnRecoverMode: func(counter int) {
			c.Log(logger.Warn, "PS decode error, resynchronizing (episode %d)", counter)
			if c.sess != nil {
				c.sess.onRecoverMode(counter)
			}
		},
	}

	c.registry.addAnon(c.uuid.String(), c)

	c.Log(logger.Info, "opened")

	c.wg.Add(1)
	go c.run()
}

func (c *mediaConn) interrupt() {
	c.ctxCancel()
}

// Log implements logger.Writer.
func (c *mediaConn) Log(level logger.Level, format string, args ...interface{}) {
	c.parent.Log(level, "[media %v] "+format, append([]interface{}{c.nconn.RemoteAddr()}, args...)...)
}

func (c *mediaConn) isConnected() bool {
	return c.connected.Load()
}

func (c *mediaConn) run() {
	defer c.wg.Done()

	err := c.runInner()

	c.ctxCancel()
	c.connected.Store(false)
	c.registry.removeAnon(c.uuid.String())

	c.Log(logger.Info, "closed: %v", err)
}

func (c *mediaConn) runInner() error {
	readerErr := make(chan error, 1)
	go func() {
		readerErr <- c.runReader()
	}()

	var err error
	select {
	case err = <-readerErr:
		c.nconn.Close()

	case <-c.ctx.Done():
		c.nconn.Close()
		<-readerErr
		err = errTerminated
	}

	return err
}

// runReader reads RFC 4571 frames: a 2-byte big-endian length followed
// by one RTP packet. The RTP payload is appended after the bytes
// reserved by the previous iteration and handed to the PS demuxer.
func (c *mediaConn) runReader() error {
	lenBuf := make([]byte, 2)
	rtpBuf := make([]byte, mediaBufferSize)
	psBuf := make([]byte, mediaBufferSize)
	reserved := 0

	for {
		_, err := io.ReadFull(c.nconn, lenBuf)
		if err != nil {
			return err
		}

		plen := int(lenBuf[0])<<8 | int(lenBuf[1])
		if plen == 0 {
			return fmt.Errorf("%w: zero-length media frame", defs.ErrPSMedia)
		}

		if plen > mpegps.MaxPacketSize {
			if c.demux.Recovering() {
				return fmt.Errorf("%w: %d-byte frame while resynchronizing: %v",
					defs.ErrPSMedia, plen, c.demux.RecoverError())
			}
			c.Log(logger.Warn, "oversize media frame (%d bytes)", plen)
		}

		_, err = io.ReadFull(c.nconn, rtpBuf[:plen])
		if err != nil {
			return err
		}

		// RTCP shares the port; classify by payload type and drop.
		if plen >= 2 && rtpBuf[1] >= 200 && rtpBuf[1] <= 207 {
			c.rtcpDropped++
			if pkts, err2 := rtcp.Unmarshal(rtpBuf[:plen]); err2 == nil {
				c.Log(logger.Debug, "dropping %d RTCP packets (%d so far)", len(pkts), c.rtcpDropped)
			}
			continue
		}

		var pkt rtp.Packet
		err = pkt.Unmarshal(rtpBuf[:plen])
		if err != nil {
			err = c.demux.EnterRecover(fmt.Errorf("%w: invalid RTP packet: %v", defs.ErrPSMedia, err))
			if err != nil {
				return err
			}
			continue
		}

		if c.sess == nil {
			sess := c.registry.findSSRC(pkt.SSRC)
			if sess == nil {
				c.Log(logger.Debug, "no session for SSRC %d, dropping packet", pkt.SSRC)
				continue
			}

			c.sess = sess
			c.connected.Store(true)
			sess.bindMedia(c)
			c.Log(logger.Info, "bound to device %s (SSRC %d)", sess.deviceID, pkt.SSRC)
		}

		c.demux.SetRTPHeader(pkt.SequenceNumber, pkt.Timestamp, pkt.PayloadType)

		n := copy(psBuf[reserved:], pkt.Payload)
		window := psBuf[:reserved+n]

		consumed, err := c.demux.Decode(window)
		if err != nil {
			return err
		}

		left := len(window) - consumed
		if left > mpegps.MaxReserved {
			c.Log(logger.Warn, "dropping %d reserved bytes, resynchronizing", left)
			err = c.demux.EnterRecover(fmt.Errorf("%w: reserved bytes overflow", defs.ErrPSMedia))
			if err != nil {
				return err
			}
			reserved = 0
			continue
		}

		if left > 0 {
			copy(psBuf, window[consumed:])
			c.demux.Stats.Reserved += uint64(left)
		}
		reserved = left
	}
}
