package gb

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/ossrs/srs-sub009/internal/defs"
	"github.com/ossrs/srs-sub009/internal/logger"
	"github.com/ossrs/srs-sub009/internal/muxer"
	"github.com/ossrs/srs-sub009/internal/protocols/gbsip"
	"github.com/ossrs/srs-sub009/internal/protocols/mpegps"
	"github.com/ossrs/srs-sub009/internal/protocols/rtmp"
	"github.com/ossrs/srs-sub009/internal/protocols/rtmp/message"
)

// sessionState is the lifecycle state of a device session.
type sessionState int

const (
	sessionStateInit sessionState = iota
	sessionStateConnecting
	sessionStateEstablished
)

func (s sessionState) String() string {
	switch s {
	case sessionStateInit:
		return "init"
	case sessionStateConnecting:
		return "connecting"
	case sessionStateEstablished:
		return "established"
	}
	return "unknown"
}

const (
	sessionTickInterval   = 300 * time.Millisecond
	maxConnectingTimeouts = 3
	ssrcRetries           = 16
	statsLogInterval      = 5 * time.Second
	sinkTimeout           = 10 * time.Second
)

// session drives one device: it composes the SIP connection, the media
// connection and the muxer, and advances the lifecycle state machine on
// a fixed tick.
type session struct {
	deviceID  string
	parentCtx context.Context
	wg        *sync.WaitGroup
	parent    *Server
	registry  *registry

	ctx       context.Context
	ctxCancel func()
	outputURL *url.URL

	mutex           sync.Mutex
	state           sessionState
	sip             *sipConn
	media           *mediaConn
	ssrc            uint32
	ssrcStr         string
	connectingStart time.Time
	reinviteStart   time.Time
	timeouts        int
	stats           mpegps.Stats
	lastStatsLog    time.Time

	muxMutex sync.Mutex
	mux      *muxer.Muxer
	sink     *rtmp.Client
}

func (s *session) initialize() {
	s.ctx, s.ctxCancel = context.WithCancel(s.parentCtx)

	s.mux = &muxer.Muxer{
		Conn:   s,
		Parent: s,
	}
	s.mux.Initialize()

	u, err := url.Parse(s.parent.outputURLFor(s.deviceID))
	if err != nil {
		s.Log(logger.Error, "invalid output URL: %v", err)
	} else {
		s.outputURL = u
	}

	s.Log(logger.Info, "created")

	s.wg.Add(1)
	go s.run()
}

func (s *session) interrupt() {
	s.ctxCancel()
}

// Log implements logger.Writer.
func (s *session) Log(level logger.Level, format string, args ...interface{}) {
	s.parent.Log(level, "[session %s] "+format, append([]interface{}{s.deviceID}, args...)...)
}

func (s *session) run() {
	defer s.wg.Done()

	err := s.runInner()

	s.ctxCancel()

	s.mutex.Lock()
	sip := s.sip
	media := s.media
	s.mutex.Unlock()

	if sip != nil {
		sip.interrupt()
	}
	if media != nil {
		media.interrupt()
	}

	s.muxMutex.Lock()
	if s.sink != nil {
		s.sink.Close()
		s.sink = nil
	}
	s.muxMutex.Unlock()

	s.registry.removeSession(s)

	if err != nil {
		s.Log(logger.Error, "closed: %v", err)
	} else {
		s.Log(logger.Info, "closed")
	}
}

func (s *session) runInner() error {
	ticker := time.NewTicker(sessionTickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cont, err := s.tick()
			if err != nil {
				return err
			}
			if !cont {
				return nil
			}

		case <-s.ctx.Done():
			return nil
		}
	}
}

func (s *session) tick() (bool, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	sip := s.sip
	if sip == nil {
		return true, nil
	}

	st := sip.dialogState()
	mediaUp := s.media != nil && s.media.isConnected()
	now := time.Now()

	switch s.state {
	case sessionStateInit:
		if st == sipStateRegistered {
			s.state = sessionStateConnecting
			s.connectingStart = now

			if !mediaUp {
				err := s.inviteRequest(sip)
				if err != nil {
					return false, err
				}
			}
		}

	case sessionStateConnecting:
		switch {
		case st == sipStateStable && mediaUp:
			s.state = sessionStateEstablished
			s.timeouts = 0
			s.Log(logger.Info, "established (SSRC %s)", s.ssrcStr)

		case st == sipStateBye:
			return false, nil

		case now.Sub(s.connectingStart) > time.Duration(s.parent.SIPTimeout):
			s.timeouts++
			if s.timeouts >= maxConnectingTimeouts {
				return false, fmt.Errorf("%w: no media after %d attempts", defs.ErrTimeout, s.timeouts)
			}

			s.Log(logger.Warn, "connecting timed out (attempt %d), re-inviting", s.timeouts)
			sip.setDialogState(sipStateRegistered)
			s.state = sessionStateInit
		}

	case sessionStateEstablished:
		if st == sipStateBye {
			s.Log(logger.Info, "device sent BYE")
			return false, nil
		}

		if !mediaUp {
			if s.reinviteStart.IsZero() {
				s.reinviteStart = now
				s.Log(logger.Warn, "media connection lost")
			} else if now.Sub(s.reinviteStart) > time.Duration(s.parent.ReinviteWait) {
				s.reinviteStart = time.Time{}
				sip.setDialogState(sipStateRegistered)
				s.state = sessionStateInit

				s.muxMutex.Lock()
				s.mux.Reset()
				s.muxMutex.Unlock()
			}
		} else {
			s.reinviteStart = time.Time{}

			if now.Sub(s.lastStatsLog) > statsLogInterval {
				s.lastStatsLog = now
				s.Log(logger.Info, "%d packs, %d messages, %d recovered, %d dropped, %d bytes reserved",
					s.stats.Packs, s.stats.Messages, s.stats.Recovered, s.stats.Dropped, s.stats.Reserved)
			}
		}
	}

	return true, nil
}

// inviteRequest allocates an SSRC (reusing the cached one on a
// re-invite) and asks the SIP connection to send the INVITE.
func (s *session) inviteRequest(sip *sipConn) error {
	if s.ssrcStr == "" {
		regUser := sip.registerURIUser()

		for i := 0; ; i++ {
			if i >= ssrcRetries {
				return fmt.Errorf("%w: no unique SSRC in %d attempts", defs.ErrSSRCGenerate, ssrcRetries)
			}

			cand := gbsip.GenerateSSRC(regUser)
			v, err := parseSSRC(cand)
			if err != nil {
				continue
			}

			if s.registry.addSSRC(v, s) {
				s.ssrc = v
				s.ssrcStr = cand
				break
			}
		}
	}

	s.Log(logger.Info, "inviting media (SSRC %s)", s.ssrcStr)
	return sip.sendInvite(s.ssrcStr)
}

// attachSIP installs the SIP connection, handing over the state of the
// previous connection on a reconnect. The previous connection is not
// interrupted; its own receive error tears it down.
func (s *session) attachSIP(sc *sipConn) {
	s.mutex.Lock()
	old := s.sip
	s.sip = sc
	s.mutex.Unlock()

	if old != nil && old != sc {
		sc.applyState(old.snapshotState())
		s.Log(logger.Info, "SIP connection replaced")
	}
}

// bindMedia installs the media connection; a previous one is
// interrupted first.
func (s *session) bindMedia(mc *mediaConn) {
	s.mutex.Lock()
	old := s.media
	s.media = mc
	s.mutex.Unlock()

	if old != nil && old != mc {
		old.interrupt()
	}
}

// onPSPack receives one complete PS pack from the media connection.
// The video messages of the pack belong to a single picture and are
// aggregated into one logical message; audio messages are muxed
// one-by-one; private-stream messages are dropped.
func (s *session) onPSPack(d *mpegps.Demuxer, _ *mpegps.Pack, msgs []*mpegps.Message) {
	s.mutex.Lock()
	s.stats = d.Stats
	s.mutex.Unlock()

	s.muxMutex.Lock()
	defer s.muxMutex.Unlock()

	var videoPayload []byte
	var videoDTS, videoPTS int64

	for _, msg := range msgs {
		switch msg.Kind() {
		case mpegps.KindVideo:
			if videoPayload == nil {
				videoDTS = msg.DTS
				videoPTS = msg.PTS
			}
			videoPayload = append(videoPayload, msg.Payload...)

		case mpegps.KindAudio:
			err := s.mux.WriteAudio(d.AudioStreamType, msg.DTS, msg.Payload)
			if err != nil {
				s.logMuxError(err)
			}
		}
	}

	if videoPayload != nil {
		err := s.mux.WriteVideo(d.VideoStreamType, videoDTS, videoPTS, videoPayload)
		if err != nil {
			s.logMuxError(err)
		}
	}
}

func (s *session) logMuxError(err error) {
	switch {
	case errors.Is(err, defs.ErrDropBeforeParams):
		s.Log(logger.Warn, "%v", err)

	case errors.Is(err, defs.ErrHEVCDisabled), errors.Is(err, defs.ErrTSCodec):
		s.Log(logger.Error, "%v", err)

	default:
		s.Log(logger.Warn, "publish failed: %v", err)
	}
}

// onRecoverMode is called when the demuxer discards the messages of the
// pack being decoded.
func (s *session) onRecoverMode(counter int) {
	s.Log(logger.Debug, "dropped in-flight pack (recovery %d)", counter)
}

// Write implements the muxer sink: it lazily connects the RTMP client
// and publishes one message. On error the client is discarded and the
// next message retries the connection.
func (s *session) Write(msg message.Message) error {
	if s.outputURL == nil {
		return fmt.Errorf("no output URL")
	}

	if s.sink == nil {
		c := &rtmp.Client{
			URL:          s.outputURL,
			ReadTimeout:  sinkTimeout,
			WriteTimeout: sinkTimeout,
		}

		err := c.Initialize(s.ctx)
		if err != nil {
			return err
		}

		s.sink = c
		s.Log(logger.Info, "publishing to %s", s.outputURL)
	}

	err := s.sink.Write(msg)
	if err != nil {
		s.sink.Close()
		s.sink = nil
		return err
	}

	return nil
}
