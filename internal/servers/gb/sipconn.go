package gb

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"

	"github.com/emiago/sipgo/sip"
	"github.com/google/uuid"

	"github.com/ossrs/srs-sub009/internal/defs"
	"github.com/ossrs/srs-sub009/internal/logger"
	"github.com/ossrs/srs-sub009/internal/protocols/gbsip"
)

// sipState is the state of the SIP dialog with a device.
type sipState int

const (
	sipStateInit sipState = iota
	sipStateRegistered
	sipStateInviting
	sipStateTrying
	sipStateStable
	sipStateReinviting
	sipStateBye
)

func (s sipState) String() string {
	switch s {
	case sipStateInit:
		return "init"
	case sipStateRegistered:
		return "registered"
	case sipStateInviting:
		return "inviting"
	case sipStateTrying:
		return "trying"
	case sipStateStable:
		return "stable"
	case sipStateReinviting:
		return "reinviting"
	case sipStateBye:
		return "bye"
	}
	return "unknown"
}

// sipConnState is what a replacement connection inherits on reconnect.
type sipConnState struct {
	state    sipState
	ssrc     string
	register *gbsip.Message
	inviteOK *gbsip.Message
}

type sipConn struct {
	parentCtx context.Context
	wg        *sync.WaitGroup
	nconn     net.Conn
	parent    *Server
	registry  *registry

	ctx       context.Context
	ctxCancel func()
	uuid      uuid.UUID

	mutex    sync.Mutex
	state    sipState
	register *gbsip.Message
	inviteOK *gbsip.Message
	ssrc     string

	sendMutex sync.Mutex
	sendCond  *sync.Cond
	sendQueue []string
	sendDone  bool
}

func (c *sipConn) initialize() {
	c.ctx, c.ctxCancel = context.WithCancel(c.parentCtx)
	c.uuid = uuid.New()
	c.sendCond = sync.NewCond(&c.sendMutex)

	c.registry.addAnon(c.uuid.String(), c)

	c.Log(logger.Info, "opened")

	c.wg.Add(1)
	go c.run()
}

func (c *sipConn) interrupt() {
	c.ctxCancel()
}

// Log implements logger.Writer.
func (c *sipConn) Log(level logger.Level, format string, args ...interface{}) {
	c.parent.Log(level, "[SIP %v] "+format, append([]interface{}{c.nconn.RemoteAddr()}, args...)...)
}

func (c *sipConn) run() {
	defer c.wg.Done()

	err := c.runInner()

	c.ctxCancel()
	c.registry.removeAnon(c.uuid.String())

	c.Log(logger.Info, "closed: %v", err)
}

func (c *sipConn) runInner() error {
	readerErr := make(chan error, 1)
	senderErr := make(chan error, 1)

	go func() {
		readerErr <- c.runReader()
	}()
	go func() {
		senderErr <- c.runSender()
	}()

	var err error
	select {
	case err = <-readerErr:
	case err = <-senderErr:
	case <-c.ctx.Done():
		err = errTerminated
	}

	c.nconn.Close()
	c.wakeSender()
	<-readerErr
	<-senderErr

	return err
}

func (c *sipConn) runReader() error {
	stream := sip.NewParser().NewSIPStream()
	buf := make([]byte, 4096)

	for {
		n, err := c.nconn.Read(buf)
		if err != nil {
			return err
		}

		var msgs []sip.Message
		err = stream.ParseSIPStream(buf[:n], func(msg sip.Message) {
			msgs = append(msgs, msg)
		})

		// a read boundary inside a message keeps the stream waiting for
		// more bytes; any other parse error drops the message, never the
		// connection.
		if err != nil &&
			!errors.Is(err, sip.ErrParseSipPartial) &&
			!errors.Is(err, sip.ErrParseReadBodyIncomplete) {
			c.Log(logger.Warn, "%v", fmt.Errorf("%w: %v", defs.ErrSIPMessage, err))
			stream = sip.NewParser().NewSIPStream()
		}

		for _, raw := range msgs {
			m, err2 := gbsip.Check(raw)
			if err2 != nil {
				c.Log(logger.Warn, "dropping message: %v", err2)
				continue
			}

			c.handleMessage(m)
		}
	}
}

func (c *sipConn) runSender() error {
	for {
		c.sendMutex.Lock()
		for len(c.sendQueue) == 0 && !c.sendDone {
			c.sendCond.Wait()
		}
		if c.sendDone {
			c.sendMutex.Unlock()
			return errTerminated
		}
		msg := c.sendQueue[0]
		c.sendQueue = c.sendQueue[1:]
		c.sendMutex.Unlock()

		_, err := c.nconn.Write([]byte(msg))
		if err != nil {
			return err
		}
	}
}

func (c *sipConn) enqueue(msg fmt.Stringer) {
	c.sendMutex.Lock()
	c.sendQueue = append(c.sendQueue, msg.String())
	c.sendMutex.Unlock()
	c.sendCond.Signal()
}

func (c *sipConn) wakeSender() {
	c.sendMutex.Lock()
	c.sendDone = true
	c.sendMutex.Unlock()
	c.sendCond.Broadcast()
}

func (c *sipConn) handleMessage(m *gbsip.Message) {
	switch {
	case m.IsRegister():
		c.handleRegister(m)

	case m.IsMessage():
		c.handleKeepalive(m)

	case m.IsTrying():
		c.mutex.Lock()
		if c.state == sipStateInviting {
			c.state = sipStateTrying
		}
		c.mutex.Unlock()

	case m.IsInviteOK():
		c.handleInviteOK(m)

	case m.IsByeOK():
		c.mutex.Lock()
		if c.state == sipStateReinviting {
			c.state = sipStateInviting
		}
		c.mutex.Unlock()

	case m.IsBye():
		c.mutex.Lock()
		c.state = sipStateBye
		c.mutex.Unlock()
		c.enqueue(gbsip.BuildByeResponse(m))

	default:
		c.Log(logger.Debug, "ignoring message")
	}
}

func (c *sipConn) handleRegister(m *gbsip.Message) {
	c.mutex.Lock()
	c.register = m
	c.mutex.Unlock()

	// binding first: on a reconnect the session hands over the state of
	// the previous connection before the transition below is applied.
	c.parent.findOrCreateSession(m.DeviceID(), c)

	expires, hasExpires := m.Expires()

	c.mutex.Lock()
	reinvite := false
	switch {
	case hasExpires && expires == 0:
		c.state = sipStateBye

	case c.state == sipStateInit:
		c.state = sipStateRegistered
		c.Log(logger.Info, "device %s registered", m.DeviceID())

	case c.state == sipStateInviting:
		// the device retried REGISTER while we were inviting.
		reinvite = c.ssrc != ""
	}
	ssrc := c.ssrc
	c.mutex.Unlock()

	c.enqueue(gbsip.BuildRegisterResponse(m))

	if reinvite {
		err := c.sendInvite(ssrc)
		if err != nil {
			c.Log(logger.Warn, "cannot re-issue INVITE: %v", err)
		}
	}
}

func (c *sipConn) handleKeepalive(m *gbsip.Message) {
	c.mutex.Lock()
	forbidden := c.state == sipStateInit
	if forbidden {
		c.state = sipStateStable
	}
	c.mutex.Unlock()

	c.enqueue(gbsip.BuildMessageResponse(m, forbidden))
}

func (c *sipConn) handleInviteOK(m *gbsip.Message) {
	c.mutex.Lock()
	c.inviteOK = m
	c.state = sipStateStable
	c.mutex.Unlock()

	c.enqueue(gbsip.BuildACK(m, c.parent.publicIP, c.parent.sipPort))
}

// sendInvite builds and enqueues the INVITE asking the device to push
// media to the media listener, and caches the SSRC for re-invites.
func (c *sipConn) sendInvite(ssrc string) error {
	c.mutex.Lock()
	register := c.register
	c.mutex.Unlock()

	if register == nil {
		return fmt.Errorf("no cached REGISTER")
	}

	req, err := gbsip.BuildInvite(gbsip.InviteParams{
		Register:  register,
		SSRC:      ssrc,
		PublicIP:  c.parent.publicIP,
		SIPPort:   c.parent.sipPort,
		MediaPort: c.parent.mediaPort,
	})
	if err != nil {
		return err
	}

	c.mutex.Lock()
	c.ssrc = ssrc
	c.state = sipStateInviting
	c.mutex.Unlock()

	c.enqueue(req)
	return nil
}

func (c *sipConn) dialogState() sipState {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.state
}

func (c *sipConn) setDialogState(st sipState) {
	c.mutex.Lock()
	c.state = st
	c.mutex.Unlock()
}

// registerURIUser returns the user of the cached REGISTER request URI,
// the source of the GB28181 domain encoded in SSRCs.
func (c *sipConn) registerURIUser() string {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.register == nil {
		return ""
	}
	return c.register.Req.Recipient.User
}

// snapshotState extracts what a replacement connection inherits.
func (c *sipConn) snapshotState() sipConnState {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return sipConnState{
		state:    c.state,
		ssrc:     c.ssrc,
		register: c.register,
		inviteOK: c.inviteOK,
	}
}

// applyState installs the state inherited from the previous connection.
// A REGISTER already cached on this connection is kept.
func (c *sipConn) applyState(st sipConnState) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.state = st.state
	c.ssrc = st.ssrc
	c.inviteOK = st.inviteOK
	if c.register == nil {
		c.register = st.register
	}
}

// parseSSRC converts the decimal SSRC string to its numeric form.
func parseSSRC(ssrc string) (uint32, error) {
	v, err := strconv.ParseUint(ssrc, 10, 32)
	if err != nil {
		return 0, err
	}
	return uint32(v), nil
}
