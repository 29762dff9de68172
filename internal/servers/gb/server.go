// Package gb contains the GB28181 gateway server: a SIP listener that
// registers devices and negotiates media sessions, and a media listener
// that receives MPEG-PS over RTP-on-TCP and forwards it to a RTMP sink.
package gb

import (
	"context"
	"errors"
	"net"
	"strings"
	"sync"

	"github.com/ossrs/srs-sub009/internal/conf"
	"github.com/ossrs/srs-sub009/internal/logger"
)

var errTerminated = errors.New("terminated")

// Server is the GB28181 gateway server.
type Server struct {
	SIPAddress        string
	MediaAddress      string
	SIPTimeout        conf.Duration
	ReinviteWait      conf.Duration
	Candidate         string
	OutputURL         string
	DetectPSIntegrity bool
	Parent            logger.Writer

	ctx       context.Context
	ctxCancel func()
	wg        sync.WaitGroup
	sipLn     net.Listener
	mediaLn   net.Listener
	publicIP  string
	sipPort   int
	mediaPort int
	registry  *registry

	// in
	chNewSIPConn   chan net.Conn
	chNewMediaConn chan net.Conn
	chAcceptErr    chan error
}

// Initialize initializes the server.
func (s *Server) Initialize() error {
	var err error
	s.sipLn, err = net.Listen("tcp", s.SIPAddress)
	if err != nil {
		return err
	}

	s.mediaLn, err = net.Listen("tcp", s.MediaAddress)
	if err != nil {
		s.sipLn.Close()
		return err
	}

	s.sipPort = s.sipLn.Addr().(*net.TCPAddr).Port
	s.mediaPort = s.mediaLn.Addr().(*net.TCPAddr).Port

	s.publicIP = s.Candidate
	if s.publicIP == "*" {
		s.publicIP = discoverPublicIP()
	}

	s.ctx, s.ctxCancel = context.WithCancel(context.Background())

	s.registry = newRegistry()
	s.chNewSIPConn = make(chan net.Conn)
	s.chNewMediaConn = make(chan net.Conn)
	s.chAcceptErr = make(chan error)

	s.Log(logger.Info, "SIP listener opened on %s", s.sipLn.Addr())
	s.Log(logger.Info, "media listener opened on %s", s.mediaLn.Addr())

	sipL := &listener{
		ln:     s.sipLn,
		wg:     &s.wg,
		isSIP:  true,
		parent: s,
	}
	sipL.initialize()

	mediaL := &listener{
		ln:     s.mediaLn,
		wg:     &s.wg,
		parent: s,
	}
	mediaL.initialize()

	s.wg.Add(1)
	go s.run()

	return nil
}

// Log implements logger.Writer.
func (s *Server) Log(level logger.Level, format string, args ...interface{}) {
	s.Parent.Log(level, "[GB] "+format, args...)
}

// SIPAddr returns the address of the SIP listener.
func (s *Server) SIPAddr() net.Addr {
	return s.sipLn.Addr()
}

// MediaAddr returns the address of the media listener.
func (s *Server) MediaAddr() net.Addr {
	return s.mediaLn.Addr()
}

// Close closes the server.
func (s *Server) Close() {
	s.Log(logger.Info, "listeners are closing")
	s.ctxCancel()
	s.sipLn.Close()
	s.mediaLn.Close()
	s.wg.Wait()
}

func (s *Server) run() {
	defer s.wg.Done()

outer:
	for {
		select {
		case err := <-s.chAcceptErr:
			if s.ctx.Err() == nil {
				s.Log(logger.Error, "%s", err)
			}
			break outer

		case nconn := <-s.chNewSIPConn:
			c := &sipConn{
				parentCtx: s.ctx,
				wg:        &s.wg,
				nconn:     nconn,
				parent:    s,
				registry:  s.registry,
			}
			c.initialize()

		case nconn := <-s.chNewMediaConn:
			c := &mediaConn{
				parentCtx: s.ctx,
				wg:        &s.wg,
				nconn:     nconn,
				parent:    s,
				registry:  s.registry,
			}
			c.initialize()

		case <-s.ctx.Done():
			break outer
		}
	}

	s.ctxCancel()

	s.sipLn.Close()
	s.mediaLn.Close()
}

// newConn is called by listener.
func (s *Server) newConn(isSIP bool, conn net.Conn) {
	ch := s.chNewMediaConn
	if isSIP {
		ch = s.chNewSIPConn
	}

	select {
	case ch <- conn:
	case <-s.ctx.Done():
		conn.Close()
	}
}

// acceptError is called by listener.
func (s *Server) acceptError(err error) {
	select {
	case s.chAcceptErr <- err:
	case <-s.ctx.Done():
	}
}

// findOrCreateSession binds the SIP connection to the session of the
// given device, creating the session on the first REGISTER. On a
// reconnect the new connection inherits the previous SIP state.
func (s *Server) findOrCreateSession(deviceID string, sc *sipConn) *session {
	sess, existed := s.registry.findOrCreateSession(deviceID, func() *session {
		return &session{
			deviceID:  deviceID,
			parentCtx: s.ctx,
			wg:        &s.wg,
			parent:    s,
			registry:  s.registry,
		}
	})

	if !existed {
		sess.initialize()
	}

	sess.attachSIP(sc)
	return sess
}

// outputURLFor expands the [stream] token of the output template.
func (s *Server) outputURLFor(deviceID string) string {
	return strings.ReplaceAll(s.OutputURL, "[stream]", deviceID)
}

// discoverPublicIP returns the first non-loopback IPv4 address of the
// host, used when the candidate is "*".
func discoverPublicIP() string {
	addrs, err := net.InterfaceAddrs()
	if err == nil {
		for _, addr := range addrs {
			if ipn, ok := addr.(*net.IPNet); ok && !ipn.IP.IsLoopback() {
				if v4 := ipn.IP.To4(); v4 != nil {
					return v4.String()
				}
			}
		}
	}
	return "127.0.0.1"
}
