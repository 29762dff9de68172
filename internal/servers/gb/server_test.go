package gb

import (
	"errors"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/emiago/sipgo/sip"
	"github.com/pion/rtp"
	"github.com/stretchr/testify/require"

	"github.com/ossrs/srs-sub009/internal/conf"
	"github.com/ossrs/srs-sub009/internal/logger"
	"github.com/ossrs/srs-sub009/internal/protocols/gbsip"
)

type nilLogger struct{}

func (nilLogger) Log(_ logger.Level, _ string, _ ...interface{}) {}

const testRegisterRequest = "REGISTER sip:34020000002000000001@3402000000 SIP/2.0\r\n" +
	"Via: SIP/2.0/TCP 192.168.3.99:5060;rport;branch=z9hG4bK0l31rx\r\n" +
	"From: <sip:34020000001320000001@3402000000>;tag=307202390\r\n" +
	"To: <sip:34020000001320000001@3402000000>\r\n" +
	"Call-ID: 2043466955\r\n" +
	"CSeq: 1 REGISTER\r\n" +
	"Contact: <sip:34020000001320000001@192.168.3.99:5060>\r\n" +
	"Max-Forwards: 70\r\n" +
	"User-Agent: IP Camera\r\n" +
	"Expires: 3600\r\n" +
	"Content-Length: 0\r\n" +
	"\r\n"

const testKeepaliveRequest = "MESSAGE sip:34020000002000000001@3402000000 SIP/2.0\r\n" +
	"Via: SIP/2.0/TCP 192.168.3.99:5060;rport;branch=z9hG4bK2m41ab\r\n" +
	"From: <sip:34020000001320000001@3402000000>;tag=307202391\r\n" +
	"To: <sip:34020000002000000001@3402000000>\r\n" +
	"Call-ID: 2043466956\r\n" +
	"CSeq: 2 MESSAGE\r\n" +
	"Max-Forwards: 70\r\n" +
	"Content-Length: 0\r\n" +
	"\r\n"

const testByeRequest = "BYE sip:34020000002000000001@3402000000 SIP/2.0\r\n" +
	"Via: SIP/2.0/TCP 192.168.3.99:5060;rport;branch=z9hG4bK3n52cd\r\n" +
	"From: <sip:34020000001320000001@3402000000>;tag=307202390\r\n" +
	"To: <sip:34020000002000000001@3402000000>\r\n" +
	"Call-ID: 2043466955\r\n" +
	"CSeq: 3 BYE\r\n" +
	"Max-Forwards: 70\r\n" +
	"Content-Length: 0\r\n" +
	"\r\n"

func initTestServer(t *testing.T) *Server {
	t.Helper()

	s := &Server{
		SIPAddress:   "127.0.0.1:0",
		MediaAddress: "127.0.0.1:0",
		SIPTimeout:   conf.Duration(2 * time.Second),
		ReinviteWait: conf.Duration(500 * time.Millisecond),
		Candidate:    "127.0.0.1",
		OutputURL:    "rtmp://127.0.0.1:1/live/[stream]",
		Parent:       nilLogger{},
	}
	err := s.Initialize()
	require.NoError(t, err)
	return s
}

// sipReader accumulates SIP messages arriving on a device connection.
type sipReader struct {
	conn    net.Conn
	stream  *sip.ParserStream
	pending []sip.Message
}

func newSIPReader(conn net.Conn) *sipReader {
	return &sipReader{
		conn:   conn,
		stream: sip.NewParser().NewSIPStream(),
	}
}

func (r *sipReader) read(t *testing.T) sip.Message {
	t.Helper()

	buf := make([]byte, 4096)

	for len(r.pending) == 0 {
		err := r.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		require.NoError(t, err)

		n, err := r.conn.Read(buf)
		require.NoError(t, err)

		err = r.stream.ParseSIPStream(buf[:n], func(msg sip.Message) {
			r.pending = append(r.pending, msg)
		})
		if errors.Is(err, sip.ErrParseSipPartial) ||
			errors.Is(err, sip.ErrParseReadBodyIncomplete) {
			continue
		}
		require.NoError(t, err)
	}

	m := r.pending[0]
	r.pending = r.pending[1:]
	return m
}

func writeMediaFrame(t *testing.T, conn net.Conn, pkt *rtp.Packet) {
	t.Helper()

	byts, err := pkt.Marshal()
	require.NoError(t, err)

	frame := append([]byte{byte(len(byts) >> 8), byte(len(byts))}, byts...)
	_, err = conn.Write(frame)
	require.NoError(t, err)
}

func validPSPackHeader() []byte {
	h := make([]byte, 14)
	h[0], h[1], h[2], h[3] = 0x00, 0x00, 0x01, 0xba
	h[4] = 0x44
	h[13] = 0xf8
	return h
}

func TestServerRegister(t *testing.T) {
	s := initTestServer(t)
	defer s.Close()

	conn, err := net.Dial("tcp", s.SIPAddr().String())
	require.NoError(t, err)
	defer conn.Close()

	reader := newSIPReader(conn)

	_, err = conn.Write([]byte(testRegisterRequest))
	require.NoError(t, err)

	res, ok := reader.read(t).(*sip.Response)
	require.True(t, ok)
	require.Equal(t, 200, res.StatusCode)

	// the response echoes the transaction identifiers of the request.
	branch, _ := res.Via().Params.Get("branch")
	require.Equal(t, "z9hG4bK0l31rx", branch)
	tag, _ := res.From().Params.Get("tag")
	require.Equal(t, "307202390", tag)
	require.Equal(t, "2043466955", res.CallID().Value())
	require.Equal(t, uint32(1), res.CSeq().SeqNo)
	require.Equal(t, sip.REGISTER, res.CSeq().MethodName)
	require.NotNil(t, res.Contact())
	require.Equal(t, "3600", res.GetHeader("Expires").Value())
	require.Equal(t, gbsip.UserAgent, res.GetHeader("Server").Value())
}

func TestServerInviteACK(t *testing.T) {
	s := initTestServer(t)
	defer s.Close()

	conn, err := net.Dial("tcp", s.SIPAddr().String())
	require.NoError(t, err)
	defer conn.Close()

	reader := newSIPReader(conn)

	_, err = conn.Write([]byte(testRegisterRequest))
	require.NoError(t, err)

	res, ok := reader.read(t).(*sip.Response)
	require.True(t, ok)
	require.Equal(t, 200, res.StatusCode)

	// the INVITE follows on the next session tick.
	invite, ok := reader.read(t).(*sip.Request)
	require.True(t, ok)
	require.Equal(t, sip.INVITE, invite.Method)
	require.Equal(t, "34020000001320000001", invite.Recipient.User)
	require.Equal(t, "3402000000", invite.Recipient.Host)

	via := invite.Via()
	require.Equal(t, "TCP", via.Transport)
	require.Equal(t, "127.0.0.1", via.Host)
	require.Equal(t, s.SIPAddr().(*net.TCPAddr).Port, via.Port)
	inviteBranch, _ := via.Params.Get("branch")
	require.True(t, strings.HasPrefix(inviteBranch, gbsip.BranchMagic))

	desc, ssrc, err := gbsip.UnmarshalSDP(invite.Body())
	require.NoError(t, err)

	// the SSRC embeds the central five digits of the register URI user.
	require.Len(t, ssrc, 10)
	require.Equal(t, "020000", ssrc[:6])

	require.Equal(t, "34020000001320000001:"+ssrc+",34020000001320000001:0",
		invite.GetHeader("Subject").Value())

	require.Len(t, desc.MediaDescriptions, 1)
	md := desc.MediaDescriptions[0]
	require.Equal(t, "video", md.MediaName.Media)
	require.Equal(t, s.MediaAddr().(*net.TCPAddr).Port, md.MediaName.Port.Value)
	require.Equal(t, []string{"TCP", "RTP", "AVP"}, md.MediaName.Protos)
	require.Equal(t, []string{"96"}, md.MediaName.Formats)

	attrs := make(map[string]string)
	for _, attr := range md.Attributes {
		attrs[attr.Key] = attr.Value
	}
	require.Contains(t, attrs, "recvonly")
	require.Equal(t, "96 PS/90000", attrs["rtpmap"])

	// answering 200 OK produces the ACK.
	okRes := sip.NewResponseFromRequest(invite, 200, "OK", nil)
	_, err = conn.Write([]byte(okRes.String()))
	require.NoError(t, err)

	ack, ok := reader.read(t).(*sip.Request)
	require.True(t, ok)
	require.Equal(t, sip.ACK, ack.Method)
	require.Equal(t, invite.CallID().Value(), ack.CallID().Value())
	require.Equal(t, invite.CSeq().SeqNo, ack.CSeq().SeqNo)
	require.Equal(t, sip.ACK, ack.CSeq().MethodName)
	require.Empty(t, ack.Body())

	ackBranch, _ := ack.Via().Params.Get("branch")
	require.True(t, strings.HasPrefix(ackBranch, gbsip.BranchMagic))
	require.NotEqual(t, inviteBranch, ackBranch)
}

func TestServerKeepaliveBeforeRegister(t *testing.T) {
	s := initTestServer(t)
	defer s.Close()

	conn, err := net.Dial("tcp", s.SIPAddr().String())
	require.NoError(t, err)
	defer conn.Close()

	reader := newSIPReader(conn)

	_, err = conn.Write([]byte(testKeepaliveRequest))
	require.NoError(t, err)

	res, ok := reader.read(t).(*sip.Response)
	require.True(t, ok)
	require.Equal(t, 403, res.StatusCode)
	require.Equal(t, uint32(2), res.CSeq().SeqNo)
	require.Equal(t, sip.MESSAGE, res.CSeq().MethodName)
}

func TestServerKeepaliveSplitBody(t *testing.T) {
	s := initTestServer(t)
	defer s.Close()

	conn, err := net.Dial("tcp", s.SIPAddr().String())
	require.NoError(t, err)
	defer conn.Close()

	reader := newSIPReader(conn)

	raw := "MESSAGE sip:34020000002000000001@3402000000 SIP/2.0\r\n" +
		"Via: SIP/2.0/TCP 192.168.3.99:5060;rport;branch=z9hG4bK5p73ef\r\n" +
		"From: <sip:34020000001320000001@3402000000>;tag=307202392\r\n" +
		"To: <sip:34020000002000000001@3402000000>\r\n" +
		"Call-ID: 2043466957\r\n" +
		"CSeq: 4 MESSAGE\r\n" +
		"Max-Forwards: 70\r\n" +
		"Content-Type: Application/MANSCDP+xml\r\n" +
		"Content-Length: 9\r\n" +
		"\r\n" +
		"Keepalive"

	// a TCP read boundary inside the body must not drop the message.
	split := len(raw) - 5
	_, err = conn.Write([]byte(raw[:split]))
	require.NoError(t, err)

	time.Sleep(100 * time.Millisecond)

	_, err = conn.Write([]byte(raw[split:]))
	require.NoError(t, err)

	res, ok := reader.read(t).(*sip.Response)
	require.True(t, ok)
	require.Equal(t, 403, res.StatusCode)
	require.Equal(t, uint32(4), res.CSeq().SeqNo)
}

func TestServerByeTeardown(t *testing.T) {
	s := initTestServer(t)
	defer s.Close()

	conn, err := net.Dial("tcp", s.SIPAddr().String())
	require.NoError(t, err)
	defer conn.Close()

	reader := newSIPReader(conn)

	_, err = conn.Write([]byte(testRegisterRequest))
	require.NoError(t, err)

	res, ok := reader.read(t).(*sip.Response)
	require.True(t, ok)
	require.Equal(t, 200, res.StatusCode)

	invite, ok := reader.read(t).(*sip.Request)
	require.True(t, ok)
	require.Equal(t, sip.INVITE, invite.Method)

	_, err = conn.Write([]byte(testByeRequest))
	require.NoError(t, err)

	byeRes, ok := reader.read(t).(*sip.Response)
	require.True(t, ok)
	require.Equal(t, 200, byeRes.StatusCode)
	require.Equal(t, sip.BYE, byeRes.CSeq().MethodName)

	// the session leaves the registry on the next tick.
	require.Eventually(t, func() bool {
		return s.registry.findSession("34020000001320000001") == nil
	}, 2*time.Second, 50*time.Millisecond)
}

func TestServerReinviteKeepsSSRC(t *testing.T) {
	s := initTestServer(t)
	defer s.Close()

	conn, err := net.Dial("tcp", s.SIPAddr().String())
	require.NoError(t, err)
	defer conn.Close()

	reader := newSIPReader(conn)

	_, err = conn.Write([]byte(testRegisterRequest))
	require.NoError(t, err)

	res, ok := reader.read(t).(*sip.Response)
	require.True(t, ok)
	require.Equal(t, 200, res.StatusCode)

	invite, ok := reader.read(t).(*sip.Request)
	require.True(t, ok)
	require.Equal(t, sip.INVITE, invite.Method)

	_, ssrc, err := gbsip.UnmarshalSDP(invite.Body())
	require.NoError(t, err)

	okRes := sip.NewResponseFromRequest(invite, 200, "OK", nil)
	_, err = conn.Write([]byte(okRes.String()))
	require.NoError(t, err)

	ack, ok := reader.read(t).(*sip.Request)
	require.True(t, ok)
	require.Equal(t, sip.ACK, ack.Method)

	// push one RTP packet so that the media connection binds by SSRC.
	ssrcNum, err := strconv.ParseUint(ssrc, 10, 32)
	require.NoError(t, err)

	mconn, err := net.Dial("tcp", s.MediaAddr().String())
	require.NoError(t, err)

	writeMediaFrame(t, mconn, &rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			PayloadType:    96,
			SequenceNumber: 1,
			SSRC:           uint32(ssrcNum),
		},
		Payload: validPSPackHeader(),
	})

	// wait for the session to reach the established state.
	time.Sleep(1 * time.Second)

	// losing the media connection triggers a re-INVITE carrying the
	// same SSRC.
	mconn.Close()

	invite2, ok := reader.read(t).(*sip.Request)
	require.True(t, ok)
	require.Equal(t, sip.INVITE, invite2.Method)

	_, ssrc2, err := gbsip.UnmarshalSDP(invite2.Body())
	require.NoError(t, err)
	require.Equal(t, ssrc, ssrc2)
}
