// Package gbsip implements the constrained SIP profile used by GB28181
// devices: REGISTER / MESSAGE / INVITE / ACK / BYE over TCP, with the
// GB28181 SDP extension (the y= SSRC line).
package gbsip

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/emiago/sipgo/sip"

	"github.com/ossrs/srs-sub009/internal/defs"
)

// UserAgent is the product string inserted in outgoing messages.
const UserAgent = "srs-sub009/1.0.0"

// BranchMagic is the mandatory prefix of the Via branch parameter.
const BranchMagic = "z9hG4bK"

var allowedMethods = map[sip.RequestMethod]struct{}{
	sip.REGISTER: {},
	sip.MESSAGE:  {},
	sip.INVITE:   {},
	sip.ACK:      {},
	sip.BYE:      {},
}

// Message is a SIP request or response that passed the profile checks.
type Message struct {
	Req *sip.Request
	Res *sip.Response

	expires    int
	hasExpires bool
}

// Check validates a parsed SIP message against the GB28181 profile and
// wraps it. Validation failures drop the message, never the connection.
func Check(msg sip.Message) (*Message, error) {
	m := &Message{}

	switch tm := msg.(type) {
	case *sip.Request:
		m.Req = tm

	case *sip.Response:
		m.Res = tm

	default:
		return nil, fmt.Errorf("%w: unsupported message type", defs.ErrSIPMessage)
	}

	via := msg.Via()
	if via == nil {
		return nil, fmt.Errorf("%w: missing Via", defs.ErrSIPHeader)
	}

	if via.Transport != "TCP" && via.Transport != "UDP" {
		return nil, fmt.Errorf("%w: invalid Via transport %q", defs.ErrSIPHeader, via.Transport)
	}

	if via.Host == "" {
		return nil, fmt.Errorf("%w: missing Via sent-by", defs.ErrSIPHeader)
	}

	branch, ok := via.Params.Get("branch")
	if !ok || branch == "" {
		return nil, fmt.Errorf("%w: missing Via branch", defs.ErrSIPHeader)
	}

	if !strings.HasPrefix(branch, BranchMagic) {
		return nil, fmt.Errorf("%w: invalid Via branch %q", defs.ErrSIPHeader, branch)
	}

	from := msg.From()
	if from == nil {
		return nil, fmt.Errorf("%w: missing From", defs.ErrSIPHeader)
	}

	if tag, ok2 := from.Params.Get("tag"); !ok2 || tag == "" {
		return nil, fmt.Errorf("%w: missing From tag", defs.ErrSIPHeader)
	}

	if msg.To() == nil {
		return nil, fmt.Errorf("%w: missing To", defs.ErrSIPHeader)
	}

	if msg.CallID() == nil {
		return nil, fmt.Errorf("%w: missing Call-ID", defs.ErrSIPHeader)
	}

	cseq := msg.CSeq()
	if cseq == nil {
		return nil, fmt.Errorf("%w: missing CSeq", defs.ErrSIPHeader)
	}

	getHeader := func(name string) sip.Header {
		if m.Req != nil {
			return m.Req.GetHeader(name)
		}
		return m.Res.GetHeader(name)
	}

	if h := getHeader("Expires"); h != nil {
		v, err := strconv.ParseUint(strings.TrimSpace(h.Value()), 10, 32)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid Expires %q", defs.ErrSIPHeader, h.Value())
		}
		m.expires = int(v)
		m.hasExpires = true
	}

	if h := getHeader("Max-Forwards"); h != nil {
		v, err := strconv.ParseUint(strings.TrimSpace(h.Value()), 10, 32)
		if err != nil || v == 0 {
			return nil, fmt.Errorf("%w: invalid Max-Forwards %q", defs.ErrSIPHeader, h.Value())
		}
	}

	if m.Req != nil {
		if _, ok2 := allowedMethods[m.Req.Method]; !ok2 {
			return nil, fmt.Errorf("%w: unsupported method %s", defs.ErrSIPMessage, m.Req.Method)
		}

		if cseq.MethodName != m.Req.Method {
			return nil, fmt.Errorf("%w: CSeq method %s does not match %s",
				defs.ErrSIPHeader, cseq.MethodName, m.Req.Method)
		}

		if m.Req.Method != sip.REGISTER &&
			m.Req.To().Address.User != m.Req.Recipient.User {
			return nil, fmt.Errorf("%w: To user %q does not match request URI user %q",
				defs.ErrSIPMessage, m.Req.To().Address.User, m.Req.Recipient.User)
		}
	}

	return m, nil
}

// IsRequest reports whether the message is a request.
func (m *Message) IsRequest() bool {
	return m.Req != nil
}

// DeviceID returns the device id, the user of the From address.
func (m *Message) DeviceID() string {
	if m.Req != nil {
		return m.Req.From().Address.User
	}
	return m.Res.From().Address.User
}

// Expires returns the Expires header value, if present.
func (m *Message) Expires() (int, bool) {
	return m.expires, m.hasExpires
}

// IsRegister reports whether the message is a REGISTER request.
func (m *Message) IsRegister() bool {
	return m.Req != nil && m.Req.Method == sip.REGISTER
}

// IsMessage reports whether the message is a MESSAGE request.
func (m *Message) IsMessage() bool {
	return m.Req != nil && m.Req.Method == sip.MESSAGE
}

// IsInvite reports whether the message is an INVITE request.
func (m *Message) IsInvite() bool {
	return m.Req != nil && m.Req.Method == sip.INVITE
}

// IsACK reports whether the message is an ACK request.
func (m *Message) IsACK() bool {
	return m.Req != nil && m.Req.Method == sip.ACK
}

// IsBye reports whether the message is a BYE request.
func (m *Message) IsBye() bool {
	return m.Req != nil && m.Req.Method == sip.BYE
}

// IsTrying reports whether the message is a 100 response to an INVITE.
func (m *Message) IsTrying() bool {
	return m.Res != nil && m.Res.StatusCode == 100 && m.Res.CSeq().MethodName == sip.INVITE
}

// IsInviteOK reports whether the message is a 200 response to an INVITE.
func (m *Message) IsInviteOK() bool {
	return m.Res != nil && m.Res.StatusCode == 200 && m.Res.CSeq().MethodName == sip.INVITE
}

// IsByeOK reports whether the message is a 200 response to a BYE.
func (m *Message) IsByeOK() bool {
	return m.Res != nil && m.Res.StatusCode == 200 && m.Res.CSeq().MethodName == sip.BYE
}

// String returns the serialized message.
func (m *Message) String() string {
	if m.Req != nil {
		return m.Req.String()
	}
	return m.Res.String()
}
