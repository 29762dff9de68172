package gbsip

import (
	"github.com/emiago/sipgo/sip"
)

func appendServerIdentity(res *sip.Response) {
	res.AppendHeader(sip.NewHeader("Server", UserAgent))
}

// BuildRegisterResponse builds the 200 OK answering a REGISTER. It echoes
// Via, From, To, CSeq, Call-ID, Contact and Expires, and carries no body.
func BuildRegisterResponse(register *Message) *sip.Response {
	res := sip.NewResponseFromRequest(register.Req, 200, "OK", nil)

	if h := register.Req.Contact(); h != nil {
		res.AppendHeader(sip.HeaderClone(h))
	}

	if h := register.Req.GetHeader("Expires"); h != nil {
		res.AppendHeader(sip.NewHeader("Expires", h.Value()))
	}

	appendServerIdentity(res)
	return res
}

// BuildMessageResponse builds the answer to a MESSAGE heartbeat: 200 OK,
// or 403 Forbidden when the device has not registered yet.
func BuildMessageResponse(message *Message, forbidden bool) *sip.Response {
	if forbidden {
		res := sip.NewResponseFromRequest(message.Req, 403, "Forbidden", nil)
		appendServerIdentity(res)
		return res
	}

	res := sip.NewResponseFromRequest(message.Req, 200, "OK", nil)
	appendServerIdentity(res)
	return res
}

// BuildByeResponse builds the 200 OK answering a BYE.
func BuildByeResponse(bye *Message) *sip.Response {
	res := sip.NewResponseFromRequest(bye.Req, 200, "OK", nil)
	appendServerIdentity(res)
	return res
}

// InviteParams gathers what is needed to build an INVITE.
type InviteParams struct {
	Register  *Message
	SSRC      string
	PublicIP  string
	SIPPort   int
	MediaPort int
}

// BuildInvite builds the INVITE requesting the device to push media.
// The request URI and addresses are derived from the cached REGISTER; the
// body is the SDP offer with the y= SSRC line.
func BuildInvite(params InviteParams) (*sip.Request, error) {
	regFrom := params.Register.Req.From()
	regTo := params.Register.Req.To()

	req := sip.NewRequest(sip.INVITE, sip.Uri{
		User: regFrom.Address.User,
		Host: regFrom.Address.Host,
		Port: regFrom.Address.Port,
	})

	viaParams := sip.NewParams()
	viaParams.Add("rport", "")
	viaParams.Add("branch", GenerateBranch())
	req.AppendHeader(&sip.ViaHeader{
		ProtocolName:    "SIP",
		ProtocolVersion: "2.0",
		Transport:       "TCP",
		Host:            params.PublicIP,
		Port:            params.SIPPort,
		Params:          viaParams,
	})

	fromParams := sip.NewParams()
	fromParams.Add("tag", generateTag())
	req.AppendHeader(&sip.FromHeader{
		Address: *regFrom.Address.Clone(),
		Params:  fromParams,
	})

	req.AppendHeader(&sip.ToHeader{
		Address: *regTo.Address.Clone(),
		Params:  sip.NewParams(),
	})

	callID := sip.CallIDHeader(generateCallID())
	req.AppendHeader(&callID)

	req.AppendHeader(&sip.CSeqHeader{
		SeqNo:      generateCSeq(),
		MethodName: sip.INVITE,
	})

	req.AppendHeader(&sip.ContactHeader{
		Address: sip.Uri{
			User: regTo.Address.User,
			Host: params.PublicIP,
			Port: params.SIPPort,
		},
	})

	maxFwd := sip.MaxForwardsHeader(70)
	req.AppendHeader(&maxFwd)

	req.AppendHeader(sip.NewHeader("Subject",
		regFrom.Address.User+":"+params.SSRC+","+regTo.Address.User+":0"))

	contentType := sip.ContentTypeHeader("Application/SDP")
	req.AppendHeader(&contentType)

	req.AppendHeader(sip.NewHeader("User-Agent", UserAgent))

	body, err := SDPOffer{
		User:      regTo.Address.User,
		PublicIP:  params.PublicIP,
		MediaPort: params.MediaPort,
		SSRC:      params.SSRC,
	}.Marshal()
	if err != nil {
		return nil, err
	}

	req.SetBody(body)
	return req, nil
}

// BuildACK builds the ACK confirming a 200 OK to an INVITE. It echoes
// From, To, Call-ID and the CSeq number of the 200, with a fresh branch.
func BuildACK(inviteOK *Message, publicIP string, sipPort int) *sip.Request {
	to := inviteOK.Res.To()

	req := sip.NewRequest(sip.ACK, sip.Uri{
		User: to.Address.User,
		Host: to.Address.Host,
		Port: to.Address.Port,
	})

	viaParams := sip.NewParams()
	viaParams.Add("rport", "")
	viaParams.Add("branch", GenerateBranch())
	req.AppendHeader(&sip.ViaHeader{
		ProtocolName:    "SIP",
		ProtocolVersion: "2.0",
		Transport:       "TCP",
		Host:            publicIP,
		Port:            sipPort,
		Params:          viaParams,
	})

	if h := inviteOK.Res.From(); h != nil {
		req.AppendHeader(sip.HeaderClone(h))
	}

	req.AppendHeader(sip.HeaderClone(to))

	if h := inviteOK.Res.CallID(); h != nil {
		req.AppendHeader(sip.HeaderClone(h))
	}

	req.AppendHeader(&sip.CSeqHeader{
		SeqNo:      inviteOK.Res.CSeq().SeqNo,
		MethodName: sip.ACK,
	})

	maxFwd := sip.MaxForwardsHeader(70)
	req.AppendHeader(&maxFwd)

	req.AppendHeader(sip.NewHeader("User-Agent", UserAgent))

	// no body: the header still has to be there so that the device can
	// delimit the message on the stream.
	req.AppendHeader(sip.NewHeader("Content-Length", "0"))

	return req
}
