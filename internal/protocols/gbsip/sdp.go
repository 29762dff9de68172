package gbsip

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pion/sdp/v3"

	"github.com/ossrs/srs-sub009/internal/defs"
)

// SDPOffer is the media offer embedded in an outgoing INVITE.
//
// The y= line carrying the SSRC is a GB28181 extension and not valid SDP;
// it is kept outside the standard description so that it round-trips
// losslessly through pion/sdp.
type SDPOffer struct {
	User      string
	PublicIP  string
	MediaPort int
	SSRC      string
}

// Marshal encodes the offer.
func (o SDPOffer) Marshal() ([]byte, error) {
	desc := &sdp.SessionDescription{
		Version: 0,
		Origin: sdp.Origin{
			Username:       o.User,
			SessionID:      0,
			SessionVersion: 0,
			NetworkType:    "IN",
			AddressType:    "IP4",
			UnicastAddress: o.PublicIP,
		},
		SessionName: "Play",
		ConnectionInformation: &sdp.ConnectionInformation{
			NetworkType: "IN",
			AddressType: "IP4",
			Address:     &sdp.Address{Address: o.PublicIP},
		},
		TimeDescriptions: []sdp.TimeDescription{{}},
		MediaDescriptions: []*sdp.MediaDescription{{
			MediaName: sdp.MediaName{
				Media:   "video",
				Port:    sdp.RangedPort{Value: o.MediaPort},
				Protos:  []string{"TCP", "RTP", "AVP"},
				Formats: []string{"96"},
			},
			Attributes: []sdp.Attribute{
				{Key: "recvonly"},
				{Key: "rtpmap", Value: "96 PS/90000"},
			},
		}},
	}

	byts, err := desc.Marshal()
	if err != nil {
		return nil, err
	}

	byts = append(byts, []byte("y="+o.SSRC+"\r\n")...)
	return byts, nil
}

// UnmarshalSDP decodes an SDP body of the constrained profile, returning
// the standard description and the SSRC carried by the y= line.
func UnmarshalSDP(byts []byte) (*sdp.SessionDescription, string, error) {
	var ssrc string
	var std []string

	for _, line := range strings.Split(string(byts), "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "y=") {
			ssrc = line[len("y="):]
			continue
		}

		std = append(std, line)
	}

	desc := &sdp.SessionDescription{}
	err := desc.Unmarshal([]byte(strings.Join(std, "\r\n") + "\r\n"))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", defs.ErrSIPMessage, err)
	}

	if ssrc != "" {
		if _, err := strconv.ParseUint(ssrc, 10, 32); err != nil {
			return nil, "", fmt.Errorf("%w: invalid y= line %q", defs.ErrSIPMessage, ssrc)
		}
	}

	return desc, ssrc, nil
}
