package gbsip

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ossrs/srs-sub009/internal/defs"
)

func TestSDPOfferMarshal(t *testing.T) {
	body, err := SDPOffer{
		User:      "34020000001320000001",
		PublicIP:  "192.168.3.10",
		MediaPort: 9000,
		SSRC:      "0200001234",
	}.Marshal()
	require.NoError(t, err)

	s := string(body)
	require.Contains(t, s, "s=Play\r\n")
	require.Contains(t, s, "c=IN IP4 192.168.3.10\r\n")
	require.Contains(t, s, "m=video 9000 TCP/RTP/AVP 96\r\n")
	require.Contains(t, s, "a=recvonly\r\n")
	require.Contains(t, s, "a=rtpmap:96 PS/90000\r\n")
	require.True(t, strings.HasSuffix(s, "y=0200001234\r\n"))
}

func TestSDPRoundTrip(t *testing.T) {
	body, err := SDPOffer{
		User:      "34020000001320000001",
		PublicIP:  "192.168.3.10",
		MediaPort: 9000,
		SSRC:      "0200001234",
	}.Marshal()
	require.NoError(t, err)

	desc, ssrc, err := UnmarshalSDP(body)
	require.NoError(t, err)
	require.Equal(t, "0200001234", ssrc)
	require.Equal(t, "Play", string(desc.SessionName))
	require.Len(t, desc.MediaDescriptions, 1)
	require.Equal(t, "video", desc.MediaDescriptions[0].MediaName.Media)
	require.Equal(t, 9000, desc.MediaDescriptions[0].MediaName.Port.Value)
}

func TestSDPInvalidSSRCLine(t *testing.T) {
	body, err := SDPOffer{
		User:      "34020000001320000001",
		PublicIP:  "192.168.3.10",
		MediaPort: 9000,
		SSRC:      "0200001234",
	}.Marshal()
	require.NoError(t, err)

	bad := strings.Replace(string(body), "y=0200001234", "y=notanumber", 1)
	_, _, err = UnmarshalSDP([]byte(bad))
	require.ErrorIs(t, err, defs.ErrSIPMessage)
}
