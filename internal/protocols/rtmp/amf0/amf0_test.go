package amf0

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMarshalUnmarshal(t *testing.T) {
	in := Data{
		"connect",
		float64(1),
		Object{
			{Key: "app", Value: "live"},
			{Key: "flashVer", Value: "LNX 9,0,124,2"},
			{Key: "tcUrl", Value: "rtmp://127.0.0.1/live"},
			{Key: "fpad", Value: false},
		},
		nil,
		ECMAArray{
			{Key: "duration", Value: float64(0)},
			{Key: "audiocodecid", Value: float64(10)},
		},
		true,
		StrictArray{float64(1), "two"},
	}

	buf, err := in.Marshal()
	require.NoError(t, err)

	out, err := Unmarshal(buf)
	require.NoError(t, err)
	require.Equal(t, in, out)
}

func TestUnmarshalTruncated(t *testing.T) {
	in := Data{
		Object{
			{Key: "app", Value: "live"},
		},
	}

	buf, err := in.Marshal()
	require.NoError(t, err)

	for i := 1; i < len(buf); i++ {
		_, err = Unmarshal(buf[:i])
		require.Error(t, err)
	}
}

func TestObjectGet(t *testing.T) {
	obj := Object{
		{Key: "code", Value: "NetStream.Publish.Start"},
		{Key: "clientid", Value: float64(5)},
	}

	v, ok := obj.GetString("code")
	require.True(t, ok)
	require.Equal(t, "NetStream.Publish.Start", v)

	f, ok := obj.GetFloat64("clientid")
	require.True(t, ok)
	require.Equal(t, float64(5), f)

	_, ok = obj.Get("missing")
	require.False(t, ok)

	_, ok = obj.GetString("clientid")
	require.False(t, ok)
}
