// Package defs contains definitions shared between packages.
package defs

import (
	"errors"
)

// Error kinds surfaced to the log / metrics boundary. Components wrap these
// with fmt.Errorf("...: %w", ...) so that callers can classify failures with
// errors.Is without depending on the failing package.
var (
	// ErrConfig is a fatal configuration error at startup.
	ErrConfig = errors.New("GB_CONFIG")

	// ErrSSRCGenerate is returned when no unique SSRC can be allocated.
	ErrSSRCGenerate = errors.New("GB_SSRC_GENERATE")

	// ErrTimeout is returned when a session exceeds its connecting attempts.
	ErrTimeout = errors.New("GB_TIMEOUT")

	// ErrPSHeader is a PS pack / system / PSM header decode error.
	ErrPSHeader = errors.New("GB_PS_HEADER")

	// ErrPSMedia is a media transport error (framing, RTP, PES payload).
	ErrPSMedia = errors.New("GB_PS_MEDIA")

	// ErrSIPHeader is a SIP message with a missing or malformed header.
	ErrSIPHeader = errors.New("GB_SIP_HEADER")

	// ErrSIPMessage is a SIP message that is structurally valid but not
	// acceptable in the GB28181 profile.
	ErrSIPMessage = errors.New("GB_SIP_MESSAGE")

	// ErrDropBeforeParams is returned when a video frame arrives before
	// both SPS and PPS have been observed.
	ErrDropBeforeParams = errors.New("H264_DROP_BEFORE_SPS_PPS")

	// ErrTSCodec is an elementary stream repackaging error.
	ErrTSCodec = errors.New("STREAM_CASTER_TS_CODEC")

	// ErrHEVCDisabled is returned when the stream declares H.265 but the
	// binary was built without H.265 support.
	ErrHEVCDisabled = errors.New("HEVC_DISABLED")
)
