package muxer

import (
	"bytes"
	"fmt"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h264"
	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h265"

	"github.com/ossrs/srs-sub009/internal/defs"
	"github.com/ossrs/srs-sub009/internal/logger"
	"github.com/ossrs/srs-sub009/internal/protocols/rtmp/message"
)

type h265Track struct {
	vps        []byte
	sps        []byte
	pps        []byte
	vpsUpdated bool
	spsUpdated bool
	ppsUpdated bool
	hasConfig  bool
}

// hevcDecoderConfRecord builds a HEVCDecoderConfigurationRecord.
func hevcDecoderConfRecord(vps []byte, sps []byte, pps []byte) ([]byte, error) {
	var psps h265.SPS
	err := psps.Unmarshal(sps)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid SPS: %v", defs.ErrPSMedia, err)
	}

	ptl := psps.ProfileTierLevel

	// general_profile_compatibility_flags, bit 31 first.
	var compat uint32
	for i, f := range ptl.GeneralProfileCompatibilityFlag {
		if f {
			compat |= 1 << (31 - i)
		}
	}

	buf := make([]byte, 0, 23+len(vps)+len(sps)+len(pps)+15)
	buf = append(buf, 1)
	buf = append(buf, ptl.GeneralProfileSpace<<6|ptl.GeneralProfileIdc)
	buf = append(buf, byte(compat>>24), byte(compat>>16), byte(compat>>8), byte(compat))

	// general_constraint_indicator_flags: the six bytes following the
	// compatibility flags in the SPS.
	buf = append(buf, sps[8:14]...)

	buf = append(buf, ptl.GeneralLevelIdc)

	// min_spatial_segmentation_idc, parallelismType
	buf = append(buf, 0xf0, 0x00, 0xfc)
	buf = append(buf, 0xfc|uint8(psps.ChromaFormatIdc))
	buf = append(buf, 0xf8|uint8(psps.BitDepthLumaMinus8))
	buf = append(buf, 0xf8|uint8(psps.BitDepthChromaMinus8))

	// avgFrameRate, numTemporalLayers + lengthSizeMinusOne, numOfArrays
	buf = append(buf, 0, 0, (1<<3)|3, 3)

	for _, array := range []struct {
		typ  h265.NALUType
		nalu []byte
	}{
		{h265.NALUType_VPS_NUT, vps},
		{h265.NALUType_SPS_NUT, sps},
		{h265.NALUType_PPS_NUT, pps},
	} {
		buf = append(buf, byte(array.typ))
		buf = append(buf, 0, 1) // NALU count
		buf = append(buf, byte(len(array.nalu)>>8), byte(len(array.nalu)))
		buf = append(buf, array.nalu...)
	}

	return buf, nil
}

func (m *Muxer) writeH265(dts int64, pts int64, payload []byte) error {
	var au h264.AnnexB
	err := au.Unmarshal(payload)
	if err != nil {
		return fmt.Errorf("%w: invalid Annex-B stream: %v", defs.ErrPSMedia, err)
	}

	t := &m.h265
	var frames [][]byte
	isKeyFrame := false

	for _, nalu := range au {
		typ := h265.NALUType((nalu[0] >> 1) & 0x3F)

		switch {
		case typ == h265.NALUType_VPS_NUT:
			if !bytes.Equal(t.vps, nalu) {
				t.vps = append([]byte(nil), nalu...)
				t.vpsUpdated = true
			}

		case typ == h265.NALUType_SPS_NUT:
			if !bytes.Equal(t.sps, nalu) {
				t.sps = append([]byte(nil), nalu...)
				t.spsUpdated = true
			}

		case typ == h265.NALUType_PPS_NUT:
			if !bytes.Equal(t.pps, nalu) {
				t.pps = append([]byte(nil), nalu...)
				t.ppsUpdated = true
			}

		case typ == h265.NALUType_AUD_NUT, typ == 39, typ == 40: // AUD, prefix / suffix SEI

		case typ >= 16 && typ <= 23: // IRAP
			isKeyFrame = true
			frames = append(frames, nalu)

		case typ <= 31:
			frames = append(frames, nalu)

		default:
			m.Log(logger.Warn, "ignoring H265 NALU with type %d", typ)
		}
	}

	if t.vpsUpdated && t.spsUpdated && t.ppsUpdated {
		conf, err2 := hevcDecoderConfRecord(t.vps, t.sps, t.pps)
		if err2 != nil {
			return err2
		}

		m.enqueueVideo(&message.Video{
			ChunkStreamID:   message.VideoChunkStreamID,
			MessageStreamID: 0x1000000,
			DTS:             ptsTime(dts),
			Codec:           message.CodecH265,
			IsKeyFrame:      true,
			Type:            message.VideoTypeConfig,
			Payload:         conf,
		})

		t.vpsUpdated = false
		t.spsUpdated = false
		t.ppsUpdated = false
		t.hasConfig = true
	}

	if len(frames) == 0 {
		return nil
	}

	if !t.hasConfig {
		return fmt.Errorf("%w: no VPS/SPS/PPS received yet", defs.ErrDropBeforeParams)
	}

	avcc, err := h264.AVCC(frames).Marshal()
	if err != nil {
		return fmt.Errorf("%w: %v", defs.ErrPSMedia, err)
	}

	m.enqueueVideo(&message.Video{
		ChunkStreamID:   message.VideoChunkStreamID,
		MessageStreamID: 0x1000000,
		DTS:             ptsTime(dts),
		PTSDelta:        ptsTime(pts - dts),
		Codec:           message.CodecH265,
		IsKeyFrame:      isKeyFrame,
		Type:            message.VideoTypeAU,
		Payload:         avcc,
	})

	return nil
}
