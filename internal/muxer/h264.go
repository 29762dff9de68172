package muxer

import (
	"bytes"
	"fmt"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h264"

	"github.com/ossrs/srs-sub009/internal/defs"
	"github.com/ossrs/srs-sub009/internal/logger"
	"github.com/ossrs/srs-sub009/internal/protocols/rtmp/message"
)

type h264Track struct {
	sps        []byte
	pps        []byte
	spsUpdated bool
	ppsUpdated bool
	hasConfig  bool
}

// avcDecoderConfRecord builds an AVCDecoderConfigurationRecord.
func avcDecoderConfRecord(sps []byte, pps []byte) ([]byte, error) {
	var psps h264.SPS
	err := psps.Unmarshal(sps)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid SPS: %v", defs.ErrPSMedia, err)
	}

	buf := []byte{
		1,
		psps.ProfileIdc,
		sps[2],
		psps.LevelIdc,
		0xfc | 3, // length size minus one
		0xe0 | 1, // SPS count
	}
	buf = append(buf, byte(len(sps)>>8), byte(len(sps)))
	buf = append(buf, sps...)
	buf = append(buf, 1) // PPS count
	buf = append(buf, byte(len(pps)>>8), byte(len(pps)))
	buf = append(buf, pps...)

	return buf, nil
}

func (m *Muxer) writeH264(dts int64, pts int64, payload []byte) error {
	var au h264.AnnexB
	err := au.Unmarshal(payload)
	if err != nil {
		return fmt.Errorf("%w: invalid Annex-B stream: %v", defs.ErrPSMedia, err)
	}

	t := &m.h264
	var frames [][]byte
	isKeyFrame := false

	for _, nalu := range au {
		typ := h264.NALUType(nalu[0] & 0x1F)

		switch typ {
		case h264.NALUTypeSPS:
			if !bytes.Equal(t.sps, nalu) {
				t.sps = append([]byte(nil), nalu...)
				t.spsUpdated = true
			}

		case h264.NALUTypePPS:
			if !bytes.Equal(t.pps, nalu) {
				t.pps = append([]byte(nil), nalu...)
				t.ppsUpdated = true
			}

		case h264.NALUTypeSEI, h264.NALUTypeAccessUnitDelimiter:

		case h264.NALUTypeIDR:
			isKeyFrame = true
			frames = append(frames, nalu)

		case h264.NALUTypeNonIDR:
			frames = append(frames, nalu)

		default:
			m.Log(logger.Warn, "ignoring H264 NALU with type %d", typ)
		}
	}

	// a sequence header is emitted when both parameter sets changed.
	if t.spsUpdated && t.ppsUpdated {
		conf, err2 := avcDecoderConfRecord(t.sps, t.pps)
		if err2 != nil {
			return err2
		}

		m.enqueueVideo(&message.Video{
			ChunkStreamID:   message.VideoChunkStreamID,
			MessageStreamID: 0x1000000,
			DTS:             ptsTime(dts),
			Codec:           message.CodecH264,
			IsKeyFrame:      true,
			Type:            message.VideoTypeConfig,
			Payload:         conf,
		})

		t.spsUpdated = false
		t.ppsUpdated = false
		t.hasConfig = true
	}

	if len(frames) == 0 {
		return nil
	}

	if !t.hasConfig {
		return fmt.Errorf("%w: no SPS/PPS received yet", defs.ErrDropBeforeParams)
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
		Codec:           message.CodecH264,
		IsKeyFrame:      isKeyFrame,
		Type:            message.VideoTypeAU,
		Payload:         avcc,
	})

	return nil
}
