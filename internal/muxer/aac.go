package muxer

import (
	"fmt"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/mpeg4audio"

	"github.com/ossrs/srs-sub009/internal/defs"
	"github.com/ossrs/srs-sub009/internal/protocols/rtmp/message"
)

type aacTrack struct {
	hasConfig bool
}

func (m *Muxer) writeAAC(dts int64, payload []byte) error {
	var pkts mpeg4audio.ADTSPackets
	err := pkts.Unmarshal(payload)
	if err != nil {
		return fmt.Errorf("%w: invalid ADTS stream: %v", defs.ErrPSMedia, err)
	}

	for _, pkt := range pkts {
		if !m.aac.hasConfig {
			conf := mpeg4audio.Config{
				Type:         pkt.Type,
				SampleRate:   pkt.SampleRate,
				ChannelCount: pkt.ChannelCount,
			}

			enc, err2 := conf.Marshal()
			if err2 != nil {
				return fmt.Errorf("%w: %v", defs.ErrPSMedia, err2)
			}

			m.enqueueAudio(&message.Audio{
				ChunkStreamID:   message.AudioChunkStreamID,
				MessageStreamID: 0x1000000,
				DTS:             ptsTime(dts),
				Codec:           message.CodecMPEG4Audio,
				Rate:            message.Rate44100,
				Depth:           message.Depth16,
				IsStereo:        true,
				AACType:         message.AudioAACTypeConfig,
				Payload:         enc,
			})

			m.aac.hasConfig = true
		}

		m.enqueueAudio(&message.Audio{
			ChunkStreamID:   message.AudioChunkStreamID,
			MessageStreamID: 0x1000000,
			DTS:             ptsTime(dts),
			Codec:           message.CodecMPEG4Audio,
			Rate:            message.Rate44100,
			Depth:           message.Depth16,
			IsStereo:        true,
			AACType:         message.AudioAACTypeAU,
			Payload:         pkt.AU,
		})
	}

	return nil
}
