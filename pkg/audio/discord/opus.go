package discord

import (
	"encoding/binary"
	"fmt"
	"log/slog"

	"github.com/MrWong99/radiobridge/pkg/audio"
	"layeh.com/gopus"
)

// samplesPerChannel is the Opus frame size gopus expects for one
// [audio.FrameDuration].
const samplesPerChannel = audio.FrameBytes / (2 * audio.Channels)

// packetizer turns an arbitrary-length PCM byte stream into Opus packets of
// exactly one frame each. Bytes short of a full frame wait for the next write.
type packetizer struct {
	enc     *gopus.Encoder
	pending []byte
	samples []int16
}

func newPacketizer() (*packetizer, error) {
	enc, err := gopus.NewEncoder(audio.SampleRate, audio.Channels, gopus.Audio)
	if err != nil {
		return nil, fmt.Errorf("discord: create opus encoder: %w", err)
	}
	return &packetizer{
		enc:     enc,
		samples: make([]int16, audio.FrameBytes/2),
	}, nil
}

// write buffers pcm and returns one packet per frame completed by it. A frame
// that fails to encode is logged and skipped.
func (p *packetizer) write(pcm []byte) [][]byte {
	p.pending = append(p.pending, pcm...)

	var packets [][]byte
	off := 0
	for len(p.pending)-off >= audio.FrameBytes {
		frame := p.pending[off : off+audio.FrameBytes]
		off += audio.FrameBytes
		for i := range p.samples {
			p.samples[i] = int16(binary.LittleEndian.Uint16(frame[2*i:]))
		}

		packet, err := p.enc.Encode(p.samples, samplesPerChannel, audio.FrameBytes)
		if err != nil {
			slog.Warn("discord: opus encode failed", "err", err)
			continue
		}
		packets = append(packets, packet)
	}

	// Move the partial frame to the front so the buffer is reused.
	p.pending = p.pending[:copy(p.pending, p.pending[off:])]
	return packets
}
