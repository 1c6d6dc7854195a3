package audio

import "time"

// Playback format expected by [Connection.OutputStream].
const (
	SampleRate = 48000
	Channels   = 2

	// FrameDuration is the length of one Opus frame.
	FrameDuration = 20 * time.Millisecond

	// FrameBytes is the PCM size of one FrameDuration at the playback format:
	// 960 samples × 2 channels × 2 bytes.
	FrameBytes = SampleRate / 1000 * int(FrameDuration/time.Millisecond) * Channels * 2
)

// AudioFrame is a chunk of interleaved PCM audio.
type AudioFrame struct {
	Data []byte

	// SampleRate in Hz.
	SampleRate int

	// Channels: 1 for mono, 2 for stereo.
	Channels int

	// Timestamp is the position of the frame relative to stream start.
	Timestamp time.Duration
}

// Duration returns the playback length of f, assuming 16-bit samples.
func (f AudioFrame) Duration() time.Duration {
	if f.SampleRate <= 0 || f.Channels <= 0 {
		return 0
	}
	samples := len(f.Data) / (2 * f.Channels)
	return time.Duration(samples) * time.Second / time.Duration(f.SampleRate)
}
