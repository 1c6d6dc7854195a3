package discord

import (
	"log/slog"
	"sync"

	"github.com/MrWong99/radiobridge/pkg/audio"
	"github.com/bwmarrin/discordgo"
)

var _ audio.Connection = (*Connection)(nil)

// outputChannelBuffer holds about 1.3 s of audio at 20 ms per frame.
const outputChannelBuffer = 64

// Connection plays PCM into one Discord voice channel. Frames written to
// [Connection.OutputStream] are packetized to Opus and handed to discordgo,
// which paces the send.
type Connection struct {
	vc        *discordgo.VoiceConnection
	occupants func() int

	output chan audio.AudioFrame

	done      chan struct{}
	closeOnce sync.Once

	// leave tears down the voice connection; vc.Disconnect outside tests.
	leave func() error
}

func newConnection(vc *discordgo.VoiceConnection, occupants func() int) *Connection {
	c := &Connection{
		vc:        vc,
		occupants: occupants,
		output:    make(chan audio.AudioFrame, outputChannelBuffer),
		done:      make(chan struct{}),
		leave:     vc.Disconnect,
	}
	go c.sendLoop()
	return c
}

// OutputStream returns the write-only channel for playback.
func (c *Connection) OutputStream() chan<- audio.AudioFrame {
	return c.output
}

// Occupants returns the number of members in the voice channel, bot included.
func (c *Connection) Occupants() int {
	if c.occupants == nil {
		return audio.UnknownOccupants
	}
	return c.occupants()
}

// Disconnect leaves the voice channel once; later calls return nil.
func (c *Connection) Disconnect() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		if c.leave != nil {
			err = c.leave()
		}
	})
	return err
}

func playable(f audio.AudioFrame) bool {
	return f.SampleRate == audio.SampleRate && f.Channels == audio.Channels
}

func (c *Connection) sendLoop() {
	pk, err := newPacketizer()
	if err != nil {
		slog.Error("discord: voice send disabled", "err", err)
		return
	}

	speaking := false
	defer func() {
		if speaking {
			c.setSpeaking(false)
		}
	}()

	for {
		var frame audio.AudioFrame
		select {
		case <-c.done:
			return
		case frame = <-c.output:
		}

		if !playable(frame) {
			slog.Warn("discord: dropping frame in unsupported format",
				"sample_rate", frame.SampleRate,
				"channels", frame.Channels,
			)
			continue
		}
		if !speaking {
			speaking = true
			c.setSpeaking(true)
		}

		for _, packet := range pk.write(frame.Data) {
			select {
			case c.vc.OpusSend <- packet:
			case <-c.done:
				return
			}
		}
	}
}

func (c *Connection) setSpeaking(on bool) {
	if err := c.vc.Speaking(on); err != nil {
		slog.Debug("discord: speaking update failed", "speaking", on, "err", err)
	}
}
