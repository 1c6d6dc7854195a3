package discord

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrWong99/radiobridge/pkg/audio"
	"github.com/bwmarrin/discordgo"
)

// ─── test helpers ─────────────────────────────────────────────────────────────

// newTestConnection creates a Connection without a real Discord voice
// connection. OpusSend is a plain buffered channel the test can read.
func newTestConnection(t *testing.T, occupants func() int) (*Connection, *atomic.Int32) {
	t.Helper()
	vc := &discordgo.VoiceConnection{
		OpusSend: make(chan []byte, 16),
	}
	var disconnects atomic.Int32
	c := &Connection{
		vc:        vc,
		occupants: occupants,
		output:    make(chan audio.AudioFrame, outputChannelBuffer),
		done:      make(chan struct{}),
		leave:     func() error {
			disconnects.Add(1)
			return nil
		},
	}
	go c.sendLoop()
	t.Cleanup(func() { _ = c.Disconnect() })
	return c, &disconnects
}

func silence(n int) audio.AudioFrame {
	return audio.AudioFrame{Data: make([]byte, n), SampleRate: audio.SampleRate, Channels: audio.Channels}
}

// ─── Platform tests ──────────────────────────────────────────────────────────

func TestNewPlatform(t *testing.T) {
	t.Parallel()

	s := &discordgo.Session{}
	if p := New(s); p == nil || p.session != s {
		t.Fatal("New did not store the session")
	}
}

func TestConnect_CancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := New(&discordgo.Session{}).Connect(ctx, "g", "c"); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}

func TestCountOccupants(t *testing.T) {
	t.Parallel()

	state := discordgo.NewState()
	err := state.GuildAdd(&discordgo.Guild{
		ID: "guild-1",
		VoiceStates: []*discordgo.VoiceState{
			{UserID: "bot", ChannelID: "voice-1"},
			{UserID: "alice", ChannelID: "voice-1"},
			{UserID: "bob", ChannelID: "voice-2"},
		},
	})
	if err != nil {
		t.Fatalf("GuildAdd: %v", err)
	}

	tests := []struct {
		guild, channel string
		want           int
	}{
		{"guild-1", "voice-1", 2},
		{"guild-1", "voice-2", 1},
		{"guild-1", "voice-3", 0},
		{"unknown", "voice-1", audio.UnknownOccupants},
	}
	for _, tt := range tests {
		if got := countOccupants(state, tt.guild, tt.channel); got != tt.want {
			t.Errorf("countOccupants(%s, %s) = %d, want %d", tt.guild, tt.channel, got, tt.want)
		}
	}
	if got := countOccupants(nil, "guild-1", "voice-1"); got != audio.UnknownOccupants {
		t.Errorf("countOccupants(nil state) = %d, want %d", got, audio.UnknownOccupants)
	}
}

// ─── Connection tests ─────────────────────────────────────────────────────────

func TestConnection_Occupants(t *testing.T) {
	t.Parallel()

	c, _ := newTestConnection(t, func() int { return 3 })
	if got := c.Occupants(); got != 3 {
		t.Errorf("Occupants = %d, want 3", got)
	}

	nilCounter, _ := newTestConnection(t, nil)
	if got := nilCounter.Occupants(); got != audio.UnknownOccupants {
		t.Errorf("Occupants without counter = %d, want %d", got, audio.UnknownOccupants)
	}
}

// TestConnection_SendEncodes verifies that PCM written to the output stream
// is re-chunked into Opus frames and appears on OpusSend.
func TestConnection_SendEncodes(t *testing.T) {
	t.Parallel()

	c, _ := newTestConnection(t, nil)

	// Two and a half frames split unevenly: exactly two packets must come out.
	c.OutputStream() <- silence(audio.FrameBytes + 1000)
	c.OutputStream() <- silence(audio.FrameBytes + 920)

	for i := range 2 {
		select {
		case packet := <-c.vc.OpusSend:
			if len(packet) == 0 {
				t.Errorf("packet %d is empty", i)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for packet %d", i)
		}
	}
	select {
	case <-c.vc.OpusSend:
		t.Error("unexpected third packet from a partial frame")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPacketizer_CarriesPartialFrames(t *testing.T) {
	t.Parallel()

	pk, err := newPacketizer()
	if err != nil {
		t.Fatalf("newPacketizer: %v", err)
	}

	writes := []struct {
		bytes, wantPackets, wantPending int
	}{
		{audio.FrameBytes / 2, 0, audio.FrameBytes / 2},
		{audio.FrameBytes*2 + 100, 2, audio.FrameBytes/2 + 100},
		{audio.FrameBytes/2 - 100, 1, 0},
	}
	for i, w := range writes {
		packets := pk.write(make([]byte, w.bytes))
		if len(packets) != w.wantPackets {
			t.Errorf("write %d: %d packets, want %d", i, len(packets), w.wantPackets)
		}
		if len(pk.pending) != w.wantPending {
			t.Errorf("write %d: %d bytes pending, want %d", i, len(pk.pending), w.wantPending)
		}
	}
}

func TestConnection_DropsUnsupportedFormat(t *testing.T) {
	t.Parallel()

	c, _ := newTestConnection(t, nil)
	c.OutputStream() <- audio.AudioFrame{Data: make([]byte, audio.FrameBytes), SampleRate: 16000, Channels: 1}

	select {
	case <-c.vc.OpusSend:
		t.Error("frame with unsupported format must be dropped")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestConnection_DisconnectIdempotent(t *testing.T) {
	t.Parallel()

	c, disconnects := newTestConnection(t, nil)
	for i := range 3 {
		if err := c.Disconnect(); err != nil {
			t.Fatalf("Disconnect[%d]: %v", i, err)
		}
	}
	if got := disconnects.Load(); got != 1 {
		t.Errorf("voice disconnects = %d, want 1", got)
	}
}

// TestConnection_ConcurrentDisconnect exercises Disconnect from multiple
// goroutines (run with -race).
func TestConnection_ConcurrentDisconnect(t *testing.T) {
	t.Parallel()

	c, disconnects := newTestConnection(t, nil)
	var wg sync.WaitGroup
	for range 10 {
		wg.Go(func() {
			_ = c.Disconnect()
		})
	}
	wg.Wait()
	if got := disconnects.Load(); got != 1 {
		t.Errorf("voice disconnects = %d, want 1", got)
	}
}
