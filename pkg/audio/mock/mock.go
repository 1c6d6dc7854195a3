// Package mock provides in-memory mock implementations of the [audio.Platform]
// and [audio.Connection] interfaces for use in unit tests.
//
// All mocks are safe for concurrent use. They record every method call so that
// tests can assert on call counts and arguments, and they expose exported fields
// that the test can set to control return values.
//
// Typical usage:
//
//	conn := mock.NewConnection()
//	conn.SetOccupants(2)
//	platform := &mock.Platform{ConnectResult: conn}
//	got, err := platform.Connect(ctx, "guild-1", "voice-42")
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/radiobridge/pkg/audio"
)

// ─── Connection ───────────────────────────────────────────────────────────────

// Connection is a mock implementation of [audio.Connection]. Frames written
// to the output stream are collected in the background; read them with
// [Connection.Frames].
type Connection struct {
	mu sync.Mutex

	// OccupantsSequence, when non-empty, is consumed one value per Occupants
	// call; the last value repeats once exhausted. It takes precedence over
	// the value set with SetOccupants.
	OccupantsSequence []int

	// DisconnectError is returned by [Connection.Disconnect].
	DisconnectError error

	// CallCountOccupants records how many times Occupants was called.
	CallCountOccupants int

	// CallCountDisconnect records how many times Disconnect was called.
	CallCountDisconnect int

	occupants int
	output    chan audio.AudioFrame
	frames    []audio.AudioFrame
	bytes     int
	stopOnce  sync.Once
	stop      chan struct{}
	received  chan struct{}
}

// NewConnection returns a Connection whose output stream is drained into an
// internal buffer until Disconnect.
func NewConnection() *Connection {
	c := &Connection{
		output:   make(chan audio.AudioFrame, 16),
		stop:     make(chan struct{}),
		received: make(chan struct{}, 1),
	}
	go c.collect()
	return c
}

func (c *Connection) collect() {
	for {
		select {
		case <-c.stop:
			return
		case f := <-c.output:
			c.mu.Lock()
			c.frames = append(c.frames, f)
			c.bytes += len(f.Data)
			c.mu.Unlock()
			select {
			case c.received <- struct{}{}:
			default:
			}
		}
	}
}

// OutputStream implements [audio.Connection].
func (c *Connection) OutputStream() chan<- audio.AudioFrame {
	return c.output
}

// SetOccupants sets the value returned by Occupants.
func (c *Connection) SetOccupants(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.occupants = n
}

// Occupants implements [audio.Connection].
func (c *Connection) Occupants() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CallCountOccupants++
	if n := len(c.OccupantsSequence); n > 0 {
		v := c.OccupantsSequence[0]
		if n > 1 {
			c.OccupantsSequence = c.OccupantsSequence[1:]
		}
		return v
	}
	return c.occupants
}

// Disconnect implements [audio.Connection]. It stops collecting frames.
func (c *Connection) Disconnect() error {
	c.mu.Lock()
	c.CallCountDisconnect++
	err := c.DisconnectError
	c.mu.Unlock()
	c.stopOnce.Do(func() { close(c.stop) })
	return err
}

// Frames returns a copy of the frames collected so far.
func (c *Connection) Frames() []audio.AudioFrame {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]audio.AudioFrame, len(c.frames))
	copy(out, c.frames)
	return out
}

// BytesReceived returns the total PCM bytes collected so far.
func (c *Connection) BytesReceived() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bytes
}

// Received signals, coalesced, whenever a frame has been collected.
func (c *Connection) Received() <-chan struct{} {
	return c.received
}

// OccupantChecks returns how many times Occupants was called.
func (c *Connection) OccupantChecks() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.CallCountOccupants
}

// Disconnects returns how many times Disconnect was called.
func (c *Connection) Disconnects() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.CallCountDisconnect
}

// ─── Platform ─────────────────────────────────────────────────────────────────

// Platform is a mock implementation of [audio.Platform].
type Platform struct {
	mu sync.Mutex

	// ConnectResult is returned by Connect when ConnectError is nil.
	ConnectResult audio.Connection

	// ConnectFunc, when set, replaces ConnectResult and ConnectError.
	ConnectFunc func(ctx context.Context, guildID, channelID string) (audio.Connection, error)

	// ConnectError is returned by Connect.
	ConnectError error

	// ConnectCalls records the (guild, channel) pairs passed to Connect.
	ConnectCalls [][2]string
}

// Connect implements [audio.Platform].
func (p *Platform) Connect(ctx context.Context, guildID, channelID string) (audio.Connection, error) {
	p.mu.Lock()
	p.ConnectCalls = append(p.ConnectCalls, [2]string{guildID, channelID})
	fn, res, err := p.ConnectFunc, p.ConnectResult, p.ConnectError
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, guildID, channelID)
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

// CallCountConnect returns how many times Connect was called.
func (p *Platform) CallCountConnect() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.ConnectCalls)
}
