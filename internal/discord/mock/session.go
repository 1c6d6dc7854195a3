// Package mock provides test doubles for Discord interaction testing.
//
// All mocks are safe for concurrent use since command handlers post into
// text channels from background goroutines.
package mock

import (
	"sync"

	"github.com/bwmarrin/discordgo"
)

// ─── InteractionResponder ─────────────────────────────────────────────────────

// InteractionResponder records interaction responses for test assertions.
type InteractionResponder struct {
	mu sync.Mutex

	// Responses records all InteractionRespond calls.
	Responses []*discordgo.InteractionResponse

	// FollowUps records all FollowupMessageCreate calls.
	FollowUps []*discordgo.WebhookParams

	// Err is returned by InteractionRespond and FollowupMessageCreate
	// when non-nil, allowing error injection.
	Err error
}

// InteractionRespond records the response and returns the configured error.
func (m *InteractionResponder) InteractionRespond(_ *discordgo.Interaction, resp *discordgo.InteractionResponse, _ ...discordgo.RequestOption) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Responses = append(m.Responses, resp)
	return m.Err
}

// FollowupMessageCreate records the follow-up and returns a stub message.
func (m *InteractionResponder) FollowupMessageCreate(_ *discordgo.Interaction, _ bool, params *discordgo.WebhookParams, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FollowUps = append(m.FollowUps, params)
	if m.Err != nil {
		return nil, m.Err
	}
	return &discordgo.Message{ID: "mock-followup"}, nil
}

// LastResponse returns the most recently recorded response, or nil.
func (m *InteractionResponder) LastResponse() *discordgo.InteractionResponse {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Responses) == 0 {
		return nil
	}
	return m.Responses[len(m.Responses)-1]
}

// LastFollowUp returns the most recently recorded follow-up, or nil.
func (m *InteractionResponder) LastFollowUp() *discordgo.WebhookParams {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.FollowUps) == 0 {
		return nil
	}
	return m.FollowUps[len(m.FollowUps)-1]
}

// Reset clears all recorded interactions and errors.
func (m *InteractionResponder) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Responses = nil
	m.FollowUps = nil
	m.Err = nil
}

// ─── Messenger ────────────────────────────────────────────────────────────────

// Message is a message recorded by [Messenger]. Exactly one of Content and
// Embed is set.
type Message struct {
	ChannelID string
	Content   string
	Embed     *discordgo.MessageEmbed
}

// Messenger records messages posted into text channels.
type Messenger struct {
	mu sync.Mutex

	// Err is returned by every send when non-nil.
	Err error

	// Messages records every send in call order.
	Messages []Message

	// Sent receives a value, without blocking, after each recorded send.
	// Nil disables signalling.
	Sent chan struct{}
}

// ChannelMessageSend records a text message.
func (m *Messenger) ChannelMessageSend(channelID, content string, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	return m.record(Message{ChannelID: channelID, Content: content})
}

// ChannelMessageSendEmbed records an embed message.
func (m *Messenger) ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	return m.record(Message{ChannelID: channelID, Embed: embed})
}

func (m *Messenger) record(msg Message) (*discordgo.Message, error) {
	m.mu.Lock()
	m.Messages = append(m.Messages, msg)
	err, sent := m.Err, m.Sent
	m.mu.Unlock()

	if sent != nil {
		select {
		case sent <- struct{}{}:
		default:
		}
	}
	if err != nil {
		return nil, err
	}
	return &discordgo.Message{ID: "mock-message", ChannelID: msg.ChannelID}, nil
}

// Snapshot returns a copy of the recorded messages.
func (m *Messenger) Snapshot() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Message, len(m.Messages))
	copy(out, m.Messages)
	return out
}
