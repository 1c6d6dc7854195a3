package discord

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/radiobridge/internal/nowplaying"
	"github.com/MrWong99/radiobridge/internal/subscription"
)

// Messenger is the subset of [discordgo.Session] used to post into text
// channels.
type Messenger interface {
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Compile-time interface assertions.
var (
	_ Messenger         = (*discordgo.Session)(nil)
	_ subscription.Sink = (*ChannelSink)(nil)
)

// ChannelSink posts announcements and notices into one text channel.
type ChannelSink struct {
	messenger Messenger
	channelID string
}

// NewChannelSink returns a sink for channelID.
func NewChannelSink(m Messenger, channelID string) *ChannelSink {
	return &ChannelSink{messenger: m, channelID: channelID}
}

// Announce implements [subscription.Sink].
func (s *ChannelSink) Announce(ctx context.Context, a nowplaying.Announcement) error {
	if _, err := s.messenger.ChannelMessageSendEmbed(s.channelID, NowPlayingEmbed(a), discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("discord: announce in %s: %w", s.channelID, err)
	}
	return nil
}

// Notify implements [subscription.Sink].
func (s *ChannelSink) Notify(ctx context.Context, text string) error {
	if _, err := s.messenger.ChannelMessageSend(s.channelID, text, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("discord: notify %s: %w", s.channelID, err)
	}
	return nil
}
