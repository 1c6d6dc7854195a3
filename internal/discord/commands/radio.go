// Package commands implements the radiobridge slash commands.
package commands

import (
	"context"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/radiobridge/internal/discord"
	"github.com/MrWong99/radiobridge/internal/poller"
	"github.com/MrWong99/radiobridge/internal/relay"
	"github.com/MrWong99/radiobridge/internal/subscription"
)

const (
	defaultStartTimeout   = 30 * time.Second
	defaultProgramTimeout = 15 * time.Second
	defaultNotifyTimeout  = 10 * time.Second

	// maxChoices is Discord's limit for autocomplete results.
	maxChoices = 25
)

// Default links answered by /github and /invite.
const (
	DefaultGitHubURL = "https://github.com/Xwilarg/FIP-Discord/"
	DefaultInviteURL = "https://discord.com/api/oauth2/authorize?client_id=1062043607252606976&permissions=3145728&scope=bot%20applications.commands"
)

// Sessions is the part of [relay.Manager] the commands drive.
type Sessions interface {
	Start(ctx context.Context, req relay.Request) (*relay.Session, error)
	Stop(guildID string) error
	Active(guildID string) (*relay.Session, bool)
}

// Program renders the last known track of every channel.
type Program interface {
	Snapshot(ctx context.Context) []poller.Entry
}

// Links are the static URLs of the info commands.
type Links struct {
	GitHub string
	Invite string
}

// Config holds the dependencies of [RadioCommands].
type Config struct {
	Sessions Sessions
	Program  Program

	// VoiceChannelOf returns the voice channel a member is connected to.
	VoiceChannelOf func(guildID, userID string) (string, bool)

	// SinkFor returns the sink posting into a text channel.
	SinkFor func(channelID string) subscription.Sink

	Links Links

	// StartTimeout bounds joining voice and announcing the current track.
	StartTimeout time.Duration
}

// RadioCommands holds the dependencies for the radio slash commands.
type RadioCommands struct {
	sessions     Sessions
	program      Program
	voiceOf      func(guildID, userID string) (string, bool)
	sinkFor      func(channelID string) subscription.Sink
	links        Links
	startTimeout time.Duration

	// starts tracks background session starts; tests wait on it.
	starts chan struct{}
}

// NewRadioCommands creates a RadioCommands and registers its handlers with
// router.
func NewRadioCommands(router *discord.CommandRouter, cfg Config) *RadioCommands {
	rc := &RadioCommands{
		sessions:     cfg.Sessions,
		program:      cfg.Program,
		voiceOf:      cfg.VoiceChannelOf,
		sinkFor:      cfg.SinkFor,
		links:        cfg.Links,
		startTimeout: cfg.StartTimeout,
	}
	if rc.links.GitHub == "" {
		rc.links.GitHub = DefaultGitHubURL
	}
	if rc.links.Invite == "" {
		rc.links.Invite = DefaultInviteURL
	}
	if rc.startTimeout <= 0 {
		rc.startTimeout = defaultStartTimeout
	}
	if router != nil {
		rc.Register(router)
	}
	return rc
}

// Register registers every radio command with the router.
func (rc *RadioCommands) Register(router *discord.CommandRouter) {
	for _, def := range rc.Definitions() {
		var h discord.HandlerFunc
		switch def.Name {
		case "play":
			h = rc.handlePlay
		case "stop":
			h = rc.handleStop
		case "program":
			h = rc.handleProgram
		case "github":
			h = rc.handleGitHub
		case "invite":
			h = rc.handleInvite
		}
		router.RegisterCommand(def.Name, def, h)
	}
	router.RegisterAutocomplete("play", rc.autocompleteChannel)
}

// Definitions returns the ApplicationCommand definitions for Discord.
func (rc *RadioCommands) Definitions() []*discordgo.ApplicationCommand {
	return []*discordgo.ApplicationCommand{
		{
			Name:        "play",
			Description: "Start the radio in your voice channel",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:         discordgo.ApplicationCommandOptionString,
					Name:         "channel",
					Description:  "FIP channel to play (default: FIP)",
					Required:     false,
					Autocomplete: true,
				},
			},
		},
		{Name: "stop", Description: "Stop the radio"},
		{Name: "program", Description: "Show what is playing on every FIP channel"},
		{Name: "github", Description: "Get the link to the source code"},
		{Name: "invite", Description: "Get the invite link of the bot"},
	}
}

func (rc *RadioCommands) handleGitHub(r discord.Responder, i *discordgo.InteractionCreate) {
	discord.RespondEphemeral(r, i, rc.links.GitHub)
}

func (rc *RadioCommands) handleInvite(r discord.Responder, i *discordgo.InteractionCreate) {
	discord.RespondEphemeral(r, i, rc.links.Invite)
}

// stringOption returns the value of the named string option, or "".
func stringOption(i *discordgo.InteractionCreate, name string) string {
	for _, opt := range i.ApplicationCommandData().Options {
		if opt.Name == name && opt.Type == discordgo.ApplicationCommandOptionString {
			return opt.StringValue()
		}
	}
	return ""
}
