package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/radiobridge/internal/catalog"
	"github.com/MrWong99/radiobridge/internal/discord"
	"github.com/MrWong99/radiobridge/internal/relay"
)

// Replies of /play and /stop.
const (
	StartingMessage      = "Starting the radio..."
	StoppingMessage      = "Stopping the radio..."
	NoSessionMessage     = "No radio was start in this server"
	SessionActiveMessage = "The radio is already playing in this server, use /stop first"
	VoiceFailedMessage   = "Failed to connect to the voice channel, please make sure I have the right permissions"
	StreamFailedMessage  = "Failed to start the radio stream, please try again later"
)

// handlePlay handles /play [channel].
func (rc *RadioCommands) handlePlay(r discord.Responder, i *discordgo.InteractionCreate) {
	if !discord.InGuild(i) {
		discord.RespondEphemeral(r, i, discord.GuildOnlyMessage)
		return
	}
	voiceID, ok := rc.voiceOf(i.GuildID, discord.InvokerID(i))
	if !ok {
		discord.RespondEphemeral(r, i, discord.NotInVoiceMessage)
		return
	}
	ch, err := catalog.Resolve(stringOption(i, "channel"))
	if err != nil {
		discord.RespondEphemeral(r, i, fmt.Sprintf("Unknown channel %q, pick one of the suggestions", stringOption(i, "channel")))
		return
	}
	if _, active := rc.sessions.Active(i.GuildID); active {
		discord.RespondEphemeral(r, i, SessionActiveMessage)
		return
	}

	discord.RespondPublic(r, i, StartingMessage)

	req := relay.Request{
		GuildID:        i.GuildID,
		VoiceChannelID: voiceID,
		DestinationID:  i.ChannelID,
		Channel:        ch,
		Sink:           rc.sinkFor(i.ChannelID),
	}
	go rc.start(req)
}

// start runs the session start in the background and reports failures into
// the text channel the command was sent from.
func (rc *RadioCommands) start(req relay.Request) {
	if rc.starts != nil {
		defer func() { rc.starts <- struct{}{} }()
	}

	ctx, cancel := context.WithTimeout(context.Background(), rc.startTimeout)
	defer cancel()

	_, err := rc.sessions.Start(ctx, req)
	if err == nil {
		return
	}
	slog.Warn("commands: failed to start radio",
		"guild_id", req.GuildID,
		"channel", req.Channel.String(),
		"err", err)

	nctx, ncancel := context.WithTimeout(context.Background(), defaultNotifyTimeout)
	defer ncancel()
	if err := req.Sink.Notify(nctx, startFailureMessage(err)); err != nil {
		slog.Warn("commands: failed to report start failure", "guild_id", req.GuildID, "err", err)
	}
}

func startFailureMessage(err error) string {
	switch {
	case errors.Is(err, relay.ErrVoiceConnect):
		return VoiceFailedMessage
	case errors.Is(err, relay.ErrSessionActive):
		return SessionActiveMessage
	case errors.Is(err, relay.ErrStreamRelay):
		return StreamFailedMessage
	default:
		return fmt.Sprintf("Error: %v", err)
	}
}

// handleStop handles /stop.
func (rc *RadioCommands) handleStop(r discord.Responder, i *discordgo.InteractionCreate) {
	if i.GuildID == "" {
		discord.RespondEphemeral(r, i, discord.GuildOnlyMessage)
		return
	}
	if _, active := rc.sessions.Active(i.GuildID); !active {
		discord.RespondEphemeral(r, i, NoSessionMessage)
		return
	}

	discord.RespondPublic(r, i, StoppingMessage)
	if err := rc.sessions.Stop(i.GuildID); err != nil && !errors.Is(err, relay.ErrNoSession) {
		slog.Warn("commands: failed to stop radio", "guild_id", i.GuildID, "err", err)
	}
}
