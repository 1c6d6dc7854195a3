package commands

import (
	"context"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/radiobridge/internal/catalog"
	"github.com/MrWong99/radiobridge/internal/discord"
	"github.com/MrWong99/radiobridge/internal/nowplaying"
)

// handleProgram handles /program. Refreshing every channel can outlast the
// interaction deadline, so the reply is deferred.
func (rc *RadioCommands) handleProgram(r discord.Responder, i *discordgo.InteractionCreate) {
	discord.DeferReply(r, i)

	ctx, cancel := context.WithTimeout(context.Background(), defaultProgramTimeout)
	defer cancel()

	entries := rc.program.Snapshot(ctx)
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		lines = append(lines, nowplaying.ProgramLine(e.Channel, e.Track))
	}
	discord.FollowUpEmbed(r, i, discord.ProgramEmbed(lines))
}

// autocompleteChannel suggests catalog channels for the focused option.
func (rc *RadioCommands) autocompleteChannel(r discord.Responder, i *discordgo.InteractionCreate) {
	var input string
	for _, opt := range i.ApplicationCommandData().Options {
		if opt.Focused {
			input = opt.StringValue()
			break
		}
	}

	suggestions := catalog.Suggest(input, maxChoices)
	choices := make([]*discordgo.ApplicationCommandOptionChoice, 0, len(suggestions))
	for _, c := range suggestions {
		choices = append(choices, &discordgo.ApplicationCommandOptionChoice{
			Name:  displayName(c),
			Value: c.String(),
		})
	}
	discord.RespondChoices(r, i, choices)
}

// displayName renders HIP_HOP as "HIP HOP".
func displayName(c catalog.Channel) string {
	return strings.ReplaceAll(c.String(), "_", " ")
}
