package discord

import "github.com/bwmarrin/discordgo"

// Precondition replies shared by guild-scoped commands.
const (
	GuildOnlyMessage  = "This command can only be done in a guild"
	NotInVoiceMessage = "You must be in a voice channel to do this command"
)

// InGuild reports whether the interaction was sent from a guild channel
// rather than a DM.
func InGuild(i *discordgo.InteractionCreate) bool {
	return i.GuildID != "" && i.Member != nil && i.Member.User != nil
}

// InvokerID returns the ID of the user who triggered the interaction.
func InvokerID(i *discordgo.InteractionCreate) string {
	switch {
	case i.Member != nil && i.Member.User != nil:
		return i.Member.User.ID
	case i.User != nil:
		return i.User.ID
	}
	return ""
}
