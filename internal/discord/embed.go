package discord

import (
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/radiobridge/internal/nowplaying"
)

// EmbedColor is the FIP pink used on every embed.
const EmbedColor = 0xE3007B

// NowPlayingEmbed renders an announcement.
func NowPlayingEmbed(a nowplaying.Announcement) *discordgo.MessageEmbed {
	e := &discordgo.MessageEmbed{
		Title: a.Title(),
		URL:   a.Track.CanonicalURL,
		Color: EmbedColor,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Album", Value: fieldValue(a.Track.AlbumTitle), Inline: true},
			{Name: "Ends", Value: a.EndsMarkup(), Inline: true},
		},
		Footer: &discordgo.MessageEmbedFooter{Text: a.Footer()},
	}
	if a.Track.CoverURL != "" {
		e.Image = &discordgo.MessageEmbedImage{URL: a.Track.CoverURL}
	}
	return e
}

// ProgramEmbed renders the program overview, one line per channel.
func ProgramEmbed(lines []string) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       "Program",
		Description: strings.Join(lines, "\n"),
		Color:       EmbedColor,
	}
}

// fieldValue substitutes a placeholder; Discord rejects empty field values.
func fieldValue(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
