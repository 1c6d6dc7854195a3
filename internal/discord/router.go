package discord

import (
	"cmp"
	"log/slog"
	"runtime/debug"
	"slices"
	"sync"

	"github.com/bwmarrin/discordgo"
)

// HandlerFunc handles one slash command or autocomplete interaction.
type HandlerFunc func(r Responder, i *discordgo.InteractionCreate)

// route is everything the router knows about one key.
type route struct {
	def          *discordgo.ApplicationCommand
	run          HandlerFunc
	autocomplete HandlerFunc
}

// CommandRouter maps interactions to handlers. Keys are a command name, or
// "name/sub" for a subcommand.
type CommandRouter struct {
	mu     sync.RWMutex
	routes map[string]*route
}

// NewCommandRouter returns a router without routes.
func NewCommandRouter() *CommandRouter {
	return &CommandRouter{routes: make(map[string]*route)}
}

func (r *CommandRouter) entry(key string) *route {
	rt, ok := r.routes[key]
	if !ok {
		rt = &route{}
		r.routes[key] = rt
	}
	return rt
}

// RegisterCommand routes key to handler. def is what gets published to
// Discord; pass nil for a key whose definition is registered elsewhere.
func (r *CommandRouter) RegisterCommand(key string, def *discordgo.ApplicationCommand, handler HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rt := r.entry(key)
	rt.def, rt.run = def, handler
}

// RegisterAutocomplete routes autocomplete requests for key to handler.
func (r *CommandRouter) RegisterAutocomplete(key string, handler HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entry(key).autocomplete = handler
}

// ApplicationCommands lists the distinct command definitions by name.
func (r *CommandRouter) ApplicationCommands() []*discordgo.ApplicationCommand {
	r.mu.RLock()
	defer r.mu.RUnlock()

	byName := make(map[string]*discordgo.ApplicationCommand, len(r.routes))
	for _, rt := range r.routes {
		if rt.def != nil {
			byName[rt.def.Name] = rt.def
		}
	}
	defs := make([]*discordgo.ApplicationCommand, 0, len(byName))
	for _, def := range byName {
		defs = append(defs, def)
	}
	slices.SortFunc(defs, func(a, b *discordgo.ApplicationCommand) int {
		return cmp.Compare(a.Name, b.Name)
	})
	return defs
}

// Handle runs the handler routed for i. Unknown commands get an ephemeral
// notice and unknown autocomplete requests an empty choice list. A panicking
// handler is logged and the user told something went wrong.
func (r *CommandRouter) Handle(resp Responder, i *discordgo.InteractionCreate) {
	isAutocomplete := i.Type == discordgo.InteractionApplicationCommandAutocomplete
	if i.Type != discordgo.InteractionApplicationCommand && !isAutocomplete {
		slog.Debug("discord: ignoring interaction", "type", i.Type)
		return
	}

	key := routeKey(i.ApplicationCommandData())
	r.mu.RLock()
	var h HandlerFunc
	if rt, ok := r.routes[key]; ok {
		h = rt.run
		if isAutocomplete {
			h = rt.autocomplete
		}
	}
	r.mu.RUnlock()

	switch {
	case h != nil:
		defer recoverHandler(resp, i, key, isAutocomplete)
		h(resp, i)
	case isAutocomplete:
		RespondChoices(resp, i, nil)
	default:
		slog.Warn("discord: unknown command", "key", key)
		RespondEphemeral(resp, i, "Unknown command.")
	}
}

func recoverHandler(resp Responder, i *discordgo.InteractionCreate, key string, isAutocomplete bool) {
	v := recover()
	if v == nil {
		return
	}
	slog.Error("discord: command handler panicked", "key", key, "panic", v, "stack", string(debug.Stack()))
	if !isAutocomplete {
		RespondEphemeral(resp, i, "Something went wrong.")
	}
}

func routeKey(data discordgo.ApplicationCommandInteractionData) string {
	if len(data.Options) > 0 && data.Options[0].Type == discordgo.ApplicationCommandOptionSubCommand {
		return data.Name + "/" + data.Options[0].Name
	}
	return data.Name
}
