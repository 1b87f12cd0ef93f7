// Package discord answers operator commands sent as Discord text messages.
package discord

import (
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog/log"

	"brotherowl/internal/application/feed"
	"brotherowl/internal/application/port"
	"brotherowl/internal/domain"
)

// FeedController is the part of *feed.Controller operators can drive.
type FeedController interface {
	Status() feed.Status
	Reconnect(onData func(domain.FeedPayload)) feed.Handle
	Reset(onData func(domain.FeedPayload)) feed.Handle
	RequestUpdate()
}

// ChainReader exposes the last chain seen by the monitor.
type ChainReader interface {
	Latest() (domain.ChainSummary, domain.Source, bool)
}

type Handler struct {
	prefix string
	admins map[string]struct{}
	feed   FeedController
	chain  ChainReader
	now    func() time.Time
}

func NewHandler(prefix string, adminIDs []string, ctrl FeedController, chain ChainReader) *Handler {
	admins := make(map[string]struct{}, len(adminIDs))
	for _, id := range adminIDs {
		admins[id] = struct{}{}
	}
	return &Handler{
		prefix: prefix,
		admins: admins,
		feed:   ctrl,
		chain:  chain,
		now:    time.Now,
	}
}

// Receive is registered with discordgo's AddHandler.
func (h *Handler) Receive(s *discordgo.Session, m *discordgo.MessageCreate) {
	selfID := ""
	if s.State != nil && s.State.User != nil {
		selfID = s.State.User.ID
	}
	h.Handle(s, selfID, m)
}

func (h *Handler) Handle(client port.Messenger, selfID string, m *discordgo.MessageCreate) {
	if m == nil || m.Message == nil || m.Author == nil {
		return
	}
	// Reject my own messages and other bots
	if m.Author.ID == selfID || m.Author.Bot {
		return
	}

	cmd := Parse(h.prefix, m.Content)
	if cmd == CommandNone {
		return
	}
	log.Info().Str("user", m.Author.ID).Str("content", m.Content).Msg("operator command")

	if cmd.Mutating() && !h.isAdmin(m.Author.ID) {
		h.reply(client, m.ChannelID, "Only feed admins can do that.")
		return
	}

	var out string
	switch cmd {
	case CommandStatus:
		out = h.status()
	case CommandReconnect:
		g := h.feed.Reconnect(nil)
		out = fmt.Sprintf("Reconnecting the chain feed (generation %d).", g)
	case CommandReset:
		g := h.feed.Reset(nil)
		out = fmt.Sprintf("Feed reset, polling now and retrying the stream shortly (generation %d).", g)
	case CommandRefresh:
		h.feed.RequestUpdate()
		out = "Refresh requested."
	case CommandHelp:
		out = h.help()
	default:
		out = "Unknown command.\n" + h.help()
	}
	h.reply(client, m.ChannelID, out)
}

func (h *Handler) isAdmin(id string) bool {
	_, ok := h.admins[id]
	return ok
}

func (h *Handler) status() string {
	st := h.feed.Status()

	var sb strings.Builder
	fmt.Fprintf(&sb, "Feed: **%s**", st.State)
	if st.PushOpen {
		sb.WriteString(", stream open")
	}
	if st.PullActive {
		sb.WriteString(", polling")
	}
	if st.Retries > 0 {
		fmt.Fprintf(&sb, ", %d failed attempts", st.Retries)
	}
	if st.LastUpdate > 0 {
		age := h.now().Sub(time.UnixMilli(st.LastUpdate)).Truncate(time.Second)
		fmt.Fprintf(&sb, "\nLast update %s ago via %s", age, st.LastSource)
	} else {
		sb.WriteString("\nNo data yet")
	}

	if h.chain != nil {
		if sum, _, ok := h.chain.Latest(); ok {
			fmt.Fprintf(&sb, "\nChain %d", sum.Current)
			if sum.Max > 0 {
				fmt.Fprintf(&sb, "/%d", sum.Max)
			}
			if sum.Current > 0 {
				fmt.Fprintf(&sb, ", timeout %ds", sum.Timeout)
			}
		}
	}
	return sb.String()
}

func (h *Handler) help() string {
	return fmt.Sprintf("`%[1]s status` `%[1]s reconnect` `%[1]s reset` `%[1]s refresh`", h.prefix)
}

func (h *Handler) reply(client port.Messenger, channelID, content string) {
	if _, err := client.ChannelMessageSend(channelID, content); err != nil {
		log.Error().Err(err).Str("channel", channelID).Msg("discord reply failed")
	}
}
