package port

import (
	"github.com/bwmarrin/discordgo"

	"brotherowl/internal/domain"
)

// Messenger is the slice of a Discord session the chain monitor needs.
// *discordgo.Session satisfies it.
type Messenger interface {
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// ChainMonitor reacts to chain payloads (alerts, persistence).
// client may be nil when the bot runs without a Discord session.
type ChainMonitor interface {
	ProcessChainData(client Messenger, payload domain.FeedPayload) error
}
