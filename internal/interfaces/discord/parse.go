package discord

import "strings"

type Command int

const (
	CommandNone Command = iota
	CommandStatus
	CommandReconnect
	CommandReset
	CommandRefresh
	CommandHelp
	CommandUnknown
)

var commandNames = map[string]Command{
	"status":    CommandStatus,
	"reconnect": CommandReconnect,
	"reset":     CommandReset,
	"refresh":   CommandRefresh,
	"help":      CommandHelp,
}

// Mutating commands change the feed and are reserved for admins.
func (c Command) Mutating() bool {
	return c == CommandReconnect || c == CommandReset || c == CommandRefresh
}

// Parse extracts the command from a message. CommandNone means the message
// was not meant for the bot.
func Parse(prefix, content string) Command {
	fields := strings.Fields(content)
	if len(fields) == 0 || !strings.EqualFold(fields[0], prefix) {
		return CommandNone
	}
	if len(fields) == 1 {
		return CommandStatus
	}
	if cmd, ok := commandNames[strings.ToLower(fields[1])]; ok {
		return cmd
	}
	return CommandUnknown
}
