package discord

import (
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"

	"brotherowl/internal/application/feed"
	"brotherowl/internal/domain"
)

type fakeMessenger struct {
	sent []string
}

func (m *fakeMessenger) ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	m.sent = append(m.sent, content)
	return &discordgo.Message{}, nil
}

type fakeFeed struct {
	status     feed.Status
	reconnects int
	resets     int
	refreshes  int
}

func (f *fakeFeed) Status() feed.Status { return f.status }
func (f *fakeFeed) Reconnect(onData func(domain.FeedPayload)) feed.Handle {
	f.reconnects++
	return 7
}
func (f *fakeFeed) Reset(onData func(domain.FeedPayload)) feed.Handle {
	f.resets++
	return 8
}
func (f *fakeFeed) RequestUpdate() { f.refreshes++ }

type fakeChain struct{ sum domain.ChainSummary }

func (c fakeChain) Latest() (domain.ChainSummary, domain.Source, bool) {
	return c.sum, domain.SourceHTTP, true
}

func message(author, content string) *discordgo.MessageCreate {
	return &discordgo.MessageCreate{Message: &discordgo.Message{
		ChannelID: "ops",
		Content:   content,
		Author:    &discordgo.User{ID: author},
	}}
}

func TestParse(t *testing.T) {
	tests := []struct {
		content string
		want    Command
	}{
		{"hello", CommandNone},
		{"", CommandNone},
		{"!feedx status", CommandNone},
		{"!feed", CommandStatus},
		{"!feed status", CommandStatus},
		{"  !FEED   Reconnect ", CommandReconnect},
		{"!feed reset", CommandReset},
		{"!feed refresh", CommandRefresh},
		{"!feed help", CommandHelp},
		{"!feed explode", CommandUnknown},
	}
	for _, tt := range tests {
		if got := Parse("!feed", tt.content); got != tt.want {
			t.Errorf("Parse(%q) = %d, want %d", tt.content, got, tt.want)
		}
	}
}

func TestHandlerAdminCommands(t *testing.T) {
	f := &fakeFeed{}
	h := NewHandler("!feed", []string{"admin"}, f, nil)
	client := &fakeMessenger{}

	h.Handle(client, "bot", message("admin", "!feed reconnect"))
	h.Handle(client, "bot", message("admin", "!feed reset"))
	h.Handle(client, "bot", message("admin", "!feed refresh"))

	if f.reconnects != 1 || f.resets != 1 || f.refreshes != 1 {
		t.Errorf("unexpected calls %+v", f)
	}
	if len(client.sent) != 3 || !strings.Contains(client.sent[0], "generation 7") {
		t.Errorf("unexpected replies %q", client.sent)
	}
}

func TestHandlerRejectsNonAdmin(t *testing.T) {
	f := &fakeFeed{}
	h := NewHandler("!feed", []string{"admin"}, f, nil)
	client := &fakeMessenger{}

	h.Handle(client, "bot", message("someone", "!feed reset"))

	if f.resets != 0 {
		t.Error("non-admin must not reset the feed")
	}
	if len(client.sent) != 1 || !strings.Contains(client.sent[0], "Only feed admins") {
		t.Errorf("unexpected replies %q", client.sent)
	}
}

func TestHandlerIgnoresSelfAndOtherMessages(t *testing.T) {
	f := &fakeFeed{}
	h := NewHandler("!feed", []string{"bot"}, f, nil)
	client := &fakeMessenger{}

	h.Handle(client, "bot", message("bot", "!feed reset"))
	h.Handle(client, "bot", message("admin", "good morning"))

	bot := message("other-bot", "!feed status")
	bot.Author.Bot = true
	h.Handle(client, "bot", bot)

	if f.resets != 0 || len(client.sent) != 0 {
		t.Errorf("expected nothing to happen, got resets=%d replies=%q", f.resets, client.sent)
	}
}

func TestHandlerStatus(t *testing.T) {
	now := time.UnixMilli(1_700_000_060_000)
	f := &fakeFeed{status: feed.Status{
		State:      feed.StateExhaustedFallback,
		Retries:    3,
		PullActive: true,
		LastUpdate: 1_700_000_000_000,
		LastSource: domain.SourceHTTP,
	}}
	h := NewHandler("!feed", nil, f, fakeChain{sum: domain.ChainSummary{Current: 42, Max: 100, Timeout: 180, Known: true}})
	h.now = func() time.Time { return now }
	client := &fakeMessenger{}

	h.Handle(client, "bot", message("anyone", "!feed status"))

	if len(client.sent) != 1 {
		t.Fatalf("expected one reply, got %q", client.sent)
	}
	out := client.sent[0]
	for _, want := range []string{"exhausted-fallback", "polling", "3 failed attempts", "1m0s ago via http", "Chain 42/100", "timeout 180s"} {
		if !strings.Contains(out, want) {
			t.Errorf("status %q missing %q", out, want)
		}
	}
}
