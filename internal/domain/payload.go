package domain

import (
	"encoding/json"

	"github.com/tidwall/gjson"
)

// Source identifies the transport that produced a payload.
type Source string

const (
	SourceWebSocket Source = "websocket"
	SourceHTTP      Source = "http"
)

func (s Source) Valid() bool {
	return s == SourceWebSocket || s == SourceHTTP
}

// FeedPayload is the normalized unit handed to feed consumers.
// Chain and Faction are provider-defined and passed through untouched.
type FeedPayload struct {
	Chain      json.RawMessage `json:"chain"`
	Faction    json.RawMessage `json:"faction,omitempty"`
	LastUpdate int64           `json:"lastUpdate"` // unix ms, set by the controller
	Source     Source          `json:"source"`
}

// ChainSummary is the small subset of chain fields that are read for logging and alerting.
type ChainSummary struct {
	Current  int64
	Max      int64
	Timeout  int64 // seconds until the chain breaks
	Cooldown int64
	Known    bool // false when chain.current was absent
}

// Summary reads chain.current/timeout/max/cooldown without assuming they exist.
func (p FeedPayload) Summary() ChainSummary {
	return SummarizeChain(p.Chain)
}

func SummarizeChain(raw []byte) ChainSummary {
	if len(raw) == 0 || !gjson.ValidBytes(raw) {
		return ChainSummary{}
	}
	res := gjson.GetManyBytes(raw, "current", "max", "timeout", "cooldown")
	return ChainSummary{
		Current:  res[0].Int(),
		Max:      res[1].Int(),
		Timeout:  res[2].Int(),
		Cooldown: res[3].Int(),
		Known:    res[0].Exists(),
	}
}
