package port

import (
	"context"
	"encoding/json"
)

// StreamConn is an open push connection. *websocket.Conn satisfies it.
type StreamConn interface {
	WriteJSON(v any) error
	ReadMessage() (messageType int, p []byte, err error)
	Close() error
}

// StreamDialer opens the provider's streaming endpoint.
// Dial must return once the connection is open or ctx is done.
type StreamDialer interface {
	Dial(ctx context.Context) (StreamConn, error)
}

// ChainData is one pull transport response with the provider error already split off.
type ChainData struct {
	Chain   json.RawMessage
	Faction json.RawMessage // nil when the response carried no faction fields
}

// ChainFetcher polls the provider's faction chain resource.
type ChainFetcher interface {
	FetchChain(ctx context.Context) (*ChainData, error)
}
