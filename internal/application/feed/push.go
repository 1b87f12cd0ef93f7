package feed

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"

	"brotherowl/internal/application/port"
	"brotherowl/internal/domain"
)

var errConnectTimeout = errors.New("push connect timeout")

type subscribeReq struct {
	Key     string `json:"key"`
	Channel string `json:"channel"`
}

// connectPushLocked starts one push attempt. A probe is a health-check
// attempt made from exclusive pull mode: its failure does not count as a retry.
func (c *Controller) connectPushLocked(probe bool) {
	c.closePushLocked()
	c.pushSeq++
	seq := c.pushSeq

	ctx, cancel := context.WithCancel(context.Background())
	c.pushCancel = cancel
	c.dialing = true
	c.probing = probe
	if !probe {
		c.state = StateConnecting
	}

	go c.dialPush(ctx, cancel, seq)
}

// closePushLocked cancels an outstanding dial and closes the open connection.
// Bumping pushSeq turns the old read loop into a no-op.
func (c *Controller) closePushLocked() {
	if c.pushCancel != nil {
		c.pushCancel()
		c.pushCancel = nil
	}
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.pushSeq++
	c.dialing = false
	c.probing = false
	c.gotData = false
}

func (c *Controller) dialPush(ctx context.Context, cancel context.CancelFunc, seq uint64) {
	timedOut := make(chan struct{})
	deadline := c.deps.Clock.AfterFunc(c.cfg.ConnectTimeout, func() {
		close(timedOut)
		cancel()
	})

	conn, err := c.safeDial(ctx)
	deadline.Stop()
	if err != nil {
		select {
		case <-timedOut:
			err = fmt.Errorf("%w after %s: %v", errConnectTimeout, c.cfg.ConnectTimeout, err)
		default:
		}
	}

	if err == nil {
		sub := subscribeReq{Key: c.deps.APIKey(), Channel: c.cfg.Channel}
		if werr := conn.WriteJSON(sub); werr != nil {
			_ = conn.Close()
			err = fmt.Errorf("subscribe: %w", werr)
		}
	}

	c.mu.Lock()
	if seq != c.pushSeq {
		c.mu.Unlock()
		if err == nil {
			_ = conn.Close()
		}
		return
	}
	c.dialing = false
	if err != nil {
		c.pushCancel = nil
		log.Error().Str("feed", feedName).Bool("probe", c.probing).Err(err).Msg("ws dial failed")
		c.onPushFailureLocked(false)
		c.mu.Unlock()
		cancel()
		return
	}
	c.conn = conn
	c.onPushOpenLocked()
	c.mu.Unlock()

	c.readPush(seq, conn)
}

func (c *Controller) safeDial(ctx context.Context) (conn port.StreamConn, err error) {
	if c.deps.Dialer == nil {
		return nil, errors.New("no push dialer configured")
	}
	defer func() {
		if r := recover(); r != nil {
			conn, err = nil, fmt.Errorf("dialer panic: %v", r)
		}
	}()
	conn, err = c.deps.Dialer.Dial(ctx)
	if err == nil && conn == nil {
		err = errors.New("dialer returned no connection")
	}
	return conn, err
}

func (c *Controller) onPushOpenLocked() {
	c.retries = 0
	c.probing = false
	c.gotData = false
	c.state = StatePushConnected
	stopTimer(&c.reconnectTimer)
	if c.pullActive {
		log.Info().Str("feed", feedName).Msg("push confirmed, stopping poll")
	}
	c.stopPullLocked()
	log.Info().Str("feed", feedName).Str("channel", c.cfg.Channel).Msg("ws connected & subscribed")
}

// readPush owns conn until it fails or is superseded.
func (c *Controller) readPush(seq uint64, conn port.StreamConn) {
	for {
		_, b, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			if seq == c.pushSeq {
				wasData := c.gotData
				c.conn = nil
				if c.pushCancel != nil {
					c.pushCancel()
					c.pushCancel = nil
				}
				log.Warn().Str("feed", feedName).Err(err).Msg("ws disconnected")
				c.onPushFailureLocked(!wasData)
			}
			c.mu.Unlock()
			_ = conn.Close()
			return
		}

		p, ok := parsePushMessage(b)
		if !ok {
			continue
		}

		c.mu.Lock()
		if seq != c.pushSeq {
			c.mu.Unlock()
			return
		}
		c.gotData = true
		c.flaps = 0
		c.stampLocked(&p, domain.SourceWebSocket)
		onData := c.onData
		c.mu.Unlock()

		c.deliver(onData, p)
	}
}

// onPushFailureLocked handles a failed dial or a closed connection.
// emptyClose marks a connection that opened but never delivered a payload.
func (c *Controller) onPushFailureLocked(emptyClose bool) {
	if c.probing {
		c.probing = false
		c.state = StateExhaustedFallback
		log.Warn().Str("feed", feedName).Msg("push probe failed, staying on poll")
		return
	}

	if emptyClose {
		c.flaps++
	}
	c.retries++
	attempt := max(c.retries, c.flaps)

	if attempt >= c.cfg.MaxReconnectAttempts {
		c.state = StateExhaustedFallback
		stopTimer(&c.reconnectTimer)
		log.Warn().Str("feed", feedName).Int("attempts", attempt).Msg("push retries exhausted, falling back to poll")
		c.startPullLocked()
		return
	}

	delay := c.cfg.backoff(attempt)
	c.state = StateReconnecting
	log.Warn().Str("feed", feedName).Int("attempt", attempt).
		Int64("delay_ms", delay.Milliseconds()).Msg("ws reconnect scheduled")
	c.schedule(&c.reconnectTimer, delay, func() {
		c.connectPushLocked(false)
	})
}

// parsePushMessage turns one push frame into a payload. Only frames carrying
// a chain object or a bare chain count are payloads; malformed frames,
// provider errors and control frames are dropped.
func parsePushMessage(b []byte) (domain.FeedPayload, bool) {
	b = bytes.TrimSpace(b)
	if !gjson.ValidBytes(b) || !gjson.ParseBytes(b).IsObject() {
		log.Error().Str("feed", feedName).Int("bytes", len(b)).Msg("ws message is not a json object, dropped")
		return domain.FeedPayload{}, false
	}

	if e := gjson.GetBytes(b, "error"); e.Exists() && e.Type != gjson.Null {
		log.Error().Str("feed", feedName).
			Int64("code", e.Get("code").Int()).
			Str("error", e.Get("error").String()).
			Msg("provider error on ws, dropped")
		return domain.FeedPayload{}, false
	}

	var p domain.FeedPayload
	switch {
	case gjson.GetBytes(b, "chain").IsObject():
		p.Chain = json.RawMessage(gjson.GetBytes(b, "chain").Raw)
	case gjson.GetBytes(b, "data.chain").IsObject():
		p.Chain = json.RawMessage(gjson.GetBytes(b, "data.chain").Raw)
	case domain.SummarizeChain(b).Known:
		p.Chain = json.RawMessage(append([]byte(nil), b...))
	default:
		// acks, heartbeats and other control frames carry no chain
		log.Debug().Str("feed", feedName).Int("bytes", len(b)).Msg("ws frame without chain, dropped")
		return domain.FeedPayload{}, false
	}
	if f := gjson.GetBytes(b, "faction"); f.IsObject() {
		p.Faction = json.RawMessage(f.Raw)
	}
	return p, true
}
