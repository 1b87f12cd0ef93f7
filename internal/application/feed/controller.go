// Package feed keeps a live faction chain feed from the Torn API.
//
// The Controller prefers the streaming (push) transport and falls back to
// HTTP polling (pull) when the stream keeps failing. A periodic health check
// re-promotes the stream and forces a reconnect when no payload arrived for
// too long. Every payload is stamped with LastUpdate and Source, handed to the
// caller's callback and then forwarded to an optional chain monitor.
//
// All state is guarded by a single mutex. Timer callbacks, dial results and
// read-loop events take the lock, check the generation they were issued under
// and become no-ops once a Reconnect, Reset or Stop has moved on.
package feed

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"brotherowl/internal/application/port"
	"brotherowl/internal/domain"
)

const feedName = "torn-chain"

// Deps are the collaborators of a Controller. Monitor and Client are optional.
type Deps struct {
	Dialer  port.StreamDialer
	Fetcher port.ChainFetcher
	Monitor port.ChainMonitor
	Client  port.Messenger // handed to Monitor, never used by the controller itself
	Clock   Clock
	APIKey  func() string // read on every subscription
}

type Controller struct {
	cfg  Config
	deps Deps

	mu     sync.Mutex
	gen    uint64
	state  State
	onData func(domain.FeedPayload)

	retries int // failed push attempts since the last successful open
	flaps   int // push connections that closed before delivering anything

	// push transport
	pushSeq    uint64
	pushCancel func()
	conn       port.StreamConn
	dialing    bool
	probing    bool
	gotData    bool

	// pull transport
	pullActive    bool
	fetching      bool
	manualPending bool
	lastFetch     time.Time

	reconnectTimer Timer
	pollTimer      Timer
	healthTimer    Timer

	startedAt    time.Time
	lastDelivery time.Time
	lastSource   domain.Source
}

func New(cfg Config, deps Deps) *Controller {
	if deps.Clock == nil {
		deps.Clock = WallClock()
	}
	if deps.APIKey == nil {
		deps.APIKey = func() string { return "" }
	}
	return &Controller{
		cfg:  cfg.withDefaults(),
		deps: deps,
	}
}

// Start tears down any previous transports and begins feeding onData.
// The pull transport starts immediately alongside the first push attempt and
// stops as soon as the push transport is open.
func (c *Controller) Start(onData func(domain.FeedPayload)) Handle {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.teardownLocked()
	c.onData = onData
	c.retries, c.flaps = 0, 0
	c.startedAt = c.deps.Clock.Now()

	c.startPullLocked()
	c.connectPushLocked(false)
	c.scheduleHealthLocked()

	log.Info().Str("feed", feedName).Uint64("generation", c.gen).Msg("feed started")
	return Handle(c.gen)
}

// Reconnect drops every transport and restarts from the push transport with a
// fresh retry budget. A nil onData keeps the current callback.
func (c *Controller) Reconnect(onData func(domain.FeedPayload)) Handle {
	c.mu.Lock()
	defer c.mu.Unlock()

	if onData == nil {
		onData = c.onData
	}
	c.restartLocked(onData)
	log.Info().Str("feed", feedName).Uint64("generation", c.gen).Msg("feed reconnecting")
	return Handle(c.gen)
}

// Reset cancels every timer and transport, starts polling right away and
// attempts the push transport after ResetPushDelay.
func (c *Controller) Reset(onData func(domain.FeedPayload)) Handle {
	c.mu.Lock()
	defer c.mu.Unlock()

	if onData == nil {
		onData = c.onData
	}
	c.teardownLocked()
	c.onData = onData
	c.retries, c.flaps = 0, 0
	c.startedAt = c.deps.Clock.Now()
	c.lastFetch = time.Time{}

	c.state = StatePullActive
	c.startPullLocked()
	c.schedule(&c.reconnectTimer, c.cfg.ResetPushDelay, func() {
		c.connectPushLocked(false)
	})
	c.scheduleHealthLocked()

	log.Info().Str("feed", feedName).Uint64("generation", c.gen).
		Dur("push_delay", c.cfg.ResetPushDelay).Msg("feed reset")
	return Handle(c.gen)
}

// RequestUpdate asks for one pull fetch, subject to the poll throttle.
// It works in every state, including while the push transport is open.
func (c *Controller) RequestUpdate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.onData == nil {
		return
	}
	c.manualPending = true
	c.requestPollLocked(true)
}

// Stop tears everything down. The controller can be started again.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.teardownLocked()
	c.onData = nil
	log.Info().Str("feed", feedName).Msg("feed stopped")
}

func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := Status{
		State:      c.state,
		Retries:    c.retries,
		PushOpen:   c.conn != nil,
		PullActive: c.pullActive,
		LastSource: c.lastSource,
		Generation: Handle(c.gen),
	}
	if !c.lastDelivery.IsZero() {
		st.LastUpdate = c.lastDelivery.UnixMilli()
	}
	return st
}

func (c *Controller) restartLocked(onData func(domain.FeedPayload)) {
	c.teardownLocked()
	c.onData = onData
	c.retries, c.flaps = 0, 0
	c.startedAt = c.deps.Clock.Now()

	c.connectPushLocked(false)
	c.scheduleHealthLocked()
}

// teardownLocked invalidates every pending callback of the current generation.
func (c *Controller) teardownLocked() {
	c.gen++
	stopTimer(&c.reconnectTimer)
	stopTimer(&c.pollTimer)
	stopTimer(&c.healthTimer)
	c.closePushLocked()
	c.pullActive = false
	c.fetching = false
	c.manualPending = false
	c.state = StateIdle
}

// schedule replaces the timer in slot. The callback runs under c.mu and is
// dropped when the slot was replaced or the generation changed meanwhile.
func (c *Controller) schedule(slot *Timer, d time.Duration, fn func()) {
	stopTimer(slot)
	gen := c.gen
	var t Timer
	t = c.deps.Clock.AfterFunc(d, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.gen != gen || *slot != t {
			return
		}
		*slot = nil
		fn()
	})
	*slot = t
}

func stopTimer(slot *Timer) {
	if *slot != nil {
		(*slot).Stop()
		*slot = nil
	}
}

// stampLocked finalizes a payload and records the delivery.
func (c *Controller) stampLocked(p *domain.FeedPayload, src domain.Source) {
	now := c.deps.Clock.Now()
	p.LastUpdate = now.UnixMilli()
	p.Source = src
	c.lastDelivery = now
	c.lastSource = src
}

// deliver runs outside c.mu. Neither the callback nor the monitor can disturb
// transport scheduling: panics are recovered and monitor errors only logged.
func (c *Controller) deliver(onData func(domain.FeedPayload), p domain.FeedPayload) {
	if onData != nil {
		if err := safeCall(func() error { onData(p); return nil }); err != nil {
			log.Error().Str("feed", feedName).Err(err).Msg("data callback failed")
		}
	}

	if c.deps.Monitor == nil {
		return
	}
	if err := safeCall(func() error { return c.deps.Monitor.ProcessChainData(c.deps.Client, p) }); err != nil {
		log.Warn().Str("feed", feedName).Str("source", string(p.Source)).Err(err).Msg("chain monitor failed")
	}
}

func safeCall(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}
