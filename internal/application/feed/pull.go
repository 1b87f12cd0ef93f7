package feed

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"brotherowl/internal/application/port"
	"brotherowl/internal/domain"
)

// APIError is implemented by provider-reported errors so they can be logged
// apart from transport failures without importing the client package.
type APIError interface {
	error
	APICode() int
}

func (c *Controller) startPullLocked() {
	if c.state == StateIdle {
		c.state = StatePullActive
	}
	c.pullActive = true
	c.requestPollLocked(false)
}

func (c *Controller) stopPullLocked() {
	c.pullActive = false
	if !c.manualPending {
		stopTimer(&c.pollTimer)
	}
}

// requestPollLocked fetches now when the throttle allows it, otherwise leaves
// exactly one pending fetch at lastFetch+PollInterval. Triggers arriving while
// a fetch is in flight or already pending collapse into it.
func (c *Controller) requestPollLocked(manual bool) {
	if !c.pullActive && !manual {
		return
	}
	if c.fetching || c.pollTimer != nil {
		return
	}

	if !c.lastFetch.IsZero() {
		wait := c.cfg.PollInterval - c.deps.Clock.Now().Sub(c.lastFetch)
		if wait > 0 {
			c.schedule(&c.pollTimer, wait, c.fetchLocked)
			return
		}
	}
	c.fetchLocked()
}

func (c *Controller) fetchLocked() {
	if !c.pullActive && !c.manualPending {
		return
	}
	c.fetching = true
	c.lastFetch = c.deps.Clock.Now()
	go c.fetch(c.gen)
}

func (c *Controller) fetch(gen uint64) {
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.RequestTimeout)
	data, err := c.safeFetch(ctx)
	cancel()

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.fetching = false
	wanted := c.pullActive || c.manualPending
	c.manualPending = false

	// polling keeps itself alive whatever the outcome
	if c.pullActive {
		c.schedule(&c.pollTimer, c.cfg.PollInterval, c.fetchLocked)
	}

	if err != nil {
		c.mu.Unlock()
		logFetchError(err)
		return
	}
	if !wanted {
		c.mu.Unlock()
		return
	}

	p := domain.FeedPayload{Chain: data.Chain, Faction: data.Faction}
	c.stampLocked(&p, domain.SourceHTTP)
	onData := c.onData
	c.mu.Unlock()

	c.deliver(onData, p)
}

func (c *Controller) safeFetch(ctx context.Context) (data *port.ChainData, err error) {
	if c.deps.Fetcher == nil {
		return nil, errors.New("no chain fetcher configured")
	}
	defer func() {
		if r := recover(); r != nil {
			data, err = nil, fmt.Errorf("fetcher panic: %v", r)
		}
	}()
	data, err = c.deps.Fetcher.FetchChain(ctx)
	if err == nil && (data == nil || len(data.Chain) == 0) {
		err = errors.New("response carried no chain")
	}
	return data, err
}

func logFetchError(err error) {
	var apiErr APIError
	if errors.As(err, &apiErr) {
		log.Error().Str("feed", feedName).Int("code", apiErr.APICode()).Err(err).Msg("provider error on poll")
		return
	}
	log.Error().Str("feed", feedName).Err(err).Msg("poll failed")
}
