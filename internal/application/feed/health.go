package feed

import "github.com/rs/zerolog/log"

func (c *Controller) scheduleHealthLocked() {
	c.schedule(&c.healthTimer, c.cfg.HealthCheckInterval, c.healthCheckLocked)
}

// healthCheckLocked forces a reconnect on a stale feed and otherwise probes
// the push transport while polling is the exclusive source.
func (c *Controller) healthCheckLocked() {
	c.scheduleHealthLocked()

	now := c.deps.Clock.Now()
	ref := c.lastDelivery
	if ref.Before(c.startedAt) {
		ref = c.startedAt
	}
	if c.cfg.StaleAfter > 0 && now.Sub(ref) > c.cfg.StaleAfter {
		log.Warn().Str("feed", feedName).Dur("silent_for", now.Sub(ref)).Msg("feed stale, forcing reconnect")
		c.restartLocked(c.onData)
		return
	}

	if c.state == StateExhaustedFallback && !c.dialing {
		log.Info().Str("feed", feedName).Msg("probing push transport")
		c.connectPushLocked(true)
	}
}
