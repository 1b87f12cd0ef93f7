package feed

import "time"

// Config controls retry, throttle and health-check timings of the Controller.
type Config struct {
	Channel              string        // push subscription channel
	MaxReconnectAttempts int           // consecutive push failures before exclusive pull
	BaseDelay            time.Duration // first reconnect delay, doubled per attempt
	MaxDelay             time.Duration // reconnect delay cap
	ConnectTimeout       time.Duration // push open deadline
	PollInterval         time.Duration // minimum gap between pull requests
	RequestTimeout       time.Duration // single pull request deadline
	HealthCheckInterval  time.Duration
	StaleAfter           time.Duration // force reconnect after this long without a payload; 0 disables
	ResetPushDelay       time.Duration // push attempt delay after Reset
}

// DefaultConfig fills the zero fields of a caller supplied Config. StaleAfter
// is the exception: zero keeps the staleness check off.
var DefaultConfig = Config{
	Channel:              "faction:chain",
	MaxReconnectAttempts: 3,
	BaseDelay:            1 * time.Second,
	MaxDelay:             30 * time.Second,
	ConnectTimeout:       10 * time.Second,
	PollInterval:         30 * time.Second,
	RequestTimeout:       15 * time.Second,
	HealthCheckInterval:  60 * time.Second,
	StaleAfter:           5 * time.Minute,
	ResetPushDelay:       5 * time.Second,
}

func (c Config) withDefaults() Config {
	d := DefaultConfig
	if c.Channel == "" {
		c.Channel = d.Channel
	}
	if c.MaxReconnectAttempts <= 0 {
		c.MaxReconnectAttempts = d.MaxReconnectAttempts
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = d.BaseDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = d.MaxDelay
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = d.ConnectTimeout
	}
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = d.RequestTimeout
	}
	if c.HealthCheckInterval <= 0 {
		c.HealthCheckInterval = d.HealthCheckInterval
	}
	if c.StaleAfter < 0 {
		c.StaleAfter = 0
	}
	if c.ResetPushDelay <= 0 {
		c.ResetPushDelay = d.ResetPushDelay
	}
	return c
}

// backoff returns BaseDelay * 2^(attempt-1), capped at MaxDelay.
func (c Config) backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := c.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= c.MaxDelay {
			return c.MaxDelay
		}
	}
	return minDur(delay, c.MaxDelay)
}

func minDur(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
