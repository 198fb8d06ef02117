package stage

import "time"

// Option tunes a Stage's Config before construction.
type Option func(*Config)

// WithMailboxSize overrides the mailbox channel capacity.
func WithMailboxSize(n int) Option { return func(c *Config) { c.MailboxSize = n } }

// WithHighWatermark overrides the backpressure threshold.
func WithHighWatermark(n int) Option { return func(c *Config) { c.HighWatermark = n } }

// WithDrainLimit overrides how many entries a worker drains per pass
// before yielding (spec.md §4.5, "Fairness").
func WithDrainLimit(n int) Option { return func(c *Config) { c.DrainLimit = n } }

// WithReconnectTimeout overrides how long a disconnected actor's record
// survives awaiting reconnection.
func WithReconnectTimeout(d time.Duration) Option { return func(c *Config) { c.ReconnectTimeout = d } }

// Apply runs opts over cfg in order.
func (c *Config) Apply(opts ...Option) *Config {
	for _, opt := range opts {
		opt(c)
	}
	return c
}
