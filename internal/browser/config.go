package browser

import (
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultURL is the on-demand pricing page scraped by default.
	DefaultURL = "https://aws.amazon.com/ec2/pricing/on-demand/"

	// DefaultOpTimeout bounds a single page operation (a navigation, a
	// filter change, one page of extraction). MaxOpTimeout is the hard
	// ceiling; values above it are clamped.
	DefaultOpTimeout = 30 * time.Second
	MaxOpTimeout     = 30 * time.Second

	// DefaultSettle is the pause inserted after interactions that redraw
	// the table. MaxSettle is the hard ceiling.
	DefaultSettle = 500 * time.Millisecond
	MaxSettle     = time.Second
)

// Config holds the per-session settings for a pricing page driver.
type Config struct {
	// URL of the pricing page. Defaults to DefaultURL.
	URL string

	// Headless controls whether Chrome renders to a display. Headless is
	// the production mode; a visible browser is a debugging aid.
	Headless bool

	// OpTimeout bounds each page operation. Zero means DefaultOpTimeout.
	OpTimeout time.Duration

	// Settle is the pause after table-redrawing interactions. Zero means
	// DefaultSettle.
	Settle time.Duration

	Logger *zap.Logger
}

func (c Config) withDefaults() Config {
	if c.URL == "" {
		c.URL = DefaultURL
	}
	if c.OpTimeout <= 0 {
		c.OpTimeout = DefaultOpTimeout
	}
	if c.OpTimeout > MaxOpTimeout {
		c.OpTimeout = MaxOpTimeout
	}
	if c.Settle <= 0 {
		c.Settle = DefaultSettle
	}
	if c.Settle > MaxSettle {
		c.Settle = MaxSettle
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	return c
}
