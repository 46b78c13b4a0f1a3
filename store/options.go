package store

import (
	"github.com/raulk/clock"
	"go.uber.org/zap"
)

// defaultBufferSize is the number of events a subscriber may lag behind
// before further events are dropped for it.
const defaultBufferSize = 100

// Config holds the optional settings of a Store.
type Config struct {
	Clock      clock.Clock
	Logger     *zap.Logger
	BufferSize int
}

// WithClock sets the clock used to schedule TTL expiry.
func WithClock(c clock.Clock) func(*Config) {
	return func(cfg *Config) {
		cfg.Clock = c
	}
}

// WithLogger sets the logger. The global zap logger is used by default.
func WithLogger(l *zap.Logger) func(*Config) {
	return func(cfg *Config) {
		cfg.Logger = l
	}
}

// WithBufferSize sets the per-subscriber event buffer.
func WithBufferSize(n int) func(*Config) {
	return func(cfg *Config) {
		if n > 0 {
			cfg.BufferSize = n
		}
	}
}
