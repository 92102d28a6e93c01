package config

import "sync/atomic"

var cfg atomic.Value

func init() {
	c := Default()
	cfg.Store(&c)
}

// Load returns the current process-wide config. Treat the result as
// read-only; callers that need to change it should use Update.
func Load() *Config {
	return cfg.Load().(*Config)
}

// Update applies mut to a copy of the current config and swaps it in
// atomically, returning the new value.
func Update(mut func(*Config)) *Config {
	curr := Load()
	next := *curr
	mut(&next)
	cfg.Store(&next)
	return &next
}
