package config

import "sync/atomic"

// Live holds the current configuration for readers that must observe hot
// reloads.
type Live struct {
	p atomic.Pointer[Config]
}

func NewLive(cfg *Config) *Live {
	l := &Live{}
	l.p.Store(cfg)
	return l
}

// Get returns the current configuration.
func (l *Live) Get() *Config { return l.p.Load() }

// Swap installs cfg and returns the previous configuration.
func (l *Live) Swap(cfg *Config) *Config { return l.p.Swap(cfg) }
