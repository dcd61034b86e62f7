package webmonitor

import "time"

// Config defines the runtime configuration for the web monitor server.
type Config struct {
	Addr              string
	JPEGQuality       int
	KeepaliveInterval time.Duration // SSE comment interval
	MJPEGIdle         time.Duration // Resend the last frame after this long without one
	ActivityLogSize   int
	RequestTimeout    time.Duration // Non-streaming routes only
}

// DefaultConfig returns the kiosk monitor settings.
func DefaultConfig() Config {
	return Config{
		Addr:              ":8080",
		JPEGQuality:       80,
		KeepaliveInterval: 30 * time.Second,
		MJPEGIdle:         5 * time.Second,
		ActivityLogSize:   50,
		RequestTimeout:    10 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.JPEGQuality <= 0 || c.JPEGQuality > 100 {
		c.JPEGQuality = def.JPEGQuality
	}
	if c.KeepaliveInterval <= 0 {
		c.KeepaliveInterval = def.KeepaliveInterval
	}
	if c.MJPEGIdle <= 0 {
		c.MJPEGIdle = def.MJPEGIdle
	}
	if c.ActivityLogSize <= 0 {
		c.ActivityLogSize = def.ActivityLogSize
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = def.RequestTimeout
	}
	return c
}
