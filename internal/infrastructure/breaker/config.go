package breaker

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Config configures circuit breaker behavior.
//
// The breaker trips once at least VolumeThreshold calls were observed in the
// current monitoring window and either FailureThreshold failures were seen, or
// more than SlowFailureRatio of calls failed while the average latency exceeded
// LatencyMultiplier × ExpectedLatency.
type Config struct {
	Name string

	FailureThreshold int
	VolumeThreshold  int
	// RecoveryTimeout is how long the circuit stays open before a probe is allowed.
	RecoveryTimeout time.Duration
	// MonitoringPeriod bounds the counting window while closed. Zero disables decay.
	MonitoringPeriod time.Duration

	ExpectedLatency   time.Duration
	LatencySamples    int
	SlowFailureRatio  float64
	LatencyMultiplier float64

	// EventBuffer sizes the transition notification channel.
	EventBuffer int
}

// DefaultConfig returns the defaults used when a field is left zero.
func DefaultConfig(name string) Config {
	return Config{
		Name:              name,
		FailureThreshold:  5,
		VolumeThreshold:   10,
		RecoveryTimeout:   60 * time.Second,
		MonitoringPeriod:  2 * time.Minute,
		ExpectedLatency:   500 * time.Millisecond,
		LatencySamples:    100,
		SlowFailureRatio:  0.5,
		LatencyMultiplier: 2,
		EventBuffer:       64,
	}
}

// withDefaults fills zero fields from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig(c.Name)
	if c.Name == "" {
		c.Name = "default"
	}
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = d.FailureThreshold
	}
	if c.VolumeThreshold <= 0 {
		c.VolumeThreshold = d.VolumeThreshold
	}
	if c.RecoveryTimeout <= 0 {
		c.RecoveryTimeout = d.RecoveryTimeout
	}
	if c.MonitoringPeriod < 0 {
		c.MonitoringPeriod = 0
	}
	if c.ExpectedLatency <= 0 {
		c.ExpectedLatency = d.ExpectedLatency
	}
	if c.LatencySamples <= 0 {
		c.LatencySamples = d.LatencySamples
	}
	if c.SlowFailureRatio <= 0 {
		c.SlowFailureRatio = d.SlowFailureRatio
	}
	if c.LatencyMultiplier <= 0 {
		c.LatencyMultiplier = d.LatencyMultiplier
	}
	if c.EventBuffer <= 0 {
		c.EventBuffer = d.EventBuffer
	}
	return c
}

// Validate rejects configurations that can never trip or never recover.
func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Name, validation.Required),
		validation.Field(&c.FailureThreshold, validation.Required, validation.Min(1)),
		validation.Field(&c.VolumeThreshold, validation.Required, validation.Min(1)),
		validation.Field(&c.RecoveryTimeout, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&c.MonitoringPeriod, validation.Min(time.Duration(0))),
		validation.Field(&c.ExpectedLatency, validation.Required),
		validation.Field(&c.LatencySamples, validation.Min(1)),
		validation.Field(&c.SlowFailureRatio, validation.Min(0.0), validation.Max(1.0)),
	)
}
