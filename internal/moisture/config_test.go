package moisture

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigSettings(t *testing.T) {
	c := DefaultConfig()
	require.NoError(t, c.Validate())

	s, err := c.Settings()
	require.NoError(t, err)
	assert.Equal(t, time.Minute, s.Timing.Interval)
	assert.Equal(t, 15*time.Second, s.Timing.FirstInterval)
	assert.Equal(t, 2*time.Second, s.Timing.FaultRetry)
	assert.Equal(t, 200*time.Millisecond, s.Timing.JoinPoll)
	assert.Equal(t, time.Second, s.Timing.Settle)
	assert.Equal(t, 240, s.MoistureCountdown)
	assert.Equal(t, 1, s.BatteryCountdown)
	assert.Equal(t, 4*time.Hour, s.BatteryInterval)
	assert.Equal(t, 10000, s.MoistureCurve.FullScale())
	assert.Equal(t, 200, s.BatteryCurve.FullScale())
}

func TestInvalidConfig(t *testing.T) {
	cases := map[string]func(c *Config){
		"inverted calibration":   func(c *Config) { c.MoistureMinMV, c.MoistureMaxMV = 2160, 910 },
		"empty battery range":    func(c *Config) { c.BatteryFullMV = c.BatteryEmptyMV },
		"zero interval":          func(c *Config) { c.ProbeIntervalSeconds = 0 },
		"retry not shorter":      func(c *Config) { c.FaultRetrySeconds = c.ProbeIntervalSeconds },
		"zero filter depth":      func(c *Config) { c.FilterDepth = 0 },
		"filter depth too large": func(c *Config) { c.FilterDepth = 33 },
		"battery depth too big":  func(c *Config) { c.BatteryFilterDepth = 1000000000 },
		"negative settle":        func(c *Config) { c.SettleMs = -1 },
		"odd bias":               func(c *Config) { c.SmoothingBias = 1 },
		"shared channel":         func(c *Config) { c.BatteryADCChannel = c.ProbeADCChannel },
		"channel out of range":   func(c *Config) { c.ProbeADCChannel = 4 },
		"silence below interval": func(c *Config) { c.ProbeIntervalSeconds, c.FaultRetrySeconds, c.MaxSilenceMinutes = 600, 2, 5 },
		"divider below one":      func(c *Config) { c.BatteryDivider = 0 },
		"address outside 7 bits": func(c *Config) { c.ADCAddress = 0x80 },
	}
	for name, modify := range cases {
		t.Run(name, func(t *testing.T) {
			c := DefaultConfig()
			modify(&c)
			err := c.Validate()
			var configErr *ConfigError
			require.True(t, errors.As(err, &configErr), "got %v", err)
		})
	}
}

func TestBatteryIntervalDisabled(t *testing.T) {
	c := DefaultConfig()
	c.BatteryIntervalMinutes = 0
	s, err := c.Settings()
	require.NoError(t, err)
	assert.Equal(t, time.Duration(0), s.BatteryInterval)
	assert.Equal(t, 0, s.BatteryCountdown)
}

func TestFilterDepthAtLimit(t *testing.T) {
	c := DefaultConfig()
	c.FilterDepth = maxFilterDepth
	c.BatteryFilterDepth = maxFilterDepth
	s, err := c.Settings()
	require.NoError(t, err)
	assert.Equal(t, maxFilterDepth, s.FilterDepth)
}
