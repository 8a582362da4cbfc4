package moisture

import (
	"os"
	"path/filepath"
	"time"

	goconfig "github.com/TheCacophonyProject/go-config"
	"github.com/google/go-cmp/cmp"
	"github.com/rjeczalik/notify"
)

const (
	configKey      = "soil-moisture"
	maxFilterDepth = 32
)

// Config is the [soil-moisture] section of the device config file.
type Config struct {
	ProbeIntervalSeconds   int `mapstructure:"probe-interval-seconds"`
	FirstIntervalSeconds   int `mapstructure:"first-interval-seconds"`
	FaultRetrySeconds      int `mapstructure:"fault-retry-seconds"`
	JoinPollMs             int `mapstructure:"join-poll-ms"`
	SettleMs               int `mapstructure:"settle-ms"`
	StabilityReads         int `mapstructure:"stability-reads"`
	StabilityDeltaMV       int `mapstructure:"stability-delta-mv"`
	StabilityIntervalMs    int `mapstructure:"stability-interval-ms"`
	FaultThresholdMV       int `mapstructure:"fault-threshold-mv"`
	FilterDepth            int `mapstructure:"filter-depth"`
	BatteryFilterDepth     int `mapstructure:"battery-filter-depth"`
	SmoothingBias          int `mapstructure:"smoothing-bias"`
	MaxSilenceMinutes      int `mapstructure:"max-silence-minutes"`
	MoistureMinMV          int `mapstructure:"moisture-min-mv"`
	MoistureMaxMV          int `mapstructure:"moisture-max-mv"`
	BatteryEmptyMV         int `mapstructure:"battery-empty-mv"`
	BatteryFullMV          int `mapstructure:"battery-full-mv"`
	BatteryIntervalMinutes int `mapstructure:"battery-interval-minutes"`

	ProbePowerPin     string `mapstructure:"probe-power-pin"`
	LEDPin            string `mapstructure:"led-pin"`
	ADCAddress        int    `mapstructure:"adc-address"`
	ProbeADCChannel   int    `mapstructure:"probe-adc-channel"`
	BatteryADCChannel int    `mapstructure:"battery-adc-channel"`
	BatteryDivider    int    `mapstructure:"battery-divider"`

	MQTTBroker      string `mapstructure:"mqtt-broker"`
	MQTTTopicPrefix string `mapstructure:"mqtt-topic-prefix"`
	MQTTClientID    string `mapstructure:"mqtt-client-id"`
	Events          bool   `mapstructure:"events"`
	DbusSignals     bool   `mapstructure:"dbus-signals"`
	HTTPAddress     string `mapstructure:"http-address"`
}

func DefaultConfig() Config {
	return Config{
		ProbeIntervalSeconds:   60,
		FirstIntervalSeconds:   15,
		FaultRetrySeconds:      2,
		JoinPollMs:             200,
		SettleMs:               1000,
		StabilityReads:         10,
		StabilityDeltaMV:       100,
		StabilityIntervalMs:    100,
		FaultThresholdMV:       50,
		FilterDepth:            4,
		BatteryFilterDepth:     4,
		SmoothingBias:          2,
		MaxSilenceMinutes:      240,
		MoistureMinMV:          910,
		MoistureMaxMV:          2160,
		BatteryEmptyMV:         1600,
		BatteryFullMV:          2800,
		BatteryIntervalMinutes: 240,

		ProbePowerPin:     "GPIO16",
		LEDPin:            "GPIO26",
		ADCAddress:        0x48,
		ProbeADCChannel:   0,
		BatteryADCChannel: 1,
		BatteryDivider:    1,

		MQTTTopicPrefix: "soil-moisture",
		DbusSignals:     true,
	}
}

func ParseConfig(configDir string) (*Config, error) {
	conf, err := goconfig.New(configDir)
	if err != nil {
		return nil, err
	}
	c := DefaultConfig()
	if err := conf.Unmarshal(configKey, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// Settings is a validated Config in the units the engine works in.
type Settings struct {
	Timing             Timing
	FaultThresholdMV   int
	FilterDepth        int
	BatteryFilterDepth int
	SmoothingBias      int
	MoistureCurve      Curve
	BatteryCurve       Curve
	MoistureCountdown  int
	BatteryCountdown   int
	BatteryInterval    time.Duration
}

func (s *Settings) moisturePipeline() *Pipeline {
	policy := NewReportPolicy(s.MoistureCountdown, 100, 10, s.MoistureCurve.FullScale())
	return NewPipeline(s.FilterDepth, s.MoistureCurve, s.SmoothingBias, policy)
}

func (s *Settings) batteryPipeline() *Pipeline {
	policy := NewReportPolicy(s.BatteryCountdown, 2, 1, s.BatteryCurve.FullScale())
	return NewPipeline(s.BatteryFilterDepth, s.BatteryCurve, s.SmoothingBias, policy)
}

// Validate checks the config, returning a *ConfigError for the first problem.
func (c *Config) Validate() error {
	_, err := c.Settings()
	return err
}

func (c *Config) Settings() (*Settings, error) {
	positive := []struct {
		name  string
		value int
	}{
		{"probe-interval-seconds", c.ProbeIntervalSeconds},
		{"fault-retry-seconds", c.FaultRetrySeconds},
		{"join-poll-ms", c.JoinPollMs},
		{"filter-depth", c.FilterDepth},
		{"battery-filter-depth", c.BatteryFilterDepth},
		{"max-silence-minutes", c.MaxSilenceMinutes},
	}
	for _, p := range positive {
		if p.value <= 0 {
			return nil, NewConfigError("%s must be positive, got %d", p.name, p.value)
		}
	}
	for _, p := range []struct {
		name  string
		value int
	}{
		{"filter-depth", c.FilterDepth},
		{"battery-filter-depth", c.BatteryFilterDepth},
	} {
		if p.value > maxFilterDepth {
			return nil, NewConfigError("%s can be at most %d, got %d", p.name, maxFilterDepth, p.value)
		}
	}
	nonNegative := []struct {
		name  string
		value int
	}{
		{"first-interval-seconds", c.FirstIntervalSeconds},
		{"settle-ms", c.SettleMs},
		{"stability-reads", c.StabilityReads},
		{"stability-delta-mv", c.StabilityDeltaMV},
		{"stability-interval-ms", c.StabilityIntervalMs},
		{"fault-threshold-mv", c.FaultThresholdMV},
		{"battery-interval-minutes", c.BatteryIntervalMinutes},
	}
	for _, p := range nonNegative {
		if p.value < 0 {
			return nil, NewConfigError("%s can not be negative, got %d", p.name, p.value)
		}
	}
	if c.SmoothingBias != 0 && c.SmoothingBias != 2 {
		return nil, NewConfigError("smoothing-bias must be 0 or 2, got %d", c.SmoothingBias)
	}
	if c.FaultRetrySeconds >= c.ProbeIntervalSeconds {
		return nil, NewConfigError("fault-retry-seconds (%d) must be shorter than probe-interval-seconds (%d)",
			c.FaultRetrySeconds, c.ProbeIntervalSeconds)
	}
	if c.ProbeADCChannel < 0 || c.ProbeADCChannel > 3 || c.BatteryADCChannel < 0 || c.BatteryADCChannel > 3 {
		return nil, NewConfigError("ADC channels must be 0 to 3")
	}
	if c.ProbeADCChannel == c.BatteryADCChannel {
		return nil, NewConfigError("probe and battery can not share ADC channel %d", c.ProbeADCChannel)
	}
	if c.ADCAddress <= 0 || c.ADCAddress > 0x7F {
		return nil, NewConfigError("invalid ADC address 0x%x", c.ADCAddress)
	}
	if c.BatteryDivider < 1 {
		return nil, NewConfigError("battery-divider must be at least 1, got %d", c.BatteryDivider)
	}

	moistureCurve, err := MoistureCurve(c.MoistureMinMV, c.MoistureMaxMV)
	if err != nil {
		return nil, err
	}
	batteryCurve, err := BatteryCurve(c.BatteryEmptyMV, c.BatteryFullMV)
	if err != nil {
		return nil, err
	}

	interval := time.Duration(c.ProbeIntervalSeconds) * time.Second
	maxSilence := time.Duration(c.MaxSilenceMinutes) * time.Minute
	batteryInterval := time.Duration(c.BatteryIntervalMinutes) * time.Minute
	if maxSilence < interval {
		return nil, NewConfigError("max-silence-minutes is shorter than the probe interval")
	}

	return &Settings{
		Timing: Timing{
			Interval:          interval,
			FirstInterval:     time.Duration(c.FirstIntervalSeconds) * time.Second,
			FaultRetry:        time.Duration(c.FaultRetrySeconds) * time.Second,
			JoinPoll:          time.Duration(c.JoinPollMs) * time.Millisecond,
			Settle:            time.Duration(c.SettleMs) * time.Millisecond,
			StabilityInterval: time.Duration(c.StabilityIntervalMs) * time.Millisecond,
			StabilityReads:    c.StabilityReads,
			StabilityDeltaMV:  c.StabilityDeltaMV,
		},
		FaultThresholdMV:   c.FaultThresholdMV,
		FilterDepth:        c.FilterDepth,
		BatteryFilterDepth: c.BatteryFilterDepth,
		SmoothingBias:      c.SmoothingBias,
		MoistureCurve:      moistureCurve,
		BatteryCurve:       batteryCurve,
		MoistureCountdown:  CountdownFor(maxSilence, interval),
		BatteryCountdown:   CountdownFor(maxSilence, batteryInterval),
		BatteryInterval:    batteryInterval,
	}, nil
}

// checkConfigChanges will compare the config from when first loaded to a new config each time
// the config file is modified.
// If there is a difference then the program will exit and systemd will restart the service, causing
// the new config to be loaded.
func checkConfigChanges(conf *Config, configDir string) error {
	configFilePath := filepath.Join(configDir, goconfig.ConfigFileName)
	fsEvents := make(chan notify.EventInfo, 1)
	if err := notify.Watch(configFilePath, fsEvents, notify.InCloseWrite, notify.InMovedTo); err != nil {
		return err
	}
	defer notify.Stop(fsEvents)

	for {
		<-fsEvents
		newConfig, err := ParseConfig(configDir)
		if err != nil {
			log.Error("error reloading config:", err)
			continue
		}
		diff := cmp.Diff(conf, newConfig)
		log.Debug("Config diff:", diff)
		if diff != "" {
			log.Info("Config changed. Exiting to allow systemctl to restart service.")
			os.Exit(0)
		} else {
			log.Info("No relevant changes detected in config file.")
		}
	}
}
