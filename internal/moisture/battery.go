package moisture

import (
	"time"

	"github.com/TheCacophonyProject/soil-moisture-node/attribute"
)

// BatteryReading is the last processed battery measurement.
type BatteryReading struct {
	Millivolts int       `json:"millivolts"`
	Voltage    int       `json:"voltage"`
	Percent    int       `json:"percent"`
	Reported   bool      `json:"reported"`
	Time       time.Time `json:"time"`
}

// BatteryMonitor measures the battery through the same filter, calibration
// and reporting steps as the probe, with its own state.
type BatteryMonitor struct {
	reader    AnalogReader
	pipeline  *Pipeline
	publisher attribute.Publisher
	metrics   *Metrics
	last      *BatteryReading
}

func NewBatteryMonitor(reader AnalogReader, pipeline *Pipeline, publisher attribute.Publisher, metrics *Metrics) *BatteryMonitor {
	return &BatteryMonitor{
		reader:    reader,
		pipeline:  pipeline,
		publisher: publisher,
		metrics:   metrics,
	}
}

// Measure reads the battery, publishing the voltage in 100 mV units and the
// capacity in half percent when the capacity has changed or is due.
func (b *BatteryMonitor) Measure() (BatteryReading, error) {
	mv, err := b.reader.ReadMillivolts(BatteryChannel)
	if err != nil {
		b.metrics.fault(BatteryChannel, err)
		b.metrics.cycle(BatteryChannel, "fault")
		return BatteryReading{}, err
	}
	b.metrics.reading(BatteryChannel, mv)

	res := b.pipeline.Process(mv)
	reading := BatteryReading{
		Millivolts: res.Filtered,
		Voltage:    res.Filtered / 100,
		Percent:    res.Smoothed,
		Reported:   res.Report,
		Time:       time.Now(),
	}
	b.last = &reading
	log.Infof("Battery %d mV, capacity %d%%", reading.Millivolts, reading.Percent/2)

	if res.Report {
		b.publisher.PublishAttribute(attribute.PowerConfig, attribute.BatteryVoltage, reading.Voltage)
		b.publisher.PublishAttribute(attribute.PowerConfig, attribute.BatteryPercentageRemaining, res.Published)
		b.metrics.cycle(BatteryChannel, "reported")
	} else {
		b.metrics.cycle(BatteryChannel, "unchanged")
	}
	return reading, nil
}

// Last returns the last successful reading.
func (b *BatteryMonitor) Last() (BatteryReading, bool) {
	if b.last == nil {
		return BatteryReading{}, false
	}
	return *b.last, true
}
