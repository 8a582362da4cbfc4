/*
soil-moisture-node - Soil moisture measurement service.
Copyright (C) 2024, The Cacophony Project

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

package moisture

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	goconfig "github.com/TheCacophonyProject/go-config"
	"github.com/TheCacophonyProject/go-utils/logging"
	"github.com/TheCacophonyProject/soil-moisture-node/ads1115"
	"github.com/TheCacophonyProject/soil-moisture-node/attribute"
	arg "github.com/alexflint/go-arg"
	"periph.io/x/host/v3"
)

var (
	log     = logging.NewLogger("info")
	version = "No version provided"
)

type Args struct {
	goconfig.ConfigArgs
	logging.LogArgs
}

func (Args) Version() string {
	return version
}

var defaultArgs = Args{}

func procArgs(input []string) (Args, error) {
	args := defaultArgs

	parser, err := arg.NewParser(arg.Config{}, &args)
	if err != nil {
		return Args{}, err
	}
	err = parser.Parse(input)
	if errors.Is(err, arg.ErrHelp) {
		parser.WriteHelp(os.Stdout)
		os.Exit(0)
	}
	if errors.Is(err, arg.ErrVersion) {
		fmt.Println(version)
		os.Exit(0)
	}
	return args, err
}

func Run(inputArgs []string, ver string) error {
	version = ver
	args, err := procArgs(inputArgs)
	if err != nil {
		return fmt.Errorf("failed to parse args: %v", err)
	}

	log = logging.NewLogger(args.LogLevel)
	ads1115.SetLogger(log)
	attribute.SetLogger(log)

	log.Info("Running version: ", version)

	conf, err := ParseConfig(args.ConfigDir)
	if err != nil {
		return err
	}
	log.Debugf("Config: %+v", conf)
	settings, err := conf.Settings()
	if err != nil {
		return err
	}

	go func() {
		if err := checkConfigChanges(conf, args.ConfigDir); err != nil {
			log.Error("Error checking for config changes:", err)
		}
	}()

	log.Debug("Initializing host")
	if _, err := host.Init(); err != nil {
		return err
	}
	hw, err := openHardware(conf)
	if err != nil {
		return err
	}

	store := attribute.NewStore()
	metrics := NewMetrics()
	publishers := attribute.Fanout{store, metrics}

	// The engine does not exist until the publishers do, so join callbacks
	// from the MQTT client are forwarded once it is built.
	joinedCh := make(chan bool, 4)
	var mqttPublisher *attribute.MQTTPublisher
	if conf.MQTTBroker != "" {
		mqttPublisher, err = attribute.NewMQTTPublisher(attribute.MQTTConfig{
			Broker:      conf.MQTTBroker,
			TopicPrefix: conf.MQTTTopicPrefix,
			ClientID:    conf.MQTTClientID,
		}, func(joined bool) { joinedCh <- joined })
		if err != nil {
			return err
		}
		defer mqttPublisher.Close()
		publishers = append(publishers, mqttPublisher)
	}
	if conf.Events {
		publishers = append(publishers, attribute.NewEventPublisher())
	}
	if conf.DbusSignals {
		signals, err := attribute.NewSignalPublisher()
		if err != nil {
			log.Errorf("D-Bus signals disabled: %v", err)
		} else {
			publishers = append(publishers, signals)
		}
	}

	sched := NewScheduler(hw, settings, publishers, metrics)
	engine := NewEngine(sched, settings.BatteryInterval)
	if mqttPublisher == nil {
		log.Info("No MQTT broker configured, measuring without a network")
		engine.SetJoined(true)
	}
	go func() {
		for joined := range joinedCh {
			engine.SetJoined(joined)
		}
	}()

	if err := startService(engine); err != nil {
		return err
	}
	if conf.HTTPAddress != "" {
		go serveHTTP(conf.HTTPAddress, NewRouter(engine, store, metrics))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	err = engine.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func openHardware(conf *Config) (Hardware, error) {
	dev := ads1115.New(byte(conf.ADCAddress))
	present, err := dev.Present()
	if err != nil {
		return Hardware{}, err
	}
	if !present {
		return Hardware{}, fmt.Errorf("no ADC found at address 0x%x", conf.ADCAddress)
	}

	power, err := NewGPIOPower(conf.ProbePowerPin)
	if err != nil {
		return Hardware{}, err
	}
	hw := Hardware{
		Reader: NewADCReader(dev, conf.ProbeADCChannel, conf.BatteryADCChannel, conf.BatteryDivider),
		Power:  power,
	}
	if conf.LEDPin != "" {
		led, err := NewGPIOIndicator(conf.LEDPin)
		if err != nil {
			return Hardware{}, err
		}
		hw.LED = led
	}
	return hw, nil
}
