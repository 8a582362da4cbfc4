package adc

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	goconfig "github.com/TheCacophonyProject/go-config"
	"github.com/TheCacophonyProject/go-utils/logging"
	"github.com/TheCacophonyProject/soil-moisture-node/ads1115"
	"github.com/TheCacophonyProject/soil-moisture-node/internal/moisture"
	"github.com/alexflint/go-arg"
	"periph.io/x/host/v3"
)

var version = "<not set>"
var log = logging.NewLogger("info")

var sleepFn = time.Sleep

type Args struct {
	Find    *subcommand `arg:"subcommand:find"    help:"Check the ADC is on the bus."`
	Read    *Read       `arg:"subcommand:read"    help:"Read an ADC input in millivolts."`
	Probe   *Probe      `arg:"subcommand:probe"   help:"Power the probe and read it."`
	Battery *subcommand `arg:"subcommand:battery" help:"Read the battery channel."`
	Address string      `arg:"--address" help:"ADC address in hex (0xnn), defaults to the configured address"`
	goconfig.ConfigArgs
	logging.LogArgs
}

type subcommand struct {
}

type Read struct {
	Input int `arg:"required" help:"ADC input, 0 to 3"`
	Count int `arg:"--count" default:"1" help:"Number of readings to take"`
}

type Probe struct {
	Count int `arg:"--count" default:"1" help:"Number of measurements to take"`
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

	log.Infof("Running version: %s", version)

	conf, err := moisture.ParseConfig(args.ConfigDir)
	if err != nil {
		return err
	}
	address := byte(conf.ADCAddress)
	if args.Address != "" {
		if address, err = hexStringToByte(args.Address); err != nil {
			return err
		}
	}
	dev := ads1115.New(address)

	switch {
	case args.Find != nil:
		return find(dev)
	case args.Read != nil:
		return read(dev, args.Read.Input, args.Read.Count)
	case args.Battery != nil:
		reader := moisture.NewADCReader(dev, conf.ProbeADCChannel, conf.BatteryADCChannel, conf.BatteryDivider)
		mv, err := reader.ReadMillivolts(moisture.BatteryChannel)
		if err != nil {
			return err
		}
		log.Printf("Battery: %d mV", mv)
		return nil
	case args.Probe != nil:
		return probe(dev, conf, args.Probe.Count)
	}
	return errors.New("no subcommand given")
}

func find(dev *ads1115.Dev) error {
	log.Printf("Finding ADC at address 0x%X", dev.Address)
	found, err := dev.Present()
	if err != nil {
		return err
	}
	if found {
		log.Printf("Found ADC at address 0x%X", dev.Address)
	} else {
		log.Printf("Did not find ADC at address 0x%X", dev.Address)
	}
	return nil
}

func read(dev *ads1115.Dev, input, count int) error {
	for i := 0; i < count; i++ {
		mv, err := dev.ReadMillivolts(input)
		if err != nil {
			return err
		}
		log.Printf("Input %d: %d mV", input, mv)
	}
	return nil
}

// probe powers the probe for each reading and shows where the reading falls
// on the configured calibration curve.
func probe(dev *ads1115.Dev, conf *moisture.Config, count int) error {
	curve, err := moisture.MoistureCurve(conf.MoistureMinMV, conf.MoistureMaxMV)
	if err != nil {
		return err
	}
	if _, err := host.Init(); err != nil {
		return err
	}
	power, err := moisture.NewGPIOPower(conf.ProbePowerPin)
	if err != nil {
		return err
	}
	reader := moisture.NewADCReader(dev, conf.ProbeADCChannel, conf.BatteryADCChannel, conf.BatteryDivider)
	fault := moisture.FaultDetector{ThresholdMV: conf.FaultThresholdMV}
	settle := time.Duration(conf.SettleMs) * time.Millisecond

	for i := 0; i < count; i++ {
		power.SetProbePower(true)
		sleepFn(settle)
		mv, err := reader.ReadMillivolts(moisture.ProbeChannel)
		power.SetProbePower(false)
		if err != nil {
			return err
		}
		if err := fault.Check(mv); err != nil {
			log.Printf("Probe: %v", err)
		} else {
			h := curve.Map(mv)
			log.Printf("Probe: %d mV, humidity %d.%02d%%", mv, h/100, h%100)
		}
		if i+1 < count {
			sleepFn(time.Second)
		}
	}
	return nil
}

func hexStringToByte(hexStr string) (byte, error) {
	if len(hexStr) != 4 {
		return 0, fmt.Errorf("invalid hex string length: %d", len(hexStr))
	}
	if !strings.HasPrefix(hexStr, "0x") {
		return 0, fmt.Errorf("invalid hex string prefix, should be '0x': %s", hexStr)
	}
	val, err := strconv.ParseUint(hexStr[2:], 16, 8) // 16 for base, 8 for bit size
	if err != nil {
		return 0, err
	}
	return byte(val), nil
}
