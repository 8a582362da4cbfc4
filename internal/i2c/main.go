package i2c

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/TheCacophonyProject/go-utils/logging"
	"github.com/alexflint/go-arg"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

var version = "<not set>"
var log = logging.NewLogger("info")

type Args struct {
	Bus     string `arg:"--bus" help:"I2C bus name, the first bus when empty"`
	BusyPin string `arg:"--busy-pin" help:"GPIO pin shared with other bus masters, none when empty"`
	logging.LogArgs
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

// Run serves the I2C bus over D-Bus for the ADC driver until stopped.
func Run(inputArgs []string, ver string) error {
	version = ver
	args, err := procArgs(inputArgs)
	if err != nil {
		return fmt.Errorf("failed to parse args: %v", err)
	}
	log = logging.NewLogger(args.LogLevel)

	log.Infof("Running version: %s", version)

	log.Debug("Initializing host")
	if _, err := host.Init(); err != nil {
		return err
	}
	bus, err := i2creg.Open(args.Bus)
	if err != nil {
		return err
	}
	defer bus.Close()

	var busyPin gpio.PinIO
	if args.BusyPin != "" {
		log.Debugf("Initializing pin '%s'", args.BusyPin)
		busyPin = gpioreg.ByName(args.BusyPin)
		if busyPin == nil {
			return fmt.Errorf("GPIO pin %s not found", args.BusyPin)
		}
		if err := busyPin.In(gpio.Float, gpio.NoEdge); err != nil {
			return err
		}
	}

	if err := startService(bus, busyPin); err != nil {
		return err
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	log.Info("Stopping I2C service")
	return nil
}
