package main

import (
	"fmt"
	"os"

	"github.com/TheCacophonyProject/go-utils/logging"
	"github.com/TheCacophonyProject/soil-moisture-node/internal/adc"
	"github.com/TheCacophonyProject/soil-moisture-node/internal/i2c"
	"github.com/TheCacophonyProject/soil-moisture-node/internal/moisture"
)

var log *logging.Logger

func main() {
	err := runMain()
	if err != nil {
		log.Fatal(err)
	}
}

var version = "<not set>"

func runMain() error {
	log = logging.NewLogger("info")
	if len(os.Args) < 2 {
		log.Info("Usage: soil-moisture-node <subcommand> [args]")
		return fmt.Errorf("no subcommand given")
	}

	subcommand := os.Args[1]
	args := os.Args[2:]

	var err error
	switch subcommand {
	case "moisture":
		err = moisture.Run(args, version)
	case "adc":
		err = adc.Run(args, version)
	case "i2c":
		err = i2c.Run(args, version)
	default:
		err = fmt.Errorf("unknown subcommand: %s", subcommand)
	}

	return err
}
