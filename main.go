package main

import (
	"fmt"
	"os"

	"resolvebot/internal/app"

	"github.com/spf13/pflag"
)

func main() {
	var configPath string
	flagSet := pflag.NewFlagSet("resolvebot", pflag.ContinueOnError)
	flagSet.StringVarP(&configPath, "config", "c", "", "path to config.yaml (default: $CONFIG_PATH or ./config.yaml)")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(2)
	}
	if args := flagSet.Args(); len(args) > 0 {
		fmt.Fprintf(os.Stderr, "error: unexpected argument: %s\n", args[0])
		os.Exit(2)
	}

	app.Main(configPath)
}
