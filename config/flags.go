package config

import (
	"flag"
)

// Flags are the command line switches.
type Flags struct {
	ConfigPath string
	EnvFile    string
	Addr       string
	Once       bool
	Setup      bool
}

func parseFlags(args []string) Flags {
	var f Flags
	fs := flag.NewFlagSet("cexbalance", flag.ExitOnError)
	fs.StringVar(&f.ConfigPath, "config", "", "path to yaml config, example: ./config.yaml")
	fs.StringVar(&f.EnvFile, "env", ".env", "path to .env file with exchange credentials")
	fs.StringVar(&f.Addr, "addr", "", "http listen address, overrides yaml, example: :8080")
	fs.BoolVar(&f.Once, "once", false, "collect balances once, print json and exit")
	fs.BoolVar(&f.Setup, "setup", false, "run interactive setup wizard and write config")
	_ = fs.Parse(args)

	return f
}
