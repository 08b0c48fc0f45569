package main

import (
	"fmt"
	"os"
	"runtime/debug"

	"github.com/urfave/cli"
	"go.uber.org/zap"
)

var (
	version = "dev"
	commit  = ""
	date    = ""
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "contract-host:", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	a := cli.NewApp()
	a.Name = "contract-host"
	a.Version = buildVersion(version, commit, date)
	a.Usage = "Run wasm state-transition contracts"
	a.Flags = []cli.Flag{
		cli.StringFlag{
			Name:   "config,c",
			Usage:  "Path to configuration file",
			EnvVar: "CONTRACT_HOST_CONFIG",
		},
		cli.StringFlag{
			Name:  "log-level",
			Usage: "Log level (debug, info, warn, error); overrides the config file",
		},
	}
	a.Commands = []cli.Command{
		serveCommand(),
		runCommand(),
		schemaCommand(),
	}
	return a
}

// newLogger builds a development logger for debug and a production logger otherwise.
func newLogger(level string) (*zap.Logger, error) {
	if level == "debug" {
		return zap.NewDevelopment()
	}
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = lvl
	return cfg.Build()
}

func buildVersion(version, commit, date string) string {
	result := version
	if commit != "" {
		result = fmt.Sprintf("%s\ncommit: %s", result, commit)
	}
	if date != "" {
		result = fmt.Sprintf("%s\nbuilt at: %s", result, date)
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Sum != "" {
		result = fmt.Sprintf("%s\nmodule version: %s, checksum: %s", result, info.Main.Version, info.Main.Sum)
	}
	return result
}
