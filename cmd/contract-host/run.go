package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli"

	"github.com/woxQAQ/wasm-contracts/internal/config"
	"github.com/woxQAQ/wasm-contracts/internal/wasm"
)

func runCommand() cli.Command {
	return cli.Command{
		Name:      "run",
		Usage:     "Call a contract module once and print the new state",
		ArgsUsage: "<module.wasm>",
		Flags: []cli.Flag{
			cli.StringFlag{
				Name:  "state,s",
				Usage: "State document",
			},
			cli.StringFlag{
				Name:  "state-file",
				Usage: "Read the state document from a file",
			},
			cli.StringFlag{
				Name:  "action,a",
				Usage: "Action document",
				Value: "{}",
			},
			cli.StringFlag{
				Name:  "action-file",
				Usage: "Read the action document from a file",
			},
		},
		Action: run,
	}
}

func run(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("run takes exactly one module path, got %d arguments", c.NArg())
	}
	path := c.Args().First()

	state, err := document(c, "state")
	if err != nil {
		return err
	}
	action, err := document(c, "action")
	if err != nil {
		return err
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	logger, err := newLogger(runLogLevel(cfg))
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx := context.Background()
	runtime, err := wasm.NewRuntime(ctx, logger, cfg.Wasm.RuntimeConfig())
	if err != nil {
		return fmt.Errorf("failed to initialize Wasm runtime: %w", err)
	}
	defer runtime.Close(ctx)

	compiled, err := wasm.NewModuleLoader(runtime, logger).LoadModuleFromFile(ctx, path)
	if err != nil {
		return err
	}

	inst, err := wasm.NewInstanceManager(runtime, logger).Instantiate(ctx, &wasm.InstanceConfig{
		ModuleName: compiled.Name,
	})
	if err != nil {
		return err
	}
	caller := wasm.NewCaller(inst, runtime.Config(), logger)
	defer caller.Close(ctx)

	out, err := caller.Call(ctx, state, action)
	if err != nil {
		// TrapError carries the guest's stderr in its message.
		return err
	}

	fmt.Fprintln(c.App.Writer, string(out))
	return nil
}

// runLogLevel keeps one-shot runs quiet unless a level was asked for.
func runLogLevel(cfg *config.ServerConfig) string {
	if !cfg.LogLevelSet {
		return "warn"
	}
	return cfg.LogLevel
}

// document returns the named document from its string flag or its -file flag.
func document(c *cli.Context, name string) ([]byte, error) {
	if file := c.String(name + "-file"); file != "" {
		if c.IsSet(name) {
			return nil, fmt.Errorf("--%s and --%s-file are mutually exclusive", name, name)
		}
		b, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", name, err)
		}
		return b, nil
	}
	return []byte(c.String(name)), nil
}
