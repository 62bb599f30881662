package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kardianos/service"
	"github.com/stone-age-io/inventory-agent/internal/agent"
	"github.com/stone-age-io/inventory-agent/internal/config"
	"github.com/urfave/cli/v3"
)

const serviceName = "inventory-agent"

func newApp() *cli.Command {
	return &cli.Command{
		Name:    serviceName,
		Usage:   "Report host inventory and virtualization capabilities once a day",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to the YAML config file",
				Sources: cli.EnvVars("INVENTORY_AGENT_CONFIG"),
				Value:   config.GetDefaultConfigPath(),
			},
		},
		Commands: []*cli.Command{
			runCmd(),
			controlCmd("install", "Install the agent as an OS service"),
			controlCmd("uninstall", "Remove the OS service"),
			controlCmd("start", "Start the installed OS service"),
			controlCmd("stop", "Stop the installed OS service"),
			controlCmd("restart", "Restart the installed OS service"),
			detectCmd(),
			reportCmd(),
		},
		// Bare invocation behaves like "run" so service managers need no arguments
		Action: runAction,
	}
}

func runCmd() *cli.Command {
	return &cli.Command{
		Name:   "run",
		Usage:  "Run the agent in the foreground or under the service manager",
		Action: runAction,
	}
}

func runAction(ctx context.Context, cmd *cli.Command) error {
	s, err := newService(cmd.String("config"))
	if err != nil {
		return err
	}
	return s.Run()
}

func controlCmd(action, usage string) *cli.Command {
	return &cli.Command{
		Name:  action,
		Usage: usage,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			s, err := newService(cmd.String("config"))
			if err != nil {
				return err
			}
			if err := service.Control(s, action); err != nil {
				return fmt.Errorf("failed to %s service: %w", action, err)
			}
			fmt.Fprintf(cmd.Root().Writer, "Service %s: %s\n", serviceName, action)
			return nil
		},
	}
}

func detectCmd() *cli.Command {
	return &cli.Command{
		Name:  "detect",
		Usage: "Collect one inventory snapshot and print it as JSON without reporting",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			a, err := agent.New(cmd.String("config"), version)
			if err != nil {
				return err
			}
			defer a.Logger().Sync()

			snap := a.Detect(ctx)
			out, err := json.MarshalIndent(snap, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to encode snapshot: %w", err)
			}
			fmt.Fprintln(cmd.Root().Writer, string(out))
			return nil
		},
	}
}

func reportCmd() *cli.Command {
	return &cli.Command{
		Name:  "report",
		Usage: "Run a single reporting cycle now and exit",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			a, err := agent.New(cmd.String("config"), version)
			if err != nil {
				return err
			}
			defer a.Logger().Sync()

			if result := a.ReportOnce(ctx); !result.Sent {
				return cli.Exit("inventory report was not accepted by the server", 1)
			}
			return nil
		},
	}
}
