package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/fx"

	"github.com/webitel/stagehub/config"
	"github.com/webitel/stagehub/internal/registry"
)

const (
	ServiceName      = "stagehub"
	ServiceNamespace = "webitel"
)

var (
	version        = "0.0.0"
	commit         = "hash"
	commitDate     = time.Now().String()
	branch         = "branch"
	buildTimestamp = ""
)

// registerStageTypes is the hook serverCmd hands to NewApp for wiring
// concrete stage.UserStage factories into the registry. Nothing in this
// package sets it, so it stays nil and the bare binary starts with zero
// registered stage types (every ConnectWithToken asking for a new stage
// fails closed); a deployment embedding stagehub as a library registers
// its stage types by calling NewApp with its own RegisterStageTypes.
var registerStageTypes RegisterStageTypes

// Run is the CLI entrypoint.
func Run() error {
	app := &cli.App{
		Name:  ServiceName,
		Usage: "Realtime room-hosting server for the Webitel platform",
		Commands: []*cli.Command{
			serverCmd(),
		},
	}

	return app.Run(os.Args)
}

func serverCmd() *cli.Command {
	return &cli.Command{
		Name:    "server",
		Aliases: []string{"s"},
		Usage:   "Run the stage hub server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: "Path to the configuration file",
			},
			&cli.BoolFlag{
				Name:  "dashboard",
				Usage: "Render a live terminal stage-stats dashboard",
			},
		},
		Action: func(c *cli.Context) error {
			cfg, err := config.Load(os.Args[2:], nil)
			if err != nil {
				return err
			}

			var reg *registry.Registry
			app := NewApp(cfg, registerStageTypes, fx.Populate(&reg))

			if err := app.Start(c.Context); err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(context.Background())
			if c.Bool("dashboard") && reg != nil {
				go func() {
					_ = RunDashboard(ctx, reg)
					cancel()
				}()
			}

			stop := make(chan os.Signal, 1)
			signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
			select {
			case <-stop:
			case <-ctx.Done():
			}

			cancel()
			slog.Info("shutting down")
			return app.Stop(context.Background())
		},
	}
}
