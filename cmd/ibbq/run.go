package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/srg/ibbq/internal/api"
	"github.com/srg/ibbq/internal/driver"
	"github.com/srg/ibbq/internal/groutine"
	"github.com/srg/ibbq/internal/protocol"
	"golang.org/x/term"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Connect to the thermometer and stream its readings",
	Long: `Scans for the configured thermometer, pairs with it and prints probe
temperatures and battery level as they arrive. The connection is re-established
automatically when it drops. With --listen (or api.listen in the config) the
readings are also served over HTTP:

  GET /api          liveness
  GET /api/device   current snapshot as JSON
  PUT /api/units    {"unit":"C"} or {"unit":"F"}
  GET /api/events   websocket stream of events`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

var (
	runListen string
	runUnit   string
)

func init() {
	runCmd.Flags().StringVar(&runListen, "listen", "", "Serve the HTTP API on this address (e.g. :8080)")
	runCmd.Flags().StringVar(&runUnit, "unit", "", "Display unit to set on the device (C or F)")
}

func runRun(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if runUnit != "" {
		unit, err := protocol.ParseUnit(runUnit)
		if err != nil {
			return err
		}
		cfg.Device.Unit = unit
	}
	if runListen != "" {
		cfg.API.Listen = runListen
	}
	logger, err := configureLogger(cmd, cfg)
	if err != nil {
		return err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	central, release, err := newCentral(logger)
	if err != nil {
		return fmt.Errorf("failed to open BLE adapter: %w", err)
	}
	defer release()

	d, err := driver.New(central, cfg, logger)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	apiErr := make(chan error, 1)
	if cfg.API.Listen != "" {
		srv := api.NewServer(api.ForDriver(d), cfg.API.Listen, logger)
		groutine.Go(ctx, "ibbq-api", func(ctx context.Context) {
			apiErr <- srv.Start(ctx)
		})
	}

	sub := d.Subscribe(driver.DefaultSubscriptionBuffer)
	defer sub.Close()

	driverDone := make(chan error, 1)
	groutine.Go(ctx, "ibbq-driver", func(ctx context.Context) {
		driverDone <- d.Run(ctx)
	})

	renderer := newTelemetryRenderer(cmd.OutOrStdout(), isTerminal(cmd))
	defer renderer.Finish()

	var failure error
	for {
		select {
		case ev, ok := <-sub.C():
			if !ok {
				// the driver closes subscriptions on its way out
				return errors.Join(failure, <-driverDone)
			}
			renderer.Render(ev)
		case err := <-driverDone:
			return errors.Join(failure, err)
		case err := <-apiErr:
			if err != nil {
				failure = err
				cancel()
			}
		}
	}
}

func isTerminal(cmd *cobra.Command) bool {
	f, ok := cmd.OutOrStdout().(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
