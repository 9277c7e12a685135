package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/srg/ibbq/inspector"
	"github.com/srg/ibbq/internal/device"
)

// inspectCmd represents the inspect command
var inspectCmd = &cobra.Command{
	Use:   "inspect <device-address>",
	Short: "Inspect services, characteristics, and descriptors of a BLE device",
	Long: `Connects to a BLE device by address and discovers its services,
characteristics, and descriptors. Readable characteristics are read and their
value is matched against the integer and ASCII encodings it could hold.`,
	Args: cobra.ExactArgs(1),
	RunE: runInspect,
}

var (
	inspectConnectTimeout time.Duration
	inspectReadTimeout    time.Duration
	inspectJSON           bool
)

func init() {
	inspectCmd.Flags().DurationVar(&inspectConnectTimeout, "connect-timeout", 30*time.Second, "Connection timeout")
	inspectCmd.Flags().DurationVar(&inspectReadTimeout, "read-timeout", 5*time.Second, "Timeout for each characteristic read")
	inspectCmd.Flags().BoolVar(&inspectJSON, "json", false, "Output as JSON")
}

func runInspect(cmd *cobra.Command, args []string) error {
	address := args[0]

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
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

	opts := &inspector.InspectOptions{
		ConnectTimeout: inspectConnectTimeout,
		ReadTimeout:    inspectReadTimeout,
	}

	progress := NewProgressPrinter(cmd.ErrOrStderr(), fmt.Sprintf("Inspecting device %s", address), "Connecting", 0, "Processing results", "Failed")
	progress.Start()
	defer progress.Stop()

	report, err := inspector.InspectDevice(cmd.Context(), central, address, opts, logger, progress.Callback(),
		func(_ device.Client, services []device.Service) (*inspector.Report, error) {
			return inspector.BuildReport(address, services, opts.ReadTimeout, logger), nil
		})
	if err != nil {
		return err
	}
	progress.Stop()

	if inspectJSON {
		raw, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), string(raw))
		return err
	}
	return report.WriteText(cmd.OutOrStdout())
}
