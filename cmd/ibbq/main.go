package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"unicode"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/ibbq/internal/config"
	"github.com/srg/ibbq/internal/device"
	goble "github.com/srg/ibbq/internal/device/go-ble"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// newCentral opens the local BLE adapter. Tests replace it with a fake.
var newCentral = func(logger *logrus.Logger) (device.Central, func(), error) {
	central, err := goble.NewCentral(logger)
	if err != nil {
		return nil, nil, err
	}
	release := func() {
		if err := central.Stop(); err != nil {
			logger.WithError(err).Debug("Failed to stop BLE adapter")
		}
	}
	return central, release, nil
}

// formatVersion adds 'v' prefix if version starts with a digit
func formatVersion(ver string) string {
	if len(ver) > 0 && unicode.IsDigit(rune(ver[0])) {
		return "v" + ver
	}
	return ver
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "ibbq",
	Short: "iBBQ Bluetooth thermometer driver",
	Long: `Driver and tooling for iBBQ Bluetooth LE grill thermometers:

- Connect, pair and stream probe temperatures and battery level
- Serve the live readings over HTTP and a websocket event stream
- Scan for nearby thermometers
- Inspect the GATT layout of any BLE device
- Decode raw notification frames offline`,
	Version: formatVersion(version),
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		// Ctrl+C is a normal exit
		if errors.Is(err, context.Canceled) {
			return
		}
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", FormatUserError(err))
		os.Exit(1)
	}
}

func init() {
	// main() prints errors itself
	rootCmd.SilenceErrors = true
	rootCmd.SetVersionTemplate(fmt.Sprintf("ibbq {{.Version}} (commit %s, built %s)\n", commit, date))

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(decodeCmd)
	rootCmd.AddCommand(configCmd)

	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to the YAML configuration file")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("verbose", false, "Enable debug logging")
}

// loadConfig reads the file named by --config, or the defaults when unset.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	return config.Load(path)
}
