package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/srg/ibbq/scanner"
)

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan for advertising iBBQ thermometers",
	Long: `Scans for Bluetooth LE devices advertising the configured thermometer
service and local name, then lists them strongest signal first.`,
	Args: cobra.NoArgs,
	RunE: runScan,
}

var (
	scanDuration time.Duration
	scanAll      bool
	scanJSON     bool
)

func init() {
	scanCmd.Flags().DurationVarP(&scanDuration, "duration", "d", 10*time.Second, "Scan duration")
	scanCmd.Flags().BoolVar(&scanAll, "all", false, "List every device advertising the service, whatever its name")
	scanCmd.Flags().BoolVar(&scanJSON, "json", false, "Output as JSON")
}

func runScan(cmd *cobra.Command, _ []string) error {
	if scanDuration <= 0 {
		return fmt.Errorf("invalid duration %v: must be positive", scanDuration)
	}
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

	filter := scanner.Filter{
		ServiceUUIDs: []string{cfg.Device.ServiceUUID},
		LocalName:    cfg.Device.LocalName,
	}
	if scanAll {
		filter.LocalName = ""
	}

	progress := NewProgressPrinter(cmd.ErrOrStderr(), "Scanning for thermometers", "Scanning", scanDuration, "Processing results")
	progress.Start()
	defer progress.Stop()

	s := scanner.NewScanner(central, logger)
	devices, err := s.Scan(cmd.Context(), &scanner.ScanOptions{
		Duration:        scanDuration,
		DuplicateFilter: true,
		Filter:          filter,
	}, progress.Callback())
	if err != nil {
		return err
	}
	progress.Stop()

	if scanJSON {
		encoder := json.NewEncoder(cmd.OutOrStdout())
		encoder.SetIndent("", "  ")
		return encoder.Encode(devices)
	}
	return writeDeviceTable(cmd.OutOrStdout(), devices)
}

func writeDeviceTable(out io.Writer, devices []scanner.DeviceInfo) error {
	if len(devices) == 0 {
		_, err := fmt.Fprintln(out, "No thermometers discovered")
		return err
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tADDRESS\tRSSI\tSERVICES\tSEEN")
	for _, dev := range devices {
		name := dev.Name
		if name == "" {
			name = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%d dBm\t%s\t%d\n",
			name, dev.Address, dev.RSSI, strings.Join(dev.Services, ","), dev.Seen)
	}
	return w.Flush()
}
