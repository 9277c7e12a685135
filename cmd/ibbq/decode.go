package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/srg/ibbq/internal/config"
	"github.com/srg/ibbq/internal/thermometer"
)

// decodeCmd represents the decode command
var decodeCmd = &cobra.Command{
	Use:   "decode <temperature|battery> <hex>",
	Short: "Decode a raw notification frame",
	Long: `Decodes a notification payload captured from a thermometer, using the
protocol settings of the configuration. Temperatures are shown in tenths of a
degree as sent, and in degrees.

  ibbq decode temperature "ea 00 f6 ff f6 ff f6 ff"
  ibbq decode battery 24b80e6810`,
	Args:      cobra.ExactArgs(2),
	ValidArgs: []string{"temperature", "battery"},
	RunE:      runDecode,
}

var decodeProbes int

func init() {
	decodeCmd.Flags().IntVarP(&decodeProbes, "probes", "p", 0, "Number of probe slots (default: configured probes)")
}

func runDecode(cmd *cobra.Command, args []string) error {
	kind := strings.ToLower(args[0])
	if kind != "temperature" && kind != "battery" {
		return fmt.Errorf("unknown frame kind %q: must be temperature or battery", args[0])
	}
	frame, err := config.ParseHex(args[1])
	if err != nil {
		return fmt.Errorf("invalid hex payload: %w", err)
	}
	if decodeProbes < 0 {
		return fmt.Errorf("invalid probe count %d", decodeProbes)
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	codec, err := cfg.Codec()
	if err != nil {
		return err
	}

	cmd.SilenceUsage = true
	out := cmd.OutOrStdout()

	if kind == "battery" {
		level, err := codec.DecodeBatteryFrame(frame)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "current: %d\nmax:     %d\n", level.Current, level.Max)
		if pct, ok := level.Percent(); ok {
			fmt.Fprintf(out, "percent: %.1f%%\n", pct)
		} else {
			fmt.Fprintln(out, "percent: unknown")
		}
		return nil
	}

	probes := cfg.ProbeConfigs()
	if decodeProbes > 0 {
		probes = make([]thermometer.ProbeConfig, decodeProbes)
		for i := range probes {
			probes[i] = thermometer.ProbeConfig{Position: i + 1}
		}
	}
	readings, err := codec.DecodeTemperatureFrame(frame, len(probes))
	if err != nil {
		return err
	}
	for i, r := range readings {
		label := fmt.Sprintf("probe %d", probes[i].Position)
		if probes[i].Name != "" {
			label += " (" + probes[i].Name + ")"
		}
		if !r.Connected {
			fmt.Fprintf(out, "%s: disconnected\n", label)
			continue
		}
		fmt.Fprintf(out, "%s: %d (%.1f)\n", label, r.Tenths, r.Degrees())
	}
	return nil
}
