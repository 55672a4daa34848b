package main

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/srg/blecentral/central"
	"github.com/srg/blecentral/pkg/config"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

type scanOptions struct {
	duration   time.Duration
	format     string
	services   []string
	allow      []string
	block      []string
	minRSSI    float64
	duplicates bool
}

func newScanCmd() *cobra.Command {
	opts := &scanOptions{}
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan for BLE devices",
		Long: `Scan for and display Bluetooth Low Energy devices in the vicinity.

The scan runs for --duration (the configured scan_timeout by default) or until
Ctrl+C, then prints every discovered device with its latest RSSI and the
services it advertised.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runScan(cmd, opts)
		},
	}

	cmd.Flags().DurationVarP(&opts.duration, "duration", "d", 0, "Scan duration (defaults to the configured scan_timeout, 0 for indefinite)")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "", "Output format (table, json)")
	cmd.Flags().StringSliceVarP(&opts.services, "services", "s", nil, "Filter by service UUIDs")
	cmd.Flags().StringSliceVar(&opts.allow, "allow", nil, "Only show devices with these addresses")
	cmd.Flags().StringSliceVar(&opts.block, "block", nil, "Hide devices with these addresses")
	cmd.Flags().Float64Var(&opts.minRSSI, "min-rssi", 0, "Hide devices weaker than this RSSI (dBm)")
	cmd.Flags().BoolVar(&opts.duplicates, "duplicates", false, "Report every advertisement, not only the first per device")

	return cmd
}

func runScan(cmd *cobra.Command, opts *scanOptions) error {
	if opts.format != "" && !slices.Contains(config.OutputFormats, opts.format) {
		return fmt.Errorf("invalid format '%s': must be one of %v", opts.format, config.OutputFormats)
	}

	var services []string
	if len(opts.services) > 0 {
		var err error
		services, err = central.ValidateUUID(opts.services...)
		if err != nil {
			return fmt.Errorf("invalid service UUID: %w", err)
		}
	}

	sess, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer sess.Close()

	duration := sess.cfg.ScanTimeout
	if cmd.Flags().Changed("duration") {
		duration = opts.duration
	}
	format := sess.cfg.OutputFormat
	if opts.format != "" {
		format = opts.format
	}

	ctx, cancel := commandContext(cmd.Context(), duration)
	defer cancel()

	if err := sess.central.WaitUntilReady(ctx); err != nil {
		return fmt.Errorf("bluetooth is not ready: %w", err)
	}

	filter := &central.ScanFilter{
		Services:  services,
		AllowList: normalizeAddresses(opts.allow),
		BlockList: normalizeAddresses(opts.block),
		MinRSSI:   opts.minRSSI,
	}
	scanOpts := &central.ScanOptions{
		AllowDuplicates: opts.duplicates || sess.cfg.AllowDuplicates,
		Buffer:          sess.cfg.ScanBuffer,
	}

	results := newScanResults()
	for d := range sess.central.Scan(ctx, filter, scanOpts) {
		results.add(d)
	}
	sess.logger.WithField("devices", results.devices.Len()).Debug("Scan finished")

	return writeScanResults(cmd.OutOrStdout(), results.list(), format)
}

// scanResults keeps the latest discovery per device, in first-seen order.
type scanResults struct {
	devices *orderedmap.OrderedMap[string, central.Discovery]
}

func newScanResults() *scanResults {
	return &scanResults{devices: orderedmap.New[string, central.Discovery]()}
}

func (r *scanResults) add(d central.Discovery) {
	if prev, ok := r.devices.Get(d.Peripheral.ID); ok && d.Peripheral.Name == "" {
		// Scan responses often come without a name.
		d.Peripheral.Name = prev.Peripheral.Name
	}
	r.devices.Set(d.Peripheral.ID, d)
}

func (r *scanResults) list() []central.Discovery {
	out := make([]central.Discovery, 0, r.devices.Len())
	for pair := r.devices.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Value)
	}
	return out
}

func writeScanResults(w io.Writer, devices []central.Discovery, format string) error {
	if format == "json" {
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(devices)
	}

	if len(devices) == 0 {
		_, err := fmt.Fprintln(w, "No devices discovered")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tADDRESS\tRSSI\tSERVICES")
	for _, d := range devices {
		name := d.Peripheral.Name
		if name == "" {
			name = "-"
		}
		if len(name) > 20 {
			name = name[:17] + "..."
		}

		services := strings.Join(d.Advertisement.Services, ",")
		if len(services) > 30 {
			services = services[:27] + "..."
		}

		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", name, d.Peripheral.ID, rssiColor(d.RSSI).Sprintf("%d dBm", int(d.RSSI)), services)
	}
	return tw.Flush()
}

// rssiColor grades signal strength for the table.
func rssiColor(rssi float64) *color.Color {
	switch {
	case rssi >= -60:
		return color.New(color.FgGreen)
	case rssi >= -80:
		return color.New(color.FgYellow)
	default:
		return color.New(color.FgRed)
	}
}

func normalizeAddresses(addresses []string) []string {
	if len(addresses) == 0 {
		return nil
	}
	out := make([]string, 0, len(addresses))
	for _, a := range addresses {
		out = append(out, strings.ToLower(strings.TrimSpace(a)))
	}
	return out
}
