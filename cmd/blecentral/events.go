package main

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/srg/blecentral/central"
	"github.com/srg/blecentral/pkg/config"
)

type eventsOptions struct {
	duration time.Duration
	format   string
	scan     bool
}

func newEventsCmd() *cobra.Command {
	opts := &eventsOptions{}
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Record and print raw central-manager events",
		Long: `Record the raw events the central manager publishes for --duration and print
the most recent ones (up to the configured history_size).

With --scan (the default) a scan runs while recording, so discoveries and the
final stop-scan event show up in the feed; recording then ends with the scan.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runEvents(cmd, opts)
		},
	}

	cmd.Flags().DurationVarP(&opts.duration, "duration", "d", 5*time.Second, "How long to record (0 until Ctrl+C)")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "", "Output format (table, json)")
	cmd.Flags().BoolVar(&opts.scan, "scan", true, "Scan while recording")

	return cmd
}

func runEvents(cmd *cobra.Command, opts *eventsOptions) error {
	if opts.format != "" && !slices.Contains(config.OutputFormats, opts.format) {
		return fmt.Errorf("invalid format '%s': must be one of %v", opts.format, config.OutputFormats)
	}

	sess, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer sess.Close()

	format := sess.cfg.OutputFormat
	if opts.format != "" {
		format = opts.format
	}

	history, err := central.NewHistory(sess.cfg.HistorySize, sess.logger)
	if err != nil {
		return err
	}
	if err := history.Attach(sess.manager.Bus()); err != nil {
		return err
	}
	defer history.Detach()

	ctx, cancel := commandContext(cmd.Context(), opts.duration)
	defer cancel()

	if err := sess.central.WaitUntilReady(ctx); err != nil {
		return fmt.Errorf("bluetooth is not ready: %w", err)
	}

	if opts.scan {
		for range sess.central.Scan(ctx, nil, &central.ScanOptions{Buffer: sess.cfg.ScanBuffer}) {
		}
	} else {
		<-ctx.Done()
	}

	history.Detach()
	records := history.Snapshot()
	if n := history.Overwritten(); n > 0 {
		sess.logger.WithField("dropped", n).Info("Older events were dropped from the history")
	}

	return writeEvents(cmd.OutOrStdout(), records, format)
}

type eventRecord struct {
	At      time.Time `json:"at"`
	Kind    string    `json:"kind"`
	Details string    `json:"details,omitempty"`
}

func writeEvents(w io.Writer, records []central.Record, format string) error {
	if format == "json" {
		out := make([]eventRecord, 0, len(records))
		for _, r := range records {
			out = append(out, eventRecord{At: r.At, Kind: r.Event.Kind(), Details: describeEvent(r.Event)})
		}
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(out)
	}

	if len(records) == 0 {
		_, err := fmt.Fprintln(w, "No events recorded")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tEVENT\tDETAILS")
	for _, r := range records {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", r.At.Format("15:04:05.000"), r.Event.Kind(), describeEvent(r.Event))
	}
	return tw.Flush()
}

func describeEvent(ev central.Event) string {
	withErr := func(s string, err error) string {
		if err == nil {
			return s
		}
		return fmt.Sprintf("%s: %v", s, err)
	}

	switch e := ev.(type) {
	case central.ReadyStateChanged:
		return e.State.String()
	case central.Discovered:
		details := fmt.Sprintf("%s %d dBm", e.Peripheral, int(e.RSSI))
		if id, ok := e.Advertisement.CompanyID(); ok {
			details += fmt.Sprintf(" company=0x%04x", id)
		}
		return details
	case central.Connected:
		return e.Peripheral.String()
	case central.FailedToConnect:
		return withErr(e.Peripheral.String(), e.Err)
	case central.Disconnected:
		return withErr(e.Peripheral.String(), e.Err)
	case central.CancelledConnection:
		return withErr(e.Peripheral.String(), e.Err)
	default:
		return ""
	}
}
