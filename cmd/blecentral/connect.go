package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/srg/blecentral/central"
	"golang.org/x/sync/errgroup"
)

// disconnectTimeout bounds each teardown, which still runs after Ctrl+C.
const disconnectTimeout = 5 * time.Second

type connectOptions struct {
	timeout time.Duration
	hold    time.Duration
}

func newConnectCmd() *cobra.Command {
	opts := &connectOptions{}
	cmd := &cobra.Command{
		Use:   "connect <address>...",
		Short: "Connect to one or more BLE devices",
		Long: `Connect to every given peripheral concurrently.

The command waits for the radio to be ready, connects to all addresses at once
and reports each outcome. If any connection fails, the attempts still in flight
are cancelled. Established connections are kept for --hold, then dropped.`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConnect(cmd, args, opts)
		},
	}

	cmd.Flags().DurationVarP(&opts.timeout, "timeout", "t", 0, "Per-device connect timeout (defaults to the configured connect_timeout)")
	cmd.Flags().DurationVar(&opts.hold, "hold", 0, "Keep the connections open this long before disconnecting")

	return cmd
}

func runConnect(cmd *cobra.Command, args []string, opts *connectOptions) error {
	addresses := normalizeAddresses(args)
	if len(addresses) == 0 {
		return ErrNoAddress
	}

	sess, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer sess.Close()

	timeout := sess.cfg.ConnectTimeout
	if cmd.Flags().Changed("timeout") {
		timeout = opts.timeout
	}

	ctx, cancel := commandContext(cmd.Context(), 0)
	defer cancel()

	if err := sess.central.WaitUntilReady(ctx); err != nil {
		return fmt.Errorf("bluetooth is not ready: %w", err)
	}

	connected := make([]central.Peripheral, len(addresses))
	g, gctx := errgroup.WithContext(ctx)
	for i, address := range addresses {
		g.Go(func() error {
			connectCtx := gctx
			if timeout > 0 {
				var stop context.CancelFunc
				connectCtx, stop = context.WithTimeout(gctx, timeout)
				defer stop()
			}

			p, err := sess.central.Connect(connectCtx, central.Peripheral{ID: address}, &central.ConnectOptions{ConnectTimeout: timeout})
			if err != nil {
				return fmt.Errorf("failed to connect to %s: %w", address, err)
			}
			connected[i] = p
			return nil
		})
	}
	err = g.Wait()

	out := cmd.OutOrStdout()
	for _, p := range connected {
		if p.ID != "" {
			fmt.Fprintf(out, "Connected: %s\n", p)
		}
	}
	if err != nil {
		disconnectAll(ctx, sess, connected)
		return err
	}

	if opts.hold > 0 {
		select {
		case <-time.After(opts.hold):
		case <-ctx.Done():
		}
	}

	for _, p := range disconnectAll(ctx, sess, connected) {
		fmt.Fprintf(out, "Disconnected: %s\n", p)
	}
	return nil
}

// disconnectAll cancels every established connection and returns the ones
// that were dropped cleanly.
func disconnectAll(ctx context.Context, sess *session, peripherals []central.Peripheral) []central.Peripheral {
	var dropped []central.Peripheral
	for _, p := range peripherals {
		if p.ID == "" {
			continue
		}
		cctx, stop := context.WithTimeout(context.WithoutCancel(ctx), disconnectTimeout)
		err := sess.central.CancelConnection(cctx, p)
		stop()
		if err != nil {
			sess.logger.WithError(err).WithField("peripheral", p.ID).Warn("Failed to disconnect")
			continue
		}
		dropped = append(dropped, p)
	}
	return dropped
}
