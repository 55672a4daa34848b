package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/blecentral/central"
	"github.com/srg/blecentral/internal/goble"
	"github.com/srg/blecentral/pkg/config"
)

// closableManager is a central.Manager that owns a radio.
type closableManager interface {
	central.Manager
	Close() error
}

// newManager opens the platform manager; tests replace it.
var newManager = func(logger *logrus.Logger) (closableManager, error) {
	m, err := goble.NewManager(logger)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// session is what every command runs against.
type session struct {
	cfg     *config.Config
	logger  *logrus.Logger
	manager closableManager
	central *central.Central
}

func openSession(cmd *cobra.Command) (*session, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	logger, err := configureLogger(cmd, cfg)
	if err != nil {
		return nil, err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	m, err := newManager(logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open BLE central: %w", err)
	}

	return &session{
		cfg:     cfg,
		logger:  logger,
		manager: m,
		central: central.New(m, logger),
	}, nil
}

func (s *session) Close() {
	if err := s.manager.Close(); err != nil {
		s.logger.WithError(err).Warn("Failed to close BLE central cleanly")
	}
}

// commandContext derives a context cancelled by Ctrl+C / SIGTERM and, when
// timeout > 0, after timeout.
func commandContext(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	if timeout <= 0 {
		return ctx, stop
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	return ctx, func() {
		cancel()
		stop()
	}
}
