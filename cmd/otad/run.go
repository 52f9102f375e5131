package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/otakitio/otakit/fetcher"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the periodic update loop",
	RunE: func(cmd *cobra.Command, args []string) error {
		u, cfg, err := buildUpdater(&processRestarter{})
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := probeEndpoint(ctx, cfg); err != nil {
			return err
		}

		// The firmware confirms itself once it is up and talking to the
		// update endpoint, cancelling any pending bootloader rollback.
		if u.Partitions().MarkAsValid() {
			log.Infof("running image confirmed after update")
		}

		log.Infof("update agent started, version %s, interval %ds", cfg.CurrentVersion, cfg.CheckIntervalSeconds)

		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				log.Infof("update agent stopping")
				return nil
			case <-ticker.C:
				u.Tick(ctx)
			}
		}
	},
}

// probeEndpoint retries until the manifest endpoint answers, so a
// device booting before its uplink does not give up. Any HTTP status
// counts as reachable; only transport failures are retried.
func probeEndpoint(ctx context.Context, cfg *config) error {
	f := fetcher.New().WithTLSVerify(cfg.TLSVerify)

	operation := func() error {
		_, _, err := f.Fetch(ctx, cfg.ManifestURL)
		if err != nil {
			log.Debugf("update endpoint not reachable yet: %v", err)
		}
		return err
	}

	expBackOff := backoff.WithContext(&backoff.ExponentialBackOff{
		InitialInterval:     time.Second,
		RandomizationFactor: backoff.DefaultRandomizationFactor,
		Multiplier:          backoff.DefaultMultiplier,
		MaxInterval:         30 * time.Second,
		MaxElapsedTime:      5 * time.Minute,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}, ctx)

	if err := backoff.Retry(operation, expBackOff); err != nil {
		return fmt.Errorf("update endpoint unreachable: %w", err)
	}
	return nil
}
