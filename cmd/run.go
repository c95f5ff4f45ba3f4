// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Thermoquad/gatepro/pkg/bridge"
	"github.com/Thermoquad/gatepro/pkg/driver"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Drive the gate headless",
	Long: `Run the driver without a terminal UI.

Polls the controller, tracks position, and logs state changes. When an MQTT
broker is configured the gate is exposed as a cover with one topic per bound
parameter. When a metrics listen address is configured, Prometheus metrics
are served on /metrics.

The connection is re-established automatically with exponential backoff.`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().String("mqtt-broker", "", "MQTT broker host:port (overrides config)")
	runCmd.Flags().String("metrics-listen", "", "Prometheus listen address (overrides config)")
}

// driverRef lets the bridge be built before the driver it controls
type driverRef struct {
	*driver.Driver
}

func runRun(cmd *cobra.Command, args []string) error {
	if v, _ := cmd.Flags().GetString("mqtt-broker"); v != "" {
		cfg.MQTT.Broker = v
	}
	if v, _ := cmd.Flags().GetString("metrics-listen"); v != "" {
		cfg.Metrics.Listen = v
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	publishers := driver.MultiPublisher{driver.LogPublisher{Logger: logger}}
	opts := []driver.Option{}

	ref := &driverRef{}
	var b *bridge.Bridge
	if cfg.MQTT.Broker != "" {
		b = bridge.New(ref, bridge.Options{
			Broker:   cfg.MQTT.Broker,
			Prefix:   cfg.MQTT.Prefix,
			ClientID: cfg.MQTT.ClientID,
			Username: cfg.MQTT.Username,
			Password: cfg.MQTT.Password,
			QoS:      cfg.MQTT.QoS,
		}, cfg.Bindings(), logger)
		publishers = append(publishers, b)
	}
	opts = append(opts, driver.WithPublisher(publishers))

	var srv *http.Server
	if cfg.Metrics.Listen != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		opts = append(opts, driver.WithMetrics(driver.NewMetrics(reg)))
		srv = serveMetrics(cfg.Metrics.Listen, reg)
	}

	sess, err := openSession(ctx, true, func(connected bool, info string) {
		if connected {
			logger.Info().Msgf("connected: %s", info)
		} else {
			logger.Warn().Msgf("disconnected: %s", info)
		}
	}, opts...)
	if err != nil {
		return err
	}
	defer sess.Close()
	ref.Driver = sess.driver

	if b != nil {
		if err := b.Start(mqtt.NewClient(b.ClientOptions())); err != nil {
			return err
		}
		defer b.Stop()
	}

	logger.Info().Msgf("gatepro running on %s", sess.Info())
	err = sess.Run(ctx)

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if serr := srv.Shutdown(shutdownCtx); serr != nil {
			logger.Warn().Err(serr).Msg("metrics server shutdown")
		}
	}
	logger.Info().Msg("gatepro stopped")
	return err
}

// serveMetrics exposes reg on /metrics with a /health probe
func serveMetrics(addr string, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Info().Msgf("metrics listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics server failed")
		}
	}()
	return srv
}
