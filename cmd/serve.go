package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/sheepgate/sheepgate/internal/clock"
	"github.com/sheepgate/sheepgate/internal/gateway"
	"github.com/sheepgate/sheepgate/internal/gatewaymetrics"
	"github.com/sheepgate/sheepgate/internal/logger"
	"github.com/sheepgate/sheepgate/internal/store/memstore"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "start the gateway's metrics endpoint and placement layer",
	RunE:  runServe,
}

// runServe wires config, logging, and metrics, then blocks until the
// process receives an interrupt. The distributed-cluster wire-protocol
// client that would back internal/store.ObjectStore in production is out
// of scope for this repository; serve runs against the in-memory
// reference store so the placement and metrics stack can be exercised
// end to end without that client.
func runServe(cmd *cobra.Command, args []string) error {
	c, err := loadConfig()
	if err != nil {
		return err
	}
	if err := logger.Init(c.Logging); err != nil {
		return err
	}

	exporter, err := otelprom.New()
	if err != nil {
		return fmt.Errorf("cmd: start prometheus exporter: %w", err)
	}
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	defer provider.Shutdown(cmd.Context())

	metrics, err := gatewaymetrics.New(provider.Meter("sheepgate"))
	if err != nil {
		return fmt.Errorf("cmd: build metrics handle: %w", err)
	}

	gw := gateway.New(memstore.New(), clock.Real(), metrics)
	_ = gw // wired for the (out of scope) HTTP front end to dispatch through

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: c.Metrics.Addr, Handler: mux}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	logger.Infof(ctx, "sheepgate metrics listening on %s", c.Metrics.Addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), c.Placement.RequestTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	}
}
