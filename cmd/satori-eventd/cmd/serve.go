package cmd

import (
	"context"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/satori-nvr/satori/internal/eventd"
	satorihttp "github.com/satori-nvr/satori/internal/http"
	"github.com/satori-nvr/satori/internal/mqttutil"
	"github.com/satori-nvr/satori/internal/observability"
	"github.com/satori-nvr/satori/internal/satoriconfig"
	"github.com/satori-nvr/satori/internal/version"
)

// serverConfigFrom parses a "host:port" listen address into a
// satorihttp.ServerConfig, falling back to its defaults on a malformed port.
func serverConfigFrom(addr string) satorihttp.ServerConfig {
	cfg := satorihttp.DefaultServerConfig()
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return cfg
	}
	if port, err := strconv.Atoi(portStr); err == nil {
		cfg.Port = port
	}
	cfg.Host = host
	return cfg
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the event processor",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg, err := satoriconfig.LoadEventdConfig(viper.GetViper())
	if err != nil {
		return err
	}

	logger := slog.Default()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tracerProvider, err := observability.NewTracerProvider(ctx, "satori-eventd", observability.TracingConfig{
		Enabled:      cfg.Tracing.Enabled,
		Endpoint:     cfg.Tracing.Endpoint,
		SamplingRate: cfg.Tracing.SamplingRate,
	})
	if err != nil {
		return err
	}
	defer func() { _ = tracerProvider.Shutdown(context.Background()) }()

	mqttClient, err := mqttutil.Connect(cfg.MQTT, logger)
	if err != nil {
		return err
	}
	defer mqttClient.Close()

	processor, err := eventd.New(cfg, mqttClient, logger)
	if err != nil {
		return err
	}

	handlers := eventd.NewHandlers(processor)

	server := satorihttp.NewServer(serverConfigFrom(cfg.ListenAddr), logger, version.Short())
	handlers.Register(server.API())

	go processor.Run(ctx)

	return server.ListenAndServe(ctx)
}
