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

	"github.com/satori-nvr/satori/internal/archiver"
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
	Short: "Run the archiver",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg, err := satoriconfig.LoadArchiverConfig(viper.GetViper())
	if err != nil {
		return err
	}

	logger := slog.Default()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tracerProvider, err := observability.NewTracerProvider(ctx, "satori-archiver", observability.TracingConfig{
		Enabled:      cfg.Tracing.Enabled,
		Endpoint:     cfg.Tracing.Endpoint,
		SamplingRate: cfg.Tracing.SamplingRate,
	})
	if err != nil {
		return err
	}
	defer func() { _ = tracerProvider.Shutdown(context.Background()) }()

	store, err := archiver.NewStore(cfg.Storage)
	if err != nil {
		return err
	}

	queue, err := archiver.LoadQueue(cfg.QueueFile, cfg.MaxBackoff.Duration())
	if err != nil {
		return err
	}

	worker := archiver.NewWorker(queue, store, cfg.AgentURLs, cfg.Cameras, cfg.Interval.Duration(), logger)

	mqttClient, err := mqttutil.Connect(cfg.MQTT, logger)
	if err != nil {
		return err
	}
	defer mqttClient.Close()

	if err := archiver.Ingest(mqttClient, queue, worker, logger); err != nil {
		return err
	}

	handlers := archiver.NewHandlers(queue)

	server := satorihttp.NewServer(serverConfigFrom(cfg.ListenAddr), logger, version.Short())
	handlers.Register(server.API())

	go worker.Run(ctx)

	return server.ListenAndServe(ctx)
}
