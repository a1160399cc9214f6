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

	"github.com/satori-nvr/satori/internal/agent"
	satorihttp "github.com/satori-nvr/satori/internal/http"
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
	Short: "Run the camera agent",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg, err := satoriconfig.LoadAgentConfig(viper.GetViper())
	if err != nil {
		return err
	}

	logger := slog.Default().With("camera", cfg.Camera)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tracerProvider, err := observability.NewTracerProvider(ctx, "satori-agent", observability.TracingConfig{
		Enabled:      cfg.Tracing.Enabled,
		Endpoint:     cfg.Tracing.Endpoint,
		SamplingRate: cfg.Tracing.SamplingRate,
	})
	if err != nil {
		return err
	}
	defer func() { _ = tracerProvider.Shutdown(context.Background()) }()

	supervisor, err := agent.NewSupervisor(agent.SupervisorConfig{
		URL:                     cfg.Stream.URL,
		FFmpegInputArgs:         cfg.Stream.FFmpegInputArgs,
		HLSSegmentTime:          cfg.Stream.HLSSegmentTime,
		HLSRetainedSegmentCount: cfg.Stream.HLSRetainedSegmentCount,
		FFmpegRestartDelay:      cfg.Stream.FFmpegRestartDelay.Duration(),
		VideoDirectory:          cfg.VideoDirectory,
		Logger:                  logger,
	})
	if err != nil {
		return err
	}

	index := agent.NewIndex()
	watcher := agent.NewWatcher(cfg.VideoDirectory, index, 0, logger)
	handlers := agent.NewHandlers(cfg.Camera, cfg.VideoDirectory, index, logger)

	server := satorihttp.NewServer(serverConfigFrom(cfg.ListenAddr), logger, version.Short())
	handlers.Register(server)

	go supervisor.Run(ctx)
	go watcher.Run(ctx)

	return server.ListenAndServe(ctx)
}
