package agent

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sync/atomic"
	"time"
)

// SupervisorConfig configures the transcoder child process. ffmpeg is
// treated as opaque: Satori discards its stdout/stderr, and never
// demuxes or re-encodes anything itself.
type SupervisorConfig struct {
	URL                     string
	FFmpegInputArgs         []string
	HLSSegmentTime          int
	HLSRetainedSegmentCount int
	FFmpegRestartDelay      time.Duration
	VideoDirectory          string
	FFmpegPath              string // resolved via exec.LookPath when empty
	ShutdownGrace           time.Duration
	Logger                  *slog.Logger
}

// Supervisor keeps the ffmpeg child alive: spawn, observe, on any exit
// wait FFmpegRestartDelay and respawn. The restart loop is unbounded;
// a child crash is never fatal to the Agent.
type Supervisor struct {
	cfg      SupervisorConfig
	restarts atomic.Uint64
}

// NewSupervisor validates cfg and returns a Supervisor. The video
// directory is created here; a directory that cannot be created is
// fatal at Agent startup per the failure policy.
func NewSupervisor(cfg SupervisorConfig) (*Supervisor, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.ShutdownGrace == 0 {
		cfg.ShutdownGrace = 5 * time.Second
	}
	if err := os.MkdirAll(cfg.VideoDirectory, 0o755); err != nil {
		return nil, fmt.Errorf("creating video directory %q: %w", cfg.VideoDirectory, err)
	}
	return &Supervisor{cfg: cfg}, nil
}

// Restarts returns the number of times the child has been respawned.
func (s *Supervisor) Restarts() uint64 {
	return s.restarts.Load()
}

// Run blocks, supervising the child until ctx is cancelled.
func (s *Supervisor) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		if err := s.runOnce(ctx); err != nil {
			s.cfg.Logger.Warn("ffmpeg child exited", "error", err)
		} else {
			s.cfg.Logger.Warn("ffmpeg child exited")
		}

		if ctx.Err() != nil {
			return
		}

		s.restarts.Add(1)
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.cfg.FFmpegRestartDelay):
		}
	}
}

// runOnce spawns the child and blocks until it exits or ctx is cancelled.
func (s *Supervisor) runOnce(ctx context.Context) error {
	ffmpegPath := s.cfg.FFmpegPath
	if ffmpegPath == "" {
		path, err := exec.LookPath("ffmpeg")
		if err != nil {
			return fmt.Errorf("ffmpeg not found: %w", err)
		}
		ffmpegPath = path
	}

	args := s.buildArgs()
	cmd := exec.Command(ffmpegPath, args...)
	cmd.Dir = s.cfg.VideoDirectory
	cmd.Stdout = nil
	cmd.Stderr = nil

	s.cfg.Logger.Info("starting ffmpeg child", "args", args)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting ffmpeg: %w", err)
	}

	exited := make(chan error, 1)
	go func() { exited <- cmd.Wait() }()

	select {
	case err := <-exited:
		return err
	case <-ctx.Done():
		s.terminate(cmd, exited)
		return nil
	}
}

// terminate sends a graceful signal and escalates to Kill after the
// configured grace period.
func (s *Supervisor) terminate(cmd *exec.Cmd, exited <-chan error) {
	if cmd.Process == nil {
		return
	}
	_ = cmd.Process.Signal(os.Interrupt)

	select {
	case <-exited:
		return
	case <-time.After(s.cfg.ShutdownGrace):
		s.cfg.Logger.Warn("ffmpeg child did not exit after graceful signal, killing")
		_ = cmd.Process.Kill()
		<-exited
	}
}

// buildArgs assembles the ffmpeg command line: opaque input args, then
// the source URL, then an HLS output writing into VideoDirectory.
func (s *Supervisor) buildArgs() []string {
	args := []string{"-hide_banner", "-loglevel", "warning", "-y"}
	args = append(args, s.cfg.FFmpegInputArgs...)
	args = append(args, "-i", s.cfg.URL)

	// Output 1: the rolling HLS playlist and segment ring, remuxed without
	// re-encoding (core treats segments as opaque, never transcodes).
	args = append(args,
		"-map", "0",
		"-c", "copy",
		"-f", "hls",
		"-hls_time", fmt.Sprintf("%d", s.cfg.HLSSegmentTime),
		"-hls_list_size", fmt.Sprintf("%d", s.cfg.HLSRetainedSegmentCount),
		"-hls_flags", "delete_segments",
		"-hls_segment_filename", filepath.Join(s.cfg.VideoDirectory, "seg_%08d.ts"),
		filepath.Join(s.cfg.VideoDirectory, "stream.m3u8"),
	)

	// Output 2: a rolling still frame, refreshed roughly once a second.
	args = append(args,
		"-map", "0:v:0",
		"-vf", "fps=1",
		"-update", "1",
		filepath.Join(s.cfg.VideoDirectory, "frame.jpg"),
	)

	return args
}
