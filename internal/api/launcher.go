package api

import (
	"fmt"
	"os"
	"os/exec"

	"go.uber.org/zap"

	"github.com/Zeebrow/ec2-price-tracker/internal/harvest"
)

// Launcher starts a harvest run and returns the process id.
type Launcher interface {
	Launch(opts harvest.Options) (int, error)
}

// ProcessLauncher spawns the harvester binary with the argv rendered from
// the run options. The child is not waited on by the request; a reaper
// goroutine collects its exit so the process table stays clean. The run
// itself reports progress through the shared status row and metrics.
type ProcessLauncher struct {
	binary string
	logger *zap.Logger
}

// NewProcessLauncher returns a launcher for the given harvester executable.
// The binary is resolved through PATH when not an absolute path.
func NewProcessLauncher(binary string, logger *zap.Logger) *ProcessLauncher {
	return &ProcessLauncher{binary: binary, logger: logger}
}

// Launch starts one detached run.
func (l *ProcessLauncher) Launch(opts harvest.Options) (int, error) {
	args := opts.Argv()
	cmd := exec.Command(l.binary, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("start %s: %w", l.binary, err)
	}
	pid := cmd.Process.Pid
	l.logger.Info("spawned harvester process",
		zap.Int("pid", pid),
		zap.String("binary", l.binary),
		zap.Strings("args", args),
	)

	go func() {
		if err := cmd.Wait(); err != nil {
			l.logger.Warn("harvester process exited with error",
				zap.Int("pid", pid), zap.Error(err))
			return
		}
		l.logger.Info("harvester process exited", zap.Int("pid", pid))
	}()

	return pid, nil
}
