package services

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"ccs-host/internal/acquire"
	"ccs-host/internal/config"
	"ccs-host/internal/logger"
)

// RunOptions carries the per-invocation knobs of `ccs run`.
type RunOptions struct {
	// DownstreamArgs, when non-empty, is the command to launch with the
	// effective endpoint in its environment. Empty means print-and-wait.
	DownstreamArgs []string
}

/**
 * RunService drives one `ccs run` invocation end to end
 * @description
 * - Acquire the proxy binary, obtain a live proxy under the startup
 *   lock, assemble the transformation chain, then hand the effective
 *   endpoint to the downstream command
 * - The exit path tears down only what this invocation owns: its chain
 *   links and its session registration; the shared proxy stays up for
 *   whoever else depends on it
 */
type RunService struct {
	cfg   *config.AppConfig
	chain *ChainService
}

// NewRunService creates the orchestrator from loaded configuration.
func NewRunService(cfg *config.AppConfig) *RunService {
	return &RunService{
		cfg:   cfg,
		chain: NewChainService(cfg.Chain),
	}
}

// EnsureBinary acquires the proxy executable, recording the outcome.
func (s *RunService) EnsureBinary(ctx context.Context) (string, error) {
	acquirer, err := acquire.NewAcquirer(s.cfg.Release.BaseUrl, s.cfg.Release.PackageName)
	if err != nil {
		return "", err
	}
	execPath, err := acquirer.Ensure(ctx, s.cfg.Release.Version)
	if err != nil {
		recordDownload("failure", 1)
		return "", err
	}
	recordDownload("success", 1)
	return execPath, nil
}

// UpgradeBinary force-reacquires the proxy executable for `ccs upgrade`.
func (s *RunService) UpgradeBinary(ctx context.Context) (string, error) {
	acquirer, err := acquire.NewAcquirer(s.cfg.Release.BaseUrl, s.cfg.Release.PackageName)
	if err != nil {
		return "", err
	}
	execPath, err := acquirer.ForceUpgrade(ctx, s.cfg.Release.Version)
	if err != nil {
		recordDownload("failure", 1)
		return "", err
	}
	recordDownload("success", 1)
	return execPath, nil
}

/**
 * Run the full invocation
 * @description
 * - Blocks until the downstream command exits, or until SIGINT/SIGTERM
 *   when no downstream command was given
 */
func (s *RunService) Run(ctx context.Context, opts RunOptions) error {
	execPath, err := s.EnsureBinary(ctx)
	if err != nil {
		return err
	}

	lifecycle := NewLifecycleManager(s.cfg.Proxy, execPath, s.cfg.Release.Version)
	result, err := lifecycle.Obtain(ctx)
	if err != nil {
		return err
	}
	logger.Infof("Proxy ready on port %d (pid %d, %s)", result.Port, result.Pid, result.Ownership)

	defer func() {
		s.chain.Teardown()
		lifecycle.Unregister(result.SessionId)
	}()

	endpoint := s.chain.Assemble(ctx, result.Endpoint)
	fmt.Printf("Effective endpoint: %s\n", endpoint)

	if len(opts.DownstreamArgs) > 0 {
		return s.runDownstream(ctx, endpoint, opts.DownstreamArgs)
	}
	return s.waitForSignal(ctx)
}

func (s *RunService) runDownstream(ctx context.Context, endpoint string, args []string) error {
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Env = append(os.Environ(), "CCS_BASE_URL="+endpoint)
	logger.Debugf("Launching downstream command %v", args)
	return cmd.Run()
}

func (s *RunService) waitForSignal(ctx context.Context) error {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(signals)

	select {
	case sig := <-signals:
		logger.Infof("Received %s, shutting down", sig)
	case <-ctx.Done():
		logger.Info("Invocation cancelled, shutting down")
	}
	return nil
}
