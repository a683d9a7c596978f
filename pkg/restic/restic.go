package restic

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/tarnmoor/preseed/pkg/log"
	"github.com/tarnmoor/preseed/pkg/types"
)

const (
	// DefaultCheckTimeout bounds the repository reachability probe. The
	// probe exists to fail fast, so this is deliberately short.
	DefaultCheckTimeout = 30 * time.Second

	// DefaultRetryDelay is the pause before the retry attempt.
	DefaultRetryDelay = 30 * time.Second

	// DefaultRetries is the number of retries after the first failed
	// restore attempt.
	DefaultRetries = 1
)

// Runner executes restic with an explicit environment. Credentials reach
// restic via environment variables, so the zfs Runner (which inherits the
// process environment) is not reused here.
type Runner interface {
	Run(ctx context.Context, env []string, name string, args ...string) (string, error)
}

// ExecRunner runs commands on the host with the given extra environment.
type ExecRunner struct{}

// Run implements Runner using os/exec.
func (ExecRunner) Run(ctx context.Context, env []string, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = append(os.Environ(), env...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return "", fmt.Errorf("%s %s: %w", name, strings.Join(args, " "), err)
		}
		return "", fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err, msg)
	}

	return strings.TrimSpace(stdout.String()), nil
}

// Client restores archived snapshots from a restic repository.
type Client struct {
	cfg          *types.ResticConfig
	run          Runner
	checkTimeout time.Duration
	retryDelay   time.Duration
	retries      int
	sleep        func(ctx context.Context, d time.Duration) error
}

// NewClient creates a restic client for the given configuration. A nil
// runner selects the host restic binary.
func NewClient(cfg *types.ResticConfig, r Runner) *Client {
	if r == nil {
		r = ExecRunner{}
	}
	delay := cfg.RetryDelay
	if delay <= 0 {
		delay = DefaultRetryDelay
	}
	retries := cfg.Retries
	if retries <= 0 {
		retries = DefaultRetries
	}
	return &Client{
		cfg:          cfg,
		run:          r,
		checkTimeout: DefaultCheckTimeout,
		retryDelay:   delay,
		retries:      retries,
		sleep:        sleepCtx,
	}
}

// Check probes repository reachability with a short timeout. Reading the
// repository config is the cheapest authenticated round trip restic has.
func (c *Client) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.checkTimeout)
	defer cancel()

	env, err := c.environment()
	if err != nil {
		return err
	}

	if _, err := c.run.Run(ctx, env, "restic", c.baseArgs("cat", "config")...); err != nil {
		return fmt.Errorf("repository %s unreachable: %w", c.cfg.Repository, err)
	}
	return nil
}

// Restore fetches the latest archived snapshot of the configured
// sub-paths into targetDir, retrying after a fixed delay on failure.
func (c *Client) Restore(ctx context.Context, targetDir string) error {
	env, err := c.environment()
	if err != nil {
		return err
	}

	args := c.baseArgs("restore", "latest", "--target", targetDir)
	for _, p := range c.cfg.Paths {
		args = append(args, "--include", "/"+strings.TrimPrefix(p, "/"))
	}

	logger := log.WithComponent("restic")
	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			logger.Warn().Err(lastErr).Dur("delay", c.retryDelay).Msg("restore failed, retrying")
			if err := c.sleep(ctx, c.retryDelay); err != nil {
				return err
			}
		}

		if _, err := c.run.Run(ctx, env, "restic", args...); err != nil {
			lastErr = err
			continue
		}
		return nil
	}

	return fmt.Errorf("restore into %s: %w", targetDir, lastErr)
}

func (c *Client) baseArgs(args ...string) []string {
	base := []string{"-r", c.cfg.Repository, "--password-file", c.cfg.PasswordFile}
	return append(base, args...)
}

// environment assembles the extra environment for restic, loading the
// optional environment file (object-store credentials).
func (c *Client) environment() ([]string, error) {
	if c.cfg.EnvironmentFile == "" {
		return nil, nil
	}

	vars, err := godotenv.Read(c.cfg.EnvironmentFile)
	if err != nil {
		return nil, fmt.Errorf("read environment file %s: %w", c.cfg.EnvironmentFile, err)
	}

	env := make([]string, 0, len(vars))
	for k, v := range vars {
		env = append(env, k+"="+v)
	}
	return env, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
