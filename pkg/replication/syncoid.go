package replication

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tarnmoor/preseed/pkg/log"
	"github.com/tarnmoor/preseed/pkg/types"
	"github.com/tarnmoor/preseed/pkg/zfs"
)

// DefaultPullTimeout bounds a single replica pull. Pulls move full
// datasets over the network, so this is deliberately long.
const DefaultPullTimeout = time.Hour

// Syncoid pulls dataset replicas from a remote host using the syncoid
// transport.
type Syncoid struct {
	run     zfs.Runner
	timeout time.Duration
}

// NewSyncoid creates a Syncoid transport. A nil runner selects the host
// syncoid binary; a zero timeout selects DefaultPullTimeout.
func NewSyncoid(r zfs.Runner, timeout time.Duration) *Syncoid {
	if r == nil {
		r = zfs.ExecRunner{}
	}
	if timeout <= 0 {
		timeout = DefaultPullTimeout
	}
	return &Syncoid{run: r, timeout: timeout}
}

// Pull replicates the remote dataset onto dest. The remote side is left
// untouched; a timeout counts as a transport failure.
func (s *Syncoid) Pull(ctx context.Context, target *types.ReplicationTarget, dest string) error {
	if target == nil {
		return fmt.Errorf("no replication target")
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	args := []string{"--no-sync-snap", "--no-privilege-elevation"}
	if target.SSHKeyPath != "" {
		args = append(args, "--sshkey", target.SSHKeyPath)
	}
	if len(target.SendOptions) > 0 {
		args = append(args, "--sendoptions="+strings.Join(target.SendOptions, " "))
	}
	if len(target.RecvOptions) > 0 {
		args = append(args, "--recvoptions="+strings.Join(target.RecvOptions, " "))
	}

	source := target.Dataset
	if target.Host != "" {
		user := target.SSHUser
		if user == "" {
			user = "root"
		}
		source = fmt.Sprintf("%s@%s:%s", user, target.Host, target.Dataset)
	}
	args = append(args, source, dest)

	logger := log.WithComponent("syncoid")
	logger.Info().Str("source", source).Str("dest", dest).Msg("starting replica pull")

	if _, err := s.run.Run(ctx, "syncoid", args...); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("replica pull from %s timed out after %s: %w", source, s.timeout, err)
		}
		return fmt.Errorf("replica pull from %s: %w", source, err)
	}

	logger.Info().Str("dest", dest).Msg("replica pull complete")
	return nil
}
