package notify

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/tarnmoor/preseed/pkg/log"
	"github.com/tarnmoor/preseed/pkg/types"
)

// Notifier dispatches a notification by symbolic template name to the
// external notification router.
type Notifier interface {
	Notify(ctx context.Context, template types.NotificationTemplate, service, message string) error
}

// DefaultCommand is the dispatcher invoked when none is configured. The
// router receives the template name, service, and message as arguments
// and decides delivery itself.
var DefaultCommand = []string{"preseed-notify"}

// CommandNotifier dispatches by running an external command with the
// template, service, and human-readable message appended as arguments.
type CommandNotifier struct {
	Command []string
	Timeout time.Duration
}

// NewCommandNotifier creates a command-based notifier. An empty command
// selects DefaultCommand.
func NewCommandNotifier(command []string) *CommandNotifier {
	if len(command) == 0 {
		command = DefaultCommand
	}
	return &CommandNotifier{
		Command: command,
		Timeout: 30 * time.Second,
	}
}

// Notify runs the dispatcher command. Dispatch failures are logged but
// reported back so callers can decide; the orchestrator treats them as
// non-fatal because losing a notification must never fail a restore.
func (n *CommandNotifier) Notify(ctx context.Context, template types.NotificationTemplate, service, message string) error {
	ctx, cancel := context.WithTimeout(ctx, n.Timeout)
	defer cancel()

	args := append(append([]string{}, n.Command[1:]...), string(template), service, message)
	cmd := exec.CommandContext(ctx, n.Command[0], args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	logger := log.WithComponent("notify")
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		logger.Warn().
			Err(err).
			Str("template", string(template)).
			Str("stderr", msg).
			Msg("notification dispatch failed")
		if msg != "" {
			return fmt.Errorf("dispatch %s: %w: %s", template, err, msg)
		}
		return fmt.Errorf("dispatch %s: %w", template, err)
	}

	logger.Debug().
		Str("template", string(template)).
		Str("service", service).
		Msg("notification dispatched")
	return nil
}

// Nop is a Notifier that discards everything. Used when notifications
// are disabled for a volume.
type Nop struct{}

// Notify implements Notifier as a no-op.
func (Nop) Notify(context.Context, types.NotificationTemplate, string, string) error {
	return nil
}
