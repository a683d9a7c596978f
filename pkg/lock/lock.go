package lock

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/tarnmoor/preseed/pkg/log"
)

// DefaultRunDir is where lock files live by default.
const DefaultRunDir = "/run/preseed"

// ErrHeld is returned when another live process holds the lock.
var ErrHeld = errors.New("restore already in progress")

// Info is the persisted content of a lock file.
type Info struct {
	RunID     string    `json:"run_id"`
	PID       int       `json:"pid"`
	Dataset   string    `json:"dataset"`
	StartedAt time.Time `json:"started_at"`
}

// Manager creates per-dataset run locks under a run directory.
type Manager struct {
	dir   string
	alive func(pid int) bool
}

// NewManager creates a lock manager. An empty dir selects DefaultRunDir.
func NewManager(dir string) *Manager {
	if dir == "" {
		dir = DefaultRunDir
	}
	return &Manager{dir: dir, alive: processAlive}
}

// Lock is a held run lock. Release removes it.
type Lock struct {
	path string
	info Info
}

// Info returns the persisted lock content.
func (l *Lock) Info() Info {
	return l.info
}

// Release removes the lock file. Releasing twice is harmless.
func (l *Lock) Release() error {
	err := os.Remove(l.path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("release lock %s: %w", l.path, err)
	}
	return nil
}

// Acquire takes the run lock for dataset. A lock file whose recorded
// owner is still alive fails with ErrHeld; a lock left behind by a dead
// process is stale and gets discarded.
func (m *Manager) Acquire(dataset string) (*Lock, error) {
	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create run dir %s: %w", m.dir, err)
	}

	path := filepath.Join(m.dir, lockName(dataset))
	logger := log.WithComponent("lock")

	for attempt := 0; attempt < 3; attempt++ {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			info := Info{
				RunID:     uuid.New().String(),
				PID:       os.Getpid(),
				Dataset:   dataset,
				StartedAt: time.Now(),
			}
			if err := json.NewEncoder(f).Encode(info); err != nil {
				f.Close()
				os.Remove(path)
				return nil, fmt.Errorf("write lock %s: %w", path, err)
			}
			if err := f.Close(); err != nil {
				os.Remove(path)
				return nil, fmt.Errorf("write lock %s: %w", path, err)
			}
			return &Lock{path: path, info: info}, nil
		}
		if !os.IsExist(err) {
			return nil, fmt.Errorf("create lock %s: %w", path, err)
		}

		existing, err := readInfo(path)
		if err != nil {
			// Unreadable lock file: either corrupt from a crash or
			// removed between our create and read. Clear and retry.
			logger.Warn().Err(err).Str("path", path).Msg("discarding unreadable lock file")
			os.Remove(path)
			continue
		}

		if m.alive(existing.PID) {
			return nil, fmt.Errorf("%w: dataset %s locked by pid %d since %s",
				ErrHeld, dataset, existing.PID, existing.StartedAt.Format(time.RFC3339))
		}

		logger.Warn().
			Int("pid", existing.PID).
			Str("dataset", dataset).
			Msg("discarding stale lock from dead process")
		os.Remove(path)
	}

	return nil, fmt.Errorf("lock %s: too much contention", path)
}

func readInfo(path string) (Info, error) {
	var info Info
	data, err := os.ReadFile(path)
	if err != nil {
		return info, err
	}
	if err := json.Unmarshal(data, &info); err != nil {
		return info, err
	}
	if info.PID <= 0 {
		return info, fmt.Errorf("lock file %s has no pid", path)
	}
	return info, nil
}

// lockName flattens a dataset path into a file name.
func lockName(dataset string) string {
	return strings.ReplaceAll(dataset, "/", "-") + ".lock"
}

// processAlive reports whether a process with the given pid exists.
// Signal 0 performs the existence check without delivering anything;
// EPERM still means the process is there.
func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}
	return errors.Is(err, syscall.EPERM)
}
