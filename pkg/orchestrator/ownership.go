package orchestrator

import (
	"fmt"
	"io/fs"
	"os"
	"os/user"
	"path/filepath"
	"strconv"
)

// fixOwnership applies the declared owner and group to the mountpoint
// tree, skipping the reserved snapshot metadata directory.
func (o *Orchestrator) fixOwnership() error {
	spec := o.cfg.Spec
	if spec.Owner == "" && spec.Group == "" {
		return nil
	}

	uid, err := resolveUID(spec.Owner)
	if err != nil {
		return err
	}
	gid, err := resolveGID(spec.Group)
	if err != nil {
		return err
	}

	return filepath.WalkDir(spec.Mountpoint, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == spec.Mountpoint {
				return err
			}
			o.logger.Warn().Err(err).Str("path", path).Msg("skipping unreadable path during chown")
			return nil
		}
		if d.IsDir() && d.Name() == ".zfs" {
			return filepath.SkipDir
		}
		if err := os.Lchown(path, uid, gid); err != nil {
			o.logger.Warn().Err(err).Str("path", path).Msg("chown failed")
		}
		return nil
	})
}

// resolveUID maps a user name or numeric ID to a uid. Empty means leave
// unchanged.
func resolveUID(owner string) (int, error) {
	if owner == "" {
		return -1, nil
	}
	if n, err := strconv.Atoi(owner); err == nil {
		return n, nil
	}
	u, err := user.Lookup(owner)
	if err != nil {
		return -1, fmt.Errorf("resolve owner %q: %w", owner, err)
	}
	n, err := strconv.Atoi(u.Uid)
	if err != nil {
		return -1, fmt.Errorf("resolve owner %q: %w", owner, err)
	}
	return n, nil
}

// resolveGID maps a group name or numeric ID to a gid. Empty means leave
// unchanged.
func resolveGID(group string) (int, error) {
	if group == "" {
		return -1, nil
	}
	if n, err := strconv.Atoi(group); err == nil {
		return n, nil
	}
	g, err := user.LookupGroup(group)
	if err != nil {
		return -1, fmt.Errorf("resolve group %q: %w", group, err)
	}
	n, err := strconv.Atoi(g.Gid)
	if err != nil {
		return -1, fmt.Errorf("resolve group %q: %w", group, err)
	}
	return n, nil
}

// mountpointEmpty reports whether the mount directory holds no entries.
// A missing directory counts as empty.
func mountpointEmpty(dir string) (bool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return true, nil
		}
		return false, err
	}
	return len(entries) == 0, nil
}
