package replication

import (
	"strings"

	"github.com/tarnmoor/preseed/pkg/types"
)

// TopologyEntry associates a dataset-path prefix with a remote
// replication target. Leaf datasets inherit the nearest ancestor entry,
// so a whole tree of services can share one entry on their common parent.
type TopologyEntry struct {
	Host        string   `yaml:"host"`
	Dataset     string   `yaml:"dataset"`
	SSHUser     string   `yaml:"sshUser"`
	SSHKeyPath  string   `yaml:"sshKey"`
	SendOptions []string `yaml:"sendOptions"`
	RecvOptions []string `yaml:"recvOptions"`
}

// Resolve returns the replication target for dataset: the topology entry
// of the dataset itself or of its nearest ancestor, with the remote
// dataset extended by the path suffix between the matched prefix and the
// queried dataset. Returns nil when replication is disabled or no
// ancestor entry exists; absence is expected, never an error.
func Resolve(dataset string, topology map[string]TopologyEntry, enabled bool) *types.ReplicationTarget {
	if !enabled || len(topology) == 0 {
		return nil
	}

	prefix := dataset
	for {
		if entry, ok := topology[prefix]; ok {
			remote := entry.Dataset
			suffix := strings.TrimPrefix(strings.TrimPrefix(dataset, prefix), "/")
			if suffix != "" {
				remote = entry.Dataset + "/" + suffix
			}
			return &types.ReplicationTarget{
				Host:        entry.Host,
				Dataset:     remote,
				SSHUser:     entry.SSHUser,
				SSHKeyPath:  entry.SSHKeyPath,
				SendOptions: entry.SendOptions,
				RecvOptions: entry.RecvOptions,
			}
		}

		i := strings.LastIndexByte(prefix, '/')
		if i < 0 {
			return nil
		}
		prefix = prefix[:i]
	}
}
