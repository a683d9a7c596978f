package journal

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/tarnmoor/preseed/pkg/types"
)

// DefaultDataDir is where the journal database lives by default.
const DefaultDataDir = "/var/lib/preseed"

var (
	// Bucket names
	bucketRuns   = []byte("runs")
	bucketLatest = []byte("latest")
)

// Journal is a bbolt-backed append-only record of orchestrator runs.
type Journal struct {
	db *bolt.DB
}

// Open opens (or creates) the journal database under dataDir.
func Open(dataDir string) (*Journal, error) {
	if dataDir == "" {
		dataDir = DefaultDataDir
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir %s: %w", dataDir, err)
	}

	dbPath := filepath.Join(dataDir, "preseed.db")
	db, err := bolt.Open(dbPath, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketRuns, bucketLatest} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Journal{db: db}, nil
}

// Close closes the database
func (j *Journal) Close() error {
	return j.db.Close()
}

// Append stores one run record and updates the per-service latest entry.
func (j *Journal) Append(rec *types.RunRecord) error {
	return j.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}

		// Keys sort chronologically so cursors walk runs in time order.
		key := rec.StartedAt.UTC().Format(time.RFC3339Nano) + "|" + rec.ID
		if err := tx.Bucket(bucketRuns).Put([]byte(key), data); err != nil {
			return err
		}
		return tx.Bucket(bucketLatest).Put([]byte(rec.Service), data)
	})
}

// Latest returns the most recent run record for a service, or nil if the
// service has never run.
func (j *Journal) Latest(service string) (*types.RunRecord, error) {
	var rec *types.RunRecord
	err := j.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketLatest).Get([]byte(service))
		if data == nil {
			return nil
		}
		rec = &types.RunRecord{}
		return json.Unmarshal(data, rec)
	})
	return rec, err
}

// List returns up to limit run records for a service, newest first. An
// empty service matches all services; limit <= 0 means no limit.
func (j *Journal) List(service string, limit int) ([]*types.RunRecord, error) {
	var recs []*types.RunRecord
	err := j.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketRuns).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			var rec types.RunRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			if service != "" && rec.Service != service {
				continue
			}
			recs = append(recs, &rec)
			if limit > 0 && len(recs) >= limit {
				return nil
			}
		}
		return nil
	})
	return recs, err
}
