package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tarnmoor/preseed/pkg/types"
)

// DefaultTextfileDir is where node_exporter's textfile collector looks
// for metric files by default.
const DefaultTextfileDir = "/var/lib/node_exporter/textfile"

// Writer publishes run outcomes as textfile-collector metric files, one
// file per service. The consumer is an external scraper reading the
// textfile directory, not a live HTTP endpoint; preseed is a batch
// process and is long gone by the time the scrape happens.
type Writer struct {
	dir string
}

// NewWriter creates a metrics writer. An empty dir selects
// DefaultTextfileDir.
func NewWriter(dir string) *Writer {
	if dir == "" {
		dir = DefaultTextfileDir
	}
	return &Writer{dir: dir}
}

// FilePath returns the metric file path for a service.
func (w *Writer) FilePath(service string) string {
	name := strings.ReplaceAll(service, "/", "-")
	return filepath.Join(w.dir, "preseed_"+name+".prom")
}

// WriteOutcome writes the outcome gauges for one completed run:
// status (1 success, 0 failure) labeled by method, duration, and
// completion timestamp. WriteToTextfile replaces the file atomically, so
// the scraper never sees a partial write.
func (w *Writer) WriteOutcome(service string, method types.RestoreMethod, status types.RunStatus, duration time.Duration) error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("create metrics dir %s: %w", w.dir, err)
	}

	reg := prometheus.NewRegistry()

	statusGauge := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "preseed_restore_status",
			Help: "Restore outcome by method (1 = success, 0 = failure)",
		},
		[]string{"service", "method"},
	)

	durationGauge := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "preseed_restore_duration_seconds",
			Help: "Duration of the restore run in seconds",
		},
		[]string{"service"},
	)

	completedGauge := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "preseed_restore_completed_timestamp_seconds",
			Help: "Unix timestamp of restore run completion",
		},
		[]string{"service"},
	)

	reg.MustRegister(statusGauge)
	reg.MustRegister(durationGauge)
	reg.MustRegister(completedGauge)

	value := 0.0
	if status == types.StatusSuccess || status == types.StatusSkipped {
		value = 1.0
	}

	statusGauge.WithLabelValues(service, string(method)).Set(value)
	durationGauge.WithLabelValues(service).Set(duration.Seconds())
	completedGauge.WithLabelValues(service).Set(float64(time.Now().Unix()))

	if err := prometheus.WriteToTextfile(w.FilePath(service), reg); err != nil {
		return fmt.Errorf("write metrics for %s: %w", service, err)
	}
	return nil
}
