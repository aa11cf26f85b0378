// Package diag exposes pipeline counters in Prometheus text exposition
// format on /metrics, so dropped-versus-kept rates and run cadence stay
// scrapeable without a full metrics library in the hot path.
package diag

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"google.golang.org/protobuf/proto"

	"github.com/incidentlens/incidentlens/internal/pipeline"
)

// Metrics accumulates process-local pipeline counters. Safe for
// concurrent use.
type Metrics struct {
	mu          sync.Mutex
	runs        float64
	rowsIn      float64
	rowsKept    float64
	rowsDropped float64
	fitFailures float64
	keysTracked float64
	lastRunUnix float64
}

// New returns an empty Metrics.
func New() *Metrics {
	return &Metrics{}
}

// ObserveRun folds one finished report into the counters.
func (m *Metrics) ObserveRun(rep *pipeline.Report, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs++
	m.rowsIn += float64(rep.RowsIn)
	m.rowsKept += float64(rep.Kept)
	m.rowsDropped += float64(rep.Dropped)
	m.fitFailures += float64(rep.FitFailures)
	m.keysTracked = float64(len(rep.Keys))
	m.lastRunUnix = float64(at.Unix())
}

// Handler serves GET /metrics in the text exposition format.
func (m *Metrics) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		format := expfmt.NewFormat(expfmt.TypeTextPlain)
		w.Header().Set("Content-Type", string(format))

		enc := expfmt.NewEncoder(w, format)
		for _, mf := range m.families() {
			if err := enc.Encode(mf); err != nil {
				slog.Error("diag: encode metric family", "metric", mf.GetName(), "err", err)
				return
			}
		}
	})
}

// families snapshots the counters into metric families.
func (m *Metrics) families() []*dto.MetricFamily {
	m.mu.Lock()
	defer m.mu.Unlock()

	return []*dto.MetricFamily{
		counter("incidentlens_runs_total", "Pipeline runs completed.", m.runs),
		counter("incidentlens_rows_in_total", "Raw rows fetched from the record source.", m.rowsIn),
		counter("incidentlens_rows_kept_total", "Rows that survived cleaning.", m.rowsKept),
		counter("incidentlens_rows_dropped_total", "Rows dropped by cleaning.", m.rowsDropped),
		counter("incidentlens_fit_failures_total", "Per-key trend fits that had too little data.", m.fitFailures),
		gauge("incidentlens_keys_tracked", "Grouping keys in the latest run.", m.keysTracked),
		gauge("incidentlens_last_run_timestamp_seconds", "Unix time of the latest completed run.", m.lastRunUnix),
	}
}

func counter(name, help string, v float64) *dto.MetricFamily {
	return &dto.MetricFamily{
		Name:   proto.String(name),
		Help:   proto.String(help),
		Type:   dto.MetricType_COUNTER.Enum(),
		Metric: []*dto.Metric{{Counter: &dto.Counter{Value: proto.Float64(v)}}},
	}
}

func gauge(name, help string, v float64) *dto.MetricFamily {
	return &dto.MetricFamily{
		Name:   proto.String(name),
		Help:   proto.String(help),
		Type:   dto.MetricType_GAUGE.Enum(),
		Metric: []*dto.Metric{{Gauge: &dto.Gauge{Value: proto.Float64(v)}}},
	}
}
