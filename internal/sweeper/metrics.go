package sweeper

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	rowsRemoved = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "securechat_sweeper_rows_removed_total",
		Help: "Message rows hard-deleted by the sweeper, by reason.",
	}, []string{"reason"})
	runs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "securechat_sweeper_runs_total",
		Help: "Sweeper runs, by result.",
	}, []string{"result"})
	lastRun = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "securechat_sweeper_last_run_timestamp_seconds",
		Help: "Unix time of the most recent sweep.",
	})
)

func observe(r Report) {
	rowsRemoved.WithLabelValues("expired").Add(float64(r.Expired))
	rowsRemoved.WithLabelValues("soft_deleted").Add(float64(r.SoftDeleted))
	if r.Success {
		runs.WithLabelValues("success").Inc()
	} else {
		runs.WithLabelValues("failure").Inc()
	}
	lastRun.Set(float64(r.RanAt.Unix()))
}
