package progress

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	latencyDesc = prometheus.NewDesc(
		"job_latency",
		"Histogram of job latency in ms per category.",
		[]string{"category"}, nil,
	)
	totalDoneDesc = prometheus.NewDesc(
		"job_total_done",
		"Jobs completed so far.",
		nil, nil,
	)
	totalExpectedDesc = prometheus.NewDesc(
		"job_total_expected",
		"Jobs expected for this run.",
		nil, nil,
	)
)

// Describe implements prometheus.Collector.
func (t *Tracker) Describe(ch chan<- *prometheus.Desc) {
	ch <- latencyDesc
	ch <- totalDoneDesc
	ch <- totalExpectedDesc
}

// Collect implements prometheus.Collector. Each category is snapshotted
// under its own mutex; the scrape is consistent per category but not
// globally atomic.
func (t *Tracker) Collect(ch chan<- prometheus.Metric) {
	t.mu.RLock()
	names := make([]string, 0, len(t.categories))
	metrics := make([]*categoryMetric, 0, len(t.categories))
	for name, m := range t.categories {
		names = append(names, name)
		metrics = append(metrics, m)
	}
	t.mu.RUnlock()

	for i, m := range metrics {
		s := m.snapshot()

		// Cumulative counts keyed by upper bound; +Inf is implied by count.
		buckets := make(map[float64]uint64, len(latencyBuckets))
		for _, b := range latencyBuckets {
			var n uint64
			for _, l := range s.latencies {
				if l <= b {
					n++
				}
			}
			buckets[float64(b)] = n
		}

		ch <- prometheus.MustNewConstHistogram(
			latencyDesc,
			uint64(s.count),
			float64(s.sum),
			buckets,
			names[i],
		)
	}

	ch <- prometheus.MustNewConstMetric(totalDoneDesc, prometheus.GaugeValue, float64(t.done.Load()))
	ch <- prometheus.MustNewConstMetric(totalExpectedDesc, prometheus.GaugeValue, float64(t.total))
}
