package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsRegistration(t *testing.T) {
	metrics := []prometheus.Collector{
		HTTPRequestsTotal,
		HTTPRequestDuration,
		NotificationsTotal,
		ReportsGeneratedTotal,
		FilesUploadedBytesTotal,
		EmailsSentTotal,
		RateLimitedTotal,
	}

	for _, metric := range metrics {
		desc := make(chan *prometheus.Desc, 1)
		metric.Describe(desc)
		close(desc)

		require.NotNil(t, <-desc, "metric should have a valid descriptor")
	}
}

func TestCounterMetrics(t *testing.T) {
	tests := []struct {
		name    string
		metric  *prometheus.CounterVec
		labels  prometheus.Labels
		incBy   int
		wantVal float64
	}{
		{
			name:    "notifications counter",
			metric:  NotificationsTotal,
			labels:  prometheus.Labels{"kind": "report_ready", "status": StatusStored},
			incBy:   3,
			wantVal: 3,
		},
		{
			name:    "reports counter",
			metric:  ReportsGeneratedTotal,
			labels:  prometheus.Labels{"status": StatusSuccess},
			incBy:   2,
			wantVal: 2,
		},
		{
			name:    "rate limited counter",
			metric:  RateLimitedTotal,
			labels:  prometheus.Labels{"endpoint": "login"},
			incBy:   5,
			wantVal: 5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.metric.Reset()

			for i := 0; i < tt.incBy; i++ {
				tt.metric.With(tt.labels).Inc()
			}

			assert.Equal(t, tt.wantVal, testutil.ToFloat64(tt.metric.With(tt.labels)))
		})
	}
}
