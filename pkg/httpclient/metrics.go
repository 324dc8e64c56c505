package httpclient

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics はクライアントが送信したリクエストの件数と所要時間を記録する。
type Metrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewMetrics はメトリクスを生成し、指定されたレジストリに登録する。
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "travelgate",
			Subsystem: "client",
			Name:      "requests_total",
			Help:      "バックエンドへ送信したリクエスト数（結果の種別ごと）",
		}, []string{"method", "kind"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "travelgate",
			Subsystem: "client",
			Name:      "request_duration_seconds",
			Help:      "バックエンドへのリクエストの所要時間",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
	}
	reg.MustRegister(m.requests, m.duration)
	return m
}

// observe は1回のリクエスト結果を記録する。nilのMetricsでは何もしない。
func (m *Metrics) observe(method string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}

	kind := "ok"
	if err != nil {
		kind = KindOf(err).String()
	}
	m.requests.WithLabelValues(method, kind).Inc()
	m.duration.WithLabelValues(method).Observe(elapsed.Seconds())
}
