// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/hitoshi/alluna/internal/model"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// 署名連携（signing.MetricsRecorder）とHTTPミドルウェアから利用する。
type MetricsCollector interface {
	RecordSigningRequest(result string)
	RecordProviderLatency(duration time.Duration)
	RecordCallback(status model.DocumentStatus)
	RecordCallbackFailure(reason string)
	RecordHTTPStatus(statusCode int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	signingRequests  *prometheus.CounterVec
	providerLatency  prometheus.Histogram
	callbacks        *prometheus.CounterVec
	callbackFailures *prometheus.CounterVec
	httpStatus       *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		signingRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "alluna_signing_requests_total",
			Help: "署名依頼の結果別の件数",
		}, []string{"result"}),
		providerLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "alluna_provider_latency_seconds",
			Help:    "署名プロバイダ呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		callbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "alluna_callbacks_total",
			Help: "処理したコールバックの変換後ステータス別の件数",
		}, []string{"status"}),
		callbackFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "alluna_callback_failures_total",
			Help: "処理に失敗したコールバックの理由別の件数",
		}, []string{"reason"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "alluna_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.signingRequests,
		c.providerLatency,
		c.callbacks,
		c.callbackFailures,
		c.httpStatus,
	)

	return c
}

// RecordSigningRequest は署名依頼の結果を記録する。
func (c *Collector) RecordSigningRequest(result string) {
	c.signingRequests.WithLabelValues(result).Inc()
}

// RecordProviderLatency はプロバイダ呼び出しのレイテンシを記録する。
func (c *Collector) RecordProviderLatency(duration time.Duration) {
	c.providerLatency.Observe(duration.Seconds())
}

// RecordCallback は処理済みコールバックを記録する。
func (c *Collector) RecordCallback(status model.DocumentStatus) {
	c.callbacks.WithLabelValues(string(status)).Inc()
}

// RecordCallbackFailure はコールバック処理の失敗を記録する。
func (c *Collector) RecordCallbackFailure(reason string) {
	c.callbackFailures.WithLabelValues(reason).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}
