// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// サービス層やワーカーから利用する。
type MetricsCollector interface {
	RecordTaskMutation(op string)
	RecordMirrorWriteFailure(op string)
	RecordExport(format string)
	RecordHTTPStatus(statusCode int)
	ObserveAggregationDuration(duration time.Duration)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	taskMutations   *prometheus.CounterVec
	mirrorFailures  *prometheus.CounterVec
	exports         *prometheus.CounterVec
	httpStatus      *prometheus.CounterVec
	aggregationTime prometheus.Histogram
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		taskMutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "taskdeck_task_mutations_total",
			Help: "タスク変更操作の合計数（操作別）",
		}, []string{"op"}),
		mirrorFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "taskdeck_mirror_write_fail_total",
			Help: "ミラー書き込み失敗の合計数（操作別）",
		}, []string{"op"}),
		exports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "taskdeck_exports_total",
			Help: "エクスポート実行の合計数（形式別）",
		}, []string{"format"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "taskdeck_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		aggregationTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "taskdeck_aggregation_duration_seconds",
			Help:    "ダッシュボード集計の所要時間（秒）",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.taskMutations,
		c.mirrorFailures,
		c.exports,
		c.httpStatus,
		c.aggregationTime,
	)

	return c
}

// RecordTaskMutation はタスク変更操作を記録する。opはcreate/update/delete。
func (c *Collector) RecordTaskMutation(op string) {
	c.taskMutations.WithLabelValues(op).Inc()
}

// RecordMirrorWriteFailure はミラー書き込み失敗を記録する。
func (c *Collector) RecordMirrorWriteFailure(op string) {
	c.mirrorFailures.WithLabelValues(op).Inc()
}

// RecordExport はエクスポート実行を記録する。formatはspreadsheet/document。
func (c *Collector) RecordExport(format string) {
	c.exports.WithLabelValues(format).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// ObserveAggregationDuration は集計の所要時間を記録する。
func (c *Collector) ObserveAggregationDuration(duration time.Duration) {
	c.aggregationTime.Observe(duration.Seconds())
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
