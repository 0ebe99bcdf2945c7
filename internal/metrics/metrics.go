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
// 同期サービスやワーカーから利用する。
type MetricsCollector interface {
	RecordSyncSuccess(profileName string)
	RecordSyncFailure(profileName string, reason string)
	RecordExtractFailure(profileName string)
	RecordPushStatus(statusCode int)
	RecordSyncLatency(duration time.Duration)
	RecordBatchRun(total int, success int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	syncSuccess  prometheus.Counter
	syncFail     prometheus.Counter
	extractFail  prometheus.Counter
	pushStatus   *prometheus.CounterVec
	syncLatency  prometheus.Histogram
	batchRuns    prometheus.Counter
	batchTotal   prometheus.Counter
	batchSuccess prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		syncSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tokenman_sync_success_total",
			Help: "トークン同期成功の合計数",
		}),
		syncFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tokenman_sync_fail_total",
			Help: "トークン同期失敗の合計数",
		}),
		extractFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tokenman_extract_fail_total",
			Help: "トークン抽出失敗の合計数",
		}),
		pushStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tokenman_push_status_total",
			Help: "ダウンストリーム送信のHTTPステータスコード別レスポンス数",
		}, []string{"status_code"}),
		syncLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tokenman_sync_latency_seconds",
			Help:    "Profile単位の同期レイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		batchRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tokenman_batch_runs_total",
			Help: "バッチ同期実行の合計数",
		}),
		batchTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tokenman_batch_profiles_total",
			Help: "バッチ同期で処理されたProfileの合計数",
		}),
		batchSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tokenman_batch_profiles_success_total",
			Help: "バッチ同期で成功したProfileの合計数",
		}),
	}

	reg.MustRegister(
		c.syncSuccess,
		c.syncFail,
		c.extractFail,
		c.pushStatus,
		c.syncLatency,
		c.batchRuns,
		c.batchTotal,
		c.batchSuccess,
	)

	return c
}

// RecordSyncSuccess は同期成功を記録する。
func (c *Collector) RecordSyncSuccess(profileName string) {
	c.syncSuccess.Inc()
}

// RecordSyncFailure は同期失敗を記録する。
func (c *Collector) RecordSyncFailure(profileName string, reason string) {
	c.syncFail.Inc()
}

// RecordExtractFailure はトークン抽出失敗を記録する。
func (c *Collector) RecordExtractFailure(profileName string) {
	c.extractFail.Inc()
}

// RecordPushStatus はダウンストリーム送信のHTTPステータスコードを記録する。
func (c *Collector) RecordPushStatus(statusCode int) {
	c.pushStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordSyncLatency はProfile単位の同期レイテンシを記録する。
func (c *Collector) RecordSyncLatency(duration time.Duration) {
	c.syncLatency.Observe(duration.Seconds())
}

// RecordBatchRun はバッチ同期1回分の結果を記録する。
func (c *Collector) RecordBatchRun(total int, success int) {
	c.batchRuns.Inc()
	c.batchTotal.Add(float64(total))
	c.batchSuccess.Add(float64(success))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
