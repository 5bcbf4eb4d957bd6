// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 同期実行結果のラベル値。
const (
	OutcomeSuccess = "success"
	OutcomePartial = "partial"
	OutcomeFailure = "failure"
)

// MetricsCollector はメトリクス収集のインターフェース。
// トランスポート層、プロフィールキャッシュ、同期ジョブから利用する。
type MetricsCollector interface {
	RecordHTTPStatus(statusCode int)
	RecordFetchLatency(duration time.Duration)
	RecordRetry()
	RecordPageFetched(feedKey string)
	RecordPostsNormalized(feedKey string, count int)
	RecordNormalizationFailure(feedKey string)
	RecordSyncRun(feedKey string, outcome string)
	RecordProfileLookup(hit bool)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	httpStatus      *prometheus.CounterVec
	fetchLatency    prometheus.Histogram
	retries         prometheus.Counter
	pagesFetched    *prometheus.CounterVec
	postsNormalized *prometheus.CounterVec
	normalizeFail   *prometheus.CounterVec
	syncRuns        *prometheus.CounterVec
	profileLookups  *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "timelinesync_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		fetchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "timelinesync_fetch_latency_seconds",
			Help:    "リモートAPI呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "timelinesync_fetch_retries_total",
			Help: "リトライされたリクエストの合計数",
		}),
		pagesFetched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "timelinesync_pages_fetched_total",
			Help: "取得したページの合計数",
		}, []string{"feed"}),
		postsNormalized: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "timelinesync_posts_normalized_total",
			Help: "正規化された投稿の合計数",
		}, []string{"feed"}),
		normalizeFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "timelinesync_normalization_fail_total",
			Help: "正規化失敗の合計数",
		}, []string{"feed"}),
		syncRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "timelinesync_sync_runs_total",
			Help: "結果別の同期実行回数",
		}, []string{"feed", "outcome"}),
		profileLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "timelinesync_profile_lookups_total",
			Help: "プロフィールキャッシュの参照数（hit/miss）",
		}, []string{"result"}),
	}

	reg.MustRegister(
		c.httpStatus,
		c.fetchLatency,
		c.retries,
		c.pagesFetched,
		c.postsNormalized,
		c.normalizeFail,
		c.syncRuns,
		c.profileLookups,
	)

	return c
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordFetchLatency はリクエストのレイテンシを記録する。
func (c *Collector) RecordFetchLatency(duration time.Duration) {
	c.fetchLatency.Observe(duration.Seconds())
}

// RecordRetry はリトライを記録する。
func (c *Collector) RecordRetry() {
	c.retries.Inc()
}

// RecordPageFetched はページ取得を記録する。
func (c *Collector) RecordPageFetched(feedKey string) {
	c.pagesFetched.WithLabelValues(feedKey).Inc()
}

// RecordPostsNormalized は正規化された投稿数を記録する。
func (c *Collector) RecordPostsNormalized(feedKey string, count int) {
	c.postsNormalized.WithLabelValues(feedKey).Add(float64(count))
}

// RecordNormalizationFailure は正規化失敗を記録する。
func (c *Collector) RecordNormalizationFailure(feedKey string) {
	c.normalizeFail.WithLabelValues(feedKey).Inc()
}

// RecordSyncRun は同期実行の結果を記録する。
func (c *Collector) RecordSyncRun(feedKey string, outcome string) {
	c.syncRuns.WithLabelValues(feedKey, outcome).Inc()
}

// RecordProfileLookup はプロフィールキャッシュの参照結果を記録する。
func (c *Collector) RecordProfileLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	c.profileLookups.WithLabelValues(result).Inc()
}

// NopCollector は何も記録しないMetricsCollector。
// メトリクスを公開しないCLI実行とテストで使用する。
type NopCollector struct{}

func (NopCollector) RecordHTTPStatus(int) {}
func (NopCollector) RecordFetchLatency(time.Duration) {}
func (NopCollector) RecordRetry() {}
func (NopCollector) RecordPageFetched(string) {}
func (NopCollector) RecordPostsNormalized(string, int) {}
func (NopCollector) RecordNormalizationFailure(string) {}
func (NopCollector) RecordSyncRun(string, string) {}
func (NopCollector) RecordProfileLookup(bool) {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = NopCollector{}
)
