// Package refresh はダッシュボード集計の定期再計算ジョブを提供する。
// 固定間隔のティッカーで全タスクのスナップショットを取得し、
// 集計レポートをアトミックに差し替える。リアルタイム更新は行わない。
package refresh

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/hitoshi/taskdeck/internal/analytics"
	"github.com/hitoshi/taskdeck/internal/model"
)

// TaskLister は集計対象タスクの取得インターフェース。
type TaskLister interface {
	ListAll(ctx context.Context) ([]model.TaskWithOwner, error)
}

// MetricsRecorder は集計時間のメトリクス記録インターフェース。
type MetricsRecorder interface {
	ObserveAggregationDuration(d time.Duration)
}

type nopMetrics struct{}

func (nopMetrics) ObserveAggregationDuration(time.Duration) {}

// Refresher はダッシュボード集計の定期再計算ジョブ。
// 最新のレポートをatomic.Valueで保持し、読み取り側はロックなしで参照できる。
type Refresher struct {
	tasks   TaskLister
	logger  *slog.Logger
	metrics MetricsRecorder
	current atomic.Value // *analytics.Report
}

// NewRefresher はRefresherの新しいインスタンスを生成する。
// metricsがnilの場合は記録を行わない。
func NewRefresher(tasks TaskLister, logger *slog.Logger, metrics MetricsRecorder) *Refresher {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &Refresher{
		tasks:   tasks,
		logger:  logger,
		metrics: metrics,
	}
}

// Start は固定間隔のティッカーで再計算ジョブを起動する。
// コンテキストがキャンセルされるまで実行を継続する。
func (r *Refresher) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.logger.Info("ダッシュボード集計ジョブを開始しました",
		slog.Duration("interval", interval),
	)

	// 起動直後に1回実行
	if err := r.RunOnce(ctx); err != nil {
		r.logger.Error("集計の再計算に失敗しました",
			slog.String("error", err.Error()),
		)
	}

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("ダッシュボード集計ジョブを停止しました")
			return
		case <-ticker.C:
			if err := r.RunOnce(ctx); err != nil {
				r.logger.Error("集計の再計算に失敗しました",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// RunOnce はタスクのスナップショットを1回取得し、レポートを再計算して差し替える。
// 取得に失敗した場合は前回のレポートを保持したままエラーを返す。
func (r *Refresher) RunOnce(ctx context.Context) error {
	start := time.Now()

	tasks, err := r.tasks.ListAll(ctx)
	if err != nil {
		return err
	}

	report := analytics.Aggregate(tasks, time.Now())
	r.current.Store(report)

	duration := time.Since(start)
	r.metrics.ObserveAggregationDuration(duration)
	r.logger.Info("集計の再計算が完了しました",
		slog.Int("task_count", len(tasks)),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}

// Current は最新のレポートを返す。一度も計算されていない場合はnilを返す。
func (r *Refresher) Current() *analytics.Report {
	report, ok := r.current.Load().(*analytics.Report)
	if !ok {
		return nil
	}
	return report
}
