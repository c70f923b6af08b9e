package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/hitoshi/taskdeck/internal/analytics"
	"github.com/hitoshi/taskdeck/internal/model"
)

// ReportProvider はキャッシュ済み集計レポートの取得インターフェース。
// worker/refreshのRefresherが実装する。
type ReportProvider interface {
	// Current は最新のレポートを返す。未計算の場合はnilを返す。
	Current() *analytics.Report
}

// TaskSnapshotService はダッシュボードハンドラーが必要とするタスク操作。
type TaskSnapshotService interface {
	// ListAll は全タスクを所有者ユーザー名付きで返す。
	ListAll(ctx context.Context) ([]model.TaskWithOwner, error)
	// RebuildMirror はミラー全体を作り直し、書き込んだ行数を返す。
	RebuildMirror(ctx context.Context) (int, error)
}

// SpreadsheetExporter はミラーファイルのエクスポートインターフェース。
// mirror.Storeの部分集合として定義する。
type SpreadsheetExporter interface {
	FullExport() ([]byte, error)
}

// DocumentWriter は集計レポートのPDF変換インターフェース。
type DocumentWriter interface {
	Write(report *analytics.Report) ([]byte, error)
}

// ExportMetricsRecorder はエクスポート実行のメトリクス記録インターフェース。
type ExportMetricsRecorder interface {
	RecordExport(format string)
}

// DashboardHandler は管理者ダッシュボードとエクスポートのHTTPハンドラー。
type DashboardHandler struct {
	reports     ReportProvider
	tasks       TaskSnapshotService
	spreadsheet SpreadsheetExporter
	document    DocumentWriter
	metrics     ExportMetricsRecorder
}

// NewDashboardHandler はDashboardHandlerを生成する。metricsはnilを許容する。
func NewDashboardHandler(
	reports ReportProvider,
	tasks TaskSnapshotService,
	spreadsheet SpreadsheetExporter,
	document DocumentWriter,
	metrics ExportMetricsRecorder,
) *DashboardHandler {
	return &DashboardHandler{
		reports:     reports,
		tasks:       tasks,
		spreadsheet: spreadsheet,
		document:    document,
		metrics:     metrics,
	}
}

// GetDashboard はキャッシュ済みの集計レポートを返す。
// キャッシュが未計算の場合はその場で再計算する。
// GET /api/dashboard
func (h *DashboardHandler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	report := h.reports.Current()
	if report == nil {
		var err error
		report, err = h.computeReport(r.Context())
		if err != nil {
			handleServiceError(w, err)
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(report)
}

// ExportSpreadsheet はミラーファイルをそのままダウンロードさせる。
// GET /api/exports/spreadsheet
func (h *DashboardHandler) ExportSpreadsheet(w http.ResponseWriter, r *http.Request) {
	data, err := h.spreadsheet.FullExport()
	if err != nil {
		handleServiceError(w, model.NewExportError(err.Error()))
		return
	}

	h.recordExport("spreadsheet")

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="tasks.xlsx"`)
	w.Write(data)
}

// ExportDocument は集計レポートをPDFとしてダウンロードさせる。
// エクスポートは常に最新のスナップショットから同期的に再計算する。
// GET /api/exports/document
func (h *DashboardHandler) ExportDocument(w http.ResponseWriter, r *http.Request) {
	report, err := h.computeReport(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	data, err := h.document.Write(report)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	h.recordExport("document")

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="task_report.pdf"`)
	w.Write(data)
}

// RebuildMirror はタスクストアのスナップショットからミラーを作り直す。
// POST /api/admin/mirror/rebuild
func (h *DashboardHandler) RebuildMirror(w http.ResponseWriter, r *http.Request) {
	rows, err := h.tasks.RebuildMirror(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]int{"rows": rows})
}

// computeReport は最新のスナップショットからレポートを同期的に計算する。
func (h *DashboardHandler) computeReport(ctx context.Context) (*analytics.Report, error) {
	tasks, err := h.tasks.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot tasks: %w", err)
	}
	return analytics.Aggregate(tasks, time.Now()), nil
}

func (h *DashboardHandler) recordExport(format string) {
	if h.metrics != nil {
		h.metrics.RecordExport(format)
	}
}
