// Package export はダッシュボードレポートのPDF出力を提供する。
package export

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"

	"github.com/hitoshi/taskdeck/internal/analytics"
	"github.com/hitoshi/taskdeck/internal/model"
)

// ページレイアウト定数
const (
	marginLeft  = 15.0
	contentW    = 180.0
	rowH        = 7.0
	barMaxW     = 120.0
	maxTimeline = 40 // タイムライン一覧の最大行数
)

// PDFReportWriter は集計レポートを固定レイアウトのPDFに変換する。
//
// 組み込みフォントのみを使用するため、ラテン文字以外の値は
// 正しく描画されない場合がある。帳票の見出しは英語で固定する。
type PDFReportWriter struct{}

// NewPDFReportWriter はPDFReportWriterを生成する。
func NewPDFReportWriter() *PDFReportWriter {
	return &PDFReportWriter{}
}

// Write はレポートをPDFバイト列に変換する。
// 生成に失敗した場合はEXPORT_ERRORを返す。
func (w *PDFReportWriter) Write(report *analytics.Report) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetAutoPageBreak(true, 20)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	// タイトルと生成時刻
	pdf.SetFont("Helvetica", "B", 18)
	pdf.CellFormat(contentW, 10, "Task Report", "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 9)
	pdf.SetTextColor(100, 100, 100)
	pdf.CellFormat(contentW, 6, "Generated: "+report.GeneratedAt.Format("2006-01-02 15:04:05"), "", 1, "L", false, 0, "")
	pdf.SetTextColor(0, 0, 0)
	pdf.Ln(4)

	w.writeSummary(pdf, report.Summary)
	w.writeStatusBars(pdf, report)
	w.writeCountTable(pdf, tr, "Tasks per User", "User", report.PerUser)
	w.writeCrosstab(pdf, tr, report.SiteByType)
	w.writeSiteStatus(pdf, tr, report.SiteStatus)
	w.writeTimeline(pdf, tr, report.Timeline)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, model.NewExportError(err.Error())
	}
	return buf.Bytes(), nil
}

// writeSummary は概況の指標を横並びで描画する。
func (w *PDFReportWriter) writeSummary(pdf *gofpdf.Fpdf, s analytics.Summary) {
	w.sectionTitle(pdf, "Summary")

	cells := []struct {
		label string
		value int
	}{
		{"Total", s.Total},
		{"In Progress", s.InProgress},
		{"Completed", s.Completed},
		{"Overdue", s.Overdue},
	}

	cellW := contentW / float64(len(cells))
	pdf.SetFont("Helvetica", "B", 16)
	for _, c := range cells {
		pdf.CellFormat(cellW, 10, fmt.Sprintf("%d", c.value), "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)
	pdf.SetFont("Helvetica", "", 8)
	for _, c := range cells {
		pdf.CellFormat(cellW, 5, c.label, "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)
	pdf.Ln(4)
}

// writeStatusBars はステータス分布を横棒で描画する。
func (w *PDFReportWriter) writeStatusBars(pdf *gofpdf.Fpdf, report *analytics.Report) {
	if len(report.PerStatus) == 0 {
		return
	}
	w.sectionTitle(pdf, "Status Distribution")

	max := 0
	for _, kc := range report.PerStatus {
		if kc.Count > max {
			max = kc.Count
		}
	}

	pdf.SetFont("Helvetica", "", 9)
	for _, kc := range report.PerStatus {
		pdf.CellFormat(35, rowH, kc.Key, "", 0, "L", false, 0, "")
		barW := barMaxW * float64(kc.Count) / float64(max)
		x, y := pdf.GetXY()
		pdf.SetFillColor(70, 130, 180)
		pdf.Rect(x, y+1.5, barW, rowH-3, "F")
		pdf.SetXY(x+barMaxW+2, y)
		pdf.CellFormat(20, rowH, fmt.Sprintf("%d", kc.Count), "", 1, "L", false, 0, "")
	}
	pdf.Ln(4)
}

// writeCountTable は名前とカウントの2列テーブルを描画する。
func (w *PDFReportWriter) writeCountTable(pdf *gofpdf.Fpdf, tr func(string) string, title, keyHeader string, counts []analytics.KeyCount) {
	if len(counts) == 0 {
		return
	}
	w.sectionTitle(pdf, title)

	w.tableHeader(pdf, []string{keyHeader, "Tasks"}, []float64{120, 60})
	pdf.SetFont("Helvetica", "", 9)
	for _, kc := range counts {
		pdf.CellFormat(120, rowH, tr(kc.Key), "1", 0, "L", false, 0, "")
		pdf.CellFormat(60, rowH, fmt.Sprintf("%d", kc.Count), "1", 1, "R", false, 0, "")
	}
	pdf.Ln(4)
}

// writeCrosstab はサイト×タイプのクロス集計を描画する。
func (w *PDFReportWriter) writeCrosstab(pdf *gofpdf.Fpdf, tr func(string) string, entries []analytics.CrosstabEntry) {
	if len(entries) == 0 {
		return
	}
	w.sectionTitle(pdf, "Site x Type")

	w.tableHeader(pdf, []string{"Site", "Type", "Tasks"}, []float64{80, 60, 40})
	pdf.SetFont("Helvetica", "", 9)
	for _, e := range entries {
		pdf.CellFormat(80, rowH, tr(e.Site), "1", 0, "L", false, 0, "")
		pdf.CellFormat(60, rowH, tr(e.Type), "1", 0, "L", false, 0, "")
		pdf.CellFormat(40, rowH, fmt.Sprintf("%d", e.Count), "1", 1, "R", false, 0, "")
	}
	pdf.Ln(4)
}

// writeSiteStatus はサイトごとのステータス内訳を描画する。
func (w *PDFReportWriter) writeSiteStatus(pdf *gofpdf.Fpdf, tr func(string) string, entries []analytics.SiteStatusEntry) {
	if len(entries) == 0 {
		return
	}
	w.sectionTitle(pdf, "Status by Site")

	w.tableHeader(pdf, []string{"Site", "Status", "Tasks"}, []float64{80, 60, 40})
	pdf.SetFont("Helvetica", "", 9)
	for _, e := range entries {
		pdf.CellFormat(80, rowH, tr(e.Site), "1", 0, "L", false, 0, "")
		pdf.CellFormat(60, rowH, e.Status, "1", 0, "L", false, 0, "")
		pdf.CellFormat(40, rowH, fmt.Sprintf("%d", e.Count), "1", 1, "R", false, 0, "")
	}
	pdf.Ln(4)
}

// writeTimeline はタイムラインの一覧を描画する。行数が多い場合は先頭のみ出力する。
func (w *PDFReportWriter) writeTimeline(pdf *gofpdf.Fpdf, tr func(string) string, entries []analytics.TimelineEntry) {
	if len(entries) == 0 {
		return
	}
	w.sectionTitle(pdf, "Timeline")

	w.tableHeader(pdf, []string{"Start", "End", "Title", "User", "Status"}, []float64{25, 25, 70, 30, 30})
	pdf.SetFont("Helvetica", "", 8)
	shown := entries
	if len(shown) > maxTimeline {
		shown = shown[:maxTimeline]
	}
	for _, e := range shown {
		end := e.End
		if e.EndEstimated {
			end += " *"
		}
		pdf.CellFormat(25, rowH, e.Start, "1", 0, "L", false, 0, "")
		pdf.CellFormat(25, rowH, end, "1", 0, "L", false, 0, "")
		pdf.CellFormat(70, rowH, tr(e.Title), "1", 0, "L", false, 0, "")
		pdf.CellFormat(30, rowH, tr(e.User), "1", 0, "L", false, 0, "")
		pdf.CellFormat(30, rowH, e.Status, "1", 1, "L", false, 0, "")
	}
	if len(entries) > maxTimeline {
		pdf.SetFont("Helvetica", "I", 8)
		pdf.CellFormat(contentW, 5, fmt.Sprintf("... and %d more", len(entries)-maxTimeline), "", 1, "L", false, 0, "")
	}
	pdf.SetFont("Helvetica", "I", 7)
	pdf.CellFormat(contentW, 4, "* end date estimated (task still open)", "", 1, "L", false, 0, "")
}

func (w *PDFReportWriter) sectionTitle(pdf *gofpdf.Fpdf, title string) {
	pdf.SetFont("Helvetica", "B", 12)
	pdf.CellFormat(contentW, 8, title, "", 1, "L", false, 0, "")
}

func (w *PDFReportWriter) tableHeader(pdf *gofpdf.Fpdf, headers []string, widths []float64) {
	pdf.SetFont("Helvetica", "B", 9)
	pdf.SetFillColor(230, 230, 230)
	for i, h := range headers {
		pdf.CellFormat(widths[i], rowH, h, "1", 0, "L", true, 0, "")
	}
	pdf.Ln(-1)
}
