package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/taskdeck/internal/analytics"
	"github.com/hitoshi/taskdeck/internal/model"
)

// --- モック定義 ---

type mockReportProvider struct {
	report *analytics.Report
}

func (m *mockReportProvider) Current() *analytics.Report {
	return m.report
}

type mockSnapshotService struct {
	ListAllFunc       func(ctx context.Context) ([]model.TaskWithOwner, error)
	RebuildMirrorFunc func(ctx context.Context) (int, error)
}

func (m *mockSnapshotService) ListAll(ctx context.Context) ([]model.TaskWithOwner, error) {
	return m.ListAllFunc(ctx)
}

func (m *mockSnapshotService) RebuildMirror(ctx context.Context) (int, error) {
	return m.RebuildMirrorFunc(ctx)
}

type mockSpreadsheetExporter struct {
	FullExportFunc func() ([]byte, error)
}

func (m *mockSpreadsheetExporter) FullExport() ([]byte, error) {
	return m.FullExportFunc()
}

type mockDocumentWriter struct {
	WriteFunc func(report *analytics.Report) ([]byte, error)
}

func (m *mockDocumentWriter) Write(report *analytics.Report) ([]byte, error) {
	return m.WriteFunc(report)
}

type mockExportMetrics struct {
	formats []string
}

func (m *mockExportMetrics) RecordExport(format string) {
	m.formats = append(m.formats, format)
}

func cachedReport() *analytics.Report {
	return analytics.Aggregate([]model.TaskWithOwner{
		{Task: model.Task{ID: "t1", StartDate: time.Now(), Status: model.StatusCompleted}, OwnerUsername: "tanaka"},
	}, time.Now())
}

func TestGetDashboard_ServesCachedReport(t *testing.T) {
	h := NewDashboardHandler(
		&mockReportProvider{report: cachedReport()},
		&mockSnapshotService{
			ListAllFunc: func(ctx context.Context) ([]model.TaskWithOwner, error) {
				t.Fatal("ListAll should not be called when cache is warm")
				return nil, nil
			},
		},
		&mockSpreadsheetExporter{}, &mockDocumentWriter{}, nil,
	)

	w := httptest.NewRecorder()
	h.GetDashboard(w, httptest.NewRequest(http.MethodGet, "/api/dashboard", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var report analytics.Report
	if err := json.NewDecoder(w.Body).Decode(&report); err != nil {
		t.Fatalf("failed to decode report: %v", err)
	}
	if report.Summary.Total != 1 {
		t.Errorf("Total = %d, want 1", report.Summary.Total)
	}
}

func TestGetDashboard_ComputesWhenCacheCold(t *testing.T) {
	h := NewDashboardHandler(
		&mockReportProvider{report: nil},
		&mockSnapshotService{
			ListAllFunc: func(ctx context.Context) ([]model.TaskWithOwner, error) {
				return []model.TaskWithOwner{
					{Task: model.Task{ID: "t1", StartDate: time.Now(), Status: model.StatusOverdue}, OwnerUsername: "suzuki"},
				}, nil
			},
		},
		&mockSpreadsheetExporter{}, &mockDocumentWriter{}, nil,
	)

	w := httptest.NewRecorder()
	h.GetDashboard(w, httptest.NewRequest(http.MethodGet, "/api/dashboard", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var report analytics.Report
	json.NewDecoder(w.Body).Decode(&report)
	if report.Summary.Overdue != 1 {
		t.Errorf("Overdue = %d, want 1", report.Summary.Overdue)
	}
}

func TestExportSpreadsheet_ServesMirrorVerbatim(t *testing.T) {
	content := []byte("xlsx-bytes")
	metrics := &mockExportMetrics{}
	h := NewDashboardHandler(
		&mockReportProvider{}, &mockSnapshotService{},
		&mockSpreadsheetExporter{
			FullExportFunc: func() ([]byte, error) { return content, nil },
		},
		&mockDocumentWriter{}, metrics,
	)

	w := httptest.NewRecorder()
	h.ExportSpreadsheet(w, httptest.NewRequest(http.MethodGet, "/api/exports/spreadsheet", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !bytes.Equal(w.Body.Bytes(), content) {
		t.Error("mirror file should be served verbatim")
	}
	if cd := w.Header().Get("Content-Disposition"); cd == "" {
		t.Error("Content-Disposition should be set")
	}
	if len(metrics.formats) != 1 || metrics.formats[0] != "spreadsheet" {
		t.Errorf("recorded formats = %v, want [spreadsheet]", metrics.formats)
	}
}

func TestExportSpreadsheet_FailureReturnsExportError(t *testing.T) {
	h := NewDashboardHandler(
		&mockReportProvider{}, &mockSnapshotService{},
		&mockSpreadsheetExporter{
			FullExportFunc: func() ([]byte, error) { return nil, errors.New("io error") },
		},
		&mockDocumentWriter{}, nil,
	)

	w := httptest.NewRecorder()
	h.ExportSpreadsheet(w, httptest.NewRequest(http.MethodGet, "/api/exports/spreadsheet", nil))

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}

	var resp apiErrorResponse
	json.NewDecoder(w.Body).Decode(&resp)
	if resp.Code != model.ErrCodeExportError {
		t.Errorf("Code = %q, want %q", resp.Code, model.ErrCodeExportError)
	}
}

func TestExportDocument_RecomputesSynchronously(t *testing.T) {
	var written *analytics.Report
	metrics := &mockExportMetrics{}
	h := NewDashboardHandler(
		&mockReportProvider{report: cachedReport()},
		&mockSnapshotService{
			ListAllFunc: func(ctx context.Context) ([]model.TaskWithOwner, error) {
				return []model.TaskWithOwner{
					{Task: model.Task{ID: "fresh", StartDate: time.Now(), Status: model.StatusInProgress}, OwnerUsername: "tanaka"},
					{Task: model.Task{ID: "fresh2", StartDate: time.Now(), Status: model.StatusInProgress}, OwnerUsername: "tanaka"},
				}, nil
			},
		},
		&mockSpreadsheetExporter{},
		&mockDocumentWriter{
			WriteFunc: func(report *analytics.Report) ([]byte, error) {
				written = report
				return []byte("%PDF-fake"), nil
			},
		},
		metrics,
	)

	w := httptest.NewRecorder()
	h.ExportDocument(w, httptest.NewRequest(http.MethodGet, "/api/exports/document", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	// エクスポートはキャッシュではなく最新スナップショットから計算する
	if written == nil || written.Summary.Total != 2 {
		t.Errorf("document should be built from fresh snapshot, got %+v", written)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Errorf("Content-Type = %q, want application/pdf", ct)
	}
	if len(metrics.formats) != 1 || metrics.formats[0] != "document" {
		t.Errorf("recorded formats = %v, want [document]", metrics.formats)
	}
}

func TestExportDocument_WriterFailure(t *testing.T) {
	h := NewDashboardHandler(
		&mockReportProvider{},
		&mockSnapshotService{
			ListAllFunc: func(ctx context.Context) ([]model.TaskWithOwner, error) {
				return nil, nil
			},
		},
		&mockSpreadsheetExporter{},
		&mockDocumentWriter{
			WriteFunc: func(report *analytics.Report) ([]byte, error) {
				return nil, model.NewExportError("render failed")
			},
		},
		nil,
	)

	w := httptest.NewRecorder()
	h.ExportDocument(w, httptest.NewRequest(http.MethodGet, "/api/exports/document", nil))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
}

func TestRebuildMirror_ReturnsRowCount(t *testing.T) {
	h := NewDashboardHandler(
		&mockReportProvider{},
		&mockSnapshotService{
			RebuildMirrorFunc: func(ctx context.Context) (int, error) { return 7, nil },
		},
		&mockSpreadsheetExporter{}, &mockDocumentWriter{}, nil,
	)

	w := httptest.NewRecorder()
	h.RebuildMirror(w, httptest.NewRequest(http.MethodPost, "/api/admin/mirror/rebuild", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var resp map[string]int
	json.NewDecoder(w.Body).Decode(&resp)
	if resp["rows"] != 7 {
		t.Errorf("rows = %d, want 7", resp["rows"])
	}
}

func TestRebuildMirror_Failure(t *testing.T) {
	h := NewDashboardHandler(
		&mockReportProvider{},
		&mockSnapshotService{
			RebuildMirrorFunc: func(ctx context.Context) (int, error) {
				return 0, model.NewMirrorWriteFailedError("disk full")
			},
		},
		&mockSpreadsheetExporter{}, &mockDocumentWriter{}, nil,
	)

	w := httptest.NewRecorder()
	h.RebuildMirror(w, httptest.NewRequest(http.MethodPost, "/api/admin/mirror/rebuild", nil))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
}
