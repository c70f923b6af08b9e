package refresh

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hitoshi/taskdeck/internal/model"
)

// --- モック定義 ---

type mockTaskLister struct {
	ListAllFunc func(ctx context.Context) ([]model.TaskWithOwner, error)
}

func (m *mockTaskLister) ListAll(ctx context.Context) ([]model.TaskWithOwner, error) {
	return m.ListAllFunc(ctx)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func TestRunOnce_PublishesReport(t *testing.T) {
	lister := &mockTaskLister{
		ListAllFunc: func(ctx context.Context) ([]model.TaskWithOwner, error) {
			return []model.TaskWithOwner{
				{Task: model.Task{ID: "t1", StartDate: time.Now(), Status: model.StatusCompleted}, OwnerUsername: "tanaka"},
			}, nil
		},
	}
	r := NewRefresher(lister, discardLogger(), nil)

	if r.Current() != nil {
		t.Fatal("report should be nil before first run")
	}
	if err := r.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}
	report := r.Current()
	if report == nil {
		t.Fatal("report should be published after RunOnce")
	}
	if report.Summary.Total != 1 || report.Summary.Completed != 1 {
		t.Errorf("Summary = %+v, want Total=1 Completed=1", report.Summary)
	}
}

func TestRunOnce_KeepsPreviousReportOnError(t *testing.T) {
	failing := atomic.Bool{}
	lister := &mockTaskLister{
		ListAllFunc: func(ctx context.Context) ([]model.TaskWithOwner, error) {
			if failing.Load() {
				return nil, errors.New("db down")
			}
			return []model.TaskWithOwner{
				{Task: model.Task{ID: "t1", StartDate: time.Now()}, OwnerUsername: "tanaka"},
			}, nil
		},
	}
	r := NewRefresher(lister, discardLogger(), nil)

	if err := r.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}
	previous := r.Current()

	failing.Store(true)
	if err := r.RunOnce(context.Background()); err == nil {
		t.Fatal("RunOnce should return error when snapshot fails")
	}
	// 失敗時は前回のレポートを保持する
	if r.Current() != previous {
		t.Error("previous report should be retained after failed refresh")
	}
}

func TestStart_RunsImmediatelyAndStopsOnCancel(t *testing.T) {
	var calls atomic.Int32
	lister := &mockTaskLister{
		ListAllFunc: func(ctx context.Context) ([]model.TaskWithOwner, error) {
			calls.Add(1)
			return nil, nil
		},
	}
	r := NewRefresher(lister, discardLogger(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Start(ctx, time.Hour)
		close(done)
	}()

	// 起動直後の1回実行を待つ
	deadline := time.After(2 * time.Second)
	for calls.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("Start should run once immediately")
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Start should return after context cancellation")
	}
}
