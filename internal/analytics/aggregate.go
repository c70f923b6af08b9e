// Package analytics はタスクスナップショットの集計を提供する。
//
// 集計はすべて現在のスナップショットに対する純粋関数であり、
// 同じ入力からは常に同じ出力が得られる。インクリメンタル更新は行わない。
package analytics

import (
	"sort"
	"time"

	"github.com/hitoshi/taskdeck/internal/model"
)

// Summary はタスク全体の概況を表す。
type Summary struct {
	Total      int `json:"total"`
	InProgress int `json:"in_progress"`
	Completed  int `json:"completed"`
	Overdue    int `json:"overdue"`
}

// TimelineEntry はガントチャート描画用の1タスク分のエントリ。
// 終了日が未設定のタスクは集計時点を終了日とみなし、EndEstimatedをtrueにする。
type TimelineEntry struct {
	TaskID       string `json:"task_id"`
	Title        string `json:"title"`
	User         string `json:"user"`
	Start        string `json:"start"`
	End          string `json:"end"`
	Status       string `json:"status"`
	EndEstimated bool   `json:"end_estimated"`
}

// KeyCount は名前付きカウントの汎用エントリ。
type KeyCount struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

// CrosstabEntry はサイト×タイプのクロス集計1セル分。
type CrosstabEntry struct {
	Site  string `json:"site"`
	Type  string `json:"type"`
	Count int    `json:"count"`
}

// SiteStatusEntry はサイトごとのステータス内訳1セル分。
type SiteStatusEntry struct {
	Site   string `json:"site"`
	Status string `json:"status"`
	Count  int    `json:"count"`
}

// Report はダッシュボードが描画する集計結果一式。
type Report struct {
	Summary     Summary           `json:"summary"`
	Timeline    []TimelineEntry   `json:"timeline"`
	PerUser     []KeyCount        `json:"per_user"`
	SiteByType  []CrosstabEntry   `json:"site_by_type"`
	SiteStatus  []SiteStatusEntry `json:"site_status"`
	PerStatus   []KeyCount        `json:"per_status"`
	GeneratedAt time.Time         `json:"generated_at"`
}

const dateLayout = "2006-01-02"

// Aggregate は全タスクのスナップショットからレポートを生成する。
// 出力の各スライスはキー順にソートされ、同じ入力に対して決定的な結果を返す。
func Aggregate(tasks []model.TaskWithOwner, now time.Time) *Report {
	report := &Report{
		Timeline:    make([]TimelineEntry, 0, len(tasks)),
		GeneratedAt: now,
	}

	perUser := map[string]int{}
	perStatus := map[string]int{}
	siteByType := map[string]map[string]int{}
	siteStatus := map[string]map[string]int{}

	for _, t := range tasks {
		report.Summary.Total++
		switch t.Status {
		case model.StatusInProgress:
			report.Summary.InProgress++
		case model.StatusCompleted:
			report.Summary.Completed++
		case model.StatusOverdue:
			report.Summary.Overdue++
		}

		entry := TimelineEntry{
			TaskID: t.ID,
			Title:  t.Title,
			User:   t.OwnerUsername,
			Start:  t.StartDate.Format(dateLayout),
			Status: string(t.Status),
		}
		if t.EndDate != nil {
			entry.End = t.EndDate.Format(dateLayout)
		} else {
			// 終了日未設定は進行中とみなし、集計時点を仮の終了日にする
			entry.End = now.Format(dateLayout)
			entry.EndEstimated = true
		}
		report.Timeline = append(report.Timeline, entry)

		perUser[t.OwnerUsername]++
		perStatus[string(t.Status)]++

		if siteByType[t.Site] == nil {
			siteByType[t.Site] = map[string]int{}
		}
		siteByType[t.Site][t.Type]++

		if siteStatus[t.Site] == nil {
			siteStatus[t.Site] = map[string]int{}
		}
		siteStatus[t.Site][string(t.Status)]++
	}

	sort.Slice(report.Timeline, func(i, j int) bool {
		a, b := report.Timeline[i], report.Timeline[j]
		if a.Start != b.Start {
			return a.Start < b.Start
		}
		return a.TaskID < b.TaskID
	})

	report.PerUser = sortedCounts(perUser)
	report.PerStatus = sortedCounts(perStatus)

	for _, site := range sortedKeys(siteByType) {
		for _, typ := range sortedKeys(siteByType[site]) {
			report.SiteByType = append(report.SiteByType, CrosstabEntry{
				Site:  site,
				Type:  typ,
				Count: siteByType[site][typ],
			})
		}
	}

	for _, site := range sortedKeys(siteStatus) {
		for _, status := range sortedKeys(siteStatus[site]) {
			report.SiteStatus = append(report.SiteStatus, SiteStatusEntry{
				Site:   site,
				Status: status,
				Count:  siteStatus[site][status],
			})
		}
	}

	return report
}

func sortedCounts(m map[string]int) []KeyCount {
	out := make([]KeyCount, 0, len(m))
	for _, k := range sortedKeys(m) {
		out = append(out, KeyCount{Key: k, Count: m[k]})
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
