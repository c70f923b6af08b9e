// Package mirror はタスクデータのスプレッドシートミラーを提供する。
//
// リレーショナルストアへの全ての書き込みは、同じ内容の非正規化された行として
// .xlsxワークブックにも反映される。ワークブックはシステムオブレコードではなく、
// エクスポート用の複製であり、タスクストアからいつでも再構築できる。
//
// ファイルにはトランザクション保証がないため、書き込みはプロセス内の
// ミューテックスで直列化する。複数プロセスから同一ファイルへ書き込む構成は
// サポートしない（このツールが対象とする規模では単一プロセス運用を前提とする）。
package mirror

import (
	"bytes"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/hitoshi/taskdeck/internal/model"
)

// sheetName はタスク行を保持するシート名。
const sheetName = "Tasks"

// dateLayout は開始日・終了日の表記フォーマット。
const dateLayout = "2006-01-02"

// header はミラーの列構成。タスク属性に所有者ユーザー名と識別子を加えたもの。
var header = []string{
	"ID", "User", "Type", "Site", "Title", "Description",
	"Start Date", "End Date", "Status", "Challenges", "Timestamp",
}

// Row はミラー上の1行（1タスク）を表す。
type Row struct {
	TaskID      string
	Owner       string
	Type        string
	Site        string
	Title       string
	Description string
	StartDate   string
	EndDate     string // 未設定の場合は空文字列
	Status      string
	Challenges  string
	Timestamp   string
}

// RowFromTask はタスクと所有者からミラー行を構築する。
func RowFromTask(t model.TaskWithOwner) Row {
	endDate := ""
	if t.EndDate != nil {
		endDate = t.EndDate.Format(dateLayout)
	}
	return Row{
		TaskID:      t.ID,
		Owner:       t.OwnerUsername,
		Type:        t.Type,
		Site:        t.Site,
		Title:       t.Title,
		Description: t.Description,
		StartDate:   t.StartDate.Format(dateLayout),
		EndDate:     endDate,
		Status:      string(t.Status),
		Challenges:  t.Challenges,
		Timestamp:   t.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// Store はスプレッドシートミラーの操作インターフェース。
type Store interface {
	// Append はタスク作成時に行を追加する。
	Append(row Row) error
	// ReplaceMatching はタスク更新時に識別子が一致する行を上書きする。
	ReplaceMatching(taskID string, row Row) error
	// RemoveMatching はタスク削除時に識別子が一致する行を取り除く。
	RemoveMatching(taskID string) error
	// FullExport はミラーファイルの内容をそのまま返す。
	// ファイルが未作成の場合はヘッダーのみの空ワークブックを返す。
	FullExport() ([]byte, error)
	// Rebuild はタスクストアのスナップショットからミラー全体を作り直す。
	Rebuild(rows []Row) error
	// Rows は現在のミラーの全行を返す。
	Rows() ([]Row, error)
}

// XLSXMirror は.xlsxワークブックを使ったStoreの実装。
// 各操作はファイル全体の読み込み・変更・書き戻しで行う。
type XLSXMirror struct {
	path string
	mu   sync.Mutex
}

// NewXLSXMirror はXLSXMirrorを生成する。ファイルは最初の書き込み時に作成される。
func NewXLSXMirror(path string) *XLSXMirror {
	return &XLSXMirror{path: path}
}

// Append はタスク作成時に行を追加する。
func (m *XLSXMirror) Append(row Row) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rows, err := m.load()
	if err != nil {
		return err
	}
	rows = append(rows, row)
	return m.save(rows)
}

// ReplaceMatching はタスク更新時に識別子が一致する行を上書きする。
// 一致する行が存在しない場合は変更なしで成功扱いとする（ミラーは再構築可能な複製のため）。
func (m *XLSXMirror) ReplaceMatching(taskID string, row Row) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rows, err := m.load()
	if err != nil {
		return err
	}
	for i := range rows {
		if rows[i].TaskID == taskID {
			rows[i] = row
		}
	}
	return m.save(rows)
}

// RemoveMatching はタスク削除時に識別子が一致する行を取り除く。
func (m *XLSXMirror) RemoveMatching(taskID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rows, err := m.load()
	if err != nil {
		return err
	}
	kept := rows[:0]
	for _, r := range rows {
		if r.TaskID != taskID {
			kept = append(kept, r)
		}
	}
	return m.save(kept)
}

// FullExport はミラーファイルの内容をそのまま返す。
func (m *XLSXMirror) FullExport() ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := os.ReadFile(m.path)
	if os.IsNotExist(err) {
		// まだ書き込みが発生していない場合はヘッダーのみのワークブックを生成する
		return emptyWorkbook()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read mirror file: %w", err)
	}
	return data, nil
}

// Rebuild はタスクストアのスナップショットからミラー全体を作り直す。
func (m *XLSXMirror) Rebuild(rows []Row) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.save(rows)
}

// Rows は現在のミラーの全行を返す。
func (m *XLSXMirror) Rows() ([]Row, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.load()
}

// load はワークブックから全行を読み込む。ファイルが存在しない場合は空を返す。
func (m *XLSXMirror) load() ([]Row, error) {
	f, err := excelize.OpenFile(m.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open mirror file: %w", err)
	}
	defer f.Close()

	raw, err := f.GetRows(sheetName)
	if err != nil {
		return nil, fmt.Errorf("failed to read mirror rows: %w", err)
	}
	if len(raw) <= 1 {
		return nil, nil
	}

	rows := make([]Row, 0, len(raw)-1)
	for _, cells := range raw[1:] {
		// GetRowsは末尾の空セルを省略するため列数を揃える
		for len(cells) < len(header) {
			cells = append(cells, "")
		}
		rows = append(rows, Row{
			TaskID:      cells[0],
			Owner:       cells[1],
			Type:        cells[2],
			Site:        cells[3],
			Title:       cells[4],
			Description: cells[5],
			StartDate:   cells[6],
			EndDate:     cells[7],
			Status:      cells[8],
			Challenges:  cells[9],
			Timestamp:   cells[10],
		})
	}
	return rows, nil
}

// save は全行をワークブックとして書き戻す。
func (m *XLSXMirror) save(rows []Row) error {
	f, err := buildWorkbook(rows)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := f.SaveAs(m.path); err != nil {
		return fmt.Errorf("failed to save mirror file: %w", err)
	}
	return nil
}

// buildWorkbook はヘッダーと行からワークブックを構築する。
func buildWorkbook(rows []Row) (*excelize.File, error) {
	f := excelize.NewFile()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to name mirror sheet: %w", err)
	}

	headerCells := make([]interface{}, len(header))
	for i, h := range header {
		headerCells[i] = h
	}
	if err := f.SetSheetRow(sheetName, "A1", &headerCells); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write mirror header: %w", err)
	}

	for i, r := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to compute cell name: %w", err)
		}
		values := []interface{}{
			r.TaskID, r.Owner, r.Type, r.Site, r.Title, r.Description,
			r.StartDate, r.EndDate, r.Status, r.Challenges, r.Timestamp,
		}
		if err := f.SetSheetRow(sheetName, cell, &values); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to write mirror row: %w", err)
		}
	}

	return f, nil
}

// emptyWorkbook はヘッダーのみのワークブックのバイト列を返す。
func emptyWorkbook() ([]byte, error) {
	f, err := buildWorkbook(nil)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("failed to serialize empty mirror: %w", err)
	}
	return buf.Bytes(), nil
}

// compile-time interface check
var _ Store = (*XLSXMirror)(nil)
