// Package repository はデータ永続化のインターフェースと実装を定義する。
//
// PostgreSQL実装とインメモリ実装の2つがあり、起動時の設定（STORE_DRIVER）で選択される。
// 呼び出し側はどちらの実装かを意識しない。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/alluna/internal/model"
)

// ProjectRepository はプロジェクトの永続化インターフェース。
type ProjectRepository interface {
	// Create はプロジェクトを作成する。IDとタイムスタンプは呼び出し側で設定済みであること。
	Create(ctx context.Context, project *model.Project) error

	// FindByID は指定IDのプロジェクトを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Project, error)

	// List はプロジェクト一覧を作成日時の降順で返す。
	List(ctx context.Context) ([]*model.Project, error)

	// Delete は指定IDのプロジェクトを削除する。配下のドキュメントもすべて削除される。
	// 存在しない場合はmodel.ErrProjectNotFoundを返す。
	Delete(ctx context.Context, id string) error

	// CountDocuments はプロジェクトIDごとのドキュメント数を返す。
	// ドキュメントを持たないプロジェクトはマップに含まれない。
	CountDocuments(ctx context.Context) (map[string]int, error)
}

// DocumentRepository はドキュメントの永続化インターフェース。
type DocumentRepository interface {
	// Create はドキュメントを作成する。IDとタイムスタンプは呼び出し側で設定済みであること。
	// 親プロジェクトが存在しない場合はmodel.ErrProjectNotFoundを返す。
	Create(ctx context.Context, document *model.Document) error

	// FindByID は指定IDのドキュメントを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Document, error)

	// ListByProject はプロジェクトのドキュメント一覧を作成日時の降順で返す。
	ListByProject(ctx context.Context, projectID string) ([]*model.Document, error)

	// UpdateStatus はドキュメントのステータスを1レコード単位でアトミックに更新する。
	// signedへの更新では既存のsigned_atを保持し、未設定の場合のみatを設定する。
	// signed以外への更新ではsigned_atをクリアする。updated_atはatになる。
	// 存在しない場合はmodel.ErrDocumentNotFoundを返す。
	UpdateStatus(ctx context.Context, id string, status model.DocumentStatus, at time.Time) error

	// MarkPending はsigned以外のドキュメントをpending_signatureへ遷移させる。
	// 状態の判定と書き込みは1操作で行い、先に到着したsignedを上書きしない。
	// signedのため遷移しなかった場合はfalseを返す。
	// 存在しない場合はmodel.ErrDocumentNotFoundを返す。
	MarkPending(ctx context.Context, id string, at time.Time) (bool, error)

	// Delete は指定IDのドキュメントを削除する。
	// 存在しない場合はmodel.ErrDocumentNotFoundを返す。
	Delete(ctx context.Context, id string) error
}
