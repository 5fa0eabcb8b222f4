package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hitoshi/alluna/internal/model"
	"github.com/lib/pq"
)

// foreignKeyViolation はPostgreSQLの外部キー制約違反のエラーコード。
const foreignKeyViolation = "23503"

// PostgresDocumentRepo はPostgreSQLを使用したドキュメントリポジトリ。
type PostgresDocumentRepo struct {
	db *sql.DB
}

// NewPostgresDocumentRepo はPostgresDocumentRepoを生成する。
func NewPostgresDocumentRepo(db *sql.DB) *PostgresDocumentRepo {
	return &PostgresDocumentRepo{db: db}
}

const documentColumns = `id, project_id, name, type, status, file_url, content, signed_at, created_at, updated_at`

// Create はドキュメントを作成する。
func (r *PostgresDocumentRepo) Create(ctx context.Context, document *model.Document) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO documents (`+documentColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		document.ID, document.ProjectID, document.Name, document.Type, document.Status,
		nullString(document.FileURL), nullString(document.Content), nullTime(document.SignedAt),
		document.CreatedAt, document.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == foreignKeyViolation {
			return model.ErrProjectNotFound
		}
		return &model.StoreError{Op: "create_document", Err: fmt.Errorf("ドキュメントの作成に失敗しました: %w", err)}
	}
	return nil
}

// FindByID は指定IDのドキュメントを取得する。見つからない場合はnilを返す。
func (r *PostgresDocumentRepo) FindByID(ctx context.Context, id string) (*model.Document, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = $1`,
		id,
	)

	document, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, &model.StoreError{Op: "find_document", Err: fmt.Errorf("ドキュメントの取得に失敗しました: %w", err)}
	}
	return document, nil
}

// ListByProject はプロジェクトのドキュメント一覧を作成日時の降順で返す。
func (r *PostgresDocumentRepo) ListByProject(ctx context.Context, projectID string) ([]*model.Document, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+documentColumns+` FROM documents
		 WHERE project_id = $1
		 ORDER BY created_at DESC, id`,
		projectID,
	)
	if err != nil {
		return nil, &model.StoreError{Op: "list_documents", Err: fmt.Errorf("ドキュメント一覧の取得に失敗しました: %w", err)}
	}
	defer rows.Close()

	documents := []*model.Document{}
	for rows.Next() {
		document, err := scanDocument(rows)
		if err != nil {
			return nil, &model.StoreError{Op: "list_documents", Err: fmt.Errorf("ドキュメントの読み取りに失敗しました: %w", err)}
		}
		documents = append(documents, document)
	}
	if err := rows.Err(); err != nil {
		return nil, &model.StoreError{Op: "list_documents", Err: fmt.Errorf("ドキュメント一覧の走査に失敗しました: %w", err)}
	}
	return documents, nil
}

// UpdateStatus はドキュメントのステータスを1文のUPDATEで更新する。
// signed_atの保持とクリアはSQL内で判定するため、読み取りと書き込みの間に競合は生じない。
func (r *PostgresDocumentRepo) UpdateStatus(ctx context.Context, id string, status model.DocumentStatus, at time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE documents SET
		    status = $2::varchar,
		    signed_at = CASE WHEN $2::varchar = 'signed' THEN COALESCE(signed_at, $3) ELSE NULL END,
		    updated_at = $3
		 WHERE id = $1`,
		id, string(status), at,
	)
	if err != nil {
		return &model.StoreError{Op: "update_status", Err: fmt.Errorf("ドキュメントステータスの更新に失敗しました: %w", err)}
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return &model.StoreError{Op: "update_status", Err: fmt.Errorf("更新件数の取得に失敗しました: %w", err)}
	}
	if affected == 0 {
		return model.ErrDocumentNotFound
	}
	return nil
}

// MarkPending はWHERE句でsignedを除外したUPDATEで遷移させる。
// 更新0件の場合のみ存在確認を行い、未存在とsigned済みを区別する。
func (r *PostgresDocumentRepo) MarkPending(ctx context.Context, id string, at time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE documents SET status = 'pending_signature', signed_at = NULL, updated_at = $2
		 WHERE id = $1 AND status <> 'signed'`,
		id, at,
	)
	if err != nil {
		return false, &model.StoreError{Op: "mark_pending", Err: fmt.Errorf("ドキュメントステータスの更新に失敗しました: %w", err)}
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, &model.StoreError{Op: "mark_pending", Err: fmt.Errorf("更新件数の取得に失敗しました: %w", err)}
	}
	if affected > 0 {
		return true, nil
	}

	var exists bool
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM documents WHERE id = $1)`, id).Scan(&exists); err != nil {
		return false, &model.StoreError{Op: "mark_pending", Err: fmt.Errorf("ドキュメントの存在確認に失敗しました: %w", err)}
	}
	if !exists {
		return false, model.ErrDocumentNotFound
	}
	return false, nil
}

// Delete は指定IDのドキュメントを削除する。
func (r *PostgresDocumentRepo) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return &model.StoreError{Op: "delete_document", Err: fmt.Errorf("ドキュメントの削除に失敗しました: %w", err)}
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return &model.StoreError{Op: "delete_document", Err: fmt.Errorf("削除件数の取得に失敗しました: %w", err)}
	}
	if affected == 0 {
		return model.ErrDocumentNotFound
	}
	return nil
}

func scanDocument(row rowScanner) (*model.Document, error) {
	document := &model.Document{}
	var fileURL, content sql.NullString
	var signedAt sql.NullTime

	if err := row.Scan(
		&document.ID, &document.ProjectID, &document.Name, &document.Type, &document.Status,
		&fileURL, &content, &signedAt, &document.CreatedAt, &document.UpdatedAt,
	); err != nil {
		return nil, err
	}

	document.FileURL = nullStringValue(fileURL)
	document.Content = nullStringValue(content)
	if signedAt.Valid {
		t := signedAt.Time
		document.SignedAt = &t
	}
	return document, nil
}

// nullTime は*time.Timeをsql.NullTimeに変換する。
func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
