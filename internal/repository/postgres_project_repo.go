package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/alluna/internal/model"
)

// PostgresProjectRepo はPostgreSQLを使用したプロジェクトリポジトリ。
type PostgresProjectRepo struct {
	db *sql.DB
}

// NewPostgresProjectRepo はPostgresProjectRepoを生成する。
func NewPostgresProjectRepo(db *sql.DB) *PostgresProjectRepo {
	return &PostgresProjectRepo{db: db}
}

const projectColumns = `id, name, client_name, client_phone, client_email, description, created_at, updated_at`

// Create はプロジェクトを作成する。
func (r *PostgresProjectRepo) Create(ctx context.Context, project *model.Project) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO projects (`+projectColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		project.ID, project.Name, project.ClientName, project.ClientPhone,
		nullString(project.ClientEmail), nullString(project.Description),
		project.CreatedAt, project.UpdatedAt,
	)
	if err != nil {
		return &model.StoreError{Op: "create_project", Err: fmt.Errorf("プロジェクトの作成に失敗しました: %w", err)}
	}
	return nil
}

// FindByID は指定IDのプロジェクトを取得する。見つからない場合はnilを返す。
func (r *PostgresProjectRepo) FindByID(ctx context.Context, id string) (*model.Project, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+projectColumns+` FROM projects WHERE id = $1`,
		id,
	)

	project, err := scanProject(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, &model.StoreError{Op: "find_project", Err: fmt.Errorf("プロジェクトの取得に失敗しました: %w", err)}
	}
	return project, nil
}

// List はプロジェクト一覧を作成日時の降順で返す。
func (r *PostgresProjectRepo) List(ctx context.Context) ([]*model.Project, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+projectColumns+` FROM projects ORDER BY created_at DESC, id`,
	)
	if err != nil {
		return nil, &model.StoreError{Op: "list_projects", Err: fmt.Errorf("プロジェクト一覧の取得に失敗しました: %w", err)}
	}
	defer rows.Close()

	projects := []*model.Project{}
	for rows.Next() {
		project, err := scanProject(rows)
		if err != nil {
			return nil, &model.StoreError{Op: "list_projects", Err: fmt.Errorf("プロジェクトの読み取りに失敗しました: %w", err)}
		}
		projects = append(projects, project)
	}
	if err := rows.Err(); err != nil {
		return nil, &model.StoreError{Op: "list_projects", Err: fmt.Errorf("プロジェクト一覧の走査に失敗しました: %w", err)}
	}
	return projects, nil
}

// Delete は指定IDのプロジェクトを削除する。
// documents.project_idのON DELETE CASCADEにより配下のドキュメントも削除される。
func (r *PostgresProjectRepo) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM projects WHERE id = $1`, id)
	if err != nil {
		return &model.StoreError{Op: "delete_project", Err: fmt.Errorf("プロジェクトの削除に失敗しました: %w", err)}
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return &model.StoreError{Op: "delete_project", Err: fmt.Errorf("削除件数の取得に失敗しました: %w", err)}
	}
	if affected == 0 {
		return model.ErrProjectNotFound
	}
	return nil
}

// CountDocuments はプロジェクトIDごとのドキュメント数を返す。
func (r *PostgresProjectRepo) CountDocuments(ctx context.Context) (map[string]int, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT project_id, count(*) FROM documents GROUP BY project_id`,
	)
	if err != nil {
		return nil, &model.StoreError{Op: "count_documents", Err: fmt.Errorf("ドキュメント数の集計に失敗しました: %w", err)}
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var projectID string
		var count int
		if err := rows.Scan(&projectID, &count); err != nil {
			return nil, &model.StoreError{Op: "count_documents", Err: fmt.Errorf("ドキュメント数の読み取りに失敗しました: %w", err)}
		}
		counts[projectID] = count
	}
	if err := rows.Err(); err != nil {
		return nil, &model.StoreError{Op: "count_documents", Err: err}
	}
	return counts, nil
}

// rowScanner は*sql.Rowと*sql.Rowsの共通インターフェース。
type rowScanner interface {
	Scan(dest ...any) error
}

func scanProject(row rowScanner) (*model.Project, error) {
	project := &model.Project{}
	var clientEmail, description sql.NullString

	if err := row.Scan(
		&project.ID, &project.Name, &project.ClientName, &project.ClientPhone,
		&clientEmail, &description, &project.CreatedAt, &project.UpdatedAt,
	); err != nil {
		return nil, err
	}

	project.ClientEmail = nullStringValue(clientEmail)
	project.Description = nullStringValue(description)
	return project, nil
}

// nullString は空文字列をsql.NullStringに変換する。
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// nullStringValue はsql.NullStringから文字列を取得する。
func nullStringValue(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}
