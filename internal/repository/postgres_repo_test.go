package repository

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/hitoshi/alluna/internal/database"
	"github.com/hitoshi/alluna/internal/model"
)

// setupPostgres はマイグレーション済みのテスト用データベースを返す。
// TEST_DATABASE_URL未設定または接続できない場合はスキップする。
func setupPostgres(t *testing.T) *sql.DB {
	t.Helper()

	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL が未設定のためスキップ")
	}

	db, err := database.Open(dbURL)
	if err != nil {
		t.Fatalf("データベースへの接続に失敗: %v", err)
	}
	if err := db.Ping(); err != nil {
		t.Skipf("テスト用データベースに接続できません（スキップ）: %v", err)
	}
	if err := database.RunMigrations(dbURL); err != nil {
		t.Fatalf("マイグレーション実行に失敗: %v", err)
	}
	if _, err := db.Exec(`TRUNCATE documents, projects`); err != nil {
		t.Fatalf("クリーンアップに失敗: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestPostgresRepos_DocumentLifecycle(t *testing.T) {
	db := setupPostgres(t)
	ctx := context.Background()
	projects := NewPostgresProjectRepo(db)
	documents := NewPostgresDocumentRepo(db)

	now := time.Now().UTC().Truncate(time.Microsecond)
	if err := projects.Create(ctx, &model.Project{
		ID: "p1", Name: "Квартира", ClientName: "Иван Петров", ClientPhone: "+7 900",
		CreatedAt: now, UpdatedAt: now,
	}); err != nil {
		t.Fatalf("プロジェクトの作成に失敗: %v", err)
	}
	if err := documents.Create(ctx, &model.Document{
		ID: "d1", ProjectID: "p1", Name: "Договор", Type: model.DocumentTypeContract,
		Status: model.DocumentStatusDraft, Content: `{"totalAmount":"100000"}`,
		CreatedAt: now, UpdatedAt: now,
	}); err != nil {
		t.Fatalf("ドキュメントの作成に失敗: %v", err)
	}

	signedAt := now.Add(time.Minute)
	if err := documents.UpdateStatus(ctx, "d1", model.DocumentStatusSigned, signedAt); err != nil {
		t.Fatalf("UpdateStatus(signed) error = %v", err)
	}
	if err := documents.UpdateStatus(ctx, "d1", model.DocumentStatusSigned, signedAt.Add(time.Minute)); err != nil {
		t.Fatalf("UpdateStatus(signed again) error = %v", err)
	}

	d, err := documents.FindByID(ctx, "d1")
	if err != nil || d == nil {
		t.Fatalf("FindByID() = %v, %v", d, err)
	}
	if d.Status != model.DocumentStatusSigned || d.SignedAt == nil || !d.SignedAt.Equal(signedAt) {
		t.Errorf("status=%q signed_at=%v, want signed at %v", d.Status, d.SignedAt, signedAt)
	}
	if d.Content != `{"totalAmount":"100000"}` || d.FileURL != "" {
		t.Errorf("payload = (%q, %q)", d.FileURL, d.Content)
	}

	if err := documents.UpdateStatus(ctx, "d1", model.DocumentStatusDraft, signedAt.Add(2*time.Minute)); err != nil {
		t.Fatalf("UpdateStatus(draft) error = %v", err)
	}
	d, _ = documents.FindByID(ctx, "d1")
	if d.SignedAt != nil {
		t.Errorf("SignedAt = %v, want nil", d.SignedAt)
	}

	if err := documents.UpdateStatus(ctx, "missing", model.DocumentStatusSigned, now); !errors.Is(err, model.ErrDocumentNotFound) {
		t.Errorf("UpdateStatus(missing) error = %v, want ErrDocumentNotFound", err)
	}

	counts, err := projects.CountDocuments(ctx)
	if err != nil || counts["p1"] != 1 {
		t.Errorf("CountDocuments() = %v, %v", counts, err)
	}

	if err := projects.Delete(ctx, "p1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if d, _ := documents.FindByID(ctx, "d1"); d != nil {
		t.Error("ドキュメントがCASCADE削除されていない")
	}
}

func TestPostgresDocumentRepo_CreateWithoutProject(t *testing.T) {
	db := setupPostgres(t)
	documents := NewPostgresDocumentRepo(db)

	now := time.Now().UTC()
	err := documents.Create(context.Background(), &model.Document{
		ID: "d1", ProjectID: "missing", Name: "x", Type: model.DocumentTypeOther,
		Status: model.DocumentStatusDraft, CreatedAt: now, UpdatedAt: now,
	})
	if !errors.Is(err, model.ErrProjectNotFound) {
		t.Errorf("Create() error = %v, want ErrProjectNotFound", err)
	}
}

// NewPostgres*Repoが正しく初期化されることを検証
func TestPostgresDocumentRepo_MarkPending(t *testing.T) {
	db := setupPostgres(t)
	ctx := context.Background()
	projects := NewPostgresProjectRepo(db)
	documents := NewPostgresDocumentRepo(db)

	now := time.Now().UTC().Truncate(time.Microsecond)
	if err := projects.Create(ctx, &model.Project{
		ID: "p1", Name: "Квартира", ClientName: "Иван Петров", ClientPhone: "+7 900",
		CreatedAt: now, UpdatedAt: now,
	}); err != nil {
		t.Fatalf("プロジェクトの作成に失敗: %v", err)
	}
	for _, id := range []string{"d1", "d2"} {
		if err := documents.Create(ctx, &model.Document{
			ID: id, ProjectID: "p1", Name: "Договор " + id, Type: model.DocumentTypeContract,
			Status: model.DocumentStatusDraft, CreatedAt: now, UpdatedAt: now,
		}); err != nil {
			t.Fatalf("ドキュメントの作成に失敗: %v", err)
		}
	}

	updated, err := documents.MarkPending(ctx, "d1", now.Add(time.Minute))
	if err != nil || !updated {
		t.Fatalf("MarkPending(draft) = %v, %v, want true, nil", updated, err)
	}
	d, _ := documents.FindByID(ctx, "d1")
	if d.Status != model.DocumentStatusPendingSignature || d.SignedAt != nil {
		t.Errorf("after MarkPending: status=%q signed_at=%v", d.Status, d.SignedAt)
	}

	signedAt := now.Add(2 * time.Minute)
	if err := documents.UpdateStatus(ctx, "d2", model.DocumentStatusSigned, signedAt); err != nil {
		t.Fatalf("UpdateStatus(signed) error = %v", err)
	}
	updated, err = documents.MarkPending(ctx, "d2", signedAt.Add(time.Minute))
	if err != nil || updated {
		t.Fatalf("MarkPending(signed) = %v, %v, want false, nil", updated, err)
	}
	d, _ = documents.FindByID(ctx, "d2")
	if d.Status != model.DocumentStatusSigned || d.SignedAt == nil || !d.SignedAt.Equal(signedAt) {
		t.Errorf("signedが上書きされた: status=%q signed_at=%v", d.Status, d.SignedAt)
	}

	if _, err := documents.MarkPending(ctx, "missing", now); !errors.Is(err, model.ErrDocumentNotFound) {
		t.Errorf("MarkPending(missing) error = %v, want ErrDocumentNotFound", err)
	}
}

func TestNewPostgresRepos_Initialize(t *testing.T) {
	if NewPostgresProjectRepo(nil) == nil {
		t.Fatal("expected non-nil project repo")
	}
	if NewPostgresDocumentRepo(nil) == nil {
		t.Fatal("expected non-nil document repo")
	}
}

func TestNullTime(t *testing.T) {
	if nullTime(nil).Valid {
		t.Error("nullTime(nil) should be invalid")
	}
	now := time.Now()
	if nt := nullTime(&now); !nt.Valid || !nt.Time.Equal(now) {
		t.Errorf("nullTime(&now) = %+v", nt)
	}
}
