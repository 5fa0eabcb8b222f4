package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/alluna/internal/model"
)

// インターフェース実装の検証
func TestMemoryRepos_ImplementInterfaces(t *testing.T) {
	var _ ProjectRepository = (*MemoryProjectRepo)(nil)
	var _ DocumentRepository = (*MemoryDocumentRepo)(nil)
	var _ ProjectRepository = (*PostgresProjectRepo)(nil)
	var _ DocumentRepository = (*PostgresDocumentRepo)(nil)
}

var baseTime = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func newTestMemoryStore(t *testing.T) *MemoryStore {
	t.Helper()
	s := NewMemoryStore()
	ctx := context.Background()

	if err := s.Projects().Create(ctx, &model.Project{
		ID: "p1", Name: "Квартира", ClientName: "Иван Петров", ClientPhone: "+7 900",
		CreatedAt: baseTime, UpdatedAt: baseTime,
	}); err != nil {
		t.Fatalf("プロジェクトの作成に失敗: %v", err)
	}
	if err := s.Projects().Create(ctx, &model.Project{
		ID: "p2", Name: "Офис", ClientName: "Мария", ClientPhone: "+7 901",
		CreatedAt: baseTime.Add(time.Hour), UpdatedAt: baseTime.Add(time.Hour),
	}); err != nil {
		t.Fatalf("プロジェクトの作成に失敗: %v", err)
	}
	for i, id := range []string{"d1", "d2"} {
		if err := s.Documents().Create(ctx, &model.Document{
			ID: id, ProjectID: "p1", Name: "Doc " + id, Type: model.DocumentTypeContract,
			Status:    model.DocumentStatusDraft,
			CreatedAt: baseTime.Add(time.Duration(i) * time.Minute),
			UpdatedAt: baseTime.Add(time.Duration(i) * time.Minute),
		}); err != nil {
			t.Fatalf("ドキュメントの作成に失敗: %v", err)
		}
	}
	return s
}

func TestMemoryProjectRepo_ListNewestFirst(t *testing.T) {
	s := newTestMemoryStore(t)

	projects, err := s.Projects().List(context.Background())
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(projects) != 2 || projects[0].ID != "p2" || projects[1].ID != "p1" {
		t.Errorf("List() order = %v, want [p2 p1]", projectIDs(projects))
	}
}

func TestMemoryProjectRepo_FindByID_NotFoundReturnsNil(t *testing.T) {
	s := newTestMemoryStore(t)

	p, err := s.Projects().FindByID(context.Background(), "missing")
	if err != nil {
		t.Fatalf("FindByID() error = %v", err)
	}
	if p != nil {
		t.Errorf("FindByID() = %+v, want nil", p)
	}
}

// プロジェクト削除で配下のドキュメントも削除されることを検証する。
func TestMemoryProjectRepo_DeleteCascades(t *testing.T) {
	s := newTestMemoryStore(t)
	ctx := context.Background()

	if err := s.Projects().Delete(ctx, "p1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	docs, err := s.Documents().ListByProject(ctx, "p1")
	if err != nil {
		t.Fatalf("ListByProject() error = %v", err)
	}
	if len(docs) != 0 {
		t.Errorf("documents remain after cascade: %d", len(docs))
	}
	if d, _ := s.Documents().FindByID(ctx, "d1"); d != nil {
		t.Error("d1 should be deleted")
	}

	if err := s.Projects().Delete(ctx, "p1"); !errors.Is(err, model.ErrProjectNotFound) {
		t.Errorf("second Delete() error = %v, want ErrProjectNotFound", err)
	}
}

func TestMemoryProjectRepo_CountDocuments(t *testing.T) {
	s := newTestMemoryStore(t)

	counts, err := s.Projects().CountDocuments(context.Background())
	if err != nil {
		t.Fatalf("CountDocuments() error = %v", err)
	}
	if counts["p1"] != 2 {
		t.Errorf("counts[p1] = %d, want 2", counts["p1"])
	}
	if _, ok := counts["p2"]; ok {
		t.Errorf("counts[p2] should be absent, got %d", counts["p2"])
	}
}

func TestMemoryDocumentRepo_CreateRequiresProject(t *testing.T) {
	s := newTestMemoryStore(t)

	err := s.Documents().Create(context.Background(), &model.Document{ID: "x", ProjectID: "missing"})
	if !errors.Is(err, model.ErrProjectNotFound) {
		t.Errorf("Create() error = %v, want ErrProjectNotFound", err)
	}
}

func TestMemoryDocumentRepo_ListByProjectNewestFirst(t *testing.T) {
	s := newTestMemoryStore(t)

	docs, err := s.Documents().ListByProject(context.Background(), "p1")
	if err != nil {
		t.Fatalf("ListByProject() error = %v", err)
	}
	if len(docs) != 2 || docs[0].ID != "d2" || docs[1].ID != "d1" {
		t.Errorf("order = [%s %s], want [d2 d1]", docs[0].ID, docs[1].ID)
	}
}

// signed_atの設定・保持・クリアを検証する。
func TestMemoryDocumentRepo_UpdateStatus_SignedAtInvariant(t *testing.T) {
	s := newTestMemoryStore(t)
	ctx := context.Background()
	repo := s.Documents()

	t1 := baseTime.Add(24 * time.Hour)
	t2 := t1.Add(time.Hour)
	t3 := t2.Add(time.Hour)

	if err := repo.UpdateStatus(ctx, "d1", model.DocumentStatusPendingSignature, t1); err != nil {
		t.Fatalf("UpdateStatus(pending) error = %v", err)
	}
	d, _ := repo.FindByID(ctx, "d1")
	if d.Status != model.DocumentStatusPendingSignature || d.SignedAt != nil {
		t.Errorf("after pending: %+v", d)
	}

	if err := repo.UpdateStatus(ctx, "d1", model.DocumentStatusSigned, t2); err != nil {
		t.Fatalf("UpdateStatus(signed) error = %v", err)
	}
	d, _ = repo.FindByID(ctx, "d1")
	if d.SignedAt == nil || !d.SignedAt.Equal(t2) {
		t.Errorf("SignedAt = %v, want %v", d.SignedAt, t2)
	}

	// 再送ではsigned_atが変わらない
	if err := repo.UpdateStatus(ctx, "d1", model.DocumentStatusSigned, t3); err != nil {
		t.Fatalf("UpdateStatus(signed again) error = %v", err)
	}
	d, _ = repo.FindByID(ctx, "d1")
	if d.SignedAt == nil || !d.SignedAt.Equal(t2) {
		t.Errorf("SignedAt after re-delivery = %v, want %v", d.SignedAt, t2)
	}
	if !d.UpdatedAt.Equal(t3) {
		t.Errorf("UpdatedAt = %v, want %v", d.UpdatedAt, t3)
	}

	if err := repo.UpdateStatus(ctx, "d1", model.DocumentStatusDraft, t3); err != nil {
		t.Fatalf("UpdateStatus(draft) error = %v", err)
	}
	d, _ = repo.FindByID(ctx, "d1")
	if d.Status != model.DocumentStatusDraft || d.SignedAt != nil {
		t.Errorf("after draft: status=%q signed_at=%v", d.Status, d.SignedAt)
	}
}

func TestMemoryDocumentRepo_UpdateStatus_NotFound(t *testing.T) {
	s := newTestMemoryStore(t)

	err := s.Documents().UpdateStatus(context.Background(), "missing", model.DocumentStatusSigned, baseTime)
	if !errors.Is(err, model.ErrDocumentNotFound) {
		t.Errorf("UpdateStatus() error = %v, want ErrDocumentNotFound", err)
	}
}

// 取得した値を書き換えてもストアに影響しないことを検証する。
func TestMemoryDocumentRepo_ReturnsCopies(t *testing.T) {
	s := newTestMemoryStore(t)
	ctx := context.Background()

	d, _ := s.Documents().FindByID(ctx, "d1")
	d.Status = model.DocumentStatusSigned

	again, _ := s.Documents().FindByID(ctx, "d1")
	if again.Status != model.DocumentStatusDraft {
		t.Errorf("Status = %q, want draft (store must not share pointers)", again.Status)
	}
}

func TestMemoryDocumentRepo_Delete(t *testing.T) {
	s := newTestMemoryStore(t)
	ctx := context.Background()

	if err := s.Documents().Delete(ctx, "d1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := s.Documents().Delete(ctx, "d1"); !errors.Is(err, model.ErrDocumentNotFound) {
		t.Errorf("second Delete() error = %v, want ErrDocumentNotFound", err)
	}
}

// 同一ドキュメントへの並行更新で不変条件が崩れないことを検証する（-raceで実行）。
func TestMemoryDocumentRepo_UpdateStatus_Concurrent(t *testing.T) {
	s := newTestMemoryStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			status := model.DocumentStatusSigned
			if i%2 == 0 {
				status = model.DocumentStatusDraft
			}
			s.Documents().UpdateStatus(ctx, "d1", status, baseTime.Add(time.Duration(i)*time.Second))
		}(i)
	}
	wg.Wait()

	d, _ := s.Documents().FindByID(ctx, "d1")
	if (d.Status == model.DocumentStatusSigned) != (d.SignedAt != nil) {
		t.Errorf("invariant broken: status=%q signed_at=%v", d.Status, d.SignedAt)
	}
}

func TestMemoryDocumentRepo_MarkPending(t *testing.T) {
	s := newTestMemoryStore(t)
	ctx := context.Background()
	repo := s.Documents()
	at := baseTime.Add(24 * time.Hour)

	updated, err := repo.MarkPending(ctx, "d1", at)
	if err != nil || !updated {
		t.Fatalf("MarkPending(draft) = %v, %v, want true, nil", updated, err)
	}
	d, _ := repo.FindByID(ctx, "d1")
	if d.Status != model.DocumentStatusPendingSignature || !d.UpdatedAt.Equal(at) {
		t.Errorf("after MarkPending: status=%q updated_at=%v", d.Status, d.UpdatedAt)
	}

	signedAt := at.Add(time.Hour)
	if err := repo.UpdateStatus(ctx, "d2", model.DocumentStatusSigned, signedAt); err != nil {
		t.Fatalf("UpdateStatus(signed) error = %v", err)
	}
	updated, err = repo.MarkPending(ctx, "d2", signedAt.Add(time.Hour))
	if err != nil || updated {
		t.Fatalf("MarkPending(signed) = %v, %v, want false, nil", updated, err)
	}
	d, _ = repo.FindByID(ctx, "d2")
	if d.Status != model.DocumentStatusSigned || d.SignedAt == nil || !d.SignedAt.Equal(signedAt) {
		t.Errorf("signedが上書きされた: status=%q signed_at=%v", d.Status, d.SignedAt)
	}

	if _, err := repo.MarkPending(ctx, "missing", at); !errors.Is(err, model.ErrDocumentNotFound) {
		t.Errorf("MarkPending(missing) error = %v, want ErrDocumentNotFound", err)
	}
}

// 署名完了とMarkPendingが並行しても、署名完了が一度適用されれば最終状態はsignedになる（-raceで実行）。
func TestMemoryDocumentRepo_MarkPending_ConcurrentWithSigned(t *testing.T) {
	s := newTestMemoryStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			at := baseTime.Add(time.Duration(i) * time.Second)
			if i == 25 {
				s.Documents().UpdateStatus(ctx, "d1", model.DocumentStatusSigned, at)
				return
			}
			s.Documents().MarkPending(ctx, "d1", at)
		}(i)
	}
	wg.Wait()

	d, _ := s.Documents().FindByID(ctx, "d1")
	if d.Status != model.DocumentStatusSigned || d.SignedAt == nil {
		t.Errorf("status=%q signed_at=%v, want signed", d.Status, d.SignedAt)
	}
}

func TestMemoryStore_Seed(t *testing.T) {
	s := NewMemoryStore()
	s.Seed()
	ctx := context.Background()

	projects, _ := s.Projects().List(ctx)
	if len(projects) != 3 {
		t.Fatalf("projects = %d, want 3", len(projects))
	}
	counts, _ := s.Projects().CountDocuments(ctx)
	if counts["1"] != 2 || counts["2"] != 1 || counts["3"] != 1 {
		t.Errorf("counts = %v", counts)
	}

	signed, _ := s.Documents().FindByID(ctx, "doc-4")
	if signed == nil || signed.Status != model.DocumentStatusSigned || signed.SignedAt == nil {
		t.Errorf("doc-4 = %+v, want signed with signed_at", signed)
	}
}

func projectIDs(projects []*model.Project) []string {
	ids := make([]string, 0, len(projects))
	for _, p := range projects {
		ids = append(ids, p.ID)
	}
	return ids
}
