package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/hitoshi/alluna/internal/model"
)

// MemoryStore はプロセス内でプロジェクトとドキュメントを保持するストア。
// 開発・デモ用。1つのミューテックスで両方のマップを保護し、
// プロジェクト削除時の配下ドキュメント削除を同じロック内で行う。
type MemoryStore struct {
	mu        sync.RWMutex
	projects  map[string]*model.Project
	documents map[string]*model.Document
}

// NewMemoryStore は空のMemoryStoreを生成する。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		projects:  make(map[string]*model.Project),
		documents: make(map[string]*model.Document),
	}
}

// Projects はProjectRepositoryとしてのビューを返す。
func (s *MemoryStore) Projects() *MemoryProjectRepo {
	return &MemoryProjectRepo{store: s}
}

// Documents はDocumentRepositoryとしてのビューを返す。
func (s *MemoryStore) Documents() *MemoryDocumentRepo {
	return &MemoryDocumentRepo{store: s}
}

// Ping は常に成功する。ヘルスチェックでPostgreSQL実装と同じ扱いにするために用意する。
func (s *MemoryStore) Ping(context.Context) error {
	return nil
}

// MemoryProjectRepo はMemoryStore上のProjectRepository実装。
type MemoryProjectRepo struct {
	store *MemoryStore
}

// Create はプロジェクトを作成する。
func (r *MemoryProjectRepo) Create(_ context.Context, project *model.Project) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	p := *project
	r.store.projects[p.ID] = &p
	return nil
}

// FindByID は指定IDのプロジェクトを取得する。見つからない場合はnilを返す。
func (r *MemoryProjectRepo) FindByID(_ context.Context, id string) (*model.Project, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	p, ok := r.store.projects[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

// List はプロジェクト一覧を作成日時の降順で返す。
func (r *MemoryProjectRepo) List(_ context.Context) ([]*model.Project, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	projects := make([]*model.Project, 0, len(r.store.projects))
	for _, p := range r.store.projects {
		cp := *p
		projects = append(projects, &cp)
	}
	sort.Slice(projects, func(i, j int) bool {
		if projects[i].CreatedAt.Equal(projects[j].CreatedAt) {
			return projects[i].ID < projects[j].ID
		}
		return projects[i].CreatedAt.After(projects[j].CreatedAt)
	})
	return projects, nil
}

// Delete はプロジェクトと配下のドキュメントを削除する。
func (r *MemoryProjectRepo) Delete(_ context.Context, id string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if _, ok := r.store.projects[id]; !ok {
		return model.ErrProjectNotFound
	}
	for docID, d := range r.store.documents {
		if d.ProjectID == id {
			delete(r.store.documents, docID)
		}
	}
	delete(r.store.projects, id)
	return nil
}

// CountDocuments はプロジェクトIDごとのドキュメント数を返す。
func (r *MemoryProjectRepo) CountDocuments(_ context.Context) (map[string]int, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	counts := make(map[string]int)
	for _, d := range r.store.documents {
		counts[d.ProjectID]++
	}
	return counts, nil
}

// MemoryDocumentRepo はMemoryStore上のDocumentRepository実装。
type MemoryDocumentRepo struct {
	store *MemoryStore
}

// Create はドキュメントを作成する。親プロジェクトが無い場合はmodel.ErrProjectNotFoundを返す。
func (r *MemoryDocumentRepo) Create(_ context.Context, document *model.Document) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if _, ok := r.store.projects[document.ProjectID]; !ok {
		return model.ErrProjectNotFound
	}
	r.store.documents[document.ID] = copyDocument(document)
	return nil
}

// FindByID は指定IDのドキュメントを取得する。見つからない場合はnilを返す。
func (r *MemoryDocumentRepo) FindByID(_ context.Context, id string) (*model.Document, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	d, ok := r.store.documents[id]
	if !ok {
		return nil, nil
	}
	return copyDocument(d), nil
}

// ListByProject はプロジェクトのドキュメント一覧を作成日時の降順で返す。
func (r *MemoryDocumentRepo) ListByProject(_ context.Context, projectID string) ([]*model.Document, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	documents := []*model.Document{}
	for _, d := range r.store.documents {
		if d.ProjectID == projectID {
			documents = append(documents, copyDocument(d))
		}
	}
	sort.Slice(documents, func(i, j int) bool {
		if documents[i].CreatedAt.Equal(documents[j].CreatedAt) {
			return documents[i].ID < documents[j].ID
		}
		return documents[i].CreatedAt.After(documents[j].CreatedAt)
	})
	return documents, nil
}

// UpdateStatus はロック内でステータス遷移を適用する。
func (r *MemoryDocumentRepo) UpdateStatus(_ context.Context, id string, status model.DocumentStatus, at time.Time) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	d, ok := r.store.documents[id]
	if !ok {
		return model.ErrDocumentNotFound
	}
	d.ApplyStatus(status, at)
	return nil
}

// MarkPending はロック内でsignedを確認してからpending_signatureへ遷移させる。
func (r *MemoryDocumentRepo) MarkPending(_ context.Context, id string, at time.Time) (bool, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	d, ok := r.store.documents[id]
	if !ok {
		return false, model.ErrDocumentNotFound
	}
	if d.Status == model.DocumentStatusSigned {
		return false, nil
	}
	d.ApplyStatus(model.DocumentStatusPendingSignature, at)
	return true, nil
}

// Delete は指定IDのドキュメントを削除する。
func (r *MemoryDocumentRepo) Delete(_ context.Context, id string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if _, ok := r.store.documents[id]; !ok {
		return model.ErrDocumentNotFound
	}
	delete(r.store.documents, id)
	return nil
}

// copyDocument はSignedAtのポインタ共有を避けてドキュメントを複製する。
func copyDocument(d *model.Document) *model.Document {
	cp := *d
	if d.SignedAt != nil {
		t := *d.SignedAt
		cp.SignedAt = &t
	}
	return &cp
}
