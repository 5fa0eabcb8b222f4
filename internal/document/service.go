// Package document はドキュメント管理と署名依頼のドメインロジックを提供する。
//
// 署名依頼（SendForSigning）はsigning.Senderを呼び出し、成功した場合にのみ
// ドキュメントをpending_signatureへ遷移させる。失敗時は状態を変更しない。
package document

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/alluna/internal/lock"
	"github.com/hitoshi/alluna/internal/model"
	"github.com/hitoshi/alluna/internal/repository"
	"github.com/hitoshi/alluna/internal/security"
	"github.com/hitoshi/alluna/internal/signing"
)

// SigningSender は署名依頼の送信を抽象化する。signing.Senderが実装する。
type SigningSender interface {
	Send(ctx context.Context, req *signing.Request) (*signing.Result, error)
}

// FileFetcher はfile_urlの検証と取得を抽象化する。security.FileGuardが実装する。
type FileFetcher interface {
	ValidateURL(rawURL string) error
	Fetch(ctx context.Context, rawURL string) (*security.RemoteFile, error)
}

// CreateInput はドキュメント作成の入力。FileURLとContentはどちらか一方のみ指定できる。
type CreateInput struct {
	ProjectID string
	Name      string
	Type      model.DocumentType
	FileURL   string
	Content   string
}

// SignerInput は署名依頼の署名者情報。空の項目はプロジェクトの顧客情報で補う。
type SignerInput struct {
	Name  string
	Phone string
	Email string
}

// File はドキュメントのファイル内容。Bodyは呼び出し元がCloseする。
type File struct {
	Body        io.ReadCloser
	ContentType string
	FileName    string
}

// Service はドキュメント管理のサービス層。
type Service struct {
	projectRepo  repository.ProjectRepository
	documentRepo repository.DocumentRepository
	sender       SigningSender
	locker       lock.Locker
	fetcher      FileFetcher
	logger       *slog.Logger
	baseURL      string
	now          func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
// baseURLはfile_urlを持たないドキュメントのdocument_urlを組み立てるために使う。
func NewService(
	projectRepo repository.ProjectRepository,
	documentRepo repository.DocumentRepository,
	sender SigningSender,
	locker lock.Locker,
	fetcher FileFetcher,
	logger *slog.Logger,
	baseURL string,
) *Service {
	return &Service{
		projectRepo:  projectRepo,
		documentRepo: documentRepo,
		sender:       sender,
		locker:       locker,
		fetcher:      fetcher,
		logger:       logger,
		baseURL:      strings.TrimRight(baseURL, "/"),
		now:          time.Now,
	}
}

// CreateDocument はプロジェクトにドキュメントを追加する。初期状態はdraft。
func (s *Service) CreateDocument(ctx context.Context, in CreateInput) (*model.Document, error) {
	if err := s.validateCreate(&in); err != nil {
		return nil, err
	}

	project, err := s.projectRepo.FindByID(ctx, in.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("プロジェクトの取得に失敗しました: %w", err)
	}
	if project == nil {
		return nil, model.NewProjectNotFoundError(in.ProjectID)
	}

	now := s.now().UTC()
	document := &model.Document{
		ID:        uuid.NewString(),
		ProjectID: project.ID,
		Name:      strings.TrimSpace(in.Name),
		Type:      in.Type,
		Status:    model.DocumentStatusDraft,
		FileURL:   in.FileURL,
		Content:   in.Content,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.documentRepo.Create(ctx, document); err != nil {
		if errors.Is(err, model.ErrProjectNotFound) {
			return nil, model.NewProjectNotFoundError(in.ProjectID)
		}
		return nil, fmt.Errorf("ドキュメントの作成に失敗しました: %w", err)
	}

	s.logger.Info("ドキュメントを作成しました",
		slog.String("document_id", document.ID),
		slog.String("project_id", document.ProjectID),
		slog.String("type", string(document.Type)),
	)
	return document, nil
}

func (s *Service) validateCreate(in *CreateInput) error {
	in.FileURL = strings.TrimSpace(in.FileURL)
	in.Content = strings.TrimSpace(in.Content)
	if in.Type == "" {
		in.Type = model.DocumentTypeOther
	}

	switch {
	case strings.TrimSpace(in.Name) == "":
		return model.NewRequiredFieldError("name")
	case !in.Type.Valid():
		return &model.ValidationError{Field: "type", Message: fmt.Sprintf("unknown document type %q", in.Type)}
	case in.FileURL != "" && in.Content != "":
		return &model.ValidationError{Field: "file_url", Message: "file_url and content are mutually exclusive"}
	}

	if in.FileURL != "" {
		if err := s.fetcher.ValidateURL(in.FileURL); err != nil {
			return &model.ValidationError{Field: "file_url", Message: err.Error()}
		}
	}
	if in.Content != "" && !json.Valid([]byte(in.Content)) {
		return &model.ValidationError{Field: "content", Message: "must be a JSON document"}
	}
	return nil
}

// GetDocument は指定IDのドキュメントを返す。
func (s *Service) GetDocument(ctx context.Context, id string) (*model.Document, error) {
	document, err := s.documentRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("ドキュメントの取得に失敗しました: %w", err)
	}
	if document == nil {
		return nil, model.NewDocumentNotFoundError(id)
	}
	return document, nil
}

// ListProjectDocuments はプロジェクトのドキュメント一覧を返す。
func (s *Service) ListProjectDocuments(ctx context.Context, projectID string) ([]*model.Document, error) {
	project, err := s.projectRepo.FindByID(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("プロジェクトの取得に失敗しました: %w", err)
	}
	if project == nil {
		return nil, model.NewProjectNotFoundError(projectID)
	}

	documents, err := s.documentRepo.ListByProject(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("ドキュメント一覧の取得に失敗しました: %w", err)
	}
	return documents, nil
}

// DeleteDocument は指定IDのドキュメントを削除する。
func (s *Service) DeleteDocument(ctx context.Context, id string) error {
	if err := s.documentRepo.Delete(ctx, id); err != nil {
		if errors.Is(err, model.ErrDocumentNotFound) {
			return model.NewDocumentNotFoundError(id)
		}
		return fmt.Errorf("ドキュメントの削除に失敗しました: %w", err)
	}

	s.logger.Info("ドキュメントを削除しました", slog.String("document_id", id))
	return nil
}

// OpenFile はドキュメントのファイル内容を返す。
// contentを持つドキュメントはJSONをそのまま返し、file_urlを持つドキュメントはSSRF防止付きで取得する。
func (s *Service) OpenFile(ctx context.Context, id string) (*File, error) {
	document, err := s.GetDocument(ctx, id)
	if err != nil {
		return nil, err
	}

	switch {
	case document.Content != "":
		return &File{
			Body:        io.NopCloser(bytes.NewReader([]byte(document.Content))),
			ContentType: "application/json",
			FileName:    document.ID + ".json",
		}, nil

	case document.FileURL != "":
		remote, err := s.fetcher.Fetch(ctx, document.FileURL)
		if err != nil {
			s.logger.Warn("ドキュメントファイルを取得できませんでした",
				slog.String("document_id", id),
				slog.String("error", err.Error()),
			)
			return nil, model.NewFileUnavailableError(id)
		}
		contentType := remote.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		return &File{
			Body:        remote.Body,
			ContentType: contentType,
			FileName:    fileNameFromURL(document.FileURL),
		}, nil

	default:
		return nil, model.NewFileUnavailableError(id)
	}
}

func fileNameFromURL(rawURL string) string {
	trimmed := rawURL
	if i := strings.IndexAny(trimmed, "?#"); i >= 0 {
		trimmed = trimmed[:i]
	}
	if i := strings.LastIndex(trimmed, "/"); i >= 0 && i < len(trimmed)-1 {
		return trimmed[i+1:]
	}
	return "document"
}
