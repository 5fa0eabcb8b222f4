// Package project はプロジェクト管理のドメインロジックを提供する。
package project

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/alluna/internal/model"
	"github.com/hitoshi/alluna/internal/repository"
)

// CreateInput はプロジェクト作成の入力。
type CreateInput struct {
	Name        string
	ClientName  string
	ClientPhone string
	ClientEmail string
	Description string
}

// Service はプロジェクト管理のサービス層。
type Service struct {
	projectRepo repository.ProjectRepository
	logger      *slog.Logger
	now         func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(projectRepo repository.ProjectRepository, logger *slog.Logger) *Service {
	return &Service{
		projectRepo: projectRepo,
		logger:      logger,
		now:         time.Now,
	}
}

// Validate は必須項目とメールアドレスの形式を検証する。
func (in *CreateInput) Validate() error {
	switch {
	case strings.TrimSpace(in.Name) == "":
		return model.NewRequiredFieldError("name")
	case strings.TrimSpace(in.ClientName) == "":
		return model.NewRequiredFieldError("client_name")
	case strings.TrimSpace(in.ClientPhone) == "":
		return model.NewRequiredFieldError("client_phone")
	}

	if email := strings.TrimSpace(in.ClientEmail); email != "" {
		addr, err := mail.ParseAddress(email)
		if err != nil || addr.Address != email {
			return &model.ValidationError{Field: "client_email", Message: "is not a valid email address"}
		}
	}
	return nil
}

// CreateProject はプロジェクトを作成する。
func (s *Service) CreateProject(ctx context.Context, in CreateInput) (*model.Project, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	project := &model.Project{
		ID:          uuid.NewString(),
		Name:        strings.TrimSpace(in.Name),
		ClientName:  strings.TrimSpace(in.ClientName),
		ClientPhone: strings.TrimSpace(in.ClientPhone),
		ClientEmail: strings.TrimSpace(in.ClientEmail),
		Description: strings.TrimSpace(in.Description),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.projectRepo.Create(ctx, project); err != nil {
		return nil, fmt.Errorf("プロジェクトの作成に失敗しました: %w", err)
	}

	s.logger.Info("プロジェクトを作成しました", slog.String("project_id", project.ID))
	return project, nil
}

// ListProjects はプロジェクト一覧をドキュメント数付きで返す。
func (s *Service) ListProjects(ctx context.Context) ([]model.ProjectWithCount, error) {
	projects, err := s.projectRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("プロジェクト一覧の取得に失敗しました: %w", err)
	}

	counts, err := s.projectRepo.CountDocuments(ctx)
	if err != nil {
		return nil, fmt.Errorf("ドキュメント数の取得に失敗しました: %w", err)
	}

	results := make([]model.ProjectWithCount, len(projects))
	for i, p := range projects {
		results[i] = model.ProjectWithCount{
			Project:       *p,
			DocumentCount: counts[p.ID],
		}
	}
	return results, nil
}

// GetProject は指定IDのプロジェクトを返す。
func (s *Service) GetProject(ctx context.Context, id string) (*model.Project, error) {
	project, err := s.projectRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("プロジェクトの取得に失敗しました: %w", err)
	}
	if project == nil {
		return nil, model.NewProjectNotFoundError(id)
	}
	return project, nil
}

// DeleteProject はプロジェクトと配下のドキュメントを削除する。
func (s *Service) DeleteProject(ctx context.Context, id string) error {
	if err := s.projectRepo.Delete(ctx, id); err != nil {
		if errors.Is(err, model.ErrProjectNotFound) {
			return model.NewProjectNotFoundError(id)
		}
		return fmt.Errorf("プロジェクトの削除に失敗しました: %w", err)
	}

	s.logger.Info("プロジェクトを削除しました", slog.String("project_id", id))
	return nil
}
