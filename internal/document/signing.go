package document

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hitoshi/alluna/internal/model"
	"github.com/hitoshi/alluna/internal/signing"
)

// 署名依頼のメタデータキー。
const (
	MetadataProjectID      = "project_id"
	MetadataProjectName    = "project_name"
	MetadataTotalAmount    = "total_amount"
	MetadataAdvancePayment = "advance_payment"
	MetadataWorkPeriod     = "work_period"
)

// ContractContent は契約書ドキュメントのcontentに保存される契約条件。
type ContractContent struct {
	TotalAmount     string `json:"totalAmount"`
	AdvancePayment  string `json:"advancePayment"`
	WorkPeriod      string `json:"workPeriod"`
	AdditionalTerms string `json:"additionalTerms"`
}

// SendForSigning はドキュメントの署名依頼をプロバイダに送信し、成功した場合にpending_signatureへ遷移させる。
// 同一ドキュメントへの送信が処理中の場合はSIGNING_IN_PROGRESSを返す。
// プロバイダ呼び出しが失敗した場合、ドキュメントの状態は変更しない。
func (s *Service) SendForSigning(ctx context.Context, documentID string, signer SignerInput) (*signing.Result, error) {
	document, err := s.GetDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}

	project, err := s.projectRepo.FindByID(ctx, document.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("プロジェクトの取得に失敗しました: %w", err)
	}
	if project == nil {
		return nil, model.NewProjectNotFoundError(document.ProjectID)
	}

	unlock, ok, err := s.locker.TryLock(ctx, document.ID)
	if err != nil {
		return nil, fmt.Errorf("署名依頼のロック取得に失敗しました: %w", err)
	}
	if !ok {
		return nil, model.NewSigningInProgressError(document.ID)
	}
	defer unlock()

	req := s.buildSigningRequest(document, project, signer)
	result, err := s.sender.Send(ctx, req)
	if err != nil {
		return nil, err
	}

	if err := s.markPending(ctx, document.ID); err != nil {
		return nil, err
	}

	s.logger.Info("ドキュメントを署名待ちに更新しました",
		slog.String("document_id", document.ID),
		slog.String("signing_id", result.SigningID),
	)
	return result, nil
}

// markPending はドキュメントをpending_signatureへ遷移させる。
// signedの判定はリポジトリ内で書き込みと同時に行うため、
// プロバイダ呼び出し中やこの呼び出しの直前に届いた署名完了は上書きされない。
func (s *Service) markPending(ctx context.Context, documentID string) error {
	updated, err := s.documentRepo.MarkPending(ctx, documentID, s.now().UTC())
	if errors.Is(err, model.ErrDocumentNotFound) {
		return model.NewDocumentNotFoundError(documentID)
	}
	if err != nil {
		s.logger.Error("署名依頼は送信済みですが、ステータスの更新に失敗しました",
			slog.String("document_id", documentID),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("ドキュメントステータスの更新に失敗しました: %w", err)
	}
	if !updated {
		s.logger.Warn("署名完了のコールバックが先に到着したため、状態を維持します",
			slog.String("document_id", documentID),
		)
	}
	return nil
}

// buildSigningRequest はドキュメントとプロジェクトから署名依頼の入力を組み立てる。
func (s *Service) buildSigningRequest(document *model.Document, project *model.Project, signer SignerInput) *signing.Request {
	req := &signing.Request{
		DocumentID:   document.ID,
		DocumentName: document.Name,
		DocumentURL:  document.FileURL,
		Signer: signing.Signer{
			Name:  firstNonEmpty(signer.Name, project.ClientName),
			Phone: firstNonEmpty(signer.Phone, project.ClientPhone),
			Email: firstNonEmpty(signer.Email, project.ClientEmail),
		},
		Metadata: map[string]string{
			MetadataProjectID:   project.ID,
			MetadataProjectName: project.Name,
		},
	}
	if req.DocumentURL == "" {
		req.DocumentURL = s.baseURL + "/api/documents/" + document.ID + "/file"
	}

	if document.Type == model.DocumentTypeContract && document.Content != "" {
		var terms ContractContent
		if err := json.Unmarshal([]byte(document.Content), &terms); err != nil {
			s.logger.Warn("契約条件のパースに失敗したため、メタデータに含めません",
				slog.String("document_id", document.ID),
				slog.String("error", err.Error()),
			)
		} else {
			putIfSet(req.Metadata, MetadataTotalAmount, terms.TotalAmount)
			putIfSet(req.Metadata, MetadataAdvancePayment, terms.AdvancePayment)
			putIfSet(req.Metadata, MetadataWorkPeriod, terms.WorkPeriod)
			putIfSet(req.Metadata, signing.MetadataAdditionalTerms, terms.AdditionalTerms)
		}
	}
	return req
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func putIfSet(m map[string]string, key, value string) {
	if value = strings.TrimSpace(value); value != "" {
		m[key] = value
	}
}
