package storage

import (
	"context"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/alluna/internal/model"
)

// keyPrefix はアップロードされるドキュメントファイルのキー接頭辞。
const keyPrefix = "documents/"

// Presigner は署名付きアップロードURLの発行を抽象化する。
type Presigner interface {
	PresignUpload(ctx context.Context, key, contentType string, ttl time.Duration) (uploadURL, objectURL string, err error)
}

// UploadTicket はクライアントに返すアップロード情報。
// クライアントはUploadURLにPUTした後、FileURLをドキュメントのfile_urlとして登録する。
type UploadTicket struct {
	UploadURL string    `json:"upload_url"`
	FileURL   string    `json:"file_url"`
	Key       string    `json:"key"`
	ExpiresAt time.Time `json:"expires_at"`
}

// UploadService はドキュメントファイルのアップロードURLを発行する。
type UploadService struct {
	presigner Presigner
	logger    *slog.Logger
	ttl       time.Duration
	now       func() time.Time
}

// NewUploadService はUploadServiceを生成する。
func NewUploadService(presigner Presigner, logger *slog.Logger, ttl time.Duration) *UploadService {
	return &UploadService{
		presigner: presigner,
		logger:    logger,
		ttl:       ttl,
		now:       time.Now,
	}
}

// RequestUploadURL はファイル名からオブジェクトキーを決め、署名付きURLを発行する。
// キーは documents/<uuid>/<ファイル名> の形式で、ファイル名は安全な文字に置き換える。
func (s *UploadService) RequestUploadURL(ctx context.Context, fileName, contentType string) (*UploadTicket, error) {
	if strings.TrimSpace(fileName) == "" {
		return nil, model.NewRequiredFieldError("file_name")
	}

	key := keyPrefix + uuid.NewString() + "/" + SanitizeFileName(fileName)
	uploadURL, fileURL, err := s.presigner.PresignUpload(ctx, key, contentType, s.ttl)
	if err != nil {
		s.logger.Error("署名付きアップロードURLの発行に失敗しました",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	s.logger.Info("署名付きアップロードURLを発行しました", slog.String("key", key))
	return &UploadTicket{
		UploadURL: uploadURL,
		FileURL:   fileURL,
		Key:       key,
		ExpiresAt: s.now().Add(s.ttl).UTC(),
	}, nil
}

// SanitizeFileName はパス要素を除き、英数字と . _ - 以外を _ に置き換える。
func SanitizeFileName(name string) string {
	base := path.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	if base == "." || base == "/" || base == ".." {
		return "file"
	}

	var b strings.Builder
	for _, r := range base {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}

	result := strings.TrimLeft(b.String(), ".")
	if result == "" {
		return "file"
	}
	return result
}
