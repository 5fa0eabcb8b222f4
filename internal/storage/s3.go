// Package storage はドキュメントファイルのアップロード先（S3互換ストレージ）を扱う。
package storage

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Config はS3クライアントの設定。
type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string // MinIOなどS3互換ストレージのエンドポイント。空ならAWS
	AccessKeyID     string // 空なら既定の認証情報チェーンを使う
	SecretAccessKey string
}

// S3Storage は署名付きPUT URLを発行する。
type S3Storage struct {
	presigner *s3.PresignClient
	bucket    string
}

// NewS3Storage はS3Storageを生成する。
func NewS3Storage(ctx context.Context, cfg S3Config) (*S3Storage, error) {
	opts := []func(*config.LoadOptions) error{}
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("AWS SDKの設定の読み込みに失敗しました: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Storage{
		presigner: s3.NewPresignClient(client),
		bucket:    cfg.Bucket,
	}, nil
}

// PresignUpload はkeyへのPUT用の署名付きURLと、アップロード後のオブジェクトURLを返す。
func (s *S3Storage) PresignUpload(ctx context.Context, key, contentType string, ttl time.Duration) (string, string, error) {
	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	request, err := s.presigner.PresignPutObject(ctx, input, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", "", fmt.Errorf("署名付きURLの生成に失敗しました: %w", err)
	}

	objectURL, err := stripQuery(request.URL)
	if err != nil {
		return "", "", err
	}
	return request.URL, objectURL, nil
}

// stripQuery は署名付きURLから署名パラメータを除いたオブジェクトURLを返す。
func stripQuery(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("署名付きURLのパースに失敗しました: %w", err)
	}
	u.RawQuery = ""
	u.Fragment = ""
	return u.String(), nil
}
