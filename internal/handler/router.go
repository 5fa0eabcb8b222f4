package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/hitoshi/alluna/internal/config"
	"github.com/hitoshi/alluna/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	StatusCounter     middleware.StatusCounter // nilの場合はHTTPステータスを記録しない

	// 運用
	HealthCheck    HealthCheckFunc
	MetricsHandler http.Handler // nilの場合は/metricsを公開しない

	// ドメイン
	ProjectService    ProjectServiceInterface
	DocumentService   DocumentServiceInterface
	UploadService     UploadServiceInterface // nilの場合は/api/uploadsを公開しない
	SigningSender     SigningSenderInterface
	CallbackProcessor CallbackProcessorInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RealIP → Recovery → Logging → Metrics → SecurityHeaders → CORS → RateLimit
//
// コールバック（/api/okidoki/callback）はプロバイダからの通知のため、
// API全般とは独立したレート制限を適用する。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Use(chimw.RealIP)
	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewLoggingMiddleware(logger))
	if deps.StatusCounter != nil {
		r.Use(middleware.NewMetricsMiddleware(deps.StatusCounter))
	}
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	projectHandler := NewProjectHandler(deps.ProjectService)
	documentHandler := NewDocumentHandler(deps.DocumentService)
	okidokiHandler := NewOkiDokiHandler(deps.SigningSender, deps.CallbackProcessor)

	// --- 運用エンドポイント ---
	r.Get("/health", NewHealthHandler(deps.HealthCheck))
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	// --- プロバイダからのコールバック ---
	r.With(deps.RateLimiter.CallbackMiddleware()).Post(config.CallbackPath, okidokiHandler.Callback)

	// --- API ---
	r.Group(func(r chi.Router) {
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// プロジェクト管理
		r.Route("/api/projects", func(r chi.Router) {
			r.Get("/", projectHandler.ListProjects)
			r.Post("/", projectHandler.CreateProject)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", projectHandler.GetProject)
				r.Delete("/", projectHandler.DeleteProject)

				// プロジェクト配下のドキュメント
				r.Get("/documents", documentHandler.ListDocuments)
				r.Post("/documents", documentHandler.CreateDocument)
			})
		})

		// ドキュメント管理
		r.Route("/api/documents/{id}", func(r chi.Router) {
			r.Get("/", documentHandler.GetDocument)
			r.Delete("/", documentHandler.DeleteDocument)
			r.Get("/file", documentHandler.GetFile)
			r.Post("/send-for-signing", documentHandler.SendForSigning)
		})

		// アップロード
		if deps.UploadService != nil {
			r.Post("/api/uploads", NewUploadHandler(deps.UploadService).RequestUploadURL)
		}

		// 署名依頼（ドキュメントの状態を変更しない）
		r.Post("/api/okidoki/send-for-signing", okidokiHandler.SendForSigning)
	})

	return r
}
