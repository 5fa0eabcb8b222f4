package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hitoshi/alluna/internal/config"
	"github.com/hitoshi/alluna/internal/database"
	"github.com/hitoshi/alluna/internal/document"
	"github.com/hitoshi/alluna/internal/handler"
	"github.com/hitoshi/alluna/internal/lock"
	"github.com/hitoshi/alluna/internal/logger"
	"github.com/hitoshi/alluna/internal/metrics"
	"github.com/hitoshi/alluna/internal/middleware"
	"github.com/hitoshi/alluna/internal/project"
	"github.com/hitoshi/alluna/internal/repository"
	"github.com/hitoshi/alluna/internal/security"
	"github.com/hitoshi/alluna/internal/signing"
	"github.com/hitoshi/alluna/internal/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// dbPingTimeout はヘルスチェック時のDB疎通確認のタイムアウト。
const dbPingTimeout = 2 * time.Second

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定されたログレベルで再設定する
	if w == nil {
		w = os.Stdout
	}
	slog.SetDefault(logger.SetupWithLevel(w, logger.ParseLevel(cfg.LogLevel)))

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
		slog.String("store_driver", cfg.StoreDriver),
	)

	switch cmd {
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// runServe はAPIサーバーモードで起動する。
// ストアを開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	router, cleanup, err := buildRouter(ctx, cfg, slog.Default())
	if err != nil {
		return err
	}
	defer cleanup()

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.ProviderTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server listen error: %w", err)
		}
	case <-ctx.Done():
	}
	slog.Info("shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// stores はSTORE_DRIVERで選択されたリポジトリと疎通確認関数をまとめたもの。
type stores struct {
	projects    repository.ProjectRepository
	documents   repository.DocumentRepository
	healthCheck handler.HealthCheckFunc
	close       func()
}

// openStores はSTORE_DRIVERに応じてPostgreSQLまたはインメモリのストアを開く。
func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	if cfg.StoreDriver == config.StoreDriverMemory {
		mem := repository.NewMemoryStore()
		if cfg.StoreSeed {
			mem.Seed()
			slog.Info("memory store seeded with sample data")
		}
		slog.Warn("using in-memory store; data is lost on restart")
		return &stores{
			projects:    mem.Projects(),
			documents:   mem.Documents(),
			healthCheck: mem.Ping,
			close:       func() {},
		}, nil
	}

	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := database.Ping(ctx, db, dbPingTimeout); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	slog.Info("database connection established")

	return &stores{
		projects:  repository.NewPostgresProjectRepo(db),
		documents: repository.NewPostgresDocumentRepo(db),
		healthCheck: func(ctx context.Context) error {
			return database.Ping(ctx, db, dbPingTimeout)
		},
		close: func() { db.Close() },
	}, nil
}

// newLocker はREDIS_ADDRが設定されていればRedisのロックを、なければプロセス内ロックを返す。
func newLocker(ctx context.Context, cfg *config.Config, log *slog.Logger) (lock.Locker, func(), error) {
	if cfg.RedisAddr == "" {
		return lock.NewMemoryLocker(cfg.SendLockTTL), func() {}, nil
	}

	client, err := lock.NewRedisClient(ctx, cfg.RedisAddr)
	if err != nil {
		return nil, nil, err
	}
	slog.Info("redis connection established", slog.String("addr", cfg.RedisAddr))
	return lock.NewRedisLocker(client, log, cfg.SendLockTTL), func() { client.Close() }, nil
}

// newUploadService はS3が設定されている場合にアップロードサービスを返す。
// 未設定の場合はnilを返し、/api/uploadsは公開されない。
func newUploadService(ctx context.Context, cfg *config.Config, log *slog.Logger) (handler.UploadServiceInterface, error) {
	if !cfg.UploadsEnabled() {
		return nil, nil
	}

	s3Storage, err := storage.NewS3Storage(ctx, storage.S3Config{
		Bucket:          cfg.S3Bucket,
		Region:          cfg.S3Region,
		Endpoint:        cfg.S3Endpoint,
		AccessKeyID:     cfg.S3AccessKeyID,
		SecretAccessKey: cfg.S3SecretAccessKey,
	})
	if err != nil {
		return nil, err
	}
	slog.Info("uploads enabled", slog.String("bucket", cfg.S3Bucket))
	return storage.NewUploadService(s3Storage, log, cfg.UploadURLTTL), nil
}

// buildRouter は設定から全依存関係を組み立て、HTTPハンドラーを返す。
// 戻り値のcleanupはストアやRedis接続、レートリミッターを解放する。
func buildRouter(ctx context.Context, cfg *config.Config, log *slog.Logger) (http.Handler, func(), error) {
	// 1. ストア
	st, err := openStores(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	// 2. 署名依頼の排他ロック
	locker, closeLocker, err := newLocker(ctx, cfg, log)
	if err != nil {
		st.close()
		return nil, nil, err
	}

	// 3. アップロード（任意）
	uploadService, err := newUploadService(ctx, cfg, log)
	if err != nil {
		closeLocker()
		st.close()
		return nil, nil, err
	}

	// 4. メトリクス
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(reg)

	// 5. 署名連携
	builder := signing.NewBuilder(signing.BuilderConfig{
		APIKey:      cfg.OkiDokiAPIKey,
		Source:      cfg.OkiDokiSource,
		CallbackURL: cfg.CallbackURL(),
	}, security.NewTermsSanitizer())
	client := signing.NewClient(&http.Client{Timeout: cfg.ProviderTimeout}, log, cfg.OkiDokiBaseURL)
	sender := signing.NewSender(builder, client, log, collector)
	processor := signing.NewCallbackProcessor(st.documents, log, collector)

	// 6. ドメインサービス
	fileGuard := security.NewFileGuard(log, cfg.FileFetchTimeout, cfg.FileFetchMaxSize)
	projectService := project.NewService(st.projects, log)
	documentService := document.NewService(st.projects, st.documents, sender, locker, fileGuard, log, cfg.BaseURL)

	// 7. ルーター
	rateLimiter := middleware.NewRateLimiter(
		middleware.RateLimiterConfigPerMinute(cfg.RateLimitGeneral, cfg.RateLimitCallback),
	)

	router := handler.NewRouter(&handler.RouterDeps{
		Logger:            log,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		StatusCounter:     collector,
		HealthCheck:       st.healthCheck,
		MetricsHandler:    metrics.Handler(reg),
		ProjectService:    projectService,
		DocumentService:   documentService,
		UploadService:     uploadService,
		SigningSender:     sender,
		CallbackProcessor: processor,
	})

	slog.Info("signing provider configured",
		slog.String("base_url", signing.NormalizeBaseURL(cfg.OkiDokiBaseURL)),
		slog.String("callback_url", cfg.CallbackURL()),
	)

	cleanup := func() {
		rateLimiter.Stop()
		closeLocker()
		st.close()
	}
	return router, cleanup, nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	if cfg.StoreDriver != config.StoreDriverPostgres {
		return fmt.Errorf("migrate requires STORE_DRIVER=%s, got %q", config.StoreDriverPostgres, cfg.StoreDriver)
	}

	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	version, err := database.SchemaVersion(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration check failed: %w", err)
	}
	slog.Info("database migrations completed successfully",
		slog.Uint64("schema_version", uint64(version)),
	)
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLのパスワードをマスクする。
// URLとして解析できない場合は全体を伏せる。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	return u.Redacted()
}
