// Package app はアプリケーションの初期化・依存関係のワイヤリング・起動を行う。
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/tokenman/internal/auth"
	"github.com/hitoshi/tokenman/internal/browser"
	"github.com/hitoshi/tokenman/internal/config"
	"github.com/hitoshi/tokenman/internal/database"
	"github.com/hitoshi/tokenman/internal/handler"
	"github.com/hitoshi/tokenman/internal/logger"
	"github.com/hitoshi/tokenman/internal/metrics"
	"github.com/hitoshi/tokenman/internal/middleware"
	"github.com/hitoshi/tokenman/internal/repository"
	"github.com/hitoshi/tokenman/internal/security"
	"github.com/hitoshi/tokenman/internal/syncer"
	synctask "github.com/hitoshi/tokenman/internal/worker/sync"
)

// Init はアプリケーションの初期化を行う。
// .envファイル（存在する場合）と環境変数からConfigを読み込み、
// JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// .envはローカル開発用。存在しない場合は環境変数のみを使用する。
	_ = godotenv.Load()

	// ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

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
	)

	switch cmd {
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// runServe はAPIサーバーモードで起動する。
// DB接続・ブラウザエンジン・同期スケジューラを含む全依存関係をワイヤリングし、
// HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	// 2. リポジトリの初期化
	profileRepo := repository.NewPostgresProfileRepo(db)

	// 3. 実行時設定（同期先URL・接続トークン・更新間隔）の読み込み
	settings, err := config.LoadSettings(cfg.SettingsFile)
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}

	// 4. ブラウザエンジンとManagerの初期化
	engine := browser.NewPlaywrightEngine()
	manager := browser.NewManager(engine, profileRepo, slog.Default(), browser.ManagerConfig{
		ProfilesDir:       cfg.ProfilesDir,
		Headless:          cfg.Headless,
		LoginURL:          cfg.LoginURL,
		TargetURL:         cfg.TargetURL,
		TargetOrigin:      cfg.TargetOrigin,
		SessionCookieName: cfg.SessionCookieName,
		NavigationTimeout: cfg.NavigationTimeout,
		SettleDelay:       cfg.SettleDelay,
	})
	if err := manager.Start(); err != nil {
		return fmt.Errorf("failed to start browser engine: %w", err)
	}
	defer func() {
		if err := manager.Stop(); err != nil {
			slog.Error("browser engine stop failed", slog.String("error", err.Error()))
		}
	}()

	// 5. メトリクスと同期サービスの初期化
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	pusher := syncer.NewHTTPPusher(cfg.PushTimeout, slog.Default())
	syncService := syncer.NewSyncer(manager, profileRepo, pusher, settings, slog.Default(), collector)

	// 6. 認証・セキュリティサービスの初期化
	authService := auth.NewService(auth.ServiceConfig{
		AdminPassword: cfg.AdminPassword,
		SessionTTL:    cfg.SessionTTL,
	})
	sanitizer := security.NewInputSanitizer()

	rateLimiter := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig())
	defer rateLimiter.Stop()

	// 7. ルーターの構築
	router := handler.NewRouter(&handler.RouterDeps{
		SessionVerifier:   authService,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		Logger:            slog.Default(),

		AuthService: authService,
		Store:       profileRepo,
		ExtStore:    profileRepo,
		Manager:     manager,
		SyncService: syncService,
		Sanitizer:   sanitizer,
		Settings:    settings,

		APIKey:   cfg.APIKey,
		Gatherer: registry,
	})

	// 8. 同期スケジューラをバックグラウンドで起動
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	scheduler := synctask.NewScheduler(syncService, profileRepo, settings, slog.Default())
	go scheduler.Start(ctx)

	// 9. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down API server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// Dockerヘルスチェック用サブコマンド。
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

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
