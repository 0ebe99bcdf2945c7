package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/tokenman/internal/config"
	"github.com/hitoshi/tokenman/internal/metrics"
	"github.com/hitoshi/tokenman/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	SessionVerifier   middleware.SessionVerifier
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	Logger            *slog.Logger

	// サービス
	AuthService AuthServiceInterface
	Store       ProfileStoreInterface
	ExtStore    ExternalProfileStore
	Manager     BrowserService
	SyncService SyncServiceInterface
	Sanitizer   InputSanitizer
	Settings    *config.Settings

	// 外部API
	APIKey string

	// メトリクス
	Gatherer prometheus.Gatherer
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → SecurityHeaders → CORS → (Session → RateLimit | APIKey)
//
// ログイン・ヘルスチェック・メトリクスは認証の外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	authHandler := NewAuthHandler(deps.AuthService)
	profileHandler := NewProfileHandler(deps.Store, deps.Manager, deps.Sanitizer)
	browserHandler := NewBrowserHandler(deps.Store, deps.Manager)
	syncHandler := NewSyncHandler(deps.SyncService, deps.Store)
	configHandler := NewConfigHandler(deps.Settings)
	statusHandler := NewStatusHandler(deps.Manager, deps.SyncService, deps.Store)
	externalHandler := NewExternalHandler(deps.ExtStore, deps.Manager, deps.SyncService)

	// --- 認証不要のルート ---

	r.Get("/health", Health)
	r.Handle("/metrics", metrics.Handler(deps.Gatherer))
	r.Post("/api/login", authHandler.Login)
	r.Get("/api/auth/check", authHandler.Check)

	// --- 管理者セッションが必要なルート ---
	// ミドルウェアスタック: Session → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.SessionVerifier))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Post("/api/logout", authHandler.Logout)
		r.Get("/api/status", statusHandler.GetStatus)

		r.Route("/api/config", func(r chi.Router) {
			r.Get("/", configHandler.GetConfig)
			r.Post("/", configHandler.UpdateConfig)
		})

		// バッチ同期（ブラウザ操作専用レート制限を追加）
		r.With(deps.RateLimiter.BrowserOpsMiddleware()).Post("/api/sync-all", syncHandler.SyncAll)

		r.Route("/api/profiles", func(r chi.Router) {
			r.Get("/", profileHandler.ListProfiles)
			r.Post("/", profileHandler.CreateProfile)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", profileHandler.GetProfile)
				r.Put("/", profileHandler.UpdateProfile)
				r.Delete("/", profileHandler.DeleteProfile)

				r.Post("/enable", profileHandler.EnableProfile)
				r.Post("/disable", profileHandler.DisableProfile)
				r.Get("/isolation", profileHandler.CheckIsolation)

				// ブラウザ操作（専用レート制限を追加）
				r.Group(func(r chi.Router) {
					r.Use(deps.RateLimiter.BrowserOpsMiddleware())
					r.Post("/launch", browserHandler.Launch)
					r.Post("/close", browserHandler.Close)
					r.Post("/check-login", browserHandler.CheckLogin)
					r.Post("/extract", browserHandler.Extract)
					r.Post("/sync", syncHandler.SyncProfile)
				})
			})
		})
	})

	// --- 外部システム向けAPI（X-API-Key） ---
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewAPIKeyMiddleware(deps.APIKey))

		r.Route("/v1/profiles", func(r chi.Router) {
			r.Get("/", externalHandler.ListProfiles)
			r.Get("/by-name/{name}/token", externalHandler.GetTokenByName)
			r.Get("/by-email/{email}/token", externalHandler.GetTokenByEmail)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/token", externalHandler.GetToken)
				r.Post("/sync", externalHandler.SyncProfile)
			})
		})
	})

	return r
}
