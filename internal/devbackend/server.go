package devbackend

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/travelgate/pkg/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	// maxMultipartMemory はマルチパートの解析でメモリに保持する上限。超えた分は一時ファイルになる。
	maxMultipartMemory = 32 << 20
	// defaultMaxFileSize はアップロード可能な1ファイルの最大サイズ（10MB）。
	defaultMaxFileSize = 10 << 20
)

// Server は開発用バックエンドのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// cfg はサーバーの設定。
	cfg Config
	// db はSQLiteデータベース接続。
	db *sql.DB
	// registry は /metrics で公開するメトリクスのレジストリ。
	registry *prometheus.Registry
	// metrics はHTTPリクエストのメトリクス。
	metrics *httpMetrics
}

// NewServer は新しい開発用バックエンドを生成する。
func NewServer(cfg Config) (*Server, error) {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 10
	}
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = defaultMaxFileSize
	}

	db, err := openDB(context.Background(), cfg.DatabasePath)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(cfg.UploadDir, 0o755); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("アップロードディレクトリの作成に失敗: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewGoCollector())

	s := &Server{
		router:   gin.New(),
		cfg:      cfg,
		db:       db,
		registry: registry,
		metrics:  newHTTPMetrics(registry),
	}
	s.router.MaxMultipartMemory = maxMultipartMemory
	s.router.Use(middleware.Recovery())
	s.router.Use(gin.Logger())
	s.router.Use(middleware.CORS(middleware.CORSConfig{AllowedOrigins: []string{cfg.FrontendURL}}))
	s.router.Use(s.metrics.middleware())
	s.setupRoutes()

	return s, nil
}

// Handler はHTTPハンドラを返す。テストでは httptest.NewServer に渡して使う。
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run はHTTPサーバーを起動する。
func (s *Server) Run() error {
	log.Printf("[DevBackend] 起動します: :%s", s.cfg.Port)
	return s.router.Run(fmt.Sprintf(":%s", s.cfg.Port))
}

// Close はデータベース接続を閉じる。
func (s *Server) Close() error {
	return s.db.Close()
}

// setupRoutes はAPIルーティングを設定する。
func (s *Server) setupRoutes() {
	jwtAuth := middleware.JWTAuth(s.cfg.JWTSecret)

	// IDサービス
	identity := s.router.Group("/auth/v1")
	identity.Use(s.requireAPIKey())
	{
		identity.POST("/signup", s.handleSignUp())
		identity.POST("/token", s.handleToken())
		identity.PUT("/user", jwtAuth, s.handleUpdateUser())
		identity.PUT("/admin/users/:id", jwtAuth, s.handleAdminUpdateUser())
	}

	// コンテンツAPI
	api := s.router.Group("/api")
	{
		api.POST("/auth/login", s.handleLogin())
		api.POST("/upload", jwtAuth, s.handleUpload())
		api.GET("/clients", jwtAuth, s.handleListClients())
		api.GET("/admin/dashboard", jwtAuth, s.handleDashboard())
		api.POST("/:collection", jwtAuth, s.handleCreateApplication())
		api.GET("/:collection", s.handleListCollection())
	}

	// アップロード済みファイルの取得（認証不要 - img要素から直接参照されるため）
	s.router.Static("/uploads", s.cfg.UploadDir)

	s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "devbackend"})
	})
}

// requireAPIKey はIDサービスの apikey ヘッダーを検証するミドルウェアを返す。
func (s *Server) requireAPIKey() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.cfg.AnonKey != "" && c.GetHeader("apikey") != s.cfg.AnonKey {
			middleware.AbortWithError(c, http.StatusUnauthorized, "Invalid API key")
			return
		}
		c.Next()
	}
}
