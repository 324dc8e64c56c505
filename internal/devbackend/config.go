package devbackend

import (
	"os"

	"golang.org/x/crypto/bcrypt"
)

// Config は開発用バックエンドの設定。
type Config struct {
	// Port はリッスンポート。
	Port string
	// JWTSecret はアクセストークンの署名鍵。
	JWTSecret string
	// DatabasePath はSQLiteデータベースのパス。":memory:" でインメモリになる。
	DatabasePath string
	// UploadDir はアップロードファイルの保存先。
	UploadDir string
	// FrontendURL はCORSで許可するオリジン。
	FrontendURL string
	// AnonKey はIDサービスが要求する apikey ヘッダーの値。空の場合は検証しない。
	AnonKey string
	// BcryptCost はパスワードハッシュのコスト。
	BcryptCost int
	// PageSize は顧客一覧の1ページあたりの件数。
	PageSize int
	// MaxFileSize はアップロード可能な1ファイルの最大サイズ。0以下の場合は defaultMaxFileSize を使う。
	MaxFileSize int64
}

// ConfigFromEnv は環境変数から設定を読み込む。
func ConfigFromEnv() Config {
	return Config{
		Port:         getEnvOr("PORT", "1337"),
		JWTSecret:    getEnvOr("JWT_SECRET", "dev-secret-key"),
		DatabasePath: getEnvOr("DATABASE_PATH", "devbackend.db"),
		UploadDir:    getEnvOr("UPLOAD_DIR", "uploads"),
		FrontendURL:  getEnvOr("FRONTEND_URL", "http://localhost:5000"),
		AnonKey:      os.Getenv("ANON_KEY"),
		BcryptCost:   bcrypt.DefaultCost,
		PageSize:     10,
		MaxFileSize:  defaultMaxFileSize,
	}
}

// getEnvOr は環境変数を取得し、設定されていない場合はデフォルト値を返す。
func getEnvOr(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
