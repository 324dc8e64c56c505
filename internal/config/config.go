// Package config はtravelgateクライアントの設定を読み込む。
//
// 優先順位は 環境変数（TRAVELGATE_ 接頭辞）> 設定ファイル（travelgate.yaml）> デフォルト値。
// カレントディレクトリの .env は起動時に環境変数として読み込む。
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// セッションの保存先。
const (
	SessionMemory = "memory"
	SessionFile   = "file"
	SessionRedis  = "redis"
)

// 出力形式。
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// Config はクライアント全体の設定。
type Config struct {
	API      APIConfig      `mapstructure:"api"`
	Identity IdentityConfig `mapstructure:"identity"`
	Session  SessionConfig  `mapstructure:"session"`
	Output   OutputConfig   `mapstructure:"output"`
}

// APIConfig はバックエンドAPIの接続設定。
type APIConfig struct {
	// BaseURL はバックエンドのベースURL。リソースは <BaseURL>/api/ 以下に置かれる。
	BaseURL string `mapstructure:"base_url"`
	// Timeout は1回のHTTP交換のタイムアウト。
	Timeout time.Duration `mapstructure:"timeout"`
	// RateLimit はクライアント側のレート制限。
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

// RateLimitConfig はレート制限の設定。RPSが0以下の場合は制限しない。
type RateLimitConfig struct {
	RPS   float64 `mapstructure:"rps"`
	Burst int     `mapstructure:"burst"`
}

// IdentityConfig はIDサービスの接続設定。
type IdentityConfig struct {
	// URL はIDサービスのベースURL。空の場合は api.base_url を使う。
	URL string `mapstructure:"url"`
	// AnonKey は apikey ヘッダーに付与する公開キー。
	AnonKey string `mapstructure:"anon_key"`
	// RedirectURL はユーザー作成時の確認メールのリダイレクト先。
	RedirectURL string `mapstructure:"redirect_url"`
}

// SessionConfig はクレデンシャルの保存先の設定。
type SessionConfig struct {
	// Backend は memory / file / redis のいずれか。
	Backend string `mapstructure:"backend"`
	// Path は file の保存先。
	Path string `mapstructure:"path"`
	// RedisURL は redis の接続URL。
	RedisURL string `mapstructure:"redis_url"`
	// Key は redis 上のセッション名。
	Key string `mapstructure:"key"`
	// TTL は redis 上のセッションの有効期間。0の場合は無期限。
	TTL time.Duration `mapstructure:"ttl"`
}

// OutputConfig はCLIの出力設定。
type OutputConfig struct {
	// Format は json / yaml のいずれか。
	Format string `mapstructure:"format"`
}

// Load は設定を読み込む。pathが空の場合はカレントディレクトリと
// $HOME/.config/travelgate から travelgate.yaml を探し、見つからなければデフォルト値を使う。
func Load(path string) (Config, error) {
	// .env がなければ何もしない
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf(".envの読み込みに失敗: %w", err)
	}

	v := viper.New()

	v.SetDefault("api.base_url", "http://localhost:1337")
	v.SetDefault("api.timeout", 30*time.Second)
	v.SetDefault("api.rate_limit.rps", 0)
	v.SetDefault("api.rate_limit.burst", 1)
	v.SetDefault("identity.url", "")
	v.SetDefault("identity.anon_key", "")
	v.SetDefault("identity.redirect_url", "http://localhost:5000/")
	v.SetDefault("session.backend", SessionFile)
	v.SetDefault("session.path", defaultSessionPath())
	v.SetDefault("session.redis_url", "redis://localhost:6379/0")
	v.SetDefault("session.key", "default")
	v.SetDefault("session.ttl", time.Duration(0))
	v.SetDefault("output.format", FormatJSON)

	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath(filepath.Join(os.Getenv("HOME"), ".config", "travelgate"))
		v.SetConfigName("travelgate")
	}

	v.SetEnvPrefix("TRAVELGATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("設定ファイルの読み込みに失敗: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("設定の変換に失敗: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate は設定値の整合性を検証する。
func (c Config) Validate() error {
	if c.API.BaseURL == "" {
		return errors.New("api.base_url が設定されていません")
	}
	switch c.Session.Backend {
	case SessionMemory, SessionFile, SessionRedis:
	default:
		return fmt.Errorf("session.backend が不正です: %q", c.Session.Backend)
	}
	if c.Session.Backend == SessionFile && c.Session.Path == "" {
		return errors.New("session.path が設定されていません")
	}
	switch c.Output.Format {
	case FormatJSON, FormatYAML:
	default:
		return fmt.Errorf("output.format が不正です: %q", c.Output.Format)
	}
	return nil
}

// IdentityURL はIDサービスのベースURLを返す。
func (c Config) IdentityURL() string {
	if c.Identity.URL != "" {
		return c.Identity.URL
	}
	return c.API.BaseURL
}

// defaultSessionPath はセッションファイルのデフォルトの保存先を返す。
func defaultSessionPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = filepath.Join(os.Getenv("HOME"), ".config")
	}
	return filepath.Join(dir, "travelgate", "session")
}
