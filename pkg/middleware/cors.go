package middleware

import (
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// defaultAllowedHeaders はフロントエンドがバックエンドとIDサービスに送るヘッダー。
var defaultAllowedHeaders = []string{"Authorization", "Content-Type", "apikey"}

// allowedMethods は申請の作成とプロフィール更新で使うメソッド。
const allowedMethods = "GET, POST, PUT, DELETE, OPTIONS"

// CORSConfig はCORSミドルウェアの設定。
type CORSConfig struct {
	// AllowedOrigins は許可するオリジン。"*" を含む場合はすべて許可する。
	AllowedOrigins []string
	// AllowedHeaders はプリフライトで許可するヘッダー。空の場合は defaultAllowedHeaders を使う。
	AllowedHeaders []string
	// MaxAge はプリフライト結果のキャッシュ期間。0の場合は24時間。
	MaxAge time.Duration
}

// CORS はブラウザのフロントエンドからのクロスオリジンリクエストを許可するGinミドルウェアを返す。
// プリフライト（Access-Control-Request-Method 付きのOPTIONS）はハンドラに渡さずに応答し、
// 許可されていないオリジンからのプリフライトは403で拒否する。
func CORS(cfg CORSConfig) gin.HandlerFunc {
	anyOrigin := slices.Contains(cfg.AllowedOrigins, "*")
	origins := make(map[string]struct{}, len(cfg.AllowedOrigins))
	for _, o := range cfg.AllowedOrigins {
		origins[strings.TrimRight(o, "/")] = struct{}{}
	}

	headers := cfg.AllowedHeaders
	if len(headers) == 0 {
		headers = defaultAllowedHeaders
	}
	allowHeaders := strings.Join(headers, ", ")

	maxAge := cfg.MaxAge
	if maxAge <= 0 {
		maxAge = 24 * time.Hour
	}
	maxAgeSeconds := strconv.Itoa(int(maxAge.Seconds()))

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin == "" {
			c.Next()
			return
		}

		// 応答がオリジンごとに変わるため、キャッシュにOriginを区別させる
		c.Writer.Header().Add("Vary", "Origin")

		_, ok := origins[origin]
		allowed := anyOrigin || ok
		preflight := c.Request.Method == http.MethodOptions && c.GetHeader("Access-Control-Request-Method") != ""

		if !allowed {
			if preflight {
				AbortWithError(c, http.StatusForbidden, "許可されていないオリジンです")
				return
			}
			c.Next()
			return
		}

		c.Header("Access-Control-Allow-Origin", origin)
		if preflight {
			c.Header("Access-Control-Allow-Methods", allowedMethods)
			c.Header("Access-Control-Allow-Headers", allowHeaders)
			c.Header("Access-Control-Max-Age", maxAgeSeconds)
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
