package middleware

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// issuer はアクセストークンの発行者。
const issuer = "travelgate-devbackend"

// JWTClaims はアクセストークンのクレーム（ペイロード）を表す。
type JWTClaims struct {
	jwt.RegisteredClaims
	// UserID は認証済みユーザーの一意識別子。
	UserID string `json:"user_id"`
	// Email はユーザーのメールアドレス。
	Email string `json:"email"`
}

// コンテキストキー。
const (
	contextKeyUserID = "user_id"
	contextKeyEmail  = "email"
)

// GenerateJWT はユーザー情報からHS256で署名したアクセストークンを生成する。
// ttlが0以下の場合は24時間とする。
func GenerateJWT(secret, userID, email string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	now := time.Now()
	claims := JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuer,
		},
		UserID: userID,
		Email:  email,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("JWTトークンの署名に失敗: %w", err)
	}
	return signed, nil
}

// ParseJWT はアクセストークンを検証してクレームを返す。
func ParseJWT(secret, tokenString string) (*JWTClaims, error) {
	claims := &JWTClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(_ *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(issuer))
	if err != nil {
		return nil, fmt.Errorf("トークンの検証に失敗: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("トークンが無効です")
	}
	return claims, nil
}

// JWTAuth はアクセストークンを検証するGinミドルウェアを返す。
// 検証に成功した場合、コンテキストにユーザーIDとメールアドレスを設定する。
func JWTAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			AbortWithError(c, http.StatusUnauthorized, "Authorizationヘッダーが必要です")
			return
		}

		tokenString, found := strings.CutPrefix(authHeader, "Bearer ")
		if !found {
			AbortWithError(c, http.StatusUnauthorized, "Bearer トークン形式が不正です")
			return
		}

		claims, err := ParseJWT(secret, tokenString)
		if err != nil {
			AbortWithError(c, http.StatusUnauthorized, "トークンが無効です")
			return
		}

		c.Set(contextKeyUserID, claims.UserID)
		c.Set(contextKeyEmail, claims.Email)
		c.Next()
	}
}

// GetUserID はGinコンテキストからユーザーIDを取得する。
// JWTAuthミドルウェアが事前に適用されている必要がある。
func GetUserID(c *gin.Context) string {
	return c.GetString(contextKeyUserID)
}

// GetEmail はGinコンテキストからメールアドレスを取得する。
func GetEmail(c *gin.Context) string {
	return c.GetString(contextKeyEmail)
}
