package devbackend

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/nao1215/travelgate/pkg/middleware"
	"golang.org/x/crypto/bcrypt"
)

// accessTokenTTL はアクセストークンの有効期間。
const accessTokenTTL = 24 * time.Hour

// minPasswordLength はパスワードの最小文字数。
const minPasswordLength = 6

// errUserNotFound はユーザーが存在しないことを表す。
var errUserNotFound = errors.New("ユーザーが見つかりません")

// user はユーザーのレスポンス表現。
type user struct {
	ID           string         `json:"id"`
	Email        string         `json:"email"`
	UserMetadata map[string]any `json:"user_metadata"`
	CreatedAt    string         `json:"created_at"`
}

// credentialsRequest はメールアドレスとパスワードのリクエストボディ。
type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// handleSignUp はユーザーを作成するハンドラを返す。
func (s *Server) handleSignUp() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			credentialsRequest
			Data map[string]any `json:"data"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			middleware.AbortWithError(c, http.StatusBadRequest, "リクエストボディが不正です")
			return
		}
		req.Email = strings.TrimSpace(strings.ToLower(req.Email))
		if req.Email == "" {
			middleware.AbortWithError(c, http.StatusBadRequest, "email is required")
			return
		}
		if len(req.Password) < minPasswordLength {
			middleware.AbortWithError(c, http.StatusUnprocessableEntity,
				fmt.Sprintf("Password should be at least %d characters", minPasswordLength))
			return
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cfg.BcryptCost)
		if err != nil {
			log.Printf("[DevBackend] パスワードのハッシュ化に失敗: %v", err)
			middleware.AbortWithError(c, http.StatusInternalServerError, "ユーザー作成に失敗しました")
			return
		}
		if req.Data == nil {
			req.Data = map[string]any{}
		}
		metadata, err := json.Marshal(req.Data)
		if err != nil {
			middleware.AbortWithError(c, http.StatusBadRequest, "data が不正です")
			return
		}

		id := uuid.New().String()
		_, err = s.db.ExecContext(c.Request.Context(),
			`INSERT INTO users (id, email, password_hash, user_metadata) VALUES (?, ?, ?, ?)`,
			id, req.Email, string(hash), string(metadata))
		if err != nil {
			if strings.Contains(err.Error(), "UNIQUE") {
				middleware.AbortWithError(c, http.StatusUnprocessableEntity, "User already registered")
				return
			}
			log.Printf("[DevBackend] ユーザー作成エラー: %v", err)
			middleware.AbortWithError(c, http.StatusInternalServerError, "ユーザー作成に失敗しました")
			return
		}

		u, err := s.findUser(c.Request.Context(), id)
		if err != nil {
			middleware.AbortWithError(c, http.StatusInternalServerError, "ユーザー取得に失敗しました")
			return
		}
		log.Printf("[DevBackend] ユーザーを作成しました: user_id=%s, redirect_to=%s", id, c.Query("redirect_to"))
		c.JSON(http.StatusOK, u)
	}
}

// handleToken はパスワードでセッションを発行するハンドラを返す。
func (s *Server) handleToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Query("grant_type") != "password" {
			middleware.AbortWithError(c, http.StatusBadRequest, "unsupported grant_type")
			return
		}
		var req credentialsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			middleware.AbortWithError(c, http.StatusBadRequest, "リクエストボディが不正です")
			return
		}

		u, err := s.authenticate(c.Request.Context(), req.Email, req.Password)
		if err != nil {
			middleware.AbortWithError(c, http.StatusBadRequest, "Invalid login credentials")
			return
		}
		s.respondSession(c, u)
	}
}

// handleLogin はコンテンツAPIのログインハンドラを返す。
func (s *Server) handleLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req credentialsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			middleware.AbortWithError(c, http.StatusBadRequest, "リクエストボディが不正です")
			return
		}

		u, err := s.authenticate(c.Request.Context(), req.Email, req.Password)
		if err != nil {
			middleware.AbortWithError(c, http.StatusUnauthorized, "Invalid identifier or password")
			return
		}
		s.respondSession(c, u)
	}
}

// handleUpdateUser は認証済みユーザーのパスワードを変更するハンドラを返す。
func (s *Server) handleUpdateUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Password string `json:"password"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			middleware.AbortWithError(c, http.StatusBadRequest, "リクエストボディが不正です")
			return
		}
		if len(req.Password) < minPasswordLength {
			middleware.AbortWithError(c, http.StatusUnprocessableEntity,
				fmt.Sprintf("Password should be at least %d characters", minPasswordLength))
			return
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cfg.BcryptCost)
		if err != nil {
			middleware.AbortWithError(c, http.StatusInternalServerError, "パスワードの更新に失敗しました")
			return
		}
		userID := middleware.GetUserID(c)
		res, err := s.db.ExecContext(c.Request.Context(),
			`UPDATE users SET password_hash = ? WHERE id = ?`, string(hash), userID)
		if err != nil {
			middleware.AbortWithError(c, http.StatusInternalServerError, "パスワードの更新に失敗しました")
			return
		}
		if n, _ := res.RowsAffected(); n == 0 {
			middleware.AbortWithError(c, http.StatusNotFound, "User not found")
			return
		}

		u, err := s.findUser(c.Request.Context(), userID)
		if err != nil {
			middleware.AbortWithError(c, http.StatusInternalServerError, "ユーザー取得に失敗しました")
			return
		}
		c.JSON(http.StatusOK, u)
	}
}

// handleAdminUpdateUser は指定ユーザーのプロフィール情報を更新するハンドラを返す。
// 既存のキーは上書きし、指定されなかったキーは残す。
func (s *Server) handleAdminUpdateUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			UserMetadata map[string]any `json:"user_metadata"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			middleware.AbortWithError(c, http.StatusBadRequest, "リクエストボディが不正です")
			return
		}

		ctx := c.Request.Context()
		u, err := s.findUser(ctx, c.Param("id"))
		if errors.Is(err, errUserNotFound) {
			middleware.AbortWithError(c, http.StatusNotFound, "User not found")
			return
		} else if err != nil {
			middleware.AbortWithError(c, http.StatusInternalServerError, "ユーザー取得に失敗しました")
			return
		}

		for k, v := range req.UserMetadata {
			u.UserMetadata[k] = v
		}
		metadata, err := json.Marshal(u.UserMetadata)
		if err != nil {
			middleware.AbortWithError(c, http.StatusBadRequest, "user_metadata が不正です")
			return
		}
		if _, err := s.db.ExecContext(ctx, `UPDATE users SET user_metadata = ? WHERE id = ?`, string(metadata), u.ID); err != nil {
			middleware.AbortWithError(c, http.StatusInternalServerError, "ユーザーの更新に失敗しました")
			return
		}
		c.JSON(http.StatusOK, u)
	}
}

// authenticate はメールアドレスとパスワードを検証し、最終ログイン日時を更新する。
func (s *Server) authenticate(ctx context.Context, email, password string) (*user, error) {
	email = strings.TrimSpace(strings.ToLower(email))

	var id, hash string
	err := s.db.QueryRowContext(ctx, `SELECT id, password_hash FROM users WHERE email = ?`, email).Scan(&id, &hash)
	if err != nil {
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return nil, err
	}
	if _, err := s.db.ExecContext(ctx, `UPDATE users SET last_login_at = datetime('now') WHERE id = ?`, id); err != nil {
		log.Printf("[DevBackend] 最終ログイン日時の更新に失敗: user_id=%s, error=%v", id, err)
	}
	return s.findUser(ctx, id)
}

// respondSession はアクセストークンを発行してセッションを返す。
func (s *Server) respondSession(c *gin.Context, u *user) {
	token, err := middleware.GenerateJWT(s.cfg.JWTSecret, u.ID, u.Email, accessTokenTTL)
	if err != nil {
		log.Printf("[DevBackend] JWT生成エラー: %v", err)
		middleware.AbortWithError(c, http.StatusInternalServerError, "トークン生成に失敗しました")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"access_token": token,
		"token_type":   "bearer",
		"expires_in":   int(accessTokenTTL.Seconds()),
		// リフレッシュトークンは発行するだけで受け付けない
		"refresh_token": uuid.New().String(),
		"user":          u,
	})
}

// findUser はIDでユーザーを検索する。
func (s *Server) findUser(ctx context.Context, id string) (*user, error) {
	var (
		u        user
		metadata string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, email, user_metadata, created_at FROM users WHERE id = ?`, id,
	).Scan(&u.ID, &u.Email, &metadata, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗: %w", err)
	}
	if err := json.Unmarshal([]byte(metadata), &u.UserMetadata); err != nil {
		return nil, fmt.Errorf("user_metadataの変換に失敗: %w", err)
	}
	if u.UserMetadata == nil {
		u.UserMetadata = map[string]any{}
	}
	return &u, nil
}
