package auth

import (
	"context"
	"net/url"

	"github.com/nao1215/travelgate/pkg/httpclient"
)

// identityRoot はIDサービスのリソースパスの起点。
const identityRoot = "/auth/v1/"

// User はIDサービス上のユーザー。
type User struct {
	// ID はユーザーID。
	ID string `json:"id"`
	// Email はメールアドレス。
	Email string `json:"email"`
	// UserMetadata はプロフィール情報。
	UserMetadata map[string]any `json:"user_metadata,omitempty"`
}

// AuthSession は認証に成功した結果。
type AuthSession struct {
	// AccessToken は以降のリクエストに付与するBearerクレデンシャル。
	AccessToken string `json:"access_token"`
	// RefreshToken はリフレッシュトークン。更新処理は行わない。
	RefreshToken string `json:"refresh_token,omitempty"`
	// User は認証したユーザー。
	User *User `json:"user,omitempty"`
}

// SignUpRequest はユーザー作成のリクエスト。
type SignUpRequest struct {
	// Email はメールアドレス。
	Email string
	// Password はパスワード。
	Password string
	// RedirectTo は確認メールのリダイレクト先。
	RedirectTo string
	// Metadata はユーザーに保存するプロフィール情報。
	Metadata map[string]any
}

// Identity はユーザーの作成と認証を行うIDサービス。
type Identity interface {
	// SignUp はユーザーを作成する。
	SignUp(ctx context.Context, req SignUpRequest) (*User, error)
	// SignInWithPassword はメールアドレスとパスワードで認証する。
	SignInWithPassword(ctx context.Context, email, password string) (*AuthSession, error)
	// UpdatePassword は現在のユーザーのパスワードを変更する。
	UpdatePassword(ctx context.Context, password string) (*User, error)
	// UpdateUserMetadata は指定ユーザーのプロフィール情報を更新する。
	UpdateUserMetadata(ctx context.Context, userID string, metadata map[string]any) (*User, error)
}

// IdentityClient はHTTP経由でIDサービスを呼び出すIdentityの実装。
type IdentityClient struct {
	client *httpclient.Client
}

// NewIdentityClient は新しいIdentityClientを生成する。
// anonKeyはすべてのリクエストに apikey ヘッダーとして付与する。
func NewIdentityClient(baseURL, anonKey string, opts ...httpclient.Option) *IdentityClient {
	opts = append([]httpclient.Option{
		httpclient.WithRoot(identityRoot),
		httpclient.WithHeader("apikey", anonKey),
	}, opts...)
	return &IdentityClient{client: httpclient.New(baseURL, opts...)}
}

// SignUp はユーザーを作成する。
func (c *IdentityClient) SignUp(ctx context.Context, req SignUpRequest) (*User, error) {
	path := "signup"
	if req.RedirectTo != "" {
		path += "?redirect_to=" + url.QueryEscape(req.RedirectTo)
	}

	body := map[string]any{
		"email":    req.Email,
		"password": req.Password,
		"data":     req.Metadata,
	}
	var user User
	if err := c.client.PostJSON(ctx, path, body, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// SignInWithPassword はパスワードで認証してセッションを取得する。
func (c *IdentityClient) SignInWithPassword(ctx context.Context, email, password string) (*AuthSession, error) {
	body := map[string]string{
		"email":    email,
		"password": password,
	}
	var s AuthSession
	if err := c.client.PostJSON(ctx, "token?grant_type=password", body, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// UpdatePassword は現在のユーザーのパスワードを変更する。
func (c *IdentityClient) UpdatePassword(ctx context.Context, password string) (*User, error) {
	var user User
	if err := c.client.PutJSON(ctx, "user", map[string]string{"password": password}, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// UpdateUserMetadata は管理者APIで指定ユーザーのプロフィール情報を更新する。
func (c *IdentityClient) UpdateUserMetadata(ctx context.Context, userID string, metadata map[string]any) (*User, error) {
	var user User
	path := "admin/users/" + url.PathEscape(userID)
	if err := c.client.PutJSON(ctx, path, map[string]any{"user_metadata": metadata}, &user); err != nil {
		return nil, err
	}
	return &user, nil
}
