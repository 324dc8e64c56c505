package auth

import (
	"context"
	"errors"
	"fmt"
	"log"
)

// DefaultRedirectURL はユーザー作成時の確認メールのリダイレクト先。
const DefaultRedirectURL = "http://localhost:5000/"

// ErrMissingToken は認証のレスポンスにアクセストークンが含まれていないことを表す。
var ErrMissingToken = errors.New("レスポンスにアクセストークンが含まれていません")

// Poster はログインAPIの呼び出しに使うHTTP操作。
type Poster interface {
	PostJSON(ctx context.Context, path string, body any, result any) error
}

// SessionWriter はクレデンシャルの保存先。session.Store がこれを満たす。
type SessionWriter interface {
	Set(ctx context.Context, token string) error
	Clear(ctx context.Context) error
}

// RegisterRequest はユーザー登録の入力項目。
type RegisterRequest struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	Phone     string
}

// Workflow は認証操作を行い、結果をセッションに書き込む。
type Workflow struct {
	identity    Identity
	api         Poster
	session     SessionWriter
	redirectURL string
}

// NewWorkflow は新しいWorkflowを生成する。
// redirectURLが空の場合は DefaultRedirectURL を使う。
func NewWorkflow(identity Identity, api Poster, session SessionWriter, redirectURL string) *Workflow {
	if redirectURL == "" {
		redirectURL = DefaultRedirectURL
	}
	return &Workflow{
		identity:    identity,
		api:         api,
		session:     session,
		redirectURL: redirectURL,
	}
}

// Register はユーザーを作成し、続けて同じ認証情報でサインインする。
// 作成に失敗した場合はサインインを行わない。サインインに失敗した場合はセッションを変更しない。
func (w *Workflow) Register(ctx context.Context, req RegisterRequest) (*AuthSession, error) {
	user, err := w.identity.SignUp(ctx, SignUpRequest{
		Email:      req.Email,
		Password:   req.Password,
		RedirectTo: w.redirectURL,
		Metadata: map[string]any{
			"first_name": req.FirstName,
			"last_name":  req.LastName,
			"phone":      req.Phone,
		},
	})
	if err != nil {
		return nil, err
	}
	log.Printf("[Auth] ユーザーを作成しました: user_id=%s", user.ID)

	s, err := w.identity.SignInWithPassword(ctx, req.Email, req.Password)
	if err != nil {
		log.Printf("[Auth] 作成直後のサインインに失敗: user_id=%s, error=%v", user.ID, err)
		return nil, err
	}
	if err := w.establish(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

// Login はバックエンドで認証し、取得したアクセストークンをセッションに保存してから返す。
func (w *Workflow) Login(ctx context.Context, email, password string) (*AuthSession, error) {
	body := map[string]string{
		"email":    email,
		"password": password,
	}
	var s AuthSession
	if err := w.api.PostJSON(ctx, "auth/login", body, &s); err != nil {
		return nil, err
	}
	if err := w.establish(ctx, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Logout はセッションを破棄する。サーバーへの通知は行わない。
func (w *Workflow) Logout(ctx context.Context) error {
	if err := w.session.Clear(ctx); err != nil {
		return fmt.Errorf("セッションの破棄に失敗: %w", err)
	}
	log.Printf("[Auth] ログアウトしました")
	return nil
}

// UpdateProfile は指定ユーザーのプロフィール情報を更新する。
func (w *Workflow) UpdateProfile(ctx context.Context, userID string, metadata map[string]any) (*User, error) {
	return w.identity.UpdateUserMetadata(ctx, userID, metadata)
}

// ChangePassword は現在のユーザーのパスワードを変更する。
func (w *Workflow) ChangePassword(ctx context.Context, password string) (*User, error) {
	return w.identity.UpdatePassword(ctx, password)
}

// establish はアクセストークンをセッションに保存する。
func (w *Workflow) establish(ctx context.Context, s *AuthSession) error {
	if s.AccessToken == "" {
		return ErrMissingToken
	}
	if err := w.session.Set(ctx, s.AccessToken); err != nil {
		return fmt.Errorf("セッションの保存に失敗: %w", err)
	}
	if s.User != nil {
		log.Printf("[Auth] ログインしました: user_id=%s", s.User.ID)
	}
	return nil
}
