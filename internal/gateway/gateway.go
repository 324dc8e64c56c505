package gateway

import (
	"context"
	"time"

	"github.com/nao1215/travelgate/internal/auth"
	"github.com/nao1215/travelgate/internal/catalog"
	"github.com/nao1215/travelgate/internal/submission"
	"github.com/nao1215/travelgate/internal/tracking"
	"github.com/nao1215/travelgate/pkg/httpclient"
	"github.com/nao1215/travelgate/pkg/resource"
	"github.com/nao1215/travelgate/pkg/session"
	"golang.org/x/time/rate"
)

// Options はGatewayの接続設定。
type Options struct {
	// BaseURL はバックエンドのベースURL。
	BaseURL string
	// IdentityURL はIDサービスのベースURL。空の場合はBaseURLを使う。
	IdentityURL string
	// AnonKey はIDサービスの apikey ヘッダー。
	AnonKey string
	// RedirectURL はユーザー作成時の確認メールのリダイレクト先。
	RedirectURL string
	// Timeout は1回のHTTP交換のタイムアウト。0の場合はクライアントの既定値を使う。
	Timeout time.Duration
	// RateLimit はクライアント側のレート制限。nilの場合は制限しない。
	RateLimit *rate.Limiter
	// Metrics はリクエストのメトリクス。nilの場合は記録しない。
	Metrics *httpclient.Metrics
}

// Gateway はリソースゲートウェイ。
type Gateway struct {
	store       *session.Store
	api         *httpclient.Client
	auth        *auth.Workflow
	submissions *submission.Service
	catalog     *catalog.Reader
}

// New は新しいGatewayを生成する。storeがnilの場合はメモリ上のセッションを使う。
func New(opts Options, store *session.Store) *Gateway {
	if store == nil {
		store = session.NewMemory()
	}

	clientOpts := []httpclient.Option{httpclient.WithCredentials(store)}
	if opts.Timeout > 0 {
		clientOpts = append(clientOpts, httpclient.WithTimeout(opts.Timeout))
	}
	if opts.RateLimit != nil {
		clientOpts = append(clientOpts, httpclient.WithRateLimit(opts.RateLimit))
	}
	if opts.Metrics != nil {
		clientOpts = append(clientOpts, httpclient.WithMetrics(opts.Metrics))
	}
	api := httpclient.New(opts.BaseURL, clientOpts...)

	identityURL := opts.IdentityURL
	if identityURL == "" {
		identityURL = opts.BaseURL
	}
	identity := auth.NewIdentityClient(identityURL, opts.AnonKey, clientOpts...)

	return &Gateway{
		store:       store,
		api:         api,
		auth:        auth.NewWorkflow(identity, api, store, opts.RedirectURL),
		submissions: submission.NewService(api),
		catalog:     catalog.NewReader(api),
	}
}

// Client はバックエンドAPIのHTTPクライアントを返す。resource パッケージの汎用取得に使う。
func (g *Gateway) Client() *httpclient.Client {
	return g.api
}

// Authenticated はクレデンシャルを保持しているかどうかを返す。クレデンシャル自体は公開しない。
func (g *Gateway) Authenticated() bool {
	_, ok := g.store.Current()
	return ok
}

// Register はユーザーを作成し、続けてサインインする。
func (g *Gateway) Register(ctx context.Context, req auth.RegisterRequest) (*auth.AuthSession, error) {
	return g.auth.Register(ctx, req)
}

// Login はログインしてクレデンシャルを保存する。
func (g *Gateway) Login(ctx context.Context, email, password string) (*auth.AuthSession, error) {
	return g.auth.Login(ctx, email, password)
}

// Logout はクレデンシャルを破棄する。
func (g *Gateway) Logout(ctx context.Context) error {
	return g.auth.Logout(ctx)
}

// UpdateProfile はユーザーのプロフィール情報を更新する。
func (g *Gateway) UpdateProfile(ctx context.Context, userID string, metadata map[string]any) (*auth.User, error) {
	return g.auth.UpdateProfile(ctx, userID, metadata)
}

// ChangePassword は現在のユーザーのパスワードを変更する。
func (g *Gateway) ChangePassword(ctx context.Context, password string) (*auth.User, error) {
	return g.auth.ChangePassword(ctx, password)
}

// Upload はファイルを1件アップロードする。
func (g *Gateway) Upload(ctx context.Context, a submission.Attachment) (submission.Uploaded, error) {
	return g.submissions.Upload(ctx, a)
}

// NewPipeline は事前アップロード方式の送信パイプラインを生成する。
func (g *Gateway) NewPipeline(req submission.Request) *submission.Pipeline {
	return g.submissions.NewPipeline(req)
}

// Submit は事前アップロード方式で申請を送信する。
func (g *Gateway) Submit(ctx context.Context, req submission.Request) (*submission.Record, error) {
	return g.submissions.Submit(ctx, req)
}

// SubmitVisaApplication はビザ申請を送信する。
func (g *Gateway) SubmitVisaApplication(ctx context.Context, fields map[string]any, files []submission.Attachment) (*submission.Record, error) {
	return g.submissions.SubmitVisaApplication(ctx, fields, files)
}

// SubmitDrivingLicenseApplication は国際運転免許証申請を送信する。
func (g *Gateway) SubmitDrivingLicenseApplication(ctx context.Context, app submission.DrivingLicenseApplication, files submission.DrivingLicenseFiles) (*submission.Record, error) {
	return g.submissions.SubmitDrivingLicenseApplication(ctx, app, files)
}

// Track は追跡番号で申請レコードを検索する。該当がない場合は nil, nil を返す。
func (g *Gateway) Track(ctx context.Context, appType, trackingID string) (*submission.Record, error) {
	return tracking.Lookup(ctx, g.api, appType, trackingID)
}

// TravelPackages は旅行パッケージの一覧を取得する。
func (g *Gateway) TravelPackages(ctx context.Context, featuredOnly bool) ([]catalog.TravelPackage, error) {
	return g.catalog.TravelPackages(ctx, featuredOnly)
}

// ESIMProducts はeSIM商品の一覧を取得する。
func (g *Gateway) ESIMProducts(ctx context.Context) ([]catalog.ESIMProduct, error) {
	return g.catalog.ESIMProducts(ctx)
}

// TravelAccessories はトラベル用品の一覧を取得する。
func (g *Gateway) TravelAccessories(ctx context.Context) ([]catalog.TravelAccessory, error) {
	return g.catalog.TravelAccessories(ctx)
}

// Clients は顧客一覧の指定ページを取得する。
func (g *Gateway) Clients(ctx context.Context, page int) (*resource.Paginated[catalog.Client], error) {
	return g.catalog.Clients(ctx, page)
}

// DashboardStats は管理画面の統計を取得する。
func (g *Gateway) DashboardStats(ctx context.Context) (*catalog.DashboardStats, error) {
	return g.catalog.DashboardStats(ctx)
}
