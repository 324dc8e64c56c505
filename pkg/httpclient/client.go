package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	// defaultTimeout は1回のHTTP交換のタイムアウト。
	defaultTimeout = 30 * time.Second
	// defaultRoot はリソースパスの起点となるルート。
	defaultRoot = "/api/"
	// jsonContentType はJSONボディのContent-Type。
	jsonContentType = "application/json"
)

// CredentialSource は送信時に付与するBearerクレデンシャルの取得元。
// session.Store がこれを満たす。
type CredentialSource interface {
	// Current は現在のクレデンシャルを返す。未設定の場合は第2戻り値がfalseになる。
	Current() (string, bool)
}

// Client はバックエンドサービス用のHTTPクライアント。
// クレデンシャルの付与とエラーの正規化を行い、Sessionの状態を変更することはない。
type Client struct {
	// httpClient は内部で使用するHTTPクライアント。
	httpClient *http.Client
	// baseURL は接続先サービスのベースURL（末尾のスラッシュは除去済み）。
	baseURL string
	// root はリソースパスの起点（例: "/api/"）。
	root string
	// headers はすべてのリクエストに付与する固定ヘッダー。
	headers http.Header
	// credentials はBearerクレデンシャルの取得元。nilの場合は常に未認証で送信する。
	credentials CredentialSource
	// limiter はクライアント側のレート制限。nilの場合は制限しない。
	limiter *rate.Limiter
	// metrics はリクエストのメトリクス。nilの場合は記録しない。
	metrics *Metrics
}

// Option はClientの設定を変更する関数。
type Option func(*Client)

// WithTimeout は1回のHTTP交換のタイムアウトを設定する。
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithHTTPClient は内部で使用するHTTPクライアントを差し替える。
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithRoot はリソースパスの起点を変更する。認証サービス向けに "/auth/v1/" などを指定する。
func WithRoot(root string) Option {
	return func(c *Client) {
		c.root = "/" + strings.Trim(root, "/") + "/"
	}
}

// WithHeader はすべてのリクエストに付与する固定ヘッダーを追加する。
func WithHeader(key, value string) Option {
	return func(c *Client) {
		c.headers.Set(key, value)
	}
}

// WithCredentials はBearerクレデンシャルの取得元を設定する。
func WithCredentials(src CredentialSource) Option {
	return func(c *Client) {
		c.credentials = src
	}
}

// WithRateLimit はリクエスト送信前に待機するレートリミッターを設定する。
func WithRateLimit(l *rate.Limiter) Option {
	return func(c *Client) {
		c.limiter = l
	}
}

// WithMetrics はリクエストのメトリクスを記録する。
func WithMetrics(m *Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// New は新しいHTTPクライアントを生成する。
// baseURLには接続先サービスのベースURL（例: "http://localhost:1337"）を指定する。
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
		baseURL: strings.TrimRight(baseURL, "/"),
		root:    defaultRoot,
		headers: make(http.Header),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL はベースURLを返す。
func (c *Client) BaseURL() string {
	return c.baseURL
}

// ResolveURL はサーバーが返した相対URL（例: "/uploads/a.png"）をベースURLに連結する。
// 絶対URLの場合はそのまま返す。
func (c *Client) ResolveURL(ref string) string {
	if u, err := url.Parse(ref); err == nil && u.IsAbs() {
		return ref
	}
	return c.baseURL + "/" + strings.TrimLeft(ref, "/")
}

// Request は1回のHTTP交換の内容。
type Request struct {
	// Method はHTTPメソッド。
	Method string
	// Path はルートからの相対パス。クエリ文字列を含んでよい。
	Path string
	// Body はJSONとして送信するボディ。nilの場合はボディを送らない。
	Body any
	// Form はマルチパートボディ。指定した場合はBodyより優先する。
	Form *Form
	// Header はこのリクエストにだけ付与する追加ヘッダー。
	Header http.Header
}

// GetJSON は指定パスにGETリクエストを送信し、レスポンスボディをresultにデシリアライズする。
func (c *Client) GetJSON(ctx context.Context, path string, result any) error {
	return c.Do(ctx, Request{Method: http.MethodGet, Path: path}, result)
}

// PostJSON は指定パスにJSONボディでPOSTリクエストを送信する。
func (c *Client) PostJSON(ctx context.Context, path string, body any, result any) error {
	return c.Do(ctx, Request{Method: http.MethodPost, Path: path, Body: body}, result)
}

// PutJSON は指定パスにJSONボディでPUTリクエストを送信する。
func (c *Client) PutJSON(ctx context.Context, path string, body any, result any) error {
	return c.Do(ctx, Request{Method: http.MethodPut, Path: path, Body: body}, result)
}

// Delete は指定パスにDELETEリクエストを送信する。
func (c *Client) Delete(ctx context.Context, path string, result any) error {
	return c.Do(ctx, Request{Method: http.MethodDelete, Path: path}, result)
}

// PostForm は指定パスにマルチパートボディでPOSTリクエストを送信する。
func (c *Client) PostForm(ctx context.Context, path string, form *Form, result any) error {
	return c.Do(ctx, Request{Method: http.MethodPost, Path: path, Form: form}, result)
}

// Do はHTTPリクエストを1回実行する。
// 成功時はレスポンスボディをresultにデシリアライズする（resultがnilの場合は読み捨てる）。
// 失敗時は *Error（またはパス・ボディの組み立てエラー）を返す。
func (c *Client) Do(ctx context.Context, req Request, result any) error {
	start := time.Now()
	err := c.do(ctx, req, result)
	c.metrics.observe(req.Method, err, time.Since(start))
	return err
}

// do はDoの本体。
func (c *Client) do(ctx context.Context, req Request, result any) error {
	target, err := c.resolve(req.Path)
	if err != nil {
		return err
	}

	body, contentType, err := encodeBody(req)
	if err != nil {
		return err
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return &Error{Kind: KindNetwork, Message: fmt.Sprintf("レート制限の待機に失敗: %v", err), Err: err}
		}
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, body)
	if err != nil {
		return fmt.Errorf("HTTPリクエストの作成に失敗: %w", err)
	}
	for key, values := range c.headers {
		httpReq.Header[key] = append([]string(nil), values...)
	}
	httpReq.Header.Set("Content-Type", contentType)
	for key, values := range req.Header {
		httpReq.Header[http.CanonicalHeaderKey(key)] = append([]string(nil), values...)
	}

	// クレデンシャルがあれば常に付与し、なければAuthorizationヘッダー自体を送らない
	if c.credentials != nil {
		if token, ok := c.credentials.Current(); ok {
			httpReq.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return &Error{Kind: KindNetwork, Message: fmt.Sprintf("HTTPリクエストの送信に失敗: %v", err), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return newStatusError(resp.StatusCode, resp.Status, respBody)
	}

	if result == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return &Error{
			Kind:    KindServer,
			Status:  resp.StatusCode,
			Message: fmt.Sprintf("レスポンスボディのデシリアライズに失敗: %v", err),
			Err:     err,
		}
	}
	return nil
}

// resolve はルートからの相対パスを送信先URLに変換する。
// 絶対URL、"/" で始まるパス、".." でルートの外に出るパスは ErrPathEscapesRoot とする。
func (c *Client) resolve(path string) (string, error) {
	root, err := url.Parse(c.baseURL + c.root)
	if err != nil {
		return "", fmt.Errorf("ベースURLの解析に失敗: %w", err)
	}

	ref, err := url.Parse(path)
	if err != nil {
		return "", fmt.Errorf("パスの解析に失敗: %w", err)
	}
	if ref.IsAbs() || ref.Host != "" || strings.HasPrefix(ref.Path, "/") {
		return "", fmt.Errorf("%w: %s", ErrPathEscapesRoot, path)
	}

	target := root.ResolveReference(ref)
	if !strings.HasPrefix(target.Path, root.Path) {
		return "", fmt.Errorf("%w: %s", ErrPathEscapesRoot, path)
	}
	return target.String(), nil
}

// encodeBody はリクエストボディとContent-Typeを決定する。
// マルチパートの場合は境界文字列を含むContent-Typeを、それ以外はJSONのContent-Typeを返す。
func encodeBody(req Request) (io.Reader, string, error) {
	if req.Form != nil {
		return req.Form.encode()
	}
	if req.Body == nil {
		return nil, jsonContentType, nil
	}

	jsonBody, err := json.Marshal(req.Body)
	if err != nil {
		return nil, "", fmt.Errorf("リクエストボディのシリアライズに失敗: %w", err)
	}
	return bytes.NewReader(jsonBody), jsonContentType, nil
}
