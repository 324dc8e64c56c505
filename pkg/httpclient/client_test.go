package httpclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"golang.org/x/time/rate"
)

// testRequest はテストサーバーが受け取ったリクエスト情報を保持する構造体。
type testRequest struct {
	// Method はHTTPメソッド。
	Method string
	// Path はリクエストパス。
	Path string
	// RawQuery はクエリ文字列。
	RawQuery string
	// Body はリクエストボディ。
	Body []byte
	// Headers はリクエストヘッダー。
	Headers http.Header
}

// testPayload はテスト用のリクエスト/レスポンスペイロード。
type testPayload struct {
	// Name はテスト用の名前フィールド。
	Name string `json:"name"`
	// Value はテスト用の値フィールド。
	Value int `json:"value"`
}

// staticCredentials は固定のクレデンシャルを返すテスト用のCredentialSource。
type staticCredentials string

func (s staticCredentials) Current() (string, bool) {
	return string(s), s != ""
}

// newRecordingServer は受け取ったリクエストを記録し、固定のJSONを返すテストサーバーを生成する。
func newRecordingServer(t *testing.T, status int, respBody string) (*httptest.Server, *testRequest) {
	t.Helper()

	received := &testRequest{}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received.Method = r.Method
		received.Path = r.URL.Path
		received.RawQuery = r.URL.RawQuery
		received.Body, _ = io.ReadAll(r.Body)
		received.Headers = r.Header.Clone()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(respBody))
	}))
	t.Cleanup(ts.Close)
	return ts, received
}

// TestNew はNew関数でクライアントが正しく生成されることを検証する。
func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("クライアントが正常に生成されること", func(t *testing.T) {
		t.Parallel()

		client := New("http://localhost:1337/")
		if client.baseURL != "http://localhost:1337" {
			t.Errorf("baseURL = %q, want %q", client.baseURL, "http://localhost:1337")
		}
		if client.root != "/api/" {
			t.Errorf("root = %q, want %q", client.root, "/api/")
		}
	})

	t.Run("タイムアウトが30秒に設定されていること", func(t *testing.T) {
		t.Parallel()

		client := New("http://localhost:1337")
		if client.httpClient.Timeout != 30*time.Second {
			t.Errorf("Timeout = %v, want 30s", client.httpClient.Timeout)
		}
	})

	t.Run("オプションでルートとタイムアウトを変更できること", func(t *testing.T) {
		t.Parallel()

		client := New("http://localhost:1337", WithRoot("auth/v1"), WithTimeout(5*time.Second))
		if client.root != "/auth/v1/" {
			t.Errorf("root = %q, want %q", client.root, "/auth/v1/")
		}
		if client.httpClient.Timeout != 5*time.Second {
			t.Errorf("Timeout = %v, want 5s", client.httpClient.Timeout)
		}
	})
}

// TestPostJSON はPostJSON関数を検証する。
func TestPostJSON(t *testing.T) {
	t.Parallel()

	t.Run("正常にPOSTリクエストを送信してレスポンスを取得できること", func(t *testing.T) {
		t.Parallel()

		ts, received := newRecordingServer(t, http.StatusOK, `{"name":"response","value":200}`)

		client := New(ts.URL)
		var result testPayload
		err := client.PostJSON(context.Background(), "auth/login", testPayload{Name: "request", Value: 100}, &result)
		if err != nil {
			t.Fatalf("PostJSON()でエラーが発生: %v", err)
		}

		if received.Method != http.MethodPost {
			t.Errorf("Method = %q, want %q", received.Method, http.MethodPost)
		}
		if received.Path != "/api/auth/login" {
			t.Errorf("Path = %q, want %q", received.Path, "/api/auth/login")
		}

		var sentBody testPayload
		if err := json.Unmarshal(received.Body, &sentBody); err != nil {
			t.Fatalf("リクエストボディのパースに失敗: %v", err)
		}
		if sentBody.Name != "request" || sentBody.Value != 100 {
			t.Errorf("sent body = %+v, want {request 100}", sentBody)
		}

		if got := received.Headers.Get("Content-Type"); got != "application/json" {
			t.Errorf("Content-Type = %q, want %q", got, "application/json")
		}

		if result.Name != "response" || result.Value != 200 {
			t.Errorf("result = %+v, want {response 200}", result)
		}
	})

	t.Run("resultがnilの場合でもエラーにならないこと", func(t *testing.T) {
		t.Parallel()

		ts, _ := newRecordingServer(t, http.StatusCreated, `{"status":"created"}`)

		client := New(ts.URL)
		if err := client.PostJSON(context.Background(), "events", testPayload{Name: "no-result"}, nil); err != nil {
			t.Fatalf("PostJSON()でエラーが発生: %v", err)
		}
	})

	t.Run("204でボディがない場合もエラーにならないこと", func(t *testing.T) {
		t.Parallel()

		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		}))
		defer ts.Close()

		client := New(ts.URL)
		var result testPayload
		if err := client.PostJSON(context.Background(), "events", nil, &result); err != nil {
			t.Fatalf("PostJSON()でエラーが発生: %v", err)
		}
	})

	t.Run("シリアライズできないボディでエラーが返り送信されないこと", func(t *testing.T) {
		t.Parallel()

		called := false
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			called = true
		}))
		defer ts.Close()

		client := New(ts.URL)
		// json.Marshalでエラーになるチャネル型を渡す
		err := client.PostJSON(context.Background(), "events", make(chan int), nil)
		if err == nil {
			t.Fatal("PostJSON()がエラーを返すべきだが、nilが返った")
		}
		if called {
			t.Error("シリアライズに失敗したのにリクエストが送信された")
		}
	})

	t.Run("キャンセルされたコンテキストでネットワークエラーが返ること", func(t *testing.T) {
		t.Parallel()

		ts, _ := newRecordingServer(t, http.StatusOK, `{}`)

		client := New(ts.URL)
		ctx, cancel := context.WithCancel(context.Background())
		cancel() // 即座にキャンセル

		err := client.PostJSON(ctx, "events", testPayload{}, nil)
		if KindOf(err) != KindNetwork {
			t.Fatalf("KindOf(err) = %v, want %v (err=%v)", KindOf(err), KindNetwork, err)
		}
		if !errors.Is(err, context.Canceled) {
			t.Errorf("errors.Is(err, context.Canceled) = false, err=%v", err)
		}
	})
}

// TestGetJSON はGetJSON関数を検証する。
func TestGetJSON(t *testing.T) {
	t.Parallel()

	t.Run("クエリ文字列がそのまま送信されること", func(t *testing.T) {
		t.Parallel()

		ts, received := newRecordingServer(t, http.StatusOK, `{"name":"ok","value":1}`)

		client := New(ts.URL)
		var result testPayload
		err := client.GetJSON(context.Background(), "travel-packages?populate=cover_image&filters[featured][$eq]=true", &result)
		if err != nil {
			t.Fatalf("GetJSON()でエラーが発生: %v", err)
		}

		if received.Path != "/api/travel-packages" {
			t.Errorf("Path = %q, want %q", received.Path, "/api/travel-packages")
		}
		if received.RawQuery != "populate=cover_image&filters[featured][$eq]=true" {
			t.Errorf("RawQuery = %q", received.RawQuery)
		}
		if len(received.Body) != 0 {
			t.Errorf("GETリクエストにボディが含まれている: %q", string(received.Body))
		}
	})

	t.Run("不正なJSONレスポンスでサーバーエラーが返ること", func(t *testing.T) {
		t.Parallel()

		ts, _ := newRecordingServer(t, http.StatusOK, `{invalid json}`)

		client := New(ts.URL)
		var result testPayload
		err := client.GetJSON(context.Background(), "test", &result)
		if KindOf(err) != KindServer {
			t.Fatalf("KindOf(err) = %v, want %v", KindOf(err), KindServer)
		}
	})

	t.Run("接続できないサーバーに対してネットワークエラーが返ること", func(t *testing.T) {
		t.Parallel()

		// 存在しないサーバーに接続を試みる
		client := New("http://127.0.0.1:1")
		var result testPayload
		err := client.GetJSON(context.Background(), "test", &result)
		if KindOf(err) != KindNetwork {
			t.Fatalf("KindOf(err) = %v, want %v", KindOf(err), KindNetwork)
		}
		var apiErr *Error
		if !errors.As(err, &apiErr) || apiErr.Status != 0 {
			t.Errorf("Status = %d, want 0", apiErr.Status)
		}
	})
}

// TestAuthorizationHeader はクレデンシャルの付与を検証する。
func TestAuthorizationHeader(t *testing.T) {
	t.Parallel()

	t.Run("クレデンシャルがある場合はBearerヘッダーが付与されること", func(t *testing.T) {
		t.Parallel()

		ts, received := newRecordingServer(t, http.StatusOK, `{}`)

		client := New(ts.URL, WithCredentials(staticCredentials("abc.def.ghi")))
		if err := client.GetJSON(context.Background(), "me", nil); err != nil {
			t.Fatalf("GetJSON()でエラーが発生: %v", err)
		}

		if got := received.Headers.Get("Authorization"); got != "Bearer abc.def.ghi" {
			t.Errorf("Authorization = %q, want %q", got, "Bearer abc.def.ghi")
		}
	})

	t.Run("クレデンシャルがない場合はAuthorizationヘッダーが送信されないこと", func(t *testing.T) {
		t.Parallel()

		ts, received := newRecordingServer(t, http.StatusOK, `{}`)

		client := New(ts.URL, WithCredentials(staticCredentials("")))
		if err := client.GetJSON(context.Background(), "me", nil); err != nil {
			t.Fatalf("GetJSON()でエラーが発生: %v", err)
		}

		if _, ok := received.Headers["Authorization"]; ok {
			t.Errorf("Authorizationヘッダーが送信された: %q", received.Headers.Get("Authorization"))
		}
	})

	t.Run("追加ヘッダーよりクレデンシャルが優先されること", func(t *testing.T) {
		t.Parallel()

		ts, received := newRecordingServer(t, http.StatusOK, `{}`)

		client := New(ts.URL, WithCredentials(staticCredentials("session-token")), WithHeader("apikey", "anon"))
		err := client.Do(context.Background(), Request{
			Method: http.MethodGet,
			Path:   "me",
			Header: http.Header{"Authorization": {"Bearer other"}, "X-Locale": {"ja"}},
		}, nil)
		if err != nil {
			t.Fatalf("Do()でエラーが発生: %v", err)
		}

		if got := received.Headers.Get("Authorization"); got != "Bearer session-token" {
			t.Errorf("Authorization = %q, want %q", got, "Bearer session-token")
		}
		if got := received.Headers.Get("X-Locale"); got != "ja" {
			t.Errorf("X-Locale = %q, want %q", got, "ja")
		}
		if got := received.Headers.Get("apikey"); got != "anon" {
			t.Errorf("apikey = %q, want %q", got, "anon")
		}
	})
}

// TestErrorNormalization はエラーボディの正規化を検証する。
func TestErrorNormalization(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		status      int
		body        string
		wantMessage string
		wantKind    Kind
	}{
		{name: "入れ子のerror.messageを取り出すこと", status: http.StatusBadRequest, body: `{"error":{"message":"X"}}`, wantMessage: "X", wantKind: KindValidation},
		{name: "トップレベルのmessageを取り出すこと", status: http.StatusBadRequest, body: `{"message":"Y"}`, wantMessage: "Y", wantKind: KindValidation},
		{name: "messageがerror.messageより優先されること", status: http.StatusBadRequest, body: `{"message":"top","error":{"message":"nested"}}`, wantMessage: "top", wantKind: KindValidation},
		{name: "どちらもない場合はボディ全体をシリアライズすること", status: http.StatusBadRequest, body: `{"error":"bad request"}`, wantMessage: `{"error":"bad request"}`, wantKind: KindValidation},
		{name: "配列のmessageはシリアライズして使うこと", status: http.StatusBadRequest, body: `{"message":[{"messages":[{"id":"Auth.form.error.invalid","message":"Identifier or password invalid."}]}]}`, wantMessage: `[{"messages":[{"id":"Auth.form.error.invalid","message":"Identifier or password invalid."}]}]`, wantKind: KindValidation},
		{name: "オブジェクトのerror.messageはシリアライズして使うこと", status: http.StatusBadRequest, body: `{"error":{"message":{"code":42}}}`, wantMessage: `{"code":42}`, wantKind: KindValidation},
		{name: "数値のmessageは文字列にすること", status: http.StatusBadRequest, body: `{"message":404}`, wantMessage: "404", wantKind: KindValidation},
		{name: "空のmessageはerror.messageにフォールバックすること", status: http.StatusBadRequest, body: `{"message":"","error":{"message":"nested"}}`, wantMessage: "nested", wantKind: KindValidation},
		{name: "falseやnullのmessageは無視すること", status: http.StatusBadRequest, body: `{"message":false,"error":{"message":null}}`, wantMessage: `{"error":{"message":null},"message":false}`, wantKind: KindValidation},
		{name: "401は認証エラーになること", status: http.StatusUnauthorized, body: `{"message":"expired"}`, wantMessage: "expired", wantKind: KindAuth},
		{name: "403は認証エラーになること", status: http.StatusForbidden, body: `{"message":"forbidden"}`, wantMessage: "forbidden", wantKind: KindAuth},
		{name: "404はバリデーションエラーになること", status: http.StatusNotFound, body: `{"error":{"message":"Not Found"}}`, wantMessage: "Not Found", wantKind: KindValidation},
		{name: "500はサーバーエラーになること", status: http.StatusInternalServerError, body: `{"error":{"message":"boom"}}`, wantMessage: "boom", wantKind: KindServer},
		{name: "JSONでないボディはそのまま使うこと", status: http.StatusBadGateway, body: `upstream down`, wantMessage: "upstream down", wantKind: KindServer},
		{name: "空のボディはステータス行を使うこと", status: http.StatusServiceUnavailable, body: ``, wantMessage: "503 Service Unavailable", wantKind: KindServer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ts, _ := newRecordingServer(t, tt.status, tt.body)

			client := New(ts.URL)
			err := client.GetJSON(context.Background(), "test", nil)

			var apiErr *Error
			if !errors.As(err, &apiErr) {
				t.Fatalf("*Errorが返るべきだが %T が返った: %v", err, err)
			}
			if apiErr.Error() != tt.wantMessage {
				t.Errorf("message = %q, want %q", apiErr.Error(), tt.wantMessage)
			}
			if apiErr.Kind != tt.wantKind {
				t.Errorf("Kind = %v, want %v", apiErr.Kind, tt.wantKind)
			}
			if apiErr.Status != tt.status {
				t.Errorf("Status = %d, want %d", apiErr.Status, tt.status)
			}
		})
	}
}

// TestResolve はパスの解決とルート外へのアクセス拒否を検証する。
func TestResolve(t *testing.T) {
	t.Parallel()

	client := New("http://example.com/cms")

	t.Run("相対パスはルート配下に解決されること", func(t *testing.T) {
		t.Parallel()

		got, err := client.resolve("visa-applications?filters[tracking_id][$eq]=A1")
		if err != nil {
			t.Fatalf("resolve()でエラーが発生: %v", err)
		}
		want := "http://example.com/cms/api/visa-applications?filters[tracking_id][$eq]=A1"
		if got != want {
			t.Errorf("resolve() = %q, want %q", got, want)
		}
	})

	for _, path := range []string{"../admin", "a/../../secret", "/api/upload", "http://evil.example/api/x", "//evil.example/x"} {
		t.Run("ルート外のパスを拒否すること: "+path, func(t *testing.T) {
			t.Parallel()

			if _, err := client.resolve(path); !errors.Is(err, ErrPathEscapesRoot) {
				t.Errorf("resolve(%q) err = %v, want ErrPathEscapesRoot", path, err)
			}
		})
	}
}

// TestPostForm はマルチパートボディの送信を検証する。
func TestPostForm(t *testing.T) {
	t.Parallel()

	t.Run("境界文字列付きのContent-Typeでフィールドとファイルが送信されること", func(t *testing.T) {
		t.Parallel()

		var (
			contentType string
			dataField   string
			fileName    string
			fileType    string
			fileContent string
		)
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			contentType = r.Header.Get("Content-Type")
			if err := r.ParseMultipartForm(1 << 20); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			dataField = r.FormValue("data")
			file, header, err := r.FormFile("files")
			if err == nil {
				defer file.Close()
				fileName = header.Filename
				fileType = header.Header.Get("Content-Type")
				b, _ := io.ReadAll(file)
				fileContent = string(b)
			}
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`[{"id":1,"url":"/uploads/a.png"}]`))
		}))
		defer ts.Close()

		client := New(ts.URL)
		form := NewForm().
			AddField("data", `{"fullName":"Taro"}`).
			AddFile(File{FieldName: "files", FileName: "passport.png", ContentType: "image/png", Content: strings.NewReader("PNGDATA")})

		var result []map[string]any
		if err := client.PostForm(context.Background(), "upload", form, &result); err != nil {
			t.Fatalf("PostForm()でエラーが発生: %v", err)
		}

		if !strings.HasPrefix(contentType, "multipart/form-data; boundary=") {
			t.Errorf("Content-Type = %q, want multipart/form-data with boundary", contentType)
		}
		if dataField != `{"fullName":"Taro"}` {
			t.Errorf("data = %q", dataField)
		}
		if fileName != "passport.png" || fileType != "image/png" || fileContent != "PNGDATA" {
			t.Errorf("file = (%q, %q, %q)", fileName, fileType, fileContent)
		}
		if len(result) != 1 {
			t.Errorf("len(result) = %d, want 1", len(result))
		}
	})
}

// TestResolveURL はアップロード結果のURL解決を検証する。
func TestResolveURL(t *testing.T) {
	t.Parallel()

	client := New("http://localhost:1337/")
	if got := client.ResolveURL("/uploads/a.png"); got != "http://localhost:1337/uploads/a.png" {
		t.Errorf("ResolveURL() = %q", got)
	}
	if got := client.ResolveURL("https://cdn.example.com/a.png"); got != "https://cdn.example.com/a.png" {
		t.Errorf("ResolveURL() = %q", got)
	}
}

// TestRateLimit はレート制限の待機を検証する。
func TestRateLimit(t *testing.T) {
	t.Parallel()

	hits := 0
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits++
		w.Write([]byte(`{}`))
	}))
	defer ts.Close()

	client := New(ts.URL, WithRateLimit(rate.NewLimiter(rate.Every(time.Hour), 1)))
	if err := client.GetJSON(context.Background(), "a", nil); err != nil {
		t.Fatalf("1回目のGetJSON()でエラーが発生: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := client.GetJSON(ctx, "a", nil)
	if KindOf(err) != KindNetwork {
		t.Fatalf("KindOf(err) = %v, want %v", KindOf(err), KindNetwork)
	}
	if hits != 1 {
		t.Errorf("hits = %d, want 1", hits)
	}
}

// TestMetrics はメトリクスの記録を検証する。
func TestMetrics(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/missing" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte(`{}`))
	}))
	defer ts.Close()

	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	client := New(ts.URL, WithMetrics(m))

	_ = client.GetJSON(context.Background(), "ok", nil)
	_ = client.GetJSON(context.Background(), "missing", nil)

	if got := testutil.ToFloat64(m.requests.WithLabelValues(http.MethodGet, "ok")); got != 1 {
		t.Errorf("ok = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.requests.WithLabelValues(http.MethodGet, "validation")); got != 1 {
		t.Errorf("validation = %v, want 1", got)
	}
}

// TestWithKind は種別の差し替えを検証する。
func TestWithKind(t *testing.T) {
	t.Parallel()

	orig := &Error{Kind: KindValidation, Status: 413, Message: "too large"}
	err := WithKind(orig, KindUpload)

	var apiErr *Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("*Errorが返るべき: %v", err)
	}
	if apiErr.Kind != KindUpload || apiErr.Status != 413 || apiErr.Message != "too large" {
		t.Errorf("WithKind() = %+v", apiErr)
	}
	if !errors.Is(err, orig) {
		t.Error("元のエラーを辿れるべき")
	}
	if WithKind(nil, KindUpload) != nil {
		t.Error("nilはnilのまま返るべき")
	}
}
