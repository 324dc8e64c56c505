package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/travelgate/internal/devbackend"
	"github.com/nao1215/travelgate/pkg/httpclient"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// testEnv は開発用バックエンドと設定ファイルの組。
type testEnv struct {
	configPath string
	dir        string
}

// newTestEnv は開発用バックエンドを起動し、そこに接続する設定ファイルを作成する。
func newTestEnv(t *testing.T) testEnv {
	t.Helper()

	srv, err := devbackend.NewServer(devbackend.Config{
		JWTSecret:    "cli-test-secret",
		DatabasePath: ":memory:",
		UploadDir:    t.TempDir(),
		FrontendURL:  "http://localhost:5000",
		BcryptCost:   bcrypt.MinCost,
		PageSize:     10,
	})
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		_ = srv.Close()
	})

	dir := t.TempDir()
	configPath := filepath.Join(dir, "travelgate.yaml")
	content := "api:\n" +
		"  base_url: " + ts.URL + "\n" +
		"  timeout: 5s\n" +
		"session:\n" +
		"  backend: file\n" +
		"  path: " + filepath.Join(dir, "session") + "\n"
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0o600))
	return testEnv{configPath: configPath, dir: dir}
}

// run はコマンドを実行して標準出力と標準エラー出力を返す。
func (e testEnv) run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()

	var stdout, stderr bytes.Buffer
	err := Run(context.Background(), append([]string{"--config", e.configPath}, args...), &stdout, &stderr)
	return stdout.String(), stderr.String(), err
}

// mustRun はコマンドを実行し、失敗した場合はテストを中断する。
func (e testEnv) mustRun(t *testing.T, args ...string) string {
	t.Helper()

	out, stderr, err := e.run(t, args...)
	require.NoError(t, err, "args=%v stderr=%s", args, stderr)
	return out
}

// writeFile は一時ディレクトリにファイルを作成してパスを返す。
func (e testEnv) writeFile(t *testing.T, name, content string) string {
	t.Helper()

	p := filepath.Join(e.dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	return p
}

func TestSessionCommands(t *testing.T) {
	t.Parallel()

	t.Run("登録したセッションが次の実行に引き継がれること", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)

		out := env.mustRun(t, "register", "--email", "cli@example.com", "--password", "secret-pass", "--first-name", "Taro")
		var user map[string]any
		require.NoError(t, json.Unmarshal([]byte(out), &user))
		assert.Equal(t, "cli@example.com", user["email"])

		out = env.mustRun(t, "status")
		assert.Contains(t, out, `"authenticated": true`)

		out = env.mustRun(t, "clients", "--page", "3", "-o", "yaml")
		assert.Contains(t, out, "has_next: false")
		assert.Contains(t, out, "has_prev: true")

		env.mustRun(t, "logout")
		out = env.mustRun(t, "status")
		assert.Contains(t, out, `"authenticated": false`)

		_, _, err := env.run(t, "clients")
		require.Error(t, err)
		assert.Equal(t, httpclient.KindAuth, httpclient.KindOf(err))

		env.mustRun(t, "login", "--email", "cli@example.com", "--password", "secret-pass")
		out = env.mustRun(t, "dashboard")
		assert.Contains(t, out, `"travel_packages": 3`)
	})

	t.Run("誤ったパスワードのログインは認証エラーになること", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)

		env.mustRun(t, "register", "--email", "bad@example.com", "--password", "secret-pass")
		env.mustRun(t, "logout")
		_, _, err := env.run(t, "login", "--email", "bad@example.com", "--password", "wrong-pass")
		require.Error(t, err)
		assert.Equal(t, httpclient.KindAuth, httpclient.KindOf(err))
	})
}

func TestCatalogCommands(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	var featured []map[string]any
	require.NoError(t, json.Unmarshal([]byte(env.mustRun(t, "packages", "--featured")), &featured))
	assert.Len(t, featured, 2)

	var esims []map[string]any
	require.NoError(t, json.Unmarshal([]byte(env.mustRun(t, "esims")), &esims))
	assert.Len(t, esims, 2)

	out := env.mustRun(t, "accessories", "--output", "yaml")
	assert.Contains(t, out, "name: Universal Adapter")
}

func TestSubmitCommands(t *testing.T) {
	t.Parallel()

	t.Run("国際運転免許証申請を送信して追跡番号で検索できること", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		env.mustRun(t, "register", "--email", "idl@example.com", "--password", "secret-pass")

		out := env.mustRun(t, "submit", "idl",
			"--full-name", "Taro Yamada",
			"--email", "idl@example.com",
			"--payment-status", "completed",
			"--license-front", env.writeFile(t, "front.png", "front"),
			"--passport-page", env.writeFile(t, "passport.png", "passport"),
			"--personal-photo", env.writeFile(t, "photo.jpg", "photo"),
		)
		var record map[string]any
		require.NoError(t, json.Unmarshal([]byte(out), &record))
		assert.Equal(t, "international-driving-license", record["type"])
		assert.Equal(t, "pending", record["status"])
		assert.Len(t, record["attachments"], 3)

		trackingID, _ := record["tracking_id"].(string)
		require.NotEmpty(t, trackingID)
		out = env.mustRun(t, "track", "international-driving-license", trackingID)
		assert.Contains(t, out, trackingID)

		_, _, err := env.run(t, "track", "international-driving-license", "TG-UNKNOWN")
		require.ErrorIs(t, err, errApplicationNotFound)
	})

	t.Run("ビザ申請をフィールドとファイルで送信できること", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		env.mustRun(t, "register", "--email", "visa@example.com", "--password", "secret-pass")

		out := env.mustRun(t, "submit", "visa",
			"--field", "fullName=Hanako",
			"--field", "country=JP",
			"--file", env.writeFile(t, "passport.pdf", "pdf"),
		)
		var record map[string]any
		require.NoError(t, json.Unmarshal([]byte(out), &record))
		assert.Equal(t, "visa", record["type"])
		assert.Equal(t, "JP", record["country"])
		assert.Len(t, record["attachments"], 1)
	})

	t.Run("任意の種類の申請で同じフィールドの添付がID配列になること", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		env.mustRun(t, "register", "--email", "app@example.com", "--password", "secret-pass")

		out := env.mustRun(t, "submit", "application", "visa",
			"--field", "fullName=Jiro",
			"--attach", "documents="+env.writeFile(t, "a.pdf", "a"),
			"--attach", "documents="+env.writeFile(t, "b.pdf", "b"),
		)
		var record map[string]any
		require.NoError(t, json.Unmarshal([]byte(out), &record))
		assert.Len(t, record["documents"], 2)
		assert.Len(t, record["attachments"], 2)
	})

	t.Run("未ログインの申請はアップロードエラーになること", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)

		_, _, err := env.run(t, "submit", "application", "visa",
			"--attach", "passport="+env.writeFile(t, "p.png", "p"))
		require.Error(t, err)
		assert.Equal(t, httpclient.KindUpload, httpclient.KindOf(err))
	})

	t.Run("アップロードしたファイルのURLを表示すること", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		env.mustRun(t, "register", "--email", "up@example.com", "--password", "secret-pass")

		out := env.mustRun(t, "upload", env.writeFile(t, "doc.png", "doc"))
		assert.Contains(t, out, "/uploads/")
	})
}

func TestRootCommand(t *testing.T) {
	t.Parallel()

	t.Run("不正な出力形式はエラーになること", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)

		_, _, err := env.run(t, "status", "--output", "xml")
		require.Error(t, err)
	})

	t.Run("metricsフラグで送信したリクエストの件数を書き出すこと", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)

		_, stderr, err := env.run(t, "esims", "--metrics")
		require.NoError(t, err)
		assert.Contains(t, stderr, `travelgate_client_requests_total{kind="ok",method="GET"} 1`)
	})

	t.Run("コマンドが失敗してもメトリクスを書き出すこと", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)

		_, stderr, err := env.run(t, "track", "visa", "TG-UNKNOWN", "--metrics")
		require.ErrorIs(t, err, errApplicationNotFound)
		assert.Contains(t, stderr, `travelgate_client_requests_total{kind="ok",method="GET"} 1`)
	})
}

// closeRecorder は Close の呼び出し回数を記録する。
type closeRecorder struct {
	calls int
}

func (c *closeRecorder) Close() error {
	c.calls++
	return nil
}

func TestFinish(t *testing.T) {
	t.Parallel()

	t.Run("メトリクスを書き出さない場合もセッションの接続を閉じること", func(t *testing.T) {
		t.Parallel()

		rec := &closeRecorder{}
		a := &app{closer: rec}
		var buf bytes.Buffer
		require.NoError(t, a.finish(&buf, false))
		assert.Equal(t, 1, rec.calls)
		assert.Empty(t, buf.String())

		// 2回目は何もしない
		require.NoError(t, a.finish(&buf, true))
		assert.Equal(t, 1, rec.calls)
	})

	t.Run("初期化前に失敗した場合はエラーにならないこと", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		require.NoError(t, (&app{}).finish(&buf, true))
		assert.Empty(t, buf.String())
	})
}

func TestParseAssignments(t *testing.T) {
	t.Parallel()

	got, err := parseAssignments([]string{"a=1", "b=x=y", "c="})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": "1", "b": "x=y", "c": ""}, got)

	for _, bad := range []string{"novalue", "=v"} {
		_, err := parseAssignments([]string{bad})
		require.ErrorIs(t, err, errInvalidAssignment, bad)
	}
}
