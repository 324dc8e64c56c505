package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// t.Setenv と t.Chdir を使うため、このファイルのテストは並列に実行しない。

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load()でエラーが発生: %v", err)
	}

	if cfg.API.BaseURL != "http://localhost:1337" {
		t.Errorf("API.BaseURL = %q, want %q", cfg.API.BaseURL, "http://localhost:1337")
	}
	if cfg.API.Timeout != 30*time.Second {
		t.Errorf("API.Timeout = %v, want %v", cfg.API.Timeout, 30*time.Second)
	}
	if cfg.Session.Backend != SessionFile {
		t.Errorf("Session.Backend = %q, want %q", cfg.Session.Backend, SessionFile)
	}
	if cfg.Session.Path == "" {
		t.Error("Session.Path が空であってはならない")
	}
	if cfg.Output.Format != FormatJSON {
		t.Errorf("Output.Format = %q, want %q", cfg.Output.Format, FormatJSON)
	}
	if got := cfg.IdentityURL(); got != "http://localhost:1337" {
		t.Errorf("IdentityURL() = %q, want %q", got, "http://localhost:1337")
	}
}

func TestLoadFile(t *testing.T) {
	t.Chdir(t.TempDir())

	path := filepath.Join(t.TempDir(), "travelgate.yaml")
	content := `
api:
  base_url: https://cms.example.com
  timeout: 5s
  rate_limit:
    rps: 2.5
    burst: 3
identity:
  url: https://id.example.com
  anon_key: anon
session:
  backend: redis
  key: alice
  ttl: 1h
output:
  format: yaml
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("設定ファイルの作成に失敗: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load()でエラーが発生: %v", err)
	}

	if cfg.API.BaseURL != "https://cms.example.com" {
		t.Errorf("API.BaseURL = %q", cfg.API.BaseURL)
	}
	if cfg.API.Timeout != 5*time.Second {
		t.Errorf("API.Timeout = %v, want %v", cfg.API.Timeout, 5*time.Second)
	}
	if want := (RateLimitConfig{RPS: 2.5, Burst: 3}); cfg.API.RateLimit != want {
		t.Errorf("API.RateLimit = %+v, want %+v", cfg.API.RateLimit, want)
	}
	if got := cfg.IdentityURL(); got != "https://id.example.com" {
		t.Errorf("IdentityURL() = %q", got)
	}
	if cfg.Identity.AnonKey != "anon" {
		t.Errorf("Identity.AnonKey = %q, want %q", cfg.Identity.AnonKey, "anon")
	}
	if cfg.Session.Backend != SessionRedis {
		t.Errorf("Session.Backend = %q, want %q", cfg.Session.Backend, SessionRedis)
	}
	if cfg.Session.Key != "alice" {
		t.Errorf("Session.Key = %q, want %q", cfg.Session.Key, "alice")
	}
	if cfg.Session.TTL != time.Hour {
		t.Errorf("Session.TTL = %v, want %v", cfg.Session.TTL, time.Hour)
	}
	if cfg.Output.Format != FormatYAML {
		t.Errorf("Output.Format = %q, want %q", cfg.Output.Format, FormatYAML)
	}
}

func TestLoadEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("HOME", t.TempDir())
	t.Setenv("TRAVELGATE_API_BASE_URL", "http://env.example.com")
	t.Setenv("TRAVELGATE_SESSION_BACKEND", "memory")

	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("TRAVELGATE_OUTPUT_FORMAT=yaml\n"), 0o600); err != nil {
		t.Fatalf(".envの作成に失敗: %v", err)
	}
	t.Cleanup(func() { os.Unsetenv("TRAVELGATE_OUTPUT_FORMAT") })

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load()でエラーが発生: %v", err)
	}

	if cfg.API.BaseURL != "http://env.example.com" {
		t.Errorf("API.BaseURL = %q, want %q", cfg.API.BaseURL, "http://env.example.com")
	}
	if cfg.Session.Backend != SessionMemory {
		t.Errorf("Session.Backend = %q, want %q", cfg.Session.Backend, SessionMemory)
	}
	if cfg.Output.Format != FormatYAML {
		t.Errorf(".envの値が反映されていない: Output.Format = %q", cfg.Output.Format)
	}
}

func TestLoadErrors(t *testing.T) {
	t.Chdir(t.TempDir())

	t.Run("指定した設定ファイルがない場合はエラーになること", func(t *testing.T) {
		if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
			t.Error("存在しない設定ファイルでエラーが返るべき")
		}
	})

	t.Run("不正なセッションの保存先はエラーになること", func(t *testing.T) {
		t.Setenv("TRAVELGATE_SESSION_BACKEND", "cookie")
		_, err := Load("")
		if err == nil || !strings.Contains(err.Error(), "session.backend") {
			t.Errorf("Load() error = %v, want session.backend を含むエラー", err)
		}
	})

	t.Run("不正な出力形式はエラーになること", func(t *testing.T) {
		t.Setenv("TRAVELGATE_OUTPUT_FORMAT", "xml")
		_, err := Load("")
		if err == nil || !strings.Contains(err.Error(), "output.format") {
			t.Errorf("Load() error = %v, want output.format を含むエラー", err)
		}
	})
}
