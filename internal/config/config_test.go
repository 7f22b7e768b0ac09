package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// clearEnv はテスト中に外部の環境変数が混ざらないようにするのだ。
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"GEMINI_API_KEY", "IMAGE_GEMINI_MODEL", "LISTEN_ADDR", "MAX_UPLOAD_BYTES",
		"RATE_INTERVAL", "RATE_BURST", "SESSION_TTL", "PREFS_DRIVER", "REDIS_ADDR",
		"REDIS_PREFIX", "SQLITE_PATH", "LOG_LEVEL", "LOG_FORMAT",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
	// .env を拾わないように空のディレクトリで実行するのだ
	t.Chdir(t.TempDir())
}

func TestLoadConfig_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("設定の読み込みに失敗しました: %v", err)
	}
	if cfg.GeminiImageModel != DefaultImageModel {
		t.Errorf("モデル名が想定外です: %s", cfg.GeminiImageModel)
	}
	if cfg.MaxUploadBytes != 10*1024*1024 {
		t.Errorf("アップロード上限が想定外です: %d", cfg.MaxUploadBytes)
	}
	if cfg.Prefs.Driver != "memory" {
		t.Errorf("保存先ドライバーが想定外です: %s", cfg.Prefs.Driver)
	}
}

func TestLoadConfig_Layering(t *testing.T) {
	clearEnv(t)
	dir, _ := os.Getwd()

	yamlPath := filepath.Join(dir, "config.yaml")
	yamlBody := `
listen_addr: ":9000"
rate_interval: 5s
prefs:
  driver: sqlite
  sqlite_path: /tmp/prefs.db
log:
  format: json
`
	if err := os.WriteFile(yamlPath, []byte(yamlBody), 0o644); err != nil {
		t.Fatalf("YAML の書き込みに失敗しました: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("GEMINI_API_KEY=from-dotenv\nLISTEN_ADDR=:9100\n"), 0o644); err != nil {
		t.Fatalf(".env の書き込みに失敗しました: %v", err)
	}
	t.Setenv("LISTEN_ADDR", ":9200")

	cfg, err := LoadConfig(yamlPath)
	if err != nil {
		t.Fatalf("設定の読み込みに失敗しました: %v", err)
	}

	t.Run("YAML の値が反映されること", func(t *testing.T) {
		if cfg.RateInterval != 5*time.Second {
			t.Errorf("RateInterval が想定外です: %s", cfg.RateInterval)
		}
		if cfg.Prefs.Driver != "sqlite" || cfg.Prefs.SQLitePath != "/tmp/prefs.db" {
			t.Errorf("Prefs が想定外です: %+v", cfg.Prefs)
		}
		if cfg.Log.Format != "json" {
			t.Errorf("Log.Format が想定外です: %s", cfg.Log.Format)
		}
	})

	t.Run(".env の値が反映されること", func(t *testing.T) {
		if cfg.GeminiAPIKey != "from-dotenv" {
			t.Errorf("GeminiAPIKey が想定外です: %s", cfg.GeminiAPIKey)
		}
	})

	t.Run("環境変数が最優先になること", func(t *testing.T) {
		if cfg.ListenAddr != ":9200" {
			t.Errorf("ListenAddr が想定外です: %s", cfg.ListenAddr)
		}
	})
}

func TestLoadConfig_InvalidValues(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"数値でない上限", "MAX_UPLOAD_BYTES", "ten"},
		{"負の上限", "MAX_UPLOAD_BYTES", "-1"},
		{"不正な間隔", "RATE_INTERVAL", "soon"},
		{"バースト 0", "RATE_BURST", "0"},
		{"不明なログ形式", "LOG_FORMAT", "xml"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.val)
			if _, err := LoadConfig(""); err == nil {
				t.Errorf("%s=%s でエラーにならなかったのだ", tt.key, tt.val)
			}
		})
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	clearEnv(t)
	if _, err := LoadConfig("does-not-exist.yaml"); err == nil {
		t.Error("存在しない設定ファイルでエラーにならなかったのだ")
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Level: "warn", Format: "json"}, &buf)

	logger.Info("表示されないのだ")
	logger.Warn("表示されるのだ", "key", "value")

	out := buf.String()
	if strings.Contains(out, "表示されないのだ") {
		t.Error("warn 未満のログが出力されています")
	}
	if !strings.Contains(out, `"key":"value"`) {
		t.Errorf("JSON 形式で出力されていません: %s", out)
	}
}
