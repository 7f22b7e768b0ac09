package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/shouni/go-utils/envutil"
	"gopkg.in/yaml.v3"
)

// デフォルト値の定義なのだ
const (
	DefaultImageModel     = "gemini-2.5-flash-image-preview"
	DefaultListenAddr     = ":8080"
	DefaultMaxUploadBytes = 10 * 1024 * 1024
	DefaultRateInterval   = 2 * time.Second
	DefaultRateBurst      = 1
	DefaultSessionTTL     = 30 * time.Minute
	DefaultPrefsDriver    = "memory"
	DefaultRedisPrefix    = "surgery-sim:prefs:"
	DefaultSQLitePath     = "data/preferences.db"
	DefaultOutputDir      = "output" // simulate コマンドの保存先なのだ
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "text"
	DefaultEnvFile        = ".env"
)

// Config はアプリケーション全体の設定を保持する構造体なのだ。
// 読み込み順は デフォルト値 → YAML ファイル → .env → 環境変数 で、後勝ちになるのだ。
type Config struct {
	GeminiAPIKey     string `yaml:"gemini_api_key"`
	GeminiImageModel string `yaml:"image_gemini_model"`

	ListenAddr     string        `yaml:"listen_addr"`
	MaxUploadBytes int64         `yaml:"max_upload_bytes"`
	RateInterval   time.Duration `yaml:"rate_interval"`
	RateBurst      int           `yaml:"rate_burst"`
	SessionTTL     time.Duration `yaml:"session_ttl"`

	Prefs PrefsConfig `yaml:"prefs"`
	Log   LogConfig   `yaml:"log"`
}

// PrefsConfig は設定保存先（APIキーや指示文の下書き）の設定なのだ。
type PrefsConfig struct {
	Driver      string `yaml:"driver"` // memory | redis | sqlite
	RedisAddr   string `yaml:"redis_addr"`
	RedisPrefix string `yaml:"redis_prefix"`
	SQLitePath  string `yaml:"sqlite_path"`
}

// LogConfig はログ出力の設定なのだ。
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text | json
}

// Default はデフォルト値だけを持つ Config を返すのだ。
func Default() *Config {
	return &Config{
		GeminiImageModel: DefaultImageModel,
		ListenAddr:       DefaultListenAddr,
		MaxUploadBytes:   DefaultMaxUploadBytes,
		RateInterval:     DefaultRateInterval,
		RateBurst:        DefaultRateBurst,
		SessionTTL:       DefaultSessionTTL,
		Prefs: PrefsConfig{
			Driver:      DefaultPrefsDriver,
			RedisPrefix: DefaultRedisPrefix,
			SQLitePath:  DefaultSQLitePath,
		},
		Log: LogConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}

// LoadConfig は設定を読み込んで返すのだ！
// path が空なら YAML ファイルは読まないのだ。.env は存在する場合だけ読み込むのだ。
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadYAML(path, cfg); err != nil {
			return nil, err
		}
	}

	if err := godotenv.Load(DefaultEnvFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf(".env の読み込みに失敗しました: %w", err)
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate は値の範囲をチェックするのだ。
func (c *Config) Validate() error {
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES は正の値である必要があります: %d", c.MaxUploadBytes)
	}
	if c.RateInterval < 0 {
		return fmt.Errorf("RATE_INTERVAL は 0 以上である必要があります: %s", c.RateInterval)
	}
	if c.RateBurst < 1 {
		return fmt.Errorf("RATE_BURST は 1 以上である必要があります: %d", c.RateBurst)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("LOG_FORMAT は text か json を指定してください: %q", c.Log.Format)
	}
	return nil
}

func loadYAML(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("設定ファイル '%s' の読み込みに失敗しました: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("設定ファイル '%s' の解析に失敗しました: %w", path, err)
	}
	return nil
}

// applyEnv は環境変数で上書きするのだ。未設定のキーは現在の値をそのまま使うのだ。
func applyEnv(cfg *Config) error {
	cfg.GeminiAPIKey = envutil.GetEnv("GEMINI_API_KEY", cfg.GeminiAPIKey)
	cfg.GeminiImageModel = envutil.GetEnv("IMAGE_GEMINI_MODEL", cfg.GeminiImageModel)
	cfg.ListenAddr = envutil.GetEnv("LISTEN_ADDR", cfg.ListenAddr)
	cfg.Prefs.Driver = envutil.GetEnv("PREFS_DRIVER", cfg.Prefs.Driver)
	cfg.Prefs.RedisAddr = envutil.GetEnv("REDIS_ADDR", cfg.Prefs.RedisAddr)
	cfg.Prefs.RedisPrefix = envutil.GetEnv("REDIS_PREFIX", cfg.Prefs.RedisPrefix)
	cfg.Prefs.SQLitePath = envutil.GetEnv("SQLITE_PATH", cfg.Prefs.SQLitePath)
	cfg.Log.Level = envutil.GetEnv("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = envutil.GetEnv("LOG_FORMAT", cfg.Log.Format)

	var err error
	if cfg.MaxUploadBytes, err = envInt64("MAX_UPLOAD_BYTES", cfg.MaxUploadBytes); err != nil {
		return err
	}
	if cfg.RateBurst, err = envInt("RATE_BURST", cfg.RateBurst); err != nil {
		return err
	}
	if cfg.RateInterval, err = envDuration("RATE_INTERVAL", cfg.RateInterval); err != nil {
		return err
	}
	if cfg.SessionTTL, err = envDuration("SESSION_TTL", cfg.SessionTTL); err != nil {
		return err
	}
	return nil
}

func envInt64(key string, fallback int64) (int64, error) {
	raw := envutil.GetEnv(key, "")
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("環境変数 %s の値が不正です: %w", key, err)
	}
	return v, nil
}

func envInt(key string, fallback int) (int, error) {
	v, err := envInt64(key, int64(fallback))
	return int(v), err
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := envutil.GetEnv(key, "")
	if raw == "" {
		return fallback, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("環境変数 %s の値が不正です: %w", key, err)
	}
	return v, nil
}
