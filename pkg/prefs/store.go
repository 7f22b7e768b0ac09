// Package prefs は API キーや指示文の下書きといったユーザー設定を保持する
// 小さなキー・バリューストアを提供します。
//
// ここに保存される値は利便性のためのキャッシュであり、セキュリティ境界ではありません。
// 保存先（メモリ、Redis、SQLite）にアクセスできる人は誰でも値を読めます。
// API キーは外部生成サービス以外のサーバーへは送信されません。
package prefs

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// 固定のキー名です。
const (
	KeyCredential       = "gemini_api_key"
	KeyInstructionDraft = "instruction_draft"
)

// DefaultTTL は TTL 未指定時の有効期限です。API キーを無期限に残さないためのものです。
const DefaultTTL = 24 * time.Hour

// Driver identifiers.
const (
	DriverMemory = "memory"
	DriverRedis  = "redis"
	DriverSQLite = "sqlite"
)

// Store はキー・バリュー形式の永続化インターフェースです。
type Store interface {
	// Get は値を返します。存在しない場合は ok=false です。
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// RedisConfig は redis ドライバの設定です。
type RedisConfig struct {
	Addr     string
	Username string
	Password string
	DB       int
	Prefix   string
}

// Config はストアの構成です。
type Config struct {
	Driver string
	// TTL は保存した値の有効期限です。0 以下なら DefaultTTL を使います。
	TTL   time.Duration
	Redis RedisConfig
	// SQLitePath は sqlite ドライバのデータベースファイルです。
	SQLitePath string
}

func (c Config) ttl() time.Duration {
	return resolveTTL(c.TTL)
}

func resolveTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return DefaultTTL
	}
	return ttl
}

// Dependencies はドライバが外部から受け取るハンドルです。
type Dependencies struct {
	SQLiteDB *gorm.DB
}

// New は設定に応じたストアを生成します。ドライバ未指定ならメモリです。
func New(cfg Config, deps Dependencies) (Store, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = DriverMemory
	}

	switch driver {
	case DriverMemory:
		return newMemory(cfg.ttl()), nil
	case DriverRedis:
		return NewRedis(cfg)
	case DriverSQLite:
		db := deps.SQLiteDB
		if db == nil {
			opened, err := OpenSQLite(cfg.SQLitePath)
			if err != nil {
				return nil, err
			}
			db = opened
		}
		return NewSQLite(db, cfg.TTL)
	default:
		return nil, fmt.Errorf("unsupported preference store driver: %s", driver)
	}
}

// scopedStore はキーに名前空間を付与するラッパーです。
type scopedStore struct {
	inner     Store
	namespace string
}

// Scoped はブラウザプロファイル（セッション）ごとにキーを分離したストアを返します。
// Close は内側のストアを閉じません。
func Scoped(inner Store, namespace string) Store {
	if namespace == "" {
		return inner
	}
	return &scopedStore{inner: inner, namespace: namespace}
}

func (s *scopedStore) key(k string) string {
	return s.namespace + ":" + k
}

func (s *scopedStore) Get(ctx context.Context, key string) (string, bool, error) {
	return s.inner.Get(ctx, s.key(key))
}

func (s *scopedStore) Set(ctx context.Context, key, value string) error {
	return s.inner.Set(ctx, s.key(key), value)
}

func (s *scopedStore) Delete(ctx context.Context, key string) error {
	return s.inner.Delete(ctx, s.key(key))
}

func (s *scopedStore) Close() error {
	return nil
}
