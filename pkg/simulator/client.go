package simulator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"
	"google.golang.org/genai"
)

const (
	defaultClientTTL      = 30 * time.Minute
	clientCleanupInterval = 60 * time.Minute
)

// ContentGenerator は genai.Models.GenerateContent と同じ形のインターフェースです。
// テストではフェイク実装に差し替えます。
type ContentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// ClientFactory は API キーごとに ContentGenerator を提供します。
type ClientFactory interface {
	Client(ctx context.Context, credential string) (ContentGenerator, error)
}

// NewClientFunc は API キーからクライアントを生成する関数です。
type NewClientFunc func(ctx context.Context, credential string) (ContentGenerator, error)

// CachedClientFactory は生成したクライアントを go-cache で使い回すファクトリです。
// キャッシュのキーには API キーそのものではなくハッシュ値を使います。
type CachedClientFactory struct {
	cache     *cache.Cache
	newClient NewClientFunc
	group     singleflight.Group
}

// NewCachedClientFactory は CachedClientFactory を生成します。newClient が nil なら genai を使います。
func NewCachedClientFactory(newClient NewClientFunc) *CachedClientFactory {
	if newClient == nil {
		newClient = NewGenAIClient
	}
	return &CachedClientFactory{
		cache:     cache.New(defaultClientTTL, clientCleanupInterval),
		newClient: newClient,
	}
}

// Client はキャッシュ済みのクライアントを返し、なければ生成して保存します。
func (f *CachedClientFactory) Client(ctx context.Context, credential string) (ContentGenerator, error) {
	key := credentialKey(credential)
	if v, ok := f.cache.Get(key); ok {
		if c, ok := v.(ContentGenerator); ok {
			return c, nil
		}
	}

	// 同じキーの初回生成が並行した場合は1回にまとめる
	v, err, _ := f.group.Do(key, func() (interface{}, error) {
		if v, ok := f.cache.Get(key); ok {
			return v, nil
		}
		c, err := f.newClient(ctx, credential)
		if err != nil {
			return nil, err
		}
		f.cache.Set(key, c, cache.DefaultExpiration)
		return c, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(ContentGenerator), nil
}

// NewGenAIClient は Gemini API バックエンドの genai クライアントを生成します。
func NewGenAIClient(ctx context.Context, credential string) (ContentGenerator, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  credential,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("genai クライアントの初期化に失敗しました: %w", err)
	}
	return client.Models, nil
}

func credentialKey(credential string) string {
	sum := sha256.Sum256([]byte(credential))
	return hex.EncodeToString(sum[:])
}
