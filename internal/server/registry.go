package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/shouni/go-surgery-sim/pkg/session"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

const (
	// SessionCookie はブラウザごとのセッション ID を保持する Cookie 名です。
	SessionCookie = "surgery_sim_session"

	controllerKey = "controller"
)

// ControllerFactory はセッション ID ごとに新しい Controller を生成します。
type ControllerFactory func(ctx context.Context, sessionID string) (*session.Controller, error)

// Registry はブラウザセッションごとの Controller を TTL 付きで保持します。
type Registry struct {
	mu      sync.Mutex
	cache   *cache.Cache
	ttl     time.Duration
	factory ControllerFactory
}

// NewRegistry は Registry を生成します。最後のアクセスから ttl が経過したセッションは破棄されます。
func NewRegistry(ttl time.Duration, factory ControllerFactory) *Registry {
	return &Registry{
		cache:   cache.New(ttl, 2*ttl),
		ttl:     ttl,
		factory: factory,
	}
}

// Get は ID に対応する Controller を返します。存在しなければ生成します。
func (r *Registry) Get(ctx context.Context, id string) (*session.Controller, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if v, found := r.cache.Get(id); found {
		ctrl := v.(*session.Controller)
		// アクセスのたびに有効期限を延長する
		r.cache.Set(id, ctrl, cache.DefaultExpiration)
		return ctrl, nil
	}

	ctrl, err := r.factory(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("セッションの生成に失敗しました: %w", err)
	}
	r.cache.Set(id, ctrl, cache.DefaultExpiration)
	slog.DebugContext(ctx, "新しいセッションを作成しました", "session_id", id)
	return ctrl, nil
}

// Len は保持しているセッション数です。
func (r *Registry) Len() int {
	return r.cache.ItemCount()
}

// Middleware は Cookie からセッションを解決し、Controller をコンテキストに格納します。
func (r *Registry) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := c.Cookie(SessionCookie)
		if err == nil {
			_, err = uuid.Parse(id)
		}
		if err != nil {
			id = uuid.NewString()
		}
		c.SetSameSite(http.SameSiteLaxMode)
		c.SetCookie(SessionCookie, id, int(r.ttl.Seconds()), "/", "", false, true)

		ctrl, err := r.Get(c.Request.Context(), id)
		if err != nil {
			slog.ErrorContext(c.Request.Context(), "セッションの解決に失敗しました", "error", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"message": "failed to initialize session"})
			return
		}
		c.Set(controllerKey, ctrl)
		c.Next()
	}
}

func controllerFrom(c *gin.Context) *session.Controller {
	return c.MustGet(controllerKey).(*session.Controller)
}
