package builder

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shouni/go-surgery-sim/internal/config"
	"github.com/shouni/go-surgery-sim/internal/server"
	"github.com/shouni/go-surgery-sim/pkg/domain"
	"github.com/shouni/go-surgery-sim/pkg/prefs"
	"github.com/shouni/go-surgery-sim/pkg/prompt"
	"github.com/shouni/go-surgery-sim/pkg/session"
	"github.com/shouni/go-surgery-sim/pkg/simulator"

	"golang.org/x/time/rate"
)

// BuildServer はブラウザセッションごとに Controller を割り当てる HTTP サーバーを構築します。
func BuildServer(appCtx *AppContext) (*server.Server, error) {
	cfg := appCtx.Config

	registry := server.NewRegistry(cfg.SessionTTL, func(ctx context.Context, sessionID string) (*session.Controller, error) {
		// 設定ストアはセッション ID で名前空間を分ける
		return BuildController(ctx, appCtx, prefs.Scoped(appCtx.Prefs, sessionID), nil)
	})

	srv, err := server.New(server.Options{
		Sessions:       registry,
		MaxUploadBytes: cfg.MaxUploadBytes,
		Debug:          cfg.Log.Level == "debug",
	})
	if err != nil {
		return nil, fmt.Errorf("HTTPサーバーの初期化に失敗しました: %w", err)
	}
	return srv, nil
}

// BuildController は共有の Simulator を使う Controller を構築します。
func BuildController(ctx context.Context, appCtx *AppContext, store prefs.Store, onFailure session.FailureNotifier) (*session.Controller, error) {
	ctrl, err := session.New(ctx, appCtx.Simulator, session.Options{
		Store:                store,
		DefaultInstruction:   appCtx.Simulator.DefaultInstruction(),
		MaxUploadBytes:       appCtx.Config.MaxUploadBytes,
		MaxInstructionLength: prompt.MaxInstructionLength,
		OnFailure:            onFailure,
	})
	if err != nil {
		return nil, fmt.Errorf("Controllerの初期化に失敗しました: %w", err)
	}
	return ctrl, nil
}

// InitializePrefsStore は設定に従って設定ストアを初期化します。
func InitializePrefsStore(cfg *config.Config) (prefs.Store, error) {
	storeCfg := prefs.Config{
		Driver: cfg.Prefs.Driver,
		TTL:    cfg.SessionTTL,
		Redis: prefs.RedisConfig{
			Addr:   cfg.Prefs.RedisAddr,
			Prefix: cfg.Prefs.RedisPrefix,
		},
		SQLitePath: cfg.Prefs.SQLitePath,
	}

	store, err := prefs.New(storeCfg, prefs.Dependencies{})
	if err != nil {
		return nil, fmt.Errorf("設定ストアの初期化に失敗しました: %w", err)
	}
	slog.Info("設定ストアを初期化しました", "driver", storeCfg.Driver, "ttl", storeCfg.TTL)
	return store, nil
}

// InitializeSimulator は Gemini クライアントのキャッシュと流量制限を備えた Simulator を初期化します。
func InitializeSimulator(cfg *config.Config) (*simulator.Simulator, error) {
	limit := rate.Inf
	if cfg.RateInterval > 0 {
		limit = rate.Every(cfg.RateInterval)
	}

	sim, err := simulator.New(simulator.NewCachedClientFactory(nil), simulator.Config{
		Model:             cfg.GeminiImageModel,
		DefaultCredential: cfg.GeminiAPIKey,
		Limiter:           rate.NewLimiter(limit, cfg.RateBurst),
	})
	if err != nil {
		return nil, fmt.Errorf("Simulatorの初期化に失敗しました: %w", err)
	}
	return sim, nil
}

// LogFailure はシミュレーション失敗をログに残す FailureNotifier です。
func LogFailure(ctx context.Context, err *domain.SimulationError) {
	slog.ErrorContext(ctx, "Simulation Failed", "kind", err.Kind.String(), "message", err.Message)
}
