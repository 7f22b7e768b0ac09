package builder

import (
	"context"
	"errors"
	"fmt"

	"github.com/shouni/go-surgery-sim/internal/config"
	"github.com/shouni/go-surgery-sim/pkg/prefs"
	"github.com/shouni/go-surgery-sim/pkg/simulator"
)

// AppContext は、アプリケーション実行に必要な共通コンテキストを保持する
// これを各Build関数に渡すことで、依存関係の注入を簡素化します。
type AppContext struct {
	Config    *config.Config       // Configは、デフォルト値・設定ファイル・環境変数から読み込まれた設定です。
	Prefs     prefs.Store          // Prefsは、APIキーや指示文の下書きを保存する設定ストアです。
	Simulator *simulator.Simulator // Simulatorは、全セッションで共有する外部呼び出しアダプターです。
}

// NewAppContext は設定から共有コンポーネントを初期化して AppContext を生成する
func NewAppContext(ctx context.Context, cfg *config.Config) (*AppContext, error) {
	store, err := InitializePrefsStore(cfg)
	if err != nil {
		return nil, err
	}

	sim, err := InitializeSimulator(cfg)
	if err != nil {
		return nil, errors.Join(err, store.Close())
	}

	return &AppContext{
		Config:    cfg,
		Prefs:     store,
		Simulator: sim,
	}, nil
}

// Close は保持しているリソースを解放する
func (a *AppContext) Close() error {
	if a.Prefs == nil {
		return nil
	}
	if err := a.Prefs.Close(); err != nil {
		return fmt.Errorf("設定ストアのクローズに失敗しました: %w", err)
	}
	return nil
}
