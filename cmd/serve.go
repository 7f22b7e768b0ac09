package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/shouni/go-surgery-sim/internal/builder"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

var serveAddr string

// serveCmd は、ブラウザ UI と API を提供する HTTP サーバーを起動するサブコマンドなのだ。
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "ブラウザ UI を提供する HTTP サーバーを起動するのだ。",
	Long: `ビフォー写真と参考写真をアップロードして、合成されたアフター画像を比較スライダーで確認できる
Web UI を起動するのだ。SIGINT / SIGTERM を受け取るとグレースフルに停止するのだ。`,
	RunE: serveCommand,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "待ち受けアドレスなのだ（未指定なら LISTEN_ADDR）。")
}

// serveCommand は、serve サブコマンドの実行ロジック本体なのだ。
func serveCommand(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := appCfg
	if serveAddr != "" {
		cfg.ListenAddr = serveAddr
	}
	if cfg.GeminiAPIKey == "" {
		slog.Warn("GEMINI_API_KEY が未設定なのだ。ブラウザから API キーを入力する必要があるのだ")
	}

	appCtx, err := builder.NewAppContext(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := appCtx.Close(); err != nil {
			slog.Error("リソースの解放に失敗しました", "error", err)
		}
	}()

	srv, err := builder.BuildServer(appCtx)
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		slog.Info("HTTP サーバーを起動するのだ！",
			"addr", cfg.ListenAddr,
			"image_model", cfg.GeminiImageModel,
			"prefs_driver", cfg.Prefs.Driver)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP サーバーが異常終了しました: %w", err)
		}
		return nil
	})
	eg.Go(func() error {
		<-egCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		slog.Info("HTTP サーバーを停止するのだ")
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("HTTP サーバーの停止に失敗しました: %w", err)
		}
		return nil
	})

	return eg.Wait()
}
