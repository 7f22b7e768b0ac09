package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/shouni/go-surgery-sim/internal/config"

	clibase "github.com/shouni/go-cli-base"
	"github.com/spf13/cobra"
)

// AppOptions は CLI フラグから渡される実行時のパラメータなのだ。
type AppOptions struct {
	ConfigFile string // --config-file: YAML 設定ファイル
	ImageModel string // --image-model: 画像合成用の Gemini モデル
}

var (
	opts AppOptions
	// appCfg は preRunAppE で読み込んだ設定なのだ。
	appCfg *config.Config
)

// addAppFlags は、アプリケーション全般に適用されるグローバルフラグを定義するのだ。
func addAppFlags(rootCmd *cobra.Command) {
	rootCmd.PersistentFlags().StringVar(&opts.ConfigFile, "config-file", "", "YAML 設定ファイルのパスなのだ。環境変数が優先されるのだ。")
	rootCmd.PersistentFlags().StringVar(&opts.ImageModel, "image-model", config.DefaultImageModel, "使用する Gemini 画像モデル名なのだ。")
}

// preRunAppE は、コマンド実行前に設定を読み込み、ロガーを準備するのだ。
func preRunAppE(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(opts.ConfigFile)
	if err != nil {
		return fmt.Errorf("設定の読み込みに失敗しました: %w", err)
	}
	// フラグで明示された場合だけ設定を上書きするのだ
	if cmd.Flags().Changed("image-model") {
		cfg.GeminiImageModel = opts.ImageModel
	}

	slog.SetDefault(config.NewLogger(cfg.Log, os.Stderr))
	appCfg = cfg
	return nil
}

// Execute は、アプリケーションのメインエントリポイントなのだ。
// main.go から呼び出されて、cobra のコマンドライン解析を開始するのだよ。
func Execute() {
	clibase.Execute(
		"surgery-sim",
		addAppFlags,
		preRunAppE,
		serveCmd,
		simulateCmd,
	)
}
