package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/shouni/go-surgery-sim/internal/builder"
	"github.com/shouni/go-surgery-sim/internal/config"
	"github.com/shouni/go-surgery-sim/pkg/domain"
	"github.com/shouni/go-surgery-sim/pkg/encoding"

	"github.com/shouni/go-utils/urlpath"
	"github.com/spf13/cobra"
)

// errSimulationFailed は失敗内容を表示済みであることを示すのだ。
var errSimulationFailed = errors.New("シミュレーションに失敗したのだ")

// SimulateOptions は simulate サブコマンドのフラグなのだ。
type SimulateOptions struct {
	Before    string // --before
	Reference string // --reference
	Prompt    string // --prompt
	OutputDir string // --output
	APIKey    string // --api-key
}

var simOpts SimulateOptions

// simulateCmd は、ローカルの2枚の写真からアフター画像を1回だけ生成するサブコマンドなのだ。
var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "ローカルの写真2枚からアフター画像を生成して保存するのだ。",
	Long: `ビフォー写真と参考写真、任意の指示文を Gemini に送り、合成されたアフター画像を保存するのだ。
指示文を省略すると既定の指示文が使われるのだ。`,
	RunE: simulateCommand,
}

func init() {
	simulateCmd.Flags().StringVarP(&simOpts.Before, "before", "b", "", "ビフォー写真のパス（JPEG/PNG、10MB まで）なのだ。")
	simulateCmd.Flags().StringVarP(&simOpts.Reference, "reference", "r", "", "参考写真のパス（JPEG/PNG、10MB まで）なのだ。")
	simulateCmd.Flags().StringVarP(&simOpts.Prompt, "prompt", "p", "", "指示文なのだ（300 文字まで）。")
	simulateCmd.Flags().StringVarP(&simOpts.OutputDir, "output", "o", config.DefaultOutputDir, "生成画像の保存先ディレクトリなのだ。")
	simulateCmd.Flags().StringVar(&simOpts.APIKey, "api-key", "", "Gemini API キーなのだ（この実行の間だけ使い、設定ストアには保存しないのだ。未指定なら保存済みのキーか GEMINI_API_KEY）。")
	_ = simulateCmd.MarkFlagRequired("before")
	_ = simulateCmd.MarkFlagRequired("reference")
}

// simulateCommand は、simulate サブコマンドの実行ロジック本体なのだ。
func simulateCommand(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := appCfg

	appCtx, err := builder.NewAppContext(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := appCtx.Close(); err != nil {
			slog.Error("リソースの解放に失敗しました", "error", err)
		}
	}()

	ctrl, err := builder.BuildController(ctx, appCtx, appCtx.Prefs, builder.LogFailure)
	if err != nil {
		return err
	}
	if err := applySessionOptions(ctx, ctrl, simOpts, cmd.Flags().Changed("prompt")); err != nil {
		return err
	}

	if err := selectFile(ctx, ctrl, domain.SlotBefore, simOpts.Before); err != nil {
		return err
	}
	if err := selectFile(ctx, ctrl, domain.SlotReference, simOpts.Reference); err != nil {
		return err
	}

	slog.Info("シミュレーションを実行するのだ！",
		"before", simOpts.Before,
		"reference", simOpts.Reference,
		"image_model", cfg.GeminiImageModel)

	res, err := ctrl.Submit(ctx)
	if err != nil {
		return fmt.Errorf("送信が拒否されたのだ: %w", err)
	}
	if res.Err != nil {
		fmt.Fprintf(os.Stderr, "Simulation Failed:\n%s\n", res.Err.Message)
		return fmt.Errorf("%w: %w", errSimulationFailed, res.Err)
	}

	outputPath, err := saveResult(simOpts.OutputDir, res.Image)
	if err != nil {
		return err
	}

	fmt.Println("\n" + strings.Repeat("✨", 25))
	fmt.Printf("🖼️  アフター画像を保存したのだ: %s\n", outputPath)
	fmt.Println(strings.Repeat("✨", 25))
	return nil
}

type sessionConfigurer interface {
	UseCredential(key string)
	SetInstruction(ctx context.Context, text string) (string, error)
}

// applySessionOptions はフラグの API キーと指示文を Controller に渡すのだ。
// API キーは共有の設定ストアに書き込まないのだ。
func applySessionOptions(ctx context.Context, ctrl sessionConfigurer, opts SimulateOptions, promptChanged bool) error {
	if key := strings.TrimSpace(opts.APIKey); key != "" {
		ctrl.UseCredential(key)
	}
	if promptChanged {
		if _, err := ctrl.SetInstruction(ctx, opts.Prompt); err != nil {
			return err
		}
	}
	return nil
}

type imageSelector interface {
	SelectImage(ctx context.Context, slot domain.Slot, src domain.ImageSource) error
}

func selectFile(ctx context.Context, ctrl imageSelector, slot domain.Slot, path string) error {
	src, err := domain.NewFileSource(path)
	if err != nil {
		return err
	}
	if err := ctrl.SelectImage(ctx, slot, src); err != nil {
		return fmt.Errorf("%s 画像 '%s' を選択できなかったのだ: %w", slot, path, err)
	}
	return nil
}

// saveResult は MIME タイプから拡張子を決めて画像を保存するのだ。
func saveResult(outputDir string, img domain.EncodedImage) (string, error) {
	resp, err := encoding.ToImageResponse(img)
	if err != nil {
		return "", fmt.Errorf("生成画像の変換に失敗したのだ: %w", err)
	}

	outputName := "ai-simulation-result" + encoding.Extension(resp.MimeType)
	outputPath, err := urlpath.ResolvePath(outputDir, outputName)
	if err != nil {
		return "", fmt.Errorf("出力パスの解決に失敗したのだ: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return "", fmt.Errorf("出力ディレクトリの作成に失敗したのだ: %w", err)
	}
	if err := os.WriteFile(outputPath, resp.Data, 0644); err != nil {
		slog.Error("Failed to save image", "path", outputPath, "error", err)
		return "", fmt.Errorf("画像の保存に失敗したのだ: %w", err)
	}

	slog.Info("Simulation completed successfully", slog.String("output_path", outputPath))
	return outputPath, nil
}
