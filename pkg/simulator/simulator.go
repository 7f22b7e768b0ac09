package simulator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shouni/go-surgery-sim/pkg/domain"
	"github.com/shouni/go-surgery-sim/pkg/encoding"
	"github.com/shouni/go-surgery-sim/pkg/prompt"

	"github.com/shouni/gemini-image-kit/generator"
	"github.com/shouni/go-gemini-client/gemini"
	"golang.org/x/time/rate"
	"google.golang.org/genai"
)

// DefaultImageModel は画像合成に使う Gemini モデルです。
const DefaultImageModel = "gemini-2.5-flash-image-preview"

// 応答に要求するモダリティです。
var responseModalities = []string{"IMAGE", "TEXT"}

// errLocalRateLimit はローカルの流量制限で送信を見送ったことを示します。
var errLocalRateLimit = errors.New("local request rate exceeded (429)")

// Config は Simulator の設定です。
type Config struct {
	Model              string
	DefaultInstruction string
	// DefaultCredential はリクエストに API キーが含まれない場合に使うサーバー側のキーです。
	DefaultCredential string
	// Limiter が nil の場合は流量制限を行いません。
	Limiter *rate.Limiter
}

// Simulator は2枚の画像と指示文を1回のリクエストにまとめ、外部サービスへ送信します。
type Simulator struct {
	clients            ClientFactory
	model              string
	defaultInstruction string
	defaultCredential  string
	limiter            *rate.Limiter
}

// New は Simulator を生成します。
func New(clients ClientFactory, cfg Config) (*Simulator, error) {
	if clients == nil {
		return nil, fmt.Errorf("ClientFactory は必須です")
	}
	model := cfg.Model
	if model == "" {
		model = DefaultImageModel
	}
	instruction := cfg.DefaultInstruction
	if strings.TrimSpace(instruction) == "" {
		instruction = prompt.DefaultInstruction()
	}
	limiter := cfg.Limiter
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 0)
	}

	return &Simulator{
		clients:            clients,
		model:              model,
		defaultInstruction: instruction,
		defaultCredential:  cfg.DefaultCredential,
		limiter:            limiter,
	}, nil
}

// DefaultInstruction は送信時に空の指示文を置き換える既定文です。
func (s *Simulator) DefaultInstruction() string {
	return s.defaultInstruction
}

// Simulate は画像をエンコードし、1回だけ外部サービスを呼び出して合成画像を返します。
// 失敗時は常に *domain.SimulationError を返します。
func (s *Simulator) Simulate(ctx context.Context, req domain.SimulationRequest) (domain.EncodedImage, error) {
	if req.Before == nil || req.Reference == nil {
		return domain.EncodedImage{}, domain.NewValidationError(domain.MsgMissingImages)
	}
	credential := strings.TrimSpace(req.Credential)
	if credential == "" {
		credential = s.defaultCredential
	}
	if credential == "" {
		return domain.EncodedImage{}, domain.NewValidationError(domain.MsgMissingCredential)
	}

	before, reference, err := encoding.EncodePair(ctx, req.Before, req.Reference)
	if err != nil {
		return domain.EncodedImage{}, Classify(err)
	}

	instruction := prompt.Resolve(req.Instruction, s.defaultInstruction)
	parts, err := buildParts(before, reference, instruction)
	if err != nil {
		return domain.EncodedImage{}, domain.NewEncodingError("payload", err)
	}

	if !s.limiter.Allow() {
		slog.WarnContext(ctx, "流量制限により送信を見送りました", "model", s.model)
		return domain.EncodedImage{}, domain.NewRateLimitedError(errLocalRateLimit)
	}

	client, err := s.clients.Client(ctx, credential)
	if err != nil {
		return domain.EncodedImage{}, domain.NewServiceError(err)
	}
	core, err := generator.NewGeminiImageCore(newGenerativeModel(client), inlineAssets{}, inlineAssets{}, nil, 0, false)
	if err != nil {
		return domain.EncodedImage{}, domain.NewServiceError(err)
	}

	start := time.Now()
	slog.InfoContext(ctx, "Gemini へ合成リクエストを送信します",
		slog.String("model", s.model),
		slog.Int("before_b64_len", len(before.Data)),
		slog.Int("reference_b64_len", len(reference.Data)),
		slog.Int("instruction_len", len(instruction)),
	)

	resp, err := core.ExecuteRequest(ctx, s.model, parts, gemini.GenerateOptions{})
	if err != nil {
		var genErr *generationError
		if !errors.As(err, &genErr) {
			// 呼び出しは成功したが応答に画像がない
			slog.WarnContext(ctx, "応答に画像が含まれていませんでした",
				slog.Duration("duration", time.Since(start)),
				slog.Any("reason", err),
			)
			return domain.EncodedImage{}, domain.NewNoImageError()
		}
		classified := Classify(genErr.err)
		slog.ErrorContext(ctx, "Gemini の呼び出しに失敗しました",
			slog.String("kind", classified.Kind.String()),
			slog.Duration("duration", time.Since(start)),
			slog.Any("error", genErr.err),
		)
		return domain.EncodedImage{}, classified
	}

	img, err := ExtractImage(resp)
	if err != nil {
		slog.WarnContext(ctx, "応答の画像が空でした", slog.Duration("duration", time.Since(start)))
		return domain.EncodedImage{}, Classify(err)
	}

	slog.InfoContext(ctx, "合成画像を受信しました",
		slog.String("mime_type", img.MediaType),
		slog.Duration("duration", time.Since(start)),
	)
	return img, nil
}

// buildParts は [before 画像, reference 画像, 指示文] の順でパートを組み立てます。
func buildParts(before, reference domain.EncodedImage, instruction string) ([]*genai.Part, error) {
	beforeBytes, err := before.Bytes()
	if err != nil {
		return nil, err
	}
	referenceBytes, err := reference.Bytes()
	if err != nil {
		return nil, err
	}

	return []*genai.Part{
		{InlineData: &genai.Blob{MIMEType: before.MediaType, Data: beforeBytes}},
		{InlineData: &genai.Blob{MIMEType: reference.MediaType, Data: referenceBytes}},
		genai.NewPartFromText(instruction),
	}, nil
}
