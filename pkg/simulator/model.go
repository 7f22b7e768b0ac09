package simulator

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/shouni/go-gemini-client/gemini"
	"google.golang.org/genai"
)

// errFileAPIUnsupported は File API やリモート画像を使わないことを示します。
// 画像は常にインラインで送信します。
var errFileAPIUnsupported = errors.New("file API and remote assets are not used; images are sent inline")

// generationError は外部呼び出しそのものの失敗を包みます。
// 応答の検証失敗（画像なし）と区別するために使います。
type generationError struct {
	err error
}

func (e *generationError) Error() string { return e.err.Error() }
func (e *generationError) Unwrap() error { return e.err }

// generativeModel は ContentGenerator を gemini.GenerativeModel として扱うアダプターです。
// GeminiImageCore から呼ばれ、1リクエストにつき GenerateContent をちょうど1回呼びます。
// リトライは行いません。
type generativeModel struct {
	gen ContentGenerator
}

var _ gemini.GenerativeModel = (*generativeModel)(nil)

func newGenerativeModel(gen ContentGenerator) *generativeModel {
	return &generativeModel{gen: gen}
}

// IsVertexAI は常に false です。クライアントは Gemini API バックエンドで生成します。
func (m *generativeModel) IsVertexAI() bool {
	return false
}

func (m *generativeModel) GenerateContent(ctx context.Context, model string, prompt string) (*gemini.Response, error) {
	return m.GenerateWithParts(ctx, model, []*genai.Part{genai.NewPartFromText(prompt)}, gemini.GenerateOptions{})
}

// GenerateWithParts はパートの順序を保ったまま1つのユーザー Content にまとめて送信します。
func (m *generativeModel) GenerateWithParts(ctx context.Context, model string, parts []*genai.Part, opts gemini.GenerateOptions) (*gemini.Response, error) {
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	resp, err := m.gen.GenerateContent(ctx, model, contents, toGenerateConfig(opts))
	if err != nil {
		return nil, &generationError{err: err}
	}
	if resp == nil {
		return nil, &generationError{err: fmt.Errorf("empty response from Gemini")}
	}
	return &gemini.Response{RawResponse: resp}, nil
}

func (m *generativeModel) UploadFile(_ context.Context, _ io.Reader, _, _ string) (string, string, error) {
	return "", "", errFileAPIUnsupported
}

func (m *generativeModel) GetFile(_ context.Context, _ string) (*genai.File, error) {
	return nil, errFileAPIUnsupported
}

func (m *generativeModel) DeleteFile(_ context.Context, _ string) error {
	return errFileAPIUnsupported
}

// toGenerateConfig は画像とテキストの両モダリティを要求する設定を組み立てます。
func toGenerateConfig(opts gemini.GenerateOptions) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{
		ResponseModalities: responseModalities,
		SafetySettings:     opts.SafetySettings,
	}
	if opts.SystemPrompt != "" {
		cfg.SystemInstruction = genai.NewContentFromText(opts.SystemPrompt, genai.RoleUser)
	}
	if opts.Seed != nil {
		seed := int32(*opts.Seed)
		cfg.Seed = &seed
	}
	return cfg
}

// inlineAssets は GeminiImageCore に渡すリーダーとダウンローダーです。
// 画像はアップロード済みのバイト列をインラインで送るため、URI からの取得は拒否します。
type inlineAssets struct{}

func (inlineAssets) Open(_ context.Context, uri string) (io.ReadCloser, error) {
	return nil, fmt.Errorf("%w: %s", errFileAPIUnsupported, uri)
}

func (inlineAssets) FetchStream(_ context.Context, url string, _ func(io.Reader) error) error {
	return fmt.Errorf("%w: %s", errFileAPIUnsupported, url)
}

func (inlineAssets) GetStream(_ context.Context, url string) (io.ReadCloser, error) {
	return nil, fmt.Errorf("%w: %s", errFileAPIUnsupported, url)
}
