package simulator

import (
	"encoding/base64"
	"errors"
	"net/http"
	"strings"

	"github.com/shouni/go-surgery-sim/pkg/domain"

	"github.com/gabriel-vasile/mimetype"
	"github.com/shouni/gemini-image-kit/ports"
	"google.golang.org/genai"
)

// ExtractImage は GeminiImageCore が取り出した画像を送信用のエンコード済み画像に変換します。
// データが空の場合はサービスエラーです。MIME タイプが欠けていればバイト列から判定します。
func ExtractImage(resp *ports.ImageResponse) (domain.EncodedImage, error) {
	if resp == nil || len(resp.Data) == 0 {
		return domain.EncodedImage{}, domain.NewNoImageError()
	}
	mediaType := resp.MimeType
	if mediaType == "" {
		mediaType = mimetype.Detect(resp.Data).String()
	}
	return domain.EncodedImage{
		MediaType: mediaType,
		Data:      base64.StdEncoding.EncodeToString(resp.Data),
	}, nil
}

// Classify は外部呼び出しのエラーを分類します。
// HTTP 429 もしくは RESOURCE_EXHAUSTED はレートリミット、それ以外はサービスエラーです。
func Classify(err error) *domain.SimulationError {
	if err == nil {
		return nil
	}
	var se *domain.SimulationError
	if errors.As(err, &se) {
		return se
	}
	if isRateLimited(err) {
		return domain.NewRateLimitedError(err)
	}
	return domain.NewServiceError(err)
}

func isRateLimited(err error) bool {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) && apiErrorRateLimited(apiErr) {
		return true
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil && apiErrorRateLimited(*apiErrPtr) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "429") || strings.Contains(msg, "RESOURCE_EXHAUSTED")
}

func apiErrorRateLimited(e genai.APIError) bool {
	return e.Code == http.StatusTooManyRequests || e.Status == "RESOURCE_EXHAUSTED"
}
