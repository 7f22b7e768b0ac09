package encoding

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"strings"

	"github.com/shouni/go-surgery-sim/pkg/domain"

	"github.com/gabriel-vasile/mimetype"
	"github.com/shouni/gemini-image-kit/ports"
	"golang.org/x/sync/errgroup"
)

// DefaultMaxUploadBytes は選択可能なファイルサイズの上限 (10 MiB) です。
const DefaultMaxUploadBytes int64 = 10 * 1024 * 1024

// allowedMediaTypes は選択可能な画像形式です。
var allowedMediaTypes = map[string]bool{
	domain.MediaTypeJPEG: true,
	domain.MediaTypePNG:  true,
}

// Encode はファイルを読み込み、base64 文字列と MIME タイプの組に変換します。
// 読み込みに失敗した場合は KindEncoding の SimulationError を返します。
func Encode(ctx context.Context, src domain.ImageSource) (domain.EncodedImage, error) {
	if src == nil {
		return domain.EncodedImage{}, domain.NewEncodingError("(no file)", nil)
	}
	if err := ctx.Err(); err != nil {
		return domain.EncodedImage{}, domain.NewEncodingError(src.Name(), err)
	}

	rc, err := src.Open()
	if err != nil {
		return domain.EncodedImage{}, domain.NewEncodingError(src.Name(), err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return domain.EncodedImage{}, domain.NewEncodingError(src.Name(), err)
	}
	if len(data) == 0 {
		return domain.EncodedImage{}, domain.NewEncodingError(src.Name(), domain.ErrEmptyFile)
	}

	mediaType := normalizeMediaType(src.MediaType())
	if mediaType == "" {
		mediaType = normalizeMediaType(mimetype.Detect(data).String())
	}

	return domain.EncodedImage{
		MediaType: mediaType,
		Data:      base64.StdEncoding.EncodeToString(data),
	}, nil
}

// EncodePair は2枚の画像を並行してエンコードします。
// 両方の完了を待ってから返し、どちらかが失敗した時点でその失敗を返します。
func EncodePair(ctx context.Context, before, reference domain.ImageSource) (domain.EncodedImage, domain.EncodedImage, error) {
	var encBefore, encReference domain.EncodedImage
	eg, egCtx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		enc, err := Encode(egCtx, before)
		if err != nil {
			return err
		}
		encBefore = enc
		return nil
	})
	eg.Go(func() error {
		enc, err := Encode(egCtx, reference)
		if err != nil {
			return err
		}
		encReference = enc
		return nil
	})

	if err := eg.Wait(); err != nil {
		slog.WarnContext(ctx, "画像のエンコードに失敗しました", "error", err)
		return domain.EncodedImage{}, domain.EncodedImage{}, err
	}
	return encBefore, encReference, nil
}

// ValidateSelection はファイル選択時の検査です。サイズ超過と非対応形式を拒否します。
func ValidateSelection(src domain.ImageSource, maxBytes int64) error {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUploadBytes
	}
	if src.Size() > maxBytes {
		return domain.ErrFileTooLarge
	}
	if src.Size() == 0 {
		return domain.ErrEmptyFile
	}

	mediaType, err := DetectMediaType(src)
	if err != nil {
		return err
	}
	if !allowedMediaTypes[mediaType] {
		return fmt.Errorf("%w: %s", domain.ErrUnsupportedMediaType, mediaType)
	}
	return nil
}

// DetectMediaType は宣言された MIME タイプを返します。宣言がなければ先頭バイトから推定します。
func DetectMediaType(src domain.ImageSource) (string, error) {
	if declared := normalizeMediaType(src.MediaType()); declared != "" {
		return declared, nil
	}

	rc, err := src.Open()
	if err != nil {
		return "", domain.NewEncodingError(src.Name(), err)
	}
	defer rc.Close()

	detected, err := mimetype.DetectReader(rc)
	if err != nil {
		return "", domain.NewEncodingError(src.Name(), err)
	}
	return normalizeMediaType(detected.String()), nil
}

// ToImageResponse は EncodedImage を保存・ダウンロード用の ImageResponse に変換します。
func ToImageResponse(img domain.EncodedImage) (*ports.ImageResponse, error) {
	data, err := img.Bytes()
	if err != nil {
		return nil, err
	}
	return &ports.ImageResponse{
		Data:     data,
		MimeType: img.MediaType,
	}, nil
}

// Extension は MIME タイプから拡張子を決定します。判定できない場合は ".png" です。
func Extension(mimeType string) string {
	extensions, err := mime.ExtensionsByType(mimeType)
	if err != nil || len(extensions) == 0 {
		slog.Warn(
			"Could not determine file extension from MIME type, defaulting to .png",
			slog.String("mime_type", mimeType),
		)
		return ".png"
	}
	for _, ext := range extensions {
		// ".jpe" などより一般的な拡張子を優先します。
		if ext == ".png" || ext == ".jpg" || ext == ".jpeg" {
			return ext
		}
	}
	return extensions[0]
}

func normalizeMediaType(mediaType string) string {
	mediaType, _, _ = strings.Cut(mediaType, ";")
	return strings.ToLower(strings.TrimSpace(mediaType))
}
