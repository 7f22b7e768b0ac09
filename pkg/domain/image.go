package domain

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

const (
	// MediaTypeJPEG と MediaTypePNG は選択可能な画像形式です。
	MediaTypeJPEG = "image/jpeg"
	MediaTypePNG  = "image/png"
)

// ImageSource はユーザーが選択した生ファイル（宣言された MIME タイプ付き）を表します。
type ImageSource interface {
	Name() string
	MediaType() string
	Size() int64
	Open() (io.ReadCloser, error)
}

// BytesSource はメモリ上に保持されたアップロードファイルです。
type BytesSource struct {
	name      string
	mediaType string
	data      []byte
}

// NewBytesSource は BytesSource を生成します。
func NewBytesSource(name, mediaType string, data []byte) *BytesSource {
	return &BytesSource{name: name, mediaType: mediaType, data: data}
}

func (s *BytesSource) Name() string      { return s.name }
func (s *BytesSource) MediaType() string { return s.mediaType }
func (s *BytesSource) Size() int64       { return int64(len(s.data)) }

func (s *BytesSource) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(s.data)), nil
}

// FileSource はローカルディスク上の画像ファイルです。CLI から利用します。
type FileSource struct {
	path      string
	mediaType string
	size      int64
}

// NewFileSource はパスを stat し、拡張子から MIME タイプを宣言します。
func NewFileSource(path string) (*FileSource, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("ファイル '%s' の取得に失敗しました: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("'%s' はディレクトリです", path)
	}
	return &FileSource{
		path:      path,
		mediaType: mediaTypeFromExt(path),
		size:      info.Size(),
	}, nil
}

func (s *FileSource) Name() string      { return filepath.Base(s.path) }
func (s *FileSource) MediaType() string { return s.mediaType }
func (s *FileSource) Size() int64       { return s.size }

func (s *FileSource) Open() (io.ReadCloser, error) {
	return os.Open(s.path)
}

func mediaTypeFromExt(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return MediaTypeJPEG
	case ".png":
		return MediaTypePNG
	default:
		return ""
	}
}

// EncodedImage は base64 文字列と MIME タイプの組です。
type EncodedImage struct {
	MediaType string
	Data      string
}

// IsZero はデータを持たない場合に true を返します。
func (e EncodedImage) IsZero() bool {
	return e.Data == ""
}

// DataURL は表示・ダウンロードにそのまま使える data URI を返します。
func (e EncodedImage) DataURL() string {
	if e.IsZero() {
		return ""
	}
	return fmt.Sprintf("data:%s;base64,%s", e.MediaType, e.Data)
}

// Bytes は base64 をデコードした生データを返します。
func (e EncodedImage) Bytes() ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(e.Data)
	if err != nil {
		return nil, fmt.Errorf("base64 のデコードに失敗しました: %w", err)
	}
	return b, nil
}

// UploadedImage は選択済み画像とそのプレビュー表現です。
type UploadedImage struct {
	Source  ImageSource
	Preview EncodedImage
}

// PreviewURL はプレビュー用の data URI です。
func (u *UploadedImage) PreviewURL() string {
	if u == nil {
		return ""
	}
	return u.Preview.DataURL()
}

// Slot は before / reference のどちらの画像かを示します。
type Slot string

const (
	SlotBefore    Slot = "before"
	SlotReference Slot = "reference"
)

// ParseSlot は文字列を Slot に変換します。
func ParseSlot(s string) (Slot, error) {
	switch Slot(strings.ToLower(strings.TrimSpace(s))) {
	case SlotBefore:
		return SlotBefore, nil
	case SlotReference:
		return SlotReference, nil
	default:
		return "", fmt.Errorf("unknown image slot: %q", s)
	}
}
