package domain

import (
	"errors"
	"fmt"
)

// ErrorKind はシミュレーション失敗の分類です。
type ErrorKind int

const (
	KindValidation ErrorKind = iota + 1
	KindEncoding
	KindRateLimited
	KindService
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindEncoding:
		return "encoding"
	case KindRateLimited:
		return "rate_limited"
	case KindService:
		return "service"
	default:
		return "unknown"
	}
}

// ユーザーに表示するメッセージです。
const (
	MsgMissingImages     = "Please upload both your photo and a reference photo."
	MsgMissingCredential = "API key is not set. Provide a Gemini API key or set GEMINI_API_KEY."
	MsgRateLimited       = "API rate limit exceeded. Please wait a moment and try again."
	MsgServicePrefix     = "An error occurred during the API call: "
	MsgGenericFailure    = "Failed to generate the simulation. Please ensure the photos are clear and front-facing."
	MsgNoImage           = "No image was generated. The AI may not have been able to process the request."
	MsgUnknown           = "An unknown error occurred during simulation."
	MsgEncodingPrefix    = "Failed to read the selected file: "
)

// SimulationError は Failed 状態に保持される失敗記述子です。
type SimulationError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *SimulationError) Error() string {
	return e.Message
}

func (e *SimulationError) Unwrap() error {
	return e.Err
}

// NewValidationError は外部呼び出しを行わずに報告される入力エラーです。
func NewValidationError(msg string) *SimulationError {
	return &SimulationError{Kind: KindValidation, Message: msg}
}

// NewEncodingError はファイルの読み込み・エンコード失敗を表します。
func NewEncodingError(name string, err error) *SimulationError {
	detail := name
	if err != nil {
		detail = fmt.Sprintf("%s (%v)", name, err)
	}
	return &SimulationError{Kind: KindEncoding, Message: MsgEncodingPrefix + detail, Err: err}
}

// NewRateLimitedError はレートリミットによる失敗を表します。
func NewRateLimitedError(err error) *SimulationError {
	return &SimulationError{Kind: KindRateLimited, Message: MsgRateLimited, Err: err}
}

// NewServiceError は外部サービス呼び出しの失敗です。エラー文が空なら汎用メッセージになります。
func NewServiceError(err error) *SimulationError {
	if err == nil || err.Error() == "" {
		return &SimulationError{Kind: KindService, Message: MsgGenericFailure, Err: err}
	}
	return &SimulationError{Kind: KindService, Message: MsgServicePrefix + err.Error(), Err: err}
}

// ErrNoImageGenerated は応答に画像パートが含まれなかったことを示します。
var ErrNoImageGenerated = errors.New(MsgNoImage)

// NewNoImageError はサービスが画像を返さなかった場合の失敗です。
func NewNoImageError() *SimulationError {
	return &SimulationError{Kind: KindService, Message: MsgNoImage, Err: ErrNoImageGenerated}
}

// AsSimulationError は任意のエラーを SimulationError に変換します。
func AsSimulationError(err error) *SimulationError {
	if err == nil {
		return nil
	}
	var se *SimulationError
	if errors.As(err, &se) {
		return se
	}
	return &SimulationError{Kind: KindService, Message: MsgUnknown, Err: err}
}

// IsKind は err が指定した分類の SimulationError かどうかを判定します。
func IsKind(err error, kind ErrorKind) bool {
	var se *SimulationError
	return errors.As(err, &se) && se.Kind == kind
}

// 選択・送信が拒否された場合のエラーです。いずれも状態を変更しません。
var (
	ErrFileTooLarge         = errors.New("File size exceeds 10MB. Please choose a smaller image.")
	ErrUnsupportedMediaType = errors.New("Unsupported file type. Please choose a JPEG or PNG image.")
	ErrEmptyFile            = errors.New("The selected file is empty.")
	ErrSubmissionInFlight   = errors.New("a simulation is already in progress")
	ErrNotReady             = errors.New("session is not ready for submission")
	ErrAttemptDiscarded     = errors.New("session was reset while the simulation was in progress")
)
