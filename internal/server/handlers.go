package server

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"

	"github.com/shouni/go-surgery-sim/pkg/domain"
	"github.com/shouni/go-surgery-sim/pkg/encoding"
	"github.com/shouni/go-surgery-sim/pkg/session"

	"github.com/gin-gonic/gin"
)

const (
	// ResultFileName はダウンロード時の固定ファイル名です。
	ResultFileName = "ai-simulation-result.png"

	// multipartOverhead はファイル本体以外のフォーム部分に許す余裕です。
	multipartOverhead = 1 << 20
)

// response は API の共通レスポンスです。Message は拒否された操作の理由です。
type response struct {
	Session session.Snapshot `json:"session"`
	Message string           `json:"message,omitempty"`
}

type instructionRequest struct {
	Instruction string `json:"instruction"`
}

type credentialRequest struct {
	APIKey string `json:"apiKey"`
}

func (s *Server) handleIndex(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", indexHTML)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "sessions": s.sessions.Len()})
}

func (s *Server) handleSnapshot(c *gin.Context) {
	ctrl := controllerFrom(c)
	c.JSON(http.StatusOK, response{Session: ctrl.Snapshot()})
}

func (s *Server) handleSelectImage(c *gin.Context) {
	ctrl := controllerFrom(c)

	slot, err := domain.ParseSlot(c.Param("slot"))
	if err != nil {
		s.reject(c, ctrl, http.StatusNotFound, err)
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.maxUploadBytes+multipartOverhead)
	header, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.reject(c, ctrl, http.StatusRequestEntityTooLarge, domain.ErrFileTooLarge)
			return
		}
		s.reject(c, ctrl, http.StatusBadRequest, fmt.Errorf("file フィールドが見つかりません: %w", err))
		return
	}
	if header.Size > s.maxUploadBytes {
		s.reject(c, ctrl, http.StatusRequestEntityTooLarge, domain.ErrFileTooLarge)
		return
	}

	src, err := readUpload(header)
	if err != nil {
		s.reject(c, ctrl, http.StatusBadRequest, err)
		return
	}

	if err := ctrl.SelectImage(c.Request.Context(), slot, src); err != nil {
		s.reject(c, ctrl, selectionStatus(err), err)
		return
	}
	c.JSON(http.StatusOK, response{Session: ctrl.Snapshot()})
}

func (s *Server) handleSetInstruction(c *gin.Context) {
	ctrl := controllerFrom(c)

	var req instructionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.reject(c, ctrl, http.StatusBadRequest, err)
		return
	}
	if _, err := ctrl.SetInstruction(c.Request.Context(), req.Instruction); err != nil {
		s.reject(c, ctrl, http.StatusConflict, err)
		return
	}
	c.JSON(http.StatusOK, response{Session: ctrl.Snapshot()})
}

func (s *Server) handleSetCredential(c *gin.Context) {
	ctrl := controllerFrom(c)

	var req credentialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.reject(c, ctrl, http.StatusBadRequest, err)
		return
	}
	ctrl.SetCredential(c.Request.Context(), req.APIKey)
	c.JSON(http.StatusOK, response{Session: ctrl.Snapshot()})
}

func (s *Server) handleSimulate(c *gin.Context) {
	ctrl := controllerFrom(c)

	res, err := ctrl.Submit(c.Request.Context())
	if err != nil {
		s.reject(c, ctrl, http.StatusConflict, err)
		return
	}
	if res.Err != nil {
		c.JSON(failureStatus(res.Err.Kind), response{Session: ctrl.Snapshot(), Message: res.Err.Message})
		return
	}
	c.JSON(http.StatusOK, response{Session: ctrl.Snapshot()})
}

func (s *Server) handleReset(c *gin.Context) {
	ctrl := controllerFrom(c)
	ctrl.Reset(c.Request.Context())
	c.JSON(http.StatusOK, response{Session: ctrl.Snapshot()})
}

func (s *Server) handleResult(c *gin.Context) {
	ctrl := controllerFrom(c)

	img, ok := ctrl.Result()
	if !ok {
		s.reject(c, ctrl, http.StatusNotFound, errors.New("no simulation result is available"))
		return
	}
	resp, err := encoding.ToImageResponse(img)
	if err != nil {
		slog.ErrorContext(c.Request.Context(), "結果画像のデコードに失敗しました", "error", err)
		s.reject(c, ctrl, http.StatusInternalServerError, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, ResultFileName))
	c.Data(http.StatusOK, resp.MimeType, resp.Data)
}

func (s *Server) reject(c *gin.Context, ctrl *session.Controller, status int, err error) {
	_ = c.Error(err)
	c.JSON(status, response{Session: ctrl.Snapshot(), Message: err.Error()})
}

func readUpload(header *multipart.FileHeader) (domain.ImageSource, error) {
	f, err := header.Open()
	if err != nil {
		return nil, fmt.Errorf("アップロードファイルのオープンに失敗しました: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("アップロードファイルの読み込みに失敗しました: %w", err)
	}
	// 汎用の型しか宣言されていない場合は中身から判定させる
	declared := header.Header.Get("Content-Type")
	if declared == "application/octet-stream" {
		declared = ""
	}
	return domain.NewBytesSource(header.Filename, declared, data), nil
}

func selectionStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, domain.ErrUnsupportedMediaType):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, domain.ErrSubmissionInFlight):
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}

func failureStatus(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindValidation:
		return http.StatusUnprocessableEntity
	case domain.KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusBadGateway
	}
}
