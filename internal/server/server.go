package server

import (
	_ "embed"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

//go:embed web/index.html
var indexHTML []byte

// Options は HTTP サーバーの設定です。
type Options struct {
	Sessions       *Registry
	MaxUploadBytes int64
	Debug          bool
}

// Server はブラウザ UI と JSON API を提供します。
type Server struct {
	engine         *gin.Engine
	sessions       *Registry
	maxUploadBytes int64
}

// New は gin エンジンを構築してルートを登録します。
func New(opts Options) (*Server, error) {
	if opts.Sessions == nil {
		return nil, fmt.Errorf("セッションレジストリは必須です")
	}
	if opts.MaxUploadBytes <= 0 {
		return nil, fmt.Errorf("アップロード上限は正の値である必要があります: %d", opts.MaxUploadBytes)
	}

	if opts.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(loggingMiddleware())
	engine.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowHeaders:    []string{"Origin", "Content-Type"},
		ExposeHeaders:   []string{"Content-Length", "Content-Disposition"},
		MaxAge:          12 * time.Hour,
	}))
	// multipart のメモリ上限。超過分は一時ファイルに逃がされる
	engine.MaxMultipartMemory = opts.MaxUploadBytes + multipartOverhead

	s := &Server{
		engine:         engine,
		sessions:       opts.Sessions,
		maxUploadBytes: opts.MaxUploadBytes,
	}
	s.routes()
	return s, nil
}

// Handler は http.Server に渡すハンドラーです。
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) routes() {
	s.engine.GET("/", s.handleIndex)
	s.engine.GET("/healthz", s.handleHealth)

	api := s.engine.Group("/api/session")
	api.Use(s.sessions.Middleware())
	api.GET("", s.handleSnapshot)
	api.POST("/images/:slot", s.handleSelectImage)
	api.PUT("/instruction", s.handleSetInstruction)
	api.PUT("/credential", s.handleSetCredential)
	api.POST("/simulate", s.handleSimulate)
	api.POST("/reset", s.handleReset)
	api.GET("/result", s.handleResult)
}

func loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		attrs := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"duration", time.Since(start),
		}
		if len(c.Errors) > 0 {
			attrs = append(attrs, "errors", c.Errors.String())
		}

		switch {
		case status >= http.StatusInternalServerError:
			slog.ErrorContext(c.Request.Context(), "HTTP リクエスト", attrs...)
		case status >= http.StatusBadRequest:
			slog.WarnContext(c.Request.Context(), "HTTP リクエスト", attrs...)
		default:
			slog.DebugContext(c.Request.Context(), "HTTP リクエスト", attrs...)
		}
	}
}
