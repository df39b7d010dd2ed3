// Package server exposes the upload and analyze operations over HTTP.
package server

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/phobologic/gentleman/internal/annotate"
	"github.com/phobologic/gentleman/internal/artifact"
	"github.com/phobologic/gentleman/internal/extract"
	"github.com/phobologic/gentleman/internal/pipeline"
)

// maxEnvelope bounds the non-content part of a request body.
const maxEnvelope = 64 << 10

// Builder creates a pipeline for a model and credential; empty values fall
// back to the configured defaults.
type Builder interface {
	Build(ctx context.Context, model, token string) (*pipeline.Pipeline, error)
}

// UploadRequest stages a file for analysis.
type UploadRequest struct {
	Filename string `json:"filename" binding:"required"`
	Content  string `json:"content"`
}

// AnalyzeRequest analyzes a previously uploaded file. Filepath is relative
// to the upload directory, e.g. "<folder>/<filename>".
type AnalyzeRequest struct {
	Filepath string  `json:"filepath" binding:"required"`
	Model    *string `json:"model"`
	HFToken  *string `json:"hf_token"`
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// Server holds the handlers' dependencies.
type Server struct {
	builder   Builder
	uploadDir string
	cache     *lru.Cache[string, *artifact.Artifact]
	gatherer  prometheus.Gatherer
	logger    *zap.Logger

	maxFileSize int64
}

// Options configures a Server.
type Options struct {
	UploadDir string
	// CacheSize bounds the number of cached artifacts; 0 disables caching.
	CacheSize int
	// MaxFileSize bounds uploaded and analyzed sources in bytes; 0 uses
	// pipeline.DefaultMaxFileSize.
	MaxFileSize int64
	Gatherer    prometheus.Gatherer
	Logger      *zap.Logger
}

// New creates a Server.
func New(b Builder, opts Options) (*Server, error) {
	if opts.UploadDir == "" {
		return nil, errors.New("server: upload dir is required")
	}
	s := &Server{
		builder:   b,
		uploadDir: opts.UploadDir,
		gatherer:  opts.Gatherer,
		logger:    opts.Logger,

		maxFileSize: opts.MaxFileSize,
	}
	if s.maxFileSize <= 0 {
		s.maxFileSize = pipeline.DefaultMaxFileSize
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.gatherer == nil {
		s.gatherer = prometheus.DefaultGatherer
	}
	if opts.CacheSize > 0 {
		cache, err := lru.New[string, *artifact.Artifact](opts.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("server: creating cache: %w", err)
		}
		s.cache = cache
	}
	return s, nil
}

// Router returns the gin engine with every route registered.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestID(), accessLog(s.logger))

	r.GET("/healthz", s.handleHealth)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	r.POST("/upload", s.handleUpload)
	r.POST("/analyze", s.handleAnalyze)
	return r
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleUpload handles POST /upload. The content is written to a fresh
// folder inside the upload dir and the folder name is returned.
func (s *Server) handleUpload(c *gin.Context) {
	// JSON escaping can at most double the body, plus room for the envelope.
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, 2*s.maxFileSize+maxEnvelope)

	var req UploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		var mberr *http.MaxBytesError
		if errors.As(err, &mberr) {
			c.JSON(http.StatusRequestEntityTooLarge, ErrorResponse{Error: "request body too large", Code: "FILE_TOO_LARGE"})
			return
		}
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "INVALID_REQUEST"})
		return
	}
	if int64(len(req.Content)) > s.maxFileSize {
		err := fmt.Errorf("%s: %w (%d > %d bytes)", req.Filename, pipeline.ErrFileTooLarge, len(req.Content), s.maxFileSize)
		c.JSON(http.StatusRequestEntityTooLarge, ErrorResponse{Error: err.Error(), Code: "FILE_TOO_LARGE"})
		return
	}
	if !filepath.IsLocal(req.Filename) || filepath.Base(req.Filename) != req.Filename {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "filename must be a plain file name", Code: "INVALID_FILENAME"})
		return
	}

	folder := uuid.NewString()
	dir := filepath.Join(s.uploadDir, folder)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		s.internalError(c, "creating upload folder", err)
		return
	}
	if err := os.WriteFile(filepath.Join(dir, req.Filename), []byte(req.Content), 0o644); err != nil {
		s.internalError(c, "writing upload", err)
		return
	}

	s.logger.Info("uploaded",
		zap.String("folder", folder),
		zap.String("filename", req.Filename),
		zap.Int("bytes", len(req.Content)),
	)
	c.JSON(http.StatusOK, folder)
}

// handleAnalyze handles POST /analyze and returns the artifact array.
func (s *Server) handleAnalyze(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxEnvelope)

	var req AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "INVALID_REQUEST"})
		return
	}
	if !filepath.IsLocal(req.Filepath) {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "filepath must stay inside the upload directory", Code: "INVALID_PATH"})
		return
	}

	path := filepath.Join(s.uploadDir, req.Filepath)
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "file not found: " + req.Filepath, Code: "NOT_FOUND"})
		return
	}
	if err != nil {
		s.internalError(c, "reading upload", err)
		return
	}
	if info.Size() > s.maxFileSize {
		err := fmt.Errorf("%s: %w (%d > %d bytes)", req.Filepath, pipeline.ErrFileTooLarge, info.Size(), s.maxFileSize)
		status, code := errorStatus(err)
		c.JSON(status, ErrorResponse{Error: err.Error(), Code: code})
		return
	}
	source, err := os.ReadFile(path)
	if err != nil {
		s.internalError(c, "reading upload", err)
		return
	}

	model, token := deref(req.Model), deref(req.HFToken)
	key := cacheKey(req.Filepath, model, source)
	if s.cache != nil {
		if art, ok := s.cache.Get(key); ok {
			c.Header("X-Cache", "hit")
			c.JSON(http.StatusOK, art)
			return
		}
	}

	p, err := s.builder.Build(c.Request.Context(), model, token)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "INVALID_CREDENTIALS"})
		return
	}
	art, err := p.AnalyzeSource(c.Request.Context(), path, source)
	if err != nil {
		status, code := errorStatus(err)
		c.JSON(status, ErrorResponse{Error: err.Error(), Code: code})
		return
	}

	if s.cache != nil {
		s.cache.Add(key, art)
	}
	c.Header("X-Cache", "miss")
	c.JSON(http.StatusOK, art)
}

func (s *Server) internalError(c *gin.Context, what string, err error) {
	s.logger.Error(what, zap.Error(err), zap.String("request_id", c.GetString(requestIDKey)))
	c.JSON(http.StatusInternalServerError, ErrorResponse{Error: what + " failed", Code: "INTERNAL"})
}

func errorStatus(err error) (int, string) {
	var perr *extract.ParseError
	var aerr *annotate.AnnotationError
	switch {
	case errors.Is(err, pipeline.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE"
	case errors.As(err, &perr):
		return http.StatusUnprocessableEntity, "PARSE_ERROR"
	case errors.Is(err, context.Canceled):
		return 499, "CANCELED"
	case errors.As(err, &aerr):
		return http.StatusBadGateway, "ANNOTATION_FAILED"
	}
	return http.StatusInternalServerError, "INTERNAL"
}

func cacheKey(path, model string, source []byte) string {
	h := sha256.New()
	h.Write([]byte(path))
	h.Write([]byte{0})
	h.Write([]byte(model))
	h.Write([]byte{0})
	h.Write(source)
	return hex.EncodeToString(h.Sum(nil))
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
