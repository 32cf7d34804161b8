package filter

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mikey/mail-threat-analyzer/internal/core"
	"github.com/mikey/mail-threat-analyzer/internal/ports"
	"go.uber.org/zap"
)

const (
	msgProvideRaw     = "Provide raw email text"
	msgInvalidRequest = "Invalid request"
	msgTooLarge       = "Request too large"
)

// HTTPFilter exposes the analysis service as a JSON API
type HTTPFilter struct {
	service      ports.ThreatAnalyzer
	logger       *zap.Logger
	listenAddr   string
	maxBodyBytes int64
	router       *gin.Engine
	server       *http.Server
}

type analyzeRequest struct {
	Raw any `json:"raw"`
}

// NewHTTPFilter creates a new HTTP filter
func NewHTTPFilter(service ports.ThreatAnalyzer, logger *zap.Logger, listenAddr string, maxBodyBytes int64) *HTTPFilter {
	f := &HTTPFilter{
		service:      service,
		logger:       logger,
		listenAddr:   listenAddr,
		maxBodyBytes: maxBodyBytes,
	}

	router := gin.New()
	router.Use(gin.Recovery(), f.requestLogger())
	router.POST("/api/analyze", f.handleAnalyze)
	router.GET("/healthz", f.handleHealth)
	f.router = router

	return f
}

// Handler returns the HTTP handler serving the API
func (f *HTTPFilter) Handler() http.Handler {
	return f.router
}

// Start starts the HTTP server
func (f *HTTPFilter) Start() error {
	f.server = &http.Server{
		Addr:              f.listenAddr,
		Handler:           f.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	f.logger.Info("HTTP filter starting", zap.String("address", f.listenAddr))

	go func() {
		if err := f.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			f.logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	return nil
}

// Stop gracefully shuts the HTTP server down
func (f *HTTPFilter) Stop() error {
	if f.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return f.server.Shutdown(ctx)
}

// ProcessEmail analyzes raw email source
func (f *HTTPFilter) ProcessEmail(ctx context.Context, raw string) (*core.Assessment, error) {
	return f.service.Analyze(ctx, raw)
}

func (f *HTTPFilter) handleAnalyze(c *gin.Context) {
	if f.maxBodyBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, f.maxBodyBytes)
	}

	var req analyzeRequest
	if err := json.NewDecoder(c.Request.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": msgTooLarge})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": msgInvalidRequest})
		return
	}

	raw, ok := req.Raw.(string)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": msgProvideRaw})
		return
	}

	assessment, err := f.ProcessEmail(c.Request.Context(), raw)
	switch {
	case errors.Is(err, core.ErrInputTooShort):
		c.JSON(http.StatusBadRequest, gin.H{"error": msgProvideRaw})
		return
	case errors.Is(err, core.ErrInputTooLarge):
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": msgTooLarge})
		return
	case err != nil:
		f.logger.Error("Failed to analyze email", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": msgInvalidRequest})
		return
	}

	c.Header("X-Processing-ID", assessment.ProcessingID)
	c.JSON(http.StatusOK, assessment.Result)
}

func (f *HTTPFilter) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (f *HTTPFilter) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		f.logger.Debug("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)))
	}
}
