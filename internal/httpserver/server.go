package httpserver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/tinytelemetry/displaylog/internal/ingest"
	"github.com/tinytelemetry/displaylog/internal/logstore"
	"github.com/tinytelemetry/displaylog/internal/model"
)

// Store is the narrow read contract required by the HTTP API.
type Store interface {
	model.LogReader
	MaxEntries() int
}

// Uploader turns one status upload into a persisted record.
type Uploader interface {
	Process(report model.StatusReport) (*ingest.ProcessResult, error)
}

// StaticAssets are served from Config.StaticDir when it is set.
var StaticAssets = []string{"data.bin", "data.png", "status.html", "metadata.json"}

// maxUploadMemory bounds multipart form parsing.
const maxUploadMemory = 1 << 20

// Config configures the HTTP server.
type Config struct {
	Addr           string
	TrustedProxies []string
	StaticDir      string
}

// Server accepts device uploads and exposes the log over HTTP.
type Server struct {
	cfg       Config
	store     Store
	uploader  Uploader
	server    *http.Server
	ctx       context.Context
	cancel    context.CancelFunc
	startTime time.Time
}

// NewServer creates a new HTTP server.
func NewServer(cfg Config, store Store, uploader Uploader) *Server {
	if cfg.Addr == "" {
		cfg.Addr = "0.0.0.0:8080"
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:       cfg,
		store:     store,
		uploader:  uploader,
		ctx:       ctx,
		cancel:    cancel,
		startTime: time.Now(),
	}
}

// Router builds the gin engine with every route registered.
func (s *Server) Router() (*gin.Engine, error) {
	r := gin.New()
	r.MaxMultipartMemory = maxUploadMemory
	r.Use(gin.Recovery(), requestLogger())

	// nil trusts no proxy, so ClientIP falls back to the socket peer.
	if err := r.SetTrustedProxies(s.cfg.TrustedProxies); err != nil {
		return nil, err
	}

	r.POST("/upload.php", s.handleUpload)
	r.POST("/upload", s.handleUpload)
	r.GET("/api/health", s.handleHealth)
	r.GET("/api/log", s.handleLog)

	if s.cfg.StaticDir != "" {
		for _, name := range StaticAssets {
			r.StaticFile("/"+name, filepath.Join(s.cfg.StaticDir, name))
		}
	}
	return r, nil
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	gin.SetMode(gin.ReleaseMode)
	r, err := s.Router()
	if err != nil {
		return err
	}

	s.server = &http.Server{
		Handler:           r,
		BaseContext:       func(_ net.Listener) context.Context { return s.ctx },
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
	}

	listener, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}

	s.startTime = time.Now()

	go s.server.Serve(listener)
	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop() error {
	s.cancel()
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

func (s *Server) handleUpload(c *gin.Context) {
	form := url.Values{}
	for _, name := range model.StatusFields {
		if values, ok := c.GetPostFormArray(name); ok {
			form[name] = values
		}
	}

	_, err := s.uploader.Process(model.StatusReport{
		Form:       form,
		RemoteAddr: c.ClientIP(),
	})
	switch {
	case err == nil:
		c.Status(http.StatusOK)
	case errors.Is(err, ingest.ErrMissingField):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, logstore.ErrPersistence):
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to persist record"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to process upload"})
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	count, err := s.store.RecordCount()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read health metrics"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":       "ok",
		"uptime":       time.Since(s.startTime).String(),
		"record_count": count,
	})
}

func (s *Server) handleLog(c *gin.Context) {
	records, err := s.store.Records()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read log"})
		return
	}
	if records == nil {
		records = []model.LogRecord{}
	}

	c.JSON(http.StatusOK, gin.H{
		"records":     records,
		"count":       len(records),
		"max_entries": s.store.MaxEntries(),
	})
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Str("client", c.ClientIP()).
			Dur("latency", time.Since(start)).
			Msg("httpserver: request")
	}
}
