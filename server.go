package backend

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/denysvitali/fiscal-ingest/pkg/accel"
	"github.com/denysvitali/fiscal-ingest/pkg/ingestor"
	"github.com/denysvitali/fiscal-ingest/pkg/models"
	"github.com/denysvitali/fiscal-ingest/pkg/parsers"
	"github.com/denysvitali/fiscal-ingest/pkg/storage/model"
	"github.com/denysvitali/fiscal-ingest/pkg/validator"
)

const (
	ServiceName = "fiscal-ingest"

	defaultLimit = 50
	maxLimit     = 500
	// maxPayload bounds uploaded XML documents.
	maxPayload = 32 << 20
)

type Config struct {
	Ingestor *ingestor.Ingestor
	Store    model.Store
	// Archive serves /files. Optional.
	Archive     model.Retriever
	Validator   *validator.Validator
	Accelerator accel.Accelerator
	// Metrics is mounted on /metrics when set.
	Metrics http.Handler
	Version string
}

type Server struct {
	e         *gin.Engine
	ingestor  *ingestor.Ingestor
	store     model.Store
	archive   model.Retriever
	validator *validator.Validator
	acc       accel.Accelerator
	metrics   http.Handler
	version   string
}

var log = logrus.StandardLogger().WithField("package", "backend")

func New(config Config) (*Server, error) {
	if config.Ingestor == nil {
		return nil, fmt.Errorf("ingestor is required")
	}
	if config.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	s := Server{
		e:         gin.New(),
		ingestor:  config.Ingestor,
		store:     config.Store,
		archive:   config.Archive,
		validator: config.Validator,
		acc:       config.Accelerator,
		metrics:   config.Metrics,
		version:   config.Version,
	}
	if s.validator == nil {
		s.validator = validator.New()
	}
	if s.acc == nil {
		s.acc = accel.Default()
	}
	if s.version == "" {
		s.version = "dev"
	}

	s.initRoutes()
	return &s, nil
}

func (s *Server) Run(addr string) error {
	return s.e.Run(addr)
}

func (s *Server) Handler() http.Handler {
	return s.e
}

func (s *Server) initRoutes() {
	s.e.Use(gin.Logger())
	s.e.Use(cors.Default())

	s.e.GET("/api/health", s.handleHealth)
	if s.metrics != nil {
		s.e.GET("/metrics", gin.WrapH(s.metrics))
	}

	g := s.e.Group("/api/v1")
	g.POST("/documents/upload", s.handleUpload)
	g.POST("/documents/validate", s.handleValidate)
	g.GET("/documents/stats", s.handleStats)
	g.GET("/documents/:key", s.handleGetDocument)
	g.GET("/documents", s.handleGetDocuments)
	g.POST("/search", s.handleSearch)
	g.GET("/files/:type/:key", s.handleGetFile)
}

var badRequest = gin.H{
	"error": "bad request",
}

var internalServerError = gin.H{
	"error": "internal server error",
}

var notFound = gin.H{
	"error": "not found",
}

// statusFor maps the error taxonomy to HTTP status codes.
func statusFor(err error) int {
	switch {
	case models.IsDocumentError(err):
		return http.StatusUnprocessableEntity
	case errors.Is(err, models.ErrXmlRead):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrNotFound), errors.Is(err, os.ErrNotExist):
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func (s *Server) fail(c *gin.Context, err error) {
	status := statusFor(err)
	switch status {
	case http.StatusInternalServerError:
		log.Errorf("%s %s: %v", c.Request.Method, c.Request.URL.Path, err)
		c.JSON(status, internalServerError)
	case http.StatusNotFound:
		c.JSON(status, notFound)
	default:
		c.JSON(status, gin.H{"error": err.Error()})
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	status, code := "healthy", http.StatusOK
	if err := s.ingestor.Ping(c.Request.Context()); err != nil {
		log.Warnf("health check failed: %v", err)
		status, code = "unhealthy", http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{
		"status":  status,
		"service": ServiceName,
		"version": s.version,
	})
}

// readPayload accepts a multipart "file" field or a raw XML body.
func readPayload(c *gin.Context) ([]byte, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxPayload)
	var r io.Reader = c.Request.Body
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		fh, err := c.FormFile("file")
		if err != nil {
			return nil, fmt.Errorf("%w: %w", models.ErrXmlRead, err)
		}
		f, err := fh.Open()
		if err != nil {
			return nil, fmt.Errorf("%w: %w", models.ErrXmlRead, err)
		}
		defer f.Close()
		r = f
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrXmlRead, err)
	}
	if len(strings.TrimSpace(string(b))) == 0 {
		return nil, fmt.Errorf("%w: empty payload", models.ErrXmlRead)
	}
	return b, nil
}

func (s *Server) handleUpload(c *gin.Context) {
	payload, err := readPayload(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	res, err := s.ingestor.Process(c.Request.Context(), payload)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) handleValidate(c *gin.Context) {
	payload, err := readPayload(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	xml, err := parsers.DecodePayload(payload, s.acc)
	if err != nil {
		s.fail(c, err)
		return
	}
	docType, ok := parsers.DetectDocumentType([]byte(xml), s.acc)
	if !ok {
		s.fail(c, models.ErrUnsupportedDocumentType)
		return
	}
	c.JSON(http.StatusOK, s.validator.Validate(xml, docType))
}

func (s *Server) handleStats(c *gin.Context) {
	stats, err := s.store.Stats(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

type DocumentResponse struct {
	Document   *models.DocumentSummary  `json:"document"`
	Validation *models.ValidationResult `json:"validation,omitempty"`
}

func (s *Server) handleGetDocument(c *gin.Context) {
	key := c.Param("key")
	if key == "" {
		c.JSON(http.StatusBadRequest, badRequest)
		return
	}

	ctx := c.Request.Context()
	summary, err := s.store.FindSummary(ctx, key)
	if err != nil {
		s.fail(c, err)
		return
	}
	validation, err := s.store.FindValidation(ctx, key)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, DocumentResponse{Document: summary, Validation: validation})
}

func queryInt(c *gin.Context, name string, def int) (int, error) {
	v := c.Query(name)
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}

func (s *Server) handleGetDocuments(c *gin.Context) {
	docType := models.DocumentType(c.Query("doc_type"))
	if docType != "" && !docType.IsValid() {
		c.JSON(http.StatusBadRequest, badRequest)
		return
	}
	limit, err := queryInt(c, "limit", defaultLimit)
	if err != nil {
		c.JSON(http.StatusBadRequest, badRequest)
		return
	}
	offset, err := queryInt(c, "offset", 0)
	if err != nil {
		c.JSON(http.StatusBadRequest, badRequest)
		return
	}
	limit = min(max(limit, 1), maxLimit)
	offset = max(offset, 0)

	docs, err := s.store.ListDocuments(c.Request.Context(), model.ListFilter{
		Type:   docType,
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"documents": docs,
		"limit":     limit,
		"offset":    offset,
	})
}

type SearchRequest struct {
	SearchTerm string `json:"searchTerm"`
	Size       int    `json:"size"`
}

func (s *Server) handleSearch(c *gin.Context) {
	searcher, ok := s.store.(model.Searcher)
	if !ok {
		c.JSON(http.StatusNotImplemented, gin.H{
			"error": "search is not supported by the configured storage",
		})
		return
	}

	var searchRequest SearchRequest
	err := c.BindJSON(&searchRequest)
	if err != nil {
		c.JSON(http.StatusBadRequest, badRequest)
		return
	}
	size := searchRequest.Size
	if size <= 0 {
		size = defaultLimit
	}
	size = min(size, maxLimit)

	docs, err := searcher.Search(c.Request.Context(), searchRequest.SearchTerm, size)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"documents": docs})
}

func (s *Server) handleGetFile(c *gin.Context) {
	docType := models.DocumentType(c.Param("type"))
	key := c.Param("key")
	if !docType.IsValid() || key == "" {
		c.JSON(http.StatusBadRequest, badRequest)
		return
	}
	if s.archive == nil {
		c.JSON(http.StatusNotFound, notFound)
		return
	}

	raw, err := s.archive.Retrieve(c.Request.Context(), docType, key)
	if err != nil {
		s.fail(c, err)
		return
	}
	if closer, ok := raw.Reader.(io.Closer); ok {
		defer closer.Close()
	}

	c.Header("Content-Type", "application/xml")
	c.Status(http.StatusOK)
	_, err = io.Copy(c.Writer, raw.Reader)
	if err != nil {
		log.Errorf("unable to copy: %v", err)
		return
	}
}
