// Package server 通过 HTTP 暴露合约风险分析。
package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/admi-n/solidity-scamscan/src/internal"
	"github.com/admi-n/solidity-scamscan/src/internal/download"
	"github.com/admi-n/solidity-scamscan/src/internal/metrics"
	"github.com/admi-n/solidity-scamscan/src/internal/scam"
	"github.com/admi-n/solidity-scamscan/src/internal/store"
)

const (
	ServiceName         = "scamscan"
	requestIDHeader     = "X-Request-ID"
	defaultMaxBodyBytes = 4 << 20
)

// Config 服务配置
type Config struct {
	Addr         string
	MaxBodyBytes int64
	FetchTimeout time.Duration
}

// Server HTTP 服务
type Server struct {
	cfg      Config
	analyzer *scam.Analyzer
	encode   func(scam.RiskAssessment) string
	fetcher  download.ContractFetcher
	store    store.Store
	logger   *slog.Logger
	router   *gin.Engine
}

// Option 服务选项
type Option func(*Server)

// WithFetcher 启用按地址分析
func WithFetcher(f download.ContractFetcher) Option {
	return func(s *Server) { s.fetcher = f }
}

// WithStore 启用结果持久化
func WithStore(st store.Store) Option {
	return func(s *Server) { s.store = st }
}

// WithLogger 设置日志
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithAnalyzer 使用自定义规则
func WithAnalyzer(a *scam.Analyzer) Option {
	return func(s *Server) { s.analyzer = a }
}

// New 创建服务
func New(cfg Config, opts ...Option) *Server {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 30 * time.Second
	}
	s := &Server{
		cfg:      cfg,
		analyzer: scam.NewAnalyzer(nil),
		encode:   scam.Encode,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	router := gin.New()
	router.Use(gin.Recovery(), s.requestID(), s.accessLog())
	s.registerRoutes(router)
	s.router = router
	return s
}

// Handler 返回 http.Handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe 启动服务，ctx 取消时优雅关闭
func (s *Server) ListenAndServe(ctx context.Context) error {
	httpSrv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP 服务启动", "addr", s.cfg.Addr)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.logger.Info("HTTP 服务关闭中")
		return httpSrv.Shutdown(shutdownCtx)
	}
}

func (s *Server) registerRoutes(r *gin.Engine) {
	r.GET("/health", s.handleHealth)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	api.POST("/analyze", s.handleAnalyze)
	api.POST("/analyze/raw", s.handleAnalyzeRaw)
	api.GET("/assessments", s.handleAssessments)
	api.GET("/rules", s.handleRules)

	reports := api.Group("/reports")
	reports.POST("", s.handleReportSubmit)
	reports.GET("", s.handleReportList)
	reports.GET("/stats", s.handleReportStats)
	reports.POST("/:id/confirm", s.handleReportConfirm)
}

// requestID 透传或生成 X-Request-ID
func (s *Server) requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDHeader, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Info("request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"latency", time.Since(start),
			"request_id", c.GetString(requestIDHeader),
		)
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "service": ServiceName})
}

// AnalyzeRequest /api/analyze 请求体，source 与 address 二选一
type AnalyzeRequest struct {
	Source  string `json:"source"`
	Address string `json:"address"`
	Chain   string `json:"chain"`
}

func (s *Server) handleAnalyze(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.cfg.MaxBodyBytes)

	var req AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.abort(c, bodyErrorStatus(err), "invalid request body")
		return
	}

	if req.Source != "" {
		s.respond(c, internal.Contract{Code: req.Source, Chain: req.Chain})
		return
	}

	address := strings.TrimSpace(req.Address)
	if address == "" {
		s.abort(c, http.StatusBadRequest, "one of source or address is required")
		return
	}
	if s.fetcher == nil {
		s.abort(c, http.StatusServiceUnavailable, "address lookup is not configured")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.cfg.FetchTimeout)
	defer cancel()
	contract, err := s.fetcher.FetchSource(ctx, address)
	switch {
	case errors.Is(err, download.ErrInvalidAddress):
		s.abort(c, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, download.ErrBytecodeOnly):
		s.abort(c, http.StatusUnprocessableEntity, err.Error())
		return
	case errors.Is(err, download.ErrNotFound):
		s.abort(c, http.StatusNotFound, err.Error())
		return
	case err != nil:
		s.logger.Warn("获取合约失败", "address", address, "error", err, "request_id", c.GetString(requestIDHeader))
		s.abort(c, http.StatusBadGateway, "failed to fetch contract")
		return
	}
	s.respond(c, contract)
}

func (s *Server) handleAnalyzeRaw(c *gin.Context) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, s.cfg.MaxBodyBytes))
	if err != nil {
		s.abort(c, bodyErrorStatus(err), "failed to read request body")
		return
	}
	// 空文本也是合法输入，结果为 0 分 LOW
	s.respond(c, internal.Contract{Code: string(body), Chain: c.Query("chain")})
}

// respond 分析并按约定输出：成功为 JSON，编码失败为纯文本 "Analysis failed"
func (s *Server) respond(c *gin.Context, contract internal.Contract) {
	start := time.Now()
	assessment := s.analyzer.Analyze(contract.Code)
	metrics.Observe(assessment, time.Since(start))

	out := s.encode(assessment)
	if scam.IsEncodeFailure(out) {
		metrics.EncodeFailed()
		c.Data(http.StatusInternalServerError, "text/plain; charset=utf-8", []byte(out))
		return
	}

	if s.store != nil {
		if err := s.store.Save(c.Request.Context(), store.NewRecord(contract, assessment)); err != nil {
			s.logger.Warn("保存分析结果失败", "error", err, "request_id", c.GetString(requestIDHeader))
		}
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", []byte(out))
}

func (s *Server) handleAssessments(c *gin.Context) {
	if s.store == nil {
		s.abort(c, http.StatusServiceUnavailable, "storage is not configured")
		return
	}
	limit := 50
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.abort(c, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	items, err := s.store.Recent(c.Request.Context(), limit)
	if err != nil {
		s.logger.Error("读取分析记录失败", "error", err)
		s.abort(c, http.StatusInternalServerError, "failed to load assessments")
		return
	}
	if items == nil {
		items = []store.StoredAssessment{}
	}
	c.JSON(http.StatusOK, gin.H{"assessments": items})
}

// RuleView 规则表的只读视图
type RuleView struct {
	Name   string `json:"name"`
	Weight uint8  `json:"weight"`
	Issue  string `json:"issue"`
}

func (s *Server) handleRules(c *gin.Context) {
	rules := s.analyzer.Rules()
	views := make([]RuleView, 0, len(rules))
	for _, r := range rules {
		views = append(views, RuleView{Name: r.Name, Weight: r.Weight, Issue: r.Issue})
	}
	c.JSON(http.StatusOK, gin.H{"rules": views, "max_score": scam.MaxScore(rules)})
}

func (s *Server) abort(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"error": msg, "request_id": c.GetString(requestIDHeader)})
}

func bodyErrorStatus(err error) int {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusBadRequest
}
