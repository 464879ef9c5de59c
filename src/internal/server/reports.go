package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"

	"github.com/admi-n/solidity-scamscan/src/internal/metrics"
	"github.com/admi-n/solidity-scamscan/src/internal/store"
)

// ReportRequest POST /api/reports 请求体
type ReportRequest struct {
	Address     string `json:"address"`
	Chain       string `json:"chain"`
	Reporter    string `json:"reporter"`
	Description string `json:"description"`
}

// ConfirmRequest POST /api/reports/:id/confirm 请求体，可省略
type ConfirmRequest struct {
	Severity string `json:"severity"`
}

// reportStore 举报接口依赖数据库
func (s *Server) reportStore(c *gin.Context) (store.Store, bool) {
	if s.store == nil {
		s.abort(c, http.StatusServiceUnavailable, "storage is not configured")
		return nil, false
	}
	return s.store, true
}

func (s *Server) handleReportSubmit(c *gin.Context) {
	st, ok := s.reportStore(c)
	if !ok {
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.cfg.MaxBodyBytes)

	var req ReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.abort(c, bodyErrorStatus(err), "invalid request body")
		return
	}
	address := strings.TrimSpace(req.Address)
	if !common.IsHexAddress(address) {
		s.abort(c, http.StatusBadRequest, "a valid contract address is required")
		return
	}

	// 统一为 checksum 格式，首次举报按地址判断
	report := store.NewScamReport(common.HexToAddress(address).Hex(), req.Chain, req.Reporter, req.Description)
	if err := st.SaveReport(c.Request.Context(), &report); err != nil {
		s.logger.Error("保存举报失败", "error", err, "request_id", c.GetString(requestIDHeader))
		s.abort(c, http.StatusInternalServerError, "failed to save report")
		return
	}
	metrics.ReportTransition(string(report.Status))
	s.logger.Info("收到诈骗举报", "id", report.ID, "address", report.ContractAddress, "first_report", report.FirstReport)
	c.JSON(http.StatusCreated, report)
}

func (s *Server) handleReportConfirm(c *gin.Context) {
	st, ok := s.reportStore(c)
	if !ok {
		return
	}

	var req ConfirmRequest
	if c.Request.ContentLength != 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.cfg.MaxBodyBytes)
		if err := c.ShouldBindJSON(&req); err != nil {
			s.abort(c, bodyErrorStatus(err), "invalid request body")
			return
		}
	}
	severity, err := store.ParseSeverity(req.Severity)
	if err != nil {
		s.abort(c, http.StatusBadRequest, err.Error())
		return
	}

	report, err := st.ConfirmReport(c.Request.Context(), c.Param("id"), severity)
	switch {
	case errors.Is(err, store.ErrReportNotFound):
		s.abort(c, http.StatusNotFound, err.Error())
		return
	case errors.Is(err, store.ErrReportConfirmed):
		s.abort(c, http.StatusConflict, err.Error())
		return
	case err != nil:
		s.logger.Error("确认举报失败", "id", c.Param("id"), "error", err)
		s.abort(c, http.StatusInternalServerError, "failed to confirm report")
		return
	}
	metrics.ReportTransition(string(report.Status))
	c.JSON(http.StatusOK, report)
}

func (s *Server) handleReportList(c *gin.Context) {
	st, ok := s.reportStore(c)
	if !ok {
		return
	}
	status, err := store.ParseReportStatus(c.Query("status"))
	if err != nil {
		s.abort(c, http.StatusBadRequest, err.Error())
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

	items, err := st.Reports(c.Request.Context(), status, limit)
	if err != nil {
		s.logger.Error("读取举报失败", "error", err)
		s.abort(c, http.StatusInternalServerError, "failed to load reports")
		return
	}
	if items == nil {
		items = []store.ScamReport{}
	}
	c.JSON(http.StatusOK, gin.H{"reports": items})
}

func (s *Server) handleReportStats(c *gin.Context) {
	st, ok := s.reportStore(c)
	if !ok {
		return
	}
	stats, err := st.ReportStats(c.Request.Context())
	if err != nil {
		s.logger.Error("统计举报失败", "error", err)
		s.abort(c, http.StatusInternalServerError, "failed to load report stats")
		return
	}
	c.JSON(http.StatusOK, stats)
}
