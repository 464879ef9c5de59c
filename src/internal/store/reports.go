package store

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ReportStatus 举报状态
type ReportStatus string

const (
	ReportPending   ReportStatus = "PENDING"
	ReportConfirmed ReportStatus = "CONFIRMED"
)

// Severity 确认举报时给出的严重程度
type Severity string

const (
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

var (
	// ErrReportNotFound 举报不存在
	ErrReportNotFound = errors.New("scam report not found")
	// ErrReportConfirmed 举报已经确认过
	ErrReportConfirmed = errors.New("scam report already confirmed")
	// ErrInvalidSeverity 未知的严重程度
	ErrInvalidSeverity = errors.New("invalid severity")
	// ErrInvalidStatus 未知的举报状态
	ErrInvalidStatus = errors.New("invalid report status")
)

// ScamReport 用户提交的诈骗合约举报
type ScamReport struct {
	ID              string       `json:"id"`
	ContractAddress string       `json:"contract_address"`
	Chain           string       `json:"chain,omitempty"`
	Reporter        string       `json:"reporter,omitempty"`
	Description     string       `json:"description,omitempty"`
	Status          ReportStatus `json:"status"`
	Severity        Severity     `json:"severity,omitempty"`
	FirstReport     bool         `json:"first_report"`
	ReportedAt      time.Time    `json:"reported_at"`
	ConfirmedAt     *time.Time   `json:"confirmed_at,omitempty"`
}

// ReportStats 举报计数
type ReportStats struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Confirmed int `json:"confirmed"`
}

// NewScamReport 构造待审核的举报；FirstReport 由存储在保存时判定
func NewScamReport(address, chain, reporter, description string) ScamReport {
	return ScamReport{
		ID:              uuid.NewString(),
		ContractAddress: strings.TrimSpace(address),
		Chain:           chain,
		Reporter:        strings.TrimSpace(reporter),
		Description:     strings.TrimSpace(description),
		Status:          ReportPending,
		ReportedAt:      time.Now().UTC(),
	}
}

// ParseSeverity 解析严重程度，空字符串为 MEDIUM
func ParseSeverity(s string) (Severity, error) {
	switch sev := Severity(strings.ToUpper(strings.TrimSpace(s))); sev {
	case "":
		return SeverityMedium, nil
	case SeverityMedium, SeverityHigh, SeverityCritical:
		return sev, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrInvalidSeverity, s)
	}
}

// ParseReportStatus 解析状态过滤条件，空字符串表示不过滤
func ParseReportStatus(s string) (ReportStatus, error) {
	switch st := ReportStatus(strings.ToUpper(strings.TrimSpace(s))); st {
	case "", ReportPending, ReportConfirmed:
		return st, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrInvalidStatus, s)
	}
}
