// Package store 持久化分析结果，支持 MySQL 与 PostgreSQL。
package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/admi-n/solidity-scamscan/src/internal"
	"github.com/admi-n/solidity-scamscan/src/internal/scam"
)

// ErrUnsupportedDSN DSN 无法识别
var ErrUnsupportedDSN = errors.New("unsupported database dsn")

// StoredAssessment 一条已保存的分析记录
type StoredAssessment struct {
	ID              string    `json:"id"`
	ContractAddress string    `json:"contract_address,omitempty"`
	Chain           string    `json:"chain,omitempty"`
	SourceHash      string    `json:"source_hash"`
	RiskScore       uint8     `json:"risk_score"`
	RiskLevel       string    `json:"risk_level"`
	Issues          []string  `json:"issues"`
	Recommendation  string    `json:"recommendation"`
	CreatedAt       time.Time `json:"created_at"`
}

// Store 分析结果存储
type Store interface {
	EnsureSchema(ctx context.Context) error
	Save(ctx context.Context, a StoredAssessment) error
	Recent(ctx context.Context, limit int) ([]StoredAssessment, error)
	// ContractAddresses 读取 contracts 表中已开源合约的地址，br 为空表示不限区块
	ContractAddresses(ctx context.Context, br *internal.BlockRange, limit int) ([]string, error)
	// ContractSource 从 contracts 表读取源码，不存在时返回空字符串
	ContractSource(ctx context.Context, address string) (string, error)

	// SaveReport 保存举报，并回写该地址是否为首次被举报
	SaveReport(ctx context.Context, r *ScamReport) error
	// ConfirmReport 将待审核举报标记为 CONFIRMED
	ConfirmReport(ctx context.Context, id string, severity Severity) (ScamReport, error)
	// Reports 按时间倒序列出举报，status 为空表示全部
	Reports(ctx context.Context, status ReportStatus, limit int) ([]ScamReport, error)
	ReportStats(ctx context.Context) (ReportStats, error)

	Close() error
}

// NewRecord 由分析结果构造待保存记录
func NewRecord(contract internal.Contract, a scam.RiskAssessment) StoredAssessment {
	rec := StoredAssessment{
		ID:              uuid.NewString(),
		ContractAddress: contract.Address,
		Chain:           contract.Chain,
		SourceHash:      HashSource(contract.Code),
		RiskScore:       a.RiskScore,
		RiskLevel:       string(a.RiskLevel),
		Issues:          append([]string{}, a.Issues...),
		CreatedAt:       time.Now().UTC(),
	}
	if len(a.Recommendations) > 0 {
		rec.Recommendation = a.Recommendations[0]
	}
	return rec
}

// HashSource 源码 sha256 十六进制
func HashSource(src string) string {
	sum := sha256.Sum256([]byte(src))
	return hex.EncodeToString(sum[:])
}

// Driver 数据库类型
type Driver string

const (
	DriverMySQL    Driver = "mysql"
	DriverPostgres Driver = "postgres"
)

// DetectDriver 根据 DSN 判断数据库类型，返回去掉 mysql:// 前缀后的驱动 DSN
func DetectDriver(dsn string) (Driver, string, error) {
	dsn = strings.TrimSpace(dsn)
	switch {
	case dsn == "":
		return "", "", fmt.Errorf("%w: empty", ErrUnsupportedDSN)
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return DriverPostgres, dsn, nil
	case strings.HasPrefix(dsn, "mysql://"):
		return DriverMySQL, strings.TrimPrefix(dsn, "mysql://"), nil
	case strings.Contains(dsn, "@tcp(") || strings.Contains(dsn, "@unix("):
		return DriverMySQL, dsn, nil
	default:
		return "", "", fmt.Errorf("%w: %s", ErrUnsupportedDSN, redact(dsn))
	}
}

// Open 按 DSN 打开对应的存储并建表
func Open(ctx context.Context, dsn string) (Store, error) {
	driver, native, err := DetectDriver(dsn)
	if err != nil {
		return nil, err
	}

	var s Store
	switch driver {
	case DriverPostgres:
		s, err = OpenPostgres(ctx, native)
	default:
		s, err = OpenMySQL(ctx, native)
	}
	if err != nil {
		return nil, err
	}
	if err := s.EnsureSchema(ctx); err != nil {
		s.Close()
		return nil, fmt.Errorf("初始化表结构失败: %w", err)
	}
	return s, nil
}

// redact 错误信息中隐藏密码
func redact(dsn string) string {
	at := strings.LastIndex(dsn, "@")
	if at < 0 {
		return dsn
	}
	return "***" + dsn[at:]
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > 1000 {
		return 1000
	}
	return limit
}

// clampBlock BIGINT 无法表示 uint64 上限（开放区间）
func clampBlock(b uint64) uint64 {
	const maxInt64 = 1<<63 - 1
	if b > maxInt64 {
		return maxInt64
	}
	return b
}
