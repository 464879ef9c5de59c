package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/admi-n/solidity-scamscan/src/config"
	"github.com/admi-n/solidity-scamscan/src/internal"
)

const mysqlSchema = `
CREATE TABLE IF NOT EXISTS assessments (
	id              CHAR(36)     NOT NULL PRIMARY KEY,
	contract_address VARCHAR(42) NOT NULL DEFAULT '',
	chain           VARCHAR(16)  NOT NULL DEFAULT '',
	source_hash     CHAR(64)     NOT NULL,
	risk_score      TINYINT UNSIGNED NOT NULL,
	risk_level      VARCHAR(8)   NOT NULL,
	issues          JSON         NOT NULL,
	recommendation  VARCHAR(64)  NOT NULL,
	created_at      DATETIME(6)  NOT NULL,
	INDEX idx_assessments_created (created_at),
	INDEX idx_assessments_address (contract_address)
) DEFAULT CHARSET=utf8mb4`

// contracts 表与下载器写入的结构一致
const mysqlContractsSchema = `
CREATE TABLE IF NOT EXISTS contracts (
	address      VARCHAR(42) NOT NULL PRIMARY KEY,
	contract     LONGTEXT,
	balance      VARCHAR(64),
	isopensource TINYINT NOT NULL DEFAULT 0,
	createtime   DATETIME,
	createblock  BIGINT,
	txlast       DATETIME,
	isdecompiled TINYINT NOT NULL DEFAULT 0,
	dedcode      LONGTEXT,
	INDEX idx_contracts_block (createblock)
) DEFAULT CHARSET=utf8mb4`

const mysqlReportsSchema = `
CREATE TABLE IF NOT EXISTS reports (
	id               CHAR(36)     NOT NULL PRIMARY KEY,
	contract_address VARCHAR(42)  NOT NULL,
	chain            VARCHAR(16)  NOT NULL DEFAULT '',
	reporter         VARCHAR(128) NOT NULL DEFAULT '',
	description      TEXT         NOT NULL,
	status           VARCHAR(16)  NOT NULL,
	severity         VARCHAR(16)  NOT NULL DEFAULT '',
	first_report     TINYINT(1)   NOT NULL DEFAULT 0,
	reported_at      DATETIME(6)  NOT NULL,
	confirmed_at     DATETIME(6)  NULL,
	INDEX idx_reports_address (contract_address),
	INDEX idx_reports_status (status, reported_at)
) DEFAULT CHARSET=utf8mb4`

const mysqlReportColumns = `id, contract_address, chain, reporter, description, status, severity, first_report, reported_at, confirmed_at`

// MySQLStore 基于 database/sql 的 MySQL 存储
type MySQLStore struct {
	db *sql.DB
}

// OpenMySQL 打开 MySQL 存储
func OpenMySQL(ctx context.Context, dsn string) (*MySQLStore, error) {
	db, err := config.InitDB(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &MySQLStore{db: db}, nil
}

// NewMySQLStore 使用已有连接池
func NewMySQLStore(db *sql.DB) *MySQLStore {
	return &MySQLStore{db: db}
}

// EnsureSchema 建表
func (s *MySQLStore) EnsureSchema(ctx context.Context) error {
	// go-sql-driver 默认不允许一次执行多条语句
	for _, stmt := range []string{mysqlSchema, mysqlContractsSchema, mysqlReportsSchema} {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// Save 保存分析结果
func (s *MySQLStore) Save(ctx context.Context, a StoredAssessment) error {
	issues, err := json.Marshal(a.Issues)
	if err != nil {
		return fmt.Errorf("序列化 issues 失败: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
	INSERT INTO assessments (id, contract_address, chain, source_hash, risk_score, risk_level, issues, recommendation, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.ContractAddress, a.Chain, a.SourceHash, a.RiskScore, a.RiskLevel, string(issues), a.Recommendation, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("保存分析结果失败: %w", err)
	}
	return nil
}

// Recent 最近的分析结果，按时间倒序
func (s *MySQLStore) Recent(ctx context.Context, limit int) ([]StoredAssessment, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT id, contract_address, chain, source_hash, risk_score, risk_level, issues, recommendation, created_at
	FROM assessments ORDER BY created_at DESC LIMIT ?`, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StoredAssessment
	for rows.Next() {
		var a StoredAssessment
		var issues []byte
		if err := rows.Scan(&a.ID, &a.ContractAddress, &a.Chain, &a.SourceHash, &a.RiskScore, &a.RiskLevel, &issues, &a.Recommendation, &a.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(issues, &a.Issues); err != nil {
			return nil, fmt.Errorf("解析 issues 失败: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// ContractAddresses 读取 contracts 表（下载器写入）中已开源合约的地址
func (s *MySQLStore) ContractAddresses(ctx context.Context, br *internal.BlockRange, limit int) ([]string, error) {
	query := `SELECT DISTINCT address FROM contracts WHERE isopensource = 1 AND contract IS NOT NULL AND contract != ''`
	args := []any{}
	if br != nil {
		query += ` AND createblock BETWEEN ? AND ?`
		args = append(args, int64(clampBlock(br.Start)), int64(clampBlock(br.End)))
	}
	query += ` LIMIT ?`
	args = append(args, clampLimit(limit))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	addrs := make([]string, 0)
	for rows.Next() {
		var a string
		if err := rows.Scan(&a); err != nil {
			return nil, err
		}
		addrs = append(addrs, a)
	}
	return addrs, rows.Err()
}

// ContractSource 读取 contracts 表中的源码
func (s *MySQLStore) ContractSource(ctx context.Context, address string) (string, error) {
	var code string
	err := s.db.QueryRowContext(ctx,
		"SELECT contract FROM contracts WHERE address = ? AND contract IS NOT NULL AND contract != ''", address,
	).Scan(&code)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return code, err
}

// SaveReport 保存举报
func (s *MySQLStore) SaveReport(ctx context.Context, r *ScamReport) error {
	var existing int
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM reports WHERE contract_address = ?", r.ContractAddress,
	).Scan(&existing); err != nil {
		return fmt.Errorf("查询举报记录失败: %w", err)
	}
	r.FirstReport = existing == 0

	_, err := s.db.ExecContext(ctx, `
	INSERT INTO reports (`+mysqlReportColumns+`)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.ContractAddress, r.Chain, r.Reporter, r.Description, string(r.Status), string(r.Severity), r.FirstReport, r.ReportedAt, r.ConfirmedAt,
	)
	if err != nil {
		return fmt.Errorf("保存举报失败: %w", err)
	}
	return nil
}

// ConfirmReport 确认举报
func (s *MySQLStore) ConfirmReport(ctx context.Context, id string, severity Severity) (ScamReport, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE reports SET status = ?, severity = ?, confirmed_at = ? WHERE id = ? AND status = ?",
		string(ReportConfirmed), string(severity), time.Now().UTC(), id, string(ReportPending),
	)
	if err != nil {
		return ScamReport{}, fmt.Errorf("确认举报失败: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return ScamReport{}, err
	}

	r, err := scanMySQLReport(s.db.QueryRowContext(ctx, "SELECT "+mysqlReportColumns+" FROM reports WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return ScamReport{}, ErrReportNotFound
	}
	if err != nil {
		return ScamReport{}, err
	}
	if n == 0 {
		return ScamReport{}, ErrReportConfirmed
	}
	return r, nil
}

// Reports 按时间倒序列出举报
func (s *MySQLStore) Reports(ctx context.Context, status ReportStatus, limit int) ([]ScamReport, error) {
	query := "SELECT " + mysqlReportColumns + " FROM reports"
	args := []any{}
	if status != "" {
		query += " WHERE status = ?"
		args = append(args, string(status))
	}
	query += " ORDER BY reported_at DESC LIMIT ?"
	args = append(args, clampLimit(limit))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ScamReport
	for rows.Next() {
		r, err := scanMySQLReport(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ReportStats 举报计数
func (s *MySQLStore) ReportStats(ctx context.Context) (ReportStats, error) {
	var st ReportStats
	err := s.db.QueryRowContext(ctx, `
	SELECT COUNT(*),
		COALESCE(SUM(status = ?), 0),
		COALESCE(SUM(status = ?), 0)
	FROM reports`, string(ReportPending), string(ReportConfirmed),
	).Scan(&st.Total, &st.Pending, &st.Confirmed)
	return st, err
}

func scanMySQLReport(row interface{ Scan(...any) error }) (ScamReport, error) {
	var (
		r         ScamReport
		status    string
		severity  string
		confirmed sql.NullTime
	)
	if err := row.Scan(&r.ID, &r.ContractAddress, &r.Chain, &r.Reporter, &r.Description, &status, &severity, &r.FirstReport, &r.ReportedAt, &confirmed); err != nil {
		return ScamReport{}, err
	}
	r.Status = ReportStatus(status)
	r.Severity = Severity(severity)
	if confirmed.Valid {
		t := confirmed.Time
		r.ConfirmedAt = &t
	}
	return r, nil
}

// Close 关闭连接池
func (s *MySQLStore) Close() error {
	return s.db.Close()
}
