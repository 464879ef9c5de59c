package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/admi-n/solidity-scamscan/src/config"
	"github.com/admi-n/solidity-scamscan/src/internal"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS assessments (
	id               TEXT        PRIMARY KEY,
	contract_address TEXT        NOT NULL DEFAULT '',
	chain            TEXT        NOT NULL DEFAULT '',
	source_hash      TEXT        NOT NULL,
	risk_score       SMALLINT    NOT NULL,
	risk_level       TEXT        NOT NULL,
	issues           TEXT[]      NOT NULL,
	recommendation   TEXT        NOT NULL,
	created_at       TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_assessments_created ON assessments (created_at DESC);
CREATE INDEX IF NOT EXISTS idx_assessments_address ON assessments (contract_address);
CREATE TABLE IF NOT EXISTS contracts (
	address      TEXT PRIMARY KEY,
	contract     TEXT,
	balance      TEXT,
	isopensource SMALLINT NOT NULL DEFAULT 0,
	createtime   TIMESTAMPTZ,
	createblock  BIGINT,
	txlast       TIMESTAMPTZ,
	isdecompiled SMALLINT NOT NULL DEFAULT 0,
	dedcode      TEXT
);
CREATE TABLE IF NOT EXISTS reports (
	id               TEXT        PRIMARY KEY,
	contract_address TEXT        NOT NULL,
	chain            TEXT        NOT NULL DEFAULT '',
	reporter         TEXT        NOT NULL DEFAULT '',
	description      TEXT        NOT NULL DEFAULT '',
	status           TEXT        NOT NULL,
	severity         TEXT        NOT NULL DEFAULT '',
	first_report     BOOLEAN     NOT NULL DEFAULT FALSE,
	reported_at      TIMESTAMPTZ NOT NULL,
	confirmed_at     TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_reports_address ON reports (contract_address);
CREATE INDEX IF NOT EXISTS idx_reports_status ON reports (status, reported_at DESC);`

const postgresReportColumns = `id, contract_address, chain, reporter, description, status, severity, first_report, reported_at, confirmed_at`

// PostgresStore 基于 pgx 连接池的 PostgreSQL 存储
type PostgresStore struct {
	pool *pgxpool.Pool
}

// OpenPostgres 打开 PostgreSQL 存储
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := config.InitPGPool(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &PostgresStore{pool: pool}, nil
}

// EnsureSchema 建表
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresSchema)
	return err
}

// Save 保存分析结果
func (s *PostgresStore) Save(ctx context.Context, a StoredAssessment) error {
	_, err := s.pool.Exec(ctx, `
	INSERT INTO assessments (id, contract_address, chain, source_hash, risk_score, risk_level, issues, recommendation, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		a.ID, a.ContractAddress, a.Chain, a.SourceHash, int16(a.RiskScore), a.RiskLevel, a.Issues, a.Recommendation, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("保存分析结果失败: %w", err)
	}
	return nil
}

// Recent 最近的分析结果，按时间倒序
func (s *PostgresStore) Recent(ctx context.Context, limit int) ([]StoredAssessment, error) {
	rows, err := s.pool.Query(ctx, `
	SELECT id, contract_address, chain, source_hash, risk_score, risk_level, issues, recommendation, created_at
	FROM assessments ORDER BY created_at DESC LIMIT $1`, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StoredAssessment
	for rows.Next() {
		var a StoredAssessment
		var score int16
		if err := rows.Scan(&a.ID, &a.ContractAddress, &a.Chain, &a.SourceHash, &score, &a.RiskLevel, &a.Issues, &a.Recommendation, &a.CreatedAt); err != nil {
			return nil, err
		}
		a.RiskScore = uint8(score)
		out = append(out, a)
	}
	return out, rows.Err()
}

// ContractAddresses 读取 contracts 表中已开源合约的地址
func (s *PostgresStore) ContractAddresses(ctx context.Context, br *internal.BlockRange, limit int) ([]string, error) {
	query := `SELECT DISTINCT address FROM contracts WHERE isopensource = 1 AND contract IS NOT NULL AND contract != ''`
	args := []any{}
	if br != nil {
		query += ` AND createblock BETWEEN $1 AND $2 LIMIT $3`
		args = append(args, int64(clampBlock(br.Start)), int64(clampBlock(br.End)), clampLimit(limit))
	} else {
		query += ` LIMIT $1`
		args = append(args, clampLimit(limit))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

// ContractSource 读取 contracts 表中的源码
func (s *PostgresStore) ContractSource(ctx context.Context, address string) (string, error) {
	var code string
	err := s.pool.QueryRow(ctx,
		"SELECT contract FROM contracts WHERE address = $1 AND contract IS NOT NULL AND contract != ''", address,
	).Scan(&code)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	return code, err
}

// SaveReport 保存举报
func (s *PostgresStore) SaveReport(ctx context.Context, r *ScamReport) error {
	var exists bool
	if err := s.pool.QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM reports WHERE contract_address = $1)", r.ContractAddress,
	).Scan(&exists); err != nil {
		return fmt.Errorf("查询举报记录失败: %w", err)
	}
	r.FirstReport = !exists

	_, err := s.pool.Exec(ctx, `
	INSERT INTO reports (`+postgresReportColumns+`)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		r.ID, r.ContractAddress, r.Chain, r.Reporter, r.Description, string(r.Status), string(r.Severity), r.FirstReport, r.ReportedAt, r.ConfirmedAt,
	)
	if err != nil {
		return fmt.Errorf("保存举报失败: %w", err)
	}
	return nil
}

// ConfirmReport 确认举报
func (s *PostgresStore) ConfirmReport(ctx context.Context, id string, severity Severity) (ScamReport, error) {
	row := s.pool.QueryRow(ctx, `
	UPDATE reports SET status = $1, severity = $2, confirmed_at = now()
	WHERE id = $3 AND status = $4
	RETURNING `+postgresReportColumns,
		string(ReportConfirmed), string(severity), id, string(ReportPending),
	)
	r, err := scanPostgresReport(row)
	if err == nil {
		return r, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return ScamReport{}, fmt.Errorf("确认举报失败: %w", err)
	}

	var exists bool
	if err := s.pool.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM reports WHERE id = $1)", id).Scan(&exists); err != nil {
		return ScamReport{}, err
	}
	if !exists {
		return ScamReport{}, ErrReportNotFound
	}
	return ScamReport{}, ErrReportConfirmed
}

// Reports 按时间倒序列出举报
func (s *PostgresStore) Reports(ctx context.Context, status ReportStatus, limit int) ([]ScamReport, error) {
	query := "SELECT " + postgresReportColumns + " FROM reports"
	args := []any{}
	if status != "" {
		query += " WHERE status = $1 ORDER BY reported_at DESC LIMIT $2"
		args = append(args, string(status), clampLimit(limit))
	} else {
		query += " ORDER BY reported_at DESC LIMIT $1"
		args = append(args, clampLimit(limit))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (ScamReport, error) {
		return scanPostgresReport(row)
	})
}

// ReportStats 举报计数
func (s *PostgresStore) ReportStats(ctx context.Context) (ReportStats, error) {
	var st ReportStats
	err := s.pool.QueryRow(ctx, `
	SELECT COUNT(*),
		COUNT(*) FILTER (WHERE status = $1),
		COUNT(*) FILTER (WHERE status = $2)
	FROM reports`, string(ReportPending), string(ReportConfirmed),
	).Scan(&st.Total, &st.Pending, &st.Confirmed)
	return st, err
}

func scanPostgresReport(row pgx.Row) (ScamReport, error) {
	var (
		r        ScamReport
		status   string
		severity string
	)
	if err := row.Scan(&r.ID, &r.ContractAddress, &r.Chain, &r.Reporter, &r.Description, &status, &severity, &r.FirstReport, &r.ReportedAt, &r.ConfirmedAt); err != nil {
		return ScamReport{}, err
	}
	r.Status = ReportStatus(status)
	r.Severity = Severity(severity)
	return r, nil
}

// Close 关闭连接池
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
