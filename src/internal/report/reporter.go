package report

import (
	"fmt"
	"time"

	"github.com/admi-n/solidity-scamscan/src/internal/scam"
)

// 扫描状态
const (
	StatusDone    = "✅ 扫描完成"
	StatusSkipped = "⏭️ 已跳过"
	StatusFailed  = "❌ 失败"
)

// ScanResult 表示单个合约的扫描结果
type ScanResult struct {
	ContractAddress string
	Chain           string
	ScanTime        time.Time
	Status          string
	Assessment      *scam.RiskAssessment
	Reason          string // 跳过/失败原因
}

// Flagged 是否存在问题
func (s ScanResult) Flagged() bool {
	return s.Assessment != nil && len(s.Assessment.Issues) > 0
}

// Report 表示完整的扫描报告
type Report struct {
	TargetSource      string
	Chain             string
	ScanTime          time.Time
	TotalContracts    int
	AnalyzedContracts int
	FlaggedContracts  int
	LevelDistribution map[scam.RiskLevel]int
	Results           []ScanResult
}

// NewReport 创建新的报告实例
func NewReport(targetSource, chain string) *Report {
	return &Report{
		TargetSource:      targetSource,
		Chain:             chain,
		ScanTime:          time.Now(),
		LevelDistribution: make(map[scam.RiskLevel]int),
		Results:           make([]ScanResult, 0),
	}
}

// AddScanResult 添加扫描结果并更新统计
func (r *Report) AddScanResult(result ScanResult) {
	r.Results = append(r.Results, result)
	r.TotalContracts++

	if result.Assessment == nil {
		return
	}
	r.AnalyzedContracts++
	r.LevelDistribution[result.Assessment.RiskLevel]++
	if result.Flagged() {
		r.FlaggedContracts++
	}
}

// NewScanResult 创建成功的扫描结果
func NewScanResult(address, chain string, a scam.RiskAssessment) ScanResult {
	return ScanResult{
		ContractAddress: address,
		Chain:           chain,
		ScanTime:        time.Now(),
		Status:          StatusDone,
		Assessment:      &a,
	}
}

// NewSkippedResult 创建跳过/失败的扫描结果
func NewSkippedResult(address, chain, status, reason string) ScanResult {
	return ScanResult{
		ContractAddress: address,
		Chain:           chain,
		ScanTime:        time.Now(),
		Status:          status,
		Reason:          reason,
	}
}

// Reporter 报告器，整合生成器和存储功能
type Reporter struct {
	generator Generator
	storage   Storage
}

// NewReporter 创建报告器
func NewReporter(generator Generator, storage Storage) *Reporter {
	return &Reporter{
		generator: generator,
		storage:   storage,
	}
}

// GenerateAndSave 生成并保存报告
func (r *Reporter) GenerateAndSave(report *Report) (string, error) {
	content, err := r.generator.Generate(report)
	if err != nil {
		return "", fmt.Errorf("failed to generate report: %w", err)
	}

	path, err := r.storage.Save(report, content)
	if err != nil {
		return "", fmt.Errorf("failed to save report: %w", err)
	}

	return path, nil
}
