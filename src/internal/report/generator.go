package report

import (
	"fmt"
	"strings"

	"github.com/admi-n/solidity-scamscan/src/internal/report/renderers"
	"github.com/admi-n/solidity-scamscan/src/internal/scam"
)

// Generator 报告生成器接口
type Generator interface {
	Generate(report *Report) (string, error)
}

// MarkdownGenerator markdown格式报告生成器
type MarkdownGenerator struct {
	renderer *renderers.MarkdownRenderer
}

// NewMarkdownGenerator 创建markdown报告生成器
func NewMarkdownGenerator() *MarkdownGenerator {
	return &MarkdownGenerator{renderer: renderers.NewMarkdownRenderer()}
}

var levelOrder = []scam.RiskLevel{scam.LevelHigh, scam.LevelMedium, scam.LevelLow}

// Generate 生成markdown格式报告
func (g *MarkdownGenerator) Generate(report *Report) (string, error) {
	var sb strings.Builder

	sb.WriteString("# Solidity ScamScan 扫描报告\n\n")
	sb.WriteString(fmt.Sprintf("**目标来源**: %s\n", report.TargetSource))
	sb.WriteString(fmt.Sprintf("**链**: %s\n", report.Chain))
	sb.WriteString(fmt.Sprintf("**扫描时间**: %s\n\n", report.ScanTime.Format("2006-01-02 15:04:05")))

	sb.WriteString("## 扫描统计\n\n")
	sb.WriteString(fmt.Sprintf("- **总合约数**: %d\n", report.TotalContracts))
	sb.WriteString(fmt.Sprintf("- **成功分析**: %d\n", report.AnalyzedContracts))
	sb.WriteString(fmt.Sprintf("- **存在风险模式**: %d\n\n", report.FlaggedContracts))

	if report.AnalyzedContracts > 0 {
		sb.WriteString("## 风险等级分布\n\n")
		for _, level := range levelOrder {
			sb.WriteString(fmt.Sprintf("- **%s**: %d\n", level, report.LevelDistribution[level]))
		}
		sb.WriteString("\n")
	}

	sb.WriteString("## 详细结果\n\n")
	for i, r := range report.Results {
		view := renderers.ResultView{
			Address: r.ContractAddress,
			Status:  r.Status,
			Reason:  r.Reason,
		}
		if a := r.Assessment; a != nil {
			view.Score = int(a.RiskScore)
			view.Level = string(a.RiskLevel)
			view.Recommendations = a.Recommendations
			for _, f := range a.Findings {
				view.Findings = append(view.Findings, renderers.FindingView{
					Issue:   f.Issue,
					Weight:  int(f.Weight),
					Matched: f.Matched,
				})
			}
			view.Analyzed = true
		}
		sb.WriteString(g.renderer.RenderScanResult(view))

		if i < len(report.Results)-1 {
			sb.WriteString("---\n\n")
		}
	}

	return sb.String(), nil
}
