package renderers

import (
	"fmt"
	"strings"
)

// FindingView 单条命中规则
type FindingView struct {
	Issue   string
	Weight  int
	Matched []string
}

// ResultView 单个合约的渲染数据
type ResultView struct {
	Address         string
	Status          string
	Reason          string
	Analyzed        bool
	Score           int
	Level           string
	Recommendations []string
	Findings        []FindingView
}

// MarkdownRenderer markdown渲染器
type MarkdownRenderer struct{}

// NewMarkdownRenderer 创建markdown渲染器
func NewMarkdownRenderer() *MarkdownRenderer {
	return &MarkdownRenderer{}
}

// RenderFinding 渲染单条命中
func (r *MarkdownRenderer) RenderFinding(f FindingView) string {
	return fmt.Sprintf("**[+%d]** %s\n   **命中模式**: `%s`", f.Weight, f.Issue, strings.Join(f.Matched, "`, `"))
}

// RenderScanResult 渲染扫描结果
func (r *MarkdownRenderer) RenderScanResult(v ResultView) string {
	var result strings.Builder

	result.WriteString(fmt.Sprintf("### 合约地址: %s\n\n", v.Address))
	result.WriteString(fmt.Sprintf("**状态**: %s\n\n", v.Status))

	if !v.Analyzed {
		if v.Reason != "" {
			result.WriteString(fmt.Sprintf("**原因**: %s\n\n", v.Reason))
		}
		return result.String()
	}

	result.WriteString(fmt.Sprintf("**风险评分**: %d\n", v.Score))
	result.WriteString(fmt.Sprintf("**风险等级**: %s %s\n", LevelIcon(v.Level), v.Level))
	if len(v.Recommendations) > 0 {
		result.WriteString(fmt.Sprintf("**建议**: %s\n", v.Recommendations[0]))
	}
	result.WriteString("\n")

	if len(v.Findings) > 0 {
		result.WriteString("#### 风险模式\n\n")
		for i, f := range v.Findings {
			result.WriteString(fmt.Sprintf("%d. %s\n\n", i+1, r.RenderFinding(f)))
		}
	}

	return result.String()
}

// LevelIcon 风险等级对应的图标
func LevelIcon(level string) string {
	switch level {
	case "HIGH":
		return "🔴"
	case "MEDIUM":
		return "🟡"
	case "LOW":
		return "🟢"
	default:
		return "⚪"
	}
}
