// Package scam 基于固定词法规则的合约诈骗风险评分。
//
// 只做子串匹配，不解析语法，也不保证结论正确：命中说明出现了可疑模式，
// 未命中也不代表合约可信。
package scam

import "strings"

// RiskLevel 风险等级
type RiskLevel string

const (
	LevelLow    RiskLevel = "LOW"
	LevelMedium RiskLevel = "MEDIUM"
	LevelHigh   RiskLevel = "HIGH"
)

// 建议文本
const (
	RecommendAvoid   = "AVOID: High scam probability"
	RecommendCaution = "CAUTION: Conduct thorough research"
	RecommendSafe    = "SAFE: Appears legitimate"
)

// maxRiskScore risk_score 的取值上限（uint8）
const maxRiskScore = 255

// Finding 单条规则的命中情况（仅用于展示，不参与编码输出）
type Finding struct {
	Detector string
	Issue    string
	Weight   uint8
	Matched  []string
}

// RiskAssessment 单次分析结果
type RiskAssessment struct {
	RiskScore       uint8     `json:"risk_score"`
	RiskLevel       RiskLevel `json:"risk_level"`
	Issues          []string  `json:"issues"`
	Recommendations []string  `json:"recommendations"`

	Findings []Finding `json:"-"`
}

// Analyzer 持有一份只读规则表，可并发使用
type Analyzer struct {
	rules []DetectorRule
}

// NewAnalyzer 使用给定规则创建分析器；rules 为空时使用默认规则。
// 规则切片会被复制，调用方之后的修改不影响分析器。
func NewAnalyzer(rules []DetectorRule) *Analyzer {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	owned := make([]DetectorRule, len(rules))
	copy(owned, rules)
	return &Analyzer{rules: owned}
}

// Rules 返回规则表副本
func (a *Analyzer) Rules() []DetectorRule {
	out := make([]DetectorRule, len(a.rules))
	copy(out, a.rules)
	return out
}

// Analyze 对源码执行全部规则并汇总评分
func (a *Analyzer) Analyze(source string) RiskAssessment {
	code := Normalize(source)

	result := RiskAssessment{
		Issues: make([]string, 0, len(a.rules)),
	}

	score := 0
	// 所有规则都要执行，不短路
	for _, rule := range a.rules {
		matched := rule.Match(code)
		if len(matched) == 0 {
			continue
		}
		score += int(rule.Weight)
		result.Issues = append(result.Issues, rule.Issue)
		result.Findings = append(result.Findings, Finding{
			Detector: rule.Name,
			Issue:    rule.Issue,
			Weight:   rule.Weight,
			Matched:  matched,
		})
	}

	if score > maxRiskScore {
		score = maxRiskScore
	}
	result.RiskScore = uint8(score)
	result.RiskLevel = Classify(result.RiskScore)
	result.Recommendations = []string{Recommend(result.RiskScore)}
	return result
}

// Normalize 返回小写副本用于大小写无关匹配
func Normalize(source string) string {
	return strings.ToLower(source)
}

// Classify 分数 -> 风险等级（70 / 40）
func Classify(score uint8) RiskLevel {
	switch {
	case score >= 70:
		return LevelHigh
	case score >= 40:
		return LevelMedium
	default:
		return LevelLow
	}
}

// Recommend 分数 -> 建议（60 / 30）。
// 阈值与 Classify 不同，两张表独立维护，不要合并。
func Recommend(score uint8) string {
	switch {
	case score > 60:
		return RecommendAvoid
	case score > 30:
		return RecommendCaution
	default:
		return RecommendSafe
	}
}

var defaultAnalyzer = NewAnalyzer(DefaultRules())

// Analyze 使用默认规则分析
func Analyze(source string) RiskAssessment {
	return defaultAnalyzer.Analyze(source)
}
