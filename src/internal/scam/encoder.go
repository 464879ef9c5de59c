package scam

import "encoding/json"

// EncodeFailure 编码失败时返回的文本（不是合法 JSON）
const EncodeFailure = "Analysis failed"

// marshal 可在测试中替换
var marshal = json.Marshal

// Encode 将结果编码为 JSON；失败时返回 EncodeFailure，不返回 error
func Encode(a RiskAssessment) string {
	if a.Issues == nil {
		a.Issues = []string{}
	}
	if a.Recommendations == nil {
		a.Recommendations = []string{}
	}
	data, err := marshal(a)
	if err != nil {
		return EncodeFailure
	}
	return string(data)
}

// EncodeIndent 带缩进的编码，仅用于终端展示
func EncodeIndent(a RiskAssessment) string {
	if a.Issues == nil {
		a.Issues = []string{}
	}
	data, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return EncodeFailure
	}
	return string(data)
}

// IsEncodeFailure 判断输出是否为编码失败的兜底文本
func IsEncodeFailure(out string) bool {
	return out == EncodeFailure
}

// AnalyzeJSON analyze(text) -> JSON 文本
func AnalyzeJSON(source string) string {
	return Encode(Analyze(source))
}

// AnalyzeJSON 使用该分析器的规则
func (a *Analyzer) AnalyzeJSON(source string) string {
	return Encode(a.Analyze(source))
}
