package scam

import "strings"

// Detector 规则名称
const (
	DetectorHoneypot        = "honeypot"
	DetectorRugPull         = "rugpull"
	DetectorOwnershipRisk   = "ownership"
	DetectorFeeManipulation = "fee"
)

// DetectorRule 单条检测规则：名称、权重、命中时的问题描述以及判定函数。
// Match 接收已归一化（小写）的源码，返回命中的模式；为空表示未命中。
type DetectorRule struct {
	Name   string
	Weight uint8
	Issue  string
	Match  func(normalized string) []string
}

var (
	honeypotPatterns = []string{
		"selllimit", "maxsell", "whitelistonly", "tradingenabled",
		"isblacklisted", "cantransfer", "allowedtransfer",
	}

	rugPullPatterns = []string{
		"mint(address,uint256)", "withdraweth", "drainliquidity",
		"emergencywithdraw", "withdrawtokens", "transferownership",
	}

	feePatterns = []string{"setfee", "updatetax", "changefee"}
)

// defaultRules 固定规则表，顺序即 issues 的输出顺序
var defaultRules = [...]DetectorRule{
	{
		Name:   DetectorHoneypot,
		Weight: 30,
		Issue:  "Honeypot pattern detected",
		Match:  containsAny(honeypotPatterns),
	},
	{
		Name:   DetectorRugPull,
		Weight: 40,
		Issue:  "Rug pull pattern detected",
		Match:  containsAny(rugPullPatterns),
	},
	{
		Name:   DetectorOwnershipRisk,
		Weight: 25,
		Issue:  "Centralized ownership risk",
		Match:  ownershipRisk,
	},
	{
		Name:   DetectorFeeManipulation,
		Weight: 20,
		Issue:  "Dynamic fee manipulation possible",
		Match:  containsAny(feePatterns),
	},
}

// DefaultRules 返回默认规则表的副本
func DefaultRules() []DetectorRule {
	rules := make([]DetectorRule, len(defaultRules))
	copy(rules, defaultRules[:])
	return rules
}

// MaxScore 返回规则表所有权重之和（理论最高分）
func MaxScore(rules []DetectorRule) int {
	total := 0
	for _, r := range rules {
		total += int(r.Weight)
	}
	return total
}

// containsAny 字面子串匹配，不做词边界判断
func containsAny(patterns []string) func(string) []string {
	return func(code string) []string {
		var matched []string
		for _, p := range patterns {
			if strings.Contains(code, p) {
				matched = append(matched, p)
			}
		}
		return matched
	}
}

// ownershipRisk 存在 onlyowner 且没有 renounceownership
func ownershipRisk(code string) []string {
	if strings.Contains(code, "onlyowner") && !strings.Contains(code, "renounceownership") {
		return []string{"onlyowner"}
	}
	return nil
}
