package scam

import (
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnalyze_EmptyInput(t *testing.T) {
	got := Analyze("")

	assert.Equal(t, uint8(0), got.RiskScore)
	assert.Equal(t, LevelLow, got.RiskLevel)
	assert.Empty(t, got.Issues)
	assert.Equal(t, []string{RecommendSafe}, got.Recommendations)
	assert.Equal(t, `{"risk_score":0,"risk_level":"LOW","issues":[],"recommendations":["SAFE: Appears legitimate"]}`, Encode(got))
}

func TestAnalyze_Table(t *testing.T) {
	tests := []struct {
		name   string
		source string
		score  uint8
		level  RiskLevel
		issues []string
		rec    string
	}{
		{
			name:   "honeypot only, score 30 stays SAFE",
			source: "selllimit",
			score:  30,
			level:  LevelLow,
			issues: []string{"Honeypot pattern detected"},
			rec:    RecommendSafe,
		},
		{
			name:   "ownership without renounce",
			source: "modifier onlyOwner() {}",
			score:  25,
			level:  LevelLow,
			issues: []string{"Centralized ownership risk"},
			rec:    RecommendSafe,
		},
		{
			name:   "ownership with renounce",
			source: "onlyOwner ... function renounceOwnership()",
			score:  0,
			level:  LevelLow,
			issues: []string{},
			rec:    RecommendSafe,
		},
		{
			name:   "rug pull plus fee is 60, still CAUTION",
			source: "function mint(address,uint256) external; function setFee(uint x)",
			score:  60,
			level:  LevelMedium,
			issues: []string{"Rug pull pattern detected", "Dynamic fee manipulation possible"},
			rec:    RecommendCaution,
		},
		{
			name:   "rug pull alone hits MEDIUM",
			source: "function withdrawETH() external",
			score:  40,
			level:  LevelMedium,
			issues: []string{"Rug pull pattern detected"},
			rec:    RecommendCaution,
		},
		{
			name:   "honeypot plus rug pull",
			source: "maxSell transferOwnership",
			score:  70,
			level:  LevelHigh,
			issues: []string{"Honeypot pattern detected", "Rug pull pattern detected"},
			rec:    RecommendAvoid,
		},
		{
			name:   "fee plus ownership",
			source: "updateTax onlyowner",
			score:  45,
			level:  LevelMedium,
			issues: []string{"Centralized ownership risk", "Dynamic fee manipulation possible"},
			rec:    RecommendCaution,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Analyze(tt.source)
			assert.Equal(t, tt.score, got.RiskScore)
			assert.Equal(t, tt.level, got.RiskLevel)
			assert.Equal(t, tt.issues, got.Issues)
			assert.Equal(t, []string{tt.rec}, got.Recommendations)
		})
	}
}

func TestAnalyze_AllDetectorsFixedOrder(t *testing.T) {
	// 模式在源码中的出现顺序与规则表相反
	source := "changeFee(); onlyOwner; drainLiquidity(); isBlacklisted[x]"

	got := Analyze(source)

	assert.Equal(t, uint8(115), got.RiskScore)
	assert.Equal(t, LevelHigh, got.RiskLevel)
	assert.Equal(t, []string{RecommendAvoid}, got.Recommendations)
	assert.Equal(t, []string{
		"Honeypot pattern detected",
		"Rug pull pattern detected",
		"Centralized ownership risk",
		"Dynamic fee manipulation possible",
	}, got.Issues)
}

func TestAnalyze_CaseInsensitive(t *testing.T) {
	lower := Analyze("onlyowner")
	upper := Analyze("ONLYOWNER")

	assert.Equal(t, lower, upper)
	assert.Equal(t, uint8(25), upper.RiskScore)
}

func TestAnalyze_SubstringInsideIdentifier(t *testing.T) {
	// 字面匹配会命中注释和标识符中的片段
	got := Analyze("// we never call _setFeeReceiver here")
	assert.Equal(t, []string{"Dynamic fee manipulation possible"}, got.Issues)
}

func TestAnalyze_ScoreCeiling(t *testing.T) {
	all := strings.Join(append(append(append([]string{}, honeypotPatterns...), rugPullPatterns...), feePatterns...), " ") + " onlyowner"

	got := Analyze(all)

	assert.Equal(t, uint8(MaxScore(DefaultRules())), got.RiskScore)
	assert.Equal(t, 115, MaxScore(DefaultRules()))
	require.Len(t, got.Findings, 4)
	assert.Equal(t, honeypotPatterns, got.Findings[0].Matched)
	assert.Equal(t, rugPullPatterns, got.Findings[1].Matched)
}

func TestAnalyze_DoesNotMutateInput(t *testing.T) {
	source := "contract Token { function SetFee() onlyOwner {} }"
	orig := strings.Clone(source)

	Analyze(source)

	assert.Equal(t, orig, source)
}

func TestAnalyzeJSON_Idempotent(t *testing.T) {
	source := "pragma solidity ^0.8.0; contract X { bool tradingEnabled; function emergencyWithdraw() onlyOwner {} }"

	first := AnalyzeJSON(source)
	second := AnalyzeJSON(source)

	assert.Equal(t, first, second)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(first), &decoded))
	assert.EqualValues(t, 95, decoded["risk_score"])
	assert.Equal(t, "HIGH", decoded["risk_level"])
}

func TestAnalyze_Concurrent(t *testing.T) {
	source := "maxsell withdrawtokens"
	want := AnalyzeJSON(source)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.Equal(t, want, AnalyzeJSON(source))
		}()
	}
	wg.Wait()
}

func TestDefaultRules_ReturnsCopy(t *testing.T) {
	rules := DefaultRules()
	rules[0].Weight = 99
	rules[0].Issue = "changed"

	got := Analyze("selllimit")
	assert.Equal(t, uint8(30), got.RiskScore)
	assert.Equal(t, []string{"Honeypot pattern detected"}, got.Issues)
}

func TestNewAnalyzer_OwnsRules(t *testing.T) {
	rules := DefaultRules()
	a := NewAnalyzer(rules)
	rules[1].Weight = 1

	assert.Equal(t, uint8(40), a.Analyze("withdrawEth").RiskScore)
	assert.Len(t, a.Rules(), 4)
}

func TestNewAnalyzer_ClampsCustomRules(t *testing.T) {
	always := func(string) []string { return []string{"*"} }
	a := NewAnalyzer([]DetectorRule{
		{Name: "a", Weight: 200, Issue: "a", Match: always},
		{Name: "b", Weight: 200, Issue: "b", Match: always},
	})

	got := a.Analyze("anything")
	assert.Equal(t, uint8(255), got.RiskScore)
	assert.Equal(t, LevelHigh, got.RiskLevel)
}

func TestClassifyAndRecommendBoundaries(t *testing.T) {
	tests := []struct {
		score uint8
		level RiskLevel
		rec   string
	}{
		{0, LevelLow, RecommendSafe},
		{30, LevelLow, RecommendSafe},
		{31, LevelLow, RecommendCaution},
		{39, LevelLow, RecommendCaution},
		{40, LevelMedium, RecommendCaution},
		{60, LevelMedium, RecommendCaution},
		{61, LevelMedium, RecommendAvoid},
		{69, LevelMedium, RecommendAvoid},
		{70, LevelHigh, RecommendAvoid},
		{115, LevelHigh, RecommendAvoid},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.level, Classify(tt.score), "level for %d", tt.score)
		assert.Equal(t, tt.rec, Recommend(tt.score), "recommendation for %d", tt.score)
	}
}

func TestEncode_Failure(t *testing.T) {
	orig := marshal
	marshal = func(any) ([]byte, error) { return nil, errors.New("boom") }
	defer func() { marshal = orig }()

	out := AnalyzeJSON("selllimit")

	assert.Equal(t, EncodeFailure, out)
	assert.True(t, IsEncodeFailure(out))
	assert.False(t, json.Valid([]byte(out)))
}

func TestEncode_FieldOrder(t *testing.T) {
	out := Encode(RiskAssessment{RiskScore: 20, RiskLevel: LevelLow, Issues: []string{"x"}, Recommendations: []string{RecommendSafe}})
	assert.Equal(t, `{"risk_score":20,"risk_level":"LOW","issues":["x"],"recommendations":["SAFE: Appears legitimate"]}`, out)
}
