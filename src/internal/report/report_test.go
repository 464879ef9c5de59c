package report

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/admi-n/solidity-scamscan/src/internal/scam"
)

func sampleReport() *Report {
	r := NewReport("file", "eth")
	r.AddScanResult(NewScanResult("0x01", "eth", scam.Analyze("maxSell drainLiquidity")))
	r.AddScanResult(NewScanResult("0x02", "eth", scam.Analyze("contract Clean {}")))
	r.AddScanResult(NewScanResult("0x03", "eth", scam.Analyze("withdrawTokens")))
	r.AddScanResult(NewSkippedResult("0x04", "eth", StatusSkipped, "bytecode only"))
	return r
}

func TestReport_Counts(t *testing.T) {
	r := sampleReport()

	assert.Equal(t, 4, r.TotalContracts)
	assert.Equal(t, 3, r.AnalyzedContracts)
	assert.Equal(t, 2, r.FlaggedContracts)
	assert.Equal(t, 1, r.LevelDistribution[scam.LevelHigh])
	assert.Equal(t, 1, r.LevelDistribution[scam.LevelMedium])
	assert.Equal(t, 1, r.LevelDistribution[scam.LevelLow])
}

func TestMarkdownGenerator(t *testing.T) {
	out, err := NewMarkdownGenerator().Generate(sampleReport())
	require.NoError(t, err)

	assert.Contains(t, out, "- **总合约数**: 4")
	assert.Contains(t, out, "- **HIGH**: 1")
	assert.Contains(t, out, "### 合约地址: 0x01")
	assert.Contains(t, out, "**风险评分**: 70")
	assert.Contains(t, out, "🔴 HIGH")
	assert.Contains(t, out, "`maxsell`")
	assert.Contains(t, out, "**原因**: bytecode only")
	assert.Contains(t, out, scam.RecommendAvoid)
}

func TestReporter_GenerateAndSave(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "reports")
	reporter := NewReporter(NewMarkdownGenerator(), NewFileStorage(dir))

	path, err := reporter.GenerateAndSave(sampleReport())
	require.NoError(t, err)

	assert.Equal(t, dir, filepath.Dir(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Solidity ScamScan")
}
