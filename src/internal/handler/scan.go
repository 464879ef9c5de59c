package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/admi-n/solidity-scamscan/src/internal"
	"github.com/admi-n/solidity-scamscan/src/internal/download"
	"github.com/admi-n/solidity-scamscan/src/internal/metrics"
	"github.com/admi-n/solidity-scamscan/src/internal/report"
	"github.com/admi-n/solidity-scamscan/src/internal/scam"
	"github.com/admi-n/solidity-scamscan/src/internal/store"
)

// 目标来源
const (
	TargetSource  = "source"
	TargetAddress = "address"
	TargetFile    = "file"
	TargetDB      = "db"
)

// dbTargetLimit 从数据库读取的最大地址数
const dbTargetLimit = 1000

// Scanner 批量扫描器
type Scanner struct {
	Analyzer *scam.Analyzer
	Fetcher  download.ContractFetcher // 可为空，仅 --source 时不需要
	Store    store.Store     // 可为空
	Reporter *report.Reporter
	Out      io.Writer
	Logger   *slog.Logger
	Pace     time.Duration // 每个合约之间的间隔，避免请求过快
}

type target struct {
	address string
	source  string // 非空表示源码已就绪
}

// Run 执行批量扫描，返回报告及其保存路径（无 Reporter 时路径为空）
func (s *Scanner) Run(ctx context.Context, cfg internal.ScanConfig) (*report.Report, string, error) {
	s.defaults()

	targets, err := s.collectTargets(ctx, cfg)
	if err != nil {
		return nil, "", err
	}

	rep := report.NewReport(cfg.TargetSource, cfg.Chain)
	if len(targets) == 0 {
		fmt.Fprintln(s.Out, "⚠️  没有找到可扫描的合约")
		return rep, "", nil
	}
	fmt.Fprintf(s.Out, "📋 共找到 %d 个目标合约\n", len(targets))

	for i, t := range targets {
		if err := ctx.Err(); err != nil {
			return rep, "", err
		}
		fmt.Fprintf(s.Out, "\n[%d/%d] 处理合约: %s\n", i+1, len(targets), t.address)

		contract, err := s.resolve(ctx, cfg, t)
		if err != nil {
			status := report.StatusFailed
			if errors.Is(err, download.ErrBytecodeOnly) {
				status = report.StatusSkipped
				fmt.Fprintln(s.Out, "  ⏭️  合约未开源（仅字节码），跳过分析")
			} else {
				fmt.Fprintf(s.Out, "  ⚠️  获取合约代码失败: %v，跳过\n", err)
			}
			rep.AddScanResult(report.NewSkippedResult(t.address, cfg.Chain, status, err.Error()))
			continue
		}

		start := time.Now()
		assessment := s.Analyzer.Analyze(contract.Code)
		metrics.Observe(assessment, time.Since(start))

		result := report.NewScanResult(contract.Address, cfg.Chain, assessment)
		rep.AddScanResult(result)

		fmt.Fprintf(s.Out, "%s\n", strings.Repeat("=", 50))
		printRiskSummary(s.Out, result, cfg.Verbose)
		fmt.Fprintf(s.Out, "%s\n", strings.Repeat("=", 50))

		if cfg.Persist && s.Store != nil {
			if err := s.Store.Save(ctx, store.NewRecord(contract, assessment)); err != nil {
				s.Logger.Warn("保存分析结果失败", "address", contract.Address, "error", err)
			}
		}

		if s.Pace > 0 && i < len(targets)-1 {
			time.Sleep(s.Pace)
		}
	}

	fmt.Fprintf(s.Out, "\n%s\n", strings.Repeat("=", 50))
	fmt.Fprintf(s.Out, "✅ 扫描完成！\n")
	fmt.Fprintf(s.Out, "   - 总合约数: %d\n", rep.TotalContracts)
	fmt.Fprintf(s.Out, "   - 成功分析: %d\n", rep.AnalyzedContracts)
	fmt.Fprintf(s.Out, "   - 失败/跳过: %d\n", rep.TotalContracts-rep.AnalyzedContracts)
	fmt.Fprintf(s.Out, "   - 存在风险模式的合约: %d\n", rep.FlaggedContracts)
	fmt.Fprintf(s.Out, "%s\n\n", strings.Repeat("=", 50))

	if s.Reporter == nil || rep.TotalContracts == 0 {
		return rep, "", nil
	}
	fmt.Fprintln(s.Out, "📄 生成扫描报告...")
	path, err := s.Reporter.GenerateAndSave(rep)
	if err != nil {
		return rep, "", fmt.Errorf("生成报告失败: %w", err)
	}
	fmt.Fprintf(s.Out, "✅ 报告已保存: %s\n", path)
	return rep, path, nil
}

func (s *Scanner) defaults() {
	if s.Analyzer == nil {
		s.Analyzer = scam.NewAnalyzer(nil)
	}
	if s.Out == nil {
		s.Out = io.Discard
	}
	if s.Logger == nil {
		s.Logger = slog.Default()
	}
}

// collectTargets 根据目标来源获取待扫描列表
func (s *Scanner) collectTargets(ctx context.Context, cfg internal.ScanConfig) ([]target, error) {
	switch strings.ToLower(cfg.TargetSource) {
	case TargetSource:
		bs, err := os.ReadFile(cfg.SourceFile)
		if err != nil {
			return nil, fmt.Errorf("读取源码文件失败: %w", err)
		}
		return []target{{address: filepath.Base(cfg.SourceFile), source: string(bs)}}, nil

	case TargetAddress, "contract":
		addr := strings.TrimSpace(cfg.TargetAddress)
		if addr == "" {
			return nil, fmt.Errorf("缺少目标合约地址: --address")
		}
		return []target{{address: addr}}, nil

	case TargetFile:
		addrs, err := getAddressesFromFile(cfg.TargetFile)
		if err != nil {
			return nil, fmt.Errorf("从文件获取地址失败: %w", err)
		}
		return toTargets(addrs), nil

	case TargetDB:
		if s.Store == nil {
			return nil, fmt.Errorf("--db 需要配置数据库 (database.dsn)")
		}
		addrs, err := s.Store.ContractAddresses(ctx, cfg.BlockRange, dbTargetLimit)
		if err != nil {
			return nil, fmt.Errorf("从数据库获取地址失败: %w", err)
		}
		return toTargets(addrs), nil

	default:
		return nil, fmt.Errorf("不支持的目标源: %s", cfg.TargetSource)
	}
}

// resolve 获取目标源码：已就绪 -> 数据库 -> 下载
func (s *Scanner) resolve(ctx context.Context, cfg internal.ScanConfig, t target) (internal.Contract, error) {
	if t.source != "" {
		return internal.Contract{Address: t.address, Code: t.source, Chain: cfg.Chain, IsOpenSource: true}, nil
	}

	if s.Store != nil {
		code, err := s.Store.ContractSource(ctx, t.address)
		if err != nil {
			s.Logger.Debug("从数据库读取合约失败", "address", t.address, "error", err)
		} else if code != "" && !download.IsOnlyBytecode(code) {
			fmt.Fprintln(s.Out, "  ✓ 从数据库读取合约代码")
			return internal.Contract{Address: t.address, Code: code, Chain: cfg.Chain, IsOpenSource: true}, nil
		}
	}

	if s.Fetcher == nil {
		return internal.Contract{}, fmt.Errorf("未配置 Etherscan/RPC，无法下载合约")
	}

	fetchCtx := ctx
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}
	fmt.Fprintln(s.Out, "  ↓ 正在下载合约源码...")
	return s.Fetcher.FetchSource(fetchCtx, t.address)
}

func toTargets(addrs []string) []target {
	seen := make(map[string]struct{}, len(addrs))
	out := make([]target, 0, len(addrs))
	for _, a := range addrs {
		key := strings.ToLower(a)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, target{address: a})
	}
	return out
}

// getAddressesFromFile 从文件获取地址列表
func getAddressesFromFile(filepathStr string) ([]string, error) {
	if strings.TrimSpace(filepathStr) == "" {
		return nil, fmt.Errorf("文件路径为空")
	}
	bs, err := os.ReadFile(filepathStr)
	if err != nil {
		return nil, err
	}
	lines := strings.Split(string(bs), "\n")
	addrs := make([]string, 0, len(lines))
	for _, l := range lines {
		line := strings.TrimSpace(l)
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "//") {
			continue
		}
		// 支持以逗号或空格分隔的多字段，取第一个字段
		fields := strings.FieldsFunc(line, func(r rune) bool { return r == ',' || r == ' ' || r == '\t' })
		if len(fields) == 0 {
			continue
		}
		addrs = append(addrs, strings.TrimSpace(fields[0]))
	}
	return addrs, nil
}

// printRiskSummary 打印风险摘要
func printRiskSummary(w io.Writer, result report.ScanResult, verbose bool) {
	a := result.Assessment
	if a == nil {
		return
	}

	fmt.Fprintf(w, "  %s 风险评分: %d  等级: %s\n", levelEmoji(a.RiskLevel), a.RiskScore, a.RiskLevel)
	if len(a.Issues) == 0 {
		fmt.Fprintln(w, "  ✅ 未发现风险模式")
	} else {
		fmt.Fprintf(w, "  ⚠️  发现 %d 个风险模式:\n", len(a.Issues))
		for i, f := range a.Findings {
			fmt.Fprintf(w, "    %d. [+%d] %s\n", i+1, f.Weight, f.Issue)
			if verbose {
				fmt.Fprintf(w, "       命中: %s\n", strings.Join(f.Matched, ", "))
			}
		}
	}
	if len(a.Recommendations) > 0 {
		fmt.Fprintf(w, "  建议: %s\n", a.Recommendations[0])
	}
}

// levelEmoji 根据风险等级返回对应的表情符号
func levelEmoji(level scam.RiskLevel) string {
	switch level {
	case scam.LevelHigh:
		return "🔴"
	case scam.LevelMedium:
		return "🟡"
	case scam.LevelLow:
		return "🟢"
	default:
		return "⚪"
	}
}
