package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/admi-n/solidity-scamscan/src/config"
	"github.com/admi-n/solidity-scamscan/src/internal"
)

// CLIConfig 保存解析好的 CLI 选项
type CLIConfig struct {
	ConfigPath string
	Verbose    bool

	// analyze
	Pretty bool

	// scan
	TargetAddress string
	TargetFile    string
	SourceFile    string
	FromDB        bool
	BlockRange    *internal.BlockRange
	Chain         string
	OutputDir     string
	Proxy         string
	Timeout       time.Duration
	Persist       bool

	// serve
	Addr string
}

// parseBlockRange 解析类似 "1-220234" 或 "1000-"（开放结束）的字符串并返回 BlockRange。
func parseBlockRange(s string) (*internal.BlockRange, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	parts := strings.Split(s, "-")
	if len(parts) != 2 {
		return nil, errors.New("invalid block range format, expected start-end")
	}
	startStr := strings.TrimSpace(parts[0])
	endStr := strings.TrimSpace(parts[1])
	if startStr == "" {
		return nil, errors.New("start block required")
	}
	start, err := strconv.ParseUint(startStr, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid start block: %w", err)
	}
	br := internal.BlockRange{Start: start}
	if endStr == "" {
		br.End = ^uint64(0) // 开放结束
	} else {
		end, err := strconv.ParseUint(endStr, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid end block: %w", err)
		}
		if end < start {
			return nil, errors.New("end block must be >= start block")
		}
		br.End = end
	}
	return &br, nil
}

// targetSource 根据 scan 参数确定目标来源，只允许指定一个
func (c *CLIConfig) targetSource() (string, error) {
	var set []string
	if c.SourceFile != "" {
		set = append(set, "source")
	}
	if c.TargetAddress != "" {
		set = append(set, "address")
	}
	if c.TargetFile != "" {
		set = append(set, "file")
	}
	if c.FromDB {
		set = append(set, "db")
	}
	switch len(set) {
	case 0:
		return "", errors.New("需要指定扫描目标: --source | --address | --file | --db")
	case 1:
		return set[0], nil
	default:
		return "", fmt.Errorf("只能指定一个扫描目标，当前: %s", strings.Join(set, ", "))
	}
}

// newLogger 日志输出到 stderr，stdout 留给结果
func newLogger(level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// NewRootCommand 构建命令树
func NewRootCommand() *cobra.Command {
	cfg := &CLIConfig{}

	root := &cobra.Command{
		Use:           "scamscan",
		Short:         "🔍 Solidity ScamScan - 智能合约诈骗模式扫描工具",
		Long:          "基于固定词法规则检测合约源码中的蜜罐、跑路、中心化权限与动态手续费模式。\n结果只是风险提示，不能证明合约可信或恶意。",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfg.ConfigPath, "config", config.DefaultSettingsPath, "配置文件路径")
	root.PersistentFlags().BoolVarP(&cfg.Verbose, "verbose", "v", false, "详细输出")

	root.AddCommand(newAnalyzeCommand(cfg), newScanCommand(cfg), newServeCommand(cfg))
	return root
}

func newAnalyzeCommand(cfg *CLIConfig) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze [file|-]",
		Short: "分析单个合约源码文件（或标准输入），输出 JSON",
		Example: `  scamscan analyze Token.sol
  cat Token.sol | scamscan analyze --pretty`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "-"
			if len(args) == 1 {
				path = args[0]
			}
			return ExecuteAnalyze(cmd.Context(), cfg, path, cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
	cmd.Flags().BoolVar(&cfg.Pretty, "pretty", false, "缩进输出 JSON")
	cmd.Flags().BoolVar(&cfg.Persist, "store", false, "将结果保存到数据库 (database.dsn)")
	return cmd
}

func newScanCommand(cfg *CLIConfig) *cobra.Command {
	var blockRange string
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "批量扫描合约并生成报告",
		Example: `  scamscan scan --source Token.sol
  scamscan scan --address 0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed -c eth
  scamscan scan --file contracts.txt --proxy http://127.0.0.1:7897
  scamscan scan --db --block 1000-2000 --store`,
		RunE: func(cmd *cobra.Command, args []string) error {
			br, err := parseBlockRange(blockRange)
			if err != nil {
				return err
			}
			cfg.BlockRange = br
			return ExecuteScan(cmd.Context(), cfg, cmd.OutOrStdout())
		},
	}
	f := cmd.Flags()
	f.StringVar(&cfg.SourceFile, "source", "", "合约源码文件")
	f.StringVarP(&cfg.TargetAddress, "address", "a", "", "单个合约地址")
	f.StringVar(&cfg.TargetFile, "file", "", "地址列表文件（每行一个地址，# 或 // 开头为注释）")
	f.BoolVar(&cfg.FromDB, "db", false, "扫描数据库 contracts 表中的已开源合约")
	f.StringVar(&blockRange, "block", "", "与 --db 一起使用的区块范围 (格式 start-end)")
	f.StringVarP(&cfg.Chain, "chain", "c", "eth", "区块链网络: eth | bsc | arb")
	f.StringVar(&cfg.OutputDir, "out", "reports", "报告输出目录")
	f.StringVar(&cfg.Proxy, "proxy", "", "可选 HTTP 代理，例如 http://127.0.0.1:7897")
	f.DurationVar(&cfg.Timeout, "timeout", 30*time.Second, "单个合约下载超时")
	f.BoolVar(&cfg.Persist, "store", false, "将结果保存到数据库 (database.dsn)")
	return cmd
}

func newServeCommand(cfg *CLIConfig) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "启动 HTTP 分析服务",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ExecuteServe(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVar(&cfg.Addr, "addr", "", "监听地址（默认取配置 server.addr）")
	cmd.Flags().StringVarP(&cfg.Chain, "chain", "c", "eth", "按地址分析时使用的网络")
	cmd.Flags().StringVar(&cfg.Proxy, "proxy", "", "可选 HTTP 代理")
	cmd.Flags().DurationVar(&cfg.Timeout, "timeout", 30*time.Second, "按地址分析时的下载超时")
	return cmd
}

// Run 是一个便利包装，解析参数并分派到相应处理器。
func Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return NewRootCommand().ExecuteContext(ctx)
}

// PrintFatal 将错误打印到 stderr 并以非零代码退出。
func PrintFatal(err error) {
	if err == nil {
		return
	}

	fmt.Fprintln(os.Stderr, "错误:", err)
	os.Exit(1)
}
