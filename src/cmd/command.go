package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/admi-n/solidity-scamscan/src/config"
	"github.com/admi-n/solidity-scamscan/src/internal"
	"github.com/admi-n/solidity-scamscan/src/internal/download"
	"github.com/admi-n/solidity-scamscan/src/internal/handler"
	"github.com/admi-n/solidity-scamscan/src/internal/metrics"
	"github.com/admi-n/solidity-scamscan/src/internal/report"
	"github.com/admi-n/solidity-scamscan/src/internal/scam"
	"github.com/admi-n/solidity-scamscan/src/internal/server"
	"github.com/admi-n/solidity-scamscan/src/internal/store"
)

// errEncodeFailed analyze 输出了兜底文本
var errEncodeFailed = errors.New("analysis result could not be encoded")

// loadSettings 加载配置并设置默认日志
func loadSettings(cfg *CLIConfig) (*config.Settings, *slog.Logger, error) {
	settings, err := config.LoadSettings(cfg.ConfigPath)
	if err != nil {
		return nil, nil, err
	}
	level := settings.LogLevel()
	if cfg.Verbose {
		level = slog.LevelDebug
	}
	logger := newLogger(level)
	slog.SetDefault(logger)
	return settings, logger, nil
}

// openStore 打开数据库；未配置 DSN 时 required=false 返回 nil
func openStore(ctx context.Context, settings *config.Settings, required bool) (store.Store, error) {
	if strings.TrimSpace(settings.Database.DSN) == "" {
		if required {
			return nil, errors.New("未配置数据库: 设置 database.dsn 或 SCAMSCAN_DB_DSN")
		}
		return nil, nil
	}
	st, err := store.Open(ctx, settings.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("初始化数据库失败: %w", err)
	}
	return st, nil
}

// openFetcher 配置了 Etherscan key 或 RPC 时创建获取器，否则返回 nil
func openFetcher(ctx context.Context, cfg *CLIConfig, settings *config.Settings, logger *slog.Logger) (*download.Fetcher, error) {
	chainID, err := config.ChainID(cfg.Chain)
	if err != nil {
		return nil, err
	}
	rpcURL, rpcErr := settings.RPCURL(cfg.Chain)
	if settings.Etherscan.APIKey == "" && rpcErr != nil {
		return nil, nil
	}
	return download.NewFetcher(ctx, download.FetcherConfig{
		Chain:  cfg.Chain,
		RPCURL: rpcURL,
		Etherscan: download.EtherscanConfig{
			APIKey:  settings.Etherscan.APIKey,
			BaseURL: settings.Etherscan.BaseURL,
			ChainID: chainID,
		},
		Proxy:   cfg.Proxy,
		Timeout: cfg.Timeout,
		Logger:  logger,
	})
}

// ExecuteAnalyze 分析单个源码，输出 JSON
func ExecuteAnalyze(ctx context.Context, cfg *CLIConfig, path string, stdin io.Reader, stdout, stderr io.Writer) error {
	settings, logger, err := loadSettings(cfg)
	if err != nil {
		return err
	}

	var src []byte
	if path == "-" {
		src, err = io.ReadAll(stdin)
	} else {
		src, err = os.ReadFile(path)
	}
	if err != nil {
		return fmt.Errorf("读取源码失败: %w", err)
	}

	start := time.Now()
	assessment := scam.Analyze(string(src))
	metrics.Observe(assessment, time.Since(start))

	out := scam.Encode(assessment)
	if cfg.Pretty && !scam.IsEncodeFailure(out) {
		out = scam.EncodeIndent(assessment)
	}
	fmt.Fprintln(stdout, out)
	if scam.IsEncodeFailure(out) {
		metrics.EncodeFailed()
		return errEncodeFailed
	}

	if cfg.Verbose {
		for _, f := range assessment.Findings {
			fmt.Fprintf(stderr, "[+%d] %s: %s\n", f.Weight, f.Detector, strings.Join(f.Matched, ", "))
		}
	}

	if cfg.Persist {
		st, err := openStore(ctx, settings, true)
		if err != nil {
			return err
		}
		defer st.Close()
		contract := internal.Contract{Code: string(src)}
		if err := st.Save(ctx, store.NewRecord(contract, assessment)); err != nil {
			return err
		}
		logger.Debug("分析结果已保存", "path", path)
	}
	return nil
}

// ExecuteScan 执行批量扫描
func ExecuteScan(ctx context.Context, cfg *CLIConfig, stdout io.Writer) error {
	source, err := cfg.targetSource()
	if err != nil {
		return err
	}
	if err := internal.ValidateProxyURL(cfg.Proxy); err != nil {
		return err
	}

	settings, logger, err := loadSettings(cfg)
	if err != nil {
		return err
	}

	scanCfg := internal.ScanConfig{
		TargetSource:  source,
		SourceFile:    cfg.SourceFile,
		TargetFile:    cfg.TargetFile,
		TargetAddress: cfg.TargetAddress,
		Chain:         cfg.Chain,
		Verbose:       cfg.Verbose,
		Timeout:       cfg.Timeout,
		BlockRange:    cfg.BlockRange,
		Proxy:         cfg.Proxy,
		OutputDir:     cfg.OutputDir,
		Persist:       cfg.Persist,
	}
	if cfg.Verbose {
		fmt.Fprintf(stdout, "使用配置运行 ScamScan: %+v\n", scanCfg)
	}

	scanner := &handler.Scanner{
		Analyzer: scam.NewAnalyzer(nil),
		Reporter: report.NewReporter(report.NewMarkdownGenerator(), report.NewFileStorage(cfg.OutputDir)),
		Out:      stdout,
		Logger:   logger,
		Pace:     100 * time.Millisecond,
	}

	if source == handler.TargetDB || cfg.Persist {
		fmt.Fprintln(stdout, "📊 正在连接数据库...")
		st, err := openStore(ctx, settings, true)
		if err != nil {
			return err
		}
		defer st.Close()
		scanner.Store = st
		fmt.Fprintln(stdout, "✅ 数据库连接成功!")
	}

	if source != handler.TargetSource {
		fetcher, err := openFetcher(ctx, cfg, settings, logger)
		if err != nil {
			return fmt.Errorf("创建下载器失败: %w", err)
		}
		if fetcher != nil {
			defer fetcher.Close()
			scanner.Fetcher = fetcher
		} else if source != handler.TargetDB {
			return errors.New("按地址扫描需要配置 etherscan.api_key 或对应链的 RPC")
		}
	}

	fmt.Fprintln(stdout, "\n"+strings.Repeat("=", 50))
	fmt.Fprintln(stdout, "🎯 开始扫描...")
	fmt.Fprintln(stdout, strings.Repeat("=", 50))

	_, _, err = scanner.Run(ctx, scanCfg)
	return err
}

// ExecuteServe 启动 HTTP 服务
func ExecuteServe(ctx context.Context, cfg *CLIConfig) error {
	settings, logger, err := loadSettings(cfg)
	if err != nil {
		return err
	}

	addr := cfg.Addr
	if addr == "" {
		addr = settings.Server.Addr
	}
	if !cfg.Verbose {
		gin.SetMode(gin.ReleaseMode)
	}

	analyzer := scam.NewAnalyzer(nil)
	logger.Debug("加载检测规则", "rules", len(analyzer.Rules()), "max_score", scam.MaxScore(analyzer.Rules()))
	opts := []server.Option{server.WithLogger(logger), server.WithAnalyzer(analyzer)}

	st, err := openStore(ctx, settings, false)
	if err != nil {
		return err
	}
	if st != nil {
		defer st.Close()
		opts = append(opts, server.WithStore(st))
		logger.Info("已启用结果持久化")
	}

	fetcher, err := openFetcher(ctx, cfg, settings, logger)
	if err != nil {
		return fmt.Errorf("创建下载器失败: %w", err)
	}
	if fetcher != nil {
		defer fetcher.Close()
		opts = append(opts, server.WithFetcher(fetcher))
		logger.Info("已启用按地址分析", "chain", cfg.Chain)
	}

	srv := server.New(server.Config{
		Addr:         addr,
		MaxBodyBytes: settings.Server.MaxBodyBytes,
		FetchTimeout: cfg.Timeout,
	}, opts...)
	return srv.ListenAndServe(ctx)
}
