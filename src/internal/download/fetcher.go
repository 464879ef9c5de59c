package download

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/admi-n/solidity-scamscan/src/internal"
)

var (
	// ErrInvalidAddress 地址格式不合法
	ErrInvalidAddress = errors.New("invalid contract address")
	// ErrBytecodeOnly 合约未开源，只能取到字节码
	ErrBytecodeOnly = errors.New("contract source not verified, bytecode only")
	// ErrNotFound 既没有已验证源码，也没有链上代码
	ErrNotFound = errors.New("contract not found")
)

// CodeReader 读取链上代码，*ethclient.Client 满足该接口
type CodeReader interface {
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
	Close()
}

// ContractFetcher 按地址获取已开源合约源码，*Fetcher 满足该接口
type ContractFetcher interface {
	FetchSource(ctx context.Context, address string) (internal.Contract, error)
}

// FetcherConfig 获取器配置
type FetcherConfig struct {
	Chain     string
	RPCURL    string // 为空则不做链上回退
	Etherscan EtherscanConfig
	Proxy     string
	Timeout   time.Duration
	Logger    *slog.Logger
}

// Fetcher 按地址获取合约源码：优先 Etherscan 已验证源码，回退为链上字节码
type Fetcher struct {
	chain       string
	code        CodeReader
	etherscan   EtherscanConfig
	rateLimiter *RateLimiter
	logger      *slog.Logger
}

// NewFetcher 创建获取器
func NewFetcher(ctx context.Context, cfg FetcherConfig) (*Fetcher, error) {
	pm, err := internal.NewProxyManager(cfg.Proxy)
	if err != nil {
		return nil, fmt.Errorf("解析 proxy URL 失败: %w", err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ethersCfg := cfg.Etherscan
	if ethersCfg.Client == nil {
		ethersCfg.Client = pm.CreateHTTPClient(timeout)
	}

	var reader CodeReader
	if strings.TrimSpace(cfg.RPCURL) != "" {
		// 节点请求与 Etherscan 共用同一个代理
		rpcClient, err := rpc.DialOptions(ctx, cfg.RPCURL, rpc.WithHTTPClient(pm.CreateHTTPClient(timeout)))
		if err != nil {
			return nil, fmt.Errorf("连接节点失败: %w", err)
		}
		reader = ethclient.NewClient(rpcClient)
		logger.Info("已连接节点", "chain", cfg.Chain, "proxy", pm.GetProxyURL())
	}

	return newFetcher(cfg.Chain, reader, ethersCfg, logger), nil
}

func newFetcher(chain string, reader CodeReader, ethersCfg EtherscanConfig, logger *slog.Logger) *Fetcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{
		chain:       chain,
		code:        reader,
		etherscan:   ethersCfg,
		rateLimiter: NewRateLimiter(5),
		logger:      logger,
	}
}

// Fetch 获取合约；未开源的合约返回 IsOpenSource=false 且 Code 为 0x 字节码
func (f *Fetcher) Fetch(ctx context.Context, address string) (internal.Contract, error) {
	address = strings.TrimSpace(address)
	if !common.IsHexAddress(address) {
		return internal.Contract{}, fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}
	caddr := common.HexToAddress(address)
	contract := internal.Contract{Address: caddr.Hex(), Chain: f.chain}

	if f.etherscan.APIKey != "" {
		if err := f.rateLimiter.Wait(ctx); err != nil {
			return internal.Contract{}, err
		}
		src, verified, err := GetContractSource(ctx, contract.Address, f.etherscan)
		switch {
		case err != nil:
			// 查询失败时回退为字节码
			f.logger.Warn("查询 Etherscan 失败，回退链上字节码", "address", contract.Address, "error", err)
		case verified:
			contract.Code = src
			contract.IsOpenSource = true
			return contract, nil
		}
	}

	if f.code == nil {
		return internal.Contract{}, fmt.Errorf("%w: %s (无已验证源码且未配置 RPC)", ErrNotFound, contract.Address)
	}

	code, err := f.code.CodeAt(ctx, caddr, nil)
	if err != nil {
		return internal.Contract{}, fmt.Errorf("获取合约字节码失败: %w", err)
	}
	if len(code) == 0 {
		return internal.Contract{}, fmt.Errorf("%w: %s 不是合约地址", ErrNotFound, contract.Address)
	}
	contract.Code = fmt.Sprintf("0x%x", code)
	return contract, nil
}

var _ ContractFetcher = (*Fetcher)(nil)

// FetchSource 只返回已开源合约的源码，字节码返回 ErrBytecodeOnly
func (f *Fetcher) FetchSource(ctx context.Context, address string) (internal.Contract, error) {
	c, err := f.Fetch(ctx, address)
	if err != nil {
		return internal.Contract{}, err
	}
	if !c.IsOpenSource || IsOnlyBytecode(c.Code) {
		return c, fmt.Errorf("%w: %s", ErrBytecodeOnly, c.Address)
	}
	return c, nil
}

// Close 关闭连接
func (f *Fetcher) Close() {
	f.rateLimiter.Stop()
	if f.code != nil {
		f.code.Close()
	}
}

// IsOnlyBytecode 检查是否为纯字节码（未开源）
func IsOnlyBytecode(code string) bool {
	code = strings.TrimSpace(code)
	if len(code) < 10 {
		return true
	}
	if !strings.HasPrefix(code, "0x") {
		return false
	}
	for _, c := range code[2:] {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')) {
			return false
		}
	}
	return true
}
