package download

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"
)

// EtherscanConfig Etherscan API 配置
type EtherscanConfig struct {
	APIKey  string
	BaseURL string
	ChainID string       // v2 接口的 chainid，默认 1
	Client  *http.Client // 为空时使用 20s 超时的默认客户端
}

// EtherscanResponse Etherscan API 响应结构
type EtherscanResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Result  []struct {
		SourceCode      string `json:"SourceCode"`
		ContractName    string `json:"ContractName"`
		CompilerVersion string `json:"CompilerVersion"`
		Proxy           string `json:"Proxy"`
		Implementation  string `json:"Implementation"`
	} `json:"result"`
}

const maxAttempts = 3

// GetContractSource 从 Etherscan 获取合约源代码和验证状态
func GetContractSource(ctx context.Context, address string, cfg EtherscanConfig) (sourceCode string, isVerified bool, err error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return "", false, fmt.Errorf("空的地址传入 GetContractSource")
	}

	base := strings.TrimRight(cfg.BaseURL, "/")
	u, err := url.Parse(base)
	if err != nil {
		return "", false, fmt.Errorf("解析 Etherscan BaseURL 失败: %w", err)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/api"

	chainID := cfg.ChainID
	if chainID == "" {
		chainID = "1"
	}

	q := url.Values{}
	q.Set("module", "contract")
	q.Set("action", "getsourcecode")
	q.Set("address", address)
	q.Set("apikey", strings.TrimSpace(cfg.APIKey))
	q.Set("chainid", chainID)
	u.RawQuery = q.Encode()
	finalURL := u.String()

	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}

	// 短暂网络错误/EOF/超时时重试
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, finalURL, nil)
		if err != nil {
			return "", false, fmt.Errorf("构建 Etherscan 请求失败: %w", err)
		}
		req.Header.Set("User-Agent", "solidity-scamscan/1.0")

		resp, err := client.Do(req)
		if err != nil {
			lastErr = err
			if isTemporaryNetErr(err) && attempt < maxAttempts {
				if werr := backoff(ctx, attempt); werr != nil {
					return "", false, werr
				}
				continue
			}
			return "", false, fmt.Errorf("请求 Etherscan API 失败: %w", err)
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			lastErr = readErr
			if isTemporaryNetErr(readErr) && attempt < maxAttempts {
				if werr := backoff(ctx, attempt); werr != nil {
					return "", false, werr
				}
				continue
			}
			return "", false, fmt.Errorf("读取 Etherscan 响应失败: %w", readErr)
		}

		if resp.StatusCode != http.StatusOK {
			snippet := string(body)
			if len(snippet) > 1024 {
				snippet = snippet[:1024]
			}
			return "", false, fmt.Errorf("Etherscan 返回非 200 状态: %d, body: %s", resp.StatusCode, snippet)
		}

		var etherscanResp EtherscanResponse
		if jerr := json.Unmarshal(body, &etherscanResp); jerr != nil {
			return "", false, fmt.Errorf("解析 Etherscan JSON 失败: %w", jerr)
		}

		// status != "1" 表示未验证或业务层面的问题，不是网络错误
		if etherscanResp.Status != "1" || len(etherscanResp.Result) == 0 {
			return "", false, nil
		}
		res := etherscanResp.Result[0]
		if strings.TrimSpace(res.SourceCode) == "" {
			return "", false, nil
		}
		return FlattenSource(res.SourceCode), true, nil
	}

	return "", false, fmt.Errorf("请求 Etherscan 多次失败: %w", lastErr)
}

// standardJSONInput solc standard-json 输入中我们关心的部分
type standardJSONInput struct {
	Sources map[string]struct {
		Content string `json:"content"`
	} `json:"sources"`
}

// FlattenSource 多文件合约（standard-json，Etherscan 以 {{...}} 包裹）按路径排序拼接为单个文本；
// 普通单文件源码原样返回。
func FlattenSource(src string) string {
	trimmed := strings.TrimSpace(src)
	if !strings.HasPrefix(trimmed, "{") {
		return src
	}
	if strings.HasPrefix(trimmed, "{{") && strings.HasSuffix(trimmed, "}}") {
		trimmed = trimmed[1 : len(trimmed)-1]
	}

	var input standardJSONInput
	if err := json.Unmarshal([]byte(trimmed), &input); err == nil && len(input.Sources) > 0 {
		return joinSources(input.Sources)
	}

	// 另一种格式：直接是 {"path": {"content": ...}}
	var files map[string]struct {
		Content string `json:"content"`
	}
	if err := json.Unmarshal([]byte(trimmed), &files); err == nil && len(files) > 0 {
		return joinSources(files)
	}
	return src
}

func joinSources(files map[string]struct {
	Content string `json:"content"`
}) string {
	paths := make([]string, 0, len(files))
	for p := range files {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	var sb strings.Builder
	for _, p := range paths {
		sb.WriteString("// File: " + p + "\n")
		sb.WriteString(files[p].Content)
		sb.WriteString("\n")
	}
	return sb.String()
}

func backoff(ctx context.Context, attempt int) error {
	t := time.NewTimer(time.Duration(attempt) * 500 * time.Millisecond)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// isTemporaryNetErr 判断是否为可重试的网络错误
func isTemporaryNetErr(err error) bool {
	if err == nil {
		return false
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return ne.Timeout()
	}
	return errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF)
}

// RateLimiter 简单的速率限制器
type RateLimiter struct {
	ticker *time.Ticker
}

// NewRateLimiter 创建速率限制器（每秒最多 requestsPerSecond 个请求）
func NewRateLimiter(requestsPerSecond int) *RateLimiter {
	if requestsPerSecond <= 0 {
		requestsPerSecond = 5
	}
	interval := time.Second / time.Duration(requestsPerSecond)
	return &RateLimiter{
		ticker: time.NewTicker(interval),
	}
}

// Wait 等待直到可以发送下一个请求
func (r *RateLimiter) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-r.ticker.C:
		return nil
	}
}

// Stop 停止速率限制器
func (r *RateLimiter) Stop() {
	r.ticker.Stop()
}
