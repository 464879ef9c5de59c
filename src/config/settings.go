package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultSettingsPath 默认配置文件路径
const DefaultSettingsPath = "src/config/settings.yaml"

// Settings 全局配置结构
type Settings struct {
	Database struct {
		DSN string `yaml:"dsn"`
	} `yaml:"database"`

	RPC struct {
		Ethereum string `yaml:"ethereum"`
		BSC      string `yaml:"bsc"`
		Arbitrum string `yaml:"arbitrum"`
	} `yaml:"rpc"`

	Etherscan struct {
		APIKey  string `yaml:"api_key"`
		BaseURL string `yaml:"base_url"`
	} `yaml:"etherscan"`

	Server struct {
		Addr         string `yaml:"addr"`
		MaxBodyBytes int64  `yaml:"max_body_bytes"`
	} `yaml:"server"`

	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
}

// Defaults 返回带默认值的配置
func Defaults() *Settings {
	s := &Settings{}
	s.Etherscan.BaseURL = "https://api.etherscan.io/v2"
	s.Server.Addr = ":8080"
	s.Server.MaxBodyBytes = 4 << 20
	s.Log.Level = "info"
	return s
}

// LoadSettings 加载配置：.env -> yaml 文件 -> 环境变量覆盖。
// 配置文件不存在不算错误，使用默认值。
func LoadSettings(configPath string) (*Settings, error) {
	// .env 可选
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Debug("加载 .env 失败", "error", err)
	}

	if configPath == "" {
		configPath = DefaultSettingsPath
	}

	s := Defaults()
	data, err := os.ReadFile(configPath)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, s); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
		}
	case errors.Is(err, os.ErrNotExist):
		slog.Debug("配置文件不存在，使用默认值", "path", configPath)
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	s.applyEnv()
	return s, nil
}

// applyEnv 环境变量优先于配置文件
func (s *Settings) applyEnv() {
	overrides := []struct {
		key string
		dst *string
	}{
		{"SCAMSCAN_DB_DSN", &s.Database.DSN},
		{"ETHERSCAN_API_KEY", &s.Etherscan.APIKey},
		{"ETHERSCAN_BASE_URL", &s.Etherscan.BaseURL},
		{"ETH_RPC_URL", &s.RPC.Ethereum},
		{"BSC_RPC_URL", &s.RPC.BSC},
		{"ARB_RPC_URL", &s.RPC.Arbitrum},
		{"SCAMSCAN_ADDR", &s.Server.Addr},
		{"SCAMSCAN_LOG_LEVEL", &s.Log.Level},
	}
	for _, o := range overrides {
		if v := strings.TrimSpace(os.Getenv(o.key)); v != "" {
			*o.dst = v
		}
	}
	if v := os.Getenv("SCAMSCAN_MAX_BODY_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			s.Server.MaxBodyBytes = n
		}
	}
}

// RPCURL 根据链名称返回 RPC 地址
func (s *Settings) RPCURL(chain string) (string, error) {
	var u string
	switch strings.ToLower(chain) {
	case "", "eth", "ethereum":
		u = s.RPC.Ethereum
	case "bsc":
		u = s.RPC.BSC
	case "arb", "arbitrum":
		u = s.RPC.Arbitrum
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedChain, chain)
	}
	if u == "" {
		return "", fmt.Errorf("RPC URL 未配置: chain=%s", chain)
	}
	return u, nil
}

// ErrUnsupportedChain 未知的链名称
var ErrUnsupportedChain = errors.New("unsupported chain")

// ChainID Etherscan v2 使用的链 ID，未知链返回 ErrUnsupportedChain
func ChainID(chain string) (string, error) {
	switch strings.ToLower(chain) {
	case "", "eth", "ethereum":
		return "1", nil
	case "bsc":
		return "56", nil
	case "arb", "arbitrum":
		return "42161", nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedChain, chain)
	}
}

// LogLevel 解析日志级别
func (s *Settings) LogLevel() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(s.Log.Level)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}
