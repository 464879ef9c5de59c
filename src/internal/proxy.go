package internal

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ProxyManager 代理管理器
type ProxyManager struct {
	proxyURL *url.URL
}

// NewProxyManager 创建代理管理器，proxyURL 为空表示不使用代理
func NewProxyManager(proxyURL string) (*ProxyManager, error) {
	proxyURL = strings.TrimSpace(proxyURL)
	if proxyURL == "" {
		return &ProxyManager{}, nil
	}

	if err := ValidateProxyURL(proxyURL); err != nil {
		return nil, err
	}
	u, _ := url.Parse(proxyURL)
	return &ProxyManager{proxyURL: u}, nil
}

// CreateHTTPClient 创建带代理的HTTP客户端
func (pm *ProxyManager) CreateHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: pm.CreateHTTPTransport(),
	}
}

// CreateHTTPTransport 创建带代理的HTTP Transport
func (pm *ProxyManager) CreateHTTPTransport() *http.Transport {
	transport := &http.Transport{
		TLSHandshakeTimeout: 10 * time.Second,
		IdleConnTimeout:     30 * time.Second,
	}

	if pm.proxyURL != nil {
		transport.Proxy = http.ProxyURL(pm.proxyURL)
	} else {
		transport.Proxy = http.ProxyFromEnvironment
	}

	return transport
}

// IsEnabled 检查代理是否启用
func (pm *ProxyManager) IsEnabled() bool {
	return pm.proxyURL != nil
}

// GetProxyURL 获取代理URL，密码会被隐藏
func (pm *ProxyManager) GetProxyURL() string {
	if pm.proxyURL != nil {
		return pm.proxyURL.Redacted()
	}
	return ""
}

// ValidateProxyURL 验证代理URL格式
func ValidateProxyURL(proxyURL string) error {
	if strings.TrimSpace(proxyURL) == "" {
		return nil // 空字符串表示不使用代理
	}

	u, err := url.Parse(proxyURL)
	if err != nil {
		return fmt.Errorf("invalid proxy URL format: %w", err)
	}

	// 检查协议
	if u.Scheme != "http" && u.Scheme != "https" && u.Scheme != "socks5" {
		return fmt.Errorf("unsupported proxy scheme: %s (supported: http, https, socks5)", u.Scheme)
	}

	// 检查主机名
	if u.Host == "" {
		return fmt.Errorf("proxy host cannot be empty")
	}

	return nil
}
