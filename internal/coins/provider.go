// Package coins 提供 ingest 使用的币种列表来源：静态配置或远程 API。
package coins

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"pricechart/internal/logger"
)

const DefaultQuote = "USDT"

type SymbolProvider interface {
	List(ctx context.Context) ([]string, error)
	Name() string
}

// NormalizeSymbols 转为交易所格式：大写、去掉 "/"、缺少报价币时补 quote，保序去重。
func NormalizeSymbols(symbols []string, quote string) []string {
	quote = strings.ToUpper(strings.TrimSpace(quote))
	if quote == "" {
		quote = DefaultQuote
	}
	seen := make(map[string]struct{}, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		s = strings.ReplaceAll(s, "/", "")
		if s == "" {
			continue
		}
		if !strings.HasSuffix(s, quote) {
			s += quote
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

type StaticProvider struct {
	symbols []string
}

func NewStaticProvider(symbols []string, quote string) *StaticProvider {
	return &StaticProvider{symbols: NormalizeSymbols(symbols, quote)}
}

func (p *StaticProvider) Name() string { return "static" }

func (p *StaticProvider) List(context.Context) ([]string, error) {
	if len(p.symbols) == 0 {
		return nil, errors.New("symbol list is empty")
	}
	out := make([]string, len(p.symbols))
	copy(out, p.symbols)
	return out, nil
}

// HTTPConfig 配置远程币种列表。
type HTTPConfig struct {
	URL     string
	Quote   string
	Timeout time.Duration
	// Refresh 是缓存有效期，过期后下一次 List 重新拉取。
	Refresh time.Duration
	Client  *http.Client
}

// HTTPProvider 从 API 拉取币种列表并缓存；拉取失败时沿用上一次成功的结果。
type HTTPProvider struct {
	cfg HTTPConfig

	mu          sync.Mutex
	symbols     []string
	lastFetched time.Time
	lastErr     error
}

func NewHTTPProvider(cfg HTTPConfig) *HTTPProvider {
	cfg.URL = strings.TrimSpace(cfg.URL)
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Refresh <= 0 {
		cfg.Refresh = time.Hour
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: cfg.Timeout}
	}
	return &HTTPProvider{cfg: cfg}
}

func (p *HTTPProvider) Name() string { return "http" }

// List 返回缓存的列表，缓存过期时先刷新。
func (p *HTTPProvider) List(ctx context.Context) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cfg.URL == "" {
		return nil, errors.New("symbol API URL not configured")
	}
	if p.lastFetched.IsZero() || time.Since(p.lastFetched) >= p.cfg.Refresh {
		symbols, err := p.fetch(ctx)
		if err != nil {
			p.lastErr = err
			if len(p.symbols) == 0 {
				return nil, err
			}
			logger.Warnf("[coins] 拉取币种列表失败，沿用上次结果: %v", err)
		} else {
			if len(symbols) != len(p.symbols) {
				logger.Infof("[coins] 币种列表更新，共 %d 个", len(symbols))
			}
			p.symbols = symbols
			p.lastFetched = time.Now()
			p.lastErr = nil
		}
	}
	out := make([]string, len(p.symbols))
	copy(out, p.symbols)
	return out, nil
}

// LastError 返回最近一次拉取失败的原因。
func (p *HTTPProvider) LastError() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastErr
}

func (p *HTTPProvider) fetch(ctx context.Context) ([]string, error) {
	reqCtx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, p.cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	resp, err := p.cfg.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching symbols: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("HTTP status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	raw, err := parseSymbols(body)
	if err != nil {
		return nil, err
	}
	symbols := NormalizeSymbols(raw, p.cfg.Quote)
	if len(symbols) == 0 {
		return nil, errors.New("symbol list is empty")
	}
	return symbols, nil
}

// parseSymbols 支持三种响应：["BTC"]、{"symbols":[...]}、{"success":true,"items":[{"symbol":...}]}。
func parseSymbols(body []byte) ([]string, error) {
	var arr []string
	if err := json.Unmarshal(body, &arr); err == nil {
		return arr, nil
	}
	var obj struct {
		Symbols []string `json:"symbols"`
		Success *bool    `json:"success"`
		Items   []struct {
			Symbol string `json:"symbol"`
		} `json:"items"`
	}
	if err := json.Unmarshal(body, &obj); err != nil {
		return nil, fmt.Errorf("parsing response: %w", err)
	}
	if obj.Success != nil && !*obj.Success {
		return nil, errors.New("API returned success=false")
	}
	out := append([]string(nil), obj.Symbols...)
	for _, it := range obj.Items {
		out = append(out, it.Symbol)
	}
	return out, nil
}
