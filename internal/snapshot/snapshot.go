// Package snapshot 用无头 Chrome 把渲染好的图表页面截成 PNG。
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chromedp/chromedp"

	"pricechart/internal/config"
	"pricechart/internal/logger"
)

// DefaultSelector 匹配两种渲染路径输出的图表容器。
const DefaultSelector = `[id^="chart-"]`

// Options 控制截图视口与等待策略。
type Options struct {
	Width   int
	Height  int
	Timeout time.Duration
	// Settle 等待图表动画结束的时间。
	Settle   time.Duration
	Selector string
	// RemoteURL 非空时连接已有浏览器（DevTools websocket 地址），否则本地启动 Chrome。
	RemoteURL string
}

// FromConfig 把配置转换为截图选项。
func FromConfig(cfg config.SnapshotConfig) Options {
	return Options{Width: cfg.Width, Height: cfg.Height, Timeout: cfg.Timeout.Std()}
}

func (o Options) withDefaults() Options {
	out := o
	if out.Width <= 0 {
		out.Width = 800
	}
	if out.Height <= 0 {
		out.Height = 340
	}
	if out.Timeout <= 0 {
		out.Timeout = 30 * time.Second
	}
	if out.Settle <= 0 {
		out.Settle = 500 * time.Millisecond
	}
	if strings.TrimSpace(out.Selector) == "" {
		out.Selector = DefaultSelector
	}
	return out
}

// Capture 打开 pageURL 并截取图表容器。
func Capture(ctx context.Context, pageURL string, opts Options) ([]byte, error) {
	if strings.TrimSpace(pageURL) == "" {
		return nil, errors.New("page url is required")
	}
	opts = opts.withDefaults()

	var (
		allocCtx    context.Context
		allocCancel context.CancelFunc
	)
	if opts.RemoteURL != "" {
		allocCtx, allocCancel = chromedp.NewRemoteAllocator(ctx, opts.RemoteURL)
	} else {
		allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.WindowSize(opts.Width, opts.Height),
		)
		allocCtx, allocCancel = chromedp.NewExecAllocator(ctx, allocOpts...)
	}
	defer allocCancel()

	tabCtx, tabCancel := chromedp.NewContext(allocCtx)
	defer tabCancel()
	runCtx, cancel := context.WithTimeout(tabCtx, opts.Timeout)
	defer cancel()

	var png []byte
	err := chromedp.Run(runCtx,
		chromedp.EmulateViewport(int64(opts.Width), int64(opts.Height)),
		chromedp.Navigate(pageURL),
		chromedp.WaitVisible(opts.Selector, chromedp.ByQuery),
		chromedp.Sleep(opts.Settle),
		chromedp.Screenshot(opts.Selector, &png, chromedp.NodeVisible, chromedp.ByQuery),
	)
	if err != nil {
		return nil, fmt.Errorf("capture %s: %w", pageURL, err)
	}
	logger.Debugf("[snapshot] %s -> %d bytes", pageURL, len(png))
	return png, nil
}

// CaptureHTML 把页面写入临时文件后截图。
func CaptureHTML(ctx context.Context, html []byte, opts Options) ([]byte, error) {
	f, err := os.CreateTemp("", "pricechart-*.html")
	if err != nil {
		return nil, err
	}
	path := f.Name()
	defer os.Remove(path)
	if _, err := f.Write(html); err != nil {
		f.Close()
		return nil, err
	}
	if err := f.Close(); err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	return Capture(ctx, "file://"+filepath.ToSlash(abs), opts)
}
