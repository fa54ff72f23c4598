// Package transport 提供图表服务的 HTTP 接口。
package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"strconv"
	"strings"
	"time"

	"pricechart/internal/chart"
	"pricechart/internal/logger"
	"pricechart/internal/market"
	"pricechart/internal/store"
	"pricechart/internal/transport/http/sessions"
	"pricechart/internal/transport/ui"

	"github.com/gin-gonic/gin"
)

// Server 提供 Gin 接口：序列查询、一次性渲染和交互式图表会话。
type Server struct {
	addr     string
	store    store.SeriesStore
	settings sessions.Settings
	sessions *sessions.Router
	router   *gin.Engine
	index    *template.Template
}

type Config struct {
	Addr     string
	Store    store.SeriesStore
	Sessions sessions.Settings
}

// NewServer builds the router. ctx bounds the engine acquisition of every
// chart session.
func NewServer(ctx context.Context, cfg Config) (*Server, error) {
	if cfg.Store == nil {
		return nil, errors.New("store 不能为空")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":9992"
	}
	staticFS, err := ui.StaticFS()
	if err != nil {
		return nil, fmt.Errorf("加载前端静态资源失败: %w", err)
	}
	index, err := ui.Index()
	if err != nil {
		return nil, fmt.Errorf("加载前端首页失败: %w", err)
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.StaticFS("/static", staticFS)

	s := &Server{
		addr:     cfg.Addr,
		store:    cfg.Store,
		settings: cfg.Sessions,
		sessions: sessions.NewRouter(ctx, cfg.Store, cfg.Sessions),
		router:   router,
		index:    index,
	}
	s.registerRoutes()
	return s, nil
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) registerRoutes() {
	s.router.GET("/", s.handleIndex)
	s.router.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"ok": true}) })
	s.router.GET("/chart/:symbol", s.handleChart)
	api := s.router.Group("/api")
	api.GET("/series", s.handleSeries)
	api.GET("/candles", s.handleCandles)
	s.sessions.Register(api.Group("/charts"))
}

func (s *Server) handleIndex(c *gin.Context) {
	keys, err := s.store.Keys(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	var buf bytes.Buffer
	if err := s.index.Execute(&buf, struct{ Keys []store.Key }{Keys: keys}); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", buf.Bytes())
}

func (s *Server) handleSeries(c *gin.Context) {
	keys, err := s.store.Keys(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"series": keys})
}

func (s *Server) handleCandles(c *gin.Context) {
	symbol := c.Query("symbol")
	interval := c.DefaultQuery("interval", s.defaultInterval())
	if symbol == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol 必填"})
		return
	}
	pts, err := s.store.Get(c.Request.Context(), symbol, interval)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"points": pts, "report": chart.Inspect(pts)})
}

// handleChart 一次性渲染：format=html（默认，走完整组件）、svg 或 png。
func (s *Server) handleChart(c *gin.Context) {
	symbol := c.Param("symbol")
	interval := c.DefaultQuery("interval", s.defaultInterval())
	width := s.settings.Width
	if raw := c.Query("width"); raw != "" {
		w, err := strconv.Atoi(raw)
		if err != nil || w < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "width 非法"})
			return
		}
		width = w
	}
	pts, err := s.store.Get(c.Request.Context(), symbol, interval)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var buf bytes.Buffer
	switch format := strings.ToLower(c.DefaultQuery("format", "html")); format {
	case "svg":
		if err := chart.RenderSVG(&buf, chart.Normalize(pts), width, nil); err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.Data(http.StatusOK, "image/svg+xml", buf.Bytes())
	case "png":
		if err := chart.RenderPNG(&buf, chart.Normalize(pts), width, nil); err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.Data(http.StatusOK, "image/png", buf.Bytes())
	case "html":
		strategy, err := s.renderOnce(c.Request.Context(), &buf, width, pts)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.Header("X-Chart-Strategy", strategy.String())
		c.Data(http.StatusOK, "text/html; charset=utf-8", buf.Bytes())
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "format 仅支持 html/svg/png"})
	}
}

// renderOnce 挂载一个临时图表，等待策略选定后渲染并卸载。
func (s *Server) renderOnce(ctx context.Context, buf *bytes.Buffer, width int, pts []market.PricePoint) (chart.StrategyKind, error) {
	opts := chart.Options{Location: s.settings.Location}
	if s.settings.Loader != nil {
		opts.Loader = s.settings.Loader()
	}
	pc := chart.New(chart.NewSurface(width), opts)
	pc.Mount(ctx)
	defer func() {
		if err := pc.Unmount(); err != nil {
			logger.Warnf("[transport] 卸载临时图表失败: %v", err)
		}
	}()
	wait := s.settings.ReadyWait
	if wait <= 0 {
		wait = 10 * time.Second
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-pc.Ready():
	case <-timer.C:
	case <-ctx.Done():
		return chart.StrategyPending, ctx.Err()
	}
	if err := pc.Render(buf, pts); err != nil {
		return chart.StrategyPending, err
	}
	return pc.Strategy(), nil
}

func (s *Server) defaultInterval() string {
	if s.settings.DefaultInterval != "" {
		return s.settings.DefaultInterval
	}
	return "15m"
}

// Start 启动 HTTP 服务，阻塞直到 ctx 取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.router, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		logger.Infof("[transport] 监听 %s", s.addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
		if err := s.sessions.Close(); err != nil {
			logger.Warnf("[transport] 关闭图表会话: %v", err)
		}
		return nil
	case err := <-errCh:
		return err
	}
}
