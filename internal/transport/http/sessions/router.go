package sessions

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"pricechart/internal/chart"
	"pricechart/internal/logger"
	"pricechart/internal/store"

	"github.com/gin-gonic/gin"
)

// Settings 控制新建图表会话的默认值。
type Settings struct {
	// Loader 为每个会话返回一个新的引擎加载器；nil 时只用内置渲染。
	Loader          func() chart.Loader
	Location        *time.Location
	Width           int
	DefaultInterval string
	// ReadyWait 是渲染前等待策略选定的上限。
	ReadyWait time.Duration
}

// Router 管理挂载在服务端的 PriceChart 会话。
type Router struct {
	store    store.SeriesStore
	settings Settings
	base     context.Context

	mu       sync.Mutex
	sessions map[string]*session
}

type session struct {
	symbol   string
	interval string
	created  time.Time
	surface  *chart.Surface
	window   *chart.Window
	chart    *chart.PriceChart
}

// NewRouter creates a session router. base bounds every engine acquisition.
func NewRouter(base context.Context, st store.SeriesStore, settings Settings) *Router {
	if settings.DefaultInterval == "" {
		settings.DefaultInterval = "15m"
	}
	if settings.ReadyWait <= 0 {
		settings.ReadyWait = 10 * time.Second
	}
	if base == nil {
		base = context.Background()
	}
	return &Router{
		store:    st,
		settings: settings,
		base:     base,
		sessions: make(map[string]*session),
	}
}

// Register registers the session routes.
func (r *Router) Register(group *gin.RouterGroup) {
	if group == nil {
		return
	}
	group.GET("", r.handleList)
	group.POST("", r.handleCreate)
	group.GET("/:id", r.handleRender)
	group.GET("/:id/state", r.handleState)
	group.POST("/:id/pointer", r.handlePointerMove)
	group.DELETE("/:id/pointer", r.handlePointerLeave)
	group.POST("/:id/resize", r.handleResize)
	group.DELETE("/:id", r.handleDelete)
}

type createRequest struct {
	Symbol   string `json:"symbol" binding:"required"`
	Interval string `json:"interval"`
	Width    int    `json:"width"`
}

// SessionInfo is the API view of a chart session.
type SessionInfo struct {
	ID        string     `json:"id"`
	Symbol    string     `json:"symbol"`
	Interval  string     `json:"interval"`
	Width     int        `json:"width"`
	Strategy  string     `json:"strategy"`
	Points    int        `json:"points"`
	LoadError string     `json:"load_error,omitempty"`
	Hover     *HoverInfo `json:"hover,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// HoverInfo 是悬停蜡烛的展示值。
type HoverInfo struct {
	Index  int       `json:"index"`
	X      float64   `json:"x"`
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Change string    `json:"change"`
}

// Create mounts a new chart session and returns its info.
func (r *Router) Create(symbol, interval string, width int) SessionInfo {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	interval = strings.TrimSpace(interval)
	if interval == "" {
		interval = r.settings.DefaultInterval
	}
	if width <= 0 {
		width = r.settings.Width
	}
	surface := chart.NewSurface(width)
	window := chart.NewWindow()
	opts := chart.Options{Viewport: window, Location: r.settings.Location}
	if r.settings.Loader != nil {
		opts.Loader = r.settings.Loader()
	}
	s := &session{
		symbol:   symbol,
		interval: interval,
		created:  time.Now(),
		surface:  surface,
		window:   window,
		chart:    chart.New(surface, opts),
	}
	r.mu.Lock()
	r.sessions[surface.ID()] = s
	r.mu.Unlock()
	s.chart.Mount(r.base)
	logger.Infof("[sessions] 新建图表 %s %s@%s", surface.ID(), symbol, interval)
	return s.info()
}

// Close unmounts every session.
func (r *Router) Close() error {
	r.mu.Lock()
	all := r.sessions
	r.sessions = make(map[string]*session)
	r.mu.Unlock()
	var errs []error
	for _, s := range all {
		errs = append(errs, s.chart.Unmount())
	}
	return errors.Join(errs...)
}

func (r *Router) lookup(c *gin.Context) (*session, bool) {
	r.mu.Lock()
	s, ok := r.sessions[c.Param("id")]
	r.mu.Unlock()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "chart not found"})
	}
	return s, ok
}

func (r *Router) handleList(c *gin.Context) {
	r.mu.Lock()
	list := make([]SessionInfo, 0, len(r.sessions))
	for _, s := range r.sessions {
		list = append(list, s.info())
	}
	r.mu.Unlock()
	sort.Slice(list, func(i, j int) bool { return list[i].CreatedAt.Before(list[j].CreatedAt) })
	c.JSON(http.StatusOK, gin.H{"charts": list})
}

func (r *Router) handleCreate(c *gin.Context) {
	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Width < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "width 不能为负"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"chart": r.Create(req.Symbol, req.Interval, req.Width)})
}

// handleRender 读取最新序列并输出图表 HTML。wait=0 时不等待策略选定。
func (r *Router) handleRender(c *gin.Context) {
	s, ok := r.lookup(c)
	if !ok {
		return
	}
	if c.DefaultQuery("wait", "1") != "0" {
		timer := time.NewTimer(r.settings.ReadyWait)
		select {
		case <-s.chart.Ready():
		case <-timer.C:
		case <-c.Request.Context().Done():
		}
		timer.Stop()
	}
	pts, err := r.store.Get(c.Request.Context(), s.symbol, s.interval)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	var buf bytes.Buffer
	if err := s.chart.Render(&buf, pts); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, chart.ErrUnmounted) {
			status = http.StatusGone
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.Header("X-Chart-Strategy", s.chart.Strategy().String())
	c.Data(http.StatusOK, "text/html; charset=utf-8", buf.Bytes())
}

func (r *Router) handleState(c *gin.Context) {
	s, ok := r.lookup(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"chart": s.info()})
}

func (r *Router) handlePointerMove(c *gin.Context) {
	s, ok := r.lookup(c)
	if !ok {
		return
	}
	var req struct {
		X *float64 `json:"x" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	updated := s.chart.PointerMove(*req.X)
	c.JSON(http.StatusOK, gin.H{"updated": updated, "hover": hoverInfo(s.chart.Hover())})
}

func (r *Router) handlePointerLeave(c *gin.Context) {
	s, ok := r.lookup(c)
	if !ok {
		return
	}
	s.chart.PointerLeave()
	c.Status(http.StatusNoContent)
}

func (r *Router) handleResize(c *gin.Context) {
	s, ok := r.lookup(c)
	if !ok {
		return
	}
	var req struct {
		Width int `json:"width" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.surface.SetWidth(req.Width)
	s.window.Resize()
	c.JSON(http.StatusOK, gin.H{"width": s.surface.ClientWidth()})
}

func (r *Router) handleDelete(c *gin.Context) {
	id := c.Param("id")
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "chart not found"})
		return
	}
	if err := s.chart.Unmount(); err != nil {
		logger.Warnf("[sessions] 卸载 %s 时出错: %v", id, err)
		c.JSON(http.StatusOK, gin.H{"removed": id, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": id})
}

func (s *session) info() SessionInfo {
	out := SessionInfo{
		ID:        s.surface.ID(),
		Symbol:    s.symbol,
		Interval:  s.interval,
		Width:     s.surface.ClientWidth(),
		Strategy:  s.chart.Strategy().String(),
		Points:    len(s.chart.Points()),
		Hover:     hoverInfo(s.chart.Hover()),
		CreatedAt: s.created,
	}
	if err := s.chart.LoadError(); err != nil {
		out.LoadError = err.Error()
	}
	return out
}

func hoverInfo(h *chart.HoverState) *HoverInfo {
	if h == nil {
		return nil
	}
	return &HoverInfo{
		Index:  h.Index,
		X:      h.X,
		Time:   h.Point.Time,
		Open:   h.Point.Open,
		High:   h.Point.High,
		Low:    h.Point.Low,
		Close:  h.Point.Close,
		Change: chart.FormatChange(h.Point),
	}
}
