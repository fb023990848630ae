package server

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Allan-at-NTU/udemy-recs/internal/auth"
	"github.com/Allan-at-NTU/udemy-recs/internal/cache"
	"github.com/Allan-at-NTU/udemy-recs/internal/engine"
	"github.com/Allan-at-NTU/udemy-recs/internal/history"
	"github.com/Allan-at-NTU/udemy-recs/internal/logger"
	"github.com/Allan-at-NTU/udemy-recs/internal/model"
	"github.com/Allan-at-NTU/udemy-recs/internal/planner"
	"github.com/Allan-at-NTU/udemy-recs/internal/task"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// 请求级超时
const (
	recommendTimeout = 30 * time.Second
	planTimeout      = 120 * time.Second
)

// DefaultResultCount 未指定 result_count 时的默认返回条数
const DefaultResultCount = 3

// MaintenanceOptions 后台维护的配置：历史保留期和异步任务回收
type MaintenanceOptions struct {
	Interval             time.Duration // 扫描周期，<=0 时关闭维护
	HistoryRetentionDays int
	TaskMaxAge           time.Duration
}

// DefaultMaintenanceOptions 返回默认维护配置
func DefaultMaintenanceOptions() MaintenanceOptions {
	return MaintenanceOptions{
		Interval:             time.Hour,
		HistoryRetentionDays: 30,
		TaskMaxAge:           time.Hour,
	}
}

// Server 代表 HTTP API 服务器
type Server struct {
	router       *gin.Engine
	engine       *engine.Engine
	planner      *planner.Planner
	provider     auth.Provider
	historyStore history.Store
	tasks        *task.Manager
	respCache    *cache.Cache
	maint        MaintenanceOptions
}

// NewServer 创建新的 HTTP 服务器
// respCache 可以为 nil（缓存未启用）
func NewServer(eng *engine.Engine, pl *planner.Planner, provider auth.Provider, hs history.Store, respCache *cache.Cache, maint MaintenanceOptions) *Server {
	s := &Server{
		router:       gin.Default(),
		engine:       eng,
		planner:      pl,
		provider:     provider,
		historyStore: hs,
		tasks:        task.NewManager(),
		respCache:    respCache,
		maint:        maint,
	}
	s.router.Use(s.corsMiddleware())
	s.router.Use(s.traceMiddleware())
	s.setupRoutes()
	return s
}

func (s *Server) corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

// traceMiddleware 为每个请求生成 trace id，带在响应头里
func (s *Server) traceMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := uuid.NewString()
		c.Set("trace_id", traceID)
		c.Writer.Header().Set("X-Trace-ID", traceID)
		c.Next()
	}
}

// Run 启动后台维护和 HTTP 服务
func (s *Server) Run(addr string) error {
	s.startMaintenance()
	return s.router.Run(addr)
}

// startMaintenance 周期性清理过期推荐历史和已结束的异步任务
func (s *Server) startMaintenance() {
	if s.maint.Interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(s.maint.Interval)
		defer ticker.Stop()
		for range ticker.C {
			s.sweepMaintenance()
		}
	}()
}

// sweepMaintenance 执行一轮维护扫描
func (s *Server) sweepMaintenance() {
	if s.historyStore != nil && s.maint.HistoryRetentionDays > 0 {
		if err := s.historyStore.Cleanup(s.maint.HistoryRetentionDays); err != nil {
			logger.Error("history cleanup failed: %v", err)
		}
	}
	if s.maint.TaskMaxAge > 0 {
		if removed := s.tasks.Prune(s.maint.TaskMaxAge); removed > 0 {
			logger.Info("Pruned %d finished plan tasks", removed)
		}
	}
}

func (s *Server) setupRoutes() {
	// 健康检查不走鉴权
	s.router.GET("/api/v1/health", s.handleHealth)

	v1 := s.router.Group("/api/v1")
	v1.Use(s.authMiddleware())

	v1.POST("/recommend", s.handleRecommend)
	v1.POST("/plan", s.handlePlan)
	v1.POST("/plan/async", s.handlePlanAsync)
	v1.GET("/tasks/:id", s.handleGetTask)
}

// authMiddleware 鉴权中间件
func (s *Server) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization format"})
			return
		}

		client, err := s.provider.GetClientByToken(parts[1])
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set("client", client)
		c.Next()
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

type RecommendRequest struct {
	Query             string  `json:"query" binding:"required"`
	ResultCount       int     `json:"result_count"`
	CandidatePoolSize int     `json:"candidate_pool_size"`
	BudgetUSD         float64 `json:"budget_usd"`
	MaxHours          float64 `json:"max_hours"`
}

type RecommendResponse struct {
	Query   string                 `json:"query"`
	Results []model.Recommendation `json:"results"`
}

// handleRecommend 处理单条查询的推荐请求
// POST /api/v1/recommend
func (s *Server) handleRecommend(c *gin.Context) {
	var req RecommendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	if req.ResultCount == 0 {
		req.ResultCount = DefaultResultCount
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), recommendTimeout)
	defer cancel()

	// 缓存命中时直接返回
	key := cacheKey(req)
	var cached RecommendResponse
	if ok, err := s.respCache.GetJSON(ctx, key, &cached); err == nil && ok {
		c.JSON(http.StatusOK, cached)
		return
	}

	results, err := s.engine.Retrieve(ctx, engine.Request{
		Query:       req.Query,
		ResultCount: req.ResultCount,
		PoolSize:    req.CandidatePoolSize,
		BudgetUSD:   req.BudgetUSD,
		MaxHours:    req.MaxHours,
	})
	if err != nil {
		s.writeEngineError(c, err)
		return
	}

	resp := RecommendResponse{Query: req.Query, Results: results}

	// 写缓存失败只记日志
	if err := s.respCache.SetJSON(ctx, key, resp); err != nil {
		logger.Error("failed to cache recommend response: %v", err)
	}

	// 异步保存历史，不阻塞响应
	if client, ok := s.currentClient(c); ok && s.historyStore != nil {
		courseIDs := make([]int64, len(results))
		for i, r := range results {
			courseIDs[i] = r.CourseID
		}
		go func() {
			if err := s.historyStore.SaveServed(client.ID, req.Query, courseIDs); err != nil {
				logger.Error("failed to save history async: %v", err)
			}
		}()
	}

	c.JSON(http.StatusOK, resp)
}

type PlanRequest struct {
	GoalRole      string               `json:"goal_role"`
	CurrentSkills map[string]string    `json:"current_skills"`
	SkillQueries  []planner.SkillQuery `json:"skill_queries"`
	BudgetUSD     float64              `json:"budget_usd"`
	MaxHours      float64              `json:"max_hours"`
	ResultCount   int                  `json:"result_count"`
}

type PlanResponse struct {
	GoalRole     string             `json:"goal_role"`
	Plan         []planner.PlanStep `json:"plan"`
	TotalCourses int                `json:"total_courses"`
}

// handlePlan 同步构建学习计划
// POST /api/v1/plan
func (s *Server) handlePlan(c *gin.Context) {
	var req PlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), planTimeout)
	defer cancel()

	plan, err := s.buildPlan(ctx, req)
	if err != nil {
		s.writeEngineError(c, err)
		return
	}

	c.JSON(http.StatusOK, buildPlanResponse(req.GoalRole, plan))
}

// handlePlanAsync 异步构建学习计划，立即返回任务 ID
// POST /api/v1/plan/async
func (s *Server) handlePlanAsync(c *gin.Context) {
	var req PlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	t := s.tasks.NewTask()

	// 后台构建，用独立 context，不随 HTTP 请求取消
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), planTimeout)
		defer cancel()

		_ = s.tasks.UpdateStatus(t.ID, task.StatusProcessing)
		plan, err := s.buildPlan(ctx, req)
		if err != nil {
			_ = s.tasks.SetError(t.ID, err)
			return
		}
		_ = s.tasks.SetResult(t.ID, buildPlanResponse(req.GoalRole, plan))
	}()

	c.JSON(http.StatusAccepted, gin.H{"task_id": t.ID})
}

// handleGetTask 查询异步任务状态
// GET /api/v1/tasks/:id
func (s *Server) handleGetTask(c *gin.Context) {
	t, err := s.tasks.GetTask(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, t)
}

func (s *Server) buildPlan(ctx context.Context, req PlanRequest) ([]planner.PlanStep, error) {
	count := req.ResultCount
	if count == 0 {
		count = DefaultResultCount
	}

	if len(req.SkillQueries) > 0 {
		return s.planner.BuildPlanFromQueries(ctx, req.SkillQueries, req.BudgetUSD, req.MaxHours, count)
	}
	return s.planner.BuildPlanFromProfile(ctx, req.CurrentSkills, req.GoalRole, req.BudgetUSD, req.MaxHours, count)
}

func buildPlanResponse(goalRole string, plan []planner.PlanStep) PlanResponse {
	total := 0
	for _, step := range plan {
		total += len(step.Courses)
	}
	return PlanResponse{GoalRole: goalRole, Plan: plan, TotalCourses: total}
}

// writeEngineError 把引擎错误映射为 HTTP 状态码
func (s *Server) writeEngineError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, engine.ErrEmptyQuery),
		errors.Is(err, engine.ErrInvalidCount),
		errors.Is(err, engine.ErrPoolTooSmall):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, engine.ErrEmbeddingUnavailable):
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	case errors.Is(err, engine.ErrOverCapacity):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("recommendation failed: %v", err)})
	}
}

func (s *Server) currentClient(c *gin.Context) (*auth.Client, bool) {
	v, exists := c.Get("client")
	if !exists {
		return nil, false
	}
	client, ok := v.(*auth.Client)
	return client, ok
}

// cacheKey 对请求参数做稳定哈希作为缓存键
func cacheKey(req RecommendRequest) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%d|%d|%g|%g",
		req.Query, req.ResultCount, req.CandidatePoolSize, req.BudgetUSD, req.MaxHours)))
	return "rec:q:" + hex.EncodeToString(sum[:8])
}
