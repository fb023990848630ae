package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Allan-at-NTU/udemy-recs/internal/catalog"
	"github.com/Allan-at-NTU/udemy-recs/internal/logger"
	"github.com/Allan-at-NTU/udemy-recs/internal/model"
	"github.com/Allan-at-NTU/udemy-recs/internal/rank"
)

// 请求校验和协作方故障使用哨兵错误，调用方据此映射 HTTP 状态码
var (
	ErrEmptyQuery           = errors.New("query text is empty")
	ErrInvalidCount         = errors.New("result count must be positive")
	ErrPoolTooSmall         = errors.New("candidate pool is smaller than result count")
	ErrEmbeddingUnavailable = errors.New("embedding service unavailable")
	ErrOverCapacity         = errors.New("engine is over capacity")
)

// Embedder 外部 embedding 服务的窄接口，返回单位向量
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Explainer 外部文本生成服务的窄接口，best-effort
type Explainer interface {
	Explain(ctx context.Context, item model.Item, query string) (string, error)
}

// Options 检索引擎配置
type Options struct {
	Weights            rank.Weights
	Lambda             float64 // MMR 平衡系数
	PairwiseDiversity  bool    // true 时多样性惩罚改用条目向量的两两相似度
	DefaultPoolSize    int     // ANN 候选池大小
	EmbedRetries       int     // embedding 失败后的有界重试次数
	ExplainConcurrency int     // 解释生成的并发上限
	ExplainTimeout     time.Duration
	MaxConcurrent      int // 同时处理的检索请求上限，超出直接拒绝
}

// DefaultOptions 返回带文档化默认值的配置
func DefaultOptions() Options {
	return Options{
		Weights:            rank.DefaultWeights(),
		Lambda:             rank.DefaultLambda,
		DefaultPoolSize:    200,
		EmbedRetries:       2,
		ExplainConcurrency: 3,
		ExplainTimeout:     10 * time.Second,
		MaxConcurrent:      64,
	}
}

// Request 一次检索请求
// BudgetUSD / MaxHours 只作为咨询性文本拼到查询里，不做硬过滤
type Request struct {
	Query       string
	ResultCount int
	PoolSize    int // 0 表示使用默认候选池大小
	BudgetUSD   float64
	MaxHours    float64
}

// Engine 检索编排器
// 每个请求无状态，唯一的进程级状态是启动时加载的只读 Catalog
type Engine struct {
	catalog   *catalog.Catalog
	embedder  Embedder
	explainer Explainer
	opts      Options
	slots     chan struct{}
}

func New(cat *catalog.Catalog, embedder Embedder, explainer Explainer, opts Options) *Engine {
	if opts.DefaultPoolSize <= 0 {
		opts.DefaultPoolSize = 200
	}
	if opts.ExplainConcurrency <= 0 {
		opts.ExplainConcurrency = 3
	}
	if opts.ExplainTimeout <= 0 {
		opts.ExplainTimeout = 10 * time.Second
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 64
	}
	if opts.Lambda <= 0 || opts.Lambda > 1 {
		opts.Lambda = rank.DefaultLambda
	}

	return &Engine{
		catalog:   cat,
		embedder:  embedder,
		explainer: explainer,
		opts:      opts,
		slots:     make(chan struct{}, opts.MaxConcurrent),
	}
}

// Retrieve 执行完整的检索流程：
// 校验 -> embedding -> ANN 检索 -> 挂接预计算分数 -> 混合打分 -> MMR 多样化
// -> 元数据 join -> 并发生成解释
func (e *Engine) Retrieve(ctx context.Context, req Request) ([]model.Recommendation, error) {
	// 输入校验必须发生在任何协作方调用之前
	if strings.TrimSpace(req.Query) == "" {
		return nil, ErrEmptyQuery
	}
	if req.ResultCount <= 0 {
		return nil, ErrInvalidCount
	}
	pool := req.PoolSize
	if pool == 0 {
		pool = e.opts.DefaultPoolSize
	}
	if pool < req.ResultCount {
		return nil, ErrPoolTooSmall
	}

	// 容量保护：槽位满时拒绝而不是排队拖垮所有请求
	select {
	case e.slots <- struct{}{}:
		defer func() { <-e.slots }()
	default:
		return nil, ErrOverCapacity
	}

	queryText := appendAdvisory(req.Query, req.BudgetUSD, req.MaxHours)

	queryVec, err := e.embedQuery(ctx, queryText)
	if err != nil {
		return nil, err
	}

	hits, err := e.catalog.Index().Search(queryVec, pool)
	if err != nil {
		return nil, fmt.Errorf("index search failed: %w", err)
	}

	// 位置 -> course_id 翻译并挂接分数
	// 分数表或元数据缺失的条目直接跳过，容忍语料漂移
	candidates := make([]model.Candidate, 0, len(hits))
	for _, hit := range hits {
		courseID, ok := e.catalog.CourseID(hit.Position)
		if !ok {
			logger.Warn("index position %d has no course id mapping, skipping", hit.Position)
			continue
		}
		scores, ok := e.catalog.Scores(courseID)
		if !ok {
			logger.Warn("course %d missing from score table, skipping", courseID)
			continue
		}
		if _, ok := e.catalog.Item(courseID); !ok {
			logger.Warn("course %d missing from metadata, skipping", courseID)
			continue
		}

		candidates = append(candidates, model.Candidate{
			CourseID:   courseID,
			Position:   hit.Position,
			CosineSim:  hit.Score,
			Popularity: scores.Popularity,
			Recency:    scores.Recency,
			Blended:    e.opts.Weights.Blend(hit.Score, scores.Popularity, scores.Recency),
		})
	}

	selector := rank.MMRSelector{Lambda: e.opts.Lambda}
	if e.opts.PairwiseDiversity {
		selector.Pairwise = e.pairwiseSim
	}
	picked := selector.Select(candidates, req.ResultCount)

	return e.annotate(ctx, picked, req.Query), nil
}

// embedQuery 获取查询向量，失败时做有界重试后归类为 ErrEmbeddingUnavailable
func (e *Engine) embedQuery(ctx context.Context, text string) ([]float32, error) {
	var lastErr error
	for attempt := 0; attempt <= e.opts.EmbedRetries; attempt++ {
		vec, err := e.embedder.Embed(ctx, text)
		if err == nil {
			if len(vec) != e.catalog.Index().Dim() {
				lastErr = fmt.Errorf("malformed embedding: dim %d, expected %d", len(vec), e.catalog.Index().Dim())
				continue
			}
			return vec, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return nil, fmt.Errorf("%w: %v", ErrEmbeddingUnavailable, lastErr)
}

// annotate 补全元数据并并发生成解释
// 单条解释失败或超时只让该条目的理由为空，不影响请求整体
func (e *Engine) annotate(ctx context.Context, picked []model.Candidate, query string) []model.Recommendation {
	recs := make([]model.Recommendation, len(picked))
	for i, cand := range picked {
		item, _ := e.catalog.Item(cand.CourseID)
		recs[i] = model.Recommendation{
			Item:         *item,
			BlendedScore: cand.Blended,
		}
	}

	if e.explainer == nil {
		return recs
	}

	sem := make(chan struct{}, e.opts.ExplainConcurrency)
	var wg sync.WaitGroup
	for i := range recs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			callCtx, cancel := context.WithTimeout(ctx, e.opts.ExplainTimeout)
			defer cancel()

			reason, err := e.explainer.Explain(callCtx, recs[i].Item, query)
			if err != nil {
				logger.Error("explain failed for course %d: %v", recs[i].CourseID, err)
				return
			}
			recs[i].Reason = reason
		}(i)
	}
	wg.Wait()

	return recs
}

// pairwiseSim 从索引取条目向量计算真实的两两余弦相似度
func (e *Engine) pairwiseSim(a, b model.Candidate) float64 {
	va := e.catalog.Index().Vector(a.Position)
	vb := e.catalog.Index().Vector(b.Position)
	if va == nil || vb == nil {
		return 0
	}
	var sum float64
	for i := range va {
		sum += float64(va[i]) * float64(vb[i])
	}
	return sum
}

// appendAdvisory 把预算和时长约束拼为咨询性查询文本
// 硬过滤由调用方基于返回的 price / duration_hours 字段自行处理
func appendAdvisory(query string, budgetUSD, maxHours float64) string {
	if budgetUSD > 0 {
		query = fmt.Sprintf("%s under $%d", query, int(budgetUSD))
	}
	if maxHours > 0 {
		query = fmt.Sprintf("%s under %d hours", query, int(maxHours))
	}
	return query
}
