package corpus

import (
	"time"

	"github.com/Allan-at-NTU/udemy-recs/internal/model"
)

// 热度分的固定权重：评论数 / 订阅数 / 评分
const (
	popularityReviewsWeight     = 0.5
	popularitySubscribersWeight = 0.3
	popularityRatingWeight      = 0.2
)

// ComputeScores 计算每个课程的热度分和新鲜度分
// 返回切片与输入顺序一一对应（即索引位置顺序）
// 两个分数都落在 [0,1]，字段全量无差异时 minmax 返回全 0，不会产生 NaN
func ComputeScores(items []model.Item) []model.ScoreEntry {
	if len(items) == 0 {
		return nil
	}

	reviews := make([]float64, len(items))
	subscribers := make([]float64, len(items))
	ratings := make([]float64, len(items))
	for i, item := range items {
		reviews[i] = float64(item.NumReviews)
		subscribers[i] = float64(item.NumSubscribers)
		ratings[i] = item.Rating
	}

	r := minmax(reviews)
	s := minmax(subscribers)
	g := minmax(ratings)
	recency := recencyScores(items)

	entries := make([]model.ScoreEntry, len(items))
	for i, item := range items {
		entries[i] = model.ScoreEntry{
			CourseID:   item.CourseID,
			Popularity: popularityReviewsWeight*r[i] + popularitySubscribersWeight*s[i] + popularityRatingWeight*g[i],
			Recency:    recency[i],
		}
	}
	return entries
}

// minmax 标准 (x-min)/(max-min) 归一化
// 全量无差异时返回全 0，避免除零
func minmax(xs []float64) []float64 {
	lo, hi := xs[0], xs[0]
	for _, x := range xs {
		if x < lo {
			lo = x
		}
		if x > hi {
			hi = x
		}
	}

	out := make([]float64, len(xs))
	if hi <= lo {
		return out
	}
	for i, x := range xs {
		out[i] = (x - lo) / (hi - lo)
	}
	return out
}

// recencyScores 按发布时间线性归一到 [0,1]
// 缺失发布时间的课程记 0
func recencyScores(items []model.Item) []float64 {
	out := make([]float64, len(items))

	var minTS, maxTS *time.Time
	for _, item := range items {
		t := item.PublishedAt
		if t == nil {
			continue
		}
		if minTS == nil || t.Before(*minTS) {
			minTS = t
		}
		if maxTS == nil || t.After(*maxTS) {
			maxTS = t
		}
	}
	if minTS == nil {
		return out
	}

	spanDays := maxTS.Sub(*minTS).Hours() / 24
	if spanDays < 1 {
		spanDays = 1
	}

	for i, item := range items {
		if item.PublishedAt == nil {
			continue
		}
		days := item.PublishedAt.Sub(*minTS).Hours() / 24
		score := days / spanDays
		if score < 0 {
			score = 0
		}
		if score > 1 {
			score = 1
		}
		out[i] = score
	}
	return out
}
