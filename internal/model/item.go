package model

import "time"

// Item 代表课程目录中的一个条目
// 语料快照内 CourseID 唯一确定其余字段，服务期间只读
type Item struct {
	CourseID       int64      `json:"course_id"`
	Title          string     `json:"title"`
	Subject        string     `json:"subject"`
	Level          string     `json:"level"` // e.g., "Beginner", "Intermediate", "All"
	URL            string     `json:"url"`
	Price          float64    `json:"price"`
	DurationHours  float64    `json:"duration_hours"`
	NumReviews     int64      `json:"num_reviews"`
	NumSubscribers int64      `json:"num_subscribers"`
	Rating         float64    `json:"rating"`                 // 综合评分，0..1
	PublishedAt    *time.Time `json:"published_at,omitempty"` // 可能缺失
}

// Candidate 是检索期间的临时候选记录
// 仅在单次查询内存活，不做持久化
type Candidate struct {
	CourseID   int64   `json:"course_id"`
	Position   int     `json:"-"` // 向量索引中的槽位
	CosineSim  float64 `json:"cosine_sim"`
	Popularity float64 `json:"popularity_score"`
	Recency    float64 `json:"recency_score"`
	Blended    float64 `json:"blended_score"`
}

// Recommendation 是返回给调用方的最终结果条目
type Recommendation struct {
	Item
	BlendedScore float64 `json:"blended_score"`
	Reason       string  `json:"reason"` // 解释生成失败时为空字符串
}
