package model

// ScoreEntry 每个课程的离线预计算分数，语料构建时生成，查询时只读
// 两个分数都在 [0,1] 区间内
type ScoreEntry struct {
	CourseID   int64   `json:"course_id"`
	Popularity float64 `json:"popularity_score"`
	Recency    float64 `json:"recency_score"`
}
