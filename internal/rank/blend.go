package rank

// Weights 混合打分的权重配置
// 余弦相似度占主导，热度和新鲜度做轻量修正
type Weights struct {
	CosineSim  float64 `yaml:"cosine_sim"`
	Popularity float64 `yaml:"popularity"`
	Recency    float64 `yaml:"recency"`
}

// DefaultWeights 返回默认权重 0.85 / 0.14 / 0.01
func DefaultWeights() Weights {
	return Weights{
		CosineSim:  0.85,
		Popularity: 0.14,
		Recency:    0.01,
	}
}

// Blend 把相似度、热度、新鲜度混合为单一分数
// 纯函数，输入相同结果必然相同
// 注意：这里刻意不做 clamp，余弦为负时结果可能略微越出 [0,1]
func (w Weights) Blend(cosineSim, popularity, recency float64) float64 {
	return w.CosineSim*cosineSim + w.Popularity*popularity + w.Recency*recency
}
