package rank

import (
	"sort"

	"github.com/Allan-at-NTU/udemy-recs/internal/model"
)

// DefaultLambda MMR 中相关性与多样性的平衡系数
const DefaultLambda = 0.7

// PairwiseSim 计算两个候选条目向量之间的相似度
type PairwiseSim func(a, b model.Candidate) float64

// MMRSelector 用贪心 MMR 从候选集中挑选一个多样化子集
// 多样化 top-k 本身是 NP-hard 问题，贪心 MMR 是近线性时间的标准近似
//
// 默认口径（Pairwise 为 nil）做了简化：多样性惩罚取已选条目自身的
// query 相似度最大值，而不是候选与已选条目的两两相似度。
// 设置 Pairwise 后切换为真正的两两相似度。
type MMRSelector struct {
	Lambda   float64
	Pairwise PairwiseSim
}

// Select 从候选集中选出至多 n 个条目，按混合分降序返回
// 第一个被选中的一定是混合分最高的候选；同分时 CourseID 小者优先
func (s MMRSelector) Select(cands []model.Candidate, n int) []model.Candidate {
	if len(cands) == 0 || n <= 0 {
		return nil
	}

	lambda := s.Lambda
	if lambda == 0 {
		lambda = DefaultLambda
	}

	remaining := make([]int, len(cands))
	for i := range cands {
		remaining[i] = i
	}

	// 第一步：直接选混合分最高的
	first := 0
	for _, i := range remaining {
		if better(cands[i], cands[first]) {
			first = i
		}
	}
	selected := []int{first}
	remaining = removeIndex(remaining, first)

	for len(selected) < n && len(remaining) > 0 {
		// 默认口径下惩罚项对本轮所有候选相同，提前算一次
		var sharedPenalty float64
		if s.Pairwise == nil {
			for _, si := range selected {
				if cands[si].CosineSim > sharedPenalty {
					sharedPenalty = cands[si].CosineSim
				}
			}
		}

		bestIdx := -1
		bestVal := 0.0
		for _, i := range remaining {
			penalty := sharedPenalty
			if s.Pairwise != nil {
				penalty = 0
				for _, si := range selected {
					if sim := s.Pairwise(cands[i], cands[si]); sim > penalty {
						penalty = sim
					}
				}
			}

			val := lambda*cands[i].Blended - (1-lambda)*penalty
			if bestIdx < 0 || val > bestVal ||
				(val == bestVal && cands[i].CourseID < cands[bestIdx].CourseID) {
				bestIdx = i
				bestVal = val
			}
		}

		selected = append(selected, bestIdx)
		remaining = removeIndex(remaining, bestIdx)
	}

	result := make([]model.Candidate, len(selected))
	for i, idx := range selected {
		result[i] = cands[idx]
	}
	// 最终按混合分降序输出，而不是选中顺序
	sort.Slice(result, func(i, j int) bool { return better(result[i], result[j]) })
	return result
}

// better 混合分高者优先，同分时 CourseID 小者优先
func better(a, b model.Candidate) bool {
	if a.Blended != b.Blended {
		return a.Blended > b.Blended
	}
	return a.CourseID < b.CourseID
}

func removeIndex(indices []int, target int) []int {
	for i, v := range indices {
		if v == target {
			return append(indices[:i], indices[i+1:]...)
		}
	}
	return indices
}
