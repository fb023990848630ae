// Package vecindex 实现一个进程内的 HNSW 近似最近邻索引
// 向量要求已做 L2 归一化，内积即余弦相似度
// 索引离线构建一次，服务期间只读，不支持在线增删
package vecindex

import (
	"container/heap"
	"encoding/gob"
	"fmt"
	"math"
	"math/rand"
	"os"
)

// DefaultM 每层的连接数上限（第 0 层为 2M）
const DefaultM = 32

// DefaultEfConstruction 构建质量参数，越大召回越好、构建越慢
const DefaultEfConstruction = 200

// DefaultEfSearch 查询时的候选队列大小
const DefaultEfSearch = 64

// Hit 一条检索命中，Position 是向量的插入位置
type Hit struct {
	Position int
	Score    float64 // 内积（归一化向量下等于余弦相似度）
}

// Options 索引构建参数
type Options struct {
	M              int
	EfConstruction int
	EfSearch       int
	Seed           int64 // 层数抽样的随机种子，固定后构建可复现
}

// Index 多层邻近图索引
type Index struct {
	dim            int
	m              int
	efConstruction int
	efSearch       int
	ml             float64

	entry    int
	maxLevel int

	vectors   [][]float32
	neighbors [][][]int32 // neighbors[node][level] -> 邻居位置列表

	rng *rand.Rand
}

// New 创建一个空索引
func New(dim int, opts Options) *Index {
	if opts.M <= 0 {
		opts.M = DefaultM
	}
	if opts.EfConstruction <= 0 {
		opts.EfConstruction = DefaultEfConstruction
	}
	if opts.EfSearch <= 0 {
		opts.EfSearch = DefaultEfSearch
	}
	if opts.Seed == 0 {
		opts.Seed = 1
	}

	return &Index{
		dim:            dim,
		m:              opts.M,
		efConstruction: opts.EfConstruction,
		efSearch:       opts.EfSearch,
		ml:             1 / math.Log(float64(opts.M)),
		entry:          -1,
		maxLevel:       -1,
		rng:            rand.New(rand.NewSource(opts.Seed)),
	}
}

// Len 返回索引中的向量数
func (x *Index) Len() int { return len(x.vectors) }

// Dim 返回向量维度
func (x *Index) Dim() int { return x.dim }

// Vector 返回指定位置的向量（只读，调用方不得修改）
func (x *Index) Vector(pos int) []float32 {
	if pos < 0 || pos >= len(x.vectors) {
		return nil
	}
	return x.vectors[pos]
}

// Add 插入一个向量，返回其位置
// 仅在离线构建阶段调用，非并发安全
func (x *Index) Add(vec []float32) (int, error) {
	if len(vec) != x.dim {
		return 0, fmt.Errorf("vector dim mismatch: expected %d, got %d", x.dim, len(vec))
	}

	pos := len(x.vectors)
	level := x.randomLevel()

	x.vectors = append(x.vectors, vec)
	levels := make([][]int32, level+1)
	x.neighbors = append(x.neighbors, levels)

	// 第一个节点直接作为入口
	if x.entry < 0 {
		x.entry = pos
		x.maxLevel = level
		return pos, nil
	}

	cur := x.entry
	// 高于目标层的部分贪心下降
	for l := x.maxLevel; l > level; l-- {
		cur = x.greedyDescend(vec, cur, l)
	}

	// 目标层及以下逐层建边
	top := level
	if top > x.maxLevel {
		top = x.maxLevel
	}
	for l := top; l >= 0; l-- {
		found := x.searchLayer(vec, cur, x.efConstruction, l)
		picked := closestN(found, x.m)

		for _, n := range picked {
			x.neighbors[pos][l] = append(x.neighbors[pos][l], int32(n.pos))
			x.neighbors[n.pos][l] = append(x.neighbors[n.pos][l], int32(pos))
			x.pruneNeighbors(n.pos, l)
		}

		if len(picked) > 0 {
			cur = picked[0].pos
		}
	}

	if level > x.maxLevel {
		x.entry = pos
		x.maxLevel = level
	}

	return pos, nil
}

// Search 返回与 query 内积最大的至多 k 个位置，按分数降序
// k 不小于语料规模时退化为全量精确扫描（行为上等价于返回全部条目）
// 空索引返回空结果，不报错
func (x *Index) Search(query []float32, k int) ([]Hit, error) {
	if len(query) != x.dim {
		return nil, fmt.Errorf("query dim mismatch: expected %d, got %d", x.dim, len(query))
	}
	if len(x.vectors) == 0 || k <= 0 {
		return nil, nil
	}

	if k >= len(x.vectors) {
		return x.exactScan(query), nil
	}

	cur := x.entry
	for l := x.maxLevel; l > 0; l-- {
		cur = x.greedyDescend(query, cur, l)
	}

	ef := x.efSearch
	if ef < k {
		ef = k
	}
	found := x.searchLayer(query, cur, ef, 0)
	picked := closestN(found, k)

	hits := make([]Hit, len(picked))
	for i, s := range picked {
		hits[i] = Hit{Position: s.pos, Score: float64(s.score)}
	}
	return hits, nil
}

// randomLevel 按几何分布抽取节点层数
func (x *Index) randomLevel() int {
	return int(math.Floor(-math.Log(x.rng.Float64()) * x.ml))
}

// greedyDescend 在指定层贪心移动到离 query 最近的节点
func (x *Index) greedyDescend(query []float32, start int, level int) int {
	cur := start
	curScore := dot(query, x.vectors[cur])

	for {
		improved := false
		for _, n := range x.neighbors[cur][level] {
			if s := dot(query, x.vectors[n]); s > curScore {
				cur = int(n)
				curScore = s
				improved = true
			}
		}
		if !improved {
			return cur
		}
	}
}

// searchLayer 在单层上做 beam search，返回至多 ef 个最近节点（无序）
func (x *Index) searchLayer(query []float32, entry int, ef int, level int) []scored {
	visited := make([]bool, len(x.vectors))
	visited[entry] = true

	start := scored{pos: entry, score: dot(query, x.vectors[entry])}
	candidates := &maxHeap{start} // 待扩展，按分数从高到低
	results := &minHeap{start}    // 当前最优集合，堆顶是最差的一个

	for candidates.Len() > 0 {
		c := heap.Pop(candidates).(scored)
		if results.Len() >= ef && c.score < (*results)[0].score {
			break
		}

		if level >= len(x.neighbors[c.pos]) {
			continue
		}
		for _, n := range x.neighbors[c.pos][level] {
			if visited[n] {
				continue
			}
			visited[n] = true

			s := scored{pos: int(n), score: dot(query, x.vectors[n])}
			if results.Len() < ef {
				heap.Push(candidates, s)
				heap.Push(results, s)
			} else if s.score > (*results)[0].score {
				heap.Push(candidates, s)
				heap.Pop(results)
				heap.Push(results, s)
			}
		}
	}

	return *results
}

// pruneNeighbors 邻居数超过容量时裁剪，保留最近的若干个
func (x *Index) pruneNeighbors(pos int, level int) {
	capacity := x.m
	if level == 0 {
		capacity = x.m * 2
	}
	list := x.neighbors[pos][level]
	if len(list) <= capacity {
		return
	}

	vec := x.vectors[pos]
	ss := make([]scored, len(list))
	for i, n := range list {
		ss[i] = scored{pos: int(n), score: dot(vec, x.vectors[n])}
	}
	picked := closestN(ss, capacity)

	pruned := make([]int32, len(picked))
	for i, s := range picked {
		pruned[i] = int32(s.pos)
	}
	x.neighbors[pos][level] = pruned
}

// exactScan 全量精确扫描，仅用于 k 覆盖全语料的场景
func (x *Index) exactScan(query []float32) []Hit {
	ss := make([]scored, len(x.vectors))
	for i, v := range x.vectors {
		ss[i] = scored{pos: i, score: dot(query, v)}
	}
	picked := closestN(ss, len(ss))

	hits := make([]Hit, len(picked))
	for i, s := range picked {
		hits[i] = Hit{Position: s.pos, Score: float64(s.score)}
	}
	return hits
}

func dot(a []float32, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// ===== 序列化 =====

// persisted 是 gob 序列化用的镜像结构
type persisted struct {
	Dim            int
	M              int
	EfConstruction int
	EfSearch       int
	Entry          int
	MaxLevel       int
	Vectors        [][]float32
	Neighbors      [][][]int32
}

// Save 把索引写入文件
func (x *Index) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create index file: %w", err)
	}
	defer f.Close()

	p := persisted{
		Dim:            x.dim,
		M:              x.m,
		EfConstruction: x.efConstruction,
		EfSearch:       x.efSearch,
		Entry:          x.entry,
		MaxLevel:       x.maxLevel,
		Vectors:        x.vectors,
		Neighbors:      x.neighbors,
	}
	if err := gob.NewEncoder(f).Encode(&p); err != nil {
		return fmt.Errorf("failed to encode index: %w", err)
	}
	return nil
}

// Load 从文件恢复索引
func Load(path string) (*Index, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open index file: %w", err)
	}
	defer f.Close()

	var p persisted
	if err := gob.NewDecoder(f).Decode(&p); err != nil {
		return nil, fmt.Errorf("failed to decode index: %w", err)
	}
	if p.Dim <= 0 || p.M <= 0 {
		return nil, fmt.Errorf("index file is corrupt: dim=%d m=%d", p.Dim, p.M)
	}

	return &Index{
		dim:            p.Dim,
		m:              p.M,
		efConstruction: p.EfConstruction,
		efSearch:       p.EfSearch,
		ml:             1 / math.Log(float64(p.M)),
		entry:          p.Entry,
		maxLevel:       p.MaxLevel,
		vectors:        p.Vectors,
		neighbors:      p.Neighbors,
	}, nil
}
