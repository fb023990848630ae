package catalog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Allan-at-NTU/udemy-recs/internal/model"
	"github.com/Allan-at-NTU/udemy-recs/internal/vecindex"
)

// 语料快照的产物文件名，由 corpusbuild 离线生成
const (
	DetailsFile = "details.jsonl"
	ScoresFile  = "scores.jsonl"
	IndexFile   = "index.bin"
)

// Catalog 是一次服务会话内不可变的语料快照
// 启动时整体加载，之后只读；任何产物缺失或损坏都是致命的启动错误
type Catalog struct {
	items  map[int64]*model.Item
	scores map[int64]model.ScoreEntry
	ids    []int64 // 索引位置 -> course_id
	index  *vecindex.Index
}

// Load 从产物目录加载语料快照
// scores.jsonl 的行序即向量索引的位置序，两者必须严格对齐
func Load(dir string) (*Catalog, error) {
	var details []model.Item
	if err := readJSONL(filepath.Join(dir, DetailsFile), &details); err != nil {
		return nil, err
	}
	if len(details) == 0 {
		return nil, fmt.Errorf("catalog details are empty: %s", filepath.Join(dir, DetailsFile))
	}

	var scoreRows []model.ScoreEntry
	if err := readJSONL(filepath.Join(dir, ScoresFile), &scoreRows); err != nil {
		return nil, err
	}

	index, err := vecindex.Load(filepath.Join(dir, IndexFile))
	if err != nil {
		return nil, err
	}

	if len(scoreRows) != index.Len() {
		return nil, fmt.Errorf("score table and index are misaligned: %d rows vs %d vectors",
			len(scoreRows), index.Len())
	}

	items := make(map[int64]*model.Item, len(details))
	for i := range details {
		item := details[i]
		if _, dup := items[item.CourseID]; dup {
			return nil, fmt.Errorf("duplicate course_id %d in catalog details", item.CourseID)
		}
		items[item.CourseID] = &details[i]
	}

	scores := make(map[int64]model.ScoreEntry, len(scoreRows))
	ids := make([]int64, len(scoreRows))
	for i, row := range scoreRows {
		if row.Popularity < 0 || row.Popularity > 1 || row.Recency < 0 || row.Recency > 1 {
			return nil, fmt.Errorf("score out of range for course %d: popularity=%f recency=%f",
				row.CourseID, row.Popularity, row.Recency)
		}
		scores[row.CourseID] = row
		ids[i] = row.CourseID
	}

	return &Catalog{
		items:  items,
		scores: scores,
		ids:    ids,
		index:  index,
	}, nil
}

// Item 按 course_id 查课程元数据
func (c *Catalog) Item(courseID int64) (*model.Item, bool) {
	item, ok := c.items[courseID]
	return item, ok
}

// Scores 按 course_id 查预计算分数，O(1)
func (c *Catalog) Scores(courseID int64) (model.ScoreEntry, bool) {
	entry, ok := c.scores[courseID]
	return entry, ok
}

// CourseID 把向量索引位置翻译为 course_id
func (c *Catalog) CourseID(pos int) (int64, bool) {
	if pos < 0 || pos >= len(c.ids) {
		return 0, false
	}
	return c.ids[pos], true
}

// Index 返回只读的向量索引
func (c *Catalog) Index() *vecindex.Index { return c.index }

// Size 返回语料规模（向量数）
func (c *Catalog) Size() int { return c.index.Len() }

// Close 释放快照资源
// 当前全部在内存中，留出生命周期钩子以便将来接 mmap 等实现
func (c *Catalog) Close() error {
	c.items = nil
	c.scores = nil
	c.ids = nil
	c.index = nil
	return nil
}

// readJSONL 逐行读取 JSON Lines 文件
// 与历史存储不同，语料产物中的损坏行不能容忍，直接报错
func readJSONL[T any](path string, out *[]T) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open catalog artifact: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var record T
		if err := json.Unmarshal(line, &record); err != nil {
			return fmt.Errorf("corrupt record at %s:%d: %w", path, lineNo, err)
		}
		*out = append(*out, record)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to scan %s: %w", path, err)
	}
	return nil
}
