package corpus

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/Allan-at-NTU/udemy-recs/internal/model"
)

// 原始 CSV 中用到的列名
var requiredColumns = []string{"course_id", "course_title"}

// LoadCSV 读取原始课程目录 CSV 并做基础清洗
// 规则：
//  1. level 去掉 " Level" 后缀，缺失时填 "All"
//  2. 数值字段解析失败按 0 处理
//  3. 按 course_id 去重，保留发布时间最新的一条
func LoadCSV(path string) ([]model.Item, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open raw catalog: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read raw catalog: %w", err)
	}
	if len(rows) < 1 {
		return nil, fmt.Errorf("raw catalog is empty: %s", path)
	}

	// 建立列名 -> 下标的映射
	colIdx := make(map[string]int)
	for i, name := range rows[0] {
		colIdx[strings.TrimSpace(name)] = i
	}
	for _, col := range requiredColumns {
		if _, ok := colIdx[col]; !ok {
			return nil, fmt.Errorf("raw catalog missing required column '%s'", col)
		}
	}

	field := func(row []string, name string) string {
		idx, ok := colIdx[name]
		if !ok || idx >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[idx])
	}

	var items []model.Item
	for _, row := range rows[1:] {
		id, err := strconv.ParseInt(field(row, "course_id"), 10, 64)
		if err != nil {
			// 无法解析 ID 的行直接丢弃
			continue
		}

		// "Beginner Level" -> "Beginner", "All Levels" -> "All"
		level := field(row, "level")
		level = strings.TrimSuffix(level, " Levels")
		level = strings.TrimSuffix(level, " Level")
		if level == "" {
			level = "All"
		}

		item := model.Item{
			CourseID:       id,
			Title:          field(row, "course_title"),
			Subject:        field(row, "subject"),
			Level:          level,
			URL:            field(row, "url"),
			Price:          parseFloat(field(row, "price")),
			DurationHours:  parseFloat(field(row, "content_duration")),
			NumReviews:     parseInt(field(row, "num_reviews")),
			NumSubscribers: parseInt(field(row, "num_subscribers")),
			Rating:         parseFloat(field(row, "combined_rating")),
		}

		if ts := parseTimestamp(field(row, "published_timestamp")); ts != nil {
			item.PublishedAt = ts
		}

		items = append(items, item)
	}

	return dedupByLatest(items), nil
}

func parseFloat(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func parseInt(s string) int64 {
	// 有些数据源把整数字段写成 "1234.0"
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return int64(v)
}

func parseTimestamp(s string) *time.Time {
	if s == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05Z", "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}

// dedupByLatest 按 course_id 去重，保留发布时间最新的记录
func dedupByLatest(items []model.Item) []model.Item {
	byID := make(map[int64]model.Item, len(items))
	for _, item := range items {
		prev, ok := byID[item.CourseID]
		if !ok {
			byID[item.CourseID] = item
			continue
		}
		if publishedAfter(item.PublishedAt, prev.PublishedAt) {
			byID[item.CourseID] = item
		}
	}

	result := make([]model.Item, 0, len(byID))
	for _, item := range byID {
		result = append(result, item)
	}
	// 固定输出顺序，保证索引位置可复现
	sort.Slice(result, func(i, j int) bool { return result[i].CourseID < result[j].CourseID })
	return result
}

func publishedAfter(a, b *time.Time) bool {
	if a == nil {
		return false
	}
	if b == nil {
		return true
	}
	return a.After(*b)
}

// EmbeddingText 拼接送入 embedding 模型的文本
func EmbeddingText(item model.Item) string {
	return item.Title + " | " + item.Subject + " | " + item.Level
}

// WriteJSONL 把任意记录逐行写成 JSON Lines 文件
func WriteJSONL[T any](path string, records []T) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	encoder := json.NewEncoder(f)
	for _, r := range records {
		if err := encoder.Encode(r); err != nil {
			return fmt.Errorf("failed to write record to %s: %w", path, err)
		}
	}
	return nil
}
