package history

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// Record 代表一次已返回给客户端的推荐
// 用于离线效果分析，不参与在线打分
type Record struct {
	ClientID  string  `json:"client_id"`
	Query     string  `json:"query"`
	CourseIDs []int64 `json:"course_ids"`
	Timestamp int64   `json:"timestamp"`
}

// Store 定义推荐历史存储接口
type Store interface {
	// GetRecent 获取客户端最近 N 天的推荐历史
	GetRecent(clientID string, days int) ([]Record, error)
	// SaveServed 保存一次已返回的推荐
	SaveServed(clientID string, query string, courseIDs []int64) error
	// Cleanup 清理超过保留期的记录
	Cleanup(retentionDays int) error
}

// FileStore 基于 jsonl 文件的历史存储实现
type FileStore struct {
	filePath string
	mu       sync.RWMutex
	records  []Record // 内存缓存，用于快速查询
}

// NewFileStore 创建一个新的 FileStore
// 文件不存在时自动创建
func NewFileStore(filePath string) (*FileStore, error) {
	fs := &FileStore{
		filePath: filePath,
		records:  make([]Record, 0),
	}

	if err := fs.load(); err != nil {
		return nil, err
	}

	return fs, nil
}

// load 从文件加载所有历史记录到内存
func (s *FileStore) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.filePath, os.O_RDONLY|os.O_CREATE, 0644)
	if err != nil {
		return fmt.Errorf("failed to open history file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var record Record
		if err := json.Unmarshal(line, &record); err != nil {
			// 历史文件里的损坏行直接忽略
			continue
		}
		s.records = append(s.records, record)
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to scan history file: %w", err)
	}

	return nil
}

// GetRecent 获取客户端最近 N 天的推荐历史
func (s *FileStore) GetRecent(clientID string, days int) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cutoff := time.Now().Unix() - int64(days*24*60*60)

	var result []Record
	// 全量扫描对当前数据量足够，数据变大后可以按 clientID 建索引
	for _, r := range s.records {
		if r.ClientID == clientID && r.Timestamp >= cutoff {
			result = append(result, r)
		}
	}

	return result, nil
}

// SaveServed 追加一条推荐记录到文件和内存
func (s *FileStore) SaveServed(clientID string, query string, courseIDs []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.filePath, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0644)
	if err != nil {
		return fmt.Errorf("failed to open history file for appending: %w", err)
	}
	defer f.Close()

	record := Record{
		ClientID:  clientID,
		Query:     query,
		CourseIDs: courseIDs,
		Timestamp: time.Now().Unix(),
	}

	if err := json.NewEncoder(f).Encode(record); err != nil {
		return fmt.Errorf("failed to write history record: %w", err)
	}

	s.records = append(s.records, record)
	return nil
}

// Cleanup 删除超过保留天数的记录并重写文件
func (s *FileStore) Cleanup(retentionDays int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Unix() - int64(retentionDays*24*60*60)

	kept := make([]Record, 0, len(s.records))
	for _, r := range s.records {
		if r.Timestamp >= cutoff {
			kept = append(kept, r)
		}
	}

	// 先写临时文件再原子替换，避免清理中途崩溃丢数据
	tmpPath := s.filePath + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("failed to create temp history file: %w", err)
	}

	encoder := json.NewEncoder(f)
	for _, r := range kept {
		if err := encoder.Encode(r); err != nil {
			f.Close()
			return fmt.Errorf("failed to write history record: %w", err)
		}
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close temp history file: %w", err)
	}

	if err := os.Rename(tmpPath, s.filePath); err != nil {
		return fmt.Errorf("failed to replace history file: %w", err)
	}

	s.records = kept
	return nil
}
