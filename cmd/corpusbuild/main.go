package main

import (
	"context"
	"flag"
	"os"
	"path/filepath"
	"time"

	"github.com/Allan-at-NTU/udemy-recs/internal/catalog"
	"github.com/Allan-at-NTU/udemy-recs/internal/corpus"
	"github.com/Allan-at-NTU/udemy-recs/internal/logger"
	"github.com/Allan-at-NTU/udemy-recs/internal/vecindex"
	"github.com/Allan-at-NTU/udemy-recs/pkg/llm"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"
)

// corpusbuild 离线构建语料产物：
// 原始 CSV -> 清洗 -> 分数计算 -> embedding -> HNSW 索引 -> 产物目录
// 产物由 recsys 服务启动时只读加载

type llmConfig struct {
	Embedding struct {
		Endpoint string `yaml:"endpoint"`
		APIKey   string `yaml:"api_key"`
		Model    string `yaml:"model"`
	} `yaml:"embedding"`
}

func main() {
	_ = godotenv.Load()

	input := flag.String("input", "data/courses_raw.csv", "Path to raw catalog CSV")
	out := flag.String("out", "data/artifacts", "Output artifacts directory")
	llmPath := flag.String("llm", "configs/llm.yaml", "Path to llm.yaml")
	m := flag.Int("m", vecindex.DefaultM, "HNSW connections per layer")
	efConstruction := flag.Int("ef-construction", vecindex.DefaultEfConstruction, "HNSW construction quality")
	batchSize := flag.Int("batch", 64, "Embedding batch size")
	concurrency := flag.Int("concurrency", 4, "Concurrent embedding batches")
	flag.Parse()

	cfg, err := loadLLMConfig(*llmPath)
	if err != nil {
		logger.Fatal("Failed to load llm config: %v", err)
	}

	// 1. 清洗原始目录
	items, err := corpus.LoadCSV(*input)
	if err != nil {
		logger.Fatal("Failed to load raw catalog: %v", err)
	}
	if len(items) == 0 {
		logger.Fatal("Raw catalog %s contains no usable courses", *input)
	}
	logger.Info("Loaded %d courses from %s", len(items), *input)

	// 2. 离线分数
	scores := corpus.ComputeScores(items)

	// 3. 批量 embedding
	client := llm.NewEmbeddingClient(cfg.Embedding.Endpoint, cfg.Embedding.APIKey, cfg.Embedding.Model)

	texts := make([]string, len(items))
	for i, item := range items {
		texts[i] = corpus.EmbeddingText(item)
	}

	start := time.Now()
	embeddings, err := embedAll(context.Background(), client, texts, *batchSize, *concurrency)
	if err != nil {
		logger.Fatal("Embedding failed: %v", err)
	}
	logger.Info("Embedded %d texts in %s", len(texts), time.Since(start).Round(time.Second))

	// 4. 构建索引
	// 插入顺序即索引位置，与 scores 行序严格对齐
	index := vecindex.New(len(embeddings[0]), vecindex.Options{
		M:              *m,
		EfConstruction: *efConstruction,
	})
	for _, emb := range embeddings {
		if _, err := index.Add(emb); err != nil {
			logger.Fatal("Failed to add vector to index: %v", err)
		}
	}

	// 5. 写产物
	if err := os.MkdirAll(*out, 0755); err != nil {
		logger.Fatal("Failed to create output dir: %v", err)
	}
	if err := corpus.WriteJSONL(filepath.Join(*out, catalog.DetailsFile), items); err != nil {
		logger.Fatal("Failed to write details: %v", err)
	}
	if err := corpus.WriteJSONL(filepath.Join(*out, catalog.ScoresFile), scores); err != nil {
		logger.Fatal("Failed to write scores: %v", err)
	}
	if err := index.Save(filepath.Join(*out, catalog.IndexFile)); err != nil {
		logger.Fatal("Failed to write index: %v", err)
	}

	logger.Info("Wrote artifacts to %s", *out)
}

// embedAll 分批并发编码全部文本，保持输入顺序
func embedAll(ctx context.Context, client *llm.EmbeddingClient, texts []string, batchSize, concurrency int) ([][]float32, error) {
	out := make([][]float32, len(texts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for start := 0; start < len(texts); start += batchSize {
		start := start
		end := start + batchSize
		if end > len(texts) {
			end = len(texts)
		}

		g.Go(func() error {
			vecs, err := client.EmbedBatch(gctx, texts[start:end])
			if err != nil {
				return err
			}
			// 每个 goroutine 只写自己的区间，无需加锁
			copy(out[start:end], vecs)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func loadLLMConfig(path string) (*llmConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg llmConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if cfg.Embedding.APIKey == "" {
		cfg.Embedding.APIKey = os.Getenv("EMBEDDING_API_KEY")
	}
	return &cfg, nil
}
