package main

import (
	"flag"
	"os"

	"github.com/Allan-at-NTU/udemy-recs/internal/logger"
	"github.com/Allan-at-NTU/udemy-recs/internal/rank"

	"gopkg.in/yaml.v3"
)

// LLMConfig 对应 configs/llm.yaml
// api_key 留空时回退到环境变量（.env 由 godotenv 加载）
type LLMConfig struct {
	Embedding struct {
		Endpoint string `yaml:"endpoint"`
		APIKey   string `yaml:"api_key"`
		Model    string `yaml:"model"`
	} `yaml:"embedding"`
	Chat struct {
		Endpoint string `yaml:"endpoint"`
		APIKey   string `yaml:"api_key"`
		Model    string `yaml:"model"`
	} `yaml:"chat"`
}

// ServerConfig 对应 configs/server.yaml
type ServerConfig struct {
	Server struct {
		Port  string `yaml:"port"`
		Debug bool   `yaml:"debug"`
	} `yaml:"server"`
	Paths struct {
		Artifacts string `yaml:"artifacts"`
		Clients   string `yaml:"clients"`
		Roles     string `yaml:"roles"`
		LLM       string `yaml:"llm"`
		History   string `yaml:"history"`
	} `yaml:"paths"`
	Retrieval struct {
		Lambda                float64      `yaml:"lambda"`
		PairwiseDiversity     bool         `yaml:"pairwise_diversity"`
		PoolSize              int          `yaml:"pool_size"`
		Weights               rank.Weights `yaml:"weights"`
		EmbedRetries          int          `yaml:"embed_retries"`
		ExplainConcurrency    int          `yaml:"explain_concurrency"`
		ExplainTimeoutSeconds int          `yaml:"explain_timeout_seconds"`
		MaxConcurrent         int          `yaml:"max_concurrent"`
	} `yaml:"retrieval"`
	Cache struct {
		RedisAddr     string `yaml:"redis_addr"`
		RedisPassword string `yaml:"redis_password"`
		TTLSeconds    int    `yaml:"ttl_seconds"`
	} `yaml:"cache"`
	Maintenance struct {
		IntervalMinutes      int `yaml:"interval_minutes"`
		HistoryRetentionDays int `yaml:"history_retention_days"`
		TaskMaxAgeMinutes    int `yaml:"task_max_age_minutes"`
	} `yaml:"maintenance"`
}

func loadLLMConfig(path string) (*LLMConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg LLMConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	// 凭证优先取配置文件，缺失时回退环境变量
	if cfg.Embedding.APIKey == "" {
		cfg.Embedding.APIKey = os.Getenv("EMBEDDING_API_KEY")
	}
	if cfg.Chat.APIKey == "" {
		cfg.Chat.APIKey = os.Getenv("CHAT_API_KEY")
	}
	return &cfg, nil
}

func loadServerConfig(path string) (*ServerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg ServerConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// InitServerConfig 初始化服务器配置，优先级：命令行参数 > 配置文件 > 默认值
func InitServerConfig() *ServerConfig {
	configPath := flag.String("config", "configs/server.yaml", "Path to server config file")
	portFlag := flag.String("port", "", "Server port")
	debugFlag := flag.Bool("debug", false, "Enable debug logging")
	artifactsFlag := flag.String("artifacts", "", "Path to catalog artifacts directory")
	clientsFlag := flag.String("clients", "", "Path to clients.yaml")
	rolesFlag := flag.String("roles", "", "Path to roles.yaml")
	llmFlag := flag.String("llm", "", "Path to llm.yaml")
	historyFlag := flag.String("history", "", "Path to history.jsonl")
	flag.Parse()

	// 1. 默认值
	cfg := &ServerConfig{}
	cfg.Server.Port = "8080"
	cfg.Paths.Artifacts = "data/artifacts"
	cfg.Paths.Clients = "configs/clients.yaml"
	cfg.Paths.Roles = "configs/roles.yaml"
	cfg.Paths.LLM = "configs/llm.yaml"
	cfg.Paths.History = "data/history.jsonl"
	cfg.Retrieval.Lambda = rank.DefaultLambda
	cfg.Retrieval.PoolSize = 200
	cfg.Retrieval.Weights = rank.DefaultWeights()
	cfg.Retrieval.EmbedRetries = 2
	cfg.Retrieval.ExplainConcurrency = 3
	cfg.Retrieval.ExplainTimeoutSeconds = 10
	cfg.Retrieval.MaxConcurrent = 64
	cfg.Cache.TTLSeconds = 3600
	cfg.Maintenance.IntervalMinutes = 60
	cfg.Maintenance.HistoryRetentionDays = 30
	cfg.Maintenance.TaskMaxAgeMinutes = 60

	// 2. 尝试加载配置文件，失败时用默认值继续
	if loaded, err := loadServerConfig(*configPath); err == nil {
		if loaded.Server.Port != "" {
			cfg.Server.Port = loaded.Server.Port
		}
		if loaded.Server.Debug {
			cfg.Server.Debug = true
		}
		if loaded.Paths.Artifacts != "" {
			cfg.Paths.Artifacts = loaded.Paths.Artifacts
		}
		if loaded.Paths.Clients != "" {
			cfg.Paths.Clients = loaded.Paths.Clients
		}
		if loaded.Paths.Roles != "" {
			cfg.Paths.Roles = loaded.Paths.Roles
		}
		if loaded.Paths.LLM != "" {
			cfg.Paths.LLM = loaded.Paths.LLM
		}
		if loaded.Paths.History != "" {
			cfg.Paths.History = loaded.Paths.History
		}
		if loaded.Retrieval.Lambda > 0 {
			cfg.Retrieval.Lambda = loaded.Retrieval.Lambda
		}
		if loaded.Retrieval.PairwiseDiversity {
			cfg.Retrieval.PairwiseDiversity = true
		}
		if loaded.Retrieval.PoolSize > 0 {
			cfg.Retrieval.PoolSize = loaded.Retrieval.PoolSize
		}
		if loaded.Retrieval.Weights != (rank.Weights{}) {
			cfg.Retrieval.Weights = loaded.Retrieval.Weights
		}
		if loaded.Retrieval.EmbedRetries > 0 {
			cfg.Retrieval.EmbedRetries = loaded.Retrieval.EmbedRetries
		}
		if loaded.Retrieval.ExplainConcurrency > 0 {
			cfg.Retrieval.ExplainConcurrency = loaded.Retrieval.ExplainConcurrency
		}
		if loaded.Retrieval.ExplainTimeoutSeconds > 0 {
			cfg.Retrieval.ExplainTimeoutSeconds = loaded.Retrieval.ExplainTimeoutSeconds
		}
		if loaded.Retrieval.MaxConcurrent > 0 {
			cfg.Retrieval.MaxConcurrent = loaded.Retrieval.MaxConcurrent
		}
		if loaded.Cache.RedisAddr != "" {
			cfg.Cache.RedisAddr = loaded.Cache.RedisAddr
			cfg.Cache.RedisPassword = loaded.Cache.RedisPassword
		}
		if loaded.Cache.TTLSeconds > 0 {
			cfg.Cache.TTLSeconds = loaded.Cache.TTLSeconds
		}
		if loaded.Maintenance.IntervalMinutes > 0 {
			cfg.Maintenance.IntervalMinutes = loaded.Maintenance.IntervalMinutes
		}
		if loaded.Maintenance.HistoryRetentionDays > 0 {
			cfg.Maintenance.HistoryRetentionDays = loaded.Maintenance.HistoryRetentionDays
		}
		if loaded.Maintenance.TaskMaxAgeMinutes > 0 {
			cfg.Maintenance.TaskMaxAgeMinutes = loaded.Maintenance.TaskMaxAgeMinutes
		}
	} else {
		logger.Info("Could not load config file '%s': %v. Using defaults or flags.", *configPath, err)
	}

	// 3. 应用命令行参数 (优先级最高)
	if *portFlag != "" {
		cfg.Server.Port = *portFlag
	}
	if *debugFlag {
		cfg.Server.Debug = true
	}
	if *artifactsFlag != "" {
		cfg.Paths.Artifacts = *artifactsFlag
	}
	if *clientsFlag != "" {
		cfg.Paths.Clients = *clientsFlag
	}
	if *rolesFlag != "" {
		cfg.Paths.Roles = *rolesFlag
	}
	if *llmFlag != "" {
		cfg.Paths.LLM = *llmFlag
	}
	if *historyFlag != "" {
		cfg.Paths.History = *historyFlag
	}

	return cfg
}
