package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/xxxsen/common/logger"
)

type Config struct {
	Port             int              `json:"port"`
	Database         DatabaseConfig   `json:"database"`
	LogConfig        logger.LogConfig `json:"log_config"`
	FileStore        FileStoreConfig  `json:"file_store"`
	Embedding        EmbeddingConfig  `json:"embedding"`
	Dedup            DedupConfig      `json:"dedup"`
	Search           SearchConfig     `json:"search"`
	Schedule         ScheduleConfig   `json:"schedule"`
	CORSAllowlist    []string         `json:"cors_allowlist"`
	RateLimitSeconds int              `json:"rate_limit_seconds"`
	MaxUploadBytes   int64            `json:"max_upload_bytes"`
	WorkerCount      int              `json:"worker_count"`
}

type DatabaseConfig struct {
	DSN      string `json:"dsn"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	DBName   string `json:"db_name"`
	SSLMode  string `json:"ssl_mode"`
}

type FileStoreConfig struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type ProviderConfig struct {
	Name  string      `json:"name"`
	Model string      `json:"model"`
	Data  interface{} `json:"data"`
}

type EmbeddingConfig struct {
	Providers          []ProviderConfig `json:"providers"`
	Dimension          int              `json:"dimension"`
	ProviderTokenLimit int              `json:"provider_token_limit"`
	Concurrency        int64            `json:"concurrency"`
	MaxAttempts        int              `json:"max_attempts"`
	ChunkWordThreshold int              `json:"chunk_word_threshold"`
	ChunkTargetTokens  int              `json:"chunk_target_tokens"`
	ChunkOverlapTokens int              `json:"chunk_overlap_tokens"`
	CacheKeepDays      int              `json:"cache_keep_days"`
}

type DedupConfig struct {
	SimilarityThreshold float64            `json:"similarity_threshold"`
	TypeWeights         map[string]float64 `json:"type_weights"`
}

type SearchConfig struct {
	VectorWeight   float64 `json:"vector_weight"`
	TextWeight     float64 `json:"text_weight"`
	MetaWeight     float64 `json:"meta_weight"`
	CandidateLimit int     `json:"candidate_limit"`
}

type ScheduleConfig struct {
	EmbeddingSweep string `json:"embedding_sweep"`
	DuplicateSweep string `json:"duplicate_sweep"`
	CacheCleanup   string `json:"cache_cleanup"`
}

func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if cfg.Port == 0 {
		return nil, fmt.Errorf("port is required")
	}
	if cfg.Database.DSN == "" && cfg.Database.Host == "" {
		return nil, fmt.Errorf("database.dsn or database.host is required")
	}
	if len(cfg.Embedding.Providers) == 0 {
		return nil, fmt.Errorf("embedding.providers is required")
	}
	if cfg.LogConfig.Level == "" {
		cfg.LogConfig.Level = "info"
	}
	if cfg.FileStore.Type == "" {
		cfg.FileStore.Type = "local"
	}
	if cfg.Embedding.Dimension == 0 {
		cfg.Embedding.Dimension = 768
	}
	if cfg.Embedding.ProviderTokenLimit == 0 {
		cfg.Embedding.ProviderTokenLimit = 8191
	}
	if cfg.Embedding.Concurrency == 0 {
		cfg.Embedding.Concurrency = 4
	}
	if cfg.Embedding.MaxAttempts == 0 {
		cfg.Embedding.MaxAttempts = 5
	}
	if cfg.Embedding.ChunkWordThreshold == 0 {
		cfg.Embedding.ChunkWordThreshold = 4000
	}
	if cfg.Embedding.ChunkTargetTokens == 0 {
		cfg.Embedding.ChunkTargetTokens = 1024
	}
	if cfg.Embedding.ChunkOverlapTokens == 0 {
		cfg.Embedding.ChunkOverlapTokens = 128
	}
	if cfg.Embedding.CacheKeepDays == 0 {
		cfg.Embedding.CacheKeepDays = 30
	}
	if cfg.Dedup.SimilarityThreshold == 0 {
		cfg.Dedup.SimilarityThreshold = 0.95
	}
	if len(cfg.Dedup.TypeWeights) == 0 {
		cfg.Dedup.TypeWeights = map[string]float64{
			"standalone_chapter": 3.0,
			"textbook":           2.0,
			"research_paper":     1.0,
		}
	}
	if cfg.Search.VectorWeight == 0 && cfg.Search.TextWeight == 0 && cfg.Search.MetaWeight == 0 {
		cfg.Search.VectorWeight = 0.70
		cfg.Search.TextWeight = 0.20
		cfg.Search.MetaWeight = 0.10
	}
	if cfg.Search.CandidateLimit == 0 {
		cfg.Search.CandidateLimit = 30
	}
	if cfg.Schedule.EmbeddingSweep == "" {
		cfg.Schedule.EmbeddingSweep = "*/5 * * * *"
	}
	if cfg.Schedule.DuplicateSweep == "" {
		cfg.Schedule.DuplicateSweep = "*/10 * * * *"
	}
	if cfg.Schedule.CacheCleanup == "" {
		cfg.Schedule.CacheCleanup = "0 4 * * *"
	}
	if cfg.MaxUploadBytes == 0 {
		cfg.MaxUploadBytes = 64 * 1024 * 1024
	}
	if cfg.WorkerCount == 0 {
		cfg.WorkerCount = 4
	}
	return &cfg, nil
}
