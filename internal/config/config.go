package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/xxxsen/common/logger"
)

type Config struct {
	Port           int              `json:"port"`
	AdminJWTSecret string           `json:"admin_jwt_secret"`
	CORSAllowlist  []string         `json:"cors_allowlist"`
	LogConfig      logger.LogConfig `json:"log_config"`
	Database       DatabaseConfig   `json:"database"`
	AI             AIConfig         `json:"ai"`
	Index          IndexConfig      `json:"index"`
	Query          QueryConfig      `json:"query"`
	Policy         PolicyConfig     `json:"policy"`
	Reinforce      ReinforceConfig  `json:"reinforce"`
	Jobs           JobsConfig       `json:"jobs"`
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

type AIProviderConfig struct {
	Provider string      `json:"provider"`
	Data     interface{} `json:"data"`
}

type AIConfig struct {
	Generators    []AIProviderConfig `json:"generators"`
	Embedders     []AIProviderConfig `json:"embedders"`
	GenerateModel string             `json:"generate_model"`
	EmbedModel    string             `json:"embed_model"`
	Timeout       int                `json:"timeout"`
	MaxInputChars int                `json:"max_input_chars"`
	CacheMaxAge   int                `json:"cache_max_age_days"`
}

type IndexConfig struct {
	Dimension      int `json:"dimension"`
	MergeThreshold int `json:"merge_threshold"`
}

type QueryConfig struct {
	DefaultTopK      int     `json:"default_top_k"`
	DefaultThreshold float64 `json:"default_threshold"`
	MaxQueryChars    int     `json:"max_query_chars"`
	EmbedRetries     int     `json:"embed_retries"`
	CallTimeout      int     `json:"call_timeout"`
	RateLimitMS      int     `json:"rate_limit_ms"`
}

type PolicyConfig struct {
	InitialTemplateID    string   `json:"initial_template_id"`
	InitialContextBudget int      `json:"initial_context_budget"`
	Templates            []string `json:"templates"`
	MinContextBudget     int      `json:"min_context_budget"`
	MaxContextBudget     int      `json:"max_context_budget"`
	BudgetStep           int      `json:"budget_step"`
}

type ReinforceConfig struct {
	RatingFloor float64 `json:"rating_floor"`
	MinSamples  int     `json:"min_samples"`
	Cron        string  `json:"cron"`
}

type JobsConfig struct {
	RebuildCron      string `json:"rebuild_cron"`
	AuditCron        string `json:"audit_cron"`
	BackfillCron     string `json:"backfill_cron"`
	CacheCleanupCron string `json:"cache_cleanup_cron"`
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
	if cfg.AdminJWTSecret == "" {
		return nil, fmt.Errorf("admin_jwt_secret is required")
	}
	if cfg.Database.DSN == "" && cfg.Database.Host == "" {
		return nil, fmt.Errorf("database.dsn or database.host is required")
	}
	if len(cfg.AI.Generators) == 0 {
		return nil, fmt.Errorf("ai.generators is required")
	}
	if len(cfg.AI.Embedders) == 0 {
		return nil, fmt.Errorf("ai.embedders is required")
	}
	if cfg.AI.GenerateModel == "" || cfg.AI.EmbedModel == "" {
		return nil, fmt.Errorf("ai.generate_model and ai.embed_model are required")
	}
	if cfg.LogConfig.Level == "" {
		cfg.LogConfig.Level = "info"
	}
	if cfg.AI.Timeout == 0 {
		cfg.AI.Timeout = 60
	}
	if cfg.AI.MaxInputChars == 0 {
		cfg.AI.MaxInputChars = 100000
	}
	if cfg.Index.Dimension == 0 {
		cfg.Index.Dimension = 768
	}
	if cfg.Index.MergeThreshold == 0 {
		cfg.Index.MergeThreshold = 256
	}
	if cfg.Query.DefaultTopK == 0 {
		cfg.Query.DefaultTopK = 5
	}
	if cfg.Query.DefaultThreshold == 0 {
		cfg.Query.DefaultThreshold = 0.7
	}
	if cfg.Query.MaxQueryChars == 0 {
		cfg.Query.MaxQueryChars = 2000
	}
	if cfg.Query.EmbedRetries == 0 {
		cfg.Query.EmbedRetries = 3
	}
	if cfg.Query.CallTimeout == 0 {
		cfg.Query.CallTimeout = 30
	}
	if cfg.Policy.InitialTemplateID == "" {
		cfg.Policy.InitialTemplateID = "default"
	}
	if cfg.Policy.InitialContextBudget == 0 {
		cfg.Policy.InitialContextBudget = 1200
	}
	if len(cfg.Policy.Templates) == 0 {
		cfg.Policy.Templates = []string{"default", "concise", "grounded"}
	}
	if cfg.Policy.MinContextBudget == 0 {
		cfg.Policy.MinContextBudget = 400
	}
	if cfg.Policy.MaxContextBudget == 0 {
		cfg.Policy.MaxContextBudget = 4000
	}
	if cfg.Policy.BudgetStep == 0 {
		cfg.Policy.BudgetStep = 200
	}
	if cfg.Reinforce.RatingFloor == 0 {
		cfg.Reinforce.RatingFloor = 2.5
	}
	if cfg.Reinforce.MinSamples == 0 {
		cfg.Reinforce.MinSamples = 10
	}
	if cfg.Reinforce.Cron == "" {
		cfg.Reinforce.Cron = "*/30 * * * *"
	}
	if cfg.Jobs.RebuildCron == "" {
		cfg.Jobs.RebuildCron = "0 * * * *"
	}
	if cfg.Jobs.AuditCron == "" {
		cfg.Jobs.AuditCron = "*/10 * * * *"
	}
	if cfg.Jobs.BackfillCron == "" {
		cfg.Jobs.BackfillCron = "*/5 * * * *"
	}
	if cfg.Jobs.CacheCleanupCron == "" {
		cfg.Jobs.CacheCleanupCron = "30 3 * * *"
	}
	return &cfg, nil
}
