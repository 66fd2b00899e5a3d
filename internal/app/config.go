package app

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/n1hub/deepmine-engine/internal/logger"
	"github.com/n1hub/deepmine-engine/internal/utils"
)

type Config struct {
	EngineName    string `yaml:"engine_name"`
	EngineVersion string `yaml:"engine_version"`
	Port          string `yaml:"port"`

	StoreBackend string `yaml:"store_backend"` // memory | postgres | sqlite
	SQLitePath   string `yaml:"sqlite_path"`
	RedisURL     string `yaml:"redis_url"`

	ChunkSize            int     `yaml:"chunk_size"`
	ChunkStride          int     `yaml:"chunk_stride"`
	RetrieverTopK        int     `yaml:"retriever_top_k"`
	MMRLambda            float64 `yaml:"mmr_lambda"`
	PerSourceCap         int     `yaml:"per_source_cap"`
	RerankPool           int     `yaml:"rerank_pool"`
	RerankKeep           int     `yaml:"rerank_keep"`
	CitationMinConf      float64 `yaml:"citation_min_conf"`
	CitationFallback     string  `yaml:"citation_fallback"`
	PublicScoreThreshold float64 `yaml:"public_score_threshold"`
	AnswerMaxTokens      int     `yaml:"answer_max_tokens"`

	EmbeddingDimension int `yaml:"embedding_dimension"`

	EvaluationRecallMin           float64 `yaml:"evaluation_recall_min"`
	EvaluationContextualRecallMin float64 `yaml:"evaluation_contextual_recall_min"`
	EvaluationFaithfulnessMin     float64 `yaml:"evaluation_faithfulness_min"`
	EvaluationCitationShareMin    float64 `yaml:"evaluation_citation_share_min"`
	RouterHealthMin               float64 `yaml:"router_health_min"`

	RateLimitUpload   int `yaml:"rate_limit_upload"`
	RateLimitChat     int `yaml:"rate_limit_chat"`
	RateLimitPublic   int `yaml:"rate_limit_public"`
	MaxConcurrentJobs int `yaml:"max_concurrent_jobs"`
	MaxPayloadMB      int `yaml:"max_payload_mb"`
	RetentionDays     int `yaml:"retention_days"`
}

func defaults() Config {
	return Config{
		EngineName:                    "deepmine-engine",
		EngineVersion:                 "0.1.0",
		Port:                          "8080",
		StoreBackend:                  "memory",
		SQLitePath:                    "deepmine.db",
		RedisURL:                      "redis://localhost:6379/0",
		ChunkSize:                     800,
		ChunkStride:                   200,
		RetrieverTopK:                 6,
		MMRLambda:                     0.3,
		PerSourceCap:                  3,
		RerankPool:                    24,
		RerankKeep:                    8,
		CitationMinConf:               0.62,
		CitationFallback:              "idk+dig_deep",
		PublicScoreThreshold:          0.62,
		AnswerMaxTokens:               350,
		EmbeddingDimension:            384,
		EvaluationRecallMin:           0.85,
		EvaluationContextualRecallMin: 0.90,
		EvaluationFaithfulnessMin:     0.95,
		EvaluationCitationShareMin:    0.70,
		RouterHealthMin:               0.80,
		RateLimitUpload:               60,
		RateLimitChat:                 60,
		RateLimitPublic:               120,
		MaxConcurrentJobs:             10,
		MaxPayloadMB:                  20,
		RetentionDays:                 7,
	}
}

// LoadConfig resolves configuration in two layers: an optional YAML file
// (DEEPMINE_CONFIG) over built-in defaults, then environment variables over
// both.
func LoadConfig(log *logger.Logger) Config {
	cfg := defaults()
	if path := os.Getenv("DEEPMINE_CONFIG"); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			log.Warn("Could not read config file, using defaults", "path", path, "error", err)
		} else if err := yaml.Unmarshal(raw, &cfg); err != nil {
			log.Warn("Could not parse config file, using defaults", "path", path, "error", err)
		}
	}

	cfg.EngineName = utils.GetEnv("ENGINE_NAME", cfg.EngineName, log)
	cfg.EngineVersion = utils.GetEnv("ENGINE_VERSION", cfg.EngineVersion, log)
	cfg.Port = utils.GetEnv("PORT", cfg.Port, log)
	cfg.StoreBackend = utils.GetEnv("STORE_BACKEND", cfg.StoreBackend, log)
	cfg.SQLitePath = utils.GetEnv("SQLITE_PATH", cfg.SQLitePath, log)
	cfg.RedisURL = utils.GetEnv("REDIS_URL", cfg.RedisURL, log)
	cfg.ChunkSize = utils.GetEnvAsInt("RAG_CHUNK_SIZE", cfg.ChunkSize, log)
	cfg.ChunkStride = utils.GetEnvAsInt("RAG_CHUNK_STRIDE", cfg.ChunkStride, log)
	cfg.RetrieverTopK = utils.GetEnvAsInt("RAG_RETRIEVER_TOP_K", cfg.RetrieverTopK, log)
	cfg.MMRLambda = utils.GetEnvAsFloat("RAG_MMR_LAMBDA", cfg.MMRLambda, log)
	cfg.PerSourceCap = utils.GetEnvAsInt("RAG_PER_SOURCE_CAP", cfg.PerSourceCap, log)
	cfg.RerankPool = utils.GetEnvAsInt("RAG_RERANK_POOL", cfg.RerankPool, log)
	cfg.RerankKeep = utils.GetEnvAsInt("RAG_RERANK_KEEP", cfg.RerankKeep, log)
	cfg.CitationMinConf = utils.GetEnvAsFloat("CITATION_MIN_CONF", cfg.CitationMinConf, log)
	cfg.CitationFallback = utils.GetEnv("CITATION_FALLBACK", cfg.CitationFallback, log)
	cfg.PublicScoreThreshold = utils.GetEnvAsFloat("PUBLIC_SCORE_THRESHOLD", cfg.PublicScoreThreshold, log)
	cfg.AnswerMaxTokens = utils.GetEnvAsInt("ANSWER_MAX_TOKENS", cfg.AnswerMaxTokens, log)
	cfg.EmbeddingDimension = utils.GetEnvAsInt("EMBEDDING_DIMENSION", cfg.EmbeddingDimension, log)
	cfg.EvaluationRecallMin = utils.GetEnvAsFloat("EVALUATION_RECALL_MIN", cfg.EvaluationRecallMin, log)
	cfg.EvaluationContextualRecallMin = utils.GetEnvAsFloat("EVALUATION_CONTEXTUAL_RECALL_MIN", cfg.EvaluationContextualRecallMin, log)
	cfg.EvaluationFaithfulnessMin = utils.GetEnvAsFloat("EVALUATION_FAITHFULNESS_MIN", cfg.EvaluationFaithfulnessMin, log)
	cfg.EvaluationCitationShareMin = utils.GetEnvAsFloat("EVALUATION_CITATION_SHARE_MIN", cfg.EvaluationCitationShareMin, log)
	cfg.RouterHealthMin = utils.GetEnvAsFloat("ROUTER_HEALTH_MIN", cfg.RouterHealthMin, log)
	cfg.RateLimitUpload = utils.GetEnvAsInt("RATE_LIMIT_UPLOAD", cfg.RateLimitUpload, log)
	cfg.RateLimitChat = utils.GetEnvAsInt("RATE_LIMIT_CHAT", cfg.RateLimitChat, log)
	cfg.RateLimitPublic = utils.GetEnvAsInt("RATE_LIMIT_PUBLIC", cfg.RateLimitPublic, log)
	cfg.MaxConcurrentJobs = utils.GetEnvAsInt("MAX_CONCURRENT_JOBS", cfg.MaxConcurrentJobs, log)
	cfg.MaxPayloadMB = utils.GetEnvAsInt("MAX_PAYLOAD_MB", cfg.MaxPayloadMB, log)
	cfg.RetentionDays = utils.GetEnvAsInt("RETENTION_DAYS", cfg.RetentionDays, log)
	return cfg
}
