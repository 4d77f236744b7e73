// Package config loads the entity-scoped runtime configuration for the
// Pattern Persistence Service.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pterm/pterm"
	"gopkg.in/yaml.v2"
)

// RelationalConfig describes how to reach the durable relational store (C4).
// Storage is Postgres-backed; ConversationsDBName resolves the spec's
// "<entity_root>/data/conversations.db" path onto a per-entity schema so a
// single Postgres cluster can still host one private store per entity.
type RelationalConfig struct {
	DSN                  string `yaml:"dsn"`
	ConversationsDBName  string `yaml:"conversations_db_name"`
	MaxConns             int    `yaml:"max_conns"`
	BusyTimeoutMS        int    `yaml:"busy_timeout_ms"`
}

// GraphConfig describes the knowledge-graph engine (C2).
type GraphConfig struct {
	URI      string `yaml:"uri"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// VectorConfig describes the ANN vector index (C3).
type VectorConfig struct {
	DSN        string `yaml:"dsn"`
	Dimensions int    `yaml:"dimensions"`
	Metric     string `yaml:"metric"`
}

// EmbeddingConfig describes the embedding provider (C1).
type EmbeddingConfig struct {
	BaseURL   string            `yaml:"base_url"`
	Path      string            `yaml:"path"`
	Model     string            `yaml:"model"`
	APIKey    string            `yaml:"api_key"`
	APIHeader string            `yaml:"api_header,omitempty"` // legacy single-header auth, e.g. "Authorization"
	Headers   map[string]string `yaml:"headers,omitempty"`
	Timeout   int               `yaml:"timeout_seconds"`
}

// LLMConfig describes the model-invocation capability used for entity
// extraction and summarization (InvokeModel, see internal/llmcap).
type LLMConfig struct {
	APIKey    string `yaml:"api_key"`
	BaseURL   string `yaml:"base_url,omitempty"`
	Model     string `yaml:"model"`
	MaxTokens int64  `yaml:"max_tokens"`
}

// SchedulerConfig tunes the ingestion scheduler (§4.5).
type SchedulerConfig struct {
	SummarizeThreshold  int           `yaml:"summarize_threshold"`   // T_s
	SummarizeBatch      int           `yaml:"summarize_batch"`       // B_s
	GraphThreshold      int           `yaml:"graph_threshold"`       // T_g
	GraphBatch          int           `yaml:"graph_batch"`           // B_g
	GraphConcurrency    int           `yaml:"graph_concurrency"`
	InterBatchSleep     time.Duration `yaml:"inter_batch_sleep"`
	MaxBatchesPerTick   int           `yaml:"max_batches_per_tick"`
	SummarizeTick       time.Duration `yaml:"summarize_tick"`
	GraphTick           time.Duration `yaml:"graph_tick"`
	MaxConsecutiveErrs  int           `yaml:"max_consecutive_errors"`
}

// CuratorConfig tunes the curator sweep (§4.6).
type CuratorConfig struct {
	Seeds            []string      `yaml:"seeds"`
	VagueBlocklist   []string      `yaml:"vague_blocklist"`
	MinVisibleChars  int           `yaml:"min_visible_chars"`
	DuplicateMaxRel  float64       `yaml:"duplicate_max_relevance"`
	SweepInterval    time.Duration `yaml:"sweep_interval"`
}

// RecallConfig tunes the ambient-recall engine (§4.7).
type RecallConfig struct {
	LimitPerLayer      int     `yaml:"limit_per_layer"`
	MaxContextBytes    int     `yaml:"max_context_bytes"`
	StartupCrystals    int     `yaml:"startup_crystals"`
	StartupSummaries   int     `yaml:"startup_summaries"` // K <= 2 per spec's Open Question
	StartupRecentTurns int     `yaml:"startup_recent_turns"`
	BacklogDisplayCap  int     `yaml:"backlog_display_cap"`
	WeightGraph        float64 `yaml:"weight_graph"`
	WeightCurated      float64 `yaml:"weight_curated"`
	WeightSummaries    float64 `yaml:"weight_summaries"`
}

// Config is the full per-process configuration. One process serves one
// entity (spec.md §3), so entity identity lives here, not in a registry.
type Config struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	EntityName string `yaml:"entity_name"`
	EntityPath string `yaml:"entity_path"`

	Relational RelationalConfig `yaml:"relational"`
	Graph      GraphConfig      `yaml:"graph"`
	Vector     VectorConfig     `yaml:"vector"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	LLM        LLMConfig        `yaml:"llm"`
	Scheduler  SchedulerConfig  `yaml:"scheduler"`
	Curator    CuratorConfig    `yaml:"curator"`
	Recall     RecallConfig     `yaml:"recall"`

	LogLevel string `yaml:"log_level"`
}

// Load reads .env (if present) then a YAML config file, applying environment
// overrides for the values spec.md §6 calls out explicitly
// (ENTITY_PATH, ENTITY_NAME, ...), and fills in defaults.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)

	if cfg.EntityName == "" {
		return nil, fmt.Errorf("entity_name is required (set config.entity_name or ENTITY_NAME)")
	}
	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ENTITY_PATH"); v != "" {
		cfg.EntityPath = v
	}
	if v := os.Getenv("ENTITY_NAME"); v != "" {
		cfg.EntityName = v
	}
	if v := os.Getenv("PPS_RELATIONAL_DSN"); v != "" {
		cfg.Relational.DSN = v
	}
	if v := os.Getenv("PPS_GRAPH_URI"); v != "" {
		cfg.Graph.URI = v
	}
	if v := os.Getenv("PPS_GRAPH_USERNAME"); v != "" {
		cfg.Graph.Username = v
	}
	if v := os.Getenv("PPS_GRAPH_PASSWORD"); v != "" {
		cfg.Graph.Password = v
	}
	if v := os.Getenv("PPS_VECTOR_DSN"); v != "" {
		cfg.Vector.DSN = v
	}
	if v := os.Getenv("PPS_EMBEDDING_API_KEY"); v != "" {
		cfg.Embedding.APIKey = v
	}
	if v := os.Getenv("PPS_LLM_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("PPS_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Host == "" {
		cfg.Host = "0.0.0.0"
	}
	if cfg.Port == 0 {
		cfg.Port = 8077
	}
	if cfg.EntityPath == "" {
		cfg.EntityPath = "./data/entity"
	}
	if cfg.Relational.ConversationsDBName == "" {
		cfg.Relational.ConversationsDBName = "conversations.db"
	}
	if cfg.Relational.MaxConns <= 0 {
		cfg.Relational.MaxConns = 8
	}
	if cfg.Relational.BusyTimeoutMS <= 0 {
		cfg.Relational.BusyTimeoutMS = 5000
	}
	if cfg.Vector.Dimensions <= 0 {
		cfg.Vector.Dimensions = 768
	}
	if cfg.Vector.Metric == "" {
		cfg.Vector.Metric = "cosine"
	}
	if cfg.Embedding.Timeout <= 0 {
		cfg.Embedding.Timeout = 30
	}
	if cfg.LLM.MaxTokens <= 0 {
		cfg.LLM.MaxTokens = 1024
	}

	sc := &cfg.Scheduler
	if sc.SummarizeThreshold <= 0 {
		sc.SummarizeThreshold = 100
	}
	if sc.SummarizeBatch <= 0 {
		sc.SummarizeBatch = 50
	}
	if sc.GraphThreshold <= 0 {
		sc.GraphThreshold = 100
	}
	if sc.GraphBatch <= 0 {
		sc.GraphBatch = 10
	}
	if sc.GraphConcurrency <= 0 {
		sc.GraphConcurrency = 1
	}
	if sc.InterBatchSleep <= 0 {
		sc.InterBatchSleep = 2 * time.Second
	}
	if sc.MaxBatchesPerTick <= 0 {
		sc.MaxBatchesPerTick = 5
	}
	if sc.SummarizeTick <= 0 {
		sc.SummarizeTick = 30 * time.Second
	}
	if sc.GraphTick <= 0 {
		sc.GraphTick = 30 * time.Second
	}
	if sc.MaxConsecutiveErrs <= 0 {
		sc.MaxConsecutiveErrs = 5
	}

	cu := &cfg.Curator
	if len(cu.VagueBlocklist) == 0 {
		// Conservative default set; spec.md §9 Open Questions notes tightening
		// this requires operator sign-off.
		cu.VagueBlocklist = []string{"the", "?", "...", "", "it", "this", "that", "they", "he", "she"}
	}
	if cu.MinVisibleChars <= 0 {
		cu.MinVisibleChars = 2
	}
	if cu.DuplicateMaxRel <= 0 {
		cu.DuplicateMaxRel = 0.5
	}
	if cu.SweepInterval <= 0 {
		cu.SweepInterval = time.Hour
	}

	rc := &cfg.Recall
	if rc.LimitPerLayer <= 0 {
		rc.LimitPerLayer = 8
	}
	if rc.MaxContextBytes <= 0 {
		rc.MaxContextBytes = 16384
	}
	if rc.StartupCrystals <= 0 {
		rc.StartupCrystals = 1
	}
	if rc.StartupSummaries <= 0 || rc.StartupSummaries > 2 {
		rc.StartupSummaries = 2 // spec.md §4.7: K <= 2
	}
	if rc.StartupRecentTurns <= 0 {
		rc.StartupRecentTurns = 10
	}
	if rc.BacklogDisplayCap <= 0 {
		rc.BacklogDisplayCap = 50
	}
	if rc.WeightGraph <= 0 {
		rc.WeightGraph = 1.0
	}
	if rc.WeightCurated <= 0 {
		rc.WeightCurated = 0.7
	}
	if rc.WeightSummaries <= 0 {
		rc.WeightSummaries = 0.4
	}

	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
}

// ConversationsDBPath returns the entity-relative path named in spec.md §6,
// used for display/diagnostics even though storage itself is Postgres.
func (c Config) ConversationsDBPath() string {
	return filepath.Join(c.EntityPath, "data", c.Relational.ConversationsDBName)
}

// SchemaName derives the Postgres schema that backs this entity's
// conversations.db identity (lowercased, each non-alnum rune replaced by an
// underscore).
func (c Config) SchemaName() string {
	name := strings.ToLower(strings.TrimSpace(c.EntityName))
	var b strings.Builder
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	schema := "entity_" + b.String()
	return schema
}

// TokenPath returns the path to the entity's shared-secret token file.
func (c Config) TokenPath() string {
	return filepath.Join(c.EntityPath, ".entity_token")
}

// PrintSummary prints a human-readable summary of the loaded config via
// pterm, matching manifold's operator-facing startup messaging.
func (c Config) PrintSummary() {
	pterm.Success.Printfln("Loaded configuration for entity %q", c.EntityName)
	pterm.Info.Printfln("listen: %s:%d", c.Host, c.Port)
	pterm.Info.Printfln("relational: schema=%s conversations_db=%s", c.SchemaName(), c.ConversationsDBPath())
	if c.Graph.URI == "" {
		pterm.Warning.Println("graph.uri not set; graph client will fail to connect")
	}
	if c.Vector.DSN == "" {
		pterm.Warning.Println("vector.dsn not set; vector client will fail to connect")
	}
}

// ParseDuration converts a plain count of seconds (e.g. "30") into a
// time.Duration. cmd/paced-ingestion does not use it: its -pause flag takes a
// Go duration string such as "30s".
func ParseDuration(seconds string) (time.Duration, error) {
	n, err := strconv.Atoi(seconds)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", seconds, err)
	}
	return time.Duration(n) * time.Second, nil
}
