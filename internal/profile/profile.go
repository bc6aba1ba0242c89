package profile

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Profile is configuration to start main server.
type Profile struct {
	// Embedding configuration (OpenAI-compatible protocol)
	EmbeddingProvider   string // Provider identifier: openai, siliconflow, ollama, dashscope
	EmbeddingModel      string
	EmbeddingAPIKey     string
	EmbeddingBaseURL    string
	EmbeddingDimensions int

	// Matching policy configuration
	HardFilterPolicy  string // "gender", "gender+city", or "gender+age+lifestyle"
	FetchConcurrency  int    // bounded fan-out for companion vector fetches
	MaxCandidates     int    // retrieval pool cap
	TopKMultiplier    int    // retrieval pool size = topK * multiplier
	IndexerRatePerSec int    // embed/upsert calls per second for the outbox worker

	// WebhookSecret signs identity webhook tokens. Webhook ingestion is
	// disabled when empty.
	WebhookSecret string

	// Other configurations
	UNIXSock    string
	Mode        string
	DSN         string
	Driver      string
	Version     string
	InstanceURL string
	Addr        string
	Data        string
	Port        int
}

// Provider default configurations for embedding.
// Used when NESTMATE_EMBEDDING_BASE_URL is not explicitly set.
var embeddingProviderDefaults = map[string]struct {
	BaseURL string
	Model   string
}{
	"openai": {
		BaseURL: "https://api.openai.com/v1",
		Model:   "text-embedding-3-small",
	},
	"siliconflow": {
		BaseURL: "https://api.siliconflow.cn/v1",
		Model:   "BAAI/bge-m3",
	},
	"dashscope": {
		BaseURL: "https://dashscope.aliyuncs.com/compatible-mode/v1",
		Model:   "text-embedding-v3",
	},
	"ollama": {
		BaseURL: "http://localhost:11434/v1",
		Model:   "nomic-embed-text",
	},
}

// Hard filter policies understood by the matching engine.
// The scorer keeps all three revisions selectable; "gender+city" is the default.
var knownHardFilterPolicies = map[string]bool{
	"gender":               true,
	"gender+city":          true,
	"gender+age+lifestyle": true,
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// getEnvOrDefault returns environment variable value or default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvOrDefaultInt returns environment variable value as int or default value.
func getEnvOrDefaultInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// FromEnv loads configuration from environment variables.
func (p *Profile) FromEnv() {
	// Embedding configuration
	p.EmbeddingProvider = getEnvOrDefault("NESTMATE_EMBEDDING_PROVIDER", "openai")
	p.EmbeddingModel = getEnvOrDefault("NESTMATE_EMBEDDING_MODEL", "")
	p.EmbeddingAPIKey = getEnvOrDefault("NESTMATE_EMBEDDING_API_KEY", "")
	p.EmbeddingBaseURL = getEnvOrDefault("NESTMATE_EMBEDDING_BASE_URL", "")
	p.EmbeddingDimensions = getEnvOrDefaultInt("NESTMATE_EMBEDDING_DIMENSIONS", 768)

	if _, ok := embeddingProviderDefaults[p.EmbeddingProvider]; !ok {
		slog.Warn("unknown embedding provider, using default: openai", "provider", p.EmbeddingProvider)
		p.EmbeddingProvider = "openai"
	}
	if defaults, ok := embeddingProviderDefaults[p.EmbeddingProvider]; ok {
		if p.EmbeddingBaseURL == "" {
			p.EmbeddingBaseURL = defaults.BaseURL
		}
		if p.EmbeddingModel == "" {
			p.EmbeddingModel = defaults.Model
		}
	}

	// Matching policy configuration
	p.HardFilterPolicy = getEnvOrDefault("NESTMATE_HARD_FILTER_POLICY", "gender+city")
	if !knownHardFilterPolicies[p.HardFilterPolicy] {
		slog.Warn("unknown hard filter policy, using default: gender+city", "policy", p.HardFilterPolicy)
		p.HardFilterPolicy = "gender+city"
	}
	p.FetchConcurrency = getEnvOrDefaultInt("NESTMATE_FETCH_CONCURRENCY", 8)
	p.MaxCandidates = getEnvOrDefaultInt("NESTMATE_MAX_CANDIDATES", 150)
	p.TopKMultiplier = getEnvOrDefaultInt("NESTMATE_TOPK_MULTIPLIER", 10)
	p.IndexerRatePerSec = getEnvOrDefaultInt("NESTMATE_INDEXER_RATE_PER_SEC", 5)

	p.WebhookSecret = getEnvOrDefault("NESTMATE_WEBHOOK_SECRET", "")
}

func checkDataDir(dataDir string) (string, error) {
	// Convert to absolute path if relative path is supplied.
	if !filepath.IsAbs(dataDir) {
		relativeDir := filepath.Join(filepath.Dir(os.Args[0]), dataDir)
		absDir, err := filepath.Abs(relativeDir)
		if err != nil {
			return "", err
		}
		dataDir = absDir
	}

	// Trim trailing \ or / in case user supplies
	dataDir = strings.TrimRight(dataDir, "\\/")
	if _, err := os.Stat(dataDir); err != nil {
		return "", errors.Wrapf(err, "unable to access data folder %s", dataDir)
	}
	return dataDir, nil
}

func (p *Profile) Validate() error {
	if p.Mode != "demo" && p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "demo"
	}

	if p.Mode == "prod" && p.Data == "" {
		if runtime.GOOS == "windows" {
			p.Data = filepath.Join(os.Getenv("ProgramData"), "nestmate")
		} else {
			p.Data = "/var/opt/nestmate"
		}
		if _, err := os.Stat(p.Data); os.IsNotExist(err) {
			if err := os.MkdirAll(p.Data, 0o770); err != nil {
				return errors.Wrapf(err, "unable to create data folder %s", p.Data)
			}
		}
	}
	if p.Data == "" {
		p.Data = "."
	}

	dataDir, err := checkDataDir(p.Data)
	if err != nil {
		return err
	}
	p.Data = dataDir

	if p.Driver != "postgres" && p.Driver != "sqlite" {
		return errors.Errorf("unsupported database driver %q", p.Driver)
	}
	if p.Driver == "postgres" && p.DSN == "" {
		return errors.New("dsn is required for postgres driver")
	}
	if p.Driver == "sqlite" && p.DSN == "" {
		p.DSN = filepath.Join(p.Data, "nestmate.db")
	}

	if p.Port < 0 || p.Port > 65535 {
		return fmt.Errorf("invalid port %d", p.Port)
	}

	if p.FetchConcurrency <= 0 {
		p.FetchConcurrency = 8
	}
	if p.MaxCandidates <= 0 {
		p.MaxCandidates = 150
	}
	if p.TopKMultiplier <= 0 {
		p.TopKMultiplier = 10
	}

	return nil
}
