package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const envPrefix = "IKOMA"

// Limits holds the loop-bounding knobs for a single run.
type Limits struct {
	MaxIterations   int           `mapstructure:"max_iter"`
	TimeLimit       time.Duration `mapstructure:"time_limit"`
	CheckpointEvery int           `mapstructure:"checkpoint_every"`
	MaxPlanRetries  int           `mapstructure:"max_plan_retries"`
}

// Settings is the process-wide configuration resolved from defaults, the
// optional ~/.ikoma.yaml file, and IKOMA_* environment variables.
type Settings struct {
	Limits Limits

	CheckpointerEnabled bool
	ConversationDBPath  string
	VectorStorePath     string

	SandboxDir   string
	CacheDir     string
	AllowFile    string
	DenyFile     string
	DomainPolicy string

	LLMProvider    string
	LLMModel       string
	EmbeddingModel string
	LLMAPIKey      string
	LLMBaseURL     string

	Verbose bool
}

// Load resolves configuration. A missing config file is not an error.
func Load() (*Settings, error) {
	// .env first so viper's AutomaticEnv sees its values.
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	v.SetConfigName(".ikoma")
	v.SetConfigType("yaml")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(home)
	}
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	s := &Settings{
		Limits: Limits{
			MaxIterations:   v.GetInt("max_iter"),
			TimeLimit:       time.Duration(v.GetInt("max_mins")) * time.Minute,
			CheckpointEvery: v.GetInt("checkpoint_every"),
			MaxPlanRetries:  v.GetInt("max_plan_retries"),
		},
		CheckpointerEnabled: checkpointerEnabled(v),
		ConversationDBPath:  v.GetString("conversation_db_path"),
		VectorStorePath:     v.GetString("vector_store_path"),
		SandboxDir:          v.GetString("sandbox_dir"),
		CacheDir:            v.GetString("cache_dir"),
		AllowFile:           v.GetString("allow_file"),
		DenyFile:            v.GetString("deny_file"),
		DomainPolicy:        v.GetString("domain_policy"),
		LLMProvider:         v.GetString("llm_provider"),
		LLMModel:            v.GetString("llm_model"),
		EmbeddingModel:      v.GetString("embedding_model"),
		LLMAPIKey:           v.GetString("llm_api_key"),
		LLMBaseURL:          v.GetString("llm_base_url"),
		Verbose:             v.GetBool("verbose"),
	}

	if err := s.validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func setDefaults(v *viper.Viper) {
	dataDir := DefaultDataDir
	if home, err := os.UserHomeDir(); err == nil {
		dataDir = filepath.Join(home, DefaultDataDir)
	}

	v.SetDefault("max_iter", DefaultMaxIterations)
	v.SetDefault("max_mins", int(DefaultTimeLimit/time.Minute))
	v.SetDefault("checkpoint_every", DefaultCheckpointEvery)
	v.SetDefault("max_plan_retries", DefaultMaxPlanRetries)

	v.SetDefault("conversation_db_path", filepath.Join(dataDir, DefaultConversationDB))
	v.SetDefault("vector_store_path", filepath.Join(dataDir, DefaultVectorStoreDB))
	v.SetDefault("sandbox_dir", filepath.Join(dataDir, "sandbox"))
	v.SetDefault("cache_dir", filepath.Join(dataDir, "http_cache"))
	v.SetDefault("allow_file", filepath.Join(dataDir, "allowed_domains.txt"))
	v.SetDefault("deny_file", filepath.Join(dataDir, "denied_domains.txt"))
	v.SetDefault("domain_policy", DefaultDomainPolicy)

	v.SetDefault("llm_provider", "ollama")
	v.SetDefault("llm_model", "qwen2.5:7b")

	// These are read without the IKOMA_ prefix for compatibility with older
	// deployments and with provider SDK conventions.
	_ = v.BindEnv("conversation_db_path", "CONVERSATION_DB_PATH")
	_ = v.BindEnv("vector_store_path", "VECTOR_STORE_PATH")
	_ = v.BindEnv("llm_api_key", "IKOMA_LLM_API_KEY", "OPENAI_API_KEY", "ANTHROPIC_API_KEY", "GOOGLE_API_KEY")
}

// checkpointerEnabled resolves CHECKPOINTER_ENABLED, honoring the legacy
// IKOMA_DISABLE_CHECKPOINTER variable with a deprecation warning.
func checkpointerEnabled(v *viper.Viper) bool {
	if legacy, ok := os.LookupEnv("IKOMA_DISABLE_CHECKPOINTER"); ok {
		fmt.Fprintln(os.Stderr, "warning: IKOMA_DISABLE_CHECKPOINTER is deprecated; use CHECKPOINTER_ENABLED=false")
		return !isTruthy(legacy)
	}
	if val, ok := os.LookupEnv("CHECKPOINTER_ENABLED"); ok {
		return isTruthy(val)
	}
	return true
}

func isTruthy(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

func (s *Settings) validate() error {
	if s.Limits.MaxIterations < 1 {
		return fmt.Errorf("max_iter must be >= 1, got %d", s.Limits.MaxIterations)
	}
	if s.Limits.TimeLimit < 0 {
		return fmt.Errorf("max_mins must be >= 0")
	}
	if s.Limits.MaxPlanRetries < 0 {
		return fmt.Errorf("max_plan_retries must be >= 0")
	}
	if s.DomainPolicy != "allow" && s.DomainPolicy != "deny" {
		return fmt.Errorf("domain_policy must be \"allow\" or \"deny\", got %q", s.DomainPolicy)
	}
	return nil
}
