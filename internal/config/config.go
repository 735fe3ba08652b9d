// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package config loads refine's configuration and initialises logging.
//
// Precedence, highest first: REFINE_* environment variables (plus the
// conventional vendor key variables such as ANTHROPIC_API_KEY), the YAML
// config file, files under .secrets/, then built-in defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/pdiddy/reference-refine/pkg/types"
)

// ErrCredentialMissing is returned when a configured provider has no key.
var ErrCredentialMissing = errors.New("credential missing")

// EnvPrefix prefixes every environment override, e.g. REFINE_BATCH_SIZE.
const EnvPrefix = "REFINE"

// secretKeys maps .secrets/ file names to config keys.
var secretKeys = map[string]string{
	"anthropic-api-key":        "llm.anthropic_api_key",
	"gemini-api-key":           "llm.gemini_api_key",
	"google-cse-api-key":       "search.google_cse_api_key",
	"google-cse-id":            "search.google_cse_id",
	"jina-api-key":             "search.jina_api_key",
	"semantic-scholar-api-key": "search.semantic_scholar_api_key",
	"openalex-email":           "search.openalex_email",
}

// vendorEnv lists the conventional environment variables honoured for keys.
var vendorEnv = map[string]string{
	"llm.anthropic_api_key":           "ANTHROPIC_API_KEY",
	"llm.gemini_api_key":              "GEMINI_API_KEY",
	"search.google_cse_api_key":       "GOOGLE_CSE_API_KEY",
	"search.google_cse_id":            "GOOGLE_CSE_ID",
	"search.jina_api_key":             "JINA_API_KEY",
	"search.semantic_scholar_api_key": "SEMANTIC_SCHOLAR_API_KEY",
}

// Load reads configuration. cfgFile overrides the search for refine.yaml in
// the current directory and ~/.config/refine/. secrets holds values loaded
// from .secrets/ keyed by file name; they sit below file and environment.
func Load(cfgFile string, secrets map[string]string) (*types.Config, error) {
	v := viper.New()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("refine")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "refine"))
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	for name, key := range secretKeys {
		if val, ok := secrets[name]; ok {
			v.SetDefault(key, val)
		}
	}
	for key, env := range vendorEnv {
		if err := v.BindEnv(key, EnvPrefix+"_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env); err != nil {
			return nil, eris.Wrap(err, "config: bind env")
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg types.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}
	if cfg.Files.AuditLog == "" {
		cfg.Files.AuditLog = filepath.Join(filepath.Dir(cfg.Files.Working), "overrides.ndjson")
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("files.working", "references.txt")
	v.SetDefault("files.final", "final.txt")
	v.SetDefault("files.audit_log", "")

	v.SetDefault("llm.provider", "anthropic")
	v.SetDefault("llm.model", "")
	v.SetDefault("llm.anthropic_api_key", "")
	v.SetDefault("llm.gemini_api_key", "")
	v.SetDefault("llm.max_tokens", 1024)
	v.SetDefault("llm.temperature", 0.2)
	v.SetDefault("llm.timeout", 18*time.Second)
	v.SetDefault("llm.max_attempts", 3)

	v.SetDefault("queries.max", 6)
	v.SetDefault("queries.max_stored", 12)
	v.SetDefault("queries.heuristic_fallback", true)

	v.SetDefault("search.backends", []string{"cse"})
	v.SetDefault("search.timeout", 18*time.Second)
	v.SetDefault("search.max_attempts", 2)
	v.SetDefault("search.rate_per_second", 2.0)
	v.SetDefault("search.results_per_query", 10)
	v.SetDefault("search.user_agent", "refine/0.1")
	v.SetDefault("search.google_cse_api_key", "")
	v.SetDefault("search.google_cse_id", "")
	v.SetDefault("search.jina_api_key", "")
	v.SetDefault("search.openalex_email", "")
	v.SetDefault("search.semantic_scholar_api_key", "")

	v.SetDefault("rank.chunk_size", 10)
	v.SetDefault("rank.timeout", 18*time.Second)
	v.SetDefault("rank.use_ai", true)

	v.SetDefault("batch.output_dir", "runs")
	v.SetDefault("batch.sample_size", 25)
	v.SetDefault("batch.sample_mode", "first")
	v.SetDefault("batch.sample_seed", 1)
	v.SetDefault("batch.size", 25)
	v.SetDefault("batch.min_size", 10)
	v.SetDefault("batch.concurrency", 4)
	v.SetDefault("batch.max_failure_rate", 0.3)
	v.SetDefault("batch.max_avg_duration", time.Duration(0))
	v.SetDefault("batch.batch_failure_threshold", 0.5)
	v.SetDefault("batch.auto_select", true)
	v.SetDefault("batch.auto_finalize", false)
	v.SetDefault("batch.validate_urls", true)

	v.SetDefault("validate.timeout", 10*time.Second)
	v.SetDefault("validate.max_bytes", 100_000)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
}

// CheckCredentials reports every key the configured providers need but do
// not have. The error wraps ErrCredentialMissing.
func CheckCredentials(cfg *types.Config) error {
	var missing []string
	switch strings.ToLower(cfg.LLM.Provider) {
	case "", "anthropic":
		if cfg.LLM.AnthropicKey == "" {
			missing = append(missing, "llm.anthropic_api_key (ANTHROPIC_API_KEY)")
		}
	case "gemini":
		if cfg.LLM.GeminiKey == "" {
			missing = append(missing, "llm.gemini_api_key (GEMINI_API_KEY)")
		}
	default:
		return fmt.Errorf("unknown llm provider %q", cfg.LLM.Provider)
	}

	for _, b := range cfg.Search.Backends {
		switch strings.ToLower(strings.TrimSpace(b)) {
		case "cse", "google":
			if cfg.Search.CSEKey == "" {
				missing = append(missing, "search.google_cse_api_key (GOOGLE_CSE_API_KEY)")
			}
			if cfg.Search.CSEID == "" {
				missing = append(missing, "search.google_cse_id (GOOGLE_CSE_ID)")
			}
		case "jina":
			if cfg.Search.JinaKey == "" {
				missing = append(missing, "search.jina_api_key (JINA_API_KEY)")
			}
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrCredentialMissing, strings.Join(missing, ", "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg types.LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)
	return nil
}
