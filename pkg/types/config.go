// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// Config is the full application configuration, loaded by viper from
// refine.yaml, REFINE_* environment variables, and .secrets/.
type Config struct {
	Files    FilesConfig    `json:"files" yaml:"files" mapstructure:"files"`
	LLM      LLMConfig      `json:"llm" yaml:"llm" mapstructure:"llm"`
	Queries  QueryConfig    `json:"queries" yaml:"queries" mapstructure:"queries"`
	Search   SearchConfig   `json:"search" yaml:"search" mapstructure:"search"`
	Rank     RankConfig     `json:"rank" yaml:"rank" mapstructure:"rank"`
	Batch    BatchConfig    `json:"batch" yaml:"batch" mapstructure:"batch"`
	Validate ValidateConfig `json:"validate" yaml:"validate" mapstructure:"validate"`
	Log      LogConfig      `json:"log" yaml:"log" mapstructure:"log"`
}

// FilesConfig locates the two persisted artifacts.
type FilesConfig struct {
	// Working is the working artifact holding every reference.
	Working string `json:"working" yaml:"working" mapstructure:"working"`

	// Final is the finalized artifact holding clean finalized blocks.
	Final string `json:"final" yaml:"final" mapstructure:"final"`

	// AuditLog is the NDJSON override log. Empty places it beside Working.
	AuditLog string `json:"audit_log" yaml:"audit_log" mapstructure:"audit_log"`
}

// LLMConfig selects and tunes the text-generation provider used for query
// generation and ranking.
type LLMConfig struct {
	// Provider is "anthropic" or "gemini".
	Provider string `json:"provider" yaml:"provider" mapstructure:"provider"`

	// Model is the provider model identifier (e.g. "claude-sonnet-4-5-20250929").
	Model string `json:"model" yaml:"model" mapstructure:"model"`

	AnthropicKey string `json:"-" yaml:"-" mapstructure:"anthropic_api_key"`
	GeminiKey    string `json:"-" yaml:"-" mapstructure:"gemini_api_key"`

	MaxTokens   int64         `json:"max_tokens" yaml:"max_tokens" mapstructure:"max_tokens"`
	Temperature float64       `json:"temperature" yaml:"temperature" mapstructure:"temperature"`
	Timeout     time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`

	// MaxAttempts bounds calls per request, including the first (default 3).
	MaxAttempts int `json:"max_attempts" yaml:"max_attempts" mapstructure:"max_attempts"`
}

// QueryConfig controls query generation.
type QueryConfig struct {
	// Max is K, the number of queries requested per generation (default 6).
	Max int `json:"max" yaml:"max" mapstructure:"max"`

	// MaxStored caps the total queries kept on a reference (default 12).
	MaxStored int `json:"max_stored" yaml:"max_stored" mapstructure:"max_stored"`

	// HeuristicFallback plans queries from the header fields when the
	// generator is unavailable and the reference has none.
	HeuristicFallback bool `json:"heuristic_fallback" yaml:"heuristic_fallback" mapstructure:"heuristic_fallback"`
}

// SearchConfig controls candidate retrieval.
type SearchConfig struct {
	// Backends lists enabled backends in fan-out order: cse, jina, openalex, semantic_scholar.
	Backends []string `json:"backends" yaml:"backends" mapstructure:"backends"`

	// Timeout bounds each search call (default 18s).
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`

	// MaxAttempts bounds calls per query, including the first (default 2).
	MaxAttempts int `json:"max_attempts" yaml:"max_attempts" mapstructure:"max_attempts"`

	// RatePerSecond limits search calls across all references (default 2).
	RatePerSecond float64 `json:"rate_per_second" yaml:"rate_per_second" mapstructure:"rate_per_second"`

	// ResultsPerQuery is the number of hits requested per backend call (default 10).
	ResultsPerQuery int `json:"results_per_query" yaml:"results_per_query" mapstructure:"results_per_query"`

	UserAgent string `json:"user_agent" yaml:"user_agent" mapstructure:"user_agent"`

	CSEKey             string `json:"-" yaml:"-" mapstructure:"google_cse_api_key"`
	CSEID              string `json:"cse_id" yaml:"cse_id" mapstructure:"google_cse_id"`
	JinaKey            string `json:"-" yaml:"-" mapstructure:"jina_api_key"`
	OpenAlexEmail      string `json:"openalex_email" yaml:"openalex_email" mapstructure:"openalex_email"`
	SemanticScholarKey string `json:"-" yaml:"-" mapstructure:"semantic_scholar_api_key"`
}

// RankConfig controls candidate ranking.
type RankConfig struct {
	// ChunkSize is the number of candidates per ranking call (default and cap 10).
	ChunkSize int `json:"chunk_size" yaml:"chunk_size" mapstructure:"chunk_size"`

	// Timeout bounds each ranking call (default 18s).
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`

	// UseAI enables the AI ranking path; when false every chunk uses lexical scoring.
	UseAI bool `json:"use_ai" yaml:"use_ai" mapstructure:"use_ai"`
}

// BatchConfig controls the phased batch orchestrator.
type BatchConfig struct {
	// OutputDir is the parent of each session's timestamped output directory.
	OutputDir string `json:"output_dir" yaml:"output_dir" mapstructure:"output_dir"`

	// SampleSize is the number of references in the Sample phase (default 25).
	SampleSize int `json:"sample_size" yaml:"sample_size" mapstructure:"sample_size"`

	// SampleMode is "first" or "random".
	SampleMode string `json:"sample_mode" yaml:"sample_mode" mapstructure:"sample_mode"`
	SampleSeed uint64 `json:"sample_seed" yaml:"sample_seed" mapstructure:"sample_seed"`

	// Size is the initial batch size for the Run phase (default 25).
	Size int `json:"size" yaml:"size" mapstructure:"size"`

	// MinSize is the floor for adaptive batch reduction (default 10).
	MinSize int `json:"min_size" yaml:"min_size" mapstructure:"min_size"`

	// Concurrency bounds in-flight reference pipelines (default 4).
	Concurrency int `json:"concurrency" yaml:"concurrency" mapstructure:"concurrency"`

	// MaxFailureRate is the sample failure rate above which Decide reduces
	// the batch size or stops (default 0.3).
	MaxFailureRate float64 `json:"max_failure_rate" yaml:"max_failure_rate" mapstructure:"max_failure_rate"`

	// MaxAvgDuration is the mean per-reference duration above which Decide
	// treats the sample as failing. Zero disables the check.
	MaxAvgDuration time.Duration `json:"max_avg_duration" yaml:"max_avg_duration" mapstructure:"max_avg_duration"`

	// BatchFailureThreshold is the failed fraction of a Run batch that
	// triggers its one retry (default 0.5).
	BatchFailureThreshold float64 `json:"batch_failure_threshold" yaml:"batch_failure_threshold" mapstructure:"batch_failure_threshold"`

	// AutoSelect fills empty primary and secondary URLs from the ranking.
	AutoSelect bool `json:"auto_select" yaml:"auto_select" mapstructure:"auto_select"`

	// AutoFinalize finalizes references that end the pipeline with an
	// accessible primary URL.
	AutoFinalize bool `json:"auto_finalize" yaml:"auto_finalize" mapstructure:"auto_finalize"`

	// ValidateURLs fetches auto-selected URLs before they are kept or
	// finalized (default true).
	ValidateURLs bool `json:"validate_urls" yaml:"validate_urls" mapstructure:"validate_urls"`
}

// ValidateConfig controls deep URL validation.
type ValidateConfig struct {
	Timeout  time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`
	MaxBytes int64         `json:"max_bytes" yaml:"max_bytes" mapstructure:"max_bytes"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	// Level is a zap level name: debug, info, warn, error.
	Level string `json:"level" yaml:"level" mapstructure:"level"`

	// Format is "json" or "console".
	Format string `json:"format" yaml:"format" mapstructure:"format"`
}
