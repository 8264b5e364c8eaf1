// Package config implements the Configuration substrate (spec §6, §8): a
// layered YAML file plus environment-variable overlay that resolves into the
// typed Config structs consumed by pkg/store, pkg/orchestrator, pkg/policy,
// pkg/sandbox, and pkg/llmprovider. Grounded on the teacher's pkg/config
// package: a YAML file is loaded, ${VAR}-expanded, unmarshaled, then merged
// over built-in defaults with dario.cat/mergo, and validated before the
// caller ever sees it.
package config

import (
	"time"

	"github.com/selfheal/pipeline/pkg/orchestrator"
	"github.com/selfheal/pipeline/pkg/policy"
	"github.com/selfheal/pipeline/pkg/sandbox"
	"github.com/selfheal/pipeline/pkg/store"
)

// DatabaseConfig mirrors store.Config plus the single DATABASE_URL form
// spec §6 names as the canonical env key.
type DatabaseConfig struct {
	URL             string        `yaml:"url" validate:"required"`
	MaxOpenConns    int           `yaml:"max_open_conns" validate:"min=1"`
	MaxIdleConns    int           `yaml:"max_idle_conns" validate:"min=0"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
}

// QueueConfig bundles the Redis connection and orchestrator concurrency
// tunables spec §6 exposes as REDIS_URL, *_BACKOFF_SECONDS, COOLDOWN_SECONDS,
// etc.
type QueueConfig struct {
	RedisURL                string  `yaml:"redis_url" validate:"required"`
	MaxPipelineAttempts     int     `yaml:"max_pipeline_attempts" validate:"min=1"`
	RepoConcurrencyLimit    int     `yaml:"repo_pipeline_concurrency_limit" validate:"min=1"`
	LeaseTTLSeconds         int     `yaml:"lease_ttl_seconds" validate:"min=1"`
	BaseBackoffSeconds      int     `yaml:"base_backoff_seconds" validate:"min=1"`
	MaxBackoffSeconds       int     `yaml:"max_backoff_seconds" validate:"min=1"`
	CooldownSeconds         int     `yaml:"cooldown_seconds" validate:"min=0"`
	MinAgreementRate        float64 `yaml:"min_agreement_rate" validate:"min=0,max=1"`
	MinConfidence           float64 `yaml:"min_confidence" validate:"min=0,max=1"`
	VetoDangerThreshold     int     `yaml:"veto_danger_threshold" validate:"min=0,max=100"`
}

// SafetyConfig locates the policy document and the sandbox's vulnerability
// gate; the document itself is loaded separately by pkg/policy.
type SafetyConfig struct {
	PolicyPath         string `yaml:"policy_path" validate:"required"`
	FailOnVulnSeverity string `yaml:"fail_on_vuln_severity" validate:"required,oneof=LOW MEDIUM HIGH CRITICAL"`
}

// SandboxConfig mirrors sandbox.Config, surfaced through SANDBOX_* env keys.
type SandboxConfig struct {
	DockerImage      string `yaml:"docker_image" validate:"required"`
	TimeoutSeconds   int    `yaml:"timeout_seconds" validate:"min=1"`
	MemoryLimitBytes int64  `yaml:"memory_limit_bytes" validate:"min=1"`
	CPULimit         float64 `yaml:"cpu_limit" validate:"min=0"`
	NetworkEnabled   bool   `yaml:"network_enabled"`
	WorkingDir       string `yaml:"working_dir" validate:"required"`
}

// LLMConfig selects and configures the pkg/llmprovider adapter, surfaced
// through LLM_* env keys.
type LLMConfig struct {
	Provider    string  `yaml:"provider" validate:"required,oneof=anthropic langchain"`
	Model       string  `yaml:"model" validate:"required"`
	APIKey      string  `yaml:"api_key" validate:"required"`
	MaxTokens   int     `yaml:"max_tokens" validate:"min=1"`
	Temperature float64 `yaml:"temperature" validate:"min=0,max=2"`
}

// VCSConfig configures the pkg/vcs GitHub client.
type VCSConfig struct {
	Token         string `yaml:"token" validate:"required"`
	WebhookSecret string `yaml:"webhook_secret"`
	BaseURL       string `yaml:"base_url"`
}

// ArtifactConfig locates the on-disk provenance artifact store (spec §4.13).
type ArtifactConfig struct {
	Dir string `yaml:"dir" validate:"required"`
}

// ServerConfig configures pkg/api's gin router.
type ServerConfig struct {
	HTTPPort   string `yaml:"http_port" validate:"required"`
	GinMode    string `yaml:"gin_mode"`
	Production bool   `yaml:"production"`
}

// Config is the root configuration umbrella, built by Initialize.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Queue    QueueConfig    `yaml:"queue"`
	Safety   SafetyConfig   `yaml:"safety"`
	Sandbox  SandboxConfig  `yaml:"sandbox"`
	LLM      LLMConfig      `yaml:"llm"`
	VCS      VCSConfig      `yaml:"vcs"`
	Artifact ArtifactConfig `yaml:"artifact"`
	Server   ServerConfig   `yaml:"server"`
}

// Defaults returns the built-in configuration merged under whatever the
// YAML file and environment supply, mirroring the numeric defaults already
// established by orchestrator.DefaultConfig, sandbox.DefaultConfig, and
// store.DefaultRepositoryConfig.
func Defaults() Config {
	orchDefaults := orchestrator.DefaultConfig()
	sbDefaults := sandbox.DefaultConfig()
	return Config{
		Database: DatabaseConfig{
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: time.Hour,
			ConnMaxIdleTime: 10 * time.Minute,
		},
		Queue: QueueConfig{
			MaxPipelineAttempts:  orchDefaults.MaxPipelineAttempts,
			RepoConcurrencyLimit: orchDefaults.RepoConcurrencyLimit,
			LeaseTTLSeconds:      int(orchDefaults.LeaseTTL.Seconds()),
			BaseBackoffSeconds:   int(orchDefaults.BaseBackoff.Seconds()),
			MaxBackoffSeconds:    int(orchDefaults.MaxBackoff.Seconds()),
			CooldownSeconds:      orchDefaults.CooldownSeconds,
			MinAgreementRate:     orchDefaults.ConsensusThresholds.MinAgreement,
			MinConfidence:        orchDefaults.ConsensusThresholds.MinConfidence,
			VetoDangerThreshold:  orchDefaults.VetoDangerThreshold,
		},
		Safety: SafetyConfig{
			PolicyPath:         "./deploy/config/safety-policy.yaml",
			FailOnVulnSeverity: orchDefaults.FailOnVulnSeverity,
		},
		Sandbox: SandboxConfig{
			DockerImage:      sbDefaults.DockerImage,
			TimeoutSeconds:   sbDefaults.TimeoutSeconds,
			MemoryLimitBytes: sbDefaults.MemoryLimitBytes,
			CPULimit:         sbDefaults.CPULimit,
			NetworkEnabled:   sbDefaults.NetworkEnabled,
			WorkingDir:       sbDefaults.WorkingDir,
		},
		LLM: LLMConfig{
			Provider:    "anthropic",
			Model:       "claude-sonnet-4-5",
			MaxTokens:   4096,
			Temperature: 0.2,
		},
		Artifact: ArtifactConfig{
			Dir: "./artifacts",
		},
		Server: ServerConfig{
			HTTPPort: "8080",
			GinMode:  "release",
		},
	}
}

// OrchestratorConfig projects Config onto orchestrator.Config, folding in
// the SafetyPolicy that pkg/policy loaded separately from Safety.PolicyPath.
func (c Config) OrchestratorConfig(safetyPolicy policy.SafetyPolicy) orchestrator.Config {
	oc := orchestrator.Config{
		MaxPipelineAttempts:  c.Queue.MaxPipelineAttempts,
		RepoConcurrencyLimit: c.Queue.RepoConcurrencyLimit,
		LeaseTTL:             time.Duration(c.Queue.LeaseTTLSeconds) * time.Second,
		BaseBackoff:          time.Duration(c.Queue.BaseBackoffSeconds) * time.Second,
		MaxBackoff:           time.Duration(c.Queue.MaxBackoffSeconds) * time.Second,
		CooldownSeconds:      c.Queue.CooldownSeconds,
		FailOnVulnSeverity:   c.Safety.FailOnVulnSeverity,
		SafetyPolicy:         safetyPolicy,
		VetoDangerThreshold:  c.Queue.VetoDangerThreshold,
	}
	oc.ConsensusThresholds.MinAgreement = c.Queue.MinAgreementRate
	oc.ConsensusThresholds.MinConfidence = c.Queue.MinConfidence
	return oc
}

// StoreConfig projects Config onto store.Config by parsing Database.URL.
func (c Config) StoreConfig() (store.Config, error) {
	return parseDatabaseURL(c.Database)
}

// SandboxRunnerConfig projects Config onto sandbox.Config.
func (c Config) SandboxRunnerConfig() sandbox.Config {
	return sandbox.Config{
		DockerImage:      c.Sandbox.DockerImage,
		TimeoutSeconds:   c.Sandbox.TimeoutSeconds,
		MemoryLimitBytes: c.Sandbox.MemoryLimitBytes,
		CPULimit:         c.Sandbox.CPULimit,
		NetworkEnabled:   c.Sandbox.NetworkEnabled,
		WorkingDir:       c.Sandbox.WorkingDir,
	}
}
