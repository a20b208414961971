package config

import (
	"time"

	"github.com/draftforge/propeller/internal/app/orchestration"
	"github.com/draftforge/propeller/internal/domain/pipeline"
)

// Config represents the top-level orchestrator configuration.
type Config struct {
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	Postgres     PostgresConfig     `yaml:"postgres"`
	Kafka        KafkaConfig        `yaml:"kafka"`
	Workers      WorkersConfig      `yaml:"workers"`
}

// OrchestratorConfig tunes the pipeline update loop.
type OrchestratorConfig struct {
	// MinProgressDelta suppresses document progress updates smaller than
	// this many points.
	MinProgressDelta int `yaml:"min_progress_delta"`

	// SettleDelay is the pause before triggering the next stage's worker.
	SettleDelay time.Duration `yaml:"settle_delay"`

	// StartTimeout bounds the wait for a stage start confirmation.
	StartTimeout time.Duration `yaml:"start_timeout"`

	// PersistTimeout bounds each state write.
	PersistTimeout time.Duration `yaml:"persist_timeout"`

	// ActivityCapacity bounds the diagnostic activity trail.
	ActivityCapacity int `yaml:"activity_capacity"`

	Poller    orchestration.PollerConfig `yaml:"poller"`
	Questions QuestionsConfig            `yaml:"questions"`
}

// QuestionsConfig tunes the question-generation stage.
type QuestionsConfig struct {
	MaxQuestions int    `yaml:"max_questions,omitempty"`
	Locale       string `yaml:"locale,omitempty"`
}

// PostgresConfig holds database connection settings.
type PostgresConfig struct {
	// DSN is the PostgreSQL connection string.
	DSN string `yaml:"dsn"`

	// MigrationsPath points at the directory of migration files. Empty
	// skips migrations at startup.
	MigrationsPath string `yaml:"migrations_path,omitempty"`
}

// KafkaConfig holds event bus connection settings.
type KafkaConfig struct {
	Brokers                []string `yaml:"brokers"`
	DocumentProgressTopic  string   `yaml:"document_progress_topic"`
	PipelineLifecycleTopic string   `yaml:"pipeline_lifecycle_topic"`
	GroupID                string   `yaml:"group_id"`
	ClientID               string   `yaml:"client_id"`
}

// WorkerConfig holds the connection settings for one worker service.
type WorkerConfig struct {
	BaseURL              string        `yaml:"base_url"`
	RequestsPerSecond    float64       `yaml:"requests_per_second,omitempty"`
	Burst                int           `yaml:"burst,omitempty"`
	ConnectRetries       uint64        `yaml:"connect_retries,omitempty"`
	ConnectRetryInterval time.Duration `yaml:"connect_retry_interval,omitempty"`
}

// WorkersConfig holds the endpoints of the external stage workers.
type WorkersConfig struct {
	DocumentAnalyzer  WorkerConfig `yaml:"document_analyzer"`
	QuestionGenerator WorkerConfig `yaml:"question_generator"`
}

// ToOrchestration converts the file-level settings into the update loop's
// config, filling unset values from the defaults.
func (c OrchestratorConfig) ToOrchestration() orchestration.Config {
	cfg := orchestration.DefaultConfig()
	if c.MinProgressDelta > 0 {
		cfg.MinProgressDelta = c.MinProgressDelta
	}
	if c.SettleDelay > 0 {
		cfg.SettleDelay = c.SettleDelay
	}
	if c.StartTimeout > 0 {
		cfg.StartTimeout = c.StartTimeout
	}
	if c.PersistTimeout > 0 {
		cfg.PersistTimeout = c.PersistTimeout
	}
	if c.ActivityCapacity > 0 {
		cfg.ActivityCapacity = c.ActivityCapacity
	}
	if c.Poller != (orchestration.PollerConfig{}) {
		cfg.Poller = c.Poller
	}
	cfg.QuestionOptions = pipeline.QuestionGenerationOptions{
		MaxQuestions: c.Questions.MaxQuestions,
		Locale:       c.Questions.Locale,
	}
	return cfg
}
