// Package config loads the embedding caller's YAML configuration: the agent
// under test, submission defaults, and collaborator endpoints. Values are
// normalized with defaults before validation so a minimal file works out of
// the box.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/mkritz/bulkeval/internal/domain"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Agent describes the conversational agent a batch runs against.
type Agent struct {
	// Code is the agent definition submitted to the evaluation service.
	Code string `yaml:"code" validate:"required"`

	// Name labels the agent in exports and logs.
	Name string `yaml:"name" validate:"required"`

	// Description optionally describes the agent for the evaluator.
	Description string `yaml:"description"`
}

// Config is the embedding caller's engine configuration.
type Config struct {
	// Agent is the agent under test.
	Agent Agent `yaml:"agent" validate:"required"`

	// Context optionally supplies shared context for every question.
	Context string `yaml:"context"`

	// BatchSize hints the remote evaluator's internal parallelism.
	BatchSize int `yaml:"batch_size" validate:"min=1,max=100"`

	// PerQuestionBudgetSecs bounds the awaited submission per question; the
	// overall deadline is the question count times this budget.
	PerQuestionBudgetSecs int `yaml:"per_question_budget_seconds" validate:"min=1"`

	// ServiceURL is the evaluation service base URL.
	ServiceURL string `yaml:"service_url" validate:"required,url"`

	// SocketURL is the push event channel WebSocket URL.
	SocketURL string `yaml:"socket_url" validate:"required"`
}

// PerQuestionBudget returns the per-question time budget as a duration.
func (c *Config) PerQuestionBudget() time.Duration {
	return time.Duration(c.PerQuestionBudgetSecs) * time.Second
}

// BatchConfig builds the submission config for one run. The correlation id
// is left empty; the session manager mints a fresh one per run.
func (c *Config) BatchConfig() domain.BatchConfig {
	return domain.BatchConfig{
		AgentCode:        c.Agent.Code,
		AgentName:        c.Agent.Name,
		AgentDescription: c.Agent.Description,
		Context:          c.Context,
		BatchSize:        c.BatchSize,
	}
}

// Load reads, parses, normalizes, and validates a config file.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML bytes into a validated Config.
func Parse(data []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	normalize(&cfg)
	if err := validate.Struct(&cfg); err != nil {
		return Config{}, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// normalize fills defaults for optional fields.
func normalize(cfg *Config) {
	if cfg.BatchSize == 0 {
		cfg.BatchSize = domain.DefaultBatchSize
	}
	if cfg.PerQuestionBudgetSecs == 0 {
		cfg.PerQuestionBudgetSecs = int(domain.DefaultPerQuestionBudget / time.Second)
	}
}
