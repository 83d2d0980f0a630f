// Package config loads crow's settings from .crow/config.yaml with
// environment overrides. Secrets are only read from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// Config holds all crow configuration.
type Config struct {
	Log       LogConfig       `yaml:"log"`
	LLM       LLMConfig       `yaml:"llm"`
	Warehouse WarehouseConfig `yaml:"warehouse"`
	Server    ServerConfig    `yaml:"server"`
	Bot       BotConfig       `yaml:"bot"`
}

// LogConfig controls logger construction. An empty level lets each
// command pick its own default.
type LogConfig struct {
	Level  string `yaml:"level" env:"CROW_LOG_LEVEL" env-default:""`
	Format string `yaml:"format" env:"CROW_LOG_FORMAT" env-default:"console"`
}

// LLMConfig selects the language model used by the answer service.
type LLMConfig struct {
	Provider    string  `yaml:"provider" env:"CROW_LLM_PROVIDER" env-default:"openai"`
	Model       string  `yaml:"model" env:"CROW_LLM_MODEL" env-default:""`
	BaseURL     string  `yaml:"base_url" env:"CROW_LLM_BASE_URL" env-default:""`
	Temperature float64 `yaml:"temperature" env:"CROW_LLM_TEMPERATURE" env-default:"0"`
	MaxTokens   int     `yaml:"max_tokens" env:"CROW_LLM_MAX_TOKENS" env-default:"2048"`
	APIKey      string  `yaml:"-" env:"CROW_LLM_API_KEY"` // Secret - not in YAML
}

// Configured reports whether enough is set to build a client.
func (c *LLMConfig) Configured() bool {
	return c.APIKey != "" || c.BaseURL != ""
}

// WarehouseConfig points at the dataset questions are answered against.
// An empty DSN with the duckdb driver selects the local data.db. The
// bigquery driver takes a bigquery://<billing-project>/<[project.]dataset> DSN.
type WarehouseConfig struct {
	Driver   string        `yaml:"driver" env:"CROW_WAREHOUSE_DRIVER" env-default:"duckdb"`
	DSN      string        `yaml:"dsn" env:"CROW_WAREHOUSE_DSN" env-default:""`
	Dialect  string        `yaml:"dialect" env:"CROW_WAREHOUSE_DIALECT" env-default:""`
	RowLimit int           `yaml:"row_limit" env:"CROW_WAREHOUSE_ROW_LIMIT" env-default:"100"`
	Timeout  time.Duration `yaml:"timeout" env:"CROW_WAREHOUSE_TIMEOUT" env-default:"30s"`
}

// SQLDialect returns the dialect named in prompts.
func (c *WarehouseConfig) SQLDialect() string {
	if c.Dialect != "" {
		return c.Dialect
	}
	switch c.Driver {
	case "pgx", "postgres":
		return "PostgreSQL"
	case "sqlserver":
		return "T-SQL"
	case "bigquery":
		return "BigQuery GoogleSQL"
	default:
		return "DuckDB"
	}
}

// ServerConfig configures `crow serve`.
type ServerConfig struct {
	BindAddr  string `yaml:"bind_addr" env:"CROW_BIND_ADDR" env-default:"127.0.0.1"`
	Port      string `yaml:"port" env:"PORT" env-default:"8000"`
	Name      string `yaml:"name" env:"CROW_BOT_NAME" env-default:"DrugCrow"`
	AuthToken string `yaml:"-" env:"AUTH_TOKEN"` // Secret - not in YAML
}

// Addr returns host:port.
func (c *ServerConfig) Addr() string {
	return c.BindAddr + ":" + c.Port
}

// BotConfig configures `crow bot`.
type BotConfig struct {
	AnswerURL      string        `yaml:"answer_url" env:"DRUGCROW_URL" env-default:"http://127.0.0.1:8000"`
	Command        string        `yaml:"command" env:"CROW_BOT_COMMAND" env-default:"drugs"`
	GuildID        string        `yaml:"guild_id" env:"DISCORD_GUILD_ID" env-default:""`
	FallbackImage  string        `yaml:"fallback_image" env:"CROW_BOT_FALLBACK_IMAGE" env-default:""`
	RequestTimeout time.Duration `yaml:"request_timeout" env:"CROW_BOT_REQUEST_TIMEOUT" env-default:"2m"`
	Token          string        `yaml:"-" env:"DISCORD_TOKEN"` // Secret - not in YAML
	AuthToken      string        `yaml:"-" env:"AUTH_TOKEN"`    // Secret - not in YAML
}

// Load reads path (if it exists) with environment overrides. A .env file
// in the working directory is loaded into the environment first; values
// already set in the environment win over it.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{}
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := cleanenv.ReadConfig(path, cfg); err != nil {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
			return cfg, cfg.validate()
		}
	}
	if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}
	return cfg, cfg.validate()
}

func (c *Config) validate() error {
	switch strings.ToLower(c.Warehouse.Driver) {
	case "duckdb", "pgx", "postgres", "sqlserver", "bigquery":
	default:
		return fmt.Errorf("warehouse.driver %q is not one of duckdb, pgx, sqlserver, bigquery", c.Warehouse.Driver)
	}
	if c.Warehouse.RowLimit <= 0 {
		return fmt.Errorf("warehouse.row_limit must be positive, got %d", c.Warehouse.RowLimit)
	}
	return nil
}

// Template is written by `crow init` as .crow/config.yaml.
const Template = `# crow configuration. Environment variables override these values.
# Secrets come from the environment only:
#   CROW_LLM_API_KEY, AUTH_TOKEN, DISCORD_TOKEN

log:
  format: console

llm:
  provider: openai   # openai, anthropic or gemini
  model: ""
  base_url: ""
  temperature: 0
  max_tokens: 2048

warehouse:
  driver: duckdb     # duckdb, pgx, sqlserver or bigquery
  dsn: ""            # empty uses .crow/data.db; bigquery://billing-project/bigquery-public-data.ebi_chembl
  row_limit: 100
  timeout: 30s

server:
  bind_addr: 127.0.0.1
  port: "8000"
  name: DrugCrow

bot:
  answer_url: http://127.0.0.1:8000
  command: drugs
  guild_id: ""
  fallback_image: ""
  request_timeout: 2m
`
