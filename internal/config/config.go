package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// EnvPrefix prefixes every environment override, e.g. KPI_ANTHROPIC_KEY.
const EnvPrefix = "KPI"

// Config holds the full application configuration. It is loaded once per
// command and passed down explicitly.
type Config struct {
	Paths     PathsConfig     `yaml:"paths" mapstructure:"paths"`
	Fetch     FetchConfig     `yaml:"fetch" mapstructure:"fetch"`
	Extract   ExtractConfig   `yaml:"extract" mapstructure:"extract"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Discovery DiscoveryConfig `yaml:"discovery" mapstructure:"discovery"`
	Batch     BatchConfig     `yaml:"batch" mapstructure:"batch"`
	Alerts    AlertsConfig    `yaml:"alerts" mapstructure:"alerts"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// PathsConfig locates the on-disk state of a run.
type PathsConfig struct {
	PDFRoot      string `yaml:"pdf_root" mapstructure:"pdf_root"`
	Ledger       string `yaml:"ledger" mapstructure:"ledger"`
	Instructions string `yaml:"instructions" mapstructure:"instructions"`
	URLList      string `yaml:"url_list" mapstructure:"url_list"`
	Entities     string `yaml:"entities" mapstructure:"entities"`
	OutputDir    string `yaml:"output_dir" mapstructure:"output_dir"`
}

// FetchConfig configures document downloads.
type FetchConfig struct {
	TimeoutSecs       int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	UserAgent         string  `yaml:"user_agent" mapstructure:"user_agent"`
	MaxRetries        int     `yaml:"max_retries" mapstructure:"max_retries"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
}

// ExtractConfig selects the page text provider.
type ExtractConfig struct {
	Provider      string `yaml:"provider" mapstructure:"provider"` // native, pdftotext or mistral
	PdfToTextPath string `yaml:"pdftotext_path" mapstructure:"pdftotext_path"`
	MistralAPIKey string `yaml:"mistral_api_key" mapstructure:"mistral_api_key"`
	MistralModel  string `yaml:"mistral_model" mapstructure:"mistral_model"`
}

// AnthropicConfig configures the KPI extraction model.
type AnthropicConfig struct {
	Key         string `yaml:"key" mapstructure:"key"`
	Model       string `yaml:"model" mapstructure:"model"`
	MaxTokens   int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
	MaxAttempts int    `yaml:"max_attempts" mapstructure:"max_attempts"`
}

// StoreConfig configures record persistence.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"` // sqlite, postgres or none
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// DiscoveryConfig configures report link discovery.
type DiscoveryConfig struct {
	NewswebEndpoints []string `yaml:"newsweb_endpoints" mapstructure:"newsweb_endpoints"`
	NewswebAPIKey    string   `yaml:"newsweb_api_key" mapstructure:"newsweb_api_key"`
	PageSize         int      `yaml:"page_size" mapstructure:"page_size"`
	Languages        []string `yaml:"languages" mapstructure:"languages"`
	ReportTypes      []string `yaml:"report_types" mapstructure:"report_types"`
}

// BatchConfig configures concurrency.
type BatchConfig struct {
	MaxConcurrentEntities int `yaml:"max_concurrent_entities" mapstructure:"max_concurrent_entities"`
}

// AlertsConfig configures the end-of-run webhook alerts. An empty webhook
// URL disables delivery.
type AlertsConfig struct {
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	CostThresholdUSD     float64 `yaml:"cost_threshold_usd" mapstructure:"cost_threshold_usd"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Validate checks the settings a command mode depends on: "base" for every
// command, "acquire", "discover" and "analyze" on top of it. All problems are
// reported together.
func (c *Config) Validate(mode string) error {
	var errs []string
	add := func(msg string) { errs = append(errs, msg) }

	if c.Paths.PDFRoot == "" {
		add("paths.pdf_root is required")
	}
	if c.Paths.Ledger == "" {
		add("paths.ledger is required")
	}
	if c.Batch.MaxConcurrentEntities < 1 || c.Batch.MaxConcurrentEntities > 32 {
		add("batch.max_concurrent_entities must be between 1 and 32")
	}

	switch mode {
	case "base":
	case "acquire":
		if c.Paths.URLList == "" {
			add("paths.url_list is required")
		}
		if c.Fetch.TimeoutSecs <= 0 {
			add("fetch.timeout_secs must be > 0")
		}
	case "discover":
		if c.Paths.Entities == "" {
			add("paths.entities is required")
		}
		if c.Paths.URLList == "" {
			add("paths.url_list is required")
		}
	case "analyze":
		if c.Paths.Instructions == "" {
			add("paths.instructions is required")
		}
		if c.Anthropic.Key == "" {
			add("anthropic.key is required")
		}
		switch c.Extract.Provider {
		case "native", "pdftotext":
		case "mistral":
			if c.Extract.MistralAPIKey == "" {
				add("extract.mistral_api_key is required for the mistral provider")
			}
		default:
			add(fmt.Sprintf("extract.provider %q is not one of native, pdftotext, mistral", c.Extract.Provider))
		}
		switch c.Store.Driver {
		case "none":
		case "sqlite", "postgres":
			if c.Store.DatabaseURL == "" {
				add("store.database_url is required")
			}
		default:
			add(fmt.Sprintf("store.driver %q is not one of sqlite, postgres, none", c.Store.Driver))
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("paths.pdf_root", "pdfs")
	v.SetDefault("paths.ledger", "processed_pdfs.csv")
	v.SetDefault("paths.instructions", "instructions.txt")
	v.SetDefault("paths.url_list", "pdf_urls.csv")
	v.SetDefault("paths.entities", "entities.yaml")
	v.SetDefault("paths.output_dir", "results")
	v.SetDefault("fetch.timeout_secs", 60)
	v.SetDefault("fetch.user_agent", "report-kpi/1.0")
	v.SetDefault("fetch.max_retries", 1)
	v.SetDefault("fetch.requests_per_second", 2.0)
	v.SetDefault("extract.provider", "native")
	v.SetDefault("extract.pdftotext_path", "pdftotext")
	v.SetDefault("extract.mistral_api_key", "")
	v.SetDefault("extract.mistral_model", "mistral-ocr-latest")
	v.SetDefault("anthropic.key", "")
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.max_tokens", 4096)
	v.SetDefault("anthropic.max_attempts", 3)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "kpi.db")
	v.SetDefault("discovery.newsweb_endpoints", []string{
		"https://gateway.euronext.com/graphql?locale=nb",
		"https://gateway.euronext.com/graphql",
		"https://gateway.euronext.com/graphql?locale=en",
	})
	v.SetDefault("discovery.newsweb_api_key", "live-streaming-private")
	v.SetDefault("discovery.page_size", 250)
	v.SetDefault("discovery.languages", []string{"no", "en"})
	v.SetDefault("discovery.report_types", []string{"quarterly", "annual", "presentation"})
	v.SetDefault("batch.max_concurrent_entities", 4)
	v.SetDefault("alerts.webhook_url", "")
	v.SetDefault("alerts.failure_rate_threshold", 0.25)
	v.SetDefault("alerts.cost_threshold_usd", 0.0)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Load reads an optional config.yaml overridden by KPI_* environment
// variables. A .env file in the working directory fills in variables that
// are not already set.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, eris.Wrap(err, "config: read .env")
	}

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
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
