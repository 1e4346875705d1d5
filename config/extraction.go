package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"

	"github.com/davibasa/Enter-Fellowship-sub001/internal/agent/labels"
	"github.com/davibasa/Enter-Fellowship-sub001/internal/agent/nlp"
	"github.com/davibasa/Enter-Fellowship-sub001/internal/service/extraction"
	"github.com/davibasa/Enter-Fellowship-sub001/pkg/resilience"
)

var (
	extractionOnce   sync.Once
	extractionConfig *ExtractionConfig
	extractionErr    error
)

// EnvPrefix prefixes every environment override, e.g. EXTRACTOR_REMOTE_BASE_URL.
const EnvPrefix = "EXTRACTOR"

type ServerConfig struct {
	HTTPAddr string `mapstructure:"http_addr"`
	GRPCAddr string `mapstructure:"grpc_addr"`
	Mode     string `mapstructure:"mode"`
}

type CacheConfig struct {
	// TTL of a cached result; zero disables the cache.
	TTL time.Duration `mapstructure:"ttl"`
}

type StorageConfig struct {
	Type string `mapstructure:"type"`
}

type WorkerConfig struct {
	Concurrency int           `mapstructure:"concurrency"`
	JobTimeout  time.Duration `mapstructure:"job_timeout"`
	MaxRetries  int           `mapstructure:"max_retries"`
}

type LogConfig struct {
	Level    string `mapstructure:"level"`
	Encoding string `mapstructure:"encoding"`
}

// ExtractionConfig is everything the server, the worker and the CLI need.
type ExtractionConfig struct {
	Server   ServerConfig      `mapstructure:"server"`
	Remote   nlp.Config        `mapstructure:"remote"`
	Pipeline extraction.Config `mapstructure:"pipeline"`
	Labels   labels.Options    `mapstructure:"labels"`
	Cache    CacheConfig       `mapstructure:"cache"`
	Storage  StorageConfig     `mapstructure:"storage"`
	Worker   WorkerConfig      `mapstructure:"worker"`
	Log      LogConfig         `mapstructure:"log"`
}

// GetExtractionConfig loads the configuration once: defaults, then
// extractor.yaml if present, then EXTRACTOR_* environment variables.
func GetExtractionConfig() (*ExtractionConfig, error) {
	extractionOnce.Do(func() {
		loadEnv()
		v := viper.New()
		v.SetConfigName("extractor")
		v.SetConfigType("yaml")
		v.AddConfigPath(RootDir())
		v.AddConfigPath("$HOME/.extractor")
		extractionConfig, extractionErr = LoadExtractionConfig(v)
	})
	return extractionConfig, extractionErr
}

// LoadExtractionConfig reads configuration through v. A missing config file
// is not an error.
func LoadExtractionConfig(v *viper.Viper) (*ExtractionConfig, error) {
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg ExtractionConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if cfg.Remote.OpenAI.APIKey == "" {
		cfg.Remote.OpenAI.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects values the pipeline cannot run with.
func (c *ExtractionConfig) Validate() error {
	if c.Remote.BaseURL == "" {
		return errors.New("remote.base_url is required")
	}
	if t := c.Pipeline.DefaultThreshold; t <= 0 || t > 1 {
		return fmt.Errorf("pipeline.default_threshold %.2f is outside (0,1]", t)
	}
	switch c.Remote.GenerativeBackend {
	case nlp.BackendRemote, nlp.BackendOpenAI:
	default:
		return fmt.Errorf("unknown generative backend %q", c.Remote.GenerativeBackend)
	}
	switch c.Storage.Type {
	case "s3", "minio", "memory", "none":
	default:
		return fmt.Errorf("unknown storage type %q", c.Storage.Type)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("server.grpc_addr", ":9090")
	v.SetDefault("server.mode", "release")

	remote := nlp.DefaultConfig()
	v.SetDefault("remote.base_url", remote.BaseURL)
	v.SetDefault("remote.generative_backend", remote.GenerativeBackend)
	setPolicyDefaults(v, "remote.classifier", remote.Classifier)
	setPolicyDefaults(v, "remote.structured", remote.Structured)
	setPolicyDefaults(v, "remote.generative", remote.Generative)
	setPolicyDefaults(v, "remote.threshold", remote.Threshold)
	setPolicyDefaults(v, "remote.embedding", remote.Embedding)
	v.SetDefault("remote.openai.api_key", "")
	v.SetDefault("remote.openai.base_url", "")
	v.SetDefault("remote.openai.model", remote.OpenAI.Model)

	pipeline := extraction.DefaultConfig()
	v.SetDefault("pipeline.default_threshold", pipeline.DefaultThreshold)
	v.SetDefault("pipeline.label_cutoff", pipeline.LabelCutoff)
	v.SetDefault("pipeline.max_lines", pipeline.MaxLines)
	v.SetDefault("pipeline.use_memory", pipeline.UseMemory)
	v.SetDefault("pipeline.use_classifier_cache", pipeline.UseClassifierCache)
	v.SetDefault("pipeline.generative_model", pipeline.GenerativeModel)
	v.SetDefault("pipeline.generative_temperature", pipeline.GenerativeTemperature)

	lbl := labels.DefaultOptions()
	v.SetDefault("labels.strip_punctuation", lbl.StripPunctuation)
	v.SetDefault("labels.enable_fuzzy", lbl.EnableFuzzy)
	v.SetDefault("labels.fuzzy_threshold", lbl.FuzzyThreshold)
	v.SetDefault("labels.enable_semantic", lbl.EnableSemantic)
	v.SetDefault("labels.semantic_threshold", lbl.SemanticThreshold)
	v.SetDefault("labels.semantic_timeout", lbl.SemanticTimeout)
	v.SetDefault("labels.min_label_length", lbl.MinLabelLength)
	v.SetDefault("labels.concurrency", lbl.Concurrency)

	v.SetDefault("cache.ttl", time.Hour)
	v.SetDefault("storage.type", "minio")
	v.SetDefault("worker.concurrency", 5)
	v.SetDefault("worker.job_timeout", 10*time.Minute)
	v.SetDefault("worker.max_retries", 3)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "json")
}

func setPolicyDefaults(v *viper.Viper, key string, p resilience.Policy) {
	v.SetDefault(key+".timeout", p.Timeout)
	v.SetDefault(key+".retries", p.MaxRetries)
	v.SetDefault(key+".base_delay", p.BaseDelay)
	v.SetDefault(key+".failure_threshold", p.FailureThreshold)
	v.SetDefault(key+".open_duration", p.OpenDuration)
	v.SetDefault(key+".propagate_exhaustion", p.PropagateExhaustion)
}
