package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	MinDelay       = 0.1
	MaxDelay       = 2.0
	MinConcurrency = 1
	MaxConcurrency = 20

	MaxPageLoadTimeout = 15 * time.Second
	MinSettleTimeout   = 3 * time.Second
	MaxSettleTimeout   = 5 * time.Second

	envPrefix = "HARVESTER"
)

type Config struct {
	Env             string          `mapstructure:"env"`
	LogLevel        string          `mapstructure:"log_level"`
	LogType         string          `mapstructure:"log_type"`
	ServiceName     string          `mapstructure:"service_name"`
	Version         string          `mapstructure:"version"`
	ScraperSettings *ScraperConfig  `mapstructure:"scraper"`
	ArchiveSettings *ArchiveConfig  `mapstructure:"archive"`
	CacheSettings   *CacheConfig    `mapstructure:"cache"`
	KafkaSettings   *ProducerConfig `mapstructure:"kafka"`
	S3Settings      *S3Config       `mapstructure:"s3"`
}

type ScraperConfig struct {
	Delay           float64       `mapstructure:"delay"` // seconds between dispatches
	MaxConcurrency  int           `mapstructure:"max_concurrency"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	PageLoadTimeout time.Duration `mapstructure:"page_load_timeout"`
	SettleTimeout   time.Duration `mapstructure:"settle_timeout"`
	UserAgent       string        `mapstructure:"user_agent"`
	Render          bool          `mapstructure:"render"`
	Headless        bool          `mapstructure:"headless"`
	ChromePath      string        `mapstructure:"chrome_path"`
}

// DelayDuration converts the configured delay in seconds to a time.Duration.
func (sc *ScraperConfig) DelayDuration() time.Duration {
	return time.Duration(sc.Delay * float64(time.Second))
}

type ArchiveConfig struct {
	Enabled          bool `mapstructure:"enabled"`
	RequestTimeout   int  `mapstructure:"request_timeout"`
	Retries          int  `mapstructure:"retries"`
	LastCrawlIndexes int  `mapstructure:"last_crawl_indexes"`
}

type CacheConfig struct {
	Servers       string        `mapstructure:"servers"`
	TtlForWebsite time.Duration `mapstructure:"ttl_for_website"`
}

type ProducerConfig struct {
	Addr           string        `mapstructure:"addr"`
	WriteTopicName string        `mapstructure:"write_topic_name"`
	MaxAttempts    int           `mapstructure:"max_attempts"`
	BatchSize      int           `mapstructure:"batch_size"`
	BatchTimeout   time.Duration `mapstructure:"batch_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	RequiredAsks   int           `mapstructure:"required_acks"`
}

type S3Config struct {
	AwsAccessKey    string `mapstructure:"aws_access_key"`
	AwsSecretKey    string `mapstructure:"aws_secret_key"`
	AwsBaseEndpoint string `mapstructure:"aws_base_endpoint"`
	Region          string `mapstructure:"region"`
	BucketName      string `mapstructure:"bucket_name"`
	KeyPrefix       string `mapstructure:"key_prefix"`
}

// FlagBindings maps viper keys to command line flag names.
var FlagBindings = map[string]string{
	"log_level":               "log-level",
	"log_type":                "log-type",
	"scraper.delay":           "delay",
	"scraper.max_concurrency": "concurrency",
	"scraper.render":          "render",
	"scraper.headless":        "headless",
	"scraper.chrome_path":     "chrome-path",
	"archive.enabled":         "archive",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("env", "local")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_type", "text")
	v.SetDefault("service_name", "email-harvester")
	v.SetDefault("version", "dev")

	v.SetDefault("scraper.delay", 0.5)
	v.SetDefault("scraper.max_concurrency", 10)
	v.SetDefault("scraper.request_timeout", 15*time.Second)
	v.SetDefault("scraper.page_load_timeout", 15*time.Second)
	v.SetDefault("scraper.settle_timeout", 3*time.Second)
	v.SetDefault("scraper.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 "+
		"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	v.SetDefault("scraper.render", false)
	v.SetDefault("scraper.headless", true)
	v.SetDefault("scraper.chrome_path", "")

	v.SetDefault("archive.enabled", false)
	v.SetDefault("archive.request_timeout", 30)
	v.SetDefault("archive.retries", 2)
	v.SetDefault("archive.last_crawl_indexes", 3)

	v.SetDefault("cache.servers", "")
	v.SetDefault("cache.ttl_for_website", 24*time.Hour)

	v.SetDefault("kafka.addr", "")
	v.SetDefault("kafka.write_topic_name", "harvested-emails")
	v.SetDefault("kafka.max_attempts", 3)
	v.SetDefault("kafka.batch_size", 50)
	v.SetDefault("kafka.batch_timeout", time.Second)
	v.SetDefault("kafka.write_timeout", 10*time.Second)
	v.SetDefault("kafka.required_acks", 1)

	v.SetDefault("s3.aws_access_key", "")
	v.SetDefault("s3.aws_secret_key", "")
	v.SetDefault("s3.aws_base_endpoint", "")
	v.SetDefault("s3.region", "us-east-1")
	v.SetDefault("s3.bucket_name", "")
	v.SetDefault("s3.key_prefix", "harvests")
}

// Load reads the configuration from an optional yaml file, the environment (HARVESTER_ prefix,
// plus a .env file when present) and the given flags. Flags win over everything else.
// An explicitly given path that cannot be read is an error; a missing default config.yaml is not.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to load .env file.", slog.String("err", err.Error()))
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("can't read config file %s: %w", path, err)
		}
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("can't read config file: %w", err)
			}
		}
	}

	if flags != nil {
		for key, name := range FlagBindings {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("can't bind flag %s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	return &cfg, nil
}

// Validate checks the run settings. All violations are reported at once.
func (c *Config) Validate() error {
	if c.ScraperSettings == nil {
		return ErrMissingScraperSettings
	}
	sc := c.ScraperSettings
	var errs []error
	if sc.Delay < MinDelay || sc.Delay > MaxDelay {
		errs = append(errs, fmt.Errorf("%w: got %.2f", ErrInvalidDelay, sc.Delay))
	}
	if sc.MaxConcurrency < MinConcurrency || sc.MaxConcurrency > MaxConcurrency {
		errs = append(errs, fmt.Errorf("%w: got %d", ErrInvalidConcurrency, sc.MaxConcurrency))
	}
	if sc.RequestTimeout <= 0 {
		errs = append(errs, fmt.Errorf("%w: request_timeout %s", ErrInvalidTimeout, sc.RequestTimeout))
	}
	if sc.PageLoadTimeout <= 0 || sc.PageLoadTimeout > MaxPageLoadTimeout {
		errs = append(errs, fmt.Errorf("%w: page_load_timeout %s", ErrInvalidTimeout, sc.PageLoadTimeout))
	}
	if sc.SettleTimeout < MinSettleTimeout || sc.SettleTimeout > MaxSettleTimeout {
		errs = append(errs, fmt.Errorf("%w: settle_timeout %s", ErrInvalidTimeout, sc.SettleTimeout))
	}

	return errors.Join(errs...)
}
